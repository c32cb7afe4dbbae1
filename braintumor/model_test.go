// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package braintumor

import (
	"testing"

	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/gomlx/gomlx/backends/default"
)

func TestConvOutputSize(t *testing.T) {
	assert.Equal(t, 8, ConvOutputSize(28, 7, 3))
	assert.Equal(t, 22, ConvOutputSize(28, 7, 1))
}

func TestLeNetModelGraph(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := CreateDefaultContext()
	ctx.RngStateFromSeed(42)

	const batchSize = 3
	images := tensors.FromFlatDataAndDimensions(make([]float32, batchSize*ImageSize*ImageSize), batchSize, ImageSize, ImageSize, 1)
	logits := context.MustExecOnce(backend, ctx.In(ModelScope), func(ctx *context.Context, images *Node) *Node {
		return LeNetModelGraph(ctx, nil, []*Node{images})[0]
	}, images)
	assert.Equal(t, []int{batchSize, len(ClassNames)}, logits.Shape().Dimensions)

	// Variables: conv kernel [7, 7, 1, 4] (+ bias), hidden dense [256, 64] (+ bias), readout [64, 2] (+ bias).
	var numWeights int
	for v := range ctx.In(ModelScope).IterVariablesInScope() {
		numWeights += v.Shape().Size()
	}
	assert.Equal(t, 7*7*4+4+256*64+64+64*2+2, numWeights)

	// Probabilities sum to one.
	probs := context.MustExecOnce(backend, ctx.In(ModelScope).Reuse(), ProbabilitiesGraph, images)
	flat := tensors.MustCopyFlatData[float32](probs)
	require.Len(t, flat, batchSize*len(ClassNames))
	for row := range batchSize {
		assert.InDelta(t, 1.0, flat[2*row]+flat[2*row+1], 1e-5)
	}
}

func TestLeNetModelGraphHyperparameters(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	ctx := CreateDefaultContext()
	ctx.SetParams(map[string]any{
		ParamLeNetHidden:  16,
		ParamLeNetFilters: 2,
		ParamNumClasses:   3,
	})
	const size = 16
	images := tensors.FromFlatDataAndDimensions(make([]float32, size*size), 1, size, size, 1)
	logits := context.MustExecOnce(backend, ctx.In(ModelScope), func(ctx *context.Context, images *Node) *Node {
		return LeNetModelGraph(ctx, nil, []*Node{images})[0]
	}, images)
	assert.Equal(t, []int{1, 3}, logits.Shape().Dimensions)
	hidden := ctx.GetVariableByScopeAndName("/"+ModelScope+"/001_dense/dense", "weights")
	require.NotNil(t, hidden)
	convSize := ConvOutputSize(size, 7, 3)
	assert.Equal(t, []int{convSize * convSize * 2, 16}, hidden.Shape().Dimensions)
}
