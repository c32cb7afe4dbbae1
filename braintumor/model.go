// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package braintumor

import (
	"github.com/gomlx/exceptions"
	. "github.com/gomlx/gomlx/pkg/core/graph"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/layers"
	"github.com/gomlx/gopjrt/dtypes"
)

// DType of the images and of the model variables.
var DType = dtypes.Float32

// LeNetModelGraph implements train.ModelFn and returns the logits, shaped `[batch_size, num_classes]`, given
// the batch of grayscale images shaped `[batch_size, height, width, 1]`.
//
// It's the LeNet-1 variant: one convolution with no padding, a square activation, one hidden dense
// layer with a square activation, and the final linear layer. With the default hyperparameters and
// 28x28 images, the convolution outputs 4 channels of 8x8, flattened to 256 features.
func LeNetModelGraph(ctx *context.Context, spec any, inputs []*Node) []*Node {
	_ = spec // Not used.
	images := inputs[0]
	if images.Rank() != 4 || images.DType() != DType {
		exceptions.Panicf("LeNet expects images shaped [batch_size, height, width, 1] of dtype %s, got %s", DType, images.Shape())
	}
	batchSize := images.Shape().Dimensions[0]
	numClasses := context.GetParamOr(ctx, ParamNumClasses, len(ClassNames))

	layerIdx := 0
	nextCtx := func(name string) *context.Context {
		newCtx := ctx.Inf("%03d_%s", layerIdx, name)
		layerIdx++
		return newCtx
	}

	logits := layers.Convolution(nextCtx("conv"), images).
		Channels(context.GetParamOr(ctx, ParamLeNetFilters, 4)).
		KernelSize(context.GetParamOr(ctx, ParamLeNetKernel, 7)).
		Strides(context.GetParamOr(ctx, ParamLeNetStride, 3)).
		NoPadding().
		Done()
	logits = Square(logits)
	logits = Reshape(logits, batchSize, -1)

	logits = layers.Dense(nextCtx("dense"), logits, true, context.GetParamOr(ctx, ParamLeNetHidden, 64))
	logits = Square(logits)
	logits = layers.Dense(nextCtx("readout"), logits, true, numClasses)
	logits.AssertDims(batchSize, numClasses)
	return []*Node{logits}
}

// ConvOutputSize returns the spatial size of the LeNet convolution output for square images of the given size,
// with no padding.
func ConvOutputSize(imageSize, kernel, stride int) int {
	return (imageSize-kernel)/stride + 1
}

// ProbabilitiesGraph returns the softmax of the LeNet logits over the classes, shaped `[batch_size, num_classes]`.
func ProbabilitiesGraph(ctx *context.Context, images *Node) *Node {
	logits := LeNetModelGraph(ctx, nil, []*Node{images})[0]
	return Softmax(logits, -1)
}
