// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package braintumor

import (
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
)

// Hyperparameters names, set in the context.Context. See CreateDefaultContext for their defaults.
const (
	ParamEpochs        = "epochs"
	ParamBatchSize     = "batch_size"
	ParamEvalBatchSize = "eval_batch_size"
	ParamTrainSplit    = "train_split"
	ParamImageSize     = "image_size"
	ParamNumClasses    = "num_classes"

	// LeNet-1 configuration.
	ParamLeNetFilters = "lenet_filters"
	ParamLeNetKernel  = "lenet_kernel"
	ParamLeNetStride  = "lenet_stride"
	ParamLeNetHidden  = "lenet_hidden"

	ParamNumCheckpoints = "num_checkpoints"
)

// ParamsExcludedFromSaving are hyperparameters that are not saved along the checkpoints, so they can be
// changed when training is resumed.
var ParamsExcludedFromSaving = []string{ParamEpochs, ParamNumCheckpoints, ParamEvalBatchSize}

// CreateDefaultContext returns a context with the default hyperparameters of the experiment.
func CreateDefaultContext() *context.Context {
	ctx := context.New()
	ctx.SetParams(map[string]any{
		ParamEpochs:        20,
		ParamBatchSize:     32,
		ParamEvalBatchSize: 1,
		ParamTrainSplit:    0.8,
		ParamImageSize:     ImageSize,
		ParamNumClasses:    len(ClassNames),

		ParamLeNetFilters: 4,
		ParamLeNetKernel:  7,
		ParamLeNetStride:  3,
		ParamLeNetHidden:  64,

		ParamNumCheckpoints: 1,

		optimizers.ParamOptimizer:    "adam",
		optimizers.ParamLearningRate: 0.001,
		optimizers.ParamAdamEpsilon:  1e-8,
	})
	return ctx
}
