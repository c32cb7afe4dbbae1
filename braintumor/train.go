// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package braintumor

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/shapes"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gomlx/pkg/ml/train/losses"
	"github.com/gomlx/gomlx/pkg/ml/train/metrics"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ModelScope is the context scope holding the model variables.
const ModelScope = "model"

// TrainConfig holds the options of Train that are not hyperparameters.
type TrainConfig struct {
	// Checkpoint directory. If empty no checkpoints are saved. If relative, it is taken relative to BaseDir.
	// If it already has checkpoints, training resumes from the last one.
	Checkpoint string

	// BaseDir for a relative Checkpoint.
	BaseDir string

	// ParamsSet are hyperparameters set by the user: they are not saved along the checkpoint, so they can be
	// changed in a resumed training.
	ParamsSet []string

	// ProgressBar attaches a command-line progress bar to the training loop.
	ProgressBar bool

	// CheckpointPeriod is how often to save a checkpoint during training, in addition to the end of training.
	// Defaults to 3 minutes.
	CheckpointPeriod time.Duration

	// Output where the per-epoch losses are printed. Defaults to os.Stdout.
	Output io.Writer
}

// TrainResult of Train.
type TrainResult struct {
	// EpochLosses are the mean of the batch losses of each epoch run.
	EpochLosses []float64

	// Duration of the training loop, excluding the setup.
	Duration time.Duration

	// Trainer used, it can be used for further evaluations.
	Trainer *train.Trainer
}

// Train the LeNet model on trainDS for the number of epochs set in ctx (ParamEpochs), using the Adam optimizer
// (or the one configured in ctx) and the sparse categorical cross-entropy loss.
//
// It prints "Epoch [e/E], Loss: x.xxxx" at the end of each epoch.
func Train(backend backends.Backend, ctx *context.Context, trainDS *Dataset, cfg TrainConfig) (*TrainResult, error) {
	if cfg.Output == nil {
		cfg.Output = os.Stdout
	}
	if cfg.CheckpointPeriod <= 0 {
		cfg.CheckpointPeriod = 3 * time.Minute
	}
	numEpochs := context.GetParamOr(ctx, ParamEpochs, 20)
	if numEpochs <= 0 {
		return nil, errors.Errorf("hyperparameter %q must be > 0, got %d", ParamEpochs, numEpochs)
	}
	if trainDS.NumExamples() == 0 {
		return nil, errors.Errorf("training dataset %q is empty", trainDS.Name())
	}

	// Checkpoints saving: it also loads the last checkpoint, if one exists.
	var checkpoint *checkpoints.Handler
	if cfg.Checkpoint != "" {
		var err error
		checkpoint, err = checkpoints.Build(ctx).
			DirFromBase(cfg.Checkpoint, cfg.BaseDir).
			Keep(context.GetParamOr(ctx, ParamNumCheckpoints, 1)).
			ExcludeParams(append(cfg.ParamsSet, ParamsExcludedFromSaving...)...).
			Done()
		if err != nil {
			return nil, errors.WithMessagef(err, "failed to setup checkpoint in %q", cfg.Checkpoint)
		}
		fmt.Fprintf(cfg.Output, "Checkpointing model to %q\n", checkpoint.Dir())
	}

	meanAccuracyMetric := metrics.NewSparseCategoricalAccuracy("Mean Accuracy", "#acc")
	movingAccuracyMetric := metrics.NewMovingAverageSparseCategoricalAccuracy("Moving Average Accuracy", "~acc", 0.01)

	ctx = ctx.In(ModelScope)
	trainer := train.NewTrainer(backend, ctx, LeNetModelGraph,
		losses.SparseCategoricalCrossEntropyLogits,
		optimizers.FromContext(ctx),
		[]metrics.Interface{movingAccuracyMetric}, // trainMetrics
		[]metrics.Interface{meanAccuracyMetric})   // evalMetrics

	// Resume from a checkpoint: skip the epochs already completed.
	stepsPerEpoch := StepsPerEpoch(trainDS.NumExamples(), trainDS.batchSize)
	globalStep := int(optimizers.GetGlobalStep(ctx))
	completedEpochs := 0
	if globalStep > 0 {
		trainer.SetContext(ctx.Reuse())
		completedEpochs = globalStep / stepsPerEpoch
		klog.Infof("resuming training from global step %d (%d epochs completed)", globalStep, completedEpochs)
	}
	result := &TrainResult{Trainer: trainer}
	if completedEpochs >= numEpochs {
		fmt.Fprintf(cfg.Output, "\t - target %s=%d already reached. To train further, increase it with -set=\"%s=<value>\"\n",
			ParamEpochs, numEpochs, ParamEpochs)
		return result, nil
	}

	loop := train.NewLoop(trainer)
	if cfg.ProgressBar {
		commandline.AttachProgressBar(loop)
	}
	reporter := &epochLossReporter{
		output:      cfg.Output,
		firstEpoch:  completedEpochs,
		numEpochs:   numEpochs,
		lastEpochIn: -1,
	}
	loop.OnStep("epoch loss", 0, reporter.onStep)
	loop.OnEnd("epoch loss", 0, reporter.onEnd)
	if checkpoint != nil {
		train.PeriodicCallback(loop, cfg.CheckpointPeriod, true, "saving checkpoint", 100,
			func(loop *train.Loop, metrics []*tensors.Tensor) error {
				return checkpoint.Save()
			})
	}

	start := time.Now()
	_, err := loop.RunEpochs(trainDS, numEpochs-completedEpochs)
	result.Duration = time.Since(start)
	result.EpochLosses = reporter.losses
	if err != nil {
		return result, errors.WithMessagef(err, "training failed at epoch %d", completedEpochs+loop.Epoch+1)
	}
	klog.V(1).Infof("median train step: %d microseconds", loop.MedianTrainStepDuration().Microseconds())
	return result, nil
}

// StepsPerEpoch returns the number of batches in one epoch, including the last partial batch.
func StepsPerEpoch(numExamples, batchSize int) int {
	return (numExamples + batchSize - 1) / batchSize
}

// epochLossReporter accumulates the batch losses of each epoch, and prints their mean once the epoch is over.
type epochLossReporter struct {
	output                io.Writer
	firstEpoch, numEpochs int

	lastEpochIn int
	sum         float64
	count       int
	losses      []float64
}

func (r *epochLossReporter) onStep(loop *train.Loop, metrics []*tensors.Tensor) error {
	if loop.Epoch != r.lastEpochIn {
		r.flush()
		r.lastEpochIn = loop.Epoch
	}
	// The first train metric is always the batch loss.
	r.sum += shapes.ConvertTo[float64](metrics[0].Value())
	r.count++
	return nil
}

func (r *epochLossReporter) onEnd(_ *train.Loop, _ []*tensors.Tensor) error {
	r.flush()
	return nil
}

func (r *epochLossReporter) flush() {
	if r.count == 0 {
		return
	}
	loss := r.sum / float64(r.count)
	r.losses = append(r.losses, loss)
	fmt.Fprintf(r.output, "Epoch [%d/%d], Loss: %.4f\n", r.firstEpoch+r.lastEpochIn+1, r.numEpochs, loss)
	r.sum, r.count = 0, 0
}
