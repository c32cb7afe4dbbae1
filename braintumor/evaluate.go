// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package braintumor

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gomlx/braintumor/classification"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/pkg/errors"
)

// Evaluation holds the per-example results of Evaluate, in the order of the evaluated dataset.
type Evaluation struct {
	// Paths of the evaluated images.
	Paths []string

	// Labels are the true classes.
	Labels []int

	// Predictions are the classes with the highest probability.
	Predictions []int

	// Probabilities of each class, per example.
	Probabilities [][]float64

	// Duration of the inference.
	Duration time.Duration
}

// PositiveScores returns the probability of classification.PositiveClass ("Tumor") of each example,
// used to rank the examples for the ROC curve.
func (e *Evaluation) PositiveScores() []float64 {
	scores := make([]float64, len(e.Probabilities))
	for ii, probs := range e.Probabilities {
		scores[ii] = probs[classification.PositiveClass]
	}
	return scores
}

// Evaluate runs inference with the trained model (the variables in ctx) over testDS, and collects the
// labels, predictions and class probabilities.
//
// It prints "Counter: n" for every batch evaluated. testDS must not be shuffled, since the results are
// matched with its examples.
func Evaluate(backend backends.Backend, ctx *context.Context, testDS *Dataset, output io.Writer) (*Evaluation, error) {
	if output == nil {
		output = os.Stdout
	}
	if testDS.shuffle != nil {
		return nil, errors.Errorf("evaluation dataset %q must not be shuffled", testDS.Name())
	}
	start := time.Now()
	exec, err := context.NewExec(backend, ctx.In(ModelScope).Reuse(), ProbabilitiesGraph)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create inference executor")
	}

	examples := testDS.Examples()
	eval := &Evaluation{
		Paths:         make([]string, 0, len(examples)),
		Labels:        make([]int, 0, len(examples)),
		Predictions:   make([]int, 0, len(examples)),
		Probabilities: make([][]float64, 0, len(examples)),
	}
	testDS.Reset()
	counter := 1
	for {
		_, inputs, _, err := testDS.Yield()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "failed reading from dataset %q", testDS.Name())
		}
		fmt.Fprintf(output, "Counter: %d\n", counter)
		counter++

		probsT, err := exec.Exec1(inputs[0])
		if err != nil {
			return nil, errors.WithMessagef(err, "inference failed on batch #%d", counter-1)
		}
		numClasses := probsT.Shape().Dimensions[1]
		flat := tensors.MustCopyFlatData[float32](probsT)
		probsT.MustFinalizeAll()
		inputs[0].MustFinalizeAll()

		for row := range len(flat) / numClasses {
			example := examples[len(eval.Labels)]
			probs := make([]float64, numClasses)
			for class := range numClasses {
				probs[class] = float64(flat[row*numClasses+class])
			}
			pred, err := classification.ArgMax(probs)
			if err != nil {
				return nil, err
			}
			eval.Paths = append(eval.Paths, example.Path)
			eval.Labels = append(eval.Labels, example.Label)
			eval.Predictions = append(eval.Predictions, pred)
			eval.Probabilities = append(eval.Probabilities, probs)
		}
	}
	testDS.Reset()
	eval.Duration = time.Since(start)
	return eval, nil
}
