// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package braintumor

import (
	gocontext "context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/gomlx/braintumor/classification"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/support/fsutil"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Config of an experiment Run. Model and training hyperparameters are set in the context.Context instead.
type Config struct {
	// DataDir is the root of the ImageFolder dataset.
	DataDir string

	// Download the dataset from Kaggle if DataDir doesn't exist.
	Download bool

	// KaggleConfigDir where to look for kaggle.json. If empty, KAGGLE_CONFIG_DIR or the current directory is used.
	KaggleConfigDir string

	// Seed for the train/test split, the shuffling and the model initialization. If 0, a time based seed is used.
	Seed int64

	// Checkpoint directory, relative to the parent directory of DataDir if not absolute. Optional.
	Checkpoint string

	// ParamsSet are the hyperparameters set by the user, see commandline.ParseContextSettings.
	ParamsSet []string

	// ProgressBar during download and training.
	ProgressBar bool

	// Summary prints a table with the dataset and hyperparameters before training.
	Summary bool

	// ReportEval prints the trainer's accuracy on the train and test splits after training.
	ReportEval bool

	// PredictionsPath is an optional CSV file where to save the predictions of each test example.
	PredictionsPath string

	// ROCPlotPath is an optional image file where to save the ROC curve.
	ROCPlotPath string

	// Output for the report. Defaults to os.Stdout.
	Output io.Writer
}

// Results of a Run.
type Results struct {
	Confusion            [][]int
	Accuracy             float64
	Binary               classification.Scores
	AUROC                float64
	TrainLosses          []float64
	TrainTime, EvalTime  time.Duration
	TotalTime            time.Duration
	NumTrain, NumTest    int
	Evaluation           *Evaluation
	ClassificationReport string
}

// Run the experiment end-to-end: prepare the data, train the LeNet model, evaluate it on the test split and
// print the classification report, confusion matrix, metrics and timings.
func Run(goCtx gocontext.Context, backend backends.Backend, ctx *context.Context, cfg Config) (*Results, error) {
	overallStart := time.Now()
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	klog.V(1).Infof("backend %q: %s", backend.Name(), backend.Description())

	// Data preparation.
	if cfg.Download {
		if err := Download(goCtx, cfg.DataDir, cfg.KaggleConfigDir, cfg.ProgressBar); err != nil {
			return nil, err
		}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	klog.V(1).Infof("random seed: %d", seed)
	rng := rand.New(rand.NewSource(seed))
	ctx.RngStateFromSeed(seed)

	imageSize := context.GetParamOr(ctx, ParamImageSize, ImageSize)
	examples, classes, err := LoadImageFolder(cfg.DataDir, imageSize)
	if err != nil {
		return nil, err
	}
	numClasses := context.GetParamOr(ctx, ParamNumClasses, len(ClassNames))
	if len(classes) != numClasses {
		return nil, errors.Errorf("dataset in %q has %d classes %v, but the model is configured with %s=%d",
			cfg.DataDir, len(classes), classes, ParamNumClasses, numClasses)
	}
	targetNames := classes
	if len(classes) == len(ClassNames) {
		targetNames = ClassNames
	}

	trainExamples, testExamples, err := RandomSplit(examples, context.GetParamOr(ctx, ParamTrainSplit, 0.8), rng)
	if err != nil {
		return nil, err
	}
	trainDS, err := NewDataset("train", trainExamples, imageSize, context.GetParamOr(ctx, ParamBatchSize, 32), rng)
	if err != nil {
		return nil, err
	}
	testDS, err := NewDataset("test", testExamples, imageSize, context.GetParamOr(ctx, ParamEvalBatchSize, 1), nil)
	if err != nil {
		return nil, err
	}
	if cfg.Summary {
		fmt.Fprintln(out, summaryTable(ctx, classes, trainExamples, testExamples))
	}
	if klog.V(2).Enabled() {
		klog.Info(commandline.SprintContextSettings(ctx))
	}

	// Training.
	fmt.Fprintln(out, "Training the model...")
	trainResult, err := Train(backend, ctx, trainDS, TrainConfig{
		Checkpoint:  cfg.Checkpoint,
		BaseDir:     filepath.Dir(fsutil.MustReplaceTildeInDir(cfg.DataDir)),
		ParamsSet:   cfg.ParamsSet,
		ProgressBar: cfg.ProgressBar,
		Output:      out,
	})
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(out, "Training Time: %.2f seconds\n", trainResult.Duration.Seconds())
	if cfg.ReportEval {
		if err = reportEval(backend, trainResult, trainExamples, testExamples, imageSize); err != nil {
			return nil, err
		}
	}

	// Evaluation: inference plus metrics.
	fmt.Fprintln(out, "\nEvaluating model...")
	evalStart := time.Now()
	eval, err := Evaluate(backend, ctx, testDS, out)
	if err != nil {
		return nil, err
	}
	results := &Results{
		TrainLosses: trainResult.EpochLosses,
		TrainTime:   trainResult.Duration,
		NumTrain:    len(trainExamples),
		NumTest:     len(testExamples),
		Evaluation:  eval,
	}
	if results.ClassificationReport, err = classification.Report(eval.Labels, eval.Predictions, targetNames, 2); err != nil {
		return nil, err
	}
	if results.Confusion, err = classification.ConfusionMatrix(eval.Labels, eval.Predictions, numClasses); err != nil {
		return nil, err
	}
	results.Accuracy = classification.Accuracy(eval.Labels, eval.Predictions)
	if results.Binary, err = classification.Binary(eval.Labels, eval.Predictions); err != nil {
		return nil, err
	}
	scores := eval.PositiveScores()
	results.AUROC, err = classification.AUROC(eval.Labels, scores)
	if err != nil {
		if !errors.Is(err, classification.ErrSingleClass) {
			return nil, err
		}
		klog.Warningf("AUROC not defined: %v", err)
		results.AUROC = math.NaN()
	}
	results.EvalTime = time.Since(evalStart)

	// Report.
	fmt.Fprintln(out, "\nClassification Report:")
	fmt.Fprintln(out, results.ClassificationReport)
	fmt.Fprintln(out, "\nConfusion Matrix:")
	fmt.Fprintln(out, classification.FormatMatrix(results.Confusion))
	fmt.Fprintf(out, "\nAccuracy: %.2f%%\n", 100*results.Accuracy)
	fmt.Fprintf(out, "Recall: %.4f\n", results.Binary.Recall)
	fmt.Fprintf(out, "F1 Score: %.4f\n", results.Binary.F1)
	fmt.Fprintf(out, "Precision: %.4f\n", results.Binary.Precision)
	if math.IsNaN(results.AUROC) {
		fmt.Fprintln(out, "AUROC: n/a")
	} else {
		fmt.Fprintf(out, "AUROC: %.4f\n", results.AUROC)
	}

	results.TotalTime = time.Since(overallStart)
	fmt.Fprintln(out, "\nEnd-to-End Time Measurements:")
	fmt.Fprintf(out, "Training Time: %.2f seconds\n", results.TrainTime.Seconds())
	fmt.Fprintf(out, "Evaluation Time: %.2f seconds\n", results.EvalTime.Seconds())
	fmt.Fprintf(out, "Total Time: %.2f seconds\n", results.TotalTime.Seconds())

	// Optional artifacts.
	if cfg.PredictionsPath != "" {
		if err = SavePredictions(cfg.PredictionsPath, eval, targetNames); err != nil {
			return nil, err
		}
		klog.Infof("predictions saved to %q", cfg.PredictionsPath)
	}
	if cfg.ROCPlotPath != "" {
		if err = classification.PlotROC(cfg.ROCPlotPath, eval.Labels, scores); err != nil {
			if !errors.Is(err, classification.ErrSingleClass) {
				return nil, err
			}
			klog.Warningf("ROC plot not saved: %v", err)
		} else {
			klog.Infof("ROC curve saved to %q", cfg.ROCPlotPath)
		}
	}
	return results, nil
}

// SavePredictions writes a CSV file with one row per evaluated example: its path, true and predicted
// labels (index and name) and the probability of each class.
func SavePredictions(filePath string, eval *Evaluation, targetNames []string) error {
	labelNames := make([]string, len(eval.Labels))
	predNames := make([]string, len(eval.Predictions))
	for ii := range eval.Labels {
		labelNames[ii] = className(targetNames, eval.Labels[ii])
		predNames[ii] = className(targetNames, eval.Predictions[ii])
	}
	columns := []series.Series{
		series.New(eval.Paths, series.String, "path"),
		series.New(eval.Labels, series.Int, "label"),
		series.New(labelNames, series.String, "label_name"),
		series.New(eval.Predictions, series.Int, "predicted"),
		series.New(predNames, series.String, "predicted_name"),
	}
	for class, name := range targetNames {
		probs := make([]float64, len(eval.Probabilities))
		for ii, p := range eval.Probabilities {
			probs[ii] = p[class]
		}
		columns = append(columns, series.New(probs, series.Float, "prob_"+name))
	}
	df := dataframe.New(columns...)
	if df.Err != nil {
		return errors.Wrap(df.Err, "failed to build predictions table")
	}

	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "failed to create predictions file %q", filePath)
	}
	if err = df.WriteCSV(f); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write predictions to %q", filePath)
	}
	return errors.Wrapf(f.Close(), "failed to close %q", filePath)
}

func className(names []string, class int) string {
	if class >= 0 && class < len(names) {
		return names[class]
	}
	return strconv.Itoa(class)
}

// reportEval prints the trainer's evaluation metrics (mean accuracy) over the train and test splits.
func reportEval(backend backends.Backend, trainResult *TrainResult, trainExamples, testExamples []Example, imageSize int) error {
	trainEvalDS, err := NewInMemoryDataset(backend, "train", trainExamples, imageSize, 32)
	if err != nil {
		return err
	}
	testEvalDS, err := NewInMemoryDataset(backend, "test", testExamples, imageSize, 32)
	if err != nil {
		return err
	}
	return commandline.ReportEval(trainResult.Trainer, trainEvalDS, testEvalDS)
}

var (
	summaryHeaderStyle = lipgloss.NewStyle().Bold(true).Reverse(true).Padding(0, 1)
	summaryCellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// summaryTable renders the dataset split sizes and the main hyperparameters.
func summaryTable(ctx *context.Context, classes []string, trainExamples, testExamples []Example) string {
	countPerClass := func(examples []Example) []int {
		counts := make([]int, len(classes))
		for _, example := range examples {
			counts[example.Label]++
		}
		return counts
	}
	trainCounts, testCounts := countPerClass(trainExamples), countPerClass(testExamples)

	table := lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row < 0 {
				return summaryHeaderStyle
			}
			if col > 0 {
				return summaryCellStyle.Align(lipgloss.Right)
			}
			return summaryCellStyle
		}).
		Headers("Split", "Examples")
	for classIdx, class := range classes {
		table.Row(fmt.Sprintf("train/%s", class), strconv.Itoa(trainCounts[classIdx]))
	}
	for classIdx, class := range classes {
		table.Row(fmt.Sprintf("test/%s", class), strconv.Itoa(testCounts[classIdx]))
	}
	for _, key := range []string{ParamEpochs, ParamBatchSize, ParamImageSize, ParamLeNetHidden} {
		value, _ := ctx.GetParam(key)
		table.Row(key, fmt.Sprintf("%v", value))
	}
	return table.Render()
}
