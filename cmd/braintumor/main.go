// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// braintumor trains a LeNet-1 classifier on the "Brain MRI Images for Brain Tumor Detection" Kaggle dataset,
// and evaluates it on a held-out split, printing the classification report, confusion matrix, metrics and timings.
//
// With no flags it downloads the dataset (Kaggle credentials are read from ./kaggle.json, or from
// $KAGGLE_USERNAME and $KAGGLE_KEY) into ./brain_tumor_dataset, and trains for 20 epochs.
//
// Hyperparameters can be changed with -set, e.g.: -set="epochs=5;batch_size=16;learning_rate=0.01".
// The backend is selected with $GOMLX_BACKEND.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/gomlx/braintumor/braintumor"
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/ui/commandline"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"

	_ "github.com/gomlx/gomlx/backends/default"
)

var (
	flagDataDir         = flag.String("data", braintumor.DefaultDataDir, "Root directory of the dataset, with one sub-directory per class.")
	flagDownload        = flag.Bool("download", true, "Download the dataset from Kaggle, if -data doesn't exist yet.")
	flagKaggleConfigDir = flag.String("kaggle_config_dir", ".", "Directory with kaggle.json credentials.")
	flagSeed            = flag.Int64("seed", 0, "Random seed for the data split, shuffling and initialization. If 0 it is time based.")
	flagCheckpoint      = flag.String("checkpoint", "", "Directory to save and load checkpoints from, relative to the parent of -data. If empty, no checkpoints are created.")
	flagProgress        = flag.Bool("progress", false, "Display progress bars for download and training.")
	flagSummary         = flag.Bool("summary", false, "Print a summary table of the dataset splits and main hyperparameters before training.")
	flagReportEval      = flag.Bool("report_eval", false, "After training, report the trainer's accuracy on the train and test splits.")
	flagPredictions     = flag.String("predictions", "", "If set, save the per-image test predictions to this CSV file.")
	flagROCPlot         = flag.String("roc_plot", "", "If set, save the ROC curve to this image file (.png, .svg or .pdf).")
)

func main() {
	ctx := braintumor.CreateDefaultContext()
	settings := commandline.CreateContextSettingsFlag(ctx, "")
	klog.InitFlags(nil)
	flag.Parse()

	goCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := exceptions.TryCatch[error](func() {
		paramsSet := must.M1(commandline.ParseContextSettings(ctx, *settings))
		backend := backends.MustNew()
		_ = must.M1(braintumor.Run(goCtx, backend, ctx, braintumor.Config{
			DataDir:         *flagDataDir,
			Download:        *flagDownload,
			KaggleConfigDir: *flagKaggleConfigDir,
			Seed:            *flagSeed,
			Checkpoint:      *flagCheckpoint,
			ParamsSet:       paramsSet,
			ProgressBar:     *flagProgress,
			Summary:         *flagSummary,
			ReportEval:      *flagReportEval,
			PredictionsPath: *flagPredictions,
			ROCPlotPath:     *flagROCPlot,
		}))
	})
	if err != nil {
		klog.Errorf("Error:\n%+v", err)
		klog.Flush()
		cancel()
		os.Exit(1)
	}
}
