// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package braintumor

import (
	"bytes"
	gocontext "context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/gomlx/gomlx/pkg/core/graph/graphtest"
	"github.com/gomlx/gomlx/pkg/ml/train/optimizers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	root := t.TempDir()
	dataDir := filepath.Join(root, "brain_tumor_dataset")
	writeImageFolder(t, dataDir, 10)

	ctx := CreateDefaultContext()
	ctx.SetParams(map[string]any{
		ParamEpochs:                  3,
		ParamBatchSize:               4,
		optimizers.ParamLearningRate: 0.01,
	})
	var out bytes.Buffer
	predictionsPath := filepath.Join(root, "predictions.csv")
	rocPath := filepath.Join(root, "roc.png")
	results, err := Run(gocontext.Background(), backend, ctx, Config{
		DataDir:         dataDir,
		Seed:            42,
		Summary:         true,
		PredictionsPath: predictionsPath,
		ROCPlotPath:     rocPath,
		Output:          &out,
	})
	require.NoError(t, err)
	output := out.String()
	re := regexp.MustCompile

	// 20 images: 16 for training (4 batches) and 4 for testing.
	assert.Equal(t, 16, results.NumTrain)
	assert.Equal(t, 4, results.NumTest)
	require.Len(t, results.TrainLosses, 3)
	assert.Regexp(t, re(`(?s)Training the model\.\.\.\nEpoch \[1/3\], Loss: \d+\.\d{4}\nEpoch \[2/3\], Loss: \d+\.\d{4}\n`+
		`Epoch \[3/3\], Loss: \d+\.\d{4}\nTraining Time: \d+\.\d\d seconds\n`), output)
	assert.Contains(t, output, "\nEvaluating model...\nCounter: 1\nCounter: 2\nCounter: 3\nCounter: 4\n\nClassification Report:\n")
	assert.NotContains(t, output, "Counter: 5")
	assert.Contains(t, output, "    No Tumor ")
	assert.Contains(t, output, "       Tumor ")
	assert.Regexp(t, re(`\nConfusion Matrix:\n\[\[\d \d\]\n \[\d \d\]\]\n`), output)
	assert.Regexp(t, re(`\nAccuracy: \d+\.\d\d%\nRecall: \d\.\d{4}\nF1 Score: \d\.\d{4}\nPrecision: \d\.\d{4}\nAUROC: (\d\.\d{4}|n/a)\n`), output)
	assert.Regexp(t, re(`\nEnd-to-End Time Measurements:\nTraining Time: \d+\.\d\d seconds\n`+
		`Evaluation Time: \d+\.\d\d seconds\nTotal Time: \d+\.\d\d seconds\n$`), output)

	var total int
	for _, row := range results.Confusion {
		for _, v := range row {
			total += v
		}
	}
	assert.Equal(t, 4, total)
	assert.GreaterOrEqual(t, results.TotalTime, results.TrainTime+results.EvalTime)

	// Predictions CSV: header plus one line per test example.
	csv, err := os.ReadFile(predictionsPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csv)), "\n")
	require.Len(t, lines, 5)
	assert.Equal(t, "path,label,label_name,predicted,predicted_name,prob_No Tumor,prob_Tumor", lines[0])
}

func TestRunSameSeedSameSplit(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	dataDir := filepath.Join(t.TempDir(), "data")
	writeImageFolder(t, dataDir, 5)

	run := func() *Results {
		ctx := CreateDefaultContext()
		ctx.SetParam(ParamEpochs, 1)
		results, err := Run(gocontext.Background(), backend, ctx, Config{DataDir: dataDir, Seed: 7, Output: &bytes.Buffer{}})
		require.NoError(t, err)
		return results
	}
	r1, r2 := run(), run()
	assert.Equal(t, r1.Evaluation.Paths, r2.Evaluation.Paths)
	assert.Equal(t, r1.Evaluation.Labels, r2.Evaluation.Labels)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	backend := graphtest.BuildTestBackend()
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	writeImageFolder(t, dataDir, 5)
	cfg := Config{DataDir: dataDir, Seed: 3, Checkpoint: "lenet"}

	ctx := CreateDefaultContext()
	ctx.SetParams(map[string]any{ParamEpochs: 2, ParamBatchSize: 4})
	var out bytes.Buffer
	cfg.Output = &out
	_, err := Run(gocontext.Background(), backend, ctx, cfg)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Epoch [2/2]")
	entries, err := os.ReadDir(filepath.Join(root, "lenet"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	// Continue training up to 3 epochs: only the 3rd epoch is run.
	ctx = CreateDefaultContext()
	ctx.SetParams(map[string]any{ParamEpochs: 3, ParamBatchSize: 4})
	out.Reset()
	cfg.ParamsSet = []string{ParamEpochs}
	results, err := Run(gocontext.Background(), backend, ctx, cfg)
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "Epoch [1/3]")
	assert.Contains(t, out.String(), "Epoch [3/3]")
	assert.Len(t, results.TrainLosses, 1)
}
