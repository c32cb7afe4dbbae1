// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package classification

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Report renders a text report with the precision, recall, F1 score and support of each class,
// followed by the accuracy, macro average and weighted average rows. The layout follows the
// widely used scikit-learn format, with `digits` decimal places.
//
// targetNames gives the display name of each class, and defines the number of classes.
func Report(labels, predictions []int, targetNames []string, digits int) (string, error) {
	cm, err := ConfusionMatrix(labels, predictions, len(targetNames))
	if err != nil {
		return "", err
	}
	if digits <= 0 {
		digits = 2
	}
	scores := PerClass(cm)

	const lastLineHeading = "weighted avg"
	width := len(lastLineHeading)
	for _, name := range targetNames {
		width = max(width, len(name))
	}
	width = max(width, digits)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%*s ", width, "")
	for _, header := range []string{"precision", "recall", "f1-score", "support"} {
		fmt.Fprintf(&sb, " %9s", header)
	}
	sb.WriteString("\n\n")

	writeRow := func(name string, s Scores) {
		fmt.Fprintf(&sb, "%*s ", width, name)
		for _, v := range []float64{s.Precision, s.Recall, s.F1} {
			fmt.Fprintf(&sb, " %9.*f", digits, v)
		}
		fmt.Fprintf(&sb, " %9d\n", s.Support)
	}
	for class, name := range targetNames {
		writeRow(name, scores[class])
	}
	sb.WriteString("\n")

	// Accuracy row only has the f1-score column filled.
	macro := MacroAverage(scores)
	fmt.Fprintf(&sb, "%*s  %9s %9s %9.*f %9d\n", width, "accuracy", "", "", digits, Accuracy(labels, predictions), macro.Support)
	writeRow("macro avg", macro)
	writeRow(lastLineHeading, WeightedAverage(scores))
	return sb.String(), nil
}

// FormatMatrix renders an integer matrix in the bracketed layout used by NumPy, e.g.:
//
//	[[24  3]
//	 [ 4 20]]
func FormatMatrix(m [][]int) string {
	if len(m) == 0 {
		return "[]"
	}
	var width int
	for _, row := range m {
		for _, v := range row {
			width = max(width, len(strconv.Itoa(v)))
		}
	}
	var sb strings.Builder
	sb.WriteString("[")
	for rowIdx, row := range m {
		if rowIdx > 0 {
			sb.WriteString("\n ")
		}
		sb.WriteString("[")
		for colIdx, v := range row {
			if colIdx > 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, "%*d", width, v)
		}
		sb.WriteString("]")
	}
	sb.WriteString("]")
	return sb.String()
}

// ArgMax returns the index of the largest value, the first one in case of ties.
// It returns an error for an empty slice.
func ArgMax[T ~float32 | ~float64](values []T) (int, error) {
	if len(values) == 0 {
		return -1, errors.New("ArgMax of empty slice")
	}
	best := 0
	for ii, v := range values[1:] {
		if v > values[best] {
			best = ii + 1
		}
	}
	return best, nil
}
