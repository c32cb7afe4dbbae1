// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package classification computes evaluation metrics for classifiers, from the true labels,
// the predicted labels and (for binary problems) the predicted score of the positive class.
//
// Labels are class indices in [0, numClasses). For binary metrics the positive class is 1.
package classification

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"
)

// PositiveClass is the class index considered "positive" by the binary metrics.
const PositiveClass = 1

// ErrSingleClass is returned by AUROC and ROC when the labels hold only one class, in which case
// the ROC curve is not defined.
var ErrSingleClass = errors.New("only one class present in labels, ROC curve is not defined")

// Scores holds the precision, recall and F1 score of one class, and its support (number of
// examples whose true label is the class).
type Scores struct {
	Precision, Recall, F1 float64
	Support              int
}

func checkLengths(labels, predictions []int) error {
	if len(labels) != len(predictions) {
		return errors.Errorf("labels (%d) and predictions (%d) must have the same length",
			len(labels), len(predictions))
	}
	return nil
}

// ConfusionMatrix returns the numClasses×numClasses matrix where entry [i][j] counts the examples
// with true label i that were predicted as j.
func ConfusionMatrix(labels, predictions []int, numClasses int) ([][]int, error) {
	if err := checkLengths(labels, predictions); err != nil {
		return nil, err
	}
	if numClasses <= 0 {
		return nil, errors.Errorf("numClasses must be > 0, got %d", numClasses)
	}
	cm := make([][]int, numClasses)
	for i := range cm {
		cm[i] = make([]int, numClasses)
	}
	for ii, label := range labels {
		pred := predictions[ii]
		if label < 0 || label >= numClasses || pred < 0 || pred >= numClasses {
			return nil, errors.Errorf("example #%d: label=%d, prediction=%d out of range for %d classes",
				ii, label, pred, numClasses)
		}
		cm[label][pred]++
	}
	return cm, nil
}

// Accuracy is the fraction of predictions equal to the labels. It returns NaN for empty inputs.
func Accuracy(labels, predictions []int) float64 {
	if len(labels) == 0 || len(labels) != len(predictions) {
		return math.NaN()
	}
	var correct int
	for ii, label := range labels {
		if predictions[ii] == label {
			correct++
		}
	}
	return float64(correct) / float64(len(labels))
}

// safeDiv returns num/den, or 0 if den is 0 -- it logs a warning naming the ill-defined metric.
func safeDiv(num, den float64, metric string, class int) float64 {
	if den == 0 {
		klog.Warningf("%s is ill-defined for class %d (no examples to divide by), setting it to 0.0", metric, class)
		return 0
	}
	return num / den
}

// PerClass returns the Scores of each class, given a confusion matrix built by ConfusionMatrix.
//
// Ill-defined values (e.g. precision of a class that is never predicted) are set to 0.
func PerClass(cm [][]int) []Scores {
	numClasses := len(cm)
	scores := make([]Scores, numClasses)
	for class := range numClasses {
		var truePositives, predicted, support int
		truePositives = cm[class][class]
		for other := range numClasses {
			predicted += cm[other][class]
			support += cm[class][other]
		}
		falsePositives := predicted - truePositives
		falseNegatives := support - truePositives
		s := &scores[class]
		s.Support = support
		s.Precision = safeDiv(float64(truePositives), float64(predicted), "precision", class)
		s.Recall = safeDiv(float64(truePositives), float64(support), "recall", class)
		s.F1 = safeDiv(2*float64(truePositives), float64(2*truePositives+falsePositives+falseNegatives), "F1 score", class)
	}
	return scores
}

// Binary returns the Scores of the PositiveClass of a binary classification.
func Binary(labels, predictions []int) (Scores, error) {
	cm, err := ConfusionMatrix(labels, predictions, 2)
	if err != nil {
		return Scores{}, err
	}
	return PerClass(cm)[PositiveClass], nil
}

// MacroAverage is the unweighted mean of the per-class scores. Support is the total.
func MacroAverage(scores []Scores) Scores {
	var avg Scores
	if len(scores) == 0 {
		return avg
	}
	for _, s := range scores {
		avg.Precision += s.Precision
		avg.Recall += s.Recall
		avg.F1 += s.F1
		avg.Support += s.Support
	}
	n := float64(len(scores))
	avg.Precision /= n
	avg.Recall /= n
	avg.F1 /= n
	return avg
}

// WeightedAverage is the mean of the per-class scores weighted by their support.
func WeightedAverage(scores []Scores) Scores {
	var avg Scores
	for _, s := range scores {
		w := float64(s.Support)
		avg.Precision += w * s.Precision
		avg.Recall += w * s.Recall
		avg.F1 += w * s.F1
		avg.Support += s.Support
	}
	if avg.Support == 0 {
		return Scores{}
	}
	total := float64(avg.Support)
	avg.Precision /= total
	avg.Recall /= total
	avg.F1 /= total
	return avg
}

// ROC returns the false and true positive rates of the receiver operating characteristic curve,
// with one point per distinct score (plus the origin), in increasing order of false positive rate.
//
// scores are the predicted scores (e.g. probabilities) of the PositiveClass.
func ROC(labels []int, scores []float64) (fpr, tpr []float64, err error) {
	if len(labels) != len(scores) {
		return nil, nil, errors.Errorf("labels (%d) and scores (%d) must have the same length", len(labels), len(scores))
	}
	y := make([]float64, len(scores))
	copy(y, scores)
	classes := make([]bool, len(labels))
	var numPositives int
	for ii, label := range labels {
		classes[ii] = label == PositiveClass
		if classes[ii] {
			numPositives++
		}
	}
	if numPositives == 0 || numPositives == len(labels) {
		return nil, nil, ErrSingleClass
	}
	stat.SortWeightedLabeled(y, classes, nil)
	tpr, fpr, _ = stat.ROC(nil, y, classes, nil)
	return fpr, tpr, nil
}

// AUROC returns the area under the ROC curve, computed with the trapezoidal rule.
// Tied scores are handled as a single threshold.
//
// It returns ErrSingleClass if only one class is present in labels.
func AUROC(labels []int, scores []float64) (float64, error) {
	fpr, tpr, err := ROC(labels, scores)
	if err != nil {
		return math.NaN(), err
	}
	return integrate.Trapezoidal(fpr, tpr), nil
}
