// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package classification

import (
	"fmt"
	"image/color"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotSize is the width and height of the images saved by PlotROC.
var PlotSize = 5 * vg.Inch

// PlotROC saves an image with the ROC curve of the scores, along with the chance diagonal.
// The format is taken from the file extension (".png", ".svg", ".pdf", ...).
func PlotROC(filePath string, labels []int, scores []float64) error {
	fpr, tpr, err := ROC(labels, scores)
	if err != nil {
		return err
	}
	auc, err := AUROC(labels, scores)
	if err != nil {
		return err
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("ROC curve (AUROC = %.4f)", auc)
	p.X.Label.Text = "False Positive Rate"
	p.Y.Label.Text = "True Positive Rate"
	p.X.Min, p.X.Max = 0, 1
	p.Y.Min, p.Y.Max = 0, 1
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(fpr))
	for ii := range fpr {
		pts[ii].X = fpr[ii]
		pts[ii].Y = tpr[ii]
	}
	curve, err := plotter.NewLine(pts)
	if err != nil {
		return errors.Wrap(err, "failed to create ROC line")
	}
	curve.Color = color.RGBA{R: 200, A: 255}
	curve.Width = vg.Points(2)

	chance := plotter.NewFunction(func(x float64) float64 { return x })
	chance.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
	chance.Color = color.Gray{Y: 128}

	p.Add(curve, chance)
	p.Legend.Add("model", curve)
	p.Legend.Add("chance", chance)
	p.Legend.Left = false
	p.Legend.Top = false

	if err = p.Save(PlotSize, PlotSize, filePath); err != nil {
		return errors.Wrapf(err, "failed to save ROC plot to %q", filePath)
	}
	return nil
}
