// Copyright ©2020 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package report

import (
	"errors"
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var palette = []color.Color{
	color.RGBA{R: 31, G: 119, B: 180, A: 255},
	color.RGBA{R: 255, G: 127, B: 14, A: 255},
	color.RGBA{R: 44, G: 160, B: 44, A: 255},
	color.RGBA{R: 214, G: 39, B: 40, A: 255},
	color.RGBA{R: 148, G: 103, B: 189, A: 255},
}

// Plot plots the stage counts of each run as grouped bars to the image
// file at path. The image format is determined by the path extension.
func Plot(path string, runs []*Run) error {
	if len(runs) == 0 {
		return errors.New("report: no runs to plot")
	}

	p := plot.New()
	p.Title.Text = "Identifier unification"
	p.Y.Label.Text = "count"

	// Each stage group takes groupWidth of the
	// 50pt allotted to it.
	const groupWidth = 0.8
	w := vg.Points(groupWidth * 50 / float64(len(runs)))
	stages := runs[0].Stages()
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}

	for i, r := range runs {
		var vals plotter.Values
		for _, s := range r.Stages() {
			vals = append(vals, float64(s.Count))
		}
		bars, err := plotter.NewBarChart(vals, w)
		if err != nil {
			return fmt.Errorf("report: %s: %w", r.Job, err)
		}
		bars.LineStyle.Width = 0
		bars.Color = palette[i%len(palette)]
		bars.Offset = w * vg.Length(float64(i)-float64(len(runs)-1)/2)
		p.Add(bars)
		p.Legend.Add(r.Job, bars)
	}
	p.Legend.Top = true
	p.NominalX(names...)

	return p.Save(18*vg.Centimeter, 12*vg.Centimeter, path)
}
