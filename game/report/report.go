// Package report draws fitness-over-generation charts for completed runs.
package report

import (
	"fmt"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/wricardo/gridworld-fuzzer/game/evolve"
)

// Default chart dimensions
const (
	Width  = 6 * vg.Inch
	Height = 4 * vg.Inch
)

// newPlot builds a chart with max, average and min fitness lines. The X axis
// is the generation index.
func newPlot(h evolve.History, title string) (*plot.Plot, error) {
	if len(h) == 0 {
		return nil, fmt.Errorf("history is empty")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Generation"
	p.Y.Label.Text = "Fitness"

	gen, best, worst, avg := h.Columns()
	series := []struct {
		name string
		ys   []float64
	}{
		{"max", best},
		{"avg", avg},
		{"min", worst},
	}

	for i, s := range series {
		pts := make(plotter.XYs, len(gen))
		for j := range gen {
			pts[j].X = gen[j]
			pts[j].Y = s.ys[j]
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to build %s line: %w", s.name, err)
		}
		line.Color = plotutil.Color(i)
		p.Add(line)
		p.Legend.Add(s.name, line)
	}
	p.Legend.Top = true
	p.Legend.Left = true

	return p, nil
}

// WritePNG renders the chart for h as PNG into w
func WritePNG(w io.Writer, h evolve.History, title string) error {
	p, err := newPlot(h, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(Width, Height, "png")
	if err != nil {
		return fmt.Errorf("failed to render plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePlot renders the chart for h to path; the format follows the file
// extension (png, svg, pdf, ...)
func SavePlot(path string, h evolve.History, title string) error {
	p, err := newPlot(h, title)
	if err != nil {
		return err
	}
	if err := p.Save(Width, Height, path); err != nil {
		return fmt.Errorf("failed to save plot to %s: %w", path, err)
	}
	return nil
}
