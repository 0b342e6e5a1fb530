// Package report renders recovery diagnostics: PNG plots of the clock
// recovery with gonum/plot and HTML charts of fused confidence with
// go-echarts.
package report

import (
	"errors"
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

var ErrNoData = errors.New("report: nothing to plot")

const (
	plotWidth  = 14 * vg.Inch
	plotHeight = 6 * vg.Inch
)

var (
	traceColor     = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	referenceColor = color.RGBA{R: 214, G: 39, B: 40, A: 255}
)

// CellTracePlot builds a plot of cell size per pulse, with the nominal
// reference cell as a horizontal line when refCell is positive.
func CellTracePlot(title string, trace []float64, refCell float64) (*plot.Plot, error) {
	if len(trace) == 0 {
		return nil, ErrNoData
	}
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Pulse"
	p.Y.Label.Text = "Cell size (ticks)"
	p.Add(plotter.NewGrid())

	pts := make(plotter.XYs, len(trace))
	for i, c := range trace {
		pts[i] = plotter.XY{X: float64(i), Y: c}
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return nil, fmt.Errorf("cell trace line: %w", err)
	}
	line.Color = traceColor
	line.Width = vg.Points(1)
	p.Add(line)
	p.Legend.Add("cell", line)

	if refCell > 0 {
		ref, err := plotter.NewLine(plotter.XYs{{X: 0, Y: refCell}, {X: float64(len(trace) - 1), Y: refCell}})
		if err != nil {
			return nil, fmt.Errorf("reference line: %w", err)
		}
		ref.Color = referenceColor
		ref.Width = vg.Points(1)
		ref.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}
		p.Add(ref)
		p.Legend.Add("reference", ref)
	}
	p.Legend.Top = true
	return p, nil
}

// IntervalHistogramPlot builds a histogram of raw flux intervals. A clean
// MFM capture shows three peaks at two, three and four cells.
func IntervalHistogramPlot(title string, intervals []uint32, bins int) (*plot.Plot, error) {
	if len(intervals) == 0 {
		return nil, ErrNoData
	}
	if bins <= 0 {
		bins = 128
	}
	vals := make(plotter.Values, len(intervals))
	for i, t := range intervals {
		vals[i] = float64(t)
	}
	h, err := plotter.NewHist(vals, bins)
	if err != nil {
		return nil, fmt.Errorf("interval histogram: %w", err)
	}
	h.FillColor = traceColor

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Interval (ticks)"
	p.Y.Label.Text = "Count"
	p.Add(h)
	return p, nil
}

// WritePNG renders p as a PNG.
func WritePNG(w io.Writer, p *plot.Plot) error {
	wt, err := p.WriterTo(plotWidth, plotHeight, "png")
	if err != nil {
		return fmt.Errorf("png writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// SavePNG renders p to path.
func SavePNG(path string, p *plot.Plot) error {
	if err := p.Save(plotWidth, plotHeight, path); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	return nil
}
