package report

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/cockroachdb/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// DefaultBins is the bin count used for rendered histograms.
const DefaultBins = 30

var observedColor = color.RGBA{R: 200, G: 30, B: 30, A: 255}

// HistogramPNG renders the null samples as a histogram with a vertical
// line at the observed value and writes it to w as PNG.
func HistogramPNG(w io.Writer, title string, nulls []float64, observed float64, bins int) error {
	if bins <= 0 {
		bins = DefaultBins
	}
	xs := finite(nulls)
	if len(xs) == 0 {
		return errors.New("report: no null samples to plot")
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "coefficient"
	p.Y.Label.Text = "count"

	h, err := plotter.NewHist(plotter.Values(xs), bins)
	if err != nil {
		return errors.Wrap(err, "build histogram")
	}
	h.FillColor = color.Gray{Y: 170}
	p.Add(h)

	top := 0.0
	for _, b := range h.Bins {
		top = math.Max(top, b.Weight)
	}
	line, err := plotter.NewLine(plotter.XYs{{X: observed, Y: 0}, {X: observed, Y: top}})
	if err != nil {
		return errors.Wrap(err, "build observed line")
	}
	line.Color = observedColor
	line.Width = vg.Points(2)
	p.Add(line)
	p.Legend.Add(fmt.Sprintf("observed = %.4f", observed), line)
	p.Legend.Top = true

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return errors.Wrap(err, "render histogram")
	}
	_, err = wt.WriteTo(w)
	return err
}
