package report

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Series is one null distribution with its observed value.
type Series struct {
	Name     string
	Nulls    []float64
	Observed float64
}

// HistogramChart builds an echarts bar chart of the null distribution
// with a mark line at the bin holding the observed value.
func HistogramChart(s Series, bins int) *charts.Bar {
	if bins <= 0 {
		bins = DefaultBins
	}
	buckets := Bins(s.Nulls, bins, s.Observed)

	labels := make([]string, len(buckets))
	data := make([]opts.BarData, len(buckets))
	observedLabel := ""
	for i, b := range buckets {
		labels[i] = fmt.Sprintf("%.3f", (b.Lo+b.Hi)/2)
		data[i] = opts.BarData{Value: b.Count}
		if s.Observed >= b.Lo && s.Observed < b.Hi {
			observedLabel = labels[i]
		}
	}

	sig := PValue(s.Observed, s.Nulls)
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Agreement null distributions", Width: "900px", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    s.Name,
			Subtitle: fmt.Sprintf("observed=%.4f p=%.4f samples=%d", s.Observed, sig.PValue, sig.Samples),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "coefficient", NameLocation: "middle", NameGap: 30}),
		charts.WithYAxisOpts(opts.YAxis{Name: "count"}),
	)
	bar.SetXAxis(labels)

	var seriesOpts []charts.SeriesOpts
	if observedLabel != "" {
		seriesOpts = append(seriesOpts, charts.WithMarkLineNameXAxisItemOpts(opts.MarkLineNameXAxisItem{
			Name:  "observed",
			XAxis: observedLabel,
		}))
	}
	bar.AddSeries("null", data, seriesOpts...)
	return bar
}

// HistogramHTML renders one chart per series on a single page.
func HistogramHTML(w io.Writer, series []Series, bins int) error {
	page := components.NewPage()
	page.PageTitle = "Agreement null distributions"
	for _, s := range series {
		page.AddCharts(HistogramChart(s, bins))
	}
	return page.Render(w)
}
