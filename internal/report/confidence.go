package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/banshee-data/fluxrecovery/internal/flux/bitstream"
	"github.com/banshee-data/fluxrecovery/internal/flux/fusion"
	"github.com/banshee-data/fluxrecovery/internal/recovery"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// DefaultMaxPoints bounds the number of x-axis points in ConfidenceChart.
const DefaultMaxPoints = 2000

// Bucket summarises a run of consecutive fused bits.
type Bucket struct {
	Start int
	Bits  int
	// MeanConfidence is in percent.
	MeanConfidence float64
	Weak           int
}

// ConfidenceBuckets groups the fused bits of res into at most maxPoints
// equal buckets.
func ConfidenceBuckets(res *fusion.Result, maxPoints int) []Bucket {
	if res == nil || res.BitCount == 0 {
		return nil
	}
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}
	size := (res.BitCount + maxPoints - 1) / maxPoints
	out := make([]Bucket, 0, (res.BitCount+size-1)/size)
	for start := 0; start < res.BitCount; start += size {
		end := min(start+size, res.BitCount)
		b := Bucket{Start: start, Bits: end - start}
		var sum int
		for i := start; i < end; i++ {
			if i < len(res.Confidence) {
				sum += int(res.Confidence[i])
			}
			if res.WeakMask != nil && bitstream.Get(res.WeakMask, i) == 1 {
				b.Weak++
			}
		}
		b.MeanConfidence = float64(sum) / float64(b.Bits) / 255 * 100
		out = append(out, b)
	}
	return out
}

// ConfidenceChart writes an HTML page with the fused confidence along the
// track and the per-revolution agreement of res.
func ConfidenceChart(w io.Writer, res *recovery.TrackResult, maxPoints int) error {
	if res == nil || res.Fused == nil {
		return ErrNoData
	}
	buckets := ConfidenceBuckets(res.Fused, maxPoints)
	if len(buckets) == 0 {
		return ErrNoData
	}

	x := make([]string, len(buckets))
	conf := make([]opts.LineData, len(buckets))
	weak := make([]opts.BarData, len(buckets))
	for i, b := range buckets {
		x[i] = strconv.Itoa(b.Start)
		conf[i] = opts.LineData{Value: fmt.Sprintf("%.1f", b.MeanConfidence)}
		weak[i] = opts.BarData{Value: b.Weak}
	}

	subtitle := fmt.Sprintf("run=%s bits=%d weak=%d method=%s agreement=%.3f",
		res.ID, res.Fused.TotalBits, res.Fused.WeakBits, res.Fused.Method, res.Fused.AgreementRatio())

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Fused confidence", Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Fused confidence " + res.Label, Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Bit", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Confidence (%)", Min: 0, Max: 100}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	line.SetXAxis(x).AddSeries("confidence", conf,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: "Weak bits", Subtitle: fmt.Sprintf("%d bits per bucket", buckets[0].Bits)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("weak", weak)

	revX := make([]string, len(res.Fused.Revisions))
	agree := make([]opts.BarData, len(res.Fused.Revisions))
	for i, rs := range res.Fused.Revisions {
		revX[i] = fmt.Sprintf("rev %d", i)
		agree[i] = opts.BarData{Value: fmt.Sprintf("%.4f", rs.AgreementRatio())}
	}
	revBar := charts.NewBar()
	revBar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: "Agreement with fused output", Subtitle: fmt.Sprintf("reference rev %d", res.Reference)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1}),
	)
	revBar.SetXAxis(revX).AddSeries("agreement", agree,
		charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
	)

	page := components.NewPage()
	page.PageTitle = "Track " + res.Label
	page.AddCharts(line, bar, revBar)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render confidence chart: %w", err)
	}
	return nil
}
