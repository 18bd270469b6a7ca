package monitor

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/localize/pipeline"
)

// echartsAssetsHost serves the echarts bundle. Override when the monitor
// runs without internet access.
var echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// renderGridChart writes an HTML heatmap of g, downsampled to maxSide.
func renderGridChart(w io.Writer, g *grid.CorrelationGrid, maxSide int) error {
	v := newGridView(g, maxSide)

	xs := make([]string, v.cols)
	for c := range xs {
		xs[c] = fmt.Sprintf("%.2f", v.X(c))
	}
	ys := make([]string, v.rows)
	for r := range ys {
		ys[r] = fmt.Sprintf("%.2f", v.Y(r))
	}
	data := make([]opts.HeatMapData, 0, len(v.values))
	for r := 0; r < v.rows; r++ {
		for c := 0; c < v.cols; c++ {
			data = append(data, opts.HeatMapData{Value: [3]interface{}{c, r, v.Z(c, r)}})
		}
	}

	free, occupied, unknown := g.Counts()
	hm := charts.NewHeatMap()
	hm.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Correlation grid", Width: "900px", Height: "900px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Correlation grid",
			Subtitle: fmt.Sprintf("%dx%d @ %.3fm stride=%d free=%d occupied=%d unknown=%d", g.Width, g.Height, g.Resolution, v.stride, free, occupied, unknown),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Type: "category", Data: ys, Name: "Y (m)", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        1,
			InRange:    &opts.VisualMapInRange{Color: []string{"#ffffff", "#9e9e9e", "#000000"}},
		}),
	)
	hm.SetXAxis(xs).AddSeries("occupancy", data)

	var buf bytes.Buffer
	if err := hm.Render(&buf); err != nil {
		return fmt.Errorf("render grid chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// renderScoreChart writes an HTML line chart of match scores and match
// durations in milliseconds.
func renderScoreChart(w io.Writer, scores []pipeline.Score) error {
	xs := make([]uint64, len(scores))
	values := make([]opts.LineData, len(scores))
	elapsed := make([]opts.LineData, len(scores))
	for i, s := range scores {
		xs[i] = s.Sequence
		values[i] = opts.LineData{Value: s.Value}
		elapsed[i] = opts.LineData{Value: float64(s.Elapsed.Microseconds()) / 1000}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Match scores", Width: "100%", Height: "600px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: "Match scores", Subtitle: fmt.Sprintf("%d most recent matches", len(scores))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "scan", NameLocation: "middle", NameGap: 25}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(xs).
		AddSeries("score", values).
		AddSeries("match ms", elapsed)

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		return fmt.Errorf("render score chart: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}
