package monitor

import (
	"fmt"
	"image/color"
	"io"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/localize/internal/localize/grid"
	"github.com/banshee-data/localize/internal/localize/pipeline"
)

const plotSize = 8 * vg.Inch

// greyscale runs from free (white) to occupied (black).
type greyscale int

func (n greyscale) Colors() []color.Color {
	out := make([]color.Color, int(n))
	for i := range out {
		v := uint8(255 - 255*i/max(int(n)-1, 1))
		out[i] = color.Gray{Y: v}
	}
	return out
}

var _ palette.Palette = greyscale(0)

// writeGridPNG renders g as a PNG heat map.
func writeGridPNG(w io.Writer, g *grid.CorrelationGrid, maxSide int) error {
	v := newGridView(g, maxSide)

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Correlation grid %dx%d @ %.3fm", g.Width, g.Height, g.Resolution)
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"

	hm := plotter.NewHeatMap(v, greyscale(3))
	hm.Min, hm.Max = 0, 1
	p.Add(hm)

	wt, err := p.WriterTo(plotSize, plotSize, "png")
	if err != nil {
		return fmt.Errorf("render grid plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// writeScoresPNG renders the score history as a line plot.
func writeScoresPNG(w io.Writer, scores []pipeline.Score) error {
	p := plot.New()
	p.Title.Text = "Match scores"
	p.X.Label.Text = "scan"
	p.Y.Label.Text = "score"

	pts := make(plotter.XYs, len(scores))
	for i, s := range scores {
		pts[i] = plotter.XY{X: float64(s.Sequence), Y: s.Value}
	}
	if len(pts) > 0 {
		line, err := plotter.NewLine(pts)
		if err != nil {
			return fmt.Errorf("score line: %w", err)
		}
		line.Width = vg.Points(1)
		line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
		p.Add(line)
	}
	p.Add(plotter.NewGrid())

	wt, err := p.WriterTo(plotSize*3/2, plotSize/2, "png")
	if err != nil {
		return fmt.Errorf("render score plot: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}
