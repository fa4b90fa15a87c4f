// Package plots renders the exploratory and diagnostic charts as PNG files.
package plots

import (
	"fmt"
	"image/color"
	"math"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

var (
	colNoDementia = color.NRGBA{R: 0x4c, G: 0x72, B: 0xb0, A: 0xb0}
	colDementia   = color.NRGBA{R: 0xc4, G: 0x4e, B: 0x52, A: 0xb0}
)

const (
	width  = 5 * vg.Inch
	height = 4 * vg.Inch
)

// HistogramByOutcome draws overlaid histograms of a numeric exposure for the
// non-demented and demented groups.
func HistogramByOutcome(dir, name, title, xlabel string, vals0, vals1 []float64) (string, error) {

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = xlabel
	p.Y.Label.Text = "Count"

	h0, err := plotter.NewHist(plotter.Values(vals0), 12)
	if err != nil {
		return "", fmt.Errorf("plots: histogram %s: %w", name, err)
	}
	h0.FillColor = colNoDementia

	h1, err := plotter.NewHist(plotter.Values(vals1), 12)
	if err != nil {
		return "", fmt.Errorf("plots: histogram %s: %w", name, err)
	}
	h1.FillColor = colDementia

	p.Add(h0, h1)
	p.Legend.Add("No dementia", h0)
	p.Legend.Add("Dementia", h1)
	p.Legend.Top = true

	return save(p, dir, name)
}

// BarsByOutcome draws side-by-side bars of level counts for a categorical
// exposure, split by dementia status.  levels fixes the display order; n0
// and n1 are the per-level counts for the two outcome groups.
func BarsByOutcome(dir, name, title string, levels []string, n0, n1 []float64) (string, error) {

	p := plot.New()
	p.Title.Text = title
	p.Y.Label.Text = "Count"

	bw := vg.Points(16)

	b0, err := plotter.NewBarChart(plotter.Values(n0), bw)
	if err != nil {
		return "", fmt.Errorf("plots: bars %s: %w", name, err)
	}
	b0.Color = colNoDementia
	b0.Offset = -bw / 2

	b1, err := plotter.NewBarChart(plotter.Values(n1), bw)
	if err != nil {
		return "", fmt.Errorf("plots: bars %s: %w", name, err)
	}
	b1.Color = colDementia
	b1.Offset = bw / 2

	p.Add(b0, b1)
	p.Legend.Add("No dementia", b0)
	p.Legend.Add("Dementia", b1)
	p.Legend.Top = true
	p.NominalX(levels...)

	return save(p, dir, name)
}

// ResidualsVsFitted draws studentized residuals against fitted proportions
// for the grouped binomial fit.  Saturated patterns have unit leverage and
// an infinite studentized residual; those points are left off the chart.
func ResidualsVsFitted(dir, name string, fitted, resid []float64) (string, error) {

	var pts plotter.XYs
	for i := range fitted {
		if !finite(fitted[i]) || !finite(resid[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: fitted[i], Y: resid[i]})
	}

	p := plot.New()
	p.Title.Text = "Residuals vs fitted"
	p.X.Label.Text = "Fitted proportion"
	p.Y.Label.Text = "Studentized residual"

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return "", fmt.Errorf("plots: scatter %s: %w", name, err)
	}
	sc.GlyphStyle.Color = colNoDementia
	sc.GlyphStyle.Radius = vg.Points(3)

	zero := plotter.NewFunction(func(float64) float64 { return 0 })
	zero.Color = color.Gray{Y: 0x99}
	zero.Dashes = []vg.Length{vg.Points(4), vg.Points(4)}

	p.Add(plotter.NewGrid(), sc, zero)

	return save(p, dir, name)
}

// InfluenceBubble draws studentized residuals against leverage with bubble
// area proportional to Cook's distance.  Patterns that stand out here are
// flagged for manual review, never excluded.
func InfluenceBubble(dir, name string, leverage, resid, cooks []float64) (string, error) {

	var pts plotter.XYs
	var size []float64
	for i := range leverage {
		if !finite(leverage[i]) || !finite(resid[i]) || !finite(cooks[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: leverage[i], Y: resid[i]})
		size = append(size, cooks[i])
	}

	maxd := 0.0
	for _, d := range size {
		if d > maxd {
			maxd = d
		}
	}
	if maxd == 0 {
		maxd = 1
	}

	sc, err := plotter.NewScatter(pts)
	if err != nil {
		return "", fmt.Errorf("plots: bubble %s: %w", name, err)
	}
	sc.GlyphStyleFunc = func(i int) draw.GlyphStyle {
		r := vg.Points(2 + 10*math.Sqrt(size[i]/maxd))
		return draw.GlyphStyle{Color: colDementia, Radius: r, Shape: draw.CircleGlyph{}}
	}

	p := plot.New()
	p.Title.Text = "Influence (bubble area: Cook's distance)"
	p.X.Label.Text = "Leverage"
	p.Y.Label.Text = "Studentized residual"
	p.Add(plotter.NewGrid(), sc)

	return save(p, dir, name)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func save(p *plot.Plot, dir, name string) (string, error) {
	fn := filepath.Join(dir, name+".png")
	if err := p.Save(width, height, fn); err != nil {
		return "", fmt.Errorf("plots: save %s: %w", fn, err)
	}
	return fn, nil
}
