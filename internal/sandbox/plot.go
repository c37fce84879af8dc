package sandbox

import (
	"errors"
	"fmt"
	"math"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Plot is the plotting surface bound to plt in generated code. Series
// accumulate on one figure until Save writes it.
type Plot struct {
	dir    string
	p      *plot.Plot
	series int
}

func newPlot(dir string) *Plot {
	return &Plot{dir: dir, p: plot.New()}
}

// Title sets the figure title.
func (p *Plot) Title(s string) { p.p.Title.Text = s }

// XLabel sets the x axis label.
func (p *Plot) XLabel(s string) { p.p.X.Label.Text = s }

// YLabel sets the y axis label.
func (p *Plot) YLabel(s string) { p.p.Y.Label.Text = s }

// Line adds a line series. Pairs with a NaN coordinate are skipped.
func (p *Plot) Line(xs, ys []float64) error {
	pts, err := xyPairs(xs, ys)
	if err != nil {
		return err
	}
	l, err := plotter.NewLine(pts)
	if err != nil {
		return fmt.Errorf("line: %w", err)
	}
	l.LineStyle.Color = plotutil.Color(p.next())
	p.p.Add(l)
	return nil
}

// Scatter adds a scatter series. Pairs with a NaN coordinate are skipped.
func (p *Plot) Scatter(xs, ys []float64) error {
	pts, err := xyPairs(xs, ys)
	if err != nil {
		return err
	}
	s, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("scatter: %w", err)
	}
	s.GlyphStyle.Color = plotutil.Color(p.next())
	p.p.Add(s)
	return nil
}

// Bar adds a bar chart with one labelled bar per value.
func (p *Plot) Bar(labels []string, values []float64) error {
	if len(labels) != len(values) {
		return fmt.Errorf("bar: %d labels for %d values", len(labels), len(values))
	}
	vs := make(plotter.Values, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		vs[i] = v
	}
	b, err := plotter.NewBarChart(vs, vg.Points(20))
	if err != nil {
		return fmt.Errorf("bar: %w", err)
	}
	b.Color = plotutil.Color(p.next())
	b.LineStyle.Width = vg.Length(0)
	p.p.Add(b)
	p.p.NominalX(labels...)
	return nil
}

// Hist adds a histogram of values using bins buckets. NaN values are
// ignored.
func (p *Plot) Hist(values []float64, bins int) error {
	if bins <= 0 {
		bins = 10
	}
	vs := make(plotter.Values, 0, len(values))
	for _, v := range values {
		if !math.IsNaN(v) && !math.IsInf(v, 0) {
			vs = append(vs, v)
		}
	}
	if len(vs) == 0 {
		return errors.New("hist: no numeric values")
	}
	h, err := plotter.NewHist(vs, bins)
	if err != nil {
		return fmt.Errorf("hist: %w", err)
	}
	h.FillColor = plotutil.Color(p.next())
	p.p.Add(h)
	return nil
}

// Save renders the figure as a PNG. Only output.png is accepted; any
// directory part of name is ignored and the file lands in the request
// directory.
func (p *Plot) Save(name string) error {
	if base := filepath.Base(name); base != ArtifactName {
		return fmt.Errorf("plots must be saved as %q, got %q", ArtifactName, name)
	}
	if err := p.p.Save(8*vg.Inch, 5*vg.Inch, filepath.Join(p.dir, ArtifactName)); err != nil {
		return fmt.Errorf("save plot: %w", err)
	}
	return nil
}

func (p *Plot) next() int {
	i := p.series
	p.series++
	return i
}

func xyPairs(xs, ys []float64) (plotter.XYs, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("got %d x values and %d y values", len(xs), len(ys))
	}
	pts := make(plotter.XYs, 0, len(xs))
	for i := range xs {
		if math.IsNaN(xs[i]) || math.IsNaN(ys[i]) || math.IsInf(xs[i], 0) || math.IsInf(ys[i], 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: xs[i], Y: ys[i]})
	}
	if len(pts) == 0 {
		return nil, errors.New("no finite points to plot")
	}
	return pts, nil
}
