// Package chart renders simulated paths, radar tracks, predictions and
// reported events as an interactive HTML page or a static PNG.
package chart

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/vessel.report/internal/collision"
	"github.com/banshee-data/vessel.report/internal/sim"
	"github.com/banshee-data/vessel.report/internal/track"
	"github.com/banshee-data/vessel.report/internal/vessel"
)

// Series kinds.
const (
	KindSimulated = "simulated"
	KindRadar     = "radar"
	KindPredicted = "predicted"
)

// Series is one path in the north-east plane.
type Series struct {
	Vessel string
	Kind   string
	Points []vessel.Position
}

// Name labels the series in legends.
func (s Series) Name() string {
	if s.Kind == KindSimulated {
		return s.Vessel
	}
	return s.Vessel + " " + s.Kind
}

// Marker is a labelled event position.
type Marker struct {
	Label    string
	Position vessel.Position
}

// Figure is everything drawn on one chart.
type Figure struct {
	Title   string
	Series  []Series
	Markers []Marker
}

// FromReplay collects the simulated paths, the radar tracks and latest
// predictions, and every reported collision and grounding.
func FromReplay(title string, log *sim.Log, tracks track.State, collisions []collision.Collision, groundings []collision.Grounding) Figure {
	f := Figure{Title: title}
	for _, name := range log.Names() {
		bundles := log.Bundles(name)
		pts := make([]vessel.Position, len(bundles))
		for i, b := range bundles {
			pts[i] = b.Eta.Position()
		}
		f.Series = append(f.Series, Series{Vessel: name, Kind: KindSimulated, Points: pts})
	}

	names := make([]string, 0, len(tracks.Histories))
	for name := range tracks.Histories {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		hist := tracks.Histories[name]
		pts := make([]vessel.Position, len(hist))
		for i, s := range hist {
			pts[i] = s.Position
		}
		f.Series = append(f.Series, Series{Vessel: name, Kind: KindRadar, Points: pts})

		pred, ok := tracks.Predictions[name]
		if !ok || len(pred.Path) == 0 {
			continue
		}
		pts = make([]vessel.Position, len(pred.Path))
		for i, s := range pred.Path {
			pts[i] = s.Position
		}
		f.Series = append(f.Series, Series{Vessel: name, Kind: KindPredicted, Points: pts})
	}

	for _, c := range collisions {
		f.Markers = append(f.Markers, Marker{Label: fmt.Sprintf("collision %s t=%.0fs", c.VesselID, c.Time), Position: c.Position})
	}
	for _, g := range groundings {
		f.Markers = append(f.Markers, Marker{Label: fmt.Sprintf("grounding %s t=%.0fs", g.VesselID, g.State.Time), Position: g.Position})
	}
	return f
}

// WriteHTML renders f as an echarts scatter page with east on the x axis
// and north on the y axis.
func WriteHTML(w io.Writer, f Figure) error {
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: f.Title, Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: f.Title, Subtitle: fmt.Sprintf("series=%d events=%d", len(f.Series), len(f.Markers))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "East (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "North (m)", NameLocation: "middle", NameGap: 40}),
	)

	for _, s := range f.Series {
		data := make([]opts.ScatterData, len(s.Points))
		for i, p := range s.Points {
			data[i] = opts.ScatterData{Value: []interface{}{p.East, p.North}}
		}
		size := 2
		if s.Kind == KindRadar {
			size = 4
		}
		scatter.AddSeries(s.Name(), data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: size}))
	}

	if len(f.Markers) > 0 {
		data := make([]opts.ScatterData, len(f.Markers))
		for i, m := range f.Markers {
			data[i] = opts.ScatterData{Name: m.Label, Value: []interface{}{m.Position.East, m.Position.North}}
		}
		scatter.AddSeries("events", data,
			charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 14}),
			charts.WithItemStyleOpts(opts.ItemStyle{Color: "red"}),
		)
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return fmt.Errorf("failed to render chart: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}

// WritePNG renders f with gonum/plot.
func WritePNG(w io.Writer, f Figure) error {
	p := plot.New()
	p.Title.Text = f.Title
	p.X.Label.Text = "East (m)"
	p.Y.Label.Text = "North (m)"
	p.Add(plotter.NewGrid())

	colors := make(map[string]color.Color)
	colorFor := func(name string) color.Color {
		if c, ok := colors[name]; ok {
			return c
		}
		c := plotutil.Color(len(colors))
		colors[name] = c
		return c
	}

	for _, s := range f.Series {
		if len(s.Points) == 0 {
			continue
		}
		xys := make(plotter.XYs, len(s.Points))
		for i, pt := range s.Points {
			xys[i] = plotter.XY{X: pt.East, Y: pt.North}
		}
		c := colorFor(s.Vessel)

		switch s.Kind {
		case KindRadar:
			sc, err := plotter.NewScatter(xys)
			if err != nil {
				return fmt.Errorf("failed to plot %s: %w", s.Name(), err)
			}
			sc.GlyphStyle.Color = c
			sc.GlyphStyle.Shape = draw.CrossGlyph{}
			sc.GlyphStyle.Radius = vg.Points(2)
			p.Add(sc)
			p.Legend.Add(s.Name(), sc)
		default:
			line, err := plotter.NewLine(xys)
			if err != nil {
				return fmt.Errorf("failed to plot %s: %w", s.Name(), err)
			}
			line.Color = c
			line.Width = vg.Points(1)
			if s.Kind == KindPredicted {
				line.Dashes = []vg.Length{vg.Points(4), vg.Points(2)}
			}
			p.Add(line)
			p.Legend.Add(s.Name(), line)
		}
	}

	if len(f.Markers) > 0 {
		xys := make(plotter.XYs, len(f.Markers))
		for i, m := range f.Markers {
			xys[i] = plotter.XY{X: m.Position.East, Y: m.Position.North}
		}
		sc, err := plotter.NewScatter(xys)
		if err != nil {
			return fmt.Errorf("failed to plot events: %w", err)
		}
		sc.GlyphStyle.Color = color.RGBA{R: 220, A: 255}
		sc.GlyphStyle.Shape = draw.RingGlyph{}
		sc.GlyphStyle.Radius = vg.Points(5)
		p.Add(sc)
		p.Legend.Add("events", sc)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(8*vg.Inch, 8*vg.Inch, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write png: %w", err)
	}
	return nil
}
