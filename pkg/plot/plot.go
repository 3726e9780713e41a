// Package plot renders training data, chosen ideal functions and classified
// test points as PNG charts.
package plot

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/vjranagit/idealfit/pkg/fit"
	"github.com/vjranagit/idealfit/pkg/types"
)

// Plotter writes charts into a directory
type Plotter struct {
	dir    string
	width  int
	height int
}

// NewPlotter creates a plotter writing width x height PNGs into dir
func NewPlotter(dir string, width, height int) *Plotter {
	return &Plotter{dir: dir, width: width, height: height}
}

// pointStyle renders points only, without a connecting line
func pointStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: chart.Disabled,
		DotWidth:    4,
		DotColor:    col,
	}
}

func lineStyle(col drawing.Color) chart.Style {
	return chart.Style{
		StrokeWidth: 2,
		StrokeColor: col,
	}
}

// Render draws every chart for a run and returns the written file paths:
// one line chart per chosen candidate, one training overlay per pair and
// one scatter of matched test points per candidate that received any.
func (p *Plotter) Render(training *types.Table, sel *fit.Selection, results []types.PointResult) ([]string, error) {
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create plot directory: %w", err)
	}

	xs, ok := sel.Reduced.X()
	if !ok {
		return nil, types.ErrMissingX
	}

	var files []string
	seen := make(map[string]bool)

	for _, pair := range sel.Match.Pairs {
		cand, _ := sel.Reduced.Column(pair.Candidate)

		if !seen[pair.Candidate] {
			seen[pair.Candidate] = true
			path, err := p.write("ideal_"+pair.Candidate, chart.Chart{
				Title: fmt.Sprintf("Ideal function %s", pair.Candidate),
				Series: []chart.Series{
					chart.ContinuousSeries{Name: "ideal " + pair.Candidate, XValues: xs.Values, YValues: cand.Values, Style: lineStyle(chart.ColorBlue)},
				},
			})
			if err != nil {
				return files, err
			}
			files = append(files, path)
		}

		trainX, _ := training.X()
		train, ok := training.Column(pair.Training)
		if !ok {
			continue
		}
		path, err := p.write("training_"+pair.Training, chart.Chart{
			Title: fmt.Sprintf("Training %s with ideal %s", pair.Training, pair.Candidate),
			Series: []chart.Series{
				chart.ContinuousSeries{Name: "train " + pair.Training, XValues: trainX.Values, YValues: train.Values, Style: lineStyle(chart.ColorRed)},
				chart.ContinuousSeries{Name: "ideal " + pair.Candidate, XValues: xs.Values, YValues: cand.Values, Style: lineStyle(chart.ColorBlue)},
			},
		})
		if err != nil {
			return files, err
		}
		files = append(files, path)
	}

	byCandidate := make(map[string][]types.QueryPoint)
	var order []string
	for _, r := range results {
		if !r.Matched {
			continue
		}
		if _, ok := byCandidate[r.Candidate]; !ok {
			order = append(order, r.Candidate)
		}
		byCandidate[r.Candidate] = append(byCandidate[r.Candidate], r.Point)
	}

	for _, name := range order {
		cand, ok := sel.Reduced.Column(name)
		if !ok {
			continue
		}
		points := byCandidate[name]
		px := make([]float64, len(points))
		py := make([]float64, len(points))
		for i, pt := range points {
			px[i], py[i] = pt.X, pt.Y
		}

		path, err := p.write("test_"+name, chart.Chart{
			Title: fmt.Sprintf("Test points mapped to %s", name),
			Series: []chart.Series{
				chart.ContinuousSeries{Name: "ideal " + name, XValues: xs.Values, YValues: cand.Values, Style: lineStyle(chart.ColorBlue)},
				chart.ContinuousSeries{Name: "test points", XValues: px, YValues: py, Style: pointStyle(chart.ColorRed)},
			},
		})
		if err != nil {
			return files, err
		}
		files = append(files, path)
	}

	return files, nil
}

// OverviewFile is the base name of the ideal table overview chart
const OverviewFile = "ideal_overview"

// Overview draws the first maxColumns value columns of the full ideal table
// into a single line chart.
func (p *Plotter) Overview(ideal *types.Table, maxColumns int) (string, error) {
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create plot directory: %w", err)
	}

	xs, ok := ideal.X()
	if !ok {
		return "", types.ErrMissingX
	}

	cols := ideal.ValueColumns()
	if len(cols) > maxColumns {
		cols = cols[:maxColumns]
	}

	series := make([]chart.Series, len(cols))
	for i, c := range cols {
		series[i] = chart.ContinuousSeries{
			Name:    c.Name,
			XValues: xs.Values,
			YValues: c.Values,
			Style:   lineStyle(chart.GetDefaultColor(i)),
		}
	}

	return p.write(OverviewFile, chart.Chart{
		Title:  fmt.Sprintf("Ideal functions (%d of %d)", len(cols), len(ideal.ValueColumns())),
		Series: series,
	})
}

// write renders ch as <dir>/<name>.png
func (p *Plotter) write(name string, ch chart.Chart) (string, error) {
	ch.Width = p.width
	ch.Height = p.height
	ch.XAxis = chart.XAxis{Name: "x"}
	ch.YAxis = chart.YAxis{Name: "y"}
	ch.Background = chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}

	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}

	path := filepath.Join(p.dir, sanitize(name)+".png")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		}
		return '_'
	}, name)
}
