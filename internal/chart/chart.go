// Package chart renders model explanations as PNG images.
package chart

import (
	"errors"
	"fmt"
	"io"
	"math"

	"simpleml/internal/ml"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

// ErrNoFeatures is returned when there is nothing to plot.
var ErrNoFeatures = errors.New("no features to plot")

const (
	barWidth   = 36
	barSpacing = 18
	minWidth   = 640
)

var barColor = drawing.ColorFromHex("1E88E5")

// Options controls the rendered image.
type Options struct {
	Title      string
	MaxDisplay int // bars beyond this many are left out; <= 0 shows all
	Height     int
}

// ImportanceBar writes a PNG bar chart of mean |SHAP value| per feature,
// largest first.
func ImportanceBar(w io.Writer, items []ml.FeatureImportance, opts Options) error {
	bars := importanceBars(items, opts.MaxDisplay)
	if len(bars) == 0 {
		return ErrNoFeatures
	}

	height := opts.Height
	if height <= 0 {
		height = 480
	}

	top := 0.0
	for _, b := range bars {
		top = math.Max(top, b.Value)
	}
	if top <= 0 {
		top = 1
	}

	graph := chart.BarChart{
		Title:  opts.Title,
		Width:  chartWidth(len(bars)),
		Height: height,
		Background: chart.Style{
			Padding: chart.Box{Top: 48, Left: 16, Right: 16, Bottom: 16},
		},
		XAxis: chart.Style{
			FontSize: 8,
		},
		YAxis: chart.YAxis{
			Range:          &chart.ContinuousRange{Min: 0, Max: top * 1.1},
			ValueFormatter: func(v interface{}) string { return fmt.Sprintf("%.3f", v) },
		},
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		Bars:       bars,
	}

	if err := graph.Render(chart.PNG, w); err != nil {
		return fmt.Errorf("render importance chart: %w", err)
	}
	return nil
}

func importanceBars(items []ml.FeatureImportance, max int) []chart.Value {
	if max > 0 {
		items = ml.Top(items, max)
	}

	bars := make([]chart.Value, 0, len(items))
	for _, it := range items {
		v := it.MeanAbsSHAP
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		bars = append(bars, chart.Value{
			Label: it.Name,
			Value: v,
			Style: chart.Style{FillColor: barColor, StrokeColor: barColor},
		})
	}
	return bars
}

func chartWidth(n int) int {
	w := n*(barWidth+barSpacing) + 160
	if w < minWidth {
		return minWidth
	}
	return w
}
