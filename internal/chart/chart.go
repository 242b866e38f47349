// Package chart builds the option values handed to the browser's charting
// library. Every call returns a fresh value; nothing is shared between panels.
package chart

import (
	"github.com/tobert/microdash/internal/series"
)

// Distribution controls how the time axis spaces samples.
type Distribution string

const (
	// DistributionSeries spaces samples evenly regardless of time gaps.
	DistributionSeries Distribution = "series"
	// DistributionLinear spaces samples by their timestamps.
	DistributionLinear Distribution = "linear"
)

// Config is the input to New.
type Config struct {
	Title        string
	AxisLabel    string
	Distribution Distribution
}

// Options is the serialized option block for one line chart.
type Options struct {
	Title     string   `json:"title"`
	Animation int      `json:"animation_ms"`
	XAxis     XAxis    `json:"x_axis"`
	YAxis     YAxis    `json:"y_axis"`
	Tooltip   Tooltip  `json:"tooltip"`
	Legend    string   `json:"legend"`
	Colors    []string `json:"colors"`
	Line      Line     `json:"line"`
}

// XAxis describes the time axis.
type XAxis struct {
	Type           string       `json:"type"`
	Distribution   Distribution `json:"distribution"`
	Offset         bool         `json:"offset"`
	Label          string       `json:"label"`
	TickSource     string       `json:"tick_source"`
	AutoSkip       bool         `json:"auto_skip"`
	AutoSkipPad    int          `json:"auto_skip_padding"`
	MaxRotation    int          `json:"max_rotation"`
	MajorTicksBold bool         `json:"major_ticks_bold"`
}

// YAxis describes the value axis.
type YAxis struct {
	Label      string `json:"label"`
	DrawBorder bool   `json:"draw_border"`
}

// Tooltip describes hover behaviour.
type Tooltip struct {
	Mode      string `json:"mode"`
	Intersect bool   `json:"intersect"`
	Precision int    `json:"precision"`
}

// Line describes how each node's dataset is drawn.
type Line struct {
	PointRadius int     `json:"point_radius"`
	Fill        bool    `json:"fill"`
	Tension     float64 `json:"tension"`
	BorderWidth int     `json:"border_width"`
}

var palette = [...]string{"#5AA454", "#E44D25", "#CFC0BB", "#7aa3e5", "#a8385d", "#aae3f5"}

// New builds the chart options for one panel. An empty Distribution
// defaults to DistributionSeries.
func New(cfg Config) Options {
	dist := cfg.Distribution
	if dist == "" {
		dist = DistributionSeries
	}

	return Options{
		Title:     cfg.Title,
		Animation: 0,
		XAxis: XAxis{
			Type:           "time",
			Distribution:   dist,
			Offset:         true,
			Label:          "time",
			TickSource:     "data",
			AutoSkip:       true,
			AutoSkipPad:    75,
			MaxRotation:    0,
			MajorTicksBold: true,
		},
		YAxis: YAxis{
			Label: cfg.AxisLabel,
		},
		Tooltip: Tooltip{
			Mode:      "index",
			Intersect: false,
			Precision: 2,
		},
		Legend: "Nodes",
		Colors: append([]string(nil), palette[:]...),
		Line: Line{
			PointRadius: 0,
			Fill:        false,
			Tension:     0,
			BorderWidth: 2,
		},
	}
}

// Panel pairs a metric with its chart options.
type Panel struct {
	Metric  string  `json:"metric"`
	Options Options `json:"options"`
}

// Panels returns options for every metric panel in display order.
func Panels(dist Distribution) []Panel {
	metrics := series.Metrics()
	panels := make([]Panel, 0, len(metrics))
	for _, m := range metrics {
		panels = append(panels, Panel{
			Metric: m.String(),
			Options: New(Config{
				Title:        m.Title(),
				AxisLabel:    m.Unit(),
				Distribution: dist,
			}),
		})
	}
	return panels
}
