// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package plotting

import (
	"errors"
	"testing"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
)

// fakeSource is a minimal column supplier.
type fakeSource struct {
	cols map[string][]float64
	runs []int32
	rows int
}

func (f *fakeSource) Leaf(name string) ([]float64, bool) {
	col, ok := f.cols[name]
	return col, ok
}

func (f *fakeSource) SeenRunNumbers() []int32 { return f.runs }

func (f *fakeSource) NRows() int { return f.rows }

func newFakeSource() *fakeSource {
	return &fakeSource{
		cols: map[string][]float64{
			"time":      {1000, 1060, 1120},
			"runNumber": {123, 123, 124},
			"mean":      {5.0, 6.0, 7.0},
			"stddev":    {0.5, 0.6, 0.7},
			"entries":   {10, 20, 30},
			"zero":      {0, 0, 0},
		},
		runs: []int32{123, 124},
		rows: 3,
	}
}

func firstObject(t *testing.T, c *histo.Canvas) histo.Object {
	t.Helper()
	if len(c.Pads) == 0 || len(c.Pads[0].Objects) == 0 {
		t.Fatal("canvas holds no objects")
	}
	return c.Pads[0].Objects[0]
}

func TestGenerateValueHistogram(t *testing.T) {
	src := newFakeSource()
	canvas, err := Generate(src, PlotConfig{Name: "mean_dist", VarExp: "mean"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	h, ok := firstObject(t, canvas).(*histo.Histogram)
	if !ok {
		t.Fatalf("object %T, want histogram", firstObject(t, canvas))
	}
	if h.Entries != 3 {
		t.Errorf("entries = %v, want 3", h.Entries)
	}
}

func TestGenerateGraphWithTimeAxis(t *testing.T) {
	src := newFakeSource()
	canvas, err := Generate(src, PlotConfig{Name: "mean_trend", VarExp: "mean:time"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	g, ok := firstObject(t, canvas).(*histo.Graph)
	if !ok {
		t.Fatalf("object %T, want graph", firstObject(t, canvas))
	}
	if g.NPoints() != 3 || g.X[0] != 1000 || g.Y[2] != 7.0 {
		t.Errorf("points = %v / %v", g.X, g.Y)
	}
	if !g.XAxis.TimeDisplay || g.XAxis.TimeFormat != TimeAxisFormat || g.XAxis.NDivisions != TimeAxisDivisions {
		t.Errorf("time axis: %+v", g.XAxis)
	}
}

func TestGenerateGraphWithRunAxis(t *testing.T) {
	src := newFakeSource()
	canvas, err := Generate(src, PlotConfig{Name: "mean_vs_run", VarExp: "mean:runNumber"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	g := firstObject(t, canvas).(*histo.Graph)
	if !g.XAxis.NoExponent {
		t.Error("run axis keeps exponent notation")
	}
	if len(g.XAxis.BinLabels) != 2 || g.XAxis.BinLabels[0] != "123" || g.XAxis.BinLabels[1] != "124" {
		t.Errorf("run labels = %v", g.XAxis.BinLabels)
	}
}

func TestGenerateGraphErrors(t *testing.T) {
	src := newFakeSource()
	canvas, err := Generate(src, PlotConfig{
		Name:        "mean_trend",
		VarExp:      "mean:time",
		GraphErrors: "stddev:zero",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	g, ok := firstObject(t, canvas).(*histo.GraphErrors)
	if !ok {
		t.Fatalf("object %T, want graph with errors", firstObject(t, canvas))
	}
	if g.EY[1] != 0.6 || g.EX[1] != 0 {
		t.Errorf("errors = %v / %v", g.EY, g.EX)
	}
}

func TestGenerateSelection(t *testing.T) {
	src := newFakeSource()
	canvas, err := Generate(src, PlotConfig{
		Name:      "late_means",
		VarExp:    "mean:time",
		Selection: "entries > 15",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	g := firstObject(t, canvas).(*histo.Graph)
	if g.NPoints() != 2 || g.Y[0] != 6.0 {
		t.Errorf("filtered points = %v / %v", g.X, g.Y)
	}
}

func TestGenerateRangesAndLabels(t *testing.T) {
	src := newFakeSource()
	canvas, err := Generate(src, PlotConfig{
		Name:           "mean_trend",
		VarExp:         "mean:entries",
		GraphYRange:    "0:10",
		GraphXRange:    "5:35",
		GraphAxisLabel: "mean pT:entries",
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	g := firstObject(t, canvas).(*histo.Graph)
	if g.XAxis.Min != 5 || g.XAxis.Max != 35 || g.YAxis.Min != 0 || g.YAxis.Max != 10 {
		t.Errorf("ranges: x=%+v y=%+v", g.XAxis, g.YAxis)
	}
	if g.YAxis.Title != "mean pT" || g.XAxis.Title != "entries" {
		t.Errorf("labels: x=%q y=%q", g.XAxis.Title, g.YAxis.Title)
	}
}

func TestGenerateFailures(t *testing.T) {
	src := newFakeSource()
	cases := []struct {
		name string
		cfg  PlotConfig
		want error
	}{
		{"empty varexp", PlotConfig{Name: "p"}, core.ErrConfig},
		{"unknown leaf", PlotConfig{Name: "p", VarExp: "nope:time"}, core.ErrSchema},
		{"unknown selection leaf", PlotConfig{Name: "p", VarExp: "mean:time", Selection: "nope > 1"}, core.ErrSchema},
		{"bad selection", PlotConfig{Name: "p", VarExp: "mean:time", Selection: "mean ~ 1"}, core.ErrConfig},
		{"bad error expr", PlotConfig{Name: "p", VarExp: "mean:time", GraphErrors: "stddev"}, core.ErrConfig},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Generate(src, tc.cfg); !errors.Is(err, tc.want) {
				t.Errorf("err = %v, want %v", err, tc.want)
			}
		})
	}
}
