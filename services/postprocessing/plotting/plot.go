// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package plotting turns trend columns into drawable objects: value
// histograms, graphs with optional error bars, and the axis beautification
// rules for time and run-number axes.
package plotting

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
)

// Time axis display settings applied whenever the X expression references
// the time column.
const (
	TimeAxisFormat     = "%Y-%m-%d %H:%M"
	TimeAxisDivisions  = 505
	TimeAxisOffset     = 0
	valueHistogramBins = 100
)

// Source is the column supplier a plot draws from. *trending.Tree
// implements it.
type Source interface {
	// Leaf resolves a column by bare or branch-qualified leaf name.
	Leaf(name string) ([]float64, bool)

	// SeenRunNumbers lists distinct runs in order of first appearance.
	SeenRunNumbers() []int32

	// NRows returns the row count.
	NRows() int
}

// PlotConfig describes one plot of a trending task.
type PlotConfig struct {
	// Name is the published object name.
	Name string `yaml:"name"`

	// Title may embed RangeX[a,b] / RangeY[a,b] markers (sliced trending).
	Title string `yaml:"title"`

	// VarExp selects columns: "value" draws a histogram of values,
	// "y:x" a graph, deeper expressions higher-order plots.
	VarExp string `yaml:"varexp"`

	// Selection filters rows with a simple "leaf op constant" predicate.
	Selection string `yaml:"selection"`

	// Option is the draw option carried to the output object.
	Option string `yaml:"option"`

	// GraphErrors supplies "ey:ex" expressions to overlay error bars on
	// an order-2 plot.
	GraphErrors string `yaml:"graphErrors"`

	GraphYRange    string `yaml:"graphYRange"`
	GraphXRange    string `yaml:"graphXRange"`
	GraphAxisLabel string `yaml:"graphAxisLabel"`

	// Sliced-trending legend options.
	LegendObservableX string `yaml:"legendObservableX"`
	LegendObservableY string `yaml:"legendObservableY"`
	LegendUnitX       string `yaml:"legendUnitX"`
	LegendUnitY       string `yaml:"legendUnitY"`
	LegendCentmodeX   bool   `yaml:"legendCentmodeX"`
	LegendCentmodeY   bool   `yaml:"legendCentmodeY"`
}

// Order returns the plot order: the count of ':' separators plus one.
func (c PlotConfig) Order() int {
	if c.VarExp == "" {
		return 0
	}
	return strings.Count(c.VarExp, ":") + 1
}

// Generate evaluates the plot against the source and returns the drawable
// canvas. The canvas holds one primary object named after the plot.
func Generate(src Source, cfg PlotConfig) (*histo.Canvas, error) {
	exprs := strings.Split(cfg.VarExp, ":")
	if cfg.VarExp == "" || len(exprs) == 0 {
		return nil, fmt.Errorf("plot %q has no varexp: %w", cfg.Name, core.ErrConfig)
	}

	keep, err := rowFilter(src, cfg.Selection)
	if err != nil {
		return nil, err
	}

	cols := make([][]float64, len(exprs))
	for i, expr := range exprs {
		col, ok := src.Leaf(strings.TrimSpace(expr))
		if !ok {
			return nil, fmt.Errorf("plot %q: unknown leaf %q: %w", cfg.Name, expr, core.ErrSchema)
		}
		cols[i] = filterRows(col, keep)
	}

	canvas := histo.NewCanvas(cfg.Name, cfg.Title)
	pad := canvas.AddPad(cfg.Name + "_pad")

	switch len(cols) {
	case 1:
		pad.Draw(valueHistogram(cfg, cols[0]))
	default:
		g, err := buildGraph(src, cfg, exprs, cols, keep)
		if err != nil {
			return nil, err
		}
		pad.Draw(g)
	}
	return canvas, nil
}

// valueHistogram bins a single column over its own range.
func valueHistogram(cfg PlotConfig, col []float64) *histo.Histogram {
	min, max := columnRange(col)
	if min == max {
		min, max = min-0.5, max+0.5
	}
	h := histo.NewHistogram(cfg.Name, cfg.Title, valueHistogramBins, min, max)
	for _, v := range col {
		h.Fill(v)
	}
	return h
}

// buildGraph draws cols[0] against cols[1]; higher orders keep only the
// first two axes, matching the two-dimensional display of deep varexps.
// With GraphErrors configured the 4-tuple (y, x, ey, ex) becomes an
// error-bar graph.
func buildGraph(src Source, cfg PlotConfig, exprs []string, cols [][]float64, keep []bool) (histo.Object, error) {
	y, x := cols[0], cols[1]

	var g histo.Object
	if cfg.GraphErrors != "" && len(cols) == 2 {
		errExprs := strings.Split(cfg.GraphErrors, ":")
		if len(errExprs) != 2 {
			return nil, fmt.Errorf("plot %q: graphErrors wants \"ey:ex\", got %q: %w",
				cfg.Name, cfg.GraphErrors, core.ErrConfig)
		}
		ey, ok := src.Leaf(strings.TrimSpace(errExprs[0]))
		if !ok {
			return nil, fmt.Errorf("plot %q: unknown error leaf %q: %w", cfg.Name, errExprs[0], core.ErrSchema)
		}
		ex, ok := src.Leaf(strings.TrimSpace(errExprs[1]))
		if !ok {
			return nil, fmt.Errorf("plot %q: unknown error leaf %q: %w", cfg.Name, errExprs[1], core.ErrSchema)
		}
		ey, ex = filterRows(ey, keep), filterRows(ex, keep)
		ge := histo.NewGraphErrors(cfg.Name, cfg.Title)
		for i := range x {
			ge.AddPointError(x[i], y[i], ex[i], ey[i])
		}
		g = ge
	} else {
		gr := histo.NewGraph(cfg.Name, cfg.Title)
		for i := range x {
			gr.AddPoint(x[i], y[i])
		}
		g = gr
	}

	xAxis, yAxis := graphAxes(g)
	beautifyXAxis(xAxis, strings.TrimSpace(exprs[1]), src)
	applyRanges(cfg, xAxis, yAxis)
	applyAxisLabels(cfg, xAxis, yAxis)
	return g, nil
}

func graphAxes(g histo.Object) (*histo.Axis, *histo.Axis) {
	switch v := g.(type) {
	case *histo.GraphErrors:
		return &v.XAxis, &v.YAxis
	case *histo.Graph:
		return &v.XAxis, &v.YAxis
	}
	return nil, nil
}

// beautifyXAxis applies the time or run-number display to the X axis when
// the expression references those columns.
func beautifyXAxis(x *histo.Axis, expr string, src Source) {
	if x == nil {
		return
	}
	switch {
	case referencesTime(expr):
		x.TimeDisplay = true
		x.TimeFormat = TimeAxisFormat
		x.NDivisions = TimeAxisDivisions
		x.TimeOffset = TimeAxisOffset
	case referencesRunNumber(expr):
		x.NoExponent = true
		runs := src.SeenRunNumbers()
		x.NBins = len(runs)
		for i, r := range runs {
			x.SetBinLabel(i, strconv.Itoa(int(r)))
		}
	}
}

func referencesTime(expr string) bool {
	return expr == "time" || strings.HasSuffix(expr, ".time")
}

func referencesRunNumber(expr string) bool {
	return expr == "runNumber" || expr == "meta.runNumber" || strings.HasSuffix(expr, ".runNumber")
}

// applyRanges parses "min:max" range options onto the graph axes.
func applyRanges(cfg PlotConfig, x, y *histo.Axis) {
	if x != nil && cfg.GraphXRange != "" {
		if lo, hi, ok := parseRange(cfg.GraphXRange); ok {
			x.Min, x.Max = lo, hi
		}
	}
	if y != nil && cfg.GraphYRange != "" {
		if lo, hi, ok := parseRange(cfg.GraphYRange); ok {
			y.Min, y.Max = lo, hi
		}
	}
}

// applyAxisLabels parses the "yLabel:xLabel" label option.
func applyAxisLabels(cfg PlotConfig, x, y *histo.Axis) {
	if cfg.GraphAxisLabel == "" {
		return
	}
	yl, xl, found := strings.Cut(cfg.GraphAxisLabel, ":")
	if !found {
		return
	}
	if y != nil {
		y.Title = strings.TrimSpace(yl)
	}
	if x != nil {
		x.Title = strings.TrimSpace(xl)
	}
}

func parseRange(spec string) (float64, float64, bool) {
	lo, hi, found := strings.Cut(spec, ":")
	if !found {
		return 0, 0, false
	}
	a, err1 := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	b, err2 := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return a, b, true
}

func columnRange(col []float64) (float64, float64) {
	if len(col) == 0 {
		return 0, 0
	}
	min, max := math.Inf(1), math.Inf(-1)
	for _, v := range col {
		min = math.Min(min, v)
		max = math.Max(max, v)
	}
	return min, max
}

// rowFilter evaluates the selection predicate per row. Supported form:
// "leaf op constant" with op in > < >= <= == !=. An empty selection keeps
// every row.
func rowFilter(src Source, selection string) ([]bool, error) {
	n := src.NRows()
	keep := make([]bool, n)
	if strings.TrimSpace(selection) == "" {
		for i := range keep {
			keep[i] = true
		}
		return keep, nil
	}

	ops := []string{">=", "<=", "==", "!=", ">", "<"}
	var leaf, op, rhs string
	for _, cand := range ops {
		if l, r, found := strings.Cut(selection, cand); found {
			leaf, op, rhs = strings.TrimSpace(l), cand, strings.TrimSpace(r)
			break
		}
	}
	if op == "" {
		return nil, fmt.Errorf("unsupported selection %q: %w", selection, core.ErrConfig)
	}
	col, ok := src.Leaf(leaf)
	if !ok {
		return nil, fmt.Errorf("selection leaf %q unknown: %w", leaf, core.ErrSchema)
	}
	threshold, err := strconv.ParseFloat(rhs, 64)
	if err != nil {
		return nil, fmt.Errorf("selection constant %q: %w", rhs, core.ErrConfig)
	}
	for i := 0; i < n && i < len(col); i++ {
		v := col[i]
		switch op {
		case ">":
			keep[i] = v > threshold
		case "<":
			keep[i] = v < threshold
		case ">=":
			keep[i] = v >= threshold
		case "<=":
			keep[i] = v <= threshold
		case "==":
			keep[i] = v == threshold
		case "!=":
			keep[i] = v != threshold
		}
	}
	return keep, nil
}

func filterRows(col []float64, keep []bool) []float64 {
	out := make([]float64, 0, len(col))
	for i, v := range col {
		if i < len(keep) && keep[i] {
			out = append(out, v)
		}
	}
	return out
}
