// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package histo

// Graph is an ordered set of (x, y) points.
type Graph struct {
	Name  string    `json:"name"`
	Title string    `json:"title,omitempty"`
	XAxis Axis      `json:"xAxis,omitempty"`
	YAxis Axis      `json:"yAxis,omitempty"`
	X     []float64 `json:"x"`
	Y     []float64 `json:"y"`

	LineColor   int `json:"lineColor,omitempty"`
	MarkerStyle int `json:"markerStyle,omitempty"`
}

// NewGraph returns an empty named graph.
func NewGraph(name, title string) *Graph {
	return &Graph{Name: name, Title: title}
}

func (g *Graph) GetName() string { return g.Name }

// Kind implements Object for the payload codec.
func (g *Graph) Kind() string { return KindGraph }

// AddPoint appends one point.
func (g *Graph) AddPoint(x, y float64) {
	g.X = append(g.X, x)
	g.Y = append(g.Y, y)
}

// NPoints returns the number of points.
func (g *Graph) NPoints() int { return len(g.X) }

// GraphErrors is a graph with symmetric per-point errors on both axes.
type GraphErrors struct {
	Graph
	EX []float64 `json:"ex"`
	EY []float64 `json:"ey"`
}

// NewGraphErrors returns an empty named error graph.
func NewGraphErrors(name, title string) *GraphErrors {
	return &GraphErrors{Graph: Graph{Name: name, Title: title}}
}

// Kind implements Object for the payload codec.
func (g *GraphErrors) Kind() string { return KindGraphErrors }

// AddPointError appends one point with its errors.
func (g *GraphErrors) AddPointError(x, y, ex, ey float64) {
	g.AddPoint(x, y)
	g.EX = append(g.EX, ex)
	g.EY = append(g.EY, ey)
}
