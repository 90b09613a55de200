// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package histo provides the drawable payload model carried inside monitor
// objects: binned histograms, point graphs, canvases with pads, and the
// kind-tagged JSON codec used to persist any of them in the object store.
package histo

// Drawing colors, matching the usual plotting palette indices.
const (
	ColorBlack  = 1
	ColorRed    = 632
	ColorGreen  = 416 + 2
	ColorOrange = 800 - 3
	ColorViolet = 880
	ColorGray   = 920
)

// Axis describes one axis of a histogram or graph, including the display
// hints the plot generator sets for time and run-number axes.
type Axis struct {
	Title string  `json:"title,omitempty"`
	NBins int     `json:"nBins"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`

	// BinLabels, when non-empty, replaces numeric tick labels. Used for
	// run-number axes and per-slice axes.
	BinLabels []string `json:"binLabels,omitempty"`

	// Time display hints.
	TimeDisplay bool   `json:"timeDisplay,omitempty"`
	TimeFormat  string `json:"timeFormat,omitempty"`
	TimeOffset  int64  `json:"timeOffset,omitempty"`

	NDivisions int  `json:"nDivisions,omitempty"`
	NoExponent bool `json:"noExponent,omitempty"`
}

// NewAxis returns a numeric axis over [min, max) with nBins divisions.
func NewAxis(nBins int, min, max float64) Axis {
	return Axis{NBins: nBins, Min: min, Max: max}
}

// FindBin returns the zero-based bin index for x, or -1 when x is under- or
// overflow (including the degenerate axis).
func (a Axis) FindBin(x float64) int {
	if a.NBins <= 0 || a.Max <= a.Min || x < a.Min || x >= a.Max {
		return -1
	}
	bin := int(float64(a.NBins) * (x - a.Min) / (a.Max - a.Min))
	if bin >= a.NBins {
		bin = a.NBins - 1
	}
	return bin
}

// BinCenter returns the center of the zero-based bin.
func (a Axis) BinCenter(bin int) float64 {
	if a.NBins <= 0 {
		return 0
	}
	width := (a.Max - a.Min) / float64(a.NBins)
	return a.Min + (float64(bin)+0.5)*width
}

// BinLowEdge returns the inclusive lower edge of the zero-based bin.
func (a Axis) BinLowEdge(bin int) float64 {
	if a.NBins <= 0 {
		return 0
	}
	width := (a.Max - a.Min) / float64(a.NBins)
	return a.Min + float64(bin)*width
}

// SetBinLabel assigns a label to the zero-based bin, growing the label list
// as needed.
func (a *Axis) SetBinLabel(bin int, label string) {
	if bin < 0 {
		return
	}
	for len(a.BinLabels) <= bin {
		a.BinLabels = append(a.BinLabels, "")
	}
	a.BinLabels[bin] = label
}
