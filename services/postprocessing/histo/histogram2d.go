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

// Histogram2D is a two-dimensional binned histogram with row-major contents
// (y-major: index = y*NBinsX + x).
type Histogram2D struct {
	Name    string    `json:"name"`
	Title   string    `json:"title,omitempty"`
	XAxis   Axis      `json:"xAxis"`
	YAxis   Axis      `json:"yAxis"`
	Bins    []float64 `json:"bins"`
	Entries float64   `json:"entries"`
}

// NewHistogram2D builds an empty 2-D histogram.
func NewHistogram2D(name, title string, nx int, xmin, xmax float64, ny int, ymin, ymax float64) *Histogram2D {
	return &Histogram2D{
		Name:  name,
		Title: title,
		XAxis: NewAxis(nx, xmin, xmax),
		YAxis: NewAxis(ny, ymin, ymax),
		Bins:  make([]float64, nx*ny),
	}
}

func (h *Histogram2D) GetName() string { return h.Name }

// Kind implements Object for the payload codec.
func (h *Histogram2D) Kind() string { return KindHistogram2D }

func (h *Histogram2D) index(bx, by int) int {
	if bx < 0 || bx >= h.XAxis.NBins || by < 0 || by >= h.YAxis.NBins {
		return -1
	}
	return by*h.XAxis.NBins + bx
}

// Fill adds a weighted entry at (x, y). Out-of-range entries are dropped.
func (h *Histogram2D) Fill(x, y, w float64) {
	h.Entries++
	idx := h.index(h.XAxis.FindBin(x), h.YAxis.FindBin(y))
	if idx < 0 {
		return
	}
	h.Bins[idx] += w
}

// GetBinContent returns the content of the zero-based bin pair.
func (h *Histogram2D) GetBinContent(bx, by int) float64 {
	idx := h.index(bx, by)
	if idx < 0 {
		return 0
	}
	return h.Bins[idx]
}

// SetBinContent sets the content of the zero-based bin pair.
func (h *Histogram2D) SetBinContent(bx, by int, v float64) {
	idx := h.index(bx, by)
	if idx < 0 {
		return
	}
	h.Bins[idx] = v
}

// Reset clears all contents and the entry counter.
func (h *Histogram2D) Reset() {
	for i := range h.Bins {
		h.Bins[i] = 0
	}
	h.Entries = 0
}
