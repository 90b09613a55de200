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

import "math"

// Histogram is a one-dimensional binned histogram with sum-of-weights bin
// contents and optional per-bin errors.
type Histogram struct {
	Name      string    `json:"name"`
	Title     string    `json:"title,omitempty"`
	XAxis     Axis      `json:"xAxis"`
	YAxis     Axis      `json:"yAxis,omitempty"`
	Bins      []float64 `json:"bins"`
	BinErrors []float64 `json:"binErrors,omitempty"`
	Entries   float64   `json:"entries"`
	Underflow float64   `json:"underflow,omitempty"`
	Overflow  float64   `json:"overflow,omitempty"`

	LineColor int `json:"lineColor,omitempty"`
}

// NewHistogram builds an empty histogram with nBins over [min, max).
func NewHistogram(name, title string, nBins int, min, max float64) *Histogram {
	return &Histogram{
		Name:  name,
		Title: title,
		XAxis: NewAxis(nBins, min, max),
		Bins:  make([]float64, nBins),
	}
}

func (h *Histogram) GetName() string { return h.Name }

// Kind implements Object for the payload codec.
func (h *Histogram) Kind() string { return KindHistogram }

// Fill adds a unit-weight entry at x.
func (h *Histogram) Fill(x float64) { h.FillWeighted(x, 1) }

// FillWeighted adds a weighted entry at x. Out-of-range entries accumulate
// in the underflow and overflow counters.
func (h *Histogram) FillWeighted(x, w float64) {
	h.Entries++
	bin := h.XAxis.FindBin(x)
	if bin < 0 {
		if x < h.XAxis.Min {
			h.Underflow += w
		} else {
			h.Overflow += w
		}
		return
	}
	h.Bins[bin] += w
}

// NBins returns the number of bins.
func (h *Histogram) NBins() int { return len(h.Bins) }

// GetBinContent returns the content of the zero-based bin, 0 out of range.
func (h *Histogram) GetBinContent(bin int) float64 {
	if bin < 0 || bin >= len(h.Bins) {
		return 0
	}
	return h.Bins[bin]
}

// SetBinContent sets the content of the zero-based bin, ignoring bins out
// of range.
func (h *Histogram) SetBinContent(bin int, v float64) {
	if bin < 0 || bin >= len(h.Bins) {
		return
	}
	h.Bins[bin] = v
}

// GetBinError returns the stored error of the bin, falling back to the
// Poisson sqrt(content) when no explicit errors were recorded.
func (h *Histogram) GetBinError(bin int) float64 {
	if bin >= 0 && bin < len(h.BinErrors) {
		return h.BinErrors[bin]
	}
	c := h.GetBinContent(bin)
	if c <= 0 {
		return 0
	}
	return math.Sqrt(c)
}

// SetBinError records the error of the zero-based bin, allocating the error
// slice on first use.
func (h *Histogram) SetBinError(bin int, e float64) {
	if bin < 0 || bin >= len(h.Bins) {
		return
	}
	if h.BinErrors == nil {
		h.BinErrors = make([]float64, len(h.Bins))
	}
	h.BinErrors[bin] = e
}

// Integral returns the sum of all bin contents, excluding under/overflow.
func (h *Histogram) Integral() float64 {
	var sum float64
	for _, v := range h.Bins {
		sum += v
	}
	return sum
}

// Mean returns the content-weighted mean of bin centers.
func (h *Histogram) Mean() float64 {
	var sum, wsum float64
	for i, v := range h.Bins {
		sum += v * h.XAxis.BinCenter(i)
		wsum += v
	}
	if wsum == 0 {
		return 0
	}
	return sum / wsum
}

// StdDev returns the content-weighted standard deviation of bin centers.
func (h *Histogram) StdDev() float64 {
	mean := h.Mean()
	var sum, wsum float64
	for i, v := range h.Bins {
		d := h.XAxis.BinCenter(i) - mean
		sum += v * d * d
		wsum += v
	}
	if wsum == 0 {
		return 0
	}
	return math.Sqrt(sum / wsum)
}

// Reset clears all contents, errors and counters without touching binning.
func (h *Histogram) Reset() {
	for i := range h.Bins {
		h.Bins[i] = 0
	}
	for i := range h.BinErrors {
		h.BinErrors[i] = 0
	}
	h.Entries, h.Underflow, h.Overflow = 0, 0, 0
}

// Clone returns a deep copy under the given name.
func (h *Histogram) Clone(name string) *Histogram {
	out := *h
	out.Name = name
	out.Bins = append([]float64(nil), h.Bins...)
	if h.BinErrors != nil {
		out.BinErrors = append([]float64(nil), h.BinErrors...)
	}
	out.XAxis.BinLabels = append([]string(nil), h.XAxis.BinLabels...)
	return &out
}

// Scale multiplies every bin content and error by f.
func (h *Histogram) Scale(f float64) {
	for i := range h.Bins {
		h.Bins[i] *= f
	}
	for i := range h.BinErrors {
		h.BinErrors[i] *= f
	}
}

// Divide replaces the contents with the bin-by-bin ratio h/other. Bins where
// the divisor is zero become zero. Binning must match; mismatched histograms
// are left untouched and the method reports false.
func (h *Histogram) Divide(other *Histogram) bool {
	if other == nil || len(other.Bins) != len(h.Bins) {
		return false
	}
	for i := range h.Bins {
		if other.Bins[i] == 0 {
			h.Bins[i] = 0
			continue
		}
		h.Bins[i] /= other.Bins[i]
	}
	return true
}
