// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package refcomp compares current monitor objects against reference runs:
// it draws current/reference/ratio canvases and grades the agreement
// through plug-in comparators.
package refcomp

import (
	"fmt"
	"math"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
	"github.com/AleutianAI/qcpost/services/postprocessing/registry"
)

// Comparator grades a current histogram against its reference. The message
// explains a non-Good verdict.
type Comparator interface {
	Compare(current, reference *histo.Histogram) (core.Quality, string)
}

// RangeAdvertiser is implemented by comparators that can point at the X
// range responsible for their verdict, drawn as a marker on the ratio pad.
type RangeAdvertiser interface {
	RangeOfInterest() ([2]float64, bool)
}

// Comparators holds every registered comparator class. Built-ins live in
// the "common" module.
var Comparators = registry.New[Comparator]("comparator")

func init() {
	Comparators.Register("common", "RelativeDeviationComparator",
		func() Comparator { return &RelativeDeviationComparator{Threshold: 0.1} })
}

// QualityColor maps a verdict onto its display color.
func QualityColor(q core.Quality) int {
	switch q.Level {
	case core.LevelGood:
		return histo.ColorGreen
	case core.LevelMedium:
		return histo.ColorOrange
	case core.LevelBad:
		return histo.ColorRed
	default:
		return histo.ColorViolet
	}
}

// RelativeDeviationComparator grades Good iff the largest bin-wise relative
// deviation from the reference stays within the threshold. Empty reference
// bins only count when the current bin is non-empty.
type RelativeDeviationComparator struct {
	Threshold float64

	worstRange [2]float64
	triggered  bool
}

// Compare implements Comparator.
func (c *RelativeDeviationComparator) Compare(current, reference *histo.Histogram) (core.Quality, string) {
	c.triggered = false
	if current == nil || reference == nil || current.NBins() != reference.NBins() {
		return core.QualityNull, "histograms not comparable"
	}

	worst := 0.0
	for i := 0; i < current.NBins(); i++ {
		ref := reference.GetBinContent(i)
		cur := current.GetBinContent(i)
		var dev float64
		switch {
		case ref != 0:
			dev = math.Abs(cur-ref) / math.Abs(ref)
		case cur != 0:
			dev = math.Inf(1)
		}
		if dev > worst {
			worst = dev
			c.worstRange = [2]float64{current.XAxis.BinLowEdge(i), current.XAxis.BinLowEdge(i + 1)}
		}
	}
	if worst <= c.Threshold {
		return core.QualityGood, ""
	}
	c.triggered = true
	return core.QualityBad, fmt.Sprintf("relative deviation %.3g exceeds %.3g", worst, c.Threshold)
}

// RangeOfInterest points at the worst bin of the last failing comparison.
func (c *RelativeDeviationComparator) RangeOfInterest() ([2]float64, bool) {
	return c.worstRange, c.triggered
}
