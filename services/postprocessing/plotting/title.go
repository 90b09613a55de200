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
	"strconv"
	"strings"
)

// Range title markers. A plot title containing one of these tokens gets it
// replaced with the slice bounds of the object being drawn.
const (
	RangeMarkerX = "RangeX"
	RangeMarkerY = "RangeY"
)

// RewriteRangeTitle substitutes the RangeX / RangeY markers in a title with
// the slice bounds. A marker carrying its own bounds, "RangeX[a,b]" as the
// slicing reductors write them, uses those; a bare marker falls back to the
// configured axis divisions. With centmode the marker becomes
// "<observable> <center> <unit>", otherwise
// "<lo> <unit> <= <observable> < <hi> <unit>".
// A bare marker without fallback bounds is left untouched.
func RewriteRangeTitle(title string, cfg PlotConfig, boundsX, boundsY *[2]float64) string {
	out := rewriteMarker(title, RangeMarkerX,
		cfg.LegendObservableX, cfg.LegendUnitX, cfg.LegendCentmodeX, boundsX)
	return rewriteMarker(out, RangeMarkerY,
		cfg.LegendObservableY, cfg.LegendUnitY, cfg.LegendCentmodeY, boundsY)
}

func rewriteMarker(title, marker, observable, unit string, centmode bool, fallback *[2]float64) string {
	var b strings.Builder
	for {
		i := strings.Index(title, marker)
		if i < 0 {
			break
		}
		b.WriteString(title[:i])
		rest := title[i+len(marker):]
		if bounds, n, ok := parseBounds(rest); ok {
			b.WriteString(rangeText(observable, unit, centmode, bounds))
			title = rest[n:]
			continue
		}
		if fallback != nil {
			b.WriteString(rangeText(observable, unit, centmode, *fallback))
		} else {
			b.WriteString(marker)
		}
		title = rest
	}
	b.WriteString(title)
	return b.String()
}

// parseBounds reads a leading "[a,b]" suffix, returning the bounds and the
// number of bytes consumed.
func parseBounds(s string) ([2]float64, int, bool) {
	if !strings.HasPrefix(s, "[") {
		return [2]float64{}, 0, false
	}
	end := strings.IndexByte(s, ']')
	if end < 0 {
		return [2]float64{}, 0, false
	}
	parts := strings.Split(s[1:end], ",")
	if len(parts) != 2 {
		return [2]float64{}, 0, false
	}
	lo, errLo := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	hi, errHi := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if errLo != nil || errHi != nil {
		return [2]float64{}, 0, false
	}
	return [2]float64{lo, hi}, end + 1, true
}

func rangeText(observable, unit string, centmode bool, bounds [2]float64) string {
	suffix := ""
	if unit != "" {
		suffix = " " + unit
	}
	if centmode {
		center := (bounds[0] + bounds[1]) / 2
		return observable + " " + formatBound(center) + suffix
	}
	return formatBound(bounds[0]) + suffix + " <= " + observable + " < " + formatBound(bounds[1]) + suffix
}

// formatBound prints a bound with at least one decimal, so whole-number
// centers still read as values ("1.0") rather than counts.
func formatBound(v float64) string {
	s := strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsRune(s, '.') {
		s += ".0"
	}
	return s
}
