// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package core holds the value types shared by every post-processing
// component: run identity (Activity), time-interval validity arithmetic,
// quality verdicts, monitor objects and the canonical repository paths.
//
// # Design Principles
//
// Activity and ValidityInterval are plain value types; MonitorObject and
// QualityObject are shared across fetch, reduce and publish stages with an
// explicit owner flag governing payload lifetime.
package core

import "fmt"

// legacyValidityThreshold separates modern validity intervals from the old
// convention where Min was the creation time and Max was Min + 10 years.
// Anything wider than 9 years is assumed to follow the old convention.
const legacyValidityThreshold int64 = 9 * 365 * 24 * 3600 * 1000

// ValidityInterval is a half-open interval [Min, Max) of milliseconds since
// epoch. The zero value is invalid.
type ValidityInterval struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// InvalidValidityInterval returns the canonical invalid interval.
func InvalidValidityInterval() ValidityInterval {
	return ValidityInterval{}
}

// NewValidityInterval builds an interval covering [min, max).
func NewValidityInterval(min, max int64) ValidityInterval {
	return ValidityInterval{Min: min, Max: max}
}

// IsValid reports whether the interval covers at least one millisecond.
func (v ValidityInterval) IsValid() bool {
	return v.Max > v.Min
}

// Delta returns the interval width in milliseconds.
func (v ValidityInterval) Delta() int64 {
	return v.Max - v.Min
}

// Contains reports whether ts falls inside the half-open interval.
func (v ValidityInterval) Contains(ts int64) bool {
	return v.IsValid() && ts >= v.Min && ts < v.Max
}

// Update widens the interval so that it includes ts. Updating never narrows:
// an already-covered timestamp leaves the interval untouched. Updating the
// zero (invalid) interval produces the one-millisecond interval [ts, ts+1).
func (v ValidityInterval) Update(ts int64) ValidityInterval {
	if !v.IsValid() {
		return ValidityInterval{Min: ts, Max: ts + 1}
	}
	out := v
	if ts < out.Min {
		out.Min = ts
	}
	if ts >= out.Max {
		out.Max = ts + 1
	}
	return out
}

// Overlap returns the intersection with the other interval. The result is
// invalid when the intervals are disjoint or either input is invalid.
func (v ValidityInterval) Overlap(other ValidityInterval) ValidityInterval {
	if !v.IsValid() || !other.IsValid() {
		return InvalidValidityInterval()
	}
	out := ValidityInterval{Min: max(v.Min, other.Min), Max: min(v.Max, other.Max)}
	if !out.IsValid() {
		return InvalidValidityInterval()
	}
	return out
}

// IsLegacy reports whether the interval follows the old 10-year convention,
// in which Min carries the creation time rather than a validity start.
func (v ValidityInterval) IsLegacy() bool {
	return v.IsValid() && v.Delta() > legacyValidityThreshold
}

func (v ValidityInterval) String() string {
	return fmt.Sprintf("[%d, %d)", v.Min, v.Max)
}
