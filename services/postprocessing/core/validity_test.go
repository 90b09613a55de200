// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package core

import "testing"

func TestValidityIntervalBasics(t *testing.T) {
	t.Run("zero value is invalid", func(t *testing.T) {
		var v ValidityInterval
		if v.IsValid() {
			t.Error("zero interval should be invalid")
		}
	})

	t.Run("half open contains", func(t *testing.T) {
		v := NewValidityInterval(100, 200)
		if !v.Contains(100) {
			t.Error("min should be contained")
		}
		if v.Contains(200) {
			t.Error("max should not be contained")
		}
		if v.Delta() != 100 {
			t.Errorf("delta = %d, want 100", v.Delta())
		}
	})

	t.Run("empty interval is invalid", func(t *testing.T) {
		if NewValidityInterval(5, 5).IsValid() {
			t.Error("[5,5) should be invalid")
		}
	})
}

func TestValidityIntervalUpdate(t *testing.T) {
	t.Run("update never narrows", func(t *testing.T) {
		v := NewValidityInterval(100, 200)
		u := v.Update(150)
		if u != v {
			t.Errorf("covered timestamp changed interval: %v", u)
		}
	})

	t.Run("update widens below min", func(t *testing.T) {
		u := NewValidityInterval(100, 200).Update(50)
		if u.Min != 50 || u.Max != 200 {
			t.Errorf("got %v, want [50,200)", u)
		}
	})

	t.Run("update widens at and above max", func(t *testing.T) {
		u := NewValidityInterval(100, 200).Update(200)
		if u.Max != 201 {
			t.Errorf("max = %d, want 201", u.Max)
		}
	})

	t.Run("update of invalid yields one ms", func(t *testing.T) {
		u := InvalidValidityInterval().Update(42)
		if u.Min != 42 || u.Max != 43 {
			t.Errorf("got %v, want [42,43)", u)
		}
	})
}

func TestValidityIntervalOverlap(t *testing.T) {
	t.Run("overlap is contained in both", func(t *testing.T) {
		a := NewValidityInterval(0, 100)
		b := NewValidityInterval(50, 150)
		o := a.Overlap(b)
		if !o.IsValid() || o.Min != 50 || o.Max != 100 {
			t.Errorf("overlap = %v, want [50,100)", o)
		}
	})

	t.Run("disjoint intervals yield invalid", func(t *testing.T) {
		if NewValidityInterval(0, 10).Overlap(NewValidityInterval(20, 30)).IsValid() {
			t.Error("disjoint overlap should be invalid")
		}
	})

	t.Run("touching intervals yield invalid", func(t *testing.T) {
		if NewValidityInterval(0, 10).Overlap(NewValidityInterval(10, 20)).IsValid() {
			t.Error("[0,10) and [10,20) share no millisecond")
		}
	})
}

func TestValidityIntervalLegacy(t *testing.T) {
	nineYears := int64(9 * 365 * 24 * 3600 * 1000)
	if NewValidityInterval(0, nineYears).IsLegacy() {
		t.Error("exactly nine years is not legacy")
	}
	if !NewValidityInterval(0, nineYears+1).IsLegacy() {
		t.Error("wider than nine years is legacy")
	}
	tenYears := int64(10 * 365 * 24 * 3600 * 1000)
	if !NewValidityInterval(1700000000000, 1700000000000+tenYears).IsLegacy() {
		t.Error("ten-year interval should be legacy")
	}
}
