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

func TestRepoPaths(t *testing.T) {
	if got := MOPath("TPC", "Tracks"); got != "qc/TPC/MO/Tracks" {
		t.Errorf("MOPath = %q", got)
	}
	if got := MOPathWithProvenance("qc_async", "TPC", "Tracks"); got != "qc_async/TPC/MO/Tracks" {
		t.Errorf("MOPathWithProvenance = %q", got)
	}
	if got := QOPath("MCH"); got != "qc/MCH/QO" {
		t.Errorf("QOPath = %q", got)
	}
	if got := TRFCPath("MCH", "Flags"); got != "qc/MCH/TRFC/Flags" {
		t.Errorf("TRFCPath = %q", got)
	}
}

func TestSplitObjectPath(t *testing.T) {
	t.Run("normal path", func(t *testing.T) {
		ok, parent, leaf := SplitObjectPath("qc/TPC/MO/Tracks/hPt")
		if !ok || parent != "qc/TPC/MO/Tracks" || leaf != "hPt" {
			t.Errorf("got ok=%v parent=%q leaf=%q", ok, parent, leaf)
		}
	})
	t.Run("no separator", func(t *testing.T) {
		if ok, _, _ := SplitObjectPath("hPt"); ok {
			t.Error("bare name should not split")
		}
	})
	t.Run("trailing slash", func(t *testing.T) {
		if ok, _, _ := SplitObjectPath("qc/TPC/"); ok {
			t.Error("trailing slash should not split")
		}
	})
	t.Run("leading slash only", func(t *testing.T) {
		if ok, _, _ := SplitObjectPath("/hPt"); ok {
			t.Error("empty parent should not split")
		}
	})
}
