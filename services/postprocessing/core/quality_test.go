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

func TestQualityOrdering(t *testing.T) {
	ordered := []Quality{QualityNull, QualityGood, QualityMedium, QualityBad}
	for i := range ordered {
		for j := range ordered {
			worse := ordered[i].IsWorseThan(ordered[j])
			if worse != (i > j) {
				t.Errorf("%s.IsWorseThan(%s) = %v", ordered[i].Name(), ordered[j].Name(), worse)
			}
			better := ordered[i].IsBetterThan(ordered[j])
			if better != (i < j) {
				t.Errorf("%s.IsBetterThan(%s) = %v", ordered[i].Name(), ordered[j].Name(), better)
			}
		}
	}
}

func TestWorstOf(t *testing.T) {
	t.Run("commutative", func(t *testing.T) {
		if WorstOf(QualityGood, QualityBad).Level != WorstOf(QualityBad, QualityGood).Level {
			t.Error("WorstOf should be commutative")
		}
	})
	t.Run("associative", func(t *testing.T) {
		a := WorstOf(WorstOf(QualityGood, QualityMedium), QualityNull)
		b := WorstOf(QualityGood, WorstOf(QualityMedium, QualityNull))
		if a.Level != b.Level {
			t.Error("WorstOf should be associative")
		}
	})
	t.Run("bad dominates", func(t *testing.T) {
		if WorstOf(QualityBad, QualityMedium).Level != LevelBad {
			t.Error("Bad should win")
		}
	})
}

func TestQualityFlags(t *testing.T) {
	q := QualityMedium.AddFlag("Unknown", "noisy sector 3").AddFlag("BadTracking", "")
	if len(q.Flags) != 2 {
		t.Fatalf("flags = %d, want 2", len(q.Flags))
	}
	if q.Flags[0].Comment != "noisy sector 3" {
		t.Errorf("comment = %q", q.Flags[0].Comment)
	}
	// AddFlag returns a copy; the named verdicts stay clean.
	if len(QualityMedium.Flags) != 0 {
		t.Error("QualityMedium mutated by AddFlag")
	}
}

func TestQualityNames(t *testing.T) {
	cases := map[QualityLevel]string{
		LevelNull: "Null", LevelGood: "Good", LevelMedium: "Medium", LevelBad: "Bad",
	}
	for level, want := range cases {
		if got := (Quality{Level: level}).Name(); got != want {
			t.Errorf("level %d name = %q, want %q", level, got, want)
		}
	}
}
