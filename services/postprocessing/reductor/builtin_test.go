// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reductor

import (
	"errors"
	"math"
	"testing"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
)

func TestTH1Reductor(t *testing.T) {
	r, err := New(BuiltinModule, "TH1Reductor")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	or := r.(ObjectReductor)

	h := histo.NewHistogram("h", "", 10, 0, 10)
	h.Fill(2.2)
	h.Fill(4.4)
	if err := or.Update(h); err != nil {
		t.Fatalf("update: %v", err)
	}
	v := or.Values()
	if len(v) != 3 {
		t.Fatalf("values = %d, want 3", len(v))
	}
	if math.Abs(v[0]-3.5) > 1e-12 { // bin centers 2.5 and 4.5
		t.Errorf("mean = %v, want 3.5", v[0])
	}
	if v[2] != 2 {
		t.Errorf("entries = %v, want 2", v[2])
	}

	t.Run("accepts monitor object wrapper", func(t *testing.T) {
		mo := core.NewMonitorObject(h, "T", "", "TPC")
		if err := or.Update(mo); err != nil {
			t.Errorf("wrapped update: %v", err)
		}
	})

	t.Run("wrong payload fails with schema", func(t *testing.T) {
		if err := or.Update("nope"); !errors.Is(err, core.ErrSchema) {
			t.Errorf("err = %v, want ErrSchema", err)
		}
	})

	t.Run("idempotent", func(t *testing.T) {
		_ = or.Update(h)
		first := append([]float64(nil), or.Values()...)
		_ = or.Update(h)
		second := or.Values()
		for i := range first {
			if first[i] != second[i] {
				t.Error("repeated update changed values")
			}
		}
	})
}

func TestQualityReductor(t *testing.T) {
	r, _ := New(BuiltinModule, "QualityReductor")
	or := r.(ObjectReductor)

	qo := core.NewQualityObject(core.QualityMedium, "c", "MCH")
	if err := or.Update(qo); err != nil {
		t.Fatalf("update: %v", err)
	}
	if or.Values()[0] != 2 {
		t.Errorf("level = %v, want 2", or.Values()[0])
	}

	if err := or.Update(core.QualityBad); err != nil {
		t.Fatal(err)
	}
	if or.Values()[0] != 3 {
		t.Errorf("level = %v, want 3", or.Values()[0])
	}
}

func TestTH2Reductor(t *testing.T) {
	r, _ := New(BuiltinModule, "TH2Reductor")
	or := r.(ObjectReductor)

	h := histo.NewHistogram2D("m", "", 4, 0, 4, 4, 0, 4)
	h.Fill(0.5, 3.5, 1)
	h.Fill(2.5, 1.5, 1)
	if err := or.Update(h); err != nil {
		t.Fatal(err)
	}
	v := or.Values()
	if v[0] != 2 {
		t.Errorf("entries = %v", v[0])
	}
	if math.Abs(v[1]-1.5) > 1e-12 || math.Abs(v[2]-2.5) > 1e-12 {
		t.Errorf("means = %v %v, want 1.5 2.5", v[1], v[2])
	}
}

func TestTH1SliceReductor(t *testing.T) {
	r, _ := New(BuiltinModule, "TH1SliceReductor")
	sr := r.(SliceReductor)

	h := histo.NewHistogram("h", "", 10, 0, 10)
	h.SetBinContent(1, 4) // center 1.5
	h.SetBinContent(7, 2) // center 7.5

	t.Run("two slices split the content", func(t *testing.T) {
		if err := sr.UpdateSliced(h, []float64{0, 5, 10}, nil); err != nil {
			t.Fatal(err)
		}
		slices := sr.Slices()
		if len(slices) != 2 {
			t.Fatalf("slices = %d, want 2", len(slices))
		}
		if slices[0].Field("entries") != 4 || slices[1].Field("entries") != 2 {
			t.Errorf("entries = %v %v", slices[0].Field("entries"), slices[1].Field("entries"))
		}
		if slices[0].Field("meanX") != 1.5 {
			t.Errorf("meanX = %v, want 1.5", slices[0].Field("meanX"))
		}
		if slices[0].BoundsX != [2]float64{0, 5} {
			t.Errorf("bounds = %v", slices[0].BoundsX)
		}
	})

	t.Run("no divisions collapses to one slice", func(t *testing.T) {
		if err := sr.UpdateSliced(h, nil, nil); err != nil {
			t.Fatal(err)
		}
		if len(sr.Slices()) != 1 {
			t.Errorf("slices = %d, want 1", len(sr.Slices()))
		}
		if sr.Slices()[0].Field("entries") != 6 {
			t.Errorf("entries = %v, want 6", sr.Slices()[0].Field("entries"))
		}
	})
}

func TestScalarConditionReductor(t *testing.T) {
	r, _ := New(BuiltinModule, "ScalarConditionReductor")
	if _, ok := r.(ConditionReductor); !ok {
		t.Fatal("should be a condition reductor")
	}
	if r.BranchLeafList() != "value/D" {
		t.Errorf("leaf list = %q", r.BranchLeafList())
	}
}

func TestUnknownReductor(t *testing.T) {
	if _, err := New(BuiltinModule, "Nope"); !errors.Is(err, core.ErrResolveClass) {
		t.Errorf("err = %v, want ErrResolveClass", err)
	}
	if _, err := New("nope", "TH1Reductor"); !errors.Is(err, core.ErrLoadModule) {
		t.Errorf("err = %v, want ErrLoadModule", err)
	}
}
