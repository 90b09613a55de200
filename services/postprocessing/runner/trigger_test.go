// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package runner

import (
	"context"
	"testing"
	"time"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
	"github.com/AleutianAI/qcpost/services/postprocessing/repository"
)

// withClock freezes the trigger clock for one test.
func withClock(t *testing.T, start int64) *int64 {
	t.Helper()
	now := start
	old := nowMillis
	nowMillis = func() int64 { return now }
	t.Cleanup(func() { nowMillis = old })
	return &now
}

func TestOnceTrigger(t *testing.T) {
	withClock(t, 5_000)
	fn := NewOnceTrigger(core.NewActivity(7))
	ctx := context.Background()

	tr, ok, err := fn(ctx)
	if err != nil || !ok {
		t.Fatalf("first poll should fire: %v", err)
	}
	if tr.Type != TriggerOnce || tr.Timestamp != 5_000 || !tr.Last || tr.Activity.ID != 7 {
		t.Errorf("trigger = %+v", tr)
	}
	if _, ok, _ := fn(ctx); ok {
		t.Error("second poll should not fire")
	}
}

func TestPeriodicTrigger(t *testing.T) {
	now := withClock(t, 0)
	fn, err := NewPeriodicTrigger(10*time.Second, core.Activity{})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	t.Run("quiet before the deadline", func(t *testing.T) {
		*now = 9_999
		if _, ok, _ := fn(ctx); ok {
			t.Error("should not fire before deadline")
		}
	})

	t.Run("fires with the deadline stamp", func(t *testing.T) {
		*now = 12_000
		tr, ok, _ := fn(ctx)
		if !ok || tr.Timestamp != 10_000 {
			t.Errorf("fired=%v ts=%d, want ts=10000", ok, tr.Timestamp)
		}
	})

	t.Run("missed deadlines do not burst", func(t *testing.T) {
		*now = 55_000 // deadlines 20k..50k all missed
		tr, ok, _ := fn(ctx)
		if !ok || tr.Timestamp != 20_000 {
			t.Errorf("fired=%v ts=%d, want one firing at 20000", ok, tr.Timestamp)
		}
		if _, ok, _ := fn(ctx); ok {
			t.Error("catch-up must swallow the remaining missed deadlines")
		}
		*now = 60_000
		tr, ok, _ = fn(ctx)
		if !ok || tr.Timestamp != 60_000 {
			t.Errorf("next deadline = %d, want 60000", tr.Timestamp)
		}
	})

	t.Run("non-positive period is rejected", func(t *testing.T) {
		if _, err := NewPeriodicTrigger(0, core.Activity{}); err == nil {
			t.Error("zero period should fail")
		}
	})
}

func newTriggerStore(t *testing.T) *repository.BadgerDatabase {
	t.Helper()
	db, err := repository.OpenBadger(repository.InMemoryBadgerConfig())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func storeHist(t *testing.T, db *repository.BadgerDatabase, name string, fill float64, validFrom int64) {
	t.Helper()
	h := histo.NewHistogram(name, "", 10, 0, 10)
	h.Fill(fill)
	mo := core.NewMonitorObject(h, "Tracks", "", "TPC")
	mo.Activity = core.NewActivity(123)
	mo.Validity = core.NewValidityInterval(validFrom, validFrom+1_000_000)
	if err := db.StoreMO(context.Background(), mo); err != nil {
		t.Fatal(err)
	}
}

func TestNewObjectTrigger(t *testing.T) {
	db := newTriggerStore(t)
	ctx := context.Background()
	fn := NewObjectTrigger(db, "qc/TPC/MO/Tracks/hPt", core.Activity{})

	t.Run("missing object stays quiet", func(t *testing.T) {
		if _, ok, _ := fn(ctx); ok {
			t.Error("no object, no trigger")
		}
	})

	t.Run("first appearance fires", func(t *testing.T) {
		storeHist(t, db, "hPt", 1, 4_000)
		tr, ok, _ := fn(ctx)
		if !ok {
			t.Fatal("new object should fire")
		}
		if tr.Type != TriggerNewObject || tr.Timestamp != 4_000 {
			t.Errorf("trigger = %+v", tr)
		}
		if tr.Activity.ID != 123 {
			t.Errorf("activity from metadata = %d, want 123", tr.Activity.ID)
		}
	})

	t.Run("unchanged content stays quiet", func(t *testing.T) {
		if _, ok, _ := fn(ctx); ok {
			t.Error("no new version, no trigger")
		}
	})

	t.Run("content change fires again", func(t *testing.T) {
		storeHist(t, db, "hPt", 2, 5_000)
		tr, ok, _ := fn(ctx)
		if !ok || tr.Timestamp != 5_000 {
			t.Errorf("fired=%v ts=%d, want 5000", ok, tr.Timestamp)
		}
	})

	t.Run("baseline initialized at creation", func(t *testing.T) {
		fresh := NewObjectTrigger(db, "qc/TPC/MO/Tracks/hPt", core.Activity{})
		if _, ok, _ := fresh(ctx); ok {
			t.Error("pre-existing object must not fire a fresh trigger")
		}
	})
}

func TestForEachObjectTrigger(t *testing.T) {
	db := newTriggerStore(t)
	ctx := context.Background()
	storeHist(t, db, "hPt", 1, 1_000)
	storeHist(t, db, "hPt", 2, 2_000)
	storeHist(t, db, "hPt", 3, 3_000)

	fn := NewForEachObjectTrigger(db, "qc/TPC/MO/Tracks/hPt", core.Activity{})
	var stamps []int64
	var last bool
	for {
		tr, ok, err := fn(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		stamps = append(stamps, tr.Timestamp)
		last = tr.Last
	}
	if len(stamps) != 3 {
		t.Fatalf("fired %d times, want 3", len(stamps))
	}
	for i := 1; i < len(stamps); i++ {
		if stamps[i] < stamps[i-1] {
			t.Error("versions should replay in creation order")
		}
	}
	if !last {
		t.Error("final firing should carry Last")
	}
}

func TestParseTriggerSpec(t *testing.T) {
	db := newTriggerStore(t)
	good := []string{"once", "SOR", "eor", "always", "never", "periodic:60", "periodic:0.5", "newobject:qc/TPC/MO/T/h", "foreachobject:qc/TPC/MO/T/h"}
	for _, spec := range good {
		if _, err := ParseTriggerSpec(spec, db, core.Activity{}); err != nil {
			t.Errorf("ParseTriggerSpec(%q) = %v", spec, err)
		}
	}
	bad := []string{"", "sometimes", "periodic:x", "periodic:", "newobject:", "foreachobject:"}
	for _, spec := range bad {
		if _, err := ParseTriggerSpec(spec, db, core.Activity{}); err == nil {
			t.Errorf("ParseTriggerSpec(%q) should fail", spec)
		}
	}
}
