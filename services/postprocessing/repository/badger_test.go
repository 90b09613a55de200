// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
)

func openTestStore(t *testing.T) *BadgerDatabase {
	t.Helper()
	db, err := OpenBadger(InMemoryBadgerConfig())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testMO(name string, run int) *core.MonitorObject {
	h := histo.NewHistogram(name, "", 10, 0, 10)
	h.Fill(3)
	mo := core.NewMonitorObject(h, "Tracks", "TrendingTask", "TPC")
	mo.Activity = core.NewActivity(run)
	return mo
}

func TestBadgerStoreRetrieveMO(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()

	mo := testMO("hPt", 123)
	mo.Validity = core.NewValidityInterval(1000, 2000)
	if err := db.StoreMO(ctx, mo); err != nil {
		t.Fatalf("store: %v", err)
	}

	t.Run("retrieve inside validity", func(t *testing.T) {
		got, err := db.RetrieveMO(ctx, "qc/TPC/MO/Tracks", "hPt", 1500, core.Activity{}, nil)
		if err != nil {
			t.Fatalf("retrieve: %v", err)
		}
		if got.GetName() != "hPt" || got.Activity.ID != 123 {
			t.Errorf("got %v run %d", got.GetName(), got.Activity.ID)
		}
		h, ok := got.Payload.(*histo.Histogram)
		if !ok || h.Entries != 1 {
			t.Errorf("payload %T entries mismatch", got.Payload)
		}
		if got.Metadata[core.MetaContentMD5] == "" {
			t.Error("store should assign Content-MD5")
		}
		if got.CreatedTimestamp() == 0 {
			t.Error("store should assign Created")
		}
	})

	t.Run("outside validity is not found", func(t *testing.T) {
		_, err := db.RetrieveMO(ctx, "qc/TPC/MO/Tracks", "hPt", 5000, core.Activity{}, nil)
		if !errors.Is(err, core.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("latest ignores validity", func(t *testing.T) {
		got, err := db.RetrieveMO(ctx, "qc/TPC/MO/Tracks", "hPt", TimestampLatest, core.Activity{}, nil)
		if err != nil || got == nil {
			t.Fatalf("latest retrieve: %v", err)
		}
	})

	t.Run("activity template filters", func(t *testing.T) {
		_, err := db.RetrieveMO(ctx, "qc/TPC/MO/Tracks", "hPt", 1500, core.Activity{ID: 999}, nil)
		if !errors.Is(err, core.ErrNotFound) {
			t.Errorf("wrong run should miss, got %v", err)
		}
		got, err := db.RetrieveMO(ctx, "qc/TPC/MO/Tracks", "hPt", 1500, core.Activity{ID: 123}, nil)
		if err != nil || got == nil {
			t.Errorf("matching run should hit: %v", err)
		}
	})
}

func TestBadgerNewestVersionWins(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()

	first := testMO("hPt", 123)
	first.Validity = core.NewValidityInterval(1000, 9000)
	if err := db.StoreMO(ctx, first); err != nil {
		t.Fatal(err)
	}

	second := testMO("hPt", 123)
	second.Payload.(*histo.Histogram).Fill(5)
	second.Validity = core.NewValidityInterval(1000, 9000)
	if err := db.StoreMO(ctx, second); err != nil {
		t.Fatal(err)
	}

	got, err := db.RetrieveMO(ctx, "qc/TPC/MO/Tracks", "hPt", 1500, core.Activity{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if got.Payload.(*histo.Histogram).Entries != 2 {
		t.Error("newest version should win")
	}
}

func TestBadgerQualityObjects(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()

	qo := core.NewQualityObject(core.QualityBad.AddFlag("BadTracking", "dead sector"), "QcCheck", "MCH")
	qo.Activity = core.NewActivity(42)
	qo.Validity = core.NewValidityInterval(100, 200)
	if err := db.StoreQO(ctx, qo); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := db.RetrieveQO(ctx, "qc/MCH/QO/QcCheck", 150, core.Activity{}, nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if got.Quality.Level != core.LevelBad || got.CheckName != "QcCheck" {
		t.Errorf("got %v", got)
	}
	if len(got.Quality.Flags) != 1 || got.Quality.Flags[0].Name != "BadTracking" {
		t.Errorf("flags lost: %+v", got.Quality.Flags)
	}
}

func TestBadgerLatestObjectValidity(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()

	t.Run("missing path is invalid", func(t *testing.T) {
		v, err := db.GetLatestObjectValidity(ctx, "qc/TPC/MO/Tracks/none", nil)
		if !errors.Is(err, core.ErrNotFound) || v.IsValid() {
			t.Errorf("got %v, %v", v, err)
		}
	})

	mo := testMO("hPt", 1)
	mo.Validity = core.NewValidityInterval(100, 200)
	_ = db.StoreMO(ctx, mo)
	mo2 := testMO("hPt", 2)
	mo2.Validity = core.NewValidityInterval(300, 400)
	_ = db.StoreMO(ctx, mo2)

	v, err := db.GetLatestObjectValidity(ctx, "qc/TPC/MO/Tracks/hPt", nil)
	if err != nil {
		t.Fatal(err)
	}
	if v.Min != 300 || v.Max != 400 {
		t.Errorf("validity = %v, want [300,400)", v)
	}
}

func TestBadgerListing(t *testing.T) {
	db := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_ = db.StoreMO(ctx, testMO("hPt", 10+i))
		_ = db.StoreMO(ctx, testMO("hEta", 10+i))
	}

	t.Run("all versions", func(t *testing.T) {
		stubs, err := db.Listing(ctx, "qc/TPC/MO/Tracks", nil, false)
		if err != nil {
			t.Fatal(err)
		}
		if len(stubs) != 4 {
			t.Errorf("stubs = %d, want 4", len(stubs))
		}
	})

	t.Run("latest only", func(t *testing.T) {
		stubs, err := db.Listing(ctx, "qc/TPC/MO/Tracks", nil, true)
		if err != nil {
			t.Fatal(err)
		}
		if len(stubs) != 2 {
			t.Errorf("stubs = %d, want 2", len(stubs))
		}
		for _, s := range stubs {
			if s.RunNumber != 11 {
				t.Errorf("latest run = %d, want 11", s.RunNumber)
			}
		}
	})

	t.Run("sibling prefix does not leak", func(t *testing.T) {
		_ = db.StoreMO(ctx, func() *core.MonitorObject {
			mo := testMO("h", 1)
			mo.TaskName = "Tracks2"
			return mo
		}())
		stubs, _ := db.Listing(ctx, "qc/TPC/MO/Tracks", nil, false)
		for _, s := range stubs {
			if s.Path == "qc/TPC/MO/Tracks2/h" {
				t.Error("listing leaked sibling task")
			}
		}
	})
}

func TestBadgerCreatedStrictlyIncreases(t *testing.T) {
	db := openTestStore(t)
	db.now = func() int64 { return 1000 } // frozen clock
	ctx := context.Background()

	_ = db.StoreMO(ctx, testMO("hPt", 1))
	_ = db.StoreMO(ctx, testMO("hPt", 1))
	stubs, err := db.Listing(ctx, "qc/TPC/MO/Tracks/hPt", nil, false)
	if err != nil || len(stubs) != 2 {
		t.Fatalf("stubs = %d, err = %v", len(stubs), err)
	}
	if stubs[0].Created == stubs[1].Created {
		t.Error("Created stamps should be strictly increasing")
	}
}
