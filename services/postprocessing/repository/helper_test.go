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
	"testing"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
)

func TestObjectHelperFreshness(t *testing.T) {
	db := openTestStore(t)
	clock := int64(10_000)
	db.now = func() int64 { return clock }
	ctx := context.Background()

	helper := NewObjectHelper("qc/TPC/MO/Tracks", "hPt", 10_000)

	t.Run("missing object fails", func(t *testing.T) {
		if helper.Update(ctx, db, TimestampLatest, core.Activity{}) {
			t.Error("update should fail before any store")
		}
		if helper.Object() != nil {
			t.Error("no object should be cached")
		}
	})

	t.Run("object older than task start is rejected", func(t *testing.T) {
		clock = 9_000 // created before timeStart
		_ = db.StoreMO(ctx, testMO("hPt", 1))
		if helper.Update(ctx, db, TimestampLatest, core.Activity{}) {
			t.Error("object created before task start should be rejected")
		}
	})

	t.Run("fresh object is accepted", func(t *testing.T) {
		clock = 11_000
		_ = db.StoreMO(ctx, testMO("hPt", 2))
		if !helper.Update(ctx, db, TimestampLatest, core.Activity{}) {
			t.Fatal("fresh object should be accepted")
		}
		if helper.LastTimeStamp() != 11_000 {
			t.Errorf("lastTimeStamp = %d, want 11000", helper.LastTimeStamp())
		}
		if helper.Object().Activity.ID != 2 {
			t.Error("wrong object cached")
		}
	})

	t.Run("same version is rejected, state unchanged", func(t *testing.T) {
		if helper.Update(ctx, db, TimestampLatest, core.Activity{}) {
			t.Error("already-seen object should be rejected")
		}
		if helper.LastTimeStamp() != 11_000 || helper.Object().Activity.ID != 2 {
			t.Error("failed update must not change state")
		}
	})

	t.Run("newer version advances the stamp", func(t *testing.T) {
		clock = 12_000
		_ = db.StoreMO(ctx, testMO("hPt", 3))
		if !helper.Update(ctx, db, TimestampLatest, core.Activity{}) {
			t.Fatal("newer object should be accepted")
		}
		if helper.LastTimeStamp() != 12_000 {
			t.Errorf("lastTimeStamp = %d, want 12000", helper.LastTimeStamp())
		}
	})

	t.Run("accepted stamps are strictly increasing", func(t *testing.T) {
		// A replayed older version would need Created <= lastTimeStamp
		// and is therefore impossible to accept by construction.
		if helper.Update(ctx, db, TimestampLatest, core.Activity{}) {
			t.Error("no new store happened, update must fail")
		}
	})
}

func TestObjectHelperTypedPayload(t *testing.T) {
	db := openTestStore(t)
	db.now = func() int64 { return 20_000 }
	ctx := context.Background()
	_ = db.StoreMO(ctx, testMO("hPt", 1))

	helper := NewObjectHelper("qc/TPC/MO/Tracks", "hPt", 0)
	if !helper.Update(ctx, db, TimestampLatest, core.Activity{}) {
		t.Fatal("update failed")
	}

	if h, ok := Payload[*histo.Histogram](helper); !ok || h.GetName() != "hPt" {
		t.Error("typed payload view failed")
	}
	if _, ok := Payload[*histo.Canvas](helper); ok {
		t.Error("wrong type should not cast")
	}
}

func TestQualityHelper(t *testing.T) {
	db := openTestStore(t)
	clock := int64(5_000)
	db.now = func() int64 { return clock }
	ctx := context.Background()

	helper := NewQualityHelper("qc/MCH/QO/QcCheck", 4_000)
	if helper.Quality().Level != core.LevelNull {
		t.Error("empty helper should report Null")
	}

	qo := core.NewQualityObject(core.QualityMedium, "QcCheck", "MCH")
	_ = db.StoreQO(ctx, qo)
	if !helper.Update(ctx, db, TimestampLatest, core.Activity{}) {
		t.Fatal("fresh verdict should be accepted")
	}
	if helper.Quality().Level != core.LevelMedium {
		t.Errorf("quality = %v", helper.Quality().Name())
	}

	if helper.Update(ctx, db, TimestampLatest, core.Activity{}) {
		t.Error("same verdict version should be rejected")
	}
}
