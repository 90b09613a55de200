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
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
)

// newTestPair spins up a dev server over an in-memory store and a client
// pointed at it.
func newTestPair(t *testing.T) (*BadgerDatabase, *Client) {
	t.Helper()
	store := openTestStore(t)
	srv := httptest.NewServer(NewServer(store, nil).Handler())
	t.Cleanup(srv.Close)
	client := NewClient(ClientConfig{BaseURL: srv.URL, HTTPClient: srv.Client()})
	return store, client
}

func TestClientServerRoundTrip(t *testing.T) {
	_, client := newTestPair(t)
	ctx := context.Background()

	mo := testMO("hPt", 123)
	mo.Validity = core.NewValidityInterval(1000, 2000)
	if err := client.StoreMO(ctx, mo); err != nil {
		t.Fatalf("store over http: %v", err)
	}

	t.Run("retrieve finds stored object", func(t *testing.T) {
		got, err := client.RetrieveMO(ctx, "qc/TPC/MO/Tracks", "hPt", 1500, core.Activity{}, nil)
		if err != nil {
			t.Fatalf("retrieve over http: %v", err)
		}
		if got.GetName() != "hPt" || got.Activity.ID != 123 {
			t.Errorf("round trip lost identity: %v", got)
		}
		if got.Validity.Min != 1000 || got.Validity.Max != 2000 {
			t.Errorf("validity = %v", got.Validity)
		}
		if got.Metadata[core.MetaContentMD5] == "" {
			t.Error("Content-MD5 should survive the wire")
		}
	})

	t.Run("miss maps to ErrNotFound", func(t *testing.T) {
		_, err := client.RetrieveMO(ctx, "qc/TPC/MO/Tracks", "nope", 1500, core.Activity{}, nil)
		if !errors.Is(err, core.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("activity filter applies server side", func(t *testing.T) {
		_, err := client.RetrieveMO(ctx, "qc/TPC/MO/Tracks", "hPt", 1500, core.Activity{ID: 999}, nil)
		if !errors.Is(err, core.ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})
}

func TestClientServerQO(t *testing.T) {
	_, client := newTestPair(t)
	ctx := context.Background()

	qo := core.NewQualityObject(core.QualityGood, "RefCheck", "TPC")
	qo.SetMonitorObjectName("hPt")
	if err := client.StoreQO(ctx, qo); err != nil {
		t.Fatalf("store: %v", err)
	}

	got, err := client.RetrieveQO(ctx, "qc/TPC/QO/RefCheck/hPt", TimestampLatest, core.Activity{}, nil)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if got.Quality.Level != core.LevelGood || got.GetName() != "RefCheck/hPt" {
		t.Errorf("got %v named %q", got.Quality.Name(), got.GetName())
	}
}

func TestClientServerListing(t *testing.T) {
	store, client := newTestPair(t)
	ctx := context.Background()
	clock := int64(1_000)
	store.now = func() int64 { clock += 1_000; return clock }

	for i := 0; i < 3; i++ {
		if err := client.StoreMO(ctx, testMO("hPt", 100+i)); err != nil {
			t.Fatal(err)
		}
	}

	stubs, err := client.Listing(ctx, "qc/TPC/MO/Tracks", nil, true)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(stubs) != 1 || stubs[0].RunNumber != 102 {
		t.Errorf("stubs = %+v", stubs)
	}

	all, err := client.Listing(ctx, "qc/TPC/MO/Tracks", nil, false)
	if err != nil || len(all) != 3 {
		t.Errorf("all = %d, err = %v", len(all), err)
	}
}

func TestClientServerLatestValidity(t *testing.T) {
	_, client := newTestPair(t)
	ctx := context.Background()

	mo := testMO("hRef", 55)
	mo.Validity = core.NewValidityInterval(7000, 8000)
	if err := client.StoreMO(ctx, mo); err != nil {
		t.Fatal(err)
	}
	v, err := client.GetLatestObjectValidity(ctx, "qc/TPC/MO/Tracks/hRef", nil)
	if err != nil {
		t.Fatal(err)
	}
	if v.Min != 7000 || v.Max != 8000 {
		t.Errorf("validity = %v", v)
	}
}

func TestClientServerRaw(t *testing.T) {
	_, client := newTestPair(t)
	ctx := context.Background()

	_ = client.StoreMO(ctx, testMO("hPt", 9))
	payload, md, err := client.RetrieveRaw(ctx, "qc/TPC/MO/Tracks/hPt", TimestampLatest, nil)
	if err != nil {
		t.Fatalf("raw: %v", err)
	}
	obj, err := histo.Decode(payload)
	if err != nil {
		t.Fatalf("raw payload should be a codec envelope: %v", err)
	}
	if obj.GetName() != "hPt" {
		t.Error("payload name lost")
	}
	if md[core.MetaObjectType] != "MonitorObject" {
		t.Errorf("ObjectType = %q", md[core.MetaObjectType])
	}
}

func TestServerRejectsBadPath(t *testing.T) {
	store := openTestStore(t)
	srv := httptest.NewServer(NewServer(store, nil).Handler())
	t.Cleanup(srv.Close)

	cases := []string{
		"/api/v1/object/qc/TPC/../../etc/passwd",
		"/api/v1/object/qc/TPC/MO/h%3Bdrop",
	}
	for _, path := range cases {
		resp, err := srv.Client().Get(srv.URL + path)
		if err != nil {
			t.Fatalf("get %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != 400 {
			t.Errorf("GET %s status = %d, want 400", path, resp.StatusCode)
		}
	}
}
