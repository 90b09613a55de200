// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package repository is the object-store facade: versioned storage and
// retrieval of monitor objects and quality objects under canonical paths,
// with activity-scoped matching. Two implementations exist, an embedded
// BadgerDB store and an HTTP client speaking the store wire contract; a gin
// server exposes the embedded store over the same contract.
package repository

import (
	"context"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
)

// TimestampLatest selects the most recently created matching object instead
// of a validity lookup.
const TimestampLatest int64 = -1

// defaultObjectValidity is applied when a stored object carries no explicit
// validity: ten years from creation.
const defaultObjectValidity int64 = 10 * 365 * 24 * 3600 * 1000

// ObjectStub summarizes one stored object version in a listing.
type ObjectStub struct {
	Path       string            `json:"path"`
	ValidFrom  int64             `json:"validFrom"`
	ValidUntil int64             `json:"validUntil"`
	Created    int64             `json:"created"`
	RunNumber  int               `json:"runNumber,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Database is the object-store facade. Retrievals return the object whose
// validity contains ts and whose stored activity matches the template
// (empty fields act as wildcards); among several matches the most recently
// created wins. Freshness is the caller's concern: retrieval returns what
// it finds and helpers like ObjectHelper decide whether it is new enough.
//
// All operations fail with core.ErrNotFound when nothing matches.
type Database interface {
	// RetrieveMO fetches the monitor object at path/name.
	RetrieveMO(ctx context.Context, path, name string, ts int64, activity core.Activity, metadata map[string]string) (*core.MonitorObject, error)

	// RetrieveQO fetches the quality object at fullPath.
	RetrieveQO(ctx context.Context, fullPath string, ts int64, activity core.Activity, metadata map[string]string) (*core.QualityObject, error)

	// GetLatestObjectValidity returns the validity of the most recent
	// object at fullPath matching the metadata filter; invalid if none.
	GetLatestObjectValidity(ctx context.Context, fullPath string, metadata map[string]string) (core.ValidityInterval, error)

	// StoreMO persists a monitor object, deriving store metadata from its
	// activity and class. The store assigns Created and Content-MD5.
	StoreMO(ctx context.Context, mo *core.MonitorObject) error

	// StoreQO persists a quality object.
	StoreQO(ctx context.Context, qo *core.QualityObject) error

	// RetrieveRaw fetches the undecoded payload and full metadata of the
	// object at fullPath, for consumers that inspect arbitrary types.
	RetrieveRaw(ctx context.Context, fullPath string, ts int64, metadata map[string]string) ([]byte, map[string]string, error)

	// Listing enumerates stored versions at fullPath and below. With
	// latestOnly, only the newest version per distinct path is returned.
	Listing(ctx context.Context, path string, metadata map[string]string, latestOnly bool) ([]ObjectStub, error)

	// Close releases the underlying resources.
	Close() error
}
