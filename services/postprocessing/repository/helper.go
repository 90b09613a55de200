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
	"strconv"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
)

// ObjectHelper memoizes per-source fetch progress so that consumers never
// process the same object version twice. Update succeeds only when the
// fetched object's Created stamp strictly exceeds both the task start time
// (when RequireNew is set) and the last accepted stamp; state is unchanged
// on failure.
//
// Thread Safety: not safe for concurrent use; one helper per source per task.
type ObjectHelper struct {
	Path string
	Name string

	// TimeStart is the task start in ms; objects created at or before it
	// are ignored when RequireNew is set.
	TimeStart int64

	// RequireNew enforces Created > TimeStart on every update.
	RequireNew bool

	// lastTimeStamp is the Created of the last accepted object.
	lastTimeStamp int64

	object *core.MonitorObject
}

// NewObjectHelper tracks the object at path/name for a task started at
// timeStart ms.
func NewObjectHelper(path, name string, timeStart int64) *ObjectHelper {
	return &ObjectHelper{Path: path, Name: name, TimeStart: timeStart, RequireNew: true}
}

// Update fetches the object at ts and accepts it when its Created stamp is
// fresh. It returns false on NOT_FOUND, on a stale stamp, and on any
// retrieval error; the cached object and stamp survive a failed update.
func (h *ObjectHelper) Update(ctx context.Context, db Database, ts int64, activity core.Activity) bool {
	mo, err := db.RetrieveMO(ctx, h.Path, h.Name, ts, activity, nil)
	if err != nil || mo == nil {
		return false
	}
	created := mo.CreatedTimestamp()
	if h.RequireNew && created <= h.TimeStart {
		return false
	}
	if created <= h.lastTimeStamp {
		return false
	}
	h.lastTimeStamp = created
	h.object = mo
	return true
}

// Object returns the last accepted monitor object, nil before any success.
func (h *ObjectHelper) Object() *core.MonitorObject { return h.object }

// Payload returns the cached payload viewed as T, or the zero value and
// false when nothing is cached or the type does not match.
func Payload[T any](h *ObjectHelper) (T, bool) {
	var zero T
	if h.object == nil {
		return zero, false
	}
	v, ok := h.object.Payload.(T)
	if !ok {
		return zero, false
	}
	return v, ok
}

// LastTimeStamp returns the Created stamp of the last accepted object.
func (h *ObjectHelper) LastTimeStamp() int64 { return h.lastTimeStamp }

// QualityHelper is the quality-object analogue of ObjectHelper: it tracks a
// verdict at a full path and accepts only strictly newer versions.
type QualityHelper struct {
	FullPath string

	TimeStart  int64
	RequireNew bool

	lastTimeStamp int64
	object        *core.QualityObject
}

// NewQualityHelper tracks the verdict at fullPath for a task started at
// timeStart ms.
func NewQualityHelper(fullPath string, timeStart int64) *QualityHelper {
	return &QualityHelper{FullPath: fullPath, TimeStart: timeStart, RequireNew: true}
}

// Update fetches the verdict at ts, applying the same freshness rules as
// ObjectHelper.Update.
func (h *QualityHelper) Update(ctx context.Context, db Database, ts int64, activity core.Activity) bool {
	qo, err := db.RetrieveQO(ctx, h.FullPath, ts, activity, nil)
	if err != nil || qo == nil {
		return false
	}
	created := createdOf(qo.Metadata)
	if h.RequireNew && created <= h.TimeStart {
		return false
	}
	if created <= h.lastTimeStamp {
		return false
	}
	h.lastTimeStamp = created
	h.object = qo
	return true
}

// Quality returns the last accepted verdict, Null before any success.
func (h *QualityHelper) Quality() core.Quality {
	if h.object == nil {
		return core.QualityNull
	}
	return h.object.Quality
}

// Object returns the last accepted quality object, nil before any success.
func (h *QualityHelper) Object() *core.QualityObject { return h.object }

func createdOf(md map[string]string) int64 {
	n, err := strconv.ParseInt(md[core.MetaCreated], 10, 64)
	if err != nil {
		return 0
	}
	return n
}
