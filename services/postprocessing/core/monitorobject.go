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

import (
	"fmt"
	"strconv"
)

// Named is implemented by payloads that know their own name. Histograms,
// graphs and canvases all do.
type Named interface {
	GetName() string
}

// MonitorObject wraps an opaque payload (histogram, canvas, quality verdict)
// together with the task that produced it and the activity it belongs to.
//
// Thread Safety: not safe for concurrent mutation. Objects flow through
// fetch, reduce and publish stages sequentially within a task.
type MonitorObject struct {
	Payload      any               `json:"payload"`
	name         string            // overrides the payload name when set
	TaskName     string            `json:"taskName"`
	TaskClass    string            `json:"taskClass,omitempty"`
	DetectorName string            `json:"detectorName"`
	Activity     Activity          `json:"activity"`
	Validity     ValidityInterval  `json:"validity"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	// IsOwner marks whether this wrapper is responsible for the payload's
	// lifetime. Shared payloads (e.g. a tree re-published every cycle) set
	// it false so a republish does not invalidate the producer's copy.
	IsOwner bool `json:"-"`
}

// NewMonitorObject wraps payload for the given task and detector. The
// wrapper takes ownership.
func NewMonitorObject(payload any, taskName, taskClass, detector string) *MonitorObject {
	return &MonitorObject{
		Payload:      payload,
		TaskName:     taskName,
		TaskClass:    taskClass,
		DetectorName: detector,
		Metadata:     map[string]string{},
		IsOwner:      true,
	}
}

// GetName returns the explicit name when one was set, otherwise the
// payload's own name.
func (mo *MonitorObject) GetName() string {
	if mo.name != "" {
		return mo.name
	}
	if n, ok := mo.Payload.(Named); ok {
		return n.GetName()
	}
	return ""
}

// SetName overrides the payload-derived name.
func (mo *MonitorObject) SetName(name string) { mo.name = name }

// Path returns the canonical store path of this object, without the leaf
// name: qc/<detector>/MO/<task>.
func (mo *MonitorObject) Path() string {
	return MOPath(mo.DetectorName, mo.TaskName)
}

// FullPath returns Path()/name.
func (mo *MonitorObject) FullPath() string {
	return mo.Path() + "/" + mo.GetName()
}

// AddMetadata sets a metadata key, creating the map if needed.
func (mo *MonitorObject) AddMetadata(key, value string) {
	if mo.Metadata == nil {
		mo.Metadata = map[string]string{}
	}
	mo.Metadata[key] = value
}

// UpdateValidity widens the validity to include ts.
func (mo *MonitorObject) UpdateValidity(ts int64) {
	mo.Validity = mo.Validity.Update(ts)
}

// CreatedTimestamp returns the store-assigned creation time in ms, or 0 when
// the object has never been stored.
func (mo *MonitorObject) CreatedTimestamp() int64 {
	n, err := strconv.ParseInt(mo.Metadata[MetaCreated], 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func (mo *MonitorObject) String() string {
	return fmt.Sprintf("MO %s (task %s, detector %s, run %d)",
		mo.GetName(), mo.TaskName, mo.DetectorName, mo.Activity.ID)
}

// QualityObject is a quality verdict stored like a monitor object, produced
// by a check and scoped to the monitor objects it inspected.
type QualityObject struct {
	Quality      Quality           `json:"quality"`
	CheckName    string            `json:"checkName"`
	DetectorName string            `json:"detectorName"`
	// Inputs lists the full paths of the monitor objects the check saw.
	Inputs   []string          `json:"inputs,omitempty"`
	Activity Activity          `json:"activity"`
	Validity ValidityInterval  `json:"validity"`
	Metadata map[string]string `json:"metadata,omitempty"`
	// moName is set when the verdict applies to a single monitor object of
	// a check that emits one verdict per object.
	moName string
}

// NewQualityObject builds a verdict container for the given check.
func NewQualityObject(q Quality, checkName, detector string) *QualityObject {
	return &QualityObject{
		Quality:      q,
		CheckName:    checkName,
		DetectorName: detector,
		Metadata:     map[string]string{},
	}
}

// SetMonitorObjectName scopes the verdict to a single monitor object; the
// name becomes part of the store path.
func (qo *QualityObject) SetMonitorObjectName(name string) { qo.moName = name }

// GetName returns the check name, suffixed with the per-object scope if set.
func (qo *QualityObject) GetName() string {
	if qo.moName != "" {
		return qo.CheckName + "/" + qo.moName
	}
	return qo.CheckName
}

// Path returns qc/<detector>/QO[/<check>[/<moName>]] without the leaf.
func (qo *QualityObject) Path() string {
	return QOPath(qo.DetectorName)
}

// FullPath returns the complete store path of the verdict.
func (qo *QualityObject) FullPath() string {
	return qo.Path() + "/" + qo.GetName()
}

func (qo *QualityObject) String() string {
	return fmt.Sprintf("QO %s: %s", qo.GetName(), qo.Quality.Name())
}
