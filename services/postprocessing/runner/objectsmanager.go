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
	"log/slog"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/repository"
)

// PublicationPolicy governs the validity a published object receives.
type PublicationPolicy int

const (
	// PolicyOnce publishes with the default forward validity; each
	// republish supersedes the previous version. Used for plots.
	PolicyOnce PublicationPolicy = iota

	// PolicyThroughStop keeps the object valid until the task stops: on
	// Stop the manager republishes it with validity ending at the stop
	// timestamp. Used for trend trees.
	PolicyThroughStop

	// PolicyForever publishes once with the default forward validity and
	// never adjusts it.
	PolicyForever
)

func (p PublicationPolicy) String() string {
	switch p {
	case PolicyThroughStop:
		return "ThroughStop"
	case PolicyForever:
		return "Forever"
	default:
		return "Once"
	}
}

// ObjectsManager publishes task output to the object store, applying the
// publication policy to each object's validity.
//
// Thread Safety: not safe for concurrent use; the driver publishes from the
// task's goroutine only.
type ObjectsManager struct {
	db     repository.Database
	logger *slog.Logger

	// tracked holds the ThroughStop objects for the final republish.
	tracked []*core.MonitorObject
}

// NewObjectsManager builds a manager over the given store.
func NewObjectsManager(db repository.Database, logger *slog.Logger) *ObjectsManager {
	return &ObjectsManager{db: db, logger: logger}
}

// Publish stores mo with validity starting at the trigger timestamp. The
// caller keeps ownership of the payload; the stored copy is independent.
func (m *ObjectsManager) Publish(ctx context.Context, mo *core.MonitorObject, t Trigger, policy PublicationPolicy) error {
	if !mo.Validity.IsValid() {
		// Open-ended start; the store applies its default forward window.
		mo.Validity = core.ValidityInterval{Min: t.Timestamp}
	}
	if mo.Activity.ID == 0 {
		mo.Activity = t.Activity
	}
	if err := m.db.StoreMO(ctx, mo); err != nil {
		m.logger.Error("publish failed",
			slog.String("object", mo.FullPath()),
			slog.String("error", err.Error()))
		return err
	}
	publicationsTotal.WithLabelValues(mo.TaskName).Inc()
	m.logger.Debug("object published",
		slog.String("object", mo.FullPath()),
		slog.String("policy", policy.String()))
	if policy == PolicyThroughStop {
		m.track(mo)
	}
	return nil
}

func (m *ObjectsManager) track(mo *core.MonitorObject) {
	for i, t := range m.tracked {
		if t.FullPath() == mo.FullPath() {
			m.tracked[i] = mo
			return
		}
	}
	m.tracked = append(m.tracked, mo)
}

// SetDefaultDrawOptions records draw options as metadata on a tracked
// object unless the producer already set its own. Display layers read the
// key back from the store.
func (m *ObjectsManager) SetDefaultDrawOptions(name, options string) {
	m.setDefaultMeta(name, core.MetaDrawOptions, options)
}

// SetDefaultDisplayHint records a display hint (log scale, grid, ...) as
// metadata on a tracked object unless one is already present.
func (m *ObjectsManager) SetDefaultDisplayHint(name, hint string) {
	m.setDefaultMeta(name, core.MetaDisplayHint, hint)
}

func (m *ObjectsManager) setDefaultMeta(name, key, value string) {
	for _, mo := range m.tracked {
		if mo.GetName() != name {
			continue
		}
		if _, ok := mo.Metadata[key]; !ok {
			mo.AddMetadata(key, value)
		}
		return
	}
}

// StopPublishing drops a ThroughStop object from tracking by name, so
// Stop no longer republishes it.
func (m *ObjectsManager) StopPublishing(name string) {
	for i, mo := range m.tracked {
		if mo.GetName() == name {
			m.tracked = append(m.tracked[:i], m.tracked[i+1:]...)
			return
		}
	}
}

// Stop finalizes ThroughStop objects: each is republished with validity
// ending at the stop trigger so it stops superseding after the task ends.
func (m *ObjectsManager) Stop(ctx context.Context, t Trigger) {
	for _, mo := range m.tracked {
		mo.Validity = core.NewValidityInterval(mo.Validity.Min, t.Timestamp)
		if !mo.Validity.IsValid() {
			mo.Validity = core.NewValidityInterval(t.Timestamp-1, t.Timestamp)
		}
		if err := m.db.StoreMO(ctx, mo); err != nil {
			m.logger.Warn("final republish failed",
				slog.String("object", mo.FullPath()),
				slog.String("error", err.Error()))
		}
	}
	m.tracked = nil
}
