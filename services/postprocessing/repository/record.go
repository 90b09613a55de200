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
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
)

// Object type tags stored under the ObjectType metadata key.
const (
	objectTypeMO = "MonitorObject"
	objectTypeQO = "QualityObject"
)

// objectRecord is the stored form of one object version, shared by the
// embedded store and the dev server.
type objectRecord struct {
	Payload    json.RawMessage   `json:"payload"`
	Metadata   map[string]string `json:"metadata"`
	ValidFrom  int64             `json:"validFrom"`
	ValidUntil int64             `json:"validUntil"`
	Created    int64             `json:"created"`
}

func (r *objectRecord) validity() core.ValidityInterval {
	return core.NewValidityInterval(r.ValidFrom, r.ValidUntil)
}

// coversOrLatest reports whether this record satisfies the ts selector.
func (r *objectRecord) covers(ts int64) bool {
	if ts == TimestampLatest {
		return true
	}
	return r.validity().Contains(ts)
}

// stamp finalizes a record at store time: assigns Created, defaults the
// validity window and computes the payload checksum.
func (r *objectRecord) stamp(now int64) {
	r.Created = now
	if r.ValidUntil <= r.ValidFrom {
		if r.ValidFrom == 0 {
			r.ValidFrom = now
		}
		r.ValidUntil = r.ValidFrom + defaultObjectValidity
	}
	if r.Metadata == nil {
		r.Metadata = map[string]string{}
	}
	sum := md5.Sum(r.Payload)
	r.Metadata[core.MetaContentMD5] = hex.EncodeToString(sum[:])
	r.Metadata[core.MetaCreated] = strconv.FormatInt(now, 10)
	r.Metadata[core.MetaValidFrom] = strconv.FormatInt(r.ValidFrom, 10)
	r.Metadata[core.MetaValidUntil] = strconv.FormatInt(r.ValidUntil, 10)
}

func (r *objectRecord) stub(path string) ObjectStub {
	run, _ := strconv.Atoi(r.Metadata[core.MetaRunNumber])
	return ObjectStub{
		Path:       path,
		ValidFrom:  r.ValidFrom,
		ValidUntil: r.ValidUntil,
		Created:    r.Created,
		RunNumber:  run,
		Metadata:   r.Metadata,
	}
}

// recordFromMO encodes a monitor object into its stored form. The payload
// travels as a codec envelope; identity and activity go into metadata.
func recordFromMO(mo *core.MonitorObject) (*objectRecord, error) {
	payload, ok := mo.Payload.(histo.Object)
	if !ok {
		return nil, fmt.Errorf("payload %T is not storable: %w", mo.Payload, core.ErrSchema)
	}
	data, err := histo.Encode(payload)
	if err != nil {
		return nil, err
	}
	md := core.MergeMetadata(nil, mo.Metadata)
	md = core.MergeMetadata(md, mo.Activity.ToMetadata(false))
	md[core.MetaObjectType] = objectTypeMO
	md[core.MetaDetectorName] = mo.DetectorName
	md[core.MetaTaskName] = mo.TaskName
	if mo.TaskClass != "" {
		md[core.MetaTaskClass] = mo.TaskClass
	}
	return &objectRecord{
		Payload:    data,
		Metadata:   md,
		ValidFrom:  mo.Validity.Min,
		ValidUntil: mo.Validity.Max,
	}, nil
}

// moFromRecord rebuilds a monitor object from its stored form.
func moFromRecord(path string, rec *objectRecord) (*core.MonitorObject, error) {
	payload, err := histo.Decode(rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSchema, err)
	}
	provenance := strings.SplitN(path, "/", 2)[0]
	mo := &core.MonitorObject{
		Payload:      payload,
		TaskName:     rec.Metadata[core.MetaTaskName],
		TaskClass:    rec.Metadata[core.MetaTaskClass],
		DetectorName: rec.Metadata[core.MetaDetectorName],
		Activity:     core.ActivityFromMetadata(rec.Metadata, provenance),
		Validity:     rec.validity(),
		Metadata:     rec.Metadata,
		IsOwner:      true,
	}
	return mo, nil
}

// qoWire is the stored payload of a quality object.
type qoWire struct {
	Quality   core.Quality `json:"quality"`
	CheckName string       `json:"checkName"`
	MOName    string       `json:"moName,omitempty"`
	Inputs    []string     `json:"inputs,omitempty"`
}

// recordFromQO encodes a quality object into its stored form.
func recordFromQO(qo *core.QualityObject) (*objectRecord, error) {
	ok, _, leaf := core.SplitObjectPath(qo.FullPath())
	moName := ""
	if ok && leaf != qo.CheckName {
		moName = leaf
	}
	data, err := json.Marshal(qoWire{
		Quality:   qo.Quality,
		CheckName: qo.CheckName,
		MOName:    moName,
		Inputs:    qo.Inputs,
	})
	if err != nil {
		return nil, err
	}
	md := core.MergeMetadata(nil, qo.Metadata)
	md = core.MergeMetadata(md, qo.Activity.ToMetadata(false))
	md[core.MetaObjectType] = objectTypeQO
	md[core.MetaDetectorName] = qo.DetectorName
	md[core.MetaCheckName] = qo.CheckName
	md[core.MetaQuality] = qo.Quality.Name()
	return &objectRecord{
		Payload:    data,
		Metadata:   md,
		ValidFrom:  qo.Validity.Min,
		ValidUntil: qo.Validity.Max,
	}, nil
}

// qoFromRecord rebuilds a quality object from its stored form.
func qoFromRecord(path string, rec *objectRecord) (*core.QualityObject, error) {
	var wire qoWire
	if err := json.Unmarshal(rec.Payload, &wire); err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSchema, err)
	}
	provenance := strings.SplitN(path, "/", 2)[0]
	qo := &core.QualityObject{
		Quality:      wire.Quality,
		CheckName:    wire.CheckName,
		DetectorName: rec.Metadata[core.MetaDetectorName],
		Inputs:       wire.Inputs,
		Activity:     core.ActivityFromMetadata(rec.Metadata, provenance),
		Validity:     rec.validity(),
		Metadata:     rec.Metadata,
	}
	if wire.MOName != "" {
		qo.SetMonitorObjectName(wire.MOName)
	}
	return qo, nil
}

func encodeRecord(rec *objectRecord) ([]byte, error) {
	return json.Marshal(rec)
}

func decodeRecord(data []byte) (*objectRecord, error) {
	rec := &objectRecord{}
	if err := json.Unmarshal(data, rec); err != nil {
		return nil, fmt.Errorf("decoding object record: %w", err)
	}
	return rec, nil
}

// matchesFilter applies the metadata filter and activity template to a
// stored record.
func (r *objectRecord) matchesFilter(activity core.Activity, metadata map[string]string, provenance string) bool {
	if !core.MetadataMatches(r.Metadata, metadata) {
		return false
	}
	stored := core.ActivityFromMetadata(r.Metadata, provenance)
	// The template's validity scopes the query in time via ts, not here.
	tmpl := activity
	tmpl.Validity = core.InvalidValidityInterval()
	return tmpl.Matches(stored)
}
