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

// Activity identifies a data-taking context: the run it belongs to and the
// production it is part of. A zero value in any field acts as a wildcard
// when matching.
type Activity struct {
	// ID is the run number. 0 matches any run.
	ID int `json:"id"`
	// Type is the run type, e.g. "PHYSICS" or "TECHNICAL". 0 is "NONE".
	Type int `json:"type"`
	// PeriodName is the data-taking period, e.g. "LHC32x".
	PeriodName string `json:"periodName"`
	// PassName is the reconstruction pass, e.g. "apass2".
	PassName string `json:"passName"`
	// Provenance is the data source, "qc" for regular quality-control data.
	Provenance string `json:"provenance"`
	// ValidityInterval is the wall-clock span the activity covers.
	Validity ValidityInterval `json:"validity"`
	// BeamType is e.g. "pp" or "PbPb".
	BeamType string `json:"beamType"`
	// PartitionName identifies the ECS partition, e.g. "physics_1".
	PartitionName string `json:"partitionName"`
	// FillNumber is the LHC fill. 0 matches any fill.
	FillNumber int `json:"fillNumber"`
}

// NewActivity returns an activity with the given run and the "qc" provenance.
func NewActivity(runNumber int) Activity {
	return Activity{ID: runNumber, Provenance: "qc"}
}

// Matches reports whether the other activity is compatible with this one.
// Empty or zero fields on the receiver act as wildcards; validity intervals
// match when they overlap. The relation is not symmetric: a concrete
// activity matched against a wildcard template succeeds, not the reverse.
func (a Activity) Matches(other Activity) bool {
	matchField := func(mine, theirs string) bool {
		return mine == "" || mine == theirs
	}
	if a.ID != 0 && a.ID != other.ID {
		return false
	}
	if a.Type != 0 && a.Type != other.Type {
		return false
	}
	if !matchField(a.PeriodName, other.PeriodName) ||
		!matchField(a.PassName, other.PassName) ||
		!matchField(a.Provenance, other.Provenance) ||
		!matchField(a.BeamType, other.BeamType) ||
		!matchField(a.PartitionName, other.PartitionName) {
		return false
	}
	if a.FillNumber != 0 && a.FillNumber != other.FillNumber {
		return false
	}
	if a.Validity.IsValid() && other.Validity.IsValid() &&
		!a.Validity.Overlap(other.Validity).IsValid() {
		return false
	}
	return true
}

// Same reports whether the two activities carry identical identity fields,
// ignoring validity.
func (a Activity) Same(other Activity) bool {
	return a.ID == other.ID &&
		a.Type == other.Type &&
		a.PeriodName == other.PeriodName &&
		a.PassName == other.PassName &&
		a.Provenance == other.Provenance &&
		a.BeamType == other.BeamType &&
		a.PartitionName == other.PartitionName &&
		a.FillNumber == other.FillNumber
}

func (a Activity) String() string {
	return fmt.Sprintf("run=%d period=%s pass=%s provenance=%s validity=%s",
		a.ID, a.PeriodName, a.PassName, a.Provenance, a.Validity)
}

// Metadata keys used when an activity is flattened into object metadata.
const (
	MetaRunNumber     = "RunNumber"
	MetaRunType       = "RunType"
	MetaPeriodName    = "PeriodName"
	MetaPassName      = "PassName"
	MetaProvenance    = "Provenance" // not stored; part of the path
	MetaBeamType      = "BeamType"
	MetaPartitionName = "PartitionName"
	MetaFillNumber    = "FillNumber"
)

// ToMetadata flattens the activity into string key-value pairs. Without
// putDefault, zero and empty fields are skipped so that a later
// FromMetadata treats them as wildcards again; metadata filters depend on
// that. With putDefault every key is emitted, zeros included, and a valid
// validity interval travels as Valid-From/Valid-Until, making the
// conversion lossless. Provenance travels in the object path, not the
// metadata.
func (a Activity) ToMetadata(putDefault bool) map[string]string {
	md := map[string]string{}
	putInt := func(key string, v int) {
		if putDefault || v != 0 {
			md[key] = strconv.Itoa(v)
		}
	}
	putStr := func(key, v string) {
		if putDefault || v != "" {
			md[key] = v
		}
	}
	putInt(MetaRunNumber, a.ID)
	putInt(MetaRunType, a.Type)
	putStr(MetaPeriodName, a.PeriodName)
	putStr(MetaPassName, a.PassName)
	putStr(MetaBeamType, a.BeamType)
	putStr(MetaPartitionName, a.PartitionName)
	putInt(MetaFillNumber, a.FillNumber)
	if putDefault && a.Validity.IsValid() {
		md[MetaValidFrom] = strconv.FormatInt(a.Validity.Min, 10)
		md[MetaValidUntil] = strconv.FormatInt(a.Validity.Max, 10)
	}
	return md
}

// ActivityFromMetadata rebuilds an activity from object metadata. Missing or
// malformed numeric keys become zero, i.e. wildcards. Provenance is supplied
// by the caller since it lives in the object path.
func ActivityFromMetadata(md map[string]string, provenance string) Activity {
	atoi := func(key string) int {
		n, err := strconv.Atoi(md[key])
		if err != nil {
			return 0
		}
		return n
	}
	a := Activity{
		ID:            atoi(MetaRunNumber),
		Type:          atoi(MetaRunType),
		PeriodName:    md[MetaPeriodName],
		PassName:      md[MetaPassName],
		Provenance:    provenance,
		BeamType:      md[MetaBeamType],
		PartitionName: md[MetaPartitionName],
		FillNumber:    atoi(MetaFillNumber),
	}
	from, errFrom := strconv.ParseInt(md[MetaValidFrom], 10, 64)
	until, errUntil := strconv.ParseInt(md[MetaValidUntil], 10, 64)
	if errFrom == nil && errUntil == nil {
		a.Validity = ValidityInterval{Min: from, Max: until}
	}
	return a
}
