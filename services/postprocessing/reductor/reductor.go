// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package reductor

import (
	"context"

	"github.com/AleutianAI/qcpost/services/postprocessing/registry"
	"github.com/AleutianAI/qcpost/services/postprocessing/repository"
)

// Reductor collapses an input into a fixed-schema scalar record. The schema
// is declared once via the leaf list and must not change over the instance's
// lifetime; Values returns the current record flattened in leaf order, with
// array leaves expanded. Updates are idempotent in the value written.
type Reductor interface {
	// BranchLeafList declares the record schema.
	BranchLeafList() string

	// Values returns the current record, one slot per scalar.
	Values() []float64
}

// ObjectReductor is the sub-kind operating on fetched objects: histograms,
// canvases and quality verdicts.
type ObjectReductor interface {
	Reductor

	// Update recomputes the record from the input object. It fails with
	// core.ErrSchema when the payload is not of the expected type.
	Update(obj any) error
}

// ConditionReductor is the sub-kind operating on stored condition objects,
// fetching them itself through the store accessor.
type ConditionReductor interface {
	Reductor

	// UpdateCondition recomputes the record from the condition at fullPath.
	UpdateCondition(ctx context.Context, db repository.Database, ts int64, fullPath string) error
}

// SliceRecord is one slice of a sliced reduction: named scalar fields plus
// the slice's axis label and bounds.
type SliceRecord struct {
	Fields  map[string]float64
	LabelX  string
	LabelY  string
	BoundsX [2]float64
	BoundsY [2]float64
}

// Field returns the named scalar, 0 when absent.
func (s SliceRecord) Field(name string) float64 { return s.Fields[name] }

// SliceReductor is the sub-kind producing one record per configured axis
// slice instead of a single record.
type SliceReductor interface {
	Reductor

	// UpdateSliced recomputes the per-slice records. axisX and axisY are
	// division edges; an empty axis means no slicing along it.
	UpdateSliced(obj any, axisX, axisY []float64) error

	// Slices returns the current per-slice records in slice order.
	Slices() []SliceRecord
}

// Registry holds every registered reductor class. Built-ins live in the
// "common" module; detector modules register from their init functions.
var Registry = registry.New[Reductor]("reductor")

// New instantiates a reductor class. It fails with core.ErrLoadModule or
// core.ErrResolveClass.
func New(module, class string) (Reductor, error) {
	return Registry.Create(module, class)
}
