// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package refcomp

import (
	"context"
	"fmt"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
	"github.com/AleutianAI/qcpost/services/postprocessing/repository"
)

// ComparatorSpec picks a comparator class for one or all monitor objects.
type ComparatorSpec struct {
	ModuleName     string `yaml:"moduleName"`
	ComparatorName string `yaml:"comparatorName"`

	// Threshold tunes threshold-style comparators; zero keeps the class
	// default.
	Threshold float64 `yaml:"threshold"`
}

// CheckConfig configures a reference check.
type CheckConfig struct {
	// Default is used for objects without a dedicated spec.
	Default ComparatorSpec `yaml:"default"`

	// PerObject overrides the comparator per monitor object name.
	PerObject map[string]ComparatorSpec `yaml:"perObject"`

	// ReferenceRun and ReferencePath resolve references for raw
	// histogram inputs that do not carry one on a canvas.
	ReferenceRun  int    `yaml:"referenceRun"`
	ReferencePath string `yaml:"referencePath"`
}

// Check grades monitor objects against their references through plug-in
// comparators, one instance per object name.
type Check struct {
	cfg         CheckConfig
	db          repository.Database
	comparators map[string]Comparator
}

// NewCheck builds a check. Comparator classes resolve lazily at first use,
// so a misconfigured override only fails the objects it names.
func NewCheck(cfg CheckConfig, db repository.Database) *Check {
	if cfg.Default.ComparatorName == "" {
		cfg.Default = ComparatorSpec{ComparatorName: "RelativeDeviationComparator"}
	}
	return &Check{cfg: cfg, db: db, comparators: map[string]Comparator{}}
}

func (spec ComparatorSpec) module() string {
	if spec.ModuleName == "" {
		return "common"
	}
	return spec.ModuleName
}

// comparatorFor resolves and caches the comparator bound to an object name.
func (c *Check) comparatorFor(name string) (Comparator, error) {
	if comp, ok := c.comparators[name]; ok {
		return comp, nil
	}
	spec, ok := c.cfg.PerObject[name]
	if !ok {
		spec = c.cfg.Default
	}
	comp, err := Comparators.Create(spec.module(), spec.ComparatorName)
	if err != nil {
		return nil, err
	}
	if spec.Threshold > 0 {
		if rd, isRD := comp.(*RelativeDeviationComparator); isRD {
			rd.Threshold = spec.Threshold
		}
	}
	c.comparators[name] = comp
	return comp, nil
}

// CheckObject grades one monitor object. Canvas inputs carry current and
// reference on their pads; raw histogram inputs get their reference fetched
// from the configured reference path and run.
func (c *Check) CheckObject(ctx context.Context, mo *core.MonitorObject, activity core.Activity) (core.Quality, error) {
	name := mo.GetName()
	comp, err := c.comparatorFor(name)
	if err != nil {
		return core.QualityNull, err
	}

	var current, reference *histo.Histogram
	switch payload := mo.Payload.(type) {
	case *histo.Canvas:
		current, reference = extractPair(payload, name)
	case *histo.Histogram:
		current = payload
		reference, err = c.fetchReference(ctx, name, activity)
		if err != nil {
			return core.QualityNull, err
		}
	default:
		return core.QualityNull, fmt.Errorf("payload %T is not comparable: %w", mo.Payload, core.ErrSchema)
	}

	quality, message := comp.Compare(current, reference)
	if message != "" {
		quality = quality.AddFlag("comparison", message)
	}
	quality.SetMetadata(core.MetaRunNumber, fmt.Sprint(activity.ID))
	return quality, nil
}

// CheckAll grades a batch and aggregates the overall verdict as the worst
// of the per-object ones.
func (c *Check) CheckAll(ctx context.Context, mos []*core.MonitorObject, activity core.Activity) (core.Quality, map[string]core.Quality) {
	overall := core.QualityNull
	perObject := map[string]core.Quality{}
	for _, mo := range mos {
		q, err := c.CheckObject(ctx, mo, activity)
		if err != nil {
			q = core.QualityNull.AddFlag("comparison", err.Error())
		}
		perObject[mo.GetName()] = q
		overall = core.WorstOf(overall, q)
	}
	return overall, perObject
}

// Beautify annotates a comparison canvas with the verdict: a colored label,
// the reference drawn in the verdict color, and an arrow over the range of
// interest when the comparator advertises one.
func (c *Check) Beautify(canvas *histo.Canvas, quality core.Quality) {
	name := canvas.GetName()
	color := QualityColor(quality)

	label := &histo.PaveLabel{
		Name:      name + "_quality",
		Text:      "Quality: " + quality.Name(),
		TextColor: color,
	}
	if pad := canvas.GetPad(name + PadRatioSuffix); pad != nil {
		replaceObject(pad, label)
	} else if len(canvas.Pads) > 0 {
		replaceObject(canvas.Pads[0], label)
	}

	if pad := canvas.GetPad(name + PadHistSuffix); pad != nil {
		if ref, ok := pad.FindObject(name + HistRefSuffix).(*histo.Histogram); ok {
			ref.LineColor = color
		}
	}

	comp, ok := c.comparators[name]
	if !ok {
		return
	}
	if ra, advertises := comp.(RangeAdvertiser); advertises {
		if bounds, interesting := ra.RangeOfInterest(); interesting {
			if pad := canvas.GetPad(name + PadRatioSuffix); pad != nil {
				replaceObject(pad, &histo.Arrow{
					Name:  name + "_interest",
					X1:    bounds[0],
					X2:    bounds[1],
					Y1:    1,
					Y2:    1,
					Color: color,
				})
			}
		}
	}
}

// extractPair pulls the current and reference histograms off a comparison
// canvas by the naming conventions of the comparator task.
func extractPair(canvas *histo.Canvas, name string) (*histo.Histogram, *histo.Histogram) {
	var current, reference *histo.Histogram
	for _, pad := range canvas.Pads {
		if h, ok := pad.FindObject(name + HistSuffix).(*histo.Histogram); ok {
			current = h
		}
		if h, ok := pad.FindObject(name + HistRefSuffix).(*histo.Histogram); ok {
			reference = h
		}
	}
	return current, reference
}

// fetchReference resolves the reference for a raw histogram input through
// the same latest-validity lookup the comparator task uses.
func (c *Check) fetchReference(ctx context.Context, name string, activity core.Activity) (*histo.Histogram, error) {
	refActivity := activity
	refActivity.ID = c.cfg.ReferenceRun
	refActivity.Validity = core.ValidityInterval{}

	fullPath := c.cfg.ReferencePath + "/" + name
	validity, err := c.db.GetLatestObjectValidity(ctx, fullPath, refActivity.ToMetadata(false))
	ts := repository.TimestampLatest
	if err == nil && validity.IsValid() {
		ts = validity.Max - 1
	}
	mo, err := c.db.RetrieveMO(ctx, c.cfg.ReferencePath, name, ts, refActivity, nil)
	if err != nil {
		return nil, err
	}
	h, ok := mo.Payload.(*histo.Histogram)
	if !ok {
		return nil, fmt.Errorf("reference payload %T: %w", mo.Payload, core.ErrSchema)
	}
	return h, nil
}
