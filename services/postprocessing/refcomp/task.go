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
	"errors"
	"fmt"

	"github.com/AleutianAI/qcpost/services/postprocessing/config"
	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
	"github.com/AleutianAI/qcpost/services/postprocessing/repository"
	"github.com/AleutianAI/qcpost/services/postprocessing/runner"
)

func init() {
	runner.Tasks.Register("common", "ReferenceComparatorTask", func() runner.Task { return &ReferenceComparatorTask{} })
}

// Canvas pad and object naming conventions, shared with the check side.
const (
	PadHistSuffix    = "_PadHist"
	PadHistRefSuffix = "_PadHistRef"
	PadRatioSuffix   = "_PadHistRatio"
	HistSuffix       = "_hist"
	HistRefSuffix    = "_hist_ref"
	RatioSuffix      = "_ratio"
)

// GroupConfig describes one comparison group: a set of objects read from
// one task path and compared against the same reference path.
type GroupConfig struct {
	InputPath     string   `yaml:"inputPath"`
	ReferencePath string   `yaml:"referencePath"`
	OutputPath    string   `yaml:"outputPath"`
	Objects       []string `yaml:"objects"`

	// NormalizeReference scales the reference to the current integral
	// before the ratio.
	NormalizeReference bool `yaml:"normalizeReference"`

	// DrawRatioOnly skips the superimposed comparison pad.
	DrawRatioOnly bool `yaml:"drawRatioOnly"`

	// LegendHeight is the pad fraction reserved for the legend.
	LegendHeight float64 `yaml:"legendHeight"`

	DrawOption1D string `yaml:"drawOption1D"`
	DrawOption2D string `yaml:"drawOption2D"`
}

// ComparatorOptions is the option block of a ReferenceComparatorTask.
type ComparatorOptions struct {
	// ReferenceRun picks the run the references are read from.
	ReferenceRun int `yaml:"referenceRun"`

	// NotOlderThan is the staleness budget for current objects in
	// seconds; zero accepts any age.
	NotOlderThan int64 `yaml:"notOlderThan"`

	// IgnorePeriodForReference widens the reference lookup beyond the
	// current period. Same for the pass.
	IgnorePeriodForReference bool `yaml:"ignorePeriodForReference"`
	IgnorePassForReference   bool `yaml:"ignorePassForReference"`

	Groups []GroupConfig `yaml:"dataGroups"`
}

type comparedObject struct {
	group     GroupConfig
	name      string
	reference histo.Object
	canvas    *histo.Canvas
	canvasMO  *core.MonitorObject
}

// ReferenceComparatorTask caches reference objects at start of run and, on
// every update, redraws current/reference/ratio canvases for each
// configured object.
type ReferenceComparatorTask struct {
	name string
	cfg  config.TaskConfig
	opts ComparatorOptions

	svc     runner.Services
	objects []*comparedObject
}

func (t *ReferenceComparatorTask) Configure(name string, cfg config.TaskConfig) error {
	t.name = name
	t.cfg = cfg
	if err := cfg.DecodeOptions(&t.opts); err != nil {
		return err
	}
	if t.opts.ReferenceRun == 0 {
		return fmt.Errorf("task %q: referenceRun is mandatory: %w", name, core.ErrConfig)
	}
	if len(t.opts.Groups) == 0 {
		return fmt.Errorf("task %q has no data groups: %w", name, core.ErrConfig)
	}
	for _, g := range t.opts.Groups {
		if g.InputPath == "" || g.ReferencePath == "" || len(g.Objects) == 0 {
			return fmt.Errorf("task %q: group is missing paths or objects: %w", name, core.ErrConfig)
		}
	}
	return nil
}

// referenceActivity derives the lookup template for references from the
// triggering activity.
func (t *ReferenceComparatorTask) referenceActivity(current core.Activity) core.Activity {
	ref := current
	ref.ID = t.opts.ReferenceRun
	ref.Validity = core.ValidityInterval{}
	if t.opts.IgnorePeriodForReference {
		ref.PeriodName = ""
	}
	if t.opts.IgnorePassForReference {
		ref.PassName = ""
	}
	return ref
}

// Initialize fetches and caches every reference and builds the output
// canvases. A missing reference fails initialization: comparing against
// nothing is not meaningful.
func (t *ReferenceComparatorTask) Initialize(ctx context.Context, svc runner.Services, trig runner.Trigger) error {
	t.svc = svc
	refActivity := t.referenceActivity(trig.Activity)

	t.objects = nil
	for _, g := range t.opts.Groups {
		for _, name := range g.Objects {
			ref, err := t.fetchReference(ctx, g, name, refActivity)
			if err != nil {
				return fmt.Errorf("task %q reference %s/%s: %w", t.name, g.ReferencePath, name, err)
			}
			co := &comparedObject{group: g, name: name, reference: ref}
			co.canvas = t.buildCanvas(co)
			// The canvas publishes under the group's output path when
			// one is configured, otherwise under the task name.
			owner := t.name
			if g.OutputPath != "" {
				owner = g.OutputPath
			}
			co.canvasMO = core.NewMonitorObject(co.canvas, owner, "ReferenceComparatorTask", t.cfg.Detector)
			co.canvasMO.Activity = trig.Activity
			co.canvasMO.IsOwner = false
			t.objects = append(t.objects, co)
		}
	}
	return nil
}

// fetchReference resolves the latest reference payload under the reference
// run: the newest validity is looked up first, then the object fetched just
// inside it.
func (t *ReferenceComparatorTask) fetchReference(ctx context.Context, g GroupConfig, name string, activity core.Activity) (histo.Object, error) {
	fullPath := g.ReferencePath + "/" + name
	filter := activity.ToMetadata(false)

	validity, err := t.svc.DB.GetLatestObjectValidity(ctx, fullPath, filter)
	ts := repository.TimestampLatest
	if err == nil && validity.IsValid() {
		ts = validity.Max - 1
	}
	mo, err := t.svc.DB.RetrieveMO(ctx, g.ReferencePath, name, ts, activity, nil)
	if err != nil {
		return nil, err
	}
	obj, ok := mo.Payload.(histo.Object)
	if !ok {
		return nil, fmt.Errorf("reference payload %T is not drawable: %w", mo.Payload, core.ErrSchema)
	}
	return obj, nil
}

// buildCanvas lays out the pads for one compared object: a comparison pad
// for 1-D inputs (single pad with both histograms and a legend), separate
// pads for 2-D inputs, and always a ratio pad.
func (t *ReferenceComparatorTask) buildCanvas(co *comparedObject) *histo.Canvas {
	canvas := histo.NewCanvas(co.name, co.name)

	switch ref := co.reference.(type) {
	case *histo.Histogram:
		if !co.group.DrawRatioOnly {
			pad := canvas.AddPad(co.name + PadHistSuffix)
			refCopy := ref.Clone(co.name + HistRefSuffix)
			pad.Draw(refCopy)
			legend := &histo.Legend{Name: co.name + "_legend"}
			legend.AddEntry("current", 0)
			legend.AddEntry("reference run "+fmt.Sprint(t.opts.ReferenceRun), QualityColor(core.QualityNull))
			pad.Draw(legend)
		}
	case *histo.Histogram2D:
		canvas.AddPad(co.name + PadHistSuffix)
		refPad := canvas.AddPad(co.name + PadHistRefSuffix)
		refPad.Draw(co.reference)
	}

	canvas.AddPad(co.name + PadRatioSuffix)
	return canvas
}

// Update refreshes every canvas from the current objects. Stale or missing
// currents skip their canvas for this tick only.
func (t *ReferenceComparatorTask) Update(ctx context.Context, trig runner.Trigger) error {
	var errs []error
	for _, co := range t.objects {
		if err := t.updateObject(ctx, co, trig); err != nil {
			if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrStale) {
				t.svc.Logger.Warn("skipping comparison", "task", t.name, "object", co.name, "error", err)
				continue
			}
			errs = append(errs, fmt.Errorf("object %q: %w", co.name, err))
		}
	}
	return errors.Join(errs...)
}

func (t *ReferenceComparatorTask) updateObject(ctx context.Context, co *comparedObject, trig runner.Trigger) error {
	mo, err := t.svc.DB.RetrieveMO(ctx, co.group.InputPath, co.name, trig.Timestamp, trig.Activity, nil)
	if err != nil {
		return err
	}
	if t.opts.NotOlderThan > 0 {
		if age := trig.Timestamp - mo.CreatedTimestamp(); age > t.opts.NotOlderThan*1000 {
			return fmt.Errorf("current object is %d ms old: %w", age, core.ErrStale)
		}
	}

	current, ok := mo.Payload.(histo.Object)
	if !ok {
		return fmt.Errorf("current payload %T is not drawable: %w", mo.Payload, core.ErrSchema)
	}
	t.redraw(co, current)

	co.canvasMO.Activity = trig.Activity
	return t.svc.Objects.Publish(ctx, co.canvasMO, trig, runner.PolicyOnce)
}

// redraw replaces the current histogram and the ratio on the object's pads.
func (t *ReferenceComparatorTask) redraw(co *comparedObject, current histo.Object) {
	switch cur := current.(type) {
	case *histo.Histogram:
		ref, ok := co.reference.(*histo.Histogram)
		if !ok {
			return
		}
		if pad := co.canvas.GetPad(co.name + PadHistSuffix); pad != nil {
			curCopy := cur.Clone(co.name + HistSuffix)
			replaceObject(pad, curCopy)
		}
		if pad := co.canvas.GetPad(co.name + PadRatioSuffix); pad != nil {
			replaceObject(pad, t.ratio1D(co, cur, ref))
		}
	case *histo.Histogram2D:
		ref, ok := co.reference.(*histo.Histogram2D)
		if !ok {
			return
		}
		if pad := co.canvas.GetPad(co.name + PadHistSuffix); pad != nil {
			replaceObject(pad, cur)
		}
		if pad := co.canvas.GetPad(co.name + PadRatioSuffix); pad != nil {
			replaceObject(pad, ratio2D(co.name+RatioSuffix, cur, ref))
		}
	}
}

// ratio1D divides current by reference bin by bin, optionally scaling the
// reference to the current integral first.
func (t *ReferenceComparatorTask) ratio1D(co *comparedObject, cur, ref *histo.Histogram) *histo.Histogram {
	denom := ref
	if co.group.NormalizeReference && ref.Integral() != 0 {
		denom = ref.Clone(ref.Name + "_norm")
		denom.Scale(cur.Integral() / ref.Integral())
	}
	ratio := cur.Clone(co.name + RatioSuffix)
	if !ratio.Divide(denom) {
		ratio.Reset()
	}
	return ratio
}

func ratio2D(name string, cur, ref *histo.Histogram2D) *histo.Histogram2D {
	out := histo.NewHistogram2D(name, name,
		cur.XAxis.NBins, cur.XAxis.Min, cur.XAxis.Max,
		cur.YAxis.NBins, cur.YAxis.Min, cur.YAxis.Max)
	for bx := 0; bx < cur.XAxis.NBins; bx++ {
		for by := 0; by < cur.YAxis.NBins; by++ {
			if r := ref.GetBinContent(bx, by); r != 0 {
				out.SetBinContent(bx, by, cur.GetBinContent(bx, by)/r)
			}
		}
	}
	return out
}

// replaceObject swaps the pad object of the same name, appending when it is
// not drawn yet.
func replaceObject(pad *histo.Pad, obj histo.Object) {
	for i, o := range pad.Objects {
		if o.GetName() == obj.GetName() {
			pad.Objects[i] = obj
			return
		}
	}
	pad.Draw(obj)
}

// Finalize republishes the canvases one last time.
func (t *ReferenceComparatorTask) Finalize(ctx context.Context, trig runner.Trigger) error {
	var errs []error
	for _, co := range t.objects {
		co.canvasMO.Activity = trig.Activity
		if err := t.svc.Objects.Publish(ctx, co.canvasMO, trig, runner.PolicyOnce); err != nil {
			errs = append(errs, fmt.Errorf("object %q: %w", co.name, err))
		}
	}
	return errors.Join(errs...)
}
