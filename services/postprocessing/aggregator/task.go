// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package aggregator merges per-source verdict matrices into per-component
// quality matrices and denylists of bad components.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/AleutianAI/qcpost/services/postprocessing/config"
	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
	"github.com/AleutianAI/qcpost/services/postprocessing/runner"
)

func init() {
	runner.Tasks.Register("common", "QualityAggregatorTask", func() runner.Task { return &QualityAggregatorTask{} })
}

// Verdict rows of the input and output matrices. Lower row means worse;
// row 0 is unused so CSV consumers can treat 0 as "no verdict".
const (
	RowBad    = 1
	RowMedium = 2
	RowGood   = 3
	verdicts  = 3
)

// Denylist objects stay valid for five days.
const denylistValidityMillis = 5 * 24 * 3600 * 1000

// AggregatorOptions is the option block of a QualityAggregatorTask.
type AggregatorOptions struct {
	// InputsDE and InputsSOLAR list the full paths of the per-source
	// verdict matrices for detection elements and readout boards.
	InputsDE    []string `yaml:"inputsDE"`
	InputsSOLAR []string `yaml:"inputsSOLAR"`

	// ObjectPathBadDE / ObjectPathBadSOLAR are "<dir>/<name>" paths the
	// denylists publish under.
	ObjectPathBadDE    string `yaml:"objectPathBadDE"`
	ObjectPathBadSOLAR string `yaml:"objectPathBadSOLAR"`
}

// aggregateGroup is the per-kind state: inputs, output matrix, denylist
// destination and the previously uploaded set.
type aggregateGroup struct {
	kind       string
	header     string
	inputs     []string
	outputPath string

	matrix   *histo.Histogram2D
	matrixMO *core.MonitorObject
	lastBad  map[int]bool
}

// QualityAggregatorTask rebuilds the aggregated matrices every tick and
// uploads the denylists only when their membership changes.
type QualityAggregatorTask struct {
	name string
	cfg  config.TaskConfig
	opts AggregatorOptions

	svc    runner.Services
	groups []*aggregateGroup
}

func (t *QualityAggregatorTask) Configure(name string, cfg config.TaskConfig) error {
	t.name = name
	t.cfg = cfg
	if err := cfg.DecodeOptions(&t.opts); err != nil {
		return err
	}
	if len(t.opts.InputsDE) == 0 && len(t.opts.InputsSOLAR) == 0 {
		return fmt.Errorf("task %q has no inputs: %w", name, core.ErrConfig)
	}
	return nil
}

func (t *QualityAggregatorTask) Initialize(ctx context.Context, svc runner.Services, trig runner.Trigger) error {
	t.svc = svc
	t.groups = nil
	if len(t.opts.InputsDE) > 0 {
		t.groups = append(t.groups, &aggregateGroup{
			kind:       "DE",
			header:     "deid",
			inputs:     t.opts.InputsDE,
			outputPath: t.opts.ObjectPathBadDE,
			lastBad:    nil,
		})
	}
	if len(t.opts.InputsSOLAR) > 0 {
		t.groups = append(t.groups, &aggregateGroup{
			kind:       "SOLAR",
			header:     "solarid",
			inputs:     t.opts.InputsSOLAR,
			outputPath: t.opts.ObjectPathBadSOLAR,
			lastBad:    nil,
		})
	}
	return nil
}

func (t *QualityAggregatorTask) Update(ctx context.Context, trig runner.Trigger) error {
	var errs []error
	for _, g := range t.groups {
		if err := t.aggregate(ctx, g, trig); err != nil {
			errs = append(errs, fmt.Errorf("group %s: %w", g.kind, err))
		}
	}
	return errors.Join(errs...)
}

func (t *QualityAggregatorTask) Finalize(ctx context.Context, trig runner.Trigger) error {
	return nil
}

// aggregate rebuilds one group's matrix from scratch and uploads its
// denylist when the bad set changed.
func (t *QualityAggregatorTask) aggregate(ctx context.Context, g *aggregateGroup, trig runner.Trigger) error {
	// Per-component worst verdict across sources; missing inputs simply
	// contribute nothing.
	worst := map[int]int{}
	components := 0
	for _, fullPath := range g.inputs {
		ok, path, name := core.SplitObjectPath(fullPath)
		if !ok {
			return fmt.Errorf("input path %q: %w", fullPath, core.ErrConfig)
		}
		mo, err := t.svc.DB.RetrieveMO(ctx, path, name, trig.Timestamp, trig.Activity, nil)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrStale) || errors.Is(err, core.ErrTimeout) {
				t.svc.Logger.Warn("aggregator input missing", "task", t.name, "input", fullPath)
				continue
			}
			return err
		}
		input, ok := mo.Payload.(*histo.Histogram2D)
		if !ok {
			t.svc.Logger.Warn("aggregator input has unexpected payload",
				"task", t.name, "input", fullPath, "type", fmt.Sprintf("%T", mo.Payload))
			continue
		}
		if input.XAxis.NBins > components {
			components = input.XAxis.NBins
		}
		for comp := 0; comp < input.XAxis.NBins; comp++ {
			v := sourceVerdict(input, comp)
			if v == 0 {
				continue
			}
			if prev, seen := worst[comp]; !seen || v < prev {
				worst[comp] = v
			}
		}
	}

	t.rebuildMatrix(g, components, worst)
	g.matrixMO.Activity = trig.Activity
	if err := t.svc.Objects.Publish(ctx, g.matrixMO, trig, runner.PolicyThroughStop); err != nil {
		return err
	}

	bad := map[int]bool{}
	for comp, v := range worst {
		if v == RowBad {
			bad[comp] = true
		}
	}
	return t.uploadDenylist(ctx, g, bad, trig)
}

// sourceVerdict returns a source's worst verdict for one component: the
// lowest non-zero row, 0 when the column is empty.
func sourceVerdict(input *histo.Histogram2D, comp int) int {
	for row := RowBad; row <= RowGood && row <= input.YAxis.NBins; row++ {
		if input.GetBinContent(comp, row-1) != 0 {
			return row
		}
	}
	return 0
}

// rebuildMatrix resets and refills the output matrix. The matrix is sized
// on first use and grows if later inputs carry more components.
func (t *QualityAggregatorTask) rebuildMatrix(g *aggregateGroup, components int, worst map[int]int) {
	if g.matrix == nil || g.matrix.XAxis.NBins < components {
		g.matrix = histo.NewHistogram2D("Quality"+g.kind, "Aggregated quality per "+g.kind,
			components, 0, float64(components), verdicts, 1, verdicts+1)
		for row := RowBad; row <= RowGood; row++ {
			g.matrix.YAxis.SetBinLabel(row-1, verdictName(row))
		}
		g.matrixMO = core.NewMonitorObject(g.matrix, t.name, "QualityAggregatorTask", t.cfg.Detector)
		g.matrixMO.IsOwner = false
	}
	g.matrix.Reset()
	for comp, v := range worst {
		g.matrix.SetBinContent(comp, v-1, 1)
	}
}

func verdictName(row int) string {
	switch row {
	case RowBad:
		return "Bad"
	case RowMedium:
		return "Medium"
	case RowGood:
		return "Good"
	}
	return ""
}

// uploadDenylist writes the CSV blob, skipping the upload when the set is
// unchanged so the stored object keeps its validity lineage.
func (t *QualityAggregatorTask) uploadDenylist(ctx context.Context, g *aggregateGroup, bad map[int]bool, trig runner.Trigger) error {
	if g.outputPath == "" {
		return nil
	}
	if g.lastBad != nil && sameSet(bad, g.lastBad) {
		return nil
	}

	ok, dir, name := core.SplitObjectPath(g.outputPath)
	if !ok {
		return fmt.Errorf("denylist path %q: %w", g.outputPath, core.ErrConfig)
	}

	blob := &histo.PaveLabel{Name: name, Text: denylistCSV(g.header, bad)}
	mo := core.NewMonitorObject(blob, dir, "QualityAggregatorTask", t.cfg.Detector)
	mo.Activity = trig.Activity
	mo.Validity = core.ValidityInterval{Min: trig.Timestamp, Max: trig.Timestamp + denylistValidityMillis}
	if err := t.svc.DB.StoreMO(ctx, mo); err != nil {
		return err
	}
	g.lastBad = bad
	t.svc.Logger.Info("denylist updated", "task", t.name, "kind", g.kind, "size", len(bad))
	return nil
}

// denylistCSV renders "header\nid\nid..." with ids ascending, so equal
// sets always serialize identically.
func denylistCSV(header string, bad map[int]bool) string {
	ids := make([]int, 0, len(bad))
	for id := range bad {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	var b strings.Builder
	b.WriteString(header)
	for _, id := range ids {
		b.WriteByte('\n')
		b.WriteString(strconv.Itoa(id))
	}
	return b.String()
}

func sameSet(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for id := range a {
		if !b[id] {
			return false
		}
	}
	return true
}
