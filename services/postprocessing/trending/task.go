// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package trending

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/AleutianAI/qcpost/services/postprocessing/config"
	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/plotting"
	"github.com/AleutianAI/qcpost/services/postprocessing/reductor"
	"github.com/AleutianAI/qcpost/services/postprocessing/repository"
	"github.com/AleutianAI/qcpost/services/postprocessing/runner"
)

func init() {
	runner.Tasks.Register("common", "TrendingTask", func() runner.Task { return &TrendingTask{} })
}

// Data source kinds a trending task can reduce.
const (
	SourceRepository        = "repository"
	SourceRepositoryQuality = "repository-quality"
	SourceCondition         = "condition"
)

// Row timestamp selection modes.
const (
	StampTrigger    = "trigger"
	StampValidFrom  = "validFrom"
	StampValidUntil = "validUntil"
)

// DataSourceConfig declares one input of a trending task. Names expands
// into one source per listed object, all sharing the reductor class.
type DataSourceConfig struct {
	Type         string   `yaml:"type"`
	Path         string   `yaml:"path"`
	Name         string   `yaml:"name"`
	Names        []string `yaml:"names"`
	ModuleName   string   `yaml:"moduleName"`
	ReductorName string   `yaml:"reductorName"`
}

// Module returns the reductor module, defaulting to the built-in set.
func (d DataSourceConfig) Module() string {
	if d.ModuleName == "" {
		return "common"
	}
	return d.ModuleName
}

// TrendingOptions is the class-specific option block of a TrendingTask.
type TrendingOptions struct {
	DataSources []DataSourceConfig    `yaml:"dataSources"`
	Plots       []plotting.PlotConfig `yaml:"plots"`

	// ResumeTrend continues the last stored tree instead of starting
	// empty, provided the branch schema is unchanged.
	ResumeTrend bool `yaml:"resumeTrend"`

	// ProducePlotsOnUpdate regenerates plots every update instead of only
	// at finalization.
	ProducePlotsOnUpdate bool `yaml:"producePlotsOnUpdate"`

	// TrendingTimestamp selects the row stamp: the trigger time or an edge
	// of the triggering activity's validity.
	TrendingTimestamp string `yaml:"trendingTimestamp"`

	// Tolerant keeps trending when a source is missing, recording the
	// source's previous (or zero) values instead of dropping the row.
	Tolerant bool `yaml:"tolerant"`
}

type trendSource struct {
	cfg    DataSourceConfig
	branch string
	red    reductor.Reductor
}

// TrendingTask periodically reduces configured inputs into one row of an
// append-only trend tree and renders the configured plots from it.
type TrendingTask struct {
	name string
	cfg  config.TaskConfig
	opts TrendingOptions

	svc     runner.Services
	sources []*trendSource
	tree    *Tree
	treeMO  *core.MonitorObject
}

// Configure validates the option block. Schema mistakes fail here and keep
// the task out of the schedule.
func (t *TrendingTask) Configure(name string, cfg config.TaskConfig) error {
	t.name = name
	t.cfg = cfg
	if err := cfg.DecodeOptions(&t.opts); err != nil {
		return err
	}
	if t.opts.TrendingTimestamp == "" {
		t.opts.TrendingTimestamp = StampTrigger
	}
	switch t.opts.TrendingTimestamp {
	case StampTrigger, StampValidFrom, StampValidUntil:
	default:
		return fmt.Errorf("task %q: unknown trendingTimestamp %q: %w",
			name, t.opts.TrendingTimestamp, core.ErrConfig)
	}
	if len(t.opts.DataSources) == 0 {
		return fmt.Errorf("task %q has no data sources: %w", name, core.ErrConfig)
	}

	t.sources = nil
	for _, ds := range t.opts.DataSources {
		switch ds.Type {
		case SourceRepository, SourceRepositoryQuality, SourceCondition:
		default:
			return fmt.Errorf("task %q: unknown data source type %q: %w",
				name, ds.Type, core.ErrConfig)
		}
		names := ds.Names
		if len(names) == 0 {
			if ds.Name == "" {
				return fmt.Errorf("task %q: data source %q names nothing: %w",
					name, ds.Path, core.ErrConfig)
			}
			names = []string{ds.Name}
		}
		for _, n := range names {
			one := ds
			one.Name = n
			one.Names = nil
			t.sources = append(t.sources, &trendSource{cfg: one, branch: branchName(n)})
		}
	}
	return nil
}

// branchName sanitizes an object name into a branch identifier.
func branchName(objectName string) string {
	return strings.ReplaceAll(objectName, "/", "_")
}

// Initialize instantiates the reductors, builds or resumes the tree and
// wraps it for publication.
func (t *TrendingTask) Initialize(ctx context.Context, svc runner.Services, trig runner.Trigger) error {
	t.svc = svc

	schema := map[string]string{}
	for _, s := range t.sources {
		red, err := reductor.New(s.cfg.Module(), s.cfg.ReductorName)
		if err != nil {
			return fmt.Errorf("task %q source %q: %w", t.name, s.branch, err)
		}
		s.red = red
		schema[s.branch] = red.BranchLeafList()
	}

	tree, resumed := t.resumeTree(ctx, schema)
	if !resumed {
		tree = NewTree(t.name)
		for _, s := range t.sources {
			_, sliced := s.red.(reductor.SliceReductor)
			if err := tree.AddBranch(s.branch, s.red.BranchLeafList(), sliced); err != nil {
				return err
			}
		}
	}
	t.tree = tree

	t.treeMO = core.NewMonitorObject(t.tree, t.name, "TrendingTask", t.cfg.Detector)
	t.treeMO.Activity = trig.Activity
	t.treeMO.IsOwner = false
	return nil
}

// resumeTree fetches the last stored tree and adopts it when the schema
// still matches. Any retrieval or compatibility problem means a fresh
// start, never a failure.
func (t *TrendingTask) resumeTree(ctx context.Context, schema map[string]string) (*Tree, bool) {
	if !t.opts.ResumeTrend {
		return nil, false
	}
	mo, err := t.svc.DB.RetrieveMO(ctx, core.MOPath(t.cfg.Detector, t.name), t.name,
		repository.TimestampLatest, core.Activity{}, nil)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			t.svc.Logger.Warn("trend resume failed, starting fresh",
				"task", t.name, "error", err)
		}
		return nil, false
	}
	prev, ok := mo.Payload.(*Tree)
	if !ok {
		t.svc.Logger.Warn("stored trend has unexpected payload, starting fresh", "task", t.name)
		return nil, false
	}
	if !prev.CompatibleWith(schema) {
		t.svc.Logger.Warn("stored trend schema differs, starting fresh", "task", t.name)
		return nil, false
	}
	t.svc.Logger.Info("resumed trend", "task", t.name, "rows", prev.NRows())
	return prev, true
}

// rowTime derives the row stamp in epoch seconds from the trigger.
func (t *TrendingTask) rowTime(trig runner.Trigger) int64 {
	switch t.opts.TrendingTimestamp {
	case StampValidFrom:
		return trig.Activity.Validity.Min / 1000
	case StampValidUntil:
		return trig.Activity.Validity.Max / 1000
	default:
		return trig.Timestamp / 1000
	}
}

// Update appends one row: every source is fetched and reduced, the row is
// committed atomically, mirrored to the trend sink and the tree
// republished. A missing non-tolerant source drops the whole row.
func (t *TrendingTask) Update(ctx context.Context, trig runner.Trigger) error {
	values := map[string][]float64{}
	for _, s := range t.sources {
		if err := t.reduce(ctx, s, trig); err != nil {
			missing := errors.Is(err, core.ErrNotFound) || errors.Is(err, core.ErrTimeout) ||
				errors.Is(err, core.ErrStale)
			if !t.opts.Tolerant || !missing {
				return fmt.Errorf("task %q source %q: %w", t.name, s.branch, err)
			}
			t.svc.Logger.Warn("source missing, trending zero record",
				"task", t.name, "source", s.branch)
			values[s.branch] = zeroRecord(s.red)
			continue
		}
		if sr, ok := s.red.(reductor.SliceReductor); ok {
			values[s.branch] = sliceValues(sr)
		} else {
			values[s.branch] = s.red.Values()
		}
	}

	runNumber := int32(trig.Activity.ID)
	timeSec := t.rowTime(trig)
	if err := t.tree.AppendRow(runNumber, uint32(timeSec), values); err != nil {
		rowsTotal.WithLabelValues(t.name, "error").Inc()
		return err
	}
	rowsTotal.WithLabelValues(t.name, "ok").Inc()
	t.mirrorRow(ctx, int(runNumber), timeSec)

	t.treeMO.Activity = trig.Activity
	if err := t.svc.Objects.Publish(ctx, t.treeMO, trig, runner.PolicyThroughStop); err != nil {
		return err
	}
	if t.opts.ProducePlotsOnUpdate {
		return t.generatePlots(ctx, trig)
	}
	return nil
}

// Finalize appends nothing; it renders the plots from the accumulated tree
// and republishes it one last time.
func (t *TrendingTask) Finalize(ctx context.Context, trig runner.Trigger) error {
	if err := t.svc.Objects.Publish(ctx, t.treeMO, trig, runner.PolicyThroughStop); err != nil {
		return err
	}
	return t.generatePlots(ctx, trig)
}

// reduce runs one source's fetch-and-reduce step.
func (t *TrendingTask) reduce(ctx context.Context, s *trendSource, trig runner.Trigger) error {
	switch s.cfg.Type {
	case SourceRepository:
		mo, err := t.svc.DB.RetrieveMO(ctx, s.cfg.Path, s.cfg.Name, trig.Timestamp, trig.Activity, nil)
		if err != nil {
			return err
		}
		return updateReductor(s.red, mo)
	case SourceRepositoryQuality:
		qo, err := t.svc.DB.RetrieveQO(ctx, s.cfg.Path+"/"+s.cfg.Name, trig.Timestamp, trig.Activity, nil)
		if err != nil {
			return err
		}
		return updateReductor(s.red, qo)
	case SourceCondition:
		cr, ok := s.red.(reductor.ConditionReductor)
		if !ok {
			return fmt.Errorf("reductor %q cannot read conditions: %w",
				s.cfg.ReductorName, core.ErrSchema)
		}
		return cr.UpdateCondition(ctx, t.svc.DB, trig.Timestamp, s.cfg.Path+"/"+s.cfg.Name)
	}
	return fmt.Errorf("unknown source type %q: %w", s.cfg.Type, core.ErrConfig)
}

func updateReductor(red reductor.Reductor, obj any) error {
	if sr, ok := red.(reductor.SliceReductor); ok {
		return sr.UpdateSliced(obj, nil, nil)
	}
	or, ok := red.(reductor.ObjectReductor)
	if !ok {
		return fmt.Errorf("reductor cannot read objects: %w", core.ErrSchema)
	}
	return or.Update(obj)
}

// zeroRecord is the default-initialized aggregate of a missing tolerant
// source: zeros at the branch's declared width, or an empty list for a
// sliced branch.
func zeroRecord(red reductor.Reductor) []float64 {
	if _, sliced := red.(reductor.SliceReductor); sliced {
		return nil
	}
	leaves, err := reductor.ParseLeafList(red.BranchLeafList())
	if err != nil {
		return nil
	}
	return make([]float64, reductor.RecordWidth(leaves))
}

// sliceValues flattens per-slice records in slice order, field order per
// the reductor's leaf list.
func sliceValues(sr reductor.SliceReductor) []float64 {
	leaves, err := reductor.ParseLeafList(sr.BranchLeafList())
	if err != nil {
		return nil
	}
	var out []float64
	for _, rec := range sr.Slices() {
		for _, l := range leaves {
			out = append(out, rec.Field(l.Name))
		}
	}
	return out
}

// mirrorRow forwards the appended row to the external trend sink, leaf by
// qualified leaf. Sink failures are logged, never fatal.
func (t *TrendingTask) mirrorRow(ctx context.Context, runNumber int, timeSec int64) {
	if t.svc.Trends == nil {
		return
	}
	fields := map[string]float64{}
	for _, s := range t.sources {
		if _, sliced := s.red.(reductor.SliceReductor); sliced {
			continue
		}
		b := t.tree.Branch(s.branch)
		if b == nil || len(b.Rows) == 0 {
			continue
		}
		row := b.Rows[len(b.Rows)-1]
		leaves, err := reductor.ParseLeafList(b.LeafList)
		if err != nil {
			continue
		}
		offset := 0
		for _, l := range leaves {
			if offset < len(row) {
				fields[s.branch+"."+l.Name] = row[offset]
			}
			offset += l.Width()
		}
	}
	if err := t.svc.Trends.WriteRow(ctx, t.name, runNumber, timeSec, fields); err != nil {
		t.svc.Logger.Warn("trend sink write failed", "task", t.name, "error", err)
	}
}

// generatePlots renders every configured plot from the current tree and
// publishes it next to the tree. Individual plot failures are collected so
// one bad varexp does not hide the rest.
func (t *TrendingTask) generatePlots(ctx context.Context, trig runner.Trigger) error {
	var errs []error
	for _, pc := range t.opts.Plots {
		canvas, err := plotting.Generate(t.tree, pc)
		if err != nil {
			errs = append(errs, fmt.Errorf("plot %q: %w", pc.Name, err))
			continue
		}
		mo := core.NewMonitorObject(canvas, t.name, "TrendingTask", t.cfg.Detector)
		mo.Activity = trig.Activity
		if err := t.svc.Objects.Publish(ctx, mo, trig, runner.PolicyOnce); err != nil {
			errs = append(errs, fmt.Errorf("plot %q: %w", pc.Name, err))
			continue
		}
		plotsTotal.WithLabelValues(t.name).Inc()
	}
	return errors.Join(errs...)
}
