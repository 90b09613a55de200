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
	"strconv"
	"strings"

	"github.com/AleutianAI/qcpost/services/postprocessing/config"
	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
	"github.com/AleutianAI/qcpost/services/postprocessing/plotting"
	"github.com/AleutianAI/qcpost/services/postprocessing/reductor"
	"github.com/AleutianAI/qcpost/services/postprocessing/repository"
	"github.com/AleutianAI/qcpost/services/postprocessing/runner"
)

func init() {
	runner.Tasks.Register("common", "SliceTrendingTask", func() runner.Task { return &SliceTrendingTask{} })
}

// Slice plot modes.
const (
	ModeTime          = "time"
	ModeRun           = "run"
	ModeMultigraphRun = "multigraphrun"
	ModeMultigraphTim = "multigraphtime"
	ModeSlices        = "slices"
	ModeSlices2D      = "slices2D"
)

// SliceSourceConfig is a trend source cut along configured axis divisions.
// Each division pair becomes one slice record per row.
type SliceSourceConfig struct {
	DataSourceConfig `yaml:",inline"`

	AxisDivisionX []float64 `yaml:"axisDivisionX"`
	AxisDivisionY []float64 `yaml:"axisDivisionY"`
}

// SlicePlotConfig adds the slice drawing mode to a plot.
type SlicePlotConfig struct {
	plotting.PlotConfig `yaml:",inline"`

	// Mode selects the drawing: trend over time or run, one curve per
	// slice, last-row values against slice labels, or a 2-D grid.
	Mode string `yaml:"mode"`
}

// SliceTrendingOptions is the option block of a SliceTrendingTask.
type SliceTrendingOptions struct {
	DataSources []SliceSourceConfig `yaml:"dataSources"`
	Plots       []SlicePlotConfig   `yaml:"plots"`

	ResumeTrend          bool   `yaml:"resumeTrend"`
	ProducePlotsOnUpdate bool   `yaml:"producePlotsOnUpdate"`
	TrendingTimestamp    string `yaml:"trendingTimestamp"`
}

type sliceSource struct {
	cfg    SliceSourceConfig
	branch string
	red    reductor.SliceReductor
}

// SliceTrendingTask trends vector-valued reductions: every row carries one
// record per configured slice of each source, and the plots draw per-slice
// curves, last-row profiles or 2-D grids.
type SliceTrendingTask struct {
	name string
	cfg  config.TaskConfig
	opts SliceTrendingOptions

	svc     runner.Services
	sources []*sliceSource
	tree    *Tree
	treeMO  *core.MonitorObject
}

func (t *SliceTrendingTask) Configure(name string, cfg config.TaskConfig) error {
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
	for _, p := range t.opts.Plots {
		switch p.Mode {
		case ModeTime, ModeRun, ModeMultigraphRun, ModeMultigraphTim, ModeSlices, ModeSlices2D, "":
		default:
			return fmt.Errorf("task %q plot %q: unknown mode %q: %w",
				name, p.Name, p.Mode, core.ErrConfig)
		}
	}

	t.sources = nil
	for _, ds := range t.opts.DataSources {
		if ds.Type != SourceRepository {
			return fmt.Errorf("task %q: sliced trending reads monitor objects, got type %q: %w",
				name, ds.Type, core.ErrConfig)
		}
		if ds.Name == "" {
			return fmt.Errorf("task %q: data source %q names nothing: %w",
				name, ds.Path, core.ErrConfig)
		}
		t.sources = append(t.sources, &sliceSource{cfg: ds, branch: branchName(ds.Name)})
	}
	return nil
}

func (t *SliceTrendingTask) Initialize(ctx context.Context, svc runner.Services, trig runner.Trigger) error {
	t.svc = svc

	schema := map[string]string{}
	for _, s := range t.sources {
		red, err := reductor.New(s.cfg.Module(), s.cfg.ReductorName)
		if err != nil {
			return fmt.Errorf("task %q source %q: %w", t.name, s.branch, err)
		}
		sr, ok := red.(reductor.SliceReductor)
		if !ok {
			return fmt.Errorf("task %q: reductor %q cannot slice: %w",
				t.name, s.cfg.ReductorName, core.ErrResolveClass)
		}
		s.red = sr
		schema[s.branch] = sr.BranchLeafList()
	}

	tree, resumed := resumeSliceTree(ctx, t.svc, t.opts.ResumeTrend, t.cfg.Detector, t.name, schema)
	if !resumed {
		tree = NewTree(t.name)
		for _, s := range t.sources {
			if err := tree.AddBranch(s.branch, s.red.BranchLeafList(), true); err != nil {
				return err
			}
		}
	}
	t.tree = tree

	t.treeMO = core.NewMonitorObject(t.tree, t.name, "SliceTrendingTask", t.cfg.Detector)
	t.treeMO.Activity = trig.Activity
	t.treeMO.IsOwner = false
	return nil
}

func resumeSliceTree(ctx context.Context, svc runner.Services, resume bool, detector, name string, schema map[string]string) (*Tree, bool) {
	if !resume {
		return nil, false
	}
	mo, err := svc.DB.RetrieveMO(ctx, core.MOPath(detector, name), name,
		repository.TimestampLatest, core.Activity{}, nil)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			svc.Logger.Warn("trend resume failed, starting fresh", "task", name, "error", err)
		}
		return nil, false
	}
	prev, ok := mo.Payload.(*Tree)
	if !ok || !prev.CompatibleWith(schema) {
		svc.Logger.Warn("stored trend not resumable, starting fresh", "task", name)
		return nil, false
	}
	return prev, true
}

func (t *SliceTrendingTask) rowTime(trig runner.Trigger) int64 {
	switch t.opts.TrendingTimestamp {
	case StampValidFrom:
		return trig.Activity.Validity.Min / 1000
	case StampValidUntil:
		return trig.Activity.Validity.Max / 1000
	default:
		return trig.Timestamp / 1000
	}
}

func (t *SliceTrendingTask) Update(ctx context.Context, trig runner.Trigger) error {
	values := map[string][]float64{}
	for _, s := range t.sources {
		mo, err := t.svc.DB.RetrieveMO(ctx, s.cfg.Path, s.cfg.Name, trig.Timestamp, trig.Activity, nil)
		if err != nil {
			return fmt.Errorf("task %q source %q: %w", t.name, s.branch, err)
		}
		if err := s.red.UpdateSliced(mo, s.cfg.AxisDivisionX, s.cfg.AxisDivisionY); err != nil {
			return fmt.Errorf("task %q source %q: %w", t.name, s.branch, err)
		}
		values[s.branch] = sliceValues(s.red)
		if b := t.tree.Branch(s.branch); b != nil {
			b.Labels = sliceLabels(s.red.Slices())
		}
	}

	if err := t.tree.AppendRow(int32(trig.Activity.ID), uint32(t.rowTime(trig)), values); err != nil {
		rowsTotal.WithLabelValues(t.name, "error").Inc()
		return err
	}
	rowsTotal.WithLabelValues(t.name, "ok").Inc()

	t.treeMO.Activity = trig.Activity
	if err := t.svc.Objects.Publish(ctx, t.treeMO, trig, runner.PolicyThroughStop); err != nil {
		return err
	}
	if t.opts.ProducePlotsOnUpdate {
		return t.generatePlots(ctx, trig)
	}
	return nil
}

func (t *SliceTrendingTask) Finalize(ctx context.Context, trig runner.Trigger) error {
	if err := t.svc.Objects.Publish(ctx, t.treeMO, trig, runner.PolicyThroughStop); err != nil {
		return err
	}
	return t.generatePlots(ctx, trig)
}

// sliceBounds returns the x bounds of slice i from the source's axis
// divisions, nil when the divisions do not cover it.
func (t *SliceTrendingTask) sliceBounds(src *sliceSource, i int) *[2]float64 {
	div := src.cfg.AxisDivisionX
	if i+1 >= len(div) {
		return nil
	}
	return &[2]float64{div[i], div[i+1]}
}

func sliceLabels(records []reductor.SliceRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.LabelX
	}
	return out
}

func (t *SliceTrendingTask) generatePlots(ctx context.Context, trig runner.Trigger) error {
	var errs []error
	for _, pc := range t.opts.Plots {
		canvas, err := t.renderPlot(pc)
		if err != nil {
			errs = append(errs, fmt.Errorf("plot %q: %w", pc.Name, err))
			continue
		}
		mo := core.NewMonitorObject(canvas, t.name, "SliceTrendingTask", t.cfg.Detector)
		mo.Activity = trig.Activity
		if err := t.svc.Objects.Publish(ctx, mo, trig, runner.PolicyOnce); err != nil {
			errs = append(errs, fmt.Errorf("plot %q: %w", pc.Name, err))
			continue
		}
		plotsTotal.WithLabelValues(t.name).Inc()
	}
	return errors.Join(errs...)
}

// renderPlot evaluates one slice plot. The varexp's first expression names
// the record field ("branch.field" or bare field of the only branch).
func (t *SliceTrendingTask) renderPlot(pc SlicePlotConfig) (*histo.Canvas, error) {
	src, field, err := t.resolveField(pc.VarExp)
	if err != nil {
		return nil, err
	}
	cols, labels, err := t.sliceColumns(src, field)
	if err != nil {
		return nil, err
	}

	canvas := histo.NewCanvas(pc.Name, pc.Title)
	pad := canvas.AddPad(pc.Name + "_pad")

	switch pc.Mode {
	case ModeSlices, "":
		pad.Draw(t.sliceProfile(pc, cols, labels))
	case ModeSlices2D:
		g, err := t.sliceGrid(pc, src, cols)
		if err != nil {
			return nil, err
		}
		pad.Draw(g)
	case ModeTime, ModeRun:
		g := t.trendGraph(pc.PlotConfig, firstColumn(cols), pc.Mode == ModeTime)
		if len(src.cfg.AxisDivisionX) >= 2 {
			bounds := [2]float64{src.cfg.AxisDivisionX[0], src.cfg.AxisDivisionX[1]}
			g.Title = plotting.RewriteRangeTitle(g.Title, pc.PlotConfig, &bounds, nil)
		}
		pad.Draw(g)
	case ModeMultigraphTim, ModeMultigraphRun:
		legend := &histo.Legend{Name: pc.Name + "_legend"}
		for i, col := range cols {
			g := t.trendGraph(pc.PlotConfig, col, pc.Mode == ModeMultigraphTim)
			g.Name = fmt.Sprintf("%s_slice%d", pc.Name, i)
			if i < len(labels) && labels[i] != "" {
				legend.AddEntry(labels[i], 0)
			}
			if b := t.sliceBounds(src, i); b != nil {
				g.Title = plotting.RewriteRangeTitle(pc.Title, pc.PlotConfig, b, nil)
			}
			pad.Draw(g)
		}
		pad.Draw(legend)
	}
	return canvas, nil
}

// resolveField maps the varexp's leading expression onto a sliced source
// and one of its record fields.
func (t *SliceTrendingTask) resolveField(varexp string) (*sliceSource, string, error) {
	expr, _, _ := strings.Cut(varexp, ":")
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, "", fmt.Errorf("empty varexp: %w", core.ErrConfig)
	}
	if branch, field, found := strings.Cut(expr, "."); found {
		for _, s := range t.sources {
			if s.branch == branch {
				return s, field, nil
			}
		}
		return nil, "", fmt.Errorf("unknown branch %q: %w", branch, core.ErrSchema)
	}
	if len(t.sources) == 1 {
		return t.sources[0], expr, nil
	}
	return nil, "", fmt.Errorf("ambiguous field %q, qualify with a branch: %w", expr, core.ErrConfig)
}

// sliceColumns splits a sliced branch into one column per slice for the
// given record field. Rows shorter than the slice count contribute zeros.
func (t *SliceTrendingTask) sliceColumns(src *sliceSource, field string) ([][]float64, []string, error) {
	b := t.tree.Branch(src.branch)
	if b == nil {
		return nil, nil, fmt.Errorf("branch %q missing from tree: %w", src.branch, core.ErrSchema)
	}
	leaves, err := reductor.ParseLeafList(b.LeafList)
	if err != nil {
		return nil, nil, err
	}
	fieldOffset := -1
	offset := 0
	for _, l := range leaves {
		if l.Name == field {
			fieldOffset = offset
			break
		}
		offset += l.Width()
	}
	if fieldOffset < 0 {
		return nil, nil, fmt.Errorf("branch %q has no field %q: %w", src.branch, field, core.ErrSchema)
	}

	width := reductor.RecordWidth(leaves)
	nSlices := 0
	for _, row := range b.Rows {
		if n := len(row) / width; n > nSlices {
			nSlices = n
		}
	}
	cols := make([][]float64, nSlices)
	for i := range cols {
		col := make([]float64, len(b.Rows))
		for r, row := range b.Rows {
			at := i*width + fieldOffset
			if at < len(row) {
				col[r] = row[at]
			}
		}
		cols[i] = col
	}
	return cols, b.Labels, nil
}

func firstColumn(cols [][]float64) []float64 {
	if len(cols) == 0 {
		return nil
	}
	return cols[0]
}

// trendGraph draws one column against time or run order.
func (t *SliceTrendingTask) trendGraph(pc plotting.PlotConfig, col []float64, timeAxis bool) *histo.Graph {
	g := histo.NewGraph(pc.Name, pc.Title)
	if timeAxis {
		for i, ts := range t.tree.Times {
			if i < len(col) {
				g.AddPoint(float64(ts), col[i])
			}
		}
		g.XAxis.TimeDisplay = true
		g.XAxis.TimeFormat = plotting.TimeAxisFormat
		g.XAxis.NDivisions = plotting.TimeAxisDivisions
	} else {
		for i := range col {
			g.AddPoint(float64(i), col[i])
		}
		runs := t.tree.SeenRunNumbers()
		g.XAxis.NoExponent = true
		g.XAxis.NBins = len(runs)
		for i, r := range runs {
			g.XAxis.SetBinLabel(i, strconv.Itoa(int(r)))
		}
	}
	return g
}

// sliceProfile draws the last row's field values against slice labels.
func (t *SliceTrendingTask) sliceProfile(pc SlicePlotConfig, cols [][]float64, labels []string) *histo.Histogram {
	h := histo.NewHistogram(pc.Name, pc.Title, len(cols), 0, float64(len(cols)))
	for i, col := range cols {
		if len(col) > 0 {
			h.SetBinContent(i, col[len(col)-1])
		}
		if i < len(labels) {
			h.XAxis.SetBinLabel(i, labels[i])
		}
	}
	return h
}

// sliceGrid renders the last row as an x-by-y grid from the source's axis
// divisions.
func (t *SliceTrendingTask) sliceGrid(pc SlicePlotConfig, src *sliceSource, cols [][]float64) (*histo.Histogram2D, error) {
	nx, ny := len(src.cfg.AxisDivisionX)-1, len(src.cfg.AxisDivisionY)-1
	if nx < 1 || ny < 1 {
		return nil, fmt.Errorf("plot %q wants a 2-D grid but source %q has no y divisions: %w",
			pc.Name, src.branch, core.ErrConfig)
	}
	h := histo.NewHistogram2D(pc.Name, pc.Title,
		nx, src.cfg.AxisDivisionX[0], src.cfg.AxisDivisionX[nx],
		ny, src.cfg.AxisDivisionY[0], src.cfg.AxisDivisionY[ny])
	for i, col := range cols {
		if len(col) == 0 {
			continue
		}
		h.SetBinContent(i%nx, i/nx, col[len(col)-1])
	}
	return h, nil
}
