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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/qcpost/services/postprocessing/config"
	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/repository"
)

// TaskState tracks one task through its lifecycle.
type TaskState int

const (
	StateUndefined TaskState = iota
	StateConfigured
	StateRunning
	StateStopped
	StateFailedInit
	StateFailedConfig
)

func (s TaskState) String() string {
	switch s {
	case StateConfigured:
		return "CONFIGURED"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	case StateFailedInit:
		return "FAILED_INIT"
	case StateFailedConfig:
		return "FAILED_CONFIG"
	default:
		return "UNDEFINED"
	}
}

// taskInstance binds a task to its triggers and publication manager.
type taskInstance struct {
	name    string
	cfg     config.TaskConfig
	task    Task
	state   TaskState
	svc     Services
	inits   []TriggerFn
	updates []TriggerFn
	stops   []TriggerFn
}

// Runner owns every configured task and drives each one from its triggers.
// Tasks are independent: one task failing never affects its siblings.
type Runner struct {
	db     repository.Database
	logger *slog.Logger
	tasks  []*taskInstance

	// PollInterval is how often triggers are polled. Default: 1 s.
	PollInterval time.Duration

	// Trends optionally mirrors appended trend rows to a time-series
	// backend. Set before Run or RunOverTimestamps.
	Trends TrendSink
}

// NewRunner configures every task in cfg. A task whose configuration is
// rejected is kept with state FAILED_CONFIG and skipped by Run; the runner
// itself only fails when no task survives configuration.
func NewRunner(db repository.Database, logger *slog.Logger, cfg *config.Config) (*Runner, error) {
	r := &Runner{db: db, logger: logger, PollInterval: time.Second}
	alive := 0
	for _, tc := range cfg.Tasks {
		ti := r.configureTask(tc)
		r.tasks = append(r.tasks, ti)
		if ti.state == StateConfigured {
			alive++
		}
	}
	if alive == 0 {
		return nil, fmt.Errorf("no task survived configuration: %w", core.ErrConfig)
	}
	return r, nil
}

func (r *Runner) configureTask(tc config.TaskConfig) *taskInstance {
	ti := &taskInstance{name: tc.Name, cfg: tc, state: StateFailedConfig}
	logger := r.logger.With(slog.String("task", tc.Name))

	task, err := Tasks.Create(tc.Module(), tc.ClassName)
	if err != nil {
		logger.Error("task class lookup failed", slog.String("error", err.Error()))
		return ti
	}
	if err := task.Configure(tc.Name, tc); err != nil {
		logger.Error("task configuration failed", slog.String("error", err.Error()))
		return ti
	}

	activity := core.NewActivity(0)
	if ti.inits, err = r.parseTriggers(defaultSpecs(tc.InitTriggers, "once"), activity); err != nil {
		logger.Error("bad init triggers", slog.String("error", err.Error()))
		return ti
	}
	if ti.updates, err = r.parseTriggers(tc.UpdateTriggers, activity); err != nil {
		logger.Error("bad update triggers", slog.String("error", err.Error()))
		return ti
	}
	if ti.stops, err = r.parseTriggers(defaultSpecs(tc.StopTriggers, "never"), activity); err != nil {
		logger.Error("bad stop triggers", slog.String("error", err.Error()))
		return ti
	}

	ti.task = task
	ti.svc = Services{
		DB:      r.db,
		Objects: NewObjectsManager(r.db, logger),
		Logger:  logger,
	}
	ti.state = StateConfigured
	return ti
}

func defaultSpecs(specs []string, fallback string) []string {
	if len(specs) == 0 {
		return []string{fallback}
	}
	return specs
}

func (r *Runner) parseTriggers(specs []string, activity core.Activity) ([]TriggerFn, error) {
	var fns []TriggerFn
	for _, spec := range specs {
		fn, err := ParseTriggerSpec(spec, r.db, activity)
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

// States returns the current state per task name.
func (r *Runner) States() map[string]TaskState {
	out := map[string]TaskState{}
	for _, ti := range r.tasks {
		out[ti.name] = ti.state
	}
	return out
}

// Run drives all configured tasks until ctx is done or every task stopped.
// Each task runs in its own goroutine; errors never cross task boundaries.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ti := range r.tasks {
		if ti.state != StateConfigured {
			continue
		}
		ti.svc.Trends = r.Trends
		ti := ti
		g.Go(func() error {
			r.runTask(ctx, ti)
			return nil
		})
	}
	return g.Wait()
}

// runTask is the per-task loop: wait for an init trigger, tick on update
// triggers, stop on a stop trigger or context end.
func (r *Runner) runTask(ctx context.Context, ti *taskInstance) {
	logger := ti.svc.Logger
	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if ti.state == StateRunning {
				r.stopTask(context.WithoutCancel(ctx), ti, Trigger{
					Type:      TriggerEndOfRun,
					Timestamp: nowMillis(),
					Last:      true,
				})
			}
			return
		case <-ticker.C:
		}

		switch ti.state {
		case StateConfigured:
			if t, ok := pollAny(ctx, ti.inits, logger); ok {
				if err := ti.task.Initialize(ctx, ti.svc, t); err != nil {
					ti.state = StateFailedInit
					logger.Error("task initialization failed",
						slog.String("state", ti.state.String()),
						slog.String("error", err.Error()))
					return
				}
				ti.state = StateRunning
				logger.Info("task initialized", slog.String("trigger", t.Type.String()))
			}
		case StateRunning:
			// Each update trigger is polled once per interval; a tick
			// failure aborts that tick only.
			for _, fn := range ti.updates {
				t, ok, err := fn(ctx)
				if err != nil {
					logger.Warn("trigger poll failed", slog.String("error", err.Error()))
					continue
				}
				if !ok {
					continue
				}
				err = ti.task.Update(ctx, t)
				ticksTotal.WithLabelValues(ti.name, tickResult(err)).Inc()
				if err != nil {
					logger.Warn("task tick aborted", slog.String("error", err.Error()))
				}
			}
			if t, ok := pollAny(ctx, ti.stops, logger); ok {
				r.stopTask(ctx, ti, t)
				return
			}
		default:
			return
		}
	}
}

func (r *Runner) stopTask(ctx context.Context, ti *taskInstance, t Trigger) {
	if err := ti.task.Finalize(ctx, t); err != nil {
		ti.svc.Logger.Warn("task finalization failed", slog.String("error", err.Error()))
	}
	ti.svc.Objects.Stop(ctx, t)
	ti.state = StateStopped
	ti.svc.Logger.Info("task stopped", slog.String("trigger", t.Type.String()))
}

// pollAny returns the first fired trigger among fns.
func pollAny(ctx context.Context, fns []TriggerFn, logger *slog.Logger) (Trigger, bool) {
	for _, fn := range fns {
		t, ok, err := fn(ctx)
		if err != nil {
			logger.Warn("trigger poll failed", slog.String("error", err.Error()))
			continue
		}
		if ok {
			return t, true
		}
	}
	return Trigger{}, false
}

// RunOverTimestamps replays one task over an explicit timestamp sequence:
// initialize at the first, update at each inner one, finalize at the last.
// Used for batch reprocessing of stored data.
func (r *Runner) RunOverTimestamps(ctx context.Context, taskName string, timestamps []int64, activity core.Activity) error {
	if len(timestamps) < 2 {
		return fmt.Errorf("need at least two timestamps (init and finalize), got %d: %w",
			len(timestamps), core.ErrConfig)
	}
	var ti *taskInstance
	for _, cand := range r.tasks {
		if cand.name == taskName {
			ti = cand
			break
		}
	}
	if ti == nil || ti.state != StateConfigured {
		return fmt.Errorf("task %q is not schedulable: %w", taskName, core.ErrConfig)
	}
	ti.svc.Trends = r.Trends

	trigger := func(ts int64, last bool) Trigger {
		return Trigger{Type: TriggerUserOrControl, Timestamp: ts, Last: last, Activity: activity}
	}
	if err := ti.task.Initialize(ctx, ti.svc, trigger(timestamps[0], false)); err != nil {
		ti.state = StateFailedInit
		return err
	}
	ti.state = StateRunning
	var tickErrs []error
	for _, ts := range timestamps[1 : len(timestamps)-1] {
		err := ti.task.Update(ctx, trigger(ts, false))
		ticksTotal.WithLabelValues(ti.name, tickResult(err)).Inc()
		if err != nil {
			ti.svc.Logger.Warn("tick aborted", slog.String("error", err.Error()))
			tickErrs = append(tickErrs, err)
		}
	}
	r.stopTask(ctx, ti, trigger(timestamps[len(timestamps)-1], true))
	return errors.Join(tickErrs...)
}
