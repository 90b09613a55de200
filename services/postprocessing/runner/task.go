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

	"github.com/AleutianAI/qcpost/services/postprocessing/config"
	"github.com/AleutianAI/qcpost/services/postprocessing/registry"
	"github.com/AleutianAI/qcpost/services/postprocessing/repository"
)

// TrendSink mirrors appended trend rows to an external time-series store.
type TrendSink interface {
	// WriteRow records one appended row: the owning task, the run, the
	// row time in seconds since epoch, and the flattened leaf values.
	WriteRow(ctx context.Context, task string, runNumber int, timeSec int64, fields map[string]float64) error
}

// Services is the explicit service registry handed to every task: the
// object store, the publication manager, an optional trend mirror and a
// logger scoped to the task.
type Services struct {
	DB      repository.Database
	Objects *ObjectsManager
	Trends  TrendSink
	Logger  *slog.Logger
}

// Task is one post-processing task implementation. The driver calls
// Configure once, then Initialize/Update/Finalize as the init, update and
// stop triggers fire. Tasks are single-threaded: the driver never calls two
// methods concurrently.
type Task interface {
	// Configure reads the task's options. Mandatory-option failures
	// surface as core.ErrConfig and keep the task out of the schedule.
	Configure(name string, cfg config.TaskConfig) error

	// Initialize prepares task state at the first init trigger. Plug-in
	// resolution failures are fatal for this task only.
	Initialize(ctx context.Context, svc Services, t Trigger) error

	// Update performs one tick. Errors abort the tick, never the task.
	Update(ctx context.Context, t Trigger) error

	// Finalize publishes terminal output at the stop trigger.
	Finalize(ctx context.Context, t Trigger) error
}

// Tasks is the registry of task classes, keyed by (module, class). Task
// packages register their classes from init.
var Tasks = registry.New[Task]("task")
