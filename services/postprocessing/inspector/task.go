// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package inspector watches a list of condition objects and reports, per
// source, whether a fresh and valid object exists in the store.
package inspector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/qcpost/services/postprocessing/config"
	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
	"github.com/AleutianAI/qcpost/services/postprocessing/registry"
	"github.com/AleutianAI/qcpost/services/postprocessing/repository"
	"github.com/AleutianAI/qcpost/services/postprocessing/runner"
)

func init() {
	runner.Tasks.Register("common", "ObjectInspectorTask", func() runner.Task { return &ObjectInspectorTask{} })
}

// Source update policies.
const (
	PolicyPeriodic = "periodic"
	PolicyAtSoR    = "atSoR"
	PolicyAtEoR    = "atEoR"
)

// Status of one watched source.
type Status int

const (
	StatusUnknown Status = iota
	StatusOK
	StatusInvalid
	StatusOld
	StatusMissing
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusInvalid:
		return "INVALID"
	case StatusOld:
		return "OLD"
	case StatusMissing:
		return "MISSING"
	}
	return "UNKNOWN"
}

// Status matrix rows.
const (
	rowMissing = 0
	rowOld     = 1
	rowInvalid = 2
	rowOK      = 3
	statusRows = 4
)

// StatusObjectName is the published status matrix.
const StatusObjectName = "ObjectsStatus"

var checksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "qcpost_inspector_checks_total",
	Help: "Condition-object checks by source path and resulting status.",
}, []string{"source", "status"})

// Validator inspects a fetched condition payload. A false verdict marks
// the source INVALID.
type Validator interface {
	Validate(payload []byte, metadata map[string]string) bool
}

// Validators holds the registered validator classes.
var Validators = registry.New[Validator]("validator")

func init() {
	Validators.Register("common", "NonEmptyValidator", func() Validator { return nonEmptyValidator{} })
}

// nonEmptyValidator accepts any payload with content.
type nonEmptyValidator struct{}

func (nonEmptyValidator) Validate(payload []byte, _ map[string]string) bool {
	return len(payload) > 0
}

// SourceConfig describes one watched condition object.
type SourceConfig struct {
	Path string `yaml:"path"`

	// UpdatePolicy is periodic, atSoR or atEoR.
	UpdatePolicy string `yaml:"updatePolicy"`

	// CycleDuration is the refresh budget in seconds for periodic
	// sources.
	CycleDuration int64 `yaml:"cycleDuration"`

	// BinNumber fixes the source's column in the status matrix;
	// zero assigns columns in configuration order.
	BinNumber int `yaml:"binNumber"`

	ValidatorName string `yaml:"validatorName"`
	ModuleName    string `yaml:"moduleName"`
}

// InspectorOptions is the option block of an ObjectInspectorTask.
type InspectorOptions struct {
	// DatabaseType is ccdb or qcdb, recorded on the status matrix.
	DatabaseType string `yaml:"databaseType"`
	DatabaseURL  string `yaml:"databaseUrl"`

	// TimeStampTolerance widens the periodic staleness check, seconds.
	TimeStampTolerance int64 `yaml:"timeStampTolerance"`

	// RetryTimeout and RetryDelay bound the finalize retry loop for
	// atEoR sources, seconds.
	RetryTimeout int64 `yaml:"retryTimeout"`
	RetryDelay   int64 `yaml:"retryDelay"`

	Sources []SourceConfig `yaml:"dataSources"`
}

type watchedSource struct {
	cfg       SourceConfig
	column    int
	validator Validator

	lastCreation int64
	status       Status

	// validObjects counts distinct OK versions seen over the run.
	validObjects int
}

// ObjectInspectorTask polls the watched sources on update triggers and
// publishes a status matrix with one column per source.
type ObjectInspectorTask struct {
	name string
	cfg  config.TaskConfig
	opts InspectorOptions

	svc       runner.Services
	sources   []*watchedSource
	matrix    *histo.Histogram2D
	matrixMO  *core.MonitorObject
	startTime int64

	// sleep is swappable in tests to keep the finalize retry loop fast.
	sleep func(time.Duration)
}

func (t *ObjectInspectorTask) Configure(name string, cfg config.TaskConfig) error {
	t.name = name
	t.cfg = cfg
	t.sleep = time.Sleep
	if err := cfg.DecodeOptions(&t.opts); err != nil {
		return err
	}
	if len(t.opts.Sources) == 0 {
		return fmt.Errorf("task %q has no sources: %w", name, core.ErrConfig)
	}
	if t.opts.RetryDelay <= 0 {
		t.opts.RetryDelay = 10
	}

	t.sources = nil
	for i, sc := range t.opts.Sources {
		switch sc.UpdatePolicy {
		case PolicyPeriodic, PolicyAtSoR, PolicyAtEoR:
		default:
			return fmt.Errorf("task %q source %q: unknown policy %q: %w",
				name, sc.Path, sc.UpdatePolicy, core.ErrConfig)
		}
		if sc.UpdatePolicy == PolicyPeriodic && sc.CycleDuration <= 0 {
			return fmt.Errorf("task %q source %q: periodic needs a cycle: %w",
				name, sc.Path, core.ErrConfig)
		}
		column := sc.BinNumber
		if column == 0 {
			column = i
		}
		t.sources = append(t.sources, &watchedSource{cfg: sc, column: column})
	}
	return nil
}

func sourceModule(sc SourceConfig) string {
	if sc.ModuleName == "" {
		return "common"
	}
	return sc.ModuleName
}

func (t *ObjectInspectorTask) Initialize(ctx context.Context, svc runner.Services, trig runner.Trigger) error {
	t.svc = svc
	t.startTime = trig.Timestamp

	columns := 0
	for _, s := range t.sources {
		if s.cfg.ValidatorName != "" {
			v, err := Validators.Create(sourceModule(s.cfg), s.cfg.ValidatorName)
			if err != nil {
				return fmt.Errorf("task %q source %q: %w", t.name, s.cfg.Path, err)
			}
			s.validator = v
		}
		if s.column+1 > columns {
			columns = s.column + 1
		}
	}

	t.matrix = histo.NewHistogram2D(StatusObjectName, "Condition object status",
		columns, 0, float64(columns), statusRows, 0, statusRows)
	t.matrix.YAxis.SetBinLabel(rowMissing, "not found")
	t.matrix.YAxis.SetBinLabel(rowOld, "too old")
	t.matrix.YAxis.SetBinLabel(rowInvalid, "invalid")
	t.matrix.YAxis.SetBinLabel(rowOK, "ok")
	for _, s := range t.sources {
		t.matrix.XAxis.SetBinLabel(s.column, s.cfg.Path)
	}
	t.matrixMO = core.NewMonitorObject(t.matrix, t.name, "ObjectInspectorTask", t.cfg.Detector)
	t.matrixMO.IsOwner = false
	if t.opts.DatabaseType != "" {
		t.matrixMO.AddMetadata("databaseType", t.opts.DatabaseType)
	}

	// Start-of-run sources are checked once, right away.
	for _, s := range t.sources {
		if s.cfg.UpdatePolicy == PolicyAtSoR {
			s.status = t.inspect(ctx, s, trig)
		}
	}
	return nil
}

func (t *ObjectInspectorTask) Update(ctx context.Context, trig runner.Trigger) error {
	for _, s := range t.sources {
		if s.cfg.UpdatePolicy != PolicyPeriodic {
			continue
		}
		// A periodic source gets its first full cycle to appear.
		if trig.Timestamp-t.startTime < s.cfg.CycleDuration*1000 {
			continue
		}
		s.status = t.inspect(ctx, s, trig)
	}
	return t.publish(ctx, trig)
}

// Finalize retries the end-of-run sources until all are found or the retry
// budget expires, then publishes the final matrix.
func (t *ObjectInspectorTask) Finalize(ctx context.Context, trig runner.Trigger) error {
	deadline := time.Now().Add(time.Duration(t.opts.RetryTimeout) * time.Second)
	for {
		pending := 0
		for _, s := range t.sources {
			// End-of-run sources are checked until first found.
			if s.cfg.UpdatePolicy != PolicyAtEoR || s.status == StatusOK {
				continue
			}
			s.status = t.inspect(ctx, s, trig)
			if s.status == StatusMissing {
				pending++
			}
		}
		if pending == 0 || t.opts.RetryTimeout <= 0 || time.Now().After(deadline) {
			break
		}
		select {
		case <-ctx.Done():
			return t.publish(context.WithoutCancel(ctx), trig)
		default:
		}
		t.sleep(time.Duration(t.opts.RetryDelay) * time.Second)
	}
	for _, s := range t.sources {
		t.svc.Logger.Info("source summary",
			"task", t.name, "source", s.cfg.Path,
			"status", s.status.String(), "validObjects", s.validObjects)
	}
	return t.publish(ctx, trig)
}

// inspect grades one source against the store at the trigger time.
func (t *ObjectInspectorTask) inspect(ctx context.Context, s *watchedSource, trig runner.Trigger) (status Status) {
	defer func() { checksTotal.WithLabelValues(s.cfg.Path, status.String()).Inc() }()

	payload, md, err := t.svc.DB.RetrieveRaw(ctx, s.cfg.Path, repository.TimestampLatest, nil)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) && !errors.Is(err, core.ErrTimeout) {
			t.svc.Logger.Warn("inspector fetch failed", "task", t.name, "source", s.cfg.Path, "error", err)
		}
		return StatusMissing
	}

	created, _ := strconv.ParseInt(md[core.MetaCreated], 10, 64)
	// An unset run number on either end matches everything.
	if runStr := md[core.MetaRunNumber]; runStr != "" && trig.Activity.ID > 0 {
		if run, err := strconv.Atoi(runStr); err == nil && run > 0 && run != trig.Activity.ID {
			return StatusMissing
		}
	}
	if created <= s.lastCreation && s.cfg.UpdatePolicy != PolicyPeriodic {
		return StatusMissing
	}

	if s.validator != nil {
		if valid := t.validate(ctx, s, md); !valid {
			return StatusInvalid
		}
	} else if len(payload) == 0 {
		return StatusInvalid
	}

	if s.cfg.UpdatePolicy == PolicyPeriodic {
		budget := (s.cfg.CycleDuration + t.opts.TimeStampTolerance) * 1000
		if trig.Timestamp-created > budget {
			return StatusOld
		}
	}
	if created > s.lastCreation {
		s.validObjects++
	}
	s.lastCreation = created
	return StatusOK
}

// validate fetches the payload just inside its validity and runs the
// source's validator on it.
func (t *ObjectInspectorTask) validate(ctx context.Context, s *watchedSource, md map[string]string) bool {
	until, err := strconv.ParseInt(md[core.MetaValidUntil], 10, 64)
	if err != nil || until <= 0 {
		return false
	}
	payload, fullMD, err := t.svc.DB.RetrieveRaw(ctx, s.cfg.Path, until-1, nil)
	if err != nil {
		return false
	}
	return s.validator.Validate(payload, fullMD)
}

// publish redraws the status matrix from scratch and republishes it.
func (t *ObjectInspectorTask) publish(ctx context.Context, trig runner.Trigger) error {
	t.matrix.Reset()
	for _, s := range t.sources {
		switch s.status {
		case StatusMissing:
			t.matrix.SetBinContent(s.column, rowMissing, 1)
		case StatusOld:
			t.matrix.SetBinContent(s.column, rowOld, 1)
		case StatusInvalid:
			t.matrix.SetBinContent(s.column, rowInvalid, 1)
		case StatusOK:
			t.matrix.SetBinContent(s.column, rowOK, 1)
		}
	}
	t.matrixMO.Activity = trig.Activity
	return t.svc.Objects.Publish(ctx, t.matrixMO, trig, runner.PolicyThroughStop)
}
