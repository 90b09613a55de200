// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package inspector

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/qcpost/services/postprocessing/config"
	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/histo"
	"github.com/AleutianAI/qcpost/services/postprocessing/repository"
	"github.com/AleutianAI/qcpost/services/postprocessing/runner"
)

func newInspectorFixture(t *testing.T) (runner.Services, *repository.BadgerDatabase) {
	t.Helper()
	db, err := repository.OpenBadger(repository.InMemoryBadgerConfig())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return runner.Services{
		DB:      db,
		Objects: runner.NewObjectsManager(db, logger),
		Logger:  logger,
	}, db
}

func storeCondition(t *testing.T, db *repository.BadgerDatabase, name string, run int) {
	t.Helper()
	h := histo.NewHistogram(name, name, 10, 0, 10)
	h.Fill(5)
	mo := core.NewMonitorObject(h, "Calib", "", "TPC")
	mo.Activity = core.NewActivity(run)
	if err := db.StoreMO(context.Background(), mo); err != nil {
		t.Fatalf("store condition: %v", err)
	}
}

func inspectorTaskConfig(t *testing.T, options string) config.TaskConfig {
	t.Helper()
	cfg := config.TaskConfig{
		Name:      "ConditionWatch",
		ClassName: "ObjectInspectorTask",
		Detector:  "TPC",
	}
	if err := yaml.Unmarshal([]byte(options), &cfg.Options); err != nil {
		t.Fatalf("options yaml: %v", err)
	}
	return cfg
}

const watchOptions = `
databaseType: ccdb
timeStampTolerance: 1
dataSources:
  - path: qc/TPC/MO/Calib/Gain
    updatePolicy: periodic
    cycleDuration: 10
  - path: qc/TPC/MO/Calib/Pedestals
    updatePolicy: periodic
    cycleDuration: 10
    binNumber: 1
`

func statusMatrix(t *testing.T, db *repository.BadgerDatabase) *histo.Histogram2D {
	t.Helper()
	mo, err := db.RetrieveMO(context.Background(), core.MOPath("TPC", "ConditionWatch"),
		StatusObjectName, repository.TimestampLatest, core.Activity{}, nil)
	if err != nil {
		t.Fatalf("retrieve status matrix: %v", err)
	}
	m, ok := mo.Payload.(*histo.Histogram2D)
	if !ok {
		t.Fatalf("status payload is %T, want *histo.Histogram2D", mo.Payload)
	}
	return m
}

func TestInspectorPeriodicStatus(t *testing.T) {
	svc, db := newInspectorFixture(t)
	storeCondition(t, db, "Gain", 303000)

	task := &ObjectInspectorTask{}
	if err := task.Configure("ConditionWatch", inspectorTaskConfig(t, watchOptions)); err != nil {
		t.Fatalf("configure: %v", err)
	}
	ctx := context.Background()
	now := time.Now().UnixMilli()
	trig := runner.Trigger{Type: runner.TriggerPeriodic, Timestamp: now, Activity: core.NewActivity(303000)}
	// Start one cycle in the past so the sources are already due.
	initTrig := trig
	initTrig.Timestamp = now - 11_000
	if err := task.Initialize(ctx, svc, initTrig); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	t.Run("fresh object is ok, absent one is missing", func(t *testing.T) {
		if err := task.Update(ctx, trig); err != nil {
			t.Fatalf("update: %v", err)
		}
		m := statusMatrix(t, db)
		if got := m.GetBinContent(0, rowOK); got != 1 {
			t.Fatalf("Gain ok row = %v, want 1", got)
		}
		if got := m.GetBinContent(1, rowMissing); got != 1 {
			t.Fatalf("Pedestals missing row = %v, want 1", got)
		}
	})

	t.Run("object past its cycle budget is too old", func(t *testing.T) {
		late := trig
		late.Timestamp = now + 15_000
		if err := task.Update(ctx, late); err != nil {
			t.Fatalf("update: %v", err)
		}
		m := statusMatrix(t, db)
		if got := m.GetBinContent(0, rowOld); got != 1 {
			t.Fatalf("Gain old row = %v, want 1", got)
		}
		if got := m.GetBinContent(0, rowOK); got != 0 {
			t.Fatalf("Gain ok row = %v, want 0", got)
		}
	})

	t.Run("refreshed object recovers", func(t *testing.T) {
		storeCondition(t, db, "Gain", 303000)
		late := trig
		late.Timestamp = time.Now().UnixMilli()
		if err := task.Update(ctx, late); err != nil {
			t.Fatalf("update: %v", err)
		}
		if got := statusMatrix(t, db).GetBinContent(0, rowOK); got != 1 {
			t.Fatalf("Gain ok row = %v, want 1", got)
		}
	})

	t.Run("wrong run number counts as missing", func(t *testing.T) {
		wrongRun := trig
		wrongRun.Timestamp = time.Now().UnixMilli()
		wrongRun.Activity = core.NewActivity(404000)
		if err := task.Update(ctx, wrongRun); err != nil {
			t.Fatalf("update: %v", err)
		}
		if got := statusMatrix(t, db).GetBinContent(0, rowMissing); got != 1 {
			t.Fatalf("Gain missing row = %v, want 1", got)
		}
	})
}

type rejectValidator struct{}

func (rejectValidator) Validate([]byte, map[string]string) bool { return false }

func TestInspectorValidatorVerdict(t *testing.T) {
	Validators.Register("testmod", "RejectValidator", func() Validator { return rejectValidator{} })

	svc, db := newInspectorFixture(t)
	storeCondition(t, db, "Gain", 303000)

	const options = `
dataSources:
  - path: qc/TPC/MO/Calib/Gain
    updatePolicy: periodic
    cycleDuration: 10
    validatorName: RejectValidator
    moduleName: testmod
`
	task := &ObjectInspectorTask{}
	if err := task.Configure("ConditionWatch", inspectorTaskConfig(t, options)); err != nil {
		t.Fatalf("configure: %v", err)
	}
	ctx := context.Background()
	trig := runner.Trigger{Type: runner.TriggerPeriodic, Timestamp: time.Now().UnixMilli(), Activity: core.NewActivity(303000)}
	initTrig := trig
	initTrig.Timestamp = trig.Timestamp - 11_000
	if err := task.Initialize(ctx, svc, initTrig); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if err := task.Update(ctx, trig); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got := statusMatrix(t, db).GetBinContent(0, rowInvalid); got != 1 {
		t.Fatalf("invalid row = %v, want 1", got)
	}
}

func TestInspectorPeriodicGracePeriod(t *testing.T) {
	svc, db := newInspectorFixture(t)
	storeCondition(t, db, "Gain", 303000)

	task := &ObjectInspectorTask{}
	if err := task.Configure("ConditionWatch", inspectorTaskConfig(t, watchOptions)); err != nil {
		t.Fatalf("configure: %v", err)
	}
	ctx := context.Background()
	now := time.Now().UnixMilli()
	trig := runner.Trigger{Type: runner.TriggerPeriodic, Timestamp: now, Activity: core.NewActivity(303000)}
	if err := task.Initialize(ctx, svc, trig); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	// Inside the first cycle nothing has been graded yet.
	early := trig
	early.Timestamp = now + 1_000
	if err := task.Update(ctx, early); err != nil {
		t.Fatalf("update: %v", err)
	}
	m := statusMatrix(t, db)
	for row := 0; row < statusRows; row++ {
		if got := m.GetBinContent(0, row); got != 0 {
			t.Fatalf("row %d = %v before the first cycle, want 0", row, got)
		}
	}
}

func TestInspectorFinalizeRetries(t *testing.T) {
	svc, db := newInspectorFixture(t)

	const options = `
retryTimeout: 60
retryDelay: 5
dataSources:
  - path: qc/TPC/MO/Calib/Gain
    updatePolicy: atEoR
`
	task := &ObjectInspectorTask{}
	if err := task.Configure("ConditionWatch", inspectorTaskConfig(t, options)); err != nil {
		t.Fatalf("configure: %v", err)
	}
	ctx := context.Background()
	trig := runner.Trigger{Type: runner.TriggerEndOfRun, Timestamp: time.Now().UnixMilli(), Activity: core.NewActivity(303000)}
	if err := task.Initialize(ctx, svc, trig); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	// The object shows up while the task is waiting between retries.
	slept := 0
	task.sleep = func(time.Duration) {
		slept++
		if slept == 2 {
			storeCondition(t, db, "Gain", 303000)
		}
	}
	if err := task.Finalize(ctx, trig); err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if slept != 2 {
		t.Fatalf("retry sleeps = %d, want 2", slept)
	}
	if got := statusMatrix(t, db).GetBinContent(0, rowOK); got != 1 {
		t.Fatalf("ok row = %v, want 1", got)
	}
}

func TestInspectorConfigure(t *testing.T) {
	cases := []struct {
		name    string
		options string
	}{
		{"no sources", `databaseType: ccdb`},
		{"unknown policy", `
dataSources:
  - path: qc/TPC/MO/Calib/Gain
    updatePolicy: sometimes
`},
		{"periodic without cycle", `
dataSources:
  - path: qc/TPC/MO/Calib/Gain
    updatePolicy: periodic
`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			task := &ObjectInspectorTask{}
			err := task.Configure("ConditionWatch", inspectorTaskConfig(t, tc.options))
			if !errors.Is(err, core.ErrConfig) {
				t.Fatalf("configure error = %v, want ErrConfig", err)
			}
		})
	}
}
