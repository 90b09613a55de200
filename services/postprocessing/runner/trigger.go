// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package runner drives post-processing tasks: it parses trigger
// specifications into polling functions, owns the task state machine, and
// publishes task output through the objects manager.
package runner

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/qcpost/services/postprocessing/core"
	"github.com/AleutianAI/qcpost/services/postprocessing/repository"
)

// TriggerType says what caused a task activation.
type TriggerType int

const (
	TriggerNo TriggerType = iota
	TriggerOnce
	TriggerAlways
	TriggerPeriodic
	TriggerNewObject
	TriggerForEachObject
	TriggerStartOfRun
	TriggerEndOfRun
	TriggerUserOrControl
)

func (t TriggerType) String() string {
	switch t {
	case TriggerOnce:
		return "Once"
	case TriggerAlways:
		return "Always"
	case TriggerPeriodic:
		return "Periodic"
	case TriggerNewObject:
		return "NewObject"
	case TriggerForEachObject:
		return "ForEachObject"
	case TriggerStartOfRun:
		return "StartOfRun"
	case TriggerEndOfRun:
		return "EndOfRun"
	case TriggerUserOrControl:
		return "UserOrControl"
	default:
		return "No"
	}
}

// Trigger is one task activation: why, when (ms since epoch) and under
// which activity. Last marks the final activation of a sequence trigger.
type Trigger struct {
	Type      TriggerType
	Timestamp int64
	Last      bool
	Activity  core.Activity
}

// TriggerFn polls one trigger source. It reports whether the trigger fired;
// errors are reserved for store-backed triggers.
type TriggerFn func(ctx context.Context) (Trigger, bool, error)

// nowMillis is swappable in tests.
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// NewOnceTrigger fires on its first poll and never again.
func NewOnceTrigger(activity core.Activity) TriggerFn {
	fired := false
	return func(context.Context) (Trigger, bool, error) {
		if fired {
			return Trigger{}, false, nil
		}
		fired = true
		return Trigger{Type: TriggerOnce, Timestamp: nowMillis(), Last: true, Activity: activity}, true, nil
	}
}

// NewAlwaysTrigger fires on every poll.
func NewAlwaysTrigger(activity core.Activity) TriggerFn {
	return func(context.Context) (Trigger, bool, error) {
		return Trigger{Type: TriggerAlways, Timestamp: nowMillis(), Activity: activity}, true, nil
	}
}

// NewNeverTrigger never fires.
func NewNeverTrigger() TriggerFn {
	return func(context.Context) (Trigger, bool, error) {
		return Trigger{}, false, nil
	}
}

// NewPeriodicTrigger fires when a deadline passes, stamping the trigger
// with the deadline rather than the poll time. Missed deadlines do not
// burst: the next deadline is advanced past now in one step.
func NewPeriodicTrigger(period time.Duration, activity core.Activity) (TriggerFn, error) {
	if period <= 0 {
		return nil, fmt.Errorf("periodic trigger period must be positive: %w", core.ErrConfig)
	}
	next := nowMillis() + period.Milliseconds()
	return func(context.Context) (Trigger, bool, error) {
		now := nowMillis()
		if now < next {
			return Trigger{}, false, nil
		}
		t := Trigger{Type: TriggerPeriodic, Timestamp: next, Activity: activity}
		for next <= now {
			next += period.Milliseconds()
		}
		return t, true, nil
	}, nil
}

// NewObjectTrigger fires when the object at fullPath changes content, as
// seen through its Content-MD5. The first poll initializes the baseline
// without firing unless the object appeared after the trigger was created.
// The fired trigger carries the new object's Valid-From.
func NewObjectTrigger(db repository.Database, fullPath string, activity core.Activity) TriggerFn {
	initialized := false
	lastMD5 := ""
	return func(ctx context.Context) (Trigger, bool, error) {
		_, md, err := db.RetrieveRaw(ctx, fullPath, repository.TimestampLatest, nil)
		if err != nil {
			// A missing object is a quiet poll, not a failure.
			if !initialized {
				initialized = true
				lastMD5 = ""
			}
			return Trigger{}, false, nil
		}
		md5 := md[core.MetaContentMD5]
		if !initialized {
			initialized = true
			lastMD5 = md5
			return Trigger{}, false, nil
		}
		if md5 == lastMD5 {
			return Trigger{}, false, nil
		}
		lastMD5 = md5
		validFrom, _ := strconv.ParseInt(md[core.MetaValidFrom], 10, 64)
		act := activity
		if act.ID == 0 {
			act = core.ActivityFromMetadata(md, act.Provenance)
		}
		return Trigger{Type: TriggerNewObject, Timestamp: validFrom, Activity: act}, true, nil
	}
}

// NewForEachObjectTrigger fires once per stored version of fullPath, in
// creation order, marking the final version with Last. It snapshots the
// listing on its first poll.
func NewForEachObjectTrigger(db repository.Database, fullPath string, activity core.Activity) TriggerFn {
	var stubs []repository.ObjectStub
	loaded := false
	idx := 0
	return func(ctx context.Context) (Trigger, bool, error) {
		if !loaded {
			all, err := db.Listing(ctx, fullPath, nil, false)
			if err != nil {
				return Trigger{}, false, err
			}
			sort.Slice(all, func(i, j int) bool { return all[i].Created < all[j].Created })
			stubs = all
			loaded = true
		}
		if idx >= len(stubs) {
			return Trigger{}, false, nil
		}
		stub := stubs[idx]
		idx++
		act := core.ActivityFromMetadata(stub.Metadata, activity.Provenance)
		return Trigger{
			Type:      TriggerForEachObject,
			Timestamp: stub.ValidFrom,
			Last:      idx == len(stubs),
			Activity:  act,
		}, true, nil
	}
}

// ParseTriggerSpec turns a configuration string into a trigger function.
// Recognized forms: "once", "always", "never", "periodic:<seconds>",
// "newobject:<path>", "foreachobject:<path>", "sor", "eor".
// SOR and EOR are aliases of "once": the runner polls init triggers at
// start and stop triggers at termination, so firing on first poll is
// exactly run-boundary behavior.
func ParseTriggerSpec(spec string, db repository.Database, activity core.Activity) (TriggerFn, error) {
	kind, arg, _ := strings.Cut(spec, ":")
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "once", "sor", "eor", "usercontrol":
		return NewOnceTrigger(activity), nil
	case "always":
		return NewAlwaysTrigger(activity), nil
	case "never":
		return NewNeverTrigger(), nil
	case "periodic":
		seconds, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return nil, fmt.Errorf("bad periodic trigger %q: %w", spec, core.ErrConfig)
		}
		return NewPeriodicTrigger(time.Duration(seconds*float64(time.Second)), activity)
	case "newobject":
		if arg == "" {
			return nil, fmt.Errorf("newobject trigger needs a path: %w", core.ErrConfig)
		}
		return NewObjectTrigger(db, arg, activity), nil
	case "foreachobject":
		if arg == "" {
			return nil, fmt.Errorf("foreachobject trigger needs a path: %w", core.ErrConfig)
		}
		return NewForEachObjectTrigger(db, arg, activity), nil
	default:
		return nil, fmt.Errorf("unknown trigger %q: %w", spec, core.ErrConfig)
	}
}
