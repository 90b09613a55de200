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
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/AleutianAI/qcpost/services/postprocessing/config"
)

// InfluxSink mirrors trend rows into an InfluxDB bucket: one point per row,
// measurement named after the task, run number as a tag.
type InfluxSink struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
}

// NewInfluxSink connects the sink described by cfg. A disabled config
// yields a nil sink, which callers treat as "no mirror".
func NewInfluxSink(cfg config.InfluxConfig) *InfluxSink {
	if !cfg.Enabled {
		return nil
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &InfluxSink{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
	}
}

// WriteRow implements the trend sink contract.
func (s *InfluxSink) WriteRow(ctx context.Context, task string, runNumber int, timeSec int64, fields map[string]float64) error {
	if len(fields) == 0 {
		return nil
	}
	values := make(map[string]any, len(fields))
	for k, v := range fields {
		values[k] = v
	}
	point := influxdb2.NewPoint(task,
		map[string]string{"runNumber": strconv.Itoa(runNumber)},
		values,
		time.Unix(timeSec, 0))
	return s.write.WritePoint(ctx, point)
}

// Close flushes and releases the underlying client.
func (s *InfluxSink) Close() {
	if s != nil && s.client != nil {
		s.client.Close()
	}
}
