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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// === Prometheus Metrics ===

var (
	rowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qcpost_trending_rows_total",
		Help: "Trend rows appended per task and result (ok, error).",
	}, []string{"task", "result"})

	plotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qcpost_trending_plots_total",
		Help: "Trend plots generated per task.",
	}, []string{"task"})
)
