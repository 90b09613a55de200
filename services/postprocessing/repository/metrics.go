// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package repository

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// === Prometheus Metrics ===

var (
	retrievalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qcpost_repository_retrievals_total",
		Help: "Object retrievals by backend and result (hit, miss, error).",
	}, []string{"backend", "result"})

	storesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "qcpost_repository_stores_total",
		Help: "Object stores by backend and result (ok, error).",
	}, []string{"backend", "result"})

	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "qcpost_repository_operation_duration_seconds",
		Help:    "Latency of object-store operations.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "operation"})
)
