// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 SimVault Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for credential and session operations.
var (
	// operationsTotal counts Service calls by operation and outcome kind.
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simvault_auth_operations_total",
		Help: "Total number of auth operations by outcome",
	}, []string{"operation", "outcome"})

	// operationDuration tracks end-to-end latency of Service calls.
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "simvault_auth_operation_duration_seconds",
		Help:    "Histogram of auth operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	// hashInflight is the number of password hashes currently executing.
	hashInflight = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "simvault_auth_hash_inflight",
		Help: "Number of password hash operations currently running",
	})

	// refreshReuse counts presentations of already consumed refresh tokens.
	refreshReuse = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "simvault_auth_refresh_reuse_total",
		Help: "Total number of consumed refresh tokens presented again",
	}, []string{"action"})
)

func recordOperation(operation string, err error, duration time.Duration) {
	outcome := "ok"
	if err != nil {
		outcome = KindOf(err).String()
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
	operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
