// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1

package gateway

import "github.com/prometheus/client_golang/prometheus"

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axonflow_gateway_requests_total",
			Help: "Total gateway requests by outcome.",
		},
		[]string{"outcome"},
	)
	guardLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "axonflow_gateway_guard_duration_milliseconds",
			Help:    "Latency of each guard stage.",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 200, 500},
		},
		[]string{"guard"},
	)
	rateLimitDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axonflow_gateway_rate_limit_denials_total",
			Help: "Rate limiter denials by scope/window.",
		},
		[]string{"limit_type"},
	)
	consentChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axonflow_gateway_consent_checks_total",
			Help: "Consent checks by reason.",
		},
		[]string{"reason"},
	)
	securityBlocks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axonflow_gateway_security_blocks_total",
			Help: "Security pipeline blocks by matched pattern.",
		},
		[]string{"pattern"},
	)
	parseAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axonflow_gateway_parse_attempts_total",
			Help: "ParseOrchestrator attempts by resulting status.",
		},
		[]string{"status"},
	)
	evaluatorScores = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "axonflow_gateway_evaluator_score",
			Help:    "Evaluator sub-scores.",
			Buckets: []float64{0, 20, 40, 60, 70, 80, 90, 100},
		},
		[]string{"dimension"},
	)
	conflictsByField = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "axonflow_gateway_conflicts_total",
			Help: "Extraction conflicts raised by field.",
		},
		[]string{"field"},
	)
)

func init() {
	prometheus.MustRegister(
		requestsTotal, guardLatency, rateLimitDenials, consentChecks,
		securityBlocks, parseAttempts, evaluatorScores, conflictsByField,
	)
}
