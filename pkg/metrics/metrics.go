// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-certauth.
//
// go-certauth is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package metrics provides Prometheus instrumentation for certauth
// operations: certificate issuance, challenge lifecycle, login attempts
// and OAuth2 token flows. Trust-failure reasons appear here and in logs
// only; the HTTP surface stays opaque.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	// Namespace is the Prometheus namespace for all certauth metrics
	Namespace = "certauth"

	// Label names
	LabelOperation  = "operation"
	LabelStatus     = "status"
	LabelReason     = "reason"
	LabelMethod     = "method"
	LabelStatusCode = "status_code"

	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// Operation names
	OpIssueCert   = "issue_certificate"
	OpChallenge   = "challenge"
	OpLogin       = "login"
	OpExchange    = "exchange"
	OpIntrospect  = "introspect"
	OpRevoke      = "revoke"
	OpHealthCheck = "health_check"
)

var (
	// OperationsTotal tracks issuance and authentication operations by
	// type and status.
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "operations_total",
			Help:      "Total number of certauth operations by type and status",
		},
		[]string{LabelOperation, LabelStatus},
	)

	// OperationDuration tracks the duration of certauth operations in
	// seconds. Buckets cover sub-millisecond verification up to
	// multi-second RSA key generation.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of certauth operations in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{LabelOperation},
	)

	// LoginFailuresTotal tracks login failures by internal reason
	// (bad_signature, challenge_expired, cert_revoked, ...). This is the
	// only place the specific reason is counted.
	LoginFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "login_failures_total",
			Help:      "Total number of failed login attempts by internal reason",
		},
		[]string{LabelReason},
	)

	// HTTPRequestsTotal tracks HTTP requests by method and status code.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests by method and status code",
		},
		[]string{LabelMethod, LabelStatusCode},
	)

	// HTTPRequestDuration tracks the duration of HTTP requests in seconds.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{LabelMethod},
	)
)

// RecordOperation increments the operation counter with the given labels.
func RecordOperation(operation, status string) {
	OperationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration observes the duration of an operation in seconds.
func RecordDuration(operation string, seconds float64) {
	OperationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordLoginFailure increments the login failure counter for the given
// internal reason.
func RecordLoginFailure(reason string) {
	LoginFailuresTotal.WithLabelValues(reason).Inc()
}

// RecordHTTPRequest records a completed HTTP request.
func RecordHTTPRequest(method, statusCode string, seconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(seconds)
}
