// Package metrics provides application-level metrics collection.
// This is a lightweight metrics foundation using atomic counters; the
// development server exports its own prometheus counters.
package metrics

import (
	"sync/atomic"
	"time"
)

// Endpoint classes used to bucket backend calls.
const (
	EndpointUser     = "user"
	EndpointReferral = "referral"
	EndpointTasks    = "tasks"
)

// Metrics holds application metrics using atomic counters for thread safety.
type Metrics struct {
	// Backend metrics
	backendCallsTotal   atomic.Int64
	backendErrorsTotal  atomic.Int64
	backendLatencyNanos atomic.Int64

	// Per endpoint class
	userCalls     atomic.Int64
	referralCalls atomic.Int64
	taskCalls     atomic.Int64

	// Registration metrics
	registrationAttempts  atomic.Int64
	registrationRetries   atomic.Int64
	registrationSuccesses atomic.Int64
	registrationFailures  atomic.Int64

	// Flow metrics
	referralsApplied    atomic.Int64
	tasksCompleted      atomic.Int64
	duplicateEvents     atomic.Int64
	staleResultsDropped atomic.Int64
}

// Global is the global metrics instance.
// Use this for recording metrics throughout the application.
//
//nolint:gochecknoglobals // Intentional global for metrics access
var Global = &Metrics{}

// RecordBackendCall records a backend call with its duration and success status.
func (m *Metrics) RecordBackendCall(endpoint string, duration time.Duration, err error) {
	m.backendCallsTotal.Add(1)
	m.backendLatencyNanos.Add(duration.Nanoseconds())

	if err != nil {
		m.backendErrorsTotal.Add(1)
	}

	switch endpoint {
	case EndpointUser:
		m.userCalls.Add(1)
	case EndpointReferral:
		m.referralCalls.Add(1)
	case EndpointTasks:
		m.taskCalls.Add(1)
	}
}

// RecordRegistrationAttempt records one register call.
func (m *Metrics) RecordRegistrationAttempt() {
	m.registrationAttempts.Add(1)
}

// RecordRegistrationRetry records a retry scheduled after a failed attempt.
func (m *Metrics) RecordRegistrationRetry() {
	m.registrationRetries.Add(1)
}

// RecordRegistration records the final outcome of a registration.
func (m *Metrics) RecordRegistration(err error) {
	if err != nil {
		m.registrationFailures.Add(1)
		return
	}
	m.registrationSuccesses.Add(1)
}

// RecordReferralApplied records an applied referral code.
func (m *Metrics) RecordReferralApplied() {
	m.referralsApplied.Add(1)
}

// RecordTaskCompleted records a completed or verified task.
func (m *Metrics) RecordTaskCompleted() {
	m.tasksCompleted.Add(1)
}

// RecordDuplicateEvent records a status event dropped by the re-entrancy guard.
func (m *Metrics) RecordDuplicateEvent() {
	m.duplicateEvents.Add(1)
}

// RecordStaleResult records a backend result discarded because the session moved on.
func (m *Metrics) RecordStaleResult() {
	m.staleResultsDropped.Add(1)
}

// Snapshot returns a point-in-time copy of all metrics.
type Snapshot struct {
	BackendCallsTotal     int64 `json:"backend_calls_total"`
	BackendErrorsTotal    int64 `json:"backend_errors_total"`
	BackendLatencyNanos   int64 `json:"backend_latency_nanos"`
	UserCalls             int64 `json:"user_calls"`
	ReferralCalls         int64 `json:"referral_calls"`
	TaskCalls             int64 `json:"task_calls"`
	RegistrationAttempts  int64 `json:"registration_attempts"`
	RegistrationRetries   int64 `json:"registration_retries"`
	RegistrationSuccesses int64 `json:"registration_successes"`
	RegistrationFailures  int64 `json:"registration_failures"`
	ReferralsApplied      int64 `json:"referrals_applied"`
	TasksCompleted        int64 `json:"tasks_completed"`
	DuplicateEvents       int64 `json:"duplicate_events"`
	StaleResultsDropped   int64 `json:"stale_results_dropped"`
}

// Snapshot returns a point-in-time copy of all metrics.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		BackendCallsTotal:     m.backendCallsTotal.Load(),
		BackendErrorsTotal:    m.backendErrorsTotal.Load(),
		BackendLatencyNanos:   m.backendLatencyNanos.Load(),
		UserCalls:             m.userCalls.Load(),
		ReferralCalls:         m.referralCalls.Load(),
		TaskCalls:             m.taskCalls.Load(),
		RegistrationAttempts:  m.registrationAttempts.Load(),
		RegistrationRetries:   m.registrationRetries.Load(),
		RegistrationSuccesses: m.registrationSuccesses.Load(),
		RegistrationFailures:  m.registrationFailures.Load(),
		ReferralsApplied:      m.referralsApplied.Load(),
		TasksCompleted:        m.tasksCompleted.Load(),
		DuplicateEvents:       m.duplicateEvents.Load(),
		StaleResultsDropped:   m.staleResultsDropped.Load(),
	}
}

// BackendCallsTotal returns the total number of backend calls made.
func (m *Metrics) BackendCallsTotal() int64 {
	return m.backendCallsTotal.Load()
}

// BackendErrorsTotal returns the total number of failed backend calls.
func (m *Metrics) BackendErrorsTotal() int64 {
	return m.backendErrorsTotal.Load()
}

// BackendLatencyAvgMs returns the average backend latency in milliseconds.
// Returns 0 if no calls have been made.
func (m *Metrics) BackendLatencyAvgMs() float64 {
	calls := m.backendCallsTotal.Load()
	if calls == 0 {
		return 0
	}
	nanos := m.backendLatencyNanos.Load()
	return float64(nanos) / float64(calls) / 1e6
}

// RegistrationSuccessRate returns the share of finished registrations that
// succeeded, as a percentage (0-100). Returns 0 if none have finished.
func (m *Metrics) RegistrationSuccessRate() float64 {
	ok := m.registrationSuccesses.Load()
	total := ok + m.registrationFailures.Load()
	if total == 0 {
		return 0
	}
	return float64(ok) / float64(total) * 100
}

// Reset resets all metrics to zero.
// Useful for testing.
func (m *Metrics) Reset() {
	m.backendCallsTotal.Store(0)
	m.backendErrorsTotal.Store(0)
	m.backendLatencyNanos.Store(0)
	m.userCalls.Store(0)
	m.referralCalls.Store(0)
	m.taskCalls.Store(0)
	m.registrationAttempts.Store(0)
	m.registrationRetries.Store(0)
	m.registrationSuccesses.Store(0)
	m.registrationFailures.Store(0)
	m.referralsApplied.Store(0)
	m.tasksCompleted.Store(0)
	m.duplicateEvents.Store(0)
	m.staleResultsDropped.Store(0)
}
