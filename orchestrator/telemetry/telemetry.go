// Package telemetry defines the logging and metrics surface used by the
// orchestration core and provides implementations backed by
// goa.design/clue/log and OpenTelemetry metrics.
package telemetry

import (
	"context"
	"time"
)

type (
	// Logger emits structured log messages with key-value pairs.
	Logger interface {
		// Debug emits a debug-level log message.
		Debug(ctx context.Context, msg string, keyvals ...any)
		// Info emits an info-level log message.
		Info(ctx context.Context, msg string, keyvals ...any)
		// Warn emits a warning-level log message.
		Warn(ctx context.Context, msg string, keyvals ...any)
		// Error emits an error-level log message.
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics records counters and timers for orchestration operations.
	Metrics interface {
		// IncCounter increments a counter metric by the given value.
		IncCounter(name string, value float64, tags ...string)
		// RecordTimer records a duration metric.
		RecordTimer(name string, duration time.Duration, tags ...string)
	}
)

// Counter names emitted by the orchestration core.
const (
	MetricSessionsCreated    = "conductor.sessions.created"
	MetricAgentStarted       = "conductor.agent.started"
	MetricAgentCompleted     = "conductor.agent.completed"
	MetricAgentFailed        = "conductor.agent.failed"
	MetricCheckpointSaved    = "conductor.checkpoint.saved"
	MetricCheckpointRestored = "conductor.checkpoint.restored"
	MetricRecoveryDecision   = "conductor.recovery.decision"
	MetricPayloadSubstituted = "conductor.payload.substituted"
)

type (
	noopLogger  struct{}
	noopMetrics struct{}
)

// NewNoopLogger returns a Logger that discards everything.
func NewNoopLogger() Logger { return noopLogger{} }

// NewNoopMetrics returns a Metrics recorder that discards everything.
func NewNoopMetrics() Metrics { return noopMetrics{} }

func (noopLogger) Debug(context.Context, string, ...any) {}
func (noopLogger) Info(context.Context, string, ...any)  {}
func (noopLogger) Warn(context.Context, string, ...any)  {}
func (noopLogger) Error(context.Context, string, ...any) {}

func (noopMetrics) IncCounter(string, float64, ...string)        {}
func (noopMetrics) RecordTimer(string, time.Duration, ...string) {}
