// Package tracker records agent lifecycle transitions against the session
// document: start, complete, and fail.
//
// The tracker never executes or cancels agents; it only records the before
// and after of work driven by an external controller.
package tracker

import (
	"context"
	"fmt"
	"time"

	"goa.design/conductor/orchestrator/session"
	"goa.design/conductor/orchestrator/telemetry"
)

// Tracker applies lifecycle transitions through the session store.
type Tracker struct {
	store   session.Store
	log     telemetry.Logger
	metrics telemetry.Metrics
}

// New builds a Tracker. Logger and metrics may be nil, in which case noop
// implementations are used.
func New(store session.Store, logger telemetry.Logger, metrics telemetry.Metrics) *Tracker {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Tracker{store: store, log: logger, metrics: metrics}
}

// Start records the start of an agent invocation: the routing slot for the
// agent becomes active, a new invocation record is appended, and the session
// moves to executing.
//
// A start while a prior invocation for the same agent is still active is
// accepted and appends a second active record; terminal transitions always
// target the most recently appended active record, so the earlier one stays
// untouched until the agent reaches a terminal state again.
func (t *Tracker) Start(ctx context.Context, sessionID, agent string) (*session.Session, error) {
	if agent == "" {
		return nil, fmt.Errorf("%w: agent name is required", session.ErrInvalidInput)
	}
	doc, err := t.store.Mutate(ctx, sessionID, func(s *session.Session) error {
		now := time.Now().UTC()
		if entry := s.SequenceEntryFor(agent); entry != nil {
			entry.Status = session.AgentActive
			entry.StartedAt = &now
		}
		s.AgentStates = append(s.AgentStates, session.AgentInvocation{
			Agent:        agent,
			InvocationID: invocationID(agent, now),
			Status:       session.AgentActive,
			StartedAt:    now,
		})
		s.Status = session.StatusExecuting
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.log.Info(ctx, "agent started", "session", sessionID, "agent", agent)
	t.metrics.IncCounter(telemetry.MetricAgentStarted, 1, "agent", agent)
	return doc, nil
}

// Complete records a successful agent invocation. The routing slot moves to
// completed and the active invocation record for the agent receives the
// output and a completion timestamp. Output that is not a structured object
// is replaced with an empty payload; the substitution is logged, never
// surfaced as an error. Session status is left unchanged.
func (t *Tracker) Complete(ctx context.Context, sessionID, agent string, output any) (*session.Session, error) {
	if agent == "" {
		return nil, fmt.Errorf("%w: agent name is required", session.ErrInvalidInput)
	}
	payload, ok := session.NormalizePayload(output)
	if !ok {
		t.log.Warn(ctx, "malformed agent output replaced with empty payload",
			"session", sessionID, "agent", agent)
		t.metrics.IncCounter(telemetry.MetricPayloadSubstituted, 1, "kind", "agent_output")
	}
	doc, err := t.store.Mutate(ctx, sessionID, func(s *session.Session) error {
		if entry := s.SequenceEntryFor(agent); entry != nil {
			entry.Status = session.AgentCompleted
		}
		if inv := s.ActiveInvocation(agent); inv != nil {
			now := time.Now().UTC()
			inv.Status = session.AgentCompleted
			inv.CompletedAt = &now
			inv.Output = payload
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.log.Info(ctx, "agent completed", "session", sessionID, "agent", agent)
	t.metrics.IncCounter(telemetry.MetricAgentCompleted, 1, "agent", agent)
	return doc, nil
}

// Fail records a failed agent invocation. The routing slot and the active
// invocation record move to failed, a new failure record is appended with a
// zero retry count and no recovery action, and the session moves to
// recovering.
func (t *Tracker) Fail(ctx context.Context, sessionID, agent, errorMessage string) (*session.Session, error) {
	if agent == "" {
		return nil, fmt.Errorf("%w: agent name is required", session.ErrInvalidInput)
	}
	doc, err := t.store.Mutate(ctx, sessionID, func(s *session.Session) error {
		now := time.Now().UTC()
		if entry := s.SequenceEntryFor(agent); entry != nil {
			entry.Status = session.AgentFailed
		}
		if inv := s.ActiveInvocation(agent); inv != nil {
			inv.Status = session.AgentFailed
			inv.CompletedAt = &now
			inv.Error = errorMessage
		}
		s.Failures = append(s.Failures, session.Failure{
			Timestamp: now,
			Agent:     agent,
			Error:     errorMessage,
		})
		s.Status = session.StatusRecovering
		return nil
	})
	if err != nil {
		return nil, err
	}
	t.log.Warn(ctx, "agent failed", "session", sessionID, "agent", agent, "error", errorMessage)
	t.metrics.IncCounter(telemetry.MetricAgentFailed, 1, "agent", agent)
	return doc, nil
}

// invocationID derives a unique invocation identifier from the agent name and
// creation time.
func invocationID(agent string, at time.Time) string {
	return fmt.Sprintf("%s-%d", agent, at.UnixNano())
}
