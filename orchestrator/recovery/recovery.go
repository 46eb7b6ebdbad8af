// Package recovery decides how the pipeline reacts to agent failures.
//
// The decision is a pure function of the cumulative failure count for the
// failing scope: retry below the retry threshold, replan below the escalate
// threshold, escalate beyond it.
package recovery

import (
	"context"

	"goa.design/conductor/orchestrator/session"
	"goa.design/conductor/orchestrator/telemetry"
)

// Action is a recovery action the controller must act on.
type Action string

const (
	// ActionRetry re-invokes the same agent with unchanged inputs.
	ActionRetry Action = "retry"
	// ActionReplan re-invokes the planner with the same goal.
	ActionReplan Action = "replan"
	// ActionEscalate stops the pipeline and asks a human.
	ActionEscalate Action = "escalate"
)

// Failure-count thresholds. Counts below RetryMax retry; counts below
// ReplanMax replan; everything else escalates.
const (
	RetryMax  = 3
	ReplanMax = 5
)

type (
	// Decision is the full outcome of a recovery consultation, carrying
	// everything the controller needs to present it without recomputation.
	Decision struct {
		// Action is the decided recovery action.
		Action Action `json:"action"`
		// Rationale is the human-readable justification.
		Rationale string `json:"rationale"`
		// FailureCount is the cumulative failure count that was evaluated.
		FailureCount int `json:"failure_count"`
		// Thresholds are the constants the decision was made against.
		Thresholds Thresholds `json:"thresholds"`
	}

	// Thresholds are the policy constants.
	Thresholds struct {
		// RetryMax is the exclusive upper bound for retry.
		RetryMax int `json:"retry_max"`
		// ReplanMax is the exclusive upper bound for replan.
		ReplanMax int `json:"replan_max"`
	}
)

// Decide maps a cumulative failure count to a recovery decision. Pure.
func Decide(failureCount int) Decision {
	d := Decision{
		FailureCount: failureCount,
		Thresholds:   Thresholds{RetryMax: RetryMax, ReplanMax: ReplanMax},
	}
	switch {
	case failureCount < RetryMax:
		d.Action = ActionRetry
		d.Rationale = "below retry threshold"
	case failureCount < ReplanMax:
		d.Action = ActionReplan
		d.Rationale = "retry threshold exceeded, attempting replan"
	default:
		d.Action = ActionEscalate
		d.Rationale = "all thresholds exceeded, escalate to user"
	}
	return d
}

// Policy evaluates recovery decisions against stored sessions and records
// them on the latest failure record.
type Policy struct {
	store   session.Store
	log     telemetry.Logger
	metrics telemetry.Metrics
}

// NewPolicy builds a Policy. Logger and metrics may be nil.
func NewPolicy(store session.Store, logger telemetry.Logger, metrics telemetry.Metrics) *Policy {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Policy{store: store, log: logger, metrics: metrics}
}

// Decide counts failures for the agent (or the whole session when agent is
// empty), computes the decision, and writes the action into the most recently
// appended failure record. Calling Decide again before a new failure is
// appended overwrites the same record; that behavior is deliberate and
// documented rather than defended against.
func (p *Policy) Decide(ctx context.Context, sessionID, agent string) (Decision, error) {
	var decision Decision
	_, err := p.store.Mutate(ctx, sessionID, func(s *session.Session) error {
		decision = Decide(s.FailureCount(agent))
		if n := len(s.Failures); n > 0 {
			s.Failures[n-1].RecoveryAction = string(decision.Action)
		}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	p.log.Info(ctx, "recovery decided", "session", sessionID, "agent", agent,
		"action", string(decision.Action), "failures", decision.FailureCount)
	p.metrics.IncCounter(telemetry.MetricRecoveryDecision, 1, "action", string(decision.Action))
	return decision, nil
}
