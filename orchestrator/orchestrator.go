// Package orchestrator ties the session store, router, lifecycle tracker,
// handoff ledger, checkpoint manager, and recovery policy into the single
// surface the external controller drives.
//
// The orchestrator assumes a single active writer per session at a time; it
// is the controller's responsibility to serialize calls for the same session.
package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"goa.design/conductor/orchestrator/checkpoint"
	"goa.design/conductor/orchestrator/handoff"
	"goa.design/conductor/orchestrator/recovery"
	"goa.design/conductor/orchestrator/router"
	"goa.design/conductor/orchestrator/session"
	"goa.design/conductor/orchestrator/telemetry"
	"goa.design/conductor/orchestrator/tracker"
)

type (
	// Orchestrator exposes every orchestration operation against a single
	// session store.
	Orchestrator struct {
		store       session.Store
		tracker     *tracker.Tracker
		ledger      *handoff.Ledger
		checkpoints *checkpoint.Manager
		policy      *recovery.Policy
		log         telemetry.Logger
		metrics     telemetry.Metrics
	}

	// Option customizes an Orchestrator.
	Option func(*options)

	options struct {
		log     telemetry.Logger
		metrics telemetry.Metrics
	}
)

// WithLogger overrides the default noop logger.
func WithLogger(l telemetry.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics overrides the default noop metrics recorder.
func WithMetrics(m telemetry.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// New builds an Orchestrator on top of the given store.
func New(store session.Store, opts ...Option) *Orchestrator {
	o := options{
		log:     telemetry.NewNoopLogger(),
		metrics: telemetry.NewNoopMetrics(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Orchestrator{
		store:       store,
		tracker:     tracker.New(store, o.log, o.metrics),
		ledger:      handoff.New(store, o.log, o.metrics),
		checkpoints: checkpoint.New(store, o.log, o.metrics),
		policy:      recovery.NewPolicy(store, o.log, o.metrics),
		log:         o.log,
		metrics:     o.metrics,
	}
}

// CreateSession allocates a new session for the goal.
func (o *Orchestrator) CreateSession(ctx context.Context, goal string, mode session.Mode) (*session.Session, error) {
	doc, err := o.store.Create(ctx, goal, mode)
	if err != nil {
		return nil, err
	}
	o.log.Info(ctx, "session created", "session", doc.ID, "mode", string(mode))
	o.metrics.IncCounter(telemetry.MetricSessionsCreated, 1, "mode", string(mode))
	return doc, nil
}

// Session returns the session document.
func (o *Orchestrator) Session(ctx context.Context, id string) (*session.Session, error) {
	return o.store.Load(ctx, id)
}

// Current resolves the current-session pointer; empty when unset.
func (o *Orchestrator) Current(ctx context.Context) (string, error) {
	return o.store.Current(ctx)
}

// Sessions lists persisted session ids.
func (o *Orchestrator) Sessions(ctx context.Context) ([]string, error) {
	return o.store.List(ctx)
}

// Route classifies the session goal, persists the decision into the routing
// field, and advances the session to the routing status.
func (o *Orchestrator) Route(ctx context.Context, id string) (router.Decision, error) {
	var decision router.Decision
	_, err := o.store.Mutate(ctx, id, func(s *session.Session) error {
		decision = router.Classify(s.Goal)
		s.Routing = decision.Routing()
		s.Status = session.StatusRouting
		return nil
	})
	if err != nil {
		return router.Decision{}, err
	}
	o.log.Info(ctx, "session routed", "session", id,
		"workflow", decision.Workflow, "confidence", decision.Confidence)
	return decision, nil
}

// StartAgent records the start of an agent invocation.
func (o *Orchestrator) StartAgent(ctx context.Context, id, agent string) (*session.Session, error) {
	return o.tracker.Start(ctx, id, agent)
}

// CompleteAgent records a successful agent invocation with its output.
func (o *Orchestrator) CompleteAgent(ctx context.Context, id, agent string, output any) (*session.Session, error) {
	return o.tracker.Complete(ctx, id, agent, output)
}

// FailAgent records a failed agent invocation.
func (o *Orchestrator) FailAgent(ctx context.Context, id, agent, errorMessage string) (*session.Session, error) {
	return o.tracker.Fail(ctx, id, agent, errorMessage)
}

// RecordHandoff appends a handoff record.
func (o *Orchestrator) RecordHandoff(ctx context.Context, id, from, to string, contextPassed any, reason string) (*session.Session, error) {
	return o.ledger.Record(ctx, id, from, to, contextPassed, reason)
}

// HandoffContext returns the latest context addressed to the agent, or an
// empty payload when none exists.
func (o *Orchestrator) HandoffContext(ctx context.Context, id, agent string) session.Payload {
	return o.ledger.ContextFor(ctx, id, agent)
}

// SaveCheckpoint snapshots the session under a name.
func (o *Orchestrator) SaveCheckpoint(ctx context.Context, id, name string) (string, error) {
	return o.checkpoints.Save(ctx, id, name)
}

// ResumeCheckpoint restores the session from a checkpoint (the latest when
// checkpointID is empty) and leaves it paused.
func (o *Orchestrator) ResumeCheckpoint(ctx context.Context, id, checkpointID string) (*session.Session, error) {
	return o.checkpoints.Resume(ctx, id, checkpointID)
}

// Checkpoints lists checkpoint metadata without the embedded state copies.
func (o *Orchestrator) Checkpoints(ctx context.Context, id string) ([]session.CheckpointMeta, error) {
	return o.checkpoints.List(ctx, id)
}

// Decide consults the recovery policy for the agent scope (or the whole
// session when agent is empty) and records the action on the latest failure.
func (o *Orchestrator) Decide(ctx context.Context, id, agent string) (recovery.Decision, error) {
	return o.policy.Decide(ctx, id, agent)
}

// Cleanup deletes the session's persisted state and clears the current
// pointer when it matches.
func (o *Orchestrator) Cleanup(ctx context.Context, id string) error {
	if err := o.store.Delete(ctx, id); err != nil {
		return err
	}
	o.log.Info(ctx, "session cleaned up", "session", id)
	return nil
}

// Status renders a human-readable session summary. Read-only; no state
// transition.
func (o *Orchestrator) Status(ctx context.Context, id string) (string, error) {
	doc, err := o.store.Load(ctx, id)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Session %s (%s)\n", doc.ID, doc.Mode)
	fmt.Fprintf(&b, "Goal:   %s\n", doc.Goal)
	fmt.Fprintf(&b, "Status: %s\n", doc.Status)
	if doc.Routing != nil {
		fmt.Fprintf(&b, "Workflow: %s (confidence %.2f)\n", doc.Routing.Workflow, doc.Routing.Confidence)
		for _, e := range doc.Routing.Agents {
			fmt.Fprintf(&b, "  %d. %-10s %s\n", e.Order, e.Agent, statusGlyph(e.Status))
		}
	}
	fmt.Fprintf(&b, "Failures: %d\n", len(doc.Failures))
	fmt.Fprintf(&b, "Checkpoints: %d", len(doc.Checkpoints))
	if n := len(doc.Checkpoints); n > 0 {
		fmt.Fprintf(&b, " (latest %q)", doc.Checkpoints[n-1].Name)
	}
	b.WriteString("\n")
	return b.String(), nil
}

func statusGlyph(s session.AgentStatus) string {
	switch s {
	case session.AgentPending:
		return "pending"
	case session.AgentActive:
		return "active ▶"
	case session.AgentCompleted:
		return "completed ✓"
	case session.AgentFailed:
		return "failed ✗"
	default:
		return string(s)
	}
}
