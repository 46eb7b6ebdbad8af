// Package handoff maintains the append-only ledger of context passed from one
// completed agent to the next.
//
// Recording must never block the pipeline: malformed context payloads are
// replaced with an empty object and the substitution is logged.
package handoff

import (
	"context"
	"fmt"
	"time"

	"goa.design/conductor/orchestrator/session"
	"goa.design/conductor/orchestrator/telemetry"
)

// Ledger appends and queries handoff records through the session store.
type Ledger struct {
	store   session.Store
	log     telemetry.Logger
	metrics telemetry.Metrics
}

// New builds a Ledger. Logger and metrics may be nil.
func New(store session.Store, logger telemetry.Logger, metrics telemetry.Metrics) *Ledger {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Ledger{store: store, log: logger, metrics: metrics}
}

// Record appends an immutable handoff record from one agent to another.
// Context values that do not normalize to a structured object are replaced
// with an empty payload; recording itself never fails on payload grounds.
func (l *Ledger) Record(ctx context.Context, sessionID, from, to string, contextPassed any, reason string) (*session.Session, error) {
	if from == "" || to == "" {
		return nil, fmt.Errorf("%w: from and to agent names are required", session.ErrInvalidInput)
	}
	payload, ok := session.NormalizePayload(contextPassed)
	if !ok {
		l.log.Warn(ctx, "malformed handoff context replaced with empty payload",
			"session", sessionID, "from", from, "to", to)
		l.metrics.IncCounter(telemetry.MetricPayloadSubstituted, 1, "kind", "handoff_context")
	}
	doc, err := l.store.Mutate(ctx, sessionID, func(s *session.Session) error {
		s.Handoffs = append(s.Handoffs, session.Handoff{
			From:      from,
			To:        to,
			Timestamp: time.Now().UTC(),
			Context:   payload,
			Reason:    reason,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	l.log.Debug(ctx, "handoff recorded", "session", sessionID, "from", from, "to", to)
	return doc, nil
}

// ContextFor returns the context of the most recently appended handoff
// addressed to the agent. Absence of a matching handoff — or of the session
// itself — yields an empty payload, never an error: an agent asking for its
// incoming context must always get something it can run with.
func (l *Ledger) ContextFor(ctx context.Context, sessionID, agent string) session.Payload {
	doc, err := l.store.Load(ctx, sessionID)
	if err != nil {
		return session.EmptyPayload()
	}
	for i := len(doc.Handoffs) - 1; i >= 0; i-- {
		if doc.Handoffs[i].To == agent {
			if doc.Handoffs[i].Context == nil {
				return session.EmptyPayload()
			}
			return doc.Handoffs[i].Context
		}
	}
	return session.EmptyPayload()
}
