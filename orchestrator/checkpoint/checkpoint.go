// Package checkpoint snapshots the full session document under a name and
// restores the latest (or a named) snapshot.
//
// A snapshot is a structural copy with value semantics: later mutation of the
// live session never alters a previously saved checkpoint. Restores force the
// session into the paused status; execution is only ever resumed by an
// explicit controller action.
package checkpoint

import (
	"context"
	"fmt"
	"time"

	"goa.design/conductor/orchestrator/session"
	"goa.design/conductor/orchestrator/telemetry"
)

// Manager saves and restores session snapshots through the session store.
type Manager struct {
	store   session.Store
	log     telemetry.Logger
	metrics telemetry.Metrics
}

// New builds a Manager. Logger and metrics may be nil.
func New(store session.Store, logger telemetry.Logger, metrics telemetry.Metrics) *Manager {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	if metrics == nil {
		metrics = telemetry.NewNoopMetrics()
	}
	return &Manager{store: store, log: logger, metrics: metrics}
}

// Save snapshots the session under the given name and returns the generated
// checkpoint id. The snapshot is stored twice: embedded in the session's
// checkpoint log (metadata plus structural copy) and as a standalone artifact
// addressable by the checkpoint id, which Resume treats as authoritative.
func (m *Manager) Save(ctx context.Context, sessionID, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: checkpoint name is required", session.ErrInvalidInput)
	}
	now := time.Now().UTC()
	checkpointID := fmt.Sprintf("cp-%d", now.UnixNano())

	var snap *session.Session
	_, err := m.store.Mutate(ctx, sessionID, func(s *session.Session) error {
		// Snapshot the document as it stands before the checkpoint entry is
		// appended, so the embedded copy does not contain itself.
		copied, err := s.Clone()
		if err != nil {
			return err
		}
		snap = copied
		s.Checkpoints = append(s.Checkpoints, session.CheckpointMeta{
			ID:         checkpointID,
			Name:       name,
			Timestamp:  now,
			AfterAgent: s.LastCompletedAgent(),
			State:      copied,
		})
		return nil
	})
	if err != nil {
		return "", err
	}
	if err := m.store.SaveSnapshot(ctx, sessionID, checkpointID, snap); err != nil {
		return "", err
	}
	m.log.Info(ctx, "checkpoint saved", "session", sessionID, "checkpoint", checkpointID, "name", name)
	m.metrics.IncCounter(telemetry.MetricCheckpointSaved, 1)
	return checkpointID, nil
}

// Resume replaces the live session document with the snapshot's contents and
// forces the status to paused. An empty checkpoint id resolves to the most
// recently saved checkpoint. Returns session.ErrCheckpointNotFound when the
// session has no checkpoints or the standalone snapshot artifact is missing.
func (m *Manager) Resume(ctx context.Context, sessionID, checkpointID string) (*session.Session, error) {
	if checkpointID == "" {
		doc, err := m.store.Load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if len(doc.Checkpoints) == 0 {
			return nil, fmt.Errorf("session %s has no checkpoints: %w", sessionID, session.ErrCheckpointNotFound)
		}
		checkpointID = doc.Checkpoints[len(doc.Checkpoints)-1].ID
	}
	snap, err := m.store.LoadSnapshot(ctx, sessionID, checkpointID)
	if err != nil {
		return nil, err
	}
	snap.Status = session.StatusPaused
	if err := m.store.Replace(ctx, sessionID, snap); err != nil {
		return nil, err
	}
	m.log.Info(ctx, "checkpoint restored", "session", sessionID, "checkpoint", checkpointID)
	m.metrics.IncCounter(telemetry.MetricCheckpointRestored, 1)
	return m.store.Load(ctx, sessionID)
}

// List returns the checkpoint metadata log without the embedded state copies,
// oldest first. Read-only.
func (m *Manager) List(ctx context.Context, sessionID string) ([]session.CheckpointMeta, error) {
	doc, err := m.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	metas := make([]session.CheckpointMeta, len(doc.Checkpoints))
	for i, cp := range doc.Checkpoints {
		cp.State = nil
		metas[i] = cp
	}
	return metas, nil
}
