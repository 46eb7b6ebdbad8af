// Package redis implements session.Store on Redis by delegating to the
// client in clients/redis. Documents are stored as JSON strings keyed by
// session id; checkpoint snapshots and the current-session pointer get their
// own keys.
//
// Like every session.Store, the Redis store assumes a single active writer
// per session; it provides atomic single-key replacement, not multi-writer
// serialization.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	clientsredis "goa.design/conductor/features/session/redis/clients/redis"
	"goa.design/conductor/orchestrator/session"
)

// Store implements session.Store by delegating to the Redis client.
type Store struct {
	client clientsredis.Client
}

// NewStore builds a Store using the provided client.
func NewStore(client clientsredis.Client) (*Store, error) {
	if client == nil {
		return nil, errors.New("client is required")
	}
	return &Store{client: client}, nil
}

// Create persists a fresh session document and points the current pointer at
// it. Returns session.ErrInvalidInput when goal is empty.
func (s *Store) Create(ctx context.Context, goal string, mode session.Mode) (*session.Session, error) {
	if goal == "" {
		return nil, fmt.Errorf("%w: goal is required", session.ErrInvalidInput)
	}
	now := time.Now().UTC()
	doc := &session.Session{
		ID:          "sess-" + uuid.NewString(),
		Mode:        mode,
		Status:      session.StatusInitializing,
		Goal:        goal,
		AgentStates: []session.AgentInvocation{},
		Handoffs:    []session.Handoff{},
		Checkpoints: []session.CheckpointMeta{},
		Failures:    []session.Failure{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.put(ctx, doc); err != nil {
		return nil, err
	}
	if err := s.client.SetCurrent(ctx, doc.ID); err != nil {
		return nil, err
	}
	return doc, nil
}

// Load retrieves the session document.
func (s *Store) Load(ctx context.Context, id string) (*session.Session, error) {
	data, err := s.client.GetSession(ctx, id)
	if errors.Is(err, clientsredis.ErrNotFound) {
		return nil, fmt.Errorf("session %s: %w", id, session.ErrSessionNotFound)
	}
	if err != nil {
		return nil, err
	}
	var doc session.Session
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", id, err)
	}
	return &doc, nil
}

// Mutate reads the document, applies fn, refreshes UpdatedAt, and replaces
// the stored value. The stored document is untouched when fn errors.
func (s *Store) Mutate(ctx context.Context, id string, fn func(*session.Session) error) (*session.Session, error) {
	doc, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		return nil, err
	}
	doc.UpdatedAt = time.Now().UTC()
	if err := s.put(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// Replace overwrites the stored document wholesale.
func (s *Store) Replace(ctx context.Context, id string, doc *session.Session) error {
	if _, err := s.Load(ctx, id); err != nil {
		return err
	}
	next, err := doc.Clone()
	if err != nil {
		return err
	}
	next.UpdatedAt = time.Now().UTC()
	return s.put(ctx, next)
}

// Current resolves the current-session pointer; empty when unset.
func (s *Store) Current(ctx context.Context) (string, error) {
	return s.client.GetCurrent(ctx)
}

// List enumerates persisted session ids.
func (s *Store) List(ctx context.Context) ([]string, error) {
	return s.client.ListSessions(ctx)
}

// Delete removes the document and its snapshots, clearing the current pointer
// when it matches.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := s.Load(ctx, id); err != nil {
		return err
	}
	if err := s.client.DeleteSnapshots(ctx, id); err != nil {
		return err
	}
	if err := s.client.DeleteSession(ctx, id); err != nil {
		return err
	}
	current, err := s.client.GetCurrent(ctx)
	if err != nil {
		return err
	}
	if current == id {
		return s.client.ClearCurrent(ctx)
	}
	return nil
}

// SaveSnapshot persists a standalone structural copy keyed by checkpoint id.
func (s *Store) SaveSnapshot(ctx context.Context, sessionID, checkpointID string, snap *session.Session) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot %s: %w", checkpointID, err)
	}
	return s.client.PutSnapshot(ctx, sessionID, checkpointID, data)
}

// LoadSnapshot retrieves a standalone snapshot.
func (s *Store) LoadSnapshot(ctx context.Context, sessionID, checkpointID string) (*session.Session, error) {
	data, err := s.client.GetSnapshot(ctx, sessionID, checkpointID)
	if errors.Is(err, clientsredis.ErrNotFound) {
		return nil, fmt.Errorf("checkpoint %s: %w", checkpointID, session.ErrCheckpointNotFound)
	}
	if err != nil {
		return nil, err
	}
	var snap session.Session
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", checkpointID, err)
	}
	return &snap, nil
}

func (s *Store) put(ctx context.Context, doc *session.Session) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", doc.ID, err)
	}
	return s.client.PutSession(ctx, doc.ID, data)
}
