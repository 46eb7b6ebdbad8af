// Package inmem provides an in-memory implementation of session.Store for
// testing and local tooling. Documents live in a map keyed by session id with
// no persistence across process restarts; production deployments should use a
// durable backend such as features/session/file or features/session/redis.
package inmem

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"goa.design/conductor/orchestrator/session"
)

// Store implements session.Store in memory with no durability. All operations
// are thread-safe via sync.RWMutex. Documents are defensively copied on read
// and write so callers can never mutate stored state through a returned
// pointer.
type Store struct {
	mu        sync.RWMutex
	sessions  map[string]*session.Session
	snapshots map[string]*session.Session
	current   string
}

// New constructs an empty Store ready for use.
func New() *Store {
	return &Store{
		sessions:  make(map[string]*session.Session),
		snapshots: make(map[string]*session.Session),
	}
}

// Create persists a fresh session document and points the current pointer at
// it. Returns session.ErrInvalidInput when goal is empty.
func (s *Store) Create(_ context.Context, goal string, mode session.Mode) (*session.Session, error) {
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
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[doc.ID] = doc
	s.current = doc.ID
	return doc.Clone()
}

// Load returns a defensive copy of the stored document.
func (s *Store) Load(_ context.Context, id string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, session.ErrSessionNotFound)
	}
	return doc.Clone()
}

// Mutate applies fn to a copy of the stored document and swaps it in,
// refreshing UpdatedAt. The stored document is untouched when fn errors.
func (s *Store) Mutate(_ context.Context, id string, fn func(*session.Session) error) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, session.ErrSessionNotFound)
	}
	next, err := doc.Clone()
	if err != nil {
		return nil, err
	}
	if err := fn(next); err != nil {
		return nil, err
	}
	next.UpdatedAt = time.Now().UTC()
	s.sessions[id] = next
	return next.Clone()
}

// Replace overwrites the stored document wholesale.
func (s *Store) Replace(_ context.Context, id string, doc *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session %s: %w", id, session.ErrSessionNotFound)
	}
	next, err := doc.Clone()
	if err != nil {
		return err
	}
	next.UpdatedAt = time.Now().UTC()
	s.sessions[id] = next
	return nil
}

// Current returns the current-session pointer, or an empty id when unset.
func (s *Store) Current(_ context.Context) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, nil
}

// List enumerates persisted session ids in lexical order.
func (s *Store) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes the document, its snapshots, and clears the current pointer
// when it matches.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return fmt.Errorf("session %s: %w", id, session.ErrSessionNotFound)
	}
	delete(s.sessions, id)
	for key := range s.snapshots {
		if snap := s.snapshots[key]; snap != nil && snap.ID == id {
			delete(s.snapshots, key)
		}
	}
	if s.current == id {
		s.current = ""
	}
	return nil
}

// SaveSnapshot stores a standalone structural copy keyed by checkpoint id.
func (s *Store) SaveSnapshot(_ context.Context, sessionID, checkpointID string, snap *session.Session) error {
	copied, err := snap.Clone()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snapshotKey(sessionID, checkpointID)] = copied
	return nil
}

// LoadSnapshot retrieves a standalone snapshot copy.
func (s *Store) LoadSnapshot(_ context.Context, sessionID, checkpointID string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[snapshotKey(sessionID, checkpointID)]
	if !ok {
		return nil, fmt.Errorf("checkpoint %s: %w", checkpointID, session.ErrCheckpointNotFound)
	}
	return snap.Clone()
}

// Reset clears all stored state. Useful in tests to isolate cases; not part
// of the session.Store interface.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]*session.Session)
	s.snapshots = make(map[string]*session.Session)
	s.current = ""
}

func snapshotKey(sessionID, checkpointID string) string {
	return sessionID + "/" + checkpointID
}
