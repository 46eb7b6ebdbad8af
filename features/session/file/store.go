// Package file provides the durable file-backed session.Store.
//
// Layout under the root directory:
//
//	current                            current-session pointer
//	sessions/<id>/session.json         session document
//	sessions/<id>/checkpoints/<cp>.json  standalone checkpoint snapshots
//
// Every write goes to a temporary file in the same directory followed by an
// atomic rename, so a partially written document is never observable. The
// store does not serialize concurrent writers; callers must guarantee a
// single active writer per session.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"goa.design/conductor/orchestrator/session"
)

const (
	sessionFileName = "session.json"
	currentFileName = "current"
	sessionsDirName = "sessions"
	checkpointsDir  = "checkpoints"

	dirPerm  = 0o755
	filePerm = 0o644
)

// Store implements session.Store on a content-addressed-by-id directory
// layout rooted at a single directory.
type Store struct {
	root string
}

// New builds a Store rooted at dir, creating the directory when missing.
func New(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: state directory is required", session.ErrInvalidInput)
	}
	if err := os.MkdirAll(filepath.Join(dir, sessionsDirName), dirPerm); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &Store{root: dir}, nil
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
	if err := os.MkdirAll(s.sessionDir(doc.ID), dirPerm); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	if err := s.writeDoc(s.sessionPath(doc.ID), doc); err != nil {
		return nil, err
	}
	if err := atomicWrite(filepath.Join(s.root, currentFileName), []byte(doc.ID)); err != nil {
		return nil, fmt.Errorf("write current pointer: %w", err)
	}
	return doc, nil
}

// Load reads the session document from disk.
func (s *Store) Load(_ context.Context, id string) (*session.Session, error) {
	return s.readDoc(s.sessionPath(id), id)
}

// Mutate reads the document, applies fn, refreshes UpdatedAt, and atomically
// replaces the file. The on-disk document is untouched when fn errors.
func (s *Store) Mutate(ctx context.Context, id string, fn func(*session.Session) error) (*session.Session, error) {
	doc, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(doc); err != nil {
		return nil, err
	}
	doc.UpdatedAt = time.Now().UTC()
	if err := s.writeDoc(s.sessionPath(id), doc); err != nil {
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
	return s.writeDoc(s.sessionPath(id), next)
}

// Current reads the current-session pointer. A missing pointer file yields an
// empty id, not an error.
func (s *Store) Current(_ context.Context) (string, error) {
	data, err := os.ReadFile(filepath.Join(s.root, currentFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read current pointer: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// List enumerates persisted session ids in lexical order.
func (s *Store) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, sessionsDirName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			ids = append(ids, e.Name())
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Delete removes the session directory, snapshots included, and clears the
// current pointer when it matches.
func (s *Store) Delete(ctx context.Context, id string) error {
	if _, err := os.Stat(s.sessionPath(id)); errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("session %s: %w", id, session.ErrSessionNotFound)
	} else if err != nil {
		return fmt.Errorf("stat session %s: %w", id, err)
	}
	if err := os.RemoveAll(s.sessionDir(id)); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	current, err := s.Current(ctx)
	if err != nil {
		return err
	}
	if current == id {
		if err := os.Remove(filepath.Join(s.root, currentFileName)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("clear current pointer: %w", err)
		}
	}
	return nil
}

// SaveSnapshot persists a standalone structural copy addressable by the
// checkpoint id.
func (s *Store) SaveSnapshot(_ context.Context, sessionID, checkpointID string, snap *session.Session) error {
	dir := filepath.Join(s.sessionDir(sessionID), checkpointsDir)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create checkpoints directory: %w", err)
	}
	return s.writeDoc(filepath.Join(dir, checkpointID+".json"), snap)
}

// LoadSnapshot retrieves a standalone snapshot.
func (s *Store) LoadSnapshot(_ context.Context, sessionID, checkpointID string) (*session.Session, error) {
	path := filepath.Join(s.sessionDir(sessionID), checkpointsDir, checkpointID+".json")
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("checkpoint %s: %w", checkpointID, session.ErrCheckpointNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", checkpointID, err)
	}
	var snap session.Session
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", checkpointID, err)
	}
	return &snap, nil
}

func (s *Store) sessionDir(id string) string {
	return filepath.Join(s.root, sessionsDirName, id)
}

func (s *Store) sessionPath(id string) string {
	return filepath.Join(s.sessionDir(id), sessionFileName)
}

func (s *Store) readDoc(path, id string) (*session.Session, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("session %s: %w", id, session.ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read session %s: %w", id, err)
	}
	var doc session.Session
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse session %s: %w", id, err)
	}
	return &doc, nil
}

func (s *Store) writeDoc(path string, doc *session.Session) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal session %s: %w", doc.ID, err)
	}
	if err := atomicWrite(path, data); err != nil {
		return fmt.Errorf("write session %s: %w", doc.ID, err)
	}
	return nil
}

// atomicWrite writes to a temporary file in the target directory and renames
// it into place. Rename within a directory is atomic on POSIX filesystems, so
// readers either see the old document or the new one, never a truncated mix.
func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, filePerm); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}
