// Package inmem provides an in-memory fake of the Redis session client for
// tests that exercise the Redis store without a live server.
package inmem

import (
	"context"
	"sort"
	"sync"

	clientsredis "goa.design/conductor/features/session/redis/clients/redis"
)

// Client is an in-memory clientsredis.Client. Thread-safe.
type Client struct {
	mu        sync.RWMutex
	sessions  map[string][]byte
	snapshots map[string]map[string][]byte
	current   string
}

// New constructs an empty fake client.
func New() *Client {
	return &Client{
		sessions:  make(map[string][]byte),
		snapshots: make(map[string]map[string][]byte),
	}
}

// PutSession stores a copy of the document bytes.
func (c *Client) PutSession(_ context.Context, id string, doc []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[id] = append([]byte(nil), doc...)
	return nil
}

// GetSession returns a copy of the stored bytes or clientsredis.ErrNotFound.
func (c *Client) GetSession(_ context.Context, id string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.sessions[id]
	if !ok {
		return nil, clientsredis.ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

// DeleteSession removes the document. Deleting a missing document is a no-op,
// matching Redis DEL semantics.
func (c *Client) DeleteSession(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
	return nil
}

// ListSessions returns stored ids in lexical order.
func (c *Client) ListSessions(_ context.Context) ([]string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.sessions))
	for id := range c.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// PutSnapshot stores a copy of the snapshot bytes.
func (c *Client) PutSnapshot(_ context.Context, sessionID, checkpointID string, doc []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.snapshots[sessionID]
	if !ok {
		m = make(map[string][]byte)
		c.snapshots[sessionID] = m
	}
	m[checkpointID] = append([]byte(nil), doc...)
	return nil
}

// GetSnapshot returns a copy of the snapshot bytes or clientsredis.ErrNotFound.
func (c *Client) GetSnapshot(_ context.Context, sessionID, checkpointID string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	doc, ok := c.snapshots[sessionID][checkpointID]
	if !ok {
		return nil, clientsredis.ErrNotFound
	}
	return append([]byte(nil), doc...), nil
}

// DeleteSnapshots removes every snapshot for the session.
func (c *Client) DeleteSnapshots(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.snapshots, sessionID)
	return nil
}

// SetCurrent stores the current-session pointer.
func (c *Client) SetCurrent(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = id
	return nil
}

// GetCurrent returns the pointer, empty when unset.
func (c *Client) GetCurrent(_ context.Context) (string, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, nil
}

// ClearCurrent unsets the pointer.
func (c *Client) ClearCurrent(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = ""
	return nil
}
