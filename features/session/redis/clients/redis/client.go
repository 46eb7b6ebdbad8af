// Package redis hosts the Redis client used by the Redis session store.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix  = "conductor:session:"
	snapshotKeyPrefix = "conductor:snapshot:"
	sessionSetKey     = "conductor:sessions"
	snapshotSetPrefix = "conductor:snapshots:"
	currentKey        = "conductor:current"

	defaultOpTimeout = 5 * time.Second
)

// ErrNotFound indicates the requested document or snapshot does not exist.
var ErrNotFound = errors.New("not found")

// Client exposes Redis-backed operations for session documents, checkpoint
// snapshots, and the current-session pointer.
type Client interface {
	PutSession(ctx context.Context, id string, doc []byte) error
	GetSession(ctx context.Context, id string) ([]byte, error)
	DeleteSession(ctx context.Context, id string) error
	ListSessions(ctx context.Context) ([]string, error)

	PutSnapshot(ctx context.Context, sessionID, checkpointID string, doc []byte) error
	GetSnapshot(ctx context.Context, sessionID, checkpointID string) ([]byte, error)
	DeleteSnapshots(ctx context.Context, sessionID string) error

	SetCurrent(ctx context.Context, id string) error
	GetCurrent(ctx context.Context) (string, error)
	ClearCurrent(ctx context.Context) error
}

// Options configures the Redis session client.
type Options struct {
	Client  *goredis.Client
	Timeout time.Duration
}

type client struct {
	rdb     *goredis.Client
	timeout time.Duration
}

// New returns a Client backed by Redis.
func New(opts Options) (Client, error) {
	if opts.Client == nil {
		return nil, errors.New("redis client is required")
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = defaultOpTimeout
	}
	return &client{rdb: opts.Client, timeout: timeout}, nil
}

func (c *client) PutSession(ctx context.Context, id string, doc []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, sessionKeyPrefix+id, doc, 0)
	pipe.SAdd(ctx, sessionSetKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put session %s: %w", id, err)
	}
	return nil
}

func (c *client) GetSession(ctx context.Context, id string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	data, err := c.rdb.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}
	return data, nil
}

func (c *client) DeleteSession(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	pipe := c.rdb.TxPipeline()
	pipe.Del(ctx, sessionKeyPrefix+id)
	pipe.SRem(ctx, sessionSetKey, id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

func (c *client) ListSessions(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	ids, err := c.rdb.SMembers(ctx, sessionSetKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return ids, nil
}

func (c *client) PutSnapshot(ctx context.Context, sessionID, checkpointID string, doc []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	key := snapshotKey(sessionID, checkpointID)
	pipe := c.rdb.TxPipeline()
	pipe.Set(ctx, key, doc, 0)
	pipe.SAdd(ctx, snapshotSetPrefix+sessionID, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put snapshot %s: %w", checkpointID, err)
	}
	return nil
}

func (c *client) GetSnapshot(ctx context.Context, sessionID, checkpointID string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	data, err := c.rdb.Get(ctx, snapshotKey(sessionID, checkpointID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot %s: %w", checkpointID, err)
	}
	return data, nil
}

func (c *client) DeleteSnapshots(ctx context.Context, sessionID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	keys, err := c.rdb.SMembers(ctx, snapshotSetPrefix+sessionID).Result()
	if err != nil {
		return fmt.Errorf("list snapshots for %s: %w", sessionID, err)
	}
	pipe := c.rdb.TxPipeline()
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	pipe.Del(ctx, snapshotSetPrefix+sessionID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete snapshots for %s: %w", sessionID, err)
	}
	return nil
}

func (c *client) SetCurrent(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.rdb.Set(ctx, currentKey, id, 0).Err(); err != nil {
		return fmt.Errorf("set current pointer: %w", err)
	}
	return nil
}

func (c *client) GetCurrent(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	id, err := c.rdb.Get(ctx, currentKey).Result()
	if errors.Is(err, goredis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get current pointer: %w", err)
	}
	return id, nil
}

func (c *client) ClearCurrent(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.rdb.Del(ctx, currentKey).Err(); err != nil {
		return fmt.Errorf("clear current pointer: %w", err)
	}
	return nil
}

func snapshotKey(sessionID, checkpointID string) string {
	return snapshotKeyPrefix + sessionID + ":" + checkpointID
}
