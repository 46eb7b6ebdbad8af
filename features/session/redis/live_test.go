package redis

import (
	"context"
	"testing"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	clientsredis "goa.design/conductor/features/session/redis/clients/redis"
	"goa.design/conductor/orchestrator/session"
)

// TestLiveRoundTrip exercises the store against a real Redis server in a
// container. Skipped in short mode and when Docker is unavailable.
func TestLiveRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping live Redis test in short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("docker not available: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	rdb := goredis.NewClient(&goredis.Options{Addr: host + ":" + port.Port()})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(ctx).Err())

	client, err := clientsredis.New(clientsredis.Options{Client: rdb})
	require.NoError(t, err)
	store, err := NewStore(client)
	require.NoError(t, err)

	doc, err := store.Create(ctx, "Add login page", session.ModeExplicit)
	require.NoError(t, err)

	_, err = store.Mutate(ctx, doc.ID, func(s *session.Session) error {
		s.Status = session.StatusExecuting
		return nil
	})
	require.NoError(t, err)

	loaded, err := store.Load(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, session.StatusExecuting, loaded.Status)

	require.NoError(t, store.SaveSnapshot(ctx, doc.ID, "cp-live", loaded))
	snap, err := store.LoadSnapshot(ctx, doc.ID, "cp-live")
	require.NoError(t, err)
	require.Equal(t, loaded.ID, snap.ID)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	require.Contains(t, ids, doc.ID)

	require.NoError(t, store.Delete(ctx, doc.ID))
	_, err = store.Load(ctx, doc.ID)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}
