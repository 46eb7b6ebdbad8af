package redis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/conductor/features/session/redis/clients/redis/inmem"
	"goa.design/conductor/orchestrator/session"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(inmem.New())
	require.NoError(t, err)
	return store
}

func TestNewStoreRequiresClient(t *testing.T) {
	_, err := NewStore(nil)
	require.Error(t, err)
}

func TestCreateLoadRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	doc, err := store.Create(ctx, "Refactor storage layer", session.ModeImplicit)
	require.NoError(t, err)
	require.Equal(t, session.StatusInitializing, doc.Status)

	loaded, err := store.Load(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc.Goal, loaded.Goal)
	require.Equal(t, doc.Mode, loaded.Mode)

	id, err := store.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, doc.ID, id)
}

func TestCreateEmptyGoal(t *testing.T) {
	store := newStore(t)
	_, err := store.Create(context.Background(), "", session.ModeImplicit)
	require.ErrorIs(t, err, session.ErrInvalidInput)
}

func TestLoadMissing(t *testing.T) {
	store := newStore(t)
	_, err := store.Load(context.Background(), "sess-missing")
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestMutate(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	doc, err := store.Create(ctx, "goal", session.ModeExplicit)
	require.NoError(t, err)

	_, err = store.Mutate(ctx, doc.ID, func(s *session.Session) error {
		s.Status = session.StatusRouting
		return nil
	})
	require.NoError(t, err)

	loaded, err := store.Load(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, session.StatusRouting, loaded.Status)
}

func TestDeleteClearsPointerAndSnapshots(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	doc, err := store.Create(ctx, "goal", session.ModeExplicit)
	require.NoError(t, err)
	require.NoError(t, store.SaveSnapshot(ctx, doc.ID, "cp-1", doc))

	require.NoError(t, store.Delete(ctx, doc.ID))

	_, err = store.Load(ctx, doc.ID)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
	_, err = store.LoadSnapshot(ctx, doc.ID, "cp-1")
	require.ErrorIs(t, err, session.ErrCheckpointNotFound)
	id, err := store.Current(ctx)
	require.NoError(t, err)
	require.Empty(t, id)
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	doc, err := store.Create(ctx, "goal", session.ModeExplicit)
	require.NoError(t, err)

	require.NoError(t, store.SaveSnapshot(ctx, doc.ID, "cp-1", doc))
	snap, err := store.LoadSnapshot(ctx, doc.ID, "cp-1")
	require.NoError(t, err)
	require.Equal(t, doc.ID, snap.ID)

	_, err = store.LoadSnapshot(ctx, doc.ID, "cp-unknown")
	require.ErrorIs(t, err, session.ErrCheckpointNotFound)
}
