package inmem

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/conductor/orchestrator/session"
)

func TestCreateAndLoad(t *testing.T) {
	store := New()
	ctx := context.Background()
	doc, err := store.Create(ctx, "Add login page", session.ModeExplicit)
	require.NoError(t, err)
	require.NotEmpty(t, doc.ID)
	require.Equal(t, session.StatusInitializing, doc.Status)
	require.NotNil(t, doc.AgentStates)
	require.NotNil(t, doc.Failures)

	loaded, err := store.Load(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, doc.Goal, loaded.Goal)

	// Read is idempotent: two loads without an intervening mutation return
	// identical documents.
	again, err := store.Load(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, loaded, again)
}

func TestCreateEmptyGoal(t *testing.T) {
	store := New()
	_, err := store.Create(context.Background(), "", session.ModeImplicit)
	require.ErrorIs(t, err, session.ErrInvalidInput)
}

func TestLoadMissing(t *testing.T) {
	store := New()
	_, err := store.Load(context.Background(), "sess-missing")
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}

func TestMutate(t *testing.T) {
	store := New()
	ctx := context.Background()
	doc, err := store.Create(ctx, "goal", session.ModeExplicit)
	require.NoError(t, err)

	updated, err := store.Mutate(ctx, doc.ID, func(s *session.Session) error {
		s.Status = session.StatusRouting
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, session.StatusRouting, updated.Status)
	require.False(t, updated.UpdatedAt.Before(doc.UpdatedAt))
}

func TestMutateErrorLeavesDocumentUntouched(t *testing.T) {
	store := New()
	ctx := context.Background()
	doc, err := store.Create(ctx, "goal", session.ModeExplicit)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = store.Mutate(ctx, doc.ID, func(s *session.Session) error {
		s.Status = session.StatusFailed
		return boom
	})
	require.ErrorIs(t, err, boom)

	loaded, err := store.Load(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, session.StatusInitializing, loaded.Status)
}

func TestMutatedDocumentIsDefensivelyCopied(t *testing.T) {
	store := New()
	ctx := context.Background()
	doc, err := store.Create(ctx, "goal", session.ModeExplicit)
	require.NoError(t, err)

	returned, err := store.Mutate(ctx, doc.ID, func(s *session.Session) error {
		s.Handoffs = append(s.Handoffs, session.Handoff{To: "builder", Context: session.Payload{"k": "v"}})
		return nil
	})
	require.NoError(t, err)
	returned.Handoffs[0].Context["k"] = "mutated"

	loaded, err := store.Load(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, "v", loaded.Handoffs[0].Context["k"], "expected defensive copy")
}

func TestCurrentPointer(t *testing.T) {
	store := New()
	ctx := context.Background()

	id, err := store.Current(ctx)
	require.NoError(t, err)
	require.Empty(t, id)

	doc, err := store.Create(ctx, "goal", session.ModeExplicit)
	require.NoError(t, err)
	id, err = store.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, doc.ID, id)
}

func TestDelete(t *testing.T) {
	store := New()
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
	require.Empty(t, id, "current pointer must be cleared when it matched")

	require.ErrorIs(t, store.Delete(ctx, doc.ID), session.ErrSessionNotFound)
}

func TestSnapshotRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()
	doc, err := store.Create(ctx, "goal", session.ModeExplicit)
	require.NoError(t, err)

	require.NoError(t, store.SaveSnapshot(ctx, doc.ID, "cp-1", doc))
	snap, err := store.LoadSnapshot(ctx, doc.ID, "cp-1")
	require.NoError(t, err)
	require.Equal(t, doc.Goal, snap.Goal)

	_, err = store.LoadSnapshot(ctx, doc.ID, "cp-unknown")
	require.ErrorIs(t, err, session.ErrCheckpointNotFound)
}

func TestList(t *testing.T) {
	store := New()
	ctx := context.Background()
	a, err := store.Create(ctx, "goal a", session.ModeExplicit)
	require.NoError(t, err)
	b, err := store.Create(ctx, "goal b", session.ModeExplicit)
	require.NoError(t, err)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Contains(t, ids, a.ID)
	require.Contains(t, ids, b.ID)
}
