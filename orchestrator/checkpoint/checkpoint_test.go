package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/conductor/orchestrator/router"
	"goa.design/conductor/orchestrator/session"
	"goa.design/conductor/orchestrator/session/inmem"
)

func newSession(t *testing.T, store session.Store) *session.Session {
	t.Helper()
	ctx := context.Background()
	doc, err := store.Create(ctx, "Add login page", session.ModeExplicit)
	require.NoError(t, err)
	_, err = store.Mutate(ctx, doc.ID, func(s *session.Session) error {
		s.Routing = router.Classify(s.Goal).Routing()
		s.Status = session.StatusRouting
		return nil
	})
	require.NoError(t, err)
	doc, err = store.Load(ctx, doc.ID)
	require.NoError(t, err)
	return doc
}

func TestSaveAppendsMetadataAndSnapshot(t *testing.T) {
	store := inmem.New()
	mgr := New(store, nil, nil)
	ctx := context.Background()
	doc := newSession(t, store)

	id, err := mgr.Save(ctx, doc.ID, "after-routing")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	loaded, err := store.Load(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Checkpoints, 1)
	cp := loaded.Checkpoints[0]
	require.Equal(t, id, cp.ID)
	require.Equal(t, "after-routing", cp.Name)
	require.Equal(t, session.AfterAgentNone, cp.AfterAgent, "no agent completed yet")
	require.NotNil(t, cp.State)
	require.Empty(t, cp.State.Checkpoints, "embedded copy must not contain itself")

	snap, err := store.LoadSnapshot(ctx, doc.ID, id)
	require.NoError(t, err)
	require.Equal(t, doc.ID, snap.ID)
}

func TestSaveRecordsLastCompletedAgent(t *testing.T) {
	store := inmem.New()
	mgr := New(store, nil, nil)
	ctx := context.Background()
	doc := newSession(t, store)

	_, err := store.Mutate(ctx, doc.ID, func(s *session.Session) error {
		s.Routing.Agents[0].Status = session.AgentCompleted
		return nil
	})
	require.NoError(t, err)

	_, err = mgr.Save(ctx, doc.ID, "after-planner")
	require.NoError(t, err)

	loaded, err := store.Load(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, "planner", loaded.Checkpoints[0].AfterAgent)
}

func TestSaveRequiresName(t *testing.T) {
	store := inmem.New()
	mgr := New(store, nil, nil)
	doc := newSession(t, store)
	_, err := mgr.Save(context.Background(), doc.ID, "")
	require.ErrorIs(t, err, session.ErrInvalidInput)
}

func TestResumeRoundTrip(t *testing.T) {
	store := inmem.New()
	mgr := New(store, nil, nil)
	ctx := context.Background()
	doc := newSession(t, store)

	id, err := mgr.Save(ctx, doc.ID, "before-build")
	require.NoError(t, err)
	saved, err := store.Load(ctx, doc.ID)
	require.NoError(t, err)

	// Mutate the live session after the save.
	_, err = store.Mutate(ctx, doc.ID, func(s *session.Session) error {
		s.Status = session.StatusFailed
		s.Failures = append(s.Failures, session.Failure{Agent: "builder", Error: "boom"})
		return nil
	})
	require.NoError(t, err)

	restored, err := mgr.Resume(ctx, doc.ID, id)
	require.NoError(t, err)
	require.Equal(t, session.StatusPaused, restored.Status, "resume always pauses")
	require.Empty(t, restored.Failures, "post-save mutation must be rolled back")
	require.Equal(t, saved.Goal, restored.Goal)
	require.Equal(t, saved.Routing, restored.Routing)
}

func TestResumeLatestWhenNoIDGiven(t *testing.T) {
	store := inmem.New()
	mgr := New(store, nil, nil)
	ctx := context.Background()
	doc := newSession(t, store)

	_, err := mgr.Save(ctx, doc.ID, "first")
	require.NoError(t, err)
	_, err = store.Mutate(ctx, doc.ID, func(s *session.Session) error {
		s.Status = session.StatusExecuting
		return nil
	})
	require.NoError(t, err)
	_, err = mgr.Save(ctx, doc.ID, "second")
	require.NoError(t, err)

	restored, err := mgr.Resume(ctx, doc.ID, "")
	require.NoError(t, err)
	require.Equal(t, session.StatusPaused, restored.Status)
	require.Len(t, restored.Checkpoints, 1, "the second snapshot embeds only the first checkpoint")
	require.Equal(t, "first", restored.Checkpoints[0].Name)
}

func TestResumeNoCheckpoints(t *testing.T) {
	store := inmem.New()
	mgr := New(store, nil, nil)
	doc := newSession(t, store)

	_, err := mgr.Resume(context.Background(), doc.ID, "")
	require.ErrorIs(t, err, session.ErrCheckpointNotFound)
}

func TestResumeMissingSnapshot(t *testing.T) {
	store := inmem.New()
	mgr := New(store, nil, nil)
	doc := newSession(t, store)

	_, err := mgr.Resume(context.Background(), doc.ID, "cp-unknown")
	require.ErrorIs(t, err, session.ErrCheckpointNotFound)
}

func TestSnapshotIsIndependentOfLiveSession(t *testing.T) {
	store := inmem.New()
	mgr := New(store, nil, nil)
	ctx := context.Background()
	doc := newSession(t, store)

	id, err := mgr.Save(ctx, doc.ID, "pin")
	require.NoError(t, err)

	_, err = store.Mutate(ctx, doc.ID, func(s *session.Session) error {
		s.Routing.Agents[0].Status = session.AgentFailed
		return nil
	})
	require.NoError(t, err)

	snap, err := store.LoadSnapshot(ctx, doc.ID, id)
	require.NoError(t, err)
	require.Equal(t, session.AgentPending, snap.Routing.Agents[0].Status,
		"later mutation of the live session must not alter the saved checkpoint")
}

func TestList(t *testing.T) {
	store := inmem.New()
	mgr := New(store, nil, nil)
	ctx := context.Background()
	doc := newSession(t, store)

	_, err := mgr.Save(ctx, doc.ID, "one")
	require.NoError(t, err)
	_, err = mgr.Save(ctx, doc.ID, "two")
	require.NoError(t, err)

	metas, err := mgr.List(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	require.Equal(t, "one", metas[0].Name)
	require.Equal(t, "two", metas[1].Name)
	for _, m := range metas {
		require.Nil(t, m.State, "list omits embedded state copies")
	}
}
