package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"goa.design/conductor/orchestrator/recovery"
	"goa.design/conductor/orchestrator/router"
	"goa.design/conductor/orchestrator/session"
	"goa.design/conductor/orchestrator/session/inmem"
)

// TestPipelineEndToEnd walks one full orchestration run: create, route,
// planner completes, handoff to builder, builder fails, recovery decides
// retry.
func TestPipelineEndToEnd(t *testing.T) {
	store := inmem.New()
	orch := New(store)
	ctx := context.Background()

	doc, err := orch.CreateSession(ctx, "Add login page", session.ModeExplicit)
	require.NoError(t, err)

	decision, err := orch.Route(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, router.WorkflowPlanThenBuild, decision.Workflow)
	require.Equal(t, []string{router.AgentPlanner, router.AgentBuilder}, decision.Agents)
	require.InDelta(t, 0.85, decision.Confidence, 1e-9)

	routed, err := orch.Session(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, session.StatusRouting, routed.Status)
	require.NotNil(t, routed.Routing)

	_, err = orch.StartAgent(ctx, doc.ID, "planner")
	require.NoError(t, err)
	_, err = orch.CompleteAgent(ctx, doc.ID, "planner", map[string]any{"plan_id": "p1"})
	require.NoError(t, err)

	_, err = orch.RecordHandoff(ctx, doc.ID, "planner", "builder", map[string]any{"task_id": "t1"}, "plan ready")
	require.NoError(t, err)

	_, err = orch.StartAgent(ctx, doc.ID, "builder")
	require.NoError(t, err)

	payload := orch.HandoffContext(ctx, doc.ID, "builder")
	require.Equal(t, "t1", payload["task_id"])

	failed, err := orch.FailAgent(ctx, doc.ID, "builder", "tests failed")
	require.NoError(t, err)
	require.Equal(t, session.StatusRecovering, failed.Status)

	rec, err := orch.Decide(ctx, doc.ID, "builder")
	require.NoError(t, err)
	require.Equal(t, recovery.ActionRetry, rec.Action)
	require.Equal(t, 1, rec.FailureCount)
}

func TestCheckpointRoundTripThroughFacade(t *testing.T) {
	store := inmem.New()
	orch := New(store)
	ctx := context.Background()

	doc, err := orch.CreateSession(ctx, "Refactor the parser", session.ModeImplicit)
	require.NoError(t, err)
	_, err = orch.Route(ctx, doc.ID)
	require.NoError(t, err)

	cpID, err := orch.SaveCheckpoint(ctx, doc.ID, "post-routing")
	require.NoError(t, err)

	_, err = orch.StartAgent(ctx, doc.ID, "planner")
	require.NoError(t, err)

	restored, err := orch.ResumeCheckpoint(ctx, doc.ID, cpID)
	require.NoError(t, err)
	require.Equal(t, session.StatusPaused, restored.Status)
	require.Empty(t, restored.AgentStates, "post-checkpoint start must be rolled back")

	metas, err := orch.Checkpoints(ctx, doc.ID)
	require.NoError(t, err)
	require.Len(t, metas, 1)
	require.Equal(t, "post-routing", metas[0].Name)
}

func TestCleanup(t *testing.T) {
	store := inmem.New()
	orch := New(store)
	ctx := context.Background()

	doc, err := orch.CreateSession(ctx, "goal", session.ModeExplicit)
	require.NoError(t, err)

	current, err := orch.Current(ctx)
	require.NoError(t, err)
	require.Equal(t, doc.ID, current)

	require.NoError(t, orch.Cleanup(ctx, doc.ID))

	_, err = orch.Session(ctx, doc.ID)
	require.ErrorIs(t, err, session.ErrSessionNotFound)
	current, err = orch.Current(ctx)
	require.NoError(t, err)
	require.Empty(t, current)
}

func TestStatusRendering(t *testing.T) {
	store := inmem.New()
	orch := New(store)
	ctx := context.Background()

	doc, err := orch.CreateSession(ctx, "Fix the login bug", session.ModeExplicit)
	require.NoError(t, err)
	_, err = orch.Route(ctx, doc.ID)
	require.NoError(t, err)

	before, err := orch.Session(ctx, doc.ID)
	require.NoError(t, err)

	summary, err := orch.Status(ctx, doc.ID)
	require.NoError(t, err)
	require.Contains(t, summary, doc.ID)
	require.Contains(t, summary, "Fix the login bug")
	require.Contains(t, summary, router.WorkflowBuildOnly)
	require.Contains(t, summary, "builder")

	// Status is read-only: no state transition.
	after, err := orch.Session(ctx, doc.ID)
	require.NoError(t, err)
	require.Equal(t, before, after)
}

func TestRouteUnknownSession(t *testing.T) {
	orch := New(inmem.New())
	_, err := orch.Route(context.Background(), "sess-missing")
	require.ErrorIs(t, err, session.ErrSessionNotFound)
}
