// Package session defines the durable session document and its store contract.
//
// A Session is the unit of orchestration work: one end-to-end run tracking a
// single goal through routing, agent execution, and completion or failure.
// The document is exclusively owned by the orchestration core; external agents
// only ever see derived views (routing entries, handoff context) handed to
// them by the controller.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type (
	// Session captures the full state of one orchestration run.
	//
	// Contract:
	// - IDs are store-generated at creation and immutable.
	// - Collections (AgentStates, Handoffs, Checkpoints, Failures) are
	//   append-only; the single exception is the in-place status update of the
	//   currently active invocation record per agent name.
	// - Every mutation goes through Store.Mutate, which refreshes UpdatedAt.
	Session struct {
		// ID is the durable identifier of the session.
		ID string `json:"id"`
		// Mode records how the session was triggered.
		Mode Mode `json:"mode"`
		// Status is the current lifecycle state.
		Status Status `json:"status"`
		// Goal is the free-text goal description, immutable once set.
		Goal string `json:"goal"`
		// Routing holds the workflow decision; nil until the session is routed.
		Routing *Routing `json:"routing,omitempty"`
		// AgentStates is the ordered sequence of agent invocation records.
		AgentStates []AgentInvocation `json:"agent_states"`
		// Handoffs is the append-only handoff ledger.
		Handoffs []Handoff `json:"handoffs"`
		// Checkpoints is the append-only checkpoint metadata log.
		Checkpoints []CheckpointMeta `json:"checkpoints"`
		// Failures is the append-only failure log.
		Failures []Failure `json:"failures"`
		// CreatedAt records when the session was created.
		CreatedAt time.Time `json:"created_at"`
		// UpdatedAt is refreshed on every mutation.
		UpdatedAt time.Time `json:"updated_at"`
	}

	// Routing is the persisted outcome of goal classification.
	Routing struct {
		// Workflow names the selected workflow.
		Workflow string `json:"workflow"`
		// Agents is the ordered agent sequence for the workflow.
		Agents []SequenceEntry `json:"agents"`
		// Confidence is the classification confidence in [0.0, 1.0].
		Confidence float64 `json:"confidence"`
	}

	// SequenceEntry is one agent slot in the routed workflow.
	SequenceEntry struct {
		// Agent is the agent name.
		Agent string `json:"agent"`
		// Order is the 1-based position in the sequence.
		Order int `json:"order"`
		// Status is the slot lifecycle state.
		Status AgentStatus `json:"status"`
		// StartedAt is set when the slot becomes active.
		StartedAt *time.Time `json:"started_at,omitempty"`
		// Reason optionally explains the routing choice for this slot.
		Reason string `json:"reason,omitempty"`
	}

	// AgentInvocation records a single start of an agent.
	//
	// At most one invocation per agent name should be active at a time;
	// duplicate starts are nevertheless accepted and append a second record
	// (see tracker documentation). Terminal transitions always target the most
	// recently appended active record for the agent name, so records that
	// already reached a terminal status are never overwritten.
	AgentInvocation struct {
		// Agent is the agent name.
		Agent string `json:"agent_name"`
		// InvocationID is unique per invocation, derived from the agent name
		// and creation time.
		InvocationID string `json:"invocation_id"`
		// Status is the invocation lifecycle state.
		Status AgentStatus `json:"status"`
		// StartedAt records when the invocation was recorded.
		StartedAt time.Time `json:"started_at"`
		// CompletedAt is nil until the invocation reaches a terminal status.
		CompletedAt *time.Time `json:"completed_at,omitempty"`
		// Output is the opaque agent output, empty until completed.
		Output Payload `json:"output,omitempty"`
		// Error holds the failure message when Status is failed.
		Error string `json:"error,omitempty"`
	}

	// Handoff is an immutable record of context passed between agents.
	Handoff struct {
		// From is the producing agent.
		From string `json:"from_agent"`
		// To is the receiving agent.
		To string `json:"to_agent"`
		// Timestamp is the append time.
		Timestamp time.Time `json:"timestamp"`
		// Context is the opaque payload passed along.
		Context Payload `json:"context_passed"`
		// Reason optionally explains why the handoff happened.
		Reason string `json:"reason,omitempty"`
	}

	// Failure is one recorded agent failure. Immutable except for
	// RecoveryAction, which the recovery policy sets exactly once after the
	// record is appended.
	Failure struct {
		// Timestamp is the append time.
		Timestamp time.Time `json:"timestamp"`
		// Agent is the failing agent name.
		Agent string `json:"agent"`
		// Error is the failure message.
		Error string `json:"error_message"`
		// RecoveryAction is empty until the policy decides.
		RecoveryAction string `json:"recovery_action,omitempty"`
		// RetryCount tracks retries attempted for this failure.
		RetryCount int `json:"retry_count"`
	}

	// CheckpointMeta describes one saved checkpoint. State embeds a full deep
	// copy of the session document at save time; the standalone snapshot
	// artifact keyed by ID is the authoritative source for restores.
	CheckpointMeta struct {
		// ID is the generated checkpoint identifier.
		ID string `json:"id"`
		// Name is the caller-supplied checkpoint name.
		Name string `json:"name"`
		// Timestamp is the save time.
		Timestamp time.Time `json:"timestamp"`
		// AfterAgent names the last completed agent at save time, or
		// AfterAgentNone when no agent had completed yet.
		AfterAgent string `json:"after_agent"`
		// State is the embedded structural copy of the session.
		State *Session `json:"state,omitempty"`
	}

	// Store persists session documents, checkpoint snapshots, and the
	// "current session" pointer.
	//
	// Store implementations must be durable and must never expose a partially
	// written document: Mutate is read-transform-replace with atomic-swap
	// semantics. The store does not serialize concurrent writers; the caller
	// must guarantee a single active writer per session.
	Store interface {
		// Create allocates an id and persists a fresh Session with
		// Status = StatusInitializing and empty collections, then points the
		// current-session pointer at it. Returns ErrInvalidInput when goal is
		// empty.
		Create(ctx context.Context, goal string, mode Mode) (*Session, error)
		// Load returns the session document.
		// Returns ErrSessionNotFound when no document exists for the id.
		Load(ctx context.Context, id string) (*Session, error)
		// Mutate atomically applies fn to the stored document and persists the
		// result, refreshing UpdatedAt. When fn returns an error the document
		// is left untouched and the error is returned verbatim.
		Mutate(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
		// Replace overwrites the stored document wholesale, refreshing
		// UpdatedAt. Used by checkpoint restore.
		Replace(ctx context.Context, id string, s *Session) error
		// Current resolves the current-session pointer. Returns an empty id,
		// not an error, when no pointer exists.
		Current(ctx context.Context) (string, error)
		// List enumerates the ids of all persisted sessions.
		List(ctx context.Context) ([]string, error)
		// Delete removes the session document and every associated snapshot,
		// clearing the current pointer when it matches. Deleting a missing
		// session returns ErrSessionNotFound.
		Delete(ctx context.Context, id string) error
		// SaveSnapshot persists a standalone structural copy of the document,
		// addressable by checkpoint id.
		SaveSnapshot(ctx context.Context, sessionID, checkpointID string, snap *Session) error
		// LoadSnapshot retrieves a standalone snapshot.
		// Returns ErrCheckpointNotFound when the artifact is missing.
		LoadSnapshot(ctx context.Context, sessionID, checkpointID string) (*Session, error)
	}

	// Mode records how a session was triggered.
	Mode string

	// Status is the session lifecycle state.
	Status string

	// AgentStatus is the lifecycle state of a sequence entry or invocation.
	AgentStatus string
)

const (
	// ModeImplicit marks sessions started implicitly by the controller.
	ModeImplicit Mode = "implicit"
	// ModeExplicit marks sessions started by an explicit user request.
	ModeExplicit Mode = "explicit"

	// StatusInitializing indicates the session was created but not routed.
	StatusInitializing Status = "initializing"
	// StatusRouting indicates a workflow has been selected.
	StatusRouting Status = "routing"
	// StatusExecuting indicates an agent is running.
	StatusExecuting Status = "executing"
	// StatusRecovering indicates the last agent failed and a recovery
	// decision is pending or in progress.
	StatusRecovering Status = "recovering"
	// StatusPaused indicates the session was restored from a checkpoint and
	// awaits an explicit controller restart.
	StatusPaused Status = "paused"
	// StatusComplete indicates the session finished successfully.
	StatusComplete Status = "complete"
	// StatusFailed indicates the session failed permanently.
	StatusFailed Status = "failed"

	// AgentPending indicates the sequence slot has not started.
	AgentPending AgentStatus = "pending"
	// AgentActive indicates the agent is running.
	AgentActive AgentStatus = "active"
	// AgentCompleted indicates the agent finished successfully.
	AgentCompleted AgentStatus = "completed"
	// AgentFailed indicates the agent failed.
	AgentFailed AgentStatus = "failed"
)

// AfterAgentNone is the checkpoint AfterAgent sentinel used when no agent had
// completed at save time.
const AfterAgentNone = "none"

var (
	// ErrInvalidInput indicates a required argument is missing or malformed.
	ErrInvalidInput = errors.New("invalid input")
	// ErrSessionNotFound indicates the session does not exist in the store.
	ErrSessionNotFound = errors.New("session not found")
	// ErrCheckpointNotFound indicates the checkpoint or its standalone
	// snapshot does not exist.
	ErrCheckpointNotFound = errors.New("checkpoint not found")
)

// Clone returns a deep, independent copy of the session. Later mutation of
// the original never alters the copy. Cloning goes through the JSON codec so
// the copy is exactly what a store round-trip would produce.
func (s *Session) Clone() (*Session, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("clone session %s: %w", s.ID, err)
	}
	var out Session
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("clone session %s: %w", s.ID, err)
	}
	return &out, nil
}

// ActiveInvocation returns the most recently appended invocation record for
// the agent name that is still active, or nil when none exists. Terminal
// records are never returned, so callers cannot overwrite them.
func (s *Session) ActiveInvocation(agent string) *AgentInvocation {
	for i := len(s.AgentStates) - 1; i >= 0; i-- {
		inv := &s.AgentStates[i]
		if inv.Agent == agent && inv.Status == AgentActive {
			return inv
		}
	}
	return nil
}

// SequenceEntryFor returns the routing slot for the agent name, or nil when
// the session has no routing or no matching slot.
func (s *Session) SequenceEntryFor(agent string) *SequenceEntry {
	if s.Routing == nil {
		return nil
	}
	for i := range s.Routing.Agents {
		if s.Routing.Agents[i].Agent == agent {
			return &s.Routing.Agents[i]
		}
	}
	return nil
}

// LastCompletedAgent returns the name of the last sequence entry whose status
// is completed, or AfterAgentNone when no agent has completed yet.
func (s *Session) LastCompletedAgent() string {
	last := AfterAgentNone
	if s.Routing == nil {
		return last
	}
	for _, e := range s.Routing.Agents {
		if e.Status == AgentCompleted {
			last = e.Agent
		}
	}
	return last
}

// FailureCount returns the number of recorded failures for the agent, or for
// the whole session when agent is empty.
func (s *Session) FailureCount(agent string) int {
	if agent == "" {
		return len(s.Failures)
	}
	n := 0
	for _, f := range s.Failures {
		if f.Agent == agent {
			n++
		}
	}
	return n
}
