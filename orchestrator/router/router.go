// Package router classifies a free-text goal into a workflow decision: the
// workflow name, the ordered agent sequence, and a confidence score.
//
// Classification is a pure function; persisting the decision into the session
// document is the orchestrator's job.
package router

import (
	"strings"

	"goa.design/conductor/orchestrator/session"
)

// Workflow names produced by classification.
const (
	WorkflowBuildOnly     = "build_only"
	WorkflowPlanThenBuild = "plan_then_build"
)

// Agent names referenced by the built-in workflows.
const (
	AgentPlanner = "planner"
	AgentBuilder = "builder"
)

type (
	// Decision is the outcome of goal classification.
	Decision struct {
		// Workflow names the selected workflow.
		Workflow string
		// Agents is the ordered agent name sequence.
		Agents []string
		// Confidence is the classification confidence in [0.0, 1.0].
		Confidence float64
		// Reason explains which keyword class matched.
		Reason string
	}

	// keywordClass is one ordered classification rule. The first class whose
	// keywords match wins; matches never accumulate across classes.
	keywordClass struct {
		keywords   []string
		workflow   string
		agents     []string
		confidence float64
		reason     string
	}
)

// classes are evaluated in priority order. Fix-like language routes straight
// to the builder; everything else goes through the planner first.
var classes = []keywordClass{
	{
		keywords:   []string{"fix", "bug", "error", "typo", "broken", "crash"},
		workflow:   WorkflowBuildOnly,
		agents:     []string{AgentBuilder},
		confidence: 0.7,
		reason:     "fix-like goal",
	},
	{
		keywords:   []string{"refactor", "reorganize", "restructure", "rework"},
		workflow:   WorkflowPlanThenBuild,
		agents:     []string{AgentPlanner, AgentBuilder},
		confidence: 0.9,
		reason:     "refactor-like goal",
	},
	{
		keywords:   []string{"add", "create", "implement", "build", "new feature"},
		workflow:   WorkflowPlanThenBuild,
		agents:     []string{AgentPlanner, AgentBuilder},
		confidence: 0.85,
		reason:     "feature-like goal",
	},
}

// defaultDecision applies when no keyword class matches.
var defaultDecision = Decision{
	Workflow:   WorkflowPlanThenBuild,
	Agents:     []string{AgentPlanner, AgentBuilder},
	Confidence: 0.8,
	Reason:     "no keyword match, default workflow",
}

// Classify maps a goal description to a workflow decision using
// case-insensitive substring matching against the ordered keyword classes.
func Classify(goal string) Decision {
	lowered := strings.ToLower(goal)
	for _, c := range classes {
		for _, kw := range c.keywords {
			if strings.Contains(lowered, kw) {
				return Decision{
					Workflow:   c.workflow,
					Agents:     append([]string(nil), c.agents...),
					Confidence: c.confidence,
					Reason:     c.reason,
				}
			}
		}
	}
	d := defaultDecision
	d.Agents = append([]string(nil), d.Agents...)
	return d
}

// Routing materializes the decision as a session routing record: every agent
// becomes a sequence entry with a 1-based order index and pending status.
func (d Decision) Routing() *session.Routing {
	entries := make([]session.SequenceEntry, len(d.Agents))
	for i, agent := range d.Agents {
		entries[i] = session.SequenceEntry{
			Agent:  agent,
			Order:  i + 1,
			Status: session.AgentPending,
			Reason: d.Reason,
		}
	}
	return &session.Routing{
		Workflow:   d.Workflow,
		Agents:     entries,
		Confidence: d.Confidence,
	}
}
