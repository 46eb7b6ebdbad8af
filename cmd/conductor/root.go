package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"goa.design/conductor/orchestrator"
	"goa.design/conductor/orchestrator/session"
)

// app carries the process-wide state shared by subcommands. The session id is
// resolved once at startup: an explicit --session flag wins, otherwise the
// store's current-session pointer is consulted; core operations themselves
// always receive an explicit id.
type app struct {
	ctx  context.Context
	orch *orchestrator.Orchestrator

	configPath string
	stateDir   string
	backend    string
	redisAddr  string
	sessionID  string
	debug      bool
}

func execute() error {
	a := &app{}

	root := &cobra.Command{
		Use:           "conductor",
		Short:         "Coordinate a pipeline of planner/builder/verifier agents",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.ctx = newContext(a.debug)
			cfg, err := loadConfig(a.configPath)
			if err != nil {
				return err
			}
			if a.stateDir != "" {
				cfg.StateDir = a.stateDir
			}
			if a.backend != "" {
				cfg.Backend = a.backend
			}
			if a.redisAddr != "" {
				cfg.RedisAddr = a.redisAddr
			}
			a.orch, err = newOrchestrator(cfg)
			return err
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to config.yaml")
	pf.StringVar(&a.stateDir, "state-dir", "", "state directory (file backend)")
	pf.StringVar(&a.backend, "backend", "", "session store backend (file|redis)")
	pf.StringVar(&a.redisAddr, "redis-addr", "", "redis address (redis backend)")
	pf.StringVar(&a.sessionID, "session", "", "session id (defaults to the current session)")
	pf.BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		a.initCmd(),
		a.statusCmd(),
		a.showCmd(),
		a.sessionsCmd(),
		a.routeCmd(),
		a.agentCmd(),
		a.checkpointCmd(),
		a.handoffCmd(),
		a.recoverCmd(),
		a.cleanupCmd(),
	)

	return root.Execute()
}

// session resolves the target session id. Explicit flag wins; the current
// pointer is the convenience default.
func (a *app) session() (string, error) {
	if a.sessionID != "" {
		return a.sessionID, nil
	}
	id, err := a.orch.Current(a.ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", fmt.Errorf("%w: no current session, pass --session", session.ErrInvalidInput)
	}
	return id, nil
}

func (a *app) initCmd() *cobra.Command {
	var mode string
	cmd := &cobra.Command{
		Use:   "init <goal>",
		Short: "Initialize a new session for a goal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m := session.Mode(mode)
			if m != session.ModeImplicit && m != session.ModeExplicit {
				return fmt.Errorf("%w: mode must be implicit or explicit", session.ErrInvalidInput)
			}
			doc, err := a.orch.CreateSession(a.ctx, args[0], m)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), doc.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(session.ModeExplicit), "session mode (implicit|explicit)")
	return cmd
}

func (a *app) statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show a human-readable session summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.session()
			if err != nil {
				return err
			}
			summary, err := a.orch.Status(a.ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the raw session document as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.session()
			if err != nil {
				return err
			}
			doc, err := a.orch.Session(a.ctx, id)
			if err != nil {
				return err
			}
			return printJSON(cmd, doc)
		},
	}
}

func (a *app) sessionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List persisted session ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ids, err := a.orch.Sessions(a.ctx)
			if err != nil {
				return err
			}
			for _, id := range ids {
				fmt.Fprintln(cmd.OutOrStdout(), id)
			}
			return nil
		},
	}
}

func (a *app) routeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "route",
		Short: "Select a workflow for the session goal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.session()
			if err != nil {
				return err
			}
			decision, err := a.orch.Route(a.ctx, id)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %v (confidence %.2f)\n",
				decision.Workflow, decision.Agents, decision.Confidence)
			return nil
		},
	}
}

func (a *app) agentCmd() *cobra.Command {
	agent := &cobra.Command{
		Use:   "agent",
		Short: "Record agent lifecycle transitions",
	}

	agent.AddCommand(&cobra.Command{
		Use:   "start <agent>",
		Short: "Record the start of an agent invocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.session()
			if err != nil {
				return err
			}
			_, err = a.orch.StartAgent(a.ctx, id, args[0])
			return err
		},
	})

	var output string
	complete := &cobra.Command{
		Use:   "complete <agent>",
		Short: "Record a successful agent invocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.session()
			if err != nil {
				return err
			}
			_, err = a.orch.CompleteAgent(a.ctx, id, args[0], json.RawMessage(output))
			return err
		},
	}
	complete.Flags().StringVar(&output, "output", "{}", "agent output as JSON")
	agent.AddCommand(complete)

	var errMsg string
	fail := &cobra.Command{
		Use:   "fail <agent>",
		Short: "Record a failed agent invocation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.session()
			if err != nil {
				return err
			}
			_, err = a.orch.FailAgent(a.ctx, id, args[0], errMsg)
			return err
		},
	}
	fail.Flags().StringVar(&errMsg, "error", "", "failure message")
	agent.AddCommand(fail)

	return agent
}

func (a *app) checkpointCmd() *cobra.Command {
	cp := &cobra.Command{
		Use:   "checkpoint",
		Short: "Save and restore session snapshots",
	}

	cp.AddCommand(&cobra.Command{
		Use:   "save <name>",
		Short: "Snapshot the session under a name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.session()
			if err != nil {
				return err
			}
			checkpointID, err := a.orch.SaveCheckpoint(a.ctx, id, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), checkpointID)
			return nil
		},
	})

	cp.AddCommand(&cobra.Command{
		Use:   "resume [checkpoint-id]",
		Short: "Restore a snapshot (the latest when no id is given) and pause",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.session()
			if err != nil {
				return err
			}
			checkpointID := ""
			if len(args) == 1 {
				checkpointID = args[0]
			}
			doc, err := a.orch.ResumeCheckpoint(a.ctx, id, checkpointID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored; session is %s\n", doc.Status)
			return nil
		},
	})

	cp.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List checkpoint metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.session()
			if err != nil {
				return err
			}
			metas, err := a.orch.Checkpoints(a.ctx, id)
			if err != nil {
				return err
			}
			for _, m := range metas {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tafter=%s\t%s\n",
					m.ID, m.Name, m.AfterAgent, m.Timestamp.Format("2006-01-02T15:04:05Z07:00"))
			}
			return nil
		},
	})

	return cp
}

func (a *app) handoffCmd() *cobra.Command {
	h := &cobra.Command{
		Use:   "handoff",
		Short: "Record and query inter-agent handoff context",
	}

	var contextJSON, reason string
	record := &cobra.Command{
		Use:   "record <from> <to>",
		Short: "Append a handoff record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.session()
			if err != nil {
				return err
			}
			_, err = a.orch.RecordHandoff(a.ctx, id, args[0], args[1], json.RawMessage(contextJSON), reason)
			return err
		},
	}
	record.Flags().StringVar(&contextJSON, "context", "{}", "handoff context as JSON")
	record.Flags().StringVar(&reason, "reason", "", "handoff reason")
	h.AddCommand(record)

	h.AddCommand(&cobra.Command{
		Use:   "show <agent>",
		Short: "Print the latest context addressed to an agent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.session()
			if err != nil {
				return err
			}
			return printJSON(cmd, a.orch.HandoffContext(a.ctx, id, args[0]))
		},
	})

	return h
}

func (a *app) recoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover [agent]",
		Short: "Decide the recovery action for an agent (or the whole session)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := a.session()
			if err != nil {
				return err
			}
			agent := ""
			if len(args) == 1 {
				agent = args[0]
			}
			decision, err := a.orch.Decide(a.ctx, id, agent)
			if err != nil {
				return err
			}
			return printJSON(cmd, decision)
		},
	}
}

func (a *app) cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Delete the session's persisted state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := a.session()
			if err != nil {
				return err
			}
			return a.orch.Cleanup(a.ctx, id)
		},
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
