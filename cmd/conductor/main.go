// Command conductor drives the agent pipeline orchestration core from the
// command line. Each subcommand maps 1:1 to an orchestration operation.
package main

import (
	"context"
	"fmt"
	"os"

	goredis "github.com/redis/go-redis/v9"
	"goa.design/clue/log"

	filestore "goa.design/conductor/features/session/file"
	redisstore "goa.design/conductor/features/session/redis"
	clientsredis "goa.design/conductor/features/session/redis/clients/redis"
	"goa.design/conductor/orchestrator"
	"goa.design/conductor/orchestrator/session"
	"goa.design/conductor/orchestrator/telemetry"
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, "conductor:", err)
		os.Exit(1)
	}
}

// newContext sets up the clue logging context for the process.
func newContext(debug bool) context.Context {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if debug {
		ctx = log.Context(ctx, log.WithDebug())
	}
	return ctx
}

// newOrchestrator builds the store selected by the configuration and wraps it
// in an Orchestrator with clue logging.
func newOrchestrator(cfg Config) (*orchestrator.Orchestrator, error) {
	var (
		store session.Store
		err   error
	)
	switch cfg.Backend {
	case backendFile:
		store, err = filestore.New(cfg.StateDir)
	case backendRedis:
		var client clientsredis.Client
		client, err = clientsredis.New(clientsredis.Options{
			Client: goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr}),
		})
		if err == nil {
			store, err = redisstore.NewStore(client)
		}
	default:
		err = fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return orchestrator.New(store,
		orchestrator.WithLogger(telemetry.NewClueLogger()),
		orchestrator.WithMetrics(telemetry.NewClueMetrics()),
	), nil
}
