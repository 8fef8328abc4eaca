/*
Package log provides structured logging for golem using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
component-specific loggers, configurable log levels, and helper functions for
common logging patterns. All logs include timestamps and support filtering by
severity level for production debugging.

# Architecture

	┌──────────────────── LOGGING SYSTEM ──────────────────────┐
	│                                                            │
	│  ┌────────────────────────────────────────────┐          │
	│  │            Global Logger                    │          │
	│  │  - Zerolog instance                         │          │
	│  │  - Initialized via log.Init()               │          │
	│  │  - Thread-safe for concurrent use           │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │           Configuration                     │          │
	│  │  - Level: debug/info/warn/error             │          │
	│  │  - Format: JSON or console (human)          │          │
	│  │  - Output: stdout, file, or custom writer   │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │         Component Loggers                   │          │
	│  │  - WithComponent("executor")                │          │
	│  │  - WithPodID("executor-1")                  │          │
	│  │  - WithComponentID("component-xyz")         │          │
	│  │  - WithWorkerID("invocation-def456")         │          │
	│  └──────────────────┬─────────────────────────┘          │
	│                     │                                      │
	│  ┌──────────────────▼─────────────────────────┐          │
	│  │            Log Output                       │          │
	│  │                                              │          │
	│  │  JSON Format:                               │          │
	│  │  {                                           │          │
	│  │    "level": "info",                         │          │
	│  │    "component": "worker",                   │          │
	│  │    "time": "2026-07-31T10:30:00Z",          │          │
	│  │    "message": "invocation completed"        │          │
	│  │  }                                           │          │
	│  │                                              │          │
	│  │  Console Format:                            │          │
	│  │  10:30AM INF invocation completed component=worker │   │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Usage

Initializing the logger, typically once in a binary's main:

	import "github.com/golemproject/golem/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

	log.Info("executor starting")

Component loggers carry a field through every subsequent call:

	workerLog := log.WithComponent("worker").With().
		Str("worker_id", id.String()).Logger()
	workerLog.Info().Msg("replay complete")
	workerLog.Error().Err(err).Msg("invocation failed")

Context helpers for the identifiers that show up across most of this
module's packages:

	podLog := log.WithPodID("executor-1")
	componentLog := log.WithComponentID("component-abc123")
	workerLog := log.WithWorkerID("invocation-def456")

# Integration points

  - pkg/worker: logs replay, invocation, and status-transition events
  - pkg/shardmanager: logs registration, rebalance, and health-probe events
  - pkg/scheduler: logs scheduled-invocation delivery
  - pkg/update: logs component update attempts and outcomes
  - pkg/api: logs each gRPC server's listen address

# Best practices

Do:
  - Use Info level for production
  - Use structured fields for queryable data
  - Create component-specific loggers
  - Log errors with .Err() for stack traces

Don't:
  - Log invocation payloads or secrets
  - Use Debug level in production
  - Concatenate strings into the message (use .Str, .Int)
*/
package log
