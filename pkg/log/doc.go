/*
Package log provides structured logging for firestash using zerolog.

The log package wraps the zerolog library to provide JSON-structured logging with
context-specific loggers, configurable log levels, and helper functions for
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
	│  │         Context Loggers                     │          │
	│  │  - WithComponent("engine")                  │          │
	│  │  - WithDatabase(projectID, databaseID)      │          │
	│  │  - WithTransaction(token)                   │          │
	│  │  - WithTarget(targetID)                     │          │
	│  └────────────────────────────────────────────┘           │
	└────────────────────────────────────────────────────────┘

# Core Components

Global Logger:
  - Package-level zerolog.Logger instance, initialized once via log.Init()
  - Accessible from all firestash packages, thread-safe concurrent writes

Log Levels:
  - Debug: detailed debugging information
  - Info: general informational messages
  - Warn: potential issues
  - Error: operation failures
  - Fatal: unrecoverable errors, process exits

Context Loggers:
  - WithComponent: tag all logs with a component name ("engine", "listen")
  - WithDatabase: tag logs with project_id/database_id
  - WithTransaction: tag logs with a transaction token
  - WithTarget: tag logs with a listen-target id

# Usage

	import "github.com/cuemby/firestash/pkg/log"

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true, Output: os.Stdout})
	log.Info("engine started")

	txnLog := log.WithTransaction(string(tok))
	txnLog.Info().Msg("transaction committed")

	dbLog := log.WithDatabase("my-project", "(default)")
	dbLog.Error().Err(err).Msg("commit failed")

# Best Practices

Do:
  - Use Info level for production, structured fields for queryable data
  - Create a context logger per transaction/target rather than repeating fields
  - Log errors with .Err() for stack traces

Don't:
  - Log document field contents (may contain user data)
  - Use Debug level in production
  - Concatenate strings where a typed field would do
*/
package log
