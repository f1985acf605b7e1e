/*
Package log provides structured logging for the backup-lifecycle engine
using zerolog.

The package wraps zerolog to give JSON-structured logging with
component-specific and invocation-specific child loggers, configurable
log levels, and helper functions for common logging patterns.

# Usage

Initializing the logger:

	import "github.com/cuemby/custodian/pkg/log"

	log.Init(log.Config{
		Level:      log.InfoLevel,
		JSONOutput: true,
		Output:     os.Stdout,
	})

Simple logging:

	log.Info("catalog rebuilt")
	log.Warn("backup missing backup.info, skipping")
	log.Error("failed to delete object")

Context loggers:

	runLog := log.WithRunID(log.NewRunID())
	serverLog := runLog.With().Str("server", "mydb").Logger()
	serverLog.Info().Str("backup_id", id).Msg("deleting backup")

	// Or compose the provided helpers directly:
	l := log.WithServer("mydb")
	l = l.With().Str("run_id", log.NewRunID()).Logger()

backup-delete generates one run id per invocation via NewRunID and
attaches it through WithRunID to the log lines it writes itself; log
lines from the engine packages use the package-level Logger and carry
no run id.

# Log Levels

Debug, Info, Warn, Error, Fatal — Fatal logs and calls os.Exit(1), so it
is reserved for startup failures the process cannot recover from (a
malformed config profile, an unreachable object store at boot).

# Security

Never log object store credentials or the contents of annotation files.
Backup IDs, server names and object keys (the deletion executor and the
WAL-cleanup planner log WAL prefixes) are safe to log; file contents are
not.
*/
package log
