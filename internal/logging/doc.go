// Package logging provides structured logging for shepherd.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation, so every line emitted while inferring state for a
// migration or evaluating a policy can be filtered by migration, step, or
// pull request afterwards.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/var/log/shepherd", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	logger.Info("state computed", "state", "pending", "current_step", 4)
//
// # Context Propagation
//
//	migLogger := logger.WithMigration("add-tests").WithStep(3)
//	migLogger.Warn("pull request has no step reference", "pr", 42)
//
// Output:
//
//	{"time":"...","level":"WARN","msg":"pull request has no step reference","migration_id":"add-tests","step":3,"pr":42}
//
// # Thread Safety
//
// [Logger] is safe for concurrent use. Child loggers created via With*
// methods share the underlying handler.
//
// # Testing
//
// Use [NopLogger] to discard output, or [NewWriterLogger] with a buffer to
// assert on emitted lines.
package logging
