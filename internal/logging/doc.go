// Package logging provides structured logging for atkrun batch runs.
//
// This package wraps Go's log/slog to provide JSON-formatted logs with
// context propagation. Every entry written while a batch runs carries the
// run ID, and entries written for a single command also carry its 1-based
// index and verb, so a run can be reconstructed from the log afterwards.
//
// # Features
//
//   - JSON-formatted structured logging via slog
//   - Configurable log levels (DEBUG, INFO, WARN, ERROR)
//   - Context propagation (run ID, bridge target, command index and verb)
//   - Log rotation with configurable size limits
//   - Optional gzip compression for rotated logs
//   - Aggregation and filtering across the live file and its backups
//   - Export to JSON, text, or CSV formats
//
// # Thread Safety
//
// All types in this package are safe for concurrent use. Child loggers
// created via With* methods share the underlying writer.
//
// # Basic Usage
//
//	logger, err := logging.NewLogger("/path/to/logs", "INFO")
//	if err != nil {
//	    return err
//	}
//	defer logger.Close()
//
//	runLog := logger.WithRun(runID).WithTarget(baseURL, host, port)
//	runLog.Info("session opened")
//	runLog.WithCommand(1, "New").Debug("sending command", "wait_ms", 60)
//
// Pass an empty directory to log to stderr, or use [NewWriterLogger] to log
// to any io.Writer. Components accept a nil *Logger and substitute
// [NopLogger] via [OrNop].
//
// # Log Rotation
//
//	logger, err := logging.NewLoggerWithRotation(dir, "DEBUG", logging.RotationConfig{
//	    MaxSizeMB:  10,
//	    MaxBackups: 3,
//	    Compress:   true,
//	})
//
// Rotated files are named atkrun.log.1 (newest) through atkrun.log.N, with a
// .gz suffix when compression is on.
//
// # Reading Logs Back
//
//	entries, err := logging.AggregateLogs(dir)
//	failed := logging.FilterLogs(entries, logging.LogFilter{RunID: id, Level: "WARN"})
//	err = logging.ExportLogEntries(os.Stdout, failed, "text")
package logging
