// Package logging provides structured logging utilities for jitbuild.
//
// # Overview
//
// This package wraps the standard library slog package with jitbuild
// defaults so every rank of a distributed build logs in the same shape. It
// supports environment-based log level configuration, module/version context
// injection, rank attributes, and source location tracking for debug logs.
//
// # Log Levels
//
// Supported log levels (case-insensitive):
//   - DEBUG: Detailed diagnostic information with source location
//   - INFO: General informational messages (default)
//   - WARN/WARNING: Warning messages for potentially problematic situations
//   - ERROR: Error messages for failures requiring attention
//
// # Usage
//
//	func main() {
//	    logging.SetDefaultStructuredLogger("jitbuild", version)
//	    slog.Info("loading kernels", "count", n)
//	}
//
// Attaching rank information once the communicator is known:
//
//	slog.SetDefault(logging.WithRank(slog.Default(), world.Rank(), local.Rank(), world.Size()))
//
// # Environment Configuration
//
// The LOG_LEVEL environment variable controls logging verbosity:
//
//	LOG_LEVEL=debug jitbuild build --manifest kernels.yaml
//
// If LOG_LEVEL is not set, defaults to INFO level.
//
// # Output Format
//
// All logs are written to stderr in JSON format:
//
//	{
//	    "time": "2025-01-15T10:30:00.123Z",
//	    "level": "INFO",
//	    "msg": "loading kernels done",
//	    "module": "jitbuild",
//	    "version": "v1.0.0",
//	    "rank": 0
//	}
package logging
