// Package errors provides structured error types for the kernel build
// orchestrator.
//
// Every failure that crosses a package boundary carries an ErrorCode so the
// CLI and the rendezvous server can classify it without string matching:
//
//   - ErrCodeConfiguration: invalid backend selection, conflicting duplicate
//     kernel registration under strict uniqueness, malformed config.
//   - ErrCodeCompile: the backend compiler rejected a source or property set.
//   - ErrCodeLookup: a kernel was requested that is unknown or not yet built.
//   - ErrCodeInvalidHandle: a compiled kernel handle was invalidated.
//   - ErrCodeAborted: another participant of the job aborted the build.
//
// None of these are recoverable at the orchestration layer; they propagate to
// process termination.
//
// Example usage:
//
//	err := errors.WrapWithContext(
//	    errors.ErrCodeCompile,
//	    "kernel build failed",
//	    cause,
//	    map[string]any{
//	        "request": spec.RequestName,
//	        "source":  spec.SourceFile,
//	    },
//	)
package errors
