// Package bridge runs the python-miio device library behind a single
// process-wide foreign-call lock.
//
// The library lives in a supervised Python host process (see
// internal/process). The host speaks newline-delimited JSON on its
// stdin/stdout: one request line, one response line. Byte strings cross the
// boundary as {"$bytes": "<base64>"} objects so pickled device handles
// survive unchanged.
//
// Every call follows the same path:
//
//	acquire lock -> resolve module -> send call -> decode result -> release lock
//
// Module resolution is idempotent and happens once per host process. The
// capability module comes from one of two ModuleSource implementations:
//
//   - PathSource: a directory prepended to sys.path, then a normal import
//   - EmbeddedSource: source text bundled in the binary, executed under a
//     synthetic module name
//
// Callers never see which one is active.
//
// Library exceptions surface as *CallError. Anything that breaks the
// boundary itself (host not starting, module missing, capability function
// absent, protocol corruption, host exit) wraps ErrBridge.
package bridge
