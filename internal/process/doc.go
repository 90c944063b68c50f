// Package process provides subprocess lifecycle management.
//
// Process wraps os/exec for single subprocess supervision:
//   - Graceful shutdown with SIGINT and configurable timeout
//   - Force kill with SIGKILL if graceful shutdown times out
//   - Output streaming with pluggable log parsing
//   - Exit notification via a done channel and exit code
//
// The subprocess runs in its own process group so signals sent to the
// supervising binary do not reach it directly.
package process
