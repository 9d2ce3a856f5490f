// Package util provides common utility functions and constants used across
// the sshscope application. This package is intentionally kept dependency-free
// (no imports from other internal/* packages) to serve as a shared foundation
// without introducing circular dependencies.
package util

import "time"

const (
	// ConnectGrace is the first tunnel liveness checkpoint: after spawning the
	// transport process, the session waits this long before checking whether
	// the process exited immediately (bad host, refused connection, auth
	// failure in batch mode). Chosen to cover TCP connect plus the SSH
	// banner exchange on a LAN.
	// Used by: internal/tunnel/session.go.
	ConnectGrace = 2 * time.Second

	// AckGrace is the second tunnel liveness checkpoint, applied after a
	// newline is written to the transport's stdin. PuTTY plink prompts for an
	// interactive acknowledgment even in forwarding mode; a transport that is
	// going to reject the session usually exits within this window.
	// Used by: internal/tunnel/session.go.
	AckGrace = 1 * time.Second

	// StopWait bounds the graceful-termination path on disconnect. If the
	// transport process has not exited this long after SIGTERM, it is killed.
	// Used by: internal/tunnel/session.go.
	StopWait = 3 * time.Second

	// DiagTimeout bounds one full diagnostic run (remote script execution plus
	// output capture). The remote script itself performs pings and curl calls
	// with their own short timeouts, so 60s is generous headroom rather than
	// an expected duration.
	// Used by: internal/diag/runner.go.
	DiagTimeout = 60 * time.Second

	// DefaultRefreshSeconds is the fallback interval for the TUI dashboard's
	// periodic status refresh, used when config.yaml carries an invalid or
	// missing refresh_seconds value.
	// Used by: internal/appconfig/config.go.
	DefaultRefreshSeconds = 3
)
