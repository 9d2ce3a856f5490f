// Package tunnel tests exercise the session lifecycle: the two-checkpoint
// connect handshake, failure reporting with captured stderr, and the
// graceful-then-forced disconnect path.
//
// These tests use a fakeStarter implementation of the Starter interface to
// simulate transport processes without launching a real SSH client. The fake
// starts "sleep 30" as a stand-in for a healthy forwarding process, or a short
// shell command that writes to stderr and exits to simulate authentication
// failures. Grace periods are shortened on every session so the handshake
// completes in tens of milliseconds instead of seconds.
//
// All tests isolate their config paths with t.Setenv("XDG_CONFIG_HOME", ...)
// so the event journal never touches the user's real ~/.config/sshscope/.
package tunnel

import (
	"context"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sshscope/sshscope/internal/events"
	"github.com/sshscope/sshscope/internal/model"
	"github.com/sshscope/sshscope/internal/transport"
)

// fakeStarter is a test double for the transport layer. mode selects the
// simulated process:
//
//   - "ok":    "sleep 30", a long-lived process that survives both handshake
//     checkpoints and can be signalled like a real forwarding process.
//   - "spawn": StartTunnel itself fails, as when the binary is missing.
//   - "exit":  a process that prints to stderr and exits immediately,
//     as when authentication is refused.
type fakeStarter struct {
	mode    string
	started bool
}

func (f *fakeStarter) StartTunnel(ctx context.Context, cfg model.TunnelConfig) (*transport.TunnelProcess, error) {
	f.started = true
	if f.mode == "spawn" {
		return nil, exec.ErrNotFound
	}

	var cmd *exec.Cmd
	if f.mode == "exit" {
		cmd = exec.CommandContext(ctx, "sh", "-c", `echo "Permission denied (publickey)" >&2; exit 255`)
	} else {
		cmd = exec.CommandContext(ctx, "sleep", "30")
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &transport.TunnelProcess{Cmd: cmd, Stdin: stdin, Stderr: stderr}, nil
}

func testConfig() model.TunnelConfig {
	return model.TunnelConfig{
		SSHHost:    "10.0.0.1",
		SSHUser:    "root",
		RemoteHost: "192.168.1.111",
		RemotePort: 80,
		LocalPort:  8080,
	}
}

// newTestSession shortens the handshake and teardown windows so the lifecycle
// tests run in well under a second.
func newTestSession(starter Starter) *Session {
	s := NewSession(starter, nil)
	s.ConnectGrace = 50 * time.Millisecond
	s.AckGrace = 20 * time.Millisecond
	s.StopWait = 500 * time.Millisecond
	return s
}

// TestSessionConnectDisconnect verifies the full happy-path lifecycle:
// disconnected -> connecting -> connected on Connect, and back to
// disconnected after Disconnect terminates the process.
func TestSessionConnectDisconnect(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	s := newTestSession(&fakeStarter{mode: "ok"})
	if s.State() != model.TunnelDisconnected {
		t.Fatalf("expected disconnected, got %s", s.State())
	}

	if err := s.Connect(context.Background(), testConfig()); err != nil {
		t.Fatal(err)
	}
	if s.State() != model.TunnelConnected {
		t.Fatalf("expected connected, got %s", s.State())
	}

	if err := s.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if s.State() != model.TunnelDisconnected {
		t.Fatalf("expected disconnected, got %s", s.State())
	}
	if s.LastError() != "" {
		t.Fatalf("expected clean disconnect, got %q", s.LastError())
	}
}

// TestSessionConnectGuard verifies that a second Connect on an active session
// is refused outright instead of spawning a second process.
func TestSessionConnectGuard(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	s := newTestSession(&fakeStarter{mode: "ok"})
	if err := s.Connect(context.Background(), testConfig()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Disconnect() }()

	if err := s.Connect(context.Background(), testConfig()); err != ErrAlreadyConnected {
		t.Fatalf("expected ErrAlreadyConnected, got %v", err)
	}
	if s.State() != model.TunnelConnected {
		t.Fatalf("guard must not disturb the active session, got %s", s.State())
	}
}

// TestSessionPrematureExit verifies checkpoint one: a transport that exits
// during the connect grace period fails the attempt and the session reports
// what the process said on stderr (or a generic message when none was
// captured in time).
func TestSessionPrematureExit(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	s := newTestSession(&fakeStarter{mode: "exit"})
	err := s.Connect(context.Background(), testConfig())
	if err == nil {
		t.Fatal("expected connect to fail")
	}
	if s.State() != model.TunnelFailed {
		t.Fatalf("expected failed, got %s", s.State())
	}
	if s.LastError() == "" {
		t.Fatal("expected a recorded failure message")
	}
}

// TestSessionSpawnFailure verifies that a transport that cannot even be
// started produces a failed state with a descriptive message and no process.
func TestSessionSpawnFailure(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	s := newTestSession(&fakeStarter{mode: "spawn"})
	err := s.Connect(context.Background(), testConfig())
	if err == nil {
		t.Fatal("expected connect to fail")
	}
	if !strings.Contains(err.Error(), "failed to start transport") {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State() != model.TunnelFailed {
		t.Fatalf("expected failed, got %s", s.State())
	}

	// A failed attempt must be retryable; with the fake healthy again the
	// same session connects cleanly.
	s.client = &fakeStarter{mode: "ok"}
	if err := s.Connect(context.Background(), testConfig()); err != nil {
		t.Fatal(err)
	}
	defer func() { _ = s.Disconnect() }()
	if s.State() != model.TunnelConnected {
		t.Fatalf("expected connected after retry, got %s", s.State())
	}
}

// TestSessionMissingKey verifies the pre-spawn guard: a key path that does not
// exist fails validation before any process is created.
func TestSessionMissingKey(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	fake := &fakeStarter{mode: "ok"}
	s := newTestSession(fake)

	cfg := testConfig()
	cfg.KeyPath = filepath.Join(t.TempDir(), "no-such-key")
	err := s.Connect(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "ssh key not found") {
		t.Fatalf("expected key error, got %v", err)
	}
	if fake.started {
		t.Fatal("no process may be spawned when the key is missing")
	}
	if s.State() != model.TunnelFailed {
		t.Fatalf("expected failed, got %s", s.State())
	}
}

// TestSessionNilClient verifies that a session constructed without a transport
// (none was found on the system) fails every connect with the
// transport-not-found message instead of panicking.
func TestSessionNilClient(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	s := newTestSession(nil)
	err := s.Connect(context.Background(), testConfig())
	if err == nil || !strings.Contains(err.Error(), "transport binary not found") {
		t.Fatalf("expected transport-not-found, got %v", err)
	}
	if s.State() != model.TunnelFailed {
		t.Fatalf("expected failed, got %s", s.State())
	}
}

// TestSessionInvalidConfig verifies that config validation failures are
// reported as a failed state without spawning anything.
func TestSessionInvalidConfig(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	fake := &fakeStarter{mode: "ok"}
	s := newTestSession(fake)

	cfg := testConfig()
	cfg.LocalPort = 0
	if err := s.Connect(context.Background(), cfg); err == nil {
		t.Fatal("expected validation error")
	}
	if fake.started {
		t.Fatal("no process may be spawned for an invalid config")
	}
}

// TestSessionUnexpectedExit verifies the watch path: a process that dies after
// the session is connected moves the state to failed with a message, without
// any call to Disconnect.
func TestSessionUnexpectedExit(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	s := newTestSession(&fakeStarter{mode: "ok"})
	if err := s.Connect(context.Background(), testConfig()); err != nil {
		t.Fatal(err)
	}

	// Kill the process behind the session's back and wait for the watcher
	// to observe the exit.
	s.mu.Lock()
	proc := s.proc
	s.mu.Unlock()
	_ = proc.Cmd.Process.Kill()

	deadline := time.After(2 * time.Second)
	for s.State() != model.TunnelFailed {
		select {
		case <-deadline:
			t.Fatalf("watcher never recorded the exit, state %s", s.State())
		case <-time.After(10 * time.Millisecond):
		}
	}
	if s.LastError() == "" {
		t.Fatal("expected a failure message from the watcher")
	}

	// Disconnect after an unexpected exit just normalizes the state.
	if err := s.Disconnect(); err != nil {
		t.Fatal(err)
	}
	if s.State() != model.TunnelDisconnected {
		t.Fatalf("expected disconnected, got %s", s.State())
	}
}

// TestSessionPublishesEvents verifies that the lifecycle is observable on the
// event bus: a connect and disconnect produce at least the starting, open,
// and closed events in order.
func TestSessionPublishesEvents(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	bus := events.NewBus()
	sub := bus.Subscribe()

	s := newTestSession(&fakeStarter{mode: "ok"})
	s.bus = bus
	if err := s.Connect(context.Background(), testConfig()); err != nil {
		t.Fatal(err)
	}
	if err := s.Disconnect(); err != nil {
		t.Fatal(err)
	}

	var msgs []string
	for len(msgs) < 3 {
		select {
		case evt := <-sub:
			msgs = append(msgs, evt.Message)
		case <-time.After(time.Second):
			t.Fatalf("expected 3 events, got %v", msgs)
		}
	}
	if !strings.Contains(msgs[0], "starting tunnel") ||
		!strings.Contains(msgs[1], "tunnel open") ||
		!strings.Contains(msgs[2], "tunnel closed") {
		t.Fatalf("unexpected event sequence: %v", msgs)
	}
}
