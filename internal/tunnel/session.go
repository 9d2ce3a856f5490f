// Package tunnel manages the lifecycle of one local-forward SSH transport
// process: connect with a two-checkpoint liveness handshake, watch for
// unexpected exit, and graceful-then-forced teardown.
package tunnel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sshscope/sshscope/internal/events"
	"github.com/sshscope/sshscope/internal/locator"
	"github.com/sshscope/sshscope/internal/model"
	"github.com/sshscope/sshscope/internal/transport"
	"github.com/sshscope/sshscope/internal/util"
)

// ErrAlreadyConnected is returned when Connect is called on a session that is
// already connecting or connected. The caller must Disconnect first; a second
// process is never spawned.
var ErrAlreadyConnected = errors.New("tunnel already active; disconnect first")

// Starter abstracts transport process creation for testing.
type Starter interface {
	StartTunnel(ctx context.Context, cfg model.TunnelConfig) (*transport.TunnelProcess, error)
}

// Session owns exactly one forwarding process at a time. States move
// disconnected -> connecting -> connected/failed -> disconnected; a failed
// attempt can be retried with a fresh Connect, which starts from scratch.
//
// Connect performs blocking waits and is meant to be called off the
// controlling goroutine (the CLI calls it directly, the TUI from a tea.Cmd).
// All other methods are cheap and safe to call from anywhere.
type Session struct {
	// Grace periods for the liveness handshake and teardown. Defaults come
	// from internal/util; tests shorten them.
	ConnectGrace time.Duration
	AckGrace     time.Duration
	StopWait     time.Duration

	client Starter
	bus    *events.Bus

	mu       sync.Mutex
	state    model.TunnelState
	lastErr  string
	cfg      model.TunnelConfig
	proc     *transport.TunnelProcess
	cancel   context.CancelFunc
	done     chan struct{}
	stderr   *tailBuffer
	stopping bool
}

// NewSession creates a session backed by the given transport starter. A nil
// starter models "transport not found": every Connect fails before spawning.
func NewSession(client Starter, bus *events.Bus) *Session {
	return &Session{
		ConnectGrace: util.ConnectGrace,
		AckGrace:     util.AckGrace,
		StopWait:     util.StopWait,
		client:       client,
		bus:          bus,
		state:        model.TunnelDisconnected,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() model.TunnelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the message recorded by the most recent failure.
func (s *Session) LastError() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Config returns the config of the current or most recent connect attempt.
func (s *Session) Config() model.TunnelConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Connect validates cfg, spawns the forwarding process, and confirms liveness
// at two checkpoints before declaring the tunnel connected.
//
// The handshake: wait ConnectGrace; if the process already exited, fail with
// its captured stderr. Otherwise write a single newline to its stdin (PuTTY
// plink expects an interactive acknowledgment even in forwarding mode) and
// wait AckGrace; if the process survived both waits the session is connected.
//
// Every guard violation and spawn failure is converted to a Failed transition
// with a descriptive message. Connect never panics and never leaves a
// process behind on the failure paths.
func (s *Session) Connect(ctx context.Context, cfg model.TunnelConfig) error {
	s.mu.Lock()
	if s.state == model.TunnelConnected || s.state == model.TunnelConnecting {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.state = model.TunnelConnecting
	s.lastErr = ""
	s.cfg = cfg
	s.stopping = false
	s.mu.Unlock()
	s.bus.Publish(events.LevelInfo, "tunnel", "starting tunnel "+cfg.ForwardString())

	if s.client == nil {
		return s.fail(locator.ErrTransportNotFound.Error())
	}
	if err := cfg.Validate(); err != nil {
		return s.fail(err.Error())
	}
	if cfg.KeyPath != "" {
		if _, err := os.Stat(cfg.KeyPath); err != nil {
			return s.fail(fmt.Sprintf("ssh key not found: %s", cfg.KeyPath))
		}
	}

	cctx, cancel := context.WithCancel(context.Background())
	proc, err := s.client.StartTunnel(cctx, cfg)
	if err != nil {
		cancel()
		return s.fail("failed to start transport: " + err.Error())
	}

	stderr := newTailBuffer(20)
	go stderr.consume(proc.Stderr)
	exited := make(chan error, 1)
	go func() { exited <- proc.Cmd.Wait() }()
	done := make(chan struct{})

	s.mu.Lock()
	s.proc = proc
	s.cancel = cancel
	s.done = done
	s.stderr = stderr
	s.mu.Unlock()

	// Checkpoint one: transports that cannot connect or authenticate in this
	// environment exit quickly.
	if err := s.checkpoint(ctx, exited, s.ConnectGrace); err != nil {
		return err
	}

	// A transport with closed stdin returns a write error here; that is not
	// a failure signal, checkpoint two is.
	_, _ = io.WriteString(proc.Stdin, "\n")

	if err := s.checkpoint(ctx, exited, s.AckGrace); err != nil {
		return err
	}

	s.mu.Lock()
	s.state = model.TunnelConnected
	s.mu.Unlock()
	s.bus.Publish(events.LevelSuccess, "tunnel", "tunnel open: "+cfg.ForwardString())

	go s.watch(exited, done)
	return nil
}

// checkpoint waits grace and fails the attempt if the process exits first.
func (s *Session) checkpoint(ctx context.Context, exited <-chan error, grace time.Duration) error {
	t := time.NewTimer(grace)
	defer t.Stop()
	select {
	case <-exited:
		s.closeDone()
		return s.fail(s.exitMessage())
	case <-ctx.Done():
		s.mu.Lock()
		s.stopping = true
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		<-exited
		s.closeDone()
		return s.fail("connect aborted: " + ctx.Err().Error())
	case <-t.C:
		return nil
	}
}

// watch observes the process after the session is connected. An exit that was
// not requested by Disconnect transitions the session to Failed with the
// captured stderr.
func (s *Session) watch(exited <-chan error, done chan struct{}) {
	err := <-exited
	close(done)

	s.mu.Lock()
	if s.stopping || s.state != model.TunnelConnected {
		s.mu.Unlock()
		return
	}
	msg := "tunnel process exited unexpectedly"
	if tail := s.stderr.String(); tail != "" {
		msg += ": " + tail
	} else if err != nil {
		msg += ": " + err.Error()
	}
	s.state = model.TunnelFailed
	s.lastErr = msg
	s.proc = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.bus.Publish(events.LevelError, "tunnel", msg)
}

// Disconnect requests graceful termination, waits StopWait, and kills the
// process if it is still alive. Both paths converge: the handle is released
// and the session lands in Disconnected. Idempotent: calling it on an
// already disconnected or failed session just normalizes the state.
func (s *Session) Disconnect() error {
	s.mu.Lock()
	proc := s.proc
	done := s.done
	cancel := s.cancel
	s.stopping = true
	s.proc = nil
	s.cancel = nil
	if proc == nil {
		s.state = model.TunnelDisconnected
		s.lastErr = ""
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	_ = proc.Cmd.Process.Signal(syscall.SIGTERM)
	t := time.NewTimer(s.StopWait)
	defer t.Stop()
	select {
	case <-done:
	case <-t.C:
		if cancel != nil {
			cancel()
		}
		<-done
	}
	if cancel != nil {
		cancel()
	}

	s.mu.Lock()
	s.state = model.TunnelDisconnected
	s.lastErr = ""
	s.mu.Unlock()
	s.bus.Publish(events.LevelWarning, "tunnel", "tunnel closed")
	return nil
}

func (s *Session) fail(msg string) error {
	s.mu.Lock()
	s.state = model.TunnelFailed
	s.lastErr = msg
	s.proc = nil
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.mu.Unlock()
	s.bus.Publish(events.LevelError, "tunnel", msg)
	return errors.New(msg)
}

func (s *Session) exitMessage() string {
	s.mu.Lock()
	stderr := s.stderr
	s.mu.Unlock()
	if stderr != nil {
		if tail := stderr.String(); tail != "" {
			return tail
		}
	}
	return "transport exited before the session was confirmed"
}

func (s *Session) closeDone() {
	s.mu.Lock()
	done := s.done
	s.done = nil
	s.mu.Unlock()
	if done != nil {
		close(done)
	}
}

// tailBuffer keeps the last max lines written to it. The transport's stderr
// is drained through one of these so a premature exit can report what the
// SSH client actually said.
type tailBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) consume(r io.Reader) {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		t.mu.Lock()
		t.lines = append(t.lines, line)
		if len(t.lines) > t.max {
			t.lines = t.lines[len(t.lines)-t.max:]
		}
		t.mu.Unlock()
	}
}

func (t *tailBuffer) String() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "; ")
}
