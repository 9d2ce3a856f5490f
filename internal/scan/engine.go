// Package scan drives a remote port-probe script over the SSH transport and
// turns its streamed stdout into typed findings.
//
// The engine does no network probing itself: it ships a bash script to the
// SSH host (see BuildScript) and classifies the script's line-oriented output
// as it arrives, so the consumer sees ports the moment they are discovered
// and cancellation takes effect mid-stream instead of after the full probe
// list has been worked through.
package scan

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/sshscope/sshscope/internal/events"
	"github.com/sshscope/sshscope/internal/locator"
	"github.com/sshscope/sshscope/internal/model"
	"github.com/sshscope/sshscope/internal/transport"
)

// Starter abstracts remote script execution for testing.
type Starter interface {
	StartScript(ctx context.Context, target model.ScanTarget, script string) (*transport.ScriptProcess, error)
}

// Engine launches scan runs. Each run owns its own process; the engine itself
// is stateless and safe for concurrent use, though by convention callers run
// one scan at a time.
type Engine struct {
	client Starter
	bus    *events.Bus
}

func NewEngine(client Starter, bus *events.Bus) *Engine {
	return &Engine{client: client, bus: bus}
}

// Outcome is the terminal result of a run, available once Done is closed.
type Outcome struct {
	State     model.ScanState `json:"state"`
	OpenPorts []int           `json:"open_ports"`
	Err       string          `json:"error,omitempty"`
}

// Run is one scan invocation. Findings are delivered on the Findings channel
// in exactly the order the remote script emitted them; the channel is closed
// when the run reaches a terminal state and Done is closed after the outcome
// is recorded. Runs are never reused; each Start returns a fresh one.
type Run struct {
	target   model.ScanTarget
	findings chan model.Finding
	done     chan struct{}
	cancel   context.CancelFunc

	mu        sync.Mutex
	state     model.ScanState
	openPorts []int
	errMsg    string
	cancelled bool
}

// Start validates the target, launches the probe script, and begins streaming
// consumption in the background. A spawn failure is returned immediately and
// no Run is created; read failures after a successful launch surface through
// the run's Errored outcome instead.
func (e *Engine) Start(ctx context.Context, target model.ScanTarget) (*Run, error) {
	if e.client == nil {
		return nil, locator.ErrTransportNotFound
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}

	cctx, cancel := context.WithCancel(ctx)
	proc, err := e.client.StartScript(cctx, target, BuildScript(target.RemoteHost))
	if err != nil {
		cancel()
		e.bus.Publish(events.LevelError, "scan", "failed to start scan: "+err.Error())
		return nil, fmt.Errorf("start scan: %w", err)
	}

	r := &Run{
		target:   target,
		findings: make(chan model.Finding, 16),
		done:     make(chan struct{}),
		cancel:   cancel,
		state:    model.ScanRunning,
	}
	e.bus.Publish(events.LevelInfo, "scan", "scanning "+target.RemoteHost+" via "+target.SSHHost)

	stderrCh := make(chan string, 1)
	go func() {
		b, _ := io.ReadAll(proc.Stderr)
		stderrCh <- strings.TrimSpace(string(b))
	}()
	go e.consume(cctx, r, proc, stderrCh)
	return r, nil
}

// consume reads stdout line by line, classifies, and delivers. It owns the
// run's terminal transition.
func (e *Engine) consume(ctx context.Context, r *Run, proc *transport.ScriptProcess, stderrCh <-chan string) {
	sc := bufio.NewScanner(proc.Stdout)
loop:
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		f := ParseLine(line)
		if f.Kind == model.FindingPortOpen {
			r.mu.Lock()
			r.openPorts = append(r.openPorts, f.Port)
			r.mu.Unlock()
		}
		select {
		case r.findings <- f:
		case <-ctx.Done():
			break loop
		}
	}
	scanErr := sc.Err()
	// Wait closes the process pipes; the stderr drain must finish first or a
	// late-exiting process can have its tail truncated.
	stderrTail := <-stderrCh
	waitErr := proc.Cmd.Wait()

	r.mu.Lock()
	switch {
	case r.cancelled || ctx.Err() != nil:
		r.state = model.ScanCancelled
	case scanErr != nil:
		r.state = model.ScanErrored
		r.errMsg = "read scan output: " + scanErr.Error()
	case waitErr != nil:
		r.state = model.ScanErrored
		if stderrTail != "" {
			r.errMsg = "scan failed: " + stderrTail
		} else {
			r.errMsg = "scan failed: " + waitErr.Error()
		}
	default:
		r.state = model.ScanCompleted
	}
	state := r.state
	errMsg := r.errMsg
	ports := append([]int(nil), r.openPorts...)
	r.mu.Unlock()

	close(r.findings)
	close(r.done)

	switch state {
	case model.ScanCompleted:
		e.bus.Publish(events.LevelSuccess, "scan", fmt.Sprintf("scan completed: %d open ports %v", len(ports), ports))
	case model.ScanCancelled:
		e.bus.Publish(events.LevelWarning, "scan", "scan cancelled")
	default:
		e.bus.Publish(events.LevelError, "scan", errMsg)
	}
}

// Findings returns the stream of classified findings, closed at run end.
func (r *Run) Findings() <-chan model.Finding { return r.findings }

// Done is closed once the run has reached a terminal state.
func (r *Run) Done() <-chan struct{} { return r.done }

// Target returns the immutable target of this run.
func (r *Run) Target() model.ScanTarget { return r.target }

// Cancel stops consuming and terminates the remote process. Cooperative: the
// remote script is killed, not guaranteed to halt instantly, and findings
// already delivered remain valid.
func (r *Run) Cancel() {
	r.mu.Lock()
	if r.state == model.ScanRunning {
		r.cancelled = true
	}
	r.mu.Unlock()
	r.cancel()
}

// Outcome returns the terminal outcome. Valid after Done is closed; before
// that it reports the running state with the ports discovered so far.
func (r *Run) Outcome() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Outcome{
		State:     r.state,
		OpenPorts: append([]int(nil), r.openPorts...),
		Err:       r.errMsg,
	}
}
