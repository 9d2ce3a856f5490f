// Package diag runs a fixed multi-step remote diagnostic script and
// classifies its full output post hoc. Unlike internal/scan it is a one-shot
// blocking operation bounded only by an overall timeout. There is no
// mid-flight cancellation and no streaming.
package diag

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sshscope/sshscope/internal/events"
	"github.com/sshscope/sshscope/internal/locator"
	"github.com/sshscope/sshscope/internal/model"
	"github.com/sshscope/sshscope/internal/util"
)

// Category tags one output line of a diagnostic run.
type Category string

const (
	CategorySuccess Category = "success"
	CategoryFailure Category = "failure"
	CategorySection Category = "section"
	CategoryPlain   Category = "plain"
)

// Line is one classified line of diagnostic output.
type Line struct {
	Category Category `json:"category"`
	Text     string   `json:"text"`
}

type State string

const (
	StateCompleted State = "completed"
	StateErrored   State = "errored"
)

// Report is the result of one diagnostic run. On timeout or launch failure
// State is errored and Err carries the message; Lines holds whatever output
// was captured before the failure.
type Report struct {
	Target model.ScanTarget `json:"target"`
	State  State            `json:"state"`
	Lines  []Line           `json:"lines,omitempty"`
	Err    string           `json:"error,omitempty"`
}

// ScriptRunner abstracts blocking remote script execution for testing.
type ScriptRunner interface {
	RunScript(ctx context.Context, target model.ScanTarget, script string) (string, error)
}

// Runner executes diagnostic runs over the SSH transport.
type Runner struct {
	client ScriptRunner
	bus    *events.Bus
}

func NewRunner(client ScriptRunner, bus *events.Bus) *Runner {
	return &Runner{client: client, bus: bus}
}

// BuildScript renders the fixed 4-step diagnostic script for the target:
// reachability ping, a single port-80 TCP check, an HTTP header fetch, and a
// neighbor/ARP table lookup. Step markers and `===` section lines are part of
// the output contract consumed by Classify.
func BuildScript(targetHost string) string {
	return fmt.Sprintf(`
echo "=== DIAGNOSTICS ==="
echo ""
echo "[1] Ping %[1]s:"
ping -c 2 -W 2 %[1]s >/dev/null 2>&1 && echo "PING: OK" || echo "PING: FAIL"
echo ""
echo "[2] Port 80 check:"
(echo > /dev/tcp/%[1]s/80) 2>/dev/null && echo "Port 80: OPEN" || echo "Port 80: closed"
echo ""
echo "[3] HTTP headers:"
curl -sI --connect-timeout 5 http://%[1]s/ 2>/dev/null | head -10 || echo "HTTP: no response"
echo ""
echo "[4] Neighbor entry:"
ip neigh show 2>/dev/null | grep -i "%[1]s" || arp -a 2>/dev/null | grep -i "%[1]s" || echo "Neighbor: not found"
echo ""
echo "=== DONE ==="
`, targetHost)
}

// Run executes the diagnostic script and classifies its output. Blocking;
// bounded by util.DiagTimeout. Never hangs past the bound and never panics;
// timeouts and launch failures come back as an Errored report.
func (r *Runner) Run(ctx context.Context, target model.ScanTarget) Report {
	report := Report{Target: target, State: StateCompleted}

	if r.client == nil {
		return r.errored(report, locator.ErrTransportNotFound.Error())
	}
	if err := target.Validate(); err != nil {
		return r.errored(report, err.Error())
	}

	r.bus.Publish(events.LevelInfo, "diag", "running diagnostics for "+target.RemoteHost)
	tctx, cancel := context.WithTimeout(ctx, util.DiagTimeout)
	defer cancel()

	out, err := r.client.RunScript(tctx, target, BuildScript(target.RemoteHost))
	report.Lines = ClassifyOutput(out)
	if err != nil {
		return r.errored(report, err.Error())
	}

	r.bus.Publish(events.LevelSuccess, "diag", "diagnostics completed for "+target.RemoteHost)
	return report
}

func (r *Runner) errored(report Report, msg string) Report {
	report.State = StateErrored
	report.Err = msg
	r.bus.Publish(events.LevelError, "diag", msg)
	return report
}

var stepMarker = regexp.MustCompile(`^\[\d+\]`)

// ClassifyOutput splits captured output into non-empty lines and classifies
// each with Classify.
func ClassifyOutput(out string) []Line {
	var lines []Line
	for _, raw := range strings.Split(out, "\n") {
		text := strings.TrimSpace(raw)
		if text == "" {
			continue
		}
		lines = append(lines, Line{Category: Classify(text), Text: text})
	}
	return lines
}

// Classify tags one diagnostic output line by keyword. Section markers are
// checked first so a step header never matches the success/failure keywords
// of its body.
func Classify(line string) Category {
	switch {
	case strings.Contains(line, "===") || stepMarker.MatchString(line):
		return CategorySection
	case strings.Contains(line, "FAIL") || strings.Contains(line, "closed") || strings.Contains(line, "no response") || strings.Contains(line, "not found"):
		return CategoryFailure
	case strings.Contains(line, "OK") || strings.Contains(line, "OPEN"):
		return CategorySuccess
	default:
		return CategoryPlain
	}
}
