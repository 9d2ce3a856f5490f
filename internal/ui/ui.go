// Package ui is the terminal dashboard: a thin consumer of the tunnel, scan,
// and diag cores. It renders state and findings and dispatches operations off
// the update loop; all lifecycle logic lives in the core packages.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sshscope/sshscope/internal/appconfig"
	"github.com/sshscope/sshscope/internal/browser"
	"github.com/sshscope/sshscope/internal/diag"
	"github.com/sshscope/sshscope/internal/events"
	"github.com/sshscope/sshscope/internal/history"
	"github.com/sshscope/sshscope/internal/locator"
	"github.com/sshscope/sshscope/internal/model"
	"github.com/sshscope/sshscope/internal/scan"
	"github.com/sshscope/sshscope/internal/transport"
	"github.com/sshscope/sshscope/internal/tunnel"
)

const maxLogLines = 200

type logLine struct {
	level events.Level
	text  string
}

type (
	connectResultMsg struct{ err error }
	disconnectedMsg  struct{}
	scanOverMsg      struct{ outcome scan.Outcome }
	findingMsg       struct{ finding model.Finding }
	diagDoneMsg      struct{ report diag.Report }
	refreshMsg       time.Time
)

type eventMsg struct {
	evt events.Event
	ok  bool
}

type modelUI struct {
	form    *connForm
	bus     *events.Bus
	eventCh <-chan events.Event

	binPath string
	sess    *tunnel.Session
	engine  *scan.Engine
	runner  *diag.Runner
	run     *scan.Run

	spin         spinner.Model
	refreshEvery time.Duration
	busy         string // "", "connecting", "scanning", "diagnosing"
	log          []logLine
	status       string
	width        int
}

func initialModel() modelUI {
	cfg, err := appconfig.Load()
	if err != nil || cfg.UI.RefreshSeconds <= 0 {
		cfg = appconfig.Default()
	}
	lastTarget := ""
	if recent, err := history.Recent(); err == nil && len(recent) > 0 {
		lastTarget = recent[0]
	}

	bus := events.NewBus()
	m := modelUI{
		form:         newConnForm(cfg.Defaults, lastTarget),
		bus:          bus,
		eventCh:      bus.Subscribe(),
		spin:         spinner.New(spinner.WithSpinner(spinner.Dot)),
		refreshEvery: time.Duration(cfg.UI.RefreshSeconds) * time.Second,
		status:       "Ready. Tab moves between fields; ctrl+t opens the tunnel.",
	}
	m.locateTransport()
	return m
}

// locateTransport (re)discovers the SSH binary and rebuilds the cores. With
// no transport the session still exists; every operation fails with the
// transport-not-found message until ctrl+r finds one.
func (m *modelUI) locateTransport() {
	var client *transport.Client
	if path, ok := locator.Default().Locate(); ok {
		m.binPath = path
		client = transport.New(path)
	} else {
		m.binPath = ""
	}
	m.sess = tunnel.NewSession(starterOrNil(client), m.bus)
	m.engine = scan.NewEngine(scriptStarterOrNil(client), m.bus)
	m.runner = diag.NewRunner(runnerOrNil(client), m.bus)
}

// Typed nils must not hide behind non-nil interfaces, so each conversion is
// explicit.
func starterOrNil(c *transport.Client) tunnel.Starter {
	if c == nil {
		return nil
	}
	return c
}

func scriptStarterOrNil(c *transport.Client) scan.Starter {
	if c == nil {
		return nil
	}
	return c
}

func runnerOrNil(c *transport.Client) diag.ScriptRunner {
	if c == nil {
		return nil
	}
	return c
}

func (m modelUI) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, waitEvent(m.eventCh), m.refreshCmd())
}

// refreshCmd schedules the periodic re-render that keeps the state panel
// current even when no message traffic arrives, at the configured interval.
func (m modelUI) refreshCmd() tea.Cmd {
	return tea.Tick(m.refreshEvery, func(t time.Time) tea.Msg { return refreshMsg(t) })
}

func waitEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		evt, ok := <-ch
		return eventMsg{evt: evt, ok: ok}
	}
}

func waitFinding(run *scan.Run) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-run.Findings()
		if !ok {
			<-run.Done()
			return scanOverMsg{outcome: run.Outcome()}
		}
		return findingMsg{finding: f}
	}
}

func (m modelUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case refreshMsg:
		return m, m.refreshCmd()

	case eventMsg:
		if !msg.ok {
			return m, nil
		}
		m.appendLog(msg.evt.Level, msg.evt.Message)
		return m, waitEvent(m.eventCh)

	case connectResultMsg:
		m.busy = ""
		if msg.err != nil {
			m.status = "Connect failed: " + msg.err.Error()
		} else {
			m.status = "Tunnel connected. http://localhost:" + m.localPortValue()
		}
		return m, nil

	case disconnectedMsg:
		m.busy = ""
		m.status = "Tunnel disconnected."
		return m, nil

	case findingMsg:
		m.appendFinding(msg.finding)
		return m, waitFinding(m.run)

	case scanOverMsg:
		m.busy = ""
		m.run = nil
		switch msg.outcome.State {
		case model.ScanCompleted:
			m.status = fmt.Sprintf("Scan completed: %d open ports.", len(msg.outcome.OpenPorts))
		case model.ScanCancelled:
			m.status = "Scan cancelled."
		default:
			m.status = "Scan failed: " + msg.outcome.Err
		}
		return m, nil

	case diagDoneMsg:
		m.busy = ""
		for _, line := range msg.report.Lines {
			m.appendLog(diagLevel(line.Category), line.Text)
		}
		if msg.report.State == diag.StateErrored {
			m.status = "Diagnostics failed: " + msg.report.Err
		} else {
			m.status = "Diagnostics completed."
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			if m.run != nil {
				m.run.Cancel()
			}
			_ = m.sess.Disconnect()
			return m, tea.Quit
		case "ctrl+t":
			return m.toggleTunnel()
		case "ctrl+s":
			return m.toggleScan()
		case "ctrl+d":
			return m.startDiag()
		case "ctrl+o":
			return m.openForward()
		case "ctrl+r":
			m.locateTransport()
			if m.binPath == "" {
				m.status = "Transport still not found."
			} else {
				m.status = "Transport: " + m.binPath
			}
			return m, nil
		}
		return m, m.form.Update(msg)
	}
	return m, nil
}

func (m modelUI) toggleTunnel() (tea.Model, tea.Cmd) {
	switch m.sess.State() {
	case model.TunnelConnected, model.TunnelConnecting:
		sess := m.sess
		m.status = "Disconnecting..."
		return m, func() tea.Msg {
			_ = sess.Disconnect()
			return disconnectedMsg{}
		}
	default:
		cfg, ok := m.form.TunnelConfig()
		if !ok {
			m.status = "Fix the form: " + m.form.errMsg
			return m, nil
		}
		m.busy = "connecting"
		m.status = "Connecting..."
		sess := m.sess
		return m, func() tea.Msg {
			return connectResultMsg{err: sess.Connect(context.Background(), cfg)}
		}
	}
}

func (m modelUI) toggleScan() (tea.Model, tea.Cmd) {
	if m.run != nil {
		m.run.Cancel()
		m.status = "Cancelling scan..."
		return m, nil
	}
	target, ok := m.form.ScanTarget()
	if !ok {
		m.status = "Fix the form: " + m.form.errMsg
		return m, nil
	}
	run, err := m.engine.Start(context.Background(), target)
	if err != nil {
		m.status = "Scan failed to start: " + err.Error()
		return m, nil
	}
	m.run = run
	m.busy = "scanning"
	m.status = "Scanning " + target.RemoteHost + "..."
	return m, waitFinding(run)
}

func (m modelUI) startDiag() (tea.Model, tea.Cmd) {
	if m.busy != "" {
		m.status = "Busy: " + m.busy
		return m, nil
	}
	target, ok := m.form.ScanTarget()
	if !ok {
		m.status = "Fix the form: " + m.form.errMsg
		return m, nil
	}
	m.busy = "diagnosing"
	m.status = "Running diagnostics..."
	runner := m.runner
	return m, func() tea.Msg {
		return diagDoneMsg{report: runner.Run(context.Background(), target)}
	}
}

// openForward opens the local end of the tunnel in the default browser.
func (m modelUI) openForward() (tea.Model, tea.Cmd) {
	if m.sess.State() != model.TunnelConnected {
		m.status = "Tunnel is not connected."
		return m, nil
	}
	url := "http://localhost:" + m.localPortValue()
	if err := browser.Open(url); err != nil {
		m.status = "Browser failed: " + err.Error()
	} else {
		m.status = "Opened " + url
	}
	return m, nil
}

func (m *modelUI) appendLog(level events.Level, text string) {
	m.log = append(m.log, logLine{level: level, text: text})
	if len(m.log) > maxLogLines {
		m.log = m.log[len(m.log)-maxLogLines:]
	}
}

func (m *modelUI) appendFinding(f model.Finding) {
	switch f.Kind {
	case model.FindingPortOpen:
		m.appendLog(events.LevelSuccess, fmt.Sprintf("port %d: open", f.Port))
	case model.FindingPortClosed:
		m.appendLog(events.LevelInfo, fmt.Sprintf("port %d: closed", f.Port))
	case model.FindingHTTPResponse:
		m.appendLog(events.LevelWarning, fmt.Sprintf("%s on port %d: %s", f.Protocol, f.Port, f.Text))
	case model.FindingServerHeader:
		m.appendLog(events.LevelWarning, fmt.Sprintf("port %d: %s", f.Port, f.Text))
	case model.FindingSectionMarker:
		m.appendLog(events.LevelInfo, f.Text)
	default:
		m.appendLog(events.LevelInfo, f.Text)
	}
}

func (m modelUI) localPortValue() string {
	return strings.TrimSpace(m.form.fields[fieldLocalPort].Value())
}

func (m modelUI) View() string {
	head := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Render("sshscope")

	transportLine := "transport: not found (ctrl+r to recheck)"
	if m.binPath != "" {
		transportLine = "transport: " + m.binPath
	}

	stateLine := "tunnel: " + string(m.sess.State())
	if lastErr := m.sess.LastError(); lastErr != "" {
		stateLine += " (" + lastErr + ")"
	}
	if m.busy != "" {
		stateLine += "  " + m.spin.View() + m.busy
	}

	logPanel := strings.Builder{}
	start := 0
	if len(m.log) > 18 {
		start = len(m.log) - 18
	}
	for _, line := range m.log[start:] {
		logPanel.WriteString(renderLogLine(line) + "\n")
	}
	if len(m.log) == 0 {
		logPanel.WriteString("(no activity yet)\n")
	}

	quickHelp := "Keys: ctrl+t tunnel | ctrl+s scan | ctrl+d diagnostics | ctrl+o browser | ctrl+r recheck transport | ctrl+c quit"
	width := m.effectiveWidth()
	return lipgloss.JoinVertical(
		lipgloss.Left,
		head,
		transportLine,
		quickHelp,
		m.renderPanel("Connection", m.form.View(), width, lipgloss.Color("69")),
		m.renderPanel("State", stateLine, width, lipgloss.Color("63")),
		m.renderPanel("Activity", logPanel.String(), width, lipgloss.Color("205")),
		m.renderPanel("Status", m.status, width, lipgloss.Color("244")),
	)
}

func renderLogLine(line logLine) string {
	var style lipgloss.Style
	switch line.level {
	case events.LevelSuccess:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	case events.LevelWarning:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	case events.LevelError:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	default:
		style = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	}
	return style.Render(line.text)
}

func (m modelUI) effectiveWidth() int {
	if m.width <= 0 {
		return 100
	}
	return m.width
}

func (m modelUI) renderPanel(title, body string, width int, accent lipgloss.Color) string {
	if width < 24 {
		width = 24
	}
	header := lipgloss.NewStyle().Bold(true).Foreground(accent).Render(title)
	content := strings.TrimSuffix(body, "\n")
	panel := strings.TrimSpace(header + "\n" + content)
	return lipgloss.NewStyle().
		Width(width - 2).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 1).
		Render(panel)
}

func diagLevel(c diag.Category) events.Level {
	switch c {
	case diag.CategorySuccess:
		return events.LevelSuccess
	case diag.CategoryFailure:
		return events.LevelError
	case diag.CategorySection:
		return events.LevelInfo
	default:
		return events.LevelInfo
	}
}

// Run launches the dashboard. A missing transport is not fatal here: the
// dashboard opens and shows the recheck hint, matching the behavior of the
// locate-gated core operations.
func Run() error {
	p := tea.NewProgram(initialModel(), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
