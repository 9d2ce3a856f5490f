package ui

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/sshscope/sshscope/internal/appconfig"
	"github.com/sshscope/sshscope/internal/model"
)

// Field indices for the connection form.
const (
	fieldSSHHost = iota
	fieldSSHUser
	fieldKeyPath
	fieldTarget
	fieldTargetPort
	fieldLocalPort
	fieldCount
)

var fieldLabels = [fieldCount]string{
	"SSH host",
	"User",
	"Key file",
	"Target host",
	"Target port",
	"Local port",
}

// connForm holds the editable connection parameters shown at the top of the
// dashboard.
type connForm struct {
	fields   []textinput.Model
	focusIdx int
	errMsg   string
}

// newConnForm builds the form prefilled from config.yaml defaults and, when
// available, the most recently scanned target.
func newConnForm(defaults appconfig.Defaults, lastTarget string) *connForm {
	f := &connForm{fields: make([]textinput.Model, fieldCount)}
	values := [fieldCount]string{
		defaults.SSHHost,
		defaults.SSHUser,
		defaults.KeyPath,
		defaults.TargetHost,
		strconv.Itoa(defaults.TargetPort),
		strconv.Itoa(defaults.LocalPort),
	}
	if lastTarget != "" {
		values[fieldTarget] = lastTarget
	}
	for i := range f.fields {
		ti := textinput.New()
		ti.Prompt = ""
		ti.CharLimit = 128
		ti.SetValue(values[i])
		f.fields[i] = ti
	}
	f.fields[0].Focus()
	return f
}

// Update routes key events to the focused field and handles focus cycling.
func (f *connForm) Update(msg tea.Msg) tea.Cmd {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "tab", "down":
			f.setFocus((f.focusIdx + 1) % fieldCount)
			return nil
		case "shift+tab", "up":
			f.setFocus((f.focusIdx + fieldCount - 1) % fieldCount)
			return nil
		}
	}
	var cmd tea.Cmd
	f.fields[f.focusIdx], cmd = f.fields[f.focusIdx].Update(msg)
	return cmd
}

func (f *connForm) setFocus(idx int) {
	f.fields[f.focusIdx].Blur()
	f.focusIdx = idx
	f.fields[f.focusIdx].Focus()
}

// TunnelConfig parses the form into a config, recording a validation message
// on the form when the numeric fields are malformed.
func (f *connForm) TunnelConfig() (model.TunnelConfig, bool) {
	f.errMsg = ""
	targetPort, err := strconv.Atoi(strings.TrimSpace(f.fields[fieldTargetPort].Value()))
	if err != nil {
		f.errMsg = "target port must be a number"
		return model.TunnelConfig{}, false
	}
	localPort, err := strconv.Atoi(strings.TrimSpace(f.fields[fieldLocalPort].Value()))
	if err != nil {
		f.errMsg = "local port must be a number"
		return model.TunnelConfig{}, false
	}
	cfg := model.TunnelConfig{
		SSHHost:    strings.TrimSpace(f.fields[fieldSSHHost].Value()),
		SSHUser:    strings.TrimSpace(f.fields[fieldSSHUser].Value()),
		KeyPath:    strings.TrimSpace(f.fields[fieldKeyPath].Value()),
		RemoteHost: strings.TrimSpace(f.fields[fieldTarget].Value()),
		RemotePort: targetPort,
		LocalPort:  localPort,
	}
	if err := cfg.Validate(); err != nil {
		f.errMsg = err.Error()
		return model.TunnelConfig{}, false
	}
	return cfg, true
}

// ScanTarget parses the form into a scan/diag target.
func (f *connForm) ScanTarget() (model.ScanTarget, bool) {
	f.errMsg = ""
	target := model.ScanTarget{
		RemoteHost: strings.TrimSpace(f.fields[fieldTarget].Value()),
		SSHHost:    strings.TrimSpace(f.fields[fieldSSHHost].Value()),
		SSHUser:    strings.TrimSpace(f.fields[fieldSSHUser].Value()),
		KeyPath:    strings.TrimSpace(f.fields[fieldKeyPath].Value()),
	}
	if err := target.Validate(); err != nil {
		f.errMsg = err.Error()
		return model.ScanTarget{}, false
	}
	return target, true
}

// View renders the form fields with the focused one marked.
func (f *connForm) View() string {
	var b strings.Builder
	for i, field := range f.fields {
		marker := "  "
		if i == f.focusIdx {
			marker = "> "
		}
		b.WriteString(fmt.Sprintf("%s%-12s %s\n", marker, fieldLabels[i]+":", field.View()))
	}
	if f.errMsg != "" {
		b.WriteString("  ! " + f.errMsg + "\n")
	}
	return b.String()
}
