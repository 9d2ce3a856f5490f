package model

import (
	"fmt"
	"strings"

	"github.com/sshscope/sshscope/internal/util"
)

// TunnelConfig describes one local->remote port forward carried over the
// external SSH transport.
type TunnelConfig struct {
	SSHHost    string `yaml:"ssh_host" json:"ssh_host"`
	SSHUser    string `yaml:"ssh_user" json:"ssh_user"`
	KeyPath    string `yaml:"key_path,omitempty" json:"key_path,omitempty"`
	RemoteHost string `yaml:"remote_host" json:"remote_host"`
	RemotePort int    `yaml:"remote_port" json:"remote_port"`
	LocalPort  int    `yaml:"local_port" json:"local_port"`
}

// Validate checks the fields that can be checked without touching the
// filesystem. Key-file existence is verified at connect time.
func (c TunnelConfig) Validate() error {
	if strings.TrimSpace(c.SSHHost) == "" {
		return fmt.Errorf("ssh host is required")
	}
	if strings.TrimSpace(c.SSHUser) == "" {
		return fmt.Errorf("ssh user is required")
	}
	if strings.TrimSpace(c.RemoteHost) == "" {
		return fmt.Errorf("remote host is required")
	}
	if err := util.ValidatePort(c.RemotePort); err != nil {
		return fmt.Errorf("invalid remote port: %w", err)
	}
	if err := util.ValidatePort(c.LocalPort); err != nil {
		return fmt.Errorf("invalid local port: %w", err)
	}
	return nil
}

// Destination returns the user@host argument passed to the transport.
func (c TunnelConfig) Destination() string {
	return c.SSHUser + "@" + c.SSHHost
}

func (c TunnelConfig) ForwardString() string {
	return fmt.Sprintf("localhost:%d -> %s:%d", c.LocalPort, c.RemoteHost, c.RemotePort)
}

type TunnelState string

const (
	TunnelDisconnected TunnelState = "disconnected"
	TunnelConnecting   TunnelState = "connecting"
	TunnelConnected    TunnelState = "connected"
	TunnelFailed       TunnelState = "failed"
)

// ScanTarget identifies the host probed by a scan or diagnostic run and the
// SSH endpoint the probe script is executed from. Immutable for one run.
type ScanTarget struct {
	RemoteHost string `yaml:"remote_host" json:"remote_host"`
	SSHHost    string `yaml:"ssh_host" json:"ssh_host"`
	SSHUser    string `yaml:"ssh_user" json:"ssh_user"`
	KeyPath    string `yaml:"key_path,omitempty" json:"key_path,omitempty"`
}

func (t ScanTarget) Validate() error {
	if strings.TrimSpace(t.RemoteHost) == "" {
		return fmt.Errorf("scan target host is required")
	}
	if strings.TrimSpace(t.SSHHost) == "" {
		return fmt.Errorf("ssh host is required")
	}
	if strings.TrimSpace(t.SSHUser) == "" {
		return fmt.Errorf("ssh user is required")
	}
	return nil
}

// Destination returns the user@host argument passed to the transport.
func (t ScanTarget) Destination() string {
	return t.SSHUser + "@" + t.SSHHost
}

type ScanState string

const (
	ScanIdle      ScanState = "idle"
	ScanRunning   ScanState = "running"
	ScanCancelled ScanState = "cancelled"
	ScanCompleted ScanState = "completed"
	ScanErrored   ScanState = "errored"
)

// FindingKind tags one classified unit of probe-script output.
type FindingKind string

const (
	FindingPortOpen      FindingKind = "port_open"
	FindingPortClosed    FindingKind = "port_closed"
	FindingHTTPResponse  FindingKind = "http_response"
	FindingServerHeader  FindingKind = "server_header"
	FindingSectionMarker FindingKind = "section"
	FindingUnclassified  FindingKind = "unclassified"
)

// Finding is the tagged variant produced by the scan line parser. Which
// fields are meaningful depends on Kind:
//
//   - PortOpen / PortClosed: Port.
//   - HTTPResponse: Protocol ("HTTP" or "HTTPS"), Port, Text (status line).
//   - ServerHeader: Port, Text (header line).
//   - SectionMarker: Text (the whole marker line).
//   - Unclassified: Text (the raw line).
type Finding struct {
	Kind     FindingKind `json:"kind"`
	Port     int         `json:"port,omitempty"`
	Protocol string      `json:"protocol,omitempty"`
	Text     string      `json:"text,omitempty"`
}
