// Package transport launches SSH client processes for tunnels, remote probe
// scripts, and interactive sessions.
//
// This package is responsible for spawning processes. It does NOT implement
// the SSH protocol itself. It shells out to the binary found by
// internal/locator (OpenSSH "ssh" or PuTTY "plink"), which means it inherits
// the user's SSH configuration, agents, and host key store for free.
//
// Three operations exist:
//
//   - Tunnel processes: StartTunnel launches a background process with the
//     "no remote command" and local-forward flags. The returned TunnelProcess
//     exposes the exec.Cmd plus stdin/stderr so internal/tunnel can perform
//     its liveness handshake and capture error output.
//
//   - Script processes: StartScript executes a generated shell script as a
//     single remote command in batch mode, streaming stdout back to the
//     caller. RunScript is the blocking variant used by diagnostics.
//
//   - Interactive sessions: RunInteractive connects the user's terminal to a
//     PTY-backed session on the SSH host.
//
// All arguments are passed via exec.Command's argv (not shell interpolation),
// so hostnames and key paths containing metacharacters cannot inject into a
// local shell. The remote script is a single argv element interpreted by the
// remote user's own shell, which is the operation being requested.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/creack/pty"
	"github.com/sshscope/sshscope/internal/model"
)

// flavor distinguishes OpenSSH-style from PuTTY-style command lines. The two
// clients disagree on the protocol selector and the batch flag.
type flavor int

const (
	flavorOpenSSH flavor = iota
	flavorPuTTY
)

func detectFlavor(bin string) flavor {
	base := strings.ToLower(strings.TrimSuffix(baseName(bin), ".exe"))
	if strings.Contains(base, "plink") || strings.Contains(base, "putty") {
		return flavorPuTTY
	}
	return flavorOpenSSH
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// TunnelProcess represents a running forwarding process.
//
// The caller (internal/tunnel.Session) owns the lifecycle: it waits for exit,
// writes the interactive acknowledgment to Stdin, drains Stderr, and signals
// the process on disconnect.
type TunnelProcess struct {
	Cmd    *exec.Cmd
	Stdin  io.WriteCloser
	Stderr io.ReadCloser
}

// ScriptProcess represents a running remote-script execution whose stdout is
// consumed as a line stream by internal/scan.
type ScriptProcess struct {
	Cmd    *exec.Cmd
	Stdout io.ReadCloser
	Stderr io.ReadCloser
}

// Client spawns transport processes using a previously located binary.
//
// Client is stateless and safe for concurrent use; each method call creates
// an independent exec.Cmd.
type Client struct {
	bin string
}

// New creates a client for the given transport binary path, typically the
// result of locator.Require.
func New(bin string) *Client {
	return &Client{bin: bin}
}

// Bin returns the transport binary path this client spawns.
func (c *Client) Bin() string { return c.bin }

// BuildTunnelArgs composes the argv for a local-forward tunnel without
// starting a process. Useful for dry-run display and for unit testing the
// argument composition separately from process execution.
//
// PuTTY example: ["-ssh", "-i", "key.ppk", "-L", "8080:192.168.1.111:80", "-N", "root@10.0.0.1"]
// OpenSSH example: ["-i", "key", "-L", "8080:192.168.1.111:80", "-N", "root@10.0.0.1"]
func (c *Client) BuildTunnelArgs(cfg model.TunnelConfig) []string {
	var args []string
	if detectFlavor(c.bin) == flavorPuTTY {
		args = append(args, "-ssh")
	}
	if cfg.KeyPath != "" {
		args = append(args, "-i", cfg.KeyPath)
	}
	args = append(args,
		"-L", fmt.Sprintf("%d:%s:%d", cfg.LocalPort, cfg.RemoteHost, cfg.RemotePort),
		"-N",
		cfg.Destination(),
	)
	return args
}

// BuildScriptArgs composes the argv for a batch-mode remote script execution.
func (c *Client) BuildScriptArgs(target model.ScanTarget, script string) []string {
	var args []string
	if detectFlavor(c.bin) == flavorPuTTY {
		args = append(args, "-ssh", "-batch")
	} else {
		args = append(args, "-o", "BatchMode=yes")
	}
	if target.KeyPath != "" {
		args = append(args, "-i", target.KeyPath)
	}
	args = append(args, target.Destination(), script)
	return args
}

// StartTunnel starts a forwarding process in the background with stdin,
// stdout, and stderr captured. It does not wait for the session to become
// usable; the liveness handshake is internal/tunnel's job.
//
// Cancelling ctx kills the process.
func (c *Client) StartTunnel(ctx context.Context, cfg model.TunnelConfig) (*TunnelProcess, error) {
	cmd := exec.CommandContext(ctx, c.bin, c.BuildTunnelArgs(cfg)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	// Forwarding mode produces no useful stdout.
	cmd.Stdout = io.Discard

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &TunnelProcess{Cmd: cmd, Stdin: stdin, Stderr: stderr}, nil
}

// StartScript starts the given shell script as one remote command and returns
// the process with stdout/stderr pipes attached. The caller must drain both
// pipes and call Cmd.Wait.
func (c *Client) StartScript(ctx context.Context, target model.ScanTarget, script string) (*ScriptProcess, error) {
	cmd := exec.CommandContext(ctx, c.bin, c.BuildScriptArgs(target, script)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		return nil, err
	}
	return &ScriptProcess{Cmd: cmd, Stdout: stdout, Stderr: stderr}, nil
}

// RunScript executes the script to completion and returns its stdout. The
// caller bounds the run with a context deadline; on expiry the process is
// killed and a timeout error is returned. On a non-zero exit the transport's
// stderr is folded into the error message.
func (c *Client) RunScript(ctx context.Context, target model.ScanTarget, script string) (string, error) {
	cmd := exec.CommandContext(ctx, c.bin, c.BuildScriptArgs(target, script)...)
	cmd.Stdin = nil

	out, err := cmd.Output()
	if ctx.Err() != nil {
		return string(out), fmt.Errorf("remote script timed out: %w", ctx.Err())
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return string(out), fmt.Errorf("remote script failed: %s", strings.TrimSpace(string(exitErr.Stderr)))
		}
		return string(out), fmt.Errorf("remote script failed: %w", err)
	}
	return string(out), nil
}

// RunInteractive opens an interactive session to the SSH host in a
// pseudo-terminal, connecting it to the user's stdin/stdout. Blocks until the
// session ends. If ctx is cancelled while the session is active, the process
// is killed.
func (c *Client) RunInteractive(ctx context.Context, target model.ScanTarget) error {
	var args []string
	if detectFlavor(c.bin) == flavorPuTTY {
		args = append(args, "-ssh")
	}
	if target.KeyPath != "" {
		args = append(args, "-i", target.KeyPath)
	}
	args = append(args, target.Destination())
	cmd := exec.Command(c.bin, args...)

	f, err := pty.Start(cmd)
	if err != nil {
		return err
	}
	defer f.Close()

	// Forward keystrokes into the PTY master; the goroutine ends when the
	// PTY closes after process exit.
	go func() {
		_, _ = io.Copy(f, os.Stdin)
	}()
	_, _ = io.Copy(os.Stdout, f)

	if ctx.Err() != nil {
		_ = cmd.Process.Kill()
	}
	return cmd.Wait()
}
