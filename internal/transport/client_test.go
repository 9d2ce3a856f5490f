// Package transport tests cover argument composition for both client
// flavors and the blocking script runner against a local shell stand-in.
package transport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sshscope/sshscope/internal/model"
)

func tunnelConfig() model.TunnelConfig {
	return model.TunnelConfig{
		SSHHost:    "10.0.0.1",
		SSHUser:    "root",
		KeyPath:    "/home/user/.ssh/id_ed25519",
		RemoteHost: "192.168.1.111",
		RemotePort: 80,
		LocalPort:  8080,
	}
}

func scanTarget() model.ScanTarget {
	return model.ScanTarget{RemoteHost: "192.168.1.111", SSHHost: "10.0.0.1", SSHUser: "root", KeyPath: "/home/user/.ssh/id_ed25519"}
}

// TestDetectFlavor verifies flavor detection is case-insensitive, ignores the
// directory, and tolerates the Windows .exe suffix.
func TestDetectFlavor(t *testing.T) {
	cases := []struct {
		bin  string
		want flavor
	}{
		{"/usr/bin/ssh", flavorOpenSSH},
		{"ssh", flavorOpenSSH},
		{"ssh.exe", flavorOpenSSH},
		{`C:\Windows\System32\OpenSSH\ssh.exe`, flavorOpenSSH},
		{"plink", flavorPuTTY},
		{"PLINK.EXE", flavorPuTTY},
		{`C:\Program Files\PuTTY\plink.exe`, flavorPuTTY},
	}
	for _, c := range cases {
		if got := detectFlavor(c.bin); got != c.want {
			t.Errorf("detectFlavor(%q) = %d, want %d", c.bin, got, c.want)
		}
	}
}

// TestBuildTunnelArgsOpenSSH pins the exact OpenSSH argv: key, forward spec,
// no remote command, destination.
func TestBuildTunnelArgsOpenSSH(t *testing.T) {
	c := New("/usr/bin/ssh")
	got := strings.Join(c.BuildTunnelArgs(tunnelConfig()), " ")
	want := "-i /home/user/.ssh/id_ed25519 -L 8080:192.168.1.111:80 -N root@10.0.0.1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// TestBuildTunnelArgsPuTTY verifies the plink variant leads with the protocol
// selector.
func TestBuildTunnelArgsPuTTY(t *testing.T) {
	c := New(`C:\Program Files\PuTTY\plink.exe`)
	got := strings.Join(c.BuildTunnelArgs(tunnelConfig()), " ")
	want := "-ssh -i /home/user/.ssh/id_ed25519 -L 8080:192.168.1.111:80 -N root@10.0.0.1"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

// TestBuildTunnelArgsNoKey verifies the key flag is omitted entirely when no
// key path is configured, leaving agent/default-key resolution to the client.
func TestBuildTunnelArgsNoKey(t *testing.T) {
	cfg := tunnelConfig()
	cfg.KeyPath = ""
	got := strings.Join(New("ssh").BuildTunnelArgs(cfg), " ")
	if strings.Contains(got, "-i") {
		t.Fatalf("unexpected -i in %q", got)
	}
}

// TestBuildScriptArgs verifies batch-mode selection per flavor and that the
// script rides as the final single argv element.
func TestBuildScriptArgs(t *testing.T) {
	script := "echo hello"

	got := New("ssh").BuildScriptArgs(scanTarget(), script)
	want := []string{"-o", "BatchMode=yes", "-i", "/home/user/.ssh/id_ed25519", "root@10.0.0.1", "echo hello"}
	if strings.Join(got, "\x00") != strings.Join(want, "\x00") {
		t.Fatalf("openssh args: got %v, want %v", got, want)
	}

	got = New("plink.exe").BuildScriptArgs(scanTarget(), script)
	want = []string{"-ssh", "-batch", "-i", "/home/user/.ssh/id_ed25519", "root@10.0.0.1", "echo hello"}
	if strings.Join(got, "\x00") != strings.Join(want, "\x00") {
		t.Fatalf("plink args: got %v, want %v", got, want)
	}
}

// fakeBin writes an executable shell script into a temp dir and returns its
// path. It stands in for the transport binary so RunScript's exec paths can
// be exercised without a real SSH client.
func fakeBin(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fake-ssh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestRunScriptOutput verifies the blocking runner returns the child's stdout
// on success.
func TestRunScriptOutput(t *testing.T) {
	c := New(fakeBin(t, `echo "PING: OK"`))
	out, err := c.RunScript(context.Background(), scanTarget(), "ignored")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "PING: OK") {
		t.Fatalf("unexpected output: %q", out)
	}
}

// TestRunScriptStderrFolded verifies a non-zero exit surfaces the child's
// stderr in the returned error.
func TestRunScriptStderrFolded(t *testing.T) {
	c := New(fakeBin(t, `echo "Host key verification failed." >&2; exit 255`))
	_, err := c.RunScript(context.Background(), scanTarget(), "ignored")
	if err == nil || !strings.Contains(err.Error(), "Host key verification failed.") {
		t.Fatalf("expected stderr in error, got %v", err)
	}
}

// TestRunScriptTimeout verifies the context deadline kills a hanging child
// and is reported as a timeout.
func TestRunScriptTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := New(fakeBin(t, "sleep 30"))
	_, err := c.RunScript(ctx, scanTarget(), "ignored")
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("expected timeout error, got %v", err)
	}
}
