package profile

import (
	"strings"
	"testing"

	"github.com/sshscope/sshscope/internal/model"
)

func validTunnel() model.TunnelConfig {
	return model.TunnelConfig{
		SSHHost:    "10.0.0.1",
		SSHUser:    "root",
		RemoteHost: "192.168.1.111",
		RemotePort: 80,
		LocalPort:  8080,
	}
}

// TestSaveGetDelete walks the basic lifecycle of a saved profile.
func TestSaveGetDelete(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	if err := Save("camera", validTunnel()); err != nil {
		t.Fatal(err)
	}

	p, err := Get("camera")
	if err != nil {
		t.Fatal(err)
	}
	if p.Name != "camera" || p.Tunnel.RemoteHost != "192.168.1.111" {
		t.Fatalf("unexpected profile: %+v", p)
	}

	if err := Delete("camera"); err != nil {
		t.Fatal(err)
	}
	if _, err := Get("camera"); err == nil {
		t.Fatal("expected lookup to fail after delete")
	}
	if err := Delete("camera"); err == nil {
		t.Fatal("expected delete of a missing profile to fail")
	}
}

// TestSaveRejectsInvalid verifies a profile with a broken tunnel config is
// refused rather than persisted.
func TestSaveRejectsInvalid(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg := validTunnel()
	cfg.SSHHost = ""
	if err := Save("broken", cfg); err == nil {
		t.Fatal("expected validation error")
	}
	if err := Save("  ", validTunnel()); err == nil || !strings.Contains(err.Error(), "name") {
		t.Fatalf("expected name error, got %v", err)
	}
}

// TestLoadAllSorted verifies profiles come back ordered by name regardless of
// insertion order.
func TestLoadAllSorted(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	for _, name := range []string{"zeta", "alpha", "mid"} {
		if err := Save(name, validTunnel()); err != nil {
			t.Fatal(err)
		}
	}
	all, err := LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 || all[0].Name != "alpha" || all[1].Name != "mid" || all[2].Name != "zeta" {
		t.Fatalf("unexpected order: %+v", all)
	}
}

// TestLoadAllEmpty verifies a missing profiles file reads as no profiles.
func TestLoadAllEmpty(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	all, err := LoadAll()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 0 {
		t.Fatalf("expected no profiles, got %+v", all)
	}
}

// TestScanTargetDerivation verifies the scan/diag target carries over the
// hosts and key from the tunnel config.
func TestScanTargetDerivation(t *testing.T) {
	cfg := validTunnel()
	cfg.KeyPath = "/tmp/key"
	d := Definition{Name: "camera", Tunnel: cfg}

	target := d.ScanTarget()
	if target.RemoteHost != cfg.RemoteHost || target.SSHHost != cfg.SSHHost ||
		target.SSHUser != cfg.SSHUser || target.KeyPath != cfg.KeyPath {
		t.Fatalf("unexpected target: %+v", target)
	}
}
