package locator

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// TestLocateOnPath verifies the PATH lookup finds a universally available
// binary when it is listed as a candidate name.
func TestLocateOnPath(t *testing.T) {
	l := &Locator{Names: []string{"sh"}}
	path, ok := l.Locate()
	if !ok || path == "" {
		t.Fatalf("expected to find sh on PATH, got %q ok=%v", path, ok)
	}
}

// TestLocateExtraDir verifies the fallback to well-known directories: a
// candidate absent from PATH is still found when it sits in one of the
// locator's extra directories.
func TestLocateExtraDir(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("the .exe suffix handling makes this fixture unix-only")
	}

	dir := t.TempDir()
	bin := filepath.Join(dir, "plink")
	if err := os.WriteFile(bin, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	l := &Locator{Names: []string{"plink"}, ExtraDirs: []string{dir}}
	// Hide the PATH so only the extra dir can satisfy the lookup.
	t.Setenv("PATH", t.TempDir())

	path, ok := l.Locate()
	if !ok {
		t.Fatal("expected to find the binary in the extra dir")
	}
	if path != bin {
		t.Fatalf("got %q, want %q", path, bin)
	}
}

// TestLocateMissing verifies absence is reported as ok=false, and that
// Require converts it to ErrTransportNotFound.
func TestLocateMissing(t *testing.T) {
	l := &Locator{Names: []string{"definitely-not-a-real-binary-xyz"}}
	if _, ok := l.Locate(); ok {
		t.Fatal("expected lookup to fail")
	}
	if _, err := l.Require(); !errors.Is(err, ErrTransportNotFound) {
		t.Fatalf("expected ErrTransportNotFound, got %v", err)
	}
}

// TestDefaultCandidates pins the candidate order: OpenSSH is preferred over
// PuTTY when both are installed.
func TestDefaultCandidates(t *testing.T) {
	l := Default()
	if len(l.Names) != 2 || l.Names[0] != "ssh" || l.Names[1] != "plink" {
		t.Fatalf("unexpected candidate names: %v", l.Names)
	}
	if len(l.ExtraDirs) == 0 {
		t.Fatal("expected platform extra dirs")
	}
}
