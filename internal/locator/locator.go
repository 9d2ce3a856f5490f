// Package locator discovers the external SSH client binary used as the
// transport for tunnels, scans, and diagnostics.
//
// sshscope never implements the SSH protocol. It drives whichever SSH-capable
// executable is installed on the host: OpenSSH "ssh" or PuTTY "plink". The
// locator's only job is to find one, searching in order:
//
//  1. The system PATH, by binary name.
//  2. A list of well-known install directories (PuTTY's Program Files
//     locations on Windows, the usual bin directories elsewhere).
//  3. The directory containing the sshscope executable itself, covering
//     bundled deployments where plink.exe ships next to the application.
//
// Absence is a normal, representable outcome, not an error: Locate returns
// ok=false and every tunnel/scan/diag entry point refuses to spawn anything
// until a transport is found. Require wraps that gate into an error value.
package locator

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// ErrTransportNotFound gates all tunnel, scan, and diagnostic operations.
var ErrTransportNotFound = errors.New("ssh transport binary not found (install OpenSSH client or PuTTY)")

// Locator searches for a transport binary. The zero value is not useful;
// use Default.
type Locator struct {
	// Names are candidate binary names, probed in order.
	Names []string
	// ExtraDirs are absolute directories checked after the PATH lookup.
	ExtraDirs []string
}

// Default returns a locator configured for the current platform.
func Default() *Locator {
	l := &Locator{Names: []string{"ssh", "plink"}}
	if runtime.GOOS == "windows" {
		l.ExtraDirs = []string{
			`C:\Program Files\PuTTY`,
			`C:\Program Files (x86)\PuTTY`,
			`C:\Windows\System32\OpenSSH`,
		}
	} else {
		l.ExtraDirs = []string{"/usr/bin", "/usr/local/bin", "/opt/homebrew/bin"}
	}
	return l
}

// Locate returns the first transport binary found, or ok=false when none
// exists. Idempotent and side-effect free; safe to call repeatedly, e.g. on
// a "recheck" action after the user installs PuTTY.
func (l *Locator) Locate() (string, bool) {
	for _, name := range l.Names {
		if path, err := exec.LookPath(name); err == nil {
			return path, true
		}
	}

	dirs := append([]string(nil), l.ExtraDirs...)
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	for _, dir := range dirs {
		for _, name := range l.Names {
			path := filepath.Join(dir, withExeSuffix(name))
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, true
			}
		}
	}
	return "", false
}

// Require returns the transport path or ErrTransportNotFound. Callers use it
// to fail before any process is spawned.
func (l *Locator) Require() (string, error) {
	path, ok := l.Locate()
	if !ok {
		return "", ErrTransportNotFound
	}
	return path, nil
}

// Require is the package-level convenience using the platform default.
func Require() (string, error) {
	return Default().Require()
}

func withExeSuffix(name string) string {
	if runtime.GOOS == "windows" && filepath.Ext(name) == "" {
		return name + ".exe"
	}
	return name
}
