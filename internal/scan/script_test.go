package scan

import (
	"fmt"
	"strings"
	"testing"
)

// TestBuildScript checks the structural contract of the generated probe
// script: every candidate port appears, the target host is interpolated into
// the /dev/tcp probe and the curl URLs, and the section markers that drive
// the streaming parser are present.
func TestBuildScript(t *testing.T) {
	script := BuildScript("192.168.1.111")

	for _, marker := range []string{
		"=== Scanning 192.168.1.111 ===",
		"=== HTTP checks ===",
		"=== DONE ===",
		"/dev/tcp/192.168.1.111/$port",
		"http://192.168.1.111:$port",
		"https://192.168.1.111:$port",
		`echo "OPEN:$port"`,
		`echo "CLOSED:$port"`,
	} {
		if !strings.Contains(script, marker) {
			t.Errorf("script is missing %q", marker)
		}
	}

	for _, p := range CandidatePorts {
		if !strings.Contains(script, fmt.Sprintf("%d", p)) {
			t.Errorf("script is missing candidate port %d", p)
		}
	}
}

// TestHTTPCheckPortsAreCandidates ensures the HTTP pass never probes a port
// the TCP pass did not cover.
func TestHTTPCheckPortsAreCandidates(t *testing.T) {
	candidates := map[int]bool{}
	for _, p := range CandidatePorts {
		candidates[p] = true
	}
	for _, p := range HTTPCheckPorts {
		if !candidates[p] {
			t.Errorf("http check port %d is not in the candidate list", p)
		}
	}
}
