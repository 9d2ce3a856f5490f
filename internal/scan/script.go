package scan

import (
	"fmt"
	"strings"
)

// CandidatePorts is the fixed list probed by every scan, in probe order.
// These are the ports embedded devices and web panels commonly listen on.
var CandidatePorts = []int{80, 443, 8080, 8443, 81, 82, 8000, 8008, 8081, 8888, 3000, 5000, 9000, 9090, 10000}

// HTTPCheckPorts is the subset given an HTTP/HTTPS HEAD probe after the TCP
// pass.
var HTTPCheckPorts = []int{80, 8080, 8000, 81, 443, 8443}

// BuildScript renders the remote probe script for the given target host.
//
// The script's stdout is the wire contract consumed by ParseLine: one event
// per line, `OPEN:<port>` / `CLOSED:<port>` for the TCP pass,
// `HTTP:<port>:<status>` / `HTTPS:<port>:<status>` / `SERVER:<port>:<header>`
// for the HTTP pass, and `===` marker lines between sections. Only bash
// builtins plus curl are required on the remote side; the TCP probe uses
// bash's /dev/tcp redirection so no scanner needs to be installed there.
func BuildScript(targetHost string) string {
	return fmt.Sprintf(`
echo "=== Scanning %[1]s ==="
for port in %[2]s; do
    (echo > /dev/tcp/%[1]s/$port) 2>/dev/null && echo "OPEN:$port" || echo "CLOSED:$port"
done
echo "=== HTTP checks ==="
for port in %[3]s; do
    response=$(curl -skI --connect-timeout 2 --max-time 3 http://%[1]s:$port 2>/dev/null | head -1)
    if [ -n "$response" ]; then
        echo "HTTP:$port:$response"
        server=$(curl -skI --connect-timeout 2 http://%[1]s:$port 2>/dev/null | grep -i "Server:" | head -1)
        [ -n "$server" ] && echo "SERVER:$port:$server"
    fi
    response=$(curl -skI --connect-timeout 2 --max-time 3 https://%[1]s:$port 2>/dev/null | head -1)
    if [ -n "$response" ]; then
        echo "HTTPS:$port:$response"
    fi
done
echo "=== DONE ==="
`, targetHost, joinPorts(CandidatePorts), joinPorts(HTTPCheckPorts))
}

func joinPorts(ports []int) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = fmt.Sprintf("%d", p)
	}
	return strings.Join(parts, " ")
}
