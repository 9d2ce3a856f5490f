package scan

import (
	"strconv"
	"strings"

	"github.com/sshscope/sshscope/internal/model"
)

// ParseLine classifies one line of probe-script output into a Finding.
//
// The prefix vocabulary (OPEN:, CLOSED:, HTTP:, HTTPS:, SERVER:, and any line
// containing ===) is the wire contract with the script built by BuildScript.
// Payloads may themselves contain colons (an HTTP status line, or a Server
// header with a version string), so splitting stops after the first one or
// two delimiters and the remainder is kept intact.
func ParseLine(line string) model.Finding {
	switch {
	case strings.HasPrefix(line, "OPEN:"):
		return portFinding(model.FindingPortOpen, line)
	case strings.HasPrefix(line, "CLOSED:"):
		return portFinding(model.FindingPortClosed, line)
	case strings.HasPrefix(line, "HTTPS:"):
		return httpFinding("HTTPS", line)
	case strings.HasPrefix(line, "HTTP:"):
		return httpFinding("HTTP", line)
	case strings.HasPrefix(line, "SERVER:"):
		parts := strings.SplitN(line, ":", 3)
		if len(parts) < 3 {
			return unclassified(line)
		}
		port, err := strconv.Atoi(parts[1])
		if err != nil {
			return unclassified(line)
		}
		return model.Finding{Kind: model.FindingServerHeader, Port: port, Text: strings.TrimSpace(parts[2])}
	case strings.Contains(line, "==="):
		return model.Finding{Kind: model.FindingSectionMarker, Text: line}
	default:
		return unclassified(line)
	}
}

func portFinding(kind model.FindingKind, line string) model.Finding {
	parts := strings.SplitN(line, ":", 2)
	port, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return unclassified(line)
	}
	return model.Finding{Kind: kind, Port: port}
}

func httpFinding(protocol, line string) model.Finding {
	parts := strings.SplitN(line, ":", 3)
	if len(parts) < 3 {
		return unclassified(line)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil {
		return unclassified(line)
	}
	return model.Finding{
		Kind:     model.FindingHTTPResponse,
		Protocol: protocol,
		Port:     port,
		Text:     strings.TrimSpace(parts[2]),
	}
}

func unclassified(line string) model.Finding {
	return model.Finding{Kind: model.FindingUnclassified, Text: line}
}
