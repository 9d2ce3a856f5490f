// Package doctor aggregates local health checks: transport discovery, saved
// profile sanity, and file-permission audit findings.
package doctor

import (
	"fmt"
	"os"
	"runtime"
	"sort"

	"github.com/sshscope/sshscope/internal/locator"
	"github.com/sshscope/sshscope/internal/profile"
	"github.com/sshscope/sshscope/internal/security"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Issue struct {
	Severity       Severity `json:"severity"`
	Check          string   `json:"check"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type Report struct {
	TransportPath string  `json:"transport_path,omitempty"`
	Issues        []Issue `json:"issues"`
}

// Run executes local diagnostics for sshscope operations.
func Run() (Report, error) {
	var report Report
	var issues []Issue

	if path, ok := locator.Default().Locate(); ok {
		report.TransportPath = path
	} else {
		issues = append(issues, Issue{
			Severity:       SeverityHigh,
			Check:          "transport-binary",
			Target:         "PATH",
			Message:        "no ssh or plink binary found",
			Recommendation: "install OpenSSH client or PuTTY, or place plink next to sshscope",
		})
	}

	issues = append(issues, agentIssues()...)

	if profiles, err := profile.LoadAll(); err == nil {
		issues = append(issues, duplicateLocalPortIssues(profiles)...)
	} else {
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "profiles",
			Target:         "profiles.yaml",
			Message:        err.Error(),
			Recommendation: "fix or delete the malformed profiles file",
		})
	}

	if audit, err := security.RunLocalAudit(); err == nil {
		for _, f := range audit.Findings {
			sev := SeverityLow
			if f.Severity == security.SeverityMedium {
				sev = SeverityMedium
			}
			if f.Severity == security.SeverityHigh {
				sev = SeverityHigh
			}
			issues = append(issues, Issue{
				Severity:       sev,
				Check:          "security-audit",
				Target:         f.Target,
				Message:        f.Message,
				Recommendation: f.Recommendation,
			})
		}
	}

	sort.Slice(issues, func(i, j int) bool {
		ri := severityRank(issues[i].Severity)
		rj := severityRank(issues[j].Severity)
		if ri != rj {
			return ri > rj
		}
		if issues[i].Check != issues[j].Check {
			return issues[i].Check < issues[j].Check
		}
		if issues[i].Target != issues[j].Target {
			return issues[i].Target < issues[j].Target
		}
		return issues[i].Message < issues[j].Message
	})
	report.Issues = issues
	return report, nil
}

// agentIssues reports whether a key agent is reachable. Key files passed via
// --key work without one, so a missing agent is low severity. On Windows the
// agent is Pageant or the OpenSSH agent service and SSH_AUTH_SOCK is not used.
func agentIssues() []Issue {
	if runtime.GOOS == "windows" {
		return nil
	}
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return []Issue{{
			Severity:       SeverityLow,
			Check:          "ssh-agent",
			Target:         "SSH_AUTH_SOCK",
			Message:        "no SSH agent detected",
			Recommendation: "start ssh-agent if you rely on agent-held keys",
		}}
	}
	if _, err := os.Stat(sock); err != nil {
		return []Issue{{
			Severity:       SeverityLow,
			Check:          "ssh-agent",
			Target:         sock,
			Message:        "SSH_AUTH_SOCK points at a missing socket",
			Recommendation: "restart ssh-agent or clear the stale variable",
		}}
	}
	return nil
}

// duplicateLocalPortIssues flags profiles that would race for the same local
// bind when brought up together.
func duplicateLocalPortIssues(profiles []profile.Definition) []Issue {
	seen := map[int][]string{}
	for _, p := range profiles {
		seen[p.Tunnel.LocalPort] = append(seen[p.Tunnel.LocalPort], p.Name)
	}
	var issues []Issue
	for port, names := range seen {
		if len(names) < 2 {
			continue
		}
		issues = append(issues, Issue{
			Severity:       SeverityMedium,
			Check:          "duplicate-local-port",
			Target:         fmt.Sprintf("127.0.0.1:%d", port),
			Message:        fmt.Sprintf("local port is configured by %d profiles", len(names)),
			Recommendation: "use unique local ports per profile to avoid tunnel startup conflicts",
		})
	}
	return issues
}

func severityRank(s Severity) int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}
