package security

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/sshscope/sshscope/internal/appconfig"
	"github.com/sshscope/sshscope/internal/profile"
)

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

type Finding struct {
	Severity       Severity `json:"severity"`
	Target         string   `json:"target"`
	Message        string   `json:"message"`
	Recommendation string   `json:"recommendation"`
}

type AuditReport struct {
	Findings []Finding `json:"findings"`
}

func (r AuditReport) HasHigh() bool {
	for _, f := range r.Findings {
		if f.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// RunLocalAudit inspects the posture of sshscope's own files and any key
// files referenced by the saved profiles. Private keys readable by other
// users are the main thing worth flagging: the transport will happily keep
// using them and some SSH clients will not even warn.
func RunLocalAudit() (AuditReport, error) {
	var findings []Finding

	cfgDir, err := appconfig.ConfigDir()
	if err == nil {
		checkPathPerm(&findings, cfgDir, 0o700, false)
		checkPathPerm(&findings, filepath.Join(cfgDir, "profiles.yaml"), 0o600, true)
		checkPathPerm(&findings, filepath.Join(cfgDir, "events.jsonl"), 0o600, true)
	}

	profiles, err := profile.LoadAll()
	if err == nil {
		seen := map[string]bool{}
		for _, p := range profiles {
			key := p.Tunnel.KeyPath
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			if _, statErr := os.Stat(key); statErr != nil {
				findings = append(findings, Finding{
					Severity:       SeverityMedium,
					Target:         RedactMessage(key),
					Message:        fmt.Sprintf("profile %s references a missing key file", p.Name),
					Recommendation: "fix the key path or remove it from the profile",
				})
				continue
			}
			checkKeyPerm(&findings, key)
		}
	}

	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return severityRank(findings[i].Severity) > severityRank(findings[j].Severity)
		}
		return findings[i].Target < findings[j].Target
	})
	return AuditReport{Findings: findings}, nil
}

func checkPathPerm(findings *[]Finding, path string, want fs.FileMode, isFile bool) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if isFile && info.IsDir() {
		return
	}
	if info.Mode().Perm()&0o077 == 0 {
		return
	}
	*findings = append(*findings, Finding{
		Severity:       SeverityMedium,
		Target:         RedactMessage(path),
		Message:        fmt.Sprintf("permissions %o are wider than %o", info.Mode().Perm(), want),
		Recommendation: fmt.Sprintf("chmod %o %s", want, path),
	})
}

func checkKeyPerm(findings *[]Finding, path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	if info.Mode().Perm()&0o077 != 0 {
		*findings = append(*findings, Finding{
			Severity:       SeverityHigh,
			Target:         RedactMessage(path),
			Message:        fmt.Sprintf("private key is readable by other users (permissions %o)", info.Mode().Perm()),
			Recommendation: "chmod 600 the key file",
		})
	}
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
