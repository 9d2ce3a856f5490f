// Package history remembers recently scanned targets so the TUI form and the
// CLI can prefill the last one.
package history

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/sshscope/sshscope/internal/appconfig"
)

type store struct {
	LastScanned map[string]int64 `json:"last_scanned"`
}

func filePath() (string, error) {
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.json"), nil
}

// Touch records a completed scan against a target host.
func Touch(target string) error {
	st, err := load()
	if err != nil {
		return err
	}
	if st.LastScanned == nil {
		st.LastScanned = map[string]int64{}
	}
	st.LastScanned[target] = time.Now().Unix()
	return save(st)
}

// Recent returns target hosts ordered by most recent scan, then name.
func Recent() ([]string, error) {
	st, err := load()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(st.LastScanned))
	for target := range st.LastScanned {
		out = append(out, target)
	}
	sort.Slice(out, func(i, j int) bool {
		ti := st.LastScanned[out[i]]
		tj := st.LastScanned[out[j]]
		if ti != tj {
			return ti > tj
		}
		return out[i] < out[j]
	})
	return out, nil
}

func load() (store, error) {
	path, err := filePath()
	if err != nil {
		return store{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return store{LastScanned: map[string]int64{}}, nil
		}
		return store{}, err
	}
	var st store
	if err := json.Unmarshal(b, &st); err != nil {
		return store{LastScanned: map[string]int64{}}, nil
	}
	if st.LastScanned == nil {
		st.LastScanned = map[string]int64{}
	}
	return st, nil
}

func save(st store) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
