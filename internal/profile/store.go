// Package profile persists named tunnel configurations to profiles.yaml so a
// frequently used jump host and forward can be recalled by name from the CLI
// and the TUI.
package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sshscope/sshscope/internal/appconfig"
	"github.com/sshscope/sshscope/internal/model"
	"gopkg.in/yaml.v3"
)

// Definition is one saved tunnel configuration.
type Definition struct {
	Name   string             `yaml:"name" json:"name"`
	Tunnel model.TunnelConfig `yaml:"tunnel" json:"tunnel"`
}

// ScanTarget derives the scan/diag target from the profile's tunnel config.
func (d Definition) ScanTarget() model.ScanTarget {
	return model.ScanTarget{
		RemoteHost: d.Tunnel.RemoteHost,
		SSHHost:    d.Tunnel.SSHHost,
		SSHUser:    d.Tunnel.SSHUser,
		KeyPath:    d.Tunnel.KeyPath,
	}
}

type fileModel struct {
	Profiles map[string]Definition `yaml:"profiles"`
}

func filePath() (string, error) {
	dir, err := appconfig.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "profiles.yaml"), nil
}

// LoadAll returns all profiles sorted by name.
func LoadAll() ([]Definition, error) {
	fm, err := loadFile()
	if err != nil {
		return nil, err
	}
	out := make([]Definition, 0, len(fm.Profiles))
	for _, p := range fm.Profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Get fetches one profile by name.
func Get(name string) (Definition, error) {
	fm, err := loadFile()
	if err != nil {
		return Definition{}, err
	}
	p, ok := fm.Profiles[name]
	if !ok {
		return Definition{}, fmt.Errorf("profile not found: %s", name)
	}
	return p, nil
}

// Save adds or replaces a profile definition.
func Save(name string, cfg model.TunnelConfig) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("profile name cannot be empty")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("profile %s: %w", name, err)
	}

	fm, err := loadFile()
	if err != nil {
		return err
	}
	fm.Profiles[name] = Definition{Name: name, Tunnel: cfg}
	return saveFile(fm)
}

// Delete removes a profile by name.
func Delete(name string) error {
	fm, err := loadFile()
	if err != nil {
		return err
	}
	if _, ok := fm.Profiles[name]; !ok {
		return fmt.Errorf("profile not found: %s", name)
	}
	delete(fm.Profiles, name)
	return saveFile(fm)
}

func loadFile() (fileModel, error) {
	path, err := filePath()
	if err != nil {
		return fileModel{}, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fileModel{Profiles: map[string]Definition{}}, nil
		}
		return fileModel{}, err
	}
	var fm fileModel
	if err := yaml.Unmarshal(b, &fm); err != nil {
		return fileModel{}, fmt.Errorf("parse profiles: %w", err)
	}
	if fm.Profiles == nil {
		fm.Profiles = map[string]Definition{}
	}
	return fm, nil
}

func saveFile(fm fileModel) error {
	path, err := filePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return err
	}
	b, err := yaml.Marshal(fm)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}
