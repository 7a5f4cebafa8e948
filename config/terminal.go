package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/zhubert/cristal-core/paths"
	"github.com/zhubert/cristal-core/terminal"
)

// TerminalSettings is the contents of terminal.yaml.
type TerminalSettings struct {
	// PythonPath overrides interpreter discovery for the PTY backend.
	PythonPath     string             `yaml:"python_path,omitempty"`
	DefaultProfile string             `yaml:"default_profile,omitempty"`
	Profiles       []terminal.Profile `yaml:"profiles,omitempty"`
}

// DefaultTerminalSettings returns the settings used when no file exists.
func DefaultTerminalSettings() *TerminalSettings {
	profiles := terminal.DefaultProfiles()
	return &TerminalSettings{
		DefaultProfile: profiles[0].ID,
		Profiles:       profiles,
	}
}

// LoadTerminalSettings reads terminal.yaml from path. An empty path means the
// default location. A missing file yields the defaults.
func LoadTerminalSettings(path string) (*TerminalSettings, error) {
	if path == "" {
		p, err := paths.TerminalSettingsPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return DefaultTerminalSettings(), nil
	}
	if err != nil {
		return nil, err
	}

	var s TerminalSettings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(s.Profiles) == 0 {
		s.Profiles = terminal.DefaultProfiles()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate rejects profiles without an id or shell, and duplicate ids.
func (s *TerminalSettings) Validate() error {
	seen := make(map[string]bool)
	for i, p := range s.Profiles {
		if p.ID == "" {
			return fmt.Errorf("terminal profile %d has empty id", i)
		}
		if p.Shell == "" {
			return fmt.Errorf("terminal profile %s has empty shell", p.ID)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate terminal profile id: %s", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// SaveTerminalSettings writes s to path as YAML.
func SaveTerminalSettings(path string, s *TerminalSettings) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
