// Package paths resolves where cristal keeps its files.
//
// Three kinds of files are written:
//
//   - Config: config.json (settings, chat session records) and terminal.yaml
//   - Data: per-session stream transcripts
//   - State: logs/
//
// Resolution order:
//  1. CRISTAL_HOME is set → every kind lives directly under it
//  2. ~/.cristal/ exists → flat layout under ~/.cristal/
//  3. Any XDG_*_HOME var is set → XDG layout, one "cristal" dir per kind
//  4. Otherwise → flat layout under ~/.cristal/
package paths

import (
	"os"
	"path/filepath"
	"sync"
)

const appDirName = "cristal"

var (
	mu     sync.Mutex
	cached *layout
)

type layout struct {
	config string
	data   string
	state  string
	flat   bool
}

func flatLayout(dir string) *layout {
	return &layout{config: dir, data: dir, state: dir, flat: true}
}

// resolve computes the layout once and caches it.
func resolve() (*layout, error) {
	mu.Lock()
	defer mu.Unlock()

	if cached != nil {
		return cached, nil
	}

	if dir := os.Getenv("CRISTAL_HOME"); dir != "" {
		cached = flatLayout(dir)
		return cached, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	dotDir := filepath.Join(home, "."+appDirName)
	if info, err := os.Stat(dotDir); err == nil && info.IsDir() {
		cached = flatLayout(dotDir)
		return cached, nil
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	xdgData := os.Getenv("XDG_DATA_HOME")
	xdgState := os.Getenv("XDG_STATE_HOME")
	if xdgConfig == "" && xdgData == "" && xdgState == "" {
		cached = flatLayout(dotDir)
		return cached, nil
	}

	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}
	if xdgData == "" {
		xdgData = filepath.Join(home, ".local", "share")
	}
	if xdgState == "" {
		xdgState = filepath.Join(home, ".local", "state")
	}
	cached = &layout{
		config: filepath.Join(xdgConfig, appDirName),
		data:   filepath.Join(xdgData, appDirName),
		state:  filepath.Join(xdgState, appDirName),
	}
	return cached, nil
}

// ConfigDir returns the directory holding config.json and terminal.yaml.
func ConfigDir() (string, error) {
	l, err := resolve()
	if err != nil {
		return "", err
	}
	return l.config, nil
}

// DataDir returns the directory for persistent data files.
func DataDir() (string, error) {
	l, err := resolve()
	if err != nil {
		return "", err
	}
	return l.data, nil
}

// StateDir returns the directory for runtime state and logs.
func StateDir() (string, error) {
	l, err := resolve()
	if err != nil {
		return "", err
	}
	return l.state, nil
}

// ConfigFilePath returns the full path to config.json.
func ConfigFilePath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// TerminalSettingsPath returns the full path to terminal.yaml.
func TerminalSettingsPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "terminal.yaml"), nil
}

// LogsDir returns the directory for log files.
func LogsDir() (string, error) {
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "logs"), nil
}

// IsFlatLayout reports whether every kind of file shares one directory.
func IsFlatLayout() bool {
	l, err := resolve()
	if err != nil {
		return true
	}
	return l.flat
}

// Reset clears the cached resolution. Tests only.
func Reset() {
	mu.Lock()
	defer mu.Unlock()
	cached = nil
}
