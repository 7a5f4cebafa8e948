package paths

import (
	"os"
	"path/filepath"
	"testing"
)

// setupTestHome points HOME at a temp dir, clears overrides and the cache.
func setupTestHome(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("CRISTAL_HOME", "")
	t.Setenv("XDG_CONFIG_HOME", "")
	t.Setenv("XDG_DATA_HOME", "")
	t.Setenv("XDG_STATE_HOME", "")
	Reset()
	t.Cleanup(Reset)
	return tmpDir
}

func TestFreshInstallNoXDG(t *testing.T) {
	home := setupTestHome(t)
	expected := filepath.Join(home, ".cristal")

	for name, fn := range map[string]func() (string, error){
		"ConfigDir": ConfigDir,
		"DataDir":   DataDir,
		"StateDir":  StateDir,
	} {
		got, err := fn()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if got != expected {
			t.Errorf("%s = %q, want %q", name, got, expected)
		}
	}

	if !IsFlatLayout() {
		t.Error("IsFlatLayout should be true for a fresh install without XDG")
	}
}

func TestCristalHomeOverride(t *testing.T) {
	setupTestHome(t)
	override := t.TempDir()
	t.Setenv("CRISTAL_HOME", override)
	t.Setenv("XDG_CONFIG_HOME", "/should/be/ignored")

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir: %v", err)
	}
	if dir != override {
		t.Errorf("ConfigDir = %q, want %q", dir, override)
	}
}

func TestDotDirWinsOverXDG(t *testing.T) {
	home := setupTestHome(t)
	dotDir := filepath.Join(home, ".cristal")
	if err := os.MkdirAll(dotDir, 0755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "xdg-config"))

	dir, err := ConfigDir()
	if err != nil {
		t.Fatalf("ConfigDir: %v", err)
	}
	if dir != dotDir {
		t.Errorf("ConfigDir = %q, want %q", dir, dotDir)
	}
}

func TestXDGLayout(t *testing.T) {
	home := setupTestHome(t)
	t.Setenv("XDG_STATE_HOME", filepath.Join(home, "state"))

	tests := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"ConfigDir", ConfigDir, filepath.Join(home, ".config", "cristal")},
		{"DataDir", DataDir, filepath.Join(home, ".local", "share", "cristal")},
		{"StateDir", StateDir, filepath.Join(home, "state", "cristal")},
		{"LogsDir", LogsDir, filepath.Join(home, "state", "cristal", "logs")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			if err != nil {
				t.Fatalf("%s: %v", tt.name, err)
			}
			if got != tt.want {
				t.Errorf("%s = %q, want %q", tt.name, got, tt.want)
			}
		})
	}

	if IsFlatLayout() {
		t.Error("IsFlatLayout should be false under XDG")
	}
}

func TestFilePaths(t *testing.T) {
	home := setupTestHome(t)

	cfg, err := ConfigFilePath()
	if err != nil {
		t.Fatal(err)
	}
	if cfg != filepath.Join(home, ".cristal", "config.json") {
		t.Errorf("ConfigFilePath = %q", cfg)
	}

	term, err := TerminalSettingsPath()
	if err != nil {
		t.Fatal(err)
	}
	if term != filepath.Join(home, ".cristal", "terminal.yaml") {
		t.Errorf("TerminalSettingsPath = %q", term)
	}
}

func TestResultIsCached(t *testing.T) {
	home := setupTestHome(t)

	first, _ := ConfigDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "later"))
	second, _ := ConfigDir()
	if first != second {
		t.Errorf("resolution changed without Reset: %q vs %q", first, second)
	}
}
