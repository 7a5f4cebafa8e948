package terminal

import (
	"os"
	"runtime"
	"sort"

	"github.com/zhubert/cristal-core/process"
)

// Profile describes a shell a terminal session can run.
type Profile struct {
	ID    string            `yaml:"id" json:"id"`
	Name  string            `yaml:"name" json:"name"`
	Shell string            `yaml:"shell" json:"shell"`
	Args  []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env   map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
}

// DefaultProfiles returns the built-in profiles for the running platform.
func DefaultProfiles() []Profile {
	return defaultProfilesFor(runtime.GOOS)
}

func defaultProfilesFor(goos string) []Profile {
	if goos == "windows" {
		return []Profile{
			{ID: "powershell", Name: "PowerShell", Shell: "powershell.exe", Args: []string{"-NoLogo"}},
			{ID: "cmd", Name: "Command Prompt", Shell: "cmd.exe"},
		}
	}
	shell := os.Getenv("SHELL")
	if shell == "" {
		shell = "/bin/sh"
	}
	return []Profile{
		{ID: "default", Name: "Default Shell", Shell: shell, Args: []string{"-l"}},
		{ID: "bash", Name: "Bash", Shell: "/bin/bash", Args: []string{"-l"}},
		{ID: "zsh", Name: "Zsh", Shell: "/bin/zsh", Args: []string{"-l"}},
	}
}

// profileEnv overlays the profile's variables on base. Keys are applied in
// sorted order so the result is stable.
func profileEnv(base []string, p Profile) []string {
	keys := make([]string, 0, len(p.Env))
	for k := range p.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	env := append([]string(nil), base...)
	for _, k := range keys {
		env = process.SetEnv(env, k, p.Env[k])
	}
	return env
}
