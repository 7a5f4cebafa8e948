package claude

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Permissions are the capability toggles a user grants the CLI.
type Permissions struct {
	FileRead  bool `json:"file_read"`
	FileEdit  bool `json:"file_edit"`
	FileWrite bool `json:"file_write"` // also covers deletion
	WebSearch bool `json:"web_search"`
	WebFetch  bool `json:"web_fetch"`
	Task      bool `json:"task"` // sub-agents
}

// DefaultPermissions allows reading, editing, writing and deleting notes.
// Web access and sub-agents stay off.
func DefaultPermissions() Permissions {
	return Permissions{FileRead: true, FileEdit: true, FileWrite: true}
}

// Policy is the document the CLI reads from .claude/settings.json.
type Policy struct {
	Permissions PolicyRules `json:"permissions"`
}

type PolicyRules struct {
	Allow []string `json:"allow"`
	Deny  []string `json:"deny"`
}

// noteExtensions are the workspace file types the CLI may touch.
var noteExtensions = []string{"md", "canvas", "base"}

// The CLI may read CLAUDE.md but never sees AGENTS.md.
const (
	agentsRulesPath = "./.crystal-rules/AGENTS.md"
	claudeRulesPath = "./.crystal-rules/CLAUDE.md"
)

// BuildPolicy translates toggles into allow and deny rules. Shell access,
// the workspace config dir and the trash are always denied.
func BuildPolicy(p Permissions, configDirName string) Policy {
	allow := []string{}
	if p.FileRead {
		allow = append(allow, noteRules("Read")...)
	}
	if p.FileEdit {
		allow = append(allow, noteRules("Edit")...)
	}
	if p.FileWrite {
		allow = append(allow, noteRules("Write")...)
		allow = append(allow, noteRules("Delete")...)
	}
	if p.WebSearch {
		allow = append(allow, "WebSearch")
	}
	if p.WebFetch {
		allow = append(allow, "WebFetch")
	}
	if p.Task {
		allow = append(allow, "Task")
	}

	deny := []string{"Bash"}
	if configDirName != "" {
		deny = append(deny, allOps("./"+configDirName+"/**")...)
	}
	deny = append(deny, allOps("./.trash/**")...)
	deny = append(deny, allOps(agentsRulesPath)...)
	deny = append(deny, rule("Edit", claudeRulesPath), rule("Write", claudeRulesPath), rule("Delete", claudeRulesPath))

	return Policy{Permissions: PolicyRules{Allow: allow, Deny: deny}}
}

func rule(tool, pattern string) string {
	return fmt.Sprintf("%s(%s)", tool, pattern)
}

func noteRules(tool string) []string {
	out := make([]string, len(noteExtensions))
	for i, ext := range noteExtensions {
		out[i] = rule(tool, "./**/*."+ext)
	}
	return out
}

func allOps(pattern string) []string {
	return []string{rule("Read", pattern), rule("Edit", pattern), rule("Write", pattern), rule("Delete", pattern)}
}

// PolicyPath is where the policy for workingDir lives.
func PolicyPath(workingDir string) string {
	return filepath.Join(workingDir, ".claude", "settings.json")
}

// WritePolicy writes the policy for p into workingDir, creating .claude/
// as needed.
func WritePolicy(workingDir, configDirName string, p Permissions) error {
	path := PolicyPath(workingDir)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create policy dir: %w", err)
	}
	data, err := json.MarshalIndent(BuildPolicy(p, configDirName), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
