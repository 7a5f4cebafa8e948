// Package cli checks for the external tools cristal drives.
package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/zhubert/cristal-core/exec"
)

// Prerequisite represents an external CLI tool
type Prerequisite struct {
	Name        string // Command name (e.g., "claude", "python3")
	Required    bool   // Whether cristal can run without it
	Description string
	InstallURL  string
}

// DefaultPrerequisites returns the tools cristal looks for.
func DefaultPrerequisites() []Prerequisite {
	return []Prerequisite{
		{
			Name:        "claude",
			Required:    true,
			Description: "Claude Code CLI",
			InstallURL:  "https://claude.ai/code",
		},
		{
			Name:        "python3",
			Required:    false, // without it terminals use the pipe backend
			Description: "Python 3 (optional, enables PTY terminals)",
			InstallURL:  "https://www.python.org/downloads",
		},
	}
}

// CheckResult contains the result of checking a prerequisite
type CheckResult struct {
	Prerequisite Prerequisite
	Found        bool
	Path         string
	Version      string
	Error        error
}

// Checker probes prerequisites through a CommandExecutor.
type Checker struct {
	exec    exec.CommandExecutor
	timeout time.Duration
}

// NewChecker returns a Checker using e, or the package default executor when
// e is nil.
func NewChecker(e exec.CommandExecutor) *Checker {
	if e == nil {
		e = exec.GetDefaultExecutor()
	}
	return &Checker{exec: e, timeout: 5 * time.Second}
}

// Check verifies that a CLI tool is available in PATH
func (c *Checker) Check(prereq Prerequisite) CheckResult {
	result := CheckResult{Prerequisite: prereq}

	path, err := c.exec.LookPath(prereq.Name)
	if err != nil {
		result.Error = fmt.Errorf("%s not found in PATH", prereq.Name)
		return result
	}

	result.Found = true
	result.Path = path
	result.Version = c.version(path)
	return result
}

// CheckAll verifies all prerequisites and returns results
func (c *Checker) CheckAll(prereqs []Prerequisite) []CheckResult {
	results := make([]CheckResult, len(prereqs))
	for i, prereq := range prereqs {
		results[i] = c.Check(prereq)
	}
	return results
}

// ValidateRequired returns an error listing every required tool that is
// missing, or nil.
func (c *Checker) ValidateRequired(prereqs []Prerequisite) error {
	var missing []string

	for _, prereq := range prereqs {
		if !prereq.Required {
			continue
		}
		if result := c.Check(prereq); !result.Found {
			missing = append(missing, fmt.Sprintf("  - %s (%s)\n    Install: %s",
				prereq.Name, prereq.Description, prereq.InstallURL))
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required CLI tools:\n%s", strings.Join(missing, "\n"))
	}
	return nil
}

func (c *Checker) version(path string) string {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	output, err := c.exec.CombinedOutput(ctx, path, "--version")
	if err != nil {
		return ""
	}
	version, _, _ := strings.Cut(string(output), "\n")
	version = strings.TrimSpace(version)
	if len(version) > 100 {
		version = version[:100] + "..."
	}
	return version
}

// FormatCheckResults formats check results for display
func FormatCheckResults(results []CheckResult) string {
	var sb strings.Builder

	sb.WriteString("CLI Prerequisites:\n")
	for _, r := range results {
		status := "✓"
		if !r.Found {
			if r.Prerequisite.Required {
				status = "✗"
			} else {
				status = "○"
			}
		}

		fmt.Fprintf(&sb, "  %s %s", status, r.Prerequisite.Name)
		if r.Found && r.Version != "" {
			fmt.Fprintf(&sb, " (%s)", r.Version)
		} else if !r.Found {
			if r.Prerequisite.Required {
				sb.WriteString(" [REQUIRED]")
			} else {
				sb.WriteString(" [optional]")
			}
		}
		sb.WriteString("\n")
	}

	return sb.String()
}
