// Package process holds OS-level helpers shared by the chat orchestrator and
// the terminal registry: environment augmentation, graceful termination, and
// discovery of CLI runs left behind by a crash.
package process

import (
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/zhubert/cristal-core/logger"
)

// Terminate asks p to exit. On Unix this is SIGTERM so the child can clean
// up; Windows has no equivalent and gets a hard kill.
func Terminate(p *os.Process) error {
	if p == nil {
		return nil
	}
	if runtime.GOOS == "windows" {
		return p.Kill()
	}
	return p.Signal(syscall.SIGTERM)
}

// PrependPath returns a copy of env whose PATH starts with dirs, followed by
// the original PATH entries. Empty dirs are skipped.
func PrependPath(env []string, dirs ...string) []string {
	var current string
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && pathKey(k) {
			current = v
		}
	}

	parts := make([]string, 0, len(dirs)+1)
	for _, d := range dirs {
		if d != "" {
			parts = append(parts, d)
		}
	}
	if current != "" {
		parts = append(parts, current)
	}
	return SetEnv(env, "PATH", strings.Join(parts, string(os.PathListSeparator)))
}

// SetEnv returns a copy of env with key set to value, replacing any existing
// entry for key.
func SetEnv(env []string, key, value string) []string {
	out := make([]string, 0, len(env)+1)
	for _, kv := range env {
		k, _, _ := strings.Cut(kv, "=")
		if k == key || (key == "PATH" && pathKey(k)) {
			continue
		}
		out = append(out, kv)
	}
	return append(out, key+"="+value)
}

// pathKey matches PATH, including the "Path" spelling Windows uses.
func pathKey(k string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(k, "PATH")
	}
	return k == "PATH"
}

// CLIProcess is a running stream-json CLI invocation found on the system.
type CLIProcess struct {
	PID     int
	Command string
}

// FindCLIProcesses lists running CLI processes started in stream-json mode.
func FindCLIProcesses() ([]CLIProcess, error) {
	var found []CLIProcess
	log := logger.WithComponent("process")

	switch runtime.GOOS {
	case "darwin", "linux":
		output, err := exec.Command("pgrep", "-f", "claude.*--output-format stream-json").Output()
		if err != nil {
			// pgrep exits 1 when nothing matches
			if exitErr, ok := err.(*exec.ExitError); ok && exitErr.ExitCode() == 1 {
				return found, nil
			}
			return nil, err
		}

		for _, pidStr := range strings.Fields(string(output)) {
			pid, err := strconv.Atoi(pidStr)
			if err != nil {
				continue
			}
			args, err := exec.Command("ps", "-p", pidStr, "-o", "args=").Output()
			if err != nil {
				continue
			}
			found = append(found, CLIProcess{PID: pid, Command: strings.TrimSpace(string(args))})
		}

	case "windows":
		output, err := exec.Command("tasklist", "/FI", "IMAGENAME eq claude*", "/FO", "CSV", "/NH").Output()
		if err != nil {
			return nil, err
		}
		for _, line := range strings.Split(string(output), "\n") {
			fields := strings.Split(line, ",")
			if len(fields) < 2 {
				continue
			}
			pid, err := strconv.Atoi(strings.Trim(strings.TrimSpace(fields[1]), "\""))
			if err != nil {
				continue
			}
			found = append(found, CLIProcess{PID: pid, Command: strings.Trim(fields[0], "\"")})
		}
	}

	log.Debug("found CLI processes", "count", len(found))
	return found, nil
}

// FindOrphans returns the CLI processes whose PID is not in known.
func FindOrphans(known map[int]bool) ([]CLIProcess, error) {
	all, err := FindCLIProcesses()
	if err != nil {
		return nil, err
	}

	var orphans []CLIProcess
	for _, p := range all {
		if p.PID == os.Getpid() || known[p.PID] {
			continue
		}
		orphans = append(orphans, p)
	}
	return orphans, nil
}

// ResumeID extracts the --resume argument from a CLI command line, if any.
func ResumeID(cmdLine string) string {
	_, after, ok := strings.Cut(cmdLine, "--resume")
	if !ok {
		return ""
	}
	fields := strings.Fields(strings.TrimLeft(after, " ="))
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// CleanupOrphans terminates every orphaned CLI process and returns how many
// were signalled.
func CleanupOrphans(known map[int]bool) (int, error) {
	orphans, err := FindOrphans(known)
	if err != nil {
		return 0, err
	}

	log := logger.WithComponent("process")
	killed := 0
	for _, o := range orphans {
		p, err := os.FindProcess(o.PID)
		if err != nil {
			continue
		}
		log.Info("terminating orphaned CLI process", "pid", o.PID, "resume", ResumeID(o.Command))
		if err := Terminate(p); err != nil {
			log.Error("failed to terminate process", "pid", o.PID, "error", err)
			continue
		}
		killed++
	}
	return killed, nil
}
