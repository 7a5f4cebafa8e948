package claude

import (
	"os"
	"os/user"
	"path/filepath"

	"github.com/zhubert/cristal-core/process"
)

// BuildCommandArgs returns the CLI arguments for a one-shot stream-json run.
func BuildCommandArgs(prompt, model, resumeID string) []string {
	args := []string{"-p", prompt, "--output-format", "stream-json", "--verbose"}
	if model != "" {
		args = append(args, "--model", model)
	}
	if resumeID != "" {
		args = append(args, "--resume", resumeID)
	}
	return args
}

// cliPathDirs are prepended to PATH for every spawn. A GUI-launched host
// does not inherit the login shell's PATH.
func cliPathDirs(home string) []string {
	dirs := []string{"/usr/local/bin", "/opt/homebrew/bin", "/usr/bin", "/bin"}
	if home != "" {
		dirs = append([]string{filepath.Join(home, ".local", "bin")}, dirs...)
	}
	return dirs
}

// commandEnv returns base with PATH augmented and HOME and USER set.
func commandEnv(base []string) []string {
	home, _ := os.UserHomeDir()
	env := process.PrependPath(base, cliPathDirs(home)...)
	if home != "" {
		env = process.SetEnv(env, "HOME", home)
	}

	name := os.Getenv("USER")
	if name == "" {
		if u, err := user.Current(); err == nil {
			name = u.Username
		}
	}
	if name != "" {
		env = process.SetEnv(env, "USER", name)
	}
	return env
}
