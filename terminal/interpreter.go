package terminal

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/zhubert/cristal-core/exec"
	"github.com/zhubert/cristal-core/logger"
)

const interpreterProbeTimeout = 5 * time.Second

// interpreterProbe finds a Python interpreter once and remembers the answer.
// The PTY backend is only offered where one is present. override is read
// when the search runs, so settings changed before first use still count.
type interpreterProbe struct {
	once     sync.Once
	executor exec.CommandExecutor
	override func() string
	goos     string
	path     string
}

func newInterpreterProbe(executor exec.CommandExecutor, override func() string, goos string) *interpreterProbe {
	return &interpreterProbe{executor: executor, override: override, goos: goos}
}

// find returns the interpreter command, or "" when none works.
func (p *interpreterProbe) find() string {
	p.once.Do(func() {
		p.path = p.probe()
		logger.WithComponent("terminal").Debug("interpreter probe", "path", p.path)
	})
	return p.path
}

func (p *interpreterProbe) probe() string {
	candidates := []string{"python3", "python"}
	if p.goos == "windows" {
		candidates = append(candidates, "py")
	}
	if p.override != nil {
		if o := p.override(); o != "" {
			candidates = append([]string{o}, candidates...)
		}
	}

	for _, c := range candidates {
		if p.verify(c) {
			return c
		}
	}
	return ""
}

func (p *interpreterProbe) verify(name string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), interpreterProbeTimeout)
	defer cancel()
	// Python 2 prints its version to stderr.
	out, err := p.executor.CombinedOutput(ctx, name, "--version")
	if err != nil {
		return false
	}
	return strings.HasPrefix(strings.TrimSpace(string(out)), "Python ")
}
