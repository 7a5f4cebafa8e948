package terminal

import (
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"github.com/creack/pty"

	"github.com/zhubert/cristal-core/logger"
	"github.com/zhubert/cristal-core/process"
)

type ptyBackend struct {
	mu   sync.Mutex
	cmd  *exec.Cmd
	ptmx *os.File
	out  chan Output
	log  *slog.Logger
}

func newPTYBackend() (*ptyBackend, error) {
	if runtime.GOOS == "windows" {
		return nil, ErrUnsupportedPlatform
	}
	return &ptyBackend{
		out: make(chan Output, 64),
		log: logger.WithComponent("terminal").With("backend", BackendPTY),
	}, nil
}

func (b *ptyBackend) Type() BackendType { return BackendPTY }

func (b *ptyBackend) Output() <-chan Output { return b.out }

func (b *ptyBackend) Spawn(opts SpawnOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd != nil {
		return ErrAlreadySpawned
	}

	cmd := exec.Command(opts.Shell, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = process.SetEnv(environ(opts.Env), "TERM", "xterm-256color")

	ptmx, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: opts.Cols, Rows: opts.Rows})
	if err != nil {
		return err
	}
	b.cmd = cmd
	b.ptmx = ptmx
	b.log = b.log.With("pid", cmd.Process.Pid)
	b.log.Debug("spawned", "shell", opts.Shell, "cols", opts.Cols, "rows", opts.Rows)

	go func() {
		pump(ptmx, cmd, b.out, b.log)
		ptmx.Close()
	}()
	return nil
}

func (b *ptyBackend) Write(data []byte) error {
	b.mu.Lock()
	ptmx := b.ptmx
	b.mu.Unlock()
	if ptmx == nil {
		return ErrNotSpawned
	}
	_, err := ptmx.Write(data)
	return err
}

func (b *ptyBackend) Resize(cols, rows uint16) error {
	b.mu.Lock()
	ptmx := b.ptmx
	b.mu.Unlock()
	if ptmx == nil {
		return ErrNotSpawned
	}
	return pty.Setsize(ptmx, &pty.Winsize{Cols: cols, Rows: rows})
}

func (b *ptyBackend) Kill() error {
	b.mu.Lock()
	cmd := b.cmd
	b.mu.Unlock()
	return killProcess(cmd)
}
