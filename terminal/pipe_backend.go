package terminal

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"github.com/zhubert/cristal-core/logger"
)

// pipeBackend runs the process with plain pipes. stdout and stderr share
// one pipe so output interleaves as it would on a terminal. Resize is a
// no-op.
type pipeBackend struct {
	mu    sync.Mutex
	cmd   *exec.Cmd
	stdin io.WriteCloser
	out   chan Output
	log   *slog.Logger
}

func newPipeBackend() *pipeBackend {
	return &pipeBackend{
		out: make(chan Output, 64),
		log: logger.WithComponent("terminal").With("backend", BackendFallback),
	}
}

func (b *pipeBackend) Type() BackendType { return BackendFallback }

func (b *pipeBackend) Output() <-chan Output { return b.out }

func (b *pipeBackend) Spawn(opts SpawnOptions) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd != nil {
		return ErrAlreadySpawned
	}

	cmd := exec.Command(opts.Shell, opts.Args...)
	cmd.Dir = opts.Dir
	cmd.Env = environ(opts.Env)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	r, w, err := os.Pipe()
	if err != nil {
		stdin.Close()
		return err
	}
	cmd.Stdout = w
	cmd.Stderr = w

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		stdin.Close()
		return err
	}
	// The child holds its own copy; closing ours lets reads see EOF.
	w.Close()

	b.cmd = cmd
	b.stdin = stdin
	b.log = b.log.With("pid", cmd.Process.Pid)
	b.log.Debug("spawned", "shell", opts.Shell)

	go func() {
		pump(r, cmd, b.out, b.log)
		r.Close()
	}()
	return nil
}

// Write sends data to stdin. Without a line discipline a bare carriage
// return would never end a line, so it is sent as a newline.
func (b *pipeBackend) Write(data []byte) error {
	b.mu.Lock()
	stdin := b.stdin
	b.mu.Unlock()
	if stdin == nil {
		return ErrNotSpawned
	}
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	data = bytes.ReplaceAll(data, []byte("\r"), []byte("\n"))
	_, err := stdin.Write(data)
	return err
}

func (b *pipeBackend) Resize(cols, rows uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cmd == nil {
		return ErrNotSpawned
	}
	return nil
}

func (b *pipeBackend) Kill() error {
	b.mu.Lock()
	cmd, stdin := b.cmd, b.stdin
	b.mu.Unlock()
	if stdin != nil {
		stdin.Close()
	}
	return killProcess(cmd)
}
