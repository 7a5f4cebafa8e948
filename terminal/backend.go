// Package terminal runs interactive shells and scripted headless commands
// behind a common Backend interface, with a pseudo-terminal variant and a
// plain-pipe fallback.
package terminal

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
)

var (
	ErrUnsupportedPlatform = errors.New("pseudo-terminal not supported on this platform")
	ErrNotSpawned          = errors.New("backend not spawned")
	ErrAlreadySpawned      = errors.New("backend already spawned")
	ErrSessionNotFound     = errors.New("terminal session not found")
	ErrSessionExists       = errors.New("terminal session already exists")
	ErrHeadlessFailed      = errors.New("headless execution failed")
	ErrServiceClosed       = errors.New("terminal service closed")
)

// BackendType names a Backend variant.
type BackendType string

const (
	BackendPTY      BackendType = "pty"
	BackendFallback BackendType = "fallback"
)

// SpawnOptions describe the process a Backend runs.
type SpawnOptions struct {
	Shell string
	Args  []string
	Dir   string
	Env   []string // nil means the current environment
	Cols  uint16
	Rows  uint16
}

// OutputKind identifies an Output.
type OutputKind int

const (
	OutputData OutputKind = iota
	OutputExit
	OutputError
)

// Output is one item on a Backend's output stream. A stream carries any
// number of OutputData items followed by exactly one OutputExit or
// OutputError, then closes.
type Output struct {
	Kind     OutputKind
	Data     []byte
	ExitCode int // -1 when killed by a signal
	Err      error
}

// Backend runs one process with terminal-like I/O.
type Backend interface {
	Spawn(opts SpawnOptions) error
	Write(data []byte) error
	Resize(cols, rows uint16) error
	Kill() error
	// Output returns the process's output stream. It must be drained.
	Output() <-chan Output
	Type() BackendType
}

// pump copies r onto out until r fails, then reaps cmd and sends the final
// exit or error item. It is the only caller of cmd.Wait.
func pump(r io.Reader, cmd *exec.Cmd, out chan<- Output, log *slog.Logger) {
	defer close(out)

	buf := make([]byte, 32*1024)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			out <- Output{Kind: OutputData, Data: data}
		}
		if err != nil {
			// A PTY master reports EIO once the child side is gone.
			if err != io.EOF && !errors.Is(err, syscall.EIO) && !errors.Is(err, os.ErrClosed) {
				log.Debug("read error", "error", err)
			}
			break
		}
	}

	err := cmd.Wait()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		out <- Output{Kind: OutputError, Err: err}
		return
	}
	out <- Output{Kind: OutputExit, ExitCode: cmd.ProcessState.ExitCode()}
}

func killProcess(cmd *exec.Cmd) error {
	if cmd == nil || cmd.Process == nil {
		return ErrNotSpawned
	}
	if err := cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func environ(env []string) []string {
	if env == nil {
		return os.Environ()
	}
	return env
}
