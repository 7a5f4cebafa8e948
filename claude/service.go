package claude

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/zhubert/cristal-core/logger"
	"github.com/zhubert/cristal-core/process"
)

// SendOptions are the optional parts of a SendMessage call.
type SendOptions struct {
	RemoteSessionID string // resume this CLI conversation
	Model           string
}

// Service runs one CLI process per chat session and republishes the decoded
// stream on a single Events channel. A new SendMessage for a session aborts
// that session's previous run first, so each session has at most one live
// process. Every run ends with exactly one EventComplete.
type Service struct {
	mu            sync.RWMutex
	cliPath       string
	workingDir    string
	configDirName string
	permissions   Permissions

	sendMu sync.Mutex // serializes abort-then-spawn
	table  *sessionTable
	queue  *eventQueue
	log    *slog.Logger

	closeOnce sync.Once
}

// NewService creates a Service that runs cliPath in workingDir.
func NewService(cliPath, workingDir string) *Service {
	return &Service{
		cliPath:     cliPath,
		workingDir:  workingDir,
		permissions: DefaultPermissions(),
		table:       newSessionTable(),
		queue:       newEventQueue(),
		log:         logger.WithComponent("claude"),
	}
}

// Events returns the channel every session's events are delivered on. It
// is closed after Close once queued events are drained or dropped.
func (s *Service) Events() <-chan Event {
	return s.queue.out
}

func (s *Service) SetCLIPath(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cliPath = path
}

// SetWorkingDir changes the directory new runs start in and rewrites the
// permission policy there.
func (s *Service) SetWorkingDir(dir string) error {
	s.mu.Lock()
	s.workingDir = dir
	s.mu.Unlock()
	return s.writePolicy()
}

// SetConfigDirName sets the workspace config folder the CLI is denied.
func (s *Service) SetConfigDirName(name string) error {
	s.mu.Lock()
	s.configDirName = name
	s.mu.Unlock()
	return s.writePolicy()
}

// SetPermissions stores p and writes the policy file. Running processes
// are unaffected; the next spawn reads the new file.
func (s *Service) SetPermissions(p Permissions) error {
	s.mu.Lock()
	s.permissions = p
	s.mu.Unlock()
	return s.writePolicy()
}

func (s *Service) Permissions() Permissions {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.permissions
}

func (s *Service) writePolicy() error {
	s.mu.RLock()
	dir, configDir, perms := s.workingDir, s.configDirName, s.permissions
	s.mu.RUnlock()

	if dir == "" {
		return nil
	}
	if err := WritePolicy(dir, configDir, perms); err != nil {
		s.log.Error("failed to write permission policy", "dir", dir, "error", err)
		return err
	}
	s.log.Debug("wrote permission policy", "path", PolicyPath(dir))
	return nil
}

// SendMessage starts a CLI run for prompt. Events for the run arrive on
// Events tagged with sessionID. If the process cannot be started, a
// GenericError and a Complete are emitted and a *SpawnError is returned.
func (s *Service) SendMessage(sessionID, prompt string, opts SendOptions) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if strings.TrimSpace(prompt) == "" {
		return ErrEmptyPrompt
	}

	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	s.Abort(sessionID)
	s.table.setPending(sessionID, &PendingMessage{})

	s.mu.RLock()
	cliPath, workingDir := s.cliPath, s.workingDir
	s.mu.RUnlock()

	log := logger.WithSession(sessionID).With("component", "claude")
	args := BuildCommandArgs(prompt, opts.Model, opts.RemoteSessionID)
	log.Info("starting CLI", "cli", cliPath, "model", opts.Model, "resume", opts.RemoteSessionID != "")

	cmd := exec.Command(cliPath, args...)
	cmd.Dir = workingDir
	cmd.Env = commandEnv(os.Environ())
	// Stdin stays nil: the child reads /dev/null and sees EOF at once.

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return s.spawnFailed(sessionID, log, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return s.spawnFailed(sessionID, log, err)
	}
	if err := cmd.Start(); err != nil {
		return s.spawnFailed(sessionID, log, err)
	}

	r := &run{sessionID: sessionID, cmd: cmd, log: log.With("pid", cmd.Process.Pid)}
	s.table.put(sessionID, r)
	go s.supervise(r, stdout, stderr)
	return nil
}

func (s *Service) spawnFailed(sessionID string, log *slog.Logger, err error) error {
	log.Error("failed to start CLI", "error", err)
	s.queue.push(Event{SessionID: sessionID, Type: EventGenericError, Message: fmt.Sprintf("Failed to start CLI: %v", err)})
	s.queue.push(Event{SessionID: sessionID, Type: EventComplete})
	return &SpawnError{SessionID: sessionID, Cause: err}
}

// supervise reads the run's output until EOF, then reaps the process. It is
// the only caller of cmd.Wait.
func (s *Service) supervise(r *run, stdout, stderr io.ReadCloser) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.drainStderr(r, stderr)
	}()

	streamLog := openStreamLog(r)
	if streamLog != nil {
		defer streamLog.Close()
	}

	lines := &LineBuffer{}
	dec := newDecoder(r.log)
	buf := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			for _, line := range lines.Feed(string(buf[:n])) {
				s.handleLine(r, dec, line, streamLog)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, os.ErrClosed) {
				r.log.Debug("error reading stdout", "error", err)
			}
			break
		}
	}
	wg.Wait()

	if rest, ok := lines.Flush(); ok {
		s.handleLine(r, dec, rest, streamLog)
	}

	err := r.cmd.Wait()
	r.log.Debug("process exited", "error", err)
	s.finish(r, exitCode(r.cmd))
}

func (s *Service) handleLine(r *run, dec *decoder, line string, streamLog io.Writer) {
	if streamLog != nil {
		fmt.Fprintln(streamLog, line)
	}
	events := dec.decode(line)
	if len(events) == 0 {
		return
	}

	var pending *PendingMessage
	for _, ev := range events {
		if ev.Type == EventStreamingText || ev.Type == EventToolUse {
			pending = dec.pending()
			break
		}
	}
	s.emit(r, events, pending)
}

// drainStderr logs diagnostics and raises one AuthError per run when the
// CLI asks for a login.
func (s *Service) drainStderr(r *run, stderr io.Reader) {
	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	authReported := false
	for scanner.Scan() {
		line := scanner.Text()
		r.log.Debug("stderr", "line", line)
		if !authReported && IsAuthError(line) {
			authReported = true
			s.emit(r, []Event{{Type: EventAuthError, Message: AuthRequiredMessage}}, nil)
		}
	}
	if err := scanner.Err(); err != nil {
		r.log.Debug("error reading stderr", "error", err)
	}
}

// emit publishes events for r unless r has already finished. Output that
// arrives after an abort is dropped here.
func (s *Service) emit(r *run, events []Event, pending *PendingMessage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}

	if pending != nil {
		s.table.setPending(r.sessionID, pending)
	}
	for _, ev := range events {
		ev.SessionID = r.sessionID
		if ev.Type == EventInit && ev.RemoteSessionID != "" {
			s.table.setRemoteID(r.sessionID, ev.RemoteSessionID)
		}
		s.queue.push(ev)
	}
}

// finish emits r's Complete unless an abort already did.
func (s *Service) finish(r *run, code *int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished {
		return
	}
	r.finished = true
	s.table.removeIf(r.sessionID, r)
	s.queue.push(Event{SessionID: r.sessionID, Type: EventComplete, ExitCode: code})
	if code != nil {
		r.log.Info("run complete", "exitCode", *code)
	}
}

// exitCode is nil when the process was killed by a signal.
func exitCode(cmd *exec.Cmd) *int {
	if cmd.ProcessState == nil {
		return nil
	}
	code := cmd.ProcessState.ExitCode()
	if code < 0 {
		return nil
	}
	return &code
}

// Abort terminates the session's live run, if any, and emits its Complete
// with a nil exit code before returning. Aborting a session with no live
// run does nothing.
func (s *Service) Abort(sessionID string) {
	r := s.table.take(sessionID)
	if r == nil {
		return
	}

	r.log.Info("aborting run")
	if err := process.Terminate(r.cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
		r.log.Warn("failed to signal process", "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.finished {
		r.finished = true
		s.queue.push(Event{SessionID: sessionID, Type: EventComplete})
	}
}

// AbortAll aborts every live run and forgets all remote session ids and
// pending messages.
func (s *Service) AbortAll() {
	for _, id := range s.table.runningIDs() {
		s.Abort(id)
	}
	s.table.reset()
}

// Close aborts everything and closes the Events channel. Events already
// queued are delivered for a few seconds if someone is reading; after that
// they are dropped so the dispatcher never outlives the service.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.AbortAll()
		s.queue.close()
	})
}

// GetRemoteSessionID returns the CLI session id last reported for
// sessionID, or "".
func (s *Service) GetRemoteSessionID(sessionID string) string {
	return s.table.remoteID(sessionID)
}

func (s *Service) IsRunning(sessionID string) bool {
	return s.table.isRunning(sessionID)
}

// RunningSessions returns the ids of sessions with a live run.
func (s *Service) RunningSessions() []string {
	return s.table.runningIDs()
}

func (s *Service) HasAnyRunning() bool {
	return len(s.table.runningIDs()) > 0
}

// RunningPIDs returns the OS pids of all live runs.
func (s *Service) RunningPIDs() map[int]bool {
	return s.table.pids()
}

// GetPendingMessage returns a copy of the session's in-flight message, or
// nil.
func (s *Service) GetPendingMessage(sessionID string) *PendingMessage {
	return s.table.getPending(sessionID)
}

func (s *Service) ClearPendingMessage(sessionID string) {
	s.table.clearPending(sessionID)
}

// ClearSession aborts the session's run and forgets its remote id so the
// next message starts a new conversation.
func (s *Service) ClearSession(sessionID string) {
	s.Abort(sessionID)
	s.table.clearSession(sessionID)
}

func openStreamLog(r *run) *os.File {
	if !logger.DebugEnabled() {
		return nil
	}
	path, err := logger.StreamLogPath(r.sessionID)
	if err != nil {
		return nil
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		r.log.Debug("failed to open stream log", "path", path, "error", err)
		return nil
	}
	return f
}
