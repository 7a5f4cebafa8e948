package claude

import (
	"log/slog"
	"os/exec"
	"sync"
)

// run is one spawned CLI process. finished flips exactly once, under mu,
// when the run's Complete event is queued; nothing is emitted after that.
type run struct {
	sessionID string
	cmd       *exec.Cmd
	log       *slog.Logger

	mu       sync.Mutex
	finished bool
}

// sessionTable maps session ids to their live run, the remote session id
// reported by the CLI, and the in-flight pending message.
type sessionTable struct {
	mu        sync.Mutex
	runs      map[string]*run
	remoteIDs map[string]string
	pending   map[string]*PendingMessage
}

func newSessionTable() *sessionTable {
	return &sessionTable{
		runs:      make(map[string]*run),
		remoteIDs: make(map[string]string),
		pending:   make(map[string]*PendingMessage),
	}
}

func (t *sessionTable) put(sessionID string, r *run) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.runs[sessionID] = r
}

// take removes and returns the live run for sessionID, or nil.
func (t *sessionTable) take(sessionID string) *run {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := t.runs[sessionID]
	delete(t.runs, sessionID)
	return r
}

// removeIf deletes the entry for sessionID only if it still points at r,
// so a finished run never evicts its successor.
func (t *sessionTable) removeIf(sessionID string, r *run) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.runs[sessionID] == r {
		delete(t.runs, sessionID)
	}
}

func (t *sessionTable) isRunning(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.runs[sessionID]
	return ok
}

func (t *sessionTable) runningIDs() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := make([]string, 0, len(t.runs))
	for id := range t.runs {
		ids = append(ids, id)
	}
	return ids
}

// pids returns the OS pids of all live runs.
func (t *sessionTable) pids() map[int]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[int]bool, len(t.runs))
	for _, r := range t.runs {
		if r.cmd != nil && r.cmd.Process != nil {
			out[r.cmd.Process.Pid] = true
		}
	}
	return out
}

func (t *sessionTable) setRemoteID(sessionID, remoteID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remoteIDs[sessionID] = remoteID
}

func (t *sessionTable) remoteID(sessionID string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remoteIDs[sessionID]
}

func (t *sessionTable) setPending(sessionID string, p *PendingMessage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[sessionID] = p
}

func (t *sessionTable) getPending(sessionID string) *PendingMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending[sessionID].clone()
}

func (t *sessionTable) clearPending(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.pending, sessionID)
}

// clearSession forgets the remote id and pending message for sessionID.
func (t *sessionTable) clearSession(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.remoteIDs, sessionID)
	delete(t.pending, sessionID)
}

// reset drops every remote id and pending message. Live runs are untouched.
func (t *sessionTable) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remoteIDs = make(map[string]string)
	t.pending = make(map[string]*PendingMessage)
}
