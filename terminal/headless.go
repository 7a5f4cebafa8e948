package terminal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhubert/cristal-core/process"
)

const (
	DefaultHeadlessTimeout = 5 * time.Second

	headlessCols = 120
	headlessRows = 40
)

// headlessPathDirs lists tool install locations that a process launched
// outside a login shell may be missing from PATH.
func headlessPathDirs(home string) []string {
	dirs := []string{"/usr/local/bin", "/opt/homebrew/bin"}
	if home != "" {
		dirs = append(dirs,
			filepath.Join(home, ".nvm/versions/node/v22/bin"),
			filepath.Join(home, ".nvm/versions/node/v20/bin"),
			filepath.Join(home, ".nvm/versions/node/v18/bin"),
			filepath.Join(home, ".npm-global/bin"),
			filepath.Join(home, ".local/bin"),
		)
	}
	return append(dirs, "/usr/bin", "/bin")
}

// ExecuteHeadless runs command without a visible terminal, writes input once
// the process has had time to start, and returns everything it printed.
//
// It returns when the process exits, when the backend reports an error
// (ErrHeadlessFailed), or when timeout elapses. A timeout is not an error:
// the output collected so far is returned. The session is killed and
// removed on every path.
func (s *Service) ExecuteHeadless(ctx context.Context, command, input string, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = DefaultHeadlessTimeout
	}

	home, _ := os.UserHomeDir()
	s.mu.RLock()
	dir := s.workingDir
	s.mu.RUnlock()

	id := "headless-" + uuid.New().String()
	log := s.log.With("sessionID", id)
	opts := SpawnOptions{
		Shell: command,
		Dir:   dir,
		Env:   process.PrependPath(environ(nil), headlessPathDirs(home)...),
		Cols:  headlessCols,
		Rows:  headlessRows,
	}

	sink := make(chan Event, 64)
	if _, err := s.start(id, s.profile(""), opts, sink); err != nil {
		log.Debug("headless spawn failed", "command", command, "error", err)
		return "", fmt.Errorf("%w: %v", ErrHeadlessFailed, err)
	}

	deadline := time.NewTimer(timeout)
	inputTimer := time.NewTimer(s.inputDelay)
	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			deadline.Stop()
			inputTimer.Stop()
			s.KillSession(id)
			// The forwarder closes sink once the process is gone.
			go func() {
				for range sink {
				}
			}()
		})
	}
	defer cleanup()

	var out bytes.Buffer
	for {
		select {
		case ev, ok := <-sink:
			if !ok {
				return out.String(), nil
			}
			switch ev.Kind {
			case EventData:
				out.Write(ev.Data)
			case EventExit:
				log.Debug("headless exited", "code", ev.ExitCode, "bytes", out.Len())
				return out.String(), nil
			case EventError:
				log.Debug("headless error", "error", ev.Err)
				return "", fmt.Errorf("%w: %v", ErrHeadlessFailed, ev.Err)
			}
		case <-inputTimer.C:
			if input == "" {
				continue
			}
			if err := s.WriteToSession(id, []byte(input)); err != nil {
				log.Debug("headless input not written", "error", err)
			}
		case <-deadline.C:
			log.Debug("headless timeout, returning collected output", "bytes", out.Len())
			return out.String(), nil
		case <-ctx.Done():
			return out.String(), ctx.Err()
		}
	}
}
