package terminal

import (
	"bytes"
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhubert/cristal-core/exec"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
}

// newShellService runs real processes on the pipe backend.
func newShellService(t *testing.T, profiles ...Profile) *Service {
	t.Helper()
	if len(profiles) == 0 {
		profiles = []Profile{{ID: "sh", Name: "sh", Shell: "/bin/sh"}}
	}
	s := NewService(t.TempDir(), Settings{Profiles: profiles},
		WithExecutor(exec.NewMockExecutor()),
		WithInputDelay(50*time.Millisecond),
	)
	t.Cleanup(s.Close)
	return s
}

// readUntil collects events for id until done reports true.
func readUntil(t *testing.T, s *Service, id string, done func(out []byte, ev Event) bool) ([]byte, Event) {
	t.Helper()
	var out bytes.Buffer
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			if ev.SessionID != id {
				continue
			}
			if ev.Kind == EventData {
				out.Write(ev.Data)
			}
			if done(out.Bytes(), ev) {
				return out.Bytes(), ev
			}
		case <-timeout:
			t.Fatalf("timed out; output so far: %q", out.String())
		}
	}
}

func TestService_ShellRoundTrip(t *testing.T) {
	skipOnWindows(t)
	s := newShellService(t)

	sess, err := s.CreateSession("t1", "sh")
	require.NoError(t, err)
	assert.Equal(t, "t1", sess.ID)
	assert.Equal(t, BackendFallback, sess.BackendType)
	assert.Equal(t, "sh", sess.Profile.ID)
	assert.False(t, sess.CreatedAt.IsZero())

	got, ok := s.GetSession("t1")
	require.True(t, ok)
	assert.Equal(t, sess, got)

	// A bare carriage return ends the line on the pipe backend.
	require.NoError(t, s.WriteToSession("t1", []byte("echo hello-from-sh\r")))
	out, _ := readUntil(t, s, "t1", func(out []byte, _ Event) bool {
		return bytes.Contains(out, []byte("hello-from-sh"))
	})
	assert.Contains(t, string(out), "hello-from-sh")

	require.NoError(t, s.ResizeSession("t1", 100, 30))

	require.NoError(t, s.WriteToSession("t1", []byte("exit 3\n")))
	_, ev := readUntil(t, s, "t1", func(_ []byte, ev Event) bool { return ev.Kind == EventExit })
	assert.Equal(t, 3, ev.ExitCode)

	_, ok = s.GetSession("t1")
	assert.False(t, ok, "exited session should be removed")
	assert.ErrorIs(t, s.WriteToSession("t1", []byte("x")), ErrSessionNotFound)
}

func TestService_StderrIsForwarded(t *testing.T) {
	skipOnWindows(t)
	s := newShellService(t, Profile{ID: "err", Shell: "/bin/sh", Args: []string{"-c", "echo oops >&2"}})

	_, err := s.CreateSession("e", "err")
	require.NoError(t, err)

	out, ev := readUntil(t, s, "e", func(_ []byte, ev Event) bool { return ev.Kind == EventExit })
	assert.Contains(t, string(out), "oops")
	assert.Equal(t, 0, ev.ExitCode)
}

func TestService_WorkingDirAndProfileEnv(t *testing.T) {
	skipOnWindows(t)
	s := newShellService(t, Profile{
		ID:    "env",
		Shell: "/bin/sh",
		Args:  []string{"-c", `pwd; echo "flavor=$CRISTAL_FLAVOR"`},
		Env:   map[string]string{"CRISTAL_FLAVOR": "mint"},
	})
	dir := t.TempDir()
	s.SetWorkingDir(dir)

	_, err := s.CreateSession("w", "env")
	require.NoError(t, err)

	out, _ := readUntil(t, s, "w", func(_ []byte, ev Event) bool { return ev.Kind == EventExit })
	assert.Contains(t, string(out), filepath.Base(dir))
	assert.Contains(t, string(out), "flavor=mint")
}

func TestService_KillSession(t *testing.T) {
	skipOnWindows(t)
	s := newShellService(t)

	_, err := s.CreateSession("k", "sh")
	require.NoError(t, err)
	assert.Equal(t, []string{"k"}, s.ActiveSessions())

	s.KillSession("k")
	_, ok := s.GetSession("k")
	assert.False(t, ok)

	_, ev := readUntil(t, s, "k", func(_ []byte, ev Event) bool { return ev.Kind == EventExit })
	assert.Equal(t, -1, ev.ExitCode)

	// Unknown ids are ignored.
	s.KillSession("k")
	s.KillSession("never-existed")
}

func TestService_KillAll(t *testing.T) {
	skipOnWindows(t)
	s := newShellService(t)

	for _, id := range []string{"a", "b", "c"} {
		_, err := s.CreateSession(id, "sh")
		require.NoError(t, err)
	}
	assert.ElementsMatch(t, []string{"a", "b", "c"}, s.ActiveSessions())

	s.KillAll()
	assert.Empty(t, s.ActiveSessions())
}

func TestService_HeadlessWithPipeBackend(t *testing.T) {
	skipOnWindows(t)
	s := newShellService(t)

	out, err := s.ExecuteHeadless(context.Background(), "/bin/cat", "ping\n", 500*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "ping\n", out)
	assert.Empty(t, s.ActiveSessions())
}

func TestService_GeneratedAndDuplicateIDs(t *testing.T) {
	b := newFakeBackend(BackendFallback, nil)
	s := newFakeService(t, factoryFor(b))

	sess, err := s.CreateSession("", "")
	require.NoError(t, err)
	assert.Len(t, sess.ID, 36)

	_, err = s.CreateSession(sess.ID, "")
	assert.ErrorIs(t, err, ErrSessionExists)
}

func TestService_SpawnOptionsFromProfile(t *testing.T) {
	b := newFakeBackend(BackendFallback, nil)
	s := newFakeService(t, factoryFor(b))
	s.UpdateSettings(Settings{
		DefaultProfile: "fish",
		Profiles: []Profile{
			{ID: "sh", Shell: "/bin/sh"},
			{ID: "fish", Shell: "/usr/bin/fish", Args: []string{"--login"}},
		},
	})

	sess, err := s.CreateSession("f", "")
	require.NoError(t, err)
	assert.Equal(t, "fish", sess.Profile.ID)

	opts := b.spawnOptions()
	assert.Equal(t, "/usr/bin/fish", opts.Shell)
	assert.Equal(t, []string{"--login"}, opts.Args)
	assert.Equal(t, uint16(80), opts.Cols)
	assert.Equal(t, uint16(24), opts.Rows)

	require.NoError(t, s.WriteToSession("f", []byte("ls\r")))
	assert.Equal(t, []string{"ls\r"}, b.written())
}

func TestService_ProfileResolution(t *testing.T) {
	s := NewService("", Settings{
		DefaultProfile: "zsh",
		Profiles: []Profile{
			{ID: "bash", Shell: "/bin/bash"},
			{ID: "zsh", Shell: "/bin/zsh"},
		},
	}, WithExecutor(exec.NewMockExecutor()))

	assert.Equal(t, "bash", s.profile("bash").ID)
	assert.Equal(t, "zsh", s.profile("").ID)
	assert.Equal(t, "zsh", s.profile("missing").ID)

	s.UpdateSettings(Settings{DefaultProfile: "gone"})
	assert.Equal(t, "bash", s.profile("").ID, "falls back to the first profile")
	assert.Len(t, s.Profiles(), 2, "empty profile list keeps the current profiles")
}

func TestService_UnknownSession(t *testing.T) {
	s := NewService("", Settings{}, WithExecutor(exec.NewMockExecutor()))

	assert.ErrorIs(t, s.WriteToSession("nope", []byte("x")), ErrSessionNotFound)
	assert.ErrorIs(t, s.ResizeSession("nope", 1, 1), ErrSessionNotFound)
	_, ok := s.GetSession("nope")
	assert.False(t, ok)
}

func TestService_Close(t *testing.T) {
	b := newFakeBackend(BackendFallback, nil)
	s := NewService("", Settings{}, WithBackendFactory(factoryFor(b)), WithExecutor(exec.NewMockExecutor()))

	_, err := s.CreateSession("x", "")
	require.NoError(t, err)

	s.Close()
	s.Close()
	assert.True(t, b.wasKilled())

	_, err = s.CreateSession("y", "")
	assert.ErrorIs(t, err, ErrServiceClosed)

	// The stream closes after the killed session's exit is delivered.
	var kinds []EventKind
	for ev := range s.Events() {
		kinds = append(kinds, ev.Kind)
	}
	assert.Equal(t, []EventKind{EventExit}, kinds)
}

func TestEventKind_String(t *testing.T) {
	assert.Equal(t, "data", EventData.String())
	assert.Equal(t, "exit", EventExit.String())
	assert.Equal(t, "error", EventError.String())
	assert.Equal(t, "unknown", EventKind(9).String())
}
