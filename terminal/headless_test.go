package terminal

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhubert/cristal-core/exec"
)

func newFakeService(t *testing.T, factory BackendFactory, opts ...Option) *Service {
	t.Helper()
	opts = append([]Option{
		WithBackendFactory(factory),
		WithExecutor(exec.NewMockExecutor()),
		WithInputDelay(20 * time.Millisecond),
	}, opts...)
	s := NewService(t.TempDir(), Settings{}, opts...)
	t.Cleanup(s.Close)
	return s
}

func TestExecuteHeadless_ExitBeforeTimeout(t *testing.T) {
	b := newFakeBackend(BackendFallback, func(b *fakeBackend) {
		time.Sleep(100 * time.Millisecond)
		b.send("status: ok\n")
		b.finish(Output{Kind: OutputExit})
	})
	s := newFakeService(t, factoryFor(b))

	start := time.Now()
	out, err := s.ExecuteHeadless(context.Background(), "claude", "/status\r", 5*time.Second)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "status: ok\n", out)
	assert.Less(t, elapsed, 2*time.Second)
	assert.Empty(t, s.ActiveSessions())
}

func TestExecuteHeadless_TimeoutReturnsCollectedOutput(t *testing.T) {
	b := newFakeBackend(BackendFallback, func(b *fakeBackend) {
		b.send("partial")
	})
	s := newFakeService(t, factoryFor(b))

	start := time.Now()
	out, err := s.ExecuteHeadless(context.Background(), "claude", "", 300*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "partial", out)
	assert.GreaterOrEqual(t, elapsed, 300*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
	assert.True(t, b.wasKilled(), "timed out process should be killed")
	assert.Empty(t, s.ActiveSessions())
}

func TestExecuteHeadless_SpawnFailure(t *testing.T) {
	b := newFakeBackend(BackendFallback, nil)
	b.spawnErr = errors.New("exec: no such file")
	s := newFakeService(t, factoryFor(b))

	start := time.Now()
	out, err := s.ExecuteHeadless(context.Background(), "missing-cli", "x", 5*time.Second)

	require.ErrorIs(t, err, ErrHeadlessFailed)
	assert.Empty(t, out)
	assert.Less(t, time.Since(start), time.Second)
	assert.Empty(t, s.ActiveSessions())
}

func TestExecuteHeadless_ErrorEvent(t *testing.T) {
	b := newFakeBackend(BackendFallback, func(b *fakeBackend) {
		b.send("some output")
		b.finish(Output{Kind: OutputError, Err: errors.New("read failed")})
	})
	s := newFakeService(t, factoryFor(b))

	out, err := s.ExecuteHeadless(context.Background(), "claude", "", 5*time.Second)

	require.ErrorIs(t, err, ErrHeadlessFailed)
	assert.Empty(t, out)
}

func TestExecuteHeadless_WritesInputAfterDelay(t *testing.T) {
	b := newFakeBackend(BackendFallback, func(b *fakeBackend) {
		for len(b.written()) == 0 {
			time.Sleep(5 * time.Millisecond)
		}
		b.send("got " + b.written()[0])
		b.finish(Output{Kind: OutputExit})
	})
	s := newFakeService(t, factoryFor(b))

	out, err := s.ExecuteHeadless(context.Background(), "claude", "/usage\r", 5*time.Second)

	require.NoError(t, err)
	assert.Equal(t, "got /usage\r", out)
}

func TestExecuteHeadless_SpawnOptions(t *testing.T) {
	b := newFakeBackend(BackendFallback, func(b *fakeBackend) {
		b.finish(Output{Kind: OutputExit})
	})
	s := newFakeService(t, factoryFor(b))
	dir := t.TempDir()
	s.SetWorkingDir(dir)

	out, err := s.ExecuteHeadless(context.Background(), "claude", "", time.Second)
	require.NoError(t, err)
	assert.Empty(t, out)

	opts := b.spawnOptions()
	assert.Equal(t, "claude", opts.Shell)
	assert.Empty(t, opts.Args)
	assert.Equal(t, dir, opts.Dir)
	assert.Equal(t, uint16(120), opts.Cols)
	assert.Equal(t, uint16(40), opts.Rows)

	var path string
	for _, kv := range opts.Env {
		if strings.HasPrefix(kv, "PATH=") {
			path = strings.TrimPrefix(kv, "PATH=")
		}
	}
	assert.True(t, strings.HasPrefix(path, "/usr/local/bin:/opt/homebrew/bin:"), "PATH = %q", path)
	assert.Contains(t, path, ".npm-global/bin")
}

func TestExecuteHeadless_ContextCancel(t *testing.T) {
	b := newFakeBackend(BackendFallback, nil)
	s := newFakeService(t, factoryFor(b))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	_, err := s.ExecuteHeadless(ctx, "claude", "", 5*time.Second)

	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, b.wasKilled())
}

func TestExecuteHeadless_DefaultTimeout(t *testing.T) {
	b := newFakeBackend(BackendFallback, func(b *fakeBackend) {
		b.finish(Output{Kind: OutputExit})
	})
	s := newFakeService(t, factoryFor(b))

	_, err := s.ExecuteHeadless(context.Background(), "claude", "", 0)
	require.NoError(t, err)
}

func TestHeadlessPathDirs(t *testing.T) {
	dirs := headlessPathDirs("/home/u")
	assert.Equal(t, []string{
		"/usr/local/bin",
		"/opt/homebrew/bin",
		"/home/u/.nvm/versions/node/v22/bin",
		"/home/u/.nvm/versions/node/v20/bin",
		"/home/u/.nvm/versions/node/v18/bin",
		"/home/u/.npm-global/bin",
		"/home/u/.local/bin",
		"/usr/bin",
		"/bin",
	}, dirs)

	assert.Equal(t, []string{"/usr/local/bin", "/opt/homebrew/bin", "/usr/bin", "/bin"}, headlessPathDirs(""))
}
