// Package exec wraps the short-lived probe commands cristal runs (version
// checks, executable lookup) so tests can substitute canned responses.
package exec

import (
	"context"
	"errors"
	"os/exec"
	"slices"
	"sync"
)

// ErrNotFound is returned by MockExecutor.LookPath for names with no
// registered path.
var ErrNotFound = errors.New("executable not found")

// CommandExecutor runs probe commands.
type CommandExecutor interface {
	// Output runs name with args and returns its stdout.
	Output(ctx context.Context, name string, args ...string) ([]byte, error)

	// CombinedOutput runs name with args and returns stdout and stderr
	// interleaved. Some interpreters print --version to stderr.
	CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error)

	// LookPath resolves name against PATH.
	LookPath(name string) (string, error)
}

// RealExecutor executes commands using os/exec.
type RealExecutor struct{}

// NewRealExecutor returns a new RealExecutor.
func NewRealExecutor() *RealExecutor {
	return &RealExecutor{}
}

func (e *RealExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

func (e *RealExecutor) CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

func (e *RealExecutor) LookPath(name string) (string, error) {
	return exec.LookPath(name)
}

// MockResponse defines the response for a mocked command.
type MockResponse struct {
	Stdout []byte
	Stderr []byte
	Err    error
}

// CommandMatcher reports whether a command matches a rule.
type CommandMatcher func(name string, args []string) bool

type mockRule struct {
	match    CommandMatcher
	response MockResponse
}

// MockCall records a command invocation for verification.
type MockCall struct {
	Name string
	Args []string
}

// MockExecutor returns pre-recorded responses. Rules are matched in
// registration order; unmatched commands fail with ErrNotFound.
type MockExecutor struct {
	mu    sync.RWMutex
	rules []mockRule
	paths map[string]string
	calls []MockCall
}

// NewMockExecutor creates an empty MockExecutor.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{paths: make(map[string]string)}
}

// AddRule adds a matching rule with its response.
func (e *MockExecutor) AddRule(match CommandMatcher, response MockResponse) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.rules = append(e.rules, mockRule{match: match, response: response})
}

// AddExactMatch adds a rule that matches name and args exactly.
func (e *MockExecutor) AddExactMatch(name string, args []string, response MockResponse) {
	e.AddRule(func(n string, a []string) bool {
		return n == name && slices.Equal(a, args)
	}, response)
}

// AddPath makes LookPath(name) succeed with path.
func (e *MockExecutor) AddPath(name, path string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paths[name] = path
}

// GetCalls returns all recorded command invocations.
func (e *MockExecutor) GetCalls() []MockCall {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.calls)
}

func (e *MockExecutor) run(name string, args []string) MockResponse {
	e.mu.Lock()
	e.calls = append(e.calls, MockCall{Name: name, Args: args})
	e.mu.Unlock()

	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, rule := range e.rules {
		if rule.match(name, args) {
			return rule.response
		}
	}
	return MockResponse{Err: ErrNotFound}
}

func (e *MockExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	resp := e.run(name, args)
	return resp.Stdout, resp.Err
}

func (e *MockExecutor) CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	resp := e.run(name, args)
	return append(slices.Clone(resp.Stdout), resp.Stderr...), resp.Err
}

func (e *MockExecutor) LookPath(name string) (string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if p, ok := e.paths[name]; ok {
		return p, nil
	}
	return "", ErrNotFound
}

var _ CommandExecutor = (*RealExecutor)(nil)
var _ CommandExecutor = (*MockExecutor)(nil)

var (
	defaultExecutorMu sync.RWMutex
	defaultExecutor   CommandExecutor = NewRealExecutor()
)

// GetDefaultExecutor returns the global default executor.
func GetDefaultExecutor() CommandExecutor {
	defaultExecutorMu.RLock()
	defer defaultExecutorMu.RUnlock()
	return defaultExecutor
}

// SetDefaultExecutor swaps the global default executor and returns the
// previous one so tests can restore it.
func SetDefaultExecutor(e CommandExecutor) CommandExecutor {
	defaultExecutorMu.Lock()
	defer defaultExecutorMu.Unlock()
	prev := defaultExecutor
	defaultExecutor = e
	return prev
}
