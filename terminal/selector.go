package terminal

import (
	"github.com/zhubert/cristal-core/logger"
)

// BackendFactory constructs a Backend of the given type.
type BackendFactory func(t BackendType) (Backend, error)

// DefaultBackendFactory builds the native backends.
func DefaultBackendFactory(t BackendType) (Backend, error) {
	if t == BackendPTY {
		return newPTYBackend()
	}
	return newPipeBackend(), nil
}

// Choose picks the backend type. A pseudo-terminal is attempted only when
// an interpreter was found, which also keeps Windows hosts without one on
// the fallback.
func Choose(interpreter string) BackendType {
	if interpreter == "" {
		return BackendFallback
	}
	return BackendPTY
}

// newBackend builds the chosen backend, falling back to pipes when the
// pseudo-terminal cannot be constructed.
func newBackend(factory BackendFactory, want BackendType) (Backend, error) {
	b, err := factory(want)
	if err == nil || want == BackendFallback {
		return b, err
	}
	logger.WithComponent("terminal").Warn("pty backend unavailable, using fallback", "error", err)
	return factory(BackendFallback)
}
