package terminal

import (
	"sync"
)

// fakeBackend is a scripted Backend. script runs in its own goroutine after
// a successful Spawn and may send on out; Kill ends the stream.
type fakeBackend struct {
	typ      BackendType
	spawnErr error
	script   func(b *fakeBackend)

	streamMu sync.Mutex
	out      chan Output
	ended    bool

	mu     sync.Mutex
	opts   SpawnOptions
	writes []string
	size   [2]uint16
	killed bool
}

func newFakeBackend(typ BackendType, script func(b *fakeBackend)) *fakeBackend {
	return &fakeBackend{
		typ:    typ,
		script: script,
		out:    make(chan Output, 64),
	}
}

func (b *fakeBackend) Type() BackendType     { return b.typ }
func (b *fakeBackend) Output() <-chan Output { return b.out }

func (b *fakeBackend) Spawn(opts SpawnOptions) error {
	if b.spawnErr != nil {
		return b.spawnErr
	}
	b.mu.Lock()
	b.opts = opts
	b.mu.Unlock()
	if b.script != nil {
		go b.script(b)
	}
	return nil
}

func (b *fakeBackend) Write(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writes = append(b.writes, string(data))
	return nil
}

func (b *fakeBackend) Resize(cols, rows uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.size = [2]uint16{cols, rows}
	return nil
}

func (b *fakeBackend) Kill() error {
	b.mu.Lock()
	b.killed = true
	b.mu.Unlock()
	b.finish(Output{Kind: OutputExit, ExitCode: -1})
	return nil
}

// send delivers data unless the stream has already ended.
func (b *fakeBackend) send(data string) {
	b.streamMu.Lock()
	defer b.streamMu.Unlock()
	if !b.ended {
		b.out <- Output{Kind: OutputData, Data: []byte(data)}
	}
}

// finish sends the final item and closes the stream once.
func (b *fakeBackend) finish(last Output) {
	b.streamMu.Lock()
	defer b.streamMu.Unlock()
	if b.ended {
		return
	}
	b.ended = true
	b.out <- last
	close(b.out)
}

func (b *fakeBackend) wasKilled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.killed
}

func (b *fakeBackend) written() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.writes...)
}

func (b *fakeBackend) spawnOptions() SpawnOptions {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.opts
}

// factoryFor returns a factory that always hands out b.
func factoryFor(b Backend) BackendFactory {
	return func(BackendType) (Backend, error) { return b, nil }
}
