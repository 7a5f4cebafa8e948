package terminal

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhubert/cristal-core/exec"
	"github.com/zhubert/cristal-core/logger"
)

const (
	defaultCols = 80
	defaultRows = 24

	// defaultInputDelay lets a headless command finish starting up before
	// scripted input arrives.
	defaultInputDelay = 500 * time.Millisecond
)

// Session describes a live terminal session.
type Session struct {
	ID          string      `json:"id"`
	BackendType BackendType `json:"backendType"`
	Profile     Profile     `json:"profile"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// EventKind identifies an Event.
type EventKind int

const (
	EventData EventKind = iota
	EventExit
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventData:
		return "data"
	case EventExit:
		return "exit"
	case EventError:
		return "error"
	}
	return "unknown"
}

// Event is output from one session.
type Event struct {
	SessionID string
	Kind      EventKind
	Data      []byte
	ExitCode  int
	Err       error
}

// Settings configure the registry.
type Settings struct {
	PythonPath     string
	DefaultProfile string
	Profiles       []Profile
}

type entry struct {
	backend Backend
	session Session
	// sink receives this session's events instead of the shared stream.
	sink chan Event
}

// Service is the terminal session registry. Each session pairs a Session
// record with a live Backend and is removed when its process exits or is
// killed.
type Service struct {
	mu         sync.RWMutex
	sessions   map[string]*entry
	settings   Settings
	workingDir string

	factory    BackendFactory
	executor   exec.CommandExecutor
	goos       string
	inputDelay time.Duration
	probe      *interpreterProbe

	events    chan Event
	wg        sync.WaitGroup
	closed    bool
	closeOnce sync.Once
	log       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithBackendFactory replaces the native backends.
func WithBackendFactory(f BackendFactory) Option {
	return func(s *Service) { s.factory = f }
}

// WithExecutor sets the executor used to probe for an interpreter.
func WithExecutor(e exec.CommandExecutor) Option {
	return func(s *Service) { s.executor = e }
}

// WithPlatform overrides runtime.GOOS.
func WithPlatform(goos string) Option {
	return func(s *Service) { s.goos = goos }
}

// WithInputDelay sets how long headless execution waits before writing
// scripted input.
func WithInputDelay(d time.Duration) Option {
	return func(s *Service) { s.inputDelay = d }
}

// NewService creates a registry whose shells start in workingDir.
func NewService(workingDir string, settings Settings, opts ...Option) *Service {
	s := &Service{
		sessions:   make(map[string]*entry),
		workingDir: workingDir,
		factory:    DefaultBackendFactory,
		executor:   exec.GetDefaultExecutor(),
		goos:       runtime.GOOS,
		inputDelay: defaultInputDelay,
		events:     make(chan Event, 256),
		log:        logger.WithComponent("terminal"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if len(settings.Profiles) == 0 {
		settings.Profiles = defaultProfilesFor(s.goos)
	}
	s.settings = settings
	s.probe = newInterpreterProbe(s.executor, s.pythonPath, s.goos)
	return s
}

// Events returns the stream of output from interactive sessions. It must be
// drained; a session's output stalls while the stream is full.
func (s *Service) Events() <-chan Event {
	return s.events
}

// SetWorkingDir sets the directory new sessions start in.
func (s *Service) SetWorkingDir(dir string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workingDir = dir
}

// UpdateSettings replaces the profile settings. An interpreter override
// only takes effect if no session has been created and InterpreterAvailable
// has not been called yet; the search runs once.
func (s *Service) UpdateSettings(settings Settings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(settings.Profiles) == 0 {
		settings.Profiles = s.settings.Profiles
	}
	s.settings = settings
}

func (s *Service) pythonPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.PythonPath
}

// Profiles returns the configured profiles.
func (s *Service) Profiles() []Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Profile(nil), s.settings.Profiles...)
}

// InterpreterAvailable reports whether an interpreter was found, probing on
// first use.
func (s *Service) InterpreterAvailable() bool {
	return s.probe.find() != ""
}

// profile resolves id to a profile: the named one, else the default
// profile, else the first configured one.
func (s *Service) profile(id string) Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()

	profiles := s.settings.Profiles
	for _, want := range []string{id, s.settings.DefaultProfile} {
		if want == "" {
			continue
		}
		for _, p := range profiles {
			if p.ID == want {
				return p
			}
		}
	}
	if len(profiles) > 0 {
		return profiles[0]
	}
	return defaultProfilesFor(s.goos)[0]
}

// CreateSession starts a shell for profileID. An empty id is replaced with a
// generated one.
func (s *Service) CreateSession(id, profileID string) (Session, error) {
	p := s.profile(profileID)

	s.mu.RLock()
	dir := s.workingDir
	s.mu.RUnlock()

	opts := SpawnOptions{
		Shell: p.Shell,
		Args:  p.Args,
		Dir:   dir,
		Env:   profileEnv(environ(nil), p),
		Cols:  defaultCols,
		Rows:  defaultRows,
	}
	return s.start(id, p, opts, nil)
}

func (s *Service) start(id string, p Profile, opts SpawnOptions, sink chan Event) (Session, error) {
	if id == "" {
		id = uuid.New().String()
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Session{}, ErrServiceClosed
	}
	if _, exists := s.sessions[id]; exists {
		s.mu.Unlock()
		return Session{}, fmt.Errorf("%w: %s", ErrSessionExists, id)
	}
	// Reserve the id while the process starts.
	e := &entry{sink: sink}
	s.sessions[id] = e
	s.mu.Unlock()

	backend, err := newBackend(s.factory, Choose(s.probe.find()))
	if err == nil {
		err = backend.Spawn(opts)
	}
	if err != nil {
		s.mu.Lock()
		delete(s.sessions, id)
		s.mu.Unlock()
		return Session{}, fmt.Errorf("spawn %s: %w", opts.Shell, err)
	}

	session := Session{
		ID:          id,
		BackendType: backend.Type(),
		Profile:     p,
		CreatedAt:   time.Now(),
	}
	s.mu.Lock()
	if s.closed {
		delete(s.sessions, id)
		s.mu.Unlock()
		backend.Kill()
		return Session{}, ErrServiceClosed
	}
	e.backend = backend
	e.session = session
	s.wg.Add(1)
	s.mu.Unlock()

	log := s.log.With("sessionID", id)
	if backend.Type() == BackendFallback {
		log.Info("terminal running in limited mode, no interpreter found")
	}
	log.Debug("session created", "backend", backend.Type(), "profile", p.ID)

	go s.forward(id, e)
	return session, nil
}

// forward relays a backend's output until it closes, then drops the
// session from the registry.
func (s *Service) forward(id string, e *entry) {
	defer s.wg.Done()

	out := s.events
	if e.sink != nil {
		out = e.sink
		defer close(e.sink)
	}

	for o := range e.backend.Output() {
		ev := Event{SessionID: id}
		switch o.Kind {
		case OutputData:
			ev.Kind, ev.Data = EventData, o.Data
		case OutputExit:
			ev.Kind, ev.ExitCode = EventExit, o.ExitCode
			s.remove(id, e)
		case OutputError:
			ev.Kind, ev.Err = EventError, o.Err
			s.remove(id, e)
		}
		out <- ev
	}
	s.remove(id, e)
}

// remove deletes id only while it still refers to e.
func (s *Service) remove(id string, e *entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.sessions[id]; ok && cur == e {
		delete(s.sessions, id)
	}
}

func (s *Service) backend(id string) (Backend, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok || e.backend == nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return e.backend, nil
}

// GetSession returns the session record for id.
func (s *Service) GetSession(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.sessions[id]
	if !ok || e.backend == nil {
		return Session{}, false
	}
	return e.session, true
}

// ActiveSessions returns the ids of live sessions.
func (s *Service) ActiveSessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.sessions))
	for id, e := range s.sessions {
		if e.backend != nil {
			ids = append(ids, id)
		}
	}
	return ids
}

// WriteToSession sends input to a session.
func (s *Service) WriteToSession(id string, data []byte) error {
	b, err := s.backend(id)
	if err != nil {
		return err
	}
	return b.Write(data)
}

// ResizeSession changes a session's window size.
func (s *Service) ResizeSession(id string, cols, rows uint16) error {
	b, err := s.backend(id)
	if err != nil {
		return err
	}
	return b.Resize(cols, rows)
}

// KillSession kills a session's process and removes it. Unknown ids are a
// no-op.
func (s *Service) KillSession(id string) {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok && e.backend != nil {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if !ok || e.backend == nil {
		return
	}
	if err := e.backend.Kill(); err != nil {
		s.log.Debug("kill failed", "sessionID", id, "error", err)
	}
}

// KillAll kills every session.
func (s *Service) KillAll() {
	for _, id := range s.ActiveSessions() {
		s.KillSession(id)
	}
}

// Close kills every session and closes the event stream once their output
// has been delivered.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.KillAll()
		go func() {
			s.wg.Wait()
			close(s.events)
		}()
	})
}
