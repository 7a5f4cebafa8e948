// Package config persists cristal's settings and chat session records.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/zhubert/cristal-core/claude"
	"github.com/zhubert/cristal-core/paths"
)

const (
	// MaxSessions is the number of chat sessions kept on save, newest first.
	MaxSessions = 20

	DefaultCLIPath       = "claude"
	DefaultConfigDirName = ".obsidian"
)

// ChatSession is the persisted record of one chat conversation.
type ChatSession struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	RemoteSessionID string    `json:"remote_session_id,omitempty"` // CLI-side id used for --resume
	Model           string    `json:"model,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// NewChatSession returns a session record with a fresh id.
func NewChatSession(title string) ChatSession {
	now := time.Now()
	return ChatSession{
		ID:        uuid.New().String(),
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Config holds the application configuration
type Config struct {
	CLIPath          string              `json:"cli_path,omitempty"`
	WorkingDir       string              `json:"working_dir,omitempty"`
	ConfigDirName    string              `json:"config_dir_name,omitempty"` // workspace folder hidden from the CLI
	Model            string              `json:"model,omitempty"`
	Permissions      *claude.Permissions `json:"permissions,omitempty"`
	Sessions         []ChatSession       `json:"sessions"`
	CurrentSessionID string              `json:"current_session_id,omitempty"`

	mu       sync.RWMutex
	filePath string
}

// Load reads the config from its default location, or returns defaults if
// the file doesn't exist.
func Load() (*Config, error) {
	path, err := paths.ConfigFilePath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path, or returns defaults if the file doesn't
// exist.
func LoadFrom(path string) (*Config, error) {
	cfg := &Config{filePath: path}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		cfg.ensureInitialized()
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	// Must run before Validate, which only reads.
	cfg.ensureInitialized()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ensureInitialized fills defaults for absent fields. Not thread-safe; only
// call before the Config is shared.
func (c *Config) ensureInitialized() {
	if c.Sessions == nil {
		c.Sessions = []ChatSession{}
	}
	if c.CLIPath == "" {
		c.CLIPath = DefaultCLIPath
	}
	if c.ConfigDirName == "" {
		c.ConfigDirName = DefaultConfigDirName
	}
	if c.Permissions == nil {
		p := claude.DefaultPermissions()
		c.Permissions = &p
	}
}

// Validate checks that the config is internally consistent.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	seen := make(map[string]bool)
	for _, sess := range c.Sessions {
		if sess.ID == "" {
			return fmt.Errorf("session with empty ID found")
		}
		if seen[sess.ID] {
			return fmt.Errorf("duplicate session ID: %s", sess.ID)
		}
		seen[sess.ID] = true
	}
	return nil
}

// Save writes the config to disk, keeping at most MaxSessions sessions.
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.Sessions) > MaxSessions {
		c.Sessions = c.Sessions[:MaxSessions]
	}

	if err := os.MkdirAll(filepath.Dir(c.filePath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.filePath, data, 0644)
}

// SetFilePath sets the config file path (for testing).
func (c *Config) SetFilePath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.filePath = path
}

// FilePath returns where Save writes.
func (c *Config) FilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filePath
}

func (c *Config) GetCLIPath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.CLIPath
}

func (c *Config) SetCLIPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CLIPath = path
}

func (c *Config) GetWorkingDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.WorkingDir
}

func (c *Config) SetWorkingDir(dir string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.WorkingDir = dir
}

func (c *Config) GetConfigDirName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ConfigDirName
}

func (c *Config) GetModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Model
}

func (c *Config) SetModel(model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Model = model
}

// GetPermissions returns a copy of the permission toggles.
func (c *Config) GetPermissions() claude.Permissions {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Permissions == nil {
		return claude.DefaultPermissions()
	}
	return *c.Permissions
}

func (c *Config) SetPermissions(p claude.Permissions) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Permissions = &p
}

// AddSession inserts sess at the front of the session list.
func (c *Config) AddSession(sess ChatSession) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Sessions = append([]ChatSession{sess}, c.Sessions...)
}

// GetSession returns the session with the given id, or nil.
func (c *Config) GetSession(id string) *ChatSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, s := range c.Sessions {
		if s.ID == id {
			cp := s
			return &cp
		}
	}
	return nil
}

// GetSessions returns a copy of all sessions, newest first.
func (c *Config) GetSessions() []ChatSession {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sessions := make([]ChatSession, len(c.Sessions))
	copy(sessions, c.Sessions)
	return sessions
}

// RemoveSession deletes a session. Returns false if it was not found.
func (c *Config) RemoveSession(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.Sessions {
		if s.ID == id {
			c.Sessions = append(c.Sessions[:i], c.Sessions[i+1:]...)
			if c.CurrentSessionID == id {
				c.CurrentSessionID = ""
			}
			return true
		}
	}
	return false
}

// TouchSession records the remote session id from a completed turn and moves
// the session to the front. Returns false if the session is unknown.
func (c *Config) TouchSession(id, remoteSessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.Sessions {
		if s.ID != id {
			continue
		}
		if remoteSessionID != "" {
			s.RemoteSessionID = remoteSessionID
		}
		s.UpdatedAt = time.Now()
		c.Sessions = append(c.Sessions[:i], c.Sessions[i+1:]...)
		c.Sessions = append([]ChatSession{s}, c.Sessions...)
		return true
	}
	return false
}

func (c *Config) GetCurrentSessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.CurrentSessionID
}

func (c *Config) SetCurrentSessionID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CurrentSessionID = id
}
