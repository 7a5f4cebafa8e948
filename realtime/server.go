// Package realtime bridges the chat orchestrator and the terminal registry
// to WebSocket clients. Every client receives every event; commands from any
// client are applied to the shared services.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhubert/cristal-core/claude"
	"github.com/zhubert/cristal-core/logger"
	"github.com/zhubert/cristal-core/terminal"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
	sendBuffer    = 256
)

// ChatService is the part of claude.Service the bridge drives.
type ChatService interface {
	Events() <-chan claude.Event
	SendMessage(sessionID, prompt string, opts claude.SendOptions) error
	Abort(sessionID string)
	ClearSession(sessionID string)
	RunningSessions() []string
}

// TerminalService is the part of terminal.Service the bridge drives.
type TerminalService interface {
	Events() <-chan terminal.Event
	CreateSession(id, profileID string) (terminal.Session, error)
	WriteToSession(id string, data []byte) error
	ResizeSession(id string, cols, rows uint16) error
	KillSession(id string)
	ActiveSessions() []string
	GetSession(id string) (terminal.Session, bool)
}

// Server fans service events out to WebSocket clients.
type Server struct {
	chat ChatService
	term TerminalService
	log  *slog.Logger

	upgrader       websocket.Upgrader
	allowedOrigins map[string]bool

	clientsMu sync.RWMutex
	clients   map[*client]bool
}

// Option configures a Server.
type Option func(*Server)

// WithAllowedOrigins admits browser connections from the given origins
// (scheme://host[:port]) in addition to same-host pages.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		for _, o := range origins {
			if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
				s.allowedOrigins[strings.ToLower(o)] = true
			}
		}
	}
}

type client struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

// New creates a bridge over chat and term.
func New(chat ChatService, term TerminalService, opts ...Option) *Server {
	s := &Server{
		chat:           chat,
		term:           term,
		log:            logger.WithComponent("realtime"),
		allowedOrigins: make(map[string]bool),
		clients:        make(map[*client]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// checkOrigin admits clients that send no Origin (non-browser tools), pages
// served from the same host, and explicitly allowed origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.allowedOrigins[strings.ToLower(strings.TrimRight(origin, "/"))] {
		return true
	}
	u, err := url.Parse(origin)
	if err == nil && u.Host != "" && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	s.log.Warn("rejected websocket origin", "origin", origin, "host", r.Host)
	return false
}

// Handler returns the bridge's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	return mux
}

// Run forwards service events to clients until ctx is done or both event
// streams close. Terminal output stalls while Run is not draining it.
func (s *Server) Run(ctx context.Context) {
	chatEvents := s.chat.Events()
	termEvents := s.term.Events()

	for chatEvents != nil || termEvents != nil {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-chatEvents:
			if !ok {
				chatEvents = nil
				continue
			}
			s.broadcast(TypeChatEvent, ev)
		case ev, ok := <-termEvents:
			if !ok {
				termEvents = nil
				continue
			}
			s.forwardTerminal(ev)
		}
	}
}

func (s *Server) forwardTerminal(ev terminal.Event) {
	switch ev.Kind {
	case terminal.EventData:
		s.broadcast(TypeTerminalOutput, TerminalOutputPayload{SessionID: ev.SessionID, Data: string(ev.Data)})
	case terminal.EventExit:
		s.broadcast(TypeTerminalExit, TerminalExitPayload{SessionID: ev.SessionID, ExitCode: ev.ExitCode})
	case terminal.EventError:
		s.broadcast(TypeTerminalError, TerminalErrorPayload{SessionID: ev.SessionID, Message: ev.Err.Error()})
	}
}

func (s *Server) snapshot() SnapshotPayload {
	running := s.chat.RunningSessions()
	sort.Strings(running)

	ids := s.term.ActiveSessions()
	sort.Strings(ids)
	terms := make([]TerminalInfo, 0, len(ids))
	for _, id := range ids {
		if sess, ok := s.term.GetSession(id); ok {
			terms = append(terms, terminalInfo(sess))
		}
	}
	return SnapshotPayload{ChatRunning: running, Terminals: terms}
}

func terminalInfo(sess terminal.Session) TerminalInfo {
	return TerminalInfo{
		SessionID:   sess.ID,
		BackendType: string(sess.BackendType),
		ProfileID:   sess.Profile.ID,
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.snapshot()); err != nil {
		s.log.Debug("encode sessions", "error", err)
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err)
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer), server: s}

	// The snapshot is queued before the client can receive broadcasts, so
	// it is always the first message.
	c.reply(TypeSnapshot, s.snapshot())

	s.clientsMu.Lock()
	s.clients[c] = true
	s.clientsMu.Unlock()
	s.log.Debug("client connected", "remote", r.RemoteAddr)

	go c.writePump()
	go c.readPump()
}

func (s *Server) removeClient(c *client) {
	s.clientsMu.Lock()
	if s.clients[c] {
		delete(s.clients, c)
		close(c.send)
	}
	s.clientsMu.Unlock()
}

// broadcast queues a message for every client. Clients with a full buffer
// miss it.
func (s *Server) broadcast(msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		s.log.Error("encode message", "type", msgType, "error", err)
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			s.log.Warn("client buffer full, dropping message", "type", msgType)
		}
	}
}

func encode(msgType string, payload any) ([]byte, error) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// reply queues a message for this client only. It is called from the read
// loop, which is the only path that closes send.
func (c *client) reply(msgType string, payload any) {
	data, err := encode(msgType, payload)
	if err != nil {
		c.server.log.Error("encode message", "type", msgType, "error", err)
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *client) replyError(code string, err error) {
	c.reply(TypeError, ErrorPayload{Code: code, Message: err.Error()})
}

func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.log.Debug("websocket read error", "error", err)
			}
			return
		}
		c.handle(raw)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) handle(raw []byte) {
	msg, err := decodeClientMessage(raw)
	if err != nil {
		c.replyError(ErrInvalidMessage, err)
		return
	}

	chat, term := c.server.chat, c.server.term
	switch msg.Type {
	case TypeChatSend:
		var p ChatSendPayload
		if !c.decode(msg, &p) {
			return
		}
		err := chat.SendMessage(p.SessionID, p.Prompt, claude.SendOptions{
			RemoteSessionID: p.RemoteSessionID,
			Model:           p.Model,
		})
		if err != nil {
			code := ErrInvalidMessage
			var spawnErr *claude.SpawnError
			if errors.As(err, &spawnErr) {
				code = ErrSpawnFailed
			}
			c.replyError(code, err)
		}

	case TypeChatAbort, TypeChatClear:
		var p SessionIDPayload
		if !c.decode(msg, &p) {
			return
		}
		if msg.Type == TypeChatAbort {
			chat.Abort(p.SessionID)
		} else {
			chat.ClearSession(p.SessionID)
		}

	case TypeTerminalCreate:
		var p TerminalCreatePayload
		if !c.decode(msg, &p) {
			return
		}
		sess, err := term.CreateSession(p.SessionID, p.ProfileID)
		if err != nil {
			c.replyError(ErrSpawnFailed, err)
			return
		}
		c.server.broadcast(TypeTerminalCreated, terminalInfo(sess))

	case TypeTerminalInput:
		var p TerminalInputPayload
		if !c.decode(msg, &p) {
			return
		}
		if err := term.WriteToSession(p.SessionID, []byte(p.Data)); err != nil {
			c.replyError(ErrSessionNotFound, err)
		}

	case TypeTerminalResize:
		var p TerminalResizePayload
		if !c.decode(msg, &p) {
			return
		}
		if err := term.ResizeSession(p.SessionID, p.Cols, p.Rows); err != nil {
			c.replyError(ErrSessionNotFound, err)
		}

	case TypeTerminalKill:
		var p SessionIDPayload
		if !c.decode(msg, &p) {
			return
		}
		term.KillSession(p.SessionID)
	}
}

func (c *client) decode(msg *Message, v any) bool {
	if err := json.Unmarshal(msg.Payload, v); err != nil {
		c.replyError(ErrInvalidMessage, err)
		return false
	}
	return true
}

var (
	_ ChatService     = (*claude.Service)(nil)
	_ TerminalService = (*terminal.Service)(nil)
)
