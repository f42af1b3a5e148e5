// Package server exposes games, analysis, advice and the player lobby over
// HTTP, and pushes new states to websocket subscribers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"
	"github.com/gorilla/websocket"
	"github.com/lox/settlersforbots/internal/advice"
	"github.com/lox/settlersforbots/internal/arbiter"
	"github.com/lox/settlersforbots/internal/session"
	"github.com/lox/settlersforbots/internal/store"
)

// EventLog stores auxiliary per-game events.
type EventLog interface {
	AppendEvent(ctx context.Context, ev store.Event) (store.Event, error)
	Events(ctx context.Context, gameID string) ([]store.Event, error)
}

// Services are the collaborators the HTTP layer drives.
type Services struct {
	Games  *arbiter.Arbiter
	Rooms  *session.Rooms
	Advice *advice.Service
	Events EventLog
}

// Options tunes request handling.
type Options struct {
	Address string
	// AutoAdvance runs bots after every accepted submission.
	AutoAdvance bool
	// Simulations is the default rollout count for analysis requests.
	Simulations int
	Clock       quartz.Clock
}

// Server represents the HTTP and WebSocket server
type Server struct {
	opts     Options
	services Services
	logger   *log.Logger
	upgrader websocket.Upgrader
	mux      *http.ServeMux
	http     *http.Server

	connections map[*Connection]bool
	register    chan *Connection
	unregister  chan *Connection
	mu          sync.RWMutex
	runOnce     sync.Once
	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
}

// NewServer creates a server and subscribes it to new log entries.
func NewServer(services Services, opts Options, logger *log.Logger) *Server {
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	if opts.Simulations <= 0 {
		opts.Simulations = defaultSimulations
	}
	ctx, cancel := context.WithCancel(context.Background())

	s := &Server{
		opts:     opts,
		services: services,
		logger:   logger.WithPrefix("server"),
		upgrader: websocket.Upgrader{
			// Browser clients are served from other origins in development.
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		connections: make(map[*Connection]bool),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		ctx:         ctx,
		cancel:      cancel,
	}
	s.mux = s.routes()
	s.unsubscribe = services.Games.Subscribe(s.onEntry)
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("POST /api/games", s.handleCreateGame)
	mux.HandleFunc("GET /api/games", s.handleListGames)
	mux.HandleFunc("DELETE /api/games/{id}", s.handleDeleteGame)
	mux.HandleFunc("GET /api/games/{id}/states/{index}", s.handleGetState)
	mux.HandleFunc("POST /api/games/{id}/actions", s.handlePostAction)
	mux.HandleFunc("GET /api/games/{id}/states/{index}/mcts-analysis", s.handleAnalysis)
	mux.HandleFunc("POST /api/games/{id}/states/{index}/negotiation-advice", s.handleAdvice)
	mux.HandleFunc("GET /api/games/{id}/events", s.handleEvents)
	mux.HandleFunc("GET /api/games/{id}/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/pvp/rooms", s.handleListRooms)
	mux.HandleFunc("POST /api/pvp/rooms", s.handleCreateRoom)
	mux.HandleFunc("GET /api/pvp/rooms/{id}/status", s.handleRoomStatus)
	mux.HandleFunc("POST /api/pvp/rooms/{id}/join", s.handleJoinRoom)
	mux.HandleFunc("POST /api/pvp/rooms/{id}/leave", s.handleLeaveRoom)
	mux.HandleFunc("POST /api/pvp/rooms/{id}/start", s.handleStartRoom)
	mux.HandleFunc("GET /api/pvp/rooms/{id}/game", s.handleRoomGame)
	mux.HandleFunc("POST /api/pvp/rooms/{id}/action", s.handleRoomAction)
	return mux
}

// Handler returns the HTTP handler and starts the websocket hub.
func (s *Server) Handler() http.Handler {
	s.runOnce.Do(func() { go s.run() })
	return s.mux
}

// Start serves on the configured address until Shutdown.
func (s *Server) Start() error {
	s.http = &http.Server{
		Addr:              s.opts.Address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", "addr", s.opts.Address)
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and closes every websocket.
func (s *Server) Shutdown(ctx context.Context) error {
	s.unsubscribe()
	s.cancel()

	s.mu.Lock()
	for conn := range s.connections {
		_ = conn.Close() // Ignore close errors during shutdown
	}
	s.mu.Unlock()

	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// run handles connection lifecycle
func (s *Server) run() {
	for {
		select {
		case conn := <-s.register:
			s.mu.Lock()
			s.connections[conn] = true
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("Client connected", "game", conn.GameID(), "total", total)

		case conn := <-s.unregister:
			s.mu.Lock()
			if _, ok := s.connections[conn]; ok {
				delete(s.connections, conn)
				_ = conn.Close() // Ignore close errors during unregistration
			}
			total := len(s.connections)
			s.mu.Unlock()
			s.logger.Info("Client disconnected", "game", conn.GameID(), "total", total)

		case <-s.ctx.Done():
			return
		}
	}
}

// onEntry pushes a newly appended state to the game's subscribers.
func (s *Server) onEntry(gameID string, e store.Entry) {
	if !s.hasSubscribers(gameID) {
		return
	}
	seats, err := s.services.Games.Seats(s.ctx, gameID)
	if err != nil {
		s.logger.Warn("Failed to load seats for broadcast", "game", gameID, "error", err)
		return
	}
	msg, err := NewMessage(MessageTypeState, gameID, newGameView(gameID, e, seats), s.opts.Clock.Now())
	if err != nil {
		s.logger.Error("Failed to encode state message", "game", gameID, "error", err)
		return
	}
	s.broadcastState(gameID, e.Index, msg)
}

func (s *Server) hasSubscribers(gameID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for conn := range s.connections {
		if conn.GameID() == gameID {
			return true
		}
	}
	return false
}

// BroadcastToGame sends a message to all connections watching a game
func (s *Server) BroadcastToGame(gameID string, msg *Message) {
	s.broadcast(gameID, msg, func(c *Connection) error { return c.SendMessage(msg) })
}

func (s *Server) broadcastState(gameID string, index int, msg *Message) {
	s.broadcast(gameID, msg, func(c *Connection) error { return c.SendState(index, msg) })
}

func (s *Server) broadcast(gameID string, msg *Message, send func(*Connection) error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for conn := range s.connections {
		if conn.GameID() != gameID {
			continue
		}
		if err := send(conn); err != nil {
			s.logger.Warn("Failed to send message to client", "error", err, "game", gameID)
		} else {
			count++
		}
	}
	s.logger.Debug("Broadcasted message to game", "game", gameID, "type", msg.Type, "recipients", count)
}

// handleWebSocket subscribes a client to a game's new states, starting with
// the latest one. The connection drops a snapshot that a concurrent
// broadcast already overtook.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	gameID := r.PathValue("id")
	seats, err := s.services.Games.Seats(r.Context(), gameID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewConnection(conn, gameID, s.logger)
	select {
	case s.register <- client:
	case <-s.ctx.Done():
		_ = client.Close()
		return
	}
	client.Start()

	go func() {
		<-client.Done()
		select {
		case s.unregister <- client:
		case <-s.ctx.Done():
		}
	}()

	latest, err := s.services.Games.Read(s.ctx, gameID, store.Latest)
	if err != nil {
		s.logger.Warn("Failed to read initial state", "game", gameID, "error", err)
		return
	}
	first, err := NewMessage(MessageTypeState, gameID, newGameView(gameID, latest, seats), s.opts.Clock.Now())
	if err != nil {
		s.logger.Error("Failed to encode state message", "game", gameID, "error", err)
		return
	}
	_ = client.SendState(latest.Index, first)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "OK") // Ignore write errors for health check
}
