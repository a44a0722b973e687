// Package gateway exposes the session orchestrator, registry, PTY/RPC
// session managers, thread engine, and teams driver behind one HTTP+WS
// API: a single /ws endpoint multiplexing every action by name.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/pi-gateway/pi-gateway/internal/agent"
	"github.com/pi-gateway/pi-gateway/internal/chatstore"
	"github.com/pi-gateway/pi-gateway/internal/common/config"
	"github.com/pi-gateway/pi-gateway/internal/common/logger"
	"github.com/pi-gateway/pi-gateway/internal/events/bus"
	"github.com/pi-gateway/pi-gateway/internal/pty"
	"github.com/pi-gateway/pi-gateway/internal/registry"
	"github.com/pi-gateway/pi-gateway/internal/rpcsession"
	"github.com/pi-gateway/pi-gateway/internal/session"
	"github.com/pi-gateway/pi-gateway/internal/teams"
	"github.com/pi-gateway/pi-gateway/internal/thread"
	"github.com/pi-gateway/pi-gateway/pkg/wsproto"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server bundles every gateway collaborator behind one HTTP+WS surface.
type Server struct {
	cfg        *config.Config
	logger     *logger.Logger
	eventBus   bus.EventBus
	chatStore  chatstore.Store
	registry   *registry.Registry
	sessions   *session.Manager
	pty        *pty.Manager
	rpc        *rpcsession.Manager
	threads    *thread.Engine
	teams      *teams.Driver
	hub        *Hub
	dispatcher *wsproto.Dispatcher
	engine     *gin.Engine

	sessionModeMu sync.RWMutex
	sessionMode   map[string]string // session ID -> pinned agent ID override
}

// New wires every gateway collaborator from cfg and registers its HTTP/WS
// routes on a fresh gin.Engine.
func New(cfg *config.Config) (*Server, error) {
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("gateway: build logger: %w", err)
	}

	eb, err := buildEventBus(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("gateway: build event bus: %w", err)
	}

	store, err := chatstore.Open(cfg.ChatDB.DSN)
	if err != nil {
		return nil, fmt.Errorf("gateway: open chat store: %w", err)
	}

	reg := registry.New(cfg.Agent.PreferredOrder, time.Duration(cfg.Agent.HealthTTLMs)*time.Millisecond, log)
	for _, w := range agent.DefaultWrappers() {
		reg.Register(w)
	}

	s := &Server{
		cfg:         cfg,
		logger:      log,
		eventBus:    eb,
		chatStore:   store,
		registry:    reg,
		pty:         pty.NewManager(log),
		sessionMode: make(map[string]string),
	}
	s.rpc = rpcsession.NewManager(log)
	s.threads = thread.NewEngine(s.rpc, log)

	s.sessions = session.NewManager(s.sessionFactory, log)

	teamsDriver, err := teams.NewDriver(cfg.Teams.BaseDir, cfg.Teams.CoordinatorBinary, eb, log)
	if err != nil {
		return nil, fmt.Errorf("gateway: build teams driver: %w", err)
	}
	s.teams = teamsDriver

	s.dispatcher = wsproto.NewDispatcher()
	s.registerHandlers()
	s.hub = NewHub(s.dispatcher, log)

	gin.SetMode(gin.ReleaseMode)
	s.engine = gin.New()
	s.engine.Use(gin.Recovery())
	s.registerRoutes()

	return s, nil
}

func buildEventBus(cfg *config.Config, log *logger.Logger) (bus.EventBus, error) {
	switch cfg.Events.Mode {
	case "nats":
		return bus.NewNATSBus(bus.NATSConfig{URL: cfg.Events.NATSURL}, log)
	default:
		return bus.NewMemoryBus(log), nil
	}
}

// sessionFactory builds a *session.Session wired to this server's registry,
// chat store, and event bus, plus a routing middleware honoring any pinned
// agent override set via session.mode.
func (s *Server) sessionFactory(ctx context.Context, id string) (*session.Session, error) {
	return session.New(ctx, session.Config{
		ID:       id,
		WorkDir:  s.cfg.Agent.WorkDir,
		Executor: s.registry,
		Store:    s.chatStore,
		EventBus: s.eventBus,
		Logger:   s.logger,
		Middlewares: []session.Middleware{
			session.MiddlewareFunc(func(ctx context.Context, sess *session.Session, prompt string) session.MiddlewareResult {
				if agentID, ok := s.pinnedAgent(id); ok {
					return session.MiddlewareResult{Decision: session.DecisionRoute, AgentID: agentID}
				}
				return session.MiddlewareResult{Decision: session.DecisionPass}
			}),
		},
	})
}

func (s *Server) pinnedAgent(sessionID string) (string, bool) {
	s.sessionModeMu.RLock()
	defer s.sessionModeMu.RUnlock()
	id, ok := s.sessionMode[sessionID]
	return id, ok && id != ""
}

func (s *Server) setPinnedAgent(sessionID, agentID string) {
	s.sessionModeMu.Lock()
	defer s.sessionModeMu.Unlock()
	s.sessionMode[sessionID] = agentID
}

func (s *Server) registerRoutes() {
	s.engine.GET("/ws", s.handleWebSocket)
	s.engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "clients": s.hub.ClientCount()})
	})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	if !s.authenticate(c.Request) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err == nil {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(closeCodeUnauthorized, "unauthorized"), time.Now().Add(time.Second))
			_ = conn.Close()
		}
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	client := NewClient(uuid.NewString(), conn, s.hub, s.logger)
	s.hub.Register(client)
	go client.WritePump()
	client.ReadPump(c.Request.Context())
}

// Engine returns the underlying gin.Engine, for tests and for http.ListenAndServe.
func (s *Server) Engine() *gin.Engine { return s.engine }

// Run starts the hub loop and blocks the HTTP server on cfg.Server.Host:Port
// until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	go s.hub.Run(ctx)

	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		s.teams.StopAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
