// Package server exposes the HTTP API, static frontend and the
// WebSocket chat endpoint.
package server

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"CaseChat/internal/casestore"
	"CaseChat/internal/chat"
	"CaseChat/internal/gateway"
	"CaseChat/internal/identity"
	"CaseChat/internal/review"
	"CaseChat/internal/store"
)

// ChatCompleter is the upstream surface the proxy endpoint needs.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req gateway.Request) (*gateway.Response, error)
}

// ControllerFactory builds a chat controller whose assistant replies are
// spoken through the given speaker. Each WebSocket connection gets its
// own controller, so two browser tabs never share an interview.
type ControllerFactory func(speaker chat.Speaker) *chat.Controller

// Options wires the server's collaborators.
type Options struct {
	Sessions  *store.Store
	Cases     *casestore.Store
	Proxy     ChatCompleter
	APIKeySet bool
	Reviews   *review.Generator
	Identity  *identity.Manager
	NewChat   ControllerFactory
	StaticDir string
	Logger    *slog.Logger
}

// Server routes HTTP and WebSocket traffic to the application core.
type Server struct {
	echo      *echo.Echo
	sessions  *store.Store
	cases     *casestore.Store
	proxy     ChatCompleter
	apiKeySet bool
	reviews   *review.Generator
	identity  *identity.Manager
	newChat   ControllerFactory
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// New creates the server and registers all routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	s := &Server{
		echo:      e,
		sessions:  opts.Sessions,
		cases:     opts.Cases,
		proxy:     opts.Proxy,
		apiKeySet: opts.APIKeySet,
		reviews:   opts.Reviews,
		identity:  opts.Identity,
		newChat:   opts.NewChat,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}

	e.GET("/health", s.health)

	e.GET("/cases", s.listCases)
	e.POST("/cases", s.createCase)
	e.PUT("/cases/:name", s.updateCase)
	e.DELETE("/cases/:name", s.deleteCase)

	e.GET("/get-sessions", s.getSessions)
	e.POST("/save-session", s.saveSession)
	e.DELETE("/sessions/:id", s.deleteSession)
	e.DELETE("/sessions", s.deleteAllSessions)
	e.POST("/sessions/:id/review", s.reviewSession)

	e.POST("/api/openai", s.proxyOpenAI)
	e.POST("/login", s.login)

	e.GET("/ws/chat", s.handleChat)

	if opts.StaticDir != "" {
		e.Static("/", opts.StaticDir)
	}

	return s
}

// Start begins serving on addr and blocks until shutdown.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
