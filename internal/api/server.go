// Package api serves the JSON HTTP endpoints.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"pumpwatch/internal/observability"
	"pumpwatch/internal/storage"
)

// Config holds server configuration.
type Config struct {
	Addr         string
	CORSOrigins  []string // empty allows any origin
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultConfig returns the default server configuration. The write timeout
// leaves room for the synchronous refresh and discovery triggers.
func DefaultConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server wires the router, middleware and handlers.
type Server struct {
	router   *mux.Router
	server   *http.Server
	handlers *Handlers
	config   Config
}

// NewServer creates the HTTP server.
func NewServer(config Config, store storage.TokenStore, fetch TokenFetcher, triggers Triggers) *Server {
	if config.Addr == "" {
		config.Addr = DefaultConfig().Addr
	}

	s := &Server{
		router:   mux.NewRouter(),
		handlers: NewHandlers(store, fetch, triggers),
		config:   config,
	}
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(requestIDMiddleware)
	s.router.Use(loggingMiddleware)
	s.router.Use(corsMiddleware(s.config.CORSOrigins))

	// Preflight requests need a matching route before mux runs any
	// middleware; the CORS middleware answers them before this handler.
	s.router.PathPrefix("/").Methods(http.MethodOptions).
		HandlerFunc(func(http.ResponseWriter, *http.Request) {})

	// Prometheus endpoint stays outside the JSON subrouter: it speaks the
	// text exposition format.
	s.router.Handle("/metrics", observability.Handler()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/health", s.handlers.Health).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handlers.Status).Methods(http.MethodGet)

	// The analysis route registers ahead of the {address} routes so mux
	// does not capture "pumpfun" as an address.
	api.HandleFunc("/token-data/pumpfun/analysis", s.handlers.Analysis).Methods(http.MethodGet)

	api.HandleFunc("/token-data", s.handlers.ListTokens).Methods(http.MethodGet)
	api.HandleFunc("/token-data/refresh", s.handlers.RefreshTokens).Methods(http.MethodPost)
	api.HandleFunc("/token-data/discover", s.handlers.DiscoverTokens).Methods(http.MethodPost)
	api.HandleFunc("/token-data/{address}", s.handlers.GetToken).Methods(http.MethodGet)
	api.HandleFunc("/token-data/{address}/details", s.handlers.GetTokenDetails).Methods(http.MethodGet)
	api.HandleFunc("/cleanup", s.handlers.Cleanup).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
}

// Handler exposes the assembled router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called or the listener fails.
func (s *Server) Start() error {
	log.Info().Str("addr", s.config.Addr).Msg("http server listening")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("http server shutting down")
	return s.server.Shutdown(ctx)
}
