// Package api provides HTTP handlers and the main API server logic for
// dreamstone.
//
// It exposes RESTful endpoints for reader accounts, chapter text, reading
// progress, and the AI prompt flows. The API integrates with the auth,
// flow, genai, novel and store modules.
package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dreamstone/dreamstone/internal/auth"
	"github.com/dreamstone/dreamstone/internal/flow"
	"github.com/dreamstone/dreamstone/internal/genai"
	"github.com/dreamstone/dreamstone/internal/store"
)

const (
	// DefaultAddr is the default listen address for the API server.
	DefaultAddr = ":8080"
	// DefaultFlowTimeout bounds a single flow execution, including the
	// provider call.
	DefaultFlowTimeout = 60 * time.Second
)

// Opts holds configuration options for the API server.
type Opts struct {
	Addr        string        // listen address
	FlowTimeout time.Duration // per-request timeout around flow execution
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the API server listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithFlowTimeout sets the per-request flow execution timeout.
func WithFlowTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.FlowTimeout = d
	}
}

// Server carries the dependencies of the HTTP handlers.
type Server struct {
	addr        string
	st          store.Store
	engine      *flow.Engine
	authSvc     *auth.Service
	flowTimeout time.Duration
}

// NewServer assembles a server from its dependencies. Used directly by
// tests; production wiring goes through Run.
func NewServer(st store.Store, engine *flow.Engine, authSvc *auth.Service, opts ...Option) *Server {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	flowTimeout := cfg.FlowTimeout
	if flowTimeout <= 0 {
		flowTimeout = DefaultFlowTimeout
	}
	return &Server{
		addr:        addr,
		st:          st,
		engine:      engine,
		authSvc:     authSvc,
		flowTimeout: flowTimeout,
	}
}

// Handler builds the route table for the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/register", s.registerHandler)
	mux.HandleFunc("/auth/login", s.loginHandler)
	mux.HandleFunc("/me", s.authSvc.Middleware(s.meHandler))
	mux.HandleFunc("/chapters", s.authSvc.Middleware(s.chaptersHandler))
	mux.HandleFunc("/chapters/", s.authSvc.Middleware(s.chaptersHandler))
	mux.HandleFunc("/progress", s.authSvc.Middleware(s.progressHandler))
	mux.HandleFunc("/flows", s.flowsHandler)
	mux.HandleFunc("/flows/", s.authSvc.Middleware(s.flowExecuteHandler))
	mux.HandleFunc("/analytics", s.authSvc.Middleware(s.analyticsHandler))
	mux.HandleFunc("/health", s.healthHandler)
	mux.HandleFunc("/stats", s.statsHandler)
	return mux
}

// Run wires up the modules from their options and serves the API. It blocks
// until the listener fails.
func Run(storeOpts []store.Option, genaiOpts []genai.Option, authOpts []auth.Option, apiOpts []Option) error {
	st, err := buildStore(storeOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	var client flow.ModelClient
	gaClient, err := genai.NewClient(genaiOpts...)
	if err != nil {
		// Flows with a fallback still answer without a provider; strict
		// flows report errors.
		slog.Warn("GenAI client unavailable, flows will use failure policies", "error", err)
	} else {
		client = gaClient
	}
	engine := flow.NewEngine(client)

	authSvc, err := auth.NewService(authOpts...)
	if err != nil {
		return fmt.Errorf("failed to initialize auth service: %w", err)
	}

	s := NewServer(st, engine, authSvc, apiOpts...)
	slog.Info("dreamstone API listening", "addr", s.addr)
	return http.ListenAndServe(s.addr, s.Handler())
}

// buildStore selects a store backend from the configured options.
func buildStore(storeOpts []store.Option) (store.Store, error) {
	var cfg store.Opts
	for _, opt := range storeOpts {
		opt(&cfg)
	}
	if cfg.DSN == "" {
		slog.Info("No database DSN configured, using in-memory store")
		return store.NewInMemoryStore(), nil
	}
	if store.DetectDSNType(cfg.DSN) == "postgres" {
		slog.Info("Using Postgres store")
		return store.NewPostgresStore(storeOpts...)
	}
	slog.Info("Using SQLite store", "path", cfg.DSN)
	return store.NewSQLiteStore(storeOpts...)
}
