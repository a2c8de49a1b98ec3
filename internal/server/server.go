package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/lectern-dev/lectern/internal/analysis"
	"github.com/lectern-dev/lectern/internal/api"
	"github.com/lectern-dev/lectern/internal/assets"
	"github.com/lectern-dev/lectern/internal/config"
	"github.com/lectern-dev/lectern/internal/defra"
	"github.com/lectern-dev/lectern/internal/home"
	"github.com/lectern-dev/lectern/internal/library"
	"github.com/lectern-dev/lectern/internal/llmcall"
	"github.com/lectern-dev/lectern/internal/pdfscan"
	"github.com/lectern-dev/lectern/internal/providers"
	"github.com/lectern-dev/lectern/internal/schema"
	"github.com/lectern-dev/lectern/internal/server/endpoints"
	"github.com/lectern-dev/lectern/internal/svcctx"
)

// Server is the main Lectern HTTP server.
// It manages the DefraDB container lifecycle - starting it on server start
// and stopping it on server shutdown.
type Server struct {
	httpServer   *http.Server
	defraManager *defra.DockerManager
	defraClient  *defra.Client
	defraSink    *defra.Sink
	registry     *providers.Registry
	configMgr    *config.Manager
	homeDir      *home.Dir
	analyzer     *analysis.Service
	library      *library.Service
	logger       *slog.Logger

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// Home is the lectern home directory holding blobs and DefraDB data
	Home *home.Dir
	// DefraConfig holds DefraDB container settings
	DefraConfig defra.DockerConfig
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Home == nil {
		return nil, errors.New("home directory is required")
	}

	// DefraDB data persists under the lectern home
	if cfg.DefraConfig.DataPath == "" {
		cfg.DefraConfig.DataPath = cfg.Home.DefraDataPath()
	}

	defraManager, err := defra.NewDockerManager(cfg.DefraConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create defra manager: %w", err)
	}

	// Create provider registry
	registry := providers.NewRegistry()
	registry.SetLogger(cfg.Logger)

	// If config manager provided, set up providers and hot reload
	if cfg.ConfigManager != nil {
		registry.Reload(cfg.ConfigManager.Get().ToProviderRegistryConfig())

		// Watch for config changes
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			registry.Reload(c.ToProviderRegistryConfig())
			cfg.Logger.Info("provider registry reloaded from config")
		})
	}

	s := &Server{
		defraManager: defraManager,
		registry:     registry,
		configMgr:    cfg.ConfigManager,
		homeDir:      cfg.Home,
		logger:       cfg.Logger,
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{DefraManager: defraManager}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server and DefraDB.
// It blocks until the context is cancelled or an error occurs.
// If an existing DefraDB container exists, it validates the configuration matches.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	// Refuse to start over a live instance sharing the same home
	if pid, err := defra.ReadPidFile(s.pidPath()); err == nil && defra.IsProcessAlive(pid) {
		s.setNotRunning()
		return fmt.Errorf("another lectern server (pid %d) is using %s", pid, s.homeDir.Path())
	}
	if err := defra.WritePidFile(s.pidPath()); err != nil {
		s.logger.Warn("failed to write pid file", "error", err)
	}

	// Validate any existing container matches our config
	if err := s.defraManager.ValidateExisting(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("existing DefraDB container incompatible: %w", err)
	}

	// Start DefraDB
	s.logger.Info("starting DefraDB")
	if err := s.defraManager.Start(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to start DefraDB: %w", err)
	}

	// Create client after DefraDB is up
	s.defraClient = defra.NewClient(s.defraManager.URL())

	// Verify DefraDB is healthy
	if err := s.defraClient.HealthCheck(ctx); err != nil {
		_ = s.shutdown() // Clean up DefraDB on failure
		return fmt.Errorf("DefraDB health check failed: %w", err)
	}
	s.logger.Info("DefraDB is ready", "url", s.defraManager.URL())

	// Initialize schemas
	s.logger.Info("initializing schemas")
	if err := schema.Initialize(ctx, s.defraClient, s.logger); err != nil {
		_ = s.shutdown()
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	// Batched writer for telemetry rows
	s.defraSink = defra.NewSink(defra.SinkConfig{
		Client: s.defraClient,
		Logger: s.logger,
	})
	s.defraSink.Start(ctx)

	s.buildServices()

	// Start HTTP server in goroutine
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for context cancellation or error
	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown() // Clean up DefraDB on HTTP error
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// buildServices wires the core services once DefraDB is reachable.
func (s *Server) buildServices() {
	cfg := config.DefaultConfig()
	if s.configMgr != nil {
		cfg = s.configMgr.Get()
	}

	fetcher := assets.NewFetcher(s.homeDir, s.logger)
	scanner := pdfscan.NewScanner()
	extractor := pdfscan.NewPDFCPUExtractor(scanner, s.logger)
	recorder := llmcall.NewRecorder(s.defraSink)

	s.library = library.NewService(s.defraClient, s.homeDir, extractor, s.logger)

	s.analyzer = analysis.NewService(
		analysis.NewDefraRepository(s.defraClient),
		s.registry,
		fetcher,
		extractor,
		recorder,
		s.logger,
		analysis.Options{
			Provider:        cfg.Defaults.LLMProvider,
			Model:           cfg.Analysis.Model,
			Timeout:         time.Duration(cfg.Analysis.TimeoutSeconds) * time.Second,
			MaxExcerptChars: cfg.Analysis.MaxExcerptChars,
			MaxFetchBytes:   cfg.Library.MaxFetchBytes,
		},
	)

	// A shared limiter keyed off the default provider's configured rate.
	if p, ok := cfg.GetLLMProvider(cfg.Defaults.LLMProvider); ok && p.RateLimit > 0 {
		s.analyzer.SetRateLimiter(providers.NewRateLimiter(int(p.RateLimit)))
	}

	s.services = &svcctx.Services{
		DefraClient:  s.defraClient,
		DefraSink:    s.defraSink,
		Registry:     s.registry,
		Analyzer:     s.analyzer,
		Library:      s.library,
		Fetcher:      fetcher,
		Scanner:      scanner,
		Config:       s.configMgr,
		Logger:       s.logger,
		Home:         s.homeDir,
		LLMCallStore: llmcall.NewStore(s.defraClient),
	}
}

// shutdown performs graceful shutdown of both HTTP server and DefraDB.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	// Shutdown HTTP server with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	// Drain pending telemetry writes
	if s.defraSink != nil {
		s.defraSink.Stop()
	}

	// Stop DefraDB
	s.logger.Info("stopping DefraDB")
	if err := s.defraManager.Stop(shutdownCtx); err != nil {
		s.logger.Error("DefraDB stop error", "error", err)
	}

	// Close Docker client
	if err := s.defraManager.Close(); err != nil {
		s.logger.Error("DefraDB manager close error", "error", err)
	}

	defra.RemovePidFile(s.pidPath())

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// DefraClient returns the DefraDB client.
// Returns nil if the server hasn't started yet.
func (s *Server) DefraClient() *defra.Client {
	return s.defraClient
}

// Analyzer returns the analysis service.
// Returns nil if the server hasn't started yet.
func (s *Server) Analyzer() *analysis.Service {
	return s.analyzer
}

// Library returns the library service.
// Returns nil if the server hasn't started yet.
func (s *Server) Library() *library.Service {
	return s.library
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Registry returns the provider registry.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

func (s *Server) pidPath() string {
	return filepath.Join(s.homeDir.Path(), "lectern.pid")
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if s.services != nil {
			ctx = svcctx.WithServices(ctx, s.services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until DefraDB is reachable and services built.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.defraClient == nil || s.services == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
