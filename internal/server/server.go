/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/andref2015/train-agent/internal/api"
	"github.com/andref2015/train-agent/internal/audit"
	"github.com/andref2015/train-agent/internal/browser"
	"github.com/andref2015/train-agent/internal/cities"
	"github.com/andref2015/train-agent/internal/config"
	"github.com/andref2015/train-agent/internal/db"
	"github.com/andref2015/train-agent/internal/eventbus"
	"github.com/andref2015/train-agent/internal/events"
	"github.com/andref2015/train-agent/internal/fetcher"
	"github.com/andref2015/train-agent/internal/logbuffer"
	"github.com/andref2015/train-agent/internal/telemetry"
	"github.com/andref2015/train-agent/internal/trains"
)

// ScheduleLocation is the zone "today" and "tomorrow" are resolved in.
const ScheduleLocation = "Europe/Tallinn"

// Server bundles HTTP and supporting services.
type Server struct {
	cfg           *config.Config
	logger        zerolog.Logger
	router        chi.Router
	httpServer    *http.Server
	metricsServer *http.Server
	closers       []func() error

	launcher  browser.Launcher
	nodeID    string
	bus       events.PubSub
	pool      *browser.Pool
	trains    *trains.Service
	db        *gorm.DB
	auditSvc  *audit.Service
	logBuffer *logbuffer.Buffer
	api       *api.API

	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
}

// New constructs the server and wires dependencies. Browser sessions are
// real Chrome processes driven by rod.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	rodCfg := browser.DefaultRodConfig()
	rodCfg.Bin = cfg.BrowserBin
	rodCfg.Headless = cfg.BrowserHeadless
	rodCfg.Settle = cfg.FetchSettle
	return newServer(cfg, logBuf, browser.NewRodLauncher(rodCfg, logger), logger)
}

func newServer(cfg *config.Config, logBuf *logbuffer.Buffer, launcher browser.Launcher, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("train-agent-api"))
	router.Use(telemetry.MetricsMiddleware)
	// Queries are bounded by QueryTimeout; leave room to write the error.
	router.Use(middleware.Timeout(cfg.QueryTimeout + 5*time.Second))

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		launcher:  launcher,
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.QueryTimeout + 10*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	if cfg.MetricsBind != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", telemetry.Handler())
		srv.metricsServer = &http.Server{
			Addr:              cfg.MetricsBind,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return srv, nil
}

// securityHeadersMiddleware sets baseline headers for a JSON-only API.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	s.nodeID = s.cfg.InstanceID
	if s.nodeID == "" {
		s.nodeID = eventbus.NodeID()
	}

	redisCfg := eventbus.DefaultRedisConfig()
	redisCfg.Addr = s.cfg.RedisAddr
	redisCfg.Password = s.cfg.RedisPassword
	redisCfg.DB = s.cfg.RedisDB
	natsCfg := eventbus.DefaultNATSConfig()
	natsCfg.URL = s.cfg.NATSURL

	bus, err := eventbus.New(eventbus.Config{
		Backend: s.cfg.EventBus,
		NodeID:  s.nodeID,
		Redis:   redisCfg,
		NATS:    natsCfg,
	}, s.logger)
	if err != nil {
		return fmt.Errorf("create event bus: %w", err)
	}
	s.bus = bus
	s.DeferClose(bus.Close)
	s.logger.Info().Str("backend", s.cfg.EventBus).Str("node_id", s.nodeID).Msg("event bus ready")

	resolver := cities.Default()
	if s.cfg.CitiesFile != "" {
		resolver, err = cities.LoadFile(s.cfg.CitiesFile)
		if err != nil {
			return fmt.Errorf("load cities: %w", err)
		}
		s.logger.Info().Str("path", s.cfg.CitiesFile).Strs("cities", resolver.Names()).Msg("city table loaded")
	}

	s.pool = browser.NewPool(s.launcher, s.cfg.BrowserMaxSessions, s.logger)
	f := fetcher.New(s.pool, fetcher.Config{
		BaseURL:        s.cfg.SourceBaseURL,
		Retries:        s.cfg.FetchRetries,
		AttemptTimeout: s.cfg.FetchAttemptTimeout,
		Backoff:        s.cfg.FetchBackoff,
	}, s.bus, s.logger)

	loc, err := time.LoadLocation(ScheduleLocation)
	if err != nil {
		s.logger.Warn().Err(err).Str("zone", ScheduleLocation).Msg("time zone unavailable, using local time")
		loc = time.Local
	}

	s.trains = trains.NewService(resolver, f, s.bus, trains.Config{
		Defaults: s.cfg.QueryDefaults(),
		Timeout:  s.cfg.QueryTimeout,
		Location: loc,
		NodeID:   s.nodeID,
	}, s.logger)

	if s.cfg.QueryLogEnabled() {
		database, err := db.Connect(s.cfg.DBBackend, s.cfg.DBDSN, s.logger)
		if err != nil {
			return err
		}
		s.db = database
		s.DeferClose(func() error { return db.Close(database) })
		if err := db.Migrate(database); err != nil {
			return err
		}
		s.auditSvc = audit.NewService(database, s.bus, s.logger)
		s.logger.Info().Str("backend", string(s.cfg.DBBackend)).Msg("query log enabled")
	}

	if s.cfg.JWTSigningKey == "" {
		s.logger.Warn().Msg("TRAINAGENT_JWT_SIGNING_KEY is empty; system endpoints will reject every request")
	}

	s.api = api.New(s.trains, s.auditSvc, s.logBuffer, []byte(s.cfg.JWTSigningKey), s.logger)
	return nil
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer returns the API server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// MetricsServer returns the metrics server, or nil when metrics are served
// on the API router.
func (s *Server) MetricsServer() *http.Server {
	return s.metricsServer
}

// LogBuffer returns the in-memory log buffer.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Close stops background workers and releases resources in reverse order.
func (s *Server) Close() error {
	s.stopBackgroundWorkers()
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}

// DeferClose registers fn to run on Close.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	if s.auditSvc == nil && s.db == nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.bgCancel = cancel

	if s.db != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			ticker := time.NewTicker(30 * time.Second)
			defer ticker.Stop()

			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					db.UpdateConnectionMetrics(s.db)
				}
			}
		}()
	}

	if s.auditSvc != nil {
		s.bgWG.Add(1)
		go func() {
			defer s.bgWG.Done()
			s.auditSvc.Start(ctx)
		}()
	}
}

func (s *Server) stopBackgroundWorkers() {
	if s.bgCancel == nil {
		return
	}
	s.bgCancel()
	s.bgWG.Wait()
	s.bgCancel = nil
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"ok","browser_sessions_in_use":%d,"browser_sessions":%d}`, s.pool.InUse(), s.pool.Size())
	})

	if s.cfg.MetricsBind == "" {
		s.router.Handle("/metrics", telemetry.Handler())
	}

	s.api.Routes(s.router)
}
