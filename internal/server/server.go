/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/friendsincode/grimnir_autopilot/internal/auth"
	"github.com/friendsincode/grimnir_autopilot/internal/autopilot"
	"github.com/friendsincode/grimnir_autopilot/internal/config"
	"github.com/friendsincode/grimnir_autopilot/internal/db"
	"github.com/friendsincode/grimnir_autopilot/internal/eventbus"
	"github.com/friendsincode/grimnir_autopilot/internal/events"
	"github.com/friendsincode/grimnir_autopilot/internal/journal"
	"github.com/friendsincode/grimnir_autopilot/internal/logbuffer"
	"github.com/friendsincode/grimnir_autopilot/internal/telemetry"
	"github.com/friendsincode/grimnir_autopilot/internal/transition"
	"github.com/friendsincode/grimnir_autopilot/internal/version"
)

// Server bundles HTTP and supporting services.
type Server struct {
	cfg        *config.Config
	logger     zerolog.Logger
	router     chi.Router
	httpServer *http.Server
	closers    []func() error

	bus        *events.Bus
	engine     *transition.Engine
	controller *autopilot.Controller
	journal    *journal.Journal
	bridge     eventbus.Bridge
	logBuffer  *logbuffer.Buffer
	api        *API

	bgCtx    context.Context
	bgCancel context.CancelFunc
	bgWG     sync.WaitGroup
	stopOnce sync.Once
}

// New constructs the server and wires dependencies. logBuf may be nil.
func New(cfg *config.Config, logBuf *logbuffer.Buffer, logger zerolog.Logger) (*Server, error) {
	for _, warn := range cfg.LegacyEnvWarnings {
		logger.Warn().Msg(warn)
	}

	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(securityHeadersMiddleware)
	router.Use(telemetry.TracingMiddleware("grimnir-autopilot-api"))
	router.Use(telemetry.MetricsMiddleware)
	// The stream endpoint is long lived; everything else gets a deadline.
	router.Use(func(next http.Handler) http.Handler {
		timeout := middleware.Timeout(60 * time.Second)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, r)
				return
			}
			timeout(next).ServeHTTP(w, r)
		})
	})

	srv := &Server{
		cfg:       cfg,
		logger:    logger,
		router:    router,
		logBuffer: logBuf,
	}

	if err := srv.initDependencies(); err != nil {
		_ = srv.Close()
		return nil, err
	}

	srv.configureRoutes()
	srv.startBackgroundWorkers()

	srv.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           srv.router,
		ReadHeaderTimeout: 15 * time.Second,
		// WriteTimeout stays 0 for the websocket stream; the middleware
		// timeout covers plain routes.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return srv, nil
}

func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'; base-uri 'none'")

		// Only advertise HSTS for requests served over HTTPS.
		if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) initDependencies() error {
	s.bgCtx, s.bgCancel = context.WithCancel(context.Background())
	s.bus = events.NewBus(s.logger)

	opts := transition.Options{}
	if s.cfg.RitualPresetsFile != "" {
		presets, err := transition.LoadPresets(s.cfg.RitualPresetsFile)
		if err != nil {
			return fmt.Errorf("load ritual presets: %w", err)
		}
		opts.Presets = presets
		s.logger.Info().Str("file", s.cfg.RitualPresetsFile).Int("presets", len(presets)).Msg("ritual presets loaded")
	}
	s.engine = transition.NewEngine(s.bus, s.logger, opts)

	apCfg := s.cfg.Autopilot
	controller, err := autopilot.NewController(s.bus, s.engine, s.logger, autopilot.Options{
		Config:  &apCfg,
		Context: s.bgCtx,
	})
	if err != nil {
		return fmt.Errorf("init autopilot: %w", err)
	}
	s.controller = controller
	s.DeferClose(func() error {
		controller.Close()
		return nil
	})

	if s.cfg.DBDSN != "" {
		database, err := db.Connect(s.cfg)
		if err != nil {
			return err
		}
		s.DeferClose(func() error { return db.Close(database) })
		if err := journal.Migrate(database); err != nil {
			return err
		}
		s.journal = journal.New(database, s.logger)
		s.journal.Attach(s.bus)
		s.DeferClose(func() error {
			s.journal.Detach(s.bus)
			return nil
		})
	} else {
		s.logger.Info().Msg("journal disabled, no database configured")
	}

	redisCfg := eventbus.DefaultRedisConfig()
	redisCfg.Addr = s.cfg.RedisAddr
	redisCfg.Password = s.cfg.RedisPassword
	redisCfg.DB = s.cfg.RedisDB
	natsCfg := eventbus.DefaultNATSConfig()
	natsCfg.URL = s.cfg.NATSURL
	natsCfg.Token = s.cfg.NATSToken

	bridge, err := eventbus.Open(context.Background(), eventbus.Config{
		Backend: s.cfg.EventBusBackend,
		NodeID:  s.cfg.InstanceID,
		Redis:   redisCfg,
		NATS:    natsCfg,
	}, s.bus, s.logger)
	if err != nil {
		// Broker trouble never stops the local autopilot.
		s.logger.Warn().Err(err).Str("backend", s.cfg.EventBusBackend).Msg("event bridge unavailable, running local only")
	} else {
		s.bridge = bridge
		s.DeferClose(bridge.Close)
	}

	var guard func(http.Handler) http.Handler
	if s.cfg.JWTSecret != "" {
		guard = auth.Middleware([]byte(s.cfg.JWTSecret))
	} else {
		s.logger.Warn().Msg("GRIMNIR_JWT_SECRET not set, control routes are unauthenticated")
	}

	s.api = NewAPI(Deps{
		Bus:        s.bus,
		Engine:     s.engine,
		Controller: s.controller,
		Ballot:     transition.NewBallot(s.engine, s.bus, s.logger),
		Journal:    s.journal,
		Logs:       s.logBuffer,
		Limiter:    rate.NewLimiter(rate.Limit(s.cfg.TransitionRateLimit), s.cfg.TransitionRateBurst),
		Auth:       guard,
	}, s.logger)
	return nil
}

// HTTPServer exposes the configured http.Server.
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// LogBuffer returns the buffer behind /api/v1/logs.
func (s *Server) LogBuffer() *logbuffer.Buffer {
	return s.logBuffer
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close releases owned resources in reverse order.
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

// DeferClose registers a cleanup hook.
func (s *Server) DeferClose(fn func() error) {
	s.closers = append(s.closers, fn)
}

func (s *Server) startBackgroundWorkers() {
	ctx := s.bgCtx
	stopListening := s.engine.Listen(ctx)
	s.bgWG.Add(1)
	go func() {
		defer s.bgWG.Done()
		<-ctx.Done()
		stopListening()
	}()

	if s.cfg.AutopilotAutoStart {
		s.controller.Start()
	}
}

func (s *Server) stopBackgroundWorkers() {
	s.stopOnce.Do(func() {
		if s.controller != nil {
			s.controller.Stop()
		}
		if s.bgCancel == nil {
			return
		}
		s.bgCancel()
		s.bgWG.Wait()
		// Cancelling fast-forwards running transitions; wait for them to
		// publish their final frames before the bridge and journal close.
		if s.controller != nil {
			s.controller.Drain()
		}
		if s.engine != nil {
			s.engine.Wait()
		}
		if s.api != nil {
			s.api.Wait()
		}
	})
}

func (s *Server) configureRoutes() {
	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		resp := map[string]any{
			"status":    "ok",
			"autopilot": s.controller.Active(),
			"bus":       s.bus.Stats(),
			"journal":   s.journal != nil,
			"version":   version.Get(),
		}
		if s.bridge != nil {
			resp["node_id"] = s.bridge.NodeID()
		}
		writeJSON(w, http.StatusOK, resp)
	})

	s.router.Handle("/metrics", telemetry.Handler())

	s.router.Route("/api/v1", s.api.Routes)
}
