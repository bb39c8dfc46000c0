package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/funnyzak/gqltap/internal/config"
	"github.com/funnyzak/gqltap/internal/logger"
	"github.com/funnyzak/gqltap/internal/metrics"
	"github.com/funnyzak/gqltap/internal/printer"
	"github.com/funnyzak/gqltap/internal/session"
	"github.com/funnyzak/gqltap/internal/storage"
	"github.com/funnyzak/gqltap/internal/web"
	"github.com/funnyzak/gqltap/pkg/i18n"
)

const shutdownTimeout = 30 * time.Second

// Server wires the session controller to its sinks and serves the HTTP API.
type Server struct {
	config     *config.Config
	logger     logger.Logger
	translator *i18n.Translator
	store      storage.Store
	printer    printer.Printer
	metrics    *metrics.Metrics
	ctrl       *session.Controller
	web        *web.Service
	httpSrv    *http.Server

	stopOnce sync.Once
	stopErr  error
}

// New creates a new server instance. The configuration must already be validated.
func New(cfg *config.Config, log logger.Logger) (*Server, error) {
	translator, err := i18n.NewTranslator("en")
	if err != nil {
		return nil, fmt.Errorf("load locales: %w", err)
	}

	store, err := storage.New(&cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	out := printer.New(&cfg.Output, log, translator)
	opts := session.OptionsFromConfig(&cfg.Session, translator.Bind(cfg.Output.Locale))
	ctrl, err := session.New(opts, store, log, session.PrinterSink(out))
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("create session: %w", err)
	}

	s := &Server{
		config:     cfg,
		logger:     log,
		translator: translator,
		store:      store,
		printer:    out,
		ctrl:       ctrl,
	}

	if cfg.Metrics.Enable {
		s.metrics = metrics.New()
		ctrl.AddSink(s.metrics)
	}

	if cfg.Web.Enable {
		s.web = web.NewService(&cfg.Web, cfg.Server.MaxBodyBytes, ctrl, log)
		if s.metrics != nil {
			gauge := s.metrics.LiveClients
			s.web.Hub().OnClientsChanged(func(n int) { gauge.Set(float64(n)) })
		}
	}

	return s, nil
}

// Controller exposes the session controller.
func (s *Server) Controller() *session.Controller {
	return s.ctrl
}

// Printer returns the configured presentation printer.
func (s *Server) Printer() printer.Printer {
	return s.printer
}

// Labels returns presentation labels for the configured locale.
func (s *Server) Labels() i18n.Labels {
	return s.translator.Bind(s.config.Output.Locale)
}

// Handler builds the HTTP handler: API routes, metrics and health check
// behind the CORS wrapper.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		router.Handle(s.config.Metrics.Path, s.metrics.Handler()).Methods(http.MethodGet)
	}
	if s.web != nil {
		s.web.RegisterRoutes(router)
	}
	router.Use(s.logRequests)
	return withCORS(s.config.Server.CORSAllowOrigin, router)
}

// Start serves until SIGINT or SIGTERM and then shuts down gracefully.
func (s *Server) Start() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return s.Run(ctx)
}

// Run serves until ctx is done or the listener fails. The session ticks once
// per second while running.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Server.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting HTTP server",
		"addr", s.httpSrv.Addr,
		"admin_path", s.config.Web.AdminPath,
		"metrics", s.config.Metrics.Enable,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	tickCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.ctrl.Run(tickCtx)

	var serveErr error
	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server...")
	case err := <-errCh:
		s.logger.Error("Server failed", "error", err)
		serveErr = fmt.Errorf("http server: %w", err)
	}
	cancel()

	if err := s.Stop(); err != nil && serveErr == nil {
		serveErr = err
	}
	s.logger.Info("Server exited")
	return serveErr
}

// Stop shuts the HTTP server down, prints the final statistics and releases
// the live hub and the row store. Only the first call has any effect.
func (s *Server) Stop() error {
	s.stopOnce.Do(func() { s.stopErr = s.stop() })
	return s.stopErr
}

func (s *Server) stop() error {
	var shutdownErr error
	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("Server forced to shutdown", "error", err)
			shutdownErr = err
		}
	}
	if s.web != nil {
		s.web.Close()
	}
	if err := s.printer.PrintStats(s.ctrl.Stats()); err != nil {
		s.logger.Warn("Failed to print final stats", "error", err)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("Failed to close storage", "error", err)
		if shutdownErr == nil {
			shutdownErr = err
		}
	}
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
