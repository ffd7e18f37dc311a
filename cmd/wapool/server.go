package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"wapool/internal/constants"
	apperrors "wapool/internal/errors"
	"wapool/internal/middleware"
	"wapool/internal/models"
	"wapool/internal/service"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Pinger reports storage liveness for /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerDeps are the services the HTTP layer routes to.
type ServerDeps struct {
	Apps        *service.AppService
	Checker     service.HealthCheckRunner
	Selector    *service.Selector
	Diagnostics *service.Diagnostics
	Hub         *service.LogHub
	DB          Pinger
}

type Server struct {
	router    *mux.Router
	logger    *logrus.Logger
	cfg       models.ServerConfig
	deps      ServerDeps
	startedAt time.Time
	server    *http.Server
}

func NewServer(cfg models.ServerConfig, deps ServerDeps, logger *logrus.Logger) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		logger:    logger,
		cfg:       cfg,
		deps:      deps,
		startedAt: time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	// Public: the redirect endpoint is hit by end users.
	s.router.HandleFunc("/api/get-active-number", s.handleGetActiveNumber()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.Use(middleware.APIKeyMiddleware(s.cfg.APIKey, s.logger))

	api.HandleFunc("/config", s.handleConfig()).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handleStatus()).Methods(http.MethodGet)

	api.HandleFunc("/apps", s.handleListApps()).Methods(http.MethodGet)
	api.HandleFunc("/apps", s.handleSaveApp()).Methods(http.MethodPost)
	api.HandleFunc("/apps/{appId}", s.handleDeleteApp()).Methods(http.MethodDelete)
	api.HandleFunc("/apps/{appId}/renew-window", s.handleRenewWindow()).Methods(http.MethodPost)
	api.HandleFunc("/apps/{appId}/numbers", s.handleAddNumber()).Methods(http.MethodPost)
	api.HandleFunc("/apps/{appId}/numbers/{number}", s.handleDeleteNumber()).Methods(http.MethodDelete)
	api.HandleFunc("/apps/{appId}/numbers/{number}", s.handleSetNumberActive()).Methods(http.MethodPatch)

	api.HandleFunc("/logs", s.handleListLogs()).Methods(http.MethodGet)
	api.HandleFunc("/logs", s.handleClearLogs()).Methods(http.MethodDelete)
	api.HandleFunc("/logs/stream", s.handleLogStream()).Methods(http.MethodGet)

	api.HandleFunc("/health-check", s.handleHealthCheck()).Methods(http.MethodPost)
	api.HandleFunc("/test-waba", s.handleTestWABA()).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.writeError(w, apperrors.NewNotFoundError("route", r.URL.Path))
	})
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Port)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, code := "ok", http.StatusOK
		database := "sqlite"
		if s.deps.DB != nil {
			if err := s.deps.DB.Ping(r.Context()); err != nil {
				s.logger.WithError(err).Warn("Health check ping failed")
				status, code = "degraded", http.StatusServiceUnavailable
				database = "unreachable"
			}
		}
		s.writeJSON(w, code, map[string]interface{}{
			"status":     status,
			"uptime_sec": int64(time.Since(s.startedAt).Seconds()),
			"timestamp":  time.Now().UTC(),
			"database":   database,
		})
	}
}

func (s *Server) handleConfig() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, s.deps.Apps.Config())
	}
}

// decodeJSON reads a bounded JSON body into dst.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidInput, "invalid JSON body").
			WithUserMessage("Request body must be valid JSON")
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status >= http.StatusInternalServerError {
		apperrors.LogError(s.logger, err, "Request failed")
	}
	s.writeJSON(w, status, apperrors.ToHTTPResponse(err))
}
