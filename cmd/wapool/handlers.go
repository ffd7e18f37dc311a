package main

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"wapool/internal/constants"
	apperrors "wapool/internal/errors"
	"wapool/internal/models"
	"wapool/internal/service"

	"github.com/gorilla/mux"
)

type addNumberRequest struct {
	Number string `json:"number"`
}

type setActiveRequest struct {
	Active *bool `json:"active"`
}

type testWABARequest struct {
	Token  string `json:"token"`
	WABAID string `json:"wabaId"`
}

func (s *Server) handleListApps() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		apps, err := s.deps.Apps.ListApps(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		byID := make(map[string]*models.App, len(apps))
		for _, app := range apps {
			byID[app.AppID] = app
		}
		s.writeJSON(w, http.StatusOK, byID)
	}
}

func (s *Server) handleSaveApp() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in service.AppInput
		if err := s.decodeJSON(w, r, &in); err != nil {
			s.writeError(w, err)
			return
		}
		app, created, err := s.deps.Apps.SaveApp(r.Context(), in)
		if err != nil {
			s.writeError(w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		s.writeJSON(w, status, map[string]interface{}{
			"success": true,
			"created": created,
			"app":     app,
		})
	}
}

func (s *Server) handleDeleteApp() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Apps.DeleteApp(r.Context(), mux.Vars(r)["appId"]); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

func (s *Server) handleRenewWindow() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		renewed, err := s.deps.Apps.RenewWindow(r.Context(), mux.Vars(r)["appId"])
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success":                  true,
			"lastMessageWindowRenewal": renewed,
		})
	}
}

func (s *Server) handleAddNumber() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addNumberRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		number, err := s.deps.Apps.AddNumber(r.Context(), mux.Vars(r)["appId"], req.Number)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusCreated, map[string]interface{}{
			"success": true,
			"number":  number,
		})
	}
}

func (s *Server) handleDeleteNumber() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		if err := s.deps.Apps.DeleteNumber(r.Context(), vars["appId"], vars["number"]); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

func (s *Server) handleSetNumberActive() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req setActiveRequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		if req.Active == nil {
			s.writeError(w, apperrors.NewValidationError("active", "active is required"))
			return
		}
		vars := mux.Vars(r)
		number, err := s.deps.Apps.SetNumberActive(r.Context(), vars["appId"], vars["number"], *req.Active)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": true,
			"number":  number,
		})
	}
}

func (s *Server) handleGetActiveNumber() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result, err := s.deps.Selector.Pick(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		if !result.Found {
			s.writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"success": false,
				"error":   "No active numbers available",
			})
			return
		}
		s.writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, err := s.deps.Apps.Status(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, report)
	}
}

func (s *Server) handleListLogs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := models.LogFilter{
			Type:  models.LogType(r.URL.Query().Get("type")),
			Limit: constants.DefaultLogListLimit,
		}
		if raw := r.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil || limit < 1 {
				s.writeError(w, apperrors.NewValidationError("limit", "limit must be a positive integer"))
				return
			}
			filter.Limit = min(limit, constants.MaxLogListLimit)
		}

		entries, total, err := s.deps.Apps.ListLogs(r.Context(), filter)
		if err != nil {
			s.writeError(w, err)
			return
		}
		if entries == nil {
			entries = []models.LogEntry{}
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"logs":  entries,
			"total": total,
		})
	}
}

func (s *Server) handleClearLogs() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Apps.ClearLogs(r.Context()); err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	}
}

func (s *Server) handleHealthCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// A client disconnect must not abandon a run halfway through.
		ctx := context.WithoutCancel(r.Context())
		// A full cycle can outlast the server write timeout.
		if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
			s.logger.WithError(err).Debug("Failed to clear write deadline for health check")
		}
		summary, err := s.deps.Checker.Run(ctx, service.TriggerManual)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, summary)
	}
}

func (s *Server) handleTestWABA() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req testWABARequest
		if err := s.decodeJSON(w, r, &req); err != nil {
			s.writeError(w, err)
			return
		}
		diagnosis, err := s.deps.Diagnostics.TestWABA(r.Context(), req.Token, req.WABAID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, diagnosis)
	}
}
