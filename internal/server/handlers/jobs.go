// Package handlers implements the HTTP API surface.
package handlers

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	apperrors "github.com/inematds/inemavox/internal/errors"
	"github.com/inematds/inemavox/pkg/jobs"
	"github.com/inematds/inemavox/pkg/stats"
)

// JobsHandler serves the job lifecycle endpoints.
type JobsHandler struct {
	manager *jobs.Manager
	log     *zap.Logger
}

func NewJobsHandler(manager *jobs.Manager, logger *zap.Logger) *JobsHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobsHandler{manager: manager, log: logger}
}

// Submit accepts a dubbing request and enqueues a job.
func (h *JobsHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var raw map[string]any
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		apperrors.BadRequest(w, r, "invalid JSON body", err.Error())
		return
	}

	cfg, err := jobs.DecodeConfig(raw)
	if err != nil {
		apperrors.BadRequest(w, r, "invalid job config", err.Error())
		return
	}

	snap, err := h.manager.Submit(cfg)
	if err != nil {
		if err == jobs.ErrQueueFull {
			apperrors.RespondWithError(w, r, err)
			return
		}
		apperrors.BadRequest(w, r, err.Error(), nil)
		return
	}

	writeJSON(w, http.StatusAccepted, snap)
}

// List returns all jobs, newest first.
func (h *JobsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"jobs": h.manager.List()})
}

// Get returns one job snapshot.
func (h *JobsHandler) Get(w http.ResponseWriter, r *http.Request) {
	snap, err := h.manager.Get(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// Cancel requests cancellation and reports whether anything was stopped.
func (h *JobsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := h.manager.Cancel(id)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "cancelled": ok})
}

// Delete removes a terminal job and its workdir.
func (h *JobsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.manager.Delete(id); err != nil {
		if err == jobs.ErrNotFound {
			apperrors.RespondWithError(w, r, err)
			return
		}
		apperrors.Conflict(w, r, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}

// Resubmit clones an existing job's config into a fresh queued job.
func (h *JobsHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	snap, err := h.manager.Resubmit(chi.URLParam(r, "id"))
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

// Logs returns the combined pipeline output as plain text.
func (h *JobsHandler) Logs(w http.ResponseWriter, r *http.Request) {
	tail := 0
	if v := r.URL.Query().Get("tail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			apperrors.BadRequest(w, r, "tail must be a non-negative integer", nil)
			return
		}
		tail = n
	}

	out, err := h.manager.ReadLogs(chi.URLParam(r, "id"), tail)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

// Download streams the finished artifact.
func (h *JobsHandler) Download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	path, err := h.manager.ArtifactPath(id)
	if err != nil {
		if err == jobs.ErrNotFound {
			apperrors.RespondWithError(w, r, err)
			return
		}
		apperrors.Conflict(w, r, err.Error())
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeFile(w, r, path)
}

// ETA returns the remaining-time estimate for a job.
func (h *JobsHandler) ETA(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	est, err := h.manager.Estimate(id)
	if err != nil {
		apperrors.RespondWithError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, etaResponse{
		ID:           id,
		ETASeconds:   est.ETASeconds,
		ETAFormatted: stats.FormatETA(est.ETASeconds),
		Confidence:   est.Confidence,
		Stages:       est.Stages,
	})
}

type etaResponse struct {
	ID           string                         `json:"id"`
	ETASeconds   int                            `json:"eta_seconds"`
	ETAFormatted string                         `json:"eta_formatted"`
	Confidence   stats.Confidence               `json:"confidence"`
	Stages       map[string]stats.StageEstimate `json:"stage_estimates"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
