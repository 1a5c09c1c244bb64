// Package handlers provides the HTTP API for running debates.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/parleyhq/parley/backend"
	"github.com/parleyhq/parley/internal/core"
	"github.com/parleyhq/parley/internal/engine"
	"github.com/parleyhq/parley/internal/export"
	"github.com/parleyhq/parley/internal/storage"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	manager  *engine.Manager
	registry *backend.Registry
	store    storage.Store
	logger   *slog.Logger
}

// New creates a new Handler. store may be nil for in-memory operation.
func New(manager *engine.Manager, registry *backend.Registry, store storage.Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		manager:  manager,
		registry: registry,
		store:    store,
		logger:   logger,
	}
}

// Router builds the HTTP routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/backends", h.handleListBackends)

		r.Route("/debates", func(r chi.Router) {
			r.Post("/", h.handleCreateDebate)
			r.Get("/", h.handleListDebates)
			r.Get("/{id}", h.handleGetDebate)
			r.Get("/{id}/stream", h.handleDebateStream)
			r.Get("/{id}/export/{format}", h.handleExportDebate)
			r.Post("/{id}/interjections", h.handleInterject)
			r.Post("/{id}/end", h.handleEndDebate)
			r.Post("/{id}/cancel", h.handleCancelDebate)
			r.Delete("/{id}", h.handleDeleteDebate)
		})
	})

	return r
}

type backendInfo struct {
	ID              string  `json:"id"`
	DisplayName     string  `json:"display_name"`
	Model           string  `json:"model"`
	Vendor          string  `json:"vendor"`
	Available       bool    `json:"available"`
	InputCostPer1K  float64 `json:"input_cost_per_1k"`
	OutputCostPer1K float64 `json:"output_cost_per_1k"`
}

func (h *Handler) handleListBackends(w http.ResponseWriter, r *http.Request) {
	var infos []backendInfo
	for _, id := range h.registry.Known() {
		b, err := h.registry.Resolve(id)
		if err != nil {
			continue
		}
		d := b.Descriptor()
		infos = append(infos, backendInfo{
			ID:              id,
			DisplayName:     d.DisplayName,
			Model:           d.Model,
			Vendor:          d.Vendor,
			Available:       b.Available(),
			InputCostPer1K:  d.InputCostPer1K,
			OutputCostPer1K: d.OutputCostPer1K,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"backends": infos})
}

type createDebateRequest struct {
	Question         string   `json:"question"`
	AppContext       string   `json:"app_context,omitempty"`
	Roster           []string `json:"roster,omitempty"`
	MaxTurns         int      `json:"max_turns,omitempty"`
	SynthesisBackend string   `json:"synthesis_backend,omitempty"`
}

func (h *Handler) handleCreateDebate(w http.ResponseWriter, r *http.Request) {
	var req createDebateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		h.writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	o, err := h.manager.StartDebate(req.Question, engine.Options{
		Roster:           req.Roster,
		MaxTurns:         req.MaxTurns,
		AppContext:       req.AppContext,
		SynthesisBackend: req.SynthesisBackend,
	})
	if err != nil {
		if errors.Is(err, engine.ErrInsufficientParticipants) || backend.IsKind(err, backend.KindUnknownBackend) {
			h.writeError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.logger.Info("debate created", "session", o.ID(), "question", req.Question)
	h.writeJSON(w, http.StatusCreated, o.Session())
}

func (h *Handler) handleListDebates(w http.ResponseWriter, r *http.Request) {
	limit := 50
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	if h.store != nil {
		summaries, err := h.store.ListSessions(limit, offset)
		if err != nil {
			h.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		h.writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
		return
	}

	var summaries []*core.SessionSummary
	for _, o := range h.manager.Sessions() {
		s := o.Session()
		summaries = append(summaries, &core.SessionSummary{
			ID:           s.ID,
			Question:     s.Question,
			Status:       s.Status,
			MessageCount: len(s.Messages),
			TotalCost:    s.Cost.TotalCost,
			CreatedAt:    s.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

// getSession prefers the live orchestrator and falls back to storage.
func (h *Handler) getSession(id string) (*core.Session, error) {
	if o, ok := h.manager.Get(id); ok {
		return o.Session(), nil
	}
	if h.store != nil {
		return h.store.GetSession(id)
	}
	return nil, storage.ErrNotFound
}

func (h *Handler) handleGetDebate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session, err := h.getSession(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "debate not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, session)
}

type interjectRequest struct {
	Content         string `json:"content"`
	Kind            string `json:"kind"`
	TargetMessageID string `json:"target_message_id,omitempty"`
}

func (h *Handler) handleInterject(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req interjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.manager.Interject(id, core.Interjection{
		Content:         req.Content,
		Kind:            core.InterjectionKind(req.Kind),
		TargetMessageID: req.TargetMessageID,
	})
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
	case errors.Is(err, engine.ErrSessionNotFound):
		h.writeError(w, http.StatusNotFound, "debate not found")
	case errors.Is(err, engine.ErrSessionNotActive):
		h.writeError(w, http.StatusConflict, "debate is no longer running")
	default:
		h.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (h *Handler) handleEndDebate(w http.ResponseWriter, r *http.Request) {
	h.handleSessionAction(w, chi.URLParam(r, "id"), h.manager.EndDebate)
}

func (h *Handler) handleCancelDebate(w http.ResponseWriter, r *http.Request) {
	h.handleSessionAction(w, chi.URLParam(r, "id"), h.manager.Cancel)
}

func (h *Handler) handleSessionAction(w http.ResponseWriter, id string, action func(string) error) {
	switch err := action(id); {
	case err == nil:
		h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	case errors.Is(err, engine.ErrSessionNotFound):
		h.writeError(w, http.StatusNotFound, "debate not found")
	case errors.Is(err, engine.ErrSessionNotActive):
		h.writeError(w, http.StatusConflict, "debate is no longer running")
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handler) handleExportDebate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	format := export.Format(chi.URLParam(r, "format"))

	session, err := h.getSession(id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "debate not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	exporter, err := export.GetExporter(format)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filename := export.GenerateFilename(session, exporter.FileExtension())
	w.Header().Set("Content-Disposition", "attachment; filename="+strconv.Quote(filename))
	switch format {
	case export.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case export.FormatPDF:
		w.Header().Set("Content-Type", "application/pdf")
	default:
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	}

	if err := exporter.Export(session, w); err != nil {
		h.logger.Error("export failed", "session", id, "format", format, "error", err)
	}
}

func (h *Handler) handleDeleteDebate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if o, ok := h.manager.Get(id); ok && !o.Session().Status.Terminal() {
		h.writeError(w, http.StatusConflict, "debate is still running")
		return
	}
	if h.store == nil {
		h.writeError(w, http.StatusNotFound, "debate not found")
		return
	}
	if err := h.store.DeleteSession(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			h.writeError(w, http.StatusNotFound, "debate not found")
			return
		}
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
