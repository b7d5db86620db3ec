// Package server exposes the HTTP collector surface the storefront snippet
// posts interaction records to.
package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/csaeum/wsc-datalayer/internal/relay"
	"github.com/csaeum/wsc-datalayer/internal/track"
)

// Handler serves the collector endpoints.
type Handler struct {
	registry *SessionRegistry
}

// NewHandler builds a handler over the given registry.
func NewHandler(registry *SessionRegistry) *Handler {
	return &Handler{registry: registry}
}

// BatchRequest is one posted batch of interaction records.
type BatchRequest struct {
	SessionID    string              `json:"session_id"`
	UserID       string              `json:"user_id"`
	Traits       *relay.Traits       `json:"traits,omitempty"`
	Consent      relay.Consent       `json:"consent"`
	Page         relay.PageContext   `json:"page"`
	Interactions []track.Interaction `json:"interactions"`
}

// BatchResponse reports how many records were accepted.
type BatchResponse struct {
	Success       bool     `json:"success"`
	AcceptedCount int      `json:"accepted_count"`
	RejectedCount int      `json:"rejected_count"`
	Errors        []string `json:"errors,omitempty"`
}

var knownTypes = map[string]bool{
	track.TypePageView: true,
	track.TypeClick:    true,
	track.TypeSubmit:   true,
	track.TypeInput:    true,
	track.TypeChange:   true,
	track.TypeRequest:  true,
}

// HandleInteractions accepts an interaction batch and drives the session's
// listeners with it.
func (h *Handler) HandleInteractions(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req BatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" {
		http.Error(w, "Missing session_id", http.StatusBadRequest)
		return
	}

	reqCtx := relay.Context{
		IP:        clientIP(r),
		UserAgent: r.Header.Get("User-Agent"),
		Page:      req.Page,
	}
	identity := relay.Identity{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Traits:    req.Traits,
	}
	session := h.registry.Touch(req.SessionID, identity, req.Consent, reqCtx)

	accepted := 0
	rejected := 0
	var errors []string

	for _, interaction := range req.Interactions {
		if !knownTypes[interaction.Type] {
			rejected++
			errors = append(errors, "unknown interaction type: "+interaction.Type)
			continue
		}
		session.Handle(interaction)
		accepted++
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(BatchResponse{
		Success:       rejected == 0,
		AcceptedCount: accepted,
		RejectedCount: rejected,
		Errors:        errors,
	})
}

// PageEventRequest carries one server-rendered page event.
type PageEventRequest struct {
	SessionID string         `json:"session_id"`
	Consent   *relay.Consent `json:"consent,omitempty"`
	Event     map[string]any `json:"event"`
}

// HandlePageEvent appends a backend-built page event (view_item,
// begin_checkout, purchase, ...) to the session's sinks and relays it.
func (h *Handler) HandlePageEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req PageEventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.SessionID == "" || req.Event == nil {
		http.Error(w, "Missing session_id or event", http.StatusBadRequest)
		return
	}

	session := h.registry.Ensure(req.SessionID, relay.Context{
		IP:        clientIP(r),
		UserAgent: r.Header.Get("User-Agent"),
	}, req.Consent)
	session.AppendPageEvent(req.Event)
	h.registry.RelayPageEvent(req.SessionID, req.Event)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"success": true})
}

// HandleSessionEvents returns the primary sink contents of a session.
func (h *Handler) HandleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	session := h.registry.Get(id)
	if session == nil {
		http.Error(w, "Unknown session", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"session_id": id,
		"events":     session.DataLayer().Entries(),
	})
}

// HealthCheck reports liveness.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

// CORSMiddleware allows the storefront origin to post batches.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// NewRouter wires the collector routes.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(CORSMiddleware)

	r.Get("/health", HealthCheck)
	r.Post("/v1/interactions", h.HandleInteractions)
	r.Post("/v1/page-events", h.HandlePageEvent)
	r.Get("/v1/sessions/{id}/events", h.HandleSessionEvents)

	return r
}

func clientIP(r *http.Request) string {
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return ip
	}
	return r.RemoteAddr
}
