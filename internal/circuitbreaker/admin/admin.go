// Package admin exposes the circuit breaker's operator API from spec §6
// as plain net/http handlers over the breaker capability, ready to be
// mounted onto an external gateway's own mux (the gateway itself is out
// of scope per spec §1). Modeled on station's cmd/main handler-struct
// pattern: small single-purpose handler methods wired to routes by the
// caller, rather than an embedded router dependency.
package admin

import (
	"encoding/json"
	"net/http"
	"strings"

	"flowcore/internal/circuitbreaker"
)

// Handler bundles the breaker operations spec §6 names as
// "GET /circuits", "GET /circuits/{key}", "POST /circuits/{key}/open",
// "POST /circuits/{key}/close", "POST /circuits/{key}/reset",
// "GET /circuits/health".
type Handler struct {
	breaker    *circuitbreaker.Breaker
	itemPrefix string
}

func NewHandler(breaker *circuitbreaker.Breaker) *Handler {
	return &Handler{breaker: breaker}
}

// Register mounts every route onto mux, under prefix (e.g. "/circuits").
func (h *Handler) Register(mux *http.ServeMux, prefix string) {
	h.itemPrefix = prefix + "/"
	mux.HandleFunc(prefix, h.handleCollection)
	mux.HandleFunc(prefix+"/health", h.handleHealth)
	mux.HandleFunc(h.itemPrefix, h.handleItem)
}

func (h *Handler) handleCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	states, err := h.breaker.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, states)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	healthy, open, err := h.breaker.Health(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"healthy": healthy, "openCircuits": open})
}

// handleItem dispatches "/circuits/{key}" and "/circuits/{key}/{action}".
func (h *Handler) handleItem(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, h.itemPrefix)
	parts := strings.SplitN(rest, "/", 2)
	key := parts[0]
	if key == "" {
		http.NotFound(w, r)
		return
	}

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		st, err := h.breaker.Get(r.Context(), key)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, st)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var err error
	switch parts[1] {
	case "open":
		err = h.breaker.ForceOpen(r.Context(), key)
	case "close":
		err = h.breaker.ForceClose(r.Context(), key)
	case "reset":
		err = h.breaker.Reset(r.Context(), key)
	default:
		http.NotFound(w, r)
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	st, _ := h.breaker.Get(r.Context(), key)
	writeJSON(w, http.StatusOK, st)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}
