// Package api implements the status HTTP server using chi.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/starford/bearlinks/internal/noteservice"
)

// StatusSource reports the outcome of the most recent sweep.
type StatusSource interface {
	Status() noteservice.Status
}

type message struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Handler holds status route handlers.
type Handler struct {
	src StatusSource
}

// NewHandler creates a new Handler.
func NewHandler(src StatusSource) *Handler {
	return &Handler{src: src}
}

// Live handles GET /health/live.
func (h *Handler) Live(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, message{Status: "ok"})
}

// Ready handles GET /health/ready. The server is ready once a sweep has
// completed successfully.
func (h *Handler) Ready(w http.ResponseWriter, _ *http.Request) {
	if h.src.Status().LastReport == nil {
		respond(w, http.StatusServiceUnavailable, message{Status: "starting"})
		return
	}
	respond(w, http.StatusOK, message{Status: "ok"})
}

// Report handles GET /api/report.
func (h *Handler) Report(w http.ResponseWriter, _ *http.Request) {
	st := h.src.Status()
	if st.Runs == 0 {
		respond(w, http.StatusNotFound, message{Error: "no run yet"})
		return
	}
	respond(w, http.StatusOK, st)
}

// RequireToken rejects requests without "Authorization: Bearer <token>".
// An empty token lets every request through.
func RequireToken(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		if token == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				w.Header().Set("WWW-Authenticate", `Bearer realm="bearlinks"`)
				respond(w, http.StatusUnauthorized, message{Error: "unauthorized"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func respond(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}
