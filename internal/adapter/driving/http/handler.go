// Package httphandler is the HTTP driving adapter for the vault's local
// admin API: health, outbound call counters, and session purging. It carries
// no user-facing vault operations; those go through the bot command layer.
package httphandler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/flavortown-bot/flavorvault/internal/adapter/driven/rest"
	"github.com/flavortown-bot/flavorvault/internal/application"
)

// Handler serves the admin REST API.
type Handler struct {
	stats      *rest.Stats
	vault      *application.VaultService
	challenges *application.ChallengeManager
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies.
func NewHandler(
	stats *rest.Stats,
	vault *application.VaultService,
	challenges *application.ChallengeManager,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		stats:      stats,
		vault:      vault,
		challenges: challenges,
		logger:     logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("POST /api/v1/stats/reset", h.ResetStats)
	mux.HandleFunc("POST /api/v1/sessions/clear", h.ClearSessions)
	mux.HandleFunc("POST /api/v1/challenges/sweep", h.SweepChallenges)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// Stats returns a snapshot of the outbound API call counters.
func (h *Handler) Stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.stats.Snapshot())
}

// ResetStats zeroes the outbound API call counters.
func (h *Handler) ResetStats(w http.ResponseWriter, _ *http.Request) {
	h.stats.Reset()
	h.logger.Info("call stats reset")
	writeJSON(w, http.StatusOK, h.stats.Snapshot())
}

// ClearSessions drops every cached decrypted secret. Stored credentials are
// untouched; users unlock again with their passwords.
func (h *Handler) ClearSessions(w http.ResponseWriter, _ *http.Request) {
	removed := h.vault.Sessions().ClearAll()
	h.logger.Info("sessions cleared", "removed", removed)
	writeJSON(w, http.StatusOK, clearedResponse{Removed: removed})
}

// SweepChallenges removes expired password challenges.
func (h *Handler) SweepChallenges(w http.ResponseWriter, _ *http.Request) {
	removed := h.challenges.Sweep()
	writeJSON(w, http.StatusOK, clearedResponse{Removed: removed})
}
