package http

import (
	"log/slog"
	"net/http"

	"github.com/sonic7adarsh/bharatapp/internal/service"
	"github.com/sonic7adarsh/bharatapp/pkg/httputil"
)

// PreferencesHandler handles HTTP requests for saved session preferences.
type PreferencesHandler struct {
	notices Notices
	logger  *slog.Logger
}

// NewPreferencesHandler creates a new preferences HTTP handler.
func NewPreferencesHandler(notices Notices, logger *slog.Logger) *PreferencesHandler {
	return &PreferencesHandler{notices: notices, logger: logger}
}

// GetPreferences handles GET /api/v1/preferences
func (h *PreferencesHandler) GetPreferences(w http.ResponseWriter, r *http.Request) {
	respond(w, r, h.notices, http.StatusOK, bundleFrom(r).Prefs.View(r.Context()))
}

// UpdatePreferences handles PUT /api/v1/preferences
func (h *PreferencesHandler) UpdatePreferences(w http.ResponseWriter, r *http.Request) {
	var req service.PreferencesUpdate
	if !httputil.DecodeBody(w, r, &req) {
		return
	}
	view, err := bundleFrom(r).Prefs.Update(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	respond(w, r, h.notices, http.StatusOK, view)
}
