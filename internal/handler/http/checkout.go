package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/sonic7adarsh/bharatapp/internal/service"
	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
	"github.com/sonic7adarsh/bharatapp/pkg/httputil"
)

// CheckoutHandler handles HTTP requests for the session checkout.
type CheckoutHandler struct {
	notices Notices
	logger  *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(notices Notices, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{notices: notices, logger: logger}
}

// GetCheckout handles GET /api/v1/checkout
func (h *CheckoutHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	respond(w, r, h.notices, http.StatusOK, bundleFrom(r).Checkout.View(r.Context()))
}

// UpdateDraft handles PUT /api/v1/checkout/draft
func (h *CheckoutHandler) UpdateDraft(w http.ResponseWriter, r *http.Request) {
	var req service.DraftUpdate
	if !httputil.DecodeBody(w, r, &req) {
		return
	}

	view, err := bundleFrom(r).Checkout.UpdateDraft(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	respond(w, r, h.notices, http.StatusOK, view)
}

// Submit handles POST /api/v1/checkout/submit
//
// A rejected or failed submission answers with the error status and the
// checkout view, so the client can render the inline message and state.
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	view, err := bundleFrom(r).Checkout.Submit(r.Context())
	if err == nil {
		respond(w, r, h.notices, http.StatusCreated, view)
		return
	}

	var appErr *apperrors.AppError
	if view.State == "" || !errors.As(err, &appErr) {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	if appErr.Status >= http.StatusInternalServerError {
		h.logger.WarnContext(r.Context(), "checkout submission failed",
			slog.String("code", appErr.Code),
			slog.String("error", err.Error()),
		)
	}
	httputil.WriteJSON(w, appErr.Status, submitFailure{
		Data: view,
		Error: &httputil.ErrorResponse{
			Code:    appErr.Code,
			Message: appErr.Message,
			Fields:  fieldsOf(appErr),
		},
	})
}

// Reset handles POST /api/v1/checkout/reset
func (h *CheckoutHandler) Reset(w http.ResponseWriter, r *http.Request) {
	view, err := bundleFrom(r).Checkout.Reset(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	respond(w, r, h.notices, http.StatusOK, view)
}

type submitFailure struct {
	Data  service.CheckoutView    `json:"data"`
	Error *httputil.ErrorResponse `json:"error"`
}

func fieldsOf(e *apperrors.AppError) map[string]string {
	if e.Field == "" {
		return nil
	}
	return map[string]string{e.Field: e.Message}
}
