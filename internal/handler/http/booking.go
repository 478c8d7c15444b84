package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sonic7adarsh/bharatapp/internal/service"
	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
	"github.com/sonic7adarsh/bharatapp/pkg/httputil"
)

// BookingHandler handles HTTP requests for the room booking draft.
type BookingHandler struct {
	notices Notices
	logger  *slog.Logger
}

// NewBookingHandler creates a new booking HTTP handler.
func NewBookingHandler(notices Notices, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{notices: notices, logger: logger}
}

// SetDatesRequest is the JSON request body for changing the stay.
type SetDatesRequest struct {
	CheckIn  string `json:"checkIn" validate:"required"`
	CheckOut string `json:"checkOut"`
}

// GetBooking handles GET /api/v1/booking
func (h *BookingHandler) GetBooking(w http.ResponseWriter, r *http.Request) {
	respond(w, r, h.notices, http.StatusOK, bundleFrom(r).Booking.View())
}

// StartBooking handles PUT /api/v1/booking
func (h *BookingHandler) StartBooking(w http.ResponseWriter, r *http.Request) {
	var req service.StartBooking
	if !httputil.DecodeBody(w, r, &req) {
		return
	}
	view, err := bundleFrom(r).Booking.Start(req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	respond(w, r, h.notices, http.StatusOK, view)
}

// SetDates handles PUT /api/v1/booking/dates
func (h *BookingHandler) SetDates(w http.ResponseWriter, r *http.Request) {
	var req SetDatesRequest
	if !httputil.DecodeBody(w, r, &req) {
		return
	}
	view, err := bundleFrom(r).Booking.SetDates(req.CheckIn, req.CheckOut)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	respond(w, r, h.notices, http.StatusOK, view)
}

// IncrementGuests handles POST /api/v1/booking/rooms/{idx}/increment
func (h *BookingHandler) IncrementGuests(w http.ResponseWriter, r *http.Request) {
	h.editRoom(w, r, bundleFrom(r).Booking.IncrementGuests)
}

// DecrementGuests handles POST /api/v1/booking/rooms/{idx}/decrement
func (h *BookingHandler) DecrementGuests(w http.ResponseWriter, r *http.Request) {
	h.editRoom(w, r, bundleFrom(r).Booking.DecrementGuests)
}

func (h *BookingHandler) editRoom(w http.ResponseWriter, r *http.Request, edit func(int) (service.BookingView, error)) {
	idx, err := strconv.Atoi(chi.URLParam(r, "idx"))
	if err != nil {
		httputil.WriteError(w, r, apperrors.InvalidInput("room index must be a number"), h.logger)
		return
	}
	view, err := edit(idx)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	respond(w, r, h.notices, http.StatusOK, view)
}

// CheckAvailability handles POST /api/v1/booking/availability
func (h *BookingHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	res, err := bundleFrom(r).Booking.CheckAvailability(r.Context())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	respond(w, r, h.notices, http.StatusOK, res)
}
