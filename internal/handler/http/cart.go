package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/sonic7adarsh/bharatapp/internal/domain"
	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
	"github.com/sonic7adarsh/bharatapp/pkg/httputil"
)

// CartHandler handles HTTP requests for the session cart.
type CartHandler struct {
	notices Notices
	logger  *slog.Logger
}

// NewCartHandler creates a new cart HTTP handler.
func NewCartHandler(notices Notices, logger *slog.Logger) *CartHandler {
	return &CartHandler{notices: notices, logger: logger}
}

// --- Request DTOs ---

// AddItemRequest adds either a ready cart line or a catalogue product with
// its chosen options.
type AddItemRequest struct {
	Item      *domain.CartItem `json:"item"`
	Product   *domain.Product  `json:"product"`
	VariantID string           `json:"variantId"`
	AddOnIDs  []string         `json:"addOnIds"`
	Quantity  int              `json:"quantity" validate:"gte=0,lte=99"`
}

// UpdateQuantityRequest sets a line's quantity; zero removes it.
type UpdateQuantityRequest struct {
	Quantity int `json:"quantity" validate:"lte=99"`
}

// --- Response DTOs ---

// CartResponse is the cart with its derived totals.
type CartResponse struct {
	Items      []domain.CartItem `json:"items"`
	ItemsCount int               `json:"itemsCount"`
	TotalPrice decimal.Decimal   `json:"totalPrice"`
	Synced     bool              `json:"synced"`
}

func newCartResponse(c *domain.Cart, synced bool) CartResponse {
	return CartResponse{
		Items:      c.Items,
		ItemsCount: c.ItemsCount(),
		TotalPrice: c.TotalPrice(),
		Synced:     synced,
	}
}

// --- Handlers ---

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	b := bundleFrom(r)
	respond(w, r, h.notices, http.StatusOK, newCartResponse(b.Cart.Snapshot(), b.Cart.Loaded()))
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !httputil.DecodeBody(w, r, &req) {
		return
	}

	var item domain.CartItem
	switch {
	case req.Product != nil:
		var err error
		if item, err = req.Product.ToCartItem(req.VariantID, req.AddOnIDs); err != nil {
			httputil.WriteError(w, r, err, h.logger)
			return
		}
	case req.Item != nil:
		item = *req.Item
	default:
		httputil.WriteError(w, r, apperrors.InvalidInput("either item or product is required"), h.logger)
		return
	}

	b := bundleFrom(r)
	cart, err := b.Cart.AddItem(r.Context(), item, req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	respond(w, r, h.notices, http.StatusOK, newCartResponse(cart, b.Cart.Loaded()))
}

// UpdateItem handles PUT /api/v1/cart/items/{itemId}
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateQuantityRequest
	if !httputil.DecodeBody(w, r, &req) {
		return
	}

	b := bundleFrom(r)
	cart, err := b.Cart.UpdateQuantity(r.Context(), chi.URLParam(r, "itemId"), req.Quantity)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	respond(w, r, h.notices, http.StatusOK, newCartResponse(cart, b.Cart.Loaded()))
}

// RemoveItem handles DELETE /api/v1/cart/items/{itemId}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	b := bundleFrom(r)
	cart := b.Cart.RemoveItem(r.Context(), chi.URLParam(r, "itemId"))
	respond(w, r, h.notices, http.StatusOK, newCartResponse(cart, b.Cart.Loaded()))
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	b := bundleFrom(r)
	respond(w, r, h.notices, http.StatusOK, newCartResponse(b.Cart.Clear(r.Context()), b.Cart.Loaded()))
}
