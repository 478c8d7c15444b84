package remote

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/sonic7adarsh/bharatapp/internal/domain"
)

// The backend speaks plain JSON numbers for money. These DTOs keep them as
// json.Number on the wire and convert to decimal at the edge.

func toNumber(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func fromNumber(n json.Number) (decimal.Decimal, error) {
	if n == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", n, err)
	}
	return d, nil
}

type cartItemDTO struct {
	ID                   string      `json:"id"`
	Name                 string      `json:"name"`
	Price                json.Number `json:"price"`
	Quantity             int         `json:"quantity"`
	RequiresPrescription bool        `json:"requiresPrescription,omitempty"`
}

func newCartItemDTO(it domain.CartItem) cartItemDTO {
	return cartItemDTO{
		ID:                   it.ID,
		Name:                 it.Name,
		Price:                toNumber(it.Price),
		Quantity:             it.Quantity,
		RequiresPrescription: it.RequiresPrescription,
	}
}

func (d cartItemDTO) toDomain() (domain.CartItem, error) {
	price, err := fromNumber(d.Price)
	if err != nil {
		return domain.CartItem{}, err
	}
	return domain.CartItem{
		ID:                   d.ID,
		Name:                 d.Name,
		Price:                price,
		Quantity:             d.Quantity,
		RequiresPrescription: d.RequiresPrescription,
	}, nil
}

// decodeCart accepts {"items": [...]} or a bare array.
func decodeCart(body []byte) (*domain.Cart, error) {
	var items []cartItemDTO
	trimmed := strings.TrimSpace(string(body))
	switch {
	case trimmed == "" || trimmed == "null":
	case strings.HasPrefix(trimmed, "["):
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("decode cart: %w", err)
		}
	default:
		var wrapped struct {
			Items []cartItemDTO `json:"items"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("decode cart: %w", err)
		}
		items = wrapped.Items
	}

	cart := domain.NewCart()
	for _, dto := range items {
		it, err := dto.toDomain()
		if err != nil {
			return nil, fmt.Errorf("decode cart item %s: %w", dto.ID, err)
		}
		cart.Items = append(cart.Items, it)
	}
	cart.Sanitize()
	return cart, nil
}

type breakdownDTO struct {
	Subtotal    json.Number `json:"subtotal"`
	Discount    json.Number `json:"discount"`
	DeliveryFee json.Number `json:"deliveryFee"`
	Taxes       json.Number `json:"taxes"`
	Fees        json.Number `json:"fees"`
	Tip         json.Number `json:"tip"`
	Payable     json.Number `json:"payable"`
}

func newBreakdownDTO(b domain.PricingBreakdown) breakdownDTO {
	return breakdownDTO{
		Subtotal:    toNumber(b.Subtotal),
		Discount:    toNumber(b.Discount),
		DeliveryFee: toNumber(b.DeliveryFee),
		Taxes:       toNumber(b.Taxes),
		Fees:        toNumber(b.Fees),
		Tip:         toNumber(b.Tip),
		Payable:     toNumber(b.Payable),
	}
}

type bookingDTO struct {
	StoreID     string      `json:"storeId"`
	RoomID      string      `json:"roomId"`
	Base        json.Number `json:"base"`
	CheckIn     string      `json:"checkIn"`
	CheckOut    string      `json:"checkOut"`
	Nights      int         `json:"nights"`
	RoomsGuests []int       `json:"roomsGuests"`
}

type checkoutRequest struct {
	Items              []cartItemDTO         `json:"items"`
	Totals             breakdownDTO          `json:"totals"`
	Address            *domain.Address       `json:"address,omitempty"`
	Booking            *bookingDTO           `json:"booking,omitempty"`
	PaymentMethod      domain.PaymentMethod  `json:"paymentMethod"`
	CheckoutMethod     domain.CheckoutMethod `json:"checkoutMethod"`
	Slot               *domain.DeliverySlot  `json:"slot,omitempty"`
	PromoCode          string                `json:"promoCode,omitempty"`
	AllowSubstitutions bool                  `json:"allowSubstitutions"`
	Attachments        []string              `json:"attachments,omitempty"`
}

func newCheckoutRequest(o domain.OrderRequest) checkoutRequest {
	req := checkoutRequest{
		Items:              make([]cartItemDTO, 0, len(o.Items)),
		Totals:             newBreakdownDTO(o.Totals),
		Address:            o.Address,
		PaymentMethod:      o.PaymentMethod,
		CheckoutMethod:     o.CheckoutMethod,
		Slot:               o.Slot,
		PromoCode:          o.PromoCode,
		AllowSubstitutions: o.AllowSubstitutions,
		Attachments:        o.Attachments,
	}
	for _, it := range o.Items {
		req.Items = append(req.Items, newCartItemDTO(it))
	}
	if b := o.Booking; b != nil {
		req.Booking = &bookingDTO{
			StoreID:     b.StoreID,
			RoomID:      b.RoomID,
			Base:        toNumber(b.BaseRate),
			CheckIn:     b.CheckIn,
			CheckOut:    b.CheckOut,
			Nights:      b.Nights,
			RoomsGuests: b.RoomsGuests,
		}
	}
	return req
}

type checkoutResponse struct {
	Reference string `json:"reference"`
	OrderID   string `json:"orderId"`
	ID        string `json:"id"`
	Status    string `json:"status"`
}

func (r checkoutResponse) toDomain() domain.OrderConfirmation {
	ref := r.Reference
	for _, alt := range []string{r.OrderID, r.ID} {
		if ref == "" {
			ref = alt
		}
	}
	return domain.OrderConfirmation{Reference: ref, Status: r.Status}
}

type availabilityDTO struct {
	Available            bool        `json:"available"`
	Base                 json.Number `json:"base"`
	Nights               int         `json:"nights"`
	Rooms                int         `json:"rooms"`
	Subtotal             json.Number `json:"subtotal"`
	Taxes                json.Number `json:"taxes"`
	Fees                 json.Number `json:"fees"`
	Total                json.Number `json:"total"`
	RoomsGuests          []int       `json:"roomsGuests"`
	ExtraMattressAllowed bool        `json:"extraMattressAllowed"`
	ExtraMattressCount   int         `json:"extraMattressCount"`
	MattressFeePerNight  json.Number `json:"mattressFeePerNight"`
	PerRoomMax           int         `json:"perRoomMax"`
	Reason               string      `json:"reason"`
}

func (a availabilityDTO) toDomain() (domain.Availability, error) {
	out := domain.Availability{
		Available:            a.Available,
		Nights:               a.Nights,
		Rooms:                a.Rooms,
		RoomsGuests:          a.RoomsGuests,
		ExtraMattressAllowed: a.ExtraMattressAllowed,
		ExtraMattressCount:   a.ExtraMattressCount,
		PerRoomMax:           a.PerRoomMax,
		Reason:               a.Reason,
	}
	amounts := []struct {
		dst *decimal.Decimal
		src json.Number
	}{
		{&out.Base, a.Base},
		{&out.Subtotal, a.Subtotal},
		{&out.Taxes, a.Taxes},
		{&out.Fees, a.Fees},
		{&out.Total, a.Total},
		{&out.MattressFeePerNight, a.MattressFeePerNight},
	}
	for _, m := range amounts {
		v, err := fromNumber(m.src)
		if err != nil {
			return domain.Availability{}, err
		}
		*m.dst = v
	}
	return out, nil
}
