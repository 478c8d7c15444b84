package domain

import (
	"fmt"

	"github.com/shopspring/decimal"

	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
)

// CheckoutState is the single discriminant of the checkout flow.
type CheckoutState string

const (
	StateDraft      CheckoutState = "DRAFT"
	StateValidating CheckoutState = "VALIDATING"
	StateSubmitting CheckoutState = "SUBMITTING"
	StateConfirmed  CheckoutState = "CONFIRMED"
	StateFailed     CheckoutState = "FAILED"
)

var transitions = map[CheckoutState][]CheckoutState{
	StateDraft:      {StateValidating},
	StateValidating: {StateDraft, StateSubmitting},
	StateSubmitting: {StateConfirmed, StateFailed},
	StateConfirmed:  {StateDraft},
	StateFailed:     {StateDraft, StateValidating},
}

// CanTransition reports whether the flow may move from one state to another.
func CanTransition(from, to CheckoutState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Busy reports whether a submission is in progress.
func (s CheckoutState) Busy() bool {
	return s == StateValidating || s == StateSubmitting
}

// CheckoutMethod is how the order reaches the customer.
type CheckoutMethod string

const (
	MethodDelivery CheckoutMethod = "delivery"
	MethodPickup   CheckoutMethod = "pickup"
)

// PaymentMethod is how the customer pays. Online methods are settled by the
// order service; the storefront only records the choice.
type PaymentMethod string

const (
	PaymentCOD  PaymentMethod = "cod"
	PaymentUPI  PaymentMethod = "upi"
	PaymentCard PaymentMethod = "card"
)

// Valid reports whether m is a known payment method.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCOD, PaymentUPI, PaymentCard:
		return true
	}
	return false
}

// BookingSelection is a priced room booking attached to a checkout.
type BookingSelection struct {
	Draft        BookingDraft  `json:"draft"`
	Availability *Availability `json:"availability,omitempty"`
}

// Priced reports whether an availability answer has been received.
func (b *BookingSelection) Priced() bool {
	return b != nil && b.Availability != nil && b.Availability.Available
}

// CheckoutDraft holds every user edit made before submission.
type CheckoutDraft struct {
	Method             CheckoutMethod    `json:"checkoutMethod"`
	Address            Address           `json:"address"`
	Slot               DeliverySlot      `json:"slot"`
	PromoCode          string            `json:"promoCode,omitempty"`
	Tip                decimal.Decimal   `json:"tip"`
	PaymentMethod      PaymentMethod     `json:"paymentMethod"`
	Attachments        []string          `json:"attachments,omitempty"`
	AllowSubstitutions bool              `json:"allowSubstitutions"`
	Booking            *BookingSelection `json:"booking,omitempty"`
}

// NewCheckoutDraft returns a delivery draft paying cash on delivery.
func NewCheckoutDraft() CheckoutDraft {
	return CheckoutDraft{Method: MethodDelivery, PaymentMethod: PaymentCOD, Tip: decimal.Zero}
}

// ValidateSubmission runs the pre-submission checks in order and returns the
// first failure:
//
//  1. something to order (cart lines or a booking)
//  2. delivery address fields, phone, pincode format, then serviceability
//  3. a delivery slot, or a priced booking
//  4. a prescription attachment when any line needs one
//  5. a known payment method
func ValidateSubmission(d CheckoutDraft, cart *Cart, area ServiceArea) error {
	booking := d.Booking != nil
	if !booking && cart.IsEmpty() {
		return apperrors.Validation("your cart is empty").WithField("cart")
	}

	if !booking && d.Method != MethodPickup {
		if err := d.Address.Validate(); err != nil {
			return err
		}
		if !area.Serves(d.Address.Pincode) {
			return apperrors.Unserviceable(d.Address.Pincode)
		}
	}

	switch {
	case booking && !d.Booking.Priced():
		return apperrors.Validation("please check room availability before booking").WithField("booking")
	case !booking && d.Slot.IsZero():
		return apperrors.Validation("please choose a delivery slot").WithField("slot")
	}

	if !booking && cart.RequiresPrescription() && len(d.Attachments) == 0 {
		return apperrors.Validation("please attach a prescription for the medicines in your cart").WithField("attachments")
	}

	if !d.PaymentMethod.Valid() {
		return apperrors.Validation(fmt.Sprintf("unsupported payment method %q", d.PaymentMethod)).WithField("paymentMethod")
	}
	return nil
}

// OrderRequest is the body of the single order-placement call.
type OrderRequest struct {
	Items              []CartItem       `json:"items"`
	Totals             PricingBreakdown `json:"totals"`
	Address            *Address         `json:"address,omitempty"`
	Booking            *BookingDraft    `json:"booking,omitempty"`
	PaymentMethod      PaymentMethod    `json:"paymentMethod"`
	CheckoutMethod     CheckoutMethod   `json:"checkoutMethod"`
	Slot               *DeliverySlot    `json:"slot,omitempty"`
	PromoCode          string           `json:"promoCode,omitempty"`
	AllowSubstitutions bool             `json:"allowSubstitutions"`
	Attachments        []string         `json:"attachments,omitempty"`
}

// OrderConfirmation is the order service's success answer.
type OrderConfirmation struct {
	Reference string `json:"reference"`
	Status    string `json:"status,omitempty"`
}

// BuildOrder assembles the order request from a validated draft.
func BuildOrder(d CheckoutDraft, cart *Cart, totals PricingBreakdown) OrderRequest {
	req := OrderRequest{
		Items:              cart.Clone().Items,
		Totals:             totals,
		PaymentMethod:      d.PaymentMethod,
		CheckoutMethod:     d.Method,
		PromoCode:          NormalizeCode(d.PromoCode),
		AllowSubstitutions: d.AllowSubstitutions,
		Attachments:        append([]string(nil), d.Attachments...),
	}
	if d.Booking != nil {
		b := d.Booking.Draft
		req.Booking = &b
		req.Items = []CartItem{}
		return req
	}
	if d.Method != MethodPickup {
		addr := d.Address
		req.Address = &addr
	}
	slot := d.Slot
	req.Slot = &slot
	return req
}
