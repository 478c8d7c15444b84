package domain

import (
	"github.com/shopspring/decimal"

	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
)

// PricingBreakdown is the itemised total shown before payment. Discount never
// exceeds Subtotal and Payable never drops below zero.
type PricingBreakdown struct {
	BaseRatePerNight decimal.Decimal `json:"base,omitempty"`
	Nights           int             `json:"nights,omitempty"`
	Rooms            int             `json:"rooms,omitempty"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	Discount         decimal.Decimal `json:"discount"`
	DeliveryFee      decimal.Decimal `json:"deliveryFee"`
	TaxRatePct       decimal.Decimal `json:"taxRatePct"`
	Taxes            decimal.Decimal `json:"taxes"`
	ServiceFee       decimal.Decimal `json:"serviceFee"`
	MattressFee      decimal.Decimal `json:"mattressFee"`
	Fees             decimal.Decimal `json:"fees"`
	Tip              decimal.Decimal `json:"tip"`
	Payable          decimal.Decimal `json:"payable"`
}

// finalize caps the discount and derives Fees and Payable.
func (b *PricingBreakdown) finalize() {
	b.Discount = CapAt(ClampZero(b.Discount), b.Subtotal)
	b.Fees = b.MattressFee.Add(b.ServiceFee)
	b.Payable = ClampZero(b.Subtotal.
		Sub(b.Discount).
		Add(b.DeliveryFee).
		Add(b.Taxes).
		Add(b.Fees).
		Add(b.Tip))
}

func zeroBreakdown() PricingBreakdown {
	z := decimal.Zero
	return PricingBreakdown{
		BaseRatePerNight: z, Subtotal: z, Discount: z, DeliveryFee: z, TaxRatePct: z,
		Taxes: z, ServiceFee: z, MattressFee: z, Fees: z, Tip: z, Payable: z,
	}
}

// StayPolicy carries the rates that apply to a room booking.
type StayPolicy struct {
	TaxRatePct          decimal.Decimal
	ServiceFeePct       decimal.Decimal
	MattressFeePerNight decimal.Decimal
}

// DefaultStayPolicy is 10% tax and a 5% service fee with no mattress charge.
func DefaultStayPolicy() StayPolicy {
	return StayPolicy{
		TaxRatePct:          Rupees(10),
		ServiceFeePct:       Rupees(5),
		MattressFeePerNight: decimal.Zero,
	}
}

// StayPricingInput is everything ComputeStayPricing needs.
type StayPricingInput struct {
	BaseRate   decimal.Decimal
	Nights     int
	Allocation RoomAllocation
	Policy     StayPolicy
}

// ComputeStayPricing prices a room booking:
//
//	subtotal    = base × nights × rooms
//	mattressFee = extraMattresses × mattressFeePerNight × nights
//	serviceFee  = round(subtotal × serviceFeePct / 100)
//	taxes       = round(subtotal × taxRatePct / 100)
//	payable     = subtotal + taxes + mattressFee + serviceFee
func ComputeStayPricing(in StayPricingInput) PricingBreakdown {
	nights := max(in.Nights, 1)
	n := decimal.NewFromInt(int64(nights))
	base := ClampZero(in.BaseRate)

	b := zeroBreakdown()
	b.BaseRatePerNight = base
	b.Nights = nights
	b.Rooms = in.Allocation.Rooms()
	b.TaxRatePct = ClampZero(in.Policy.TaxRatePct)
	b.Subtotal = base.Mul(n).Mul(decimal.NewFromInt(int64(b.Rooms)))
	b.MattressFee = decimal.NewFromInt(int64(in.Allocation.ExtraMattressCount)).
		Mul(ClampZero(in.Policy.MattressFeePerNight)).
		Mul(n)
	b.ServiceFee = Percent(b.Subtotal, ClampZero(in.Policy.ServiceFeePct))
	b.Taxes = Percent(b.Subtotal, b.TaxRatePct)
	b.finalize()
	return b
}

// CartPolicy carries the delivery-fee rule for grocery carts.
type CartPolicy struct {
	FreeDeliveryThreshold decimal.Decimal
	DeliveryFee           decimal.Decimal
}

// DefaultCartPolicy waives the ₹29 delivery fee from ₹199.
func DefaultCartPolicy() CartPolicy {
	return CartPolicy{FreeDeliveryThreshold: Rupees(199), DeliveryFee: Rupees(29)}
}

// CartPricingInput is everything ComputeCartPricing needs. Pickup orders
// carry no delivery fee.
type CartPricingInput struct {
	Cart         *Cart
	DiscountCode string
	Tip          decimal.Decimal
	Pickup       bool
	Policy       CartPolicy
}

// ComputeCartPricing prices a cart. Prices are tax-inclusive so there is no
// tax line. An unknown promo code yields a zero discount and a notice in the
// PromoResult; only a negative tip is an error.
func ComputeCartPricing(in CartPricingInput) (PricingBreakdown, PromoResult, error) {
	if in.Tip.IsNegative() {
		return PricingBreakdown{}, PromoResult{}, apperrors.Validation("tip must not be negative").WithField("tip")
	}

	b := zeroBreakdown()
	b.Subtotal = in.Cart.TotalPrice()
	b.Tip = in.Tip
	if !in.Pickup {
		b.DeliveryFee = WaivedAbove(b.Subtotal, in.Policy.FreeDeliveryThreshold, in.Policy.DeliveryFee)
	}

	promo := ApplyPromo(in.DiscountCode, b.Subtotal)
	b.Discount = promo.Discount
	b.finalize()
	promo.Discount = b.Discount
	return b, promo, nil
}
