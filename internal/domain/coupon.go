package domain

import (
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
)

// CouponKind selects how a coupon's Value is applied.
type CouponKind string

const (
	CouponFlat    CouponKind = "flat"
	CouponPercent CouponKind = "percent"
)

// Coupon is a promo code. Cap limits a percentage discount; zero means no cap.
type Coupon struct {
	Code  string
	Kind  CouponKind
	Value decimal.Decimal
	Cap   decimal.Decimal
}

// Discount computes the coupon's discount on subtotal before the
// subtotal cap is applied.
func (c Coupon) Discount(subtotal decimal.Decimal) decimal.Decimal {
	var d decimal.Decimal
	switch c.Kind {
	case CouponFlat:
		d = c.Value
	case CouponPercent:
		d = Percent(subtotal, c.Value)
		if c.Cap.IsPositive() {
			d = CapAt(d, c.Cap)
		}
	}
	return ClampZero(d)
}

var coupons = map[string]Coupon{
	"WELCOME50": {Code: "WELCOME50", Kind: CouponFlat, Value: Rupees(50)},
	"SAVE10":    {Code: "SAVE10", Kind: CouponPercent, Value: Rupees(10), Cap: Rupees(100)},
}

// NormalizeCode trims and upper-cases a user-entered promo code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// LookupCoupon finds a coupon by code, ignoring case and surrounding space.
func LookupCoupon(code string) (Coupon, bool) {
	c, ok := coupons[NormalizeCode(code)]
	return c, ok
}

// PromoResult reports what happened to the entered promo code. Notice is
// set for an unknown code; it never blocks pricing or checkout.
type PromoResult struct {
	Code     string              `json:"code,omitempty"`
	Applied  bool                `json:"applied"`
	Discount decimal.Decimal     `json:"discount"`
	Notice   *apperrors.AppError `json:"notice,omitempty"`
}

// ApplyPromo resolves code against subtotal. An empty code yields an empty
// result with no notice.
func ApplyPromo(code string, subtotal decimal.Decimal) PromoResult {
	norm := NormalizeCode(code)
	if norm == "" {
		return PromoResult{Discount: decimal.Zero}
	}
	c, ok := coupons[norm]
	if !ok {
		return PromoResult{Code: norm, Discount: decimal.Zero, Notice: apperrors.InvalidPromo(norm)}
	}
	return PromoResult{Code: norm, Applied: true, Discount: c.Discount(subtotal)}
}
