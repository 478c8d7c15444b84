package domain

import "github.com/shopspring/decimal"

var hundred = decimal.NewFromInt(100)

// Rupees converts a whole-rupee amount to a decimal.
func Rupees(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

// RoundAmount rounds to whole currency units, half away from zero.
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(0)
}

// Percent returns round(amount × pct / 100).
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return RoundAmount(amount.Mul(pct).Div(hundred))
}

// ClampZero floors d at zero.
func ClampZero(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// CapAt returns d limited to ceiling.
func CapAt(d, ceiling decimal.Decimal) decimal.Decimal {
	if d.GreaterThan(ceiling) {
		return ceiling
	}
	return d
}

// WaivedAbove returns zero when amount has reached threshold, else fee.
func WaivedAbove(amount, threshold, fee decimal.Decimal) decimal.Decimal {
	if amount.GreaterThanOrEqual(threshold) {
		return decimal.Zero
	}
	return fee
}
