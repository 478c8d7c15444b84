package domain

import (
	"github.com/shopspring/decimal"
)

// BookingDraft is the room booking being edited. Dates use DateLayout.
type BookingDraft struct {
	StoreID     string          `json:"storeId"`
	RoomID      string          `json:"roomId"`
	BaseRate    decimal.Decimal `json:"base"`
	CheckIn     string          `json:"checkIn"`
	CheckOut    string          `json:"checkOut"`
	Nights      int             `json:"nights"`
	RoomsGuests []int           `json:"roomsGuests"`
}

// Guests is the total headcount across rooms.
func (d BookingDraft) Guests() int {
	n := 0
	for _, g := range d.RoomsGuests {
		n += g
	}
	return n
}

// Availability is the room availability service's answer, or a local
// estimate when Estimated is set.
type Availability struct {
	Available            bool            `json:"available"`
	Base                 decimal.Decimal `json:"base"`
	Nights               int             `json:"nights"`
	Rooms                int             `json:"rooms"`
	Subtotal             decimal.Decimal `json:"subtotal"`
	Taxes                decimal.Decimal `json:"taxes"`
	Fees                 decimal.Decimal `json:"fees"`
	Total                decimal.Decimal `json:"total"`
	RoomsGuests          []int           `json:"roomsGuests"`
	ExtraMattressAllowed bool            `json:"extraMattressAllowed"`
	ExtraMattressCount   int             `json:"extraMattressCount"`
	MattressFeePerNight  decimal.Decimal `json:"mattressFeePerNight"`
	PerRoomMax           int             `json:"perRoomMax"`
	Reason               string          `json:"reason,omitempty"`
	Estimated            bool            `json:"estimated,omitempty"`
}

// EstimateAvailability builds a local availability answer from a quote. It
// is used when the availability service cannot be reached.
func EstimateAvailability(alloc RoomAllocation, quote PricingBreakdown, mattressFee decimal.Decimal) Availability {
	return Availability{
		Available:            true,
		Base:                 quote.BaseRatePerNight,
		Nights:               quote.Nights,
		Rooms:                quote.Rooms,
		Subtotal:             quote.Subtotal,
		Taxes:                quote.Taxes,
		Fees:                 quote.Fees,
		Total:                quote.Payable,
		RoomsGuests:          append([]int(nil), alloc.GuestsPerRoom...),
		ExtraMattressAllowed: alloc.ExtraMattressAllowed,
		ExtraMattressCount:   alloc.ExtraMattressCount,
		MattressFeePerNight:  mattressFee,
		PerRoomMax:           alloc.MaxPerRoom,
		Estimated:            true,
	}
}

// Breakdown itemises the availability answer. Every amount comes from the
// answer: the mattress share of Fees is count × nightly fee × nights, capped
// at Fees, and the remainder is the service fee. Payable is the answer's
// Total.
func (a Availability) Breakdown() PricingBreakdown {
	b := zeroBreakdown()
	b.BaseRatePerNight = a.Base
	b.Nights = a.Nights
	b.Rooms = a.Rooms
	b.Subtotal = a.Subtotal
	b.Taxes = a.Taxes
	b.Fees = ClampZero(a.Fees)
	b.Payable = ClampZero(a.Total)

	nights := decimal.NewFromInt(int64(max(a.Nights, 1)))
	mattress := ClampZero(a.MattressFeePerNight).
		Mul(decimal.NewFromInt(int64(max(a.ExtraMattressCount, 0)))).
		Mul(nights)
	b.MattressFee = CapAt(mattress, b.Fees)
	b.ServiceFee = b.Fees.Sub(b.MattressFee)

	if a.Subtotal.IsPositive() {
		b.TaxRatePct = a.Taxes.Mul(decimal.NewFromInt(100)).Div(a.Subtotal).Round(2)
	}
	return b
}

// Policy returns the room policy the availability answer implies.
func (a Availability) Policy(fallback RoomPolicy) RoomPolicy {
	p := fallback
	if a.PerRoomMax > 0 {
		p.MaxPerRoom = a.PerRoomMax
	}
	p.ExtraMattressAllowed = a.ExtraMattressAllowed
	return p
}
