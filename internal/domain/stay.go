package domain

import (
	"math"
	"time"
)

// Stay is a resolved check-in/check-out pair. Adjusted is set when the
// check-out date had to be moved forward.
type Stay struct {
	CheckIn  time.Time `json:"checkIn"`
	CheckOut time.Time `json:"checkOut"`
	Nights   int       `json:"nights"`
	Adjusted bool      `json:"adjusted,omitempty"`
}

// DateLayout is the calendar-day format used on the wire.
const DateLayout = "2006-01-02"

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ResolveStay truncates both dates to calendar days, moves check-out to the
// day after check-in when it is not after it, and counts nights. Nights is
// rounded so that a DST shift inside the stay does not lose a night.
func ResolveStay(checkIn, checkOut time.Time) Stay {
	in := startOfDay(checkIn)
	out := startOfDay(checkOut.In(checkIn.Location()))

	adjusted := false
	if !out.After(in) {
		out = in.AddDate(0, 0, 1)
		adjusted = true
	}

	nights := int(math.Round(out.Sub(in).Hours() / 24))
	if nights < 1 {
		nights = 1
	}
	return Stay{CheckIn: in, CheckOut: out, Nights: nights, Adjusted: adjusted}
}

// ParseStay parses two DateLayout strings and resolves them. An empty
// check-out resolves to one night.
func ParseStay(checkIn, checkOut string) (Stay, error) {
	in, err := time.Parse(DateLayout, checkIn)
	if err != nil {
		return Stay{}, err
	}
	out := in
	if checkOut != "" {
		if out, err = time.Parse(DateLayout, checkOut); err != nil {
			return Stay{}, err
		}
	}
	return ResolveStay(in, out), nil
}
