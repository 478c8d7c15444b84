package domain

import (
	"errors"
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
	"github.com/sonic7adarsh/bharatapp/pkg/validator"
)

// Address is a delivery address as entered at checkout.
type Address struct {
	Label        string `json:"label,omitempty"`
	Name         string `json:"name" validate:"required"`
	Phone        string `json:"phone" validate:"required,in_phone"`
	Line1        string `json:"line1" validate:"required"`
	Line2        string `json:"line2,omitempty"`
	Landmark     string `json:"landmark,omitempty"`
	City         string `json:"city" validate:"required"`
	State        string `json:"state,omitempty"`
	Pincode      string `json:"pincode" validate:"required,pincode"`
	Instructions string `json:"instructions,omitempty"`
}

// addressLabels names the required fields in user-facing messages.
var addressLabels = map[string]string{
	"name":    "name",
	"phone":   "phone number",
	"line1":   "address",
	"city":    "city",
	"pincode": "pincode",
}

// IsZero reports whether no address has been entered.
func (a Address) IsZero() bool {
	return a == Address{}
}

// Validate checks required fields, then phone, then pincode format, and
// returns the first failure. Surrounding whitespace does not count as a
// value.
func (a Address) Validate() error {
	err := validator.Validate(a.Normalized(nil))
	if err == nil {
		return nil
	}
	var verr *validator.ValidationError
	if !errors.As(err, &verr) || len(verr.Errors) == 0 {
		return apperrors.Validation(err.Error())
	}

	// Errors arrive in field order; a missing field outranks a malformed one.
	first := verr.Errors[0]
	for _, fe := range verr.Errors {
		if fe.Tag() == "required" {
			first = fe
			break
		}
	}

	field := first.Field()
	switch first.Tag() {
	case "required":
		return apperrors.Validation("please enter your " + addressLabels[field]).WithField(field)
	case "in_phone":
		return apperrors.Validation("please enter a valid 10-digit mobile number").WithField(field)
	case "pincode":
		return apperrors.Validation("please enter a valid 6-digit pincode").WithField(field)
	}
	return apperrors.Validation(verr.Error()).WithField(field)
}

// Normalized returns the address with whitespace trimmed, the phone reduced
// to its last 10 digits and markup stripped from free-text fields.
func (a Address) Normalized(p *bluemonday.Policy) Address {
	clean := func(s string) string {
		s = strings.TrimSpace(s)
		if p != nil {
			s = strings.TrimSpace(html.UnescapeString(p.Sanitize(s)))
		}
		return s
	}
	return Address{
		Label:        clean(a.Label),
		Name:         clean(a.Name),
		Phone:        validator.NormalizePhone(a.Phone),
		Line1:        clean(a.Line1),
		Line2:        clean(a.Line2),
		Landmark:     clean(a.Landmark),
		City:         clean(a.City),
		State:        clean(a.State),
		Pincode:      strings.TrimSpace(a.Pincode),
		Instructions: clean(a.Instructions),
	}
}

// ServiceArea is the set of pincodes the store delivers to. An empty area
// serves every well-formed pincode.
type ServiceArea struct {
	pincodes map[string]struct{}
}

// NewServiceArea builds an area from a pincode list.
func NewServiceArea(pincodes []string) ServiceArea {
	area := ServiceArea{pincodes: make(map[string]struct{}, len(pincodes))}
	for _, p := range pincodes {
		if p = strings.TrimSpace(p); p != "" {
			area.pincodes[p] = struct{}{}
		}
	}
	return area
}

// Serves reports whether pincode is deliverable.
func (s ServiceArea) Serves(pincode string) bool {
	if len(s.pincodes) == 0 {
		return true
	}
	_, ok := s.pincodes[strings.TrimSpace(pincode)]
	return ok
}

// DeliverySlot is a chosen delivery window.
type DeliverySlot struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
	Date  string `json:"date,omitempty"`
}

// IsZero reports whether no slot has been chosen.
func (s DeliverySlot) IsZero() bool {
	return strings.TrimSpace(s.ID) == ""
}
