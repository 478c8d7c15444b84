package domain

import (
	"fmt"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	apperrors "github.com/sonic7adarsh/bharatapp/pkg/errors"
)

// Variant is a mutually exclusive option such as a pack size. A zero Price
// means the product's base price applies.
type Variant struct {
	ID    string          `json:"id" validate:"required"`
	Name  string          `json:"name" validate:"required"`
	Price decimal.Decimal `json:"price"`
}

// AddOn is an optional extra charged on top of the variant price.
type AddOn struct {
	ID    string          `json:"id" validate:"required"`
	Name  string          `json:"name" validate:"required"`
	Price decimal.Decimal `json:"price"`
}

// Product is a catalogue entry as the storefront receives it. It is
// validated once at the boundary and then converted to a CartItem.
type Product struct {
	ID                   string          `json:"id" validate:"required"`
	Name                 string          `json:"name" validate:"required"`
	Price                decimal.Decimal `json:"price"`
	RequiresPrescription bool            `json:"requiresPrescription"`
	Variants             []Variant       `json:"variants,omitempty" validate:"dive"`
	AddOns               []AddOn         `json:"addOns,omitempty" validate:"dive"`
}

// Validate checks prices and option uniqueness.
func (p Product) Validate() error {
	if strings.TrimSpace(p.ID) == "" || strings.TrimSpace(p.Name) == "" {
		return apperrors.Validation("product id and name are required")
	}
	if p.Price.IsNegative() {
		return apperrors.Validation("product price must not be negative").WithField("price")
	}
	seen := make(map[string]struct{}, len(p.Variants)+len(p.AddOns))
	for _, v := range p.Variants {
		if v.Price.IsNegative() {
			return apperrors.Validation(fmt.Sprintf("variant %s has a negative price", v.ID)).WithField("variants")
		}
		if _, dup := seen["v:"+v.ID]; dup {
			return apperrors.Validation(fmt.Sprintf("duplicate variant %s", v.ID)).WithField("variants")
		}
		seen["v:"+v.ID] = struct{}{}
	}
	for _, a := range p.AddOns {
		if a.Price.IsNegative() {
			return apperrors.Validation(fmt.Sprintf("add-on %s has a negative price", a.ID)).WithField("addOns")
		}
		if _, dup := seen["a:"+a.ID]; dup {
			return apperrors.Validation(fmt.Sprintf("duplicate add-on %s", a.ID)).WithField("addOns")
		}
		seen["a:"+a.ID] = struct{}{}
	}
	return nil
}

// ToCartItem resolves the chosen variant and add-ons into a cart line. The
// line ID is derived deterministically so that the same selection always
// merges into the same line:
//
//	<product>[:<variant>][+<addon>...]   add-ons sorted by ID
//
// A product with variants requires one to be chosen.
func (p Product) ToCartItem(variantID string, addOnIDs []string) (CartItem, error) {
	if err := p.Validate(); err != nil {
		return CartItem{}, err
	}

	id := p.ID
	name := p.Name
	price := p.Price

	switch {
	case variantID != "":
		i := slices.IndexFunc(p.Variants, func(v Variant) bool { return v.ID == variantID })
		if i < 0 {
			return CartItem{}, apperrors.Validation(fmt.Sprintf("unknown variant %s for %s", variantID, p.ID)).WithField("variantId")
		}
		v := p.Variants[i]
		id += ":" + v.ID
		name += " (" + v.Name + ")"
		if !v.Price.IsZero() {
			price = v.Price
		}
	case len(p.Variants) > 0:
		return CartItem{}, apperrors.Validation(fmt.Sprintf("choose an option for %s", p.Name)).WithField("variantId")
	}

	ids := slices.Clone(addOnIDs)
	slices.Sort(ids)
	ids = slices.Compact(ids)
	names := make([]string, 0, len(ids))
	for _, aid := range ids {
		i := slices.IndexFunc(p.AddOns, func(a AddOn) bool { return a.ID == aid })
		if i < 0 {
			return CartItem{}, apperrors.Validation(fmt.Sprintf("unknown add-on %s for %s", aid, p.ID)).WithField("addOnIds")
		}
		a := p.AddOns[i]
		id += "+" + a.ID
		names = append(names, a.Name)
		price = price.Add(a.Price)
	}
	if len(names) > 0 {
		name += " + " + strings.Join(names, ", ")
	}

	return CartItem{
		ID:                   id,
		Name:                 name,
		Price:                price,
		Quantity:             1,
		RequiresPrescription: p.RequiresPrescription,
	}, nil
}
