package domain

import (
	"slices"

	"github.com/shopspring/decimal"
)

// CartItem is a single line in the cart. Quantity is always at least 1; a
// line whose quantity would drop to zero is removed instead.
type CartItem struct {
	ID                   string          `json:"id"`
	Name                 string          `json:"name"`
	Price                decimal.Decimal `json:"price"`
	Quantity             int             `json:"quantity"`
	RequiresPrescription bool            `json:"requiresPrescription,omitempty"`
}

// LineTotal is price × quantity.
func (i CartItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Cart is an ordered list of lines keyed by item ID.
type Cart struct {
	Items []CartItem `json:"items"`
}

// NewCart returns an empty cart.
func NewCart() *Cart {
	return &Cart{Items: []CartItem{}}
}

// Clone returns a deep copy safe to hand to readers.
func (c *Cart) Clone() *Cart {
	if c == nil {
		return NewCart()
	}
	return &Cart{Items: append(make([]CartItem, 0, len(c.Items)), c.Items...)}
}

// ItemsCount is the sum of quantities.
func (c *Cart) ItemsCount() int {
	if c == nil {
		return 0
	}
	n := 0
	for _, it := range c.Items {
		n += it.Quantity
	}
	return n
}

// TotalPrice is the sum of line totals.
func (c *Cart) TotalPrice() decimal.Decimal {
	total := decimal.Zero
	if c == nil {
		return total
	}
	for _, it := range c.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// IsEmpty reports whether the cart has no lines.
func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}

// RequiresPrescription reports whether any line needs a prescription.
func (c *Cart) RequiresPrescription() bool {
	if c == nil {
		return false
	}
	for _, it := range c.Items {
		if it.RequiresPrescription {
			return true
		}
	}
	return false
}

func (c *Cart) indexOf(id string) int {
	return slices.IndexFunc(c.Items, func(it CartItem) bool { return it.ID == id })
}

// Find returns the line with the given ID.
func (c *Cart) Find(id string) (CartItem, bool) {
	if i := c.indexOf(id); i >= 0 {
		return c.Items[i], true
	}
	return CartItem{}, false
}

// Add merges qty into an existing line with the same ID, keeping that line's
// price, or appends item as a new line. qty below 1 is treated as 1.
func (c *Cart) Add(item CartItem, qty int) {
	if qty < 1 {
		qty = 1
	}
	if i := c.indexOf(item.ID); i >= 0 {
		c.Items[i].Quantity += qty
		return
	}
	item.Quantity = qty
	c.Items = append(c.Items, item)
}

// Remove drops the line with the given ID, if present.
func (c *Cart) Remove(id string) {
	c.Items = slices.DeleteFunc(c.Items, func(it CartItem) bool { return it.ID == id })
}

// SetQuantity sets a line's quantity exactly; qty ≤ 0 removes the line.
// It reports whether the line existed.
func (c *Cart) SetQuantity(id string, qty int) bool {
	i := c.indexOf(id)
	if i < 0 {
		return false
	}
	if qty <= 0 {
		c.Remove(id)
		return true
	}
	c.Items[i].Quantity = qty
	return true
}

// Deduct lowers each matching line by the quantity in items, removing lines
// that reach zero. Lines not in items are untouched.
func (c *Cart) Deduct(items []CartItem) {
	for _, it := range items {
		i := c.indexOf(it.ID)
		if i < 0 {
			continue
		}
		c.SetQuantity(it.ID, c.Items[i].Quantity-it.Quantity)
	}
}

// Clear empties the cart.
func (c *Cart) Clear() {
	c.Items = []CartItem{}
}

// Sanitize drops lines without an ID or with a non-positive quantity,
// floors negative prices at zero and merges lines sharing an ID into the
// first one, keeping its price. Snapshots read back from storage or the
// remote cart pass through it.
func (c *Cart) Sanitize() {
	kept := make([]CartItem, 0, len(c.Items))
	seen := make(map[string]int, len(c.Items))
	for _, it := range c.Items {
		if it.ID == "" || it.Quantity < 1 {
			continue
		}
		if i, ok := seen[it.ID]; ok {
			kept[i].Quantity += it.Quantity
			continue
		}
		it.Price = ClampZero(it.Price)
		seen[it.ID] = len(kept)
		kept = append(kept, it)
	}
	c.Items = kept
}
