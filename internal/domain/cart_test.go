package domain

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertAmount compares money by value so 50 and 50.00 are equal.
func assertAmount(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.Truef(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s %v", want, got, msgAndArgs)
}

func item(id string, price int64) CartItem {
	return CartItem{ID: id, Name: id, Price: Rupees(price), Quantity: 1}
}

// ============================================================================
// Cart mutations
// ============================================================================

func TestCartAdd_MergesSameIDKeepingFirstPrice(t *testing.T) {
	c := NewCart()
	c.Add(item("atta-5kg", 250), 2)
	c.Add(CartItem{ID: "atta-5kg", Name: "Atta", Price: Rupees(999)}, 3)

	require.Len(t, c.Items, 1)
	assert.Equal(t, 5, c.Items[0].Quantity)
	assertAmount(t, "250", c.Items[0].Price)
	assert.Equal(t, 5, c.ItemsCount())
	assertAmount(t, "1250", c.TotalPrice())
}

func TestCartAdd_AppendsInOrder(t *testing.T) {
	c := NewCart()
	c.Add(item("milk", 30), 1)
	c.Add(item("bread", 45), 2)
	c.Add(item("eggs", 7), 0)

	require.Len(t, c.Items, 3)
	assert.Equal(t, []string{"milk", "bread", "eggs"}, []string{c.Items[0].ID, c.Items[1].ID, c.Items[2].ID})
	assert.Equal(t, 1, c.Items[2].Quantity, "non-positive add quantity counts as one")
}

func TestCartSetQuantity_ZeroRemoves(t *testing.T) {
	c := NewCart()
	c.Add(item("milk", 30), 4)

	assert.True(t, c.SetQuantity("milk", 0))
	assert.Empty(t, c.Items)
	assert.Equal(t, 0, c.ItemsCount())
	assertAmount(t, "0", c.TotalPrice())
}

func TestCartSetQuantity(t *testing.T) {
	c := NewCart()
	c.Add(item("milk", 30), 4)

	assert.True(t, c.SetQuantity("milk", 2))
	assert.Equal(t, 2, c.Items[0].Quantity)
	assert.False(t, c.SetQuantity("ghost", 2))
	assert.True(t, c.SetQuantity("milk", -3))
	assert.True(t, c.IsEmpty())
}

func TestCartRemoveAndClear(t *testing.T) {
	c := NewCart()
	c.Add(item("a", 1), 1)
	c.Add(item("b", 2), 1)
	c.Remove("a")
	c.Remove("missing")
	require.Len(t, c.Items, 1)
	assert.Equal(t, "b", c.Items[0].ID)

	c.Clear()
	assert.True(t, c.IsEmpty())
	assert.NotNil(t, c.Items)
}

func TestCartClone_IsIndependent(t *testing.T) {
	c := NewCart()
	c.Add(item("a", 10), 1)
	cp := c.Clone()
	cp.Items[0].Quantity = 9

	assert.Equal(t, 1, c.Items[0].Quantity)
	assert.True(t, (*Cart)(nil).Clone().IsEmpty())
}

func TestCart_NilSafeAggregates(t *testing.T) {
	var c *Cart
	assert.Equal(t, 0, c.ItemsCount())
	assertAmount(t, "0", c.TotalPrice())
	assert.False(t, c.RequiresPrescription())
	assert.True(t, c.IsEmpty())
}

func TestCartRequiresPrescription(t *testing.T) {
	c := NewCart()
	c.Add(item("soap", 40), 1)
	assert.False(t, c.RequiresPrescription())

	rx := item("amoxicillin", 120)
	rx.RequiresPrescription = true
	c.Add(rx, 1)
	assert.True(t, c.RequiresPrescription())
}

func TestCartSanitize(t *testing.T) {
	c := &Cart{Items: []CartItem{
		{ID: "", Price: Rupees(5), Quantity: 1},
		{ID: "zero", Price: Rupees(5), Quantity: 0},
		{ID: "neg-price", Price: Rupees(-5), Quantity: 2},
		{ID: "ok", Price: Rupees(10), Quantity: 1},
	}}
	c.Sanitize()

	require.Len(t, c.Items, 2)
	assert.Equal(t, "neg-price", c.Items[0].ID)
	assertAmount(t, "0", c.Items[0].Price)

	empty := &Cart{}
	empty.Sanitize()
	assert.NotNil(t, empty.Items)
}

func TestCartSanitize_MergesDuplicateIDs(t *testing.T) {
	c := &Cart{Items: []CartItem{
		{ID: "a", Name: "Atta 5kg", Price: Rupees(250), Quantity: 1},
		{ID: "b", Price: Rupees(40), Quantity: 1},
		{ID: "a", Name: "Atta 5kg", Price: Rupees(260), Quantity: 2},
	}}
	c.Sanitize()

	require.Len(t, c.Items, 2)
	assert.Equal(t, "a", c.Items[0].ID)
	assert.Equal(t, 3, c.Items[0].Quantity)
	assertAmount(t, "250", c.Items[0].Price, "first price wins")

	require.True(t, c.SetQuantity("a", 1))
	assert.Equal(t, 2, c.ItemsCount())
}

// ============================================================================
// Money helpers
// ============================================================================

func TestMoneyHelpers(t *testing.T) {
	assertAmount(t, "100", Percent(Rupees(1000), Rupees(10)))
	assertAmount(t, "3", Percent(decimal.RequireFromString("25"), Rupees(10)), "2.5 rounds half up")
	assertAmount(t, "0", ClampZero(Rupees(-4)))
	assertAmount(t, "40", CapAt(Rupees(50), Rupees(40)))
	assertAmount(t, "0", WaivedAbove(Rupees(199), Rupees(199), Rupees(29)))
	assertAmount(t, "29", WaivedAbove(Rupees(198), Rupees(199), Rupees(29)))
}

// ============================================================================
// Product → CartItem
// ============================================================================

func sampleProduct() Product {
	return Product{
		ID:    "paneer",
		Name:  "Paneer",
		Price: Rupees(90),
		Variants: []Variant{
			{ID: "200g", Name: "200 g"},
			{ID: "500g", Name: "500 g", Price: Rupees(210)},
		},
		AddOns: []AddOn{
			{ID: "cubes", Name: "Cut into cubes", Price: Rupees(10)},
			{ID: "bag", Name: "Cloth bag", Price: Rupees(15)},
		},
	}
}

func TestProductToCartItem(t *testing.T) {
	p := sampleProduct()

	it, err := p.ToCartItem("500g", []string{"cubes", "bag", "cubes"})
	require.NoError(t, err)
	assert.Equal(t, "paneer:500g+bag+cubes", it.ID)
	assert.Equal(t, "Paneer (500 g) + Cloth bag, Cut into cubes", it.Name)
	assertAmount(t, "235", it.Price)
	assert.Equal(t, 1, it.Quantity)

	again, err := p.ToCartItem("500g", []string{"bag", "cubes"})
	require.NoError(t, err)
	assert.Equal(t, it.ID, again.ID, "same selection merges into one line")

	base, err := p.ToCartItem("200g", nil)
	require.NoError(t, err)
	assertAmount(t, "90", base.Price, "zero variant price falls back to base")
}

func TestProductToCartItem_Errors(t *testing.T) {
	p := sampleProduct()

	_, err := p.ToCartItem("", nil)
	assert.ErrorContains(t, err, "choose an option")

	_, err = p.ToCartItem("1kg", nil)
	assert.ErrorContains(t, err, "unknown variant")

	_, err = p.ToCartItem("200g", []string{"gift-wrap"})
	assert.ErrorContains(t, err, "unknown add-on")

	p.Variants = append(p.Variants, Variant{ID: "200g", Name: "dup"})
	_, err = p.ToCartItem("200g", nil)
	assert.ErrorContains(t, err, "duplicate variant")

	_, err = Product{ID: "x", Name: "X", Price: Rupees(-1)}.ToCartItem("", nil)
	assert.ErrorContains(t, err, "negative")
}

func TestProductToCartItem_PlainProductCarriesPrescriptionFlag(t *testing.T) {
	p := Product{ID: "crocin", Name: "Crocin", Price: Rupees(30), RequiresPrescription: true}
	it, err := p.ToCartItem("", nil)
	require.NoError(t, err)
	assert.Equal(t, "crocin", it.ID)
	assert.True(t, it.RequiresPrescription)
}
