package domain

import "github.com/shopspring/decimal"

// Cart maps item IDs to quantities, the shape the food API stores as cartData.
type Cart map[string]int

// NewCart returns an empty cart.
func NewCart() Cart {
	return Cart{}
}

// Clone returns an independent copy. A nil cart clones to an empty one.
func (c Cart) Clone() Cart {
	out := make(Cart, len(c))
	for id, qty := range c {
		out[id] = qty
	}
	return out
}

// Quantity returns the quantity for id, 0 when absent.
func (c Cart) Quantity(id string) int {
	return c[id]
}

// ItemCount returns the number of units across positive entries.
func (c Cart) ItemCount() int {
	var count int
	for _, qty := range c {
		if qty > 0 {
			count += qty
		}
	}
	return count
}

// TotalAmount sums price × quantity over entries with a positive quantity
// whose ID exists in the catalog. Unknown IDs contribute nothing.
func (c Cart) TotalAmount(catalog Catalog) decimal.Decimal {
	total := decimal.Zero
	if len(c) == 0 || len(catalog) == 0 {
		return total
	}
	idx := catalog.Index()
	for id, qty := range c {
		if qty <= 0 {
			continue
		}
		p, ok := idx[id]
		if !ok {
			continue
		}
		total = total.Add(p.Price.Mul(decimal.NewFromInt(int64(qty))))
	}
	return total
}

// Lines returns the priced lines of the cart in catalog order, skipping
// non-positive and unknown entries.
func (c Cart) Lines(catalog Catalog) []Line {
	lines := make([]Line, 0, len(c))
	seen := make(map[string]bool, len(c))
	for _, p := range catalog {
		qty := c[p.ID]
		if qty <= 0 || seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		lines = append(lines, Line{
			Product:  p,
			Quantity: qty,
			Subtotal: p.Price.Mul(decimal.NewFromInt(int64(qty))),
		})
	}
	return lines
}

// Line is one priced cart row as rendered by the cart page.
type Line struct {
	Product  Product         `json:"product"`
	Quantity int             `json:"quantity"`
	Subtotal decimal.Decimal `json:"subtotal"`
}
