package domain

import "github.com/shopspring/decimal"

// Product is a food item listed by the catalog endpoint. The food API keys
// products by their Mongo-style "_id".
type Product struct {
	ID          string          `json:"_id" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Image       string          `json:"image,omitempty"`
	Category    string          `json:"category,omitempty"`
}

// Catalog is the ordered product list returned by the food API.
type Catalog []Product

// Find returns the first product with the given ID.
func (c Catalog) Find(id string) (Product, bool) {
	for _, p := range c {
		if p.ID == id {
			return p, true
		}
	}
	return Product{}, false
}

// Index maps product IDs to products. When an ID repeats, the first entry
// wins, matching Find.
func (c Catalog) Index() map[string]Product {
	idx := make(map[string]Product, len(c))
	for _, p := range c {
		if _, seen := idx[p.ID]; !seen {
			idx[p.ID] = p
		}
	}
	return idx
}

// Clone returns a copy that shares no backing array with c.
func (c Catalog) Clone() Catalog {
	if c == nil {
		return Catalog{}
	}
	out := make(Catalog, len(c))
	copy(out, c)
	return out
}
