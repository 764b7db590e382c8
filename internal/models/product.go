package models

// Product is what the catalog reports about a product or a variation.
type Product struct {
	ID           int64  `json:"id" yaml:"id"`
	ParentID     int64  `json:"parent_id,omitempty" yaml:"-"`
	Name         string `json:"name" yaml:"name"`
	Purchasable  bool   `json:"purchasable" yaml:"purchasable"`
	InStock      bool   `json:"in_stock" yaml:"in_stock"`
	PriceDisplay string `json:"price_display" yaml:"price_display"`
	Permalink    string `json:"permalink" yaml:"permalink"`
}

// Sellable reports whether the product may be saved to a wishlist.
func (p *Product) Sellable() bool {
	return p != nil && p.Purchasable
}
