package models

import "time"

// ConversionRecord attributes a purchased line item to an earlier save.
type ConversionRecord struct {
	ID          int64     `json:"id" db:"id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	ProductID   int64     `json:"product_id" db:"product_id"`
	VariationID int64     `json:"variation_id" db:"variation_id"`
	OrderID     int64     `json:"order_id" db:"order_id"`
	Quantity    int       `json:"quantity" db:"quantity"`
	ItemTotal   float64   `json:"item_total" db:"item_total"`
	ConvertedAt time.Time `json:"converted_at" db:"converted_at"`
}

// StatsRange bounds analytics queries. Nil ends are open.
type StatsRange struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the range, inclusive on both ends.
func (r StatsRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// ProductStat is one row of the per-product wishlist report.
type ProductStat struct {
	ProductID   int64   `json:"product_id"`
	Adds        int     `json:"adds"`
	Conversions int     `json:"conversions"`
	Revenue     float64 `json:"revenue"`
}

// StatsSummary aggregates adds and conversions over a range.
type StatsSummary struct {
	TotalAdds       int     `json:"total_adds"`
	Conversions     int     `json:"conversions"`
	Revenue         float64 `json:"revenue"`
	PurchasingUsers int     `json:"purchasing_users"`
	ConversionRate  float64 `json:"conversion_rate"`
}

// ConversionNotice summarises the conversions recorded for one order.
type ConversionNotice struct {
	OrderID int64               `json:"order_id"`
	UserID  int64               `json:"user_id"`
	Status  OrderStatus         `json:"status"`
	Records []*ConversionRecord `json:"records"`
}

// Revenue sums the line totals of the notice.
func (n ConversionNotice) Revenue() float64 {
	var total float64
	for _, rec := range n.Records {
		total += rec.ItemTotal
	}
	return total
}
