package models

import "strings"

// OrderStatus is the state an order reached in the shop.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusRefunded   OrderStatus = "refunded"
)

// ParseOrderStatus normalizes a status string, accepting an optional "wc-" prefix.
func ParseOrderStatus(s string) OrderStatus {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "wc-")
	return OrderStatus(s)
}

// Trackable reports whether reaching this status should attribute conversions.
func (s OrderStatus) Trackable() bool {
	return s == OrderStatusProcessing || s == OrderStatusCompleted
}

// OrderLineItem is one purchased line.
type OrderLineItem struct {
	ProductID   int64   `json:"product_id"`
	VariationID int64   `json:"variation_id"`
	Quantity    int     `json:"quantity"`
	LineTotal   float64 `json:"line_total"`
}

// OrderEvent is emitted when an order reaches a new status.
type OrderEvent struct {
	OrderID int64           `json:"order_id"`
	UserID  int64           `json:"user_id"`
	Status  OrderStatus     `json:"status"`
	Items   []OrderLineItem `json:"items"`
}
