package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "PENDING"
	OrderCompleted OrderStatus = "COMPLETED"
	OrderCancelled OrderStatus = "CANCELLED"
	OrderRefunded  OrderStatus = "REFUNDED"
)

type Order struct {
	ID           string          `json:"id"`
	UserID       string          `json:"user_id"`
	EventID      string          `json:"event_id"`
	TicketTypeID string          `json:"ticket_type_id,omitempty"`
	Quantity     int             `json:"quantity"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	Status       OrderStatus     `json:"status"`
	PaymentRef   string          `json:"payment_ref"`
	ExternalID   string          `json:"external_id,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// CanTransition reports whether the order lifecycle allows moving to next.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	switch s {
	case OrderPending:
		return next == OrderCompleted || next == OrderCancelled
	case OrderCompleted:
		return next == OrderRefunded
	default:
		return false
	}
}
