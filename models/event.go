package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StandardTicketType is the label used for events that sell without explicit ticket types.
const StandardTicketType = "Standard"

type Event struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Location     string          `json:"location"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
	Price        decimal.Decimal `json:"price"`
	TotalTickets int             `json:"total_tickets"`
	SoldTickets  int             `json:"sold_tickets"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Remaining returns how many tickets can still be issued for the event.
func (e *Event) Remaining() int {
	if e.SoldTickets >= e.TotalTickets {
		return 0
	}
	return e.TotalTickets - e.SoldTickets
}

type TicketType struct {
	ID        string          `json:"id"`
	EventID   string          `json:"event_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Capacity  int             `json:"capacity"`
	SoldCount int             `json:"sold_count"`
	CreatedAt time.Time       `json:"created_at"`
}

// TicketVariant is what an order buys: either an explicit TicketType or the
// implicit standard type backed by the event's own price and capacity.
type TicketVariant struct {
	TypeID   string          `json:"type_id,omitempty"`
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	Capacity int             `json:"capacity"`
	Sold     int             `json:"sold"`
}

// ResolveVariant picks the variant once so callers never branch on a nil type again.
func ResolveVariant(event *Event, ticketType *TicketType) TicketVariant {
	if ticketType == nil {
		return TicketVariant{
			Name:     StandardTicketType,
			Price:    event.Price,
			Capacity: event.TotalTickets,
			Sold:     event.SoldTickets,
		}
	}
	return TicketVariant{
		TypeID:   ticketType.ID,
		Name:     ticketType.Name,
		Price:    ticketType.Price,
		Capacity: ticketType.Capacity,
		Sold:     ticketType.SoldCount,
	}
}

// Explicit reports whether the variant is backed by its own TicketType row.
func (v TicketVariant) Explicit() bool {
	return v.TypeID != ""
}

// Total returns the price of quantity units of the variant.
func (v TicketVariant) Total(quantity int) decimal.Decimal {
	return v.Price.Mul(decimal.NewFromInt(int64(quantity)))
}
