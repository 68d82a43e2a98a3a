package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"ticket-gate/internal/clock"
	"ticket-gate/internal/credential"
	"ticket-gate/internal/notify"
	"ticket-gate/internal/status"
	"ticket-gate/internal/store"
	"ticket-gate/models"
	"ticket-gate/monitoring"
)

// IssuanceService mints tickets for completed orders.
type IssuanceService struct {
	store     store.Store
	codec     *credential.Codec
	publisher notify.Publisher
	monitor   *monitoring.Monitor
	clock     clock.Clock
}

func NewIssuanceService(st store.Store, codec *credential.Codec, pub notify.Publisher, mon *monitoring.Monitor, clk clock.Clock) *IssuanceService {
	if pub == nil {
		pub = notify.Nop{}
	}
	return &IssuanceService{
		store:     st,
		codec:     codec,
		publisher: pub,
		monitor:   mon,
		clock:     clk,
	}
}

// IssueTickets returns the tickets of a COMPLETED order, minting them on the
// first call. Repeated calls return the same tickets without touching
// inventory. quantity and ticketTypeID must be what the order paid for;
// ticketTypeID is empty for the event's standard tickets.
func (s *IssuanceService) IssueTickets(ctx context.Context, orderID string, quantity int, ticketTypeID string) ([]models.Ticket, error) {
	var (
		order  *models.Order
		minted bool
		issued []models.Ticket
	)

	err := s.store.Transact(ctx, func(q store.Queries) error {
		var err error
		order, err = q.GetOrder(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderCompleted {
			return fmt.Errorf("order %s is %s: %w", order.ID, order.Status, status.ErrPaymentNotConfirmed)
		}
		if quantity != order.Quantity || ticketTypeID != order.TicketTypeID {
			return fmt.Errorf("order %s paid for %d of type %q, asked for %d of type %q: %w",
				order.ID, order.Quantity, order.TicketTypeID, quantity, ticketTypeID, status.ErrInvalidInput)
		}

		issued, minted, err = s.issue(ctx, q, order, quantity, ticketTypeID)
		return err
	})
	if err != nil {
		s.monitor.TrackIssuanceFailure(failureReason(err))
		return nil, err
	}

	if minted {
		s.announce(ctx, order, issued)
	}
	return issued, nil
}

// issue runs inside the caller's transaction. It reports whether new tickets
// were minted or existing ones were returned.
func (s *IssuanceService) issue(ctx context.Context, q store.Queries, order *models.Order, quantity int, ticketTypeID string) ([]models.Ticket, bool, error) {
	existing, err := q.ListTicketsByOrder(ctx, order.ID)
	if err != nil {
		return nil, false, err
	}
	if len(existing) > 0 {
		slog.Info("Order already issued", "order_id", order.ID, "tickets", len(existing))
		return existing, false, nil
	}

	if quantity <= 0 {
		return nil, false, fmt.Errorf("quantity %d: %w", quantity, status.ErrInvalidInput)
	}

	event, err := q.GetEvent(ctx, order.EventID)
	if err != nil {
		return nil, false, fmt.Errorf("event %s: %w", order.EventID, err)
	}

	var ticketType *models.TicketType
	if ticketTypeID != "" {
		ticketType, err = q.GetTicketType(ctx, ticketTypeID)
		if err != nil {
			return nil, false, fmt.Errorf("ticket type %s: %w", ticketTypeID, err)
		}
		if ticketType.EventID != event.ID {
			return nil, false, fmt.Errorf("ticket type %s belongs to another event: %w", ticketTypeID, status.ErrInvalidInput)
		}
	}
	variant := models.ResolveVariant(event, ticketType)

	// Numbers come from the event counter so they stay unique per event
	// even when several types are on sale.
	start, err := q.ReserveEventInventory(ctx, event.ID, quantity)
	if err != nil {
		return nil, false, err
	}
	if variant.Explicit() {
		if _, err := q.ReserveTypeInventory(ctx, variant.TypeID, quantity); err != nil {
			return nil, false, err
		}
	}

	now := s.clock.Now()
	tickets := make([]models.Ticket, 0, quantity)
	for i := 0; i < quantity; i++ {
		number := start + i + 1
		payload, err := s.codec.Encode(event.ID, order.UserID, order.ID, number, now.UnixMilli())
		if err != nil {
			return nil, false, fmt.Errorf("encode ticket %d: %w", number, err)
		}

		ticket := models.Ticket{
			ID:           uuid.NewString(),
			EventID:      event.ID,
			UserID:       order.UserID,
			OrderID:      order.ID,
			TicketTypeID: variant.TypeID,
			TicketType:   variant.Name,
			TicketNumber: number,
			Price:        variant.Price,
			QRCode:       payload,
			CreatedAt:    now,
		}
		if err := q.CreateTicket(ctx, &ticket); err != nil {
			return nil, false, fmt.Errorf("create ticket %d: %w", number, err)
		}
		tickets = append(tickets, ticket)
	}

	return tickets, true, nil
}

// announce runs after commit. Delivery failures are logged only.
func (s *IssuanceService) announce(ctx context.Context, order *models.Order, tickets []models.Ticket) {
	s.monitor.TrackIssuance(order.EventID, len(tickets))
	slog.Info("Tickets issued", "order_id", order.ID, "event_id", order.EventID, "count", len(tickets))

	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	msg := notify.Message{
		"type":       notify.TypeTicketsIssued,
		"order_id":   order.ID,
		"event_id":   order.EventID,
		"user_id":    order.UserID,
		"ticket_ids": ids,
		"count":      len(tickets),
	}
	if err := s.publisher.Publish(ctx, notify.UserChannel(order.UserID), msg); err != nil {
		slog.Error("Failed to publish tickets issued", "error", err, "order_id", order.ID)
	}
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, status.ErrInsufficientInventory):
		return "insufficient_inventory"
	case errors.Is(err, status.ErrNotFound):
		return "not_found"
	case errors.Is(err, status.ErrPaymentNotConfirmed):
		return "payment_not_confirmed"
	case errors.Is(err, status.ErrOrderNotPending):
		return "order_not_pending"
	case errors.Is(err, status.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, status.ErrOracleUnavailable):
		return "oracle_unavailable"
	default:
		return "internal"
	}
}
