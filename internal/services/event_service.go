package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ticket-gate/internal/clock"
	"ticket-gate/internal/status"
	"ticket-gate/internal/store"
	"ticket-gate/models"
)

type CreateEventRequest struct {
	Title        string          `json:"title" validate:"required,max=200"`
	Location     string          `json:"location" validate:"max=200"`
	StartTime    time.Time       `json:"start_time" validate:"required"`
	EndTime      time.Time       `json:"end_time" validate:"required,gtfield=StartTime"`
	Price        decimal.Decimal `json:"price"`
	TotalTickets int             `json:"total_tickets" validate:"required,min=1"`
}

type CreateTicketTypeRequest struct {
	Name     string          `json:"name" validate:"required,max=80"`
	Price    decimal.Decimal `json:"price"`
	Capacity int             `json:"capacity" validate:"required,min=1"`
}

// EventService is the organizer-side setup of events and their ticket types.
type EventService struct {
	store store.Store
	clock clock.Clock
}

func NewEventService(st store.Store, clk clock.Clock) *EventService {
	return &EventService{store: st, clock: clk}
}

func (s *EventService) CreateEvent(ctx context.Context, req CreateEventRequest) (*models.Event, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", status.ErrInvalidInput)
	}

	event := &models.Event{
		ID:           uuid.NewString(),
		Title:        req.Title,
		Location:     req.Location,
		StartTime:    req.StartTime,
		EndTime:      req.EndTime,
		Price:        req.Price,
		TotalTickets: req.TotalTickets,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.store.CreateEvent(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}

	slog.Info("Event created", "event_id", event.ID, "total_tickets", event.TotalTickets)
	return event, nil
}

func (s *EventService) GetEvent(ctx context.Context, eventID string) (*models.Event, error) {
	return s.store.GetEvent(ctx, eventID)
}

// AddTicketType subdivides an event. A type's capacity may not exceed the
// event's own capacity.
func (s *EventService) AddTicketType(ctx context.Context, eventID string, req CreateTicketTypeRequest) (*models.TicketType, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.Price.IsNegative() {
		return nil, fmt.Errorf("%w: price must not be negative", status.ErrInvalidInput)
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if req.Capacity > event.TotalTickets {
		return nil, fmt.Errorf("%w: capacity %d exceeds event capacity %d", status.ErrInvalidInput, req.Capacity, event.TotalTickets)
	}

	tt := &models.TicketType{
		ID:        uuid.NewString(),
		EventID:   event.ID,
		Name:      req.Name,
		Price:     req.Price,
		Capacity:  req.Capacity,
		CreatedAt: s.clock.Now(),
	}
	if err := s.store.CreateTicketType(ctx, tt); err != nil {
		return nil, fmt.Errorf("create ticket type: %w", err)
	}
	return tt, nil
}

func (s *EventService) ListTicketTypes(ctx context.Context, eventID string) ([]models.TicketType, error) {
	if _, err := s.store.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return s.store.ListTicketTypes(ctx, eventID)
}
