package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-gate/internal/services"
)

type EventHandler struct {
	events *services.EventService
}

func NewEventHandler(events *services.EventService) *EventHandler {
	return &EventHandler{events: events}
}

// CreateEvent - POST /api/v1/events
func (h *EventHandler) CreateEvent(e *core.RequestEvent) error {
	var req services.CreateEventRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	event, err := h.events.CreateEvent(e.Request.Context(), req)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusCreated, event)
}

// GetEvent - GET /api/v1/events/{eventId}
func (h *EventHandler) GetEvent(e *core.RequestEvent) error {
	event, err := h.events.GetEvent(e.Request.Context(), e.Request.PathValue("eventId"))
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, event)
}

// AddTicketType - POST /api/v1/events/{eventId}/ticket-types
func (h *EventHandler) AddTicketType(e *core.RequestEvent) error {
	var req services.CreateTicketTypeRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	tt, err := h.events.AddTicketType(e.Request.Context(), e.Request.PathValue("eventId"), req)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusCreated, tt)
}

// ListTicketTypes - GET /api/v1/events/{eventId}/ticket-types
func (h *EventHandler) ListTicketTypes(e *core.RequestEvent) error {
	types, err := h.events.ListTicketTypes(e.Request.Context(), e.Request.PathValue("eventId"))
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"ticket_types": types})
}
