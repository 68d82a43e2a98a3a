package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-gate/internal/credential"
	"ticket-gate/models"
)

type TicketReader interface {
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
}

type TicketHandler struct {
	tickets TicketReader
}

func NewTicketHandler(tickets TicketReader) *TicketHandler {
	return &TicketHandler{tickets: tickets}
}

// TicketQR - GET /api/v1/tickets/{ticketId}/qr?size=256
func (h *TicketHandler) TicketQR(e *core.RequestEvent) error {
	size := credential.DefaultImageSize
	if raw := e.Request.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 64 || n > 1024 {
			return apis.NewBadRequestError("size must be between 64 and 1024", nil)
		}
		size = n
	}

	ticket, err := h.tickets.GetTicket(e.Request.Context(), e.Request.PathValue("ticketId"))
	if err != nil {
		return toAPIError(err)
	}

	png, err := credential.RenderPNG(ticket.QRCode, size)
	if err != nil {
		return toAPIError(err)
	}

	e.Response.Header().Set("Cache-Control", "private, max-age=86400")
	return e.Blob(http.StatusOK, "image/png", png)
}
