package handlers

import (
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-gate/internal/services"
)

type OfficerHandler struct {
	officers *services.OfficerService
}

func NewOfficerHandler(officers *services.OfficerService) *OfficerHandler {
	return &OfficerHandler{officers: officers}
}

// RegisterOfficer - POST /api/v1/events/{eventId}/officers
func (h *OfficerHandler) RegisterOfficer(e *core.RequestEvent) error {
	var req services.RegisterOfficerRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	req.EventID = e.Request.PathValue("eventId")

	officer, err := h.officers.Register(e.Request.Context(), req)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusCreated, officer)
}

// ListOfficers - GET /api/v1/events/{eventId}/officers
func (h *OfficerHandler) ListOfficers(e *core.RequestEvent) error {
	officers, err := h.officers.ListByEvent(e.Request.Context(), e.Request.PathValue("eventId"))
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"officers": officers})
}

// UpdateOfficer - PATCH /api/v1/officers/{officerId}
func (h *OfficerHandler) UpdateOfficer(e *core.RequestEvent) error {
	var req struct {
		Active *bool `json:"active"`
	}
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}
	if req.Active == nil {
		return apis.NewBadRequestError("active is required", nil)
	}

	officer, err := h.officers.SetActive(e.Request.Context(), e.Request.PathValue("officerId"), *req.Active)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, officer)
}
