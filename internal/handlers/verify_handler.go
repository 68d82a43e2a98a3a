package handlers

import (
	"net/http"
	"strconv"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"ticket-gate/internal/services"
	"ticket-gate/security"
)

type VerifyHandler struct {
	verification *services.VerificationService
}

func NewVerifyHandler(verification *services.VerificationService) *VerifyHandler {
	return &VerifyHandler{verification: verification}
}

type verifyRequest struct {
	OfficerID string `json:"officer_id"`
	services.Selector
}

// Verify - POST /api/v1/events/{eventId}/verify
//
// The officer comes from the X-Officer-ID header, or officer_id in the body.
// Rejections are answered with the reason's status and the full result.
func (h *VerifyHandler) Verify(e *core.RequestEvent) error {
	var req verifyRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	officerID := e.Request.Header.Get(security.OfficerHeader)
	if officerID == "" {
		officerID = req.OfficerID
	}

	res, err := h.verification.Verify(e.Request.Context(), e.Request.PathValue("eventId"), officerID, req.Selector)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(res.HTTPStatus(), res)
}

// Verifications - GET /api/v1/events/{eventId}/verifications?limit=100
func (h *VerifyHandler) Verifications(e *core.RequestEvent) error {
	limit := 100
	if raw := e.Request.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			return apis.NewBadRequestError("limit must be between 1 and 1000", nil)
		}
		limit = n
	}

	logs, err := h.verification.History(e.Request.Context(), e.Request.PathValue("eventId"), limit)
	if err != nil {
		return toAPIError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{"verifications": logs})
}
