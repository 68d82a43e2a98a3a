package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"

	"ticket-gate/internal/status"
)

// toAPIError maps service errors onto HTTP errors. Unknown errors are logged
// and hidden behind a generic 500.
func toAPIError(err error) error {
	switch {
	case errors.Is(err, status.ErrInvalidInput):
		return apis.NewBadRequestError(err.Error(), nil)
	case errors.Is(err, status.ErrNotFound):
		return apis.NewNotFoundError("Not found", nil)
	case errors.Is(err, status.ErrVerifierUnauthorized):
		return apis.NewForbiddenError("Verifier is not authorized for this event", nil)
	case errors.Is(err, status.ErrInsufficientInventory):
		return apis.NewApiError(http.StatusConflict, "Not enough tickets left", nil)
	case errors.Is(err, status.ErrOrderNotPending):
		return apis.NewApiError(http.StatusConflict, "Order is not pending", nil)
	case errors.Is(err, status.ErrPaymentNotConfirmed):
		return apis.NewApiError(http.StatusPaymentRequired, "Payment not confirmed", nil)
	case errors.Is(err, status.ErrOracleUnavailable):
		return apis.NewApiError(http.StatusServiceUnavailable, "Payment provider unavailable, try again", nil)
	default:
		slog.Error("Request failed", "error", err)
		return apis.NewApiError(http.StatusInternalServerError, "Something went wrong", nil)
	}
}
