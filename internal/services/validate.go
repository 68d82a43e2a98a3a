package services

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"ticket-gate/internal/status"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateRequest runs struct tag validation and maps failures onto
// status.ErrInvalidInput.
func validateRequest(req any) error {
	if err := validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", status.ErrInvalidInput, err)
	}
	return nil
}
