package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"ticket-gate/internal/clock"
	"ticket-gate/internal/status"
	"ticket-gate/internal/store"
	"ticket-gate/models"
)

type RegisterOfficerRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"omitempty,max=32"`
	EventID string `json:"event_id" validate:"required"`
}

// OfficerService is the allow-list of verifiers per event.
type OfficerService struct {
	store store.Store
	clock clock.Clock
}

func NewOfficerService(st store.Store, clk clock.Clock) *OfficerService {
	return &OfficerService{store: st, clock: clk}
}

// Register binds a new active officer record to the event. An existing user
// with the same email is reused and elevated to the security role.
func (s *OfficerService) Register(ctx context.Context, req RegisterOfficerRequest) (*models.SecurityOfficer, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	var officer *models.SecurityOfficer
	err := s.store.Transact(ctx, func(q store.Queries) error {
		if _, err := q.GetEvent(ctx, req.EventID); err != nil {
			return fmt.Errorf("event %s: %w", req.EventID, err)
		}

		now := s.clock.Now()
		user, err := q.FindUserByEmail(ctx, req.Email)
		switch {
		case errors.Is(err, status.ErrNotFound):
			user = &models.User{
				ID:        uuid.NewString(),
				Name:      req.Name,
				Email:     req.Email,
				Phone:     req.Phone,
				Role:      models.RoleSecurity,
				CreatedAt: now,
			}
			if err := q.CreateUser(ctx, user); err != nil {
				return fmt.Errorf("create user: %w", err)
			}
		case err != nil:
			return err
		case user.Role == models.RoleCustomer:
			if err := q.UpdateUserRole(ctx, user.ID, models.RoleSecurity); err != nil {
				return fmt.Errorf("elevate user %s: %w", user.ID, err)
			}
		}

		officer = &models.SecurityOfficer{
			ID:        uuid.NewString(),
			UserID:    user.ID,
			EventID:   req.EventID,
			Name:      req.Name,
			Email:     user.Email,
			Phone:     req.Phone,
			Active:    true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return q.CreateOfficer(ctx, officer)
	})
	if err != nil {
		return nil, err
	}

	slog.Info("Security officer registered", "officer_id", officer.ID, "event_id", officer.EventID, "user_id", officer.UserID)
	return officer, nil
}

// Authorize returns the officer when it is active and bound to eventID.
// Every other case is status.ErrVerifierUnauthorized; store failures pass
// through unchanged.
func (s *OfficerService) Authorize(ctx context.Context, verifierID, eventID string) (*models.SecurityOfficer, error) {
	if verifierID == "" {
		return nil, status.ErrVerifierUnauthorized
	}

	officer, err := s.store.GetOfficer(ctx, verifierID)
	if errors.Is(err, status.ErrNotFound) {
		return nil, status.ErrVerifierUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if !officer.Active || officer.EventID != eventID {
		return nil, status.ErrVerifierUnauthorized
	}
	return officer, nil
}

// SetActive toggles eligibility. Verification history is kept.
func (s *OfficerService) SetActive(ctx context.Context, officerID string, active bool) (*models.SecurityOfficer, error) {
	if err := s.store.SetOfficerActive(ctx, officerID, active, s.clock.Now()); err != nil {
		return nil, err
	}
	slog.Info("Security officer updated", "officer_id", officerID, "active", active)
	return s.store.GetOfficer(ctx, officerID)
}

func (s *OfficerService) ListByEvent(ctx context.Context, eventID string) ([]models.SecurityOfficer, error) {
	return s.store.ListOfficersByEvent(ctx, eventID)
}
