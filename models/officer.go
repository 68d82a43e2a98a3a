package models

import "time"

// SecurityOfficer binds a user to one event as a door verifier.
type SecurityOfficer struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	EventID   string    `json:"event_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type VerificationAction string

const (
	ActionVerified      VerificationAction = "VERIFIED"
	ActionDuplicateScan VerificationAction = "DUPLICATE_SCAN"
)

// VerificationLog is an append-only audit record.
type VerificationLog struct {
	ID         string             `json:"id"`
	TicketID   string             `json:"ticket_id"`
	VerifierID string             `json:"verifier_id"`
	EventID    string             `json:"event_id"`
	Action     VerificationAction `json:"action"`
	Detail     string             `json:"detail"`
	CreatedAt  time.Time          `json:"created_at"`
}
