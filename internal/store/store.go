// Package store defines the transactional record store the issuance and
// verification core runs against.
package store

import (
	"context"
	"time"

	"ticket-gate/models"
)

// Queries are the reads and writes available both inside and outside a
// transaction. Lookups that find nothing return status.ErrNotFound.
type Queries interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	FindUserByEmail(ctx context.Context, email string) (*models.User, error)
	UpdateUserRole(ctx context.Context, id string, role models.Role) error

	CreateEvent(ctx context.Context, e *models.Event) error
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEventInventory(ctx context.Context) ([]EventInventory, error)
	CreateTicketType(ctx context.Context, tt *models.TicketType) error
	GetTicketType(ctx context.Context, id string) (*models.TicketType, error)
	ListTicketTypes(ctx context.Context, eventID string) ([]models.TicketType, error)

	// ReserveEventInventory adds quantity to the event's sold counter only if
	// the result stays within capacity, and returns the counter value from
	// before the increment. A full event yields status.ErrInsufficientInventory.
	ReserveEventInventory(ctx context.Context, eventID string, quantity int) (int, error)
	// ReserveTypeInventory is ReserveEventInventory for a ticket type.
	ReserveTypeInventory(ctx context.Context, ticketTypeID string, quantity int) (int, error)

	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	GetOrderByPaymentRef(ctx context.Context, ref string) (*models.Order, error)
	// CompleteOrder moves a PENDING order to COMPLETED. It reports false when
	// the order was not PENDING.
	CompleteOrder(ctx context.Context, id, externalID string, at time.Time) (bool, error)
	// CancelOrder moves a PENDING order to CANCELLED.
	CancelOrder(ctx context.Context, id string, at time.Time) (bool, error)

	CreateTicket(ctx context.Context, t *models.Ticket) error
	GetTicket(ctx context.Context, id string) (*models.Ticket, error)
	ListTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error)
	FindTicketByCredential(ctx context.Context, eventID, userID, orderID string, ticketNumber int) (*models.Ticket, error)
	// FindTicketsByHolder matches the owning user's name (substring), email
	// (exact) or phone (substring), case-insensitively, within one event.
	// Unused tickets sort first.
	FindTicketsByHolder(ctx context.Context, eventID string, q models.HolderQuery) ([]models.Ticket, error)
	// RedeemTicket flips is_used from false to true and stamps used_at and
	// used_by in one conditional update. It reports false when the ticket
	// was already used.
	RedeemTicket(ctx context.Context, ticketID, verifierID string, at time.Time) (bool, error)

	AppendVerificationLog(ctx context.Context, l *models.VerificationLog) error
	CountVerificationsSince(ctx context.Context, verifierID, eventID string, action models.VerificationAction, since time.Time) (int, error)
	ListVerificationLogs(ctx context.Context, eventID string, limit int) ([]models.VerificationLog, error)

	CreateOfficer(ctx context.Context, o *models.SecurityOfficer) error
	GetOfficer(ctx context.Context, id string) (*models.SecurityOfficer, error)
	SetOfficerActive(ctx context.Context, id string, active bool, at time.Time) error
	ListOfficersByEvent(ctx context.Context, eventID string) ([]models.SecurityOfficer, error)
}

// Store runs Queries directly or inside an atomic unit. fn must only use the
// Queries it is handed; a non-nil return rolls everything back.
type Store interface {
	Queries
	Transact(ctx context.Context, fn func(q Queries) error) error
	Close() error
}

type EventInventory struct {
	EventID string
	Title   string
	Sold    int
	Total   int
}
