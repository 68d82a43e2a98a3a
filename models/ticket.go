package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Ticket struct {
	ID           string          `json:"id"`
	EventID      string          `json:"event_id"`
	UserID       string          `json:"user_id"`
	OrderID      string          `json:"order_id"`
	TicketTypeID string          `json:"ticket_type_id,omitempty"`
	TicketType   string          `json:"ticket_type"`
	TicketNumber int             `json:"ticket_number"`
	Price        decimal.Decimal `json:"price"` // snapshot at issuance
	QRCode       string          `json:"qr_code"`
	IsUsed       bool            `json:"is_used"`
	UsedAt       *time.Time      `json:"used_at,omitempty"`
	UsedBy       string          `json:"used_by,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

type Role string

const (
	RoleCustomer  Role = "customer"
	RoleSecurity  Role = "security"
	RoleOrganizer Role = "organizer"
	RoleAdmin     Role = "admin"
)

type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// HolderQuery selects tickets by their owner's contact details. Exactly one
// field is expected to be set.
type HolderQuery struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Normalized trims every field and keeps only the first non-blank one, in
// email, phone, name order.
func (h HolderQuery) Normalized() HolderQuery {
	switch {
	case strings.TrimSpace(h.Email) != "":
		return HolderQuery{Email: strings.TrimSpace(h.Email)}
	case strings.TrimSpace(h.Phone) != "":
		return HolderQuery{Phone: strings.TrimSpace(h.Phone)}
	case strings.TrimSpace(h.Name) != "":
		return HolderQuery{Name: strings.TrimSpace(h.Name)}
	}
	return HolderQuery{}
}

// Empty reports whether no field carries anything but whitespace.
func (h HolderQuery) Empty() bool {
	return h.Normalized() == HolderQuery{}
}
