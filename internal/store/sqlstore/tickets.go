package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"

	"ticket-gate/models"
)

type ticketRow struct {
	ID           string          `db:"id"`
	EventID      string          `db:"event_id"`
	UserID       string          `db:"user_id"`
	OrderID      string          `db:"order_id"`
	TicketTypeID sql.NullString  `db:"ticket_type_id"`
	TicketType   string          `db:"ticket_type"`
	TicketNumber int             `db:"ticket_number"`
	Price        decimal.Decimal `db:"price"`
	QRCode       string          `db:"qr_code"`
	IsUsed       bool            `db:"is_used"`
	UsedAt       sql.NullInt64   `db:"used_at"`
	UsedBy       string          `db:"used_by"`
	CreatedAt    int64           `db:"created_at"`
}

func (r ticketRow) model() models.Ticket {
	t := models.Ticket{
		ID:           r.ID,
		EventID:      r.EventID,
		UserID:       r.UserID,
		OrderID:      r.OrderID,
		TicketTypeID: r.TicketTypeID.String,
		TicketType:   r.TicketType,
		TicketNumber: r.TicketNumber,
		Price:        r.Price,
		QRCode:       r.QRCode,
		IsUsed:       r.IsUsed,
		UsedBy:       r.UsedBy,
		CreatedAt:    fromMillis(r.CreatedAt),
	}
	if r.UsedAt.Valid {
		usedAt := fromMillis(r.UsedAt.Int64)
		t.UsedAt = &usedAt
	}
	return t
}

func ticketModels(rows []ticketRow) []models.Ticket {
	out := make([]models.Ticket, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out
}

const ticketColumns = "t.id, t.event_id, t.user_id, t.order_id, t.ticket_type_id, t.ticket_type, t.ticket_number, " +
	"t.price, t.qr_code, t.is_used, t.used_at, t.used_by, t.created_at"

func (q *queries) CreateTicket(ctx context.Context, t *models.Ticket) error {
	_, err := q.exec(ctx, `INSERT INTO tickets
		(id, event_id, user_id, order_id, ticket_type_id, ticket_type, ticket_number, price, qr_code, is_used, used_at, used_by, created_at)
		VALUES ({:id}, {:event_id}, {:user_id}, {:order_id}, {:type_id}, {:type}, {:number}, {:price}, {:qr}, {:used}, NULL, '', {:created_at})`,
		dbx.Params{
			"id":         t.ID,
			"event_id":   t.EventID,
			"user_id":    t.UserID,
			"order_id":   t.OrderID,
			"type_id":    nullable(t.TicketTypeID),
			"type":       t.TicketType,
			"number":     t.TicketNumber,
			"price":      t.Price.String(),
			"qr":         t.QRCode,
			"used":       boolInt(t.IsUsed),
			"created_at": millis(t.CreatedAt),
		})
	if err != nil {
		return fmt.Errorf("sqlstore: create ticket: %w", err)
	}
	return nil
}

func (q *queries) GetTicket(ctx context.Context, id string) (*models.Ticket, error) {
	var row ticketRow
	err := q.query(ctx, "SELECT "+ticketColumns+" FROM tickets t WHERE t.id = {:id}", dbx.Params{"id": id}).One(&row)
	if err != nil {
		return nil, notFound(err, "ticket", id)
	}
	t := row.model()
	return &t, nil
}

func (q *queries) ListTicketsByOrder(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var rows []ticketRow
	err := q.query(ctx, "SELECT "+ticketColumns+" FROM tickets t WHERE t.order_id = {:order_id} ORDER BY t.ticket_number",
		dbx.Params{"order_id": orderID}).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list tickets for order %s: %w", orderID, err)
	}
	return ticketModels(rows), nil
}

func (q *queries) FindTicketByCredential(ctx context.Context, eventID, userID, orderID string, ticketNumber int) (*models.Ticket, error) {
	var row ticketRow
	err := q.query(ctx, "SELECT "+ticketColumns+` FROM tickets t
		WHERE t.event_id = {:event_id} AND t.user_id = {:user_id} AND t.order_id = {:order_id} AND t.ticket_number = {:number}`,
		dbx.Params{"event_id": eventID, "user_id": userID, "order_id": orderID, "number": ticketNumber}).One(&row)
	if err != nil {
		return nil, notFound(err, "ticket for order", orderID)
	}
	t := row.model()
	return &t, nil
}

func (q *queries) FindTicketsByHolder(ctx context.Context, eventID string, h models.HolderQuery) ([]models.Ticket, error) {
	var (
		cond   string
		params = dbx.Params{"event_id": eventID}
	)
	h = h.Normalized()
	switch {
	case h.Email != "":
		cond = "u.email = {:email}"
		params["email"] = h.Email
	case h.Phone != "":
		cond = `u.phone LIKE {:phone} ESCAPE '\'`
		params["phone"] = "%" + escapeLike(h.Phone) + "%"
	case h.Name != "":
		cond = `LOWER(u.name) LIKE {:name} ESCAPE '\'`
		params["name"] = "%" + escapeLike(strings.ToLower(h.Name)) + "%"
	default:
		return nil, nil
	}

	var rows []ticketRow
	err := q.query(ctx, "SELECT "+ticketColumns+` FROM tickets t
		JOIN users u ON u.id = t.user_id
		WHERE t.event_id = {:event_id} AND `+cond+`
		ORDER BY t.is_used, t.user_id, t.ticket_number`, params).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: find tickets by holder: %w", err)
	}
	return ticketModels(rows), nil
}

func (q *queries) RedeemTicket(ctx context.Context, ticketID, verifierID string, at time.Time) (bool, error) {
	n, err := q.exec(ctx, `UPDATE tickets SET is_used = 1, used_at = {:at}, used_by = {:by}
		WHERE id = {:id} AND is_used = 0`, dbx.Params{"id": ticketID, "by": verifierID, "at": millis(at)})
	if err != nil {
		return false, fmt.Errorf("sqlstore: redeem ticket: %w", err)
	}
	return n == 1, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
