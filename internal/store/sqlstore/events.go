package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"

	"ticket-gate/internal/status"
	"ticket-gate/internal/store"
	"ticket-gate/models"
)

type userRow struct {
	ID        string `db:"id"`
	Name      string `db:"name"`
	Email     string `db:"email"`
	Phone     string `db:"phone"`
	Role      string `db:"role"`
	CreatedAt int64  `db:"created_at"`
}

func (r userRow) model() *models.User {
	return &models.User{
		ID:        r.ID,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		Role:      models.Role(r.Role),
		CreatedAt: fromMillis(r.CreatedAt),
	}
}

const userColumns = "id, name, email, phone, role, created_at"

func (q *queries) CreateUser(ctx context.Context, u *models.User) error {
	_, err := q.exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ({:id}, {:name}, {:email}, {:phone}, {:role}, {:created_at})`, dbx.Params{
		"id":         u.ID,
		"name":       u.Name,
		"email":      strings.TrimSpace(u.Email),
		"phone":      u.Phone,
		"role":       string(u.Role),
		"created_at": millis(u.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("sqlstore: create user: %w", err)
	}
	return nil
}

func (q *queries) GetUser(ctx context.Context, id string) (*models.User, error) {
	var row userRow
	err := q.query(ctx, "SELECT "+userColumns+" FROM users WHERE id = {:id}", dbx.Params{"id": id}).One(&row)
	if err != nil {
		return nil, notFound(err, "user", id)
	}
	return row.model(), nil
}

func (q *queries) FindUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var row userRow
	err := q.query(ctx, "SELECT "+userColumns+" FROM users WHERE email = {:email}", dbx.Params{
		"email": strings.TrimSpace(email),
	}).One(&row)
	if err != nil {
		return nil, notFound(err, "user", email)
	}
	return row.model(), nil
}

func (q *queries) UpdateUserRole(ctx context.Context, id string, role models.Role) error {
	n, err := q.exec(ctx, "UPDATE users SET role = {:role} WHERE id = {:id}", dbx.Params{"id": id, "role": string(role)})
	if err != nil {
		return fmt.Errorf("sqlstore: update user role: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, status.ErrNotFound)
	}
	return nil
}

type eventRow struct {
	ID           string          `db:"id"`
	Title        string          `db:"title"`
	Location     string          `db:"location"`
	StartTime    int64           `db:"start_time"`
	EndTime      int64           `db:"end_time"`
	Price        decimal.Decimal `db:"price"`
	TotalTickets int             `db:"total_tickets"`
	SoldTickets  int             `db:"sold_tickets"`
	CreatedAt    int64           `db:"created_at"`
}

func (r eventRow) model() *models.Event {
	return &models.Event{
		ID:           r.ID,
		Title:        r.Title,
		Location:     r.Location,
		StartTime:    fromMillis(r.StartTime),
		EndTime:      fromMillis(r.EndTime),
		Price:        r.Price,
		TotalTickets: r.TotalTickets,
		SoldTickets:  r.SoldTickets,
		CreatedAt:    fromMillis(r.CreatedAt),
	}
}

const eventColumns = "id, title, location, start_time, end_time, price, total_tickets, sold_tickets, created_at"

func (q *queries) CreateEvent(ctx context.Context, e *models.Event) error {
	_, err := q.exec(ctx, `INSERT INTO events (`+eventColumns+`)
		VALUES ({:id}, {:title}, {:location}, {:start}, {:end}, {:price}, {:total}, {:sold}, {:created_at})`, dbx.Params{
		"id":         e.ID,
		"title":      e.Title,
		"location":   e.Location,
		"start":      millis(e.StartTime),
		"end":        millis(e.EndTime),
		"price":      e.Price.String(),
		"total":      e.TotalTickets,
		"sold":       e.SoldTickets,
		"created_at": millis(e.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("sqlstore: create event: %w", err)
	}
	return nil
}

func (q *queries) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var row eventRow
	err := q.query(ctx, "SELECT "+eventColumns+" FROM events WHERE id = {:id}", dbx.Params{"id": id}).One(&row)
	if err != nil {
		return nil, notFound(err, "event", id)
	}
	return row.model(), nil
}

func (q *queries) ListEventInventory(ctx context.Context) ([]store.EventInventory, error) {
	var rows []struct {
		ID    string `db:"id"`
		Title string `db:"title"`
		Sold  int    `db:"sold_tickets"`
		Total int    `db:"total_tickets"`
	}
	err := q.query(ctx, "SELECT id, title, sold_tickets, total_tickets FROM events ORDER BY start_time", nil).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list event inventory: %w", err)
	}

	out := make([]store.EventInventory, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.EventInventory{EventID: r.ID, Title: r.Title, Sold: r.Sold, Total: r.Total})
	}
	return out, nil
}

type ticketTypeRow struct {
	ID        string          `db:"id"`
	EventID   string          `db:"event_id"`
	Name      string          `db:"name"`
	Price     decimal.Decimal `db:"price"`
	Capacity  int             `db:"capacity"`
	SoldCount int             `db:"sold_count"`
	CreatedAt int64           `db:"created_at"`
}

func (r ticketTypeRow) model() models.TicketType {
	return models.TicketType{
		ID:        r.ID,
		EventID:   r.EventID,
		Name:      r.Name,
		Price:     r.Price,
		Capacity:  r.Capacity,
		SoldCount: r.SoldCount,
		CreatedAt: fromMillis(r.CreatedAt),
	}
}

const ticketTypeColumns = "id, event_id, name, price, capacity, sold_count, created_at"

func (q *queries) CreateTicketType(ctx context.Context, tt *models.TicketType) error {
	_, err := q.exec(ctx, `INSERT INTO ticket_types (`+ticketTypeColumns+`)
		VALUES ({:id}, {:event_id}, {:name}, {:price}, {:capacity}, {:sold}, {:created_at})`, dbx.Params{
		"id":         tt.ID,
		"event_id":   tt.EventID,
		"name":       tt.Name,
		"price":      tt.Price.String(),
		"capacity":   tt.Capacity,
		"sold":       tt.SoldCount,
		"created_at": millis(tt.CreatedAt),
	})
	if err != nil {
		return fmt.Errorf("sqlstore: create ticket type: %w", err)
	}
	return nil
}

func (q *queries) GetTicketType(ctx context.Context, id string) (*models.TicketType, error) {
	var row ticketTypeRow
	err := q.query(ctx, "SELECT "+ticketTypeColumns+" FROM ticket_types WHERE id = {:id}", dbx.Params{"id": id}).One(&row)
	if err != nil {
		return nil, notFound(err, "ticket type", id)
	}
	tt := row.model()
	return &tt, nil
}

func (q *queries) ListTicketTypes(ctx context.Context, eventID string) ([]models.TicketType, error) {
	var rows []ticketTypeRow
	err := q.query(ctx, "SELECT "+ticketTypeColumns+" FROM ticket_types WHERE event_id = {:event_id} ORDER BY created_at, id",
		dbx.Params{"event_id": eventID}).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list ticket types: %w", err)
	}
	out := make([]models.TicketType, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

func (q *queries) ReserveEventInventory(ctx context.Context, eventID string, quantity int) (int, error) {
	return q.reserve(ctx, "events", "sold_tickets", "total_tickets", eventID, quantity)
}

func (q *queries) ReserveTypeInventory(ctx context.Context, ticketTypeID string, quantity int) (int, error) {
	return q.reserve(ctx, "ticket_types", "sold_count", "capacity", ticketTypeID, quantity)
}

// reserve is the conditional increment behind both counters. The guard, the
// write and the read-back are one statement, so no interleaving can push sold
// past capacity or hand two callers the same starting number. Table and
// column names are compile-time constants.
func (q *queries) reserve(ctx context.Context, table, soldCol, capCol, id string, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, fmt.Errorf("reserve %d units: %w", quantity, status.ErrInvalidInput)
	}

	var sold int
	err := q.query(ctx, fmt.Sprintf(
		"UPDATE %s SET %s = %s + {:qty} WHERE id = {:id} AND %s + {:qty} <= %s RETURNING %s",
		table, soldCol, soldCol, soldCol, capCol, soldCol,
	), dbx.Params{"id": id, "qty": quantity}).Row(&sold)
	if err == nil {
		return sold - quantity, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("sqlstore: reserve %s inventory: %w", table, err)
	}

	// Nothing updated: either the row is missing or it is full.
	err = q.query(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE id = {:id}", soldCol, table), dbx.Params{"id": id}).Row(&sold)
	if err != nil {
		return 0, notFound(err, table, id)
	}
	return 0, fmt.Errorf("%s %s has %d sold, %d requested: %w", table, id, sold, quantity, status.ErrInsufficientInventory)
}
