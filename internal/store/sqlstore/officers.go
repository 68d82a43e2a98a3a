package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"

	"ticket-gate/internal/status"
	"ticket-gate/models"
)

type officerRow struct {
	ID        string `db:"id"`
	UserID    string `db:"user_id"`
	EventID   string `db:"event_id"`
	Name      string `db:"name"`
	Email     string `db:"email"`
	Phone     string `db:"phone"`
	Active    bool   `db:"active"`
	CreatedAt int64  `db:"created_at"`
	UpdatedAt int64  `db:"updated_at"`
}

func (r officerRow) model() models.SecurityOfficer {
	return models.SecurityOfficer{
		ID:        r.ID,
		UserID:    r.UserID,
		EventID:   r.EventID,
		Name:      r.Name,
		Email:     r.Email,
		Phone:     r.Phone,
		Active:    r.Active,
		CreatedAt: fromMillis(r.CreatedAt),
		UpdatedAt: fromMillis(r.UpdatedAt),
	}
}

const officerColumns = "id, user_id, event_id, name, email, phone, active, created_at, updated_at"

func (q *queries) CreateOfficer(ctx context.Context, o *models.SecurityOfficer) error {
	_, err := q.exec(ctx, `INSERT INTO security_officers (`+officerColumns+`)
		VALUES ({:id}, {:user_id}, {:event_id}, {:name}, {:email}, {:phone}, {:active}, {:created_at}, {:updated_at})`,
		dbx.Params{
			"id":         o.ID,
			"user_id":    o.UserID,
			"event_id":   o.EventID,
			"name":       o.Name,
			"email":      o.Email,
			"phone":      o.Phone,
			"active":     boolInt(o.Active),
			"created_at": millis(o.CreatedAt),
			"updated_at": millis(o.UpdatedAt),
		})
	if err != nil {
		return fmt.Errorf("sqlstore: create officer: %w", err)
	}
	return nil
}

func (q *queries) GetOfficer(ctx context.Context, id string) (*models.SecurityOfficer, error) {
	var row officerRow
	err := q.query(ctx, "SELECT "+officerColumns+" FROM security_officers WHERE id = {:id}", dbx.Params{"id": id}).One(&row)
	if err != nil {
		return nil, notFound(err, "officer", id)
	}
	o := row.model()
	return &o, nil
}

func (q *queries) SetOfficerActive(ctx context.Context, id string, active bool, at time.Time) error {
	n, err := q.exec(ctx, "UPDATE security_officers SET active = {:active}, updated_at = {:at} WHERE id = {:id}",
		dbx.Params{"id": id, "active": boolInt(active), "at": millis(at)})
	if err != nil {
		return fmt.Errorf("sqlstore: set officer active: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("officer %s: %w", id, status.ErrNotFound)
	}
	return nil
}

func (q *queries) ListOfficersByEvent(ctx context.Context, eventID string) ([]models.SecurityOfficer, error) {
	var rows []officerRow
	err := q.query(ctx, "SELECT "+officerColumns+" FROM security_officers WHERE event_id = {:event_id} ORDER BY created_at, id",
		dbx.Params{"event_id": eventID}).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list officers: %w", err)
	}
	out := make([]models.SecurityOfficer, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

type verificationLogRow struct {
	ID         string `db:"id"`
	TicketID   string `db:"ticket_id"`
	VerifierID string `db:"verifier_id"`
	EventID    string `db:"event_id"`
	Action     string `db:"action"`
	Detail     string `db:"detail"`
	CreatedAt  int64  `db:"created_at"`
}

func (q *queries) AppendVerificationLog(ctx context.Context, l *models.VerificationLog) error {
	_, err := q.exec(ctx, `INSERT INTO verification_logs (id, ticket_id, verifier_id, event_id, action, detail, created_at)
		VALUES ({:id}, {:ticket_id}, {:verifier_id}, {:event_id}, {:action}, {:detail}, {:created_at})`,
		dbx.Params{
			"id":          l.ID,
			"ticket_id":   l.TicketID,
			"verifier_id": l.VerifierID,
			"event_id":    l.EventID,
			"action":      string(l.Action),
			"detail":      l.Detail,
			"created_at":  millis(l.CreatedAt),
		})
	if err != nil {
		return fmt.Errorf("sqlstore: append verification log: %w", err)
	}
	return nil
}

func (q *queries) CountVerificationsSince(ctx context.Context, verifierID, eventID string, action models.VerificationAction, since time.Time) (int, error) {
	var count int
	err := q.query(ctx, `SELECT COUNT(*) FROM verification_logs
		WHERE verifier_id = {:verifier_id} AND event_id = {:event_id} AND action = {:action} AND created_at >= {:since}`,
		dbx.Params{"verifier_id": verifierID, "event_id": eventID, "action": string(action), "since": millis(since)}).Row(&count)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: count verifications: %w", err)
	}
	return count, nil
}

func (q *queries) ListVerificationLogs(ctx context.Context, eventID string, limit int) ([]models.VerificationLog, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []verificationLogRow
	err := q.query(ctx, `SELECT id, ticket_id, verifier_id, event_id, action, detail, created_at FROM verification_logs
		WHERE event_id = {:event_id} ORDER BY created_at DESC, id DESC LIMIT {:limit}`,
		dbx.Params{"event_id": eventID, "limit": limit}).All(&rows)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: list verification logs: %w", err)
	}
	out := make([]models.VerificationLog, 0, len(rows))
	for _, r := range rows {
		out = append(out, models.VerificationLog{
			ID:         r.ID,
			TicketID:   r.TicketID,
			VerifierID: r.VerifierID,
			EventID:    r.EventID,
			Action:     models.VerificationAction(r.Action),
			Detail:     r.Detail,
			CreatedAt:  fromMillis(r.CreatedAt),
		})
	}
	return out, nil
}
