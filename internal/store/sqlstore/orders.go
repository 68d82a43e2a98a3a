package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	"github.com/shopspring/decimal"

	"ticket-gate/models"
)

type orderRow struct {
	ID           string          `db:"id"`
	UserID       string          `db:"user_id"`
	EventID      string          `db:"event_id"`
	TicketTypeID sql.NullString  `db:"ticket_type_id"`
	Quantity     int             `db:"quantity"`
	TotalAmount  decimal.Decimal `db:"total_amount"`
	Status       string          `db:"status"`
	PaymentRef   string          `db:"payment_ref"`
	ExternalID   string          `db:"external_id"`
	CreatedAt    int64           `db:"created_at"`
	UpdatedAt    int64           `db:"updated_at"`
}

func (r orderRow) model() *models.Order {
	return &models.Order{
		ID:           r.ID,
		UserID:       r.UserID,
		EventID:      r.EventID,
		TicketTypeID: r.TicketTypeID.String,
		Quantity:     r.Quantity,
		TotalAmount:  r.TotalAmount,
		Status:       models.OrderStatus(r.Status),
		PaymentRef:   r.PaymentRef,
		ExternalID:   r.ExternalID,
		CreatedAt:    fromMillis(r.CreatedAt),
		UpdatedAt:    fromMillis(r.UpdatedAt),
	}
}

const orderColumns = "id, user_id, event_id, ticket_type_id, quantity, total_amount, status, payment_ref, external_id, created_at, updated_at"

func (q *queries) CreateOrder(ctx context.Context, o *models.Order) error {
	_, err := q.exec(ctx, `INSERT INTO orders (`+orderColumns+`)
		VALUES ({:id}, {:user_id}, {:event_id}, {:type_id}, {:qty}, {:total}, {:status}, {:ref}, {:external_id}, {:created_at}, {:updated_at})`,
		dbx.Params{
			"id":          o.ID,
			"user_id":     o.UserID,
			"event_id":    o.EventID,
			"type_id":     nullable(o.TicketTypeID),
			"qty":         o.Quantity,
			"total":       o.TotalAmount.String(),
			"status":      string(o.Status),
			"ref":         o.PaymentRef,
			"external_id": o.ExternalID,
			"created_at":  millis(o.CreatedAt),
			"updated_at":  millis(o.UpdatedAt),
		})
	if err != nil {
		return fmt.Errorf("sqlstore: create order: %w", err)
	}
	return nil
}

func (q *queries) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var row orderRow
	err := q.query(ctx, "SELECT "+orderColumns+" FROM orders WHERE id = {:id}", dbx.Params{"id": id}).One(&row)
	if err != nil {
		return nil, notFound(err, "order", id)
	}
	return row.model(), nil
}

func (q *queries) GetOrderByPaymentRef(ctx context.Context, ref string) (*models.Order, error) {
	var row orderRow
	err := q.query(ctx, "SELECT "+orderColumns+" FROM orders WHERE payment_ref = {:ref}", dbx.Params{"ref": ref}).One(&row)
	if err != nil {
		return nil, notFound(err, "order with payment ref", ref)
	}
	return row.model(), nil
}

func (q *queries) CompleteOrder(ctx context.Context, id, externalID string, at time.Time) (bool, error) {
	n, err := q.exec(ctx, `UPDATE orders SET status = {:next}, external_id = {:external_id}, updated_at = {:at}
		WHERE id = {:id} AND status = {:prev}`, dbx.Params{
		"id":          id,
		"external_id": externalID,
		"at":          millis(at),
		"next":        string(models.OrderCompleted),
		"prev":        string(models.OrderPending),
	})
	if err != nil {
		return false, fmt.Errorf("sqlstore: complete order: %w", err)
	}
	return n == 1, nil
}

func (q *queries) CancelOrder(ctx context.Context, id string, at time.Time) (bool, error) {
	n, err := q.exec(ctx, `UPDATE orders SET status = {:next}, updated_at = {:at}
		WHERE id = {:id} AND status = {:prev}`, dbx.Params{
		"id":   id,
		"at":   millis(at),
		"next": string(models.OrderCancelled),
		"prev": string(models.OrderPending),
	})
	if err != nil {
		return false, fmt.Errorf("sqlstore: cancel order: %w", err)
	}
	return n == 1, nil
}
