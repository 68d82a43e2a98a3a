// Package migrations holds the ordered SQL schema of the ticket store.
package migrations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pocketbase/dbx"
)

type Migration struct {
	Version int
	Name    string
	SQL     []string
}

// All is applied in order. Never edit a released migration; append a new one.
var All = []Migration{
	{
		Version: 1,
		Name:    "create_users_events",
		SQL: []string{
			`CREATE TABLE users (
				id         TEXT PRIMARY KEY,
				name       TEXT NOT NULL DEFAULT '',
				email      TEXT NOT NULL UNIQUE COLLATE NOCASE,
				phone      TEXT NOT NULL DEFAULT '',
				role       TEXT NOT NULL DEFAULT 'customer',
				created_at INTEGER NOT NULL
			)`,
			`CREATE TABLE events (
				id            TEXT PRIMARY KEY,
				title         TEXT NOT NULL,
				location      TEXT NOT NULL DEFAULT '',
				start_time    INTEGER NOT NULL,
				end_time      INTEGER NOT NULL,
				price         TEXT NOT NULL DEFAULT '0',
				total_tickets INTEGER NOT NULL CHECK (total_tickets >= 0),
				sold_tickets  INTEGER NOT NULL DEFAULT 0 CHECK (sold_tickets >= 0 AND sold_tickets <= total_tickets),
				created_at    INTEGER NOT NULL
			)`,
			`CREATE TABLE ticket_types (
				id         TEXT PRIMARY KEY,
				event_id   TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
				name       TEXT NOT NULL,
				price      TEXT NOT NULL,
				capacity   INTEGER NOT NULL CHECK (capacity >= 0),
				sold_count INTEGER NOT NULL DEFAULT 0 CHECK (sold_count >= 0 AND sold_count <= capacity),
				created_at INTEGER NOT NULL
			)`,
			`CREATE INDEX idx_ticket_types_event ON ticket_types (event_id)`,
		},
	},
	{
		Version: 2,
		Name:    "create_orders_tickets",
		SQL: []string{
			`CREATE TABLE orders (
				id             TEXT PRIMARY KEY,
				user_id        TEXT NOT NULL REFERENCES users(id),
				event_id       TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
				ticket_type_id TEXT REFERENCES ticket_types(id),
				quantity       INTEGER NOT NULL CHECK (quantity > 0),
				total_amount   TEXT NOT NULL,
				status         TEXT NOT NULL DEFAULT 'PENDING',
				payment_ref    TEXT NOT NULL UNIQUE,
				external_id    TEXT NOT NULL DEFAULT '',
				created_at     INTEGER NOT NULL,
				updated_at     INTEGER NOT NULL
			)`,
			`CREATE TABLE tickets (
				id             TEXT PRIMARY KEY,
				event_id       TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
				user_id        TEXT NOT NULL REFERENCES users(id),
				order_id       TEXT NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
				ticket_type_id TEXT REFERENCES ticket_types(id),
				ticket_type    TEXT NOT NULL,
				ticket_number  INTEGER NOT NULL CHECK (ticket_number > 0),
				price          TEXT NOT NULL,
				qr_code        TEXT NOT NULL,
				is_used        INTEGER NOT NULL DEFAULT 0,
				used_at        INTEGER,
				used_by        TEXT NOT NULL DEFAULT '',
				created_at     INTEGER NOT NULL,
				UNIQUE (event_id, ticket_number),
				UNIQUE (order_id, ticket_number)
			)`,
			`CREATE INDEX idx_tickets_holder ON tickets (event_id, user_id)`,
		},
	},
	{
		Version: 3,
		Name:    "create_officers_verification_logs",
		SQL: []string{
			`CREATE TABLE security_officers (
				id         TEXT PRIMARY KEY,
				user_id    TEXT NOT NULL REFERENCES users(id),
				event_id   TEXT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
				name       TEXT NOT NULL DEFAULT '',
				email      TEXT NOT NULL DEFAULT '',
				phone      TEXT NOT NULL DEFAULT '',
				active     INTEGER NOT NULL DEFAULT 1,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL
			)`,
			`CREATE INDEX idx_security_officers_event ON security_officers (event_id)`,
			// No foreign key to tickets: the audit trail outlives the rows it mentions.
			`CREATE TABLE verification_logs (
				id          TEXT PRIMARY KEY,
				ticket_id   TEXT NOT NULL,
				verifier_id TEXT NOT NULL,
				event_id    TEXT NOT NULL,
				action      TEXT NOT NULL,
				detail      TEXT NOT NULL DEFAULT '',
				created_at  INTEGER NOT NULL
			)`,
			`CREATE INDEX idx_verification_logs_officer ON verification_logs (verifier_id, event_id, created_at)`,
			`CREATE INDEX idx_verification_logs_event ON verification_logs (event_id, created_at)`,
		},
	},
}

const createTrackingTable = `CREATE TABLE IF NOT EXISTS _migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	applied_at INTEGER NOT NULL
)`

// Apply runs every migration not yet recorded in _migrations. Each migration
// commits on its own, so a failure leaves earlier ones applied.
func Apply(ctx context.Context, db *dbx.DB) error {
	if _, err := db.NewQuery(createTrackingTable).WithContext(ctx).Execute(); err != nil {
		return fmt.Errorf("migrations: create tracking table: %w", err)
	}

	var applied []int
	if err := db.NewQuery("SELECT version FROM _migrations").WithContext(ctx).Column(&applied); err != nil {
		return fmt.Errorf("migrations: read applied versions: %w", err)
	}
	done := make(map[int]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, m := range All {
		if done[m.Version] {
			continue
		}
		err := db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
			for _, stmt := range m.SQL {
				if _, err := tx.NewQuery(stmt).WithContext(ctx).Execute(); err != nil {
					return err
				}
			}
			_, err := tx.NewQuery("INSERT INTO _migrations (version, name, applied_at) VALUES ({:version}, {:name}, {:at})").
				Bind(dbx.Params{"version": m.Version, "name": m.Name, "at": time.Now().UnixMilli()}).
				WithContext(ctx).
				Execute()
			return err
		})
		if err != nil {
			return fmt.Errorf("migrations: apply %d_%s: %w", m.Version, m.Name, err)
		}
		slog.Info("Applied migration", "version", m.Version, "name", m.Name)
	}
	return nil
}
