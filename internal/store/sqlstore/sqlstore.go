// Package sqlstore implements store.Store on SQLite through dbx.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pocketbase/dbx"
	_ "modernc.org/sqlite"

	"ticket-gate/internal/status"
	"ticket-gate/internal/store"
	"ticket-gate/migrations"
)

// Immediate transactions take the write lock at BEGIN, so two issuance
// transactions for one event serialize instead of failing on upgrade.
const dsnPragmas = "?_pragma=busy_timeout(10000)" +
	"&_pragma=journal_mode(WAL)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=foreign_keys(1)" +
	"&_txlock=immediate"

type Options struct {
	MaxOpenConns int
	MaxIdleConns int
}

type Store struct {
	queries
	db *dbx.DB
}

var _ store.Store = (*Store)(nil)

// Open connects to the database at path and applies pending migrations.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	db, err := dbx.Open("sqlite", path+dsnPragmas)
	if err != nil {
		return nil, fmt.Errorf("sqlstore: open %s: %w", path, err)
	}

	if opts.MaxOpenConns > 0 {
		db.DB().SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.DB().SetMaxIdleConns(opts.MaxIdleConns)
	}
	db.DB().SetConnMaxIdleTime(3 * time.Minute)

	if err := migrations.Apply(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{queries: queries{b: db}, db: db}, nil
}

func (s *Store) Transact(ctx context.Context, fn func(q store.Queries) error) error {
	return s.db.TransactionalContext(ctx, nil, func(tx *dbx.Tx) error {
		return fn(&queries{b: tx})
	})
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping is used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.DB().PingContext(ctx)
}

type builder interface {
	NewQuery(sql string) *dbx.Query
}

type queries struct {
	b builder
}

func (q *queries) query(ctx context.Context, sql string, params dbx.Params) *dbx.Query {
	return q.b.NewQuery(sql).Bind(params).WithContext(ctx)
}

func (q *queries) exec(ctx context.Context, sql string, params dbx.Params) (int64, error) {
	res, err := q.query(ctx, sql, params).Execute()
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func notFound(err error, what, id string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", what, id, status.ErrNotFound)
	}
	return fmt.Errorf("sqlstore: load %s %s: %w", what, id, err)
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
