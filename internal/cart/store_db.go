package cart

import (
	"context"
	"database/sql"
	"time"
)

const (
	pingTimeout  = 1 * time.Second
	queryTimeout = 3 * time.Second
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return withTimeout(ctx, pingTimeout, func(ctx context.Context) error {
		return s.db.PingContext(ctx)
	})
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (Record, bool, error) {
	var rec Record

	err := withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		return s.db.QueryRowContext(ctx, `
			SELECT user_id, order_list, total_cents
			FROM carts
			WHERE user_id = $1
		`, userID).Scan(&rec.UserID, &rec.OrderList, &rec.TotalCents)
	})

	if err == sql.ErrNoRows {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

// Put upserts the whole record in one statement so order_list and
// total_cents are never visible half-updated.
func (s *PostgresStore) Put(ctx context.Context, rec Record) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO carts (user_id, order_list, total_cents)
			VALUES ($1, $2, $3)
			ON CONFLICT (user_id)
			DO UPDATE SET order_list = EXCLUDED.order_list,
			              total_cents = EXCLUDED.total_cents
		`, rec.UserID, rec.OrderList, rec.TotalCents)
		return err
	})
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	return withTimeout(ctx, queryTimeout, func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM carts
			WHERE user_id = $1
		`, userID)
		return err
	})
}

func withTimeout(parent context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, d)
	defer cancel()
	return fn(ctx)
}
