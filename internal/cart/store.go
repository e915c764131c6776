package cart

import "context"

// Record is the persisted cart row: the encoded item list and the cached
// total live in one record so a single Put keeps them in step. Concurrent
// mutations of the same user race last-write-wins at the store; a
// conditional write keyed on a version field would close that gap.
type Record struct {
	UserID     string `json:"user_id"`
	OrderList  string `json:"order_list"`
	TotalCents int64  `json:"total_cents"`
}

type Store interface {
	Get(ctx context.Context, userID string) (Record, bool, error)
	Put(ctx context.Context, rec Record) error
	Delete(ctx context.Context, userID string) error
	Ping(ctx context.Context) error
}
