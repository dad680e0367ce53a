package campaign

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// OrderStats reads the order history the segment rules need from the
// platform's orders table, which this module does not own.
type OrderStats struct {
	db *sqlx.DB
}

func NewOrderStats(db *sqlx.DB) *OrderStats {
	return &OrderStats{db: db}
}

// UserOrderStats returns the number of non-cancelled orders and their total in Fils.
func (s *OrderStats) UserOrderStats(ctx context.Context, userID uuid.UUID) (int, int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var row struct {
		Count int   `db:"order_count"`
		Spend int64 `db:"lifetime_spend"`
	}
	err := s.db.GetContext(ctx2, &row, `
		SELECT COUNT(*) AS order_count, COALESCE(SUM(total_amount), 0)::BIGINT AS lifetime_spend
		FROM orders
		WHERE user_id = $1 AND status <> 'cancelled'
	`, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: user order stats: %v", ErrInternal, err)
	}
	return row.Count, row.Spend, nil
}
