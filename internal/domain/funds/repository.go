package funds

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const queryTimeout = 5 * time.Second

// Repository is the receiving side of cashback redemptions. It never debits:
// spending the AED wallet belongs to the payment service.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// GetBalance reads without creating; a user never credited has 0.
func (r *Repository) GetBalance(ctx context.Context, userID uuid.UUID) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var balance int64
	err := r.db.GetContext(ctx2, &balance, `SELECT balance FROM user_wallets WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: funds balance: %v", ErrInternal, err)
	}
	return balance, nil
}

func (r *Repository) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	txs := make([]Transaction, 0)
	err := r.db.SelectContext(ctx2, &txs, `
		SELECT id, user_id, amount, type, reference_id, description, created_at
		FROM wallet_transactions
		WHERE user_id = $1
		ORDER BY created_at DESC, id
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%w: list funds transactions: %v", ErrInternal, err)
	}
	return txs, nil
}

// CreditTx adds t.Amount inside the caller's transaction. The wallet row lock
// serializes credits per user, so the reference lookup cannot race the insert.
// Replaying a reference with the same amount is a no-op.
func (r *Repository) CreditTx(ctx context.Context, tx *sqlx.Tx, t *Transaction) error {
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_wallets (user_id, balance)
		VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING
	`, t.UserID); err != nil {
		return fmt.Errorf("%w: ensure funds wallet: %v", ErrInternal, err)
	}

	var balance int64
	if err := tx.GetContext(ctx, &balance, `SELECT balance FROM user_wallets WHERE user_id = $1 FOR UPDATE`, t.UserID); err != nil {
		return fmt.Errorf("%w: lock funds wallet: %v", ErrInternal, err)
	}

	var existing int64
	err := tx.GetContext(ctx, &existing, `
		SELECT amount FROM wallet_transactions
		WHERE user_id = $1 AND type = $2 AND reference_id = $3
	`, t.UserID, string(t.Type), *t.ReferenceID)
	switch {
	case err == nil && existing == t.Amount:
		return nil
	case err == nil:
		return ErrReferenceConflict
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("%w: funds reference lookup: %v", ErrInternal, err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE user_wallets SET balance = $2, updated_at = $3 WHERE user_id = $1
	`, t.UserID, balance+t.Amount, t.CreatedAt); err != nil {
		return fmt.Errorf("%w: update funds balance: %v", ErrInternal, err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO wallet_transactions (id, user_id, amount, type, reference_id, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, t.ID, t.UserID, t.Amount, string(t.Type), t.ReferenceID, t.Description, t.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrReferenceConflict
		}
		return fmt.Errorf("%w: insert funds transaction: %v", ErrInternal, err)
	}
	return nil
}
