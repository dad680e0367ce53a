package cashback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mwork/mwork-rewards/internal/domain/funds"
	"github.com/mwork/mwork-rewards/internal/domain/wallet"
)

const queryTimeout = 5 * time.Second

const transactionColumns = `id, user_id, type, amount, amount_aed, order_id, product_id, cashback_rate,
	description, balance_before, balance_after, status, pending_until, credited_at,
	metadata, created_at, updated_at`

// FundsCrediter credits the general-purpose wallet inside a caller-owned transaction.
type FundsCrediter interface {
	CreditTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, txType funds.TransactionType, referenceID, description string) error
}

// Repository persists cashback entries. Credit and redeem move the wallet's
// cashback balance in the same transaction as the entry.
type Repository struct {
	db      *sqlx.DB
	wallets *wallet.Repository
	funds   FundsCrediter
}

func NewRepository(db *sqlx.DB, wallets *wallet.Repository, funds FundsCrediter) *Repository {
	return &Repository{db: db, wallets: wallets, funds: funds}
}

// CreatePending records an EARN entry. The wallet row is locked only to take a
// consistent balance snapshot; pending cashback is not spendable yet.
func (r *Repository) CreatePending(ctx context.Context, draft *Transaction) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.wallets.BeginTx(ctx2)
	if err != nil {
		return fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	w, err := r.wallets.LockTx(ctx2, tx, draft.UserID)
	if err != nil {
		return err
	}
	draft.BalanceBefore = w.CashbackBalance
	draft.BalanceAfter = w.CashbackBalance

	if err := insertTx(ctx2, tx, draft); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return nil
}

// Credit moves one PENDING entry to CREDITED and adds its amount to the
// cashback balance.
func (r *Repository) Credit(ctx context.Context, id uuid.UUID, now time.Time) (*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.wallets.BeginTx(ctx2)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	t, err := lockTx(ctx2, tx, id)
	if err != nil {
		return nil, err
	}
	if !t.Status.CanTransition(StatusCredited) {
		return nil, ErrInvalidState
	}

	w, err := r.wallets.LockTx(ctx2, tx, t.UserID)
	if err != nil {
		return nil, err
	}
	if _, _, err := w.ApplyCashbackCredit(t.Amount); err != nil {
		return nil, err
	}
	if err := r.wallets.SaveTx(ctx2, tx, w); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx2, `
		UPDATE cashback_transactions
		SET status = 'CREDITED', credited_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'PENDING'
	`, id, now); err != nil {
		return nil, fmt.Errorf("%w: mark credited: %v", ErrInternal, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx", ErrInternal)
	}

	t.Status = StatusCredited
	t.CreditedAt = &now
	t.UpdatedAt = now
	return t, nil
}

// Redeem debits the cashback balance, records a REDEEMED entry and credits the
// same amount to the user's funds wallet. All three commit together.
func (r *Repository) Redeem(ctx context.Context, draft *Transaction) error {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.wallets.BeginTx(ctx2)
	if err != nil {
		return fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	w, err := r.wallets.LockTx(ctx2, tx, draft.UserID)
	if err != nil {
		return err
	}
	before, after, err := w.ApplyCashbackRedeem(-draft.Amount)
	if err != nil {
		return err
	}
	draft.BalanceBefore, draft.BalanceAfter = before, after

	if err := insertTx(ctx2, tx, draft); err != nil {
		return err
	}
	if err := r.wallets.SaveTx(ctx2, tx, w); err != nil {
		return err
	}

	if err := r.funds.CreditTx(ctx2, tx, draft.UserID, -draft.Amount, funds.TransactionTypeCashback,
		FundsReference(draft.ID), draft.Description); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return nil
}

// Cancel moves one PENDING entry to CANCELLED. No balance changes.
func (r *Repository) Cancel(ctx context.Context, id uuid.UUID, now time.Time) (*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var t Transaction
	err := r.db.GetContext(ctx2, &t, `
		UPDATE cashback_transactions
		SET status = 'CANCELLED', updated_at = $2
		WHERE id = $1 AND status = 'PENDING'
		RETURNING `+transactionColumns,
		id, now)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: cancel cashback: %v", ErrInternal, err)
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return nil, ErrInvalidState
}

// ExpirePending flips every PENDING entry whose pending_until has passed to
// EXPIRED and returns how many rows moved.
func (r *Repository) ExpirePending(ctx context.Context, now time.Time) (int64, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := r.db.ExecContext(ctx2, `
		UPDATE cashback_transactions
		SET status = 'EXPIRED', updated_at = $1
		WHERE status = 'PENDING'
		  AND pending_until IS NOT NULL
		  AND pending_until <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("%w: expire pending cashback: %v", ErrInternal, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var t Transaction
	err := r.db.GetContext(ctx2, &t, `SELECT `+transactionColumns+` FROM cashback_transactions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get cashback transaction: %v", ErrInternal, err)
	}
	return &t, nil
}

// ListByOrder returns every entry of an order, oldest first.
func (r *Repository) ListByOrder(ctx context.Context, orderID string) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	txs := make([]Transaction, 0)
	err := r.db.SelectContext(ctx2, &txs, `
		SELECT `+transactionColumns+`
		FROM cashback_transactions
		WHERE order_id = $1
		ORDER BY created_at, id
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("%w: list cashback by order: %v", ErrInternal, err)
	}
	return txs, nil
}

func (r *Repository) List(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := `SELECT ` + transactionColumns + ` FROM cashback_transactions WHERE user_id = $1`
	args := []interface{}{userID}
	idx := 2

	if filter.Type != nil {
		query += fmt.Sprintf(" AND type = $%d", idx)
		args = append(args, string(*filter.Type))
		idx++
	}
	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, string(*filter.Status))
		idx++
	}

	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, filter.Limit, filter.Offset)

	txs := make([]Transaction, 0)
	if err := r.db.SelectContext(ctx2, &txs, query, args...); err != nil {
		return nil, fmt.Errorf("%w: list cashback transactions: %v", ErrInternal, err)
	}
	return txs, nil
}

func lockTx(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*Transaction, error) {
	var t Transaction
	err := tx.GetContext(ctx, &t, `SELECT `+transactionColumns+` FROM cashback_transactions WHERE id = $1 FOR UPDATE`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lock cashback transaction: %v", ErrInternal, err)
	}
	return &t, nil
}

func insertTx(ctx context.Context, tx *sqlx.Tx, t *Transaction) error {
	if t.BalanceAfter != t.BalanceBefore && t.BalanceAfter != t.BalanceBefore+t.Amount {
		return fmt.Errorf("%w: unbalanced entry", ErrInternal)
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO cashback_transactions (
			id, user_id, type, amount, amount_aed, order_id, product_id, cashback_rate,
			description, balance_before, balance_after, status, pending_until, credited_at,
			metadata, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $16
		)
	`, t.ID, t.UserID, string(t.Type), t.Amount, t.AmountAED, t.OrderID, t.ProductID, t.CashbackRate,
		t.Description, t.BalanceBefore, t.BalanceAfter, string(t.Status), t.PendingUntil, t.CreditedAt,
		t.Metadata, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert cashback transaction: %v", ErrInternal, err)
	}
	return nil
}

// FundsReference is the idempotency key of the funds entry a redemption creates.
func FundsReference(id uuid.UUID) string {
	return "cashback:" + id.String()
}
