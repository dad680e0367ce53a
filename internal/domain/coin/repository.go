package coin

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mwork/mwork-rewards/internal/domain/wallet"
	"github.com/mwork/mwork-rewards/internal/pkg/metadata"
)

const queryTimeout = 5 * time.Second

const transactionColumns = `id, user_id, type, coin_type, amount, brand_id, reason, description,
	order_id, product_id, review_id, referral_id, campaign_id,
	balance_before, balance_after, status, expires_at, metadata, created_at`

// Repository persists coin ledger entries and moves wallet balances in the same transaction.
type Repository struct {
	db      *sqlx.DB
	wallets *wallet.Repository
}

func NewRepository(db *sqlx.DB, wallets *wallet.Repository) *Repository {
	return &Repository{db: db, wallets: wallets}
}

// Earn appends an EARN entry, credits the wallet and tops up the brand sub-balance.
// draft must carry everything except the balance snapshot.
func (r *Repository) Earn(ctx context.Context, draft *Transaction, brand *wallet.BrandInfo) error {
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

	before, after, err := w.ApplyEarn(draft.CoinType, draft.Amount)
	if err != nil {
		return err
	}
	draft.BalanceBefore, draft.BalanceAfter = before, after

	if err := r.insertTx(ctx2, tx, draft); err != nil {
		return err
	}
	if err := r.wallets.SaveTx(ctx2, tx, w); err != nil {
		return err
	}

	if draft.CoinType == wallet.CoinTypeBranded && brand != nil {
		if _, err := r.wallets.UpsertBrandedEarnTx(ctx2, tx, draft.UserID, *brand, draft.Amount, draft.ExpiresAt); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return nil
}

// Redeem appends a REDEEM entry and debits the wallet. draft.Amount is negative.
// Balances are re-checked under row locks; the brand-scoped check runs first.
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

	var branded *wallet.BrandedCoinBalance
	if draft.CoinType == wallet.CoinTypeBranded && draft.BrandID != nil {
		branded, err = r.wallets.LockBrandedTx(ctx2, tx, draft.UserID, *draft.BrandID)
		if errors.Is(err, wallet.ErrBrandBalanceNotFound) {
			return ErrInsufficientBalance
		}
		if err != nil {
			return err
		}
		if err := branded.Redeem(-draft.Amount); err != nil {
			return err
		}
	}

	before, after, err := w.ApplyRedeem(draft.CoinType, -draft.Amount)
	if err != nil {
		return err
	}
	draft.BalanceBefore, draft.BalanceAfter = before, after

	if err := r.insertTx(ctx2, tx, draft); err != nil {
		return err
	}
	if err := r.wallets.SaveTx(ctx2, tx, w); err != nil {
		return err
	}
	if branded != nil {
		if err := r.wallets.SaveBrandedTx(ctx2, tx, branded); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return nil
}

// ListExpirable returns COMPLETED earn entries whose expiry has passed, ordered by id
// so a sweep can page past entries that keep failing.
func (r *Repository) ListExpirable(ctx context.Context, now time.Time, after uuid.UUID, limit int) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	txs := make([]Transaction, 0)
	err := r.db.SelectContext(ctx2, &txs, `
		SELECT `+transactionColumns+`
		FROM coin_transactions
		WHERE type = 'EARN'
		  AND status = 'COMPLETED'
		  AND expires_at IS NOT NULL
		  AND expires_at <= $1
		  AND id > $2
		ORDER BY id
		LIMIT $3
	`, now, after, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list expirable: %v", ErrInternal, err)
	}
	return txs, nil
}

// Expire processes one expired earn entry in its own transaction: it deducts
// min(original amount, current balance), appends the compensating EXPIRE entry
// and flips the original to EXPIRED. Entries already EXPIRED return ErrAlreadyProcessed.
func (r *Repository) Expire(ctx context.Context, earnID, expireID uuid.UUID, now time.Time) (*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	tx, err := r.wallets.BeginTx(ctx2)
	if err != nil {
		return nil, fmt.Errorf("%w: begin tx", ErrInternal)
	}
	defer tx.Rollback()

	var original Transaction
	err = tx.GetContext(ctx2, &original, `SELECT `+transactionColumns+` FROM coin_transactions WHERE id = $1 FOR UPDATE`, earnID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lock coin transaction: %v", ErrInternal, err)
	}
	if original.Type != TransactionTypeEarn || original.Status != StatusCompleted {
		return nil, ErrAlreadyProcessed
	}
	if original.ExpiresAt == nil || original.ExpiresAt.After(now) {
		return nil, ErrNotExpired
	}

	w, err := r.wallets.LockTx(ctx2, tx, original.UserID)
	if err != nil {
		return nil, err
	}

	before, after, deducted, err := w.ApplyExpiry(original.CoinType, original.Amount)
	if err != nil {
		return nil, err
	}

	if original.CoinType == wallet.CoinTypeBranded && original.BrandID != nil {
		branded, err := r.wallets.LockBrandedTx(ctx2, tx, original.UserID, *original.BrandID)
		switch {
		case err == nil:
			branded.Expire(deducted)
			if err := r.wallets.SaveBrandedTx(ctx2, tx, branded); err != nil {
				return nil, err
			}
		case !errors.Is(err, wallet.ErrBrandBalanceNotFound):
			return nil, err
		}
	}

	entry := &Transaction{
		ID:            expireID,
		UserID:        original.UserID,
		Type:          TransactionTypeExpire,
		CoinType:      original.CoinType,
		Amount:        -deducted,
		BrandID:       original.BrandID,
		Reason:        ReasonExpiry,
		Description:   fmt.Sprintf("expired %d of %d coins", deducted, original.Amount),
		BalanceBefore: before,
		BalanceAfter:  after,
		Status:        StatusCompleted,
		Metadata:      metadata.Metadata{"expired_transaction_id": original.ID.String()},
		CreatedAt:     now,
		References:    original.References,
	}
	if err := r.insertTx(ctx2, tx, entry); err != nil {
		return nil, err
	}
	if err := r.wallets.SaveTx(ctx2, tx, w); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx2, `
		UPDATE coin_transactions SET status = 'EXPIRED'
		WHERE id = $1 AND status = 'COMPLETED'
	`, original.ID); err != nil {
		return nil, fmt.Errorf("%w: mark expired: %v", ErrInternal, err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit tx", ErrInternal)
	}
	return entry, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var t Transaction
	err := r.db.GetContext(ctx2, &t, `SELECT `+transactionColumns+` FROM coin_transactions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get coin transaction: %v", ErrInternal, err)
	}
	return &t, nil
}

func (r *Repository) List(ctx context.Context, userID uuid.UUID, filter ListFilter) ([]Transaction, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	base := `SELECT ` + transactionColumns + ` FROM coin_transactions WHERE user_id = $1`
	args := []interface{}{userID}
	idx := 2

	if filter.Type != nil {
		base += fmt.Sprintf(" AND type = $%d", idx)
		args = append(args, string(*filter.Type))
		idx++
	}
	if filter.CoinType != nil {
		base += fmt.Sprintf(" AND coin_type = $%d", idx)
		args = append(args, string(*filter.CoinType))
		idx++
	}
	if filter.Status != nil {
		base += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, string(*filter.Status))
		idx++
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}

	base = strings.TrimSpace(base) + fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, filter.Offset)

	txs := make([]Transaction, 0)
	if err := r.db.SelectContext(ctx2, &txs, base, args...); err != nil {
		return nil, fmt.Errorf("%w: list coin transactions: %v", ErrInternal, err)
	}
	return txs, nil
}

func (r *Repository) insertTx(ctx context.Context, tx *sqlx.Tx, t *Transaction) error {
	if !t.Balanced() {
		return fmt.Errorf("%w: unbalanced entry", ErrInternal)
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO coin_transactions (
			id, user_id, type, coin_type, amount, brand_id, reason, description,
			order_id, product_id, review_id, referral_id, campaign_id,
			balance_before, balance_after, status, expires_at, metadata, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19
		)
	`, t.ID, t.UserID, string(t.Type), string(t.CoinType), t.Amount, t.BrandID, t.Reason, t.Description,
		t.OrderID, t.ProductID, t.ReviewID, t.ReferralID, t.CampaignID,
		t.BalanceBefore, t.BalanceAfter, string(t.Status), t.ExpiresAt, t.Metadata, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("%w: insert coin transaction: %v", ErrInternal, err)
	}
	return nil
}
