package wallet

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const queryTimeout = 3 * time.Second

const walletColumns = `user_id, branded_coins, universal_coins, promo_coins, cashback_balance,
	total_coins_earned, total_coins_redeemed, lifetime_cashback_earned, created_at, updated_at`

const brandedColumns = `user_id, brand_id, brand_name, balance, lifetime_earned, lifetime_redeemed,
	expires_at, created_at, updated_at`

// Repository is the keyed wallet store (userID -> Wallet) backed by Postgres.
// Methods suffixed with Tx run inside a caller-owned transaction and never commit.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// BeginTx opens a read-committed transaction. Balance rows are locked with
// SELECT ... FOR UPDATE, which serializes concurrent mutations of one wallet.
func (r *Repository) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	return r.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
}

func ensureWallet(ctx context.Context, q sqlx.ExecerContext, userID uuid.UUID) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO reward_wallets (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO NOTHING
	`, userID)
	return err
}

// GetOrCreate returns the wallet for userID, creating an empty one on first access.
func (r *Repository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if err := ensureWallet(ctx2, r.db, userID); err != nil {
		return nil, fmt.Errorf("%w: ensure wallet: %v", ErrInternal, err)
	}

	var w Wallet
	err := r.db.GetContext(ctx2, &w, `SELECT `+walletColumns+` FROM reward_wallets WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: get wallet: %v", ErrInternal, err)
	}
	return &w, nil
}

// Get returns the wallet without creating it.
func (r *Repository) Get(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var w Wallet
	err := r.db.GetContext(ctx2, &w, `SELECT `+walletColumns+` FROM reward_wallets WHERE user_id = $1`, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get wallet: %v", ErrInternal, err)
	}
	return &w, nil
}

// LockTx creates the wallet if needed and locks its row for the rest of tx.
func (r *Repository) LockTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*Wallet, error) {
	if err := ensureWallet(ctx, tx, userID); err != nil {
		return nil, fmt.Errorf("%w: ensure wallet: %v", ErrInternal, err)
	}

	var w Wallet
	err := tx.GetContext(ctx, &w, `SELECT `+walletColumns+` FROM reward_wallets WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: lock wallet: %v", ErrInternal, err)
	}
	return &w, nil
}

// SaveTx writes every balance field of w. The row must be locked by LockTx.
func (r *Repository) SaveTx(ctx context.Context, tx *sqlx.Tx, w *Wallet) error {
	if err := w.Validate(); err != nil {
		return err
	}

	_, err := tx.ExecContext(ctx, `
		UPDATE reward_wallets
		SET branded_coins = $2,
			universal_coins = $3,
			promo_coins = $4,
			cashback_balance = $5,
			total_coins_earned = $6,
			total_coins_redeemed = $7,
			lifetime_cashback_earned = $8,
			updated_at = now()
		WHERE user_id = $1
	`, w.UserID, w.BrandedCoins, w.UniversalCoins, w.PromoCoins, w.CashbackBalance,
		w.TotalCoinsEarned, w.TotalCoinsRedeemed, w.LifetimeCashbackEarned)
	if err != nil {
		return fmt.Errorf("%w: save wallet: %v", ErrInternal, err)
	}
	return nil
}

// GetBranded returns one brand sub-balance without locking.
func (r *Repository) GetBranded(ctx context.Context, userID uuid.UUID, brandID string) (*BrandedCoinBalance, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var b BrandedCoinBalance
	err := r.db.GetContext(ctx2, &b, `
		SELECT `+brandedColumns+`
		FROM branded_coin_balances
		WHERE user_id = $1 AND brand_id = $2
	`, userID, brandID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBrandBalanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get branded balance: %v", ErrInternal, err)
	}
	return &b, nil
}

// LockBrandedTx locks one brand sub-balance.
func (r *Repository) LockBrandedTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, brandID string) (*BrandedCoinBalance, error) {
	var b BrandedCoinBalance
	err := tx.GetContext(ctx, &b, `
		SELECT `+brandedColumns+`
		FROM branded_coin_balances
		WHERE user_id = $1 AND brand_id = $2
		FOR UPDATE
	`, userID, brandID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBrandBalanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: lock branded balance: %v", ErrInternal, err)
	}
	return &b, nil
}

// UpsertBrandedEarnTx adds amount to the brand sub-balance, creating it on first earn.
// expires_at is overwritten with the newest value on every top-up.
func (r *Repository) UpsertBrandedEarnTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, brand BrandInfo, amount int64, expiresAt *time.Time) (*BrandedCoinBalance, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var b BrandedCoinBalance
	err := tx.GetContext(ctx, &b, `
		INSERT INTO branded_coin_balances (user_id, brand_id, brand_name, balance, lifetime_earned, expires_at)
		VALUES ($1, $2, $3, $4, $4, $5)
		ON CONFLICT (user_id, brand_id) DO UPDATE
		SET balance = branded_coin_balances.balance + EXCLUDED.balance,
			lifetime_earned = branded_coin_balances.lifetime_earned + EXCLUDED.lifetime_earned,
			brand_name = COALESCE(NULLIF(EXCLUDED.brand_name, ''), branded_coin_balances.brand_name),
			expires_at = EXCLUDED.expires_at,
			updated_at = now()
		RETURNING `+brandedColumns,
		userID, brand.BrandID, brand.BrandName, amount, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("%w: upsert branded balance: %v", ErrInternal, err)
	}
	return &b, nil
}

// SaveBrandedTx writes the balance counters of a locked brand sub-balance.
func (r *Repository) SaveBrandedTx(ctx context.Context, tx *sqlx.Tx, b *BrandedCoinBalance) error {
	if b.Balance < 0 {
		return ErrNegativeBalance
	}
	_, err := tx.ExecContext(ctx, `
		UPDATE branded_coin_balances
		SET balance = $3,
			lifetime_redeemed = $4,
			updated_at = now()
		WHERE user_id = $1 AND brand_id = $2
	`, b.UserID, b.BrandID, b.Balance, b.LifetimeRedeemed)
	if err != nil {
		return fmt.Errorf("%w: save branded balance: %v", ErrInternal, err)
	}
	return nil
}

// ListBranded returns all brand sub-balances of a user, largest first.
func (r *Repository) ListBranded(ctx context.Context, userID uuid.UUID) ([]BrandedCoinBalance, error) {
	ctx2, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	balances := make([]BrandedCoinBalance, 0)
	err := r.db.SelectContext(ctx2, &balances, `
		SELECT `+brandedColumns+`
		FROM branded_coin_balances
		WHERE user_id = $1
		ORDER BY balance DESC, brand_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: list branded balances: %v", ErrInternal, err)
	}
	return balances, nil
}
