package wallet

import (
	"time"

	"github.com/google/uuid"
)

// CoinType identifies one of the three coin balances held in a wallet.
type CoinType string

const (
	CoinTypeBranded   CoinType = "BRANDED"
	CoinTypeUniversal CoinType = "UNIVERSAL"
	CoinTypePromo     CoinType = "PROMO"
)

// Valid reports whether c is a known coin type.
func (c CoinType) Valid() bool {
	switch c {
	case CoinTypeBranded, CoinTypeUniversal, CoinTypePromo:
		return true
	}
	return false
}

// Wallet holds a user's aggregate reward balances. One row per user.
type Wallet struct {
	UserID                 uuid.UUID `db:"user_id" json:"user_id"`
	BrandedCoins           int64     `db:"branded_coins" json:"branded_coins"`
	UniversalCoins         int64     `db:"universal_coins" json:"universal_coins"`
	PromoCoins             int64     `db:"promo_coins" json:"promo_coins"`
	CashbackBalance        int64     `db:"cashback_balance" json:"cashback_balance"`
	TotalCoinsEarned       int64     `db:"total_coins_earned" json:"total_coins_earned"`
	TotalCoinsRedeemed     int64     `db:"total_coins_redeemed" json:"total_coins_redeemed"`
	LifetimeCashbackEarned int64     `db:"lifetime_cashback_earned" json:"lifetime_cashback_earned"`
	CreatedAt              time.Time `db:"created_at" json:"created_at"`
	UpdatedAt              time.Time `db:"updated_at" json:"updated_at"`
}

// BrandedCoinBalance is the per-brand share of a user's branded coins.
// ExpiresAt follows the latest top-up (last write wins).
type BrandedCoinBalance struct {
	UserID           uuid.UUID  `db:"user_id" json:"user_id"`
	BrandID          string     `db:"brand_id" json:"brand_id"`
	BrandName        string     `db:"brand_name" json:"brand_name"`
	Balance          int64      `db:"balance" json:"balance"`
	LifetimeEarned   int64      `db:"lifetime_earned" json:"lifetime_earned"`
	LifetimeRedeemed int64      `db:"lifetime_redeemed" json:"lifetime_redeemed"`
	ExpiresAt        *time.Time `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// BrandInfo identifies the brand a branded earn or redemption is scoped to.
type BrandInfo struct {
	BrandID   string
	BrandName string
}

// Summary is a wallet together with its branded sub-balances.
type Summary struct {
	Wallet   *Wallet              `json:"wallet"`
	Branded  []BrandedCoinBalance `json:"branded"`
	Drifting bool                 `json:"drifting"`
}

func (w *Wallet) coinField(t CoinType) *int64 {
	switch t {
	case CoinTypeBranded:
		return &w.BrandedCoins
	case CoinTypeUniversal:
		return &w.UniversalCoins
	case CoinTypePromo:
		return &w.PromoCoins
	}
	return nil
}

// CoinBalance returns the balance of the given coin type.
func (w *Wallet) CoinBalance(t CoinType) int64 {
	if f := w.coinField(t); f != nil {
		return *f
	}
	return 0
}

// ApplyEarn credits amount to the coin balance and returns the balance before and after.
func (w *Wallet) ApplyEarn(t CoinType, amount int64) (before, after int64, err error) {
	f := w.coinField(t)
	if f == nil {
		return 0, 0, ErrInvalidCoinType
	}
	if amount <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	before = *f
	*f += amount
	w.TotalCoinsEarned += amount
	return before, *f, nil
}

// ApplyRedeem debits amount from the coin balance.
func (w *Wallet) ApplyRedeem(t CoinType, amount int64) (before, after int64, err error) {
	f := w.coinField(t)
	if f == nil {
		return 0, 0, ErrInvalidCoinType
	}
	if amount <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	if *f < amount {
		return *f, *f, ErrInsufficientBalance
	}
	before = *f
	*f -= amount
	w.TotalCoinsRedeemed += amount
	return before, *f, nil
}

// ApplyExpiry removes up to original coins, never going below zero.
// It returns the amount actually deducted.
func (w *Wallet) ApplyExpiry(t CoinType, original int64) (before, after, deducted int64, err error) {
	f := w.coinField(t)
	if f == nil {
		return 0, 0, 0, ErrInvalidCoinType
	}
	before = *f
	deducted = min(max(original, 0), before)
	*f -= deducted
	return before, *f, deducted, nil
}

// ApplyCashbackCredit moves a credited cashback amount into the usable balance.
func (w *Wallet) ApplyCashbackCredit(amount int64) (before, after int64, err error) {
	if amount <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	before = w.CashbackBalance
	w.CashbackBalance += amount
	w.LifetimeCashbackEarned += amount
	return before, w.CashbackBalance, nil
}

// ApplyCashbackRedeem debits the usable cashback balance.
func (w *Wallet) ApplyCashbackRedeem(amount int64) (before, after int64, err error) {
	if amount <= 0 {
		return 0, 0, ErrInvalidAmount
	}
	if w.CashbackBalance < amount {
		return w.CashbackBalance, w.CashbackBalance, ErrInsufficientBalance
	}
	before = w.CashbackBalance
	w.CashbackBalance -= amount
	return before, w.CashbackBalance, nil
}

// Validate checks that no balance field is negative.
func (w *Wallet) Validate() error {
	for _, v := range []int64{
		w.BrandedCoins, w.UniversalCoins, w.PromoCoins, w.CashbackBalance,
		w.TotalCoinsEarned, w.TotalCoinsRedeemed, w.LifetimeCashbackEarned,
	} {
		if v < 0 {
			return ErrNegativeBalance
		}
	}
	return nil
}

// Redeem debits the brand sub-balance.
func (b *BrandedCoinBalance) Redeem(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if b.Balance < amount {
		return ErrInsufficientBalance
	}
	b.Balance -= amount
	b.LifetimeRedeemed += amount
	return nil
}

// Expire removes up to amount from the brand sub-balance and returns what was removed.
func (b *BrandedCoinBalance) Expire(amount int64) int64 {
	deducted := min(max(amount, 0), b.Balance)
	b.Balance -= deducted
	return deducted
}

// Drifting reports whether the branded sub-balances no longer sum to the wallet aggregate.
// Legacy rows may legitimately drift; callers only surface this.
func Drifting(w *Wallet, branded []BrandedCoinBalance) bool {
	var sum int64
	for _, b := range branded {
		sum += b.Balance
	}
	return sum != w.BrandedCoins
}
