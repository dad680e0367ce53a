package coin

import (
	"errors"

	"github.com/mwork/mwork-rewards/internal/domain/wallet"
)

var (
	// Shared with the wallet store so callers can match either package.
	ErrInvalidAmount       = wallet.ErrInvalidAmount
	ErrInvalidCoinType     = wallet.ErrInvalidCoinType
	ErrInsufficientBalance = wallet.ErrInsufficientBalance

	ErrInvalidBrand        = errors.New("branded coins require a brand id")
	ErrInvalidExpiry       = errors.New("expiry days must be greater than 0")
	ErrTransactionNotFound = errors.New("coin transaction not found")
	ErrAlreadyProcessed    = errors.New("coin transaction already processed")
	ErrNotExpired          = errors.New("coin transaction not yet expired")
	ErrInternal            = errors.New("internal error")
)
