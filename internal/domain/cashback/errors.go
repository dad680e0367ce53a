package cashback

import (
	"errors"

	"github.com/mwork/mwork-rewards/internal/domain/wallet"
)

var (
	ErrInvalidAmount       = wallet.ErrInvalidAmount
	ErrInsufficientBalance = wallet.ErrInsufficientBalance

	ErrInvalidRate         = errors.New("cashback rate must be between 0 and 100")
	ErrInvalidPendingDays  = errors.New("pending days must not be negative")
	ErrBelowMinimum        = errors.New("cashback redemption below 10 AED minimum")
	ErrTransactionNotFound = errors.New("cashback transaction not found")
	ErrInvalidState        = errors.New("cashback transaction not in required state")
	ErrInternal            = errors.New("internal error")
)
