package wallet

import "errors"

var (
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrBrandBalanceNotFound = errors.New("branded coin balance not found")
	ErrInvalidAmount        = errors.New("invalid amount: must be greater than 0")
	ErrInvalidCoinType      = errors.New("invalid coin type")
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrNegativeBalance      = errors.New("balance would become negative")
	ErrInternal             = errors.New("internal error")
)
