package cashback

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mwork/mwork-rewards/internal/pkg/metadata"
)

// MinRedemptionFils is the smallest cashback redemption (10 AED).
const MinRedemptionFils = 1000

// DefaultPendingDays is how long earned cashback waits before it may be credited.
const DefaultPendingDays = 7

type TransactionType string

const (
	TransactionTypeEarn   TransactionType = "EARN"
	TransactionTypeRedeem TransactionType = "REDEEM"
)

// Status of a cashback entry. PENDING is the only non-terminal state.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCredited  Status = "CREDITED"
	StatusRedeemed  Status = "REDEEMED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// CanTransition reports whether an entry may move from s to next.
func (s Status) CanTransition(next Status) bool {
	if s != StatusPending {
		return false
	}
	switch next {
	case StatusCredited, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

// Transaction is a cashback ledger row. Amounts are in Fils; AmountAED mirrors
// Amount in dirhams. Only status and credited_at change after insert.
type Transaction struct {
	ID            uuid.UUID           `db:"id" json:"id"`
	UserID        uuid.UUID           `db:"user_id" json:"user_id"`
	Type          TransactionType     `db:"type" json:"type"`
	Amount        int64               `db:"amount" json:"amount"`
	AmountAED     decimal.Decimal     `db:"amount_aed" json:"amount_aed"`
	OrderID       *string             `db:"order_id" json:"order_id,omitempty"`
	ProductID     *string             `db:"product_id" json:"product_id,omitempty"`
	CashbackRate  decimal.NullDecimal `db:"cashback_rate" json:"cashback_rate"`
	Description   string              `db:"description" json:"description"`
	BalanceBefore int64               `db:"balance_before" json:"balance_before"`
	BalanceAfter  int64               `db:"balance_after" json:"balance_after"`
	Status        Status              `db:"status" json:"status"`
	PendingUntil  *time.Time          `db:"pending_until" json:"pending_until,omitempty"`
	CreditedAt    *time.Time          `db:"credited_at" json:"credited_at,omitempty"`
	Metadata      metadata.Metadata   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time           `db:"updated_at" json:"updated_at"`
}

// EarnRequest describes cashback granted for a purchase.
// A nil PendingDays uses the configured window; zero is creditable at once.
type EarnRequest struct {
	UserID       uuid.UUID
	Amount       int64
	OrderID      string
	ProductID    string
	CashbackRate *decimal.Decimal
	Description  string
	PendingDays  *int
	Metadata     metadata.Metadata
}

// ItemFailure is one entry a batch operation could not process.
type ItemFailure struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Error         string    `json:"error"`
}

// BatchResult collects per-entry outcomes of an order-wide credit or cancel.
type BatchResult struct {
	OrderID   string        `json:"order_id"`
	Succeeded []uuid.UUID   `json:"succeeded"`
	Failures  []ItemFailure `json:"failures,omitempty"`
	Amount    int64         `json:"amount"`
}

// OK reports whether every entry succeeded.
func (r *BatchResult) OK() bool {
	return len(r.Failures) == 0
}

type ListFilter struct {
	Type   *TransactionType
	Status *Status
	Limit  int
	Offset int
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
