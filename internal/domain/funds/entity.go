package funds

import (
	"time"

	"github.com/google/uuid"
)

// TransactionType tags where a funds credit came from.
type TransactionType string

const TransactionTypeCashback TransactionType = "cashback_redemption"

// Transaction is one credit to the user's AED wallet, in Fils.
type Transaction struct {
	ID          uuid.UUID       `db:"id" json:"id"`
	UserID      uuid.UUID       `db:"user_id" json:"user_id"`
	Amount      int64           `db:"amount" json:"amount"`
	Type        TransactionType `db:"type" json:"type"`
	ReferenceID *string         `db:"reference_id" json:"reference_id,omitempty"`
	Description string          `db:"description" json:"description"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// Summary is the funds balance with the latest credits.
type Summary struct {
	UserID  uuid.UUID     `json:"user_id"`
	Balance int64         `json:"balance"`
	Recent  []Transaction `json:"recent"`
}
