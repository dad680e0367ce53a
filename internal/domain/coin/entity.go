package coin

import (
	"time"

	"github.com/google/uuid"

	"github.com/mwork/mwork-rewards/internal/domain/wallet"
	"github.com/mwork/mwork-rewards/internal/pkg/metadata"
)

// TransactionType defines supported coin ledger entry types.
type TransactionType string

const (
	TransactionTypeEarn   TransactionType = "EARN"
	TransactionTypeRedeem TransactionType = "REDEEM"
	TransactionTypeExpire TransactionType = "EXPIRE"
)

// Status of a ledger entry. Only EARN entries ever move to EXPIRED.
type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusExpired   Status = "EXPIRED"
)

// Reasons recorded on ledger entries. Callers may pass their own.
const (
	ReasonPurchase   = "PURCHASE"
	ReasonReview     = "REVIEW"
	ReasonReferral   = "REFERRAL"
	ReasonCampaign   = "CAMPAIGN"
	ReasonAdminGrant = "ADMIN_GRANT"
	ReasonCheckout   = "CHECKOUT_DISCOUNT"
	ReasonExpiry     = "EXPIRY"
)

// References link a ledger entry to the business object that caused it.
type References struct {
	OrderID    *string    `db:"order_id" json:"order_id,omitempty"`
	ProductID  *string    `db:"product_id" json:"product_id,omitempty"`
	ReviewID   *string    `db:"review_id" json:"review_id,omitempty"`
	ReferralID *string    `db:"referral_id" json:"referral_id,omitempty"`
	CampaignID *uuid.UUID `db:"campaign_id" json:"campaign_id,omitempty"`
}

// Transaction is an immutable coin ledger row. Only Status changes after insert.
type Transaction struct {
	ID            uuid.UUID         `db:"id" json:"id"`
	UserID        uuid.UUID         `db:"user_id" json:"user_id"`
	Type          TransactionType   `db:"type" json:"type"`
	CoinType      wallet.CoinType   `db:"coin_type" json:"coin_type"`
	Amount        int64             `db:"amount" json:"amount"`
	BrandID       *string           `db:"brand_id" json:"brand_id,omitempty"`
	Reason        string            `db:"reason" json:"reason"`
	Description   string            `db:"description" json:"description"`
	BalanceBefore int64             `db:"balance_before" json:"balance_before"`
	BalanceAfter  int64             `db:"balance_after" json:"balance_after"`
	Status        Status            `db:"status" json:"status"`
	ExpiresAt     *time.Time        `db:"expires_at" json:"expires_at,omitempty"`
	Metadata      metadata.Metadata `db:"metadata" json:"metadata,omitempty"`
	CreatedAt     time.Time         `db:"created_at" json:"created_at"`
	References
}

// Balanced reports whether balance_after = balance_before + amount.
func (t *Transaction) Balanced() bool {
	return t.BalanceAfter == t.BalanceBefore+t.Amount
}

// EarnRequest carries the input of an earn.
type EarnRequest struct {
	UserID        uuid.UUID
	CoinType      wallet.CoinType
	Amount        int64
	Reason        string
	Description   string
	References    References
	Brand         *wallet.BrandInfo
	ExpiresInDays *int
	Metadata      metadata.Metadata
}

// RedeemRequest carries the input of a redemption.
type RedeemRequest struct {
	UserID         uuid.UUID
	CoinType       wallet.CoinType
	Amount         int64
	RedemptionType string
	BrandID        string
	Description    string
	References     References
	Metadata       metadata.Metadata
}

// RedemptionCheck is an advisory snapshot; it reserves nothing.
type RedemptionCheck struct {
	CanRedeem bool  `json:"can_redeem"`
	Available int64 `json:"available"`
	Shortage  int64 `json:"shortage"`
}

// ItemFailure records one entry a sweep could not process.
type ItemFailure struct {
	TransactionID uuid.UUID `json:"transaction_id"`
	Error         string    `json:"error"`
}

// ExpiryReport summarises one expireCoins sweep.
type ExpiryReport struct {
	Scanned      int           `json:"scanned"`
	Expired      int           `json:"expired"`
	Skipped      int           `json:"skipped"`
	CoinsRemoved int64         `json:"coins_removed"`
	Failures     []ItemFailure `json:"failures,omitempty"`
}

// ListFilter narrows a user's history.
type ListFilter struct {
	Type     *TransactionType
	CoinType *wallet.CoinType
	Status   *Status
	Limit    int
	Offset   int
}
