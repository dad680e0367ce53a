package campaign

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/mwork/mwork-rewards/internal/domain/wallet"
	"github.com/mwork/mwork-rewards/internal/pkg/metadata"
	"github.com/mwork/mwork-rewards/internal/pkg/money"
)

// Type classifies a campaign for reporting; eligibility does not depend on it.
type Type string

const (
	TypePurchase   Type = "PURCHASE"
	TypeBrand      Type = "BRAND"
	TypeProduct    Type = "PRODUCT"
	TypeSeasonal   Type = "SEASONAL"
	TypeReferral   Type = "REFERRAL"
	TypeFirstOrder Type = "FIRST_ORDER"
)

// Segment restricts a campaign to a class of users.
type Segment string

const (
	SegmentNew Segment = "new"
	SegmentVIP Segment = "vip"
)

// RewardKind tells the caller which ledger a reward belongs to.
type RewardKind string

const (
	RewardCoins    RewardKind = "COINS"
	RewardCashback RewardKind = "CASHBACK"
)

// Campaign is a time-boxed reward program. Exactly one of CoinAmount and
// CashbackRate is set.
type Campaign struct {
	ID                    uuid.UUID           `db:"id" json:"id"`
	Name                  string              `db:"name" json:"name"`
	Description           string              `db:"description" json:"description"`
	Type                  Type                `db:"type" json:"type"`
	CoinType              *wallet.CoinType    `db:"coin_type" json:"coin_type,omitempty"`
	CoinAmount            *int64              `db:"coin_amount" json:"coin_amount,omitempty"`
	CashbackRate          decimal.NullDecimal `db:"cashback_rate" json:"cashback_rate"`
	MinPurchaseAmount     *int64              `db:"min_purchase_amount" json:"min_purchase_amount,omitempty"`
	BrandIDs              pq.StringArray      `db:"brand_ids" json:"brand_ids"`
	ProductIDs            pq.StringArray      `db:"product_ids" json:"product_ids"`
	UserSegment           *Segment            `db:"user_segment" json:"user_segment,omitempty"`
	StartDate             time.Time           `db:"start_date" json:"start_date"`
	EndDate               time.Time           `db:"end_date" json:"end_date"`
	MaxRedemptions        *int                `db:"max_redemptions" json:"max_redemptions,omitempty"`
	MaxRedemptionsPerUser int                 `db:"max_redemptions_per_user" json:"max_redemptions_per_user"`
	TotalRedemptions      int                 `db:"total_redemptions" json:"total_redemptions"`
	IsActive              bool                `db:"is_active" json:"is_active"`
	Metadata              metadata.Metadata   `db:"metadata" json:"metadata,omitempty"`
	CreatedAt             time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt             time.Time           `db:"updated_at" json:"updated_at"`
}

// RewardKind returns COINS for coin campaigns and CASHBACK otherwise.
func (c *Campaign) RewardKind() RewardKind {
	if c.CoinAmount != nil {
		return RewardCoins
	}
	return RewardCashback
}

// RewardCoinType is the coin type a coin campaign issues. PROMO when unset.
func (c *Campaign) RewardCoinType() wallet.CoinType {
	if c.CoinType != nil && c.CoinType.Valid() {
		return *c.CoinType
	}
	return wallet.CoinTypePromo
}

// InWindow reports whether now lies within [StartDate, EndDate].
func (c *Campaign) InWindow(now time.Time) bool {
	return !now.Before(c.StartDate) && !now.After(c.EndDate)
}

// Reward computes the reward for an order. Cashback campaigns need an order
// total; the result is truncated to whole Fils.
func (c *Campaign) Reward(order *OrderData) int64 {
	if c.CoinAmount != nil {
		return *c.CoinAmount
	}
	if !c.CashbackRate.Valid || order == nil {
		return 0
	}
	return money.Percent(order.Total, c.CashbackRate.Decimal)
}

// OrderItem is one line of an order as seen by eligibility rules.
type OrderItem struct {
	ProductID string `json:"product_id"`
	BrandID   string `json:"brand_id"`
	Quantity  int    `json:"quantity"`
	Price     int64  `json:"price"`
}

// OrderData is the order context supplied by the order flow. Totals are in Fils.
type OrderData struct {
	OrderID string      `json:"order_id"`
	Total   int64       `json:"total"`
	Items   []OrderItem `json:"items"`
}

// UserFacts are the per-user inputs eligibility needs.
type UserFacts struct {
	Redemptions   int
	OrderCount    int
	LifetimeSpend int64
}

// Eligibility is the outcome of evaluating a campaign for a user.
type Eligibility struct {
	Eligible bool      `json:"eligible"`
	Reason   string    `json:"reason,omitempty"`
	Campaign *Campaign `json:"campaign,omitempty"`
}

// Redemption is one successful applyCampaign.
type Redemption struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	CampaignID uuid.UUID  `db:"campaign_id" json:"campaign_id"`
	UserID     uuid.UUID  `db:"user_id" json:"user_id"`
	RewardKind RewardKind `db:"reward_kind" json:"reward_kind"`
	Amount     int64      `db:"amount" json:"amount"`
	OrderID    *string    `db:"order_id" json:"order_id,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
}

// RewardDescriptor tells the caller what to earn. The engine itself never
// touches a ledger.
type RewardDescriptor struct {
	CampaignID   uuid.UUID        `json:"campaign_id"`
	RedemptionID uuid.UUID        `json:"redemption_id"`
	UserID       uuid.UUID        `json:"user_id"`
	Kind         RewardKind       `json:"kind"`
	CoinType     wallet.CoinType  `json:"coin_type,omitempty"`
	Amount       int64            `json:"amount"`
	CashbackRate *decimal.Decimal `json:"cashback_rate,omitempty"`
	BrandIDs     []string         `json:"brand_ids,omitempty"`
	OrderID      string           `json:"order_id,omitempty"`
}
