package rewards

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mwork/mwork-rewards/internal/domain/campaign"
	"github.com/mwork/mwork-rewards/internal/domain/wallet"
)

// OrderPlacedRequest is the order flow's notification that an order was placed.
type OrderPlacedRequest struct {
	UserID         string                `json:"user_id" validate:"required,uuid"`
	OrderID        string                `json:"order_id" validate:"required,max=100"`
	Total          int64                 `json:"total" validate:"gte=0"`
	Items          []campaign.OrderItem  `json:"items"`
	Cashback       []CashbackItemRequest `json:"cashback" validate:"dive"`
	Coins          []CoinItemRequest     `json:"coins" validate:"dive"`
	ApplyCampaigns bool                  `json:"apply_campaigns"`
}

type CashbackItemRequest struct {
	ProductID string           `json:"product_id" validate:"required"`
	Amount    int64            `json:"amount" validate:"gt=0"`
	Rate      *decimal.Decimal `json:"rate"`
}

type CoinItemRequest struct {
	ProductID     string `json:"product_id" validate:"required"`
	CoinType      string `json:"coin_type" validate:"required,coin_type"`
	Amount        int64  `json:"amount" validate:"gt=0"`
	BrandID       string `json:"brand_id" validate:"required_if=CoinType BRANDED"`
	BrandName     string `json:"brand_name"`
	ExpiresInDays *int   `json:"expires_in_days" validate:"omitempty,gt=0"`
}

// OrderPlacedResponse carries the order hook outcome and, when requested,
// the campaign outcome.
type OrderPlacedResponse struct {
	Order    *Outcome `json:"order"`
	Campaign *Outcome `json:"campaign,omitempty"`
}

// ToPlacedOrder assumes the request passed validation.
func (r *OrderPlacedRequest) ToPlacedOrder() PlacedOrder {
	order := PlacedOrder{
		UserID: uuid.MustParse(r.UserID),
		Order: campaign.OrderData{
			OrderID: r.OrderID,
			Total:   r.Total,
			Items:   r.Items,
		},
	}

	for _, c := range r.Cashback {
		order.Cashback = append(order.Cashback, CashbackItem{
			ProductID: c.ProductID,
			Amount:    c.Amount,
			Rate:      c.Rate,
		})
	}

	for _, c := range r.Coins {
		item := CoinItem{
			ProductID:     c.ProductID,
			CoinType:      wallet.CoinType(c.CoinType),
			Amount:        c.Amount,
			ExpiresInDays: c.ExpiresInDays,
		}
		if c.BrandID != "" {
			item.Brand = &wallet.BrandInfo{BrandID: c.BrandID, BrandName: c.BrandName}
		}
		order.Coins = append(order.Coins, item)
	}
	return order
}
