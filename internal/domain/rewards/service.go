// Package rewards connects the order flow to the ledgers. Every hook degrades
// instead of failing: reward errors are logged and reported in the Outcome,
// never returned, so an order is never rolled back because of a reward.
package rewards

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/mwork/mwork-rewards/internal/domain/campaign"
	"github.com/mwork/mwork-rewards/internal/domain/cashback"
	"github.com/mwork/mwork-rewards/internal/domain/coin"
	"github.com/mwork/mwork-rewards/internal/domain/wallet"
	"github.com/mwork/mwork-rewards/internal/pkg/logger"
	"github.com/mwork/mwork-rewards/internal/pkg/metadata"
)

type CoinLedger interface {
	EarnCoins(ctx context.Context, req coin.EarnRequest) (*coin.Transaction, error)
}

type CashbackLedger interface {
	EarnCashback(ctx context.Context, req cashback.EarnRequest) (*cashback.Transaction, error)
	CreditCashbackByOrderID(ctx context.Context, orderID string) (*cashback.BatchResult, error)
	CancelCashbackByOrderID(ctx context.Context, orderID string) (*cashback.BatchResult, error)
}

type CampaignEngine interface {
	ApplyCampaign(ctx context.Context, userID, campaignID uuid.UUID, order *campaign.OrderData) (*campaign.RewardDescriptor, error)
	GetEligibleCampaigns(ctx context.Context, userID uuid.UUID, order *campaign.OrderData) ([]campaign.Campaign, error)
}

// CashbackItem is cashback already priced by the catalog for one order line.
type CashbackItem struct {
	ProductID string
	Amount    int64
	Rate      *decimal.Decimal
}

// CoinItem is a coin grant for one order line.
type CoinItem struct {
	ProductID     string
	CoinType      wallet.CoinType
	Amount        int64
	Brand         *wallet.BrandInfo
	ExpiresInDays *int
}

// PlacedOrder is what the order flow reports when an order is placed.
type PlacedOrder struct {
	UserID   uuid.UUID
	Order    campaign.OrderData
	Cashback []CashbackItem
	Coins    []CoinItem
}

// Applied is one reward that reached a ledger.
type Applied struct {
	Step          string    `json:"step"`
	TransactionID uuid.UUID `json:"transaction_id"`
	Amount        int64     `json:"amount"`
}

// Failure is one reward step that did not.
type Failure struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

// Outcome reports what a hook did.
type Outcome struct {
	OrderID  string    `json:"order_id,omitempty"`
	Applied  []Applied `json:"applied"`
	Amount   int64     `json:"amount"`
	Failures []Failure `json:"failures,omitempty"`
}

func (o *Outcome) OK() bool {
	return len(o.Failures) == 0
}

func (o *Outcome) add(step string, id uuid.UUID, amount int64) {
	o.Applied = append(o.Applied, Applied{Step: step, TransactionID: id, Amount: amount})
	o.Amount += amount
}

func (o *Outcome) fail(ctx context.Context, step string, err error) {
	o.Failures = append(o.Failures, Failure{Step: step, Error: err.Error()})
	if errors.Is(err, campaign.ErrNotEligible) || cashback.IsBusinessError(err) {
		logger.LogWarn(ctx, "reward step skipped", "step", step, "order_id", o.OrderID, "error", err.Error())
		return
	}
	logger.LogError(ctx, err, "reward step failed", "step", step, "order_id", o.OrderID)
}

type Service struct {
	coins     CoinLedger
	cashback  CashbackLedger
	campaigns CampaignEngine
}

func NewService(coins CoinLedger, cb CashbackLedger, campaigns CampaignEngine) *Service {
	return &Service{coins: coins, cashback: cb, campaigns: campaigns}
}

// OnOrderPlaced records pending cashback and earns coins for each order line.
func (s *Service) OnOrderPlaced(ctx context.Context, order PlacedOrder) *Outcome {
	out := &Outcome{OrderID: order.Order.OrderID}

	for _, item := range order.Cashback {
		step := "cashback:" + item.ProductID
		t, err := s.cashback.EarnCashback(ctx, cashback.EarnRequest{
			UserID:       order.UserID,
			Amount:       item.Amount,
			OrderID:      order.Order.OrderID,
			ProductID:    item.ProductID,
			CashbackRate: item.Rate,
			Description:  fmt.Sprintf("cashback for order %s", order.Order.OrderID),
		})
		if err != nil {
			out.fail(ctx, step, err)
			continue
		}
		out.add(step, t.ID, t.Amount)
	}

	for _, item := range order.Coins {
		step := "coins:" + item.ProductID
		orderID, productID := order.Order.OrderID, item.ProductID
		t, err := s.coins.EarnCoins(ctx, coin.EarnRequest{
			UserID:        order.UserID,
			CoinType:      item.CoinType,
			Amount:        item.Amount,
			Reason:        coin.ReasonPurchase,
			Description:   fmt.Sprintf("coins for order %s", orderID),
			References:    coin.References{OrderID: &orderID, ProductID: &productID},
			Brand:         item.Brand,
			ExpiresInDays: item.ExpiresInDays,
		})
		if err != nil {
			out.fail(ctx, step, err)
			continue
		}
		out.add(step, t.ID, t.Amount)
	}

	s.logOutcome(out, "order placed rewards")
	return out
}

// OnOrderDelivered credits the order's pending cashback.
func (s *Service) OnOrderDelivered(ctx context.Context, orderID string) *Outcome {
	out := &Outcome{OrderID: orderID}
	res, err := s.cashback.CreditCashbackByOrderID(ctx, orderID)
	if err != nil {
		out.fail(ctx, "credit_cashback", err)
		return out
	}
	out.merge("credit_cashback", res)
	s.logOutcome(out, "order delivered rewards")
	return out
}

// OnOrderCancelled cancels the order's pending cashback. An order that never
// earned cashback is not a failure.
func (s *Service) OnOrderCancelled(ctx context.Context, orderID string) *Outcome {
	out := &Outcome{OrderID: orderID}
	res, err := s.cashback.CancelCashbackByOrderID(ctx, orderID)
	if errors.Is(err, cashback.ErrTransactionNotFound) {
		return out
	}
	if err != nil {
		out.fail(ctx, "cancel_cashback", err)
		return out
	}
	out.merge("cancel_cashback", res)
	s.logOutcome(out, "order cancelled rewards")
	return out
}

// ApplyCampaignReward applies a campaign and earns its reward on the matching ledger.
func (s *Service) ApplyCampaignReward(ctx context.Context, userID, campaignID uuid.UUID, order *campaign.OrderData) *Outcome {
	out := &Outcome{}
	if order != nil {
		out.OrderID = order.OrderID
	}

	step := "campaign:" + campaignID.String()
	reward, err := s.campaigns.ApplyCampaign(ctx, userID, campaignID, order)
	if err != nil {
		out.fail(ctx, step, err)
		return out
	}
	s.earnReward(ctx, out, step, reward)
	return out
}

// ApplyBestCampaign applies the highest-value campaign the order qualifies for.
// Campaigns do not stack; later candidates are only tried when an earlier one
// is taken by a concurrent apply.
func (s *Service) ApplyBestCampaign(ctx context.Context, userID uuid.UUID, order *campaign.OrderData) *Outcome {
	out := &Outcome{}
	if order != nil {
		out.OrderID = order.OrderID
	}

	candidates, err := s.campaigns.GetEligibleCampaigns(ctx, userID, order)
	if err != nil {
		out.fail(ctx, "eligible_campaigns", err)
		return out
	}

	for _, c := range candidates {
		reward, err := s.campaigns.ApplyCampaign(ctx, userID, c.ID, order)
		if errors.Is(err, campaign.ErrNotEligible) {
			continue
		}
		step := "campaign:" + c.ID.String()
		if err != nil {
			out.fail(ctx, step, err)
			return out
		}
		s.earnReward(ctx, out, step, reward)
		return out
	}
	return out
}

func (s *Service) earnReward(ctx context.Context, out *Outcome, step string, reward *campaign.RewardDescriptor) {
	meta := metadata.Metadata{
		"campaign_id":   reward.CampaignID.String(),
		"redemption_id": reward.RedemptionID.String(),
	}

	switch reward.Kind {
	case campaign.RewardCoins:
		campaignID := reward.CampaignID
		req := coin.EarnRequest{
			UserID:      reward.UserID,
			CoinType:    reward.CoinType,
			Amount:      reward.Amount,
			Reason:      coin.ReasonCampaign,
			Description: "campaign reward",
			References:  coin.References{CampaignID: &campaignID},
			Metadata:    meta,
		}
		if reward.OrderID != "" {
			orderID := reward.OrderID
			req.References.OrderID = &orderID
		}
		if reward.CoinType == wallet.CoinTypeBranded && len(reward.BrandIDs) == 1 {
			req.Brand = &wallet.BrandInfo{BrandID: reward.BrandIDs[0]}
		}
		t, err := s.coins.EarnCoins(ctx, req)
		if err != nil {
			out.fail(ctx, step, err)
			return
		}
		out.add(step, t.ID, t.Amount)

	case campaign.RewardCashback:
		t, err := s.cashback.EarnCashback(ctx, cashback.EarnRequest{
			UserID:       reward.UserID,
			Amount:       reward.Amount,
			OrderID:      reward.OrderID,
			CashbackRate: reward.CashbackRate,
			Description:  "campaign cashback",
			Metadata:     meta,
		})
		if err != nil {
			out.fail(ctx, step, err)
			return
		}
		out.add(step, t.ID, t.Amount)
	}
}

// merge folds an order-wide cashback batch into the outcome.
func (o *Outcome) merge(step string, res *cashback.BatchResult) {
	for _, id := range res.Succeeded {
		o.Applied = append(o.Applied, Applied{Step: step, TransactionID: id})
	}
	for _, f := range res.Failures {
		o.Failures = append(o.Failures, Failure{Step: step + ":" + f.TransactionID.String(), Error: f.Error})
	}
	o.Amount += res.Amount
}

func (s *Service) logOutcome(out *Outcome, msg string) {
	log.Info().
		Str("order_id", out.OrderID).
		Int("applied", len(out.Applied)).
		Int("failed", len(out.Failures)).
		Msg(msg)
}
