package campaign

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }

func segPtr(s Segment) *Segment { return &s }

func baseCampaign(now time.Time) *Campaign {
	return &Campaign{
		Name:                  "spring",
		Type:                  TypePurchase,
		CoinAmount:            int64Ptr(500),
		StartDate:             now.Add(-time.Hour),
		EndDate:               now.Add(time.Hour),
		MaxRedemptionsPerUser: 1,
		IsActive:              true,
	}
}

func TestEvaluateRulesInOrder(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	order := &OrderData{Total: 10_000, Items: []OrderItem{{ProductID: "p1", BrandID: "b1"}}}

	cases := []struct {
		name   string
		mutate func(c *Campaign)
		order  *OrderData
		user   UserFacts
		reason string
	}{
		{"inactive beats everything", func(c *Campaign) { c.IsActive = false; c.EndDate = now.Add(-time.Minute) }, order, UserFacts{Redemptions: 5}, ReasonInactive},
		{"not started", func(c *Campaign) { c.StartDate = now.Add(time.Minute) }, order, UserFacts{}, ReasonOutsideWindow},
		{"ended", func(c *Campaign) { c.EndDate = now.Add(-time.Minute) }, order, UserFacts{}, ReasonOutsideWindow},
		{"global cap", func(c *Campaign) { c.MaxRedemptions = intPtr(3); c.TotalRedemptions = 3 }, order, UserFacts{}, ReasonCapReached},
		{"per user cap", func(c *Campaign) {}, order, UserFacts{Redemptions: 1}, ReasonUserCapReached},
		{"min purchase", func(c *Campaign) { c.MinPurchaseAmount = int64Ptr(20_000) }, order, UserFacts{}, ReasonBelowMinPurchase},
		{"brand mismatch", func(c *Campaign) { c.BrandIDs = []string{"b9"} }, order, UserFacts{}, ReasonBrandMismatch},
		{"product mismatch", func(c *Campaign) { c.ProductIDs = []string{"p9"} }, order, UserFacts{}, ReasonProductMismatch},
		{"new segment with orders", func(c *Campaign) { c.UserSegment = segPtr(SegmentNew) }, order, UserFacts{OrderCount: 2}, ReasonSegmentMismatch},
		{"vip below threshold", func(c *Campaign) { c.UserSegment = segPtr(SegmentVIP) }, order, UserFacts{LifetimeSpend: 499_999}, ReasonSegmentMismatch},
		{"unknown segment", func(c *Campaign) { c.UserSegment = segPtr("gold") }, order, UserFacts{}, ReasonUnknownSegment},
		{"order rules skipped without order", func(c *Campaign) {
			c.MinPurchaseAmount = int64Ptr(20_000)
			c.BrandIDs = []string{"b9"}
		}, nil, UserFacts{}, ""},
		{"vip at threshold", func(c *Campaign) { c.UserSegment = segPtr(SegmentVIP) }, order, UserFacts{LifetimeSpend: 500_000}, ""},
		{"matching lists", func(c *Campaign) {
			c.BrandIDs = []string{"b0", "b1"}
			c.ProductIDs = []string{"p1"}
			c.MinPurchaseAmount = int64Ptr(10_000)
		}, order, UserFacts{}, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := baseCampaign(now)
			tc.mutate(c)
			got := Evaluate(c, now, tc.order, tc.user, 500_000)
			if tc.reason == "" {
				if !got.Eligible || got.Campaign != c {
					t.Fatalf("expected eligible, got %+v", got)
				}
				return
			}
			if got.Eligible || got.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %+v", tc.reason, got)
			}
		})
	}
}

func TestEvaluateWindowIsInclusive(t *testing.T) {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	c := baseCampaign(now)
	c.StartDate = now
	if got := Evaluate(c, now, nil, UserFacts{}, 0); !got.Eligible {
		t.Fatalf("expected eligible at start boundary, got %+v", got)
	}
	c.StartDate, c.EndDate = now.Add(-time.Hour), now
	if got := Evaluate(c, now, nil, UserFacts{}, 0); !got.Eligible {
		t.Fatalf("expected eligible at end boundary, got %+v", got)
	}
}

func TestCampaignReward(t *testing.T) {
	coins := &Campaign{CoinAmount: int64Ptr(250)}
	if got := coins.Reward(nil); got != 250 {
		t.Fatalf("expected 250 coins, got %d", got)
	}

	cashback := &Campaign{CashbackRate: decimal.NewNullDecimal(decimal.RequireFromString("2.5"))}
	if got := cashback.Reward(&OrderData{Total: 1999}); got != 49 {
		t.Fatalf("expected 49 fils, got %d", got)
	}
	if got := cashback.Reward(nil); got != 0 {
		t.Fatalf("expected 0 without order, got %d", got)
	}
}
