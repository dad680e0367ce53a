package campaign

import "time"

// Skip reasons, in rule order.
const (
	ReasonInactive         = "campaign_inactive"
	ReasonOutsideWindow    = "outside_campaign_window"
	ReasonCapReached       = "max_redemptions_reached"
	ReasonUserCapReached   = "per_user_limit_reached"
	ReasonBelowMinPurchase = "below_min_purchase"
	ReasonBrandMismatch    = "no_matching_brand"
	ReasonProductMismatch  = "no_matching_product"
	ReasonSegmentMismatch  = "user_segment_mismatch"
	ReasonUnknownSegment   = "unknown_user_segment"
)

const defaultPerUserRedemptions = 1

// Evaluate runs the eligibility rules in order and stops at the first failure.
// order may be nil; rules that need it are then skipped.
func Evaluate(c *Campaign, now time.Time, order *OrderData, user UserFacts, vipThreshold int64) Eligibility {
	reject := func(reason string) Eligibility {
		return Eligibility{Eligible: false, Reason: reason}
	}

	if !c.IsActive {
		return reject(ReasonInactive)
	}
	if !c.InWindow(now) {
		return reject(ReasonOutsideWindow)
	}
	if c.MaxRedemptions != nil && c.TotalRedemptions >= *c.MaxRedemptions {
		return reject(ReasonCapReached)
	}

	perUser := c.MaxRedemptionsPerUser
	if perUser <= 0 {
		perUser = defaultPerUserRedemptions
	}
	if user.Redemptions >= perUser {
		return reject(ReasonUserCapReached)
	}

	if order != nil {
		if c.MinPurchaseAmount != nil && order.Total < *c.MinPurchaseAmount {
			return reject(ReasonBelowMinPurchase)
		}
		if len(c.BrandIDs) > 0 && !intersects(c.BrandIDs, order.Items, func(it OrderItem) string { return it.BrandID }) {
			return reject(ReasonBrandMismatch)
		}
		if len(c.ProductIDs) > 0 && !intersects(c.ProductIDs, order.Items, func(it OrderItem) string { return it.ProductID }) {
			return reject(ReasonProductMismatch)
		}
	}

	if c.UserSegment != nil {
		switch *c.UserSegment {
		case SegmentNew:
			if user.OrderCount > 0 {
				return reject(ReasonSegmentMismatch)
			}
		case SegmentVIP:
			if user.LifetimeSpend < vipThreshold {
				return reject(ReasonSegmentMismatch)
			}
		default:
			return reject(ReasonUnknownSegment)
		}
	}

	return Eligibility{Eligible: true, Campaign: c}
}

func intersects(ids []string, items []OrderItem, key func(OrderItem) string) bool {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for _, it := range items {
		if _, ok := set[key(it)]; ok {
			return true
		}
	}
	return false
}
