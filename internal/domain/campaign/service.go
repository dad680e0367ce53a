package campaign

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mwork/mwork-rewards/internal/pkg/logger"
)

const defaultVIPLifetimeSpend = 500_000

// Store is the campaign persistence the engine needs.
type Store interface {
	Create(ctx context.Context, c *Campaign) error
	Update(ctx context.Context, c *Campaign) error
	GetByID(ctx context.Context, id uuid.UUID) (*Campaign, error)
	List(ctx context.Context, activeOnly bool, limit, offset int) ([]Campaign, error)
	ListRunning(ctx context.Context, now time.Time) ([]Campaign, error)
	Deactivate(ctx context.Context, id uuid.UUID, now time.Time) error
	DeactivateEnded(ctx context.Context, now time.Time) (int64, error)
	CountUserRedemptions(ctx context.Context, campaignID, userID uuid.UUID) (int, error)
	Redeem(ctx context.Context, campaignID, userID uuid.UUID, decide DecideFunc) (*Redemption, error)
}

// UserStats supplies the order history behind the 'new' and 'vip' segments.
type UserStats interface {
	UserOrderStats(ctx context.Context, userID uuid.UUID) (orderCount int, lifetimeSpend int64, err error)
}

type Config struct {
	VIPLifetimeSpend int64
	Now              func() time.Time
}

// Service is the campaign engine. It decides eligibility and reward size but
// never moves balances.
type Service struct {
	store Store
	stats UserStats
	cfg   Config
}

func NewService(store Store, stats UserStats, cfg Config) *Service {
	if cfg.VIPLifetimeSpend <= 0 {
		cfg.VIPLifetimeSpend = defaultVIPLifetimeSpend
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{store: store, stats: stats, cfg: cfg}
}

func (s *Service) CreateCampaign(ctx context.Context, req *CreateRequest) (*Campaign, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	c := req.ToCampaign(s.cfg.Now())
	if err := validateCampaign(c); err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, c); err != nil {
		return nil, err
	}

	log.Info().Str("campaign_id", c.ID.String()).Str("name", c.Name).Str("reward_kind", string(c.RewardKind())).Msg("campaign created")
	return c, nil
}

func (s *Service) UpdateCampaign(ctx context.Context, id uuid.UUID, req *UpdateRequest) (*Campaign, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}

	c, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	req.ApplyTo(c, s.cfg.Now())
	if err := validateCampaign(c); err != nil {
		return nil, err
	}
	if err := s.store.Update(ctx, c); err != nil {
		return nil, err
	}

	log.Info().Str("campaign_id", id.String()).Msg("campaign updated")
	return c, nil
}

func (s *Service) GetCampaign(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	return s.store.GetByID(ctx, id)
}

func (s *Service) ListCampaigns(ctx context.Context, activeOnly bool, limit, offset int) ([]Campaign, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.store.List(ctx, activeOnly, limit, offset)
}

func (s *Service) DeactivateCampaign(ctx context.Context, id uuid.UUID) error {
	if err := s.store.Deactivate(ctx, id, s.cfg.Now()); err != nil {
		return err
	}
	log.Info().Str("campaign_id", id.String()).Msg("campaign deactivated")
	return nil
}

// ExpireEndedCampaigns deactivates campaigns past their end date.
func (s *Service) ExpireEndedCampaigns(ctx context.Context) (int64, error) {
	n, err := s.store.DeactivateEnded(ctx, s.cfg.Now())
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.FromContext(ctx).Info().Int64("deactivated", n).Msg("ended campaigns deactivated")
	}
	return n, nil
}

// CheckEligibility is advisory; ApplyCampaign evaluates again under lock.
func (s *Service) CheckEligibility(ctx context.Context, userID, campaignID uuid.UUID, order *OrderData) (*Eligibility, error) {
	c, err := s.store.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}

	used, err := s.store.CountUserRedemptions(ctx, campaignID, userID)
	if err != nil {
		return nil, err
	}

	result, err := s.evaluate(ctx, c, userID, used, order)
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// ApplyCampaign re-runs eligibility inside the redemption transaction, computes
// the reward and records the redemption. The caller earns the returned reward.
// Segment facts are read before the campaign row is locked: the transaction
// holds a pooled connection and must not wait for a second one.
func (s *Service) ApplyCampaign(ctx context.Context, userID, campaignID uuid.UUID, order *OrderData) (*RewardDescriptor, error) {
	current, err := s.store.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	facts, loaded, err := s.segmentFacts(ctx, current, userID)
	if err != nil {
		return nil, err
	}

	var descriptor *RewardDescriptor
	_, err = s.store.Redeem(ctx, campaignID, userID, func(c *Campaign, used int) (*Redemption, error) {
		if c.UserSegment != nil && s.stats != nil && !loaded {
			return nil, ErrCampaignChanged
		}
		facts.Redemptions = used
		result := Evaluate(c, s.cfg.Now(), order, facts, s.cfg.VIPLifetimeSpend)
		if !result.Eligible {
			return nil, &IneligibleError{Reason: result.Reason}
		}

		amount := c.Reward(order)
		if amount <= 0 {
			return nil, ErrInvalidReward
		}

		red := &Redemption{
			ID:         uuid.New(),
			CampaignID: c.ID,
			UserID:     userID,
			RewardKind: c.RewardKind(),
			Amount:     amount,
			CreatedAt:  s.cfg.Now(),
		}
		descriptor = &RewardDescriptor{
			CampaignID:   c.ID,
			RedemptionID: red.ID,
			UserID:       userID,
			Kind:         red.RewardKind,
			Amount:       amount,
			BrandIDs:     c.BrandIDs,
		}
		if red.RewardKind == RewardCoins {
			descriptor.CoinType = c.RewardCoinType()
		} else {
			rate := c.CashbackRate.Decimal
			descriptor.CashbackRate = &rate
		}
		if order != nil && order.OrderID != "" {
			orderID := order.OrderID
			red.OrderID = &orderID
			descriptor.OrderID = orderID
		}
		return red, nil
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("user_id", userID.String()).
		Str("campaign_id", campaignID.String()).
		Str("reward_kind", string(descriptor.Kind)).
		Int64("amount", descriptor.Amount).
		Msg("campaign applied")
	return descriptor, nil
}

// GetEligibleCampaigns evaluates every running campaign and returns the ones
// the user qualifies for, highest estimated reward first. Coins and Fils are
// compared one to one; ties go to the campaign ending soonest.
func (s *Service) GetEligibleCampaigns(ctx context.Context, userID uuid.UUID, order *OrderData) ([]Campaign, error) {
	running, err := s.store.ListRunning(ctx, s.cfg.Now())
	if err != nil {
		return nil, err
	}

	eligible := make([]Campaign, 0, len(running))
	for i := range running {
		c := &running[i]
		used, err := s.store.CountUserRedemptions(ctx, c.ID, userID)
		if err != nil {
			return nil, err
		}
		result, err := s.evaluate(ctx, c, userID, used, order)
		if err != nil {
			return nil, err
		}
		if result.Eligible {
			eligible = append(eligible, *c)
		}
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		ri, rj := eligible[i].Reward(order), eligible[j].Reward(order)
		if ri != rj {
			return ri > rj
		}
		return eligible[i].EndDate.Before(eligible[j].EndDate)
	})
	return eligible, nil
}

func (s *Service) evaluate(ctx context.Context, c *Campaign, userID uuid.UUID, used int, order *OrderData) (Eligibility, error) {
	facts, _, err := s.segmentFacts(ctx, c, userID)
	if err != nil {
		return Eligibility{}, err
	}
	facts.Redemptions = used
	return Evaluate(c, s.cfg.Now(), order, facts, s.cfg.VIPLifetimeSpend), nil
}

// segmentFacts loads order history only when the campaign targets a segment.
func (s *Service) segmentFacts(ctx context.Context, c *Campaign, userID uuid.UUID) (UserFacts, bool, error) {
	if c.UserSegment == nil || s.stats == nil {
		return UserFacts{}, false, nil
	}
	count, spend, err := s.stats.UserOrderStats(ctx, userID)
	if err != nil {
		return UserFacts{}, false, err
	}
	return UserFacts{OrderCount: count, LifetimeSpend: spend}, true, nil
}
