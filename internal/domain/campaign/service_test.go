package campaign

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mwork/mwork-rewards/internal/domain/wallet"
)

type memStore struct {
	mu          sync.Mutex
	campaigns   map[uuid.UUID]*Campaign
	redemptions []Redemption

	// set while decide runs, the in-memory stand-in for a held row lock
	locked atomic.Bool

	// runs before decide, with the lock held
	beforeDecide func(c *Campaign)
}

func newMemStore() *memStore {
	return &memStore{campaigns: map[uuid.UUID]*Campaign{}}
}

func (m *memStore) Create(_ context.Context, c *Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *memStore) Update(_ context.Context, c *Campaign) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.campaigns[c.ID]; !ok {
		return ErrCampaignNotFound
	}
	cp := *c
	m.campaigns[c.ID] = &cp
	return nil
}

func (m *memStore) GetByID(_ context.Context, id uuid.UUID) (*Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *memStore) List(_ context.Context, activeOnly bool, limit, _ int) ([]Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Campaign, 0)
	for _, c := range m.campaigns {
		if activeOnly && !c.IsActive {
			continue
		}
		out = append(out, *c)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memStore) ListRunning(_ context.Context, now time.Time) ([]Campaign, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Campaign, 0)
	for _, c := range m.campaigns {
		if c.IsActive && c.InWindow(now) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memStore) Deactivate(_ context.Context, id uuid.UUID, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[id]
	if !ok {
		return ErrCampaignNotFound
	}
	c.IsActive = false
	c.UpdatedAt = now
	return nil
}

func (m *memStore) DeactivateEnded(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, c := range m.campaigns {
		if c.IsActive && c.EndDate.Before(now) {
			c.IsActive = false
			n++
		}
	}
	return n, nil
}

func (m *memStore) count(campaignID, userID uuid.UUID) int {
	n := 0
	for _, r := range m.redemptions {
		if r.CampaignID == campaignID && r.UserID == userID {
			n++
		}
	}
	return n
}

func (m *memStore) CountUserRedemptions(_ context.Context, campaignID, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count(campaignID, userID), nil
}

func (m *memStore) Redeem(_ context.Context, campaignID, userID uuid.UUID, decide DecideFunc) (*Redemption, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.campaigns[campaignID]
	if !ok {
		return nil, ErrCampaignNotFound
	}
	if m.beforeDecide != nil {
		m.beforeDecide(c)
	}
	snapshot := *c
	m.locked.Store(true)
	red, err := decide(&snapshot, m.count(campaignID, userID))
	m.locked.Store(false)
	if err != nil {
		return nil, err
	}
	m.redemptions = append(m.redemptions, *red)
	c.TotalRedemptions++
	return red, nil
}

type fakeStats struct {
	store  *memStore
	orders map[uuid.UUID]int
	spend  map[uuid.UUID]int64
	calls  int
}

var errStatsUnderLock = errors.New("order stats read while the campaign row is locked")

func (f *fakeStats) UserOrderStats(_ context.Context, userID uuid.UUID) (int, int64, error) {
	if f.store != nil && f.store.locked.Load() {
		return 0, 0, errStatsUnderLock
	}
	f.calls++
	return f.orders[userID], f.spend[userID], nil
}

var testNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

func newTestService() (*Service, *memStore, *fakeStats) {
	store := newMemStore()
	stats := &fakeStats{store: store, orders: map[uuid.UUID]int{}, spend: map[uuid.UUID]int64{}}
	svc := NewService(store, stats, Config{Now: func() time.Time { return testNow }})
	return svc, store, stats
}

func coinRequest(amount int64) *CreateRequest {
	return &CreateRequest{
		Name:       "Launch bonus",
		Type:       string(TypePurchase),
		CoinType:   string(wallet.CoinTypePromo),
		CoinAmount: &amount,
		StartDate:  testNow.Add(-24 * time.Hour),
		EndDate:    testNow.Add(24 * time.Hour),
	}
}

func TestCreateCampaignValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	rate := decimal.NewFromInt(5)
	tooHigh := decimal.NewFromInt(150)

	cases := []struct {
		name  string
		req   func() *CreateRequest
		field string
	}{
		{"both rewards", func() *CreateRequest { r := coinRequest(100); r.CashbackRate = &rate; return r }, "coin_amount"},
		{"no reward", func() *CreateRequest { r := coinRequest(100); r.CoinAmount = nil; return r }, "coin_amount"},
		{"window reversed", func() *CreateRequest { r := coinRequest(100); r.EndDate = r.StartDate; return r }, "end_date"},
		{"rate above 100", func() *CreateRequest { r := coinRequest(100); r.CoinAmount = nil; r.CashbackRate = &tooHigh; return r }, "cashback_rate"},
		{"bad type tag", func() *CreateRequest { r := coinRequest(100); r.Type = "FLASH"; return r }, "type"},
		{"bad segment tag", func() *CreateRequest { r := coinRequest(100); r.UserSegment = "gold"; return r }, "user_segment"},
		{"non positive coins", func() *CreateRequest { r := coinRequest(0); return r }, "coin_amount"},
		{"branded without brand", func() *CreateRequest { r := coinRequest(100); r.CoinType = string(wallet.CoinTypeBranded); return r }, "brand_ids"},
		{"branded with two brands", func() *CreateRequest {
			r := coinRequest(100)
			r.CoinType = string(wallet.CoinTypeBranded)
			r.BrandIDs = []string{"b1", "b2"}
			return r
		}, "brand_ids"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateCampaign(ctx, tc.req())
			if !errors.Is(err, ErrInvalidCampaign) {
				t.Fatalf("expected ErrInvalidCampaign, got %v", err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected *ValidationError, got %T", err)
			}
			if _, ok := verr.Fields[tc.field]; !ok {
				t.Fatalf("expected error on %s, got %v", tc.field, verr.Fields)
			}
		})
	}
}

func TestCreateBrandedCampaignWithOneBrand(t *testing.T) {
	svc, _, _ := newTestService()
	r := coinRequest(200)
	r.CoinType = string(wallet.CoinTypeBranded)
	r.BrandIDs = []string{"b1"}

	c, err := svc.CreateCampaign(context.Background(), r)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if c.RewardCoinType() != wallet.CoinTypeBranded || len(c.BrandIDs) != 1 {
		t.Fatalf("unexpected campaign %+v", c)
	}
}

func TestCreateCampaignDefaults(t *testing.T) {
	svc, _, _ := newTestService()
	c, err := svc.CreateCampaign(context.Background(), coinRequest(500))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if !c.IsActive || c.MaxRedemptionsPerUser != 1 || c.TotalRedemptions != 0 {
		t.Fatalf("unexpected defaults %+v", c)
	}
	if c.BrandIDs == nil || c.ProductIDs == nil {
		t.Fatal("expected empty, non-nil id lists")
	}
}

func TestUpdateCampaignSwitchesReward(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	c, _ := svc.CreateCampaign(ctx, coinRequest(500))

	rate := decimal.RequireFromString("3.5")
	updated, err := svc.UpdateCampaign(ctx, c.ID, &UpdateRequest{CashbackRate: &rate})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if updated.CoinAmount != nil || !updated.CashbackRate.Valid || updated.RewardKind() != RewardCashback {
		t.Fatalf("expected cashback campaign, got %+v", updated)
	}

	end := c.StartDate.Add(-time.Hour)
	if _, err := svc.UpdateCampaign(ctx, c.ID, &UpdateRequest{EndDate: &end}); !errors.Is(err, ErrInvalidCampaign) {
		t.Fatalf("expected ErrInvalidCampaign for reversed window, got %v", err)
	}
	if _, err := svc.UpdateCampaign(ctx, uuid.New(), &UpdateRequest{}); !errors.Is(err, ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}
}

func TestApplyCampaignPerUserCap(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	c, err := svc.CreateCampaign(ctx, coinRequest(500))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	reward, err := svc.ApplyCampaign(ctx, userID, c.ID, nil)
	if err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	if reward.Amount != 500 || reward.Kind != RewardCoins || reward.CoinType != wallet.CoinTypePromo {
		t.Fatalf("unexpected reward %+v", reward)
	}
	if got := store.campaigns[c.ID].TotalRedemptions; got != 1 {
		t.Fatalf("expected total_redemptions 1, got %d", got)
	}

	_, err = svc.ApplyCampaign(ctx, userID, c.ID, nil)
	var inel *IneligibleError
	if !errors.As(err, &inel) || inel.Reason != ReasonUserCapReached {
		t.Fatalf("expected per-user cap rejection, got %v", err)
	}
	if !errors.Is(err, ErrNotEligible) {
		t.Fatal("expected error to unwrap to ErrNotEligible")
	}

	check, err := svc.CheckEligibility(ctx, userID, c.ID, nil)
	if err != nil || check.Eligible || check.Reason != ReasonUserCapReached {
		t.Fatalf("expected ineligible check, got %+v err=%v", check, err)
	}

	if _, err := svc.ApplyCampaign(ctx, uuid.New(), c.ID, nil); err != nil {
		t.Fatalf("other user should still qualify: %v", err)
	}
}

func TestApplyCashbackCampaign(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	rate := decimal.NewFromInt(10)
	req := coinRequest(0)
	req.CoinAmount, req.CoinType, req.CashbackRate = nil, "", &rate
	c, err := svc.CreateCampaign(ctx, req)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if _, err := svc.ApplyCampaign(ctx, userID, c.ID, nil); !errors.Is(err, ErrInvalidReward) {
		t.Fatalf("expected ErrInvalidReward without order total, got %v", err)
	}
	if store.campaigns[c.ID].TotalRedemptions != 0 {
		t.Fatal("failed apply must not count a redemption")
	}

	reward, err := svc.ApplyCampaign(ctx, userID, c.ID, &OrderData{OrderID: "O9", Total: 12_345})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if reward.Kind != RewardCashback || reward.Amount != 1234 || reward.OrderID != "O9" {
		t.Fatalf("unexpected reward %+v", reward)
	}
	if reward.CashbackRate == nil || !reward.CashbackRate.Equal(rate) {
		t.Fatalf("expected rate on descriptor, got %v", reward.CashbackRate)
	}
	if store.redemptions[0].OrderID == nil || *store.redemptions[0].OrderID != "O9" {
		t.Fatal("expected order id on redemption record")
	}
}

func TestApplyCampaignGlobalCapUnderConcurrency(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	req := coinRequest(100)
	limit := 3
	req.MaxRedemptions = &limit
	c, _ := svc.CreateCampaign(ctx, req)

	var wg sync.WaitGroup
	var mu sync.Mutex
	success := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.ApplyCampaign(ctx, uuid.New(), c.ID, nil); err == nil {
				mu.Lock()
				success++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if success != limit || store.campaigns[c.ID].TotalRedemptions != limit {
		t.Fatalf("expected %d redemptions, got %d/%d", limit, success, store.campaigns[c.ID].TotalRedemptions)
	}
}

func TestSegmentStatsLoadedOnlyWhenNeeded(t *testing.T) {
	svc, _, stats := newTestService()
	ctx := context.Background()
	veteran := uuid.New()
	stats.orders[veteran] = 4
	stats.spend[veteran] = 900_000

	plain, _ := svc.CreateCampaign(ctx, coinRequest(100))
	if _, err := svc.CheckEligibility(ctx, veteran, plain.ID, nil); err != nil {
		t.Fatalf("check failed: %v", err)
	}
	if stats.calls != 0 {
		t.Fatalf("expected no stats lookup, got %d", stats.calls)
	}

	newReq := coinRequest(100)
	newReq.UserSegment = string(SegmentNew)
	newOnly, _ := svc.CreateCampaign(ctx, newReq)
	check, _ := svc.CheckEligibility(ctx, veteran, newOnly.ID, nil)
	if check.Eligible || check.Reason != ReasonSegmentMismatch {
		t.Fatalf("expected segment mismatch, got %+v", check)
	}
	if check, _ := svc.CheckEligibility(ctx, uuid.New(), newOnly.ID, nil); !check.Eligible {
		t.Fatalf("expected first-time user eligible, got %+v", check)
	}

	vipReq := coinRequest(100)
	vipReq.UserSegment = string(SegmentVIP)
	vip, _ := svc.CreateCampaign(ctx, vipReq)
	if check, _ := svc.CheckEligibility(ctx, veteran, vip.ID, nil); !check.Eligible {
		t.Fatalf("expected vip eligible, got %+v", check)
	}
}

func TestApplySegmentCampaignReadsStatsBeforeLocking(t *testing.T) {
	svc, _, stats := newTestService()
	ctx := context.Background()
	veteran := uuid.New()
	stats.orders[veteran] = 3

	req := coinRequest(100)
	req.UserSegment = string(SegmentNew)
	c, _ := svc.CreateCampaign(ctx, req)

	reward, err := svc.ApplyCampaign(ctx, uuid.New(), c.ID, nil)
	if err != nil {
		t.Fatalf("expected first-time user to be rewarded, got %v", err)
	}
	if reward.Amount != 100 || stats.calls != 1 {
		t.Fatalf("expected one stats read and 100 coins, got %d calls, %+v", stats.calls, reward)
	}

	var ineligible *IneligibleError
	if _, err := svc.ApplyCampaign(ctx, veteran, c.ID, nil); !errors.As(err, &ineligible) || ineligible.Reason != ReasonSegmentMismatch {
		t.Fatalf("expected segment mismatch, got %v", err)
	}
}

func TestApplyCampaignSegmentAddedConcurrently(t *testing.T) {
	svc, store, stats := newTestService()
	ctx := context.Background()
	c, _ := svc.CreateCampaign(ctx, coinRequest(100))

	store.beforeDecide = func(locked *Campaign) {
		locked.UserSegment = segPtr(SegmentVIP)
	}
	if _, err := svc.ApplyCampaign(ctx, uuid.New(), c.ID, nil); !errors.Is(err, ErrCampaignChanged) {
		t.Fatalf("expected ErrCampaignChanged, got %v", err)
	}
	if stats.calls != 0 {
		t.Fatalf("stats must not be read under the lock, got %d calls", stats.calls)
	}
	got, _ := svc.GetCampaign(ctx, c.ID)
	if got.TotalRedemptions != 0 {
		t.Fatalf("rejected apply must not count, got %d", got.TotalRedemptions)
	}
}

func TestGetEligibleCampaignsOrdersByReward(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	userID := uuid.New()

	small, _ := svc.CreateCampaign(ctx, coinRequest(100))

	rate := decimal.NewFromInt(5)
	cbReq := coinRequest(0)
	cbReq.CoinAmount, cbReq.CoinType, cbReq.CashbackRate = nil, "", &rate
	cashback, _ := svc.CreateCampaign(ctx, cbReq)

	bigReq := coinRequest(300)
	bigReq.EndDate = testNow.Add(2 * time.Hour)
	big, _ := svc.CreateCampaign(ctx, bigReq)

	tieReq := coinRequest(300)
	tie, _ := svc.CreateCampaign(ctx, tieReq)

	brandReq := coinRequest(1000)
	brandReq.BrandIDs = []string{"other-brand"}
	svc.CreateCampaign(ctx, brandReq)

	ended := coinRequest(5000)
	endedCampaign, _ := svc.CreateCampaign(ctx, ended)
	svc.DeactivateCampaign(ctx, endedCampaign.ID)

	order := &OrderData{Total: 10_000, Items: []OrderItem{{ProductID: "p", BrandID: "b"}}}
	got, err := svc.GetEligibleCampaigns(ctx, userID, order)
	if err != nil {
		t.Fatalf("get eligible failed: %v", err)
	}

	want := []uuid.UUID{cashback.ID, big.ID, tie.ID, small.ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d campaigns, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s (%s)", i, id, got[i].ID, got[i].Name)
		}
	}
}

func TestExpireEndedCampaigns(t *testing.T) {
	svc, store, _ := newTestService()
	ctx := context.Background()

	past := coinRequest(100)
	past.StartDate, past.EndDate = testNow.Add(-48*time.Hour), testNow.Add(-time.Hour)
	old, _ := svc.CreateCampaign(ctx, past)
	current, _ := svc.CreateCampaign(ctx, coinRequest(100))

	n, err := svc.ExpireEndedCampaigns(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected 1 deactivated, got %d err=%v", n, err)
	}
	if store.campaigns[old.ID].IsActive || !store.campaigns[current.ID].IsActive {
		t.Fatal("unexpected active flags after sweep")
	}
}
