package scheduler

import (
	"context"
	"time"

	"github.com/mwork/mwork-rewards/internal/domain/coin"
)

const (
	JobCoinExpiry     = "coin_expiry"
	JobCashbackExpiry = "cashback_expiry"
	JobCampaignExpiry = "campaign_expiry"
)

type CoinExpirer interface {
	ExpireCoins(ctx context.Context) (*coin.ExpiryReport, error)
}

type CashbackExpirer interface {
	ExpireCashback(ctx context.Context) (int64, error)
}

type CampaignExpirer interface {
	ExpireEndedCampaigns(ctx context.Context) (int64, error)
}

// CoinExpiryJob expires time-limited coin grants. Item failures are isolated
// and reported by the sweep itself, so only a failed scan fails the run.
func CoinExpiryJob(svc CoinExpirer, interval time.Duration) Job {
	return Job{
		Name:     JobCoinExpiry,
		Interval: orDefault(interval, 24*time.Hour),
		Run: func(ctx context.Context) error {
			_, err := svc.ExpireCoins(ctx)
			return err
		},
	}
}

func CashbackExpiryJob(svc CashbackExpirer, interval time.Duration) Job {
	return Job{
		Name:     JobCashbackExpiry,
		Interval: orDefault(interval, 24*time.Hour),
		Run: func(ctx context.Context) error {
			_, err := svc.ExpireCashback(ctx)
			return err
		},
	}
}

func CampaignExpiryJob(svc CampaignExpirer, interval time.Duration) Job {
	return Job{
		Name:     JobCampaignExpiry,
		Interval: orDefault(interval, time.Hour),
		Run: func(ctx context.Context) error {
			_, err := svc.ExpireEndedCampaigns(ctx)
			return err
		},
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
