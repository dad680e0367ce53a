package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mwork/mwork-rewards/internal/domain/coin"
)

type fakeCoins struct {
	report *coin.ExpiryReport
	err    error
}

func (f *fakeCoins) ExpireCoins(context.Context) (*coin.ExpiryReport, error) {
	return f.report, f.err
}

type fakeCounter struct {
	n     int64
	err   error
	calls int32
}

func (f *fakeCounter) ExpireCashback(context.Context) (int64, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.n, f.err
}

func (f *fakeCounter) ExpireEndedCampaigns(context.Context) (int64, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.n, f.err
}

func TestRunNowRecordsStatus(t *testing.T) {
	failing := &fakeCounter{err: errors.New("db down")}
	s := New(nil, time.Second,
		CoinExpiryJob(&fakeCoins{report: &coin.ExpiryReport{Scanned: 3, Expired: 2, CoinsRemoved: 40}}, 0),
		CashbackExpiryJob(failing, 0),
	)

	if err := s.RunNow(JobCoinExpiry); err != nil {
		t.Fatalf("coin expiry failed: %v", err)
	}
	if err := s.RunNow(JobCashbackExpiry); err == nil {
		t.Fatal("expected cashback expiry error")
	}
	if err := s.RunNow(JobCashbackExpiry); err == nil {
		t.Fatal("expected cashback expiry error")
	}
	if err := s.RunNow("nope"); !errors.Is(err, ErrUnknownJob) {
		t.Fatalf("expected ErrUnknownJob, got %v", err)
	}

	status := s.Status()
	if len(status) != 2 {
		t.Fatalf("expected 2 statuses, got %+v", status)
	}
	if status[0].Job != JobCoinExpiry || status[0].Error != "" || status[0].TotalRuns != 1 {
		t.Fatalf("unexpected coin status %+v", status[0])
	}
	if status[1].TotalRuns != 2 || status[1].TotalFails != 2 || status[1].Error != "db down" {
		t.Fatalf("unexpected cashback status %+v", status[1])
	}
}

func TestStartRunsImmediatelyAndStops(t *testing.T) {
	campaigns := &fakeCounter{n: 1}
	s := New(nil, time.Second, CampaignExpiryJob(campaigns, time.Hour))
	s.Start()

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt32(&campaigns.calls) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("job did not run on start")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Stop()

	if got := atomic.LoadInt32(&campaigns.calls); got != 1 {
		t.Fatalf("expected a single startup run with a 1h interval, got %d", got)
	}
}

func TestJobsTickOnTheirOwnInterval(t *testing.T) {
	fast, slow := &fakeCounter{}, &fakeCounter{}
	s := New(nil, time.Second,
		CashbackExpiryJob(fast, 10*time.Millisecond),
		CampaignExpiryJob(slow, time.Hour),
	)
	s.Start()
	time.Sleep(120 * time.Millisecond)
	s.Stop()

	if atomic.LoadInt32(&fast.calls) < 3 {
		t.Fatalf("expected the fast job to tick repeatedly, got %d", fast.calls)
	}
	if atomic.LoadInt32(&slow.calls) != 1 {
		t.Fatalf("expected the slow job to run once, got %d", slow.calls)
	}
}

func TestRunTimesOut(t *testing.T) {
	s := New(nil, 20*time.Millisecond, Job{
		Name:     "slow",
		Interval: time.Hour,
		Run: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})
	if err := s.RunNow("slow"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestDefaultIntervals(t *testing.T) {
	if got := CoinExpiryJob(&fakeCoins{}, 0).Interval; got != 24*time.Hour {
		t.Fatalf("coin expiry default %v", got)
	}
	if got := CashbackExpiryJob(&fakeCounter{}, 0).Interval; got != 24*time.Hour {
		t.Fatalf("cashback expiry default %v", got)
	}
	if got := CampaignExpiryJob(&fakeCounter{}, 0).Interval; got != time.Hour {
		t.Fatalf("campaign expiry default %v", got)
	}
}
