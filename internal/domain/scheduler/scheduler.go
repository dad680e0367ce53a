// Package scheduler runs the periodic ledger sweeps. Each job ticks on its own
// interval and holds a lease while it runs so replicas do not overlap; a run
// that still overlaps is harmless because every sweep is status guarded.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mwork/mwork-rewards/internal/pkg/lock"
	"github.com/mwork/mwork-rewards/internal/pkg/logger"
)

// ErrUnknownJob is returned by RunNow for a name that was never registered.
var ErrUnknownJob = errors.New("unknown job")

// Job is one periodic sweep.
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// RunStatus is the last observed run of a job.
type RunStatus struct {
	Job        string        `json:"job"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Error      string        `json:"error,omitempty"`
	Skipped    bool          `json:"skipped,omitempty"`
	TotalRuns  int           `json:"total_runs"`
	TotalFails int           `json:"total_fails"`
}

type Scheduler struct {
	jobs    []Job
	locker  *lock.Locker
	timeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	status map[string]*RunStatus
}

// New creates a scheduler. A zero timeout defaults to five minutes per run.
func New(locker *lock.Locker, timeout time.Duration, jobs ...Job) *Scheduler {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	if locker == nil {
		locker = lock.New(nil, 0)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:    jobs,
		locker:  locker,
		timeout: timeout,
		ctx:     ctx,
		cancel:  cancel,
		status:  make(map[string]*RunStatus),
	}
}

// Start launches one loop per job.
func (s *Scheduler) Start() {
	log.Info().Int("jobs", len(s.jobs)).Msg("Starting rewards scheduler...")
	for _, job := range s.jobs {
		s.wg.Add(1)
		go s.loop(job)
	}
}

// Stop cancels in-flight runs and waits for the loops to exit.
func (s *Scheduler) Stop() {
	log.Info().Msg("Stopping rewards scheduler...")
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) loop(job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	// Run once immediately on startup
	_ = s.run(job)

	for {
		select {
		case <-ticker.C:
			_ = s.run(job)
		case <-s.ctx.Done():
			return
		}
	}
}

// RunNow runs a registered job synchronously, outside its ticker.
func (s *Scheduler) RunNow(name string) error {
	for _, job := range s.jobs {
		if job.Name == name {
			return s.run(job)
		}
	}
	return ErrUnknownJob
}

// Status returns the last run of every job that has run at least once.
func (s *Scheduler) Status() []RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]RunStatus, 0, len(s.jobs))
	for _, job := range s.jobs {
		if st, ok := s.status[job.Name]; ok {
			out = append(out, *st)
		}
	}
	return out
}

func (s *Scheduler) run(job Job) error {
	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	defer cancel()
	ctx = logger.WithJob(ctx, job.Name, uuid.NewString())
	l := logger.FromContext(ctx)

	started := time.Now()
	lease, err := s.locker.Acquire(ctx, job.Name)
	if errors.Is(err, lock.ErrNotAcquired) {
		l.Debug().Msg("job held by another replica, skipping")
		s.record(job.Name, started, 0, nil, true)
		return nil
	}
	if err != nil {
		logger.LogError(ctx, err, "failed to acquire job lock")
		s.record(job.Name, started, 0, err, false)
		return err
	}
	defer func() {
		// the run context may already be done
		relCtx, relCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer relCancel()
		if err := lease.Release(relCtx); err != nil {
			logger.LogWarn(ctx, "failed to release job lock", "error", err.Error())
		}
	}()

	l.Debug().Msg("job started")
	err = job.Run(ctx)
	elapsed := time.Since(started)
	s.record(job.Name, started, elapsed, err, false)

	if err != nil {
		logger.LogError(ctx, err, "job failed", "duration_ms", elapsed.Milliseconds())
		return err
	}
	l.Debug().Dur("duration", elapsed).Msg("job finished")
	return nil
}

func (s *Scheduler) record(name string, started time.Time, elapsed time.Duration, err error, skipped bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.status[name]
	if !ok {
		st = &RunStatus{Job: name}
		s.status[name] = st
	}
	st.StartedAt = started
	st.Duration = elapsed
	st.Skipped = skipped
	st.Error = ""
	if skipped {
		return
	}
	st.TotalRuns++
	if err != nil {
		st.Error = err.Error()
		st.TotalFails++
	}
}
