package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// Sweeper periodically completes confirmed stays whose end date has passed
// and, when a pending TTL is set, releases unpaid holds older than it.
type Sweeper struct {
	repo       Repository
	logger     *slog.Logger
	cron       *cron.Cron
	timeout    time.Duration
	pendingTTL time.Duration
	now        func() time.Time
}

type SweeperOption func(*Sweeper)

// WithPendingTTL cancels pending, unpaid reservations older than ttl on each
// run. Zero disables expiry.
func WithPendingTTL(ttl time.Duration) SweeperOption {
	return func(s *Sweeper) { s.pendingTTL = ttl }
}

func NewSweeper(repo Repository, schedule string, logger *slog.Logger, opts ...SweeperOption) (*Sweeper, error) {
	s := &Sweeper{
		repo:    repo,
		logger:  logger,
		cron:    cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		timeout: time.Minute,
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop prevents new runs and waits for a running one, bounded by ctx.
func (s *Sweeper) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

func (s *Sweeper) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	if _, err := s.Run(ctx); err != nil {
		s.logger.ErrorContext(ctx, "completion sweep failed", "error", err)
	}
	if _, err := s.ExpirePending(ctx); err != nil {
		s.logger.ErrorContext(ctx, "pending expiry failed", "error", err)
	}
}

// Run performs a single completion sweep and returns the completed reservation ids.
func (s *Sweeper) Run(ctx context.Context) ([]string, error) {
	ids, err := s.repo.CompleteEnded(ctx, s.now())
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		s.logger.InfoContext(ctx, "completed ended reservations", "count", len(ids), "ids", ids)
	}
	return ids, nil
}

// ExpirePending releases stale unpaid holds. It is a no-op without a pending TTL.
func (s *Sweeper) ExpirePending(ctx context.Context) ([]string, error) {
	if s.pendingTTL <= 0 {
		return nil, nil
	}
	ids, err := s.repo.ExpirePending(ctx, s.now().Add(-s.pendingTTL))
	if err != nil {
		return nil, err
	}
	if len(ids) > 0 {
		s.logger.InfoContext(ctx, "expired pending reservations", "count", len(ids), "ids", ids)
	}
	return ids, nil
}
