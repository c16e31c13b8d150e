package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/initiumportal/stance/internal/portal/metrics"
	"github.com/initiumportal/stance/internal/portal/store"
)

// HousekeepingService periodically purges spent security tokens and aged
// authentication history so neither table grows without bound.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// TokenRetention keeps used or expired tokens around for auditing.
	TokenRetention time.Duration
	// HistoryRetention bounds how far back sign-in history is kept.
	HistoryRetention time.Duration

	now    func() time.Time
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:            store,
		Logger:           logger,
		Interval:         interval,
		TokenRetention:   7 * 24 * time.Hour,
		HistoryRetention: 90 * 24 * time.Hour,
		now:              time.Now,
		stopCh:           make(chan struct{}),
		doneCh:           make(chan struct{}),
	}
}

// Start begins the background worker. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup runs one purge. Each deletion is independent: a failure in one
// does not stop the other.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	now := s.now().UTC()

	tokens, err := s.Store.Users().DeleteSpentSecurityTokens(ctx, now.Add(-s.TokenRetention))
	if err != nil {
		s.Logger.Error("failed to delete spent security tokens", "error", err)
	} else {
		metrics.HousekeepingDeletedTotal.WithLabelValues("security_tokens").Add(float64(tokens))
	}

	histories, err := s.Store.Users().DeleteAuthenticationHistoryBefore(ctx, now.Add(-s.HistoryRetention))
	if err != nil {
		s.Logger.Error("failed to delete authentication history", "error", err)
	} else {
		metrics.HousekeepingDeletedTotal.WithLabelValues("authentication_histories").Add(float64(histories))
	}

	s.Logger.Info("housekeeping cleanup completed",
		"security_tokens", tokens,
		"authentication_histories", histories,
	)
}
