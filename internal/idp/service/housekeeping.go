package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/quartzid/quartz/internal/idp/store"
)

// HousekeepingService periodically deletes expired authorization codes,
// challenges, access tokens, and cached upstream tokens so the ledgers do
// not grow without bound. Validity never depends on this running; every
// read path checks expiry against the wall clock itself.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping worker. An interval of 0 or
// less defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress sweep finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// First sweep at startup
	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep deletes expired records tenant by tenant. Failures in one tenant or
// one ledger do not stop the others.
func (s *HousekeepingService) Sweep(ctx context.Context) {
	now := time.Now()

	orgs, err := s.Store.Organizations().ListOrganizations(ctx)
	if err != nil {
		s.Logger.Error("housekeeping: list organizations", "err", err)
		return
	}

	for _, org := range orgs {
		tenant := s.Store.Tenant(org.ID)

		if err := tenant.AuthorizationCodes().DeleteExpiredAuthorizationCodes(ctx, now); err != nil {
			s.Logger.Error("housekeeping: delete expired codes", "org", org.Name, "err", err)
		}
		if err := tenant.AccessTokens().DeleteExpiredAccessTokens(ctx, now); err != nil {
			s.Logger.Error("housekeeping: delete expired access tokens", "org", org.Name, "err", err)
		}
		if err := tenant.Challenges().DeleteExpiredChallenges(ctx, now); err != nil {
			s.Logger.Error("housekeeping: delete expired challenges", "org", org.Name, "err", err)
		}
		if err := tenant.ExternalIdp().DeleteExpiredTokens(ctx, now); err != nil {
			s.Logger.Error("housekeeping: delete expired upstream tokens", "org", org.Name, "err", err)
		}
	}

	s.Logger.Debug("housekeeping sweep completed", "tenants", len(orgs))
}
