// Package syncer orchestrates cost data synchronization across all connected
// provider accounts: credential resolution, cached billing API fetches,
// normalization, persistence and post-sync side effects.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/costlens/backend/internal/cache"
	"github.com/costlens/backend/internal/config"
	"github.com/costlens/backend/internal/credential"
	"github.com/costlens/backend/internal/model"
	"github.com/costlens/backend/internal/provider"
	"github.com/costlens/backend/internal/repository"
	"github.com/costlens/backend/internal/syncerror"
)

// CredentialResolver resolves a stored account into live credentials.
type CredentialResolver interface {
	Resolve(ctx context.Context, account *model.ProviderAccount) (*credential.LiveCredentials, error)
}

// Notifier delivers sync outcome notifications to the account owner.
// Deliveries are fire-and-forget; failures never affect the sync result.
type Notifier interface {
	SyncCompleted(ctx context.Context, account *model.ProviderAccount, snapshot *model.CostSnapshot)
	SyncFailed(ctx context.Context, account *model.ProviderAccount, err error)
}

// PostSyncHook runs after an account's cost data has been persisted. Hooks
// are fire-and-forget; their errors are logged by the hook itself.
type PostSyncHook interface {
	AfterSync(ctx context.Context, account *model.ProviderAccount)
}

// SyncOptions narrows a SyncAll run.
type SyncOptions struct {
	// AccountID limits the run to a single account when non-nil.
	AccountID *uuid.UUID
	// Force bypasses the cost data cache.
	Force bool
}

// Syncer is the sync orchestrator.
type Syncer struct {
	registry *provider.Registry
	resolver CredentialResolver
	accounts repository.AccountRepository
	costs    repository.CostRepository
	cache    cache.Cache
	notifier Notifier
	hooks    []PostSyncHook
	cfg      config.SyncConfig
	logger   *slog.Logger

	// now is swappable in tests.
	now func() time.Time
}

// New creates a Syncer. notifier may be nil; hooks may be empty.
func New(
	registry *provider.Registry,
	resolver CredentialResolver,
	accounts repository.AccountRepository,
	costs repository.CostRepository,
	costCache cache.Cache,
	notifier Notifier,
	cfg config.SyncConfig,
	logger *slog.Logger,
) *Syncer {
	return &Syncer{
		registry: registry,
		resolver: resolver,
		accounts: accounts,
		costs:    costs,
		cache:    costCache,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// AddHook registers a post-sync side effect.
func (s *Syncer) AddHook(h PostSyncHook) {
	s.hooks = append(s.hooks, h)
}

// SyncAll fans out one sync task per selected active account and settles every
// task regardless of outcome. No task's failure cancels its siblings.
func (s *Syncer) SyncAll(ctx context.Context, userID uuid.UUID, opts SyncOptions) (*BatchResult, error) {
	accounts, err := s.selectAccounts(ctx, userID, opts)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return aggregate(nil), nil
	}

	outcomes := make([]AccountOutcome, len(accounts))
	var wg sync.WaitGroup
	for i, account := range accounts {
		wg.Add(1)
		go func(i int, account *model.ProviderAccount) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					outcomes[i] = newOutcome(account, syncerror.Validation("syncer.sync_account",
						fmt.Errorf("panic: %v", r)).WithAccount(account.ID))
				}
			}()
			outcomes[i] = newOutcome(account, s.syncOne(ctx, account, opts.Force))
		}(i, account)
	}
	wg.Wait()

	result := aggregate(outcomes)
	s.logger.Info("sync batch settled",
		"user_id", userID,
		"status", result.Status,
		"synced", result.Synced,
		"failed", result.Failed,
	)
	return result, nil
}

// SyncAccount syncs a single account owned by userID.
func (s *Syncer) SyncAccount(ctx context.Context, userID, accountID uuid.UUID, force bool) (*BatchResult, error) {
	return s.SyncAll(ctx, userID, SyncOptions{AccountID: &accountID, Force: force})
}

func (s *Syncer) selectAccounts(ctx context.Context, userID uuid.UUID, opts SyncOptions) ([]*model.ProviderAccount, error) {
	if opts.AccountID != nil {
		account, err := s.accounts.GetByID(ctx, *opts.AccountID)
		if err != nil {
			return nil, syncerror.Persistence("syncer.select_accounts", err)
		}
		if account == nil || account.UserID != userID {
			return nil, syncerror.Validation("syncer.select_accounts",
				fmt.Errorf("account %s not found", *opts.AccountID))
		}
		if !account.Active {
			return nil, syncerror.Validation("syncer.select_accounts",
				fmt.Errorf("account %s is inactive", *opts.AccountID))
		}
		return []*model.ProviderAccount{account}, nil
	}

	accounts, err := s.accounts.GetActiveByUserID(ctx, userID)
	if err != nil {
		return nil, syncerror.Persistence("syncer.select_accounts", err)
	}
	return accounts, nil
}

// syncOne runs the per-account pipeline. All returned errors are classified
// and scoped to this account.
func (s *Syncer) syncOne(ctx context.Context, account *model.ProviderAccount, force bool) error {
	err := s.doSync(ctx, account, force)
	if err != nil {
		s.logger.Error("account sync failed",
			"account_id", account.ID,
			"provider", account.ProviderType,
			"kind", syncerror.KindOf(err),
			"error", err,
		)
		s.recordFailure(ctx, account, err)
		return err
	}
	return nil
}

func (s *Syncer) doSync(ctx context.Context, account *model.ProviderAccount, force bool) error {
	adapter, ok := s.registry.Get(account.ProviderType)
	if !ok {
		return syncerror.Configuration("syncer.sync_account",
			fmt.Sprintf("no adapter registered for provider %q", account.ProviderType)).WithAccount(account.ID)
	}

	end := s.now().Truncate(24 * time.Hour)
	start := end.AddDate(0, 0, -s.cfg.LookbackDays)

	// Credentials are resolved before the cache is consulted: broken stored
	// credentials must fail the task even when cost data is already cached.
	creds, err := s.resolver.Resolve(ctx, account)
	if err != nil {
		return err
	}

	draft, err := s.fetchDraft(ctx, adapter, account, creds, start, end, force)
	if err != nil {
		return err
	}

	points := adapter.SynthesizeDailyData(draft, start, end)
	s.sanitize(account, draft, points, start, end)

	snapshot, err := s.buildSnapshot(ctx, account, draft, end)
	if err != nil {
		return err
	}

	if err := s.costs.UpsertSnapshot(ctx, snapshot); err != nil {
		return syncerror.Persistence("syncer.upsert_snapshot", err).WithAccount(account.ID)
	}
	if err := s.costs.UpsertDailyPoints(ctx, points); err != nil {
		return syncerror.Persistence("syncer.upsert_daily_points", err).WithAccount(account.ID)
	}

	s.runSideEffects(ctx, account, snapshot)

	if err := s.accounts.UpdateLastSync(ctx, account.ID); err != nil {
		return syncerror.Persistence("syncer.update_last_sync", err).WithAccount(account.ID)
	}
	if err := s.accounts.UpdateHealth(ctx, account.ID, model.HealthHealthy, ""); err != nil {
		return syncerror.Persistence("syncer.update_health", err).WithAccount(account.ID)
	}

	s.logger.Info("account synced",
		"account_id", account.ID,
		"provider", account.ProviderType,
		"current_month_cost", snapshot.CurrentMonthCost,
		"daily_points", len(points),
	)
	return nil
}

// fetchDraft returns the cached draft for the range when present, otherwise
// calls the billing API and caches the result.
func (s *Syncer) fetchDraft(ctx context.Context, adapter provider.Adapter, account *model.ProviderAccount, creds *credential.LiveCredentials, start, end time.Time, force bool) (*provider.CostDraft, error) {
	key := cache.SyncKey(account.ID, start, end)

	if !force {
		if payload, err := s.cache.Get(ctx, key); err == nil {
			var draft provider.CostDraft
			if err := json.Unmarshal(payload, &draft); err == nil {
				s.logger.Debug("cost data cache hit", "account_id", account.ID, "key", key)
				return &draft, nil
			}
			// Corrupt entry, drop it and fall through to a fetch.
			_ = s.cache.Delete(ctx, key)
		}
	}

	draft, err := adapter.FetchCostData(ctx, creds, start, end)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(draft); err == nil {
		if err := s.cache.Set(ctx, key, payload, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache cost data", "account_id", account.ID, "error", err)
		}
	}
	return draft, nil
}

// sanitize clamps impossible values in place. Malformed entries are logged
// and repaired, never fatal.
func (s *Syncer) sanitize(account *model.ProviderAccount, draft *provider.CostDraft, points []model.DailyCostPoint, start, end time.Time) {
	repaired := 0
	if draft.CurrentMonthCost < 0 {
		draft.CurrentMonthCost = 0
		repaired++
	}
	if draft.LastMonthCost < 0 {
		draft.LastMonthCost = 0
		repaired++
	}
	if draft.Currency == "" {
		draft.Currency = model.CurrencyUSD
	}
	for i := range draft.Services {
		if draft.Services[i].Cost < 0 {
			draft.Services[i].Cost = 0
			repaired++
		}
	}
	for i := range points {
		if points[i].Cost < 0 {
			points[i].Cost = 0
			repaired++
		}
		if points[i].Date.IsZero() || points[i].Date.Before(start) || points[i].Date.After(end) {
			points[i].Date = end
			repaired++
		}
		if points[i].AccountID == uuid.Nil {
			points[i].AccountID = account.ID
		}
	}
	if repaired > 0 {
		s.logger.Warn("repaired malformed cost entries",
			"account_id", account.ID,
			"provider", account.ProviderType,
			"repaired", repaired,
		)
	}
}

// buildSnapshot enhances the draft with a corrected prior-month total and a
// run-rate forecast, then shapes it into the monthly snapshot row.
func (s *Syncer) buildSnapshot(ctx context.Context, account *model.ProviderAccount, draft *provider.CostDraft, end time.Time) (*model.CostSnapshot, error) {
	month := int(end.Month())
	year := end.Year()

	snapshot := &model.CostSnapshot{
		BaseEntity:       model.NewBaseEntity(),
		AccountID:        account.ID,
		Month:            month,
		Year:             year,
		CurrentMonthCost: draft.CurrentMonthCost,
		LastMonthCost:    draft.LastMonthCost,
		Credits:          draft.Credits,
		Savings:          draft.Savings,
		Tax:              draft.Tax,
		Currency:         draft.Currency,
		Services:         draft.Services,
	}

	// Keep the existing row's identity so repeated syncs overwrite it.
	if existing, err := s.costs.GetSnapshot(ctx, account.ID, month, year); err != nil {
		return nil, syncerror.Persistence("syncer.get_snapshot", err).WithAccount(account.ID)
	} else if existing != nil {
		snapshot.ID = existing.ID
		snapshot.CreatedAt = existing.CreatedAt
	}

	// Stored history beats the provider's prior-month figure when the account
	// has been syncing long enough to have a complete local month.
	prevMonth, prevYear := month-1, year
	if prevMonth == 0 {
		prevMonth, prevYear = 12, year-1
	}
	if stored, err := s.costs.GetMonthlyTotal(ctx, account.ID, prevMonth, prevYear); err == nil && stored > snapshot.LastMonthCost {
		snapshot.LastMonthCost = stored
	}

	s.enhanceServiceChanges(ctx, snapshot, prevMonth, prevYear)
	s.forecastMonthEnd(snapshot, end)
	return snapshot, nil
}

// enhanceServiceChanges fills each service's percent change from the prior
// month's snapshot when one exists.
func (s *Syncer) enhanceServiceChanges(ctx context.Context, snapshot *model.CostSnapshot, prevMonth, prevYear int) {
	prev, err := s.costs.GetSnapshot(ctx, snapshot.AccountID, prevMonth, prevYear)
	if err != nil || prev == nil {
		return
	}
	prior := make(map[string]float64, len(prev.Services))
	for _, svc := range prev.Services {
		prior[svc.Service] = svc.Cost
	}
	for i := range snapshot.Services {
		if base, ok := prior[snapshot.Services[i].Service]; ok && base > 0 {
			snapshot.Services[i].PercentChange = model.Variance(base, snapshot.Services[i].Cost)
		}
	}
}

// forecastMonthEnd projects the month-end total from the month-to-date run
// rate. Confidence grows with how much of the month has elapsed.
func (s *Syncer) forecastMonthEnd(snapshot *model.CostSnapshot, end time.Time) {
	daysElapsed := end.Day()
	daysInMonth := time.Date(end.Year(), end.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if daysElapsed <= 0 || snapshot.CurrentMonthCost <= 0 {
		snapshot.ForecastCost = snapshot.CurrentMonthCost
		snapshot.ForecastConfidence = 0.3
		return
	}
	snapshot.ForecastCost = snapshot.CurrentMonthCost / float64(daysElapsed) * float64(daysInMonth)
	confidence := 0.3 + 0.65*float64(daysElapsed)/float64(daysInMonth)
	if confidence > 0.95 {
		confidence = 0.95
	}
	snapshot.ForecastConfidence = confidence
}

// runSideEffects launches post-sync hooks and the owner notification in the
// background. They never affect the sync outcome.
func (s *Syncer) runSideEffects(ctx context.Context, account *model.ProviderAccount, snapshot *model.CostSnapshot) {
	detached := context.WithoutCancel(ctx)
	for _, hook := range s.hooks {
		go func(h PostSyncHook) {
			defer s.recoverSideEffect(account.ID)
			h.AfterSync(detached, account)
		}(hook)
	}
	if s.notifier != nil {
		go func() {
			defer s.recoverSideEffect(account.ID)
			s.notifier.SyncCompleted(detached, account, snapshot)
		}()
	}
}

func (s *Syncer) recoverSideEffect(accountID uuid.UUID) {
	if r := recover(); r != nil {
		s.logger.Error("post-sync side effect panicked", "account_id", accountID, "panic", r)
	}
}

// recordFailure marks the account unhealthy and notifies the owner. Both are
// best effort.
func (s *Syncer) recordFailure(ctx context.Context, account *model.ProviderAccount, syncErr error) {
	message := syncErr.Error()
	if hint := syncerror.HintOf(syncErr); hint != "" {
		message = hint
	}
	if err := s.accounts.UpdateHealth(ctx, account.ID, model.HealthError, message); err != nil {
		s.logger.Error("failed to record account health", "account_id", account.ID, "error", err)
	}
	if s.notifier != nil {
		detached := context.WithoutCancel(ctx)
		go func() {
			defer s.recoverSideEffect(account.ID)
			s.notifier.SyncFailed(detached, account, syncErr)
		}()
	}
}
