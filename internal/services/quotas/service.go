// Package quotas manages consumable allowances with tier-dependent caps and
// reset policies.
package quotas

import (
	"context"
	"time"

	"github.com/mendwell/reward-engine/internal/clock"
	"github.com/mendwell/reward-engine/internal/domain/quota"
	"github.com/mendwell/reward-engine/internal/domain/reward"
	"github.com/mendwell/reward-engine/internal/services/ledger"
	"github.com/mendwell/reward-engine/internal/storage"
	"github.com/mendwell/reward-engine/pkg/logger"
)

// Defaults used when no configuration overrides them.
const (
	DefaultFreeCap        = 5
	DefaultPremiumSoftCap = 200
)

// Config carries the tier parameters.
type Config struct {
	FreeCap        int64
	PremiumSoftCap int64
}

func (c Config) withDefaults() Config {
	if c.FreeCap <= 0 {
		c.FreeCap = DefaultFreeCap
	}
	if c.PremiumSoftCap <= 0 {
		c.PremiumSoftCap = DefaultPremiumSoftCap
	}
	return c
}

// Service is the quota manager. The free tier never resets on its own: only
// purchases regain capacity. The premium tier has no hard cap and resets
// lazily at the next UTC midnight once the window elapses.
type Service struct {
	store  storage.QuotaStore
	ledger *ledger.Service
	cfg    Config
	log    *logger.Logger
	now    func() time.Time
}

// New constructs a quota service.
func New(store storage.QuotaStore, ledgerSvc *ledger.Service, cfg Config, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("quotas")
	}
	return &Service{store: store, ledger: ledgerSvc, cfg: cfg.withDefaults(), log: log, now: time.Now}
}

// WithNow overrides the time source. Test hook.
func (s *Service) WithNow(now func() time.Time) *Service {
	s.now = now
	return s
}

// ensure creates the default free-tier state lazily.
func (s *Service) ensure(ctx context.Context, userID string, resource quota.ResourceKind) (quota.State, error) {
	return s.store.InitQuota(ctx, quota.State{
		UserID:   userID,
		Resource: resource,
		Tier:     reward.TierFree,
		Cap:      s.cfg.FreeCap,
		ResetAt:  quota.FarFuture,
	})
}

// maybeReset applies the lazy premium reset. Capped tiers carry the
// far-future sentinel, so the conditional update never matches them.
func (s *Service) maybeReset(ctx context.Context, st quota.State) error {
	if !st.Unlimited() {
		return nil
	}
	now := s.now().UTC()
	if st.ResetAt.After(now) {
		return nil
	}
	return s.store.ResetQuotaIfElapsed(ctx, st.UserID, st.Resource, now, clock.NextUTCMidnight(now))
}

// Consume takes n units of the resource. Capped tiers fail with
// quota.ErrQuotaExceeded past cap + purchased extra; unlimited tiers always
// succeed and only track usage for fair-use signaling.
func (s *Service) Consume(ctx context.Context, userID string, resource quota.ResourceKind, n int64) (quota.Consumption, error) {
	if userID == "" {
		return quota.Consumption{}, reward.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if !resource.Valid() {
		return quota.Consumption{}, reward.ValidationError{Field: "resource", Reason: "unknown resource"}
	}
	if n <= 0 {
		return quota.Consumption{}, reward.ValidationError{Field: "n", Reason: "must be positive"}
	}

	st, err := s.ensure(ctx, userID, resource)
	if err != nil {
		return quota.Consumption{}, err
	}
	if err := s.maybeReset(ctx, st); err != nil {
		return quota.Consumption{}, err
	}

	updated, err := s.store.ConsumeQuota(ctx, userID, resource, n)
	if err != nil {
		return quota.Consumption{}, err
	}
	return quota.Consumption{
		Remaining:   updated.Remaining(),
		Unlimited:   updated.Unlimited(),
		OverSoftCap: updated.OverSoftCap(),
	}, nil
}

// Purchase buys extra allowance: the cost is debited from the ledger first
// (insufficient balance aborts the purchase), then the allowance is raised.
func (s *Service) Purchase(ctx context.Context, userID string, resource quota.ResourceKind, amount, cost int64) (quota.State, error) {
	if userID == "" {
		return quota.State{}, reward.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	if !resource.Valid() {
		return quota.State{}, reward.ValidationError{Field: "resource", Reason: "unknown resource"}
	}
	if amount <= 0 {
		return quota.State{}, reward.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if cost < 0 {
		return quota.State{}, reward.ValidationError{Field: "cost", Reason: "must not be negative"}
	}

	if _, err := s.ensure(ctx, userID, resource); err != nil {
		return quota.State{}, err
	}

	if cost > 0 {
		if _, err := s.ledger.Debit(ctx, userID, cost, reward.SourcePurchase, string(resource)); err != nil {
			return quota.State{}, err
		}
	}

	st, err := s.store.AddPurchasedExtra(ctx, userID, resource, amount)
	if err != nil {
		return quota.State{}, err
	}
	s.log.Infof("%s purchased +%d %s (cost %d)", userID, amount, resource, cost)
	return st, nil
}

// SetTier swaps the behavior mode immediately. Purchased-but-unused
// allowance survives both directions.
func (s *Service) SetTier(ctx context.Context, userID string, resource quota.ResourceKind, tier reward.Tier) (quota.State, error) {
	if tier != reward.TierFree && tier != reward.TierPremium {
		return quota.State{}, reward.ValidationError{Field: "tier", Reason: "unknown tier"}
	}
	if _, err := s.ensure(ctx, userID, resource); err != nil {
		return quota.State{}, err
	}

	switch tier {
	case reward.TierPremium:
		return s.store.SetTier(ctx, userID, resource, tier, -1, s.cfg.PremiumSoftCap, clock.NextUTCMidnight(s.now()))
	default:
		return s.store.SetTier(ctx, userID, resource, tier, s.cfg.FreeCap, 0, quota.FarFuture)
	}
}

// Get reads the current state, applying any pending lazy reset first.
func (s *Service) Get(ctx context.Context, userID string, resource quota.ResourceKind) (quota.State, error) {
	st, err := s.ensure(ctx, userID, resource)
	if err != nil {
		return quota.State{}, err
	}
	if err := s.maybeReset(ctx, st); err != nil {
		return quota.State{}, err
	}
	st, _, err = s.store.GetQuota(ctx, userID, resource)
	return st, err
}
