package jobs

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"rentalshop-backend/internal/domain"
	"rentalshop-backend/internal/logger"
	"rentalshop-backend/internal/payments"
	"rentalshop-backend/internal/repository"
	"rentalshop-backend/internal/scheduler"
)

// OverdueDaysPolicy maps an overdue duration onto billable overdue days. The
// rounding rule for partial days is a policy choice, so it is pluggable
// rather than hard-coded.
type OverdueDaysPolicy func(overdue time.Duration) int64

// CeilDays is the default policy: any positive overdue duration counts as a
// full day.
func CeilDays(overdue time.Duration) int64 {
	if overdue <= 0 {
		return 0
	}
	days := int64(overdue / (24 * time.Hour))
	if overdue%(24*time.Hour) > 0 {
		days++
	}
	return days
}

// LateFeeRunner charges configurable late fees for overdue rentals. One pass
// covers one tenant; a failure aborts that tenant's pass only.
type LateFeeRunner struct {
	store    *repository.Store
	provider payments.Provider
	days     OverdueDaysPolicy
	now      func() time.Time
}

// NewLateFeeRunner wires the late-fee runner with the default rounding
// policy.
func NewLateFeeRunner(store *repository.Store, provider payments.Provider) *LateFeeRunner {
	return &LateFeeRunner{
		store:    store,
		provider: provider,
		days:     CeilDays,
		now:      time.Now,
	}
}

// WithPolicy overrides the overdue-days rounding policy.
func (r *LateFeeRunner) WithPolicy(policy OverdueDaysPolicy) *LateFeeRunner {
	r.days = policy
	return r
}

// WithClock overrides the runner's clock, for tests.
func (r *LateFeeRunner) WithClock(now func() time.Time) *LateFeeRunner {
	r.now = now
	return r
}

// RunShopOnce performs one late-fee pass for one tenant. Orders already
// charged, already returned, not yet overdue, or without a resolvable
// payment identity are skipped with no provider call.
func (r *LateFeeRunner) RunShopOnce(ctx context.Context, shop string) error {
	settings, err := r.store.GetShopSettings(ctx, shop)
	if err != nil {
		return fmt.Errorf("late fee: load settings: %w", err)
	}
	if settings.Type != domain.ShopTypeRental || !settings.LateFee.Enabled {
		return nil
	}

	orders, err := r.store.ReadOrders(ctx, shop)
	if err != nil {
		return fmt.Errorf("late fee: read orders: %w", err)
	}

	now := r.now().UTC()
	for i := range orders {
		order := &orders[i]
		if order.ReturnedAt != nil || order.LateFeeCharged() {
			continue
		}
		if order.PaymentIntentID == "" || order.CustomerID == "" {
			continue
		}
		// An order without a return date can never be overdue. The webhook
		// rejects such payloads, but a bad row must not turn into a charge
		// against year 1.
		if order.ReturnDate.IsZero() {
			logger.Warn("skipping order without return date", "shop_id", shop, "session_id", order.SessionID)
			continue
		}
		daysOverdue := r.days(now.Sub(order.ReturnDate))
		if daysOverdue <= 0 {
			continue
		}
		amount := settings.LateFee.AmountCents * daysOverdue
		if amount <= 0 {
			continue
		}

		charge, err := r.provider.ChargeOffSession(ctx, payments.OffSessionChargeRequest{
			CustomerID:  order.CustomerID,
			AmountCents: amount,
			Currency:    settings.Currency,
			Description: fmt.Sprintf("Late fee, %d day(s) overdue", daysOverdue),
			Metadata: map[string]string{
				"shop":       shop,
				"session_id": order.SessionID,
				"kind":       "late_fee",
			},
		})
		if err != nil {
			return fmt.Errorf("late fee: charge order %s: %w", order.SessionID, err)
		}

		applied, err := r.store.MarkLateFeeCharged(ctx, shop, order.SessionID, now)
		if err != nil {
			return fmt.Errorf("late fee: mark charged %s: %w", order.SessionID, err)
		}
		if applied {
			logger.Info("late fee charged",
				"shop_id", shop,
				"session_id", order.SessionID,
				"amount_cents", amount,
				"days_overdue", daysOverdue,
				"payment_intent", charge.PaymentIntentID)
		}
	}
	return nil
}

// LateFeeService drives the runner on one independent timer per eligible
// tenant.
type LateFeeService struct {
	sched           *scheduler.Scheduler
	runner          *LateFeeRunner
	settings        repository.SettingsRepository
	defaultInterval time.Duration
	getenv          func(string) string
}

// NewLateFeeService wires the per-tenant late-fee scheduler.
func NewLateFeeService(sched *scheduler.Scheduler, runner *LateFeeRunner, settings repository.SettingsRepository, defaultInterval time.Duration) *LateFeeService {
	return &LateFeeService{
		sched:           sched,
		runner:          runner,
		settings:        settings,
		defaultInterval: defaultInterval,
		getenv:          os.Getenv,
	}
}

// Register enumerates tenants and registers one timer per eligible one.
// Sale-type tenants and tenants with the service disabled are skipped before
// any order read.
func (s *LateFeeService) Register(ctx context.Context) error {
	shops, err := s.settings.ListShops(ctx)
	if err != nil {
		return fmt.Errorf("late fee: list shops: %w", err)
	}
	for _, shop := range shops {
		settings, err := s.settings.GetShopSettings(ctx, shop)
		if err != nil {
			logger.Error("late fee: skipping shop with unreadable settings", "shop_id", shop, "error", err)
			continue
		}
		if settings.Type != domain.ShopTypeRental || !settings.LateFee.Enabled {
			continue
		}
		interval := s.resolveInterval(shop, settings.LateFee.Interval)
		shop := shop
		err = s.sched.AddJob("late-fee:"+shop, interval, func() {
			runWithRecovery("late-fee", shop, func() error {
				return s.runner.RunShopOnce(context.Background(), shop)
			})
		})
		if err != nil {
			return err
		}
		logger.Info("late-fee timer registered", "shop_id", shop, "interval", interval.String())
	}
	return nil
}

// resolveInterval picks the tick interval: per-tenant setting, then the
// per-tenant environment override, then the global default (which the config
// layer already lets LATE_FEE_INTERVAL override).
func (s *LateFeeService) resolveInterval(shop, settingInterval string) time.Duration {
	if settingInterval != "" {
		if d, err := time.ParseDuration(settingInterval); err == nil && d > 0 {
			return d
		}
		logger.Warn("ignoring invalid late-fee interval setting", "shop_id", shop, "interval", settingInterval)
	}
	if raw := s.getenv("LATE_FEE_INTERVAL_" + envKey(shop)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
		logger.Warn("ignoring invalid per-shop interval override", "shop_id", shop, "interval", raw)
	}
	return s.defaultInterval
}

func envKey(shop string) string {
	key := strings.ToUpper(shop)
	return strings.Map(func(r rune) rune {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			return r
		}
		return '_'
	}, key)
}
