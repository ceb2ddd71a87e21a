package jobs

import (
	"context"
	"fmt"
	"time"

	"rentalshop-backend/internal/logger"
	"rentalshop-backend/internal/payments"
	"rentalshop-backend/internal/repository"
	"rentalshop-backend/internal/scheduler"
)

// DepositReleaseRunner refunds the unused deposit once an item is returned.
// ReleaseDepositsOnce is the idempotent single-pass primitive shared by the
// interval driver and manual runs.
type DepositReleaseRunner struct {
	store    *repository.Store
	provider payments.Provider
	now      func() time.Time
}

// NewDepositReleaseRunner wires the deposit-release runner.
func NewDepositReleaseRunner(store *repository.Store, provider payments.Provider) *DepositReleaseRunner {
	return &DepositReleaseRunner{
		store:    store,
		provider: provider,
		now:      time.Now,
	}
}

// WithClock overrides the runner's clock, for tests.
func (r *DepositReleaseRunner) WithClock(now func() time.Time) *DepositReleaseRunner {
	r.now = now
	return r
}

// ReleaseDepositsOnce performs one pass over every tenant. A failing tenant
// is logged and skipped; the others still run.
func (r *DepositReleaseRunner) ReleaseDepositsOnce(ctx context.Context) error {
	shops, err := r.store.ListShops(ctx)
	if err != nil {
		return fmt.Errorf("deposit release: list shops: %w", err)
	}
	for _, shop := range shops {
		if err := r.ReleaseShopDeposits(ctx, shop); err != nil {
			logger.Error("deposit release pass failed", "shop_id", shop, "error", err)
		}
	}
	return nil
}

// ReleaseShopDeposits refunds deposits for one tenant. Orders not yet
// returned, already refunded, or with nothing left to refund are skipped
// with no provider call.
func (r *DepositReleaseRunner) ReleaseShopDeposits(ctx context.Context, shop string) error {
	settings, err := r.store.GetShopSettings(ctx, shop)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if !settings.DepositRelease.Enabled {
		return nil
	}

	orders, err := r.store.ReadOrders(ctx, shop)
	if err != nil {
		return fmt.Errorf("read orders: %w", err)
	}

	for i := range orders {
		order := &orders[i]
		if order.ReturnedAt == nil || order.Refunded() {
			continue
		}
		refund := order.DepositCents - order.DamageFeeCents
		if refund <= 0 {
			continue
		}
		if order.SessionID == "" {
			continue
		}

		// Resolve the live payment intent through the checkout session; the
		// one recorded at order creation may have been superseded.
		details, err := r.provider.RetrieveSession(ctx, order.SessionID)
		if err != nil {
			return fmt.Errorf("retrieve session %s: %w", order.SessionID, err)
		}
		if details.PaymentIntentID == "" {
			logger.Warn("order without resolvable payment intent, skipping refund",
				"shop_id", shop, "session_id", order.SessionID)
			continue
		}

		issued, err := r.provider.CreateRefund(ctx, payments.RefundRequest{
			PaymentIntentID: details.PaymentIntentID,
			AmountCents:     refund,
			Reason:          "requested_by_customer",
			Metadata: map[string]string{
				"shop":       shop,
				"session_id": order.SessionID,
				"kind":       "deposit_release",
			},
		})
		if err != nil {
			return fmt.Errorf("refund session %s: %w", order.SessionID, err)
		}

		applied, err := r.store.MarkRefunded(ctx, shop, order.SessionID, r.now().UTC())
		if err != nil {
			return fmt.Errorf("mark refunded %s: %w", order.SessionID, err)
		}
		if applied {
			logger.Info("deposit released",
				"shop_id", shop,
				"session_id", order.SessionID,
				"amount_cents", refund,
				"refund_id", issued.RefundID)
		}
	}
	return nil
}

// DepositReleaseService drives the runner on a single interval timer.
type DepositReleaseService struct {
	sched  *scheduler.Scheduler
	runner *DepositReleaseRunner
}

// NewDepositReleaseService wires the deposit-release scheduler.
func NewDepositReleaseService(sched *scheduler.Scheduler, runner *DepositReleaseRunner) *DepositReleaseService {
	return &DepositReleaseService{sched: sched, runner: runner}
}

// Register adds the interval job. Overlap protection comes from the
// scheduler's per-key in-flight guard.
func (s *DepositReleaseService) Register(interval time.Duration) error {
	err := s.sched.AddJob("deposit-release", interval, func() {
		runWithRecovery("deposit-release", "", func() error {
			return s.runner.ReleaseDepositsOnce(context.Background())
		})
	})
	if err != nil {
		return err
	}
	logger.Info("deposit-release timer registered", "interval", interval.String())
	return nil
}
