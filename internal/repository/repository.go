package repository

import (
	"context"
	"errors"
	"time"

	"rentalshop-backend/internal/domain"
)

// ErrNotFound is returned when an order or settings document does not exist
// in the target tenant. Webhook handlers treat it as a silent no-op so that
// cross-tenant references never leak.
var ErrNotFound = errors.New("repository: not found")

// NewOrder carries the fields needed to create an order on checkout
// completion.
type NewOrder struct {
	SessionID       string
	DepositCents    int64
	StartedAt       time.Time
	ReturnDate      time.Time
	CustomerID      string
	PaymentIntentID string
	Items           []domain.OrderItem
}

// RiskUpdate carries the risk signals and reconciliation ids persisted from a
// charge.succeeded event.
type RiskUpdate struct {
	RiskLevel            string
	RiskScore            float64
	ChargeID             string
	BalanceTransactionID string
	CustomerID           string
}

// OrderRepository is the tenant-scoped order store. All mutations serialize
// per (shop, sessionID) so concurrent webhook delivery and scheduler ticks
// cannot lose an update. Mutations that enforce at-most-once semantics
// (refund, late fee) report whether they applied; a false result with a nil
// error is the idempotent no-op.
type OrderRepository interface {
	ReadOrders(ctx context.Context, shop string) ([]domain.RentalOrder, error)
	// AddOrder is idempotent on (shop, sessionID): a repeat call returns the
	// existing order without duplicating it.
	AddOrder(ctx context.Context, shop string, order NewOrder) (*domain.RentalOrder, error)
	GetBySessionID(ctx context.Context, shop, sessionID string) (*domain.RentalOrder, error)
	GetByPaymentIntentID(ctx context.Context, shop, paymentIntentID string) (*domain.RentalOrder, error)
	// MarkReturned records the return and the damage fee assessed at
	// inspection (0 for an undamaged return).
	MarkReturned(ctx context.Context, shop, sessionID string, at time.Time, damageFeeCents int64) error
	MarkRefunded(ctx context.Context, shop, sessionID string, at time.Time) (bool, error)
	MarkLateFeeCharged(ctx context.Context, shop, sessionID string, at time.Time) (bool, error)
	UpdateRisk(ctx context.Context, shop, paymentIntentID string, upd RiskUpdate) (bool, error)
	MarkNeedsAttention(ctx context.Context, shop, sessionID string) error
	UpdateItemStatus(ctx context.Context, shop, sessionID, itemID string, status domain.ItemStatus) error
}

// SettingsRepository reads and writes per-tenant settings. Saves are audited:
// the flat-file backend appends a {timestamp, diff} line to a history log,
// the relational backend writes a history row.
type SettingsRepository interface {
	GetShopSettings(ctx context.Context, shop string) (*domain.ShopSettings, error)
	SaveShopSettings(ctx context.Context, settings *domain.ShopSettings) error
	ListShops(ctx context.Context) ([]string, error)
}

// SubscriptionStatusRepository tracks provider subscription state, written
// only by the webhook processor.
type SubscriptionStatusRepository interface {
	UpsertStatus(ctx context.Context, shop, customerID, subscriptionID, status string) error
}

// Store bundles one backend's repositories behind a single handle, in the
// same shape for both backends so upper layers stay backend-agnostic.
type Store struct {
	OrderRepository
	SettingsRepository
	SubscriptionStatusRepository
}
