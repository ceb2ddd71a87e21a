package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentalshop-backend/internal/domain"
	"rentalshop-backend/internal/payments"
	"rentalshop-backend/internal/repository"
	"rentalshop-backend/internal/repository/jsonstore"
	"rentalshop-backend/internal/scheduler"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) CreateCheckoutSession(ctx context.Context, req payments.CheckoutSessionRequest) (payments.CheckoutSession, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payments.CheckoutSession), args.Error(1)
}
func (m *mockProvider) RetrieveSession(ctx context.Context, sessionID string) (payments.SessionDetails, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(payments.SessionDetails), args.Error(1)
}
func (m *mockProvider) CreateRefund(ctx context.Context, req payments.RefundRequest) (payments.Refund, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payments.Refund), args.Error(1)
}
func (m *mockProvider) ChargeOffSession(ctx context.Context, req payments.OffSessionChargeRequest) (payments.OffSessionCharge, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(payments.OffSessionCharge), args.Error(1)
}

func newStore(t *testing.T) *repository.Store {
	t.Helper()
	store, err := jsonstore.New(t.TempDir())
	require.NoError(t, err)
	return store
}

func saveSettings(t *testing.T, store *repository.Store, settings *domain.ShopSettings) {
	t.Helper()
	require.NoError(t, store.SaveShopSettings(context.Background(), settings))
}

func addOrder(t *testing.T, store *repository.Store, shop string, order repository.NewOrder) *domain.RentalOrder {
	t.Helper()
	created, err := store.AddOrder(context.Background(), shop, order)
	require.NoError(t, err)
	return created
}

func rentalSettings(shop string) *domain.ShopSettings {
	return &domain.ShopSettings{
		Shop:     shop,
		Type:     domain.ShopTypeRental,
		Currency: "eur",
		LateFee:  domain.LateFeePolicy{Enabled: true, AmountCents: 500},
	}
}

func TestLateFeeRunShopOnce(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newStore(t)
	saveSettings(t, store, rentalSettings("alpine"))

	// Overdue by 2.5 days, rounded up to 3 billable days.
	addOrder(t, store, "alpine", repository.NewOrder{
		SessionID:       "cs_overdue",
		ReturnDate:      now.Add(-60 * time.Hour),
		CustomerID:      "cus_1",
		PaymentIntentID: "pi_1",
	})

	provider := new(mockProvider)
	var charged payments.OffSessionChargeRequest
	provider.On("ChargeOffSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			charged = args.Get(1).(payments.OffSessionChargeRequest)
		}).
		Return(payments.OffSessionCharge{PaymentIntentID: "pi_fee_1", Status: "succeeded"}, nil).
		Once()

	runner := NewLateFeeRunner(store, provider).WithClock(func() time.Time { return now })
	require.NoError(t, runner.RunShopOnce(context.Background(), "alpine"))

	assert.Equal(t, "cus_1", charged.CustomerID)
	assert.Equal(t, int64(1500), charged.AmountCents) // 500/day x 3 days
	assert.Equal(t, "eur", charged.Currency)
	assert.Equal(t, "cs_overdue", charged.Metadata["session_id"])

	order, err := store.GetBySessionID(context.Background(), "alpine", "cs_overdue")
	require.NoError(t, err)
	assert.True(t, order.LateFeeCharged())

	// A second pass finds the order already charged and calls nothing.
	require.NoError(t, runner.RunShopOnce(context.Background(), "alpine"))
	provider.AssertNumberOfCalls(t, "ChargeOffSession", 1)
}

func TestLateFeeSkipsIneligibleOrders(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newStore(t)
	saveSettings(t, store, rentalSettings("alpine"))

	// Not yet due.
	addOrder(t, store, "alpine", repository.NewOrder{
		SessionID: "cs_current", ReturnDate: now.Add(48 * time.Hour),
		CustomerID: "cus_1", PaymentIntentID: "pi_1",
	})
	// Overdue but already returned.
	addOrder(t, store, "alpine", repository.NewOrder{
		SessionID: "cs_returned", ReturnDate: now.Add(-48 * time.Hour),
		CustomerID: "cus_2", PaymentIntentID: "pi_2",
	})
	require.NoError(t, store.MarkReturned(context.Background(), "alpine", "cs_returned", now.Add(-24*time.Hour), 0))
	// Overdue but without a payment identity to charge.
	addOrder(t, store, "alpine", repository.NewOrder{
		SessionID: "cs_no_identity", ReturnDate: now.Add(-48 * time.Hour),
	})

	provider := new(mockProvider)
	runner := NewLateFeeRunner(store, provider).WithClock(func() time.Time { return now })
	require.NoError(t, runner.RunShopOnce(context.Background(), "alpine"))
	provider.AssertNotCalled(t, "ChargeOffSession", mock.Anything, mock.Anything)
}

func TestLateFeeSkipsOrderWithoutReturnDate(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newStore(t)
	saveSettings(t, store, rentalSettings("alpine"))

	// A zero return date reads as millennia overdue; it must never be
	// billed, whatever wrote the row.
	addOrder(t, store, "alpine", repository.NewOrder{
		SessionID:       "cs_no_return_date",
		CustomerID:      "cus_1",
		PaymentIntentID: "pi_1",
	})

	provider := new(mockProvider)
	runner := NewLateFeeRunner(store, provider).WithClock(func() time.Time { return now })
	require.NoError(t, runner.RunShopOnce(context.Background(), "alpine"))
	provider.AssertNotCalled(t, "ChargeOffSession", mock.Anything, mock.Anything)

	order, err := store.GetBySessionID(context.Background(), "alpine", "cs_no_return_date")
	require.NoError(t, err)
	assert.False(t, order.LateFeeCharged())
}

func TestLateFeeSkipsDisabledAndSaleShops(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newStore(t)

	saveSettings(t, store, &domain.ShopSettings{
		Shop: "outlet", Type: domain.ShopTypeSale, Currency: "eur",
		LateFee: domain.LateFeePolicy{Enabled: true, AmountCents: 500},
	})
	saveSettings(t, store, &domain.ShopSettings{
		Shop: "quiet", Type: domain.ShopTypeRental, Currency: "eur",
		LateFee: domain.LateFeePolicy{Enabled: false},
	})

	provider := new(mockProvider)
	runner := NewLateFeeRunner(store, provider).WithClock(func() time.Time { return now })
	require.NoError(t, runner.RunShopOnce(context.Background(), "outlet"))
	require.NoError(t, runner.RunShopOnce(context.Background(), "quiet"))
	provider.AssertNotCalled(t, "ChargeOffSession", mock.Anything, mock.Anything)
}

func TestLateFeeCustomPolicy(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	store := newStore(t)
	saveSettings(t, store, rentalSettings("alpine"))
	addOrder(t, store, "alpine", repository.NewOrder{
		SessionID: "cs_overdue", ReturnDate: now.Add(-60 * time.Hour),
		CustomerID: "cus_1", PaymentIntentID: "pi_1",
	})

	provider := new(mockProvider)
	var charged payments.OffSessionChargeRequest
	provider.On("ChargeOffSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			charged = args.Get(1).(payments.OffSessionChargeRequest)
		}).
		Return(payments.OffSessionCharge{PaymentIntentID: "pi_fee"}, nil)

	// Truncating policy: only whole elapsed days bill.
	truncate := func(overdue time.Duration) int64 {
		if overdue <= 0 {
			return 0
		}
		return int64(overdue / (24 * time.Hour))
	}
	runner := NewLateFeeRunner(store, provider).
		WithPolicy(truncate).
		WithClock(func() time.Time { return now })
	require.NoError(t, runner.RunShopOnce(context.Background(), "alpine"))
	assert.Equal(t, int64(1000), charged.AmountCents) // 2 whole days
}

func TestCeilDays(t *testing.T) {
	assert.Equal(t, int64(0), CeilDays(0))
	assert.Equal(t, int64(0), CeilDays(-time.Hour))
	assert.Equal(t, int64(1), CeilDays(time.Minute))
	assert.Equal(t, int64(1), CeilDays(24*time.Hour))
	assert.Equal(t, int64(2), CeilDays(25*time.Hour))
}

func TestLateFeeServiceRegister(t *testing.T) {
	store := newStore(t)
	saveSettings(t, store, rentalSettings("alpine"))
	saveSettings(t, store, &domain.ShopSettings{
		Shop: "outlet", Type: domain.ShopTypeSale, Currency: "usd",
		LateFee: domain.LateFeePolicy{Enabled: true, AmountCents: 500},
	})
	withInterval := rentalSettings("nordic")
	withInterval.LateFee.Interval = "30m"
	saveSettings(t, store, withInterval)

	sched := scheduler.New()
	defer sched.Stop()
	runner := NewLateFeeRunner(store, new(mockProvider))
	svc := NewLateFeeService(sched, runner, store, 6*time.Hour)
	require.NoError(t, svc.Register(context.Background()))

	// One timer per eligible tenant; the sale shop gets none.
	assert.ElementsMatch(t, []string{"late-fee:alpine", "late-fee:nordic"}, sched.Jobs())
}

func TestLateFeeResolveInterval(t *testing.T) {
	env := map[string]string{"LATE_FEE_INTERVAL_ALPINE": "45m"}
	svc := &LateFeeService{
		defaultInterval: 6 * time.Hour,
		getenv:          func(key string) string { return env[key] },
	}

	// Shop setting wins over everything.
	assert.Equal(t, 30*time.Minute, svc.resolveInterval("alpine", "30m"))
	// Then the per-shop environment override.
	assert.Equal(t, 45*time.Minute, svc.resolveInterval("alpine", ""))
	// Then the global default.
	assert.Equal(t, 6*time.Hour, svc.resolveInterval("nordic", ""))
	// Invalid values fall through.
	assert.Equal(t, 45*time.Minute, svc.resolveInterval("alpine", "soon"))
}

func TestEnvKey(t *testing.T) {
	assert.Equal(t, "ALPINE", envKey("alpine"))
	assert.Equal(t, "SKI_SHOP_2", envKey("ski-shop 2"))
}
