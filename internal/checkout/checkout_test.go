package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"rentalshop-backend/internal/domain"
	"rentalshop-backend/internal/payments"
	"rentalshop-backend/internal/pricing"
	"rentalshop-backend/internal/repository"
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

type mockSettingsRepo struct {
	mock.Mock
}

func (m *mockSettingsRepo) GetShopSettings(ctx context.Context, shop string) (*domain.ShopSettings, error) {
	args := m.Called(ctx, shop)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ShopSettings), args.Error(1)
}
func (m *mockSettingsRepo) SaveShopSettings(ctx context.Context, settings *domain.ShopSettings) error {
	args := m.Called(ctx, settings)
	return args.Error(0)
}
func (m *mockSettingsRepo) ListShops(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	return args.Get(0).([]string), args.Error(1)
}

type recordingSink struct {
	events []string
	props  []map[string]string
}

func (s *recordingSink) TrackEvent(shop, event string, props map[string]string) {
	s.events = append(s.events, event)
	s.props = append(s.props, props)
}

func testSettings() *domain.ShopSettings {
	return &domain.ShopSettings{
		Shop:     "alpine",
		Type:     domain.ShopTypeRental,
		Currency: "eur",
		TaxRates: map[string]float64{"de": 0.2},
		Coupons:  map[string]float64{"SAVE": 0.2},
	}
}

func testTable() *pricing.Table {
	return &pricing.Table{
		DurationDiscounts: []pricing.DiscountTier{{MinDays: 3, Rate: 0.9}},
		Rates:             map[string]float64{"usd": 1.1},
	}
}

func TestCreateCheckoutSession(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	returnDate := now.AddDate(0, 0, 5)

	settings := new(mockSettingsRepo)
	settings.On("GetShopSettings", mock.Anything, "alpine").Return(testSettings(), nil)

	provider := new(mockProvider)
	var captured payments.CheckoutSessionRequest
	provider.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(payments.CheckoutSessionRequest)
		}).
		Return(payments.CheckoutSession{SessionID: "cs_123", ClientSecret: "secret_123"}, nil).
		Once()

	sink := &recordingSink{}
	builder := NewBuilder(settings, pricing.NewStaticCatalog(testTable()), provider, sink).
		WithClock(func() time.Time { return now })

	session, err := builder.CreateCheckoutSession(context.Background(), Request{
		Shop: "alpine",
		Cart: []domain.CartLine{{
			SKU:             "ski-basic",
			Quantity:        2,
			DailyPriceCents: 5000,
			DepositCents:    2000,
		}},
		ReturnDate: returnDate,
		Coupon:     "SAVE",
		TaxRegion:  "de",
		SuccessURL: "https://shop.example/done",
		CancelURL:  "https://shop.example/cart",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_123", session.SessionID)
	assert.Equal(t, "secret_123", session.ClientSecret)

	// 2 units x 50.00/day x 5 days = 500.00, duration tier 0.9 -> 450.00,
	// coupon 20% -> 90.00 off, tax 20% of 360.00 -> 72.00, deposit 40.00.
	md := captured.Metadata
	assert.Equal(t, "alpine", md["shop"])
	assert.Equal(t, "5", md["days"])
	assert.Equal(t, "45000", md["subtotal"])
	assert.Equal(t, "9000", md["discount"])
	assert.Equal(t, "7200", md["tax"])
	assert.Equal(t, "4000", md["deposit"])
	assert.Equal(t, "47200", md["total"])
	assert.Equal(t, "eur", md["currency"])
	assert.Equal(t, "SAVE", md["coupon"])
	assert.Equal(t, returnDate.UTC().Format(time.RFC3339), md["return_date"])
	assert.Equal(t, "ski-basic,ski-basic", md["skus"])
	assert.Equal(t, "rental,rental", md["kinds"])
	// Optional keys absent, not empty.
	_, hasIP := md["client_ip"]
	assert.False(t, hasIP)
	_, hasSizes := md["sizes"]
	assert.False(t, hasSizes)

	// Product line plus deposit and tax pseudo-lines.
	require.Len(t, captured.Items, 3)
	assert.Equal(t, int64(2), captured.Items[0].Quantity)
	assert.Equal(t, int64(18000), captured.Items[0].UnitAmountCents)
	assert.Equal(t, "Deposit", captured.Items[1].Name)
	assert.Equal(t, int64(4000), captured.Items[1].UnitAmountCents)
	assert.Equal(t, "Tax", captured.Items[2].Name)
	assert.Equal(t, int64(7200), captured.Items[2].UnitAmountCents)

	// Exactly one provider call and one analytics event.
	provider.AssertNumberOfCalls(t, "CreateCheckoutSession", 1)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "checkout_session_created", sink.events[0])
	assert.Equal(t, "47200", sink.props[0]["total"])
}

func TestCreateCheckoutSessionRejectsBadInput(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	settings := new(mockSettingsRepo)
	provider := new(mockProvider)
	sink := &recordingSink{}
	builder := NewBuilder(settings, pricing.NewStaticCatalog(testTable()), provider, sink).
		WithClock(func() time.Time { return now })

	t.Run("empty cart", func(t *testing.T) {
		_, err := builder.CreateCheckoutSession(context.Background(), Request{
			Shop:       "alpine",
			ReturnDate: now.AddDate(0, 0, 3),
		})
		assert.ErrorIs(t, err, ErrEmptyCart)
	})

	t.Run("past return date", func(t *testing.T) {
		_, err := builder.CreateCheckoutSession(context.Background(), Request{
			Shop:       "alpine",
			Cart:       []domain.CartLine{{SKU: "ski-basic", Quantity: 1, DailyPriceCents: 5000}},
			ReturnDate: now.AddDate(0, 0, -1),
		})
		assert.ErrorIs(t, err, ErrInvalidReturnDate)
	})

	t.Run("zero return date", func(t *testing.T) {
		_, err := builder.CreateCheckoutSession(context.Background(), Request{
			Shop: "alpine",
			Cart: []domain.CartLine{{SKU: "ski-basic", Quantity: 1, DailyPriceCents: 5000}},
		})
		assert.ErrorIs(t, err, ErrInvalidReturnDate)
	})

	// Rejected before any side effect: no settings read, no provider call.
	settings.AssertNotCalled(t, "GetShopSettings", mock.Anything, mock.Anything)
	provider.AssertNotCalled(t, "CreateCheckoutSession", mock.Anything, mock.Anything)
	assert.Empty(t, sink.events)
}

func TestCreateCheckoutSessionUnknownCoupon(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	settings := new(mockSettingsRepo)
	settings.On("GetShopSettings", mock.Anything, "alpine").Return(testSettings(), nil)

	provider := new(mockProvider)
	var captured payments.CheckoutSessionRequest
	provider.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(payments.CheckoutSessionRequest)
		}).
		Return(payments.CheckoutSession{SessionID: "cs_456"}, nil)

	builder := NewBuilder(settings, pricing.NewStaticCatalog(testTable()), provider, &recordingSink{}).
		WithClock(func() time.Time { return now })

	// An unknown code is not an error; checkout proceeds without discount.
	_, err := builder.CreateCheckoutSession(context.Background(), Request{
		Shop:       "alpine",
		Cart:       []domain.CartLine{{SKU: "ski-basic", Quantity: 1, DailyPriceCents: 5000, DepositCents: 2000}},
		ReturnDate: now.AddDate(0, 0, 5),
		Coupon:     "BOGUS",
	})
	require.NoError(t, err)
	assert.Equal(t, "0", captured.Metadata["discount"])
	_, hasCoupon := captured.Metadata["coupon"]
	assert.False(t, hasCoupon)
}

func TestCreateCheckoutSessionChargedTotalMatchesMetadata(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	settings := new(mockSettingsRepo)
	settings.On("GetShopSettings", mock.Anything, "alpine").Return(testSettings(), nil)

	provider := new(mockProvider)
	var captured payments.CheckoutSessionRequest
	provider.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(payments.CheckoutSessionRequest)
		}).
		Return(payments.CheckoutSession{SessionID: "cs_789"}, nil)

	builder := NewBuilder(settings, pricing.NewStaticCatalog(testTable()), provider, &recordingSink{}).
		WithClock(func() time.Time { return now })

	// 333 x 1 day with a 20% coupon rounds per unit to 266, so three units
	// charge 798 while 20% of the 999 subtotal would be 200. The discount
	// absorbs the rounding; the charged sum must equal the metadata total.
	_, err := builder.CreateCheckoutSession(context.Background(), Request{
		Shop:       "alpine",
		Cart:       []domain.CartLine{{SKU: "ski-basic", Quantity: 3, DailyPriceCents: 333}},
		ReturnDate: now.AddDate(0, 0, 1),
		Coupon:     "SAVE",
	})
	require.NoError(t, err)

	md := captured.Metadata
	assert.Equal(t, "999", md["subtotal"])
	assert.Equal(t, "201", md["discount"])
	assert.Equal(t, "798", md["total"])

	var charged int64
	for _, item := range captured.Items {
		charged += item.UnitAmountCents * item.Quantity
	}
	assert.Equal(t, int64(798), charged)
}

func TestCreateCheckoutSessionCurrencyConversion(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	settings := new(mockSettingsRepo)
	settings.On("GetShopSettings", mock.Anything, "alpine").Return(testSettings(), nil)

	provider := new(mockProvider)
	var captured payments.CheckoutSessionRequest
	provider.On("CreateCheckoutSession", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			captured = args.Get(1).(payments.CheckoutSessionRequest)
		}).
		Return(payments.CheckoutSession{SessionID: "cs_usd"}, nil)

	builder := NewBuilder(settings, pricing.NewStaticCatalog(testTable()), provider, &recordingSink{}).
		WithClock(func() time.Time { return now })

	t.Run("converts into the requested currency", func(t *testing.T) {
		_, err := builder.CreateCheckoutSession(context.Background(), Request{
			Shop:       "alpine",
			Cart:       []domain.CartLine{{SKU: "ski-basic", Quantity: 1, DailyPriceCents: 1000}},
			ReturnDate: now.AddDate(0, 0, 1),
			Currency:   "usd",
		})
		require.NoError(t, err)
		assert.Equal(t, "usd", captured.Currency)
		assert.Equal(t, "1100", captured.Metadata["subtotal"])
	})

	t.Run("missing rate fails before the provider call", func(t *testing.T) {
		calls := len(provider.Calls)
		_, err := builder.CreateCheckoutSession(context.Background(), Request{
			Shop:       "alpine",
			Cart:       []domain.CartLine{{SKU: "ski-basic", Quantity: 1, DailyPriceCents: 1000}},
			ReturnDate: now.AddDate(0, 0, 1),
			Currency:   "jpy",
		})
		assert.ErrorIs(t, err, pricing.ErrNoConversionRate)
		assert.Len(t, provider.Calls, calls)
	})
}

func TestCreateCheckoutSessionUnknownShop(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	settings := new(mockSettingsRepo)
	settings.On("GetShopSettings", mock.Anything, "ghost").Return(nil, repository.ErrNotFound)

	builder := NewBuilder(settings, pricing.NewStaticCatalog(testTable()), new(mockProvider), &recordingSink{}).
		WithClock(func() time.Time { return now })

	_, err := builder.CreateCheckoutSession(context.Background(), Request{
		Shop:       "ghost",
		Cart:       []domain.CartLine{{SKU: "ski-basic", Quantity: 1, DailyPriceCents: 1000}},
		ReturnDate: now.AddDate(0, 0, 1),
	})
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestRentalDays(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	days, err := rentalDays(now, now.Add(36*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, days) // partial days round up

	days, err = rentalDays(now, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, days)

	_, err = rentalDays(now, now)
	assert.ErrorIs(t, err, ErrInvalidReturnDate)
}
