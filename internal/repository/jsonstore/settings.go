package jsonstore

import (
	"context"
	"fmt"
	"os"
	"time"

	"rentalshop-backend/internal/domain"
	"rentalshop-backend/internal/repository"
)

const (
	settingsFile        = "settings.json"
	settingsHistoryFile = "settings.history.ndjson"
)

type settingsRepository struct {
	store *Store
}

// historyRecord is one audit line in the settings history log.
type historyRecord struct {
	Timestamp time.Time      `json:"timestamp"`
	Diff      map[string]any `json:"diff"`
}

func (r *settingsRepository) GetShopSettings(ctx context.Context, shop string) (*domain.ShopSettings, error) {
	lock := r.store.shopLock(shop)
	lock.Lock()
	defer lock.Unlock()

	var settings domain.ShopSettings
	if err := r.store.readDoc(shop, settingsFile, &settings); err != nil {
		return nil, err
	}
	if settings.Shop == "" {
		return nil, repository.ErrNotFound
	}
	return &settings, nil
}

func (r *settingsRepository) SaveShopSettings(ctx context.Context, settings *domain.ShopSettings) error {
	if settings.Shop == "" {
		return fmt.Errorf("jsonstore: settings missing shop id")
	}
	lock := r.store.shopLock(settings.Shop)
	lock.Lock()
	defer lock.Unlock()

	var prev domain.ShopSettings
	if err := r.store.readDoc(settings.Shop, settingsFile, &prev); err != nil {
		return err
	}
	if err := r.store.writeDoc(settings.Shop, settingsFile, settings); err != nil {
		return err
	}
	return r.store.appendLine(settings.Shop, settingsHistoryFile, historyRecord{
		Timestamp: time.Now().UTC(),
		Diff:      settingsDiff(&prev, settings),
	})
}

func (r *settingsRepository) ListShops(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(r.store.dir)
	if err != nil {
		return nil, fmt.Errorf("jsonstore: list shops: %w", err)
	}
	var shops []string
	for _, e := range entries {
		if e.IsDir() {
			shops = append(shops, e.Name())
		}
	}
	return shops, nil
}

// settingsDiff records the fields that changed between two settings versions.
// Values are the new settings' values; maps and slices are reported whole.
func settingsDiff(prev, next *domain.ShopSettings) map[string]any {
	diff := make(map[string]any)
	if prev.Type != next.Type {
		diff["type"] = next.Type
	}
	if prev.Currency != next.Currency {
		diff["currency"] = next.Currency
	}
	if prev.LateFee != next.LateFee {
		diff["late_fee"] = next.LateFee
	}
	if prev.DepositRelease != next.DepositRelease {
		diff["deposit_release"] = next.DepositRelease
	}
	if !equalFloatMaps(prev.TaxRates, next.TaxRates) {
		diff["tax_rates"] = next.TaxRates
	}
	if !equalFloatMaps(prev.Coupons, next.Coupons) {
		diff["coupons"] = next.Coupons
	}
	if !equalStrings(prev.Currencies, next.Currencies) {
		diff["currencies"] = next.Currencies
	}
	if !equalStrings(prev.Languages, next.Languages) {
		diff["languages"] = next.Languages
	}
	if !equalBoolMaps(prev.Features, next.Features) {
		diff["features"] = next.Features
	}
	return diff
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalFloatMaps(a, b map[string]float64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func equalBoolMaps(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
