package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"rentalshop-backend/internal/domain"
	"rentalshop-backend/internal/repository"
)

type settingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) repository.SettingsRepository {
	return &settingsRepository{db: db}
}

// Settings are stored as one JSONB document per shop, mirroring the
// flat-file layout, with saves audited into shop_settings_history.
func (r *settingsRepository) GetShopSettings(ctx context.Context, shop string) (*domain.ShopSettings, error) {
	var doc []byte
	err := r.db.QueryRowContext(ctx, `SELECT doc FROM shop_settings WHERE shop = $1`, shop).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var settings domain.ShopSettings
	if err := json.Unmarshal(doc, &settings); err != nil {
		return nil, fmt.Errorf("postgres: parse settings for %s: %w", shop, err)
	}
	return &settings, nil
}

func (r *settingsRepository) SaveShopSettings(ctx context.Context, settings *domain.ShopSettings) error {
	if settings.Shop == "" {
		return fmt.Errorf("postgres: settings missing shop id")
	}
	doc, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("postgres: encode settings: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO shop_settings (shop, doc, updated_on) VALUES ($1, $2, $3)
		 ON CONFLICT (shop) DO UPDATE SET doc = EXCLUDED.doc, updated_on = EXCLUDED.updated_on`,
		settings.Shop, doc, now)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO shop_settings_history (shop, recorded_at, diff) VALUES ($1, $2, $3)`,
		settings.Shop, now, doc)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (r *settingsRepository) ListShops(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT shop FROM shop_settings ORDER BY shop`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var shops []string
	for rows.Next() {
		var shop string
		if err := rows.Scan(&shop); err != nil {
			return nil, err
		}
		shops = append(shops, shop)
	}
	return shops, rows.Err()
}
