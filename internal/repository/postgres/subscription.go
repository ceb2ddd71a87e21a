package postgres

import (
	"context"
	"database/sql"
	"time"

	"rentalshop-backend/internal/repository"
)

type subscriptionRepository struct {
	db *sql.DB
}

func NewSubscriptionRepository(db *sql.DB) repository.SubscriptionStatusRepository {
	return &subscriptionRepository{db: db}
}

func (r *subscriptionRepository) UpsertStatus(ctx context.Context, shop, customerID, subscriptionID, status string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscription_statuses (shop, subscription_id, customer_id, status, updated_on)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (shop, subscription_id) DO UPDATE SET customer_id = EXCLUDED.customer_id, status = EXCLUDED.status, updated_on = EXCLUDED.updated_on`,
		shop, subscriptionID, customerID, status, time.Now().UTC())
	return err
}
