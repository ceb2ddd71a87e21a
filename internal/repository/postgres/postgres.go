package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"rentalshop-backend/internal/repository"
)

// NewStore wires the relational repositories over an open connection pool.
func NewStore(db *sql.DB) *repository.Store {
	return &repository.Store{
		OrderRepository:              NewOrderRepository(db),
		SettingsRepository:           NewSettingsRepository(db),
		SubscriptionStatusRepository: NewSubscriptionRepository(db),
	}
}

// Open connects to PostgreSQL and returns the wired store. Used as the
// relational loader by the backend resolver, so it runs at most once per
// process and never runs when the flat-file backend is selected.
func Open(dsn string) (*repository.Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	if err := EnsureSchema(db); err != nil {
		db.Close()
		return nil, err
	}
	return NewStore(db), nil
}

// Loader adapts Open to the resolver's Loader signature.
func Loader(opts repository.Options) (*repository.Store, error) {
	return Open(opts.DSN)
}
