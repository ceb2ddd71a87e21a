package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rentalshop-backend/internal/domain"
	"rentalshop-backend/internal/repository"
)

type orderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) repository.OrderRepository {
	return &orderRepository{db: db}
}

const orderColumns = `id, shop, session_id, deposit_cents, damage_fee_cents, started_at, return_date,
	returned_at, refunded_at, late_fee_charged_at, risk_level, risk_score, needs_attention,
	charge_id, balance_transaction_id, customer_id, payment_intent_id, created_on, updated_on`

func scanOrder(row interface{ Scan(...any) error }) (*domain.RentalOrder, error) {
	o := &domain.RentalOrder{}
	var returnedAt, refundedAt, lateFeeChargedAt sql.NullTime
	err := row.Scan(
		&o.ID, &o.Shop, &o.SessionID, &o.DepositCents, &o.DamageFeeCents, &o.StartedAt, &o.ReturnDate,
		&returnedAt, &refundedAt, &lateFeeChargedAt, &o.RiskLevel, &o.RiskScore, &o.NeedsAttention,
		&o.ChargeID, &o.BalanceTransactionID, &o.CustomerID, &o.PaymentIntentID, &o.CreatedOn, &o.UpdatedOn,
	)
	if err != nil {
		return nil, err
	}
	if returnedAt.Valid {
		o.ReturnedAt = &returnedAt.Time
	}
	if refundedAt.Valid {
		o.RefundedAt = &refundedAt.Time
	}
	if lateFeeChargedAt.Valid {
		o.LateFeeChargedAt = &lateFeeChargedAt.Time
	}
	return o, nil
}

func (r *orderRepository) loadItems(ctx context.Context, q interface {
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
}, orderID string) ([]domain.OrderItem, error) {
	rows, err := q.QueryContext(ctx, `SELECT id, sku, kind, status FROM order_items WHERE order_id = $1 ORDER BY id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []domain.OrderItem
	for rows.Next() {
		var it domain.OrderItem
		if err := rows.Scan(&it.ID, &it.SKU, &it.Kind, &it.Status); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

func (r *orderRepository) ReadOrders(ctx context.Context, shop string) ([]domain.RentalOrder, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE shop = $1 ORDER BY created_on`
	rows, err := r.db.QueryContext(ctx, query, shop)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.RentalOrder
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range orders {
		items, err := r.loadItems(ctx, r.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Items = items
	}
	return orders, nil
}

func (r *orderRepository) AddOrder(ctx context.Context, shop string, order repository.NewOrder) (*domain.RentalOrder, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Serialize on the business key: a concurrent redelivery blocks here and
	// then sees the inserted row.
	row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE shop = $1 AND session_id = $2 FOR UPDATE`, shop, order.SessionID)
	existing, err := scanOrder(row)
	if err == nil {
		items, ierr := r.loadItems(ctx, tx, existing.ID)
		if ierr != nil {
			return nil, ierr
		}
		existing.Items = items
		if err := tx.Commit(); err != nil {
			return nil, err
		}
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	now := time.Now().UTC()
	started := order.StartedAt
	if started.IsZero() {
		started = now
	}
	created := &domain.RentalOrder{
		ID:              uuid.NewString(),
		Shop:            shop,
		SessionID:       order.SessionID,
		DepositCents:    order.DepositCents,
		StartedAt:       started,
		ReturnDate:      order.ReturnDate,
		CustomerID:      order.CustomerID,
		PaymentIntentID: order.PaymentIntentID,
		Items:           order.Items,
		CreatedOn:       now,
		UpdatedOn:       now,
	}
	// FOR UPDATE on a row that does not exist yet locks nothing, so two
	// first deliveries can race past the existence check. The conflict
	// clause lets the loser fall back to the winner's row.
	res, err := tx.ExecContext(ctx,
		`INSERT INTO orders (id, shop, session_id, deposit_cents, started_at, return_date, customer_id, payment_intent_id, created_on, updated_on)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (shop, session_id) DO NOTHING`,
		created.ID, shop, created.SessionID, created.DepositCents, created.StartedAt, created.ReturnDate,
		created.CustomerID, created.PaymentIntentID, created.CreatedOn, created.UpdatedOn)
	if err != nil {
		return nil, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, err
	} else if n == 0 {
		if err := tx.Rollback(); err != nil {
			return nil, err
		}
		return r.GetBySessionID(ctx, shop, order.SessionID)
	}
	for i := range created.Items {
		if created.Items[i].ID == "" {
			created.Items[i].ID = uuid.NewString()
		}
		if created.Items[i].Status == "" {
			created.Items[i].Status = domain.ItemStatusPending
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO order_items (id, order_id, sku, kind, status) VALUES ($1, $2, $3, $4, $5)`,
			created.Items[i].ID, created.ID, created.Items[i].SKU, created.Items[i].Kind, created.Items[i].Status)
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return created, nil
}

func (r *orderRepository) getBy(ctx context.Context, where string, args ...any) (*domain.RentalOrder, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE `+where, args...)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	items, err := r.loadItems(ctx, r.db, o.ID)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return o, nil
}

func (r *orderRepository) GetBySessionID(ctx context.Context, shop, sessionID string) (*domain.RentalOrder, error) {
	return r.getBy(ctx, `shop = $1 AND session_id = $2`, shop, sessionID)
}

func (r *orderRepository) GetByPaymentIntentID(ctx context.Context, shop, paymentIntentID string) (*domain.RentalOrder, error) {
	return r.getBy(ctx, `shop = $1 AND payment_intent_id = $2`, shop, paymentIntentID)
}

func (r *orderRepository) MarkReturned(ctx context.Context, shop, sessionID string, at time.Time, damageFeeCents int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET returned_at = COALESCE(returned_at, $1),
		 damage_fee_cents = CASE WHEN returned_at IS NULL THEN $2 ELSE damage_fee_cents END,
		 updated_on = $3
		 WHERE shop = $4 AND session_id = $5`,
		at.UTC(), damageFeeCents, time.Now().UTC(), shop, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// markOnce sets a nullable timestamp column iff it is still NULL, inside a
// row-locking transaction, and reports whether this call applied it.
func (r *orderRepository) markOnce(ctx context.Context, column, shop, sessionID string, at time.Time) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var current sql.NullTime
	err = tx.QueryRowContext(ctx,
		`SELECT `+column+` FROM orders WHERE shop = $1 AND session_id = $2 FOR UPDATE`,
		shop, sessionID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return false, repository.ErrNotFound
	}
	if err != nil {
		return false, err
	}
	if current.Valid {
		return false, tx.Commit()
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE orders SET `+column+` = $1, updated_on = $2 WHERE shop = $3 AND session_id = $4`,
		at.UTC(), time.Now().UTC(), shop, sessionID)
	if err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (r *orderRepository) MarkRefunded(ctx context.Context, shop, sessionID string, at time.Time) (bool, error) {
	return r.markOnce(ctx, "refunded_at", shop, sessionID, at)
}

func (r *orderRepository) MarkLateFeeCharged(ctx context.Context, shop, sessionID string, at time.Time) (bool, error) {
	return r.markOnce(ctx, "late_fee_charged_at", shop, sessionID, at)
}

func (r *orderRepository) UpdateRisk(ctx context.Context, shop, paymentIntentID string, upd repository.RiskUpdate) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET risk_level = $1, risk_score = $2, charge_id = $3, balance_transaction_id = $4,
		 customer_id = CASE WHEN $5 <> '' THEN $5 ELSE customer_id END, updated_on = $6
		 WHERE shop = $7 AND payment_intent_id = $8`,
		upd.RiskLevel, upd.RiskScore, upd.ChargeID, upd.BalanceTransactionID, upd.CustomerID,
		time.Now().UTC(), shop, paymentIntentID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *orderRepository) MarkNeedsAttention(ctx context.Context, shop, sessionID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE orders SET needs_attention = TRUE, updated_on = $1 WHERE shop = $2 AND session_id = $3`,
		time.Now().UTC(), shop, sessionID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *orderRepository) UpdateItemStatus(ctx context.Context, shop, sessionID, itemID string, status domain.ItemStatus) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var orderID string
	err = tx.QueryRowContext(ctx,
		`SELECT id FROM orders WHERE shop = $1 AND session_id = $2 FOR UPDATE`,
		shop, sessionID).Scan(&orderID)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return err
	}

	var current domain.ItemStatus
	err = tx.QueryRowContext(ctx,
		`SELECT status FROM order_items WHERE order_id = $1 AND id = $2`,
		orderID, itemID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if err != nil {
		return err
	}
	if current == status {
		return tx.Commit()
	}
	if !domain.CanTransitionItem(current, status) {
		return fmt.Errorf("postgres: invalid item transition %s -> %s", current, status)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE order_items SET status = $1 WHERE order_id = $2 AND id = $3`,
		status, orderID, itemID)
	if err != nil {
		return err
	}
	return tx.Commit()
}
