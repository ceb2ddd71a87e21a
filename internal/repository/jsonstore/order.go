package jsonstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"rentalshop-backend/internal/domain"
	"rentalshop-backend/internal/repository"
)

const ordersFile = "orders.json"

// ordersDoc is the per-tenant orders collection document.
type ordersDoc struct {
	Orders []domain.RentalOrder `json:"orders"`
}

type orderRepository struct {
	store *Store
}

func (r *orderRepository) ReadOrders(ctx context.Context, shop string) ([]domain.RentalOrder, error) {
	lock := r.store.shopLock(shop)
	lock.Lock()
	defer lock.Unlock()

	var doc ordersDoc
	if err := r.store.readDoc(shop, ordersFile, &doc); err != nil {
		return nil, err
	}
	return doc.Orders, nil
}

func (r *orderRepository) AddOrder(ctx context.Context, shop string, order repository.NewOrder) (*domain.RentalOrder, error) {
	lock := r.store.shopLock(shop)
	lock.Lock()
	defer lock.Unlock()

	var doc ordersDoc
	if err := r.store.readDoc(shop, ordersFile, &doc); err != nil {
		return nil, err
	}
	for i := range doc.Orders {
		if doc.Orders[i].SessionID == order.SessionID {
			existing := doc.Orders[i]
			return &existing, nil
		}
	}

	now := time.Now().UTC()
	started := order.StartedAt
	if started.IsZero() {
		started = now
	}
	for i := range order.Items {
		if order.Items[i].ID == "" {
			order.Items[i].ID = uuid.NewString()
		}
		if order.Items[i].Status == "" {
			order.Items[i].Status = domain.ItemStatusPending
		}
	}
	created := domain.RentalOrder{
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
	doc.Orders = append(doc.Orders, created)
	if err := r.store.writeDoc(shop, ordersFile, &doc); err != nil {
		return nil, err
	}
	return &created, nil
}

func (r *orderRepository) GetBySessionID(ctx context.Context, shop, sessionID string) (*domain.RentalOrder, error) {
	lock := r.store.shopLock(shop)
	lock.Lock()
	defer lock.Unlock()

	var doc ordersDoc
	if err := r.store.readDoc(shop, ordersFile, &doc); err != nil {
		return nil, err
	}
	for i := range doc.Orders {
		if doc.Orders[i].SessionID == sessionID {
			o := doc.Orders[i]
			return &o, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *orderRepository) GetByPaymentIntentID(ctx context.Context, shop, paymentIntentID string) (*domain.RentalOrder, error) {
	lock := r.store.shopLock(shop)
	lock.Lock()
	defer lock.Unlock()

	var doc ordersDoc
	if err := r.store.readDoc(shop, ordersFile, &doc); err != nil {
		return nil, err
	}
	for i := range doc.Orders {
		if doc.Orders[i].PaymentIntentID == paymentIntentID {
			o := doc.Orders[i]
			return &o, nil
		}
	}
	return nil, repository.ErrNotFound
}

// mutate applies fn to the order with the given sessionID under the shop
// lock and persists the document. fn returns false to skip the write.
func (r *orderRepository) mutate(shop, sessionID string, fn func(*domain.RentalOrder) (bool, error)) error {
	lock := r.store.shopLock(shop)
	lock.Lock()
	defer lock.Unlock()

	var doc ordersDoc
	if err := r.store.readDoc(shop, ordersFile, &doc); err != nil {
		return err
	}
	for i := range doc.Orders {
		if doc.Orders[i].SessionID != sessionID {
			continue
		}
		changed, err := fn(&doc.Orders[i])
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		doc.Orders[i].UpdatedOn = time.Now().UTC()
		return r.store.writeDoc(shop, ordersFile, &doc)
	}
	return repository.ErrNotFound
}

func (r *orderRepository) MarkReturned(ctx context.Context, shop, sessionID string, at time.Time, damageFeeCents int64) error {
	return r.mutate(shop, sessionID, func(o *domain.RentalOrder) (bool, error) {
		if o.ReturnedAt != nil {
			return false, nil
		}
		t := at.UTC()
		o.ReturnedAt = &t
		o.DamageFeeCents = damageFeeCents
		return true, nil
	})
}

func (r *orderRepository) MarkRefunded(ctx context.Context, shop, sessionID string, at time.Time) (bool, error) {
	applied := false
	err := r.mutate(shop, sessionID, func(o *domain.RentalOrder) (bool, error) {
		if o.RefundedAt != nil {
			return false, nil
		}
		t := at.UTC()
		o.RefundedAt = &t
		applied = true
		return true, nil
	})
	return applied, err
}

func (r *orderRepository) MarkLateFeeCharged(ctx context.Context, shop, sessionID string, at time.Time) (bool, error) {
	applied := false
	err := r.mutate(shop, sessionID, func(o *domain.RentalOrder) (bool, error) {
		if o.LateFeeChargedAt != nil {
			return false, nil
		}
		t := at.UTC()
		o.LateFeeChargedAt = &t
		applied = true
		return true, nil
	})
	return applied, err
}

func (r *orderRepository) UpdateRisk(ctx context.Context, shop, paymentIntentID string, upd repository.RiskUpdate) (bool, error) {
	lock := r.store.shopLock(shop)
	lock.Lock()
	defer lock.Unlock()

	var doc ordersDoc
	if err := r.store.readDoc(shop, ordersFile, &doc); err != nil {
		return false, err
	}
	for i := range doc.Orders {
		if doc.Orders[i].PaymentIntentID != paymentIntentID {
			continue
		}
		o := &doc.Orders[i]
		o.RiskLevel = upd.RiskLevel
		o.RiskScore = upd.RiskScore
		o.ChargeID = upd.ChargeID
		o.BalanceTransactionID = upd.BalanceTransactionID
		if upd.CustomerID != "" {
			o.CustomerID = upd.CustomerID
		}
		o.UpdatedOn = time.Now().UTC()
		if err := r.store.writeDoc(shop, ordersFile, &doc); err != nil {
			return false, err
		}
		return true, nil
	}
	// The order may not exist yet or may belong to another tenant; either way
	// this is not an error.
	return false, nil
}

func (r *orderRepository) MarkNeedsAttention(ctx context.Context, shop, sessionID string) error {
	return r.mutate(shop, sessionID, func(o *domain.RentalOrder) (bool, error) {
		if o.NeedsAttention {
			return false, nil
		}
		o.NeedsAttention = true
		return true, nil
	})
}

func (r *orderRepository) UpdateItemStatus(ctx context.Context, shop, sessionID, itemID string, status domain.ItemStatus) error {
	return r.mutate(shop, sessionID, func(o *domain.RentalOrder) (bool, error) {
		for i := range o.Items {
			if o.Items[i].ID != itemID {
				continue
			}
			if o.Items[i].Status == status {
				return false, nil
			}
			if !domain.CanTransitionItem(o.Items[i].Status, status) {
				return false, fmt.Errorf("jsonstore: invalid item transition %s -> %s", o.Items[i].Status, status)
			}
			o.Items[i].Status = status
			return true, nil
		}
		return false, repository.ErrNotFound
	})
}
