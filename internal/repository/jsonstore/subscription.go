package jsonstore

import (
	"context"
	"time"
)

const subscriptionsFile = "subscriptions.json"

// subscriptionStatus is one provider subscription tracked for a tenant.
type subscriptionStatus struct {
	CustomerID     string    `json:"customer_id"`
	SubscriptionID string    `json:"subscription_id"`
	Status         string    `json:"status"`
	UpdatedOn      time.Time `json:"updated_on"`
}

type subscriptionsDoc struct {
	Subscriptions []subscriptionStatus `json:"subscriptions"`
}

type subscriptionRepository struct {
	store *Store
}

func (r *subscriptionRepository) UpsertStatus(ctx context.Context, shop, customerID, subscriptionID, status string) error {
	lock := r.store.shopLock(shop)
	lock.Lock()
	defer lock.Unlock()

	var doc subscriptionsDoc
	if err := r.store.readDoc(shop, subscriptionsFile, &doc); err != nil {
		return err
	}
	now := time.Now().UTC()
	for i := range doc.Subscriptions {
		if doc.Subscriptions[i].SubscriptionID == subscriptionID {
			doc.Subscriptions[i].Status = status
			doc.Subscriptions[i].CustomerID = customerID
			doc.Subscriptions[i].UpdatedOn = now
			return r.store.writeDoc(shop, subscriptionsFile, &doc)
		}
	}
	doc.Subscriptions = append(doc.Subscriptions, subscriptionStatus{
		CustomerID:     customerID,
		SubscriptionID: subscriptionID,
		Status:         status,
		UpdatedOn:      now,
	})
	return r.store.writeDoc(shop, subscriptionsFile, &doc)
}
