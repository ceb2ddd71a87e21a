package webhook

// EventKind is the closed set of provider event kinds this processor knows.
// Dispatch switches over all variants so a new kind added here without a
// handler is caught at review, not at runtime.
type EventKind int

const (
	KindUnknown EventKind = iota
	KindCheckoutSessionCompleted
	KindChargeRefunded
	KindChargeSucceeded
	KindSubscriptionChange
)

// ParseEventKind maps a provider event-type string onto the enum. Event
// types outside the closed set parse as KindUnknown and are acknowledged
// without side effects.
func ParseEventKind(eventType string) EventKind {
	switch eventType {
	case "checkout.session.completed":
		return KindCheckoutSessionCompleted
	case "charge.refunded":
		return KindChargeRefunded
	case "charge.succeeded":
		return KindChargeSucceeded
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		return KindSubscriptionChange
	default:
		return KindUnknown
	}
}

func (k EventKind) String() string {
	switch k {
	case KindCheckoutSessionCompleted:
		return "checkout.session.completed"
	case KindChargeRefunded:
		return "charge.refunded"
	case KindChargeSucceeded:
		return "charge.succeeded"
	case KindSubscriptionChange:
		return "customer.subscription"
	default:
		return "unknown"
	}
}
