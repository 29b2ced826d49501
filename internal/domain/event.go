package domain

import "time"

type EventType string

const (
	EventOrderCreated        EventType = "order.created"
	EventOrderItemsReplaced  EventType = "order.items_replaced"
	EventOrderStatusChanged  EventType = "order.status_changed"
	EventPaymentVerification EventType = "order.payment_verification_changed"
	EventOrderDeleted        EventType = "order.deleted"
)

// OrderEvent is published after a mutation has been committed.
type OrderEvent struct {
	ID         string    `json:"id"`
	Type       EventType `json:"type"`
	OrderID    string    `json:"orderId"`
	OccurredAt time.Time `json:"occurredAt"`
	Source     string    `json:"source,omitempty"`
}
