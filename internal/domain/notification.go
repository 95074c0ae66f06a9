package domain

import "time"

type NotificationType string

const (
	NotifyOrderUpdate    NotificationType = "order_update"
	NotifyPaymentSuccess NotificationType = "payment_success"
	NotifyPaymentFailed  NotificationType = "payment_failed"
	NotifyDisputeAlert   NotificationType = "dispute_alert"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Payload   map[string]any   `json:"payload,omitempty"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"createdAt"`
	UpdatedAt time.Time        `json:"updatedAt"`
}
