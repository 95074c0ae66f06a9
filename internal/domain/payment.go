package domain

import "time"

type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentCompleted  PaymentStatus = "completed"
	PaymentFailed     PaymentStatus = "failed"
	PaymentCancelled  PaymentStatus = "cancelled"
	PaymentRefunded   PaymentStatus = "refunded"
)

// Payment records one attempt to collect money for an order. IntentID
// is the gateway's correlation id; once set it never changes and is the
// idempotency key for webhook reconciliation.
type Payment struct {
	ID               string        `json:"id"`
	OrderID          string        `json:"orderId"`
	UserID           string        `json:"userId"`
	AmountCents      int64         `json:"amountCents"`
	Currency         string        `json:"currency"`
	Status           PaymentStatus `json:"status"`
	IntentID         string        `json:"intentId"`
	ClientSecret     string        `json:"-"`
	ProviderResponse string        `json:"-"`
	CreatedAt        time.Time     `json:"createdAt"`
	ProcessedAt      *time.Time    `json:"processedAt,omitempty"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

func (s PaymentStatus) Terminal() bool {
	switch s {
	case PaymentCompleted, PaymentFailed, PaymentCancelled, PaymentRefunded:
		return true
	}
	return false
}
