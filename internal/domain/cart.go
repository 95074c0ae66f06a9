package domain

import "time"

type CartItem struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	ProductID string    `json:"productId"`
	VariantID string    `json:"variantId,omitempty"`
	Quantity  int       `json:"quantity"`
	CreatedAt time.Time `json:"createdAt"`
}

// CartSnapshot is the priced cart state captured at checkout time.
type CartSnapshot struct {
	Lines         []OrderItem `json:"lines"`
	SubtotalCents int64       `json:"subtotalCents"`
	TaxCents      int64       `json:"taxCents"`
	ShippingCents int64       `json:"shippingCents"`
	DiscountCents int64       `json:"discountCents"`
	TotalCents    int64       `json:"totalCents"`
	Currency      string      `json:"currency"`
	CapturedAt    time.Time   `json:"capturedAt"`
}
