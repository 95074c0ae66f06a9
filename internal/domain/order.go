package domain

import "time"

type OrderStatus string

const (
	OrderPending    OrderStatus = "pending"
	OrderConfirmed  OrderStatus = "confirmed"
	OrderProcessing OrderStatus = "processing"
	OrderShipped    OrderStatus = "shipped"
	OrderDelivered  OrderStatus = "delivered"
	OrderCancelled  OrderStatus = "cancelled"
	OrderRefunded   OrderStatus = "refunded"
)

// PaymentState is the payment axis of an order, tracked independently
// from fulfillment.
type PaymentState string

const (
	PayPending    PaymentState = "pending"
	PayProcessing PaymentState = "processing"
	PayCompleted  PaymentState = "completed"
	PayFailed     PaymentState = "failed"
	PayCancelled  PaymentState = "cancelled"
	PayRefunded   PaymentState = "refunded"
)

// Address is a snapshot copied onto the order at creation time, not a
// reference into a mutable address book.
type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// OrderItem captures the unit price at order time. Lines are immutable
// once the order exists.
type OrderItem struct {
	ID             string `json:"id"`
	OrderID        string `json:"orderId"`
	ProductID      string `json:"productId"`
	VariantID      string `json:"variantId,omitempty"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents int64  `json:"unitPriceCents"`
}

type Order struct {
	ID              string       `json:"id"`
	OrderNumber     string       `json:"orderNumber"`
	UserID          string       `json:"userId"`
	Items           []OrderItem  `json:"items"`
	SubtotalCents   int64        `json:"subtotalCents"`
	TaxCents        int64        `json:"taxCents"`
	ShippingCents   int64        `json:"shippingCents"`
	DiscountCents   int64        `json:"discountCents"`
	TotalCents      int64        `json:"totalCents"`
	Currency        string       `json:"currency"`
	Status          OrderStatus  `json:"status"`
	PaymentStatus   PaymentState `json:"paymentStatus"`
	PaymentMethod   string       `json:"paymentMethod"`
	ShippingAddress Address      `json:"shippingAddress"`
	BillingAddress  Address      `json:"billingAddress"`
	TrackingNumber  string       `json:"trackingNumber,omitempty"`
	Carrier         string       `json:"carrier,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// orderTransitions is the fulfillment transition set. Cancelled and
// refunded are reachable from any pre-terminal state.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:    {OrderConfirmed, OrderCancelled, OrderRefunded},
	OrderConfirmed:  {OrderProcessing, OrderCancelled, OrderRefunded},
	OrderProcessing: {OrderShipped, OrderCancelled, OrderRefunded},
	OrderShipped:    {OrderDelivered, OrderCancelled, OrderRefunded},
	OrderDelivered:  {},
	OrderCancelled:  {},
	OrderRefunded:   {},
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, t := range orderTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}
