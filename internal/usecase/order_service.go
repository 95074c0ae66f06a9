package usecase

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront-backend/internal/domain"
)

type OrderRepo interface {
	// CreateOrder persists the order and its lines as one atomic unit.
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrder(ctx context.Context, id string) (*domain.Order, bool)
	ListOrdersByUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Order, int)
	UpdateOrderStatus(ctx context.Context, id string, st domain.OrderStatus) error
	UpdateOrderPaymentState(ctx context.Context, id string, ps domain.PaymentState) error
}

type CreateOrderInput struct {
	Lines           []CheckoutLine  `json:"items"`
	ShippingAddress domain.Address  `json:"shippingAddress"`
	BillingAddress  domain.Address  `json:"billingAddress"`
	PaymentMethod   string          `json:"paymentMethod"`
	ClientSubtotal  decimal.Decimal `json:"subtotal"`
	ClientTax       decimal.Decimal `json:"tax"`
	ClientTotal     decimal.Decimal `json:"total"`
}

type OrderService struct {
	Repo OrderRepo
	Cart *CartService
}

// Create snapshots the cart, persists the order with its lines
// atomically, and clears the cart. The cart clear is best-effort: the
// order row is the sole write of record, so a failed clear cannot
// duplicate the order on retry.
func (s *OrderService) Create(ctx context.Context, userID string, in CreateOrderInput) (*domain.Order, error) {
	snap, err := s.Cart.Snapshot(ctx, userID, in.Lines)
	if err != nil {
		return nil, err
	}
	if err := checkClientTotals(snap, in); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	o := &domain.Order{
		ID:              uuid.NewString(),
		OrderNumber:     newOrderNumber(now),
		UserID:          userID,
		SubtotalCents:   snap.SubtotalCents,
		TaxCents:        snap.TaxCents,
		ShippingCents:   snap.ShippingCents,
		DiscountCents:   snap.DiscountCents,
		TotalCents:      snap.TotalCents,
		Currency:        snap.Currency,
		Status:          domain.OrderPending,
		PaymentStatus:   domain.PayPending,
		PaymentMethod:   in.PaymentMethod,
		ShippingAddress: in.ShippingAddress,
		BillingAddress:  in.BillingAddress,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, line := range snap.Lines {
		line.OrderID = o.ID
		o.Items = append(o.Items, line)
	}
	if err := s.Repo.CreateOrder(ctx, o); err != nil {
		return nil, ErrUnavailable("order store unavailable")
	}
	if err := s.Cart.Cart.ClearCart(ctx, userID); err != nil {
		log.Printf("order %s created but cart clear failed for user %s: %v", o.OrderNumber, userID, err)
	}
	return o, nil
}

func (s *OrderService) Get(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	o, ok := s.Repo.GetOrder(ctx, orderID)
	if !ok || o.UserID != userID {
		return nil, ErrNotFound("order")
	}
	return o, nil
}

func (s *OrderService) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Order, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.Repo.ListOrdersByUser(ctx, userID, page, pageSize)
}

// AdvanceStatus moves an order along the fulfillment axis. Confirmed is
// entered only by payment reconciliation, never through this path.
func (s *OrderService) AdvanceStatus(ctx context.Context, orderID string, next domain.OrderStatus) (*domain.Order, error) {
	if next == domain.OrderConfirmed {
		return nil, ErrBadRequest("confirmed is set by payment completion")
	}
	o, ok := s.Repo.GetOrder(ctx, orderID)
	if !ok {
		return nil, ErrNotFound("order")
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, ErrConflict("cannot transition order from " + string(o.Status) + " to " + string(next))
	}
	if err := s.Repo.UpdateOrderStatus(ctx, orderID, next); err != nil {
		return nil, ErrUnavailable("order store unavailable")
	}
	o.Status = next
	return o, nil
}

func (s *OrderService) Cancel(ctx context.Context, userID, orderID string) (*domain.Order, error) {
	if _, err := s.Get(ctx, userID, orderID); err != nil {
		return nil, err
	}
	return s.AdvanceStatus(ctx, orderID, domain.OrderCancelled)
}

func checkClientTotals(snap *domain.CartSnapshot, in CreateOrderInput) error {
	if in.ClientTotal.IsZero() && in.ClientSubtotal.IsZero() && in.ClientTax.IsZero() {
		return nil
	}
	if toCents(in.ClientSubtotal) != snap.SubtotalCents {
		return ErrBadRequest("subtotal mismatch")
	}
	if toCents(in.ClientTax) != snap.TaxCents {
		return ErrBadRequest("tax mismatch")
	}
	if toCents(in.ClientTotal) != snap.TotalCents {
		return ErrBadRequest("total mismatch")
	}
	return nil
}

func toCents(d decimal.Decimal) int64 {
	return d.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

// newOrderNumber builds a human-readable order number. Global
// uniqueness is guaranteed by the store's unique constraint, not by
// construction.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return "ORD-" + now.Format("20060102") + "-" + suffix
}
