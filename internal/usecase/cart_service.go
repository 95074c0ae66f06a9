package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"storefront-backend/internal/domain"
)

type CartRepo interface {
	ListCartItems(ctx context.Context, userID string) ([]domain.CartItem, error)
	ClearCart(ctx context.Context, userID string) error
}

type ProductRepo interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, bool)
	GetVariant(ctx context.Context, id string) (*domain.Variant, bool)
}

type Pricing struct {
	TaxRateBps        int64
	ShippingFlatCents int64
	Currency          string
}

// CheckoutLine is one requested order line. UnitPrice may be zero, in
// which case the catalog price is used.
type CheckoutLine struct {
	ProductID string          `json:"productId"`
	VariantID string          `json:"variantId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

// CartService prices a checkout: it validates each line against the
// catalog, checks stock, and computes subtotal, tax and total in minor
// currency units.
type CartService struct {
	Cart     CartRepo
	Products ProductRepo
	Pricing  Pricing
}

// Snapshot prices the given lines; with no lines it prices the user's
// stored cart instead.
func (s *CartService) Snapshot(ctx context.Context, userID string, lines []CheckoutLine) (*domain.CartSnapshot, error) {
	if len(lines) == 0 {
		items, err := s.Cart.ListCartItems(ctx, userID)
		if err != nil {
			return nil, ErrUnavailable("cart store unavailable")
		}
		for _, it := range items {
			lines = append(lines, CheckoutLine{ProductID: it.ProductID, VariantID: it.VariantID, Quantity: it.Quantity})
		}
	}
	if len(lines) == 0 {
		return nil, ErrBadRequest("cart is empty")
	}

	snap := &domain.CartSnapshot{
		Currency:      s.Pricing.Currency,
		ShippingCents: s.Pricing.ShippingFlatCents,
		CapturedAt:    time.Now().UTC(),
	}
	subtotal := decimal.Zero
	for _, line := range lines {
		if line.Quantity < 1 {
			return nil, ErrBadRequest("quantity must be at least 1")
		}
		p, ok := s.Products.GetProduct(ctx, line.ProductID)
		if !ok || !p.Active {
			return nil, ErrNotFound("product")
		}
		unitCents := p.PriceCents
		stock := p.Stock
		if line.VariantID != "" {
			v, ok := s.Products.GetVariant(ctx, line.VariantID)
			if !ok || v.ProductID != p.ID {
				return nil, ErrNotFound("variant")
			}
			if v.PriceCents > 0 {
				unitCents = v.PriceCents
			}
			stock = v.Stock
		}
		if line.Quantity > stock {
			return nil, ErrBadRequest("insufficient stock for product " + p.ID)
		}
		if line.UnitPrice.IsPositive() {
			unitCents = line.UnitPrice.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
		}
		lineTotal := decimal.NewFromInt(unitCents).Mul(decimal.NewFromInt(int64(line.Quantity)))
		subtotal = subtotal.Add(lineTotal)
		snap.Lines = append(snap.Lines, domain.OrderItem{
			ID:             uuid.NewString(),
			ProductID:      line.ProductID,
			VariantID:      line.VariantID,
			Quantity:       line.Quantity,
			UnitPriceCents: unitCents,
		})
	}

	tax := subtotal.Mul(decimal.NewFromInt(s.Pricing.TaxRateBps)).Div(decimal.NewFromInt(10000)).Round(0)
	snap.SubtotalCents = subtotal.IntPart()
	snap.TaxCents = tax.IntPart()
	snap.TotalCents = snap.SubtotalCents + snap.TaxCents + snap.ShippingCents - snap.DiscountCents
	return snap, nil
}
