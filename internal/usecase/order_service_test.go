package usecase_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/infrastructure/repo"
	"storefront-backend/internal/usecase"
)

func newOrderService(store *repo.MemoryStore) *usecase.OrderService {
	carts := &usecase.CartService{
		Cart:     store,
		Products: store,
		Pricing:  usecase.Pricing{TaxRateBps: 800, Currency: "usd"},
	}
	return &usecase.OrderService{Repo: store, Cart: carts}
}

func seedProduct(store *repo.MemoryStore) {
	store.PutProduct(&domain.Product{ID: "p1", Name: "Mug", PriceCents: 1999, Stock: 10, Active: true})
}

func TestCreateOrder_FromCart(t *testing.T) {
	store := repo.NewMemoryStore()
	seedProduct(store)
	store.AddCartItem(domain.CartItem{ID: "c1", UserID: "u1", ProductID: "p1", Quantity: 2})
	svc := newOrderService(store)

	o, err := svc.Create(context.Background(), "u1", usecase.CreateOrderInput{PaymentMethod: "card"})
	require.NoError(t, err)

	// 19.99 x 2 = 39.98, 8% tax = 3.20, total 43.18
	assert.Equal(t, int64(3998), o.SubtotalCents)
	assert.Equal(t, int64(320), o.TaxCents)
	assert.Equal(t, int64(4318), o.TotalCents)
	assert.Equal(t, o.SubtotalCents+o.TaxCents+o.ShippingCents-o.DiscountCents, o.TotalCents)
	assert.Equal(t, domain.OrderPending, o.Status)
	assert.Equal(t, domain.PayPending, o.PaymentStatus)
	require.Len(t, o.Items, 1)
	assert.Equal(t, o.ID, o.Items[0].OrderID)
	assert.Equal(t, int64(1999), o.Items[0].UnitPriceCents)
	assert.NotEmpty(t, o.OrderNumber)

	// Cart is cleared exactly once; retrying the same call finds an
	// empty cart and creates nothing.
	items, err := store.ListCartItems(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, items)

	_, err = svc.Create(context.Background(), "u1", usecase.CreateOrderInput{PaymentMethod: "card"})
	assert.ErrorIs(t, err, usecase.ErrBadRequest("cart is empty"))

	_, total := svc.ListByUser(context.Background(), "u1", 1, 10)
	assert.Equal(t, 1, total)
}

func TestCreateOrder_ExplicitLinesAndClientTotals(t *testing.T) {
	store := repo.NewMemoryStore()
	seedProduct(store)
	svc := newOrderService(store)

	in := usecase.CreateOrderInput{
		Lines: []usecase.CheckoutLine{
			{ProductID: "p1", Quantity: 2, UnitPrice: decimal.NewFromFloat(19.99)},
		},
		ClientSubtotal: decimal.NewFromFloat(39.98),
		ClientTax:      decimal.NewFromFloat(3.20),
		ClientTotal:    decimal.NewFromFloat(43.18),
	}
	o, err := svc.Create(context.Background(), "u1", in)
	require.NoError(t, err)
	assert.Equal(t, int64(4318), o.TotalCents)

	in.ClientTotal = decimal.NewFromFloat(1.00)
	_, err = svc.Create(context.Background(), "u1", in)
	assert.ErrorIs(t, err, usecase.ErrBadRequest("total mismatch"))

	// Tax alone being set still triggers the cross-check.
	in.ClientSubtotal = decimal.Zero
	in.ClientTax = decimal.NewFromFloat(99.00)
	in.ClientTotal = decimal.Zero
	_, err = svc.Create(context.Background(), "u1", in)
	assert.ErrorIs(t, err, usecase.ErrBadRequest("subtotal mismatch"))
}

func TestCreateOrder_Validation(t *testing.T) {
	store := repo.NewMemoryStore()
	seedProduct(store)
	store.PutVariant(&domain.Variant{ID: "v1", ProductID: "p1", PriceCents: 2499, Stock: 1})
	svc := newOrderService(store)
	ctx := context.Background()

	_, err := svc.Create(ctx, "u1", usecase.CreateOrderInput{
		Lines: []usecase.CheckoutLine{{ProductID: "missing", Quantity: 1}},
	})
	assert.ErrorIs(t, err, usecase.ErrNotFound("product"))

	_, err = svc.Create(ctx, "u1", usecase.CreateOrderInput{
		Lines: []usecase.CheckoutLine{{ProductID: "p1", VariantID: "other", Quantity: 1}},
	})
	assert.ErrorIs(t, err, usecase.ErrNotFound("variant"))

	_, err = svc.Create(ctx, "u1", usecase.CreateOrderInput{
		Lines: []usecase.CheckoutLine{{ProductID: "p1", VariantID: "v1", Quantity: 5}},
	})
	assert.Error(t, err)
	assert.IsType(t, usecase.ErrBadRequest(""), err)

	_, err = svc.Create(ctx, "u1", usecase.CreateOrderInput{
		Lines: []usecase.CheckoutLine{{ProductID: "p1", Quantity: 0}},
	})
	assert.IsType(t, usecase.ErrBadRequest(""), err)

	// Variant price wins over the product price.
	o, err := svc.Create(ctx, "u1", usecase.CreateOrderInput{
		Lines: []usecase.CheckoutLine{{ProductID: "p1", VariantID: "v1", Quantity: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2499), o.Items[0].UnitPriceCents)
}

type failingOrderRepo struct {
	*repo.MemoryStore
}

func (f *failingOrderRepo) CreateOrder(context.Context, *domain.Order) error {
	return errors.New("store down")
}

func TestCreateOrder_StoreFailureLeavesNoPartialState(t *testing.T) {
	store := repo.NewMemoryStore()
	seedProduct(store)
	store.AddCartItem(domain.CartItem{ID: "c1", UserID: "u1", ProductID: "p1", Quantity: 2})
	carts := &usecase.CartService{Cart: store, Products: store, Pricing: usecase.Pricing{TaxRateBps: 800, Currency: "usd"}}
	svc := &usecase.OrderService{Repo: &failingOrderRepo{store}, Cart: carts}

	_, err := svc.Create(context.Background(), "u1", usecase.CreateOrderInput{})
	assert.IsType(t, usecase.ErrUnavailable(""), err)

	// No order visible, cart untouched: the caller may safely retry.
	_, total := store.ListOrdersByUser(context.Background(), "u1", 1, 10)
	assert.Equal(t, 0, total)
	items, _ := store.ListCartItems(context.Background(), "u1")
	assert.Len(t, items, 1)
}

func TestAdvanceStatus(t *testing.T) {
	store := repo.NewMemoryStore()
	seedProduct(store)
	svc := newOrderService(store)
	ctx := context.Background()

	o, err := svc.Create(ctx, "u1", usecase.CreateOrderInput{
		Lines: []usecase.CheckoutLine{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)

	// Confirmed is reserved for payment completion.
	_, err = svc.AdvanceStatus(ctx, o.ID, domain.OrderConfirmed)
	assert.IsType(t, usecase.ErrBadRequest(""), err)

	// Pending cannot jump to shipped.
	_, err = svc.AdvanceStatus(ctx, o.ID, domain.OrderShipped)
	assert.IsType(t, usecase.ErrConflict(""), err)

	got, err := svc.Cancel(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderCancelled, got.Status)

	// Terminal states stay terminal.
	_, err = svc.AdvanceStatus(ctx, o.ID, domain.OrderDelivered)
	assert.IsType(t, usecase.ErrConflict(""), err)
}

func TestGetOrder_Ownership(t *testing.T) {
	store := repo.NewMemoryStore()
	seedProduct(store)
	svc := newOrderService(store)
	ctx := context.Background()

	o, err := svc.Create(ctx, "u1", usecase.CreateOrderInput{
		Lines: []usecase.CheckoutLine{{ProductID: "p1", Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = svc.Get(ctx, "u2", o.ID)
	assert.ErrorIs(t, err, usecase.ErrNotFound("order"))
}
