package usecase_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/infrastructure/gateway"
	"storefront-backend/internal/infrastructure/repo"
	"storefront-backend/internal/usecase"
)

const webhookSecret = "whsec_test"

type stubGateway struct {
	customerErr error
	intents     int
}

func (g *stubGateway) CreateCustomer(_ context.Context, email, _ string) (*gateway.Customer, error) {
	if g.customerErr != nil {
		return nil, g.customerErr
	}
	return &gateway.Customer{ID: "cus_1", Email: email}, nil
}

func (g *stubGateway) CreateIntent(_ context.Context, req gateway.IntentRequest) (*gateway.Intent, error) {
	g.intents++
	return &gateway.Intent{
		ID:           fmt.Sprintf("pi_%d", g.intents),
		ClientSecret: fmt.Sprintf("pi_%d_secret", g.intents),
		AmountCents:  req.AmountCents,
		Currency:     req.Currency,
		Status:       "requires_payment_method",
	}, nil
}

type nopPusher struct{}

func (nopPusher) Push(string, string, any) bool { return false }

type fixture struct {
	store    *repo.MemoryStore
	gw       *stubGateway
	orders   *usecase.OrderService
	payments *usecase.PaymentService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := repo.NewMemoryStore()
	seedProduct(store)
	gw := &stubGateway{}
	notifications := &usecase.NotificationService{Repo: store, Push: nopPusher{}}
	payments := &usecase.PaymentService{
		Orders:           store,
		Payments:         store,
		Users:            store,
		Gateway:          gw,
		Notifications:    notifications,
		WebhookSecret:    webhookSecret,
		WebhookTolerance: 5 * time.Minute,
		AdminUserID:      "admin",
	}
	return &fixture{store: store, gw: gw, orders: newOrderService(store), payments: payments}
}

func (f *fixture) createOrder(t *testing.T, userID string) *domain.Order {
	t.Helper()
	o, err := f.orders.Create(context.Background(), userID, usecase.CreateOrderInput{
		Lines: []usecase.CheckoutLine{{ProductID: "p1", Quantity: 2}},
	})
	require.NoError(t, err)
	return o
}

func signedEvent(eventID, eventType, object string) ([]byte, string) {
	body := []byte(fmt.Sprintf(`{"id":%q,"type":%q,"data":{"object":%s}}`, eventID, eventType, object))
	return body, gateway.Sign([]byte(webhookSecret), time.Now(), body)
}

func intentObject(intentID string) string {
	return fmt.Sprintf(`{"id":%q,"amount":4318,"currency":"usd"}`, intentID)
}

func (f *fixture) countNotifications(userID string) int {
	_, total := f.store.ListNotifications(context.Background(), userID, usecase.NotificationFilter{Page: 1, PageSize: 100})
	return total
}

func TestCreateIntent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.store.PutUser(ctx, &domain.User{UserID: "u1", Email: "u1@example.com"})
	o := f.createOrder(t, "u1")

	res, err := f.payments.CreateIntent(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, "pi_1_secret", res.ClientSecret)
	assert.Equal(t, o.TotalCents, res.AmountCents)

	p, ok := f.store.GetPaymentByIntent(ctx, "pi_1")
	require.True(t, ok)
	assert.Equal(t, domain.PaymentPending, p.Status)
	assert.Equal(t, o.ID, p.OrderID)

	// The gateway customer id was resolved and persisted.
	u, ok := f.store.GetUser(ctx, "u1")
	require.True(t, ok)
	assert.Equal(t, "cus_1", u.GatewayCustomerID)
}

func TestCreateIntent_CustomerResolutionFailureIsNonFatal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.store.PutUser(ctx, &domain.User{UserID: "u1", Email: "u1@example.com"})
	f.gw.customerErr = errors.New("gateway 500")
	o := f.createOrder(t, "u1")

	res, err := f.payments.CreateIntent(ctx, "u1", o.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ClientSecret)
}

func TestCreateIntent_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, "u1")

	_, err := f.payments.CreateIntent(ctx, "u2", o.ID)
	assert.ErrorIs(t, err, usecase.ErrNotFound("order"))

	_, err = f.payments.CreateIntent(ctx, "u1", "nope")
	assert.ErrorIs(t, err, usecase.ErrNotFound("order"))

	require.NoError(t, f.store.UpdateOrderPaymentState(ctx, o.ID, domain.PayCompleted))
	_, err = f.payments.CreateIntent(ctx, "u1", o.ID)
	assert.ErrorIs(t, err, usecase.ErrConflict("order already paid"))
}

func TestWebhook_SucceededThenReplay(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, "u1")
	_, err := f.payments.CreateIntent(ctx, "u1", o.ID)
	require.NoError(t, err)

	body, sig := signedEvent("evt_1", "payment_intent.succeeded", intentObject("pi_1"))
	require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))

	got, _ := f.store.GetOrder(ctx, o.ID)
	assert.Equal(t, domain.OrderConfirmed, got.Status)
	assert.Equal(t, domain.PayCompleted, got.PaymentStatus)
	p, _ := f.store.GetPaymentByIntent(ctx, "pi_1")
	assert.Equal(t, domain.PaymentCompleted, p.Status)
	assert.NotNil(t, p.ProcessedAt)
	assert.Equal(t, 1, f.countNotifications("u1"))

	// Replaying the exact same delivery is a no-op: state unchanged,
	// no second notification.
	require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))
	got, _ = f.store.GetOrder(ctx, o.ID)
	assert.Equal(t, domain.OrderConfirmed, got.Status)
	assert.Equal(t, domain.PayCompleted, got.PaymentStatus)
	assert.Equal(t, 1, f.countNotifications("u1"))
}

func TestWebhook_StaleFailureAfterSuccessIsIgnored(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, "u1")
	_, err := f.payments.CreateIntent(ctx, "u1", o.ID)
	require.NoError(t, err)

	body, sig := signedEvent("evt_1", "payment_intent.succeeded", intentObject("pi_1"))
	require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))

	// An out-of-order failure must not move the payment backward.
	body, sig = signedEvent("evt_2", "payment_intent.payment_failed", intentObject("pi_1"))
	require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))

	p, _ := f.store.GetPaymentByIntent(ctx, "pi_1")
	assert.Equal(t, domain.PaymentCompleted, p.Status)
	got, _ := f.store.GetOrder(ctx, o.ID)
	assert.Equal(t, domain.PayCompleted, got.PaymentStatus)
	assert.Equal(t, 1, f.countNotifications("u1"))
}

func TestWebhook_SucceededAfterFailedDoesNotConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, "u1")
	_, err := f.payments.CreateIntent(ctx, "u1", o.ID)
	require.NoError(t, err)

	body, sig := signedEvent("evt_1", "payment_intent.payment_failed", intentObject("pi_1"))
	require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))

	// The gateway's card-retry sequence can emit a success for an intent
	// that already failed locally; it must not confirm the order or move
	// its payment axis.
	body, sig = signedEvent("evt_2", "payment_intent.succeeded", intentObject("pi_1"))
	require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))

	p, _ := f.store.GetPaymentByIntent(ctx, "pi_1")
	assert.Equal(t, domain.PaymentFailed, p.Status)
	got, _ := f.store.GetOrder(ctx, o.ID)
	assert.Equal(t, domain.OrderPending, got.Status)
	assert.Equal(t, domain.PayFailed, got.PaymentStatus)
	assert.Equal(t, 1, f.countNotifications("u1"))

	// Same for a late cancellation: an event that lost the payment race
	// does not cancel the order.
	body, sig = signedEvent("evt_3", "payment_intent.canceled", intentObject("pi_1"))
	require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))
	got, _ = f.store.GetOrder(ctx, o.ID)
	assert.Equal(t, domain.OrderPending, got.Status)
	assert.Equal(t, domain.PayFailed, got.PaymentStatus)
}

func TestWebhook_NotificationConvergesAfterCrashMidApply(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, "u1")
	_, err := f.payments.CreateIntent(ctx, "u1", o.ID)
	require.NoError(t, err)

	ledger := &flakyEventLedger{MemoryStore: f.store, failures: 1}
	f.payments.Payments = ledger

	// The first delivery applies the payment transition but dies before
	// the notification is written; the gateway redelivers.
	body, sig := signedEvent("evt_1", "payment_intent.succeeded", intentObject("pi_1"))
	err = f.payments.HandleWebhook(ctx, body, sig)
	assert.IsType(t, usecase.ErrUnavailable(""), err)
	assert.Equal(t, 0, f.countNotifications("u1"))

	require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))
	got, _ := f.store.GetOrder(ctx, o.ID)
	assert.Equal(t, domain.OrderConfirmed, got.Status)
	assert.Equal(t, domain.PayCompleted, got.PaymentStatus)
	assert.Equal(t, 1, f.countNotifications("u1"))

	// A further replay stays a no-op.
	require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))
	assert.Equal(t, 1, f.countNotifications("u1"))
}

func TestWebhook_Failed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, "u1")
	_, err := f.payments.CreateIntent(ctx, "u1", o.ID)
	require.NoError(t, err)

	obj := `{"id":"pi_1","amount":4318,"currency":"usd","last_payment_error":{"message":"card declined"}}`
	body, sig := signedEvent("evt_1", "payment_intent.payment_failed", obj)
	require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))

	p, _ := f.store.GetPaymentByIntent(ctx, "pi_1")
	assert.Equal(t, domain.PaymentFailed, p.Status)
	got, _ := f.store.GetOrder(ctx, o.ID)
	// Fulfillment status is unchanged on failure; only the payment axis moves.
	assert.Equal(t, domain.OrderPending, got.Status)
	assert.Equal(t, domain.PayFailed, got.PaymentStatus)
	assert.Equal(t, 1, f.countNotifications("u1"))

	notifs, _ := f.store.ListNotifications(ctx, "u1", usecase.NotificationFilter{Page: 1, PageSize: 10})
	assert.Equal(t, domain.NotifyPaymentFailed, notifs[0].Type)
	assert.True(t, strings.Contains(notifs[0].Message, "card declined"))
}

func TestWebhook_Cancelled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, "u1")
	_, err := f.payments.CreateIntent(ctx, "u1", o.ID)
	require.NoError(t, err)

	body, sig := signedEvent("evt_1", "payment_intent.canceled", intentObject("pi_1"))
	require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))

	p, _ := f.store.GetPaymentByIntent(ctx, "pi_1")
	assert.Equal(t, domain.PaymentCancelled, p.Status)
	got, _ := f.store.GetOrder(ctx, o.ID)
	assert.Equal(t, domain.OrderCancelled, got.Status)
	assert.Equal(t, domain.PayCancelled, got.PaymentStatus)
	// Cancellation produces no user notification.
	assert.Equal(t, 0, f.countNotifications("u1"))
}

func TestWebhook_DisputeDeduplicatedByEventID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, "u1")
	_, err := f.payments.CreateIntent(ctx, "u1", o.ID)
	require.NoError(t, err)

	obj := `{"id":"dp_1","payment_intent":"pi_1","reason":"fraudulent","amount":4318}`
	body, sig := signedEvent("evt_1", "charge.dispute.created", obj)
	require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))
	require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))

	// One admin alert; payment and order untouched.
	assert.Equal(t, 1, f.countNotifications("admin"))
	p, _ := f.store.GetPaymentByIntent(ctx, "pi_1")
	assert.Equal(t, domain.PaymentPending, p.Status)
	got, _ := f.store.GetOrder(ctx, o.ID)
	assert.Equal(t, domain.OrderPending, got.Status)
}

func TestWebhook_UnrecognizedAndUnmatchedAreAcknowledged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	body, sig := signedEvent("evt_1", "customer.created", `{"id":"cus_9"}`)
	assert.NoError(t, f.payments.HandleWebhook(ctx, body, sig))

	// Recognized type, but no local payment for the intent.
	body, sig = signedEvent("evt_2", "payment_intent.succeeded", intentObject("pi_other_env"))
	assert.NoError(t, f.payments.HandleWebhook(ctx, body, sig))
}

func TestWebhook_BadSignatureRejectedBeforeParsing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, "u1")
	_, err := f.payments.CreateIntent(ctx, "u1", o.ID)
	require.NoError(t, err)

	body, sig := signedEvent("evt_1", "payment_intent.succeeded", intentObject("pi_1"))

	tampered := []byte(strings.Replace(string(body), "4318", "1", 1))
	err = f.payments.HandleWebhook(ctx, tampered, sig)
	assert.IsType(t, usecase.ErrIntegrity(""), err)

	err = f.payments.HandleWebhook(ctx, body, "")
	assert.IsType(t, usecase.ErrIntegrity(""), err)

	// Zero rows mutated, zero notifications created.
	p, _ := f.store.GetPaymentByIntent(ctx, "pi_1")
	assert.Equal(t, domain.PaymentPending, p.Status)
	got, _ := f.store.GetOrder(ctx, o.ID)
	assert.Equal(t, domain.OrderPending, got.Status)
	assert.Equal(t, 0, f.countNotifications("u1"))
}

func TestWebhook_StoreFailureSurfacesForRedelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.createOrder(t, "u1")
	_, err := f.payments.CreateIntent(ctx, "u1", o.ID)
	require.NoError(t, err)

	failing := &failingPaymentRepo{MemoryStore: f.store, fail: true}
	f.payments.Payments = failing

	body, sig := signedEvent("evt_1", "payment_intent.succeeded", intentObject("pi_1"))
	err = f.payments.HandleWebhook(ctx, body, sig)
	assert.IsType(t, usecase.ErrUnavailable(""), err)

	// Redelivery after the outage converges to the final state.
	failing.fail = false
	require.NoError(t, f.payments.HandleWebhook(ctx, body, sig))
	got, _ := f.store.GetOrder(ctx, o.ID)
	assert.Equal(t, domain.OrderConfirmed, got.Status)
	assert.Equal(t, 1, f.countNotifications("u1"))
}

type flakyEventLedger struct {
	*repo.MemoryStore
	failures int
}

func (f *flakyEventLedger) RecordEvent(ctx context.Context, eventID, eventType string) (bool, error) {
	if f.failures > 0 {
		f.failures--
		return false, errors.New("store down")
	}
	return f.MemoryStore.RecordEvent(ctx, eventID, eventType)
}

type failingPaymentRepo struct {
	*repo.MemoryStore
	fail bool
}

func (f *failingPaymentRepo) TransitionPayment(ctx context.Context, intentID string, from []domain.PaymentStatus, to domain.PaymentStatus, resp string) (bool, error) {
	if f.fail {
		return false, errors.New("store down")
	}
	return f.MemoryStore.TransitionPayment(ctx, intentID, from, to, resp)
}
