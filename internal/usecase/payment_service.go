package usecase

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"storefront-backend/internal/domain"
	"storefront-backend/internal/infrastructure/gateway"
)

type PaymentRepo interface {
	CreatePayment(ctx context.Context, p *domain.Payment) error
	GetPaymentByIntent(ctx context.Context, intentID string) (*domain.Payment, bool)
	// TransitionPayment applies to→status only when the current status
	// is one of from, atomically. The returned flag reports whether the
	// update applied; false means another delivery already won.
	TransitionPayment(ctx context.Context, intentID string, from []domain.PaymentStatus, to domain.PaymentStatus, providerResponse string) (bool, error)
	// RecordEvent inserts the gateway event id into the idempotency
	// ledger; false means the event was seen before.
	RecordEvent(ctx context.Context, eventID, eventType string) (bool, error)
}

type UserRepo interface {
	GetUser(ctx context.Context, id string) (*domain.User, bool)
	PutUser(ctx context.Context, u *domain.User) error
}

type PaymentGateway interface {
	CreateCustomer(ctx context.Context, email, name string) (*gateway.Customer, error)
	CreateIntent(ctx context.Context, req gateway.IntentRequest) (*gateway.Intent, error)
}

type IntentResult struct {
	PaymentID    string `json:"paymentId"`
	ClientSecret string `json:"clientSecret"`
	AmountCents  int64  `json:"amountCents"`
	Currency     string `json:"currency"`
}

type PaymentService struct {
	Orders        OrderRepo
	Payments      PaymentRepo
	Users         UserRepo
	Gateway       PaymentGateway
	Notifications *NotificationService

	WebhookSecret    string
	WebhookTolerance time.Duration
	// AdminUserID receives dispute alerts.
	AdminUserID string
}

// CreateIntent reserves a charge at the gateway for the order total and
// persists the local Payment row correlated by the gateway intent id.
// Nothing is marked paid here; that happens in HandleWebhook.
func (s *PaymentService) CreateIntent(ctx context.Context, userID, orderID string) (*IntentResult, error) {
	o, ok := s.Orders.GetOrder(ctx, orderID)
	if !ok || o.UserID != userID {
		return nil, ErrNotFound("order")
	}
	if o.PaymentStatus == domain.PayCompleted {
		return nil, ErrConflict("order already paid")
	}

	// Customer resolution is best-effort: the intent can be created
	// without a customer association.
	customerID := s.resolveCustomer(ctx, userID)

	intent, err := s.Gateway.CreateIntent(ctx, gateway.IntentRequest{
		OrderID:     o.ID,
		AmountCents: o.TotalCents,
		Currency:    o.Currency,
		CustomerID:  customerID,
		Description: "order " + o.OrderNumber,
	})
	if err != nil {
		return nil, ErrUnavailable("payment gateway unavailable")
	}

	now := time.Now().UTC()
	p := &domain.Payment{
		ID:           uuid.NewString(),
		OrderID:      o.ID,
		UserID:       userID,
		AmountCents:  o.TotalCents,
		Currency:     o.Currency,
		Status:       domain.PaymentPending,
		IntentID:     intent.ID,
		ClientSecret: intent.ClientSecret,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.Payments.CreatePayment(ctx, p); err != nil {
		return nil, ErrUnavailable("payment store unavailable")
	}
	return &IntentResult{
		PaymentID:    p.ID,
		ClientSecret: intent.ClientSecret,
		AmountCents:  p.AmountCents,
		Currency:     p.Currency,
	}, nil
}

func (s *PaymentService) resolveCustomer(ctx context.Context, userID string) string {
	u, ok := s.Users.GetUser(ctx, userID)
	if !ok {
		return ""
	}
	if u.GatewayCustomerID != "" {
		return u.GatewayCustomerID
	}
	cust, err := s.Gateway.CreateCustomer(ctx, u.Email, u.Name)
	if err != nil {
		log.Printf("gateway customer resolution failed for user %s: %v", userID, err)
		return ""
	}
	u.GatewayCustomerID = cust.ID
	u.UpdatedAt = time.Now().UTC()
	if err := s.Users.PutUser(ctx, u); err != nil {
		log.Printf("persisting gateway customer id for user %s failed: %v", userID, err)
	}
	return cust.ID
}

// HandleWebhook verifies, decodes and applies one gateway event. The
// contract with the gateway is at-least-once, possibly out-of-order
// delivery: every branch below must be safe to re-run. A non-nil error
// tells the gateway to redeliver.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, sigHeader string) error {
	if err := gateway.VerifySignature([]byte(s.WebhookSecret), sigHeader, body, s.WebhookTolerance, time.Now()); err != nil {
		return ErrIntegrity("webhook signature invalid")
	}
	ev, err := gateway.ParseEvent(body)
	if err != nil {
		return ErrBadRequest("malformed webhook event")
	}

	switch ev.Type {
	case gateway.EventPaymentSucceeded:
		return s.applyIntentOutcome(ctx, ev, domain.PaymentCompleted, string(body))
	case gateway.EventPaymentFailed:
		return s.applyIntentOutcome(ctx, ev, domain.PaymentFailed, string(body))
	case gateway.EventPaymentCanceled:
		return s.applyIntentOutcome(ctx, ev, domain.PaymentCancelled, string(body))
	case gateway.EventChargeDisputed:
		return s.applyDispute(ctx, ev)
	default:
		// Unrecognized events are acknowledged so the gateway does not
		// retry forever over events this system doesn't model.
		log.Printf("webhook: ignoring unrecognized event type %q (%s)", ev.RawType, ev.ID)
		return nil
	}
}

// applyIntentOutcome runs one row of the transition table: update
// Payment, then Order, then create the Notification. The conditional
// payment transition is the idempotency gate. When it does not apply,
// the order steps run only if the payment row already holds this
// event's outcome — that re-runs a crashed delivery to convergence,
// while an event that lost the race to a different terminal state
// changes nothing.
func (s *PaymentService) applyIntentOutcome(ctx context.Context, ev gateway.Event, to domain.PaymentStatus, raw string) error {
	p, ok := s.Payments.GetPaymentByIntent(ctx, ev.Intent.IntentID)
	if !ok {
		log.Printf("webhook: no payment for intent %s, dropping event %s", ev.Intent.IntentID, ev.ID)
		return nil
	}

	applied, err := s.Payments.TransitionPayment(ctx, ev.Intent.IntentID,
		[]domain.PaymentStatus{domain.PaymentPending, domain.PaymentProcessing}, to, raw)
	if err != nil {
		return ErrUnavailable("payment store unavailable")
	}
	if !applied {
		cur, ok := s.Payments.GetPaymentByIntent(ctx, ev.Intent.IntentID)
		if !ok || cur.Status != to {
			return nil
		}
	}

	o, ok := s.Orders.GetOrder(ctx, p.OrderID)
	if !ok {
		log.Printf("webhook: payment %s references missing order %s", p.ID, p.OrderID)
		return nil
	}

	// Order updates are idempotent and re-run on redelivery so a crash
	// between steps converges to the same end state.
	switch to {
	case domain.PaymentCompleted:
		if o.Status == domain.OrderPending {
			if err := s.Orders.UpdateOrderStatus(ctx, o.ID, domain.OrderConfirmed); err != nil {
				return ErrUnavailable("order store unavailable")
			}
		}
		if err := s.setOrderPaymentState(ctx, o, domain.PayCompleted); err != nil {
			return err
		}
		return s.notifyOnce(ctx, ev, o, domain.NotifyPaymentSuccess,
			"Payment received",
			"Payment for order "+o.OrderNumber+" was successful.")
	case domain.PaymentFailed:
		if err := s.setOrderPaymentState(ctx, o, domain.PayFailed); err != nil {
			return err
		}
		msg := "Payment for order " + o.OrderNumber + " failed."
		if ev.Intent.FailureMessage != "" {
			msg += " " + ev.Intent.FailureMessage
		}
		return s.notifyOnce(ctx, ev, o, domain.NotifyPaymentFailed, "Payment failed", msg)
	case domain.PaymentCancelled:
		if o.Status.CanTransitionTo(domain.OrderCancelled) && o.PaymentStatus != domain.PayCompleted {
			if err := s.Orders.UpdateOrderStatus(ctx, o.ID, domain.OrderCancelled); err != nil {
				return ErrUnavailable("order store unavailable")
			}
		}
		if err := s.setOrderPaymentState(ctx, o, domain.PayCancelled); err != nil {
			return err
		}
	}
	return nil
}

// notifyOnce creates the owner notification at most once per gateway
// event, keyed on the event ledger. A crash between the payment
// transition and this step still produces the notification when the
// gateway redelivers.
func (s *PaymentService) notifyOnce(ctx context.Context, ev gateway.Event, o *domain.Order, t domain.NotificationType, title, msg string) error {
	fresh, err := s.Payments.RecordEvent(ctx, ev.ID, string(ev.Type))
	if err != nil {
		return ErrUnavailable("payment store unavailable")
	}
	if !fresh {
		return nil
	}
	return s.notifyOwner(ctx, o, t, title, msg)
}

// setOrderPaymentState never moves the order's payment axis backward
// out of completed; a stale failure delivered after success is ignored.
func (s *PaymentService) setOrderPaymentState(ctx context.Context, o *domain.Order, ps domain.PaymentState) error {
	if o.PaymentStatus == ps {
		return nil
	}
	if o.PaymentStatus == domain.PayCompleted && ps != domain.PayRefunded {
		return nil
	}
	if err := s.Orders.UpdateOrderPaymentState(ctx, o.ID, ps); err != nil {
		return ErrUnavailable("order store unavailable")
	}
	o.PaymentStatus = ps
	return nil
}

// applyDispute leaves payment and order untouched and raises an
// admin-facing alert, deduplicated through the event ledger.
func (s *PaymentService) applyDispute(ctx context.Context, ev gateway.Event) error {
	p, ok := s.Payments.GetPaymentByIntent(ctx, ev.Dispute.IntentID)
	if !ok {
		log.Printf("webhook: dispute %s for unknown intent %s, dropping", ev.Dispute.DisputeID, ev.Dispute.IntentID)
		return nil
	}
	fresh, err := s.Payments.RecordEvent(ctx, ev.ID, string(ev.Type))
	if err != nil {
		return ErrUnavailable("payment store unavailable")
	}
	if !fresh {
		return nil
	}
	return s.Notifications.Create(ctx, &domain.Notification{
		UserID:  s.AdminUserID,
		Type:    domain.NotifyDisputeAlert,
		Title:   "Charge disputed",
		Message: "A charge on order payment " + p.ID + " was disputed (" + ev.Dispute.Reason + ").",
		Payload: map[string]any{
			"disputeId": ev.Dispute.DisputeID,
			"intentId":  ev.Dispute.IntentID,
			"paymentId": p.ID,
			"orderId":   p.OrderID,
			"reason":    ev.Dispute.Reason,
		},
	})
}

func (s *PaymentService) notifyOwner(ctx context.Context, o *domain.Order, t domain.NotificationType, title, msg string) error {
	return s.Notifications.Create(ctx, &domain.Notification{
		UserID:  o.UserID,
		Type:    t,
		Title:   title,
		Message: msg,
		Payload: map[string]any{
			"orderId":     o.ID,
			"orderNumber": o.OrderNumber,
			"totalCents":  o.TotalCents,
			"currency":    o.Currency,
		},
	})
}
