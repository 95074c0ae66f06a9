package gateway

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventPaymentSucceeded EventType = "payment_intent.succeeded"
	EventPaymentFailed    EventType = "payment_intent.payment_failed"
	EventPaymentCanceled  EventType = "payment_intent.canceled"
	EventChargeDisputed   EventType = "charge.dispute.created"
	EventUnknown          EventType = "unknown"
)

// Event is the decoded webhook payload, a tagged union over the event
// types this system models. Anything else decodes to EventUnknown and
// is acknowledged without processing.
type Event struct {
	ID      string
	Type    EventType
	RawType string
	Intent  IntentEvent
	Dispute DisputeEvent
}

type IntentEvent struct {
	IntentID       string
	AmountCents    int64
	Currency       string
	FailureMessage string
}

type DisputeEvent struct {
	DisputeID   string
	IntentID    string
	Reason      string
	AmountCents int64
}

type eventEnvelope struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

type intentObject struct {
	ID               string `json:"id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	LastPaymentError struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

type disputeObject struct {
	ID            string `json:"id"`
	PaymentIntent string `json:"payment_intent"`
	Reason        string `json:"reason"`
	Amount        int64  `json:"amount"`
}

// ParseEvent decodes a verified webhook body. It is only called after
// the signature check has passed.
func ParseEvent(body []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return Event{}, fmt.Errorf("malformed event body: %w", err)
	}
	if env.ID == "" {
		return Event{}, fmt.Errorf("event id missing")
	}
	ev := Event{ID: env.ID, RawType: env.Type, Type: EventUnknown}
	switch EventType(env.Type) {
	case EventPaymentSucceeded, EventPaymentFailed, EventPaymentCanceled:
		var obj intentObject
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
			return Event{}, fmt.Errorf("malformed intent object: %w", err)
		}
		if obj.ID == "" {
			return Event{}, fmt.Errorf("intent id missing")
		}
		ev.Type = EventType(env.Type)
		ev.Intent = IntentEvent{
			IntentID:       obj.ID,
			AmountCents:    obj.Amount,
			Currency:       obj.Currency,
			FailureMessage: obj.LastPaymentError.Message,
		}
	case EventChargeDisputed:
		var obj disputeObject
		if err := json.Unmarshal(env.Data.Object, &obj); err != nil {
			return Event{}, fmt.Errorf("malformed dispute object: %w", err)
		}
		if obj.PaymentIntent == "" {
			return Event{}, fmt.Errorf("dispute payment intent missing")
		}
		ev.Type = EventChargeDisputed
		ev.Dispute = DisputeEvent{
			DisputeID:   obj.ID,
			IntentID:    obj.PaymentIntent,
			Reason:      obj.Reason,
			AmountCents: obj.Amount,
		}
	}
	return ev, nil
}
