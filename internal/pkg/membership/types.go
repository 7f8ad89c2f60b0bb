package membership

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Provider event types handled by this package. Families share a handler:
// created/activated/upgraded grant, canceled/expired revoke.
const (
	EventSubscriptionCreated   = "subscription.created"
	EventSubscriptionActivated = "subscription.activated"
	EventSubscriptionUpgraded  = "subscription.upgraded"
	EventSubscriptionCanceled  = "subscription.canceled"
	EventSubscriptionExpired   = "subscription.expired"
	EventTransactionCompleted  = "transaction.completed"
	EventTransactionRefunded   = "transaction.refunded"
)

// Event is the decoded payload of a queue item, one variant per handler
// family plus Unknown for everything else. Keeping the raw bytes on the
// Unknown variant preserves unrecognized payloads for later inspection.
type Event interface {
	EventType() string
}

// SubscriptionEvent carries the fields of the subscription lifecycle family.
type SubscriptionEvent struct {
	Type            string
	MembershipID    int64
	WordpressUserID int64
	Email           string
	FullName        string
}

func (e *SubscriptionEvent) EventType() string { return e.Type }

// TransactionEvent carries the fields of the transaction family. These are
// audit-logged only for now.
type TransactionEvent struct {
	Type          string
	TransactionID string
	MembershipID  int64
	Email         string
	Amount        string
}

func (e *TransactionEvent) EventType() string { return e.Type }

// UnknownEvent wraps an event type without a registered variant.
type UnknownEvent struct {
	Type string
	Raw  json.RawMessage
}

func (e *UnknownEvent) EventType() string { return e.Type }

// ParseEvent decodes raw payload bytes into the variant matching eventType.
// The provider serializes numeric ids inconsistently (numbers or strings),
// so decoding goes through json.Number.
func ParseEvent(eventType string, raw []byte) (Event, error) {
	switch eventType {
	case EventSubscriptionCreated, EventSubscriptionActivated, EventSubscriptionUpgraded,
		EventSubscriptionCanceled, EventSubscriptionExpired:
		evt, err := parseSubscriptionEvent(eventType, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", eventType, err)
		}
		return evt, nil
	case EventTransactionCompleted, EventTransactionRefunded:
		evt, err := parseTransactionEvent(eventType, raw)
		if err != nil {
			return nil, fmt.Errorf("invalid %s payload: %w", eventType, err)
		}
		return evt, nil
	default:
		return &UnknownEvent{Type: eventType, Raw: append(json.RawMessage(nil), raw...)}, nil
	}
}

func parseSubscriptionEvent(eventType string, raw []byte) (*SubscriptionEvent, error) {
	var p struct {
		MembershipID json.Number `json:"membership_id"`
		UserID       json.Number `json:"user_id"`
		Email        string      `json:"email"`
		FullName     string      `json:"full_name"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}

	return &SubscriptionEvent{
		Type:            eventType,
		MembershipID:    numberToInt64(p.MembershipID),
		WordpressUserID: numberToInt64(p.UserID),
		Email:           strings.TrimSpace(p.Email),
		FullName:        strings.TrimSpace(p.FullName),
	}, nil
}

func parseTransactionEvent(eventType string, raw []byte) (*TransactionEvent, error) {
	var p struct {
		TransactionID json.Number `json:"transaction_id"`
		MembershipID  json.Number `json:"membership_id"`
		Email         string      `json:"email"`
		Amount        json.Number `json:"amount"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, err
	}

	return &TransactionEvent{
		Type:          eventType,
		TransactionID: p.TransactionID.String(),
		MembershipID:  numberToInt64(p.MembershipID),
		Email:         strings.TrimSpace(p.Email),
		Amount:        p.Amount.String(),
	}, nil
}

func numberToInt64(n json.Number) int64 {
	s := strings.TrimSpace(n.String())
	if s == "" {
		return 0
	}
	v, err := n.Int64()
	if err != nil {
		return 0
	}
	return v
}
