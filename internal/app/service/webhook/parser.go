package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	EventCaptureRefunded  = "PAYMENT.CAPTURE.REFUNDED"
)

// Event is the subset of a PayPal webhook notification the reconciler acts on.
type Event struct {
	ID         string        `json:"id"`
	EventType  string        `json:"event_type"`
	CreateTime time.Time     `json:"create_time"`
	Resource   EventResource `json:"resource"`
}

// EventResource is the capture object carried by the notification. For capture
// events the gateway order id lives under supplementary_data, not at the top
// level.
type EventResource struct {
	ID                string             `json:"id"`
	Status            string             `json:"status"`
	CustomID          string             `json:"custom_id"`
	Amount            *EventAmount       `json:"amount"`
	SupplementaryData *SupplementaryData `json:"supplementary_data"`
}

type EventAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type SupplementaryData struct {
	RelatedIDs *RelatedIDs `json:"related_ids"`
}

type RelatedIDs struct {
	OrderID string `json:"order_id"`
}

func parseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if ev.ID == "" || ev.EventType == "" {
		return nil, fmt.Errorf("%w: missing id or event_type", ErrBadPayload)
	}
	return &ev, nil
}

// gatewayOrderID extracts the checkout order the capture belongs to.
func (e *Event) gatewayOrderID() string {
	if e.Resource.SupplementaryData != nil && e.Resource.SupplementaryData.RelatedIDs != nil {
		return e.Resource.SupplementaryData.RelatedIDs.OrderID
	}
	return ""
}

// amount returns the captured amount, or an error when the notification does
// not carry one.
func (e *Event) amount() (decimal.Decimal, string, error) {
	if e.Resource.Amount == nil {
		return decimal.Zero, "", fmt.Errorf("%w: missing resource amount", ErrBadPayload)
	}
	d, err := decimal.NewFromString(e.Resource.Amount.Value)
	if err != nil {
		return decimal.Zero, "", fmt.Errorf("%w: bad amount value %q", ErrBadPayload, e.Resource.Amount.Value)
	}
	return d, e.Resource.Amount.CurrencyCode, nil
}

// sanitizedPayload re-serializes only the fields the reconciler cares about.
// Payer details (name, email, address) present in the raw notification never
// reach the database.
func (e *Event) sanitizedPayload() []byte {
	b, _ := json.Marshal(e)
	return b
}
