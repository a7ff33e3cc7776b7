package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Ledger event types, used as the message Type header as well.
const (
	EventExpenseCreated  = "expense.created"
	EventExpenseRemoved  = "expense.removed"
	EventGiftAdded       = "gift.added"
	EventGiftRemoved     = "gift.removed"
	EventSettingsUpdated = "settings.updated"
)

// LedgerEvent announces a committed ledger mutation. Consumers must treat
// delivery as at-least-once and dedupe on ID.
type LedgerEvent struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	EntityID  int64           `json:"entity_id"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewLedgerEvent stamps a fresh event id and time; payload is marshalled as JSON.
func NewLedgerEvent(eventType string, entityID int64, payload any) (*LedgerEvent, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
		}
		raw = b
	}
	return &LedgerEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		EntityID:  entityID,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
	}, nil
}

func (e *LedgerEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func LedgerEventFromJSON(data []byte) (*LedgerEvent, error) {
	var e LedgerEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	if e.ID == "" || e.Type == "" {
		return nil, fmt.Errorf("ledger event missing id or type")
	}
	return &e, nil
}
