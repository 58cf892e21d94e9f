package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"gagyebu/internal/core"
	"gagyebu/internal/notify"
)

// ErrBadMessage marks a delivery that can never be processed. It is rejected without requeue.
var ErrBadMessage = errors.New("bad record change message")

// RecordChange tells consumers that a record (or a reference list) changed.
// It only carries the id and date; consumers fetch the current state from the record API.
type RecordChange struct {
	EventID   string    `json:"event_id"`
	Kind      string    `json:"kind"`
	RecordID  int64     `json:"record_id,omitempty"`
	Date      string    `json:"date,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewRecordChange builds a message for ev with a fresh event id.
func NewRecordChange(ev notify.Event) *RecordChange {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return &RecordChange{
		EventID:   uuid.NewString(),
		Kind:      ev.Kind,
		RecordID:  ev.RecordID,
		Date:      ev.Date,
		Timestamp: at.UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *RecordChange) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// Month returns the calendar month the change falls in.
func (m *RecordChange) Month() (core.DateRange, error) {
	return core.MonthOf(m.Date)
}

// RecordChangeFromJSON decodes and checks a message body.
func RecordChangeFromJSON(data []byte) (*RecordChange, error) {
	var msg RecordChange
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if _, err := uuid.Parse(msg.EventID); err != nil {
		return nil, fmt.Errorf("%w: event_id %q", ErrBadMessage, msg.EventID)
	}
	switch msg.Kind {
	case notify.KindCreated, notify.KindUpdated, notify.KindDeleted, notify.KindReloaded, notify.KindReferences:
	default:
		return nil, fmt.Errorf("%w: kind %q", ErrBadMessage, msg.Kind)
	}
	if msg.Date != "" && !core.ValidDate(msg.Date) {
		return nil, fmt.Errorf("%w: date %q", ErrBadMessage, msg.Date)
	}
	return &msg, nil
}
