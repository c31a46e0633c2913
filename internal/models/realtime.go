package models

import (
	"encoding/json"
	"time"
)

// Tables that publish change events.
const (
	TableMessages      = "messages"
	TableConversations = "conversations"
	TableNotifications = "notifications"
)

// ChangeType is the kind of committed write an event describes.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is delivered on a live stream after a write commits.
type ChangeEvent struct {
	Topic       string          `json:"topic"`
	Table       string          `json:"table"`
	Type        ChangeType      `json:"type"`
	RecordID    string          `json:"record_id"`
	Record      json.RawMessage `json:"record,omitempty"`
	CommittedAt time.Time       `json:"committed_at"`
}

// NewChangeEvent snapshots record as JSON. Topic is filled in by the publisher.
func NewChangeEvent(table string, typ ChangeType, recordID string, record interface{}) (ChangeEvent, error) {
	ev := ChangeEvent{
		Table:       table,
		Type:        typ,
		RecordID:    recordID,
		CommittedAt: time.Now().UTC(),
	}
	if record != nil {
		raw, err := json.Marshal(record)
		if err != nil {
			return ChangeEvent{}, err
		}
		ev.Record = raw
	}
	return ev, nil
}

// Decode unmarshals the record snapshot into v.
func (e ChangeEvent) Decode(v interface{}) error {
	return json.Unmarshal(e.Record, v)
}
