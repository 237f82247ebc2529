package types

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Message is the unit of queue work: a task name that must resolve in the
// handler registry at dispatch time, a Measurement payload, a retry
// count, and an optional ETA before which the message is ineligible for
// lease.
type Message struct {
	ID      uuid.UUID
	Task    string
	Blob    Measurement
	Retries int
	ETA     *time.Time
}

// Row is the persisted shape of one queue/deadletter table row, as
// returned by a SELECT and consumed by an INSERT. Fetched/Acked/ETA are
// nullable millisecond timestamps; a nil pointer means NULL at the SQL
// layer.
type Row struct {
	ID            string
	Task          string
	Enqueued      int64
	FirstEnqueued int64
	Fetched       *int64
	Acked         *int64
	Blob          string
	Retries       int
	ETA           *int64
}

// Serialize renders the Message the way it is persisted: a hex-string id,
// the task name, the measurement blob JSON-encoded, the retry count, and
// the ETA as a millisecond timestamp (nil if unset).
func (m Message) Serialize() (map[string]any, error) {
	blob, err := json.Marshal(m.Blob)
	if err != nil {
		return nil, fmt.Errorf("vpf730: marshal measurement: %w", err)
	}

	out := map[string]any{
		"id":      strings.ReplaceAll(m.ID.String(), "-", ""),
		"task":    m.Task,
		"blob":    string(blob),
		"retries": m.Retries,
	}
	if m.ETA != nil {
		out["eta"] = m.ETA.UnixMilli()
	} else {
		out["eta"] = nil
	}
	return out, nil
}

// FromRow is the exact inverse of the row shape a SELECT against queue or
// deadletter produces: (id hex, task, blob JSON, retries, eta millis).
func FromRow(row Row) (Message, error) {
	id, err := uuid.Parse(row.ID)
	if err != nil {
		return Message{}, fmt.Errorf("vpf730: parse message id %q: %w", row.ID, err)
	}

	var blob Measurement
	if err := json.Unmarshal([]byte(row.Blob), &blob); err != nil {
		return Message{}, fmt.Errorf("vpf730: unmarshal measurement blob: %w", err)
	}

	msg := Message{
		ID:      id,
		Task:    row.Task,
		Blob:    blob,
		Retries: row.Retries,
	}
	if row.ETA != nil {
		t := time.UnixMilli(*row.ETA).UTC()
		msg.ETA = &t
	}
	return msg, nil
}

// NewMessage builds a Message with a freshly generated id.
func NewMessage(task string, blob Measurement) Message {
	return Message{ID: uuid.New(), Task: task, Blob: blob}
}
