package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"tally/internal/core"
)

// SnapshotMessage carries a full document to be written by the worker.
// Revision orders snapshots; a consumer ignores anything older than what it
// has already written.
type SnapshotMessage struct {
	Revision  int64         `json:"revision"`
	Timestamp time.Time     `json:"timestamp"`
	Document  core.Document `json:"document"`
}

func NewSnapshotMessage(revision int64, doc core.Document) *SnapshotMessage {
	return &SnapshotMessage{
		Revision:  revision,
		Timestamp: time.Now(),
		Document:  doc,
	}
}

// ToJSON converts the message to JSON bytes
func (m *SnapshotMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// SnapshotMessageFromJSON decodes a message. A message without a revision
// is rejected so it cannot be mistaken for the oldest snapshot.
func SnapshotMessageFromJSON(data []byte) (*SnapshotMessage, error) {
	var msg SnapshotMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Revision <= 0 {
		return nil, fmt.Errorf("snapshot message missing revision")
	}
	return &msg, nil
}
