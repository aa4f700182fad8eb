package websocket

import (
	"encoding/json"
	"time"
)

// Message types pushed to clients
const (
	TypeConnection        = "connection"
	TypeHeartbeat         = "heartbeat"
	TypeEntityUpdate      = "entity_update"
	TypeIntegrationStatus = "integration_status"
)

// Message is the envelope for every frame sent to clients
type Message struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// NewMessage creates a message stamped with the current time
func NewMessage(msgType string, data interface{}) Message {
	return Message{
		Type:      msgType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}

// ToJSON serializes the message, falling back to an error frame on failure
func (m Message) ToJSON() []byte {
	data, err := json.Marshal(m)
	if err != nil {
		fallback, _ := json.Marshal(Message{
			Type:      "error",
			Data:      map[string]string{"error": "failed to serialize message"},
			Timestamp: time.Now().UTC(),
		})
		return fallback
	}
	return data
}
