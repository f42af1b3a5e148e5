package server

import (
	"encoding/json"
	"time"
)

// MessageType names a websocket message.
type MessageType string

const (
	MessageTypeState MessageType = "state"
	MessageTypeError MessageType = "error"
)

// Message represents the base WebSocket message structure
type Message struct {
	Type      MessageType     `json:"type"`
	GameID    string          `json:"game_id"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a new message stamped with now.
func NewMessage(messageType MessageType, gameID string, data any, now time.Time) (*Message, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:      messageType,
		GameID:    gameID,
		Data:      dataBytes,
		Timestamp: now,
	}, nil
}

// ErrorData is the payload of an error message and of HTTP error bodies.
type ErrorData struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}
