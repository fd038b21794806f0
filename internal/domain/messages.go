package domain

import (
	"encoding/json"
	"fmt"
)

// WebSocket events from client.
const (
	EventJoin  = "join"
	EventText  = "text"
	EventLeave = "leave"
)

// WebSocket events to client.
const (
	EventMessage = "message"
	EventError   = "error"
)

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeUnknownEvent  = "UNKNOWN_EVENT"
	ErrCodeNotInRoom     = "NOT_IN_ROOM"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// InboundEnvelope wraps every client message: {"event": ..., "data": {...}}.
type InboundEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Client -> Server payloads

type JoinData struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

type TextData struct {
	Message  string `json:"message"`
	Room     string `json:"room"`
	Username string `json:"username"`
}

type LeaveData struct {
	Room     string `json:"room"`
	Username string `json:"username"`
}

// Server -> Client

type OutboundEnvelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// ChatMessage is the payload of a "message" event.
type ChatMessage struct {
	Username string `json:"username"`
	Message  string `json:"message"`
	Room     string `json:"room,omitempty"`
}

type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessageEnvelope builds an outbound "message" event.
func NewMessageEnvelope(room, username, message string) *OutboundEnvelope {
	return &OutboundEnvelope{
		Event: EventMessage,
		Data:  ChatMessage{Username: username, Message: message, Room: room},
	}
}

func NewErrorEnvelope(code, message string) *OutboundEnvelope {
	return &OutboundEnvelope{
		Event: EventError,
		Data:  ErrorData{Code: code, Message: message},
	}
}

// JoinAnnouncement is the system text sent when someone joins a room.
func JoinAnnouncement(displayName string) string {
	return fmt.Sprintf("%s has joined the room.", displayName)
}

// LeaveAnnouncement is the system text sent when someone leaves a room.
func LeaveAnnouncement(displayName string) string {
	return fmt.Sprintf("%s has left the room.", displayName)
}

// BrokerBody formats a chat message for the group's broadcast channel.
func BrokerBody(displayName, body string) []byte {
	return []byte(fmt.Sprintf("%s: %s", displayName, body))
}
