package websocket

import (
	"encoding/hex"
	"time"

	"github.com/KevinKickass/OpenControllerCore/internal/messaging"
	"github.com/KevinKickass/OpenControllerCore/internal/midi"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	// Bus events published by the control loop
	MessageTypeEvent MessageType = "event"

	// Raw MIDI written to the transport
	MessageTypeMIDIOut MessageType = "midi_out"

	// Client to server: raw MIDI injected into the transport
	MessageTypeMIDIIn MessageType = "midi_in"

	// Client to server: authentication, must be first when auth is required
	MessageTypeAuth MessageType = "auth"

	MessageTypeAuthSuccess MessageType = "auth_success"
	MessageTypeAuthFailed  MessageType = "auth_failed"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// EventData is the JSON form of a bus event.
type EventData struct {
	Category       string `json:"category"`
	SystemMessage  string `json:"system_message,omitempty"`
	Message        string `json:"message,omitempty"`
	ComponentIndex uint16 `json:"component_index"`
	Channel        uint8  `json:"channel,omitempty"`
	Index          uint16 `json:"index"`
	Value          uint16 `json:"value"`
	ForcedRefresh  bool   `json:"forced_refresh,omitempty"`
	SysEx          string `json:"sysex,omitempty"`
}

// MIDIData carries raw MIDI bytes as hex.
type MIDIData struct {
	Bytes string `json:"bytes"`
}

// clientMessage is an inbound client frame.
type clientMessage struct {
	Type  MessageType `json:"type"`
	Token string      `json:"token,omitempty"`
	Bytes string      `json:"bytes,omitempty"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewEventMessage copies a bus event. SysEx is copied since the event only
// borrows it.
func NewEventMessage(category messaging.EventType, e messaging.Event) Message {
	data := EventData{
		Category:       category.String(),
		ComponentIndex: e.ComponentIndex,
		Channel:        e.Channel,
		Index:          e.Index,
		Value:          e.Value,
		ForcedRefresh:  e.ForcedRefresh,
	}
	if category == messaging.EventTypeSystem {
		data.SystemMessage = e.SystemMessage.String()
	}
	if e.Message != midi.MessageInvalid {
		data.Message = e.Message.String()
	}
	if len(e.SysEx) > 0 {
		data.SysEx = hex.EncodeToString(e.SysEx)
	}
	return NewMessage(MessageTypeEvent, data)
}

func NewMIDIOutMessage(raw []byte) Message {
	return NewMessage(MessageTypeMIDIOut, MIDIData{Bytes: hex.EncodeToString(raw)})
}
