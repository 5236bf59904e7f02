// Package mqtt carries remote-control commands in and bridge state out over
// MQTT, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/pfir-bridge/internal/pfir"
)

// DefaultPrefix is the topic prefix used when none is configured.
const DefaultPrefix = "lego/pf/ir"

// CommandTopic is where remote controls publish commands.
func CommandTopic(prefix string) string { return prefix + "/command" }

// StateTopic is where channel state is published after each command.
func StateTopic(prefix string) string { return prefix + "/state" }

// SystemTopic is where lifecycle events are published.
func SystemTopic(prefix string) string { return prefix + "/system" }

// Handler receives the raw payload of each command message.
// It is called from the MQTT client's goroutine.
type Handler func(payload []byte)

// Publisher publishes bridge events to MQTT.
type Publisher interface {
	// PublishState sends a channel state event to the broker.
	// Returns error if publishing fails (should not crash the process).
	PublishState(event StateEvent) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// StateEvent reports a channel's cached state after a command was applied.
type StateEvent struct {
	Timestamp time.Time
	Channel   uint8
	State     pfir.ChannelState
	Command   pfir.Command
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT", "OFFLINE"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// StatePayload is the MQTT payload for a state event.
type StatePayload struct {
	State StatePayloadInner `json:"state"`
}

// StatePayloadInner contains the channel details.
type StatePayloadInner struct {
	Timestamp string `json:"timestamp"`
	Channel   uint8  `json:"channel"`
	A         uint8  `json:"a"`
	B         uint8  `json:"b"`
	Mode      string `json:"mode"`
	Port      string `json:"port"`
	Value     uint8  `json:"value"`
}

// FormatStatePayload creates the JSON payload for a state event.
func FormatStatePayload(event StateEvent) ([]byte, error) {
	payload := StatePayload{
		State: StatePayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Channel:   event.Channel,
			A:         event.State.A,
			B:         event.State.B,
			Mode:      event.State.Mode.String(),
			Port:      event.Command.Port.String(),
			Value:     event.Command.Value,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}
