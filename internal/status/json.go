package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Channels      []ChannelJSON `json:"channels"`
	LastCommand   string        `json:"last_command,omitempty"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Counts        CountsJSON    `json:"counts"`
	Config        ConfigJSON    `json:"config"`
}

// ChannelJSON is the JSON representation of one channel's cached outputs.
type ChannelJSON struct {
	Channel int    `json:"channel"`
	A       uint8  `json:"a"`
	B       uint8  `json:"b"`
	Mode    string `json:"mode"`
	Toggle  uint8  `json:"toggle"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of Counts.
type CountsJSON struct {
	Received   uint64 `json:"received"`
	Duplicates uint64 `json:"duplicates"`
	Applied    uint64 `json:"applied"`
	Rejected   uint64 `json:"rejected"`
	Refreshes  uint64 `json:"refreshes"`
	Frames     uint64 `json:"frames"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Chip          string `json:"chip"`
	Pin           int    `json:"pin"`
	Broker        string `json:"broker"`
	Serial        string `json:"serial,omitempty"`
	HTTPAddr      string `json:"http_addr"`
	RefreshMs     int64  `json:"refresh_ms"`
	Repeats       int    `json:"repeats"`
	RepeatDelayMs int64  `json:"repeat_delay_ms"`
	HeartbeatMs   int64  `json:"heartbeat_ms"`
}

func buildInner(snap Snapshot) StatusInner {
	channels := make([]ChannelJSON, 0, len(snap.Channels))
	for i, cs := range snap.Channels {
		channels = append(channels, ChannelJSON{
			Channel: i + 1,
			A:       cs.A,
			B:       cs.B,
			Mode:    cs.Mode.String(),
			Toggle:  cs.Toggle,
		})
	}

	return StatusInner{
		Channels:      channels,
		LastCommand:   snap.LastCommand,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Received:   snap.Counts.Received,
			Duplicates: snap.Counts.Duplicates,
			Applied:    snap.Counts.Applied,
			Rejected:   snap.Counts.Rejected,
			Refreshes:  snap.Counts.Refreshes,
			Frames:     snap.Counts.Frames,
		},
		Config: ConfigJSON{
			Chip:          snap.Config.Chip,
			Pin:           snap.Config.Pin,
			Broker:        snap.Config.Broker,
			Serial:        snap.Config.Serial,
			HTTPAddr:      snap.Config.HTTPAddr,
			RefreshMs:     snap.Config.RefreshMs,
			Repeats:       snap.Config.Repeats,
			RepeatDelayMs: snap.Config.RepeatDelayMs,
			HeartbeatMs:   snap.Config.HeartbeatMs,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
