// Package status provides a thread-safe status tracker for the pfir-bridge daemon.
// It is written by the dispatch loop and read by HTTP handlers.
package status

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/sweeney/pfir-bridge/internal/pfir"
)

// Config contains daemon configuration for display.
type Config struct {
	Chip          string
	Pin           int
	Broker        string
	Serial        string
	HTTPAddr      string
	RefreshMs     int64
	Repeats       int
	RepeatDelayMs int64
	HeartbeatMs   int64
}

// Counts are cumulative command and transmitter counters.
type Counts struct {
	Received   uint64
	Duplicates uint64
	Applied    uint64
	Rejected   uint64
	Refreshes  uint64
	Frames     uint64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Channels      [pfir.NumChannels]pfir.ChannelState
	Counts        Counts
	LastCommand   string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	clock clock.Clock
	snap  Snapshot
}

// NewTracker creates a Tracker whose start time is clk.Now().
// A nil clock uses the wall clock.
func NewTracker(clk clock.Clock, cfg Config) *Tracker {
	if clk == nil {
		clk = clock.New()
	}
	return &Tracker{
		clock: clk,
		snap: Snapshot{
			StartTime: clk.Now(),
			Config:    cfg,
		},
	}
}

// Update sets channel states and counters.
// Called from the dispatch loop after every command and refresh.
func (t *Tracker) Update(channels [pfir.NumChannels]pfir.ChannelState, counts Counts) {
	t.mu.Lock()
	t.snap.Channels = channels
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetLastCommand records the most recently applied command.
func (t *Tracker) SetLastCommand(cmd pfir.Command) {
	t.mu.Lock()
	t.snap.LastCommand = cmd.String()
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is read from the tracker's clock at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.clock.Now()
	return s
}
