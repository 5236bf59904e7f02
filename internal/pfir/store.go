package pfir

// ChannelState is the cached state of one receiver.
type ChannelState struct {
	A      uint8
	B      uint8
	Mode   Mode
	Toggle uint8 // toggle bit for the next single output frame
}

// Store caches the state of all four channels.
// Reads of an out-of-range channel return zero values; writes are rejected.
type Store struct {
	channels [NumChannels]ChannelState
}

// NewStore creates a Store with every channel floating in combo mode.
func NewStore() *Store {
	return &Store{}
}

// A returns the cached output A value of channel, or 0 if out of range.
func (s *Store) A(channel uint8) uint8 {
	if !validChannel(channel) {
		return 0
	}
	return s.channels[channel-1].A
}

// B returns the cached output B value of channel, or 0 if out of range.
func (s *Store) B(channel uint8) uint8 {
	if !validChannel(channel) {
		return 0
	}
	return s.channels[channel-1].B
}

// Mode returns the cached mode of channel, or ModeComboSpurt if out of range.
func (s *Store) Mode(channel uint8) Mode {
	if !validChannel(channel) {
		return ModeComboSpurt
	}
	return s.channels[channel-1].Mode
}

// Get returns the state of channel and whether channel is in range.
func (s *Store) Get(channel uint8) (ChannelState, bool) {
	if !validChannel(channel) {
		return ChannelState{}, false
	}
	return s.channels[channel-1], true
}

// Set writes cmd's value to its port and sets the channel's mode.
// An invalid command leaves the store untouched.
func (s *Store) Set(cmd Command) error {
	if err := cmd.Validate(); err != nil {
		return err
	}
	st := &s.channels[cmd.Channel-1]
	if cmd.Port == PortA {
		st.A = cmd.Value
	} else {
		st.B = cmd.Value
	}
	st.Mode = cmd.Mode
	return nil
}

// value returns the cached value of port on a valid channel.
func (s *Store) value(channel uint8, port Port) uint8 {
	if port == PortA {
		return s.channels[channel-1].A
	}
	return s.channels[channel-1].B
}

// NextToggle returns the toggle bit to send and flips the stored bit for the
// next send. Out-of-range channels return 0.
func (s *Store) NextToggle(channel uint8) uint8 {
	if !validChannel(channel) {
		return 0
	}
	st := &s.channels[channel-1]
	t := st.Toggle
	st.Toggle ^= 1
	return t
}

// Snapshot returns a copy of every channel's state, channel 1 first.
func (s *Store) Snapshot() [NumChannels]ChannelState {
	return s.channels
}
