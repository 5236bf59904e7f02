package mqtt

// FakeClient records published events for test assertions and lets tests
// deliver command payloads as if they arrived from the broker.
type FakeClient struct {
	// StateEvents contains all state events that were published.
	StateEvents []StateEvent

	// StatePayloads contains the JSON payloads for state events.
	StatePayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishState.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	// Block, if set, holds every publish until it is closed, like a broker
	// that stopped acknowledging.
	Block chan struct{}

	handler Handler
}

// NewFakeClient creates a FakeClient that passes delivered payloads to handler.
func NewFakeClient(handler Handler) *FakeClient {
	return &FakeClient{handler: handler}
}

// Deliver simulates a command message arriving on the command topic.
func (f *FakeClient) Deliver(payload []byte) {
	if f.handler != nil {
		f.handler(payload)
	}
}

// PublishState records the state event.
func (f *FakeClient) PublishState(event StateEvent) error {
	f.wait()
	if f.PublishError != nil {
		return f.PublishError
	}

	f.StateEvents = append(f.StateEvents, event)

	payload, err := FormatStatePayload(event)
	if err != nil {
		return err
	}
	f.StatePayloads = append(f.StatePayloads, payload)

	return nil
}

// PublishSystem records the system event.
func (f *FakeClient) PublishSystem(event SystemEvent) error {
	f.wait()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	f.SystemEvents = append(f.SystemEvents, event)

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemPayloads = append(f.SystemPayloads, payload)

	return nil
}

func (f *FakeClient) wait() {
	if f.Block != nil {
		<-f.Block
	}
}

// Close marks the client as closed.
func (f *FakeClient) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake client is "connected".
func (f *FakeClient) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded events.
func (f *FakeClient) Reset() {
	f.StateEvents = nil
	f.StatePayloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
	f.Block = nil
}
