package device

import (
	"context"

	"github.com/decenza/de1core/internal/transport"
)

// fakeTransport is a minimal transport.Transport stub for exercising the
// session's handshake and profile-upload logic without real I/O.
type fakeTransport struct {
	events    chan transport.Event
	writes    []uint16
	connected bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan transport.Event, 256), connected: true}
}

func (f *fakeTransport) Write(ctx context.Context, low uint16, data []byte) error {
	f.writes = append(f.writes, low)
	return nil
}

func (f *fakeTransport) WriteUrgent(ctx context.Context, low uint16, data []byte) error {
	return f.Write(ctx, low, data)
}

func (f *fakeTransport) Read(ctx context.Context, low uint16) error {
	return nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, low uint16) error {
	return nil
}

func (f *fakeTransport) SubscribeAll(ctx context.Context) error {
	return nil
}

func (f *fakeTransport) Disconnect() error {
	f.connected = false
	close(f.events)
	return nil
}

func (f *fakeTransport) IsConnected() bool {
	return f.connected
}

func (f *fakeTransport) Events() <-chan transport.Event {
	return f.events
}

var _ transport.Transport = (*fakeTransport)(nil)
