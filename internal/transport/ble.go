package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"

	"github.com/decenza/de1core/internal/logging"
)

// DE1ServiceUUID is the single GATT service the wireless-LE backend
// discovers after connect (§4.2).
var DE1ServiceUUID = bluetooth.NewUUID([16]byte{
	0x00, 0x00, 0xa0, 0x01, 0x00, 0x00, 0x10, 0x00,
	0x80, 0x00, 0x00, 0x80, 0x5f, 0x9b, 0x34, 0xfb,
})

const (
	writeTimeout     = 5 * time.Second
	writeRetries     = 3
	writeBackoff     = 100 * time.Millisecond
	minWriteSpacing  = 50 * time.Millisecond
	discoveryRetries = 3
	discoveryDelay   = 2 * time.Second
	cccdEnableValue  = 0x0100
)

type queuedWrite struct {
	low    uint16
	data   []byte
	urgent bool
}

// BLETransport implements Transport over BLE GATT central role using
// tinygo.org/x/bluetooth. Writes are serialized through a FIFO command
// queue with 50ms minimum inter-write spacing; WriteUrgent clears the
// queue and writes immediately.
type BLETransport struct {
	adapter *bluetooth.Adapter
	device  bluetooth.Device
	chars   map[uint16]bluetooth.DeviceCharacteristic

	mu        sync.Mutex
	connected bool
	queue     []queuedWrite
	queueCond *sync.Cond
	events    chan Event
	stop      chan struct{}
}

// ConnectBLE connects to the given address and discovers the DE1 service
// and its characteristics with up to 3 attempts at 2s delay (§4.2, §9).
// It does not subscribe to notifications; Subscribe and SubscribeAll do.
func ConnectBLE(ctx context.Context, adapter *bluetooth.Adapter, address bluetooth.Address) (*BLETransport, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable bluetooth adapter: %w", err)
	}

	device, err := adapter.Connect(address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect to DE1 at %v: %w", address, err)
	}

	t := &BLETransport{
		adapter:   adapter,
		device:    device,
		chars:     make(map[uint16]bluetooth.DeviceCharacteristic),
		connected: true,
		events:    make(chan Event, 128),
		stop:      make(chan struct{}),
	}
	t.queueCond = sync.NewCond(&t.mu)

	if err := t.discoverWithRetry(); err != nil {
		device.Disconnect()
		return nil, err
	}

	go t.dispatchLoop()

	t.emitLocked(Event{Kind: EventConnected})
	return t, nil
}

func (t *BLETransport) discoverWithRetry() error {
	logger := logging.Get(logging.CategoryTransport)
	var lastErr error
	for attempt := 0; attempt < discoveryRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(discoveryDelay)
		}
		services, err := t.device.DiscoverServices([]bluetooth.UUID{DE1ServiceUUID})
		if err != nil || len(services) == 0 {
			lastErr = fmt.Errorf("discover DE1 service: %w", err)
			logger.Warn("service discovery attempt %d failed: %v", attempt+1, lastErr)
			continue
		}

		chars, err := services[0].DiscoverCharacteristics(nil)
		if err != nil {
			lastErr = fmt.Errorf("discover characteristics: %w", err)
			continue
		}

		for _, c := range chars {
			low := low16(c.UUID())
			if low == 0 {
				continue
			}
			t.chars[low] = c
		}
		return nil
	}
	return fmt.Errorf("service discovery failed after %d attempts: %w", discoveryRetries, lastErr)
}

// low16 extracts the low 16 bits of a 128-bit BLE UUID's first 4-byte
// group, matching the DE1's 0xA0xx endpoint numbering.
func low16(u bluetooth.UUID) uint16 {
	b := u.Bytes()
	if len(b) < 16 {
		return 0
	}
	return uint16(b[2])<<8 | uint16(b[3])
}

func (t *BLETransport) emitLocked(e Event) {
	select {
	case t.events <- e:
	default:
		logging.Get(logging.CategoryTransport).Warn("BLE transport event channel full, dropping event kind=%d", e.Kind)
	}
}

// dispatchLoop is the Idle -> WritePending -> (Complete|TimedOut|Failed)
// state machine described in §4.2.
func (t *BLETransport) dispatchLoop() {
	for {
		t.mu.Lock()
		for len(t.queue) == 0 && t.connected {
			t.queueCond.Wait()
		}
		if !t.connected {
			t.mu.Unlock()
			return
		}
		job := t.queue[0]
		t.queue = t.queue[1:]
		t.mu.Unlock()

		t.execute(job)

		select {
		case <-t.stop:
			return
		case <-time.After(minWriteSpacing):
		}
	}
}

func (t *BLETransport) execute(job queuedWrite) {
	ch, ok := t.chars[job.low]
	if !ok {
		t.emitLocked(Event{Kind: EventError, Err: ErrUnknownEndpoint(job.low)})
		return
	}

	logger := logging.Get(logging.CategoryTransport)
	var lastErr error
	for attempt := 0; attempt <= writeRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(writeBackoff)
		}
		done := make(chan error, 1)
		go func() {
			_, err := ch.WriteWithoutResponse(job.data)
			done <- err
		}()

		select {
		case err := <-done:
			if err == nil {
				t.emitLocked(Event{Kind: EventWriteComplete, Low: job.low, Data: job.data})
				return
			}
			lastErr = err
		case <-time.After(writeTimeout):
			lastErr = fmt.Errorf("write to endpoint 0x%04X timed out", job.low)
		}
		logger.Warn("write to 0x%04X attempt %d failed: %v", job.low, attempt+1, lastErr)
	}
	t.emitLocked(Event{Kind: EventError, Err: fmt.Errorf("write to endpoint 0x%04X dropped after %d retries: %w", job.low, writeRetries, lastErr)})
}

// Write enqueues a normal-priority write.
func (t *BLETransport) Write(ctx context.Context, low uint16, data []byte) error {
	if _, ok := t.chars[low]; !ok {
		t.emitLocked(Event{Kind: EventError, Err: ErrUnknownEndpoint(low)})
		return ErrUnknownEndpoint(low)
	}
	t.mu.Lock()
	t.queue = append(t.queue, queuedWrite{low: low, data: data})
	t.queueCond.Signal()
	t.mu.Unlock()
	return nil
}

// WriteUrgent clears the pending queue and enqueues data to execute next.
func (t *BLETransport) WriteUrgent(ctx context.Context, low uint16, data []byte) error {
	if _, ok := t.chars[low]; !ok {
		t.emitLocked(Event{Kind: EventError, Err: ErrUnknownEndpoint(low)})
		return ErrUnknownEndpoint(low)
	}
	t.mu.Lock()
	t.queue = []queuedWrite{{low: low, data: data, urgent: true}}
	t.queueCond.Signal()
	t.mu.Unlock()
	return nil
}

// Read issues a read request for low via the GATT ReadValue operation.
func (t *BLETransport) Read(ctx context.Context, low uint16) error {
	ch, ok := t.chars[low]
	if !ok {
		t.emitLocked(Event{Kind: EventError, Err: ErrUnknownEndpoint(low)})
		return ErrUnknownEndpoint(low)
	}
	buf := make([]byte, 512)
	n, err := ch.Read(buf)
	if err != nil {
		t.emitLocked(Event{Kind: EventError, Err: fmt.Errorf("read endpoint 0x%04X: %w", low, err)})
		return err
	}
	t.emitLocked(Event{Kind: EventDataReceived, Low: low, Data: buf[:n]})
	return nil
}

// Subscribe enables notifications on a single endpoint by writing the
// well-known CCCD value 0x0100 (modeled here as EnableNotifications, the
// tinygo driver's equivalent descriptor operation).
func (t *BLETransport) Subscribe(ctx context.Context, low uint16) error {
	ch, ok := t.chars[low]
	if !ok {
		t.emitLocked(Event{Kind: EventError, Err: ErrUnknownEndpoint(low)})
		return ErrUnknownEndpoint(low)
	}
	capturedLow := low
	err := ch.EnableNotifications(func(data []byte) {
		t.emitLocked(Event{Kind: EventDataReceived, Low: capturedLow, Data: append([]byte(nil), data...)})
	})
	if err != nil {
		t.emitLocked(Event{Kind: EventError, Err: fmt.Errorf("subscribe endpoint 0x%04X: %w", low, err)})
	}
	return err
}

// SubscribeAll subscribes to every discovered characteristic.
func (t *BLETransport) SubscribeAll(ctx context.Context) error {
	for low := range t.chars {
		if err := t.Subscribe(ctx, low); err != nil {
			return err
		}
	}
	return nil
}

// Disconnect tears down the BLE connection and stops the dispatch loop.
func (t *BLETransport) Disconnect() error {
	t.mu.Lock()
	t.connected = false
	t.queue = nil
	t.queueCond.Broadcast()
	t.mu.Unlock()

	close(t.stop)
	err := t.device.Disconnect()
	t.emitLocked(Event{Kind: EventDisconnected})
	close(t.events)
	return err
}

// IsConnected reports the current connection state.
func (t *BLETransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Events returns the transport's event channel.
func (t *BLETransport) Events() <-chan Event {
	return t.events
}

var _ Transport = (*BLETransport)(nil)
