package transport

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"

	"github.com/decenza/de1core/internal/logging"
)

// SerialTransport implements Transport over a USB-CDC serial line at
// 115200 8N1 using the `<LETTER>HEX\n` / `[LETTER]HEX\n` framing (§4.2,
// §6.2). It has no write pacing or retry: a write returns once the bytes
// are submitted to the OS and write_complete is synthesized immediately.
type SerialTransport struct {
	mu        sync.Mutex
	port      serial.Port
	portName  string
	events    chan Event
	connected bool
	closed    bool
}

// OpenSerial opens portName at 115200 8N1 (DTR/RTS low) and starts the
// line-reader goroutine.
func OpenSerial(portName string) (*SerialTransport, error) {
	mode := &serial.Mode{
		BaudRate: 115200,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", portName, err)
	}
	if err := port.SetDTR(false); err != nil {
		port.Close()
		return nil, fmt.Errorf("set DTR on %s: %w", portName, err)
	}
	if err := port.SetRTS(false); err != nil {
		port.Close()
		return nil, fmt.Errorf("set RTS on %s: %w", portName, err)
	}

	t := &SerialTransport{
		port:      port,
		portName:  portName,
		events:    make(chan Event, 64),
		connected: true,
	}

	go t.readLoop()

	t.emit(Event{Kind: EventConnected})
	return t, nil
}

func (t *SerialTransport) emit(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	select {
	case t.events <- e:
	default:
		logging.Get(logging.CategoryTransport).Warn("serial transport event channel full, dropping event kind=%d", e.Kind)
	}
}

// readLoop dispatches each complete `[LETTER]HEX\n` line to data_received.
func (t *SerialTransport) readLoop() {
	scanner := bufio.NewScanner(t.port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		low, data, ok := parseNotificationLine(line)
		if !ok {
			continue
		}
		t.emit(Event{Kind: EventDataReceived, Low: low, Data: data})
	}

	t.mu.Lock()
	wasConnected := t.connected
	t.connected = false
	t.mu.Unlock()

	if err := scanner.Err(); err != nil {
		t.emit(Event{Kind: EventError, Err: fmt.Errorf("serial read: %w", err)})
	}
	if wasConnected {
		t.emit(Event{Kind: EventDisconnected})
	}

	t.mu.Lock()
	alreadyClosed := t.closed
	t.closed = true
	t.mu.Unlock()
	if !alreadyClosed {
		close(t.events)
	}
}

// parseNotificationLine parses `[LETTER]HEX` into an endpoint code and
// decoded bytes. Parsing is case-insensitive on the hex digits and the
// letter.
func parseNotificationLine(line string) (low uint16, data []byte, ok bool) {
	if len(line) < 3 || line[0] != '[' {
		return 0, nil, false
	}
	end := strings.IndexByte(line, ']')
	if end < 2 {
		return 0, nil, false
	}
	letter := line[1]
	low, ok = LowFromLetter(letter)
	if !ok {
		return 0, nil, false
	}
	hexPart := line[end+1:]
	data, err := hex.DecodeString(hexPart)
	if err != nil {
		return 0, nil, false
	}
	return low, data, true
}

func (t *SerialTransport) writeLine(low uint16, line string) error {
	letter, ok := Letter(low)
	if !ok {
		t.emit(Event{Kind: EventError, Err: ErrUnknownEndpoint(low)})
		return ErrUnknownEndpoint(low)
	}
	_ = letter

	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return fmt.Errorf("serial transport: not connected")
	}
	_, err := t.port.Write([]byte(line))
	return err
}

// Write sends `<LETTER>HEX\n` and synthesizes write_complete.
func (t *SerialTransport) Write(ctx context.Context, low uint16, data []byte) error {
	letter, ok := Letter(low)
	if !ok {
		t.emit(Event{Kind: EventError, Err: ErrUnknownEndpoint(low)})
		return ErrUnknownEndpoint(low)
	}
	line := fmt.Sprintf("<%c%s\n", letter, strings.ToUpper(hex.EncodeToString(data)))
	if err := t.writeLine(low, line); err != nil {
		t.emit(Event{Kind: EventError, Err: err})
		return err
	}
	t.emit(Event{Kind: EventWriteComplete, Low: low, Data: data})
	return nil
}

// WriteUrgent is identical to Write on the serial backend: there is no
// queue to flush (§4.2 "Serial has no pacing or explicit write-complete").
func (t *SerialTransport) WriteUrgent(ctx context.Context, low uint16, data []byte) error {
	return t.Write(ctx, low, data)
}

// Read requests a read by writing the same line form as Write with an
// empty payload.
func (t *SerialTransport) Read(ctx context.Context, low uint16) error {
	return t.Write(ctx, low, nil)
}

// Subscribe writes `<+LETTER>\n`.
func (t *SerialTransport) Subscribe(ctx context.Context, low uint16) error {
	letter, ok := Letter(low)
	if !ok {
		t.emit(Event{Kind: EventError, Err: ErrUnknownEndpoint(low)})
		return ErrUnknownEndpoint(low)
	}
	return t.writeLine(low, fmt.Sprintf("<+%c>\n", letter))
}

// SubscribeAll subscribes to every endpoint letter 'A'..'R'.
func (t *SerialTransport) SubscribeAll(ctx context.Context) error {
	for low := uint16(0xA001); low <= 0xA012; low++ {
		if err := t.Subscribe(ctx, low); err != nil {
			return err
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

// Disconnect closes the port; pending reads unblock with an error and the
// events channel is closed.
func (t *SerialTransport) Disconnect() error {
	t.mu.Lock()
	t.connected = false
	port := t.port
	alreadyClosed := t.closed
	t.closed = true
	t.mu.Unlock()

	var err error
	if port != nil {
		err = port.Close()
	}
	if !alreadyClosed {
		close(t.events)
	}
	return err
}

// IsConnected reports the current connection state.
func (t *SerialTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

// Events returns the transport's event channel.
func (t *SerialTransport) Events() <-chan Event {
	return t.events
}

var _ Transport = (*SerialTransport)(nil)
