// Package transport abstracts the bidirectional, endpoint-addressed
// channel to a DE1 espresso machine (§4.2). Two concrete backends
// implement the same Transport interface: a wireless-LE backend over BLE
// GATT, and a serial backend over USB-CDC.
package transport

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// EndpointID identifies a single DE1 feature (§3.1). The low 16 bits of
// the UUID, when in 0xA001..0xA012, map to a serial-wire letter 'A'..'R'.
type EndpointID uuid.UUID

// Well-known DE1 endpoints (§6.1), expressed by their low-16-bit code.
const (
	LowVersion         uint16 = 0xA001
	LowRequestedState  uint16 = 0xA002
	LowReadFromMMR     uint16 = 0xA005
	LowTemperatures    uint16 = 0xA00C
	LowStateInfo       uint16 = 0xA00D
	LowShotSample      uint16 = 0xA00E
	LowShotSettings    uint16 = 0xA00F
	LowWaterLevels     uint16 = 0xA011
	LowFrameWrite      uint16 = 0xA00A
	LowHeaderWrite     uint16 = 0xA00B
)

const endpointLowBase = 0xA001

// Letter returns the serial-wire letter for an endpoint whose low 16 bits
// fall in 0xA001..0xA012, and ok=false otherwise.
func Letter(low uint16) (letter byte, ok bool) {
	if low < 0xA001 || low > 0xA012 {
		return 0, false
	}
	return 'A' + byte(low-endpointLowBase), true
}

// LowFromLetter inverts Letter.
func LowFromLetter(letter byte) (low uint16, ok bool) {
	letter = upper(letter)
	if letter < 'A' || letter > 'R' {
		return 0, false
	}
	return endpointLowBase + uint16(letter-'A'), true
}

func upper(b byte) byte {
	if b >= 'a' && b <= 'z' {
		return b - 'a' + 'A'
	}
	return b
}

// Event is a signal emitted upward by a Transport: connected, disconnected,
// data_received, write_complete, or error (§4.2).
type Event struct {
	Kind  EventKind
	Low   uint16 // endpoint low-16 code, for DataReceived/WriteComplete
	Data  []byte
	Err   error
}

// EventKind enumerates the transport's signal types.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventDataReceived
	EventWriteComplete
	EventError
)

// Transport is the five-operation abstraction over a DE1 endpoint channel
// (§4.2). Implementations deliver Event values on the channel returned by
// Events(); callers should range over it until it closes (on Disconnect
// or a fatal error).
type Transport interface {
	// Write queues a normal-priority write to the given endpoint.
	Write(ctx context.Context, low uint16, data []byte) error
	// WriteUrgent clears the pending queue and writes immediately (used
	// for time-critical stop-at-weight commands).
	WriteUrgent(ctx context.Context, low uint16, data []byte) error
	// Read issues a read request against the given endpoint.
	Read(ctx context.Context, low uint16) error
	// Subscribe enables notifications for a single endpoint.
	Subscribe(ctx context.Context, low uint16) error
	// SubscribeAll enables notifications for every endpoint the backend
	// knows about.
	SubscribeAll(ctx context.Context) error
	// Disconnect tears down the connection; all pending operations are
	// abandoned and the Events channel is closed.
	Disconnect() error
	// IsConnected reports whether the transport currently holds a live
	// connection.
	IsConnected() bool
	// Events returns the channel on which this transport emits signals.
	Events() <-chan Event
}

// ErrUnknownEndpoint is returned (and also emitted as an EventError,
// per §4.2 "silently dropped at the transport layer") when a caller
// addresses a low-16 code the backend does not recognize.
func ErrUnknownEndpoint(low uint16) error {
	return fmt.Errorf("transport: unknown endpoint 0x%04X", low)
}
