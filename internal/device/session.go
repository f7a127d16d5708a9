// Package device implements the DE1 Device Session (§4.3): it owns a
// single transport.Transport, converts raw notification frames into typed
// events, and issues control commands (state requests, profile uploads,
// shot settings).
package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/decenza/de1core/internal/codec"
	"github.com/decenza/de1core/internal/logging"
	"github.com/decenza/de1core/internal/profile"
	"github.com/decenza/de1core/internal/transport"
)

// State is the machine's operating state, read from STATE_INFO notifications.
type State int

const (
	StateIdle State = iota
	StateEspresso
	StateSteam
	StateHotWater
	StateHotWaterRinse
	StateSleep
)

// SessionState is the device session's own connection lifecycle, distinct
// from the machine's State (§4.3 "State transitions of the session").
type SessionState int

const (
	Disconnected SessionState = iota
	Connecting
	Discovering
	Configuring
	Ready
)

// ShotSample is one parsed 14-byte telemetry notification (§4.3).
type ShotSample struct {
	TimerSeconds    float64
	GroupPressure   float64
	GroupFlow       float64
	MixTemperature  float64
	HeadTemperature float64
	SetTempGoal     float64
	SetFlowGoal     float64
	SetPressureGoal float64
	FrameNumber     uint8
	SteamTemp       uint8
}

// ParseShotSample decodes a 14-byte shot-sample notification. A shorter
// buffer is discarded (returns ok=false); byte 9 is firmware-reserved and
// is not decoded (§4.3 note, §9 Open Questions).
func ParseShotSample(b []byte) (ShotSample, bool) {
	if len(b) < 14 {
		return ShotSample{}, false
	}
	timerCentis := uint16(b[0])<<8 | uint16(b[1])
	return ShotSample{
		TimerSeconds:    float64(timerCentis) / 100.0,
		GroupPressure:   codec.DecodeU8P4(b[2]),
		GroupFlow:       codec.DecodeU8P4(b[3]),
		MixTemperature:  codec.DecodeU16P8(uint16(b[4])<<8 | uint16(b[5])),
		HeadTemperature: codec.DecodeU16P8(uint16(b[6])<<8 | uint16(b[7])),
		SetTempGoal:     codec.DecodeU8P1(b[8]),
		// byte 9 is reserved
		SetFlowGoal:     codec.DecodeU8P4(b[10]),
		SetPressureGoal: codec.DecodeU8P4(b[11]),
		FrameNumber:     b[12],
		SteamTemp:       b[13],
	}, true
}

// EventKind enumerates the device session's outward-facing signals.
type EventKind int

const (
	EventConnected EventKind = iota
	EventDisconnected
	EventConnectingChanged
	EventStateChanged
	EventSubstateChanged
	EventShotSample
	EventWaterLevelChanged
	EventFirmwareVersionChanged
	EventProfileUploaded
	EventError
)

// Event is one signal emitted by the session.
type Event struct {
	Kind        EventKind
	State       State
	Substate    int
	Sample      ShotSample
	WaterLiters float64
	Firmware    string
	UploadOK    bool
	Connecting  bool
	Err         error
}

// Session owns a Transport and tracks the DE1's state machine.
type Session struct {
	t transport.Transport

	mu    sync.Mutex
	state SessionState

	events chan Event
	stop   chan struct{}
}

// defaultShotSettings are sent during the connection handshake (§4.3).
const (
	defaultSteamTempC    = 160.0
	defaultSteamSeconds  = 120.0
	defaultHotWaterTempC = 80.0
	defaultHotWaterMl    = 200.0
	defaultGroupTempC    = 93.0
)

// NewSession creates a session bound to t. The session does not connect
// until ConnectToDevice is called.
func NewSession(t transport.Transport) *Session {
	return &Session{
		t:      t,
		state:  Disconnected,
		events: make(chan Event, 64),
		stop:   make(chan struct{}),
	}
}

// Events returns the session's outward event channel.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) emit(e Event) {
	select {
	case s.events <- e:
	default:
		logging.Get(logging.CategoryDevice).Warn("device session event channel full, dropping event kind=%d", e.Kind)
	}
}

func (s *Session) setState(st SessionState) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// State returns the session's current connection-lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ConnectToDevice drives Disconnected -> Connecting -> Discovering ->
// Configuring -> Ready (§4.3). It starts the notification-dispatch
// goroutine, then runs the handshake: subscribe to state-info,
// shot-sample, water-levels, read-from-MMR; read firmware version, state,
// water level; send a minimal wake profile and default shot settings.
func (s *Session) ConnectToDevice(ctx context.Context) error {
	s.setState(Connecting)
	s.emit(Event{Kind: EventConnectingChanged, Connecting: true})

	go s.dispatchLoop()

	s.setState(Discovering)
	if err := s.t.SubscribeAll(ctx); err != nil {
		s.setState(Disconnected)
		s.emit(Event{Kind: EventConnectingChanged, Connecting: false})
		return fmt.Errorf("subscribe to endpoints: %w", err)
	}

	s.setState(Configuring)
	if err := s.t.Read(ctx, transport.LowVersion); err != nil {
		return fmt.Errorf("read firmware version: %w", err)
	}
	if err := s.t.Read(ctx, transport.LowStateInfo); err != nil {
		return fmt.Errorf("read state info: %w", err)
	}
	if err := s.t.Read(ctx, transport.LowWaterLevels); err != nil {
		return fmt.Errorf("read water level: %w", err)
	}

	if err := s.sendWakeProfile(ctx); err != nil {
		return fmt.Errorf("send wake profile: %w", err)
	}
	if err := s.SendInitialSettings(ctx); err != nil {
		return fmt.Errorf("send initial settings: %w", err)
	}

	s.setState(Ready)
	s.emit(Event{Kind: EventConnectingChanged, Connecting: false})
	s.emit(Event{Kind: EventConnected})
	logging.Audit().DeviceConnected(fmt.Sprintf("%T", s.t), 0)
	return nil
}

// sendWakeProfile uploads a minimal single-frame profile so the machine
// has valid profile state before the session is considered ready.
func (s *Session) sendWakeProfile(ctx context.Context) error {
	wake := profile.Profile{
		Name:    "wake",
		MaxFlow: 6.0,
		Frames: []profile.Frame{
			{SetVal: 0, Temperature: defaultGroupTempC, DurationSec: 1},
		},
	}
	return s.UploadProfile(ctx, wake)
}

// SendInitialSettings sends the default shot settings named in §4.3:
// steam 160C/120s, hot water 80C/200mL, group 93C.
func (s *Session) SendInitialSettings(ctx context.Context) error {
	payload := []byte{
		codec.EncodeU8P1(defaultSteamTempC),
		codec.EncodeU8P0(defaultSteamSeconds),
		codec.EncodeU8P1(defaultHotWaterTempC),
		byte(codec.EncodeU10P0(defaultHotWaterMl, false) >> 8),
		byte(codec.EncodeU10P0(defaultHotWaterMl, false)),
		codec.EncodeU8P1(defaultGroupTempC),
	}
	return s.t.Write(ctx, transport.LowShotSettings, payload)
}

// RequestState writes the requested machine state (§4.3).
func (s *Session) RequestState(ctx context.Context, state State) error {
	return s.t.Write(ctx, transport.LowRequestedState, []byte{byte(state)})
}

// UploadProfile queues a write of the header, each frame in wire order,
// then the tail frame (§4.3 "Profile upload"). profile_uploaded(true) is
// emitted once the final write completes.
func (s *Session) UploadProfile(ctx context.Context, p profile.Profile) error {
	header, frames, err := p.WireFrames()
	if err != nil {
		s.emit(Event{Kind: EventProfileUploaded, UploadOK: false, Err: err})
		return err
	}

	if err := s.t.Write(ctx, transport.LowHeaderWrite, header[:]); err != nil {
		s.emit(Event{Kind: EventProfileUploaded, UploadOK: false, Err: err})
		return err
	}
	for _, f := range frames {
		if err := s.t.Write(ctx, transport.LowFrameWrite, f[:]); err != nil {
			s.emit(Event{Kind: EventProfileUploaded, UploadOK: false, Err: err})
			return err
		}
	}

	s.emit(Event{Kind: EventProfileUploaded, UploadOK: true})
	return nil
}

// Disconnect tears down the transport and stops the dispatch loop.
func (s *Session) Disconnect() error {
	close(s.stop)
	err := s.t.Disconnect()
	s.setState(Disconnected)
	s.emit(Event{Kind: EventDisconnected})
	logging.Audit().DeviceDisconnected(fmt.Sprintf("%T", s.t))
	return err
}

// dispatchLoop converts transport events into typed device-session events.
func (s *Session) dispatchLoop() {
	for {
		select {
		case <-s.stop:
			return
		case ev, ok := <-s.t.Events():
			if !ok {
				s.setState(Disconnected)
				s.emit(Event{Kind: EventDisconnected})
				return
			}
			s.handleTransportEvent(ev)
		}
	}
}

func (s *Session) handleTransportEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventDisconnected:
		s.setState(Disconnected)
		s.emit(Event{Kind: EventDisconnected})
	case transport.EventError:
		s.emit(Event{Kind: EventError, Err: ev.Err})
	case transport.EventDataReceived:
		s.handleNotification(ev.Low, ev.Data)
	}
}

func (s *Session) handleNotification(low uint16, data []byte) {
	switch low {
	case transport.LowShotSample:
		if sample, ok := ParseShotSample(data); ok {
			s.emit(Event{Kind: EventShotSample, Sample: sample})
		}
	case transport.LowStateInfo:
		if len(data) >= 2 {
			s.emit(Event{Kind: EventStateChanged, State: State(data[0]), Substate: int(data[1])})
		}
	case transport.LowWaterLevels:
		if len(data) >= 2 {
			liters := codec.DecodeU16P8(uint16(data[0])<<8 | uint16(data[1]))
			s.emit(Event{Kind: EventWaterLevelChanged, WaterLiters: liters})
		}
	case transport.LowVersion:
		s.emit(Event{Kind: EventFirmwareVersionChanged, Firmware: string(data)})
	}
}
