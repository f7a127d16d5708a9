package device

import (
	"context"
	"testing"
	"time"
)

func TestConnectToDeviceReachesReady(t *testing.T) {
	ft := newFakeTransport()
	s := NewSession(ft)
	defer s.Disconnect()

	done := make(chan error, 1)
	go func() {
		done <- s.ConnectToDevice(context.Background())
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ConnectToDevice: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("ConnectToDevice did not complete in time")
	}

	if s.State() != Ready {
		t.Errorf("session state = %v, want Ready", s.State())
	}

	connectedCount := 0
	drain := true
	for drain {
		select {
		case ev := <-s.Events():
			if ev.Kind == EventConnected {
				connectedCount++
			}
		default:
			drain = false
		}
	}
	if connectedCount != 1 {
		t.Errorf("saw %d Connected events, expected exactly one", connectedCount)
	}
}
