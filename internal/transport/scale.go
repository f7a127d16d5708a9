package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tinygo.org/x/bluetooth"
)

// ScaleReader produces weight readings from a companion scale, independent
// of the DE1 transport (the producer of the cumulative-weight / weight-flow
// channels in §3.4's sample blob, left unspecified by the original spec).
type ScaleReader interface {
	// ReadWeight returns the current weight in grams and the time at which
	// the reading last changed (for stability detection upstream).
	ReadWeight(ctx context.Context) (grams float64, stableAt time.Time, err error)
	Close() error
}

// ScaleServiceUUID is the distinct GATT service used by the Decent/Acaia
// style scale, separate from DE1ServiceUUID.
var ScaleServiceUUID = bluetooth.NewUUID([16]byte{
	0x00, 0x00, 0xff, 0xf0, 0x00, 0x00, 0x10, 0x00,
	0x80, 0x00, 0x00, 0x80, 0x5f, 0x9b, 0x34, 0xfb,
})

var scaleWeightCharUUID = bluetooth.NewUUID([16]byte{
	0x00, 0x00, 0xff, 0xf1, 0x00, 0x00, 0x10, 0x00,
	0x80, 0x00, 0x00, 0x80, 0x5f, 0x9b, 0x34, 0xfb,
})

// BLEScaleReader implements ScaleReader on the same tinygo.org/x/bluetooth
// central-role session the wireless-LE DE1 backend uses, but against a
// distinct service/characteristic.
type BLEScaleReader struct {
	device bluetooth.Device
	char   bluetooth.DeviceCharacteristic

	mu        sync.RWMutex
	lastGrams float64
	lastAt    time.Time
}

// ConnectBLEScale connects to a scale at address and subscribes to its
// weight-notification characteristic.
func ConnectBLEScale(ctx context.Context, adapter *bluetooth.Adapter, address bluetooth.Address) (*BLEScaleReader, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("enable bluetooth adapter: %w", err)
	}

	device, err := adapter.Connect(address, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("connect to scale at %v: %w", address, err)
	}

	services, err := device.DiscoverServices([]bluetooth.UUID{ScaleServiceUUID})
	if err != nil || len(services) == 0 {
		device.Disconnect()
		return nil, fmt.Errorf("discover scale service: %w", err)
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{scaleWeightCharUUID})
	if err != nil || len(chars) == 0 {
		device.Disconnect()
		return nil, fmt.Errorf("discover scale weight characteristic: %w", err)
	}

	r := &BLEScaleReader{device: device, char: chars[0], lastAt: time.Now()}

	err = chars[0].EnableNotifications(func(data []byte) {
		grams, ok := decodeScaleWeight(data)
		if !ok {
			return
		}
		r.mu.Lock()
		if grams != r.lastGrams {
			r.lastGrams = grams
			r.lastAt = time.Now()
		}
		r.mu.Unlock()
	})
	if err != nil {
		device.Disconnect()
		return nil, fmt.Errorf("subscribe to scale weight notifications: %w", err)
	}

	return r, nil
}

// decodeScaleWeight parses a 2-byte big-endian centigram weight value,
// the common wire format for Decent/Acaia-style scales.
func decodeScaleWeight(data []byte) (float64, bool) {
	if len(data) < 2 {
		return 0, false
	}
	centigrams := int16(uint16(data[0])<<8 | uint16(data[1]))
	return float64(centigrams) / 100.0, true
}

// ReadWeight returns the most recently notified weight.
func (r *BLEScaleReader) ReadWeight(ctx context.Context) (float64, time.Time, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastGrams, r.lastAt, nil
}

// Close disconnects from the scale.
func (r *BLEScaleReader) Close() error {
	return r.device.Disconnect()
}

var _ ScaleReader = (*BLEScaleReader)(nil)
