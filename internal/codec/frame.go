package codec

// FrameFlags is the bit field carried by byte 1 of a profile frame.
type FrameFlags uint8

const (
	FlagDoCompare   FrameFlags = 1 << 0 // enable exit comparison
	FlagDCGreater   FrameFlags = 1 << 1 // compare is greater-than (else less-than)
	FlagDCCompFlow  FrameFlags = 1 << 2 // compare flow (else pressure)
	FlagTMixTemp    FrameFlags = 1 << 3 // control mix temperature (else basket)
	FlagInterpolate FrameFlags = 1 << 4 // smooth/ramped transition
	FlagIgnoreLimit FrameFlags = 1 << 5 // always set; do not clamp limiter
	FlagCtrlFlow    FrameFlags = 1 << 6 // flow control (else pressure control)
)

// FrameHeader is the profile-wide metadata that precedes the frame list on
// the wire (§3.3). Version is always 1.
type FrameHeader struct {
	Version           uint8
	FrameCount        uint8
	PreinfuseCount    uint8
	MinPressure       float64 // U8P4
	MaxFlow           float64 // U8P4
}

// EncodeHeader packs a FrameHeader into its 5-byte wire form.
func EncodeHeader(h FrameHeader) [5]byte {
	return [5]byte{
		1, // version is always 1
		h.FrameCount,
		h.PreinfuseCount,
		EncodeU8P4(h.MinPressure),
		EncodeU8P4(h.MaxFlow),
	}
}

// DecodeHeader unpacks a 5-byte header. A short buffer decodes as a
// zero-value header.
func DecodeHeader(b []byte) FrameHeader {
	if len(b) < 5 {
		return FrameHeader{}
	}
	return FrameHeader{
		Version:        b[0],
		FrameCount:     b[1],
		PreinfuseCount: b[2],
		MinPressure:    DecodeU8P4(b[3]),
		MaxFlow:        DecodeU8P4(b[4]),
	}
}

// Frame is one profile step (§3.3), 8 bytes on the wire.
type Frame struct {
	Index         uint8
	Flags         FrameFlags
	SetVal        float64 // pressure or flow, U8P4
	Temperature   float64 // U8P1
	DurationSec   float64 // F8_1_7
	TriggerVal    float64 // U8P4
	VolumeLimit   float64 // U10P0
	VolumeLimitTag bool
}

// Encode packs a Frame into its 8-byte wire form. Byte layout:
// [index, flags, set-val, temperature, duration, trigger-val, volume-limit-hi, volume-limit-lo].
func (f Frame) Encode() [8]byte {
	vol := EncodeU10P0(f.VolumeLimit, f.VolumeLimitTag)
	return [8]byte{
		f.Index,
		byte(f.Flags),
		EncodeU8P4(f.SetVal),
		EncodeU8P1(f.Temperature),
		EncodeF8_1_7(f.DurationSec),
		EncodeU8P4(f.TriggerVal),
		byte(vol >> 8),
		byte(vol),
	}
}

// DecodeFrame unpacks an 8-byte frame. A short buffer yields a zero-value
// frame rather than erroring.
func DecodeFrame(b []byte) Frame {
	if len(b) < 8 {
		return Frame{}
	}
	vol, tag := DecodeU10P0(uint16(b[6])<<8 | uint16(b[7]))
	return Frame{
		Index:          b[0],
		Flags:          FrameFlags(b[1]),
		SetVal:         DecodeU8P4(b[2]),
		Temperature:    DecodeU8P1(b[3]),
		DurationSec:    DecodeF8_1_7(b[4]),
		TriggerVal:     DecodeU8P4(b[5]),
		VolumeLimit:    vol,
		VolumeLimitTag: tag,
	}
}

// ExtensionFrame carries a max-flow-or-pressure limiter plus range; its
// index byte is the parent frame's index ORed with 0x20.
type ExtensionFrame struct {
	ParentIndex uint8
	Limit       float64 // U8P4
	Range       float64 // U8P4
}

// Encode packs an extension frame. The remaining wire bytes beyond the
// limit/range pair are zero, matching the tail-frame convention.
func (e ExtensionFrame) Encode() [8]byte {
	return [8]byte{
		e.ParentIndex | 0x20,
		0,
		EncodeU8P4(e.Limit),
		0,
		0,
		EncodeU8P4(e.Range),
		0,
		0,
	}
}

// TailFrame is the mandatory final frame: index equals the profile's frame
// count, volume field carries the max total volume, all other bytes zero.
type TailFrame struct {
	FrameCount    uint8
	MaxTotalVolume float64 // U10P0
}

// Encode packs the tail frame.
func (t TailFrame) Encode() [8]byte {
	vol := EncodeU10P0(t.MaxTotalVolume, false)
	return [8]byte{
		t.FrameCount,
		0, 0, 0, 0, 0,
		byte(vol >> 8),
		byte(vol),
	}
}
