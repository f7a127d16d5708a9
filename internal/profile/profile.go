// Package profile models a DE1 espresso profile: an ordered list of frames
// plus header metadata, matching the wire layout in internal/codec, along
// with a JSON representation suitable for storage and the companion
// server's API, and an algorithmic generator for simple recipes.
package profile

import (
	"encoding/json"
	"fmt"

	"github.com/decenza/de1core/internal/codec"
)

// Frame is the JSON-facing representation of one profile step. Unlike
// codec.Frame, values are plain floats/bools rather than wire-packed
// bytes; Encode/Decode at the codec boundary convert between the two.
type Frame struct {
	Name           string  `json:"name,omitempty"`
	SetVal         float64 `json:"set_val"`
	Temperature    float64 `json:"temperature"`
	DurationSec    float64 `json:"duration_sec"`
	TriggerVal     float64 `json:"trigger_val"`
	VolumeLimit    float64 `json:"volume_limit"`
	VolumeLimitTag bool    `json:"volume_limit_tag"`

	DoCompare   bool `json:"do_compare"`
	CompGreater bool `json:"comp_greater"`
	CompFlow    bool `json:"comp_flow"`
	MixTemp     bool `json:"mix_temp"`
	Interpolate bool `json:"interpolate"`
	IgnoreLimit bool `json:"ignore_limit"`
	FlowControl bool `json:"flow_control"`

	Extension *Extension `json:"extension,omitempty"`
}

// Extension carries the optional max-flow-or-pressure limiter for a frame.
type Extension struct {
	Limit float64 `json:"limit"`
	Range float64 `json:"range"`
}

// Profile is an ordered list of frames plus header metadata (§3.3).
type Profile struct {
	Name              string  `json:"name"`
	BeverageType      string  `json:"beverage_type,omitempty"`
	MinPressure       float64 `json:"min_pressure"`
	MaxFlow           float64 `json:"max_flow"`
	PreinfuseCount    int     `json:"preinfuse_count"`
	MaxTotalVolume    float64 `json:"max_total_volume"`
	Frames            []Frame `json:"frames"`
}

func (f Frame) flags() codec.FrameFlags {
	var fl codec.FrameFlags
	if f.DoCompare {
		fl |= codec.FlagDoCompare
	}
	if f.CompGreater {
		fl |= codec.FlagDCGreater
	}
	if f.CompFlow {
		fl |= codec.FlagDCCompFlow
	}
	if f.MixTemp {
		fl |= codec.FlagTMixTemp
	}
	if f.Interpolate {
		fl |= codec.FlagInterpolate
	}
	if f.IgnoreLimit {
		fl |= codec.FlagIgnoreLimit
	}
	if f.FlowControl {
		fl |= codec.FlagCtrlFlow
	}
	return fl
}

// WireFrames renders the profile into the exact sequence of 8-byte frames
// that internal/device uploads to the machine: header, then each regular
// frame (with its extension frame interleaved immediately after, if any),
// then the mandatory tail frame.
func (p Profile) WireFrames() (header [5]byte, frames [][8]byte, err error) {
	if len(p.Frames) == 0 {
		return header, nil, fmt.Errorf("profile %q has no frames", p.Name)
	}
	if len(p.Frames) > 250 {
		return header, nil, fmt.Errorf("profile %q has too many frames (%d)", p.Name, len(p.Frames))
	}

	h := codec.FrameHeader{
		FrameCount:     uint8(len(p.Frames)),
		PreinfuseCount: uint8(p.PreinfuseCount),
		MinPressure:    p.MinPressure,
		MaxFlow:        p.MaxFlow,
	}
	header = codec.EncodeHeader(h)

	for i, f := range p.Frames {
		idx := uint8(i)
		cf := codec.Frame{
			Index:          idx,
			Flags:          f.flags(),
			SetVal:         f.SetVal,
			Temperature:    f.Temperature,
			DurationSec:    f.DurationSec,
			TriggerVal:     f.TriggerVal,
			VolumeLimit:    f.VolumeLimit,
			VolumeLimitTag: f.VolumeLimitTag,
		}
		frames = append(frames, cf.Encode())

		if f.Extension != nil {
			ef := codec.ExtensionFrame{
				ParentIndex: idx,
				Limit:       f.Extension.Limit,
				Range:       f.Extension.Range,
			}
			frames = append(frames, ef.Encode())
		}
	}

	tail := codec.TailFrame{
		FrameCount:     uint8(len(p.Frames)),
		MaxTotalVolume: p.MaxTotalVolume,
	}
	frames = append(frames, tail.Encode())

	return header, frames, nil
}

// MarshalJSON and UnmarshalJSON are the identity encoding.Profile already
// gets from its exported fields via the default encoding/json behavior;
// ToJSON/FromJSON below exist for callers (shot snapshotting, the backup
// engine's profile file copy) that want an explicit entry point rather
// than relying on encoding/json directly.

// ToJSON serializes the profile for storage (a shot's frozen profile_json
// snapshot, or a profiles/*.json file).
func (p Profile) ToJSON() ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// FromJSON parses a stored profile.
func FromJSON(data []byte) (Profile, error) {
	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("parse profile json: %w", err)
	}
	return p, nil
}
