package profile

import "fmt"

// RecipeParams is the higher-level description from which a Profile can be
// algorithmically generated, restoring the original app's recipe
// generator (ported here only as a second producer of Profile values, not
// as a full recipe-editing surface).
type RecipeParams struct {
	TargetRatio        float64 // yield/dose
	DoseGrams          float64
	TotalTimeSeconds   float64
	Family             string // "pressure", "flow", "d-flow", "a-flow"
	PreinfusionSeconds float64
	PreinfusionBar     float64
}

var validFamilies = map[string]bool{
	"pressure": true,
	"flow":     true,
	"d-flow":   true,
	"a-flow":   true,
}

// GenerateFrames builds a Profile from RecipeParams: a preinfusion frame,
// a short ramp frame, and a main extraction frame, sized by the requested
// family and total time. D-Flow and A-Flow recipes add a declining-limiter
// extension frame on the main step, mirroring the two named "flow
// shaping" families from the original recipe generator.
func GenerateFrames(p RecipeParams) (Profile, error) {
	if !validFamilies[p.Family] {
		return Profile{}, fmt.Errorf("unknown recipe family %q", p.Family)
	}
	if p.DoseGrams <= 0 {
		return Profile{}, fmt.Errorf("dose must be positive, got %f", p.DoseGrams)
	}
	if p.TotalTimeSeconds <= 0 {
		return Profile{}, fmt.Errorf("total time must be positive, got %f", p.TotalTimeSeconds)
	}

	flowControlled := p.Family == "flow" || p.Family == "a-flow"

	preinfuseSec := p.PreinfusionSeconds
	if preinfuseSec < 0 {
		preinfuseSec = 0
	}
	rampSec := 3.0
	mainSec := p.TotalTimeSeconds - preinfuseSec - rampSec
	if mainSec < 1 {
		mainSec = 1
	}

	setVal := 9.0 // bar, default pressure-profile target
	if flowControlled {
		setVal = 2.0 // mL/s, default flow-profile target
	}

	frames := []Frame{
		{
			Name:        "preinfusion",
			SetVal:      p.PreinfusionBar,
			Temperature: 93.0,
			DurationSec: preinfuseSec,
			TriggerVal:  0,
			Interpolate: false,
		},
		{
			Name:        "ramp",
			SetVal:      setVal,
			Temperature: 93.0,
			DurationSec: rampSec,
			Interpolate: true,
		},
		{
			Name:        "main",
			SetVal:      setVal,
			Temperature: 93.0,
			DurationSec: mainSec,
			DoCompare:   true,
			CompGreater: true,
			FlowControl: flowControlled,
		},
	}

	if p.Family == "d-flow" || p.Family == "a-flow" {
		frames[2].Extension = &Extension{
			Limit: setVal * 0.6,
			Range: 1.5,
		}
	}

	targetYield := p.DoseGrams * p.TargetRatio

	return Profile{
		Name:           fmt.Sprintf("%s %.0f:%.0f", p.Family, p.DoseGrams, targetYield),
		MinPressure:    0,
		MaxFlow:        6.0,
		PreinfuseCount: 1,
		MaxTotalVolume: targetYield * 1.2,
		Frames:         frames,
	}, nil
}
