package profile

import "testing"

func TestWireFramesSinglePressureFrame(t *testing.T) {
	p := Profile{
		Name:           "test",
		MinPressure:    0,
		MaxFlow:        6.0,
		PreinfuseCount: 0,
		MaxTotalVolume: 0,
		Frames: []Frame{
			{
				SetVal:      9.0,
				Temperature: 93.0,
				DurationSec: 30.0,
			},
		},
	}

	header, frames, err := p.WireFrames()
	if err != nil {
		t.Fatalf("WireFrames: %v", err)
	}

	wantHeader := [5]byte{1, 1, 0, 0, 96}
	if header != wantHeader {
		t.Errorf("header = %v, want %v", header, wantHeader)
	}

	if len(frames) != 2 {
		t.Fatalf("len(frames) = %d, want 2 (main + tail)", len(frames))
	}

	main := frames[0]
	if main[0] != 0 {
		t.Errorf("main frame index = %d, want 0", main[0])
	}
	if main[2] != 144 {
		t.Errorf("main frame set-val = %d, want 144", main[2])
	}
	if main[3] != 186 {
		t.Errorf("main frame temperature = %d, want 186", main[3])
	}
	if main[4] != 0x9E {
		t.Errorf("main frame duration = %#x, want 0x9E", main[4])
	}

	tail := frames[len(frames)-1]
	if tail[0] != uint8(len(p.Frames)) {
		t.Errorf("tail frame index = %d, want %d", tail[0], len(p.Frames))
	}
}

func TestWireFramesRejectsEmptyProfile(t *testing.T) {
	_, _, err := (Profile{Name: "empty"}).WireFrames()
	if err == nil {
		t.Fatal("expected error for profile with no frames")
	}
}

func TestWireFramesInterleavesExtension(t *testing.T) {
	p := Profile{
		Name: "ext",
		Frames: []Frame{
			{SetVal: 9.0, Temperature: 93.0, DurationSec: 10, Extension: &Extension{Limit: 5, Range: 1}},
		},
	}
	_, frames, err := p.WireFrames()
	if err != nil {
		t.Fatalf("WireFrames: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("len(frames) = %d, want 3 (main + extension + tail)", len(frames))
	}
	if frames[1][0] != 0x20 {
		t.Errorf("extension frame index = %#x, want 0x20", frames[1][0])
	}
}

func TestGenerateFramesValidatesFamily(t *testing.T) {
	_, err := GenerateFrames(RecipeParams{Family: "bogus", DoseGrams: 18, TotalTimeSeconds: 30})
	if err == nil {
		t.Fatal("expected error for unknown family")
	}
}

func TestGenerateFramesDFlowAddsExtension(t *testing.T) {
	p, err := GenerateFrames(RecipeParams{
		Family:           "d-flow",
		DoseGrams:        18,
		TargetRatio:      2.0,
		TotalTimeSeconds: 30,
	})
	if err != nil {
		t.Fatalf("GenerateFrames: %v", err)
	}
	main := p.Frames[len(p.Frames)-1]
	if main.Extension == nil {
		t.Fatal("expected d-flow recipe to add a limiter extension on the main frame")
	}
	if _, _, err := p.WireFrames(); err != nil {
		t.Errorf("generated profile failed to serialize: %v", err)
	}
}
