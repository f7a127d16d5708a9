package device

import "testing"

func TestParseShotSample(t *testing.T) {
	// 14 bytes: timer=0, pressure=0xE0(14.0), flow=0x20(2.0),
	// mix/head temp=0x0BB8(11.71875), set temp goal=0x5A(45.0), reserved=0,
	// set flow goal=0x0A(0.625), set pressure goal=0, frame=0, steam=0.
	raw := []byte{0x00, 0x00, 0xE0, 0x20, 0x0B, 0xB8, 0x0B, 0xB8, 0x5A, 0x00, 0x0A, 0x00, 0x00, 0x00}

	sample, ok := ParseShotSample(raw)
	if !ok {
		t.Fatal("expected sample to parse")
	}
	if sample.GroupPressure != 14.0 {
		t.Errorf("GroupPressure = %v, want 14.0", sample.GroupPressure)
	}
	if sample.GroupFlow != 2.0 {
		t.Errorf("GroupFlow = %v, want 2.0", sample.GroupFlow)
	}
	if sample.MixTemperature != 11.71875 {
		t.Errorf("MixTemperature = %v, want 11.71875", sample.MixTemperature)
	}
	if sample.HeadTemperature != 11.71875 {
		t.Errorf("HeadTemperature = %v, want 11.71875", sample.HeadTemperature)
	}
	if sample.SetTempGoal != 45.0 {
		t.Errorf("SetTempGoal = %v, want 45.0", sample.SetTempGoal)
	}
	if sample.SetFlowGoal != 0.625 {
		t.Errorf("SetFlowGoal = %v, want 0.625", sample.SetFlowGoal)
	}
	if sample.FrameNumber != 0 {
		t.Errorf("FrameNumber = %v, want 0", sample.FrameNumber)
	}
}

func TestParseShotSampleDiscardsShortBuffer(t *testing.T) {
	if _, ok := ParseShotSample(make([]byte, 13)); ok {
		t.Error("expected short buffer to be discarded")
	}
}
