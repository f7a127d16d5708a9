package transport

import "testing"

func TestLetterMapping(t *testing.T) {
	cases := []struct {
		low    uint16
		letter byte
	}{
		{0xA001, 'A'},
		{0xA00E, 'N'},
		{0xA012, 'R'},
	}
	for _, c := range cases {
		got, ok := Letter(c.low)
		if !ok || got != c.letter {
			t.Errorf("Letter(0x%04X) = (%c, %v), want (%c, true)", c.low, got, ok, c.letter)
		}
	}

	if _, ok := Letter(0xA013); ok {
		t.Error("Letter(0xA013) should be out of range")
	}
	if _, ok := Letter(0x9FFF); ok {
		t.Error("Letter(0x9FFF) should be out of range")
	}
}

func TestLowFromLetterRoundTrip(t *testing.T) {
	for low := uint16(0xA001); low <= 0xA012; low++ {
		letter, ok := Letter(low)
		if !ok {
			t.Fatalf("Letter(0x%04X) unexpectedly out of range", low)
		}
		gotLow, ok := LowFromLetter(letter)
		if !ok || gotLow != low {
			t.Errorf("LowFromLetter(%c) = (0x%04X, %v), want (0x%04X, true)", letter, gotLow, ok, low)
		}
		// lowercase should parse the same
		lower := letter + ('a' - 'A')
		gotLow2, ok2 := LowFromLetter(lower)
		if !ok2 || gotLow2 != low {
			t.Errorf("LowFromLetter(%c) (lowercase) = (0x%04X, %v), want (0x%04X, true)", lower, gotLow2, ok2, low)
		}
	}
}

func TestParseNotificationLine(t *testing.T) {
	// 14-byte shot sample notification for SHOT_SAMPLE (letter 'N').
	low, data, ok := parseNotificationLine("[N]0000E0200BB80BB85A000A000000")
	if !ok {
		t.Fatal("expected notification line to parse")
	}
	if low != LowShotSample {
		t.Errorf("low = 0x%04X, want 0x%04X (SHOT_SAMPLE)", low, LowShotSample)
	}
	if len(data) != 14 {
		t.Errorf("len(data) = %d, want 14", len(data))
	}
}

func TestParseNotificationLineRejectsMalformed(t *testing.T) {
	for _, line := range []string{"", "garbage", "[Z]00", "[N]zz"} {
		if _, _, ok := parseNotificationLine(line); ok {
			t.Errorf("parseNotificationLine(%q) should fail to parse", line)
		}
	}
}
