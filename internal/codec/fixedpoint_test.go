package codec

import "testing"

func TestU8P4RoundTrip(t *testing.T) {
	if got := EncodeU8P4(9.0); got != 144 {
		t.Errorf("EncodeU8P4(9.0) = %d, want 144", got)
	}
	if got := DecodeU8P4(144); got != 9.0 {
		t.Errorf("DecodeU8P4(144) = %v, want 9.0", got)
	}

	for _, v := range []float64{0, 0.0625, 3.5, 15.9375, 20} {
		enc := EncodeU8P4(v)
		dec := DecodeU8P4(enc)
		clamped := clamp(v, 0, 15.9375)
		if diff := dec - clamped; diff > 1.0/16 || diff < -1.0/16 {
			t.Errorf("U8P4 round trip for %v: got %v, out of resolution tolerance", v, dec)
		}
	}
}

func TestU8P1(t *testing.T) {
	if got := EncodeU8P1(93.0); got != 186 {
		t.Errorf("EncodeU8P1(93.0) = %d, want 186", got)
	}
}

func TestF8_1_7(t *testing.T) {
	if got := DecodeF8_1_7(62); got != 6.2 {
		t.Errorf("DecodeF8_1_7(62) = %v, want 6.2", got)
	}
	if got := EncodeF8_1_7(30.0); got != 0x9E {
		t.Errorf("EncodeF8_1_7(30.0) = %#x, want 0x9E", got)
	}
	if got := DecodeF8_1_7(0x9E); got != 30.0 {
		t.Errorf("DecodeF8_1_7(0x9E) = %v, want 30.0", got)
	}
	if got := EncodeF8_1_7(5.0); got != 50 {
		t.Errorf("EncodeF8_1_7(5.0) = %d, want 50", got)
	}
}

func TestU24P0(t *testing.T) {
	b := EncodeU24P0(0x80381C)
	want := [3]byte{0x80, 0x38, 0x1C}
	if b != want {
		t.Errorf("EncodeU24P0(0x80381C) = %v, want %v", b, want)
	}
	if got := DecodeU24P0(b[:]); got != 0x80381C {
		t.Errorf("DecodeU24P0 round trip = %#x, want 0x80381C", got)
	}
	if got := DecodeU24P0([]byte{0x01}); got != 0 {
		t.Errorf("DecodeU24P0 short buffer = %d, want 0", got)
	}
}

func TestU32P0ShortBufferDecodesZero(t *testing.T) {
	if got := DecodeU32P0(nil); got != 0 {
		t.Errorf("DecodeU32P0(nil) = %d, want 0", got)
	}
}

func TestU10P0TagBit(t *testing.T) {
	u := EncodeU10P0(500, true)
	v, tag := DecodeU10P0(u)
	if v != 500 || !tag {
		t.Errorf("DecodeU10P0 = (%v, %v), want (500, true)", v, tag)
	}

	u2 := EncodeU10P0(1023, false)
	v2, tag2 := DecodeU10P0(u2)
	if v2 != 1023 || tag2 {
		t.Errorf("DecodeU10P0 = (%v, %v), want (1023, false)", v2, tag2)
	}
}

func TestDecode3CharToU24P16(t *testing.T) {
	got := Decode3CharToU24P16(1, 128, 0)
	want := 1.5
	if got != want {
		t.Errorf("Decode3CharToU24P16(1,128,0) = %v, want %v", got, want)
	}
}
