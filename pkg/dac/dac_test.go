package dac

import (
	"math"
	"testing"
)

func TestCodeNominal(t *testing.T) {
	cal := DefaultCalibration()
	ns := NominalScale

	tests := []struct {
		note uint8
		want uint16
	}{
		{24, 0},
		{36, uint16(12 * ns)},
		{60, uint16(36 * ns)},
		{111, uint16(87 * ns)},
	}
	for _, tt := range tests {
		if got := Code(tt.note, 0, 2, 0, &cal); got != tt.want {
			t.Errorf("Code(%d) = %d, want %d", tt.note, got, tt.want)
		}
	}
}

func TestCodeClampsOutOfRangeNotes(t *testing.T) {
	cal := DefaultCalibration()
	for n := 0; n < 128; n++ {
		note := uint8(n)
		if note >= MinNote && note <= MaxNote {
			continue
		}
		got := Code(note, 0, 2, 0, &cal)
		want := Code(ClampNote(note), 0, 2, 0, &cal)
		if got != want {
			t.Errorf("Code(%d) = %d, want clamped %d", note, got, want)
		}
	}
}

func TestCodeClampsToDACRange(t *testing.T) {
	cal := DefaultCalibration()

	if got := Code(MinNote, -1, 12, 0, &cal); got != 0 {
		t.Errorf("full downward bend at lowest note = %d, want 0", got)
	}
	if got := Code(MaxNote, 1, 24, 5, &cal); got != MaxCode {
		t.Errorf("full upward bend at highest note = %d, want %d", got, MaxCode)
	}
}

func TestCodeOffsets(t *testing.T) {
	cal := DefaultCalibration()
	ns := NominalScale
	base := Code(60, 0, 2, 0, &cal)

	bent := Code(60, 1, 2, 0, &cal)
	if want := base + uint16(2*ns); bent != want {
		t.Errorf("bend +2 semitones = %d, want %d", bent, want)
	}

	vib := Code(60, 0, 2, 0.5, &cal)
	if want := base + uint16(0.5*ns); vib != want {
		t.Errorf("vibrato +0.5 semitone = %d, want %d", vib, want)
	}
}

func TestScaleAtAnchorsAndInterpolation(t *testing.T) {
	var cal Calibration
	for i := range cal {
		cal[i] = 40 + float64(i)
	}

	for i := 0; i < Points; i++ {
		if got := cal.ScaleAt(i * Interval); got != cal[i] {
			t.Errorf("ScaleAt(anchor %d) = %v, want %v", i, got, cal[i])
		}
	}

	if got := cal.ScaleAt(6); math.Abs(got-40.5) > 1e-9 {
		t.Errorf("ScaleAt(6) = %v, want 40.5", got)
	}

	last := cal[Points-1]
	for _, idx := range []int{(Points - 1) * Interval, (Points-1)*Interval + 5, 500} {
		if got := cal.ScaleAt(idx); got != last {
			t.Errorf("ScaleAt(%d) = %v, want last anchor %v", idx, got, last)
		}
	}
}

func TestAdjust(t *testing.T) {
	cal := DefaultCalibration()

	if cal.Adjust(0, 0.1) {
		t.Error("Adjust(0) should be refused")
	}
	if cal.Adjust(3, 0) {
		t.Error("Adjust with zero volts should be refused")
	}

	// anchor 2 measured 2.1 V instead of 2 V: scale must shrink
	if !cal.Adjust(2, 2.1) {
		t.Fatal("Adjust(2, 2.1) = false")
	}
	want := NominalScale * 2 / 2.1
	if math.Abs(cal[2]-want) > 1e-9 {
		t.Errorf("cal[2] = %v, want %v", cal[2], want)
	}
	if cal[1] != NominalScale {
		t.Errorf("neighbouring anchor changed: %v", cal[1])
	}
}

func TestAnchorCode(t *testing.T) {
	cal := DefaultCalibration()
	ns := NominalScale
	if got := cal.AnchorCode(1); got != uint16(12*ns) {
		t.Errorf("AnchorCode(1) = %d", got)
	}
	if got := cal.AnchorCode(10); got != MaxCode {
		t.Errorf("AnchorCode(10) = %d, want clamp to %d", got, MaxCode)
	}
}

func TestFrame(t *testing.T) {
	tests := []struct {
		ch   uint8
		code uint16
		want [2]byte
	}{
		{0, 0, [2]byte{0x10, 0x00}},
		{1, 0x0ABC, [2]byte{0x9A, 0xBC}},
		{0, 0x1FFF, [2]byte{0x1F, 0xFF}}, // clamped to 4095
	}
	for _, tt := range tests {
		got := Frame(tt.ch, tt.code)
		if got != tt.want {
			t.Errorf("Frame(%d, %#x) = % X, want % X", tt.ch, tt.code, got, tt.want)
		}
	}

	ch, code := ParseFrame(Frame(1, 1234))
	if ch != 1 || code != 1234 {
		t.Errorf("ParseFrame = %d, %d, want 1, 1234", ch, code)
	}
}
