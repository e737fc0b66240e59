package adpcm

import (
	"reflect"
	"testing"
)

func TestDecodeZeroByte(t *testing.T) {
	d := New()
	got := d.Decode([]byte{0x00})
	want := []int16{0, 0}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Decode(0x00) = %v, want %v", got, want)
	}
}

func TestDecodeReferenceVector(t *testing.T) {
	d := New()
	got := d.Decode([]byte{0xFF})
	want := []int16{-11, -41}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Decode(0xFF) = %v, want %v", got, want)
	}
}

func TestResetClearsState(t *testing.T) {
	d := New()
	d.Decode([]byte{0xFF, 0xFF})
	d.Reset()
	got := d.Decode([]byte{0x00})
	want := []int16{0, 0}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Decode after Reset = %v, want %v", got, want)
	}
}

func TestClamp(t *testing.T) {
	cases := []struct{ x, lo, hi, want int }{
		{5, 0, 10, 5},
		{-1, 0, 10, 0},
		{20, 0, 10, 10},
	}
	for _, c := range cases {
		if got := clamp(c.x, c.lo, c.hi); got != c.want {
			t.Errorf("clamp(%d, %d, %d) = %d, want %d", c.x, c.lo, c.hi, got, c.want)
		}
	}
}
