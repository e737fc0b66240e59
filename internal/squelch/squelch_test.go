package squelch

import "testing"

func fillNoiseFloor(s *Squelch, floorDB float64) {
	for seq := uint32(1); seq <= 65; seq++ {
		s.Process(seq, floorDB)
	}
}

func TestClosedWhileRingUnfilled(t *testing.T) {
	s := New(10, 1.0)
	st := s.Process(1, -100)
	if st.Open {
		t.Fatalf("squelch reports open before the noise floor ring has filled")
	}
}

func TestOpensAboveThreshold(t *testing.T) {
	s := New(10, 1.0)
	fillNoiseFloor(s, -100)

	st := s.Process(66, -80) // 20 dB above the -100 dBm floor, threshold is +10
	if !st.Open {
		t.Fatalf("squelch did not open at 20dB above threshold (median=%v thresh=%v)", st.Median, st.Thresh)
	}
}

func TestStaysOpenDuringTail(t *testing.T) {
	s := New(10, 1.0)
	fillNoiseFloor(s, -100)
	s.Process(66, -80) // opens at seq 66

	st := s.Process(70, -99) // well below threshold, but within the tail window
	if !st.Open || st.Closed {
		t.Fatalf("squelch closed during its tail window: %+v", st)
	}
}

func TestClosesAfterTailExpires(t *testing.T) {
	s := New(10, 1.0)
	fillNoiseFloor(s, -100)
	s.Process(66, -80) // opens at seq 66, tailFrames = round(1.0*12000/512) = 23

	st := s.Process(90, -99) // 90 > 66+23
	if st.Open || !st.Closed {
		t.Fatalf("squelch should have closed once the tail expired: %+v", st)
	}
}

func TestHysteresisKeepsGateOpenNearThreshold(t *testing.T) {
	s := New(10, 1.0)
	fillNoiseFloor(s, -100)
	s.Process(66, -80) // opens; open threshold for subsequent frames is -96 (10-6 below +10 over floor)

	// -94 is below the initial -90 open threshold but above the -96
	// hysteresis threshold, so it should re-arm rather than close.
	st := s.Process(67, -94)
	if !st.Open {
		t.Fatalf("hysteresis threshold not applied once armed: %+v", st)
	}
}
