// Package squelch implements the noise-floor-tracking gate over the audio
// and IQ sample stream, ported from Squelch in kiwirecorder.py.
package squelch

import (
	"math"

	"github.com/cwsl/kiwirecorder/internal/noisefloor"
)

// framesPerSecond is the block rate the tail duration is quantized against:
// 512-sample blocks at a 12 kHz audio rate, matching
// round(squelch_tail*12000/512) in kiwirecorder.py.
const framesPerSecond = 12000.0 / 512.0

// hysteresisDB is subtracted from the opening threshold while the gate is
// already open, preventing chatter at the threshold boundary.
const hysteresisDB = 6.0

// State reports the gate's open/closed state after processing one frame,
// plus whether this call is the one that closed it (for callers that need
// to reset buffered timing state exactly once).
type State struct {
	Open   bool
	Closed bool // true only on the frame that transitions open -> closed
	Median float64
	Thresh float64
}

// Squelch gates a sequence of (seq, rssi) observations using a
// median-noise-floor ring plus hysteresis and a tail duration measured in
// frame sequence numbers.
type Squelch struct {
	ring        *noisefloor.Ring
	thresholdDB float64
	tailFrames  uint32

	armed    bool
	armedSeq uint32
}

// New creates a Squelch with the given threshold (dB above the noise
// floor median) and tail duration in seconds.
func New(thresholdDB, tailSeconds float64) *Squelch {
	return &Squelch{
		ring:        noisefloor.New(),
		thresholdDB: thresholdDB,
		tailFrames:  uint32(math.Round(tailSeconds * framesPerSecond)),
	}
}

// Process runs one (seq, rssi) observation through the gate policy
// described in spec §4.3 and returns the resulting state.
func (s *Squelch) Process(seq uint32, rssiDBm float64) State {
	if !s.armed || !s.ring.Filled() {
		s.ring.Insert(rssiDBm)
	}
	if !s.ring.Filled() {
		return State{Open: false}
	}

	medianNF := s.ring.Median()
	openThreshold := medianNF + s.thresholdDB
	isOpen := s.armed
	if isOpen {
		openThreshold -= hysteresisDB
	}

	if rssiDBm >= openThreshold {
		s.armedSeq = seq
		s.armed = true
		isOpen = true
	}

	if !isOpen {
		return State{Open: false, Median: medianNF, Thresh: openThreshold}
	}

	if seq > s.armedSeq+s.tailFrames {
		s.armed = false
		return State{Open: false, Closed: true, Median: medianNF, Thresh: openThreshold}
	}

	return State{Open: true, Median: medianNF, Thresh: openThreshold}
}
