package pipeline

import (
	"encoding/binary"
	"testing"

	"github.com/cwsl/kiwirecorder/internal/frame"
	"github.com/cwsl/kiwirecorder/internal/squelch"
)

func TestHandleSndDecodedAudio(t *testing.T) {
	var got AudioFrame
	p := New(false, true, false, nil, Sinks{
		Audio: func(af AudioFrame) { got = af },
	})
	// A single 0x00 byte decodes (via the ADPCM decoder) to two zero
	// samples.
	if err := p.HandleSnd(&frame.Snd{Seq: 1, SMeter: 1270, Body: []byte{0x00}}); err != nil {
		t.Fatalf("HandleSnd: %v", err)
	}
	if got.Seq != 1 {
		t.Errorf("Seq = %d, want 1", got.Seq)
	}
	if len(got.Samples) != 2 || got.Samples[0] != 0 || got.Samples[1] != 0 {
		t.Errorf("Samples = %v, want [0 0]", got.Samples)
	}
}

func TestHandleSndUncompressedBigEndian(t *testing.T) {
	var got AudioFrame
	p := New(false, false, false, nil, Sinks{
		Audio: func(af AudioFrame) { got = af },
	})
	body := make([]byte, 4)
	neg := int16(-5)
	binary.BigEndian.PutUint16(body[0:2], uint16(neg))
	binary.BigEndian.PutUint16(body[2:4], 1000)
	if err := p.HandleSnd(&frame.Snd{Seq: 2, Body: body}); err != nil {
		t.Fatalf("HandleSnd: %v", err)
	}
	if len(got.Samples) != 2 || got.Samples[0] != -5 || got.Samples[1] != 1000 {
		t.Errorf("Samples = %v, want [-5 1000]", got.Samples)
	}
}

func TestHandleSndIQSplitsGPSHeader(t *testing.T) {
	var got AudioFrame
	var gpsLostCalled bool
	p := New(false, false, true, nil, Sinks{
		Audio:     func(af AudioFrame) { got = af },
		OnGPSLost: func() { gpsLostCalled = true },
	})
	gps := make([]byte, 10)
	gps[0] = 0 // has a recent solution
	iq := make([]byte, 4)
	binary.BigEndian.PutUint16(iq[0:2], 10)
	binary.BigEndian.PutUint16(iq[2:4], 20)
	body := append(gps, iq...)
	if err := p.HandleSnd(&frame.Snd{Seq: 3, Body: body}); err != nil {
		t.Fatalf("HandleSnd: %v", err)
	}
	if got.GPS == nil {
		t.Fatalf("expected a parsed GPS header")
	}
	if gpsLostCalled {
		t.Errorf("OnGPSLost should not fire with a valid solution")
	}
	if len(got.Samples) != 2 || got.Samples[0] != 10 || got.Samples[1] != 20 {
		t.Errorf("Samples = %v, want [10 20]", got.Samples)
	}
}

func TestHandleSndIQNoSolutionFiresGPSLost(t *testing.T) {
	var gpsLostCalled bool
	p := New(false, false, true, nil, Sinks{
		Audio:     func(AudioFrame) {},
		OnGPSLost: func() { gpsLostCalled = true },
	})
	gps := make([]byte, 10)
	gps[0] = 255 // no recent solution
	body := append(gps, make([]byte, 4)...)
	if err := p.HandleSnd(&frame.Snd{Seq: 4, Body: body}); err != nil {
		t.Fatalf("HandleSnd: %v", err)
	}
	if !gpsLostCalled {
		t.Fatalf("expected OnGPSLost to fire when last_solution=255")
	}
}

func TestHandleWFDecodesAndTrimsTail(t *testing.T) {
	var got WaterfallFrame
	p := New(false, true, false, nil, Sinks{
		Waterfall: func(wf WaterfallFrame) { got = wf },
	})
	// 11 zero bytes decode to 22 samples; the last 10 are trimmed.
	body := make([]byte, 11)
	if err := p.HandleWF(&frame.WF{Seq: 9, Body: body}); err != nil {
		t.Fatalf("HandleWF: %v", err)
	}
	if len(got.Samples) != 12 {
		t.Fatalf("Samples len = %d, want 12", len(got.Samples))
	}
}

func TestHandleWFRawPassesThroughUndecoded(t *testing.T) {
	var got WaterfallFrame
	p := New(true, true, false, nil, Sinks{
		Waterfall: func(wf WaterfallFrame) { got = wf },
	})
	body := []byte{1, 2, 3}
	if err := p.HandleWF(&frame.WF{Seq: 1, Body: body}); err != nil {
		t.Fatalf("HandleWF: %v", err)
	}
	if len(got.Samples) != 3 {
		t.Fatalf("raw waterfall body should pass through untouched, got %v", got.Samples)
	}
}

func TestHandleSndSquelchClosedDropsFrame(t *testing.T) {
	called := false
	var lastOpen bool
	p := New(false, false, false, squelch.New(10, 1), Sinks{
		Audio:     func(AudioFrame) { called = true },
		OnSquelch: func(open bool, median, thresh float64) { lastOpen = open },
	})
	body := make([]byte, 4)
	if err := p.HandleSnd(&frame.Snd{Seq: 1, SMeter: 0, Body: body}); err != nil {
		t.Fatalf("HandleSnd: %v", err)
	}
	if called {
		t.Fatalf("Audio sink should not be invoked while squelch is closed")
	}
	if lastOpen {
		t.Fatalf("OnSquelch reported open, want closed")
	}
}
