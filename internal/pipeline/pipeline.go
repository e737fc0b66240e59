// Package pipeline adapts decoded frame bodies into audio, IQ, or waterfall
// callbacks, applying squelch gating, ported from _process_aud/_process_wf
// and the _process_*_samples hooks in kiwiclient.py.
package pipeline

import (
	"encoding/binary"

	"github.com/cwsl/kiwirecorder/internal/adpcm"
	"github.com/cwsl/kiwirecorder/internal/frame"
	"github.com/cwsl/kiwirecorder/internal/squelch"
)

// GPS carries the GPS timestamp embedded in an IQ-mode audio frame.
type GPS struct {
	LastSolution uint8
	GPSSec       uint32
	GPSNsec      uint32
}

// AudioFrame is a decoded audio or IQ frame ready for a sink.
type AudioFrame struct {
	Seq     uint32
	RSSIDBm float64
	// Samples holds mono i16 for audio mode, or interleaved (I, Q) pairs
	// for IQ mode.
	Samples []int16
	// Raw is set instead of Samples when the pipeline is configured for
	// raw mode: the frame body verbatim, except for compressed non-IQ
	// audio, which is ADPCM-decoded into little-endian i16 bytes.
	Raw  []byte
	GPS  *GPS
	IsIQ bool
}

// WaterfallFrame is a decoded waterfall row ready for a sink.
type WaterfallFrame struct {
	Seq     uint32
	Samples []byte // biased dB values: dBm = sample - 255 - cal offset
}

// Sinks receives the pipeline's output. A nil method means "not
// interested in this stream".
type Sinks struct {
	Audio     func(AudioFrame)
	Waterfall func(WaterfallFrame)
	OnSquelch func(open bool, median, thresh float64)
	OnGPSLost func() // called when an IQ frame reports no recent GNSS fix
}

// gpsLostSolution values per spec SPEC_FULL §NOTES: 255/254 both mean "no
// recent fix".
const (
	gpsSolutionNone1 = 255
	gpsSolutionNone2 = 254
)

// Pipeline owns the persistent audio ADPCM decoder state and per-frame
// dispatch logic for one session.
type Pipeline struct {
	audioDecoder *adpcm.Decoder
	wfDecoder    *adpcm.Decoder

	raw         bool
	compression bool
	isIQ        bool

	squelch *squelch.Squelch
	sinks   Sinks
}

// New creates a Pipeline. squelch may be nil to disable gating entirely.
func New(raw, compression, isIQ bool, sq *squelch.Squelch, sinks Sinks) *Pipeline {
	return &Pipeline{
		audioDecoder: adpcm.New(),
		wfDecoder:    adpcm.New(),
		raw:          raw,
		compression:  compression,
		isIQ:         isIQ,
		squelch:      sq,
		sinks:        sinks,
	}
}

// HandleSnd processes one SND frame per the non-IQ/IQ, raw/decoded
// dispatch matrix in spec §4.7.
func (p *Pipeline) HandleSnd(s *frame.Snd) error {
	rssi := s.RSSIDBm()
	body := s.Body

	var gps *GPS
	if p.isIQ {
		hdr, rest, err := frame.ParseGPSHeader(body)
		if err != nil {
			return err
		}
		gps = &GPS{LastSolution: hdr.LastSolution, GPSSec: hdr.GPSSec, GPSNsec: hdr.GPSNsec}
		body = rest
		if gps.LastSolution == gpsSolutionNone1 || gps.LastSolution == gpsSolutionNone2 {
			if p.sinks.OnGPSLost != nil {
				p.sinks.OnGPSLost()
			}
		}
	}

	af := AudioFrame{Seq: s.Seq, RSSIDBm: rssi, GPS: gps, IsIQ: p.isIQ}

	if p.raw {
		if p.compression && !p.isIQ {
			samples := p.audioDecoder.Decode(body)
			af.Raw = int16ToLEBytes(samples)
		} else {
			af.Raw = body
		}
	} else {
		switch {
		case p.isIQ:
			af.Samples = bigEndianI16Pairs(body)
		case p.compression:
			af.Samples = p.audioDecoder.Decode(body)
		default:
			af.Samples = bigEndianI16Pairs(body)
		}
	}

	if p.squelch != nil {
		st := p.squelch.Process(s.Seq, rssi)
		if p.sinks.OnSquelch != nil {
			p.sinks.OnSquelch(st.Open, st.Median, st.Thresh)
		}
		if !st.Open {
			return nil
		}
	}

	if p.sinks.Audio != nil {
		p.sinks.Audio(af)
	}
	return nil
}

// HandleWF processes one W/F frame. The decoder is reset before each body
// and the last 10 decoded samples (the decompression tail) are discarded,
// per spec §4.1.
func (p *Pipeline) HandleWF(w *frame.WF) error {
	if p.raw {
		if p.sinks.Waterfall != nil {
			p.sinks.Waterfall(WaterfallFrame{Seq: w.Seq, Samples: w.Body})
		}
		return nil
	}

	var samples []byte
	if p.compression {
		p.wfDecoder.Reset()
		decoded := p.wfDecoder.Decode(w.Body)
		if len(decoded) > 10 {
			decoded = decoded[:len(decoded)-10]
		} else {
			decoded = nil
		}
		samples = make([]byte, len(decoded))
		for i, v := range decoded {
			samples[i] = byte(v)
		}
	} else {
		samples = w.Body
	}

	if p.sinks.Waterfall != nil {
		p.sinks.Waterfall(WaterfallFrame{Seq: w.Seq, Samples: samples})
	}
	return nil
}

// DefaultSpanKHz is the waterfall's full frequency span, used only for the
// diagnostic summary below; it does not affect decoding.
const DefaultSpanKHz = 30000.0

// WaterfallSummary reduces one decoded waterfall row to a one-line
// diagnostic: bin count, min/max dB, and the kHz positions they fall at,
// ported from _process_waterfall_samples in kiwiclient.py.
func WaterfallSummary(samples []byte, spanKHz float64) (nbins int, minDB, maxDB int, minKHz, maxKHz, rbwKHz float64) {
	nbins = len(samples)
	if nbins == 0 {
		return
	}
	min, max := 256, -1
	bmin, bmax := 0, 0
	for i, s := range samples {
		v := int(s)
		if v > max {
			max, bmax = v, i
		}
		if v < min {
			min, bmin = v, i
		}
	}
	bins := nbins - 1
	if bins == 0 {
		bins = 1
	}
	minDB, maxDB = min-255, max-255
	minKHz = spanKHz * float64(bmin) / float64(bins)
	maxKHz = spanKHz * float64(bmax) / float64(bins)
	rbwKHz = spanKHz / float64(bins)
	return
}

func bigEndianI16Pairs(data []byte) []int16 {
	n := len(data) / 2
	out := make([]int16, n)
	for i := 0; i < n; i++ {
		out[i] = int16(binary.BigEndian.Uint16(data[i*2 : i*2+2]))
	}
	return out
}

func int16ToLEBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
