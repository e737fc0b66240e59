// Package config defines the immutable per-session configuration record and
// the fan-out logic that expands scalar-or-list CLI/YAML options into one
// SessionConfig per server, ported from options_cross_product in
// kiwirecorder.py.
package config

import (
	"fmt"
	"os"
)

// StreamKind selects which of the three session personalities a session
// drives: sound, waterfall, or a raw admin/netcat connection.
type StreamKind string

const (
	StreamSND   StreamKind = "SND"
	StreamWF    StreamKind = "W/F"
	StreamAdmin StreamKind = "admin"
)

// SessionConfig is the immutable per-session record described in spec §3.
// Fanout.Expand is the only place that should populate one from a Fanout.
type SessionConfig struct {
	ServerHost string
	ServerPort int
	Password   string

	FrequencyKHz float64
	Modulation   string // am|lsb|usb|cw|nbfm|iq
	LPCutHz      float64
	HPCutHz      float64
	AGCGain      *float64 // nil => AGC auto

	Compression bool

	SquelchThresholdDB *float64
	SquelchTailSeconds float64

	User string

	TimeLimitSeconds *float64

	Dir          string
	Filename     string
	Station      string
	RotationSec  int
	IsKiwiWAV    bool
	IsTDoA       bool
	ConnIndex    int
	Multiplicity bool // true when more than one connection was fanned out

	SocketTimeoutSeconds int
	LaunchDelaySeconds   int

	Stream StreamKind

	WFSpeedHz int
	ZoomLevel int

	TestMode bool
	Quiet    bool
	Progress bool

	// TimestampSeed is the unique-per-process connection id used for the
	// WebSocket handshake URI ("/<seed>/<stream>"), derived at fan-out
	// time from wall clock + pid + index.
	TimestampSeed uint32
}

// LPCutForModulation returns the low-pass cutoff to actually send to the
// server: for AM modulation the server-side convention is lp := -hp
// (spec §3 invariant), for everything else it's the configured LPCutHz.
func (c SessionConfig) LPCutForModulation() float64 {
	if c.Modulation == "am" {
		return -c.HPCutHz
	}
	return c.LPCutHz
}

// OutputFilename computes the WAV file path per spec §4.8, prefixed with
// Dir when Dir is set.
func (c SessionConfig) OutputFilename(startTimestamp string) string {
	if c.TestMode {
		return os.DevNull
	}
	station := ""
	if c.Station != "" {
		station = "_" + c.Station
	} else if c.Multiplicity {
		station = fmt.Sprintf("_%d", c.ConnIndex)
	}

	var base string
	if c.Filename != "" {
		base = fmt.Sprintf("%s%s.wav", c.Filename, station)
	} else {
		base = fmt.Sprintf("%s_%d%s_%s.wav", startTimestamp, int(c.FrequencyKHz*1000), station, c.Modulation)
	}
	if c.Dir != "" {
		return c.Dir + "/" + base
	}
	return base
}
