package recorder

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cwsl/kiwirecorder/internal/config"
	"github.com/cwsl/kiwirecorder/internal/kiwierr"
	"github.com/cwsl/kiwirecorder/internal/klog"
)

// GPSStamp is the GPS timestamp associated with one append, used only in
// kiwi-wav mode.
type GPSStamp struct {
	LastSolution uint8
	GPSSec       uint32
	GPSNsec      uint32
}

// Sink is the recording sink described in spec §4.8: it opens and closes
// WAV files on demand, applying the filename and rotation policy, and
// back-patches the header after every append.
type Sink struct {
	cfg        config.SessionConfig
	sampleRate int
	channels   int
	log        *klog.Logger

	path      string
	startUTC  time.Time
	startedAt bool

	gnssDir string
}

// New creates a Sink. sampleRate is learned later from the server and set
// via SetSampleRate before the first append.
func New(cfg config.SessionConfig, log *klog.Logger) *Sink {
	channels := 1
	if cfg.Modulation == "iq" {
		channels = 2
	}
	return &Sink{cfg: cfg, channels: channels, log: log}
}

// SetSampleRate records the server-reported sample rate; must be called
// before the first Append.
func (s *Sink) SetSampleRate(rate int) {
	s.sampleRate = rate
}

// secOfDay returns seconds since UTC midnight, the rotation-boundary unit
// from spec §4.8.
func secOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// needsNewFile decides whether to open a new file: no file started yet,
// or a fixed rotation interval boundary has been crossed. A fixed
// --filename disables rotation, matching kiwirecorder.py's
// "self._options.filename == '' and ...".
func (s *Sink) needsNewFile(now time.Time) bool {
	if !s.startedAt {
		return true
	}
	if s.cfg.Filename != "" || s.cfg.RotationSec == 0 {
		return false
	}
	return secOfDay(now)/s.cfg.RotationSec != secOfDay(s.startUTC)/s.cfg.RotationSec
}

func (s *Sink) openNewFile(now time.Time) error {
	s.startUTC = now
	s.startedAt = true
	ts := now.Format("20060102T150405Z")
	s.path = s.cfg.OutputFilename(ts)

	f, err := os.Create(s.path)
	if err != nil {
		return kiwierr.Wrap(kiwierr.KindSink, "create wav file", err)
	}
	defer f.Close()

	if err := writeWAVHeader(f, 100, s.sampleRate, s.channels, s.cfg.IsKiwiWAV); err != nil {
		return kiwierr.Wrap(kiwierr.KindSink, "write initial wav header", err)
	}

	if s.cfg.IsTDoA {
		fmt.Printf("file=%d %s\n", s.cfg.ConnIndex, s.path)
	} else {
		s.log.Infof("started a new file: %s", s.path)
	}
	return nil
}

// Append writes one chunk of PCM samples (already interleaved by channel
// count) to the current file, rotating or opening as needed, and
// back-patches the header. gps is only used when cfg.IsKiwiWAV is set.
func (s *Sink) Append(pcmLE []byte, gps *GPSStamp) error {
	now := time.Now().UTC()
	if s.needsNewFile(now) {
		if err := s.openNewFile(now); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return kiwierr.Wrap(kiwierr.KindSink, "open wav file for append", err)
	}
	defer f.Close()

	if s.cfg.IsKiwiWAV {
		g := GPSStamp{}
		if gps != nil {
			g = *gps
		}
		if err := writeKiwiChunkHeader(f, g.LastSolution, g.GPSSec, g.GPSNsec); err != nil {
			return kiwierr.Wrap(kiwierr.KindSink, "write kiwi chunk", err)
		}
		if err := writeDataChunkHeader(f, uint32(len(pcmLE))); err != nil {
			return kiwierr.Wrap(kiwierr.KindSink, "write data chunk header", err)
		}
	}

	if _, err := f.Write(pcmLE); err != nil {
		return kiwierr.Wrap(kiwierr.KindSink, "write pcm data", err)
	}

	return s.updateHeader()
}

// updateHeader rewrites bytes 0..44 of the current file to reflect its
// current length, per spec §3's RecordingFile invariant.
func (s *Sink) updateHeader() error {
	f, err := os.OpenFile(s.path, os.O_RDWR, 0o644)
	if err != nil {
		return kiwierr.Wrap(kiwierr.KindSink, "reopen wav file for header update", err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return kiwierr.Wrap(kiwierr.KindSink, "stat wav file", err)
	}
	if fi.Size() < 8 {
		return nil
	}

	if _, err := f.Seek(0, 0); err != nil {
		return err
	}
	if err := writeWAVHeader(f, fi.Size(), s.sampleRate, s.channels, s.cfg.IsKiwiWAV); err != nil {
		return kiwierr.Wrap(kiwierr.KindSink, "rewrite wav header", err)
	}
	return nil
}

// SetGNSSDir configures the directory GNSS position files are written to.
// Empty means "no directory configured", in which case WriteGNSSPosition
// uses the session's Dir, or, when that is empty too, a gnss_pos/
// subdirectory if it exists, matching _on_gnss_position in kiwirecorder.py.
func (s *Sink) SetGNSSDir(dir string) {
	s.gnssDir = dir
}

// WriteGNSSPosition persists a GNSS fix to <dir>/<station>.txt in the
// Octave struct literal schema described in spec §4.8.
func (s *Sink) WriteGNSSPosition(lat, lon float64) error {
	dir := s.gnssDir
	if dir == "" {
		dir = s.cfg.Dir
	}
	if dir == "" {
		if fi, err := os.Stat("gnss_pos"); err == nil && fi.IsDir() {
			dir = "gnss_pos"
		} else {
			return nil
		}
	}
	station := s.cfg.Station
	if station == "" {
		station = "kiwi_noname"
	}
	path := dir + "/" + station + ".txt"
	varName := strings.ReplaceAll(station, "-", "_")
	line := fmt.Sprintf("d.%s = struct('coord', [%f,%f], 'host', '%s', 'port', %d);\n",
		varName, lat, lon, s.cfg.ServerHost, s.cfg.ServerPort)
	if err := os.WriteFile(path, []byte(line), 0o644); err != nil {
		return kiwierr.Wrap(kiwierr.KindSink, "write gnss position file", err)
	}
	return nil
}

// Path returns the currently open file's path, or "" if none is open yet.
func (s *Sink) Path() string {
	return s.path
}

// Reset clears the "file already started" state so the next Append opens
// a fresh file (or truncates a fixed filename), matching
// kiwirecorder.py's behavior of clearing _start_ts/_start_time when the
// squelch gate closes.
func (s *Sink) Reset() {
	s.startedAt = false
}
