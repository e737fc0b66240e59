package recorder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cwsl/kiwirecorder/internal/config"
	"github.com/cwsl/kiwirecorder/internal/klog"
)

func testSink(t *testing.T, cfg config.SessionConfig) *Sink {
	t.Helper()
	dir := t.TempDir()
	cfg.Dir = dir
	s := New(cfg, klog.New(klog.LevelError))
	s.SetSampleRate(12000)
	return s
}

func TestAppendCreatesFileAndBackpatchesHeader(t *testing.T) {
	s := testSink(t, config.SessionConfig{Modulation: "am", FrequencyKHz: 1000, Filename: "capture"})

	if err := s.Append(make([]byte, 100), nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	fi, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("stat recorded file: %v", err)
	}
	if fi.Size() != int64(headerSize+100) {
		t.Fatalf("file size = %d, want %d", fi.Size(), headerSize+100)
	}

	if err := s.Append(make([]byte, 50), nil); err != nil {
		t.Fatalf("second Append: %v", err)
	}
	fi, err = os.Stat(s.Path())
	if err != nil {
		t.Fatalf("stat recorded file: %v", err)
	}
	if fi.Size() != int64(headerSize+150) {
		t.Fatalf("file size after 2nd append = %d, want %d", fi.Size(), headerSize+150)
	}
}

func TestFixedFilenameDoesNotRotate(t *testing.T) {
	s := testSink(t, config.SessionConfig{Modulation: "am", Filename: "fixed", RotationSec: 1})
	if err := s.Append([]byte{1, 2}, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	first := s.Path()
	time.Sleep(5 * time.Millisecond)
	if err := s.Append([]byte{3, 4}, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if s.Path() != first {
		t.Fatalf("fixed filename rotated: %q -> %q", first, s.Path())
	}
}

func TestResetForcesNewFileNextAppend(t *testing.T) {
	s := testSink(t, config.SessionConfig{Modulation: "am", FrequencyKHz: 1000})
	if err := s.Append([]byte{1, 2}, nil); err != nil {
		t.Fatalf("Append: %v", err)
	}
	first := s.Path()
	s.Reset()

	time.Sleep(1100 * time.Millisecond) // ensure a new wall-clock-derived filename
	if err := s.Append([]byte{3, 4}, nil); err != nil {
		t.Fatalf("Append after Reset: %v", err)
	}
	if s.Path() == first {
		t.Fatalf("Reset did not force a new output file")
	}
	if _, err := os.Stat(filepath.Dir(s.Path())); err != nil {
		t.Fatalf("expected output directory to still exist: %v", err)
	}
}

func TestKiwiWavWritesChunkFraming(t *testing.T) {
	s := testSink(t, config.SessionConfig{Modulation: "iq", FrequencyKHz: 1000, IsKiwiWAV: true})
	gps := &GPSStamp{LastSolution: 1, GPSSec: 10, GPSNsec: 20}
	if err := s.Append([]byte{1, 2, 3, 4}, gps); err != nil {
		t.Fatalf("Append: %v", err)
	}
	fi, err := os.Stat(s.Path())
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	// kiwi-wav: 36-byte static header (no data subchunk) + 18-byte kiwi
	// chunk + 8-byte data chunk header + 4 bytes of payload.
	want := int64(36 + 18 + 8 + 4)
	if fi.Size() != want {
		t.Fatalf("kiwi-wav file size = %d, want %d", fi.Size(), want)
	}
}
