package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// New registers every collector against the default Prometheus registry,
// so the whole suite shares a single Metrics built once: a second call
// would panic on duplicate registration.
func TestNewRegistersAndRecordsSamples(t *testing.T) {
	m := New()

	m.FramesDecoded.WithLabelValues("sess-0", "snd").Add(3)
	m.BytesRecorded.WithLabelValues("sess-0").Add(512)
	m.Reconnects.WithLabelValues("sess-0").Inc()
	m.SquelchOpen.WithLabelValues("sess-0").Set(1)
	m.SessionUp.WithLabelValues("sess-0").Set(1)

	if got := testutil.ToFloat64(m.FramesDecoded.WithLabelValues("sess-0", "snd")); got != 3 {
		t.Errorf("FramesDecoded = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.BytesRecorded.WithLabelValues("sess-0")); got != 512 {
		t.Errorf("BytesRecorded = %v, want 512", got)
	}
	if got := testutil.ToFloat64(m.Reconnects.WithLabelValues("sess-0")); got != 1 {
		t.Errorf("Reconnects = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SquelchOpen.WithLabelValues("sess-0")); got != 1 {
		t.Errorf("SquelchOpen = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.SessionUp.WithLabelValues("sess-0")); got != 1 {
		t.Errorf("SessionUp = %v, want 1", got)
	}

	m.SquelchOpen.WithLabelValues("sess-0").Set(0)
	if got := testutil.ToFloat64(m.SquelchOpen.WithLabelValues("sess-0")); got != 0 {
		t.Errorf("SquelchOpen after close = %v, want 0", got)
	}
}
