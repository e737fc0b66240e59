package telemetry

import (
	"strings"
	"testing"
)

func TestNewPublisherDisabledReturnsNil(t *testing.T) {
	p, err := NewPublisher(Config{Enabled: false})
	if err != nil {
		t.Fatalf("NewPublisher(disabled): %v", err)
	}
	if p != nil {
		t.Fatalf("NewPublisher(disabled) = %v, want nil", p)
	}
}

func TestNilPublisherPublishAndCloseAreNoOps(t *testing.T) {
	var p *Publisher
	p.Publish(Event{Session: "s1", Kind: "connected"})
	p.Close()
}

func TestGenerateClientIDHasExpectedShapeAndIsUnique(t *testing.T) {
	a := generateClientID()
	b := generateClientID()

	if !strings.HasPrefix(a, "kiwirecorder_") {
		t.Fatalf("client id %q missing expected prefix", a)
	}
	if len(a) != len("kiwirecorder_")+16 {
		t.Fatalf("client id %q has length %d, want %d", a, len(a), len("kiwirecorder_")+16)
	}
	if a == b {
		t.Fatalf("two generated client ids collided: %q", a)
	}
}
