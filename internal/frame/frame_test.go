package frame

import (
	"encoding/binary"
	"testing"
)

func TestParseMsg(t *testing.T) {
	payload := []byte("MSG\x00sample_rate=12000 badp=0 load_cfg")
	fr, ok, err := Parse(payload)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !ok || fr.Tag != TagMsg {
		t.Fatalf("expected a parsed MSG frame, got %+v ok=%v", fr, ok)
	}
	if got, want := *fr.Msg.Params["sample_rate"], "12000"; got != want {
		t.Errorf("sample_rate = %q, want %q", got, want)
	}
	if got, want := *fr.Msg.Params["badp"], "0"; got != want {
		t.Errorf("badp = %q, want %q", got, want)
	}
	if v, ok := fr.Msg.Params["load_cfg"]; !ok || v != nil {
		t.Errorf("load_cfg should be a bare key with nil value, got %v (present=%v)", v, ok)
	}
	wantOrder := []string{"sample_rate", "badp", "load_cfg"}
	if len(fr.Msg.Order) != len(wantOrder) {
		t.Fatalf("Order = %v, want %v", fr.Msg.Order, wantOrder)
	}
	for i, k := range wantOrder {
		if fr.Msg.Order[i] != k {
			t.Errorf("Order[%d] = %q, want %q", i, fr.Msg.Order[i], k)
		}
	}
}

func TestParseSnd(t *testing.T) {
	body := make([]byte, 7+4)
	body[0] = 0x01 // flags
	binary.LittleEndian.PutUint32(body[1:5], 42)
	binary.BigEndian.PutUint16(body[5:7], 1270) // RSSI raw: 0.1*1270-127 = 0.0
	copy(body[7:], []byte{0xde, 0xad, 0xbe, 0xef})

	payload := append([]byte("SND"), body...)
	fr, ok, err := Parse(payload)
	if err != nil || !ok || fr.Tag != TagSnd {
		t.Fatalf("Parse SND: ok=%v err=%v fr=%+v", ok, err, fr)
	}
	if fr.Snd.Seq != 42 {
		t.Errorf("Seq = %d, want 42", fr.Snd.Seq)
	}
	if got, want := fr.Snd.RSSIDBm(), 0.0; got != want {
		t.Errorf("RSSIDBm = %v, want %v", got, want)
	}
	if len(fr.Snd.Body) != 4 {
		t.Errorf("Body len = %d, want 4", len(fr.Snd.Body))
	}
}

func TestParseWF(t *testing.T) {
	body := make([]byte, 13+3)
	// body[0] is the skipped leading byte
	binary.LittleEndian.PutUint32(body[1:5], 100)  // xbin
	binary.LittleEndian.PutUint32(body[5:9], 7)    // flags/zoom
	binary.LittleEndian.PutUint32(body[9:13], 555) // seq
	copy(body[13:], []byte{1, 2, 3})

	payload := append([]byte("W/F"), body...)
	fr, ok, err := Parse(payload)
	if err != nil || !ok || fr.Tag != TagWF {
		t.Fatalf("Parse W/F: ok=%v err=%v fr=%+v", ok, err, fr)
	}
	if fr.WF.XBin != 100 || fr.WF.FlagsZoom != 7 || fr.WF.Seq != 555 {
		t.Errorf("WF header = %+v", fr.WF)
	}
	if len(fr.WF.Body) != 3 {
		t.Errorf("Body len = %d, want 3", len(fr.WF.Body))
	}
}

func TestParseUnknownTag(t *testing.T) {
	_, ok, err := Parse([]byte("ADM hello"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Fatalf("expected an unrecognized tag to return ok=false")
	}
}

func TestParseTooShort(t *testing.T) {
	_, _, err := Parse([]byte("AB"))
	if err == nil {
		t.Fatalf("expected an error for a too-short payload")
	}
}

func TestParseGPSHeader(t *testing.T) {
	data := make([]byte, 10+2)
	data[0] = 1 // last_solution
	binary.LittleEndian.PutUint32(data[2:6], 1234)
	binary.LittleEndian.PutUint32(data[6:10], 5678)
	copy(data[10:], []byte{0xaa, 0xbb})

	h, rest, err := ParseGPSHeader(data)
	if err != nil {
		t.Fatalf("ParseGPSHeader: %v", err)
	}
	if h.LastSolution != 1 || h.GPSSec != 1234 || h.GPSNsec != 5678 {
		t.Errorf("header = %+v", h)
	}
	if len(rest) != 2 {
		t.Errorf("rest len = %d, want 2", len(rest))
	}
}
