// Package session implements the SessionEngine: WebSocket handshake,
// authentication, the blocking single-threaded receive loop, keepalive
// discipline, and error classification, ported from KiwiSDRStream/
// KiwiSDRStreamBase in kiwiclient.py.
package session

import (
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/cwsl/kiwirecorder/internal/config"
	"github.com/cwsl/kiwirecorder/internal/control"
	"github.com/cwsl/kiwirecorder/internal/frame"
	"github.com/cwsl/kiwirecorder/internal/kiwierr"
	"github.com/cwsl/kiwirecorder/internal/klog"
)

// Dispatcher receives the side effects of one received frame that the
// caller (the recording or netcat command) needs to act on.
type Dispatcher interface {
	HandleMsg(*frame.Msg) error
	HandleSnd(*frame.Snd) error
	HandleWF(*frame.WF) error
	// OnSampleRateKnown is invoked once the server's sample_rate message
	// has been parsed, so the caller can configure its sink.
	OnSampleRateKnown(rate float64)
}

// Engine owns one WebSocket connection for the lifetime of a session. It
// is not safe for concurrent use: the receive loop is single-threaded and
// blocking, per spec §5.
type Engine struct {
	cfg config.SessionConfig
	log *klog.Logger

	conn *websocket.Conn
	ctl  *control.Channel
	disp Dispatcher

	runID     uuid.UUID
	startTime time.Time
	closed    bool
}

// New creates an Engine bound to cfg. The control channel itself is built
// lazily in Connect, once a GNSS callback is available.
func New(cfg config.SessionConfig, log *klog.Logger, disp Dispatcher) *Engine {
	return &Engine{cfg: cfg, log: log, disp: disp, runID: uuid.New()}
}

// setControl installs the control channel once the engine has a sender to
// bind it to (done after Connect opens the socket).
func (e *Engine) setControl(onGNSS func(lat, lon float64)) {
	e.ctl = control.New(e, e.cfg, e.log, control.Callbacks{OnGNSSPosition: onGNSS})
}

// SendText implements control.Sender by writing a WebSocket text message.
func (e *Engine) SendText(msg string) error {
	if e.conn == nil {
		return kiwierr.New(kiwierr.KindIO, "send on unconnected session")
	}
	deadline := time.Now().Add(time.Duration(e.cfg.SocketTimeoutSeconds) * time.Second)
	if err := e.conn.SetWriteDeadline(deadline); err != nil {
		return kiwierr.Wrap(kiwierr.KindIO, "set write deadline", err)
	}
	if err := e.conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		return kiwierr.Wrap(kiwierr.KindIO, "write message", err)
	}
	return nil
}

// Connect opens the TCP connection and performs the WebSocket opening
// handshake against /<timestamp_seed>/<stream_kind>, per spec §4.6.
func (e *Engine) Connect(onGNSS func(lat, lon float64)) error {
	dialer := &websocket.Dialer{
		NetDial: (&net.Dialer{
			Timeout: time.Duration(e.cfg.SocketTimeoutSeconds) * time.Second,
		}).Dial,
		HandshakeTimeout: time.Duration(e.cfg.SocketTimeoutSeconds) * time.Second,
	}

	uri := fmt.Sprintf("ws://%s:%d/%d/%s", e.cfg.ServerHost, e.cfg.ServerPort, e.cfg.TimestampSeed, e.cfg.Stream)
	conn, _, err := dialer.Dial(uri, http.Header{})
	if err != nil {
		return kiwierr.Wrap(kiwierr.KindConnect, fmt.Sprintf("connect to %s:%d", e.cfg.ServerHost, e.cfg.ServerPort), err)
	}

	e.conn = conn
	e.closed = false
	e.startTime = time.Now()
	e.setControl(onGNSS)
	return nil
}

// Open sends the initial authentication message. Admin connections skip
// authentication entirely, matching kiwiclient.py's open(), which only
// sends SET auth for the SND and W/F stream kinds.
func (e *Engine) Open() error {
	if e.cfg.Stream == config.StreamAdmin {
		return nil
	}
	return e.ctl.SendAuth()
}

// ReadRaw receives exactly one WebSocket message verbatim, without
// tag-based dispatch. Intended for the admin/netcat stream kind, whose
// server replies do not follow the MSG/SND/W/F framing.
func (e *Engine) ReadRaw() ([]byte, error) {
	deadline := time.Now().Add(time.Duration(e.cfg.SocketTimeoutSeconds) * time.Second)
	if err := e.conn.SetReadDeadline(deadline); err != nil {
		return nil, kiwierr.Wrap(kiwierr.KindIO, "set read deadline", err)
	}
	_, data, err := e.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return nil, kiwierr.Wrap(kiwierr.KindServerTerminated, "server closed the connection cleanly", err)
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, kiwierr.Wrap(kiwierr.KindIO, "read timeout", err)
		}
		return nil, kiwierr.Wrap(kiwierr.KindServerTerminated, "server closed the connection unexpectedly", err)
	}
	return data, nil
}

// RunOnce receives and dispatches exactly one message, sending a
// keepalive after every SND/W/F frame, per spec §4.6. It also enforces
// the configured time limit.
func (e *Engine) RunOnce() error {
	if e.cfg.TimeLimitSeconds != nil {
		if time.Since(e.startTime).Seconds() > *e.cfg.TimeLimitSeconds {
			return kiwierr.New(kiwierr.KindTimeLimit, "time limit reached")
		}
	}

	deadline := time.Now().Add(time.Duration(e.cfg.SocketTimeoutSeconds) * time.Second)
	if err := e.conn.SetReadDeadline(deadline); err != nil {
		return kiwierr.Wrap(kiwierr.KindIO, "set read deadline", err)
	}

	msgType, data, err := e.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return kiwierr.Wrap(kiwierr.KindServerTerminated, "server closed the connection cleanly", err)
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return kiwierr.Wrap(kiwierr.KindIO, "read timeout", err)
		}
		return kiwierr.Wrap(kiwierr.KindServerTerminated, "server closed the connection unexpectedly", err)
	}
	if msgType != websocket.BinaryMessage && msgType != websocket.TextMessage {
		return nil
	}

	fr, ok, err := frame.Parse(data)
	if err != nil {
		return kiwierr.Wrap(kiwierr.KindProtocol, "parse frame", err)
	}
	if !ok {
		e.log.Warnf("unknown tag %q", string(data[:min(3, len(data))]))
		return nil
	}

	switch fr.Tag {
	case frame.TagMsg:
		if err := e.ctl.Dispatch(fr.Msg); err != nil {
			return err
		}
		if err := e.disp.HandleMsg(fr.Msg); err != nil {
			return kiwierr.Wrap(kiwierr.KindProtocol, "handle msg", err)
		}
		if sr, ok := sampleRateOf(fr.Msg); ok {
			e.disp.OnSampleRateKnown(sr)
		}
		return nil

	case frame.TagSnd:
		err := e.disp.HandleSnd(fr.Snd)
		if kaErr := e.ctl.SendKeepalive(); kaErr != nil {
			return kaErr
		}
		if err != nil {
			e.log.Errorf("handle snd: %v", err)
		}
		return nil

	case frame.TagWF:
		err := e.disp.HandleWF(fr.WF)
		if kaErr := e.ctl.SendKeepalive(); kaErr != nil {
			return kaErr
		}
		if err != nil {
			e.log.Errorf("handle wf: %v", err)
		}
		return nil
	}
	return nil
}

func sampleRateOf(m *frame.Msg) (float64, bool) {
	v, ok := m.Params["sample_rate"]
	if !ok || v == nil {
		return 0, false
	}
	var f float64
	if _, err := fmt.Sscanf(*v, "%g", &f); err != nil {
		return 0, false
	}
	return f, true
}

// Close issues a GOING_AWAY close frame and closes the socket. Idempotent
// and safe after a partial failure, per spec §9 Open Question 4, bounded
// by the configured socket timeout.
func (e *Engine) Close() {
	if e.conn == nil || e.closed {
		return
	}
	e.closed = true
	deadline := time.Now().Add(time.Duration(e.cfg.SocketTimeoutSeconds) * time.Second)
	_ = e.conn.SetWriteDeadline(deadline)
	closeMsg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
	_ = e.conn.WriteMessage(websocket.CloseMessage, closeMsg)
	_ = e.conn.Close()
}

// RunID returns the random id minted for this Engine in New. The engine
// itself does not write it to log lines or to any output.
func (e *Engine) RunID() uuid.UUID {
	return e.runID
}
