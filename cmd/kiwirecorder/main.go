// Command kiwirecorder connects to one or more KiwiSDR servers and
// records their audio, IQ, or waterfall stream to WAV files, fanning out
// across servers and applying optional squelch gating. Ported from
// kiwirecorder.py, in the CLI style of clients/iq-recorder/main.go.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cwsl/kiwirecorder/internal/config"
	"github.com/cwsl/kiwirecorder/internal/frame"
	"github.com/cwsl/kiwirecorder/internal/klog"
	"github.com/cwsl/kiwirecorder/internal/metrics"
	"github.com/cwsl/kiwirecorder/internal/pipeline"
	"github.com/cwsl/kiwirecorder/internal/recorder"
	"github.com/cwsl/kiwirecorder/internal/session"
	"github.com/cwsl/kiwirecorder/internal/squelch"
	"github.com/cwsl/kiwirecorder/internal/supervisor"
	"github.com/cwsl/kiwirecorder/internal/telemetry"
)

// stringSlice collects a repeatable -flag value=value=... CLI option into
// an ordered list.
type stringSlice []string

func (s *stringSlice) String() string { return strings.Join(*s, ",") }
func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

// intSlice is the repeatable-flag counterpart for integer options, like
// -port.
type intSlice []int

func (s *intSlice) String() string {
	parts := make([]string, len(*s))
	for i, v := range *s {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}
func (s *intSlice) Set(value string) error {
	v, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid integer %q: %w", value, err)
	}
	*s = append(*s, v)
	return nil
}

// floatSlice is the repeatable-flag counterpart for float options, like
// -freq.
type floatSlice []float64

func (s *floatSlice) String() string {
	parts := make([]string, len(*s))
	for i, v := range *s {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ",")
}
func (s *floatSlice) Set(value string) error {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q: %w", value, err)
	}
	*s = append(*s, v)
	return nil
}

// agcGainSlice collects -agc-gain values; "auto" (or omission) means AGC
// automatic, any number is a fixed manual gain, matching
// kiwirecorder.py's --agc-gain=auto sentinel.
type agcGainSlice []*float64

func (s *agcGainSlice) String() string { return "" }
func (s *agcGainSlice) Set(value string) error {
	if strings.EqualFold(value, "auto") {
		*s = append(*s, nil)
		return nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fmt.Errorf("invalid agc-gain %q: %w", value, err)
	}
	*s = append(*s, &v)
	return nil
}

func main() {
	var hosts, passwords, filenames, stations, users stringSlice
	var ports intSlice
	var freqs floatSlice
	var agcGains agcGainSlice

	flag.Var(&hosts, "server-host", "KiwiSDR server host (repeatable)")
	flag.Var(&ports, "server-port", "KiwiSDR server port (repeatable)")
	flag.Var(&passwords, "password", "Server password, if required (repeatable)")
	flag.Var(&freqs, "freq", "Tuned frequency in kHz (repeatable)")
	flag.Var(&agcGains, "agc-gain", "Manual AGC gain in dB, or 'auto' (repeatable)")
	flag.Var(&filenames, "filename", "Fixed output filename, without extension (repeatable)")
	flag.Var(&stations, "station", "Station id appended to the output filename (repeatable)")
	flag.Var(&users, "user", "Client identifier sent to the server (repeatable)")

	modulation := flag.String("modulation", "am", "am|lsb|usb|cw|nbfm|iq")
	lpCut := flag.Float64("lp-cut", -3000, "Low-pass cutoff in Hz")
	hpCut := flag.Float64("hp-cut", 3000, "High-pass cutoff in Hz")
	compression := flag.Bool("compression", true, "Enable ADPCM compression on the wire")
	squelchThreshold := flag.Float64("squelch-threshold", 0, "Squelch threshold in dB above the noise floor (0 disables squelch)")
	squelchTail := flag.Float64("squelch-tail", 1.0, "Squelch tail duration in seconds")
	timeLimit := flag.Float64("time-limit", 0, "Recording time limit in seconds (0 for unlimited)")
	dir := flag.String("dir", "", "Output directory")
	rotationSec := flag.Int("rotation-sec", 0, "Rotate to a new file every N seconds (0 disables rotation)")
	kiwiWav := flag.Bool("kiwi-wav", false, "Write kiwi-wav GPS-chunked files instead of plain WAV")
	tdoa := flag.Bool("tdoa", false, "Run in TDoA mode: print status and exit on failure instead of reconnecting forever")
	socketTimeout := flag.Int("socket-timeout", 10, "Socket read/write timeout in seconds")
	launchDelay := flag.Int("launch-delay", 0, "Delay in seconds between launching sessions on the same server")
	waterfall := flag.Bool("wf", false, "Process waterfall data instead of audio")
	sound := flag.Bool("snd", false, "Also process sound data when in waterfall mode")
	wfSummary := flag.Bool("wf-summary", false, "Log a one-line min/max/kHz waterfall bin summary at debug level")
	wfSpeed := flag.Int("wf-speed", 1, "Waterfall update rate in Hz")
	zoom := flag.Int("zoom", 0, "Waterfall zoom level")
	testMode := flag.Bool("test-mode", false, "Discard recorded audio instead of writing files")
	quiet := flag.Bool("quiet", false, "Suppress the periodic squelch status line")
	progress := flag.Bool("progress", false, "Print a one-line progress indicator instead of the squelch status line")
	configFile := flag.String("config", "", "YAML file describing one or more sessions, instead of flags")
	logLevel := flag.String("log", "warn", "debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Address to serve Prometheus /metrics on (empty disables)")
	mqttBroker := flag.String("mqtt-broker", "", "MQTT broker URL for telemetry events (empty disables)")
	mqttTopic := flag.String("mqtt-topic", "kiwirecorder/events", "MQTT topic for telemetry events")
	mqttUser := flag.String("mqtt-user", "", "MQTT username")
	mqttPass := flag.String("mqtt-pass", "", "MQTT password")
	gnssDir := flag.String("gnss-dir", "", "Directory to write GNSS position files to")

	flag.Parse()

	log := klog.New(klog.ParseLevel(*logLevel))

	var fanout config.Fanout
	wantWF, wantSND := *waterfall, *sound
	if *configFile != "" {
		fc, err := config.LoadFile(*configFile)
		if err != nil {
			log.Errorf("%v", err)
			os.Exit(1)
		}
		fanout = fc.ToFanout(time.Now().Unix(), os.Getpid())
		wantWF = wantWF || fc.Waterfall
		wantSND = wantSND || fc.Sound
	} else {
		if len(hosts) == 0 {
			log.Errorf("at least one -server-host is required")
			os.Exit(1)
		}
		fanout = config.Fanout{
			ServerHost:           hosts,
			ServerPort:           ports,
			Password:             passwords,
			Frequency:            freqs,
			AGCGain:              agcGains,
			Filename:             filenames,
			Station:              stations,
			User:                 users,
			Modulation:           *modulation,
			LPCutHz:              *lpCut,
			HPCutHz:              *hpCut,
			Compression:          *compression,
			SquelchTailSeconds:   *squelchTail,
			Dir:                  *dir,
			RotationSec:          *rotationSec,
			IsKiwiWAV:            *kiwiWav,
			IsTDoA:               *tdoa,
			SocketTimeoutSeconds: *socketTimeout,
			LaunchDelaySeconds:   *launchDelay,
			WFSpeedHz:            *wfSpeed,
			ZoomLevel:            *zoom,
			TestMode:             *testMode,
			Quiet:                *quiet,
			Progress:             *progress,
			NowUnix:              time.Now().Unix(),
			PID:                  os.Getpid(),
		}
		if *squelchThreshold != 0 {
			fanout.SquelchThresholdDB = squelchThreshold
		}
		if *timeLimit != 0 {
			fanout.TimeLimitSeconds = timeLimit
		}
	}

	// spawnSND/spawnWF mirror kiwirecorder.py's combined-launch logic: plain
	// SND by default, WF-only with -wf alone, and both worker sets when -wf
	// and -snd are given together.
	spawnSND := !wantWF || (wantWF && wantSND)
	spawnWF := wantWF

	var sessionCfgs []config.SessionConfig
	if spawnSND {
		sndFanout := fanout
		sndFanout.Stream = config.StreamSND
		sessionCfgs = append(sessionCfgs, sndFanout.Expand()...)
	}
	if spawnWF {
		wfFanout := fanout
		wfFanout.Stream = config.StreamWF
		// Offset the seed so a combined launch's WF sessions never collide
		// with its SND sessions' TimestampSeed (both derive from the same
		// NowUnix/PID base, one per ServerHost entry).
		wfFanout.NowUnix = fanout.NowUnix + int64(len(fanout.ServerHost))
		sessionCfgs = append(sessionCfgs, wfFanout.Expand()...)
	}
	if len(sessionCfgs) == 0 {
		log.Errorf("no sessions configured")
		os.Exit(1)
	}

	var m *metrics.Metrics
	if *metricsAddr != "" {
		m = metrics.New()
		go func() {
			if err := metrics.Serve(*metricsAddr); err != nil {
				log.Errorf("metrics server: %v", err)
			}
		}()
	}

	pub, err := telemetry.NewPublisher(telemetry.Config{
		Enabled:  *mqttBroker != "",
		Broker:   *mqttBroker,
		Username: *mqttUser,
		Password: *mqttPass,
		Topic:    *mqttTopic,
	})
	if err != nil {
		log.Warnf("telemetry disabled: %v", err)
	}
	defer pub.Close()

	sup := supervisor.New(log)
	var sessions []supervisor.Session
	for _, cfg := range sessionCfgs {
		a := newAdapter(cfg, log, m, pub, *gnssDir, sup, *wfSummary)
		sessions = append(sessions, supervisor.Session{Cfg: cfg, Worker: a})
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Infof("shutting down")
		sup.Stop()
		cancel()
	}()

	sup.Run(ctx, sessions)

	if fanout.IsTDoA {
		fmt.Printf("status=%d\n", sup.TDoAStatus())
	}
}

// adapter wires one session.Engine, pipeline.Pipeline, and recorder.Sink
// together, implementing both session.Dispatcher (frame handling) and
// supervisor.Worker (connection lifecycle) for a single session.
type adapter struct {
	cfg config.SessionConfig
	log *klog.Logger

	eng  *session.Engine
	sink *recorder.Sink
	pipe *pipeline.Pipeline

	metrics   *metrics.Metrics
	telemetry *telemetry.Publisher
	sup       *supervisor.Supervisor
	wfSummary bool

	lastProgress time.Time
}

func newAdapter(cfg config.SessionConfig, log *klog.Logger, m *metrics.Metrics, pub *telemetry.Publisher, gnssDir string, sup *supervisor.Supervisor, wfSummary bool) *adapter {
	a := &adapter{cfg: cfg, log: log, metrics: m, telemetry: pub, sup: sup, wfSummary: wfSummary}
	a.sink = recorder.New(cfg, log)
	if gnssDir != "" {
		a.sink.SetGNSSDir(gnssDir)
	}

	var sq *squelch.Squelch
	if cfg.SquelchThresholdDB != nil {
		sq = squelch.New(*cfg.SquelchThresholdDB, cfg.SquelchTailSeconds)
	}

	sinks := pipeline.Sinks{
		Audio:     a.onAudio,
		Waterfall: a.onWaterfall,
		OnSquelch: a.onSquelch,
		OnGPSLost: a.onGPSLost,
	}
	a.pipe = pipeline.New(false, cfg.Compression, cfg.Modulation == "iq", sq, sinks)

	a.eng = session.New(cfg, log, a)
	return a
}

func (a *adapter) onAudio(af pipeline.AudioFrame) {
	pcm := af.Raw
	if pcm == nil {
		pcm = interleaveLE(af.Samples)
	}
	var gps *recorder.GPSStamp
	if af.GPS != nil {
		gps = &recorder.GPSStamp{LastSolution: af.GPS.LastSolution, GPSSec: af.GPS.GPSSec, GPSNsec: af.GPS.GPSNsec}
	}
	if err := a.sink.Append(pcm, gps); err != nil {
		a.log.Errorf("%s:%d append: %v", a.cfg.ServerHost, a.cfg.ServerPort, err)
		return
	}
	if a.metrics != nil {
		label := strconv.Itoa(a.cfg.ConnIndex)
		a.metrics.FramesDecoded.WithLabelValues(label, "snd").Inc()
		a.metrics.BytesRecorded.WithLabelValues(label).Add(float64(len(pcm)))
	}
}

func (a *adapter) onWaterfall(wf pipeline.WaterfallFrame) {
	if a.metrics != nil {
		a.metrics.FramesDecoded.WithLabelValues(strconv.Itoa(a.cfg.ConnIndex), "wf").Inc()
	}
	if a.wfSummary {
		nbins, minDB, maxDB, minKHz, maxKHz, rbwKHz := pipeline.WaterfallSummary(wf.Samples, pipeline.DefaultSpanKHz)
		if nbins == 0 {
			return
		}
		a.log.Debugf("%s:%d wf samples %d bins %d..%d dB %.1f..%.1f kHz rbw %.0f kHz",
			a.cfg.ServerHost, a.cfg.ServerPort, nbins, minDB, maxDB, minKHz, maxKHz, rbwKHz)
	}
}

func (a *adapter) onSquelch(open bool, median, thresh float64) {
	if a.metrics != nil {
		v := 0.0
		if open {
			v = 1.0
		}
		a.metrics.SquelchOpen.WithLabelValues(strconv.Itoa(a.cfg.ConnIndex)).Set(v)
	}
	if !open {
		a.sink.Reset()
	}
	if a.cfg.Progress {
		now := time.Now()
		if now.Sub(a.lastProgress) >= time.Second {
			a.lastProgress = now
			fmt.Printf("\r%s:%d median=%.1f thresh=%.1f open=%v", a.cfg.ServerHost, a.cfg.ServerPort, median, thresh, open)
		}
		return
	}
	if !a.cfg.Quiet {
		a.log.Debugf("%s:%d squelch median=%.1f thresh=%.1f open=%v", a.cfg.ServerHost, a.cfg.ServerPort, median, thresh, open)
	}
}

func (a *adapter) onGPSLost() {
	if a.cfg.IsTDoA {
		a.sup.NoteGNSSUnavailable()
	}
}

func (a *adapter) onGNSS(lat, lon float64) {
	if err := a.sink.WriteGNSSPosition(lat, lon); err != nil {
		a.log.Warnf("write gnss position: %v", err)
	}
}

// HandleMsg satisfies session.Dispatcher; control.Channel already handled
// the parameters that require a protocol reply, so this callback only
// needs to cover informational bookkeeping.
func (a *adapter) HandleMsg(m *frame.Msg) error { return nil }

func (a *adapter) HandleSnd(s *frame.Snd) error { return a.pipe.HandleSnd(s) }
func (a *adapter) HandleWF(w *frame.WF) error   { return a.pipe.HandleWF(w) }

func (a *adapter) OnSampleRateKnown(rate float64) {
	a.sink.SetSampleRate(int(rate))
}

func (a *adapter) Connect() error {
	if a.telemetry != nil {
		a.telemetry.Publish(telemetry.Event{Session: strconv.Itoa(a.cfg.ConnIndex), Kind: "reconnecting", Host: a.cfg.ServerHost, Timestamp: time.Now()})
	}
	if a.metrics != nil {
		a.metrics.Reconnects.WithLabelValues(strconv.Itoa(a.cfg.ConnIndex)).Inc()
	}
	err := a.eng.Connect(a.onGNSS)
	if err == nil && a.metrics != nil {
		a.metrics.SessionUp.WithLabelValues(strconv.Itoa(a.cfg.ConnIndex)).Set(1)
	}
	if err == nil && a.telemetry != nil {
		a.telemetry.Publish(telemetry.Event{Session: strconv.Itoa(a.cfg.ConnIndex), Kind: "connected", Host: a.cfg.ServerHost, Timestamp: time.Now()})
	}
	return err
}

func (a *adapter) Open() error {
	return a.eng.Open()
}

func (a *adapter) RunOnce() error {
	return a.eng.RunOnce()
}

func (a *adapter) Close() {
	a.eng.Close()
	if a.metrics != nil {
		a.metrics.SessionUp.WithLabelValues(strconv.Itoa(a.cfg.ConnIndex)).Set(0)
	}
	if a.telemetry != nil {
		a.telemetry.Publish(telemetry.Event{Session: strconv.Itoa(a.cfg.ConnIndex), Kind: "disconnected", Host: a.cfg.ServerHost, Timestamp: time.Now()})
	}
}

func interleaveLE(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		out[i*2] = byte(uint16(s))
		out[i*2+1] = byte(uint16(s) >> 8)
	}
	return out
}
