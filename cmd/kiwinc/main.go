// Command kiwinc is a raw netcat-style KiwiSDR client: it streams decoded
// (or raw) audio, IQ, or waterfall bytes to stdout, or drives the admin
// websocket with lines read from stdin, one connection at a time. Ported
// from kiwi_nc.py, reusing the SND/W/F session machinery built for
// kiwirecorder and adding an admin writer role kiwirecorder has no use
// for.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/cwsl/kiwirecorder/internal/config"
	"github.com/cwsl/kiwirecorder/internal/frame"
	"github.com/cwsl/kiwirecorder/internal/kiwierr"
	"github.com/cwsl/kiwirecorder/internal/klog"
	"github.com/cwsl/kiwirecorder/internal/pipeline"
	"github.com/cwsl/kiwirecorder/internal/session"
	"github.com/cwsl/kiwirecorder/internal/squelch"
)

func main() {
	host := flag.String("server-host", "localhost", "KiwiSDR server host")
	port := flag.Int("server-port", 8073, "KiwiSDR server port")
	password := flag.String("password", "", "Server password, if required")
	user := flag.String("user", "kiwirecorder.go", "Client identifier sent to the server")
	freq := flag.Float64("freq", 1000, "Frequency in kHz")
	modulation := flag.String("modulation", "am", "am|lsb|usb|cw|nbfm|iq")
	lpCut := flag.Float64("lp-cut", 100, "Low-pass cutoff in Hz")
	hpCut := flag.Float64("hp-cut", 2600, "High-pass cutoff in Hz")
	agcGain := flag.Float64("agc-gain", -1, "Manual AGC gain in dB; negative means AGC auto")
	noCompression := flag.Bool("ncomp", false, "Disable ADPCM compression")
	squelchThresh := flag.Float64("squelch-threshold", 0, "Squelch threshold in dB (0 disables)")
	squelchTail := flag.Float64("squelch-tail", 1.0, "Squelch tail duration in seconds")
	waterfall := flag.Bool("wf", false, "Stream waterfall data instead of audio")
	admin := flag.Bool("admin", false, "Connect to the admin websocket instead of an audio/waterfall stream")
	socketTimeout := flag.Int("socket-timeout", 10, "Socket read/write timeout in seconds")
	progress := flag.Bool("progress", false, "Print progress messages instead of raw binary output")
	logLevel := flag.String("log", "warn", "debug|info|warn|error")

	flag.Parse()

	log := klog.New(klog.ParseLevel(*logLevel))

	stream := config.StreamSND
	switch {
	case *admin:
		stream = config.StreamAdmin
	case *waterfall:
		stream = config.StreamWF
	}

	cfg := config.SessionConfig{
		ServerHost:           *host,
		ServerPort:           *port,
		Password:             *password,
		FrequencyKHz:         *freq,
		Modulation:           *modulation,
		LPCutHz:              *lpCut,
		HPCutHz:              *hpCut,
		Compression:          !*noCompression,
		User:                 *user,
		SocketTimeoutSeconds: *socketTimeout,
		Stream:               stream,
		WFSpeedHz:            1,
		Progress:             *progress,
		TimestampSeed:        uint32((time.Now().Unix() + int64(os.Getpid())) & 0xffffffff),
	}
	if *agcGain >= 0 {
		cfg.AGCGain = agcGain
	}
	if *squelchThresh != 0 {
		cfg.SquelchThresholdDB = squelchThresh
	}
	cfg.SquelchTailSeconds = *squelchTail

	d := newNetcatDispatcher(cfg, log, *progress)
	eng := session.New(cfg, log, d)

	if err := eng.Connect(func(lat, lon float64) {}); err != nil {
		log.Errorf("connect: %v", err)
		os.Exit(1)
	}
	if err := eng.Open(); err != nil {
		log.Errorf("open: %v", err)
		os.Exit(1)
	}

	if cfg.Stream == config.StreamAdmin {
		go runAdminWriter(eng, log)
		runAdminReader(eng, log)
		return
	}

	for {
		if err := eng.RunOnce(); err != nil {
			if kiwierr.Is(err, kiwierr.KindTimeLimit) {
				return
			}
			log.Errorf("%v", err)
			eng.Close()
			os.Exit(1)
		}
	}
}

// runAdminWriter forwards stdin lines to the server as "ADM tunW <line>"
// messages, after the initial "ADM tunO" handshake line, per _writer_message
// in kiwi_nc.py.
func runAdminWriter(eng *session.Engine, log *klog.Logger) {
	if err := eng.SendText("ADM tunO"); err != nil {
		log.Errorf("admin writer: %v", err)
		return
	}
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if err := eng.SendText(fmt.Sprintf("ADM tunW %s", line)); err != nil {
			log.Errorf("admin writer: %v", err)
			return
		}
	}
}

// runAdminReader receives raw admin replies and writes them to stdout
// verbatim, since the admin protocol does not follow the MSG/SND/W/F
// framing the recording path dispatches on.
func runAdminReader(eng *session.Engine, log *klog.Logger) {
	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	for {
		data, err := eng.ReadRaw()
		if err != nil {
			if kiwierr.Is(err, kiwierr.KindServerTerminated) {
				return
			}
			log.Errorf("%v", err)
			return
		}
		out.Write(data)
		out.Flush()
	}
}

// netcatDispatcher adapts pipeline output to raw stdout writes, the
// session.Dispatcher for the SND/W/F (non-admin) case.
type netcatDispatcher struct {
	log      *klog.Logger
	pipe     *pipeline.Pipeline
	out      *bufio.Writer
	progress bool
	cfg      config.SessionConfig
}

func newNetcatDispatcher(cfg config.SessionConfig, log *klog.Logger, progress bool) *netcatDispatcher {
	d := &netcatDispatcher{log: log, out: bufio.NewWriter(os.Stdout), progress: progress, cfg: cfg}
	var sq *squelch.Squelch
	if cfg.SquelchThresholdDB != nil {
		sq = squelch.New(*cfg.SquelchThresholdDB, cfg.SquelchTailSeconds)
	}
	d.pipe = pipeline.New(true, cfg.Compression, cfg.Modulation == "iq", sq, pipeline.Sinks{
		Audio:     d.onAudio,
		Waterfall: d.onWaterfall,
	})
	return d
}

func (d *netcatDispatcher) HandleMsg(m *frame.Msg) error { return nil }
func (d *netcatDispatcher) HandleSnd(s *frame.Snd) error { return d.pipe.HandleSnd(s) }
func (d *netcatDispatcher) HandleWF(w *frame.WF) error   { return d.pipe.HandleWF(w) }
func (d *netcatDispatcher) OnSampleRateKnown(rate float64) {
	d.log.Infof("sample rate: %.0f", rate)
}

func (d *netcatDispatcher) onAudio(af pipeline.AudioFrame) {
	if d.progress {
		fmt.Printf("\rBlock: %08x, RSSI: %6.1f", af.Seq, af.RSSIDBm)
		return
	}
	d.out.Write(af.Raw)
	d.out.Flush()
}

func (d *netcatDispatcher) onWaterfall(wf pipeline.WaterfallFrame) {
	if d.progress {
		nbins, minDB, maxDB, minKHz, maxKHz, rbwKHz := pipeline.WaterfallSummary(wf.Samples, pipeline.DefaultSpanKHz)
		if nbins == 0 {
			return
		}
		fmt.Printf("\rwf samples %d bins %d..%d dB %.1f..%.1f kHz rbw %.0f kHz",
			nbins, minDB, maxDB, minKHz, maxKHz, rbwKHz)
		return
	}
	d.out.Write(wf.Samples)
	d.out.Flush()
}
