// Package control implements the KiwiSDR key=value control channel: the
// outbound SET message builder and the inbound parameter dispatcher,
// ported from the set_* methods and _process_msg_param in kiwiclient.py.
package control

import (
	"fmt"

	goversion "github.com/hashicorp/go-version"

	"github.com/cwsl/kiwirecorder/internal/config"
	"github.com/cwsl/kiwirecorder/internal/frame"
	"github.com/cwsl/kiwirecorder/internal/kiwierr"
	"github.com/cwsl/kiwirecorder/internal/klog"
)

// Sender transmits one text control message. SessionEngine's WebSocket
// writer implements it.
type Sender interface {
	SendText(msg string) error
}

// Callbacks receives the side effects of inbound parameter dispatch that
// the session itself must act on (as opposed to ones Channel fully handles
// internally, like sending the AR-OK reply).
type Callbacks struct {
	// OnGNSSPosition is invoked with (lat, lon) when a load_cfg message
	// carries a GNSS fix.
	OnGNSSPosition func(lat, lon float64)
}

// minSupportedVersion is the oldest server protocol version this client
// understands; versions below it are still accepted but logged.
var minSupportedVersion = goversion.Must(goversion.NewVersion("1.0"))

// Channel drives the outbound SET protocol and dispatches inbound MSG
// parameters for one session.
type Channel struct {
	sender Sender
	cfg    config.SessionConfig
	log    *klog.Logger
	cb     Callbacks

	versionMajor string
	versionMinor string
	loggedVer    bool
}

// New creates a Channel bound to the given sender and session config.
func New(sender Sender, cfg config.SessionConfig, log *klog.Logger, cb Callbacks) *Channel {
	return &Channel{sender: sender, cfg: cfg, log: log, cb: cb}
}

func (c *Channel) send(msg string) error {
	if msg != "SET keepalive" {
		c.log.Debugf("send SET (%s) %s", c.cfg.Stream, msg)
	}
	return c.sender.SendText(msg)
}

// SendAuth emits the initial "SET auth" handshake message, per spec §4.5.
func (c *Channel) SendAuth() error {
	return c.send(fmt.Sprintf("SET auth t=kiwi p=%s", c.cfg.Password))
}

// SendKeepalive emits a keepalive, sent after every data frame per §4.6.
func (c *Channel) SendKeepalive() error {
	return c.send("SET keepalive")
}

// setupRxParams emits the personality-specific parameter block described
// in spec §4.5, triggered by sample_rate or wf_setup.
func (c *Channel) setupRxParams() error {
	switch c.cfg.Stream {
	case config.StreamSND:
		return c.setupSND()
	case config.StreamWF:
		return c.setupWF()
	default:
		return nil
	}
}

func (c *Channel) setupSND() error {
	if err := c.send(fmt.Sprintf("SET ident_user=%s", c.cfg.User)); err != nil {
		return err
	}
	lpCut := c.cfg.LPCutForModulation()
	if err := c.send(fmt.Sprintf("SET mod=%s low_cut=%d high_cut=%d freq=%.3f",
		c.cfg.Modulation, int(lpCut), int(c.cfg.HPCutHz), c.cfg.FrequencyKHz)); err != nil {
		return err
	}
	if c.cfg.AGCGain != nil {
		if err := c.send(fmt.Sprintf("SET agc=0 hang=0 thresh=-100 slope=6 decay=1000 manGain=%d", int(*c.cfg.AGCGain))); err != nil {
			return err
		}
	} else {
		if err := c.send("SET agc=1 hang=0 thresh=-100 slope=6 decay=1000 manGain=50"); err != nil {
			return err
		}
	}
	if !c.cfg.Compression {
		if err := c.send("SET compression=0"); err != nil {
			return err
		}
	}
	return c.send("SET OVERRIDE inactivity_timeout=0")
}

func (c *Channel) setupWF() error {
	if err := c.send("SET zoom=0 start=0"); err != nil {
		return err
	}
	if err := c.send("SET maxdb=-10 mindb=-110"); err != nil {
		return err
	}
	if err := c.send("SET wf_comp=0"); err != nil {
		return err
	}
	if err := c.send(fmt.Sprintf("SET wf_speed=%d", c.cfg.WFSpeedHz)); err != nil {
		return err
	}
	return c.send("SET OVERRIDE inactivity_timeout=0")
}

// Dispatch processes one parsed MSG frame, sending replies as the protocol
// requires and returning a taxonomy error for the fatal conditions in
// spec §4.5/§7.
func (c *Channel) Dispatch(msg *frame.Msg) error {
	for _, key := range msg.Order {
		val := msg.Params[key]
		if err := c.dispatchParam(key, val); err != nil {
			return err
		}
	}
	return nil
}

func (c *Channel) dispatchParam(name string, value *string) error {
	switch name {
	case "too_busy":
		slots := ""
		if value != nil {
			slots = *value
		}
		return kiwierr.New(kiwierr.KindTooBusy, fmt.Sprintf("%s: all %s client slots taken", c.cfg.ServerHost, slots))

	case "badp":
		if value != nil && *value == "1" {
			return kiwierr.New(kiwierr.KindBadPassword, fmt.Sprintf("%s: bad password", c.cfg.ServerHost))
		}
		return nil

	case "down":
		return kiwierr.New(kiwierr.KindServerDown, fmt.Sprintf("%s: server is down atm", c.cfg.ServerHost))

	case "audio_rate":
		if value == nil {
			return nil
		}
		return c.send(fmt.Sprintf("SET AR OK in=%s out=44100", *value))

	case "sample_rate":
		if value == nil {
			return nil
		}
		if err := c.send("SET squelch=0 max=0"); err != nil {
			return err
		}
		if err := c.send("SET lms_autonotch=0"); err != nil {
			return err
		}
		if err := c.send("SET genattn=0"); err != nil {
			return err
		}
		if err := c.send("SET gen=0 mix=-1"); err != nil {
			return err
		}
		if err := c.setupRxParams(); err != nil {
			return err
		}
		return c.SendKeepalive()

	case "wf_setup":
		if err := c.setupRxParams(); err != nil {
			return err
		}
		return c.SendKeepalive()

	case "version_maj":
		if value != nil {
			c.versionMajor = *value
			c.logVersion()
		}
		return nil

	case "version_min":
		if value != nil {
			c.versionMinor = *value
			c.logVersion()
		}
		return nil

	case "load_cfg":
		if value == nil {
			return nil
		}
		return c.handleLoadCfg(*value)

	default:
		c.log.Debugf("recv MSG (%s) %s: %v", c.cfg.Stream, name, value)
		return nil
	}
}

func (c *Channel) logVersion() {
	if c.loggedVer || c.versionMajor == "" || c.versionMinor == "" {
		return
	}
	c.loggedVer = true
	vstr := fmt.Sprintf("%s.%s", c.versionMajor, c.versionMinor)
	if v, err := goversion.NewVersion(vstr); err == nil {
		if v.LessThan(minSupportedVersion) {
			c.log.Warnf("server version %s is older than the minimum understood version %s", vstr, minSupportedVersion)
		}
	}
	c.log.Infof("server version: %s", vstr)
}
