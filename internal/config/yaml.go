package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the on-disk YAML shape for -config FILE, an alternative to
// a long flag line for deployments driving many sessions. Field names
// mirror the CLI flag names so the two surfaces read the same.
type FileConfig struct {
	ServerHost []string  `yaml:"server_host"`
	ServerPort []int     `yaml:"server_port"`
	Password   []string  `yaml:"password"`
	Frequency  []float64 `yaml:"frequency"`
	AGCGain    []float64 `yaml:"agc_gain,omitempty"`
	Filename   []string  `yaml:"filename,omitempty"`
	Station    []string  `yaml:"station,omitempty"`
	User       []string  `yaml:"user"`

	Modulation         string   `yaml:"modulation"`
	LPCutHz            float64  `yaml:"lp_cut_hz"`
	HPCutHz            float64  `yaml:"hp_cut_hz"`
	Compression        bool     `yaml:"compression"`
	SquelchThresholdDB *float64 `yaml:"squelch_threshold_db,omitempty"`
	SquelchTailSeconds float64  `yaml:"squelch_tail_seconds"`
	TimeLimitSeconds   *float64 `yaml:"time_limit_seconds,omitempty"`
	Dir                string   `yaml:"dir"`
	RotationSec        int      `yaml:"rotation_sec"`
	IsKiwiWAV          bool     `yaml:"kiwi_wav"`
	IsTDoA             bool     `yaml:"tdoa"`
	SocketTimeoutSec   int      `yaml:"socket_timeout_sec"`
	LaunchDelaySec     int      `yaml:"launch_delay_sec"`
	Waterfall          bool     `yaml:"waterfall"`
	Sound              bool     `yaml:"sound"`
	WFSpeedHz          int      `yaml:"wf_speed_hz"`
	ZoomLevel          int      `yaml:"zoom_level"`
}

// LoadFile reads and parses a YAML session list, the corpus's own
// config.go convention for surfacing multi-field settings.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var fc FileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &fc, nil
}

// ToFanout converts a parsed FileConfig into a Fanout. The caller still
// needs to set Stream (once per SND/W/F pass, per fc.Waterfall/fc.Sound)
// before calling Expand, since one Fanout only ever drives one stream kind.
// AGCGain entries of exactly 0 are treated as "unset" (nil, meaning AGC
// auto) since the YAML scalar can't otherwise distinguish "0 dB gain"
// from "not configured" without a pointer-slice in the file format.
func (fc FileConfig) ToFanout(nowUnix int64, pid int) Fanout {
	var gains []*float64
	for _, g := range fc.AGCGain {
		g := g
		if g == 0 {
			gains = append(gains, nil)
		} else {
			gains = append(gains, &g)
		}
	}
	return Fanout{
		ServerHost:           fc.ServerHost,
		ServerPort:           fc.ServerPort,
		Password:             fc.Password,
		Frequency:            fc.Frequency,
		AGCGain:              gains,
		Filename:             fc.Filename,
		Station:              fc.Station,
		User:                 fc.User,
		Modulation:           fc.Modulation,
		LPCutHz:              fc.LPCutHz,
		HPCutHz:              fc.HPCutHz,
		Compression:          fc.Compression,
		SquelchThresholdDB:   fc.SquelchThresholdDB,
		SquelchTailSeconds:   fc.SquelchTailSeconds,
		TimeLimitSeconds:     fc.TimeLimitSeconds,
		Dir:                  fc.Dir,
		RotationSec:          fc.RotationSec,
		IsKiwiWAV:            fc.IsKiwiWAV,
		IsTDoA:               fc.IsTDoA,
		SocketTimeoutSeconds: fc.SocketTimeoutSec,
		LaunchDelaySeconds:   fc.LaunchDelaySec,
		WFSpeedHz:            fc.WFSpeedHz,
		ZoomLevel:            fc.ZoomLevel,
		NowUnix:              nowUnix,
		PID:                  pid,
	}
}
