package config

// Fanout holds the raw scalar-or-list option values a CLI or YAML file can
// supply; Expand turns it into one SessionConfig per ServerHost entry,
// mirroring options_cross_product in kiwirecorder.py.
type Fanout struct {
	ServerHost []string // one SessionConfig per entry; this is the length driver
	ServerPort []int
	Password   []string
	Frequency  []float64
	AGCGain    []*float64
	Filename   []string
	Station    []string
	User       []string

	Modulation           string
	LPCutHz              float64
	HPCutHz              float64
	Compression          bool
	SquelchThresholdDB   *float64
	SquelchTailSeconds   float64
	TimeLimitSeconds     *float64
	Dir                  string
	RotationSec          int
	IsKiwiWAV            bool
	IsTDoA               bool
	SocketTimeoutSeconds int
	LaunchDelaySeconds   int
	Stream               StreamKind
	WFSpeedHz            int
	ZoomLevel            int
	TestMode             bool
	Quiet                bool
	Progress             bool

	// NowUnix and PID feed TimestampSeed derivation; passed in rather than
	// read from time.Now()/os.Getpid() so Expand stays pure and testable.
	NowUnix int64
	PID     int
}

// selEntry returns list[i] if i is in range, else the last element of
// list, matching _sel_entry's "l[min(i, len(l)-1)]" behavior. An empty
// list returns the zero value.
func selEntry[T any](i int, list []T) T {
	var zero T
	if len(list) == 0 {
		return zero
	}
	if i >= len(list) {
		i = len(list) - 1
	}
	return list[i]
}

// Expand produces one SessionConfig per ServerHost entry. Multiplicity is
// set on every resulting config when more than one host is present.
func (f Fanout) Expand() []SessionConfig {
	n := len(f.ServerHost)
	multiplicity := n > 1
	out := make([]SessionConfig, 0, n)
	for i, host := range f.ServerHost {
		cfg := SessionConfig{
			ServerHost:           host,
			ServerPort:           selEntry(i, f.ServerPort),
			Password:             selEntry(i, f.Password),
			FrequencyKHz:         selEntry(i, f.Frequency),
			Modulation:           f.Modulation,
			LPCutHz:              f.LPCutHz,
			HPCutHz:              f.HPCutHz,
			AGCGain:              selEntry(i, f.AGCGain),
			Compression:          f.Compression,
			SquelchThresholdDB:   f.SquelchThresholdDB,
			SquelchTailSeconds:   f.SquelchTailSeconds,
			User:                 selEntry(i, f.User),
			TimeLimitSeconds:     f.TimeLimitSeconds,
			Dir:                  f.Dir,
			Filename:             selEntry(i, f.Filename),
			Station:              selEntry(i, f.Station),
			RotationSec:          f.RotationSec,
			IsKiwiWAV:            f.IsKiwiWAV,
			IsTDoA:               f.IsTDoA,
			ConnIndex:            i,
			Multiplicity:         multiplicity,
			SocketTimeoutSeconds: f.SocketTimeoutSeconds,
			LaunchDelaySeconds:   f.LaunchDelaySeconds,
			Stream:               f.Stream,
			WFSpeedHz:            f.WFSpeedHz,
			ZoomLevel:            f.ZoomLevel,
			TestMode:             f.TestMode,
			Quiet:                f.Quiet,
			Progress:             f.Progress,
			TimestampSeed:        uint32((f.NowUnix + int64(f.PID) + int64(i)) & 0xffffffff),
		}
		out = append(out, cfg)
	}
	return out
}
