// Package config implements A1: a CoreConfig loaded from a YAML file
// via gopkg.in/yaml.v3, with defaults filled in first and CLI flags
// parsed via github.com/spf13/pflag overriding the file afterwards —
// replacing the teacher's hand-rolled line-oriented .conf parser
// (src/config.go) with a structured document, the same YAML-plus-flags
// shape other retrieval-pack services use (e.g. dmr-nexus's
// viper+YAML, DMRHub's configulator).
package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/hnap4pluto/basestation/internal/corelog"
	"github.com/hnap4pluto/basestation/internal/phygeo"
)

// MCSThreshold is one entry of the SNR→MCS lookup table (spec.md
// §4.5's "fixed SNR->MCS threshold table"), YAML-overridable per
// SPEC_FULL.md §A1.
type MCSThreshold struct {
	MinSNRdB int      `yaml:"min_snr_db"`
	MCS      phygeo.MCS `yaml:"mcs"`
}

// CoreConfig is the effective settings struct the core operates on
// (spec.md §6: "the core itself takes a struct of effective settings").
// It holds spec.md §3's runtime-tunable values; the fixed frame
// geometry (NFFT, slot/symbol counts, etc.) stays compile-time in
// internal/phygeo because Go array types are sized by those constants
// at compile time and Non-goals lock NFFT at 64 regardless.
type CoreConfig struct {
	// Radio front-end tuning, driven by --rxgain/-g, --txgain/-t,
	// --frequency/-f.
	RXGain      float32 `yaml:"rx_gain"`
	TXGain      float32 `yaml:"tx_gain"`
	FrequencyHz float64 `yaml:"frequency_hz"`

	// InterSymbolOffsetHz is a fixed local-oscillator offset between BS
	// and UE (spec.md mentions symbol synchronisation as an external
	// capability the PHY consumes). It is loaded but no package reads
	// it: no offset correction is applied.
	InterSymbolOffsetHz float64 `yaml:"inter_symbol_offset_hz"`

	// DLULShift overrides phygeo.DLULShift for bench setups with a
	// different TDD turnaround (e.g. over loopback, where 0 is usual).
	DLULShift int `yaml:"dl_ul_shift"`

	// LogLevel is the --log/-l flag's value (trace|info|warn|error|none).
	LogLevel string `yaml:"log_level"`

	// CPUAffinity maps each coordinator task name to a CPU index
	// (spec.md §5: "pinned to a CPU"); empty means no pinning attempted.
	CPUAffinity map[string]int `yaml:"cpu_affinity"`

	// UserInactivityTimeoutFrames is a per-user inactivity limit, in
	// subframes. It is loaded but no package reads it: users are never
	// deassociated for inactivity.
	UserInactivityTimeoutFrames int `yaml:"user_inactivity_timeout_frames"`

	// ReassemblyDeadlineFrames is a reassembly deadline. It is loaded but
	// no package reads it: internal/mac builds every reassembler with its
	// own fixed reassemblyDeadlineFrames.
	ReassemblyDeadlineFrames int `yaml:"reassembly_deadline_frames"`

	// MCSThresholds is an SNR->MCS table. It is loaded but no package
	// reads it: mac.MCSForSNR always uses internal/mac's fixed table.
	MCSThresholds []MCSThreshold `yaml:"mcs_thresholds"`

	// Driver selects which internal/radio adapter cmd/basestation
	// constructs at startup ("loopback" or "soundcard"); the core
	// packages never see this value (SPEC_FULL.md §A3).
	Driver string `yaml:"driver"`

	// SoundcardSampleRateHz is the soundcard driver's audio sample rate.
	SoundcardSampleRateHz float64 `yaml:"soundcard_sample_rate_hz"`

	// PTTChip/PTTOffset identify the GPIO line keying the transmitter;
	// PTTChip empty disables PTT control entirely.
	PTTChip   string `yaml:"ptt_chip"`
	PTTOffset int    `yaml:"ptt_offset"`

	// RigModel/RigPort select the hamlib rig rigctl opens; RigModel 0
	// disables rig control entirely.
	RigModel int    `yaml:"rig_model"`
	RigPort  string `yaml:"rig_port"`

	// DiscoveryName/DiscoveryControlPort drive the mDNS/DNS-SD
	// advertisement; DiscoveryName empty disables it.
	DiscoveryName       string `yaml:"discovery_name"`
	DiscoveryControlPort int   `yaml:"discovery_control_port"`

	// HotplugSubsystem names the udev subsystem to watch for front-end
	// attach/detach ("sound", "usb"); empty disables hotplug watching.
	HotplugSubsystem string `yaml:"hotplug_subsystem"`

	// StatsIntervalSeconds is how often cmd/basestation's periodic
	// per-user statistics report runs.
	StatsIntervalSeconds int `yaml:"stats_interval_seconds"`

	// StatsTimestampFormat is a strftime(3) format string (parsed via
	// github.com/lestrrat-go/strftime) used to stamp each stats report.
	StatsTimestampFormat string `yaml:"stats_timestamp_format"`
}

// Defaults returns a CoreConfig with every field set to the value the
// core would otherwise hard-code, before a config file or flags are
// applied.
func Defaults() CoreConfig {
	return CoreConfig{
		RXGain:                      0.5,
		TXGain:                      0.5,
		FrequencyHz:                 433_000_000,
		InterSymbolOffsetHz:         0,
		DLULShift:                   phygeo.DLULShift,
		LogLevel:                    string(corelog.Info),
		CPUAffinity:                 map[string]int{},
		UserInactivityTimeoutFrames: 8 * phygeo.FrameLen,
		ReassemblyDeadlineFrames:    16,
		MCSThresholds: []MCSThreshold{
			{MinSNRdB: 20, MCS: phygeo.MCS4},
			{MinSNRdB: 15, MCS: phygeo.MCS3},
			{MinSNRdB: 10, MCS: phygeo.MCS2},
			{MinSNRdB: 5, MCS: phygeo.MCS1},
			{MinSNRdB: -128, MCS: phygeo.MCS0},
		},
		Driver:                "loopback",
		SoundcardSampleRateHz: float64(phygeo.SampleRateHz),
		StatsIntervalSeconds:  60,
		StatsTimestampFormat:  "%Y-%m-%d %H:%M:%S",
	}
}

// LoadFile reads and unmarshals a YAML config file on top of Defaults.
// A missing file is not an error (Defaults alone are used); a present
// but malformed file is.
func LoadFile(path string) (CoreConfig, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return CoreConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return CoreConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Flags is the CLI flag set spec.md §6 names, parsed with
// github.com/spf13/pflag exactly mirroring cmd/direwolf/main.go's flag
// set, trimmed to what this spec actually uses.
type Flags struct {
	ConfigPath string
	RXGain     float32
	TXGain     float32
	Frequency  float64
	LogLevel   string
	Help       bool
}

// ParseFlags registers and parses spec.md §6's CLI surface:
// --rxgain/-g, --txgain/-t, --frequency/-f, --config/-c, --log/-l,
// --help/-h. The returned changed predicate reports whether the named
// flag was actually supplied on the command line (pflag.Changed),
// distinguishing "set to zero" from "left at its default".
func ParseFlags(args []string) (f Flags, changed func(name string) bool, err error) {
	fs := pflag.NewFlagSet("basestation", pflag.ContinueOnError)
	fs.Float32VarP(&f.RXGain, "rxgain", "g", 0, "receiver gain (0.0-1.0)")
	fs.Float32VarP(&f.TXGain, "txgain", "t", 0, "transmitter gain (0.0-1.0)")
	fs.Float64VarP(&f.Frequency, "frequency", "f", 0, "DL carrier frequency in Hz")
	fs.StringVarP(&f.ConfigPath, "config", "c", "", "path to YAML config file")
	fs.StringVarP(&f.LogLevel, "log", "l", "", "log level: trace|info|warn|error|none")
	fs.BoolVarP(&f.Help, "help", "h", false, "show usage and exit")
	if err := fs.Parse(args); err != nil {
		return Flags{}, nil, err
	}
	if f.Help {
		fmt.Fprintln(os.Stderr, fs.FlagUsages())
	}
	return f, fs.Changed, nil
}

// ApplyFlags overrides cfg's fields with any flags the user actually
// set, per the changed predicate ParseFlags returned.
func ApplyFlags(cfg CoreConfig, f Flags, changed func(name string) bool) CoreConfig {
	if changed("rxgain") {
		cfg.RXGain = f.RXGain
	}
	if changed("txgain") {
		cfg.TXGain = f.TXGain
	}
	if changed("frequency") {
		cfg.FrequencyHz = f.Frequency
	}
	if changed("log") {
		cfg.LogLevel = f.LogLevel
	}
	return cfg
}
