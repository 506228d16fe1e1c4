package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hnap4pluto/basestation/internal/phygeo"
)

func TestDefaultsAreInternallyConsistent(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, phygeo.DLULShift, cfg.DLULShift)
	assert.Equal(t, "loopback", cfg.Driver)
	assert.NotEmpty(t, cfg.MCSThresholds)
	assert.Equal(t, phygeo.MCS0, cfg.MCSThresholds[len(cfg.MCSThresholds)-1].MCS)
}

func TestLoadFileMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}

func TestLoadFileOverlaysOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rx_gain: 0.75\ndriver: soundcard\n"), 0o644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, float32(0.75), cfg.RXGain)
	assert.Equal(t, "soundcard", cfg.Driver)
	// Untouched fields keep their default.
	assert.Equal(t, Defaults().TXGain, cfg.TXGain)
}

func TestLoadFileMalformedYAMLErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rx_gain: [this is not a float\n"), 0o644))

	_, err := LoadFile(path)
	require.Error(t, err)
}

func TestParseFlagsOnlyMarksExplicitOverridesChanged(t *testing.T) {
	flags, changed, err := ParseFlags([]string{"--rxgain", "0.9", "-f", "433100000"})
	require.NoError(t, err)
	assert.True(t, changed("rxgain"))
	assert.True(t, changed("frequency"))
	assert.False(t, changed("txgain"))
	assert.False(t, changed("log"))
	assert.Equal(t, float32(0.9), flags.RXGain)
	assert.Equal(t, 433100000.0, flags.Frequency)
}

func TestApplyFlagsOverridesOnlyChangedFields(t *testing.T) {
	cfg := Defaults()
	flags, changed, err := ParseFlags([]string{"--txgain", "0.25"})
	require.NoError(t, err)

	out := ApplyFlags(cfg, flags, changed)
	assert.Equal(t, float32(0.25), out.TXGain)
	assert.Equal(t, cfg.RXGain, out.RXGain)
	assert.Equal(t, cfg.FrequencyHz, out.FrequencyHz)
}
