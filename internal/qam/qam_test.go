package qam

import (
	"testing"

	"github.com/hnap4pluto/basestation/internal/phygeo"
	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestModulateDemodulateRoundTripNoNoise(t *testing.T) {
	for _, mod := range []phygeo.Modulation{phygeo.ModQPSK, phygeo.ModQAM16, phygeo.ModQAM64} {
		m := New(mod)
		rapid.Check(t, func(rt *rapid.T) {
			sym := uint(rapid.IntRange(0, (1<<m.BitsPerSymbol())-1).Draw(rt, "sym"))
			cell := m.Modulate(sym)
			llr := m.DemodulateSoft(cell)
			var got uint
			for i, v := range llr {
				if v > 0 {
					got |= 1 << uint(m.BitsPerSymbol()-1-i)
				}
			}
			assert.Equal(rt, sym, got, "modulation %v symbol %d", mod, sym)
		})
	}
}

func TestConstellationUnitAverageEnergy(t *testing.T) {
	for _, mod := range []phygeo.Modulation{phygeo.ModQPSK, phygeo.ModQAM16, phygeo.ModQAM64} {
		m := New(mod)
		var energy float64
		for _, p := range m.points {
			energy += real(p)*real(p) + imag(p)*imag(p)
		}
		energy /= float64(len(m.points))
		assert.InDelta(t, 1.0, energy, 1e-6, "modulation %v", mod)
	}
}
