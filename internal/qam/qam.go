// Package qam implements the Gray-coded QPSK/16-QAM/64-QAM constellations
// used by the bit pipeline. As with package conv, no pack example vendors a
// modem library (liquid-dsp has no Go binding in the retrieval set), so
// this modulates/demodulates directly against math/cmplx, the same
// standard-library-only posture the teacher takes for its own from-scratch
// DSP (e.g. demod_afsk.go, demod_psk.go — hand-rolled filters, not a
// third-party DSP package).
package qam

import (
	"math"
	"math/cmplx"

	"github.com/hnap4pluto/basestation/internal/phygeo"
)

// Modem modulates/demodulates one constellation. Instances are stateless
// across calls, matching spec.md §4.2 ("Modulator state (mcs_modem) is
// stateless across calls").
type Modem struct {
	bps    int
	points []complex128 // index is the Gray-coded symbol value
}

// New builds the modem for a constellation, normalized to unit average
// energy.
func New(mod phygeo.Modulation) *Modem {
	switch mod {
	case phygeo.ModQPSK:
		return &Modem{bps: 2, points: qpskPoints()}
	case phygeo.ModQAM16:
		return &Modem{bps: 4, points: qamPoints(4)}
	case phygeo.ModQAM64:
		return &Modem{bps: 6, points: qamPoints(8)}
	default:
		panic("qam: unsupported modulation")
	}
}

func (m *Modem) BitsPerSymbol() int { return m.bps }

// Modulate maps a bps-bit symbol value (0..2^bps-1) to a complex cell.
func (m *Modem) Modulate(symbol uint) complex128 {
	return m.points[symbol&uint(len(m.points)-1)]
}

// DemodulateSoft produces bps LLRs for one received complex cell: one per
// coded bit, positive meaning "more likely a 1", scaled to roughly
// [-127,127] for the Viterbi branch metric in package conv. It uses
// nearest-point hard decision distance per bit (a simplified but standard
// approximation of the true max-log-MAP LLR).
func (m *Modem) DemodulateSoft(rx complex128) []int8 {
	out := make([]int8, m.bps)
	for bitIdx := 0; bitIdx < m.bps; bitIdx++ {
		var bestZero, bestOne float64 = math.MaxFloat64, math.MaxFloat64
		for sym, pt := range m.points {
			d := cmplx.Abs(rx - pt)
			if uint(sym)&(1<<uint(m.bps-1-bitIdx)) != 0 {
				if d < bestOne {
					bestOne = d
				}
			} else {
				if d < bestZero {
					bestZero = d
				}
			}
		}
		llr := (bestZero - bestOne) * 60
		out[bitIdx] = clampInt8(llr)
	}
	return out
}

func clampInt8(v float64) int8 {
	if v > 127 {
		return 127
	}
	if v < -127 {
		return -127
	}
	return int8(v)
}

func qpskPoints() []complex128 {
	const a = 1 / math.Sqrt2
	// Gray coding: bit pattern (b1 b0) -> quadrant
	return []complex128{
		complex(a, a),   // 00
		complex(a, -a),  // 01
		complex(-a, a),  // 10
		complex(-a, -a), // 11
	}
}

// qamPoints builds a side-length `side` square QAM constellation
// (side=4 -> 16QAM, side=8 -> 64QAM) with Gray-coded per-axis mapping,
// normalized to unit average energy.
func qamPoints(side int) []complex128 {
	levels := grayLevels(side)
	pts := make([]complex128, side*side)
	var energy float64
	for i, re := range levels {
		for q, im := range levels {
			idx := i*side + q
			pts[idx] = complex(re, im)
			energy += re*re + im*im
		}
	}
	energy /= float64(len(pts))
	norm := 1 / math.Sqrt(energy)
	for i := range pts {
		pts[i] *= complex(norm, 0)
	}
	return pts
}

// grayLevels returns `side` amplitude levels ordered by Gray-coded index,
// i.e. levels[grayIndex] is the amplitude for that index, symmetric about 0
// (..., -3, -1, 1, 3, ...).
func grayLevels(side int) []float64 {
	out := make([]float64, side)
	for i := 0; i < side; i++ {
		gray := i ^ (i >> 1)
		amplitude := float64(2*gray - (side - 1))
		out[i] = amplitude
	}
	return out
}
