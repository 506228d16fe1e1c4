// Package ofdm implements the waveform-shaping step the PHY/MAC core
// still owns once the bit pipeline has filled a subframe's frequency-
// domain grid: the inverse FFT (TX) / forward FFT (RX) and cyclic-prefix
// add/remove that turn cells into time-domain samples and back.
//
// spec.md names "FFT" among the capability-providing libraries the core
// is meant to consume rather than implement, but no repository in the
// retrieval pack vendors a complex FFT usable here — the one FFT-adjacent
// dependency anywhere in the pack (USA-RedDragon-DMRHub's
// remyoudompheng/bigfft, pulled in transitively for math/big
// multiplication) operates on big integers, not complex spectra, and
// would be a wrong fit to force in. This package fills the gap directly
// against math/cmplx, the same posture package conv and package qam take
// for their own capability gaps — see DESIGN.md.
package ofdm

import "math/cmplx"

// CyclicPrefixLen is the number of samples prepended to every symbol.
const CyclicPrefixLen = 4 // phygeo.CP, duplicated here to avoid an import cycle on the symbol-count constant alone

// IFFT transforms one OFDM symbol's frequency-domain cells (length n,
// a power of two) into time-domain samples, unnormalized except for the
// standard 1/n IFFT scaling.
func IFFT(freq []complex128) []complex128 {
	out := fftRadix2(freq, true)
	n := complex(float64(len(freq)), 0)
	for i := range out {
		out[i] /= n
	}
	return out
}

// FFT transforms time-domain samples back into frequency-domain cells.
func FFT(time []complex128) []complex128 {
	return fftRadix2(time, false)
}

// AddCyclicPrefix prepends the last CyclicPrefixLen samples of `symbol`
// to its own front, producing the transmitted burst for one OFDM symbol.
func AddCyclicPrefix(symbol []complex128) []complex128 {
	n := len(symbol)
	out := make([]complex128, n+CyclicPrefixLen)
	copy(out, symbol[n-CyclicPrefixLen:])
	copy(out[CyclicPrefixLen:], symbol)
	return out
}

// RemoveCyclicPrefix strips the leading CyclicPrefixLen samples,
// returning the payload ready for FFT.
func RemoveCyclicPrefix(burst []complex128) []complex128 {
	return burst[CyclicPrefixLen:]
}

// fftRadix2 is an iterative, in-place-conceptually (but allocates its own
// output) radix-2 Cooley-Tukey transform. len(in) must be a power of two;
// the core only ever drives this at NFFT=64.
func fftRadix2(in []complex128, inverse bool) []complex128 {
	n := len(in)
	out := make([]complex128, n)
	copy(out, in)
	bitReverse(out)

	sign := -1.0
	if inverse {
		sign = 1.0
	}
	for size := 2; size <= n; size <<= 1 {
		half := size / 2
		angleStep := sign * 2 * pi / float64(size)
		for start := 0; start < n; start += size {
			for k := 0; k < half; k++ {
				w := cmplx.Rect(1, angleStep*float64(k))
				even := out[start+k]
				odd := out[start+k+half] * w
				out[start+k] = even + odd
				out[start+k+half] = even - odd
			}
		}
	}
	return out
}

const pi = 3.14159265358979323846

func bitReverse(a []complex128) {
	n := len(a)
	for i, j := 1, 0; i < n; i++ {
		bit := n >> 1
		for ; j&bit != 0; bit >>= 1 {
			j ^= bit
		}
		j ^= bit
		if i < j {
			a[i], a[j] = a[j], a[i]
		}
	}
}
