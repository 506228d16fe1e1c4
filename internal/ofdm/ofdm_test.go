package ofdm

import (
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestIFFTFFTRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		const n = 64
		freq := make([]complex128, n)
		for i := range freq {
			re := rapid.Float64Range(-1, 1).Draw(rt, "re")
			im := rapid.Float64Range(-1, 1).Draw(rt, "im")
			freq[i] = complex(re, im)
		}
		time := IFFT(freq)
		got := FFT(time)
		for i := range freq {
			assert.InDelta(rt, real(freq[i]), real(got[i]), 1e-9, "sample %d", i)
			assert.InDelta(rt, imag(freq[i]), imag(got[i]), 1e-9, "sample %d", i)
		}
	})
}

func TestCyclicPrefixRoundTrip(t *testing.T) {
	symbol := []complex128{1, 2, 3, 4, 5, 6, 7, 8}
	withCP := AddCyclicPrefix(symbol)
	assert.Len(t, withCP, len(symbol)+CyclicPrefixLen)
	assert.Equal(t, symbol, RemoveCyclicPrefix(withCP))
}

func TestIFFTOfImpulseIsFlat(t *testing.T) {
	freq := make([]complex128, 64)
	freq[0] = 64
	time := IFFT(freq)
	for _, v := range time {
		assert.InDelta(t, 1.0, cmplx.Abs(v), 1e-9)
	}
}
