package conv

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// toLLR converts the bytes produced by Encode back into "perfect channel"
// soft LLRs, i.e. what a demodulator would hand back at very high SNR.
func toLLR(coded []byte, numBits int) []int8 {
	out := make([]int8, numBits)
	for i := 0; i < numBits; i++ {
		bit := (coded[i/8] >> uint(7-i%8)) & 1
		if bit == 1 {
			out[i] = 120
		} else {
			out[i] = -120
		}
	}
	return out
}

func TestEncodeDecodeRoundTripHighSNR(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		rate := RateHalf
		if rapid.Bool().Draw(rt, "threeQuarter") {
			rate = RateThreeQuarter
		}
		n := rapid.IntRange(1, 64).Draw(rt, "n")
		in := make([]byte, n)
		for i := range in {
			in[i] = byte(rapid.IntRange(0, 255).Draw(rt, "byte"))
		}

		coded := Encode(in, rate)
		dataBits := n * 8
		codedBitLen := CodedLen(dataBits, rate)
		llr := toLLR(coded, codedBitLen)

		result := Decode(llr, rate, dataBits)
		require.Equal(t, in, result.Data)
	})
}
