// Package conv implements the convolutional FEC used by the bit pipeline:
// a rate-1/2, constraint-length-7 encoder (the industry-standard NASA/CCSDS
// polynomials, 0171/0133 octal) with puncturing to rate 3/4, and a Viterbi
// decoder operating on soft (LLR) input.
//
// No pack example repository vendors a channel-coding library (liquid-dsp,
// the DSP library the original firmware used, has no Go binding in the
// retrieval set), so this is implemented directly against math/bits, the
// same way the teacher's own ported Reed-Solomon code
// (src/fx25_init.go) implements FEC against the standard library rather
// than a third-party codec.
package conv

import "math/bits"

const (
	constraintLen = 7
	numStates     = 1 << (constraintLen - 1)
	poly1         = 0171 // octal
	poly2         = 0133
)

// Rate is a puncturing rate supported by the pipeline.
type Rate int

const (
	RateHalf Rate = iota
	RateThreeQuarter
)

// punctureMask implements the standard rate-1/2 -> 3/4 puncturing pattern:
// taken over three successive input bits' worth of rate-1/2 output (six
// bits, (a0 b0 a1 b1 a2 b2)), drop b1 and a2 and keep the other four. Three
// input bits in, four coded bits out: rate 3/4.
var punctureMask = [6]bool{true, true, false, true, true, false}

// Encode runs the bits in `in` (MSB-first within each byte) through the
// rate-1/2 convolutional encoder, then (for RateThreeQuarter) punctures the
// result, and returns the coded bits packed MSB-first into bytes
// (zero-padded to the next byte boundary — use EncodeBits for the exact
// bit count). The encoder is flushed with constraintLen-1 zero tail bits
// so the decoder can terminate into the all-zero state.
func Encode(in []byte, rate Rate) []byte {
	return bitsToBytes(EncodeBits(bytesToBits(in), rate))
}

// EncodeBits is the bit-exact form of Encode: it returns exactly
// CodedLen(len(dataBits), rate) bits, with no byte-boundary padding. Used
// by the bit pipeline, which interleaves at bit granularity to avoid
// wasting cells on padding for MCS whose coded length isn't a multiple of
// 8 bits.
func EncodeBits(dataBits []bool, rate Rate) []bool {
	bitsIn := append(append([]bool{}, dataBits...), make([]bool, constraintLen-1)...) // tail

	coded := make([]bool, 0, len(bitsIn)*2)
	var reg int
	for _, b := range bitsIn {
		reg = nextRegister(reg, b)
		coded = append(coded, parity(reg&poly1) == 1, parity(reg&poly2) == 1)
	}

	if rate == RateThreeQuarter {
		coded = puncture(coded)
	}
	return coded
}

// nextRegister shifts bit b into the top of the constraint-length window.
func nextRegister(reg int, b bool) int {
	reg >>= 1
	if b {
		reg |= 1 << (constraintLen - 1)
	}
	return reg & (1<<constraintLen - 1)
}

// CodedLen returns the number of coded bits Encode produces for a message
// of dataBits bits at the given rate, tail bits and puncturing included.
func CodedLen(dataBits int, rate Rate) int {
	full := (dataBits + constraintLen - 1) * 2
	if rate == RateHalf {
		return full
	}
	kept := 0
	for i := 0; i < full; i++ {
		if punctureMask[i%6] {
			kept++
		}
	}
	return kept
}

func puncture(coded []bool) []bool {
	out := make([]bool, 0, len(coded))
	for i, b := range coded {
		if punctureMask[i%6] {
			out = append(out, b)
		}
	}
	return out
}

// depuncture re-inserts erasure placeholders (LLR 0, i.e. maximally
// uncertain) at the punctured positions so the Viterbi decoder sees a full
// rate-1/2 soft stream of exactly codedLen symbols.
func depuncture(llr []int8, rate Rate, codedLen int) []int8 {
	if rate == RateHalf {
		return llr
	}
	out := make([]int8, 0, codedLen)
	j := 0
	for i := 0; i < codedLen; i++ {
		if punctureMask[i%6] {
			out = append(out, llr[j])
			j++
		} else {
			out = append(out, 0)
		}
	}
	return out
}

func parity(v int) int { return bits.OnesCount(uint(v)) & 1 }

// BytesToBits unpacks MSB-first bits from data, for callers (the bit
// pipeline) that need to drive EncodeBits directly.
func BytesToBits(data []byte) []bool { return bytesToBits(data) }

func bytesToBits(b []byte) []bool {
	out := make([]bool, 0, len(b)*8)
	for _, by := range b {
		for i := 7; i >= 0; i-- {
			out = append(out, (by>>uint(i))&1 == 1)
		}
	}
	return out
}

func bitsToBytes(bitsArr []bool) []byte {
	out := make([]byte, (len(bitsArr)+7)/8)
	for i, b := range bitsArr {
		if b {
			out[i/8] |= 1 << uint(7-i%8)
		}
	}
	return out
}
