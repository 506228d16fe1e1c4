// Package bitpipe implements the per-MCS encode/decode bit pipeline (C2):
// FEC encode, interleave, and cell-by-cell modulation on TX; the inverse on
// RX. It writes/reads cells only — pilot cells are the subframe
// assembler's (C3) job, not this package's.
package bitpipe

import (
	"fmt"

	"github.com/hnap4pluto/basestation/internal/conv"
	"github.com/hnap4pluto/basestation/internal/coreerr"
	"github.com/hnap4pluto/basestation/internal/interleave"
	"github.com/hnap4pluto/basestation/internal/phygeo"
	"github.com/hnap4pluto/basestation/internal/qam"
)

// Rectangle is the (first_sc..last_sc, first_symb..last_symb) cell region
// a caller wants filled or read, expressed in subframe-relative
// coordinates.
type Rectangle struct {
	FirstSC, LastSC     int
	FirstSymb, LastSymb int
}

// Pipeline holds the one modem/codec/interleaver instance per MCS, created
// at init and used for the lifetime of the process (spec.md §3 invariant:
// "Exactly one modulator and one codec instance per MCS is created at
// init"). The interleaver operates at bit granularity, sized to the
// actual coded (post-FEC, post-puncture) block length rather than the raw
// TBS/8 byte count spec.md §3 mentions in passing — TBS/8 is the payload
// budget the slot ultimately carries, not the larger coded block the
// interleaver permutes; see DESIGN.md.
type Pipeline struct {
	tables    *phygeo.Tables
	modems    [5]*qam.Modem
	rates     [5]conv.Rate
	interlvrs [5]*interleave.Block
}

// New builds the five per-MCS pipeline stages. It is the Go analog of the
// teacher-family `phy_init_common` construction step (original_source's
// phy/phy_common.c): one modem, one FEC rate, one interleaver per MCS,
// sized from phygeo.TBSBits.
func New(tables *phygeo.Tables) *Pipeline {
	p := &Pipeline{tables: tables}
	for m := phygeo.MCS0; int(m) < len(p.modems); m++ {
		rate := toConvRate(m.Rate())
		p.modems[m] = qam.New(m.Modulation())
		p.rates[m] = rate
		p.interlvrs[m] = interleave.New(conv.CodedLen(phygeo.TBSBits(m), rate))
	}
	return p
}

func toConvRate(r phygeo.CodeRate) conv.Rate {
	if r.Num == 3 && r.Den == 4 {
		return conv.RateThreeQuarter
	}
	return conv.RateHalf
}

// ErrBufferUnderflow is fatal per spec.md §7: the pipeline was asked to
// write more bits than the target cell rectangle has room for.
var ErrBufferUnderflow = fmt.Errorf("bitpipe: %w", coreerr.ErrBufferUnderflow)

// ErrDecodeFailed is non-fatal: the re-encoded Viterbi output disagrees
// with the received hard decisions on too many coded bits. The caller
// (C3/scheduler) accounts it on the owning user's statistics.
var ErrDecodeFailed = fmt.Errorf("bitpipe: decode failed")

// decodeFailDisagreeDivisor bounds how many coded bits may disagree with a
// re-encode of the Viterbi output: more than codedLen/decodeFailDisagreeDivisor
// disagreements declare the block undecodable. A clean decode re-encodes to
// exactly the received hard decisions; a decode dominated by noise disagrees
// on roughly 8-11% of them at rate 3/4 and 15-20% at rate 1/2. A zero LLR
// (no information) counts as a disagreement.
const decodeFailDisagreeDivisor = 20

// Encode runs FEC -> interleave -> modulate over `data` (exactly
// TBSBits(mcs)/8 bytes) and writes one complex cell per data-bearing
// position in `rect`, in raster order (symbol-major, subcarrier-minor).
// Encode returns ErrBufferUnderflow if the rectangle has fewer data cells
// than the payload has modulation symbols.
func (p *Pipeline) Encode(mcs phygeo.MCS, data []byte, rect Rectangle, writeCell func(sym, sc int, v complex128)) error {
	want := phygeo.TBSBits(mcs) / 8
	if len(data) != want {
		return fmt.Errorf("bitpipe: encode expects %d bytes for mcs %v, got %d", want, mcs, len(data))
	}
	coded := conv.EncodeBits(conv.BytesToBits(data), p.rates[mcs])
	interleaved := p.interlvrs[mcs].InterleaveBits(coded)
	bitstream := newBoolBitReader(interleaved)
	modem := p.modems[mcs]
	bps := modem.BitsPerSymbol()

	for sym := rect.FirstSymb; sym <= rect.LastSymb; sym++ {
		for sc := rect.FirstSC; sc <= rect.LastSC; sc++ {
			if !p.tables.IsDataCell(sym, sc) {
				continue
			}
			if bitstream.remaining() == 0 {
				return nil
			}
			if bitstream.remaining() < bps {
				return ErrBufferUnderflow
			}
			symbolValue := bitstream.take(bps)
			writeCell(sym, sc, modem.Modulate(symbolValue))
		}
	}
	if bitstream.remaining() > 0 {
		return ErrBufferUnderflow
	}
	return nil
}

// Decode inverts Encode: it reads complex cells from `rect` via readCell,
// soft-demodulates, deinterleaves, and Viterbi-decodes back to
// TBSBits(mcs)/8 bytes.
func (p *Pipeline) Decode(mcs phygeo.MCS, rect Rectangle, readCell func(sym, sc int) complex128) ([]byte, error) {
	modem := p.modems[mcs]
	codedLen := p.interlvrs[mcs].Size()
	llrStream := make([]int8, 0, codedLen)

	for sym := rect.FirstSymb; sym <= rect.LastSymb; sym++ {
		for sc := rect.FirstSC; sc <= rect.LastSC; sc++ {
			if !p.tables.IsDataCell(sym, sc) {
				continue
			}
			if len(llrStream) >= codedLen {
				continue
			}
			llrStream = append(llrStream, modem.DemodulateSoft(readCell(sym, sc))...)
		}
	}
	if len(llrStream) < codedLen {
		return nil, ErrBufferUnderflow
	}
	llrStream = llrStream[:codedLen]

	deinterleavedLLR := p.interlvrs[mcs].DeinterleaveLLR(llrStream)
	dataBits := phygeo.TBSBits(mcs)
	result := conv.Decode(deinterleavedLLR, p.rates[mcs], dataBits)

	reencoded := conv.EncodeBits(conv.BytesToBits(result.Data), p.rates[mcs])
	disagree := 0
	for i, bit := range reencoded {
		if llr := deinterleavedLLR[i]; llr == 0 || (llr > 0) != bit {
			disagree++
		}
	}
	if disagree*decodeFailDisagreeDivisor > codedLen {
		return nil, ErrDecodeFailed
	}
	return result.Data, nil
}
