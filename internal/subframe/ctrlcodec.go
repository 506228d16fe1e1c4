package subframe

import (
	"github.com/hnap4pluto/basestation/internal/conv"
	"github.com/hnap4pluto/basestation/internal/coreerr"
	"github.com/hnap4pluto/basestation/internal/phygeo"
	"github.com/hnap4pluto/basestation/internal/qam"
)

// ULCtrlCodec encodes/decodes the single-symbol UL control slot: a
// rate-1/2 FEC block over phygeo.ULCtrlBits() payload bits, QPSK
// modulated onto the slot's NumDataSC data-type subcarriers. No block
// interleaving: a single-symbol burst is too short for interleaving to
// meaningfully spread a fade, so it's skipped here (see DESIGN.md).
// Each Disassembler owns one instance, built by NewDisassembler; the
// realtime coordinator (C6) decodes UL control slots through
// Disassembler.DecodeULCtrlSlot and never constructs a ULCtrlCodec itself.
type ULCtrlCodec struct {
	modem *qam.Modem
}

func NewULCtrlCodec() *ULCtrlCodec {
	return &ULCtrlCodec{modem: qam.New(phygeo.ModQPSK)}
}

// ulCtrlPayloadBytes is the fixed payload size of a UL control packet.
func ulCtrlPayloadBytes() int { return phygeo.ULCtrlBits() / 8 }

func (c *ULCtrlCodec) encode(data []byte, writeCell func(sc int, v complex128)) error {
	coded := conv.EncodeBits(conv.BytesToBits(data), conv.RateHalf)
	bps := c.modem.BitsPerSymbol()
	sc := 0
	for i := 0; i+bps <= len(coded); i += bps {
		var v uint
		for b := 0; b < bps; b++ {
			v = v<<1 | boolToUint(coded[i+b])
		}
		if sc >= phygeo.NumDataSC {
			return coreerr.ErrBufferUnderflow
		}
		writeCell(sc, c.modem.Modulate(v))
		sc++
	}
	return nil
}

func (c *ULCtrlCodec) decode(readCell func(sc int) complex128) ([]byte, error) {
	dataBits := phygeo.ULCtrlBits()
	codedLen := conv.CodedLen(dataBits, conv.RateHalf)
	bps := c.modem.BitsPerSymbol()
	numSymbols := (codedLen + bps - 1) / bps

	llr := make([]int8, 0, codedLen)
	for sc := 0; sc < numSymbols; sc++ {
		llr = append(llr, c.modem.DemodulateSoft(readCell(sc))...)
	}
	llr = llr[:codedLen]

	result := conv.Decode(llr, conv.RateHalf, dataBits)
	// Same failure test as bitpipe.Pipeline.Decode: more than one coded bit
	// in twenty disagreeing with a re-encode of the output (a zero LLR counts
	// as a disagreement) fails the block.
	reencoded := conv.EncodeBits(conv.BytesToBits(result.Data), conv.RateHalf)
	disagree := 0
	for i, bit := range reencoded {
		if llr[i] == 0 || (llr[i] > 0) != bit {
			disagree++
		}
	}
	if disagree*20 > codedLen {
		return nil, coreerr.ErrDecodeFailed
	}
	return result.Data, nil
}
