package subframe

import (
	"testing"

	"github.com/hnap4pluto/basestation/internal/control"
	"github.com/hnap4pluto/basestation/internal/mac"
	"github.com/hnap4pluto/basestation/internal/phygeo"
	"github.com/hnap4pluto/basestation/internal/phystate"
	"github.com/hnap4pluto/basestation/internal/bitpipe"
	"github.com/stretchr/testify/require"
)

func TestEmitSubframeWritesDLCtrlRoundTrippable(t *testing.T) {
	tables := phygeo.NewTables()
	pipe := bitpipe.New(tables)
	phy := phystate.New(tables)
	grid := phy.TXGrid(0)

	asm := NewAssembler(tables, pipe)
	dasm := NewDisassembler(tables, pipe)

	bs := mac.New()
	var assignments Assignments
	assignments.DLData[0] = 0 // no users associated in this test

	require.NoError(t, asm.EmitSubframe(grid, phy, assignments, bs, []byte("hi"), 7))

	got, err := dasm.ReadDLCtrl(grid)
	require.NoError(t, err)
	require.Equal(t, byte(7), got.SubframeSeq)
}

func TestEmitSubframeDeliversUserPDU(t *testing.T) {
	tables := phygeo.NewTables()
	pipe := bitpipe.New(tables)
	phy := phystate.New(tables)
	grid := phy.TXGrid(0)

	asm := NewAssembler(tables, pipe)
	dasm := NewDisassembler(tables, pipe)

	bs := mac.New()
	u, err := bs.Associate(1)
	require.NoError(t, err)
	u.DLMCS = phygeo.MCS0
	u.EnqueueDL([]byte("hello user one"))

	var assignments Assignments
	assignments.DLData[2] = 1

	require.NoError(t, asm.EmitSubframe(grid, phy, assignments, bs, nil, 0))

	got, err := dasm.DecodeDataSlot(grid, 2, phygeo.MCS0)
	require.NoError(t, err)

	hdr, err := control.ParsePDUHeader(got)
	require.NoError(t, err)
	require.Equal(t, control.PDUData, hdr.Type)
	require.Contains(t, string(got[control.PDUHeaderLen:]), "hello user one")
}

func TestEmitSubframeRejectsInvalidAssignment(t *testing.T) {
	tables := phygeo.NewTables()
	pipe := bitpipe.New(tables)
	phy := phystate.New(tables)
	grid := phy.TXGrid(0)

	asm := NewAssembler(tables, pipe)
	bs := mac.New()

	var assignments Assignments
	assignments.DLData[0] = 9 // never associated

	err := asm.EmitSubframe(grid, phy, assignments, bs, nil, 0)
	require.Error(t, err)
}

func TestDecodeULCtrlSlotRoundTripsThroughGrid(t *testing.T) {
	tables := phygeo.NewTables()
	pipe := bitpipe.New(tables)
	phy := phystate.New(tables)
	dasm := NewDisassembler(tables, pipe)

	codec := NewULCtrlCodec()
	payload := make([]byte, ulCtrlPayloadBytes())
	for i := range payload {
		payload[i] = byte(2*i + 1)
	}

	rxGrid := phy.RXGrid()
	sym := tables.ULCtrlSymbol(0)
	sc := 0
	require.NoError(t, codec.encode(payload, func(_ int, v complex128) {
		for sc < phygeo.NFFT && tables.SubcarrierAt(sc) != phygeo.SCData {
			sc++
		}
		rxGrid.Write(sym, sc, v)
		sc++
	}))

	got, err := dasm.DecodeULCtrlSlot(rxGrid, 0)
	require.NoError(t, err)
	want, err := control.ParseULCtrl(payload)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestULCtrlCodecRoundTrip(t *testing.T) {
	c := NewULCtrlCodec()
	payload := make([]byte, ulCtrlPayloadBytes())
	for i := range payload {
		payload[i] = byte(i + 1)
	}

	cells := make(map[int]complex128)
	require.NoError(t, c.encode(payload, func(sc int, v complex128) { cells[sc] = v }))

	got, err := c.decode(func(sc int) complex128 { return cells[sc] })
	require.NoError(t, err)
	require.Equal(t, payload, got)
}
