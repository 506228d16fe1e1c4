// Package phystate holds the process-lifetime PHY state (spec.md §3):
// the frequency-domain TX grid, double-buffered on subframe parity, the
// RX-side frequency-domain slot buffer, and the deterministic pilot
// sequence the subframe assembler (C3) stamps into every slot's leading
// symbol.
package phystate

import (
	"github.com/hnap4pluto/basestation/internal/phygeo"
	"github.com/hnap4pluto/basestation/internal/qam"
)

// Grid is one subframe's worth of frequency-domain cells, indexed
// [symbol][subcarrier]. It implements the read/write closures
// internal/bitpipe.Pipeline.Encode/Decode expect.
type Grid struct {
	cells [phygeo.SubframeLen][phygeo.NFFT]complex128
}

// Write stores one cell. Matches the bitpipe writeCell signature.
func (g *Grid) Write(sym, sc int, v complex128) { g.cells[sym][sc] = v }

// Read loads one cell. Matches the bitpipe readCell signature.
func (g *Grid) Read(sym, sc int) complex128 { return g.cells[sym][sc] }

// Reset zeroes every cell, used before a parity buffer is reused.
func (g *Grid) Reset() {
	for s := range g.cells {
		for c := range g.cells[s] {
			g.cells[s][c] = 0
		}
	}
}

// State is the PHY state shared across the coordinator's tasks:
// allocated once at startup, torn down at shutdown (spec.md §3's
// "Lifecycles" paragraph).
type State struct {
	Tables *phygeo.Tables

	// txGrids is double-buffered on tx_subframe%2: the scheduler/C3 write
	// the grid not currently being streamed out; TX-stream reads the
	// other. No lock guards the grids themselves — the signal/wait
	// rendezvous between the scheduler and TX-stream tasks is the
	// barrier (spec.md §5).
	txGrids [2]Grid

	// rxGrid accumulates one subframe's worth of demodulated UL cells as
	// RX-stream advances through symbols; RX-slot reads a slot's
	// rectangle out of it once that slot's symbols have all arrived.
	rxGrid Grid

	pilot [phygeo.NFFT]complex128
}

// New builds PHY state and the deterministic pilot sequence.
func New(tables *phygeo.Tables) *State {
	s := &State{Tables: tables}
	s.genPilotSequence()
	return s
}

// TXGrid returns the frequency-domain grid for the given subframe parity
// (subframeSeq % 2), the one the scheduler/C3 should currently be
// writing into.
func (s *State) TXGrid(parity int) *Grid { return &s.txGrids[parity&1] }

// RXGrid returns the uplink demodulation grid RX-stream fills and
// RX-slot reads from.
func (s *State) RXGrid() *Grid { return &s.rxGrid }

// StampPilot writes the deterministic pilot sequence into the pilot
// cells of symbol `sym` (data-typed subcarriers are left untouched — C3
// fills those separately with payload).
func (s *State) StampPilot(grid *Grid, sym int) {
	for sc := 0; sc < phygeo.NFFT; sc++ {
		if s.Tables.SubcarrierAt(sc) == phygeo.SCPilot {
			grid.Write(sym, sc, s.pilot[sc])
		}
	}
}

// genPilotSequence derives a fixed, deterministic unit-energy QPSK-like
// value per subcarrier from a maximal-length LFSR, the same G3RUH-style
// polynomial construction the teacher's 9600-baud demodulator uses for
// descrambling (src/demod_9600.go's lfsr field), adapted here to seed a
// constellation sequence instead of a data-whitening stream.
func (s *State) genPilotSequence() {
	const regWidth = 17 // x^17 + x^12 + 1
	reg := uint32(0x1ACE)
	nextBit := func() uint32 {
		fb := ((reg >> 16) ^ (reg >> 11)) & 1
		reg = ((reg << 1) | fb) & (1<<regWidth - 1)
		return fb
	}
	modem := qam.New(phygeo.ModQPSK)
	for sc := 0; sc < phygeo.NFFT; sc++ {
		sym := uint(nextBit())<<1 | uint(nextBit())
		s.pilot[sc] = modem.Modulate(sym)
	}
}
