package phystate

import (
	"testing"

	"github.com/hnap4pluto/basestation/internal/phygeo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTXGridParityAreDistinctBuffers(t *testing.T) {
	s := New(phygeo.NewTables())
	s.TXGrid(0).Write(5, 5, 1+2i)
	assert.Equal(t, complex(0, 0), s.TXGrid(1).Read(5, 5))
	assert.Equal(t, complex(1, 2), s.TXGrid(0).Read(5, 5))
}

func TestStampPilotOnlyTouchesPilotSubcarriers(t *testing.T) {
	tables := phygeo.NewTables()
	s := New(tables)
	grid := s.TXGrid(0)
	sym, _ := tables.DataSlotRange(0)
	require.Equal(t, phygeo.SymSlotPilot, tables.SymbolAt(sym))

	s.StampPilot(grid, sym)
	for sc := 0; sc < phygeo.NFFT; sc++ {
		v := grid.Read(sym, sc)
		if tables.SubcarrierAt(sc) == phygeo.SCPilot {
			assert.NotZero(t, v, "sc %d", sc)
		} else {
			assert.Zero(t, v, "sc %d", sc)
		}
	}
}

func TestPilotSequenceIsDeterministic(t *testing.T) {
	a := New(phygeo.NewTables())
	b := New(phygeo.NewTables())
	assert.Equal(t, a.pilot, b.pilot)
}
