package phygeo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestTBSBitsPositiveAndDivisibleByEight(t *testing.T) {
	for m := MCS0; m < numMCS; m++ {
		tbs := TBSBits(m)
		require.Greater(t, tbs, 0, "mcs %v", m)
		assert.Zero(t, tbs%8, "mcs %v must be byte-aligned, got %d bits", m, tbs)
	}
}

func TestTBSBitsExactFormula(t *testing.T) {
	// invariant 1: tbs_bits(m) == ((S*bps)-16)*rate for every m
	for m := MCS0; m < numMCS; m++ {
		bps := m.Modulation().BitsPerSymbol()
		want := (slotSymbols*bps - 16) * m.Rate().Num / m.Rate().Den
		assert.Equal(t, want, TBSBits(m))
	}
}

func TestULCtrlBits(t *testing.T) {
	assert.Equal(t, (NumDataSC*2-16)/2, ULCtrlBits())
}

func TestSubcarrierExactlyOneType(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		tbl := NewTables()
		sc := rapid.IntRange(0, NFFT-1).Draw(rt, "sc")
		typ := tbl.SubcarrierAt(sc)
		assert.True(rt, typ == SCNull || typ == SCData || typ == SCPilot)
	})
}

func TestDataCellCountPerSlot(t *testing.T) {
	tbl := NewTables()
	for slot := 0; slot < NumSlot; slot++ {
		first, last := tbl.DataSlotRange(slot)
		count := 0
		for sym := first; sym <= last; sym++ {
			for sc := 0; sc < NFFT; sc++ {
				if tbl.IsDataCell(sym, sc) {
					count++
				}
			}
		}
		assert.Equal(t, DataCellsPerSlot(), count, "slot %d", slot)
	}
}

func TestDataSlotRangesDoNotOverlap(t *testing.T) {
	tbl := NewTables()
	seen := map[int]bool{}
	for slot := 0; slot < NumSlot; slot++ {
		first, last := tbl.DataSlotRange(slot)
		for s := first; s <= last; s++ {
			require.False(t, seen[s], "symbol %d claimed by more than one slot", s)
			seen[s] = true
		}
	}
}

func TestLeadingSymbolOfEverySlotIsPilot(t *testing.T) {
	tbl := NewTables()
	for slot := 0; slot < NumSlot; slot++ {
		first, _ := tbl.DataSlotRange(slot)
		assert.Equal(t, SymSlotPilot, tbl.SymbolAt(first))
	}
}
