package phygeo

// SubcarrierType classifies one of the NFFT frequency bins.
type SubcarrierType int

const (
	SCNull SubcarrierType = iota
	SCData
	SCPilot
)

// SymbolKind classifies one OFDM symbol position within a subframe
// (DL and UL share the same relative layout, UL shifted by DLULShift).
type SymbolKind int

const (
	SymDLControl SymbolKind = iota // symbols 0..DLCtrlLen-1
	SymSlotPilot                   // first symbol of a data slot
	SymSlotData                    // remaining symbols of a data slot
	SymIdle                        // sync / guard / unused
)

// Tables holds the immutable subcarrier and symbol allocation built once at
// startup. It is the single source of truth consulted by the bit pipeline
// (C2) and the subframe assembler/disassembler (C3).
type Tables struct {
	subcarrier [NFFT]SubcarrierType
	symbol     [SubframeLen]SymbolKind
}

// NewTables builds the subcarrier and symbol allocation tables.
func NewTables() *Tables {
	t := &Tables{}
	t.genSubcarrierAlloc()
	t.genSymbolAlloc()
	return t
}

func (t *Tables) genSubcarrierAlloc() {
	for i := range t.subcarrier {
		t.subcarrier[i] = SCNull
	}
	used := (NumDataSC + NumPilot) / 2 // per band
	for i := 0; i < used; i++ {
		t.subcarrier[1+i] = SCData
		t.subcarrier[NFFT-1-i] = SCData
	}
	for _, off := range [...]int{2, 7, 12, 17} {
		t.subcarrier[off] = SCPilot
		t.subcarrier[NFFT-1-off] = SCPilot
	}
	// index 0 is DC and stays null, per the band layout above (0 is not
	// touched by either loop since `used` <= NFFT/2-1 given the constants).
}

func (t *Tables) genSymbolAlloc() {
	for i := range t.symbol {
		t.symbol[i] = SymIdle
	}
	for i := 0; i < DLCtrlLen; i++ {
		t.symbol[i] = SymDLControl
	}
	for slot := 0; slot < NumSlot; slot++ {
		first, last := t.DataSlotRange(slot)
		t.symbol[first] = SymSlotPilot
		for s := first + 1; s <= last; s++ {
			t.symbol[s] = SymSlotData
		}
	}
}

// DataSlotRange returns the first and last subframe-relative OFDM symbol
// index of data slot `slot` (0-based), per spec.md §4.3: indices
// DLCtrlLen + slot*(SlotLen+1) + {0..SlotLen-1}.
func (t *Tables) DataSlotRange(slot int) (first, last int) {
	first = DLCtrlLen + slot*(SlotLen+1)
	last = first + SlotLen - 1
	return
}

// ULCtrlSymbol returns the single subframe-relative symbol index occupied
// by UL control slot `slot` (0-based). The two UL control slots sit
// immediately after the four UL data slots, one symbol each, separated by
// the same pilot-boundary spacing as data slots.
func (t *Tables) ULCtrlSymbol(slot int) int {
	_, lastData := t.DataSlotRange(NumSlot - 1)
	return lastData + 1 + slot*2
}

// SubcarrierAt returns the subcarrier type at index sc (0..NFFT-1).
func (t *Tables) SubcarrierAt(sc int) SubcarrierType { return t.subcarrier[sc] }

// SymbolAt returns the symbol kind at subframe-relative index sym
// (0..SubframeLen-1).
func (t *Tables) SymbolAt(sym int) SymbolKind { return t.symbol[sym] }

// IsDataCell is the single source-of-truth predicate for whether cell
// (sym, sc) carries payload data: true iff the symbol is not a pilot
// symbol and the subcarrier isn't null, or the subcarrier is specifically
// data-typed (data subcarriers stay data-bearing even on a pilot symbol).
func (t *Tables) IsDataCell(sym, sc int) bool {
	symKind := t.symbol[sym]
	scType := t.subcarrier[sc]
	if symKind != SymSlotPilot && scType != SCNull {
		return true
	}
	return scType == SCData
}

// DataCellsPerSlot is the number of data-bearing cells in one data slot:
// (SlotLen-1) full data symbols of NumDataSC+NumPilot cells each (on a
// data symbol, pilot-typed subcarriers carry data too — only the leading
// pilot symbol reserves them), plus NumDataSC data cells on the leading
// pilot symbol itself. This is exactly slotSymbols, the capacity
// TBSBits is computed against.
func DataCellsPerSlot() int {
	return slotSymbols
}
