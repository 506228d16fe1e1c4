// Package subframe implements C3, the subframe assembler/disassembler:
// it walks the DL assignment vectors to fill a subframe's frequency-
// domain grid with DL-CTRL, pilot, and per-user data-slot cells (the TX
// side), and reads a completed UL slot's cells back out for decode (the
// RX side). Symbol-level synchronisation is an external capability
// (spec.md §2's "symbol-sync tracker" line) — this package only operates
// on whole, already-synchronised slots.
package subframe

import (
	"fmt"

	"github.com/hnap4pluto/basestation/internal/bitpipe"
	"github.com/hnap4pluto/basestation/internal/control"
	"github.com/hnap4pluto/basestation/internal/coreerr"
	"github.com/hnap4pluto/basestation/internal/mac"
	"github.com/hnap4pluto/basestation/internal/phygeo"
	"github.com/hnap4pluto/basestation/internal/phystate"
	"github.com/hnap4pluto/basestation/internal/qam"
)

// Assignments is one subframe's worth of slot assignments (spec.md §3's
// "three assignment arrays"): a userid per slot, 0 meaning unassigned.
type Assignments struct {
	DLData [phygeo.NumSlot]int
	ULData [phygeo.NumSlot]int
	ULCtrl [phygeo.NumULCtrlSlot]int
}

// dlCtrlCapacityBytes is the DL-CTRL packet's slot capacity: DLCtrlLen
// symbols times the symbols' full non-null subcarrier count (both
// data- and pilot-typed subcarriers carry data here — spec.md §4.3 does
// not mark symbols 0..1 as a pilot symbol), at 2 raw bits/cell (QPSK),
// uncoded (see DESIGN.md: no FEC on DL-CTRL).
func dlCtrlCapacityBytes() int {
	return phygeo.DLCtrlLen * (phygeo.NumDataSC + phygeo.NumPilot) * phygeo.ModQPSK.BitsPerSymbol() / 8
}

// Assembler fills a subframe's frequency-domain TX grid.
type Assembler struct {
	tables *phygeo.Tables
	pipe   *bitpipe.Pipeline
	dlCtrl *qam.Modem
}

// NewAssembler builds a C3 assembler over the shared frame tables and
// bit pipeline.
func NewAssembler(tables *phygeo.Tables, pipe *bitpipe.Pipeline) *Assembler {
	return &Assembler{tables: tables, pipe: pipe, dlCtrl: qam.New(phygeo.ModQPSK)}
}

// EmitSubframe is dl_emit_subframe: for each assigned DL data slot, pull
// one PDU from that user's fragmenter and write it into the slot's
// rectangle; stamp every slot's pilot symbol; pack and write the
// DL-CTRL packet into symbols 0..1.
func (a *Assembler) EmitSubframe(grid *phystate.Grid, phy *phystate.State, assignments Assignments, users *mac.BS, broadcastPayload []byte, subframeSeq byte) error {
	for slot := 0; slot < phygeo.NumSlot; slot++ {
		userid := assignments.DLData[slot]
		first, _ := a.tables.DataSlotRange(slot)
		phy.StampPilot(grid, first)
		if userid == 0 {
			continue
		}
		u, ok := users.User(userid)
		if !ok {
			return coreerr.New(coreerr.InvalidAssignment, "DL data slot %d assigned to unassociated user %d", slot, userid)
		}
		if err := a.emitUserSlot(grid, slot, u); err != nil {
			return err
		}
	}

	ctrl := control.DLCtrl{
		SubframeSeq:      subframeSeq,
		BroadcastPayload: broadcastPayload,
	}
	for s := 0; s < phygeo.NumSlot; s++ {
		ctrl.DLDataUsers[s] = byte(assignments.DLData[s])
		ctrl.ULDataUsers[s] = byte(assignments.ULData[s])
	}
	for s := 0; s < phygeo.NumULCtrlSlot; s++ {
		ctrl.ULCtrlUsers[s] = byte(assignments.ULCtrl[s])
	}
	wire, err := ctrl.Marshal(dlCtrlCapacityBytes())
	if err != nil {
		return fmt.Errorf("subframe: %w", err)
	}
	a.writeDLCtrl(grid, wire)
	return nil
}

func (a *Assembler) emitUserSlot(grid *phystate.Grid, slot int, u *mac.User) error {
	u.Lock()
	defer u.Unlock()

	tbsBytes := phygeo.TBSBits(u.DLMCS) / 8
	payloadCapacity := tbsBytes - control.PDUHeaderLen
	if _, err := u.EnsureFragmenterLoaded(payloadCapacity); err != nil {
		return err
	}
	var pdu []byte
	if u.Fragmenter.Idle() {
		// Nothing queued: emit an all-zero, type-Data, single-fragment
		// PDU so the slot still carries a well-formed (if empty) frame.
		hdr := control.PDUHeader{Type: control.PDUData, FragIdx: 0, FragTotal: 1}
		wire := hdr.Marshal()
		pdu = make([]byte, tbsBytes)
		copy(pdu, wire[:])
	} else {
		pdu, _ = u.Fragmenter.NextFragment(payloadCapacity)
	}

	first, last := a.tables.DataSlotRange(slot)
	rect := bitpipe.Rectangle{FirstSC: 0, LastSC: phygeo.NFFT - 1, FirstSymb: first, LastSymb: last}
	if err := a.pipe.Encode(u.DLMCS, pdu, rect, grid.Write); err != nil {
		return fmt.Errorf("subframe: user %d DL slot %d: %w", u.UserID, slot, err)
	}
	return nil
}

func (a *Assembler) writeDLCtrl(grid *phystate.Grid, wire []byte) {
	bits := make([]bool, 0, len(wire)*8)
	for _, b := range wire {
		for i := 7; i >= 0; i-- {
			bits = append(bits, (b>>uint(i))&1 == 1)
		}
	}
	bps := a.dlCtrl.BitsPerSymbol()
	pos := 0
	for sym := 0; sym < phygeo.DLCtrlLen; sym++ {
		for sc := 0; sc < phygeo.NFFT; sc++ {
			if !a.tables.IsDataCell(sym, sc) {
				continue
			}
			if pos+bps > len(bits) {
				return
			}
			var v uint
			for b := 0; b < bps; b++ {
				v = v<<1 | boolToUint(bits[pos+b])
			}
			pos += bps
			grid.Write(sym, sc, a.dlCtrl.Modulate(v))
		}
	}
}

// Disassembler reads a completed UL slot's cells back into bytes.
type Disassembler struct {
	tables *phygeo.Tables
	pipe   *bitpipe.Pipeline
	dlCtrl *qam.Modem
	ulCtrl *ULCtrlCodec
}

// NewDisassembler builds a C3 disassembler over the shared frame tables
// and bit pipeline.
func NewDisassembler(tables *phygeo.Tables, pipe *bitpipe.Pipeline) *Disassembler {
	return &Disassembler{tables: tables, pipe: pipe, dlCtrl: qam.New(phygeo.ModQPSK), ulCtrl: NewULCtrlCodec()}
}

// DecodeDataSlot is ul_decode_slot for a UL data slot: decode the slot's
// rectangle at the given MCS and return the PDU bytes. The RX grid is
// indexed in UL-relative symbol coordinates (0..SubframeLen-1) — the
// DL_UL_SHIFT that relates UL air-time to the DL subframe clock is the
// realtime coordinator's concern (when to sample), not this package's;
// here the slot layout is identical in shape to the DL side's.
func (d *Disassembler) DecodeDataSlot(grid *phystate.Grid, slot int, mcs phygeo.MCS) ([]byte, error) {
	first, last := d.tables.DataSlotRange(slot)
	rect := bitpipe.Rectangle{FirstSC: 0, LastSC: phygeo.NFFT - 1, FirstSymb: first, LastSymb: last}
	return d.pipe.Decode(mcs, rect, grid.Read)
}

// DecodeULCtrlSlot decodes a UL control slot via the dedicated
// control-channel codec (see ctrlcodec.go).
func (d *Disassembler) DecodeULCtrlSlot(grid *phystate.Grid, slot int) (control.ULCtrl, error) {
	sym := d.tables.ULCtrlSymbol(slot)
	scIdx := 0
	payload, err := d.ulCtrl.decode(func(_ int) complex128 {
		for scIdx < phygeo.NFFT && d.tables.SubcarrierAt(scIdx) != phygeo.SCData {
			scIdx++
		}
		v := grid.Read(sym, scIdx)
		scIdx++
		return v
	})
	if err != nil {
		return control.ULCtrl{}, err
	}
	return control.ParseULCtrl(payload)
}

// ReadDLCtrl inverts Assembler.writeDLCtrl for test/loopback use: it
// demodulates symbols 0..1 back into the DL-CTRL wire bytes via hard
// decision (no FEC to correct errors, by design — see DESIGN.md).
func (d *Disassembler) ReadDLCtrl(grid *phystate.Grid) (control.DLCtrl, error) {
	capacity := dlCtrlCapacityBytes()
	bits := make([]bool, 0, capacity*8)
	for sym := 0; sym < phygeo.DLCtrlLen; sym++ {
		for sc := 0; sc < phygeo.NFFT; sc++ {
			if !d.tables.IsDataCell(sym, sc) {
				continue
			}
			for _, llr := range d.dlCtrl.DemodulateSoft(grid.Read(sym, sc)) {
				bits = append(bits, llr > 0)
			}
			if len(bits) >= capacity*8 {
				break
			}
		}
	}
	bits = bits[:capacity*8]
	wire := make([]byte, capacity)
	for i, b := range bits {
		if b {
			wire[i/8] |= 1 << uint(7-i%8)
		}
	}
	return control.ParseDLCtrl(wire)
}

func boolToUint(b bool) uint {
	if b {
		return 1
	}
	return 0
}
