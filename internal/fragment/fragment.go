// Package fragment implements C4: the split/join machine between
// variable-length MAC SDUs (<=2048 bytes) and the fixed-size, TBS-sized
// PDUs a data slot carries (spec.md §4.4). A Fragmenter owns at most one
// SDU at a time; a Reassembler owns at most one in-flight sequence per
// user, discarding an older incomplete one when a newer sequence starts.
package fragment

import (
	"fmt"

	"github.com/hnap4pluto/basestation/internal/control"
	"github.com/hnap4pluto/basestation/internal/coreerr"
)

// MaxSDUBytes is the largest SDU a Fragmenter accepts (spec.md §4.4).
const MaxSDUBytes = 2048

// Fragmenter holds the current SDU, a byte cursor, and the 8-bit sequence
// number that increments on each new SDU (spec.md §3: "a fragmenter
// (holding current SDU, emitted-fragments counter, sequence number)").
type Fragmenter struct {
	sdu     []byte
	cursor  int
	seq     byte
	fragIdx byte
	total   byte
	pduType control.PDUType
}

// Idle reports whether the fragmenter has no SDU in flight and is ready
// to accept a new one.
func (f *Fragmenter) Idle() bool { return f.sdu == nil }

// SetSDU loads a new SDU to emit as payloadCapacity-sized fragments,
// bumping the sequence number (which wraps modulo 256 for free, being a
// byte). payloadCapacity is the PDU's TBS minus control.PDUHeaderLen.
func (f *Fragmenter) SetSDU(sdu []byte, typ control.PDUType, payloadCapacity int) error {
	if len(sdu) > MaxSDUBytes {
		return fmt.Errorf("fragment: SDU of %d bytes exceeds MaxSDUBytes", len(sdu))
	}
	if payloadCapacity <= 0 {
		return fmt.Errorf("fragment: non-positive payload capacity %d", payloadCapacity)
	}
	total := (len(sdu) + payloadCapacity - 1) / payloadCapacity
	if total == 0 {
		total = 1 // an empty SDU still gets one (all-padding) fragment
	}
	if total > 255 {
		return fmt.Errorf("fragment: SDU of %d bytes needs %d fragments at capacity %d, exceeds 255",
			len(sdu), total, payloadCapacity)
	}
	f.sdu = sdu
	f.cursor = 0
	f.fragIdx = 0
	f.total = byte(total)
	f.pduType = typ
	f.seq++
	return nil
}

// NextFragment emits the next PDU (header + payloadCapacity bytes of
// payload, zero-padded past the SDU's end) and reports whether this was
// the SDU's final fragment. The fragmenter returns to idle once done.
func (f *Fragmenter) NextFragment(payloadCapacity int) (pdu []byte, done bool) {
	start := f.cursor
	end := start + payloadCapacity
	payload := make([]byte, payloadCapacity)
	if start < len(f.sdu) {
		stop := end
		if stop > len(f.sdu) {
			stop = len(f.sdu)
		}
		copy(payload, f.sdu[start:stop])
	}

	hdr := control.PDUHeader{Type: f.pduType, Seq: f.seq, FragIdx: f.fragIdx, FragTotal: f.total}
	wire := hdr.Marshal()
	pdu = make([]byte, 0, control.PDUHeaderLen+payloadCapacity)
	pdu = append(pdu, wire[:]...)
	pdu = append(pdu, payload...)

	f.fragIdx++
	f.cursor = end
	done = f.fragIdx >= f.total
	if done {
		f.sdu = nil
	}
	return pdu, done
}

// defaultReassemblyDeadlineFrames is how many frame ticks an incomplete
// reassembly is kept around before it's discarded as timed out.
const defaultReassemblyDeadlineFrames = 16

// Reassembler rebuilds one SDU at a time from the fragment stream a
// single user emits, tracking received fragments with a bitmap and
// discarding stale or abandoned sequences (spec.md §4.4).
type Reassembler struct {
	active          bool
	seq             byte
	total           byte
	buf             []byte
	received        []bool
	payloadCapacity int
	deadline        int
	deadlineFrames  int
	lastSeq         byte
	haveLast        bool
}

// NewReassembler builds a Reassembler with the given per-SDU deadline, in
// frame ticks. A deadlineFrames of 0 uses defaultReassemblyDeadlineFrames.
func NewReassembler(deadlineFrames int) *Reassembler {
	if deadlineFrames <= 0 {
		deadlineFrames = defaultReassemblyDeadlineFrames
	}
	return &Reassembler{deadlineFrames: deadlineFrames}
}

// isNewer reports whether seq is ahead of last within a 128-wide sliding
// window, disambiguating sequence-number wrap across 256 (spec.md §4.4).
func isNewer(last, seq byte) bool {
	return byte(seq-last) < 128
}

// Ingest processes one received PDU's header and payload. It returns the
// reassembled SDU and ready=true exactly when the fragment just received
// completes its sequence. A non-nil error is always one of
// coreerr.ErrReassemblyMismatch (frag_total disagreement on an in-flight
// sequence) or coreerr.ErrUnknownUser-adjacent validation failures
// (frag_idx out of range); both are local, non-fatal per spec.md §7.
func (r *Reassembler) Ingest(hdr control.PDUHeader, payload []byte, payloadCapacity int) (sdu []byte, ready bool, err error) {
	if r.active && hdr.Seq != r.seq {
		if !isNewer(r.seq, hdr.Seq) {
			return nil, false, nil // stale duplicate of an older, already-superseded sequence
		}
		r.reset()
	}
	if !r.active && r.haveLast && (hdr.Seq == r.lastSeq || !isNewer(r.lastSeq, hdr.Seq)) {
		return nil, false, nil // stale duplicate of an already-completed sequence
	}
	if !r.active {
		if hdr.FragTotal == 0 {
			return nil, false, coreerr.New(coreerr.ReassemblyMismatch, "frag_total=0 for seq %d", hdr.Seq)
		}
		r.active = true
		r.seq = hdr.Seq
		r.total = hdr.FragTotal
		r.payloadCapacity = payloadCapacity
		r.buf = make([]byte, int(r.total)*payloadCapacity)
		r.received = make([]bool, r.total)
		r.deadline = r.deadlineFrames
	}
	if hdr.FragTotal != r.total {
		err := coreerr.New(coreerr.ReassemblyMismatch, "seq %d: frag_total changed %d -> %d", r.seq, r.total, hdr.FragTotal)
		r.reset()
		return nil, false, err
	}
	if int(hdr.FragIdx) >= int(r.total) {
		return nil, false, fmt.Errorf("fragment: frag_idx %d out of range for total %d", hdr.FragIdx, r.total)
	}

	off := int(hdr.FragIdx) * payloadCapacity
	n := copy(r.buf[off:off+payloadCapacity], payload)
	_ = n
	r.received[hdr.FragIdx] = true

	for _, got := range r.received {
		if !got {
			return nil, false, nil
		}
	}
	sdu = r.buf
	r.lastSeq, r.haveLast = r.seq, true
	r.reset()
	return sdu, true, nil
}

// Tick advances the reassembler's deadline by one frame. It returns true
// (and discards the in-flight reassembly) exactly when an active,
// incomplete reassembly's deadline has just elapsed.
func (r *Reassembler) Tick() bool {
	if !r.active {
		return false
	}
	r.deadline--
	if r.deadline <= 0 {
		r.reset()
		return true
	}
	return false
}

func (r *Reassembler) reset() {
	r.active = false
	r.buf = nil
	r.received = nil
}
