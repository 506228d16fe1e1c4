// Package control implements the bit-exact wire formats exchanged between
// BS and UE outside the data-slot payloads proper: the DL-CTRL packet
// (symbols 0..1 of every subframe), UL-CTRL packets (one per UL control
// slot), and the 4-byte MAC-PDU header every data-slot payload starts
// with (spec.md §6).
package control

import (
	"encoding/binary"
	"fmt"

	"github.com/hnap4pluto/basestation/internal/phygeo"
)

// PDUHeaderLen is the size, in bytes, of the MAC-PDU header prefixing
// every data-slot payload.
const PDUHeaderLen = 4

// PDUType distinguishes a data-slot payload's contents.
type PDUType byte

const (
	PDUData    PDUType = 0
	PDUControl PDUType = 1
)

// PDUHeader is the {type, seq, frag_idx, frag_total} header every
// MAC-PDU carries (spec.md §6).
type PDUHeader struct {
	Type       PDUType
	Seq        byte
	FragIdx    byte
	FragTotal  byte
}

// Marshal packs the header into its 4-byte wire form.
func (h PDUHeader) Marshal() [PDUHeaderLen]byte {
	return [PDUHeaderLen]byte{byte(h.Type), h.Seq, h.FragIdx, h.FragTotal}
}

// ParsePDUHeader reads a PDUHeader from the front of a PDU payload.
func ParsePDUHeader(buf []byte) (PDUHeader, error) {
	if len(buf) < PDUHeaderLen {
		return PDUHeader{}, fmt.Errorf("control: PDU shorter than header (%d bytes)", len(buf))
	}
	return PDUHeader{
		Type:      PDUType(buf[0]),
		Seq:       buf[1],
		FragIdx:   buf[2],
		FragTotal: buf[3],
	}, nil
}

// dlCtrlMagic identifies a DL-CTRL packet at the front of symbols 0..1.
const dlCtrlMagic = 0xD1CCD1CC

// dlCtrlFixedLen is bytes 0..14 of the DL-CTRL packet: magic(4) +
// seq(1) + 4 DL userids(4) + 4 UL userids(4) + 2 ULCTRL userids(2).
const dlCtrlFixedLen = 15

// DLCtrl is the per-subframe broadcast control packet: the three
// assignment vectors plus a broadcast payload, packed bit-exact into
// symbols 0..1 of the subframe (spec.md §6).
type DLCtrl struct {
	SubframeSeq      byte
	DLDataUsers      [phygeo.NumSlot]byte
	ULDataUsers      [phygeo.NumSlot]byte
	ULCtrlUsers      [phygeo.NumULCtrlSlot]byte
	BroadcastPayload []byte
}

// Marshal packs a DLCtrl into exactly capacity bytes (the DL-CTRL
// symbols' slot capacity), zero-padding the broadcast payload. It errors
// if the broadcast payload alone would overflow that capacity.
func (c DLCtrl) Marshal(capacity int) ([]byte, error) {
	if dlCtrlFixedLen+len(c.BroadcastPayload) > capacity {
		return nil, fmt.Errorf("control: DL-CTRL broadcast payload (%d bytes) overflows capacity %d",
			len(c.BroadcastPayload), capacity-dlCtrlFixedLen)
	}
	out := make([]byte, capacity)
	binary.BigEndian.PutUint32(out[0:4], dlCtrlMagic)
	out[4] = c.SubframeSeq
	copy(out[5:9], c.DLDataUsers[:])
	copy(out[9:13], c.ULDataUsers[:])
	copy(out[13:15], c.ULCtrlUsers[:])
	copy(out[dlCtrlFixedLen:], c.BroadcastPayload)
	return out, nil
}

// ParseDLCtrl inverts Marshal, validating the magic.
func ParseDLCtrl(buf []byte) (DLCtrl, error) {
	if len(buf) < dlCtrlFixedLen {
		return DLCtrl{}, fmt.Errorf("control: DL-CTRL buffer too short (%d bytes)", len(buf))
	}
	if got := binary.BigEndian.Uint32(buf[0:4]); got != dlCtrlMagic {
		return DLCtrl{}, fmt.Errorf("control: DL-CTRL magic mismatch, got %#x", got)
	}
	var c DLCtrl
	c.SubframeSeq = buf[4]
	copy(c.DLDataUsers[:], buf[5:9])
	copy(c.ULDataUsers[:], buf[9:13])
	copy(c.ULCtrlUsers[:], buf[13:15])
	c.BroadcastPayload = append([]byte{}, buf[dlCtrlFixedLen:]...)
	return c, nil
}

// ULCtrlType identifies a UL control packet's content.
type ULCtrlType byte

const (
	ULKeepalive      ULCtrlType = 1
	ULAssocReq       ULCtrlType = 2
	ULChannelReport  ULCtrlType = 3
	ULBufferStatus   ULCtrlType = 4
)

// ULCtrl is a decoded UL control-slot packet.
type ULCtrl struct {
	Type ULCtrlType
	// SNRdB is populated for ULChannelReport: a signed-byte SNR estimate.
	SNRdB int8
	// BufferBytes is populated for ULBufferStatus: a two-byte unsigned
	// estimate of the UE's queued-byte backlog.
	BufferBytes uint16
	// RequestedUserID is populated for ULAssocReq: a UE requesting
	// association announces its own operator-preconfigured userid (no
	// contention-resolution/auto-assignment scheme is in scope here — see
	// DESIGN.md).
	RequestedUserID byte
}

// Marshal packs a ULCtrl into its wire form.
func (u ULCtrl) Marshal() []byte {
	switch u.Type {
	case ULChannelReport:
		return []byte{byte(u.Type), byte(u.SNRdB)}
	case ULBufferStatus:
		buf := make([]byte, 3)
		buf[0] = byte(u.Type)
		binary.BigEndian.PutUint16(buf[1:3], u.BufferBytes)
		return buf
	case ULAssocReq:
		return []byte{byte(u.Type), u.RequestedUserID}
	default:
		return []byte{byte(u.Type)}
	}
}

// ParseULCtrl inverts Marshal.
func ParseULCtrl(buf []byte) (ULCtrl, error) {
	if len(buf) < 1 {
		return ULCtrl{}, fmt.Errorf("control: empty UL-CTRL buffer")
	}
	typ := ULCtrlType(buf[0])
	switch typ {
	case ULKeepalive:
		return ULCtrl{Type: typ}, nil
	case ULAssocReq:
		if len(buf) < 2 {
			return ULCtrl{}, fmt.Errorf("control: ASSOC_REQ missing userid byte")
		}
		return ULCtrl{Type: typ, RequestedUserID: buf[1]}, nil
	case ULChannelReport:
		if len(buf) < 2 {
			return ULCtrl{}, fmt.Errorf("control: CHANNEL_REPORT missing SNR byte")
		}
		return ULCtrl{Type: typ, SNRdB: int8(buf[1])}, nil
	case ULBufferStatus:
		if len(buf) < 3 {
			return ULCtrl{}, fmt.Errorf("control: BUFFER_STATUS missing length bytes")
		}
		return ULCtrl{Type: typ, BufferBytes: binary.BigEndian.Uint16(buf[1:3])}, nil
	default:
		return ULCtrl{}, fmt.Errorf("control: unknown UL-CTRL type %d", buf[0])
	}
}
