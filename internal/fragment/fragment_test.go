package fragment

import (
	"testing"

	"github.com/hnap4pluto/basestation/internal/control"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// emitAll drains a Fragmenter loaded with sdu into its full set of PDUs.
func emitAll(t *rapid.T, f *Fragmenter, sdu []byte, payloadCapacity int) [][]byte {
	require.NoError(t, f.SetSDU(sdu, control.PDUData, payloadCapacity))
	var pdus [][]byte
	for {
		pdu, done := f.NextFragment(payloadCapacity)
		pdus = append(pdus, pdu)
		if done {
			break
		}
	}
	return pdus
}

func TestFragmenterRoundTripConcatenation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		payloadCapacity := rapid.IntRange(1, 64).Draw(rt, "cap")
		sduLen := rapid.IntRange(0, MaxSDUBytes).Draw(rt, "sduLen")
		sdu := make([]byte, sduLen)
		for i := range sdu {
			sdu[i] = byte(rapid.IntRange(0, 255).Draw(rt, "b"))
		}

		var f Fragmenter
		pdus := emitAll(rt, &f, sdu, payloadCapacity)

		var payload []byte
		for _, pdu := range pdus {
			payload = append(payload, pdu[control.PDUHeaderLen:]...)
		}

		total := (len(sdu) + payloadCapacity - 1) / payloadCapacity
		if total == 0 {
			total = 1
		}
		want := make([]byte, total*payloadCapacity)
		copy(want, sdu)
		require.Equal(rt, want, payload)
		require.True(rt, f.Idle())
	})
}

func TestFragmenterSequenceIncrements(t *testing.T) {
	var f Fragmenter
	require.NoError(t, f.SetSDU([]byte("first"), control.PDUData, 8))
	pdu1, _ := f.NextFragment(8)
	h1, err := control.ParsePDUHeader(pdu1)
	require.NoError(t, err)

	require.NoError(t, f.SetSDU([]byte("second"), control.PDUData, 8))
	pdu2, _ := f.NextFragment(8)
	h2, err := control.ParsePDUHeader(pdu2)
	require.NoError(t, err)

	require.Equal(t, h1.Seq+1, h2.Seq)
}

// TestReassemblerRoundTripAnyPermutation covers invariant 5: given the
// fragment stream produced by a fragmenter in any permutation, the
// reassembler recovers the same byte string the fragmenter emitted.
func TestReassemblerRoundTripAnyPermutation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		payloadCapacity := rapid.IntRange(1, 32).Draw(rt, "cap")
		sduLen := rapid.IntRange(1, 256).Draw(rt, "sduLen")
		sdu := make([]byte, sduLen)
		for i := range sdu {
			sdu[i] = byte(rapid.IntRange(0, 255).Draw(rt, "b"))
		}

		var f Fragmenter
		pdus := emitAll(rt, &f, sdu, payloadCapacity)

		perm := append([][]byte{}, pdus...)
		for i := len(perm) - 1; i > 0; i-- {
			j := rapid.IntRange(0, i).Draw(rt, "swap")
			perm[i], perm[j] = perm[j], perm[i]
		}

		r := NewReassembler(0)
		var got []byte
		var ready bool
		for _, pdu := range perm {
			hdr, err := control.ParsePDUHeader(pdu)
			require.NoError(rt, err)
			var out []byte
			var r2 bool
			out, r2, err = r.Ingest(hdr, pdu[control.PDUHeaderLen:], payloadCapacity)
			require.NoError(rt, err)
			if r2 {
				got = out
				ready = true
			}
		}
		require.True(rt, ready)

		var want []byte
		for _, pdu := range pdus {
			want = append(want, pdu[control.PDUHeaderLen:]...)
		}
		require.Equal(rt, want, got)
	})
}

func TestReassemblerDiscardsOlderIncompleteOnNewerSequence(t *testing.T) {
	r := NewReassembler(0)
	h0 := control.PDUHeader{Type: control.PDUData, Seq: 5, FragIdx: 0, FragTotal: 2}
	_, ready, err := r.Ingest(h0, make([]byte, 4), 4)
	require.NoError(t, err)
	require.False(t, ready)

	h1 := control.PDUHeader{Type: control.PDUData, Seq: 6, FragIdx: 0, FragTotal: 1}
	out, ready, err := r.Ingest(h1, []byte{1, 2, 3, 4}, 4)
	require.NoError(t, err)
	require.True(t, ready)
	require.Equal(t, []byte{1, 2, 3, 4}, out)
}

func TestReassemblerDropsStaleDuplicate(t *testing.T) {
	r := NewReassembler(0)
	h1 := control.PDUHeader{Type: control.PDUData, Seq: 10, FragIdx: 0, FragTotal: 1}
	_, ready, err := r.Ingest(h1, []byte{9, 9, 9, 9}, 4)
	require.NoError(t, err)
	require.True(t, ready)

	// A stale fragment for an already-superseded earlier sequence must be
	// dropped silently, not treated as starting a new reassembly.
	hStale := control.PDUHeader{Type: control.PDUData, Seq: 3, FragIdx: 0, FragTotal: 5}
	out, ready, err := r.Ingest(hStale, make([]byte, 4), 4)
	require.NoError(t, err)
	require.False(t, ready)
	require.Nil(t, out)
}

func TestReassemblerMismatchOnFragTotalChange(t *testing.T) {
	r := NewReassembler(0)
	h0 := control.PDUHeader{Type: control.PDUData, Seq: 1, FragIdx: 0, FragTotal: 3}
	_, _, err := r.Ingest(h0, make([]byte, 4), 4)
	require.NoError(t, err)

	h1 := control.PDUHeader{Type: control.PDUData, Seq: 1, FragIdx: 1, FragTotal: 4}
	_, _, err = r.Ingest(h1, make([]byte, 4), 4)
	require.Error(t, err)
}

func TestReassemblerTimeout(t *testing.T) {
	r := NewReassembler(2)
	h0 := control.PDUHeader{Type: control.PDUData, Seq: 1, FragIdx: 0, FragTotal: 2}
	_, _, err := r.Ingest(h0, make([]byte, 4), 4)
	require.NoError(t, err)

	require.False(t, r.Tick())
	require.True(t, r.Tick())

	// After timeout, a fresh sequence starts cleanly.
	h1 := control.PDUHeader{Type: control.PDUData, Seq: 2, FragIdx: 0, FragTotal: 1}
	out, ready, err := r.Ingest(h1, []byte{7, 7, 7, 7}, 4)
	require.NoError(t, err)
	require.True(t, ready)
	require.Equal(t, []byte{7, 7, 7, 7}, out)
}
