// Package mac holds the BS/UE MAC-layer state the scheduler (C5) and
// subframe assembler (C3) operate on: the sparse user table, per-user
// queues/fragmenter/reassembler/statistics, and the broadcast channel
// (spec.md §3).
package mac

import (
	"fmt"
	"sync"

	"github.com/hnap4pluto/basestation/internal/fragment"
	"github.com/hnap4pluto/basestation/internal/phygeo"
)

// Stats tracks per-user link counters (spec.md §3: "link statistics
// (delivered/lost/bytes)").
type Stats struct {
	DeliveredSDUs uint64
	LostSDUs      uint64
	Bytes         uint64
	DecodeFailures uint64
}

// reassemblyDeadlineFrames is how long a reassembler waits for an
// incomplete UL SDU before discarding it (spec.md §4.4's "deadline
// (frames)"; SPEC_FULL.md leaves the exact count to the implementation).
const reassemblyDeadlineFrames = 16

// mcsDowngradeThreshold is SPEC_FULL.md's supplemented MCS-downgrade
// hysteresis: after this many consecutive decode failures on a user's
// uplink, step its UL MCS down by one (never below MCS0).
const mcsDowngradeThreshold = 3

// User is one associated UE's MAC state.
type User struct {
	mu sync.Mutex // spec.md §5: "protected by a single mutex per user"

	UserID int

	dlQueue     [][]byte // outbound data SDUs awaiting fragmentation
	dlCtrlQueue [][]byte // outbound MAC control messages (e.g. assoc response)

	Fragmenter  fragment.Fragmenter
	Reassembler *fragment.Reassembler

	DLMCS, ULMCS phygeo.MCS

	Stats Stats

	consecutiveULFailures int

	// lastServed{DLData,ULData,ULCtrl} record the subframe sequence
	// number (mod 256) this user was last granted the corresponding slot
	// type, for the scheduler's longest-waited priority (spec.md §4.5).
	lastServedDLData byte
	lastServedULData byte
	lastServedULCtrl byte

	// ulBufferBytes is the UE's self-reported outstanding uplink backlog
	// (spec.md §6's BUFFER_STATUS), used by the scheduler's UL data
	// slot-assignment heuristic.
	ulBufferBytes uint16
}

func newUser(userid int) *User {
	return &User{
		UserID:      userid,
		Reassembler: fragment.NewReassembler(reassemblyDeadlineFrames),
		DLMCS:       phygeo.MCS0,
		ULMCS:       phygeo.MCS0,
	}
}

// Lock/Unlock expose the per-user mutex to callers (the scheduler task
// and the TAP-ingress task) that must serialize access to queues and
// fragmenter/reassembler state.
func (u *User) Lock()   { u.mu.Lock() }
func (u *User) Unlock() { u.mu.Unlock() }

// EnqueueDL appends an SDU to the user's outbound data queue. Callers
// must hold the user's lock.
func (u *User) EnqueueDL(sdu []byte) { u.dlQueue = append(u.dlQueue, sdu) }

// EnqueueDLControl appends an SDU to the user's outbound control queue.
// Callers must hold the user's lock.
func (u *User) EnqueueDLControl(sdu []byte) { u.dlCtrlQueue = append(u.dlCtrlQueue, sdu) }

// HasDLDemand reports whether this user has anything pending to send
// downlink (control prioritized over data, mirrored by popDLSDU).
func (u *User) HasDLDemand() bool {
	return !u.Fragmenter.Idle() || len(u.dlCtrlQueue) > 0 || len(u.dlQueue) > 0
}

// popDLSDU dequeues the next SDU to load into the fragmenter, control
// messages ahead of data, or reports none pending.
func (u *User) popDLSDU() ([]byte, bool) {
	if len(u.dlCtrlQueue) > 0 {
		sdu := u.dlCtrlQueue[0]
		u.dlCtrlQueue = u.dlCtrlQueue[1:]
		return sdu, true
	}
	if len(u.dlQueue) > 0 {
		sdu := u.dlQueue[0]
		u.dlQueue = u.dlQueue[1:]
		return sdu, true
	}
	return nil, false
}

// EnsureFragmenterLoaded pulls a new SDU into the fragmenter if it is
// idle and something is queued, returning false if there was nothing to
// load and the fragmenter stayed idle. payloadCapacity is tbs(DLMCS)/8
// minus the MAC-PDU header length. Callers must hold the user's lock.
func (u *User) EnsureFragmenterLoaded(payloadCapacity int) (bool, error) {
	if !u.Fragmenter.Idle() {
		return true, nil
	}
	sdu, ok := u.popDLSDU()
	if !ok {
		return false, nil
	}
	if err := u.Fragmenter.SetSDU(sdu, 0, payloadCapacity); err != nil {
		return false, fmt.Errorf("mac: user %d: %w", u.UserID, err)
	}
	return true, nil
}

// RecordULDecodeResult updates decode-failure bookkeeping and applies
// SPEC_FULL.md's MCS-downgrade hysteresis: mcsDowngradeThreshold
// consecutive failures step ULMCS down by one. Callers must hold the
// user's lock.
func (u *User) RecordULDecodeResult(ok bool) {
	if ok {
		u.consecutiveULFailures = 0
		return
	}
	u.Stats.DecodeFailures++
	u.consecutiveULFailures++
	if u.consecutiveULFailures >= mcsDowngradeThreshold && u.ULMCS > phygeo.MCS0 {
		u.ULMCS--
		u.consecutiveULFailures = 0
	}
}

// ReportULBuffer records a UE's self-reported uplink buffer backlog.
func (u *User) ReportULBuffer(bytes uint16) { u.ulBufferBytes = bytes }

// ULBufferBytes returns the last reported backlog.
func (u *User) ULBufferBytes() uint16 { return u.ulBufferBytes }

// LastServedDLData/ULData/ULCtrl and the matching MarkServed* setters
// back the scheduler's longest-waited assignment priority (spec.md
// §4.5): each records the subframe sequence number (mod 256) this user
// was last granted the corresponding slot type.
func (u *User) LastServedDLData() byte { return u.lastServedDLData }
func (u *User) LastServedULData() byte { return u.lastServedULData }
func (u *User) LastServedULCtrl() byte { return u.lastServedULCtrl }

func (u *User) MarkServedDLData(subframeSeq byte) { u.lastServedDLData = subframeSeq }
func (u *User) MarkServedULData(subframeSeq byte) { u.lastServedULData = subframeSeq }
func (u *User) MarkServedULCtrl(subframeSeq byte) { u.lastServedULCtrl = subframeSeq }

// mcsThresholds is the fixed SNR(dB)->MCS lookup spec.md §4.5 calls for
// ("a fixed SNR->MCS threshold table"); entries are checked
// highest-SNR-first. SPEC_FULL.md's explicit Non-goal excludes anything
// beyond this stub lookup (no adaptive modulation control policy).
var mcsThresholds = []struct {
	minSNRdB int8
	mcs      phygeo.MCS
}{
	{20, phygeo.MCS4},
	{15, phygeo.MCS3},
	{10, phygeo.MCS2},
	{5, phygeo.MCS1},
	{-128, phygeo.MCS0},
}

// MCSForSNR maps a reported SNR (dB) to an MCS via the fixed threshold
// table.
func MCSForSNR(snrDB int8) phygeo.MCS {
	for _, t := range mcsThresholds {
		if snrDB >= t.minSNRdB {
			return t.mcs
		}
	}
	return phygeo.MCS0
}

// BS is the base station's MAC state: the sparse user table and the
// broadcast channel (spec.md §3).
type BS struct {
	mu    sync.RWMutex
	users [phygeo.MaxUser + 1]*User // index 0 unused; userids are 1..MaxUser

	BroadcastQueue [][]byte

	SubframeSeq byte
}

// New builds empty BS state.
func New() *BS { return &BS{} }

// Associate creates a new user slot, erroring if userid is out of range
// or already associated (spec.md §7: "invalid user configurations are
// rejected at association time, not at scheduling time").
func (b *BS) Associate(userid int) (*User, error) {
	if userid <= 0 || userid > phygeo.MaxUser {
		return nil, fmt.Errorf("mac: userid %d out of range 1..%d", userid, phygeo.MaxUser)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.users[userid] != nil {
		return nil, fmt.Errorf("mac: userid %d already associated", userid)
	}
	u := newUser(userid)
	b.users[userid] = u
	return u, nil
}

// Deassociate tears down a user slot (on de-association or inactivity
// timeout, per spec.md §3's lifecycle note).
func (b *BS) Deassociate(userid int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.users[userid] = nil
}

// User returns the user slot for userid, or ok=false if unassociated.
func (b *BS) User(userid int) (*User, bool) {
	if userid <= 0 || userid > phygeo.MaxUser {
		return nil, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	u := b.users[userid]
	return u, u != nil
}

// AssociatedUsers returns the userids currently associated, ascending.
func (b *BS) AssociatedUsers() []int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []int
	for id := 1; id <= phygeo.MaxUser; id++ {
		if b.users[id] != nil {
			out = append(out, id)
		}
	}
	return out
}
