// Package scheduler implements C5, the per-subframe scheduler: drain
// inbound UL control, plan the three assignment vectors under a
// longest-waited fairness policy, and hand the result to C3 to emit.
// It runs once per subframe from the coordinator's scheduler task
// (spec.md §4.6), triggered at symbol 23 of the current subframe so the
// assignments it produces are ready before TX reaches the next
// subframe's DL-CTRL symbols.
package scheduler

import (
	"sort"
	"sync"

	"github.com/hnap4pluto/basestation/internal/control"
	"github.com/hnap4pluto/basestation/internal/mac"
	"github.com/hnap4pluto/basestation/internal/phygeo"
	"github.com/hnap4pluto/basestation/internal/subframe"
)

// InboundEvent is one decoded UL control packet, handed to the
// scheduler by the RX-slot task (C6) as soon as it's decoded.
type InboundEvent struct {
	UserID int
	Ctrl   control.ULCtrl
}

// Scheduler holds the inbound-control queue the coordinator's RX-slot
// task feeds (spec.md §4.5 step 1: "drain each user's inbound control
// queue"). A single queue shared across users mirrors how the UL
// control slots themselves are a shared, scheduler-assigned resource
// rather than one queue per user.
type Scheduler struct {
	bs     *mac.BS
	tables *phygeo.Tables

	mu      sync.Mutex
	pending []InboundEvent
}

// New builds a scheduler over the given BS state and frame tables.
func New(bs *mac.BS, tables *phygeo.Tables) *Scheduler {
	return &Scheduler{bs: bs, tables: tables}
}

// PushInbound enqueues a decoded UL control packet for the next
// RunSubframe call to drain. Safe for concurrent use by the RX-slot
// task while the scheduler task is between runs.
func (s *Scheduler) PushInbound(ev InboundEvent) {
	s.mu.Lock()
	s.pending = append(s.pending, ev)
	s.mu.Unlock()
}

func (s *Scheduler) drainInbound() []InboundEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	events := s.pending
	s.pending = nil
	return events
}

// RunSubframe runs steps 1-4 of spec.md §4.5's six for the subframe that
// will be aired as subframeSeq, returning the assignment vectors C3
// needs to emit it. Step 6 ("advance fragmenters") is performed by
// internal/subframe.Assembler.emitUserSlot as it fills each assigned
// slot, not here; steps 1-4 below are this package's job, and step 5
// (packing DL-CTRL) is internal/subframe.Assembler.EmitSubframe's.
func (s *Scheduler) RunSubframe(subframeSeq byte) subframe.Assignments {
	s.processInboundControl()

	var a subframe.Assignments
	s.planULCtrl(subframeSeq, &a)
	s.planULData(subframeSeq, &a)
	s.planDLData(subframeSeq, &a)
	return a
}

// processInboundControl is step 1: drain the inbound queue, mutating
// user state (association, MCS from channel reports, UL buffer
// estimates).
func (s *Scheduler) processInboundControl() {
	for _, ev := range s.drainInbound() {
		switch ev.Ctrl.Type {
		case control.ULAssocReq:
			if _, ok := s.bs.User(ev.UserID); !ok {
				// Associate() validates range/duplication; a malformed or
				// stale request (already associated, bad userid) is simply
				// ignored rather than treated as a scheduler fault.
				_, _ = s.bs.Associate(ev.UserID)
			}
		case control.ULChannelReport:
			if u, ok := s.bs.User(ev.UserID); ok {
				mcs := mac.MCSForSNR(ev.Ctrl.SNRdB)
				u.Lock()
				u.DLMCS = mcs
				u.ULMCS = mcs
				u.Unlock()
			}
		case control.ULBufferStatus:
			if u, ok := s.bs.User(ev.UserID); ok {
				u.Lock()
				u.ReportULBuffer(ev.Ctrl.BufferBytes)
				u.Unlock()
			}
		case control.ULKeepalive:
			// Liveness only; no state beyond "this user is still here" to
			// record given the current scope (no inactivity-timeout
			// deassociation is implemented).
		}
	}
}

// age returns how many subframes (mod 256) have elapsed since
// lastServed, used as the longest-waited sort key for all three
// assignment steps.
func age(subframeSeq, lastServed byte) byte { return subframeSeq - lastServed }

// planULCtrl is step 2: every associated user needs a UL control slot
// at least every phygeo.FrameLen subframes; when demand exceeds
// phygeo.NumULCtrlSlot, the longest-waited users go first.
func (s *Scheduler) planULCtrl(subframeSeq byte, a *subframe.Assignments) {
	candidates := s.bs.AssociatedUsers()
	sort.Slice(candidates, func(i, j int) bool {
		ui, _ := s.bs.User(candidates[i])
		uj, _ := s.bs.User(candidates[j])
		ai, aj := age(subframeSeq, ui.LastServedULCtrl()), age(subframeSeq, uj.LastServedULCtrl())
		if ai != aj {
			return ai > aj
		}
		return candidates[i] < candidates[j]
	})
	for slot := 0; slot < phygeo.NumULCtrlSlot && slot < len(candidates); slot++ {
		userid := candidates[slot]
		a.ULCtrl[slot] = userid
		u, _ := s.bs.User(userid)
		u.MarkServedULCtrl(subframeSeq)
	}
}

// planULData is step 3: each UL data slot goes to the user with
// non-zero reported uplink backlog that has waited longest since its
// last UL data grant; ties broken by larger backlog, then lowest
// userid (see DESIGN.md for this step's ambiguity resolution).
func (s *Scheduler) planULData(subframeSeq byte, a *subframe.Assignments) {
	for slot := 0; slot < phygeo.NumSlot; slot++ {
		best, bestUser := 0, (*mac.User)(nil)
		var bestAge byte
		var bestBacklog uint16
		for _, userid := range s.bs.AssociatedUsers() {
			u, _ := s.bs.User(userid)
			u.Lock()
			backlog := u.ULBufferBytes()
			last := u.LastServedULData()
			u.Unlock()
			if backlog == 0 {
				continue
			}
			ua := age(subframeSeq, last)
			if bestUser == nil || ua > bestAge || (ua == bestAge && backlog > bestBacklog) {
				best, bestUser, bestAge, bestBacklog = userid, u, ua, backlog
			}
		}
		if bestUser == nil {
			continue
		}
		a.ULData[slot] = best
		bestUser.MarkServedULData(subframeSeq)
	}
}

// planDLData is step 4: each DL data slot goes to the longest-waited
// user with a non-empty DL queue.
func (s *Scheduler) planDLData(subframeSeq byte, a *subframe.Assignments) {
	for slot := 0; slot < phygeo.NumSlot; slot++ {
		best, bestUser := 0, (*mac.User)(nil)
		var bestAge byte
		for _, userid := range s.bs.AssociatedUsers() {
			u, _ := s.bs.User(userid)
			u.Lock()
			demand := u.HasDLDemand()
			last := u.LastServedDLData()
			u.Unlock()
			if !demand {
				continue
			}
			ua := age(subframeSeq, last)
			if bestUser == nil || ua > bestAge {
				best, bestUser, bestAge = userid, u, ua
			}
		}
		if bestUser == nil {
			continue
		}
		a.DLData[slot] = best
		bestUser.MarkServedDLData(subframeSeq)
	}
}
