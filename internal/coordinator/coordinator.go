// Package coordinator implements C6, the realtime coordinator: the four
// cooperating tasks of spec.md §4.6 (RX-stream, RX-slot, TX-stream,
// Scheduler) wired together with goroutines and channels instead of the
// teacher's pthread/condvar pairs (src/tq.go's wake_up_cond, adapted to
// Go's native concurrency primitives per spec.md §9's redesign flag on
// ad hoc synchronisation). Suspension points stay exactly where spec.md
// §5 places them: the streaming tasks block only inside the radio
// driver; RX-slot and Scheduler block only on their respective channel.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/hnap4pluto/basestation/internal/config"
	"github.com/hnap4pluto/basestation/internal/control"
	"github.com/hnap4pluto/basestation/internal/coreerr"
	"github.com/hnap4pluto/basestation/internal/mac"
	"github.com/hnap4pluto/basestation/internal/ofdm"
	"github.com/hnap4pluto/basestation/internal/phygeo"
	"github.com/hnap4pluto/basestation/internal/phystate"
	"github.com/hnap4pluto/basestation/internal/radio"
	"github.com/hnap4pluto/basestation/internal/scheduler"
	"github.com/hnap4pluto/basestation/internal/subframe"
)

// schedulerTriggerSymbol is the subframe-relative TX symbol that fires
// the scheduler signal (spec.md §4.5: "triggered... at symbol 23").
const schedulerTriggerSymbol = 23

// samplesPerSymbol is one OFDM symbol's time-domain length including
// cyclic prefix.
const samplesPerSymbol = phygeo.NFFT + ofdm.CyclicPrefixLen

var (
	// symbolPeriod is the real-time duration of one OFDM symbol at the
	// reference sample rate, used only to size schedulerBudget below.
	symbolPeriod = time.Duration(float64(samplesPerSymbol) / float64(phygeo.SampleRateHz) * float64(time.Second))

	// symbolPairBudget and slotDecodeBudget are spec.md §4.6's two
	// hard deadlines.
	symbolPairBudget = 530 * time.Microsecond
	slotDecodeBudget = 3500 * time.Microsecond

	// schedulerBudget covers symbols 23..31 of the same subframe
	// (spec.md §5's ordering guarantee), the window the scheduler has
	// to finish before TX-stream starts packing the next subframe's
	// DL-CTRL.
	schedulerBudget = (31 - schedulerTriggerSymbol) * symbolPeriod
)

type slotKind int

const (
	slotKindULData slotKind = iota
	slotKindULCtrl
)

type slotEvent struct {
	kind        slotKind
	slot        int
	subframeSeq byte
}

// Coordinator owns the four C6 tasks and the state shared between them:
// the recorded assignment vectors RX-slot consults to know which user
// (and MCS) owns a given UL slot, per spec.md §5's "Assignment vectors"
// shared resource. Indexing assignments by the subframe sequence byte
// directly (a fixed 256-entry array, mirroring phygeo's fixed-size
// tables) avoids any unbounded growth.
type Coordinator struct {
	tables *phygeo.Tables
	state  *phystate.State
	asm    *subframe.Assembler
	dasm   *subframe.Disassembler
	sched  *scheduler.Scheduler
	bs     *mac.BS
	driver radio.Driver
	tap    radio.TapIngress
	ptt    radio.PTT
	logger *log.Logger
	cfg    config.CoreConfig

	// OnULDeliver, if set, is called from the RX-slot task whenever a
	// UE's reassembler completes an SDU (spec.md §4.4's "deliver SDU
	// upward"); upward delivery beyond this core is out of scope
	// (spec.md §2's Out of scope line), so this is a thin, optional
	// hook rather than a concrete egress implementation.
	OnULDeliver func(userid int, sdu []byte)

	mu          sync.RWMutex
	assignments [256]subframe.Assignments

	schedulerSignal chan byte
	rxSlotEvents    chan slotEvent

	symbolPairDur *emaTracker
	slotDecodeDur *emaTracker
	schedulerDur  *emaTracker
}

// New builds a Coordinator over already-constructed PHY/MAC state and
// drivers (spec.md §3's "Lifecycles": PHY state is allocated once at
// process start and passed in here, not owned by the coordinator).
func New(cfg config.CoreConfig, tables *phygeo.Tables, state *phystate.State, asm *subframe.Assembler, dasm *subframe.Disassembler, sched *scheduler.Scheduler, bs *mac.BS, driver radio.Driver, tap radio.TapIngress, ptt radio.PTT, logger *log.Logger) *Coordinator {
	return &Coordinator{
		tables:          tables,
		state:           state,
		asm:             asm,
		dasm:            dasm,
		sched:           sched,
		bs:              bs,
		driver:          driver,
		tap:             tap,
		ptt:             ptt,
		logger:          logger,
		cfg:             cfg,
		schedulerSignal: make(chan byte, 1),
		rxSlotEvents:    make(chan slotEvent, 32),
		symbolPairDur:   newEMATracker(),
		slotDecodeDur:   newEMATracker(),
		schedulerDur:    newEMATracker(),
	}
}

// Run starts the four tasks (plus the TAP-ingress task, if a TapIngress
// was supplied) and blocks until ctx is canceled or a fatal error occurs
// (spec.md §7: buffer_underflow, driver_unavailable, invalid_assignment).
// On return, shutdown has already completed: driver closed first (to
// unblock the streaming tasks), context canceled, tasks joined — the
// same order as spec.md §5's cancellation sequence minus PHY/MAC teardown,
// which outlives a single Run call and is the caller's responsibility.
func (c *Coordinator) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := c.startupHandshake(runCtx); err != nil {
		return fmt.Errorf("coordinator: startup handshake: %w", err)
	}

	fatal := make(chan error, 1)
	var wg sync.WaitGroup

	spawn := func(name string, priority int, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := pinCurrentTask(c.cpuFor(name), priority); err != nil {
				c.logger.Warn("task pinning unavailable", "task", name, "err", err)
			}
			fn(runCtx)
		}()
	}

	spawn("rx-stream", fifoPriorityStreaming, func(taskCtx context.Context) { c.rxStreamTask(taskCtx, fatal) })
	spawn("tx-stream", fifoPriorityStreaming, func(taskCtx context.Context) { c.txStreamTask(taskCtx, fatal) })
	spawn("rx-slot", fifoPrioritySlow, c.rxSlotTask)
	spawn("scheduler", fifoPrioritySlow, func(taskCtx context.Context) { c.schedulerTask(taskCtx, fatal) })
	if c.tap != nil {
		spawn("tap-ingress", fifoPrioritySlow, c.tapIngressTask)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-fatal:
	}

	if err := c.driver.Close(); err != nil {
		c.logger.Warn("driver close", "err", err)
	}
	cancel()
	wg.Wait()
	return runErr
}

func (c *Coordinator) cpuFor(task string) int {
	if cpu, ok := c.cfg.CPUAffinity[task]; ok {
		return cpu
	}
	return -1
}

const (
	fifoPriorityStreaming = 80 // RX/TX streaming tasks: higher (spec.md §5)
	fifoPrioritySlow      = 60 // scheduler and slot decode
)

// startupHandshake is spec.md §4.6's start-up sequence: RX and TX
// rendezvous at a barrier, both drain the driver's internal queue by its
// reported depth, then rendezvous again.
func (c *Coordinator) startupHandshake(ctx context.Context) error {
	barrier1 := newTwoPartyBarrier()
	barrier2 := newTwoPartyBarrier()
	errs := make(chan error, 2)

	go func() {
		barrier1.wait()
		rxDepth, _ := c.driver.QueueDepth()
		for i := 0; i < rxDepth; i++ {
			if _, err := c.driver.RX(ctx); err != nil {
				errs <- fmt.Errorf("drain RX queue: %w", err)
				return
			}
		}
		barrier2.wait()
		errs <- nil
	}()

	go func() {
		barrier1.wait()
		_, txDepth := c.driver.QueueDepth()
		zero := make([]complex128, radio.SamplesPerBuffer*samplesPerSymbol)
		for i := 0; i < txDepth; i++ {
			if err := c.driver.TXPrep(ctx, zero, i*len(zero)); err != nil {
				errs <- fmt.Errorf("drain TX queue: %w", err)
				return
			}
			if err := c.driver.TXPush(ctx); err != nil {
				errs <- fmt.Errorf("drain TX queue: %w", err)
				return
			}
		}
		barrier2.wait()
		errs <- nil
	}()

	for i := 0; i < 2; i++ {
		if err := <-errs; err != nil {
			return err
		}
	}
	return nil
}

// rxStreamTask is the RX-stream task: FFT each incoming symbol into the
// RX grid and notify RX-slot as soon as a UL slot's last symbol lands.
func (c *Coordinator) rxStreamTask(ctx context.Context, fatal chan<- error) {
	var ulSymbol int
	for {
		start := time.Now()
		buf, err := c.driver.RX(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.fail(fatal, coreerr.New(coreerr.DriverUnavailable, "RX: %v", err))
			return
		}
		for i := 0; i < radio.SamplesPerBuffer; i++ {
			if (i+1)*samplesPerSymbol > len(buf) {
				c.logger.Warn("short RX buffer", "want", radio.SamplesPerBuffer*samplesPerSymbol, "got", len(buf))
				break
			}
			burst := buf[i*samplesPerSymbol : (i+1)*samplesPerSymbol]
			freq := ofdm.FFT(ofdm.RemoveCyclicPrefix(burst))

			relSym := ulSymbol % phygeo.SubframeLen
			subframeSeq := byte(ulSymbol / phygeo.SubframeLen)
			grid := c.state.RXGrid()
			for sc := 0; sc < phygeo.NFFT; sc++ {
				grid.Write(relSym, sc, freq[sc])
			}
			c.notifySlotCompletion(relSym, subframeSeq)
			ulSymbol++
		}
		c.symbolPairDur.record(c.logger, "rx_symbol_pair", time.Since(start), symbolPairBudget)
	}
}

// notifySlotCompletion pushes a slot-ready event the instant the last
// symbol of a UL data slot or a UL control slot's single symbol has
// landed in the RX grid.
func (c *Coordinator) notifySlotCompletion(relSym int, subframeSeq byte) {
	for slot := 0; slot < phygeo.NumULCtrlSlot; slot++ {
		if c.tables.ULCtrlSymbol(slot) == relSym {
			c.pushSlotEvent(slotEvent{kind: slotKindULCtrl, slot: slot, subframeSeq: subframeSeq})
			return
		}
	}
	for slot := 0; slot < phygeo.NumSlot; slot++ {
		if _, last := c.tables.DataSlotRange(slot); last == relSym {
			c.pushSlotEvent(slotEvent{kind: slotKindULData, slot: slot, subframeSeq: subframeSeq})
			return
		}
	}
}

func (c *Coordinator) pushSlotEvent(ev slotEvent) {
	select {
	case c.rxSlotEvents <- ev:
	default:
		c.logger.Warn("RX-slot queue full, dropping notification", "slot", ev.slot, "kind", ev.kind)
	}
}

// rxSlotTask is the RX-slot task: decode whatever slot just completed
// and hand the result to the scheduler (control) or the user's
// reassembler (data).
func (c *Coordinator) rxSlotTask(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-c.rxSlotEvents:
			start := time.Now()
			switch ev.kind {
			case slotKindULCtrl:
				c.handleULCtrlSlot(ev)
			case slotKindULData:
				c.handleULDataSlot(ev)
			}
			c.slotDecodeDur.record(c.logger, "rx_slot_decode", time.Since(start), slotDecodeBudget)
		}
	}
}

// handleULCtrlSlot decodes a UL control slot. A slot the scheduler left
// unassigned (userid 0) is still decoded speculatively: with no
// dedicated random-access channel named anywhere in spec.md (§9 flags
// the ASSOC_REQ payload as under-specified), an unassigned UL control
// slot is this core's bootstrap opportunity for a not-yet-associated UE
// to send ASSOC_REQ — see DESIGN.md.
func (c *Coordinator) handleULCtrlSlot(ev slotEvent) {
	ulctrl, err := c.dasm.DecodeULCtrlSlot(c.state.RXGrid(), ev.slot)
	if err != nil {
		c.logger.Debug("UL-CTRL decode failed", "slot", ev.slot, "subframe", ev.subframeSeq, "err", err)
		return
	}

	userid := c.assignedULCtrlUser(ev.subframeSeq, ev.slot)
	if userid == 0 {
		if ulctrl.Type != control.ULAssocReq {
			return
		}
		userid = int(ulctrl.RequestedUserID)
	}
	if userid <= 0 || userid > phygeo.MaxUser {
		c.logger.Warn("UL-CTRL decoded out-of-range userid", "userid", userid)
		return
	}
	c.sched.PushInbound(scheduler.InboundEvent{UserID: userid, Ctrl: ulctrl})
}

// handleULDataSlot decodes a UL data slot and feeds the PDU into the
// owning user's reassembler.
func (c *Coordinator) handleULDataSlot(ev slotEvent) {
	userid, mcs := c.assignedULDataUser(ev.subframeSeq, ev.slot)
	if userid == 0 {
		return
	}
	u, ok := c.bs.User(userid)
	if !ok {
		c.logger.Warn("UL data slot decoded for unassociated user", "userid", userid, "slot", ev.slot)
		return
	}

	pdu, err := c.dasm.DecodeDataSlot(c.state.RXGrid(), ev.slot, mcs)
	u.Lock()
	defer u.Unlock()
	u.RecordULDecodeResult(err == nil)
	if err != nil {
		return
	}
	hdr, err := control.ParsePDUHeader(pdu)
	if err != nil {
		return
	}
	payloadCapacity := phygeo.TBSBits(mcs)/8 - control.PDUHeaderLen
	sdu, ready, err := u.Reassembler.Ingest(hdr, pdu[control.PDUHeaderLen:], payloadCapacity)
	if err != nil || !ready {
		return
	}
	u.Stats.DeliveredSDUs++
	u.Stats.Bytes += uint64(len(sdu))
	if c.OnULDeliver != nil {
		c.OnULDeliver(userid, sdu)
	}
}

func (c *Coordinator) assignedULCtrlUser(subframeSeq byte, slot int) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.assignments[subframeSeq].ULCtrl[slot]
}

func (c *Coordinator) assignedULDataUser(subframeSeq byte, slot int) (userid int, mcs phygeo.MCS) {
	c.mu.RLock()
	userid = c.assignments[subframeSeq].ULData[slot]
	c.mu.RUnlock()
	if userid == 0 {
		return 0, phygeo.MCS0
	}
	u, ok := c.bs.User(userid)
	if !ok {
		return userid, phygeo.MCS0
	}
	u.Lock()
	mcs = u.ULMCS
	u.Unlock()
	return userid, mcs
}

// txStreamTask is the TX-stream task: IFFT the TX grid two symbols at a
// time, hand the burst to the driver, fire the scheduler signal at
// subframe symbol 23, and key/unkey PTT at the DL_UL_SHIFT TDD boundary.
func (c *Coordinator) txStreamTask(ctx context.Context, fatal chan<- error) {
	var txSymbol int
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		start := time.Now()
		subframeSeq := byte(txSymbol / phygeo.SubframeLen)
		grid := c.state.TXGrid(int(subframeSeq))

		samples := make([]complex128, 0, radio.SamplesPerBuffer*samplesPerSymbol)
		lastRelSym := -1
		for i := 0; i < radio.SamplesPerBuffer; i++ {
			relSym := (txSymbol + i) % phygeo.SubframeLen
			c.keyPTTAtBoundary(relSym)
			freq := make([]complex128, phygeo.NFFT)
			for sc := 0; sc < phygeo.NFFT; sc++ {
				freq[sc] = grid.Read(relSym, sc)
			}
			samples = append(samples, ofdm.AddCyclicPrefix(ofdm.IFFT(freq))...)
			lastRelSym = relSym
		}

		if err := c.driver.TXPrep(ctx, samples, txSymbol*samplesPerSymbol); err != nil {
			c.fail(fatal, coreerr.New(coreerr.DriverUnavailable, "TXPrep: %v", err))
			return
		}
		if err := c.driver.TXPush(ctx); err != nil {
			c.fail(fatal, coreerr.New(coreerr.DriverUnavailable, "TXPush: %v", err))
			return
		}

		if lastRelSym == schedulerTriggerSymbol {
			select {
			case c.schedulerSignal <- subframeSeq:
			default:
				c.logger.Warn("scheduler signal dropped, previous run still pending", "subframe", subframeSeq)
			}
		}
		c.symbolPairDur.record(c.logger, "tx_symbol_pair", time.Since(start), symbolPairBudget)
		txSymbol += radio.SamplesPerBuffer
	}
}

// keyPTTAtBoundary asserts PTT at the start of the subframe's downlink
// half (relSym 0) and releases it at DL_UL_SHIFT, the TDD frame
// boundary (spec.md/SPEC_FULL.md §B: "the coordinator's TDD frame
// boundary drives the key-up edge"). A nil c.ptt (no GPIO line
// configured, or a full-duplex/loopback front end) is a no-op.
func (c *Coordinator) keyPTTAtBoundary(relSym int) {
	if c.ptt == nil {
		return
	}
	switch relSym {
	case 0:
		if err := c.ptt.Key(); err != nil {
			c.logger.Warn("PTT key failed", "err", err)
		}
	case c.cfg.DLULShift:
		if err := c.ptt.Unkey(); err != nil {
			c.logger.Warn("PTT unkey failed", "err", err)
		}
	}
}

// schedulerTask is the Scheduler task: on each signal, run C5 for the
// next subframe and emit it into the TX grid parity TX-stream isn't
// currently reading. An assembly error of a fatal kind (buffer underflow,
// invalid assignment) ends Run; other assembly errors are logged.
func (c *Coordinator) schedulerTask(ctx context.Context, fatal chan<- error) {
	for {
		select {
		case <-ctx.Done():
			return
		case subframeSeq := <-c.schedulerSignal:
			start := time.Now()
			next := subframeSeq + 1
			assignments := c.sched.RunSubframe(next)

			c.mu.Lock()
			c.assignments[next] = assignments
			c.mu.Unlock()

			grid := c.state.TXGrid(int(next))
			grid.Reset()
			if err := c.asm.EmitSubframe(grid, c.state, assignments, c.bs, c.nextBroadcastPayload(), next); err != nil {
				if kind, ok := coreerr.KindOf(err); ok && kind.Fatal() {
					c.fail(fatal, err)
					return
				}
				c.logger.Error("subframe assembly failed", "subframe", next, "err", err)
			}
			c.schedulerDur.record(c.logger, "scheduler", time.Since(start), schedulerBudget)
		}
	}
}

// nextBroadcastPayload pops the next queued broadcast message, if any.
// The broadcast channel has no fragmentation scheme of its own (spec.md
// names no such thing): a message either fits in the DL-CTRL capacity
// this subframe or control.DLCtrl.Marshal rejects it, logged by the
// caller rather than silently truncated.
func (c *Coordinator) nextBroadcastPayload() []byte {
	if len(c.bs.BroadcastQueue) == 0 {
		return nil
	}
	payload := c.bs.BroadcastQueue[0]
	c.bs.BroadcastQueue = c.bs.BroadcastQueue[1:]
	return payload
}

// tapIngressTask is the TAP ingress task spec.md §5 refers to as the
// other writer of per-user queues: it blocks on the external
// radio.TapIngress capability and enqueues each frame for the DL
// fragmenter to pick up.
func (c *Coordinator) tapIngressTask(ctx context.Context) {
	for {
		userid, frame, err := c.tap.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warn("TAP ingress pop failed", "err", err)
			continue
		}
		u, ok := c.bs.User(userid)
		if !ok {
			c.logger.Debug("TAP frame for unassociated user dropped", "userid", userid)
			continue
		}
		u.Lock()
		u.EnqueueDL(frame)
		u.Unlock()
	}
}

func (c *Coordinator) fail(fatal chan<- error, err error) {
	c.logger.Error("fatal coordinator error", "err", err)
	select {
	case fatal <- err:
	default:
	}
}

// twoPartyBarrier is a reusable rendezvous point for exactly two
// goroutines (spec.md §4.6's "two-party barrier"), built on an
// unbuffered channel: whichever goroutine calls wait first blocks on
// either sending or receiving; the second caller's matching case
// releases both.
type twoPartyBarrier struct {
	ch chan struct{}
}

func newTwoPartyBarrier() *twoPartyBarrier {
	return &twoPartyBarrier{ch: make(chan struct{})}
}

func (b *twoPartyBarrier) wait() {
	select {
	case b.ch <- struct{}{}:
	case <-b.ch:
	}
}

// emaTracker keeps an exponential moving average of a task's per-
// iteration duration and logs (never aborts on) a budget overrun, per
// spec.md §4.6's "records moving averages and flags deadline misses as
// warnings; it never aborts".
type emaTracker struct {
	mu  sync.Mutex
	avg time.Duration
}

func newEMATracker() *emaTracker { return &emaTracker{} }

const emaAlpha = 0.1

func (t *emaTracker) record(logger *log.Logger, task string, elapsed, budget time.Duration) {
	t.mu.Lock()
	if t.avg == 0 {
		t.avg = elapsed
	} else {
		t.avg = time.Duration((1-emaAlpha)*float64(t.avg) + emaAlpha*float64(elapsed))
	}
	avg := t.avg
	t.mu.Unlock()

	if elapsed > budget {
		logger.Warn("deadline missed", "task", task, "elapsed", elapsed, "budget", budget, "moving_avg", avg)
	}
}
