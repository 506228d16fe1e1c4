// Package radio declares the driver capabilities spec.md §6 places
// outside the PHY/MAC core: the radio front-end's sample-buffer I/O and
// the TAP ingress queue. The core (C1-C6) only ever imports this
// package's interfaces; concrete adapters live in its subpackages
// (loopback, soundcard, ptt, rigctl, discovery, hotplug) and are wired
// up only from cmd/basestation.
package radio

import "context"

// SamplesPerBuffer is the number of OFDM symbols in the buffer one
// Driver.RX call returns and one Driver.TXPrep call stages; the buffer
// holds SamplesPerBuffer*(NFFT+cyclic prefix) time-domain samples (the
// hardware sample cadence spec.md §4.6 describes as "the driver buffer
// holds two [symbols]").
const SamplesPerBuffer = 2

// Driver is the radio front-end capability the coordinator's RX-stream
// and TX-stream tasks consume (spec.md §6's "radio driver capability").
// Implementations may block; RX/TX-stream tasks are the only callers
// and may suspend only inside these calls (spec.md §5).
type Driver interface {
	// RX blocks for one sample buffer of two OFDM symbols' worth of
	// time-domain samples (already including cyclic prefix).
	RX(ctx context.Context) ([]complex128, error)

	// TXPrep stages `samples` for transmission at the given subframe
	// sample offset; it does not yet commit them to the radio.
	TXPrep(ctx context.Context, samples []complex128, offset int) error

	// TXPush commits the most recently staged buffer to the radio.
	TXPush(ctx context.Context) error

	// QueueDepth reports KERNEL_BUF_RX/KERNEL_BUF_TX, the number of
	// buffers the driver's internal queue holds, consumed by the
	// coordinator's startup drain loop (spec.md §4.6's "drain the
	// driver's internal queue by the known depth").
	QueueDepth() (rx, tx int)

	// Close releases any underlying hardware/OS resources.
	Close() error
}

// TapIngress is the IP-frame-ingress capability (spec.md §6's "TAP
// ingress capability"): a blocking read of one IP frame destined for a
// UE, already resolved to a userid via an external IP-prefix table.
type TapIngress interface {
	// Pop blocks for the next outbound frame, returning the
	// destination userid and the frame bytes.
	Pop(ctx context.Context) (userid int, frame []byte, err error)
}

// PTT is the half-duplex transmitter-keying capability SPEC_FULL.md §B
// places alongside the radio driver: the coordinator's TX-stream task
// asserts it for the downlink half of each subframe and releases it at
// DL_UL_SHIFT, the TDD frame boundary. A nil PTT means the front end is
// always keyed (e.g. the loopback driver, or full-duplex hardware).
type PTT interface {
	// Key asserts PTT (starts transmitting).
	Key() error

	// Unkey de-asserts PTT (returns to receive).
	Unkey() error
}
