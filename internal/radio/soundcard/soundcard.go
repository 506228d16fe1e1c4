// Package soundcard implements radio.Driver over an audio interface via
// github.com/gordonklaus/portaudio, the same library the teacher already
// depends on for its sound-card-as-SDR-frontend model but never wires
// into the cgo-era files this pack retrieved (those call OSS/ALSA
// directly). Baseband OFDM samples are carried as stereo I/Q: the left
// channel is the real part, the right the imaginary part, matching how
// an audio-frequency bench SDR rig (e.g. a transceiver's line-level
// I/Q output) typically presents a complex baseband signal.
package soundcard

import (
	"context"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/hnap4pluto/basestation/internal/ofdm"
	"github.com/hnap4pluto/basestation/internal/phygeo"
	"github.com/hnap4pluto/basestation/internal/radio"
)

// samplesPerSymbol includes the cyclic prefix; frameSamples is the
// driver buffer size spec.md §4.6 fixes at two OFDM symbols.
const (
	samplesPerSymbol = phygeo.NFFT + ofdm.CyclicPrefixLen
	frameSamples     = samplesPerSymbol * radio.SamplesPerBuffer
)

// Driver is a radio.Driver backed by a full-duplex PortAudio stream.
type Driver struct {
	stream *portaudio.Stream
	in     []float32 // interleaved stereo I/Q, len 2*frameSamples
	out    []float32
}

// New opens a full-duplex default audio stream at sampleRate and
// starts it.
func New(sampleRate float64) (*Driver, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("soundcard: initialize: %w", err)
	}
	d := &Driver{
		in:  make([]float32, 2*frameSamples),
		out: make([]float32, 2*frameSamples),
	}
	stream, err := portaudio.OpenDefaultStream(2, 2, sampleRate, frameSamples, d.in, d.out)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("soundcard: open default stream: %w", err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("soundcard: start stream: %w", err)
	}
	d.stream = stream
	return d, nil
}

// RX blocks for one full duplex-period read and decodes it to complex
// baseband samples.
func (d *Driver) RX(ctx context.Context) ([]complex128, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := d.stream.Read(); err != nil {
		return nil, fmt.Errorf("soundcard: read: %w", err)
	}
	samples := make([]complex128, frameSamples)
	for i := range samples {
		samples[i] = complex(float64(d.in[2*i]), float64(d.in[2*i+1]))
	}
	return samples, nil
}

// TXPrep stages complex samples into the output buffer at offset
// (sample-indexed, not byte-indexed).
func (d *Driver) TXPrep(ctx context.Context, samples []complex128, offset int) error {
	if offset < 0 || offset+len(samples) > frameSamples {
		return fmt.Errorf("soundcard: TXPrep range [%d:%d) exceeds buffer of %d samples", offset, offset+len(samples), frameSamples)
	}
	for i, s := range samples {
		idx := offset + i
		d.out[2*idx] = float32(real(s))
		d.out[2*idx+1] = float32(imag(s))
	}
	return nil
}

// TXPush writes the staged output buffer to the stream.
func (d *Driver) TXPush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := d.stream.Write(); err != nil {
		return fmt.Errorf("soundcard: write: %w", err)
	}
	return nil
}

// QueueDepth reports PortAudio's double-buffered ring depth; there is
// no deeper kernel queue to drain beyond the stream's own buffering.
func (d *Driver) QueueDepth() (rx, tx int) { return 2, 2 }

// Close stops and closes the stream and tears down PortAudio.
func (d *Driver) Close() error {
	if err := d.stream.Stop(); err != nil {
		return fmt.Errorf("soundcard: stop: %w", err)
	}
	if err := d.stream.Close(); err != nil {
		return fmt.Errorf("soundcard: close: %w", err)
	}
	return portaudio.Terminate()
}
