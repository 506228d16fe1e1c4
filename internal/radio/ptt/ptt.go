// Package ptt keys a half-duplex transmitter over a GPIO line via
// github.com/warthog618/go-gpiocdev, the direct successor to the
// teacher's CM108/GPIO PTT control path (cm108.go). The coordinator's
// TDD frame boundary (DL_UL_SHIFT) drives the key-up/key-down calls;
// this package only wraps the GPIO line itself.
package ptt

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// Line keys/unkeys a transmitter through a single GPIO output line.
type Line struct {
	line *gpiocdev.Line
}

// Open requests the given chip/offset as an output line, initially
// de-asserted (receive).
func Open(chip string, offset int) (*Line, error) {
	l, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("ptt: request %s:%d: %w", chip, offset, err)
	}
	return &Line{line: l}, nil
}

// Key asserts PTT (starts transmitting).
func (p *Line) Key() error {
	if err := p.line.SetValue(1); err != nil {
		return fmt.Errorf("ptt: key: %w", err)
	}
	return nil
}

// Unkey de-asserts PTT (returns to receive).
func (p *Line) Unkey() error {
	if err := p.line.SetValue(0); err != nil {
		return fmt.Errorf("ptt: unkey: %w", err)
	}
	return nil
}

// Close releases the GPIO line, leaving it de-asserted.
func (p *Line) Close() error {
	_ = p.Unkey()
	return p.line.Close()
}
