// Package rigctl tunes frequency and gain via github.com/xylo04/goHamlib,
// the Go-native successor to the teacher's direct hamlib cgo calls in
// cmd/direwolf/main.go. It backs the --frequency/-f, --rxgain/-g, and
// --txgain/-t CLI flags.
package rigctl

import (
	"fmt"

	"github.com/xylo04/goHamlib"
)

// Controller wraps a single hamlib rig handle.
type Controller struct {
	rig *goHamlib.Rig
}

// Open initializes hamlib for the given rig model over port (e.g. a
// serial device path or "network" target) and returns a ready
// Controller.
func Open(model int, port string) (*Controller, error) {
	rig := goHamlib.NewRig(model)
	rig.SetConfig("rig_pathname", port)
	if err := rig.Open(); err != nil {
		return nil, fmt.Errorf("rigctl: open model %d on %s: %w", model, port, err)
	}
	return &Controller{rig: rig}, nil
}

// SetFrequency tunes the current VFO to freqHz.
func (c *Controller) SetFrequency(freqHz float64) error {
	if err := c.rig.SetFreq(goHamlib.VFOCurrent, freqHz); err != nil {
		return fmt.Errorf("rigctl: set frequency %v: %w", freqHz, err)
	}
	return nil
}

// SetRXGain sets the receiver's RF gain level (0.0..1.0 normalized).
func (c *Controller) SetRXGain(level float32) error {
	if err := c.rig.SetLevel(goHamlib.LevelRF, level); err != nil {
		return fmt.Errorf("rigctl: set rx gain %v: %w", level, err)
	}
	return nil
}

// SetTXGain sets the transmitter's RF power level (0.0..1.0 normalized).
func (c *Controller) SetTXGain(level float32) error {
	if err := c.rig.SetLevel(goHamlib.LevelRFPower, level); err != nil {
		return fmt.Errorf("rigctl: set tx gain %v: %w", level, err)
	}
	return nil
}

// Close releases the rig handle.
func (c *Controller) Close() error {
	return c.rig.Close()
}
