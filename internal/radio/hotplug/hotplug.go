// Package hotplug watches for the SDR/audio front-end's USB device
// attach and detach events via github.com/jochenvg/go-udev, the pure-Go
// successor to the teacher's cgo libudev device enumeration
// (src/cm108.go's sound/hidraw device scan), used here to start and
// stop the realtime coordinator as the hardware comes and goes instead
// of enumerating CM108 PTT adapters.
package hotplug

import (
	"context"
	"fmt"

	"github.com/jochenvg/go-udev"
)

// Event is one hotplug notification for the watched subsystem.
type Event struct {
	Action string // "add" or "remove"
	DevNode string
}

// Watch starts a udev monitor on subsystem (e.g. "sound" or "usb") and
// delivers Events on the returned channel until ctx is canceled. The
// returned channel is closed when watching stops.
func Watch(ctx context.Context, subsystem string) (<-chan Event, error) {
	u := udev.Udev{}
	mon := u.NewMonitorFromNetlink("udev")
	if err := mon.FilterAddMatchSubsystem(subsystem); err != nil {
		return nil, fmt.Errorf("hotplug: filter subsystem %s: %w", subsystem, err)
	}

	devCh, errCh, err := mon.DeviceChan(ctx)
	if err != nil {
		return nil, fmt.Errorf("hotplug: start monitor: %w", err)
	}

	out := make(chan Event, 8)
	go func() {
		defer close(out)
		for {
			select {
			case dev, ok := <-devCh:
				if !ok {
					return
				}
				out <- Event{Action: dev.Action(), DevNode: dev.Devnode()}
			case <-errCh:
				// A monitor error ends the watch; the caller decides
				// whether to retry.
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
