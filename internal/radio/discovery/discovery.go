// Package discovery advertises the basestation's control endpoint via
// mDNS/DNS-SD using github.com/brutella/dnssd, the same library and
// Config/Service/Responder pattern the teacher uses to announce its
// KISS-over-TCP service (src/dns_sd.go), adapted here to advertise a
// basestation control port rather than a TNC port.
package discovery

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
)

// ServiceType is the DNS-SD service type UE-side tooling browses for.
const ServiceType = "_ofdm-bs._tcp"

// Announcer holds the running mDNS responder.
type Announcer struct {
	responder dnssd.Responder
	cancel    context.CancelFunc
}

// Start announces name on controlPort and begins responding to
// queries in the background until Stop is called.
func Start(name string, controlPort int) (*Announcer, error) {
	cfg := dnssd.Config{
		Name: name,
		Type: ServiceType,
		Port: controlPort,
	}
	sv, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("discovery: new service: %w", err)
	}
	rp, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("discovery: new responder: %w", err)
	}
	if _, err := rp.Add(sv); err != nil {
		return nil, fmt.Errorf("discovery: add service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	a := &Announcer{responder: rp, cancel: cancel}
	go func() {
		_ = rp.Respond(ctx)
	}()
	return a, nil
}

// Stop ends the mDNS responder goroutine.
func (a *Announcer) Stop() {
	a.cancel()
}
