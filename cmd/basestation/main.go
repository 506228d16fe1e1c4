// Command basestation wires the PHY/MAC core (C1-C6) to a concrete
// radio front-end and runs it until interrupted. Driver selection lives
// entirely here: the core packages (internal/phygeo, internal/bitpipe,
// internal/subframe, internal/mac, internal/scheduler,
// internal/coordinator) only ever import internal/radio's interfaces,
// per SPEC_FULL.md §A3.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lestrrat-go/strftime"

	"github.com/hnap4pluto/basestation/internal/bitpipe"
	"github.com/hnap4pluto/basestation/internal/config"
	"github.com/hnap4pluto/basestation/internal/coordinator"
	"github.com/hnap4pluto/basestation/internal/corelog"
	"github.com/hnap4pluto/basestation/internal/mac"
	"github.com/hnap4pluto/basestation/internal/phygeo"
	"github.com/hnap4pluto/basestation/internal/phystate"
	"github.com/hnap4pluto/basestation/internal/radio"
	"github.com/hnap4pluto/basestation/internal/radio/discovery"
	"github.com/hnap4pluto/basestation/internal/radio/hotplug"
	"github.com/hnap4pluto/basestation/internal/radio/loopback"
	"github.com/hnap4pluto/basestation/internal/radio/ptt"
	"github.com/hnap4pluto/basestation/internal/radio/rigctl"
	"github.com/hnap4pluto/basestation/internal/radio/soundcard"
	"github.com/hnap4pluto/basestation/internal/scheduler"
	"github.com/hnap4pluto/basestation/internal/subframe"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "basestation:", err)
		os.Exit(1)
	}
}

func run() error {
	flags, changed, err := config.ParseFlags(os.Args[1:])
	if err != nil {
		return fmt.Errorf("parse flags: %w", err)
	}
	if flags.Help {
		return nil
	}

	cfg, err := config.LoadFile(flags.ConfigPath)
	if err != nil {
		return err
	}
	cfg = config.ApplyFlags(cfg, flags, changed)

	level, err := corelog.ParseCLILevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := corelog.New(os.Stderr, level)

	tables := phygeo.NewTables()
	pipe := bitpipe.New(tables)
	state := phystate.New(tables)
	asm := subframe.NewAssembler(tables, pipe)
	dasm := subframe.NewDisassembler(tables, pipe)
	bs := mac.New()
	sched := scheduler.New(bs, tables)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DiscoveryName != "" {
		announcer, err := discovery.Start(cfg.DiscoveryName, cfg.DiscoveryControlPort)
		if err != nil {
			logger.Warn("mDNS advertisement unavailable", "err", err)
		} else {
			defer announcer.Stop()
		}
	}

	go reportStats(ctx, cfg, bs, logger)

	core := coreDeps{cfg: cfg, tables: tables, state: state, asm: asm, dasm: dasm, bs: bs, sched: sched, logger: logger}

	if cfg.HotplugSubsystem != "" {
		return runSupervised(ctx, core)
	}

	driver, pttLine, cleanup, err := openDriver(cfg, logger)
	if err != nil {
		return fmt.Errorf("open radio driver: %w", err)
	}
	defer cleanup()

	coord := coordinator.New(cfg, tables, state, asm, dasm, sched, bs, driver, nil, pttLine, logger)
	logger.Info("basestation starting", "driver", cfg.Driver, "frequency_hz", cfg.FrequencyHz)
	return coord.Run(ctx)
}

// coreDeps bundles the PHY/MAC object graph built once in run(), shared
// across however many times runSupervised (re)builds a driver and
// coordinator around it.
type coreDeps struct {
	cfg    config.CoreConfig
	tables *phygeo.Tables
	state  *phystate.State
	asm    *subframe.Assembler
	dasm   *subframe.Disassembler
	bs     *mac.BS
	sched  *scheduler.Scheduler
	logger *log.Logger
}

// openDriver builds the radio.Driver cfg.Driver names, plus any PTT/rig
// adapters that front end needs, and returns the PTT capability (nil if
// none configured) and a cleanup func that closes everything this
// function opened beyond the driver itself (the coordinator closes the
// driver on shutdown).
func openDriver(cfg config.CoreConfig, logger *log.Logger) (radio.Driver, radio.PTT, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	var pttLine radio.PTT
	if cfg.PTTChip != "" {
		line, err := ptt.Open(cfg.PTTChip, cfg.PTTOffset)
		if err != nil {
			logger.Warn("PTT control unavailable", "err", err)
		} else {
			pttLine = line
			cleanups = append(cleanups, func() { _ = line.Close() })
		}
	}

	if cfg.RigModel != 0 {
		rig, err := rigctl.Open(cfg.RigModel, cfg.RigPort)
		if err != nil {
			logger.Warn("rig control unavailable", "err", err)
		} else {
			if err := rig.SetFrequency(cfg.FrequencyHz); err != nil {
				logger.Warn("set frequency failed", "err", err)
			}
			if err := rig.SetRXGain(cfg.RXGain); err != nil {
				logger.Warn("set rx gain failed", "err", err)
			}
			if err := rig.SetTXGain(cfg.TXGain); err != nil {
				logger.Warn("set tx gain failed", "err", err)
			}
			cleanups = append(cleanups, func() { _ = rig.Close() })
		}
	}

	switch cfg.Driver {
	case "", "loopback":
		return loopback.New(0), pttLine, cleanup, nil
	case "soundcard":
		d, err := soundcard.New(cfg.SoundcardSampleRateHz)
		if err != nil {
			cleanup()
			return nil, nil, nil, err
		}
		return d, pttLine, cleanup, nil
	default:
		cleanup()
		return nil, nil, nil, fmt.Errorf("unknown driver %q (want loopback|soundcard)", cfg.Driver)
	}
}

// runSupervised ties the realtime coordinator's lifecycle to the
// front-end's USB/SDR hotplug presence (SPEC_FULL.md §B: the hotplug
// adapter "start[s]/stop[s] the realtime coordinator as the hardware
// comes and goes"): it opens the driver and starts a coordinator on
// "add" (trying once immediately in case the device is already
// present), and cancels that coordinator's run on "remove", waiting for
// it to exit before watching for the device to reappear.
func runSupervised(ctx context.Context, core coreDeps) error {
	events, err := hotplug.Watch(ctx, core.cfg.HotplugSubsystem)
	if err != nil {
		return fmt.Errorf("hotplug watch: %w", err)
	}

	var (
		runCancel context.CancelFunc
		runDone   chan error
	)

	start := func() {
		if runCancel != nil {
			return
		}
		driver, pttLine, cleanup, err := openDriver(core.cfg, core.logger)
		if err != nil {
			core.logger.Warn("hotplug: open radio driver failed", "err", err)
			return
		}
		runCtx, cancel := context.WithCancel(ctx)
		coord := coordinator.New(core.cfg, core.tables, core.state, core.asm, core.dasm, core.sched, core.bs, driver, nil, pttLine, core.logger)
		done := make(chan error, 1)
		go func() {
			defer cleanup()
			done <- coord.Run(runCtx)
		}()
		runCancel, runDone = cancel, done
		core.logger.Info("coordinator started", "driver", core.cfg.Driver)
	}

	stop := func() {
		if runCancel == nil {
			return
		}
		runCancel()
		if err := <-runDone; err != nil {
			core.logger.Warn("coordinator stopped", "err", err)
		}
		core.logger.Info("coordinator stopped")
		runCancel, runDone = nil, nil
	}

	start()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			core.logger.Info("hotplug event", "action", ev.Action, "device", ev.DevNode)
			switch ev.Action {
			case "add":
				start()
			case "remove":
				stop()
			}
		}
	}
}

// reportStats is the periodic per-user statistics report (SPEC_FULL.md
// Section C's supplemented feature, the direct successor of the
// teacher's basestation.c main-loop stats dump). Each tick's timestamp
// is formatted with cfg.StatsTimestampFormat via
// github.com/lestrrat-go/strftime, the same library src/tq.go uses to
// stamp its own periodic output.
func reportStats(ctx context.Context, cfg config.CoreConfig, bs *mac.BS, logger *log.Logger) {
	if cfg.StatsIntervalSeconds <= 0 {
		return
	}

	ticker := time.NewTicker(time.Duration(cfg.StatsIntervalSeconds) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			stamp, err := strftime.Format(cfg.StatsTimestampFormat, now)
			if err != nil {
				stamp = now.Format(time.RFC3339)
			}
			for _, userid := range bs.AssociatedUsers() {
				u, ok := bs.User(userid)
				if !ok {
					continue
				}
				u.Lock()
				stats := u.Stats
				dlmcs, ulmcs := u.DLMCS, u.ULMCS
				u.Unlock()
				logger.Info("user stats", "at", stamp, "userid", userid,
					"delivered", stats.DeliveredSDUs, "lost", stats.LostSDUs,
					"bytes", stats.Bytes, "decode_failures", stats.DecodeFailures,
					"dl_mcs", dlmcs, "ul_mcs", ulmcs)
			}
		}
	}
}
