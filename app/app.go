// Package app wires the kernel core to a HAL and runs the applet.
package app

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-hclog"

	"firmcore/hal"
	"firmcore/internal/buildinfo"
	"firmcore/sys/applet"
	"firmcore/sys/dbgconsole"
	"firmcore/sys/io/button"
	"firmcore/sys/io/touch"
	"firmcore/sys/rsod"
	"firmcore/sys/syscall"
	"firmcore/sys/systask"
	"firmcore/sys/system"
	"firmcore/sys/systick"
)

// NewLogger returns the kernel logger writing to the HAL log sink.
func NewLogger(h hal.HAL, level string) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "firmcore",
		Level:  hclog.LevelFromString(level),
		Output: hal.NewLineWriter(h.Logger()),
	})
}

// Run boots the kernel on h and runs the configured applet. It returns
// only if booting fails; otherwise the system ends through the RSOD
// handler, which halts or reboots via the HAL.
func Run(ctx context.Context, h hal.HAL, cfg Config) error {
	log := NewLogger(h, cfg.LogLevel)
	log.Info("booting", "build", buildinfo.Short(), "abi", syscall.ABIVersion)

	clock := &systick.Counter{}
	if ht := h.Time(); ht != nil {
		go clock.Run(ctx, ht.Ticks())
	}

	var fb hal.Framebuffer
	if d := h.Display(); d != nil {
		fb = d.Framebuffer()
	}
	power := h.Power()
	screen := rsod.New(fb, rsod.Config{
		InfiniteLoop: cfg.RSODForever,
		Halt:         power.Halt,
		Reboot:       power.Reboot,
		Logger:       log,
	})

	var console *dbgconsole.Console
	if cfg.DbgConsole {
		console = dbgconsole.New(fb, log)
	}

	files := mountFiles(h.Flash(), log)
	scfg := system.Config{
		StackArea: StackArea,
		Assets:    AssetsArea,
		Clock:     clock,
		IPC:       cfg.IPC,
		Storage:   NewFlashStorage(files, log),
		Platform:  newPlatform(cfg),
		Halt:      power.Halt,
		Reboot:    power.Reboot,
		Logger:    log,
	}
	if console != nil {
		scfg.Console = console
	}
	sys, err := system.Init(scfg, screen.Handler)
	if err != nil {
		return fmt.Errorf("init: %w", err)
	}
	defer sys.Shutdown()
	screen.UseTimers(sys.Timers)

	if err := LoadAssets(sys.Space, files, AssetsArea); err != nil {
		log.Warn("assets unavailable", "error", err)
	} else if entries, err := ListAssets(sys.Space, AssetsArea); err == nil {
		log.Info("assets loaded", "count", len(entries))
	}
	if err := attachInput(ctx, sys, h.Input(), log); err != nil {
		sys.ErrorShutdown("Boot failed", err.Error(), "Restart the device")
		return err
	}

	img := DemoImage(cfg.DemoDuration)
	if cfg.Applet != "" {
		img = system.Image{
			Header: applet.Header{Name: cfg.Applet, ABI: syscall.ABIVersion},
			Layout: img.Layout,
			Stack:  img.Stack,
			// Applet libraries drive the boundary themselves.
			Library: cfg.Applet,
		}
	}
	loaded, err := sys.LoadApplet(img)
	if err != nil {
		sys.ErrorShutdown("Applet rejected", err.Error(), "Install a compatible applet")
		return err
	}

	pm, err := sys.RunApplet(loaded)
	if console != nil {
		console.Flush()
	}
	if err != nil {
		log.Error("kernel loop failed", "error", err)
	}
	if err := sys.UnloadApplet(loaded); err != nil {
		log.Warn("unload failed", "error", err)
	}
	terminate(sys, &pm)
	return nil
}

// terminate ends the kernel with the applet's outcome so the RSOD shows it.
func terminate(sys *system.System, pm *systask.Postmortem) {
	switch pm.Reason {
	case systask.ReasonError:
		sys.ExitError(pm.Title, pm.Message, pm.Footer)
	case systask.ReasonFatal, systask.ReasonFault:
		sys.ExitFatal(pm.Message, pm.File, pm.Line)
	default:
		sys.Exit(pm.ExitCode)
	}
}

func attachInput(ctx context.Context, sys *system.System, in hal.Input, log hclog.Logger) error {
	if in == nil {
		return nil
	}
	if kbd := in.Keyboard(); kbd != nil {
		d := button.New(sys.Handles, kbd.Events(), log)
		if err := d.Attach(); err != nil {
			return fmt.Errorf("button: %w", err)
		}
		go d.Run(ctx)
	}
	if ts := in.Touch(); ts != nil {
		d := touch.New(sys.Handles, ts.Events(), log)
		if err := d.Attach(); err != nil {
			return fmt.Errorf("touch: %w", err)
		}
		go d.Run(ctx)
	}
	return nil
}
