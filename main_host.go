//go:build !tinygo

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"firmcore/app"
	"firmcore/hal"
)

const exitReboot = 3

func main() {
	cfg := app.DefaultConfig()
	var headless hal.HeadlessConfig
	var runHeadless, noIPC, noConsole bool
	flag.BoolVar(&runHeadless, "headless", false, "Run without a window.")
	flag.IntVar(&headless.Hz, "hz", 1000, "Tick rate in headless mode.")
	flag.Uint64Var(&headless.Ticks, "ticks", 0, "Stop after N ticks in headless mode (0 = run forever).")
	flag.StringVar(&headless.Host.FlashPath, "assets", "", "Flash image path (default $FIRMCORE_FLASH_PATH or firmcore.flash).")
	flag.StringVar(&cfg.Applet, "applet", "", "Applet shared library to run instead of the demo.")
	flag.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (trace, debug, info, warn, error).")
	flag.BoolVar(&cfg.RSODForever, "rsod-forever", false, "Keep the error screen instead of rebooting.")
	flag.BoolVar(&noIPC, "no-ipc", false, "Disable inter-task messaging.")
	flag.BoolVar(&noConsole, "no-dbg-console", false, "Do not draw the debug console on the display.")
	flag.BoolVar(&cfg.MPU, "mpu", false, "Isolate applets with a simulated MPU instead of the plain emulator.")
	flag.Parse()
	cfg.IPC = !noIPC
	cfg.DbgConsole = !noConsole

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	kernel := func(ctx context.Context, h hal.HAL) error {
		return app.Run(ctx, h, cfg)
	}

	var err error
	if runHeadless {
		err = hal.RunHeadless(ctx, kernel, headless)
	} else {
		err = hal.RunWindow(ctx, kernel, headless.Host)
	}
	switch {
	case err == nil, errors.Is(err, context.Canceled):
	case errors.Is(err, hal.ErrReboot):
		os.Exit(exitReboot)
	default:
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
