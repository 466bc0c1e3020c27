//go:build !tinygo

package hal

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// HeadlessConfig controls the no-window host runner.
type HeadlessConfig struct {
	Host HostConfig
	// Hz is the tick pump rate.
	Hz int
	// Ticks stops the runner after that many frames. Zero runs until ctx
	// is done or the kernel stops.
	Ticks uint64
}

// Kernel is the firmware body run by the host runners. It owns the calling
// goroutine until it returns or the HAL halts or reboots it.
type Kernel func(ctx context.Context, h HAL) error

// RunHeadless runs the kernel without opening a window.
func RunHeadless(ctx context.Context, kernel Kernel, cfg HeadlessConfig) error {
	if cfg.Hz <= 0 {
		cfg.Hz = 1000
	}
	d := time.Second / time.Duration(cfg.Hz)
	if d <= 0 {
		return fmt.Errorf("invalid headless hz: %d", cfg.Hz)
	}

	h := NewHost(cfg.Host).(*hostHAL)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	kernelDone := make(chan struct{})
	g.Go(func() error {
		defer close(kernelDone)
		return kernel(ctx, h)
	})
	g.Go(func() error {
		defer h.power.stop()
		t := time.NewTicker(d)
		defer t.Stop()
		var frames uint64
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-kernelDone:
				return nil
			case now := <-t.C:
				h.t.step(now)
				frames++
				if cfg.Ticks > 0 && frames >= cfg.Ticks {
					cancel()
					return nil
				}
			}
		}
	})
	err := g.Wait()
	if h.power.rebootRequested() {
		return ErrReboot
	}
	return err
}
