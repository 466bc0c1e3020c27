// Package systick is the kernel timebase. Deadlines are absolute
// millisecond tick values so retry loops do not drift.
package systick

import (
	"context"
	"sync/atomic"
	"time"
)

// Clock reports time since boot.
type Clock interface {
	Ms() uint32
	Us() uint64
	Cycles() uint64
}

// Ticks is an absolute deadline in milliseconds since boot. It wraps after
// about 49 days; comparisons go through Expired.
type Ticks uint32

// Timeout returns the deadline ms milliseconds from now.
func Timeout(c Clock, ms uint32) Ticks {
	return Ticks(c.Ms() + ms)
}

// Expired reports whether the deadline has passed.
func Expired(c Clock, deadline Ticks) bool {
	return int32(c.Ms()-uint32(deadline)) >= 0
}

// Remaining returns the time left before the deadline, or 0.
func Remaining(c Clock, deadline Ticks) time.Duration {
	d := int32(uint32(deadline) - c.Ms())
	if d <= 0 {
		return 0
	}
	return time.Duration(d) * time.Millisecond
}

// CyclesPerUs is the nominal core clock used to derive cycle counts on the
// host.
const CyclesPerUs = 160

// HostClock reads the host monotonic clock.
type HostClock struct {
	start time.Time
}

func NewHostClock() *HostClock {
	return &HostClock{start: time.Now()}
}

func (c *HostClock) Ms() uint32     { return uint32(time.Since(c.start).Milliseconds()) }
func (c *HostClock) Us() uint64     { return uint64(time.Since(c.start).Microseconds()) }
func (c *HostClock) Cycles() uint64 { return c.Us() * CyclesPerUs }

// Counter is a Clock advanced by an external 1ms tick, such as the HAL tick
// channel or a hardware SysTick interrupt.
type Counter struct {
	ms atomic.Uint64
}

// Tick advances the counter by one millisecond. Safe to call from interrupt
// context.
func (c *Counter) Tick() { c.ms.Add(1) }

// Run consumes ticks until ctx is done or the channel closes. Each value on
// the channel is the absolute tick count of the source.
func (c *Counter) Run(ctx context.Context, ticks <-chan uint64) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-ticks:
			if !ok {
				return
			}
			if n > c.ms.Load() {
				c.ms.Store(n)
			}
		}
	}
}

func (c *Counter) Ms() uint32     { return uint32(c.ms.Load()) }
func (c *Counter) Us() uint64     { return c.ms.Load() * 1000 }
func (c *Counter) Cycles() uint64 { return c.Us() * CyclesPerUs }

// ManualClock only moves when told to.
type ManualClock struct {
	us atomic.Uint64
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) { c.us.Add(uint64(d.Microseconds())) }

// Set jumps to an absolute millisecond value.
func (c *ManualClock) Set(ms uint32) { c.us.Store(uint64(ms) * 1000) }

func (c *ManualClock) Ms() uint32     { return uint32(c.us.Load() / 1000) }
func (c *ManualClock) Us() uint64     { return c.us.Load() }
func (c *ManualClock) Cycles() uint64 { return c.us.Load() * CyclesPerUs }
