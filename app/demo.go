package app

import (
	"fmt"

	"firmcore/hal"
	"firmcore/sys/applet"
	"firmcore/sys/io/button"
	"firmcore/sys/io/touch"
	"firmcore/sys/mem"
	"firmcore/sys/syscall"
	"firmcore/sys/sysevent"
	"firmcore/sys/syshandle"
	"firmcore/sys/system"
)

var (
	demoSalt = []byte("firmcore-demo")
	demoPIN  = []byte("1234")
)

// DemoImage is the built-in applet. It unlocks storage, then echoes button
// and touch input to the debug console until the power key, a timeout of
// duration ms, or no input at all.
func DemoImage(duration uint32) system.Image {
	return system.Image{
		Header: applet.Header{Name: "demo", ABI: syscall.ABIVersion},
		Layout: applet.Layout{
			Code: [2]mem.Region{AppletCode},
			Data: [2]mem.Region{AppletData},
		},
		Stack: AppletStack,
		Entry: func(c *syscall.Client) int32 { return demo(c, duration) },
	}
}

func demo(c *syscall.Client, duration uint32) int32 {
	fmt.Fprintf(c, "demo applet, abi %s, t=%dms\n", syscall.ABIVersion, c.Ms())

	var shown uint32
	progress := func(wait, permille uint32) bool {
		shown = permille
		return false
	}
	if !c.StorageInit(progress, demoSalt) {
		fmt.Fprintln(c, "storage unavailable")
	} else if c.StorageUnlock(demoPIN) {
		fmt.Fprintf(c, "storage unlocked (%d/1000)\n", shown)
	} else {
		c.ExitError("Wrong PIN", "Storage stays locked", "Wipe the device to reset")
	}

	awaited := sysevent.Events{Read: syshandle.MaskOf(syshandle.Button, syshandle.Touch)}
	deadline := c.Timeout(duration)
	buf := make([]byte, 64)
	for {
		ev := c.Poll(awaited, deadline)
		if ev.Empty() {
			fmt.Fprintln(c, "demo done")
			return 0
		}
		if ev.Read.Has(syshandle.Button) {
			n := c.Read(syshandle.Button, buf)
			for _, e := range button.Decode(buf[:n]) {
				if e.Key == hal.KeyPower && e.Pressed {
					fmt.Fprintln(c, "power key, exiting")
					return 0
				}
				fmt.Fprintf(c, "button %d pressed=%v\n", e.Key, e.Pressed)
			}
		}
		if ev.Read.Has(syshandle.Touch) {
			n := c.Read(syshandle.Touch, buf)
			for _, e := range touch.Decode(buf[:n]) {
				fmt.Fprintf(c, "touch %d,%d pressed=%v\n", e.X, e.Y, e.Pressed)
			}
		}
	}
}
