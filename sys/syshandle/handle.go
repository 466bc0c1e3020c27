// Package syshandle is the registry of event sources the kernel can wait
// on. Drivers register a Handler against a fixed handle slot and signal
// readiness from interrupt or poll context.
package syshandle

import (
	"fmt"

	"firmcore/sys/systask"
)

// Handle identifies an event source.
type Handle uint8

const (
	USBIface0 Handle = iota
	USBIface1
	USBIface2
	USBIface3
	USBIface4
	USBIface5
	USBIface6
	USBIface7
	BLEIface0
	PowerManager
	Button
	Touch
	USB
	BLE
	NFC
	// IPC0 + n carries messages from task n.
	IPC0
	IPC1
	IPC2
	IPC3

	Count
)

// USBIface returns the handle of USB interface n.
func USBIface(n int) Handle { return USBIface0 + Handle(n) }

// IPC returns the handle carrying messages from remote.
func IPC(remote systask.ID) Handle { return IPC0 + Handle(remote) }

func (h Handle) String() string {
	switch {
	case h <= USBIface7:
		return fmt.Sprintf("usb-iface%d", h-USBIface0)
	case h >= IPC0 && h <= IPC3:
		return fmt.Sprintf("ipc%d", h-IPC0)
	}
	switch h {
	case BLEIface0:
		return "ble-iface0"
	case PowerManager:
		return "power-manager"
	case Button:
		return "button"
	case Touch:
		return "touch"
	case USB:
		return "usb"
	case BLE:
		return "ble"
	case NFC:
		return "nfc"
	default:
		return fmt.Sprintf("handle(%d)", uint8(h))
	}
}

// Valid reports whether h names a slot.
func (h Handle) Valid() bool { return h < Count }

// Mask is a set of handles.
type Mask uint32

// Bit returns the mask with only h set.
func Bit(h Handle) Mask { return 1 << h }

// MaskOf returns the mask with every listed handle set.
func MaskOf(hs ...Handle) Mask {
	var m Mask
	for _, h := range hs {
		m |= Bit(h)
	}
	return m
}

func (m Mask) Has(h Handle) bool { return m&Bit(h) != 0 }

// Handles lists the members of m in ascending order.
func (m Mask) Handles() []Handle {
	var hs []Handle
	for h := Handle(0); h < Count; h++ {
		if m.Has(h) {
			hs = append(hs, h)
		}
	}
	return hs
}

func (m Mask) String() string {
	return fmt.Sprint(m.Handles())
}

// Handler is implemented by drivers backing a handle.
type Handler interface {
	// Poll services the driver. It is called once per wait iteration,
	// before any readiness check.
	Poll(readAwaited, writeAwaited bool)
	// CheckReadReady reports whether task can read. param is the value
	// latched by the most recent SignalReadReady, or nil.
	CheckReadReady(task systask.ID, param any) bool
	CheckWriteReady(task systask.ID, param any) bool
	// TaskCreated prepares per task state. Returning false vetoes the task.
	TaskCreated(task systask.ID) bool
	TaskKilled(task systask.ID)
}

// Reader is implemented by drivers that deliver data to tasks.
type Reader interface {
	// Read copies whole records into p and returns the bytes written.
	Read(task systask.ID, p []byte) int
}

// NopHandler implements every Handler method as a no-op; drivers embed it
// and override what they need.
type NopHandler struct{}

func (NopHandler) Poll(bool, bool)                      {}
func (NopHandler) CheckReadReady(systask.ID, any) bool  { return false }
func (NopHandler) CheckWriteReady(systask.ID, any) bool { return false }
func (NopHandler) TaskCreated(systask.ID) bool          { return true }
func (NopHandler) TaskKilled(systask.ID)                {}
