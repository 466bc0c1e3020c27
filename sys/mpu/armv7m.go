//go:build tinygo && (cortexm || arm)

package mpu

import (
	"runtime/volatile"
	"unsafe"

	"firmcore/sys/mem"
)

// ARMv7-M MPU registers.
var (
	mpuCtrl = (*volatile.Register32)(unsafe.Pointer(uintptr(0xE000ED94)))
	mpuRNR  = (*volatile.Register32)(unsafe.Pointer(uintptr(0xE000ED98)))
	mpuRBAR = (*volatile.Register32)(unsafe.Pointer(uintptr(0xE000ED9C)))
	mpuRASR = (*volatile.Register32)(unsafe.Pointer(uintptr(0xE000EDA0)))
)

const (
	rasrEnable = 1 << 0
	rasrXN     = 1 << 28

	apPrivRW = 0b001 << 24 // privileged RW, unprivileged no access
	apFullRW = 0b011 << 24

	ctrlEnable     = 1 << 0
	ctrlPrivDefEna = 1 << 2

	// Hardware region numbers 0-2 belong to the kernel image.
	firstAppletRegion = 3
)

// ARMv7M programs applet slots into the Cortex-M MPU. Regions must be a
// power of two in size and aligned to their size.
type ARMv7M struct {
	regions [SlotCount]mem.Region
}

func NewARMv7M() *ARMv7M {
	mpuCtrl.Set(ctrlEnable | ctrlPrivDefEna)
	return &ARMv7M{}
}

func (m *ARMv7M) SetUnprivileged(slot Slot, region mem.Region) error {
	if err := slot.valid(); err != nil {
		return err
	}
	m.regions[slot] = region
	m.program(slot, region, apFullRW)
	return nil
}

func (m *ARMv7M) SetPrivileged(slot Slot) error {
	if err := slot.valid(); err != nil {
		return err
	}
	m.program(slot, m.regions[slot], apPrivRW)
	return nil
}

func (m *ARMv7M) program(slot Slot, region mem.Region, ap uint32) {
	mpuRNR.Set(uint32(firstAppletRegion + slot))
	if region.IsEmpty() {
		mpuRASR.Set(0)
		return
	}
	attrs := ap | rasrEnable | sizeField(region.Size)
	if slot != SlotCode0 && slot != SlotCode1 {
		attrs |= rasrXN
	}
	mpuRBAR.Set(region.Start &^ 0x1f)
	mpuRASR.Set(attrs)
	// DSB/ISB are issued by the exception return that follows.
}

// sizeField encodes log2(size)-1 into RASR.SIZE.
func sizeField(size uint32) uint32 {
	n := uint32(0)
	for s := size; s > 1; s >>= 1 {
		n++
	}
	return (n - 1) << 1
}
