// Package mpu owns the memory protection windows that expose applet memory
// to unprivileged code.
package mpu

import (
	"errors"
	"fmt"

	"firmcore/sys/mem"
)

// Slot is a hardware region slot reserved for applet isolation.
type Slot uint8

const (
	SlotCode0 Slot = iota
	SlotCode1
	SlotData0
	SlotData1
	SlotStack
	SlotAssets
	SlotCount
)

func (s Slot) String() string {
	switch s {
	case SlotCode0:
		return "code0"
	case SlotCode1:
		return "code1"
	case SlotData0:
		return "data0"
	case SlotData1:
		return "data1"
	case SlotStack:
		return "stack"
	case SlotAssets:
		return "assets"
	default:
		return fmt.Sprintf("slot(%d)", uint8(s))
	}
}

var ErrInvalidSlot = errors.New("mpu: invalid slot")

// Controller programs the attributes of a single region slot.
//
//go:generate mockgen -destination=mpumock/controller.go -package=mpumock firmcore/sys/mpu Controller
type Controller interface {
	// SetUnprivileged makes region accessible from unprivileged code.
	SetUnprivileged(slot Slot, region mem.Region) error
	// SetPrivileged restores privileged-only access on the slot.
	SetPrivileged(slot Slot) error
}

// Assignment binds a region to a slot.
type Assignment struct {
	Slot   Slot
	Region mem.Region
}
