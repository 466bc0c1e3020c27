package applet

import (
	"firmcore/sys/mem"
	"firmcore/sys/mpu"
)

// Hardware isolates applets with MPU regions.
type Hardware struct {
	ctrl    mpu.Controller
	assets  mem.Region
	windows map[*Applet]*mpu.Window
}

func NewHardware(ctrl mpu.Controller, assets mem.Region) *Hardware {
	return &Hardware{ctrl: ctrl, assets: assets, windows: make(map[*Applet]*mpu.Window)}
}

func (h *Hardware) window(a *Applet) *mpu.Window {
	if w := h.windows[a]; w != nil {
		return w
	}
	var stack mem.Region
	if a.task != nil {
		stack = a.task.Stack()
	}
	regions := []mpu.Assignment{
		{Slot: mpu.SlotCode0, Region: a.layout.Code[0]},
		{Slot: mpu.SlotCode1, Region: a.layout.Code[1]},
		{Slot: mpu.SlotData0, Region: a.layout.Data[0]},
		{Slot: mpu.SlotData1, Region: a.layout.Data[1]},
		{Slot: mpu.SlotStack, Region: stack},
	}
	if a.priv.AssetsAreaAccess {
		regions = append(regions, mpu.Assignment{Slot: mpu.SlotAssets, Region: h.assets})
	}
	w := mpu.NewWindow(h.ctrl, regions...)
	h.windows[a] = w
	return w
}

func (h *Hardware) Open(a *Applet) error { return h.window(a).Open() }

func (h *Hardware) Close(a *Applet) error {
	w := h.windows[a]
	if w == nil {
		return nil
	}
	return w.Close()
}

// Unload forgets the window; Close has already reverted it.
func (h *Hardware) Unload(a *Applet) error {
	delete(h.windows, a)
	return nil
}

// IsOpen reports whether a's window is open.
func (h *Hardware) IsOpen(a *Applet) bool {
	w := h.windows[a]
	return w != nil && w.IsOpen()
}
