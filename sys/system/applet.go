package system

import (
	"errors"
	"fmt"

	"firmcore/sys/applet"
	"firmcore/sys/mem"
	"firmcore/sys/syscall"
	"firmcore/sys/systask"
)

var ErrNoEntry = errors.New("system: applet image has no entry")

// Image describes an applet to load. Entry is used for applets linked into
// the kernel binary; Library names a shared object for the emulator.
type Image struct {
	Header     applet.Header
	Layout     applet.Layout
	Privileges applet.Privileges
	Stack      mem.Region

	Entry   func(c *syscall.Client) int32
	Library string
}

// Loaded is a loaded applet together with its syscall client.
type Loaded struct {
	Applet *applet.Applet
	Client *syscall.Client

	mapped []mem.Region
}

// LoadApplet maps the image's memory, creates its task and attaches it to
// the syscall dispatcher.
func (s *System) LoadApplet(img Image) (*Loaded, error) {
	if err := applet.VerifyHeader(img.Header, syscall.ABIVersion); err != nil {
		return nil, err
	}
	if img.Entry == nil && img.Library == "" {
		return nil, ErrNoEntry
	}

	l := &Loaded{}
	bufs := map[mem.Region][]byte{}
	regions := []mem.Region{img.Stack}
	regions = append(regions, img.Layout.Code[:]...)
	regions = append(regions, img.Layout.Data[:]...)
	for _, r := range regions {
		if r.IsEmpty() {
			continue
		}
		b, err := s.Space.Map(r)
		if err != nil {
			s.unmap(l)
			return nil, err
		}
		bufs[r] = b
		l.mapped = append(l.mapped, r)
	}

	heap, scratch := splitData(img.Layout.Data, bufs)
	l.Client = syscall.NewClient(s.Sched, s.Space, heap, scratch, img.Layout.Code[0])

	a := applet.New(s.Sched, s.cfg.Platform)
	if err := a.Init(img.Layout, img.Privileges, img.Header); err != nil {
		s.unmap(l)
		return nil, err
	}
	l.Applet = a

	var entry systask.Entrypoint
	if img.Library != "" {
		emu, ok := s.cfg.Platform.(*applet.Emulator)
		if !ok {
			s.unmap(l)
			return nil, fmt.Errorf("%s: shared libraries need the emulator platform", img.Header.Name)
		}
		e, err := emu.Load(a, img.Library)
		if err != nil {
			s.unmap(l)
			return nil, err
		}
		entry = e
	} else {
		client := l.Client
		entry = func(a0, a1, a2 uint32) int32 { return img.Entry(client) }
	}

	if err := a.CreateTask(img.Stack, entry, 0, 0, 0); err != nil {
		a.Unload()
		s.unmap(l)
		return nil, err
	}
	s.Syscalls.Attach(a.Task(), l.Client.Trampoline)
	s.log.Info("applet loaded", "name", img.Header.Name, "task", a.Task().ID())
	return l, nil
}

// splitData returns the heap and scratch arenas. A single data region is
// split in half.
func splitData(data [2]mem.Region, bufs map[mem.Region][]byte) (*mem.Arena, *mem.Arena) {
	if !data[1].IsEmpty() {
		return mem.NewArena(data[0], bufs[data[0]]), mem.NewArena(data[1], bufs[data[1]])
	}
	half := data[0].Size / 2 &^ (mem.WordSize - 1)
	lo := mem.Region{Start: data[0].Start, Size: half}
	hi := mem.Region{Start: data[0].Start + half, Size: data[0].Size - half}
	b := bufs[data[0]]
	return mem.NewArena(lo, b[:half]), mem.NewArena(hi, b[half:])
}

func (s *System) unmap(l *Loaded) {
	for _, r := range l.mapped {
		if err := s.Space.Unmap(r); err != nil {
			s.log.Warn("unmap failed", "region", r.String(), "error", err)
		}
	}
	l.mapped = nil
}

// RunApplet is the kernel main loop for one applet: it runs the applet
// until it yields, closes its window, completes any deferred call and
// repeats until the applet dies. It returns the applet's postmortem.
func (s *System) RunApplet(l *Loaded) (pm systask.Postmortem, err error) {
	a := l.Applet
	defer func() {
		if r := recover(); r != nil {
			s.Sched.Fault(r)
			err = fmt.Errorf("kernel fault: %v", r)
		}
	}()
	for a.IsAlive() {
		if err := a.Run(); err != nil {
			return a.Postmortem(), err
		}
		if err := a.Stop(); err != nil {
			return a.Postmortem(), err
		}
		if f := a.Task().TakeDeferred(); f != nil {
			s.Syscalls.Complete(a.Task(), f)
		}
	}
	return a.Postmortem(), nil
}

// UnloadApplet tears the applet down and releases its memory.
func (s *System) UnloadApplet(l *Loaded) error {
	err := l.Applet.Unload()
	s.unmap(l)
	return err
}
