// Package flashfs keeps files in littlefs on NOR flash: the PIN record
// and the asset files packed by mkassets.
package flashfs

import (
	"errors"
	"os"

	"tinygo.org/x/tinyfs"
)

var (
	// ErrNotMounted is returned by file operations before Mount.
	ErrNotMounted = errors.New("flashfs: not mounted")
	// ErrNotFound is returned when a path cannot be stat'ed.
	ErrNotFound = errors.New("flashfs: not found")
	// ErrNoFlash is returned for a device without erase blocks.
	ErrNoFlash = errors.New("flashfs: no flash")
)

// ProgramSize is the write granularity reported to littlefs.
const ProgramSize = 256

// Flash is NOR flash addressed by byte offset. hal.Flash satisfies it.
type Flash interface {
	SizeBytes() uint32
	EraseBlockBytes() uint32
	ReadAt(p []byte, off uint32) (int, error)
	WriteAt(p []byte, off uint32) (int, error)
	Erase(off, size uint32) error
}

// Device adapts flash to the tinyfs block device littlefs runs on.
type Device struct {
	flash Flash
}

var _ tinyfs.BlockDevice = (*Device)(nil)

func NewDevice(flash Flash) (*Device, error) {
	if flash == nil || flash.EraseBlockBytes() == 0 || flash.SizeBytes() < flash.EraseBlockBytes() {
		return nil, ErrNoFlash
	}
	return &Device{flash: flash}, nil
}

func (d *Device) ReadAt(buf []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(buf)) > d.Size() {
		return 0, os.ErrInvalid
	}
	return d.flash.ReadAt(buf, uint32(off))
}

func (d *Device) WriteAt(buf []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(buf)) > d.Size() {
		return 0, os.ErrInvalid
	}
	return d.flash.WriteAt(buf, uint32(off))
}

func (d *Device) Size() int64 { return int64(d.flash.SizeBytes()) }

func (d *Device) WriteBlockSize() int64 { return ProgramSize }

func (d *Device) EraseBlockSize() int64 { return int64(d.flash.EraseBlockBytes()) }

// EraseBlocks erases count blocks starting at block start.
func (d *Device) EraseBlocks(start, count int64) error {
	bs := d.EraseBlockSize()
	if start < 0 || count < 0 || (start+count)*bs > d.Size() {
		return os.ErrInvalid
	}
	return d.flash.Erase(uint32(start*bs), uint32(count*bs))
}

// Info describes a directory entry.
type Info struct {
	Name string
	Size uint32
	Dir  bool
}
