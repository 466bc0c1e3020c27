//go:build !cgo && !tinygo

package flashfs

import (
	"errors"

	"tinygo.org/x/tinyfs"
)

// ErrNeedsCgo is returned by every operation: littlefs is C.
var ErrNeedsCgo = errors.New("flashfs: requires cgo")

type FS struct{}

func New(tinyfs.BlockDevice) *FS { return &FS{} }

func (fs *FS) Format() error                   { return ErrNeedsCgo }
func (fs *FS) Mount() error                    { return ErrNeedsCgo }
func (fs *FS) MountOrFormat() error            { return ErrNeedsCgo }
func (fs *FS) Unmount() error                  { return nil }
func (fs *FS) Mkdir(string) error              { return ErrNeedsCgo }
func (fs *FS) ReadFile(string) ([]byte, error) { return nil, ErrNeedsCgo }
func (fs *FS) WriteFile(string, []byte) error  { return ErrNeedsCgo }
func (fs *FS) ReadDir(string) ([]Info, error)  { return nil, ErrNeedsCgo }
