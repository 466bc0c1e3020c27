//go:build !tinygo && unix

package hal

import (
	"os"

	"golang.org/x/sys/unix"
)

// openFlashImage maps the flash image at path, creating an erased image of
// size bytes if the file is new.
func openFlashImage(path string, size int) ([]byte, func() error, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, nil, err
	}
	fresh := st.Size() == 0
	if fresh {
		if err := f.Truncate(int64(size)); err != nil {
			return nil, nil, err
		}
	} else {
		size = int(st.Size())
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, nil, err
	}
	if fresh {
		fill(mem, 0xFF, 0xFF, 0xFF)
	}
	return mem, func() error {
		if err := unix.Msync(mem, unix.MS_SYNC); err != nil {
			unix.Munmap(mem)
			return err
		}
		return unix.Munmap(mem)
	}, nil
}
