//go:build cgo || tinygo

package flashfs

import (
	"fmt"
	"io"
	"os"
	"sync"

	"tinygo.org/x/tinyfs"
	"tinygo.org/x/tinyfs/littlefs"
)

// FS is a littlefs instance over a block device.
type FS struct {
	mu      sync.Mutex
	lfs     *littlefs.LFS
	mounted bool
}

func New(dev tinyfs.BlockDevice) *FS {
	lfs := littlefs.New(dev)
	lfs.Configure(&littlefs.Config{
		CacheSize:     ProgramSize,
		LookaheadSize: 64,
		BlockCycles:   500,
	})
	return &FS{lfs: lfs}
}

// Format writes an empty filesystem. The FS must not be mounted.
func (fs *FS) Format() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.mounted {
		return fmt.Errorf("flashfs format: already mounted")
	}
	if err := fs.lfs.Format(); err != nil {
		return fmt.Errorf("flashfs format: %w", err)
	}
	return nil
}

func (fs *FS) Mount() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.mounted {
		return nil
	}
	if err := fs.lfs.Mount(); err != nil {
		return fmt.Errorf("flashfs mount: %w", err)
	}
	fs.mounted = true
	return nil
}

// MountOrFormat mounts, formatting first when flash holds no filesystem.
func (fs *FS) MountOrFormat() error {
	if err := fs.Mount(); err == nil {
		return nil
	}
	if err := fs.Format(); err != nil {
		return err
	}
	return fs.Mount()
}

func (fs *FS) Unmount() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return nil
	}
	if err := fs.lfs.Unmount(); err != nil {
		return fmt.Errorf("flashfs unmount: %w", err)
	}
	fs.mounted = false
	return nil
}

// Mkdir creates path; an existing directory is not an error.
func (fs *FS) Mkdir(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return ErrNotMounted
	}
	if fi, err := fs.lfs.Stat(path); err == nil && fi.IsDir() {
		return nil
	}
	if err := fs.lfs.Mkdir(path, 0o777); err != nil {
		return fmt.Errorf("flashfs mkdir %q: %w", path, err)
	}
	return nil
}

func (fs *FS) ReadFile(path string) ([]byte, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return nil, ErrNotMounted
	}
	fi, err := fs.lfs.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	f, err := fs.lfs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("flashfs open %q: %w", path, err)
	}
	defer f.Close()

	buf := make([]byte, fi.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("flashfs read %q: %w", path, err)
	}
	return buf, nil
}

// WriteFile replaces the contents of path.
func (fs *FS) WriteFile(path string, data []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return ErrNotMounted
	}
	f, err := fs.lfs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("flashfs open %q: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("flashfs write %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("flashfs close %q: %w", path, err)
	}
	return nil
}

// ReadDir lists path without the "." and ".." entries.
func (fs *FS) ReadDir(path string) ([]Info, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	if !fs.mounted {
		return nil, ErrNotMounted
	}
	if _, err := fs.lfs.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	f, err := fs.lfs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("flashfs open dir %q: %w", path, err)
	}
	defer f.Close()

	entries, err := f.Readdir(0)
	if err != nil {
		return nil, fmt.Errorf("flashfs readdir %q: %w", path, err)
	}
	var out []Info
	for _, e := range entries {
		if e.Name() == "." || e.Name() == ".." {
			continue
		}
		out = append(out, Info{Name: e.Name(), Size: uint32(e.Size()), Dir: e.IsDir()})
	}
	return out, nil
}
