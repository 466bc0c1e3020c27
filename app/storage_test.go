package app

import (
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"testing"

	"firmcore/internal/flashfs"
	"firmcore/sys/mem"
)

// memFiles is an in-memory Files.
type memFiles struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

func newMemFiles() *memFiles {
	return &memFiles{files: map[string][]byte{}, dirs: map[string]bool{"/": true}}
}

func (m *memFiles) ReadFile(p string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.files[p]
	if !ok {
		return nil, fmt.Errorf("%w: %s", flashfs.ErrNotFound, p)
	}
	return append([]byte(nil), b...), nil
}

func (m *memFiles) WriteFile(p string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirs[path.Dir(p)] {
		return fmt.Errorf("%w: %s", flashfs.ErrNotFound, path.Dir(p))
	}
	m.files[p] = append([]byte(nil), data...)
	return nil
}

func (m *memFiles) Mkdir(p string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dirs[p] = true
	return nil
}

func (m *memFiles) ReadDir(dir string) ([]flashfs.Info, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.dirs[dir] {
		return nil, fmt.Errorf("%w: %s", flashfs.ErrNotFound, dir)
	}
	var out []flashfs.Info
	for p, b := range m.files {
		if path.Dir(p) == dir {
			out = append(out, flashfs.Info{Name: path.Base(p), Size: uint32(len(b))})
		}
	}
	for p := range m.dirs {
		if p != dir && path.Dir(p) == dir {
			out = append(out, flashfs.Info{Name: path.Base(p), Dir: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func TestFlashStorageSetsThenChecksPIN(t *testing.T) {
	files := newMemFiles()
	s := NewFlashStorage(files, nil)
	if err := s.Init([]byte("salt")); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	var last uint32
	if !s.Unlock([]byte("1234"), func(wait, progress uint32) bool { last = progress; return false }) {
		t.Fatalf("first Unlock() = false")
	}
	if last != 1000 {
		t.Fatalf("final progress = %d, want 1000", last)
	}
	if rec, err := files.ReadFile(pinPath); err != nil || len(rec) != keySize {
		t.Fatalf("pin record = %d bytes, %v", len(rec), err)
	}

	again := NewFlashStorage(files, nil)
	if err := again.Init([]byte("salt")); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if again.Unlock([]byte("0000"), nil) {
		t.Fatalf("Unlock() with wrong PIN = true")
	}
	if !again.Unlock([]byte("1234"), nil) || !again.Unlocked() {
		t.Fatalf("Unlock() with stored PIN = false")
	}
}

func TestFlashStorageRejectsShortRecord(t *testing.T) {
	files := newMemFiles()
	files.Mkdir("/sys")
	files.WriteFile(pinPath, []byte("short"))
	if err := NewFlashStorage(files, nil).Init([]byte("salt")); err == nil {
		t.Fatalf("Init() with a short pin record succeeded")
	}
}

func TestFlashStorageAbort(t *testing.T) {
	s := NewFlashStorage(nil, nil)
	s.Init([]byte("salt"))
	calls := 0
	ok := s.Unlock([]byte("1234"), func(uint32, uint32) bool {
		calls++
		return calls == 3
	})
	if ok || calls != 3 {
		t.Fatalf("Unlock() = %v after %d progress calls, want false after 3", ok, calls)
	}
	if s.Unlocked() {
		t.Fatalf("aborted unlock left storage unlocked")
	}
}

func TestFlashStorageNeedsInit(t *testing.T) {
	if NewFlashStorage(nil, nil).Unlock([]byte("1"), nil) {
		t.Fatalf("Unlock() before Init() = true")
	}
}

func TestLoadAssets(t *testing.T) {
	space := mem.NewSpace()
	defer space.Close()
	files := newMemFiles()
	files.Mkdir(AssetsDir)
	files.Mkdir(AssetsDir + "/fonts")
	files.WriteFile(AssetsDir+"/logo", []byte{1, 2})
	files.WriteFile(AssetsDir+"/splash", []byte("hello"))

	area := mem.Region{Start: 0x0820_0000, Size: 0x1000}
	if err := LoadAssets(space, files, area); err != nil {
		t.Fatalf("LoadAssets() error = %v", err)
	}
	entries, err := ListAssets(space, area)
	if err != nil {
		t.Fatalf("ListAssets() error = %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	if got := strings.Join(names, ","); got != "logo,splash" {
		t.Fatalf("ListAssets() names = %q, want %q", got, "logo,splash")
	}

	other := mem.NewSpace()
	defer other.Close()
	if err := LoadAssets(other, nil, area); !errors.Is(err, ErrNoFlash) {
		t.Fatalf("LoadAssets(nil files) error = %v, want %v", err, ErrNoFlash)
	}
	if !other.Mapped(area.Start, area.Size) {
		t.Fatalf("assets area not mapped without flash")
	}
}

func TestLoadAssetsTooLarge(t *testing.T) {
	space := mem.NewSpace()
	defer space.Close()
	files := newMemFiles()
	files.Mkdir(AssetsDir)
	files.WriteFile(AssetsDir+"/big", make([]byte, 0x2000))

	if err := LoadAssets(space, files, mem.Region{Start: 0x0820_0000, Size: 0x1000}); err == nil {
		t.Fatalf("LoadAssets() of an oversized asset succeeded")
	}
}
