//go:build !tinygo

// Command mkassets builds the emulator flash image: a littlefs filesystem
// holding the files of a directory under /assets.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"

	"tinygo.org/x/tinyfs"

	"firmcore/internal/assets"
	"firmcore/internal/flashfs"
)

const (
	defaultFlashPath = "firmcore.flash"
	defaultFlashSize = 256 * 1024
	defaultEraseSize = 4096
	// assetsAreaSize matches the area the kernel maps the assets into.
	assetsAreaSize = 0x1_0000
)

func main() {
	var srcDir string
	var outPath string
	var flashSize uint
	var eraseSize uint
	flag.StringVar(&srcDir, "src", "", "Directory of asset files to pack.")
	flag.StringVar(&outPath, "out", defaultFlashPath, "Output flash image path.")
	flag.UintVar(&flashSize, "size", defaultFlashSize, "Flash image size (bytes).")
	flag.UintVar(&eraseSize, "erase", defaultEraseSize, "Erase block size (bytes).")
	flag.Parse()

	if srcDir == "" {
		fmt.Fprintln(os.Stderr, "error: -src is required")
		os.Exit(2)
	}
	if err := run(srcDir, outPath, uint32(flashSize), uint32(eraseSize)); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(srcDir, outPath string, flashSize, eraseSize uint32) error {
	if eraseSize == 0 || eraseSize%flashfs.ProgramSize != 0 {
		return fmt.Errorf("flash: invalid erase size %d", eraseSize)
	}
	if flashSize == 0 || flashSize%eraseSize != 0 {
		return fmt.Errorf("flash: size %d not multiple of erase size %d", flashSize, eraseSize)
	}
	files, err := collect(filepath.Clean(srcDir))
	if err != nil {
		return err
	}
	// The kernel packs the same files into the assets area at boot.
	if _, err := assets.Pack(files, assetsAreaSize); err != nil {
		return err
	}

	dev := tinyfs.NewMemoryDevice(flashfs.ProgramSize, int(eraseSize), int(flashSize/eraseSize))
	lfs := flashfs.New(dev)
	if err := lfs.Format(); err != nil {
		return err
	}
	if err := lfs.Mount(); err != nil {
		return err
	}
	if err := lfs.Mkdir(assets.Dir); err != nil {
		return err
	}
	for _, f := range files {
		if err := lfs.WriteFile(path.Join(assets.Dir, f.Name), f.Data); err != nil {
			return err
		}
	}
	if err := lfs.Unmount(); err != nil {
		return err
	}

	out := make([]byte, flashSize)
	if _, err := dev.ReadAt(out, 0); err != nil {
		return fmt.Errorf("read image: %w", err)
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return fmt.Errorf("write %q: %w", outPath, err)
	}
	fmt.Printf("%s: %d assets in a %d byte littlefs image\n", outPath, len(files), flashSize)
	return nil
}

// collect reads the regular files directly under dir in name order.
func collect(dir string) ([]assets.File, error) {
	var files []assets.File
	err := filepath.WalkDir(dir, func(p string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == dir {
			return nil
		}
		if entry.IsDir() {
			return fs.SkipDir
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		files = append(files, assets.File{Name: entry.Name(), Data: data})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk src %q: %w", dir, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, nil
}
