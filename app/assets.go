package app

import (
	"errors"
	"fmt"
	"path"

	"firmcore/internal/assets"
	"firmcore/sys/mem"
)

// AssetsDir is where mkassets puts asset files on flash.
const AssetsDir = assets.Dir

var ErrNoFlash = errors.New("no flash")

// LoadAssets maps the assets area into space and packs the files of
// AssetsDir into it. The area stays mapped, zeroed, when there are no files.
func LoadAssets(space *mem.Space, files Files, area mem.Region) error {
	buf, err := space.Map(area)
	if err != nil {
		return fmt.Errorf("map assets: %w", err)
	}
	if files == nil {
		return ErrNoFlash
	}
	entries, err := files.ReadDir(AssetsDir)
	if err != nil {
		return fmt.Errorf("list assets: %w", err)
	}
	var list []assets.File
	for _, e := range entries {
		if e.Dir {
			continue
		}
		data, err := files.ReadFile(path.Join(AssetsDir, e.Name))
		if err != nil {
			return fmt.Errorf("read asset: %w", err)
		}
		list = append(list, assets.File{Name: e.Name, Data: data})
	}
	img, err := assets.Pack(list, area.Size)
	if err != nil {
		return err
	}
	copy(buf, img)
	return nil
}

// ListAssets returns the index of the assets image in the mapped area.
func ListAssets(space *mem.Space, area mem.Region) ([]assets.Entry, error) {
	img, err := space.Slice(area.Start, area.Size)
	if err != nil {
		return nil, err
	}
	return assets.Parse(img)
}
