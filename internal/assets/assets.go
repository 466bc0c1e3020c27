// Package assets is the layout of the assets area mapped read-only into
// privileged applets: an index followed by the asset files read from flash.
package assets

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Dir is the flash directory the asset files live in.
const Dir = "/assets"

const (
	// NameSize bounds an entry name, NUL padded.
	NameSize  = 24
	entrySize = NameSize + 8
	headSize  = 8
	align     = 4
)

var (
	magic = [4]byte{'F', 'C', 'A', 'S'}

	ErrNoImage  = errors.New("assets: no image")
	ErrTooLarge = errors.New("assets: image too large")
	ErrCorrupt  = errors.New("assets: corrupt index")
)

// Entry locates one asset inside the image.
type Entry struct {
	Name   string
	Offset uint32
	Size   uint32
}

// File is an asset to pack.
type File struct {
	Name string
	Data []byte
}

// Pack lays out files behind an index. The result never exceeds limit.
func Pack(files []File, limit uint32) ([]byte, error) {
	off := uint32(headSize + entrySize*len(files))
	index := make([]byte, off)
	copy(index, magic[:])
	binary.LittleEndian.PutUint32(index[4:], uint32(len(files)))

	var data []byte
	for i, f := range files {
		if len(f.Name) == 0 || len(f.Name) > NameSize {
			return nil, fmt.Errorf("assets: bad name %q", f.Name)
		}
		e := index[headSize+i*entrySize:]
		copy(e[:NameSize], f.Name)
		binary.LittleEndian.PutUint32(e[NameSize:], off+uint32(len(data)))
		binary.LittleEndian.PutUint32(e[NameSize+4:], uint32(len(f.Data)))
		data = append(data, f.Data...)
		for len(data)%align != 0 {
			data = append(data, 0xFF)
		}
	}
	img := append(index, data...)
	if uint64(len(img)) > uint64(limit) {
		return nil, fmt.Errorf("%w: %d > %d", ErrTooLarge, len(img), limit)
	}
	return img, nil
}

// Parse reads the index of img. Entries pointing outside img are rejected.
func Parse(img []byte) ([]Entry, error) {
	if len(img) < headSize || [4]byte(img[:4]) != magic {
		return nil, ErrNoImage
	}
	n := binary.LittleEndian.Uint32(img[4:])
	if uint64(n)*entrySize+headSize > uint64(len(img)) {
		return nil, ErrCorrupt
	}
	out := make([]Entry, 0, n)
	for i := uint32(0); i < n; i++ {
		e := img[headSize+i*entrySize:]
		name := e[:NameSize]
		for len(name) > 0 && name[len(name)-1] == 0 {
			name = name[:len(name)-1]
		}
		ent := Entry{
			Name:   string(name),
			Offset: binary.LittleEndian.Uint32(e[NameSize:]),
			Size:   binary.LittleEndian.Uint32(e[NameSize+4:]),
		}
		if uint64(ent.Offset)+uint64(ent.Size) > uint64(len(img)) {
			return nil, fmt.Errorf("%w: %s", ErrCorrupt, ent.Name)
		}
		out = append(out, ent)
	}
	return out, nil
}
