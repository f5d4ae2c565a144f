package dump

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"oepdump/process"
)

// ErrBlobOutOfBounds is returned when a read leaves the loaded range
var ErrBlobOutOfBounds = errors.New("address out of bounds")

// Image is a dumped image loaded back from disk, addressable by the virtual
// addresses the ranges occupied in the target. The downstream reconstruction
// step consumes it.
type Image struct {
	Metadata Metadata
	blobs    map[process.ProcessMemoryAddress][]byte
	ranges   []process.MemoryRange
}

// LoadImage reads a dump directory written by DumpImage
func LoadImage(dirname string) (*Image, error) {
	metadataJSON, err := os.ReadFile(filepath.Join(dirname, "metadata.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read metadata file: %w", err)
	}

	var metadata Metadata
	if err := json.Unmarshal(metadataJSON, &metadata); err != nil {
		return nil, fmt.Errorf("failed to parse metadata: %w", err)
	}

	img := &Image{
		Metadata: metadata,
		blobs:    make(map[process.ProcessMemoryAddress][]byte, len(metadata.Ranges)),
	}
	for _, r := range metadata.Ranges {
		data, err := os.ReadFile(filepath.Join(dirname, r.Blob))
		if err != nil {
			return nil, fmt.Errorf("failed to read range blob %s: %w", r.Blob, err)
		}
		img.blobs[r.Base] = data
		img.ranges = append(img.ranges, process.MemoryRange{
			Base:       r.Base,
			Size:       process.ProcessMemorySize(len(data)),
			Protection: r.Protection,
		})
	}
	process.SortRanges(img.ranges)

	return img, nil
}

// Ranges returns the loaded ranges sorted by base address
func (img *Image) Ranges() []process.MemoryRange {
	return append([]process.MemoryRange(nil), img.ranges...)
}

// ReadMemory reads size bytes at the virtual address addr from the loaded
// blobs. Reads never span range boundaries.
func (img *Image) ReadMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	r := process.FindRange(img.ranges, addr)
	if r == nil {
		return nil, ErrBlobOutOfBounds
	}
	data := img.blobs[r.Base]
	offset := uint64(addr - r.Base)
	if offset+uint64(size) > uint64(len(data)) {
		return nil, ErrBlobOutOfBounds
	}
	return data[offset : offset+uint64(size)], nil
}

// ReadUINT16 reads an unsigned 16-bit little-endian integer at addr
func (img *Image) ReadUINT16(addr process.ProcessMemoryAddress) (uint16, error) {
	data, err := img.ReadMemory(addr, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(data), nil
}

// ReadUINT32 reads an unsigned 32-bit little-endian integer at addr
func (img *Image) ReadUINT32(addr process.ProcessMemoryAddress) (uint32, error) {
	data, err := img.ReadMemory(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// ReadUINT64 reads an unsigned 64-bit little-endian integer at addr
func (img *Image) ReadUINT64(addr process.ProcessMemoryAddress) (uint64, error) {
	data, err := img.ReadMemory(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}
