package process

import (
	"fmt"
	"sort"
)

// FileMapping associates a memory range with the file backing it, when the
// agent reports one.
type FileMapping struct {
	Path   string `json:"path"`
	Offset uint64 `json:"offset"`
}

// MemoryRange represents one mapped region of the target's address space.
// Protection uses the agent's "rwx" convention, with '-' for missing rights.
type MemoryRange struct {
	Base       ProcessMemoryAddress `json:"base"`
	Size       ProcessMemorySize    `json:"size"`
	Protection string               `json:"protection"`
	File       *FileMapping         `json:"file,omitempty"`
}

// String returns a string representation of the memory range
func (mr MemoryRange) String() string {
	return fmt.Sprintf("Base: %x, Size: %d, Protection: %s", uint64(mr.Base), uint(mr.Size), mr.Protection)
}

// End returns the first address past the range
func (mr MemoryRange) End() ProcessMemoryAddress {
	return mr.Base + ProcessMemoryAddress(mr.Size)
}

// Contains reports whether addr falls inside the range
func (mr MemoryRange) Contains(addr ProcessMemoryAddress) bool {
	return addr >= mr.Base && addr < mr.End()
}

func (mr MemoryRange) IsReadable() bool {
	return len(mr.Protection) > 0 && mr.Protection[0] == 'r'
}

func (mr MemoryRange) IsWritable() bool {
	return len(mr.Protection) > 1 && mr.Protection[1] == 'w'
}

func (mr MemoryRange) IsExecutable() bool {
	return len(mr.Protection) > 2 && mr.Protection[2] == 'x'
}

// SortRanges sorts ranges by base address in place. FindRange requires the
// slice to be sorted.
func SortRanges(ranges []MemoryRange) {
	sort.Slice(ranges, func(i, j int) bool {
		return ranges[i].Base < ranges[j].Base
	})
}

// FindRange returns the range containing addr, or nil if addr is not mapped.
// The slice must be sorted by base address.
func FindRange(ranges []MemoryRange, addr ProcessMemoryAddress) *MemoryRange {
	i := sort.Search(len(ranges), func(i int) bool {
		return ranges[i].End() > addr
	})
	if i < len(ranges) && ranges[i].Base <= addr {
		return &ranges[i]
	}

	return nil
}
