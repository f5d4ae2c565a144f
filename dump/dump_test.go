package dump

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"oepdump/process"
)

// fakeController serves two ranges, the second of which cannot be read
type fakeController struct {
	failBase process.ProcessMemoryAddress
}

func (f *fakeController) Identity() process.ProcessIdentity {
	return process.ProcessIdentity{
		PID:            77,
		MainModuleName: "packed.exe",
		Architecture:   process.ArchX64,
		PointerSize:    8,
		PageSize:       4096,
	}
}

func (f *fakeController) EnumerateModuleRanges(string) ([]process.MemoryRange, error) {
	return []process.MemoryRange{
		{Base: 0x400000, Size: 8, Protection: "r-x"},
		{Base: 0x401000, Size: 8, Protection: "rw-"},
		{Base: 0x402000, Size: 8, Protection: "---"},
	}, nil
}

func (f *fakeController) ReadProcessMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	if addr == f.failBase {
		return nil, &process.RemoteOperationError{Op: "read_process_memory", Reason: "unmapped"}
	}
	data := make([]byte, size)
	data[0] = byte(addr >> 12)
	copy(data, []byte{0x4d, 0x5a})
	return data, nil
}

func (f *fakeController) FindModuleByAddress(process.ProcessMemoryAddress) (*process.ModuleInfo, error) {
	return nil, nil
}
func (f *fakeController) FindRangeByAddress(process.ProcessMemoryAddress) (*process.MemoryRange, error) {
	return nil, nil
}
func (f *fakeController) EnumerateModules() ([]string, error) { return nil, nil }
func (f *fakeController) EnumerateExportedFunctions(bool) (map[process.ProcessMemoryAddress]process.ExportEntry, error) {
	return nil, nil
}
func (f *fakeController) AllocateProcessMemory(process.ProcessMemorySize, process.ProcessMemoryAddress) (process.ProcessMemoryAddress, error) {
	return 0, nil
}
func (f *fakeController) QueryMemoryProtection(process.ProcessMemoryAddress) (string, error) {
	return "", nil
}
func (f *fakeController) WriteProcessMemory(process.ProcessMemoryAddress, []byte) error { return nil }
func (f *fakeController) TerminateProcess() error                                       { return nil }

func TestDumpImage(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	event := process.OEPEvent{Base: 0x400000, OEP: 0x401234}

	result, err := New(&fakeController{}, nil).DumpImage(event, dir)
	if err != nil {
		t.Fatalf("DumpImage: %v", err)
	}

	if result.RangesDumped != 2 {
		t.Errorf("ranges dumped = %d, want 2", result.RangesDumped)
	}
	if result.RangesSkipped != 1 {
		t.Errorf("ranges skipped = %d, want 1 (the non-readable one)", result.RangesSkipped)
	}
	if result.BytesDumped != 16 {
		t.Errorf("bytes dumped = %d, want 16", result.BytesDumped)
	}

	blob, err := os.ReadFile(filepath.Join(dir, "0000000000400000.bin"))
	if err != nil {
		t.Fatalf("reading range blob: %v", err)
	}
	if !bytes.HasPrefix(blob, []byte{0x4d, 0x5a}) {
		t.Errorf("blob content = %x", blob)
	}

	if _, err := os.Stat(filepath.Join(dir, "metadata.json")); err != nil {
		t.Errorf("metadata.json missing: %v", err)
	}
}

func TestDumpSkipsUnreadableRange(t *testing.T) {
	dir := t.TempDir()
	controller := &fakeController{failBase: 0x401000}

	result, err := New(controller, nil).DumpImage(process.OEPEvent{Base: 0x400000, OEP: 0x401234}, dir)
	if err != nil {
		t.Fatalf("a failed range read must not abort the dump: %v", err)
	}
	if result.RangesDumped != 1 || result.RangesSkipped != 2 {
		t.Errorf("dumped/skipped = %d/%d, want 1/2", result.RangesDumped, result.RangesSkipped)
	}
}

func TestLoadImageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	event := process.OEPEvent{Base: 0x400000, OEP: 0x401234}

	if _, err := New(&fakeController{}, nil).DumpImage(event, dir); err != nil {
		t.Fatal(err)
	}

	img, err := LoadImage(dir)
	if err != nil {
		t.Fatalf("LoadImage: %v", err)
	}

	if img.Metadata.Event != event {
		t.Errorf("metadata event = %+v, want %+v", img.Metadata.Event, event)
	}
	if img.Metadata.Identity.MainModuleName != "packed.exe" {
		t.Errorf("metadata identity = %+v", img.Metadata.Identity)
	}
	if len(img.Ranges()) != 2 {
		t.Fatalf("loaded ranges = %d, want 2", len(img.Ranges()))
	}

	data, err := img.ReadMemory(0x400000, 2)
	if err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if data[0] != 0x4d || data[1] != 0x5a {
		t.Errorf("data = %x", data)
	}

	magic, err := img.ReadUINT16(0x400000)
	if err != nil {
		t.Fatal(err)
	}
	if magic != 0x5a4d {
		t.Errorf("magic = %#x, want 0x5a4d", magic)
	}

	if _, err := img.ReadMemory(0x400006, 8); err != ErrBlobOutOfBounds {
		t.Errorf("out-of-bounds read = %v, want ErrBlobOutOfBounds", err)
	}
	if _, err := img.ReadMemory(0x900000, 1); err != ErrBlobOutOfBounds {
		t.Errorf("unmapped read = %v, want ErrBlobOutOfBounds", err)
	}
}
