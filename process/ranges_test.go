package process

import "testing"

func testRanges() []MemoryRange {
	ranges := []MemoryRange{
		{Base: 0x402000, Size: 0x1000, Protection: "rw-"},
		{Base: 0x400000, Size: 0x1000, Protection: "r-x"},
		{Base: 0x7fff0000, Size: 0x10000, Protection: "r--"},
	}
	SortRanges(ranges)
	return ranges
}

func TestFindRange(t *testing.T) {
	ranges := testRanges()

	cases := []struct {
		addr     ProcessMemoryAddress
		wantBase ProcessMemoryAddress
		found    bool
	}{
		{0x400000, 0x400000, true},
		{0x400fff, 0x400000, true},
		{0x401000, 0, false}, // gap between the two low ranges
		{0x402000, 0x402000, true},
		{0x7fffffff, 0x7fff0000, true},
		{0x80000000, 0, false},
		{0, 0, false},
	}

	for _, tc := range cases {
		r := FindRange(ranges, tc.addr)
		if tc.found {
			if r == nil {
				t.Errorf("FindRange(%s) = nil, want base %s", tc.addr.ToString(), tc.wantBase.ToString())
				continue
			}
			if r.Base != tc.wantBase {
				t.Errorf("FindRange(%s).Base = %s, want %s", tc.addr.ToString(), r.Base.ToString(), tc.wantBase.ToString())
			}
			if !r.Contains(tc.addr) {
				t.Errorf("range %v does not contain %s", r, tc.addr.ToString())
			}
		} else if r != nil {
			t.Errorf("FindRange(%s) = %v, want nil", tc.addr.ToString(), r)
		}
	}
}

func TestProtectionFlags(t *testing.T) {
	r := MemoryRange{Base: 0x1000, Size: 0x1000, Protection: "r-x"}
	if !r.IsReadable() || r.IsWritable() || !r.IsExecutable() {
		t.Errorf("r-x flags wrong: %v %v %v", r.IsReadable(), r.IsWritable(), r.IsExecutable())
	}

	empty := MemoryRange{Protection: ""}
	if empty.IsReadable() || empty.IsWritable() || empty.IsExecutable() {
		t.Error("empty protection must report no rights")
	}
}

func TestParseHexAddress(t *testing.T) {
	cases := []struct {
		in      string
		want    ProcessMemoryAddress
		wantErr bool
	}{
		{"0x1000", 4096, false},
		{"0X1000", 4096, false},
		{"1000", 4096, false},
		{"0x400000", 4194304, false},
		{"0xFFFFFFFFFFFFFFFF", 0xFFFFFFFFFFFFFFFF, false},
		{"", 0, true},
		{"0x", 0, true},
		{"xyz", 0, true},
		{"0x1000g", 0, true},
	}

	for _, tc := range cases {
		got, err := ParseHexAddress(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Errorf("ParseHexAddress(%q) = %v, want error", tc.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseHexAddress(%q): %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("ParseHexAddress(%q) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
