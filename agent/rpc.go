package agent

import (
	"fmt"

	"oepdump/process"
)

// RPC is the fixed remote operation surface exported by the in-process agent.
// The controller is written against this interface so tests can substitute a
// fake surface for the live channel.
type RPC interface {
	GetArchitecture() (string, error)
	GetPointerSize() (int, error)
	GetPageSize() (int, error)
	EnumerateModuleRanges(moduleName string) ([]process.MemoryRange, error)
	FindModuleByAddress(addr process.ProcessMemoryAddress) (*process.ModuleInfo, error)
	FindRangeByAddress(addr process.ProcessMemoryAddress) (*process.MemoryRange, error)
	EnumerateModules() ([]string, error)
	EnumerateExportedFunctions() ([]Export, error)
	AllocateProcessMemory(size process.ProcessMemorySize, near process.ProcessMemoryAddress) (string, error)
	QueryMemoryProtection(addr process.ProcessMemoryAddress) (string, error)
	ReadProcessMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error)
	WriteProcessMemory(addr process.ProcessMemoryAddress, data []byte) error
	SetupOEPTracing(mainModuleName string) error
}

// Ensure the implementation satisfies the interface.
var _ RPC = (*Client)(nil)

// rangeReply mirrors the agent's range records, base address still textual
type rangeReply struct {
	Base       string `json:"base"`
	Size       uint   `json:"size"`
	Protection string `json:"protection"`
	File       *struct {
		Path   string `json:"path"`
		Offset uint64 `json:"offset"`
	} `json:"file"`
}

func (r rangeReply) toRange() (process.MemoryRange, error) {
	base, err := process.ParseHexAddress(r.Base)
	if err != nil {
		return process.MemoryRange{}, fmt.Errorf("range base: %w", err)
	}
	mr := process.MemoryRange{
		Base:       base,
		Size:       process.ProcessMemorySize(r.Size),
		Protection: r.Protection,
	}
	if r.File != nil {
		mr.File = &process.FileMapping{Path: r.File.Path, Offset: r.File.Offset}
	}
	return mr, nil
}

// moduleReply mirrors the agent's module records
type moduleReply struct {
	Name string `json:"name"`
	Base string `json:"base"`
	Size uint   `json:"size"`
	Path string `json:"path"`
}

func (m moduleReply) toModule() (*process.ModuleInfo, error) {
	base, err := process.ParseHexAddress(m.Base)
	if err != nil {
		return nil, fmt.Errorf("module base: %w", err)
	}
	return &process.ModuleInfo{
		Name: m.Name,
		Base: base,
		Size: process.ProcessMemorySize(m.Size),
		Path: m.Path,
	}, nil
}

func (c *Client) GetArchitecture() (string, error) {
	var out string
	err := c.Call("get_architecture", nil, &out)
	return out, err
}

func (c *Client) GetPointerSize() (int, error) {
	var out int
	err := c.Call("get_pointer_size", nil, &out)
	return out, err
}

func (c *Client) GetPageSize() (int, error) {
	var out int
	err := c.Call("get_page_size", nil, &out)
	return out, err
}

func (c *Client) EnumerateModuleRanges(moduleName string) ([]process.MemoryRange, error) {
	var out []rangeReply
	if err := c.Call("enumerate_module_ranges", []interface{}{moduleName}, &out); err != nil {
		return nil, err
	}
	ranges := make([]process.MemoryRange, 0, len(out))
	for _, r := range out {
		mr, err := r.toRange()
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, mr)
	}
	return ranges, nil
}

func (c *Client) FindModuleByAddress(addr process.ProcessMemoryAddress) (*process.ModuleInfo, error) {
	var out *moduleReply
	if err := c.Call("find_module_by_address", []interface{}{addr.ToString()}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	return out.toModule()
}

func (c *Client) FindRangeByAddress(addr process.ProcessMemoryAddress) (*process.MemoryRange, error) {
	var out *rangeReply
	if err := c.Call("find_range_by_address", []interface{}{addr.ToString()}, &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, nil
	}
	mr, err := out.toRange()
	if err != nil {
		return nil, err
	}
	return &mr, nil
}

func (c *Client) EnumerateModules() ([]string, error) {
	var out []string
	err := c.Call("enumerate_modules", nil, &out)
	return out, err
}

func (c *Client) EnumerateExportedFunctions() ([]Export, error) {
	var out []Export
	err := c.Call("enumerate_exported_functions", nil, &out)
	return out, err
}

func (c *Client) AllocateProcessMemory(size process.ProcessMemorySize, near process.ProcessMemoryAddress) (string, error) {
	var out string
	err := c.Call("allocate_process_memory", []interface{}{uint(size), near.ToString()}, &out)
	return out, err
}

func (c *Client) QueryMemoryProtection(addr process.ProcessMemoryAddress) (string, error) {
	var out string
	err := c.Call("query_memory_protection", []interface{}{addr.ToString()}, &out)
	return out, err
}

func (c *Client) ReadProcessMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	var out []byte
	err := c.Call("read_process_memory", []interface{}{addr.ToString(), uint(size)}, &out)
	return out, err
}

func (c *Client) WriteProcessMemory(addr process.ProcessMemoryAddress, data []byte) error {
	return c.Call("write_process_memory", []interface{}{addr.ToString(), data}, nil)
}

func (c *Client) SetupOEPTracing(mainModuleName string) error {
	return c.Call("setup_oep_tracing", []interface{}{mainModuleName}, nil)
}
