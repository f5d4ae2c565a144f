package process

// Architecture is the target architecture as reported by the agent
type Architecture string

const (
	ArchIA32  Architecture = "ia32"
	ArchX64   Architecture = "x64"
	ArchARM   Architecture = "arm"
	ArchARM64 Architecture = "arm64"
)

// ModuleInfo contains basic information about a module loaded in the target
// process. Transient result of an enumeration call; module layout can change
// while packed code keeps loading, so it is never cached.
type ModuleInfo struct {
	Name string               `json:"name"`
	Base ProcessMemoryAddress `json:"base"`
	Size ProcessMemorySize    `json:"size"`
	Path string               `json:"path"`
}

// ExportEntry describes one exported function of a loaded module. Address is
// parsed from the agent's textual hexadecimal form.
type ExportEntry struct {
	Address ProcessMemoryAddress `json:"address"`
	Name    string               `json:"name"`
	Module  string               `json:"module"`
}

// OEPEvent is emitted by the agent when execution reaches the original entry
// point of the unpacked main module. Produced exactly once per unpacking run.
type OEPEvent struct {
	Base ProcessMemoryAddress `json:"base"`
	OEP  ProcessMemoryAddress `json:"oep"`
}

// ProcessIdentity is the immutable snapshot of the controlled process captured
// once at attach time.
type ProcessIdentity struct {
	PID                 ProcessID     `json:"pid"`
	MainModuleName      string        `json:"main_module_name"`
	Architecture        Architecture  `json:"architecture"`
	PointerSize         int           `json:"pointer_size"`
	PageSize            int           `json:"page_size"`
	InitialModuleRanges []MemoryRange `json:"initial_module_ranges"`
}
