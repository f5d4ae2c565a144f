package process

// Controller is the interface that defines the synchronous control operations
// available against the instrumented target process. One controller serves one
// target, one call at a time; calls may block on the underlying agent channel.
type Controller interface {
	// Identity returns the immutable snapshot captured at attach time
	Identity() ProcessIdentity

	// FindModuleByAddress resolves which loaded module, if any, contains the
	// address. Always a fresh remote query.
	FindModuleByAddress(addr ProcessMemoryAddress) (*ModuleInfo, error)

	// FindRangeByAddress resolves the specific mapped range containing the
	// address, finer grain than a module. Always a fresh remote query.
	FindRangeByAddress(addr ProcessMemoryAddress) (*MemoryRange, error)

	// EnumerateModules lists the names of the modules currently loaded in the
	// target. Never cached: module layout changes as packed code loads more.
	EnumerateModules() ([]string, error)

	// EnumerateModuleRanges lists the mapped ranges belonging to a module
	EnumerateModuleRanges(moduleName string) ([]MemoryRange, error)

	// EnumerateExportedFunctions returns the exports of every loaded module
	// keyed by address. The result is cached after the first call; pass
	// forceRefresh to re-walk the export directories (needed after new
	// modules load).
	EnumerateExportedFunctions(forceRefresh bool) (map[ProcessMemoryAddress]ExportEntry, error)

	// AllocateProcessMemory allocates size bytes in the target, near the hint
	// address so helper buffers stay within addressing range of instrumented
	// code.
	AllocateProcessMemory(size ProcessMemorySize, near ProcessMemoryAddress) (ProcessMemoryAddress, error)

	// QueryMemoryProtection returns the protection string of the page
	// containing the address
	QueryMemoryProtection(addr ProcessMemoryAddress) (string, error)

	// ReadProcessMemory reads size bytes at addr from the target. No retries;
	// the caller decides whether to retry with adjusted bounds.
	ReadProcessMemory(addr ProcessMemoryAddress, size ProcessMemorySize) ([]byte, error)

	// WriteProcessMemory writes data at addr in the target. A failure means
	// the write may have happened partially or not at all.
	WriteProcessMemory(addr ProcessMemoryAddress, data []byte) error

	// TerminateProcess forcefully terminates the target and releases the
	// session. Terminal operation: call at most once.
	TerminateProcess() error
}
