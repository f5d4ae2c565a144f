// Package process_remote implements process.Controller on top of the agent's
// remote operation surface. All reads and writes are remote calls with no
// local buffering; the only long-lived state is the identity snapshot and the
// exported functions cache.
package process_remote

import (
	"errors"
	"fmt"
	"sync"

	"oepdump/agent"
	"oepdump/process"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// Session owns the resources behind a controller: the live agent connection
// and the spawned process handle. The session manager supplies it; the
// controller only uses it for teardown.
type Session interface {
	// KillProcess forcefully terminates the target process
	KillProcess() error

	// Close releases the agent connection
	Close() error
}

// RemoteProcessController drives one target process through the agent RPC
// surface. One controller serves one target, one call at a time; the mutex
// only hardens the exports cache against accidental concurrent use.
type RemoteProcessController struct {
	identity process.ProcessIdentity
	rpc      agent.RPC
	session  Session
	log      *logger.Logger

	mu           sync.Mutex
	exportsCache map[process.ProcessMemoryAddress]process.ExportEntry
	closed       bool
}

// Options configures a RemoteProcessController
type Options struct {
	Log *logger.Logger
}

// New captures the identity snapshot of the target through the agent surface
// and returns a controller bound to it. The target is expected to be attached
// and suspended; the session manager resumes it afterwards.
func New(pid process.ProcessID, mainModuleName string, rpc agent.RPC, session Session, opts Options) (*RemoteProcessController, error) {
	log := opts.Log
	if log == nil {
		log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, fmt.Sprintf("controller-%d", pid)))
	}

	arch, err := rpc.GetArchitecture()
	if err != nil {
		return nil, remoteErr("get_architecture", err)
	}
	pointerSize, err := rpc.GetPointerSize()
	if err != nil {
		return nil, remoteErr("get_pointer_size", err)
	}
	pageSize, err := rpc.GetPageSize()
	if err != nil {
		return nil, remoteErr("get_page_size", err)
	}
	initialRanges, err := rpc.EnumerateModuleRanges(mainModuleName)
	if err != nil {
		return nil, remoteErr("enumerate_module_ranges", err)
	}

	// FindRange over the snapshot requires sorted ranges
	process.SortRanges(initialRanges)

	p := &RemoteProcessController{
		identity: process.ProcessIdentity{
			PID:                 pid,
			MainModuleName:      mainModuleName,
			Architecture:        process.Architecture(arch),
			PointerSize:         pointerSize,
			PageSize:            pageSize,
			InitialModuleRanges: initialRanges,
		},
		rpc:     rpc,
		session: session,
		log:     log,
	}

	p.log.Infoln("Controller attached to", mainModuleName, "pid", pid, "arch", arch)

	return p, nil
}

// Identity returns the immutable snapshot captured at attach time
func (p *RemoteProcessController) Identity() process.ProcessIdentity {
	identity := p.identity
	identity.InitialModuleRanges = append([]process.MemoryRange(nil), p.identity.InitialModuleRanges...)
	return identity
}

// PID returns the process ID of the target
func (p *RemoteProcessController) PID() process.ProcessID {
	return p.identity.PID
}

// MainModuleName returns the file name of the main executable module
func (p *RemoteProcessController) MainModuleName() string {
	return p.identity.MainModuleName
}

func (p *RemoteProcessController) FindModuleByAddress(addr process.ProcessMemoryAddress) (*process.ModuleInfo, error) {
	module, err := p.rpc.FindModuleByAddress(addr)
	if err != nil {
		return nil, remoteErr("find_module_by_address", err)
	}
	return module, nil
}

func (p *RemoteProcessController) FindRangeByAddress(addr process.ProcessMemoryAddress) (*process.MemoryRange, error) {
	memRange, err := p.rpc.FindRangeByAddress(addr)
	if err != nil {
		return nil, remoteErr("find_range_by_address", err)
	}
	return memRange, nil
}

func (p *RemoteProcessController) EnumerateModules() ([]string, error) {
	modules, err := p.rpc.EnumerateModules()
	if err != nil {
		return nil, remoteErr("enumerate_modules", err)
	}
	return modules, nil
}

func (p *RemoteProcessController) EnumerateModuleRanges(moduleName string) ([]process.MemoryRange, error) {
	ranges, err := p.rpc.EnumerateModuleRanges(moduleName)
	if err != nil {
		return nil, remoteErr("enumerate_module_ranges", err)
	}
	return ranges, nil
}

// EnumerateExportedFunctions returns the export map keyed by parsed address.
// Export enumeration walks the full export directory of every loaded module,
// so the result is cached; the cache is replaced wholesale on forceRefresh and
// left untouched when the remote enumeration fails.
func (p *RemoteProcessController) EnumerateExportedFunctions(forceRefresh bool) (map[process.ProcessMemoryAddress]process.ExportEntry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.exportsCache != nil && !forceRefresh {
		return p.exportsCache, nil
	}

	raw, err := p.rpc.EnumerateExportedFunctions()
	if err != nil {
		return nil, remoteErr("enumerate_exported_functions", err)
	}

	exports := make(map[process.ProcessMemoryAddress]process.ExportEntry, len(raw))
	for _, e := range raw {
		addr, err := process.ParseHexAddress(e.Address)
		if err != nil {
			return nil, &process.RemoteOperationError{
				Op:     "enumerate_exported_functions",
				Reason: fmt.Sprintf("unparseable export address for %s: %v", e.Name, err),
				Err:    err,
			}
		}
		exports[addr] = process.ExportEntry{Address: addr, Name: e.Name, Module: e.Module}
	}

	p.exportsCache = exports
	p.log.Debugln("Export cache rebuilt with", len(exports), "entries")

	return exports, nil
}

func (p *RemoteProcessController) AllocateProcessMemory(size process.ProcessMemorySize, near process.ProcessMemoryAddress) (process.ProcessMemoryAddress, error) {
	bufferAddr, err := p.rpc.AllocateProcessMemory(size, near)
	if err != nil {
		return 0, remoteErr("allocate_process_memory", err)
	}
	addr, err := process.ParseHexAddress(bufferAddr)
	if err != nil {
		return 0, &process.RemoteOperationError{
			Op:     "allocate_process_memory",
			Reason: fmt.Sprintf("unparseable allocation address %q", bufferAddr),
			Err:    err,
		}
	}
	return addr, nil
}

func (p *RemoteProcessController) QueryMemoryProtection(addr process.ProcessMemoryAddress) (string, error) {
	protection, err := p.rpc.QueryMemoryProtection(addr)
	if err != nil {
		return "", remoteErr("query_memory_protection", err)
	}
	return protection, nil
}

func (p *RemoteProcessController) ReadProcessMemory(addr process.ProcessMemoryAddress, size process.ProcessMemorySize) ([]byte, error) {
	data, err := p.rpc.ReadProcessMemory(addr, size)
	if err != nil {
		return nil, remoteErr("read_process_memory", err)
	}
	return data, nil
}

func (p *RemoteProcessController) WriteProcessMemory(addr process.ProcessMemoryAddress, data []byte) error {
	if err := p.rpc.WriteProcessMemory(addr, data); err != nil {
		return remoteErr("write_process_memory", err)
	}
	return nil
}

// TerminateProcess kills the target and releases the agent connection.
// Terminal operation: the controller is unusable afterwards and a second call
// returns ErrSessionClosed.
func (p *RemoteProcessController) TerminateProcess() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return process.ErrSessionClosed
	}
	p.closed = true

	p.log.Infoln("Terminating process", p.identity.PID)

	killErr := p.session.KillProcess()
	closeErr := p.session.Close()
	if killErr != nil {
		return fmt.Errorf("terminating process %d: %w", p.identity.PID, killErr)
	}
	return closeErr
}

var _ process.Controller = (*RemoteProcessController)(nil)

// remoteErr folds any fault from the agent surface into the controller's
// single remote-operation error kind, keeping the agent's own fault message as
// the sub-reason when there is one.
func remoteErr(op string, err error) error {
	var rpcErr *agent.RPCError
	if errors.As(err, &rpcErr) {
		return &process.RemoteOperationError{Op: op, Reason: rpcErr.Message, Err: err}
	}
	return &process.RemoteOperationError{Op: op, Err: err}
}
