//go:build windows

package session

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"oepdump/process"

	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/windows"
)

var (
	modkernel32            = windows.NewLazySystemDLL("kernel32.dll")
	procVirtualAllocEx     = modkernel32.NewProc("VirtualAllocEx")
	procWriteProcessMemory = modkernel32.NewProc("WriteProcessMemory")
	procCreateRemoteThread = modkernel32.NewProc("CreateRemoteThread")
	procLoadLibraryW       = modkernel32.NewProc("LoadLibraryW")
)

const (
	memCommit     = 0x1000
	memReserve    = 0x2000
	pageReadwrite = 0x04
)

// windowsSpawner creates the target with CREATE_SUSPENDED, so only the
// initial thread is frozen, and maps the agent DLL with a remote LoadLibraryW
// thread. The DLL's entry point starts the agent's service thread and opens
// the control port while the application's initial thread stays suspended.
type windowsSpawner struct {
	opts Options
	log  *logger.Logger
}

func newPlatformSpawner(opts Options, log *logger.Logger) Spawner {
	return &windowsSpawner{opts: opts, log: log}
}

type windowsTarget struct {
	pid           process.ProcessID
	processHandle windows.Handle
	threadHandle  windows.Handle
}

func (t *windowsTarget) PID() process.ProcessID {
	return t.pid
}

// Resume releases the initial thread; execution starts at the packed entry
func (t *windowsTarget) Resume() error {
	if _, err := windows.ResumeThread(t.threadHandle); err != nil {
		return fmt.Errorf("ResumeThread failed: %w", err)
	}
	return nil
}

func (t *windowsTarget) Kill() error {
	if err := windows.TerminateProcess(t.processHandle, 1); err != nil {
		return fmt.Errorf("TerminateProcess failed: %w", err)
	}
	windows.CloseHandle(t.threadHandle)
	windows.CloseHandle(t.processHandle)
	return nil
}

func (s *windowsSpawner) SpawnSuspended(exePath string) (Target, error) {
	if s.opts.AgentPath == "" {
		return nil, fmt.Errorf("no agent payload configured")
	}

	// The agent reads its control port from the inherited environment
	os.Setenv("OEPDUMP_AGENT_PORT", fmt.Sprintf("%d", s.opts.AgentPort))

	exe, err := windows.UTF16PtrFromString(exePath)
	if err != nil {
		return nil, err
	}

	si := new(windows.StartupInfo)
	si.Cb = uint32(unsafe.Sizeof(*si))
	pi := new(windows.ProcessInformation)

	err = windows.CreateProcess(exe, nil, nil, nil, false,
		windows.CREATE_SUSPENDED, nil, nil, si, pi)
	if err != nil {
		return nil, fmt.Errorf("CreateProcess failed: %w", err)
	}

	target := &windowsTarget{
		pid:           process.ProcessID(pi.ProcessId),
		processHandle: pi.Process,
		threadHandle:  pi.Thread,
	}

	if err := s.injectAgent(target); err != nil {
		target.Kill()
		return nil, err
	}

	s.log.Debugln("Spawned", exePath, "pid", target.pid, "suspended, agent injected")

	return target, nil
}

// injectAgent maps the agent DLL into the suspended target with a remote
// LoadLibraryW thread. kernel32 shares its base across processes, so the
// local LoadLibraryW address is valid in the target.
func (s *windowsSpawner) injectAgent(target *windowsTarget) error {
	dllPath, err := windows.UTF16FromString(s.opts.AgentPath)
	if err != nil {
		return err
	}
	pathBytes := uintptr(len(dllPath) * 2)

	remoteBuf, _, callErr := procVirtualAllocEx.Call(
		uintptr(target.processHandle), 0, pathBytes,
		memCommit|memReserve, pageReadwrite)
	if remoteBuf == 0 {
		return fmt.Errorf("VirtualAllocEx failed: %v", callErr)
	}

	var written uintptr
	ret, _, callErr := procWriteProcessMemory.Call(
		uintptr(target.processHandle), remoteBuf,
		uintptr(unsafe.Pointer(&dllPath[0])), pathBytes,
		uintptr(unsafe.Pointer(&written)))
	if ret == 0 {
		return fmt.Errorf("WriteProcessMemory failed: %v", callErr)
	}

	if err := procLoadLibraryW.Find(); err != nil {
		return err
	}
	thread, _, callErr := procCreateRemoteThread.Call(
		uintptr(target.processHandle), 0, 0,
		procLoadLibraryW.Addr(), remoteBuf, 0, 0)
	if thread == 0 {
		return fmt.Errorf("CreateRemoteThread failed: %v", callErr)
	}
	defer windows.CloseHandle(windows.Handle(thread))

	event, err := windows.WaitForSingleObject(windows.Handle(thread), uint32(s.opts.AttachTimeout.Milliseconds()))
	if err != nil {
		return fmt.Errorf("waiting for agent load: %w", err)
	}
	if event != windows.WAIT_OBJECT_0 {
		return fmt.Errorf("agent load thread did not finish (wait=%d)", event)
	}

	return nil
}

func (s *windowsSpawner) OpenAgentChannel(Target) (io.ReadWriteCloser, error) {
	return dialAgent(s.opts.AgentPort, s.opts.AttachTimeout)
}
