//go:build linux

package session

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"oepdump/process"

	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/unix"
)

// linuxSpawner preloads the agent library into the target at exec time. The
// agent's initializer runs on the main thread, starts its service thread,
// opens the control port and then parks the main thread until it receives the
// resume signal. The application's own code does not run before Resume, which
// is what "spawned suspended" means here, while the service thread keeps the
// control channel responsive.
type linuxSpawner struct {
	opts Options
	log  *logger.Logger
}

func newPlatformSpawner(opts Options, log *logger.Logger) Spawner {
	return &linuxSpawner{opts: opts, log: log}
}

type linuxTarget struct {
	cmd *exec.Cmd
}

func (t *linuxTarget) PID() process.ProcessID {
	return process.ProcessID(t.cmd.Process.Pid)
}

// Resume unparks the target's main thread. The agent's initializer waits for
// exactly this signal.
func (t *linuxTarget) Resume() error {
	if err := unix.Kill(t.cmd.Process.Pid, unix.SIGUSR1); err != nil {
		return fmt.Errorf("signaling resume: %w", err)
	}
	return nil
}

func (t *linuxTarget) Kill() error {
	if err := t.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	// Reap the child so it does not linger as a zombie
	go t.cmd.Wait()
	return nil
}

func (s *linuxSpawner) SpawnSuspended(exePath string) (Target, error) {
	if s.opts.AgentPath == "" {
		return nil, fmt.Errorf("no agent payload configured")
	}

	cmd := exec.Command(exePath)
	cmd.Env = append(os.Environ(),
		"LD_PRELOAD="+s.opts.AgentPath,
		fmt.Sprintf("OEPDUMP_AGENT_PORT=%d", s.opts.AgentPort))

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", exePath, err)
	}

	s.log.Debugln("Spawned", exePath, "pid", cmd.Process.Pid, "with agent preloaded")

	return &linuxTarget{cmd: cmd}, nil
}

func (s *linuxSpawner) OpenAgentChannel(Target) (io.ReadWriteCloser, error) {
	return dialAgent(s.opts.AgentPort, s.opts.AttachTimeout)
}
