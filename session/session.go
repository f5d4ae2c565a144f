// Package session establishes the controlled process: spawn suspended, attach
// the agent channel, register the event dispatcher, arm OEP tracing, resume.
// Any failure along the way aborts the whole operation; the caller observes
// either a fully constructed, running, traced controller or an error.
package session

import (
	"io"
	"path/filepath"
	"time"

	"oepdump/agent"
	"oepdump/process"
	"oepdump/process_remote"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// State tracks the linear setup sequence. There is no branching back: a
// failure in any state is fatal to the whole operation.
type State int

const (
	StateNotStarted State = iota
	StateSpawned
	StateAttached
	StateAgentLoaded
	StateTracingArmed
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "NOT_STARTED"
	case StateSpawned:
		return "SPAWNED"
	case StateAttached:
		return "ATTACHED"
	case StateAgentLoaded:
		return "AGENT_LOADED"
	case StateTracingArmed:
		return "TRACING_ARMED"
	case StateRunning:
		return "RUNNING"
	}
	return "UNKNOWN"
}

// Target abstracts the platform handle of the spawned process: created
// suspended, resumed once tracing is armed, killed on teardown.
type Target interface {
	PID() process.ProcessID
	Resume() error
	Kill() error
}

// Spawner creates the suspended target with the agent payload mapped into it
// and establishes the agent message channel. The platform spawner does this
// with the native process APIs; tests substitute a fake backed by a pipe.
type Spawner interface {
	SpawnSuspended(exePath string) (Target, error)
	OpenAgentChannel(target Target) (io.ReadWriteCloser, error)
}

// Options configures the session manager
type Options struct {
	// AgentPath is the agent payload loaded into the target at spawn time
	AgentPath string

	// AgentPort is the local port the injected agent listens on
	AgentPort int

	// AttachTimeout bounds how long to wait for the injected agent to open
	// its control channel
	AttachTimeout time.Duration

	// CallTimeout bounds each synchronous remote call; zero means no deadline
	CallTimeout time.Duration

	// Spawner overrides the platform spawner, used by tests
	Spawner Spawner

	Log *logger.Logger
}

// DefaultAgentPort is the control port the agent payload binds when none is
// configured.
const DefaultAgentPort = 27042

const defaultAttachTimeout = 10 * time.Second

// Manager drives the spawn/attach/arm/resume sequence
type Manager struct {
	spawner Spawner
	opts    Options
	log     *logger.Logger
}

// NewManager creates a session manager. The platform spawner is used unless
// Options.Spawner overrides it.
func NewManager(opts Options) *Manager {
	if opts.AgentPort == 0 {
		opts.AgentPort = DefaultAgentPort
	}
	if opts.AttachTimeout == 0 {
		opts.AttachTimeout = defaultAttachTimeout
	}
	log := opts.Log
	if log == nil {
		log = logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "session"))
	}
	spawner := opts.Spawner
	if spawner == nil {
		spawner = newPlatformSpawner(opts, log)
	}
	return &Manager{spawner: spawner, opts: opts, log: log}
}

// liveSession hands teardown of the spawned process and the agent connection
// to the controller, which owns them from construction on.
type liveSession struct {
	target Target
	client *agent.Client
}

func (s *liveSession) KillProcess() error {
	return s.target.Kill()
}

func (s *liveSession) Close() error {
	return s.client.Close()
}

// SpawnAndInstrument spawns the executable suspended, wires the event
// dispatcher to notifyOEP, arms OEP tracing for the main module and resumes
// the target. On success the returned controller is live and the process is
// running; on failure the spawned process, if any, has been killed.
func (m *Manager) SpawnAndInstrument(exePath string, notifyOEP OEPCallback) (*process_remote.RemoteProcessController, error) {
	mainModuleName := filepath.Base(exePath)
	state := StateNotStarted

	m.log.Infoln("Spawning", exePath, "suspended")

	target, err := m.spawner.SpawnSuspended(exePath)
	if err != nil {
		return nil, &process.SessionSetupError{Step: "spawn", Err: err}
	}
	state = StateSpawned
	m.log.Debugln("State:", state, "pid", target.PID())

	fail := func(step string, client *agent.Client, err error) (*process_remote.RemoteProcessController, error) {
		if client != nil {
			client.Close()
		}
		if killErr := target.Kill(); killErr != nil {
			m.log.Warn("Failed to kill target after setup failure: ", killErr)
		}
		return nil, &process.SessionSetupError{Step: step, Err: err}
	}

	conn, err := m.spawner.OpenAgentChannel(target)
	if err != nil {
		return fail("attach", nil, err)
	}
	state = StateAttached
	m.log.Debugln("State:", state)

	client := agent.NewClient(conn, agent.Options{CallTimeout: m.opts.CallTimeout, Log: m.log})

	dispatcher := NewDispatcher(notifyOEP, m.log)
	client.SetMessageSink(dispatcher.Sink())
	state = StateAgentLoaded
	m.log.Debugln("State:", state)

	controller, err := process_remote.New(target.PID(), mainModuleName, client,
		&liveSession{target: target, client: client},
		process_remote.Options{Log: m.opts.Log})
	if err != nil {
		return fail("identity", client, err)
	}

	if err := client.SetupOEPTracing(mainModuleName); err != nil {
		return fail("arm_oep_tracing", client, err)
	}
	state = StateTracingArmed
	m.log.Debugln("State:", state)

	if err := target.Resume(); err != nil {
		return fail("resume", client, err)
	}
	state = StateRunning
	m.log.Infoln("State:", state, "- target resumed, tracing armed")

	return controller, nil
}
