// Package config loads the oepdump configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

const (
	defaultAgentPort   = 27042
	defaultCallTimeout = 30 * time.Second
	defaultOEPTimeout  = 2 * time.Minute
)

// Config defines all options available to be set through the config file
type Config struct {
	// AgentPath is the agent payload loaded into spawned targets
	AgentPath string `yaml:"agent-path"`

	// AgentPort is the local control port the injected agent binds
	AgentPort int `yaml:"agent-port"`

	// CallTimeout bounds each remote call against the agent ("30s", "2m")
	CallTimeout string `yaml:"call-timeout"`

	// OEPTimeout bounds the wait for the unpacking run to reach its
	// original entry point
	OEPTimeout string `yaml:"oep-timeout"`

	// DumpDir is the directory dumped images are written to
	DumpDir string `yaml:"dump-dir"`

	// Verbose enables debug logging
	Verbose bool `yaml:"verbose"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		AgentPort: defaultAgentPort,
		DumpDir:   "dumps",
	}
}

// LoadConfig populates a Config from the yaml file at path. A missing file is
// not an error: the defaults are returned. A malformed file is.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.AgentPort == 0 {
		cfg.AgentPort = defaultAgentPort
	}
	return cfg, nil
}

// CallTimeoutValue parses CallTimeout, falling back to the default
func (c *Config) CallTimeoutValue() (time.Duration, error) {
	return parseTimeout(c.CallTimeout, defaultCallTimeout)
}

// OEPTimeoutValue parses OEPTimeout, falling back to the default
func (c *Config) OEPTimeoutValue() (time.Duration, error) {
	return parseTimeout(c.OEPTimeout, defaultOEPTimeout)
}

func parseTimeout(value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", value, err)
	}
	return d, nil
}
