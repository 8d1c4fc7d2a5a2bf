package relayconfig

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Load reads and parses the YAML configuration file at path. If path does
// not exist or is empty, it returns the default configuration with no
// errors. ${ENV_VAR} references are expanded against the process
// environment before parsing.
func Load(path string) (*Config, []error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &cfg, nil
		}
		return nil, []error{fmt.Errorf("relayconfig: failed to read config file: %w", err)}
	}
	if strings.TrimSpace(string(data)) == "" {
		return &cfg, nil
	}

	data = []byte(os.Expand(string(data), os.Getenv))

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, []error{fmt.Errorf("relayconfig: failed to parse config YAML: %w", err)}
	}

	var errs []error
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = defaultConfig().Server.ListenAddr
	}
	if cfg.Server.ChannelCapacity <= 0 {
		cfg.Server.ChannelCapacity = defaultConfig().Server.ChannelCapacity
	}
	if cfg.Server.FullStateInterval == "" {
		cfg.Server.FullStateInterval = defaultConfig().Server.FullStateInterval
	} else if _, err := time.ParseDuration(cfg.Server.FullStateInterval); err != nil {
		errs = append(errs, fmt.Errorf("relayconfig: server.fullStateInterval: %w", err))
		cfg.Server.FullStateInterval = defaultConfig().Server.FullStateInterval
	}

	if cfg.Rules.MaxRules <= 0 {
		cfg.Rules.MaxRules = defaultConfig().Rules.MaxRules
	}
	if cfg.Rules.MaxDependencyPaths <= 0 {
		cfg.Rules.MaxDependencyPaths = defaultConfig().Rules.MaxDependencyPaths
	}
	if cfg.Recording.Enabled && cfg.Recording.Path == "" {
		cfg.Recording.Path = defaultConfig().Recording.Path
	}

	return &cfg, errs
}

// FullStateIntervalDuration parses the configured full-state cadence, defaulting to
// 5 minutes if the value is somehow still unset.
func (c *Config) FullStateIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.Server.FullStateInterval)
	if err != nil {
		return 5 * time.Minute
	}
	return d
}
