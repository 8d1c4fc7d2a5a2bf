// Package relayconfig loads the relay's YAML configuration file, resolves
// the environment-driven push-provider and boat-identity settings, and
// persists the app UUID file.
package relayconfig

// Config is the top-level configuration parsed from the relay's YAML file.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Recording RecordingConfig `yaml:"recording"`
	Rules     RulesConfig     `yaml:"rules"`
}

// ServerConfig controls the State Core's process-wide knobs.
type ServerConfig struct {
	ListenAddr        string `yaml:"listenAddr"`
	ChannelCapacity   int    `yaml:"channelCapacity"`
	FullStateInterval string `yaml:"fullStateInterval"`
}

// RecordingConfig controls the optional append-only JSONL sink.
type RecordingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// RulesConfig controls the Rule Engine's registration-time soft caps.
type RulesConfig struct {
	MaxRules           int `yaml:"maxRules"`
	MaxDependencyPaths int `yaml:"maxDependencyPaths"`
}

// defaultConfig returns the configuration used when no file is present, or
// a present file leaves a section unset.
func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			ListenAddr:        ":8080",
			ChannelCapacity:   1024,
			FullStateInterval: "5m",
		},
		Recording: RecordingConfig{
			Enabled: false,
			Path:    "recording.jsonl",
		},
		Rules: RulesConfig{
			MaxRules:           20,
			MaxDependencyPaths: 5,
		},
	}
}
