package appconfig

import (
	"os"
	"path/filepath"
	"time"

	"pkt.systems/jrepl/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int             `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string          `mapstructure:"state_dir" yaml:"state_dir"`
	Theme         string          `mapstructure:"theme" yaml:"theme"`
	Service       ServiceConfig   `mapstructure:"service" yaml:"service"`
	Evaluator     EvaluatorConfig `mapstructure:"evaluator" yaml:"evaluator"`
	SSH           SSHConfig       `mapstructure:"ssh" yaml:"ssh"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// Evaluator modes.
const (
	EvaluatorProcess = "process"
	EvaluatorMock    = "mock"
	EvaluatorGRPC    = "grpc"
)

// ServiceConfig controls orchestrator behaviour.
type ServiceConfig struct {
	HistoryMaxSize      int                     `mapstructure:"history_max_size" yaml:"history_max_size"`
	HistoryFile         string                  `mapstructure:"history_file" yaml:"history_file"`
	Prompt              string                  `mapstructure:"prompt" yaml:"prompt"`
	Banner              string                  `mapstructure:"banner" yaml:"banner"`
	WorkingDir          string                  `mapstructure:"working_dir" yaml:"working_dir"`
	OutputDelayMillis   int                     `mapstructure:"output_delay_ms" yaml:"output_delay_ms"`
	ResetTimeoutSeconds int                     `mapstructure:"reset_timeout_seconds" yaml:"reset_timeout_seconds"`
	AllowAssertions     bool                    `mapstructure:"allow_assertions" yaml:"allow_assertions"`
	PrivateAccess       bool                    `mapstructure:"private_access" yaml:"private_access"`
	Classpath           []schema.ClasspathEntry `mapstructure:"classpath" yaml:"classpath"`
}

// EvaluatorConfig selects and configures the evaluator backend.
type EvaluatorConfig struct {
	Mode                  string            `mapstructure:"mode" yaml:"mode"`
	Binary                string            `mapstructure:"binary" yaml:"binary"`
	Args                  []string          `mapstructure:"args" yaml:"args"`
	Env                   map[string]string `mapstructure:"env" yaml:"env"`
	RequestTimeoutSeconds int               `mapstructure:"request_timeout_seconds" yaml:"request_timeout_seconds"`
	SocketPath            string            `mapstructure:"socket_path" yaml:"socket_path"`
}

// SSHConfig configures the SSH server.
type SSHConfig struct {
	Addr               string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath        string `mapstructure:"host_key_path" yaml:"host_key_path"`
	AuthorizedKeysPath string `mapstructure:"authorized_keys_path" yaml:"authorized_keys_path"`
	// IdleTimeoutMinutes closes sessions without traffic; 0 disables it.
	IdleTimeoutMinutes int `mapstructure:"idle_timeout_minutes" yaml:"idle_timeout_minutes"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	base := filepath.Join(home, ".jrepl")
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(base, "state"),
		Theme:         string(schema.DefaultTheme),
		Service: ServiceConfig{
			HistoryMaxSize:      schema.DefaultHistoryMaxSize,
			HistoryFile:         filepath.Join(base, "history"),
			Prompt:              schema.DefaultPrompt,
			Banner:              schema.DefaultBanner,
			WorkingDir:          "",
			OutputDelayMillis:   int(schema.DefaultOutputDelay / time.Millisecond),
			ResetTimeoutSeconds: int(schema.DefaultResetTimeout / time.Second),
			Classpath:           []schema.ClasspathEntry{},
		},
		Evaluator: EvaluatorConfig{
			Mode:                  EvaluatorMock,
			Binary:                "",
			Args:                  []string{},
			Env:                   map[string]string{},
			RequestTimeoutSeconds: 10,
			SocketPath:            filepath.Join(base, "state", "evaluator.sock"),
		},
		SSH: SSHConfig{
			Addr:               ":27522",
			HostKeyPath:        filepath.Join(base, "ssh_host_key"),
			AuthorizedKeysPath: filepath.Join(home, ".ssh", "authorized_keys"),
			IdleTimeoutMinutes: 60,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".jrepl", "config.yaml"), nil
}

// ServiceConfigFor builds the orchestrator config for one session.
func (c Config) ServiceConfigFor(session schema.SessionID) schema.ServiceConfig {
	classpath := make([]schema.ClasspathEntry, len(c.Service.Classpath))
	copy(classpath, c.Service.Classpath)
	return schema.ServiceConfig{
		SessionID:       session,
		StateDir:        c.StateDir,
		HistoryMaxSize:  c.Service.HistoryMaxSize,
		HistoryFile:     c.Service.HistoryFile,
		Prompt:          c.Service.Prompt,
		Banner:          c.Service.Banner,
		WorkingDir:      c.Service.WorkingDir,
		OutputDelay:     time.Duration(c.Service.OutputDelayMillis) * time.Millisecond,
		ResetTimeout:    time.Duration(c.Service.ResetTimeoutSeconds) * time.Second,
		AllowAssertions: c.Service.AllowAssertions,
		PrivateAccess:   c.Service.PrivateAccess,
		Classpath:       classpath,
	}
}

// RequestTimeout returns the evaluator request timeout.
func (c EvaluatorConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
