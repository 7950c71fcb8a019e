package schema

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

// ServiceConfig defines defaults and limits for an orchestrator.
type ServiceConfig struct {
	SessionID      SessionID
	StateDir       string
	HistoryMaxSize int
	HistoryFile    string
	Prompt         string
	Banner         string
	WorkingDir     string
	OutputDelay    time.Duration
	ResetTimeout   time.Duration
	// AllowAssertions and PrivateAccess are replayed to the evaluator after every reset.
	AllowAssertions bool
	PrivateAccess   bool
	Classpath       []ClasspathEntry
}

const (
	// DefaultHistoryMaxSize bounds the number of remembered interactions.
	DefaultHistoryMaxSize = 500
	// DefaultPrompt is shown before user input.
	DefaultPrompt = "> "
	// DefaultBanner is printed after every reset.
	DefaultBanner = "Welcome to jrepl.\n"
	// DefaultOutputDelay throttles program output writes.
	DefaultOutputDelay = 5 * time.Millisecond
	// DefaultResetTimeout bounds the wait for a reset evaluator.
	DefaultResetTimeout = 20 * time.Second
	// ResettingBanner is printed when a reset starts.
	ResettingBanner = "Resetting Interactions...\n"
)

const (
	// HistoryVersionMarker is the first line of a versioned history file.
	HistoryVersionMarker = "// jrepl history v2"
	// InteractionSeparator terminates an interaction in a versioned history file.
	InteractionSeparator = "//End of Interaction//"
)

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ServiceConfig{}, err
		}
		cfg.StateDir = filepath.Join(home, ".jrepl", "state")
	}
	if cfg.HistoryMaxSize < 0 {
		return ServiceConfig{}, ErrInvalidHistorySize
	}
	if cfg.HistoryMaxSize == 0 {
		cfg.HistoryMaxSize = DefaultHistoryMaxSize
	}
	if cfg.Prompt == "" {
		cfg.Prompt = DefaultPrompt
	}
	if cfg.Banner == "" {
		cfg.Banner = DefaultBanner
	}
	if cfg.WorkingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return ServiceConfig{}, err
		}
		cfg.WorkingDir = wd
	}
	if cfg.OutputDelay < 0 {
		return ServiceConfig{}, errors.New("output delay must not be negative")
	}
	if cfg.OutputDelay == 0 {
		cfg.OutputDelay = DefaultOutputDelay
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = DefaultResetTimeout
	}
	if cfg.SessionID == "" {
		cfg.SessionID = "local"
	}
	for i, entry := range cfg.Classpath {
		if entry.URL == "" {
			return ServiceConfig{}, errors.New("classpath entry url is required")
		}
		if entry.Kind == "" {
			cfg.Classpath[i].Kind = ClasspathExtra
		}
	}
	return cfg, nil
}
