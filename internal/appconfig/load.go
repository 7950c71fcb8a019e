package appconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"pkt.systems/jrepl/schema"
)

// Load reads configuration from the provided path. If path is empty, uses DefaultConfigPath.
func Load(path string) (Config, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return Config{}, err
		}
		path = defaultPath
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("JREPL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("state_dir", cfg.StateDir)
	v.SetDefault("theme", cfg.Theme)
	v.SetDefault("service.history_max_size", cfg.Service.HistoryMaxSize)
	v.SetDefault("service.history_file", cfg.Service.HistoryFile)
	v.SetDefault("service.prompt", cfg.Service.Prompt)
	v.SetDefault("service.banner", cfg.Service.Banner)
	v.SetDefault("service.working_dir", cfg.Service.WorkingDir)
	v.SetDefault("service.output_delay_ms", cfg.Service.OutputDelayMillis)
	v.SetDefault("service.reset_timeout_seconds", cfg.Service.ResetTimeoutSeconds)
	v.SetDefault("service.allow_assertions", cfg.Service.AllowAssertions)
	v.SetDefault("service.private_access", cfg.Service.PrivateAccess)
	v.SetDefault("service.classpath", cfg.Service.Classpath)
	v.SetDefault("evaluator.mode", cfg.Evaluator.Mode)
	v.SetDefault("evaluator.binary", cfg.Evaluator.Binary)
	v.SetDefault("evaluator.args", cfg.Evaluator.Args)
	v.SetDefault("evaluator.env", cfg.Evaluator.Env)
	v.SetDefault("evaluator.request_timeout_seconds", cfg.Evaluator.RequestTimeoutSeconds)
	v.SetDefault("evaluator.socket_path", cfg.Evaluator.SocketPath)
	v.SetDefault("ssh.addr", cfg.SSH.Addr)
	v.SetDefault("ssh.host_key_path", cfg.SSH.HostKeyPath)
	v.SetDefault("ssh.authorized_keys_path", cfg.SSH.AuthorizedKeysPath)
	v.SetDefault("ssh.idle_timeout_minutes", cfg.SSH.IdleTimeoutMinutes)

	configLoaded := false
	if err := v.ReadInConfig(); err != nil {
		if !isNotFound(err) {
			return Config{}, err
		}
	} else {
		configLoaded = true
	}

	if configLoaded {
		if !v.IsSet("config_version") {
			return Config{}, fmt.Errorf("config_version is required; expected %d", CurrentConfigVersion)
		}
		if v.GetInt("config_version") != CurrentConfigVersion {
			return Config{}, fmt.Errorf("unsupported config_version %d; expected %d", v.GetInt("config_version"), CurrentConfigVersion)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	expandConfigEnv(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func isNotFound(err error) bool {
	var notFound viper.ConfigFileNotFoundError
	if errors.As(err, &notFound) {
		return true
	}
	// SetConfigFile reports a missing explicit path as a plain fs error.
	return errors.Is(err, fs.ErrNotExist)
}

func validate(cfg Config) error {
	switch cfg.Evaluator.Mode {
	case EvaluatorMock:
	case EvaluatorProcess:
		if strings.TrimSpace(cfg.Evaluator.Binary) == "" {
			return fmt.Errorf("evaluator.binary is required for evaluator.mode %q", EvaluatorProcess)
		}
	case EvaluatorGRPC:
		if strings.TrimSpace(cfg.Evaluator.SocketPath) == "" {
			return fmt.Errorf("evaluator.socket_path is required for evaluator.mode %q", EvaluatorGRPC)
		}
	default:
		return fmt.Errorf("unsupported evaluator.mode %q", cfg.Evaluator.Mode)
	}
	if _, ok := schema.NormalizeThemeName(cfg.Theme); !ok {
		return fmt.Errorf("unsupported theme %q", cfg.Theme)
	}
	if cfg.Service.HistoryMaxSize < 0 {
		return fmt.Errorf("service.history_max_size must not be negative")
	}
	if cfg.Service.OutputDelayMillis < 0 {
		return fmt.Errorf("service.output_delay_ms must not be negative")
	}
	if cfg.Evaluator.RequestTimeoutSeconds < 0 {
		return fmt.Errorf("evaluator.request_timeout_seconds must not be negative")
	}
	if cfg.SSH.IdleTimeoutMinutes < 0 {
		return fmt.Errorf("ssh.idle_timeout_minutes must not be negative")
	}
	for _, entry := range cfg.Service.Classpath {
		if strings.TrimSpace(entry.URL) == "" {
			return fmt.Errorf("service.classpath entries require a url")
		}
	}
	return nil
}

func expandConfigEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	cfg.StateDir = expandEnv(cfg.StateDir)
	cfg.Service.HistoryFile = expandEnv(cfg.Service.HistoryFile)
	cfg.Service.WorkingDir = expandEnv(cfg.Service.WorkingDir)
	for i := range cfg.Service.Classpath {
		cfg.Service.Classpath[i].URL = expandEnv(cfg.Service.Classpath[i].URL)
	}
	cfg.Evaluator.Binary = expandEnv(cfg.Evaluator.Binary)
	cfg.Evaluator.SocketPath = expandEnv(cfg.Evaluator.SocketPath)
	for i, arg := range cfg.Evaluator.Args {
		cfg.Evaluator.Args[i] = expandEnv(arg)
	}
	cfg.SSH.HostKeyPath = expandEnv(cfg.SSH.HostKeyPath)
	cfg.SSH.AuthorizedKeysPath = expandEnv(cfg.SSH.AuthorizedKeysPath)
}

func expandEnv(value string) string {
	if value == "" {
		return value
	}
	return os.Expand(value, func(key string) string {
		if key == "" {
			return ""
		}
		if val, ok := lookupEnv(key); ok {
			return val
		}
		return "$" + key
	})
}

func lookupEnv(key string) (string, bool) {
	if val, ok := os.LookupEnv(key); ok {
		return val, true
	}
	switch key {
	case "UID":
		return fmt.Sprintf("%d", os.Getuid()), true
	case "GID":
		return fmt.Sprintf("%d", os.Getgid()), true
	}
	return "", false
}

// WriteDefault writes the default config to the target path.
func WriteDefault(path string, overwrite bool) (string, error) {
	if path == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			return "", err
		}
		path = defaultPath
	}

	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return "", fmt.Errorf("config already exists at %s", path)
		}
	}

	cfg, err := DefaultConfig()
	if err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", err
	}
	return path, nil
}
