package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	toml "github.com/pelletier/go-toml/v2"
)

// Config holds marquee's runtime settings.
type Config struct {
	APIBaseURL      string
	RequestTimeout  time.Duration
	PageSize        int
	StateDir        string
	LogLevel        string
	RevalidateEvery time.Duration
}

const (
	defaultConfigPath      = "~/.config/marquee/config.toml"
	defaultAPIBaseURL      = "http://localhost:3000"
	defaultRequestTimeout  = 10 * time.Second
	defaultPageSize        = 12
	defaultStateDir        = "~/.local/state/marquee"
	defaultLogLevel        = "info"
	defaultRevalidateEvery = time.Minute
)

// Environment variables that override the config file.
const (
	EnvAPIBaseURL = "MARQUEE_API_BASE_URL"
	EnvLogLevel   = "MARQUEE_LOG_LEVEL"
	EnvStateDir   = "MARQUEE_STATE_DIR"
	EnvPageSize   = "MARQUEE_PAGE_SIZE"
)

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		APIBaseURL:      defaultAPIBaseURL,
		RequestTimeout:  defaultRequestTimeout,
		PageSize:        defaultPageSize,
		StateDir:        mustExpand(defaultStateDir),
		LogLevel:        defaultLogLevel,
		RevalidateEvery: defaultRevalidateEvery,
	}
}

// LoadDotEnv loads KEY=value pairs from path into the process environment.
// Variables already set are kept. A missing file is not an error.
func LoadDotEnv(path string) error {
	if strings.TrimSpace(path) == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads the config file at path (or the default location), falling back
// to defaults when it is missing, then applies environment overrides.
func Load(path string) (Config, error) {
	resolved, err := resolvePath(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()

	file, err := os.Open(resolved)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return applyEnv(cfg, os.Getenv)
	case err != nil:
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var raw struct {
		APIBaseURL      string `toml:"api_base_url"`
		RequestTimeout  string `toml:"request_timeout"`
		PageSize        int    `toml:"page_size"`
		StateDir        string `toml:"state_dir"`
		LogLevel        string `toml:"log_level"`
		RevalidateEvery string `toml:"revalidate_every"`
	}
	if err := toml.Unmarshal(bytes, &raw); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if v := strings.TrimSpace(raw.APIBaseURL); v != "" {
		cfg.APIBaseURL = v
	}
	if v := strings.TrimSpace(raw.RequestTimeout); v != "" {
		d, err := parsePositiveDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse request_timeout: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if raw.PageSize > 0 {
		cfg.PageSize = raw.PageSize
	}
	if v := strings.TrimSpace(raw.StateDir); v != "" {
		cfg.StateDir = mustExpand(v)
	}
	if v := strings.TrimSpace(raw.LogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(raw.RevalidateEvery); v != "" {
		d, err := parsePositiveDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("parse revalidate_every: %w", err)
		}
		cfg.RevalidateEvery = d
	}

	return applyEnv(cfg, os.Getenv)
}

func applyEnv(cfg Config, getenv func(string) string) (Config, error) {
	if v := strings.TrimSpace(getenv(EnvAPIBaseURL)); v != "" {
		cfg.APIBaseURL = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	if v := strings.TrimSpace(getenv(EnvStateDir)); v != "" {
		cfg.StateDir = mustExpand(v)
	}
	if v := strings.TrimSpace(getenv(EnvPageSize)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, fmt.Errorf("parse %s: invalid page size %q", EnvPageSize, v)
		}
		cfg.PageSize = n
	}
	return cfg, nil
}

func parsePositiveDuration(v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", v)
	}
	return d, nil
}

// SessionDir is where the durable session store lives.
func (c Config) SessionDir() string {
	return filepath.Join(c.stateDir(), "session")
}

// LogPath is the client log file.
func (c Config) LogPath() string {
	return filepath.Join(c.stateDir(), "marquee.log")
}

func (c Config) stateDir() string {
	if strings.TrimSpace(c.StateDir) == "" {
		return mustExpand(defaultStateDir)
	}
	return c.StateDir
}

func resolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultConfigPath)
	}
	return expandPath(path)
}

func mustExpand(path string) string {
	expanded, err := expandPath(path)
	if err != nil {
		return path
	}
	return expanded
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
