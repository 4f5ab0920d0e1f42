package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/museumlab/dwelltrack/internal/emitter"
	"github.com/museumlab/dwelltrack/internal/token"
)

const DefaultFileName = "dwell.yaml"

// Config holds the knobs shared by every command.
type Config struct {
	Endpoint string        `yaml:"endpoint"`
	DBPath   string        `yaml:"db_path"`
	Logging  LoggingConfig `yaml:"logging"`
	CSRF     CSRFConfig    `yaml:"csrf"`
	Paths    PathsConfig   `yaml:"paths"`
	// RequestTimeout bounds each submission; zero leaves requests unbounded.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Source indicates where the configuration originated (defaults or a file path).
	Source string `yaml:"-"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// CSRFConfig selects the anti-forgery token source. A non-empty Token wins
// over the cookie.
type CSRFConfig struct {
	CookieName string `yaml:"cookie_name"`
	PrimePath  string `yaml:"prime_path"`
	Token      string `yaml:"token"`
}

type PathsConfig struct {
	Page        string `yaml:"page"`
	Interaction string `yaml:"interaction"`
	Rating      string `yaml:"rating"`
	Selection   string `yaml:"selection"`
	Transition  string `yaml:"transition"`
}

// Default returns the baseline configuration used when no overrides are supplied.
func Default() Config {
	return Config{
		Endpoint: "http://localhost:8000",
		DBPath:   "./dwell.db",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		CSRF: CSRFConfig{
			CookieName: token.DefaultCookieName,
			PrimePath:  "/",
		},
		Paths: PathsConfig{
			Page:        emitter.DefaultPaths.Page,
			Interaction: emitter.DefaultPaths.Interaction,
			Rating:      emitter.DefaultPaths.Rating,
			Selection:   emitter.DefaultPaths.Selection,
			Transition:  emitter.DefaultPaths.Transition,
		},
		Source: "defaults",
	}
}

// Overrides are command-line values. They win over the file and the
// environment; empty fields are ignored.
type Overrides struct {
	Endpoint string
	DBPath   string
	LogLevel string
}

// Load reads path over the defaults, then applies environment overrides and
// finally o, and validates the result once.
// A missing file is not an error when path is empty or the default name.
func Load(path string, o Overrides) (Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		cfg.Source = path
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	applyEnv(&cfg)
	o.apply(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.Endpoint = getEnvOrDefault("DWELL_ENDPOINT", cfg.Endpoint)
	cfg.DBPath = getEnvOrDefault("DWELL_DB_PATH", cfg.DBPath)
	cfg.Logging.Level = getEnvOrDefault("DWELL_LOG_LEVEL", cfg.Logging.Level)
	cfg.CSRF.Token = getEnvOrDefault("DWELL_CSRF_TOKEN", cfg.CSRF.Token)
}

func (o Overrides) apply(cfg *Config) {
	if o.Endpoint != "" {
		cfg.Endpoint = o.Endpoint
	}
	if o.DBPath != "" {
		cfg.DBPath = o.DBPath
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c Config) Validate() error {
	u, err := url.Parse(c.Endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("endpoint must be an absolute http(s) URL, got %q", c.Endpoint)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("db_path must not be empty")
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative, got %s", c.RequestTimeout)
	}
	for name, p := range map[string]string{
		"page":        c.Paths.Page,
		"interaction": c.Paths.Interaction,
		"rating":      c.Paths.Rating,
		"selection":   c.Paths.Selection,
		"transition":  c.Paths.Transition,
	} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("paths.%s must start with /, got %q", name, p)
		}
	}
	return nil
}

// EmitterPaths converts the configured paths for the emitter.
func (c Config) EmitterPaths() emitter.Paths {
	return emitter.Paths{
		Page:        c.Paths.Page,
		Interaction: c.Paths.Interaction,
		Rating:      c.Paths.Rating,
		Selection:   c.Paths.Selection,
		Transition:  c.Paths.Transition,
	}
}
