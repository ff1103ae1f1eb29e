package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/pefman/poke-duel/internal/api"
	"github.com/pefman/poke-duel/internal/engine"
)

// Environment variables.
const (
	EnvConfigPath = "DUEL_CONFIG"
	EnvPort       = "PORT"
	EnvGamePort   = "GAME_PORT"
	EnvAPIBase    = "POKEAPI_BASE"
	EnvRosterSize = "ROSTER_SIZE"
)

type Server struct {
	Address     string        `yaml:"address" validate:"required"`
	MaxSessions int           `yaml:"max_sessions" validate:"gte=1"`
	SessionTTL  time.Duration `yaml:"session_ttl" validate:"gt=0"`
}

type Provider struct {
	BaseURL    string        `yaml:"base_url" validate:"required,url"`
	Timeout    time.Duration `yaml:"timeout" validate:"gt=0"`
	RosterSize int           `yaml:"roster_size" validate:"gte=1,lte=2000"`
	CacheTTL   time.Duration `yaml:"cache_ttl" validate:"gte=0"`
}

// Config is the full runtime configuration.
type Config struct {
	Server   Server         `yaml:"server"`
	Provider Provider       `yaml:"provider"`
	Timings  engine.Timings `yaml:"timings"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Server: Server{
			Address:     ":8081",
			MaxSessions: 1000,
			SessionTTL:  30 * time.Minute,
		},
		Provider: Provider{
			BaseURL:    api.DefaultBaseURL,
			Timeout:    8 * time.Second,
			RosterSize: api.DefaultRosterSize,
			CacheTTL:   5 * time.Minute,
		},
		Timings: engine.DefaultTimings(),
	}
}

// APIConfig converts the provider section for api.NewClient.
func (c Config) APIConfig() api.Config {
	return api.Config{
		BaseURL:    c.Provider.BaseURL,
		Timeout:    c.Provider.Timeout,
		RosterSize: c.Provider.RosterSize,
		CacheTTL:   c.Provider.CacheTTL,
	}
}

var validate = validator.New()

// Load builds the configuration from defaults, the YAML file at path (if
// path is non-empty) and then the environment.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv loads the file named by DUEL_CONFIG, if set.
func LoadFromEnv() (*Config, error) {
	return Load(os.Getenv(EnvConfigPath))
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Timings.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	if p := getenv(EnvPort, os.Getenv(EnvGamePort)); p != "" {
		cfg.Server.Address = ":" + strings.TrimPrefix(p, ":")
	}
	if v := os.Getenv(EnvAPIBase); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv(EnvRosterSize); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvRosterSize, err)
		}
		cfg.Provider.RosterSize = n
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
