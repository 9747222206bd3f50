// Package config loads layered configuration: built-in defaults, an optional
// YAML file, then FUELWATCH_* environment variables. A .env file in the
// working directory is loaded into the environment first.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment override,
// e.g. FUELWATCH_LIVE_BASE_URL -> live.base_url.
const EnvPrefix = "FUELWATCH_"

// ConfigPathEnvVar names the variable holding an explicit config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultConfigPaths are searched when no explicit path is given.
var DefaultConfigPaths = []string{"config.yaml", "config.yml"}

// Config is the application configuration.
type Config struct {
	Feeds    FeedsConfig    `koanf:"feeds"`
	Live     LiveConfig     `koanf:"live"`
	Database DatabaseConfig `koanf:"database"`
	Detector DetectorConfig `koanf:"detector"`
	Server   ServerConfig   `koanf:"server"`
	Log      LogConfig      `koanf:"log"`
	Output   OutputConfig   `koanf:"output"`
}

// FeedsConfig configures the bulk exports.
type FeedsConfig struct {
	RegistryURL   string        `koanf:"registry_url"`
	PricesURL     string        `koanf:"prices_url"`
	Timeout       time.Duration `koanf:"timeout"`
	SkipUnchanged bool          `koanf:"skip_unchanged"` // skip a feed whose checksum matches the last run
}

// LiveConfig configures the live station API.
type LiveConfig struct {
	BaseURL          string        `koanf:"base_url"`
	Timeout          time.Duration `koanf:"timeout"`
	Concurrency      int           `koanf:"concurrency"`
	Pause            time.Duration `koanf:"pause"`
	RatePerSecond    float64       `koanf:"rate_per_second"` // 0 disables pacing
	MaxRetries       int           `koanf:"max_retries"`
	BreakerFailures  int           `koanf:"breaker_failures"`
	BreakerTimeout   time.Duration `koanf:"breaker_timeout"`
	VerifyVariations bool          `koanf:"verify_variations"`
}

// DatabaseConfig configures storage backends.
type DatabaseConfig struct {
	PostgresDSN   string `koanf:"postgres_dsn"`
	ClickhouseDSN string `koanf:"clickhouse_dsn"` // optional variation history
	UseMemory     bool   `koanf:"use_memory"`
}

// DetectorConfig configures variation detection.
type DetectorConfig struct {
	Epsilon     float64 `koanf:"epsilon"`
	CompareDays bool    `koanf:"compare_days"`
}

// ServerConfig configures cmd/server.
type ServerConfig struct {
	Addr             string        `koanf:"addr"`
	MetricsAddr      string        `koanf:"metrics_addr"` // empty serves /metrics on Addr
	ScheduleInterval time.Duration `koanf:"schedule_interval"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
	OnlyDown         bool          `koanf:"only_down"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// OutputConfig configures report output.
type OutputConfig struct {
	Dir string `koanf:"dir"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		Feeds: FeedsConfig{
			RegistryURL: "https://www.mimit.gov.it/images/exportCSV/anagrafica_impianti_attivi.csv",
			PricesURL:   "https://www.mimit.gov.it/images/exportCSV/prezzo_alle_8.csv",
			Timeout:     60 * time.Second,
		},
		Live: LiveConfig{
			BaseURL:         "https://carburanti.mise.gov.it/ospzApi",
			Timeout:         10 * time.Second,
			Concurrency:     4,
			Pause:           250 * time.Millisecond,
			RatePerSecond:   8,
			MaxRetries:      2,
			BreakerFailures: 5,
			BreakerTimeout:  30 * time.Second,
		},
		Detector: DetectorConfig{
			Epsilon: 0.001,
		},
		Server: ServerConfig{
			Addr:             ":8080",
			ScheduleInterval: 6 * time.Hour,
			ShutdownTimeout:  30 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Output: OutputConfig{
			Dir: "output",
		},
	}
}

// Load reads configuration from defaults, path (or CONFIG_PATH, or the
// default paths when path is empty) and the environment, applies overrides
// (command-line flags) and validates the result.
func Load(path string, overrides ...func(*Config)) (*Config, error) {
	_ = godotenv.Load(".env") // ignore missing file

	k := koanf.New(".")

	// Layer 1: defaults
	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if path == "" {
		path = findConfigFile()
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	// Layer 3: environment
	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	for _, o := range overrides {
		o(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// envTransformFunc maps FUELWATCH_SECTION_KEY_NAME to section.key_name.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	section, rest, ok := strings.Cut(key, "_")
	if !ok {
		return key
	}
	return section + "." + rest
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate checks the configuration for values the components cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Feeds.Timeout <= 0 {
		errs = append(errs, errors.New("feeds.timeout must be positive"))
	}
	if c.Feeds.PricesURL == "" {
		errs = append(errs, errors.New("feeds.prices_url is required"))
	}
	if c.Live.Timeout <= 0 {
		errs = append(errs, errors.New("live.timeout must be positive"))
	}
	if c.Live.Concurrency < 1 {
		errs = append(errs, errors.New("live.concurrency must be at least 1"))
	}
	if c.Live.Pause < 0 {
		errs = append(errs, errors.New("live.pause must not be negative"))
	}
	if c.Live.RatePerSecond < 0 {
		errs = append(errs, errors.New("live.rate_per_second must not be negative"))
	}
	if c.Live.MaxRetries < 0 {
		errs = append(errs, errors.New("live.max_retries must not be negative"))
	}
	if c.Detector.Epsilon < 0 {
		errs = append(errs, errors.New("detector.epsilon must not be negative"))
	}
	if !c.Database.UseMemory && c.Database.PostgresDSN == "" {
		errs = append(errs, errors.New("database.postgres_dsn is required unless database.use_memory is set"))
	}
	if c.Server.ScheduleInterval <= 0 {
		errs = append(errs, errors.New("server.schedule_interval must be positive"))
	}
	return errors.Join(errs...)
}
