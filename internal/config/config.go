package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type EndpointConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	ModelID string `yaml:"model_id"`
}

type HealthConfig struct {
	MaxAttempts  int `yaml:"max_attempts"`
	RetryDelayMS int `yaml:"retry_delay_ms"`
	TimeoutMS    int `yaml:"timeout_ms"`
}

type SynthesisConfig struct {
	TimeoutMS int    `yaml:"timeout_ms"`
	OutputDir string `yaml:"output_dir"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type TelemetryConfig struct {
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
}

type BusConfig struct {
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
	MaxRuns int    `yaml:"max_runs"`
}

type Config struct {
	AppName     string          `yaml:"app_name"`
	Environment string          `yaml:"environment"`
	Endpoint    EndpointConfig  `yaml:"endpoint"`
	Health      HealthConfig    `yaml:"health"`
	Synthesis   SynthesisConfig `yaml:"synthesis"`
	Logging     LoggingConfig   `yaml:"logging"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
	Bus         BusConfig       `yaml:"bus"`
	Journal     JournalConfig   `yaml:"journal"`
}

func (h HealthConfig) RetryDelay() time.Duration {
	return time.Duration(h.RetryDelayMS) * time.Millisecond
}

func (h HealthConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutMS) * time.Millisecond
}

func (s SynthesisConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMS) * time.Millisecond
}

func Default() Config {
	return Config{
		AppName:     "voxbatch",
		Environment: "development",
		Health: HealthConfig{
			MaxAttempts:  20,
			RetryDelayMS: 5000,
			TimeoutMS:    5000,
		},
		Synthesis: SynthesisConfig{
			TimeoutMS: 120000,
			OutputDir: ".",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "voxbatch.log",
		},
		Telemetry: TelemetryConfig{
			OTLPInsecure: true,
		},
		Bus: BusConfig{
			ConnectTimeout: 2000,
		},
		Journal: JournalConfig{
			Path:    "./data/voxbatch-runs.db",
			MaxRuns: 1000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.AppName, "VOXBATCH_APP_NAME")
	overrideString(&cfg.Environment, "VOXBATCH_ENVIRONMENT")
	overrideString(&cfg.Endpoint.BaseURL, "VOXBATCH_BASE_URL")
	overrideString(&cfg.Endpoint.APIKey, "VOXBATCH_API_KEY")
	overrideString(&cfg.Endpoint.ModelID, "VOXBATCH_MODEL_ID")
	overrideInt(&cfg.Health.MaxAttempts, "VOXBATCH_HEALTH_MAX_ATTEMPTS")
	overrideInt(&cfg.Health.RetryDelayMS, "VOXBATCH_HEALTH_RETRY_DELAY_MS")
	overrideInt(&cfg.Health.TimeoutMS, "VOXBATCH_HEALTH_TIMEOUT_MS")
	overrideInt(&cfg.Synthesis.TimeoutMS, "VOXBATCH_SYNTHESIS_TIMEOUT_MS")
	overrideString(&cfg.Synthesis.OutputDir, "VOXBATCH_OUTPUT_DIR")
	overrideString(&cfg.Logging.Level, "VOXBATCH_LOG_LEVEL")
	overrideString(&cfg.Logging.File, "VOXBATCH_LOG_FILE")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXBATCH_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXBATCH_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "VOXBATCH_TELEMETRY_PROMETHEUS_BIND")
	overrideStringSlice(&cfg.Bus.Servers, "VOXBATCH_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "VOXBATCH_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "VOXBATCH_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "VOXBATCH_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "VOXBATCH_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXBATCH_BUS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Journal.Enabled, "VOXBATCH_JOURNAL_ENABLED")
	overrideString(&cfg.Journal.Path, "VOXBATCH_JOURNAL_PATH")
	overrideInt(&cfg.Journal.MaxRuns, "VOXBATCH_JOURNAL_MAX_RUNS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.AppName == "" {
		return errors.New("app_name must not be empty")
	}
	if strings.TrimSpace(cfg.Endpoint.BaseURL) == "" {
		return errors.New("endpoint.base_url must be set (VOXBATCH_BASE_URL)")
	}
	if strings.TrimSpace(cfg.Endpoint.APIKey) == "" {
		return errors.New("endpoint.api_key must be set (VOXBATCH_API_KEY)")
	}
	if strings.TrimSpace(cfg.Endpoint.ModelID) == "" {
		return errors.New("endpoint.model_id must be set (VOXBATCH_MODEL_ID)")
	}
	if cfg.Health.MaxAttempts < 1 {
		return errors.New("health.max_attempts must be >= 1")
	}
	if cfg.Health.RetryDelayMS < 0 {
		return errors.New("health.retry_delay_ms must be >= 0")
	}
	if cfg.Health.TimeoutMS <= 0 {
		return errors.New("health.timeout_ms must be positive")
	}
	if cfg.Synthesis.TimeoutMS <= 0 {
		return errors.New("synthesis.timeout_ms must be positive")
	}
	if cfg.Synthesis.OutputDir == "" {
		return errors.New("synthesis.output_dir must not be empty")
	}
	if cfg.Logging.File == "" {
		return errors.New("logging.file must not be empty")
	}
	if cfg.Journal.Enabled {
		if cfg.Journal.Path == "" {
			return errors.New("journal.path must not be empty when the journal is enabled")
		}
		if cfg.Journal.MaxRuns < 0 {
			return errors.New("journal.max_runs must be >= 0")
		}
	}
	if len(cfg.Bus.Servers) > 0 && cfg.Bus.ConnectTimeout <= 0 {
		return errors.New("bus.connect_timeout_ms must be positive when bus servers are configured")
	}
	return nil
}
