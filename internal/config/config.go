// Package config loads the service configuration from config.yaml and
// STEWARD_ environment variables.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultPath is the config file consulted when no path is given.
const DefaultPath = "config.yaml"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Ollama    OllamaConfig    `koanf:"ollama"`
	Speech    SpeechConfig    `koanf:"speech"`
	Pipeline  PipelineConfig  `koanf:"pipeline"`
	Storage   StorageConfig   `koanf:"storage"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
}

type ServerConfig struct {
	Port int `koanf:"port"`
	// APIKeys guards the HTTP API when non-empty.
	APIKeys []string `koanf:"api_keys"`
	// MaxConcurrent caps simultaneous analysis runs. 0 means unlimited.
	MaxConcurrent int `koanf:"max_concurrent"`
	// RequestTimeoutSeconds bounds a single request. Analysis runs hold
	// the connection for the whole pipeline, so this is minutes, not
	// seconds.
	RequestTimeoutSeconds int `koanf:"request_timeout_seconds"`
}

// RequestTimeout returns the per-request deadline as a duration.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

type OllamaConfig struct {
	Host           string  `koanf:"host"`
	Model          string  `koanf:"model"`
	Temperature    float32 `koanf:"temperature"`
	MaxRetries     int     `koanf:"max_retries"`
	TimeoutSeconds int     `koanf:"timeout_seconds"`
	// CacheSize enables the LRU response cache when > 0.
	CacheSize int `koanf:"cache_size"`
}

// Timeout returns the request timeout as a duration.
func (c OllamaConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type SpeechConfig struct {
	BaseURL string `koanf:"base_url"`
	// Model selects the transcription model size (tiny, base, small,
	// medium, large).
	Model          string `koanf:"model"`
	Diarization    bool   `koanf:"diarization"`
	TimeoutSeconds int    `koanf:"timeout_seconds"`
}

func (c SpeechConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type PipelineConfig struct {
	// MaxPromptTokens fails an LLM stage before the call when its prompt
	// exceeds this budget. 0 disables the check.
	MaxPromptTokens int `koanf:"max_prompt_tokens"`
}

type StorageConfig struct {
	Driver string `koanf:"driver"` // sqlite, postgres, memory
	DSN    string `koanf:"dsn"`
}

type TelemetryConfig struct {
	Tracing bool `koanf:"tracing"`
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// Load reads DefaultPath plus the environment.
func Load() (*Config, error) {
	return LoadFile(DefaultPath)
}

// LoadFile reads the given YAML file (a missing file is fine), applies
// STEWARD_ environment overrides (STEWARD_SERVER__PORT -> server.port),
// fills defaults, and validates the result.
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("STEWARD_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, "STEWARD_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	applyDefaults(k)

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Substitute ${VAR} references in values that commonly carry secrets.
	cfg.Storage.DSN = substituteEnvVars(cfg.Storage.DSN)
	cfg.Ollama.Host = substituteEnvVars(cfg.Ollama.Host)
	cfg.Speech.BaseURL = substituteEnvVars(cfg.Speech.BaseURL)
	for i := range cfg.Server.APIKeys {
		cfg.Server.APIKeys[i] = substituteEnvVars(cfg.Server.APIKeys[i])
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(k *koanf.Koanf) {
	defaults := map[string]any{
		"server.port":                    8080,
		"server.request_timeout_seconds": 600,
		"ollama.host":                    "http://localhost:11434",
		"ollama.model":                   "llama3.2",
		"ollama.temperature":             0.1,
		"ollama.max_retries":             3,
		"ollama.timeout_seconds":         120,
		"speech.base_url":                "http://localhost:8081",
		"speech.model":                   "base",
		"speech.diarization":             true,
		"speech.timeout_seconds":         300,
		"pipeline.max_prompt_tokens":     24000,
		"storage.driver":                 "sqlite",
		"storage.dsn":                    "data/steward.db",
	}
	for key, val := range defaults {
		if !k.Exists(key) {
			k.Set(key, val)
		}
	}
}

// Validate reports every problem at once rather than the first one found.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Ollama.Host == "" {
		problems = append(problems, "ollama.host is required")
	}
	if c.Ollama.Model == "" {
		problems = append(problems, "ollama.model is required")
	}
	if c.Ollama.MaxRetries < 1 {
		problems = append(problems, "ollama.max_retries must be at least 1")
	}
	if c.Ollama.Temperature < 0 || c.Ollama.Temperature > 2 {
		problems = append(problems, fmt.Sprintf("ollama.temperature %v out of range [0, 2]", c.Ollama.Temperature))
	}
	if c.Speech.BaseURL == "" {
		problems = append(problems, "speech.base_url is required")
	}
	if c.Speech.Model == "" {
		problems = append(problems, "speech.model is required")
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres", "memory":
	default:
		problems = append(problems, fmt.Sprintf("storage.driver %q not supported", c.Storage.Driver))
	}
	if c.Storage.Driver != "memory" && c.Storage.DSN == "" {
		problems = append(problems, "storage.dsn is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func substituteEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}
