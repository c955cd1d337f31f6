package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for blindtaint
type Config struct {
	// KnowledgePath points to a YAML knowledge file; empty uses the built-in
	// PHP inputs, sinks and sanitizers.
	KnowledgePath string `yaml:"knowledge_path" env:"BLINDTAINT_KNOWLEDGE_PATH"`

	// Workers bounds the number of units lexed and correlated concurrently.
	Workers int `yaml:"workers" env:"BLINDTAINT_WORKERS"`

	// Analysis bounds
	MaxNesting    int `yaml:"max_nesting" env:"BLINDTAINT_MAX_NESTING"`
	MaxPathLength int `yaml:"max_path_length" env:"BLINDTAINT_MAX_PATH_LENGTH"`
	MaxSteps      int `yaml:"max_steps" env:"BLINDTAINT_MAX_STEPS"`

	// Default output directories
	ClientOutput  string `yaml:"client_output" env:"BLINDTAINT_CLIENT_OUTPUT"`
	AuditorOutput string `yaml:"auditor_output" env:"BLINDTAINT_AUDITOR_OUTPUT"`
	LegendOutput  string `yaml:"legend_output" env:"BLINDTAINT_LEGEND_OUTPUT"`

	// Logging
	LogLevel     string `yaml:"log_level" env:"BLINDTAINT_LOG_LEVEL"`
	LogJSON      bool   `yaml:"log_json" env:"BLINDTAINT_LOG_JSON"`
	LogFile      string `yaml:"log_file" env:"BLINDTAINT_LOG_FILE"`
	LogMaxSizeMB int    `yaml:"log_max_size_mb" env:"BLINDTAINT_LOG_MAX_SIZE_MB"`
	Verbose      bool   `yaml:"verbose" env:"BLINDTAINT_VERBOSE"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		KnowledgePath: "",
		Workers:       4,
		MaxNesting:    512,
		MaxPathLength: 128,
		MaxSteps:      200000,
		ClientOutput:  "out",
		AuditorOutput: "out",
		LegendOutput:  "",
		LogLevel:      "info",
		LogJSON:       false,
		LogFile:       "",
		LogMaxSizeMB:  10,
		Verbose:       false,
	}
}

// GlobalConfigFilePath returns the global config file path (~/.blindtaint/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".blindtaint/config.yaml"
	}
	return filepath.Join(home, ".blindtaint", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.blindtaint/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".blindtaint", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.blindtaint/config.yaml)
// 3. Global config (~/.blindtaint/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigFilePath(), ProjectConfigFilePath()} {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("BLINDTAINT_KNOWLEDGE_PATH"); v != "" {
		cfg.KnowledgePath = v
	}
	if v := os.Getenv("BLINDTAINT_WORKERS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.Workers = i
		}
	}
	if v := os.Getenv("BLINDTAINT_MAX_NESTING"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.MaxNesting = i
		}
	}
	if v := os.Getenv("BLINDTAINT_MAX_PATH_LENGTH"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.MaxPathLength = i
		}
	}
	if v := os.Getenv("BLINDTAINT_MAX_STEPS"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.MaxSteps = i
		}
	}
	if v := os.Getenv("BLINDTAINT_CLIENT_OUTPUT"); v != "" {
		cfg.ClientOutput = v
	}
	if v := os.Getenv("BLINDTAINT_AUDITOR_OUTPUT"); v != "" {
		cfg.AuditorOutput = v
	}
	if v := os.Getenv("BLINDTAINT_LEGEND_OUTPUT"); v != "" {
		cfg.LegendOutput = v
	}
	if v := os.Getenv("BLINDTAINT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("BLINDTAINT_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
	if v := os.Getenv("BLINDTAINT_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("BLINDTAINT_LOG_MAX_SIZE_MB"); v != "" {
		if i := parseInt(v); i > 0 {
			cfg.LogMaxSizeMB = i
		}
	}
	if v := os.Getenv("BLINDTAINT_VERBOSE"); v != "" {
		cfg.Verbose = parseBool(v)
	}
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive")
	}
	if c.MaxNesting <= 0 {
		return fmt.Errorf("max_nesting must be positive")
	}
	if c.MaxPathLength < 2 {
		return fmt.Errorf("max_path_length must be at least 2")
	}
	if c.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be positive")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level: %s (must be 'debug', 'info', 'warn' or 'error')", c.LogLevel)
	}
	if c.LogFile != "" && c.LogMaxSizeMB <= 0 {
		return fmt.Errorf("log_max_size_mb must be positive when log_file is set")
	}

	return nil
}

// EffectiveLegendOutput returns the directory the identifier legend is
// written to. It defaults to the client output directory.
func (c *Config) EffectiveLegendOutput() string {
	if c.LegendOutput != "" {
		return c.LegendOutput
	}
	return c.ClientOutput
}

// parseInt attempts to parse a string as int
func parseInt(s string) int {
	var i int
	if _, err := fmt.Sscanf(s, "%d", &i); err != nil {
		return 0
	}
	return i
}

func parseBool(s string) bool {
	return s == "true" || s == "1" || s == "yes"
}
