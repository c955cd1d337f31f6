package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name     string
		got      interface{}
		expected interface{}
	}{
		{"KnowledgePath", cfg.KnowledgePath, ""},
		{"Workers", cfg.Workers, 4},
		{"MaxNesting", cfg.MaxNesting, 512},
		{"MaxPathLength", cfg.MaxPathLength, 128},
		{"MaxSteps", cfg.MaxSteps, 200000},
		{"ClientOutput", cfg.ClientOutput, "out"},
		{"AuditorOutput", cfg.AuditorOutput, "out"},
		{"LegendOutput", cfg.LegendOutput, ""},
		{"LogLevel", cfg.LogLevel, "info"},
		{"LogJSON", cfg.LogJSON, false},
		{"LogMaxSizeMB", cfg.LogMaxSizeMB, 10},
		{"Verbose", cfg.Verbose, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.expected {
				t.Errorf("DefaultConfig().%s = %v, want %v", tt.name, tt.got, tt.expected)
			}
		})
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("DefaultConfig().Validate() = %v, want nil", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(*Config)
		wantErr     bool
		errContains string
	}{
		{
			name:   "defaults",
			mutate: func(*Config) {},
		},
		{
			name:        "zero workers",
			mutate:      func(c *Config) { c.Workers = 0 },
			wantErr:     true,
			errContains: "workers must be positive",
		},
		{
			name:        "zero nesting",
			mutate:      func(c *Config) { c.MaxNesting = 0 },
			wantErr:     true,
			errContains: "max_nesting must be positive",
		},
		{
			name:        "path length too short",
			mutate:      func(c *Config) { c.MaxPathLength = 1 },
			wantErr:     true,
			errContains: "max_path_length must be at least 2",
		},
		{
			name:        "zero steps",
			mutate:      func(c *Config) { c.MaxSteps = 0 },
			wantErr:     true,
			errContains: "max_steps must be positive",
		},
		{
			name:        "invalid log level",
			mutate:      func(c *Config) { c.LogLevel = "loud" },
			wantErr:     true,
			errContains: "invalid log_level",
		},
		{
			name:   "log level is case-insensitive",
			mutate: func(c *Config) { c.LogLevel = "DEBUG" },
		},
		{
			name: "log file without size",
			mutate: func(c *Config) {
				c.LogFile = "blindtaint.log"
				c.LogMaxSizeMB = 0
			},
			wantErr:     true,
			errContains: "log_max_size_mb must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Validate() = nil, want error containing %q", tt.errContains)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("Validate() = %v, want error containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tests := []struct {
		name        string
		configYAML  string
		envVars     map[string]string
		checkCfg    func(*testing.T, *Config)
		wantErr     bool
		errContains string
	}{
		{
			name: "load valid config from file",
			configYAML: `
knowledge_path: rules.yaml
workers: 8
max_path_length: 64
client_output: build/client
log_level: debug
log_json: true
verbose: true
`,
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.KnowledgePath != "rules.yaml" {
					t.Errorf("KnowledgePath = %v, want rules.yaml", cfg.KnowledgePath)
				}
				if cfg.Workers != 8 {
					t.Errorf("Workers = %v, want 8", cfg.Workers)
				}
				if cfg.MaxPathLength != 64 {
					t.Errorf("MaxPathLength = %v, want 64", cfg.MaxPathLength)
				}
				if cfg.MaxSteps != 200000 {
					t.Errorf("MaxSteps = %v, want default 200000", cfg.MaxSteps)
				}
				if cfg.ClientOutput != "build/client" {
					t.Errorf("ClientOutput = %v, want build/client", cfg.ClientOutput)
				}
				if cfg.EffectiveLegendOutput() != "build/client" {
					t.Errorf("EffectiveLegendOutput() = %v, want build/client", cfg.EffectiveLegendOutput())
				}
				if !cfg.LogJSON || !cfg.Verbose || cfg.LogLevel != "debug" {
					t.Errorf("logging settings not loaded: %+v", cfg)
				}
			},
		},
		{
			name:       "env overrides file",
			configYAML: "workers: 8\n",
			envVars: map[string]string{
				"BLINDTAINT_WORKERS":       "2",
				"BLINDTAINT_LEGEND_OUTPUT": "secret",
			},
			checkCfg: func(t *testing.T, cfg *Config) {
				if cfg.Workers != 2 {
					t.Errorf("Workers = %v, want 2", cfg.Workers)
				}
				if cfg.EffectiveLegendOutput() != "secret" {
					t.Errorf("EffectiveLegendOutput() = %v, want secret", cfg.EffectiveLegendOutput())
				}
			},
		},
		{
			name:        "invalid yaml",
			configYAML:  "workers: [",
			wantErr:     true,
			errContains: "failed to parse config file",
		},
		{
			name:        "invalid values",
			configYAML:  "max_steps: -1\n",
			wantErr:     true,
			errContains: "max_steps must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			path := filepath.Join(t.TempDir(), "config.yaml")
			if err := os.WriteFile(path, []byte(tt.configYAML), 0644); err != nil {
				t.Fatalf("failed to write config: %v", err)
			}

			cfg, err := LoadFromFile(path)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("LoadFromFile() = nil error, want %q", tt.errContains)
				}
				if !strings.Contains(err.Error(), tt.errContains) {
					t.Errorf("LoadFromFile() error = %v, want containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadFromFile() failed: %v", err)
			}
			tt.checkCfg(t, cfg)
		})
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("LoadFromFile() on a missing file = nil error")
	}
}

func TestLoadProjectConfig(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd() failed: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir() failed: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg := DefaultConfig()
	cfg.Workers = 3
	if err := cfg.Save(ProjectConfigFilePath()); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if loaded.Workers != 3 {
		t.Errorf("Workers = %d, want 3", loaded.Workers)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	tests := []struct {
		name    string
		envVars map[string]string
		check   func(*testing.T, *Config)
	}{
		{
			name:    "override knowledge path",
			envVars: map[string]string{"BLINDTAINT_KNOWLEDGE_PATH": "/etc/rules.yaml"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.KnowledgePath != "/etc/rules.yaml" {
					t.Errorf("KnowledgePath = %v, want /etc/rules.yaml", cfg.KnowledgePath)
				}
			},
		},
		{
			name: "override bounds",
			envVars: map[string]string{
				"BLINDTAINT_MAX_NESTING":     "32",
				"BLINDTAINT_MAX_PATH_LENGTH": "16",
				"BLINDTAINT_MAX_STEPS":       "1000",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.MaxNesting != 32 || cfg.MaxPathLength != 16 || cfg.MaxSteps != 1000 {
					t.Errorf("bounds = %d/%d/%d, want 32/16/1000", cfg.MaxNesting, cfg.MaxPathLength, cfg.MaxSteps)
				}
			},
		},
		{
			name:    "invalid int is ignored",
			envVars: map[string]string{"BLINDTAINT_WORKERS": "many"},
			check: func(t *testing.T, cfg *Config) {
				if cfg.Workers != 4 {
					t.Errorf("Workers = %v, want 4", cfg.Workers)
				}
			},
		},
		{
			name: "override logging",
			envVars: map[string]string{
				"BLINDTAINT_LOG_LEVEL":       "warn",
				"BLINDTAINT_LOG_JSON":        "yes",
				"BLINDTAINT_LOG_FILE":        "/tmp/bt.log",
				"BLINDTAINT_LOG_MAX_SIZE_MB": "5",
				"BLINDTAINT_VERBOSE":         "1",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.LogLevel != "warn" || !cfg.LogJSON || cfg.LogFile != "/tmp/bt.log" || cfg.LogMaxSizeMB != 5 || !cfg.Verbose {
					t.Errorf("logging overrides not applied: %+v", cfg)
				}
			},
		},
		{
			name: "override outputs",
			envVars: map[string]string{
				"BLINDTAINT_CLIENT_OUTPUT":  "c",
				"BLINDTAINT_AUDITOR_OUTPUT": "a",
			},
			check: func(t *testing.T, cfg *Config) {
				if cfg.ClientOutput != "c" || cfg.AuditorOutput != "a" {
					t.Errorf("outputs = %s/%s, want c/a", cfg.ClientOutput, cfg.AuditorOutput)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}
			cfg := DefaultConfig()
			applyEnvOverrides(cfg)
			tt.check(t, cfg)
		})
	}
}

func TestParseInt(t *testing.T) {
	tests := []struct {
		input    string
		expected int
	}{
		{"0", 0},
		{"100", 100},
		{"512", 512},
		{"invalid", 0},
		{"", 0},
		{"abc123", 0},
		{"10.5", 10}, // Will parse 10 from 10.5
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := parseInt(tt.input)
			if result != tt.expected {
				t.Errorf("parseInt(%q) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestConfigSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	cfg := DefaultConfig()
	cfg.Workers = 16
	cfg.KnowledgePath = "k.yaml"
	cfg.LogFile = "bt.log"

	if err := cfg.Save(configPath); err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	loadedCfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}
	if *loadedCfg != *cfg {
		t.Errorf("roundtrip mismatch: got %+v, want %+v", loadedCfg, cfg)
	}
}
