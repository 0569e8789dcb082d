package config

import (
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Mode != "server" {
		t.Errorf("Expected default mode to be 'server', got '%s'", cfg.Mode)
	}

	if cfg.Port != 8000 {
		t.Errorf("Expected default port to be 8000, got %d", cfg.Port)
	}

	if cfg.MatchThreshold != 0.45 {
		t.Errorf("Expected default match threshold to be 0.45, got %v", cfg.MatchThreshold)
	}

	if cfg.Browser.NavigationTimeout != 60*time.Second {
		t.Errorf("Expected default navigation timeout to be 60s, got %v", cfg.Browser.NavigationTimeout)
	}

	if !cfg.Browser.HeadlessProbe {
		t.Error("Expected the prober to run headless by default")
	}

	if cfg.Artifacts.Backend != ArtifactLocal {
		t.Errorf("Expected default artifact backend to be 'local', got '%s'", cfg.Artifacts.Backend)
	}
}

func TestConfigValidate(t *testing.T) {
	valid := func(dir string) *Config {
		cfg := DefaultConfig()
		cfg.Artifacts.OutputDir = dir
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid defaults", mutate: func(*Config) {}, wantErr: false},
		{name: "invalid mode", mutate: func(c *Config) { c.Mode = "invalid" }, wantErr: true},
		{name: "invalid port in server mode", mutate: func(c *Config) { c.Port = 0 }, wantErr: true},
		{name: "invalid port ignored in stdio mode", mutate: func(c *Config) { c.Mode = ModeStdio; c.Port = 0 }, wantErr: false},
		{name: "non-positive max file size", mutate: func(c *Config) { c.MaxFileSize = 0 }, wantErr: true},
		{name: "threshold above one", mutate: func(c *Config) { c.MatchThreshold = 1.5 }, wantErr: true},
		{name: "zero threshold", mutate: func(c *Config) { c.MatchThreshold = 0 }, wantErr: true},
		{name: "zero navigation timeout", mutate: func(c *Config) { c.Browser.NavigationTimeout = 0 }, wantErr: true},
		{name: "unknown artifact backend", mutate: func(c *Config) { c.Artifacts.Backend = "s3" }, wantErr: true},
		{name: "minio without endpoint", mutate: func(c *Config) { c.Artifacts.Backend = ArtifactMinio }, wantErr: true},
		{
			name: "minio with endpoint",
			mutate: func(c *Config) {
				c.Artifacts.Backend = ArtifactMinio
				c.Artifacts.Minio.Endpoint = "localhost:9000"
			},
			wantErr: false,
		},
		{name: "invalid log level", mutate: func(c *Config) { c.LogLevel = "verbose" }, wantErr: true},
		{name: "invalid log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid(filepath.Join(t.TempDir(), "out"))
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfigValidateCreatesOutputDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "screens")
	cfg := DefaultConfig()
	cfg.Artifacts.OutputDir = dir

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}
	if _, err := filepath.Abs(dir); err != nil {
		t.Fatalf("output dir not usable: %v", err)
	}
}

func TestConfigHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Host = "0.0.0.0"
	cfg.Port = 9000

	if got := cfg.Address(); got != "0.0.0.0:9000" {
		t.Errorf("Address() = %s, want 0.0.0.0:9000", got)
	}
	if cfg.IsDebug() {
		t.Error("IsDebug() should be false for info level")
	}
	if !cfg.IsServerMode() || cfg.IsStdioMode() {
		t.Error("expected server mode")
	}
	if cfg.String() == "" {
		t.Error("String() should not be empty")
	}
}
