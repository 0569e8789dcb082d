package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	// Mode constants
	ModeStdio  = "stdio"
	ModeServer = "server"

	// Artifact backends
	ArtifactLocal = "local"
	ArtifactMinio = "minio"

	// Default values
	DefaultPort              = 8000
	DefaultHost              = "127.0.0.1"
	DefaultLogLevel          = "info"
	DefaultLogFormat         = "text"
	DefaultMaxFileSize       = 20 * 1024 * 1024 // 20MB
	DefaultOutputDir         = "outputs"
	DefaultNavigationTimeout = 60 * time.Second
	DefaultDOMReadyTimeout   = 10 * time.Second
	DefaultMatchThreshold    = 0.45
	DefaultViewportWidth     = 1280
	DefaultViewportHeight    = 1024

	// Directory permissions
	DefaultDirPerm = 0o750
)

// Config holds all configuration for the autofill service
type Config struct {
	// Server configuration
	Mode string // "server" (HTTP API) or "stdio" (MCP tools)
	Host string
	Port int

	// Application configuration
	Version     string
	ServerName  string
	LogLevel    string
	LogFormat   string
	MaxFileSize int64 // Maximum upload size in bytes
	ConfigFile  string

	// Browser configuration
	Browser BrowserConfig

	// Extraction configuration
	EnableOCR bool

	// Matcher configuration
	MatchThreshold float64
	Synonyms       map[string][]string

	// Screenshot artifact storage
	Artifacts ArtifactConfig
}

// BrowserConfig controls both the headless probing browser and the visible
// automation session.
type BrowserConfig struct {
	Bin               string
	HeadlessProbe     bool
	ViewportWidth     int
	ViewportHeight    int
	UserAgent         string
	NavigationTimeout time.Duration
	DOMReadyTimeout   time.Duration
}

// ArtifactConfig selects where copied-out screenshots live.
type ArtifactConfig struct {
	Backend   string
	OutputDir string
	Minio     MinioConfig
}

// MinioConfig holds object-store credentials for the minio backend.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Mode:        ModeServer,
		Host:        DefaultHost,
		Port:        DefaultPort,
		Version:     "1.0.0",
		ServerName:  "doc-autofill",
		LogLevel:    DefaultLogLevel,
		LogFormat:   DefaultLogFormat,
		MaxFileSize: DefaultMaxFileSize,
		Browser: BrowserConfig{
			HeadlessProbe:     true,
			ViewportWidth:     DefaultViewportWidth,
			ViewportHeight:    DefaultViewportHeight,
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36",
			NavigationTimeout: DefaultNavigationTimeout,
			DOMReadyTimeout:   DefaultDOMReadyTimeout,
		},
		EnableOCR:      true,
		MatchThreshold: DefaultMatchThreshold,
		Artifacts: ArtifactConfig{
			Backend:   ArtifactLocal,
			OutputDir: DefaultOutputDir,
			Minio: MinioConfig{
				Bucket: "autofill-screenshots",
			},
		},
	}
}

// LoadFromFlags parses command line flags and returns a configuration
func LoadFromFlags() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	fs := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)

	setupViperEnvironment(v, cfg)
	defineCommandLineFlags(fs, cfg)
	bindFlagsToViper(v, fs)
	setupUsageMessage(fs)

	// Check for version flag before parsing
	if err := checkVersionFlag(os.Args[1:]); err != nil {
		return nil, err
	}

	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, err
	}

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	populateConfigFromViper(v, cfg)

	if cfg.Artifacts.OutputDir != "" {
		if expandedPath, err := filepath.Abs(cfg.Artifacts.OutputDir); err == nil {
			cfg.Artifacts.OutputDir = expandedPath
		}
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// setupViperEnvironment configures viper with environment variables and defaults
func setupViperEnvironment(v *viper.Viper, cfg *Config) {
	v.SetEnvPrefix("AUTOFILL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("mode", cfg.Mode)
	v.SetDefault("host", cfg.Host)
	v.SetDefault("port", cfg.Port)
	v.SetDefault("loglevel", cfg.LogLevel)
	v.SetDefault("logformat", cfg.LogFormat)
	v.SetDefault("maxfilesize", cfg.MaxFileSize)
	v.SetDefault("browser.bin", cfg.Browser.Bin)
	v.SetDefault("browser.headless-probe", cfg.Browser.HeadlessProbe)
	v.SetDefault("browser.viewport-width", cfg.Browser.ViewportWidth)
	v.SetDefault("browser.viewport-height", cfg.Browser.ViewportHeight)
	v.SetDefault("browser.user-agent", cfg.Browser.UserAgent)
	v.SetDefault("browser.navigation-timeout", cfg.Browser.NavigationTimeout)
	v.SetDefault("browser.dom-ready-timeout", cfg.Browser.DOMReadyTimeout)
	v.SetDefault("ocr", cfg.EnableOCR)
	v.SetDefault("matcher.threshold", cfg.MatchThreshold)
	v.SetDefault("artifacts.backend", cfg.Artifacts.Backend)
	v.SetDefault("artifacts.dir", cfg.Artifacts.OutputDir)
	v.SetDefault("artifacts.minio.endpoint", cfg.Artifacts.Minio.Endpoint)
	v.SetDefault("artifacts.minio.access-key", cfg.Artifacts.Minio.AccessKey)
	v.SetDefault("artifacts.minio.secret-key", cfg.Artifacts.Minio.SecretKey)
	v.SetDefault("artifacts.minio.bucket", cfg.Artifacts.Minio.Bucket)
	v.SetDefault("artifacts.minio.ssl", cfg.Artifacts.Minio.UseSSL)
}

// defineCommandLineFlags sets up all command line flags
func defineCommandLineFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.String("config", "", "Optional YAML config file (may carry matcher.synonyms)")
	fs.String("mode", cfg.Mode, "Server mode: 'server' for the HTTP API, 'stdio' for MCP standard I/O")
	fs.String("host", cfg.Host, "Server host address (server mode only)")
	fs.Int("port", cfg.Port, "Server port (server mode only)")
	fs.String("loglevel", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.String("logformat", cfg.LogFormat, "Log format (text, json)")
	fs.Int64("maxfilesize", cfg.MaxFileSize, "Maximum uploaded document size in bytes")
	fs.String("browser-bin", cfg.Browser.Bin, "Chrome/Chromium binary (downloaded automatically when empty)")
	fs.Bool("headless-probe", cfg.Browser.HeadlessProbe, "Run the form prober in a headless browser")
	fs.Duration("navigation-timeout", cfg.Browser.NavigationTimeout, "Bound on page navigation")
	fs.Duration("dom-ready-timeout", cfg.Browser.DOMReadyTimeout, "Bound on waiting for the DOM to settle")
	fs.Bool("ocr", cfg.EnableOCR, "Fall back to OCR for scanned documents")
	fs.Float64("match-threshold", cfg.MatchThreshold, "Minimum score (0..1) for a field match to be accepted")
	fs.String("artifacts", cfg.Artifacts.Backend, "Screenshot storage backend (local, minio)")
	fs.String("output-dir", cfg.Artifacts.OutputDir, "Directory for screenshots (local backend)")
}

// bindFlagsToViper binds command line flags to viper configuration
func bindFlagsToViper(v *viper.Viper, fs *pflag.FlagSet) {
	_ = v.BindPFlag("config", fs.Lookup("config"))
	_ = v.BindPFlag("mode", fs.Lookup("mode"))
	_ = v.BindPFlag("host", fs.Lookup("host"))
	_ = v.BindPFlag("port", fs.Lookup("port"))
	_ = v.BindPFlag("loglevel", fs.Lookup("loglevel"))
	_ = v.BindPFlag("logformat", fs.Lookup("logformat"))
	_ = v.BindPFlag("maxfilesize", fs.Lookup("maxfilesize"))
	_ = v.BindPFlag("browser.bin", fs.Lookup("browser-bin"))
	_ = v.BindPFlag("browser.headless-probe", fs.Lookup("headless-probe"))
	_ = v.BindPFlag("browser.navigation-timeout", fs.Lookup("navigation-timeout"))
	_ = v.BindPFlag("browser.dom-ready-timeout", fs.Lookup("dom-ready-timeout"))
	_ = v.BindPFlag("ocr", fs.Lookup("ocr"))
	_ = v.BindPFlag("matcher.threshold", fs.Lookup("match-threshold"))
	_ = v.BindPFlag("artifacts.backend", fs.Lookup("artifacts"))
	_ = v.BindPFlag("artifacts.dir", fs.Lookup("output-dir"))
}

// setupUsageMessage configures the custom usage message
func setupUsageMessage(fs *pflag.FlagSet) {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage of %s:\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nDoc Autofill - extract identity fields from a document and pre-fill a web form\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s                                  # HTTP API on 127.0.0.1:8000\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --mode=stdio                     # MCP tools over stdio\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s --config=autofill.yaml --port=9000\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  AUTOFILL_MODE                     Server mode\n")
		fmt.Fprintf(os.Stderr, "  AUTOFILL_PORT                     Server port\n")
		fmt.Fprintf(os.Stderr, "  AUTOFILL_MATCHER_THRESHOLD        Match acceptance threshold\n")
		fmt.Fprintf(os.Stderr, "  AUTOFILL_ARTIFACTS_BACKEND        Screenshot storage backend\n")
		fmt.Fprintf(os.Stderr, "  AUTOFILL_ARTIFACTS_MINIO_ENDPOINT MinIO endpoint\n")
	}
}

// checkVersionFlag checks if version flag was requested
func checkVersionFlag(args []string) error {
	for _, arg := range args {
		if arg == "-version" || arg == "--version" || arg == "-v" {
			return fmt.Errorf("version requested")
		}
	}
	return nil
}

// readConfigFile merges the optional YAML file named by --config
func readConfigFile(v *viper.Viper) error {
	path := v.GetString("config")
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	return nil
}

// populateConfigFromViper fills the config struct with values from viper
func populateConfigFromViper(v *viper.Viper, cfg *Config) {
	cfg.ConfigFile = v.GetString("config")
	cfg.Mode = v.GetString("mode")
	cfg.Host = v.GetString("host")
	cfg.Port = v.GetInt("port")
	cfg.LogLevel = v.GetString("loglevel")
	cfg.LogFormat = v.GetString("logformat")
	cfg.MaxFileSize = v.GetInt64("maxfilesize")
	cfg.Browser.Bin = v.GetString("browser.bin")
	cfg.Browser.HeadlessProbe = v.GetBool("browser.headless-probe")
	cfg.Browser.ViewportWidth = v.GetInt("browser.viewport-width")
	cfg.Browser.ViewportHeight = v.GetInt("browser.viewport-height")
	cfg.Browser.UserAgent = v.GetString("browser.user-agent")
	cfg.Browser.NavigationTimeout = v.GetDuration("browser.navigation-timeout")
	cfg.Browser.DOMReadyTimeout = v.GetDuration("browser.dom-ready-timeout")
	cfg.EnableOCR = v.GetBool("ocr")
	cfg.MatchThreshold = v.GetFloat64("matcher.threshold")
	if synonyms := v.GetStringMapStringSlice("matcher.synonyms"); len(synonyms) > 0 {
		cfg.Synonyms = synonyms
	}
	cfg.Artifacts.Backend = v.GetString("artifacts.backend")
	cfg.Artifacts.OutputDir = v.GetString("artifacts.dir")
	cfg.Artifacts.Minio.Endpoint = v.GetString("artifacts.minio.endpoint")
	cfg.Artifacts.Minio.AccessKey = v.GetString("artifacts.minio.access-key")
	cfg.Artifacts.Minio.SecretKey = v.GetString("artifacts.minio.secret-key")
	cfg.Artifacts.Minio.Bucket = v.GetString("artifacts.minio.bucket")
	cfg.Artifacts.Minio.UseSSL = v.GetBool("artifacts.minio.ssl")
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	// Validate mode
	if c.Mode != ModeStdio && c.Mode != ModeServer {
		return errors.New("mode must be either 'stdio' or 'server'")
	}

	// Validate port range (only for server mode)
	if c.Mode == ModeServer && (c.Port < 1 || c.Port > 65535) {
		return errors.New("port must be between 1 and 65535")
	}

	// Validate max file size
	if c.MaxFileSize <= 0 {
		return errors.New("maximum file size must be positive")
	}

	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("match threshold must be in (0, 1], got %v", c.MatchThreshold)
	}

	if c.Browser.NavigationTimeout <= 0 || c.Browser.DOMReadyTimeout <= 0 {
		return errors.New("browser timeouts must be positive")
	}

	switch c.Artifacts.Backend {
	case ArtifactLocal:
		if c.Artifacts.OutputDir == "" {
			return errors.New("output directory cannot be empty")
		}
		if _, err := os.Stat(c.Artifacts.OutputDir); os.IsNotExist(err) {
			if err := os.MkdirAll(c.Artifacts.OutputDir, DefaultDirPerm); err != nil {
				return fmt.Errorf("cannot create output directory %s: %w", c.Artifacts.OutputDir, err)
			}
		} else if err != nil {
			return fmt.Errorf("cannot access output directory %s: %w", c.Artifacts.OutputDir, err)
		}
	case ArtifactMinio:
		if c.Artifacts.Minio.Endpoint == "" || c.Artifacts.Minio.Bucket == "" {
			return errors.New("minio backend requires an endpoint and a bucket")
		}
	default:
		return fmt.Errorf("invalid artifact backend: %s (must be one of: local, minio)", c.Artifacts.Backend)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.LogFormat)
	}

	return nil
}

// Address returns the server address as host:port
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsDebug returns true if debug logging is enabled
func (c *Config) IsDebug() bool {
	return c.LogLevel == "debug"
}

// String returns a string representation of the configuration
func (c *Config) String() string {
	return fmt.Sprintf("Config{Mode: %s, Host: %s, Port: %d, LogLevel: %s, MaxFileSize: %d, MatchThreshold: %.2f, Artifacts: %s}",
		c.Mode, c.Host, c.Port, c.LogLevel, c.MaxFileSize, c.MatchThreshold, c.Artifacts.Backend)
}

// IsServerMode returns true if the service exposes the HTTP API
func (c *Config) IsServerMode() bool {
	return c.Mode == ModeServer
}

// IsStdioMode returns true if the service runs as an MCP stdio server
func (c *Config) IsStdioMode() bool {
	return c.Mode == ModeStdio
}
