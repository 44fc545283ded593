package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"xfer/pkg/engine"
	"xfer/pkg/logger"
)

// Config holds the complete application configuration
type Config struct {
	Transfer TransferConfig `yaml:"transfer" json:"transfer"`
	Multi    MultiConfig    `yaml:"multi" json:"multi"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// TransferConfig holds the defaults applied to every new session
type TransferConfig struct {
	Timeout          time.Duration `yaml:"timeout" json:"timeout"`
	UserAgent        string        `yaml:"userAgent" json:"userAgent"`
	FollowLocation   bool          `yaml:"followLocation" json:"followLocation"`
	MaxRedirects     int           `yaml:"maxRedirects" json:"maxRedirects"`
	VerifyPeer       bool          `yaml:"verifyPeer" json:"verifyPeer"`
	TCPNoDelay       bool          `yaml:"tcpNoDelay" json:"tcpNoDelay"`
	BufferSize       int           `yaml:"bufferSize" json:"bufferSize"`
	MaxResponseBytes int           `yaml:"maxResponseBytes" json:"maxResponseBytes"`
	Headers          []string      `yaml:"headers" json:"headers"`
	Proxy            ProxyConfig   `yaml:"proxy" json:"proxy"`
}

// ProxyConfig holds proxy settings; an empty URL defers to the environment
type ProxyConfig struct {
	URL      string `yaml:"url" json:"url"`
	Port     int    `yaml:"port" json:"port"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// MultiConfig holds coordinator configuration
type MultiConfig struct {
	MaxConcurrency int `yaml:"maxConcurrency" json:"maxConcurrency"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
	Output string `yaml:"output" json:"output"`
}

// DefaultConfig Default configuration values
var DefaultConfig = Config{
	Transfer: TransferConfig{
		Timeout:          30 * time.Second,
		UserAgent:        "xfer/1.0",
		FollowLocation:   false,
		MaxRedirects:     engine.DefaultMaxRedirects,
		VerifyPeer:       true,
		TCPNoDelay:       true,
		BufferSize:       engine.DefaultBufferSize,
		MaxResponseBytes: 0,
	},
	Multi: MultiConfig{
		MaxConcurrency: 8,
	},
	Logging: LoggingConfig{
		Level:  "INFO",
		Format: "text",
		Output: "stderr",
	},
}

// LoadConfig loads configuration from multiple sources in order of precedence:
// 1. Environment variables (highest precedence)
// 2. Configuration file
// 3. Default values (lowest precedence)
func LoadConfig() (*Config, string, error) {
	config := DefaultConfig

	path, err := loadFromFile(&config)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load config file: %w", err)
	}

	if e := loadFromEnv(&config); e != nil {
		return nil, "", fmt.Errorf("failed to load environment variables: %w", e)
	}

	if e := config.Validate(); e != nil {
		return nil, "", fmt.Errorf("configuration validation failed: %w", e)
	}

	return &config, path, nil
}

func configPaths() []string {
	paths := []string{
		os.Getenv("XFER_CONFIG_PATH"), // Custom path from environment
		"./xfer.yaml",                 // Current directory
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "xfer", "config.yaml"))
	}
	return append(paths, "/etc/xfer/config.yaml")
}

// loadFromFile loads configuration from the first YAML file found
func loadFromFile(config *Config) (string, error) {
	for _, path := range configPaths() {
		if path == "" {
			continue
		}

		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return "", fmt.Errorf("failed to parse config file %s: %w", path, err)
		}

		return path, nil
	}

	return "built-in defaults (no config file found)", nil
}

// loadFromEnv loads configuration from environment variables. Malformed
// numbers and durations are reported rather than skipped.
func loadFromEnv(config *Config) error {
	t := &config.Transfer

	if val := os.Getenv("XFER_TIMEOUT"); val != "" {
		timeout, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("XFER_TIMEOUT: %w", err)
		}
		t.Timeout = timeout
	}
	if val := os.Getenv("XFER_USER_AGENT"); val != "" {
		t.UserAgent = val
	}
	if val := os.Getenv("XFER_FOLLOW_LOCATION"); val != "" {
		t.FollowLocation = parseBool(val)
	}
	if err := envInt("XFER_MAX_REDIRECTS", &t.MaxRedirects); err != nil {
		return err
	}
	if val := os.Getenv("XFER_VERIFY_PEER"); val != "" {
		t.VerifyPeer = parseBool(val)
	}
	if val := os.Getenv("XFER_TCP_NODELAY"); val != "" {
		t.TCPNoDelay = parseBool(val)
	}
	if err := envInt("XFER_BUFFER_SIZE", &t.BufferSize); err != nil {
		return err
	}
	if err := envInt("XFER_MAX_RESPONSE_BYTES", &t.MaxResponseBytes); err != nil {
		return err
	}
	if val := os.Getenv("XFER_HEADERS"); val != "" {
		t.Headers = nil
		for _, h := range strings.Split(val, ";") {
			if h = strings.TrimSpace(h); h != "" {
				t.Headers = append(t.Headers, h)
			}
		}
	}

	// Proxy config
	if val := os.Getenv("XFER_PROXY_URL"); val != "" {
		t.Proxy.URL = val
	}
	if err := envInt("XFER_PROXY_PORT", &t.Proxy.Port); err != nil {
		return err
	}
	if val := os.Getenv("XFER_PROXY_USERNAME"); val != "" {
		t.Proxy.Username = val
	}
	if val := os.Getenv("XFER_PROXY_PASSWORD"); val != "" {
		t.Proxy.Password = val
	}

	if err := envInt("XFER_MAX_CONCURRENCY", &config.Multi.MaxConcurrency); err != nil {
		return err
	}

	// Logging config
	if val := os.Getenv("XFER_LOG_LEVEL"); val != "" {
		config.Logging.Level = val
	}
	if val := os.Getenv("XFER_LOG_FORMAT"); val != "" {
		config.Logging.Format = val
	}
	if val := os.Getenv("XFER_LOG_OUTPUT"); val != "" {
		config.Logging.Output = val
	}

	return nil
}

func envInt(name string, dst *int) error {
	val := os.Getenv(name)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func parseBool(val string) bool {
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	t := c.Transfer
	if t.Timeout < 0 {
		return fmt.Errorf("invalid transfer timeout: %s", t.Timeout)
	}
	if t.MaxRedirects < -1 {
		return fmt.Errorf("invalid max redirects: %d", t.MaxRedirects)
	}
	if t.BufferSize < engine.MinBufferSize || t.BufferSize > engine.MaxBufferSize {
		return fmt.Errorf("invalid buffer size: %d (must be between %d and %d)",
			t.BufferSize, engine.MinBufferSize, engine.MaxBufferSize)
	}
	if t.MaxResponseBytes < 0 {
		return fmt.Errorf("invalid max response bytes: %d", t.MaxResponseBytes)
	}
	if t.Proxy.Port < 0 || t.Proxy.Port > 65535 {
		return fmt.Errorf("invalid proxy port: %d", t.Proxy.Port)
	}
	for _, h := range t.Headers {
		if _, _, ok := engine.SplitHeaderLine(h); !ok {
			return fmt.Errorf("invalid header line: %q", h)
		}
	}

	if c.Multi.MaxConcurrency < 0 {
		return fmt.Errorf("invalid max concurrency: %d", c.Multi.MaxConcurrency)
	}

	if _, err := logger.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}

// NewLogger builds the logger described by the logging section. Output is
// "stdout", "stderr" or a file path opened for appending.
func (c *Config) NewLogger() (*logger.Logger, error) {
	level, err := logger.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, err
	}

	out := os.Stderr
	switch c.Logging.Output {
	case "", "stderr":
	case "stdout":
		out = os.Stdout
	default:
		f, err := os.OpenFile(c.Logging.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log output: %w", err)
		}
		out = f
	}

	return logger.NewWithConfig(logger.Config{
		Level:  level,
		Output: out,
		Format: strings.ToLower(c.Logging.Format),
	}), nil
}

func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func (c *Config) SaveToFile(path string) error {
	data, err := c.ToYAML()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// LoadFromFile loads a specific configuration file
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// GenerateDefaultConfig creates a default configuration file
func GenerateDefaultConfig(path string) error {
	config := DefaultConfig
	return config.SaveToFile(path)
}
