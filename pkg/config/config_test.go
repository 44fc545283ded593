package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"xfer/pkg/logger"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig

	if cfg.Transfer.Timeout != 30*time.Second {
		t.Errorf("Expected Transfer Timeout 30s, got %s", cfg.Transfer.Timeout)
	}
	if cfg.Transfer.MaxRedirects != 30 {
		t.Errorf("Expected Transfer MaxRedirects 30, got %d", cfg.Transfer.MaxRedirects)
	}
	if !cfg.Transfer.VerifyPeer {
		t.Error("Expected Transfer VerifyPeer to default to true")
	}
	if cfg.Transfer.BufferSize != 16*1024 {
		t.Errorf("Expected Transfer BufferSize 16384, got %d", cfg.Transfer.BufferSize)
	}
	if cfg.Multi.MaxConcurrency != 8 {
		t.Errorf("Expected Multi MaxConcurrency 8, got %d", cfg.Multi.MaxConcurrency)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func TestLoadConfig_EnvironmentOverridesFile(t *testing.T) {
	isolateConfigSearch(t)

	testConfig := `
transfer:
  timeout: "10s"
  userAgent: "from-file"
  maxRedirects: 3
  headers:
    - "X-From: file"
  proxy:
    url: "file-proxy.local"
multi:
  maxConcurrency: 2
`
	path := createTestConfigFile(t, "xfer.yaml", testConfig)
	t.Setenv("XFER_CONFIG_PATH", path)
	t.Setenv("XFER_TIMEOUT", "2s")
	t.Setenv("XFER_MAX_CONCURRENCY", "16")
	t.Setenv("XFER_LOG_LEVEL", "DEBUG")
	t.Setenv("XFER_HEADERS", "X-A: 1; X-B: 2")

	cfg, loadedFrom, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if loadedFrom != path {
		t.Errorf("Expected config path %s, got %s", path, loadedFrom)
	}
	if cfg.Transfer.Timeout != 2*time.Second {
		t.Errorf("Expected Transfer Timeout 2s from env, got %s", cfg.Transfer.Timeout)
	}
	if cfg.Transfer.UserAgent != "from-file" {
		t.Errorf("Expected Transfer UserAgent 'from-file', got '%s'", cfg.Transfer.UserAgent)
	}
	if cfg.Transfer.MaxRedirects != 3 {
		t.Errorf("Expected Transfer MaxRedirects 3, got %d", cfg.Transfer.MaxRedirects)
	}
	if cfg.Transfer.Proxy.URL != "file-proxy.local" {
		t.Errorf("Expected Proxy URL 'file-proxy.local', got '%s'", cfg.Transfer.Proxy.URL)
	}
	if got := strings.Join(cfg.Transfer.Headers, ","); got != "X-A: 1,X-B: 2" {
		t.Errorf("Expected headers from env, got %q", got)
	}
	if cfg.Multi.MaxConcurrency != 16 {
		t.Errorf("Expected Multi MaxConcurrency 16, got %d", cfg.Multi.MaxConcurrency)
	}
	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected Logging Level 'DEBUG', got '%s'", cfg.Logging.Level)
	}

	// Values untouched by file and env keep their defaults
	if !cfg.Transfer.TCPNoDelay {
		t.Error("Expected TCPNoDelay default to survive")
	}
}

func TestLoadConfig_NoFile(t *testing.T) {
	isolateConfigSearch(t)

	cfg, path, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if !strings.Contains(path, "built-in defaults") {
		t.Errorf("Expected built-in defaults, got %s", path)
	}
	if cfg.Transfer.UserAgent != DefaultConfig.Transfer.UserAgent {
		t.Errorf("Expected default user agent, got %s", cfg.Transfer.UserAgent)
	}
}

func TestLoadConfig_MalformedEnvironment(t *testing.T) {
	isolateConfigSearch(t)

	tests := map[string]string{
		"XFER_TIMEOUT":         "soon",
		"XFER_MAX_REDIRECTS":   "many",
		"XFER_PROXY_PORT":      "http",
		"XFER_MAX_CONCURRENCY": "1.5",
	}
	for name, value := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(name, value)
			if _, _, err := LoadConfig(); err == nil || !strings.Contains(err.Error(), name) {
				t.Errorf("Expected error mentioning %s, got %v", name, err)
			}
		})
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"negative timeout", func(c *Config) { c.Transfer.Timeout = -time.Second }, "timeout"},
		{"redirects below -1", func(c *Config) { c.Transfer.MaxRedirects = -2 }, "max redirects"},
		{"buffer too small", func(c *Config) { c.Transfer.BufferSize = 100 }, "buffer size"},
		{"negative response cap", func(c *Config) { c.Transfer.MaxResponseBytes = -1 }, "max response bytes"},
		{"proxy port", func(c *Config) { c.Transfer.Proxy.Port = 70000 }, "proxy port"},
		{"header line", func(c *Config) { c.Transfer.Headers = []string{"missing colon"} }, "header line"},
		{"concurrency", func(c *Config) { c.Multi.MaxConcurrency = -1 }, "max concurrency"},
		{"log level", func(c *Config) { c.Logging.Level = "LOUD" }, "log level"},
		{"log format", func(c *Config) { c.Logging.Format = "xml" }, "log format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected no error, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSaveAndLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg := DefaultConfig
	cfg.Transfer.FollowLocation = true
	cfg.Transfer.Proxy = ProxyConfig{URL: "proxy.local", Port: 3128}
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if !loaded.Transfer.FollowLocation {
		t.Error("Expected FollowLocation to round trip")
	}
	if loaded.Transfer.Proxy.Port != 3128 {
		t.Errorf("Expected proxy port 3128, got %d", loaded.Transfer.Proxy.Port)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := DefaultConfig
	cfg.Logging.Level = "warn"
	cfg.Logging.Output = filepath.Join(t.TempDir(), "xfer.log")

	log, err := cfg.NewLogger()
	if err != nil {
		t.Fatalf("NewLogger failed: %v", err)
	}
	if log.GetLevel() != logger.WARN {
		t.Errorf("Expected WARN level, got %s", log.GetLevel())
	}
	log.Warn("written")

	data, err := os.ReadFile(cfg.Logging.Output)
	if err != nil {
		t.Fatalf("Failed to read log output: %v", err)
	}
	if !strings.Contains(string(data), "written") {
		t.Errorf("Expected log file to contain the record, got %q", data)
	}
}

// Helper functions

// isolateConfigSearch keeps LoadConfig from picking up files on the host.
func isolateConfigSearch(t *testing.T) {
	t.Helper()
	t.Setenv("XFER_CONFIG_PATH", "")
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())
}

func createTestConfigFile(t *testing.T, filename, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to create test config file %s: %v", path, err)
	}
	return path
}
