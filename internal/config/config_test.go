package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultProxyConfig(t *testing.T) {
	cfg := DefaultProxyConfig()

	if cfg.Server.Address != "0.0.0.0:8080" {
		t.Errorf("expected default address 0.0.0.0:8080, got %s", cfg.Server.Address)
	}
	if cfg.Upstream.Network != "tcp" {
		t.Errorf("expected upstream network tcp, got %s", cfg.Upstream.Network)
	}
	if cfg.Upstream.DialTimeout.Duration() != 5*time.Second {
		t.Errorf("expected dial_timeout 5s, got %s", cfg.Upstream.DialTimeout.Duration())
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Logging.Level)
	}
}

func TestLoadProxyConfigValid(t *testing.T) {
	yaml := `
server:
  address: "0.0.0.0:9090"
upstream:
  network: "unix"
  address: "/run/php-fpm.sock"
  index: "app.php"
logging:
  level: "debug"
`
	dir := t.TempDir()
	path := filepath.Join(dir, "proxy.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadProxyConfig(path)
	if err != nil {
		t.Fatalf("LoadProxyConfig() failed: %v", err)
	}

	if cfg.Server.Address != "0.0.0.0:9090" {
		t.Errorf("expected address 0.0.0.0:9090, got %s", cfg.Server.Address)
	}
	if cfg.Upstream.Network != "unix" {
		t.Errorf("expected upstream network unix, got %s", cfg.Upstream.Network)
	}
	if cfg.Upstream.Address != "/run/php-fpm.sock" {
		t.Errorf("expected upstream address /run/php-fpm.sock, got %s", cfg.Upstream.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level debug, got %s", cfg.Logging.Level)
	}
}

func TestLoadProxyConfigMissingFile(t *testing.T) {
	_, err := LoadProxyConfig("/nonexistent/proxy.yaml")
	if err == nil {
		t.Error("expected error for missing file, got nil")
	}
}

func TestValidateProxyMissingAddress(t *testing.T) {
	cfg := DefaultProxyConfig()
	cfg.Server.Address = ""
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for missing server.address")
	}
}

func TestValidateProxyBadUpstreamNetwork(t *testing.T) {
	cfg := DefaultProxyConfig()
	cfg.Upstream.Network = "quic"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for invalid upstream.network")
	}
}

func TestValidateProxyACMERequiresDomains(t *testing.T) {
	cfg := DefaultProxyConfig()
	cfg.Server.TLS.Auto = true
	cfg.Server.TLS.ACME.Domains = nil
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for acme auto without domains")
	}
}
