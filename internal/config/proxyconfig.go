package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ProxyConfig configures the peripheral FastCGI front proxy
// (cmd/phpworld-fpmproxy): an HTTP listener that forwards requests to
// an already-running php-fpm pool over FastCGI, optionally serving
// static files and terminating TLS in front of it. It is deliberately
// separate from Settings, which configures an embedded Interpreter —
// the front proxy never holds PHP object handles or a wire connection
// of its own, it only speaks FastCGI/1.0 to fpm.
type ProxyConfig struct {
	Server  ProxyServerConfig `yaml:"server"`
	Upstream UpstreamConfig   `yaml:"upstream"`
	Static  StaticConfig      `yaml:"static"`
	Logging LogConfig         `yaml:"logging"`
	Metrics MetricsConfig     `yaml:"metrics"`
}

type ProxyServerConfig struct {
	Address      string    `yaml:"address"`
	HTTP2        bool      `yaml:"http2"`
	TLS          TLSConfig `yaml:"tls"`
	HTTPRedirect bool      `yaml:"http_redirect"`
}

type TLSConfig struct {
	Auto bool       `yaml:"auto"`
	Cert string     `yaml:"cert"`
	Key  string     `yaml:"key"`
	ACME ACMEConfig `yaml:"acme"`
}

type ACMEConfig struct {
	Email    string   `yaml:"email"`
	Domains  []string `yaml:"domains"`
	CacheDir string   `yaml:"cache_dir"`
	Staging  bool     `yaml:"staging"`
}

// UpstreamConfig addresses the php-fpm pool this proxy forwards to.
type UpstreamConfig struct {
	Network     string   `yaml:"network"` // "unix" or "tcp"
	Address     string   `yaml:"address"` // socket path or host:port
	ScriptRoot  string   `yaml:"script_root"`
	Index       string   `yaml:"index"`
	DialTimeout Duration `yaml:"dial_timeout"`
}

type StaticConfig struct {
	Root         string `yaml:"root"`
	CacheControl string `yaml:"cache_control"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultProxyConfig returns a ProxyConfig with sensible defaults, in
// field-level defaults applied before the file is read.
func DefaultProxyConfig() *ProxyConfig {
	return &ProxyConfig{
		Server: ProxyServerConfig{
			Address: "0.0.0.0:8080",
			TLS:     TLSConfig{Auto: false},
		},
		Upstream: UpstreamConfig{
			Network:     "tcp",
			Address:     "127.0.0.1:9000",
			Index:       "index.php",
			DialTimeout: Duration(5 * time.Second),
		},
		Static: StaticConfig{
			Root:         "public",
			CacheControl: "public, max-age=3600",
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// LoadProxyConfig reads a ProxyConfig from a YAML file, applying
// defaults first.
func LoadProxyConfig(path string) (*ProxyConfig, error) {
	cfg := DefaultProxyConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading proxy config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing proxy config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid proxy config: %w", err)
	}
	return cfg, nil
}

// Validate checks the ProxyConfig for invalid values.
func (c *ProxyConfig) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	switch c.Upstream.Network {
	case "unix", "tcp":
	default:
		return fmt.Errorf("upstream.network must be unix or tcp, got %q", c.Upstream.Network)
	}
	if c.Upstream.Address == "" {
		return fmt.Errorf("upstream.address is required")
	}
	if c.Server.TLS.Auto && len(c.Server.TLS.ACME.Domains) == 0 {
		return fmt.Errorf("server.tls.acme.domains is required when server.tls.auto is enabled")
	}
	return nil
}
