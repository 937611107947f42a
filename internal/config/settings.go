// Package config implements Settings & transport selection: choosing CLI vs FPM transport, unix-socket vs
// TCP loopback, and stdout disposition — a YAML file with
// field-level defaults.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Transport selects how the PHP side of the bridge is reached.
type Transport string

const (
	TransportCLI Transport = "cli" // spawn a long-lived php CLI child
	TransportFPM Transport = "fpm" // FastCGI request against php-fpm
)

// StdoutDisposition selects where a worker's stdout goes absent an
// active stdoutmux reader.
type StdoutDisposition string

const (
	StdoutInherit StdoutDisposition = "inherit"
	StdoutNull    StdoutDisposition = "null"
	StdoutPiped   StdoutDisposition = "piped"
	StdoutFD      StdoutDisposition = "fd"
)

// Duration is a time.Duration that supports YAML string unmarshaling,
// e.g. "10s" or "2m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Settings configures one Interpreter.
type Settings struct {
	Transport Transport `yaml:"transport"`

	// CLI transport.
	PHPBinary  string   `yaml:"php_binary"`
	DebugScript string  `yaml:"debug_script"` // if set, pass bootstrap as a script file instead of -r
	PHPArgs    []string `yaml:"php_args"`

	// FPM transport.
	FPMAddress      string `yaml:"fpm_address"` // "unix:/run/php-fpm.sock" or "tcp:127.0.0.1:9000"
	BootstrapScript string `yaml:"bootstrap_script"`

	// Common.
	UnixSocketDir     string            `yaml:"unix_socket_dir"` // empty disables unix sockets
	StdoutDisposition StdoutDisposition `yaml:"stdout"`
	StdoutFD          int               `yaml:"stdout_fd"`
	InitFile          string            `yaml:"init_file"`
	HandshakeTimeout  Duration          `yaml:"handshake_timeout"`
}

// Default returns Settings with sensible defaults.
func Default() *Settings {
	return &Settings{
		Transport:         TransportCLI,
		PHPBinary:         "php",
		UnixSocketDir:     os.TempDir(),
		StdoutDisposition: StdoutInherit,
		HandshakeTimeout:  Duration(10 * time.Second),
	}
}

// Load reads Settings from a YAML file, applying defaults first.
func Load(path string) (*Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading settings file: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("config: parsing settings file: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid settings: %w", err)
	}
	return s, nil
}

// Validate checks Settings for invalid combinations, reporting the
// offending field by its yaml name.
func (s *Settings) Validate() error {
	switch s.Transport {
	case TransportCLI:
		if s.PHPBinary == "" {
			return fmt.Errorf("php_binary is required for cli transport")
		}
	case TransportFPM:
		if s.FPMAddress == "" {
			return fmt.Errorf("fpm_address is required for fpm transport")
		}
		if s.BootstrapScript == "" {
			return fmt.Errorf("bootstrap_script is required for fpm transport")
		}
	default:
		return fmt.Errorf("transport must be %q or %q, got %q", TransportCLI, TransportFPM, s.Transport)
	}

	switch s.StdoutDisposition {
	case StdoutInherit, StdoutNull, StdoutPiped, StdoutFD, "":
	default:
		return fmt.Errorf("stdout must be inherit, null, piped, or fd, got %q", s.StdoutDisposition)
	}
	if s.StdoutDisposition == StdoutFD && s.StdoutFD <= 2 {
		return fmt.Errorf("stdout_fd must name a descriptor above the standard three, got %d", s.StdoutFD)
	}
	return nil
}
