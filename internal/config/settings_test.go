package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultSettings(t *testing.T) {
	s := Default()
	if s.Transport != TransportCLI {
		t.Errorf("expected default transport cli, got %s", s.Transport)
	}
	if s.PHPBinary != "php" {
		t.Errorf("expected default php_binary 'php', got %s", s.PHPBinary)
	}
	if s.HandshakeTimeout.Duration() != 10*time.Second {
		t.Errorf("expected default handshake_timeout 10s, got %s", s.HandshakeTimeout.Duration())
	}
}

func TestLoadSettingsValid(t *testing.T) {
	yaml := `
transport: fpm
fpm_address: "unix:/run/php-fpm.sock"
bootstrap_script: "/srv/bootstrap.php"
stdout: piped
handshake_timeout: 30s
`
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if s.Transport != TransportFPM {
		t.Errorf("expected transport fpm, got %s", s.Transport)
	}
	if s.FPMAddress != "unix:/run/php-fpm.sock" {
		t.Errorf("expected fpm_address unix:/run/php-fpm.sock, got %s", s.FPMAddress)
	}
	if s.HandshakeTimeout.Duration() != 30*time.Second {
		t.Errorf("expected handshake_timeout 30s, got %s", s.HandshakeTimeout.Duration())
	}
}

func TestValidateFPMRequiresBootstrap(t *testing.T) {
	s := Default()
	s.Transport = TransportFPM
	s.FPMAddress = "tcp:127.0.0.1:9000"
	s.BootstrapScript = ""
	if err := s.Validate(); err == nil {
		t.Error("expected validation error for fpm transport without bootstrap_script")
	}
}

func TestValidateUnknownTransport(t *testing.T) {
	s := Default()
	s.Transport = Transport("quic")
	if err := s.Validate(); err == nil {
		t.Error("expected validation error for unknown transport")
	}
}

func TestValidateStdoutFDRejectsStandardStreams(t *testing.T) {
	s := Default()
	s.StdoutDisposition = StdoutFD
	s.StdoutFD = 1
	if err := s.Validate(); err == nil {
		t.Error("expected validation error for stdout_fd within standard streams")
	}
}

func TestChooseListenerFallsBackToTCPWhenUnixDisabled(t *testing.T) {
	s := Default()
	s.UnixSocketDir = ""
	ls, err := s.ChooseListener()
	if err != nil {
		t.Fatalf("ChooseListener() failed: %v", err)
	}
	if ls.Network != "tcp" {
		t.Errorf("expected tcp fallback when unix_socket_dir is empty, got %s", ls.Network)
	}
}
