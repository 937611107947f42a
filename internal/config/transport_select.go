package config

import (
	"fmt"
	"net"
	"path/filepath"
)

// ListenerSpec describes the endpoint the controller should listen on
// for the PHP side to connect back to.
type ListenerSpec struct {
	Network string // "unix" or "tcp"
	Address string
}

// ChooseListener picks a unix socket path under UnixSocketDir when
// configured and supported by the platform, falling back silently to
// TCP loopback on an ephemeral port otherwise.
func (s *Settings) ChooseListener() (ListenerSpec, error) {
	if s.UnixSocketDir != "" && unixSocketsSupported() {
		name, err := randomSocketName()
		if err != nil {
			return ListenerSpec{}, fmt.Errorf("config: generating socket name: %w", err)
		}
		return ListenerSpec{
			Network: "unix",
			Address: filepath.Join(s.UnixSocketDir, name),
		}, nil
	}
	return ListenerSpec{Network: "tcp", Address: "127.0.0.1:0"}, nil
}

// URL renders a ListenerSpec as the socket_url token embedded in the
// HELO payload, after a real listener has bound
// an ephemeral TCP port (addr is the listener's resolved Addr()).
func (ls ListenerSpec) URL(addr net.Addr) string {
	if ls.Network == "unix" {
		return "unix://" + ls.Address
	}
	return "tcp://" + addr.String()
}

func randomSocketName() (string, error) {
	b := make([]byte, 16)
	if _, err := ReadRandom(b); err != nil {
		return "", err
	}
	return fmt.Sprintf("phpworld-%x.sock", b), nil
}
