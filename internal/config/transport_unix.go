//go:build unix

package config

import "golang.org/x/sys/unix"

// unixSocketsSupported probes whether AF_UNIX stream sockets can be
// created on this platform; where they cannot, the listener falls
// back to TCP loopback silently.
func unixSocketsSupported() bool {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return false
	}
	unix.Close(fd)
	return true
}
