//go:build !unix

package config

// unixSocketsSupported is always false on platforms without an AF_UNIX
// stream socket implementation (e.g. plan9, js/wasm).
func unixSocketsSupported() bool {
	return false
}
