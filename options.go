package phpworld

import (
	"log/slog"

	"github.com/sadewadee/phpworld/internal/inspector"
)

// Option configures an Interpreter at construction.
type Option func(*Interpreter)

// WithLogger attaches a structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(i *Interpreter) {
		i.logger = logger
	}
}

// WithInspector attaches an inspector.Server as the interpreter's wire
// tracer: every outbound write and inbound frame
// is broadcast, msgpack-encoded, to whatever debug clients are
// connected to insp.Handler(). Off by default; callers mount
// insp.Handler() on their own http.ServeMux wherever they see fit.
func WithInspector(insp *inspector.Server) Option {
	return func(i *Interpreter) {
		i.inspector = insp
	}
}
