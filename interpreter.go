// Package phpworld implements a bidirectional embedding bridge between
// a Go host process and an external PHP interpreter: Go code addresses
// PHP globals, classes, and objects through lazily-built Proxy chains,
// while PHP code addresses Go values registered on the Interpreter
// through the same wire protocol in reverse.
//
// The wire framing, path-proxy classification, and callback dispatch
// live in internal/wire, internal/proxypath, and internal/interpreter
// respectively — this package is their public face.
package phpworld

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"

	"github.com/sadewadee/phpworld/internal/config"
	"github.com/sadewadee/phpworld/internal/inspector"
	"github.com/sadewadee/phpworld/internal/interpreter"
	"github.com/sadewadee/phpworld/internal/wire"
)

// Settings configures one Interpreter: transport (CLI child process or
// FastCGI against php-fpm), socket placement, and stdout disposition.
// Re-exported from internal/config so callers never import an internal
// package directly.
type Settings = config.Settings

// Transport and StdoutDisposition mirror internal/config's enums.
type (
	Transport         = config.Transport
	StdoutDisposition = config.StdoutDisposition
)

const (
	TransportCLI = config.TransportCLI
	TransportFPM = config.TransportFPM
)

const (
	StdoutInherit = config.StdoutInherit
	StdoutNull    = config.StdoutNull
	StdoutPiped   = config.StdoutPiped
	StdoutFD      = config.StdoutFD
)

// DefaultSettings returns Settings with the stock defaults: CLI
// transport, php binary "php", stdout inherited.
func DefaultSettings() Settings {
	return *config.Default()
}

// LoadSettings reads Settings from a YAML file (config.Load).
func LoadSettings(path string) (Settings, error) {
	s, err := config.Load(path)
	if err != nil {
		return Settings{}, err
	}
	return *s, nil
}

// Interpreter is one bridge to one long-lived PHP peer. It is safe for
// concurrent use by multiple goroutines; initialization happens lazily
// on the first operation.
type Interpreter struct {
	logger    *slog.Logger
	host      *goHost
	ctrl      *interpreter.Controller
	inspector *inspector.Server

	settings Settings
}

// New creates an Interpreter. Nothing is launched until the first
// operation against it.
func New(settings Settings, opts ...Option) *Interpreter {
	i := &Interpreter{
		settings: settings,
		host:     newGoHost(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(i)
	}
	i.host.interp = i
	i.ctrl = interpreter.New(&i.settings, i.host, i.logger)
	if i.inspector != nil {
		i.ctrl.SetTracer(i.inspector)
	}
	return i
}

// Inspector returns the debug trace server attached via WithInspector,
// or nil if none was configured.
func (i *Interpreter) Inspector() *inspector.Server {
	return i.inspector
}

// Global returns a proxy rooted at a global constant or (if name
// starts with '$') global variable.
func (i *Interpreter) Global(name string) *Proxy {
	return rootProxy(i, false).appendName(name)
}

// Class returns a proxy rooted at a class namespace path, e.g.
// Class("My", "App", "Widget") addresses class My\App\Widget.
func (i *Interpreter) Class(path ...string) *Proxy {
	p := rootProxy(i, true)
	for _, seg := range path {
		p = p.appendName(seg)
	}
	return p
}

// Eval returns a proxy over the result of evaluating code as a PHP
// expression.
func (i *Interpreter) Eval(code string) *Proxy {
	return &Proxy{interp: i, kind: kindEval, evalCode: code}
}

// Define registers a Go value under name in the host's symbol table,
// making it reachable from PHP as DenoWorld\<name> (classes and
// callables) or as an argument source for DenoWorld::<name>(...)
// calls. Constructible symbols are funcs of the form
// func([]any) (any, error) or func([]any) any.
func (i *Interpreter) Define(name string, value any) {
	i.host.setGlobal(name, value)
}

// OnSymbol installs the fallback resolver for class/function names PHP
// asks about; it is consulted only after the symbols registered via
// Define.
func (i *Interpreter) OnSymbol(resolver func(name string) (any, bool)) {
	i.host.setResolver(resolver)
}

// NObjects returns the number of PHP-side instances currently registered.
func (i *Interpreter) NObjects(ctx context.Context) (int, error) {
	n, err := i.ctrl.NObjects(ctx)
	return n, translateExecError(err)
}

// PushFrame saves the current high-water mark of PHP-allocated
// instance ids, for later release via PopFrame.
func (i *Interpreter) PushFrame() {
	i.ctrl.PushFrame()
}

// PopFrame releases every PHP-side instance allocated since the
// matching PushFrame.
func (i *Interpreter) PopFrame() error {
	return translateExecError(i.ctrl.PopFrame(context.Background()))
}

// StdoutReader hands the caller the PHP process's stdout for the next
// segment, bypassing the configured default sink until released.
func (i *Interpreter) StdoutReader(ctx context.Context) (io.ReadCloser, error) {
	r, err := i.ctrl.StdoutReader(ctx)
	return r, translateExecError(err)
}

// DropStdoutReader releases a reader obtained from StdoutReader.
func (i *Interpreter) DropStdoutReader(ctx context.Context) error {
	return translateExecError(i.ctrl.DropStdoutReader(ctx))
}

// Exit ends the PHP process cleanly and releases all resources.
// Idempotent.
func (i *Interpreter) Exit(ctx context.Context) error {
	return translateExecError(i.ctrl.Exit(ctx))
}

// reviveJSON decodes raw into a generic Go value, rehydrating any
// {PHP_WORLD_INST_ID: N} marker into an instance-rooted Proxy.
func (i *Interpreter) reviveJSON(raw json.RawMessage) (any, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, localErrorf("decoding result: %v", err)
	}
	return wire.Revive(v, wire.PhpMarkerKey, func(id int32) any {
		return instanceProxy(i, id)
	}), nil
}

// encodeArg turns a Go value bound for a PHP-facing JSON payload into
// its wire representation: a *Proxy rooted at a PHP instance becomes a
// {PHP_WORLD_INST_ID: N} marker, a plain JSON-capable value is used
// as-is, and anything else is registered as a new host object and sent
// as a {DENO_WORLD_INST_ID: N} marker.
func (i *Interpreter) encodeArg(ctx context.Context, v any) (any, error) {
	if p, ok := v.(*Proxy); ok {
		if p.kind != kindInstance {
			return nil, localErrorf("proxy argument must be a materialized PHP instance (call Await first)")
		}
		return markerValue(wire.PhpMarkerKey, p.instanceID), nil
	}
	if isBasicJSONValue(v) {
		return v, nil
	}
	id, err := i.ctrl.ExposeHostValue(ctx, v)
	if err != nil {
		return nil, translateExecError(err)
	}
	return markerValue(wire.HostMarkerKey, id), nil
}

func markerValue(key string, id int32) map[string]int32 {
	return map[string]int32{key: id}
}
