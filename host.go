package phpworld

import (
	"sync"

	"github.com/sadewadee/phpworld/internal/interpreter"
	"github.com/sadewadee/phpworld/internal/wire"
)

// Optional narrow interfaces a registered Go value may implement to
// take over one dispatch-table row instead of falling back to the
// reflection-based default (hostreflect.go). Grounded on the standard
// library's own Marshaler-then-reflect fallback idiom (encoding/json):
// accept the narrowest interface that fits, reflect over everything
// else.
type (
	// PropertyGetter answers CLASS_GET for its receiver.
	PropertyGetter interface {
		GetProperty(name string) (any, error)
	}
	// PropertySetter answers CLASS_SET for its receiver.
	PropertySetter interface {
		SetProperty(name string, value any) error
	}
	// PropertyUnsetter answers CLASS_UNSET for its receiver.
	PropertyUnsetter interface {
		UnsetProperty(name string) error
	}
	// PropertyEnumerator answers CLASS_PROPS for its receiver.
	PropertyEnumerator interface {
		EnumerateProps() []string
	}
	// MethodCaller answers CLASS_CALL for its receiver, bypassing
	// reflection-based method lookup entirely.
	MethodCaller interface {
		CallMethod(method string, args []any) (any, error)
	}
	// Invoker answers CLASS_INVOKE for its receiver.
	Invoker interface {
		Invoke(args []any) (any, error)
	}
	// Disposer is notified when a host handle is dropped (DESTRUCT, or
	// interpreter exit releasing every outstanding handle).
	Disposer interface {
		Dispose() error
	}
	// Ranger produces the interpreter.Iterator CLASS_GET_ITERATOR
	// returns, for receivers that aren't a plain slice/array/map.
	Ranger interface {
		Range() (interpreter.Iterator, error)
	}
)

// goHost is the concrete, reflection-backed interpreter.Host behind
// every Interpreter. Symbols registered via Interpreter.Define and
// the Interpreter.OnSymbol resolver are its two symbol sources,
// consulted in that order.
type goHost struct {
	mu       sync.RWMutex
	interp   *Interpreter // set by New; nil only in direct unit tests
	globals  map[string]any
	resolver func(name string) (any, bool)
}

func newGoHost() *goHost {
	return &goHost{globals: make(map[string]any)}
}

// localize rehydrates interpreter.RemoteHandle values (the controller's
// revived form of a {PHP_WORLD_INST_ID} marker in callback arguments)
// into instance Proxies before user host code sees them, walking nested
// maps/slices the same way wire.Revive walked them on the way in.
func (h *goHost) localize(v any) any {
	switch t := v.(type) {
	case interpreter.RemoteHandle:
		if h.interp == nil {
			return t
		}
		return instanceProxy(h.interp, t.ID)
	case map[string]any:
		for k, val := range t {
			t[k] = h.localize(val)
		}
		return t
	case []any:
		for i, val := range t {
			t[i] = h.localize(val)
		}
		return t
	default:
		return v
	}
}

func (h *goHost) localizeAll(args []any) []any {
	for i, a := range args {
		args[i] = h.localize(a)
	}
	return args
}

func (h *goHost) setGlobal(name string, v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.globals[name] = v
}

func (h *goHost) getGlobal(name string) (any, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.globals[name]
	return v, ok
}

func (h *goHost) setResolver(f func(name string) (any, bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resolver = f
}

func (h *goHost) ResolveSymbol(name string) (any, bool) {
	if v, ok := h.getGlobal(name); ok {
		return v, true
	}
	h.mu.RLock()
	resolver := h.resolver
	h.mu.RUnlock()
	if resolver != nil {
		return resolver(name)
	}
	return nil, false
}

func (h *goHost) Construct(class string, args []any) (any, error) {
	v, ok := h.ResolveSymbol(class)
	if !ok {
		return nil, hostErrorf("no registered symbol %q", class)
	}
	args = h.localizeAll(args)
	switch ctor := v.(type) {
	case func([]any) (any, error):
		return ctor(args)
	case func([]any) any:
		return ctor(args), nil
	}
	return nil, hostErrorf("symbol %q is not constructible (register a func([]any) (any, error))", class)
}

func (h *goHost) Dispose(obj any) error {
	if d, ok := obj.(Disposer); ok {
		return d.Dispose()
	}
	return nil
}

func (h *goHost) GetProperty(obj any, name string) (any, error) {
	if g, ok := obj.(PropertyGetter); ok {
		return g.GetProperty(name)
	}
	return reflectGetProperty(obj, name)
}

func (h *goHost) SetProperty(obj any, name string, value any) error {
	value = h.localize(value)
	if s, ok := obj.(PropertySetter); ok {
		return s.SetProperty(name, value)
	}
	return reflectSetProperty(obj, name, value)
}

func (h *goHost) CallMethod(obj any, method string, args []any) (any, error) {
	args = h.localizeAll(args)
	if c, ok := obj.(MethodCaller); ok {
		return c.CallMethod(method, args)
	}
	return reflectCallMethod(obj, method, args)
}

func (h *goHost) Invoke(obj any, args []any) (any, error) {
	args = h.localizeAll(args)
	if iv, ok := obj.(Invoker); ok {
		return iv.Invoke(args)
	}
	switch fn := obj.(type) {
	case func([]any) (any, error):
		return fn(args)
	case func([]any) any:
		return fn(args), nil
	}
	return reflectInvoke(obj, args)
}

func (h *goHost) GetIterator(obj any) (interpreter.Iterator, error) {
	if r, ok := obj.(Ranger); ok {
		return r.Range()
	}
	return reflectIterator(obj)
}

func (h *goHost) ToString(obj any) (string, error) {
	return reflectToString(obj), nil
}

func (h *goHost) IssetProperty(obj any, name string) (bool, error) {
	return reflectIssetProperty(obj, name), nil
}

func (h *goHost) UnsetProperty(obj any, name string) error {
	if u, ok := obj.(PropertyUnsetter); ok {
		return u.UnsetProperty(name)
	}
	return reflectUnsetProperty(obj, name)
}

func (h *goHost) EnumerateProps(obj any) ([]string, error) {
	if e, ok := obj.(PropertyEnumerator); ok {
		return e.EnumerateProps(), nil
	}
	return reflectEnumerateProps(obj), nil
}

func (h *goHost) CallStatic(class, method string, args []any) (any, error) {
	obj, ok := h.ResolveSymbol(class)
	if !ok {
		return nil, hostErrorf("no registered symbol %q", class)
	}
	return h.CallMethod(obj, method, args)
}

func (h *goHost) Call(name string, args []any) (any, error) {
	obj, ok := h.ResolveSymbol(name)
	if !ok {
		return nil, hostErrorf("no registered symbol %q", name)
	}
	return h.Invoke(obj, args)
}

func (h *goHost) JSONEncode(obj any) (string, error) {
	return reflectJSONEncode(obj)
}

func (h *goHost) Features(v any) uint32 {
	return reflectFeatures(v)
}

// WireValue expresses a dispatch result as a JSON-ready value where
// possible: a materialized instance Proxy crosses as its
// {PHP_WORLD_INST_ID} marker, scalars and plain maps/slices cross by
// value, and everything else must become a new host handle (the
// controller registers it and replies with the id).
func (h *goHost) WireValue(v any) (any, bool) {
	if p, ok := v.(*Proxy); ok {
		if p.kind == kindInstance && len(p.path) == 0 {
			return markerValue(wire.PhpMarkerKey, p.instanceID), true
		}
		return nil, false
	}
	if isBasicJSONValue(v) {
		return v, true
	}
	return nil, false
}
