package interpreter

// Host is the callback target a Controller dispatches inbound PHP
// callback requests against. The root
// phpworld package implements it over its own object/symbol registry;
// Controller depends only on this interface so the protocol machinery
// never needs to know about Proxy or Interpreter types.
//
// Every method corresponds to one callback kind. Any
// error returned is reported to PHP as an IS_ERROR DATA reply and
// wrapped as a CallbackError by the controller.
type Host interface {
	// ResolveSymbol looks up name against the globals map, then the
	// OnSymbol resolver, as GET_CLASS requires.
	ResolveSymbol(name string) (any, bool)

	// Construct resolves class and invokes its constructor with args,
	// returning the new host-held object to register.
	Construct(class string, args []any) (any, error)

	// Dispose notifies obj, if it supports disposal, that its handle
	// was dropped (DESTRUCT, or exit-time release-all). Errors are
	// logged and swallowed by the caller.
	Dispose(obj any) error

	GetProperty(obj any, name string) (any, error)
	SetProperty(obj any, name string, value any) error
	CallMethod(obj any, method string, args []any) (any, error)
	Invoke(obj any, args []any) (any, error)
	GetIterator(obj any) (Iterator, error)
	ToString(obj any) (string, error)
	IssetProperty(obj any, name string) (bool, error)
	UnsetProperty(obj any, name string) error
	EnumerateProps(obj any) ([]string, error)
	CallStatic(class, method string, args []any) (any, error)
	Call(name string, args []any) (any, error)
	JSONEncode(obj any) (string, error)

	// Features reports the HAS_LENGTH|HAS_SIZE|HAS_ITERATOR bitmap
	// (wire.HasLength etc.) for a resolved class/symbol, used to
	// answer GET_CLASS.
	Features(v any) uint32

	// WireValue converts a dispatch result into a JSON-ready value when
	// possible (a scalar, plain map/slice, or a marker for a PHP-side
	// instance). ok == false means the value cannot cross by value and
	// must be registered as a new host handle instead.
	WireValue(v any) (jsonReady any, ok bool)
}

// Iterator is the host-side interface an exposed Go value can satisfy
// to support CLASS_GET_ITERATOR / CLASS_ITERATE:
// an async iterator preferred, then sync, then entries over own
// properties — the root package picks the concrete adapter; Controller
// only ever sees this uniform shape.
type Iterator interface {
	// Next advances the iterator, returning the next value and
	// whether iteration is already exhausted (done).
	Next() (value any, done bool, err error)
}

// IteratorHandle is what CLASS_GET_ITERATOR actually registers: a
// wrapper whose Next method yields one {value, done} entry per call, so
// the PHP side can step it with ordinary CLASS_CALL "next" requests.
type IteratorHandle struct {
	it Iterator
}

// Next advances the underlying iterator and returns its entry in the
// shape the PHP-side iterator wrapper consumes.
func (h *IteratorHandle) Next() (map[string]any, error) {
	v, done, err := h.it.Next()
	if err != nil {
		return nil, err
	}
	return map[string]any{"value": v, "done": done}, nil
}
