package phpworld

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"unicode"

	"github.com/sadewadee/phpworld/internal/interpreter"
	"github.com/sadewadee/phpworld/internal/wire"
)

// exportedName turns a PHP-facing property/method name into the
// exported Go identifier reflection can see ("count" -> "Count").
func exportedName(name string) string {
	if name == "" {
		return name
	}
	r := []rune(name)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

// indirect follows pointers down to the addressable value, reporting
// false for a nil pointer.
func indirect(rv reflect.Value) (reflect.Value, bool) {
	for rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return reflect.Value{}, false
		}
		rv = rv.Elem()
	}
	return rv, true
}

func reflectGetProperty(obj any, name string) (any, error) {
	if m, ok := obj.(map[string]any); ok {
		return m[name], nil
	}
	rv := reflect.ValueOf(obj)
	if ev, ok := indirect(rv); ok && ev.Kind() == reflect.Struct {
		if fv := ev.FieldByName(exportedName(name)); fv.IsValid() && fv.CanInterface() {
			return fv.Interface(), nil
		}
	}
	if mv := rv.MethodByName("Get" + exportedName(name)); mv.IsValid() {
		return callReflectMethod(mv, nil)
	}
	return nil, hostErrorf("no property %q on %T", name, obj)
}

func reflectSetProperty(obj any, name string, value any) error {
	if m, ok := obj.(map[string]any); ok {
		m[name] = value
		return nil
	}
	rv := reflect.ValueOf(obj)
	if ev, ok := indirect(rv); ok && ev.Kind() == reflect.Struct {
		if fv := ev.FieldByName(exportedName(name)); fv.IsValid() && fv.CanSet() {
			fv.Set(convertArg(value, fv.Type()))
			return nil
		}
	}
	if mv := rv.MethodByName("Set" + exportedName(name)); mv.IsValid() {
		_, err := callReflectMethod(mv, []any{value})
		return err
	}
	return hostErrorf("no settable property %q on %T", name, obj)
}

func reflectUnsetProperty(obj any, name string) error {
	if m, ok := obj.(map[string]any); ok {
		delete(m, name)
		return nil
	}
	return hostErrorf("cannot unset property %q on %T", name, obj)
}

func reflectIssetProperty(obj any, name string) bool {
	if m, ok := obj.(map[string]any); ok {
		_, ok := m[name]
		return ok
	}
	rv := reflect.ValueOf(obj)
	if ev, ok := indirect(rv); ok && ev.Kind() == reflect.Struct {
		return ev.FieldByName(exportedName(name)).IsValid()
	}
	return rv.MethodByName("Get" + exportedName(name)).IsValid()
}

func reflectEnumerateProps(obj any) []string {
	if m, ok := obj.(map[string]any); ok {
		names := make([]string, 0, len(m))
		for k := range m {
			names = append(names, k)
		}
		sort.Strings(names)
		return names
	}
	rv := reflect.ValueOf(obj)
	ev, ok := indirect(rv)
	if !ok || ev.Kind() != reflect.Struct {
		return nil
	}
	t := ev.Type()
	names := make([]string, 0, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		if f := t.Field(i); f.IsExported() {
			names = append(names, f.Name)
		}
	}
	return names
}

func reflectCallMethod(obj any, method string, args []any) (any, error) {
	rv := reflect.ValueOf(obj)
	mv := rv.MethodByName(exportedName(method))
	if !mv.IsValid() {
		return nil, hostErrorf("no method %q on %T", method, obj)
	}
	return callReflectMethod(mv, args)
}

func reflectInvoke(obj any, args []any) (any, error) {
	rv := reflect.ValueOf(obj)
	if rv.Kind() != reflect.Func {
		return nil, hostErrorf("%T is not invokable", obj)
	}
	return callReflectMethod(rv, args)
}

// callReflectMethod adapts JSON-decoded args onto mv's parameter types
// and splits its results into a single value plus a trailing error, the
// two result shapes every dispatch-table row expects.
func callReflectMethod(mv reflect.Value, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = hostErrorf("panic calling host method: %v", r)
		}
	}()

	mt := mv.Type()
	variadic := mt.IsVariadic()
	fixed := mt.NumIn()
	if variadic {
		fixed--
	}

	in := make([]reflect.Value, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch {
		case i < fixed:
			in = append(in, convertArg(args[i], mt.In(i)))
		case variadic:
			in = append(in, convertArg(args[i], mt.In(mt.NumIn()-1).Elem()))
		default:
			return nil, hostErrorf("too many arguments: method accepts %d", fixed)
		}
	}
	for len(in) < fixed {
		in = append(in, reflect.Zero(mt.In(len(in))))
	}

	out := mv.Call(in)
	return splitCallResults(out)
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func splitCallResults(out []reflect.Value) (any, error) {
	if len(out) == 0 {
		return nil, nil
	}
	last := out[len(out)-1]
	if last.Type().Implements(errorType) {
		var callErr error
		if !last.IsNil() {
			callErr = last.Interface().(error)
		}
		if len(out) == 1 {
			return nil, callErr
		}
		return out[0].Interface(), callErr
	}
	return out[0].Interface(), nil
}

// convertArg best-effort converts a JSON-decoded value (or a revived
// interpreter.RemoteHandle/*Proxy) into pt, falling back to the
// original value boxed in an interface{} parameter.
func convertArg(v any, pt reflect.Type) reflect.Value {
	if v == nil {
		return reflect.Zero(pt)
	}
	rv := reflect.ValueOf(v)
	if rv.Type().AssignableTo(pt) {
		return rv
	}
	if rv.Type().ConvertibleTo(pt) {
		switch pt.Kind() {
		case reflect.String, reflect.Bool:
			if rv.Type().Kind() == pt.Kind() {
				return rv.Convert(pt)
			}
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
			reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
			reflect.Float32, reflect.Float64:
			if isNumericKind(rv.Kind()) {
				return rv.Convert(pt)
			}
		}
	}
	if pt.Kind() == reflect.Interface {
		return reflect.ValueOf(v)
	}
	return reflect.Zero(pt)
}

func isNumericKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	default:
		return false
	}
}

func reflectToString(obj any) string {
	if s, ok := obj.(fmt.Stringer); ok {
		return s.String()
	}
	if s, ok := obj.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", obj)
}

func reflectJSONEncode(obj any) (string, error) {
	b, err := json.Marshal(obj)
	if err != nil {
		return "", hostErrorf("json-encoding %T: %v", obj, err)
	}
	return string(b), nil
}

// reflectFeatures reports the HAS_LENGTH|HAS_SIZE|HAS_ITERATOR bitmap
// GET_CLASS answers with, derived from v's reflect.Kind.
func reflectFeatures(v any) uint32 {
	var bits uint32
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.String:
		bits |= wire.HasLength | wire.HasSize | wire.HasIterator
	case reflect.Ptr, reflect.Struct:
		if ev, ok := indirect(rv); ok && ev.Kind() == reflect.Struct {
			bits |= wire.HasIterator // struct fields are enumerable via CLASS_PROPS
		}
	}
	if _, ok := v.(Ranger); ok {
		bits |= wire.HasIterator
	}
	return bits
}

// sliceIterator adapts a reflect.Value of Kind Slice/Array into an
// interpreter.Iterator.
type sliceIterator struct {
	rv  reflect.Value
	idx int
}

func (it *sliceIterator) Next() (any, bool, error) {
	if it.idx >= it.rv.Len() {
		return nil, true, nil
	}
	v := it.rv.Index(it.idx).Interface()
	it.idx++
	return v, false, nil
}

// mapIterator adapts a map into an interpreter.Iterator, in sorted key
// order for determinism across runs.
type mapIterator struct {
	rv   reflect.Value
	keys []reflect.Value
	idx  int
}

func newMapIterator(rv reflect.Value) *mapIterator {
	keys := rv.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return fmt.Sprint(keys[i].Interface()) < fmt.Sprint(keys[j].Interface())
	})
	return &mapIterator{rv: rv, keys: keys}
}

func (it *mapIterator) Next() (any, bool, error) {
	if it.idx >= len(it.keys) {
		return nil, true, nil
	}
	k := it.keys[it.idx]
	v := it.rv.MapIndex(k).Interface()
	it.idx++
	return map[string]any{"key": fmt.Sprint(k.Interface()), "value": v}, false, nil
}

func reflectIterator(obj any) (interpreter.Iterator, error) {
	if it, ok := obj.(interpreter.Iterator); ok {
		return it, nil
	}
	rv := reflect.ValueOf(obj)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		return &sliceIterator{rv: rv}, nil
	case reflect.Map:
		return newMapIterator(rv), nil
	}
	// Last resort: iterate the value's own enumerable properties as
	// {key, value} entries.
	names := reflectEnumerateProps(obj)
	if names == nil {
		return nil, hostErrorf("%T has no iterator", obj)
	}
	entries := make([]any, 0, len(names))
	for _, name := range names {
		v, _ := reflectGetProperty(obj, name)
		entries = append(entries, map[string]any{"key": name, "value": v})
	}
	return &sliceIterator{rv: reflect.ValueOf(entries)}, nil
}

// isBasicJSONValue reports whether v already marshals as a plain JSON
// value (mapping, array, or scalar), as opposed to needing a
// host-handle marker (values that are neither plain mappings nor
// plain arrays cross the bridge as new host-handle markers).
func isBasicJSONValue(v any) bool {
	switch v.(type) {
	case nil, bool, string,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64,
		json.RawMessage, map[string]any, []any:
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return true
	}
	return false
}
