package phpworld

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/sadewadee/phpworld/internal/proxypath"
	"github.com/sadewadee/phpworld/internal/wire"
)

// proxyKind tags which pattern family a Proxy
// addresses. A Proxy never mutates after construction: every chaining
// method returns a new value.
type proxyKind int

const (
	kindGlobal   proxyKind = iota // root-global family: constants and $variables
	kindClass                    // class-namespace family: A\B::X, A\B::$c[...], A\B::c(...)
	kindInstance                 // a materialized PHP object handle
	kindEval                     // Interpreter.Eval(code), not yet awaited
	kindError                    // a chaining error, surfaced at the next terminal op
)

// Proxy is a host-side handle onto a path into PHP's name/value
// space. Property and index access return a new Proxy with
// the component appended; nothing crosses the wire until a terminal
// operation (Await, Set, Delete, Call, New, Iterate, InstanceOf) is
// invoked. A Proxy is not safe to use after its Interpreter has exited,
// and does not participate in numeric coercion — there is deliberately
// no way to use one as a number or string without awaiting it first.
type Proxy struct {
	interp *Interpreter
	kind   proxyKind

	path proxypath.Path // chain of components; doubles as the instance property tail for kindInstance

	instanceID int32
	evalCode   string
	asThis     bool // kindEval only: Prop("this") was requested

	err error // sticky validation error from a failed Append
}

func rootProxy(i *Interpreter, classMode bool) *Proxy {
	kind := kindGlobal
	if classMode {
		kind = kindClass
	}
	return &Proxy{interp: i, kind: kind}
}

func instanceProxy(i *Interpreter, id int32) *Proxy {
	return &Proxy{interp: i, kind: kindInstance, instanceID: id}
}

func (p *Proxy) withPath(path proxypath.Path) *Proxy {
	np := *p
	np.path = path
	return &np
}

func (p *Proxy) withError(err error) *Proxy {
	np := *p
	np.kind = kindError
	np.err = err
	return &np
}

// Err reports the chaining error that aborted this Proxy's path, or
// nil if none occurred. Terminal operations return the same error.
func (p *Proxy) Err() error { return p.err }

// appendName is the shared implementation behind Get/Prop/Class(...)
// chaining for every kind that accumulates a proxypath.Path.
func (p *Proxy) appendName(name string) *Proxy {
	if p.err != nil {
		return p
	}
	switch p.kind {
	case kindGlobal, kindClass, kindInstance:
		np, err := proxypath.AppendName(p.path, name)
		if err != nil {
			return p.withError(wrapLocalError(err))
		}
		return p.withPath(np)
	default:
		return p.withError(localErrorf("phpworld: cannot access property %q on this proxy", name))
	}
}

func (p *Proxy) appendIndex(key string) *Proxy {
	if p.err != nil {
		return p
	}
	switch p.kind {
	case kindGlobal, kindClass, kindInstance:
		np, err := proxypath.AppendIndex(p.path, key)
		if err != nil {
			return p.withError(wrapLocalError(err))
		}
		return p.withPath(np)
	default:
		return p.withError(localErrorf("phpworld: cannot index this proxy"))
	}
}

// evalProp is the only chaining operation a kindEval proxy supports:
// Prop("this") requests CALL_EVAL_THIS's "always allocate a handle"
// variant instead of CALL_EVAL's plain result.
func (p *Proxy) evalProp(name string) *Proxy {
	if name != "this" {
		return p.withError(localErrorf("phpworld: eval proxies only support .Prop(\"this\"); Await first to chain further"))
	}
	np := *p
	np.asThis = true
	return &np
}

// Get appends a named component: a property on an instance, a
// namespace segment on a class path, or a constant/variable name at
// the root. Prop is a synonym, read more naturally at instance sites.
func (p *Proxy) Get(name string) *Proxy {
	if p.kind == kindEval {
		return p.evalProp(name)
	}
	return p.appendName(name)
}

// Prop is a synonym for Get.
func (p *Proxy) Prop(name string) *Proxy { return p.Get(name) }

// Index appends a subscript component, e.g. Global("$v").Index("k").
func (p *Proxy) Index(key string) *Proxy { return p.appendIndex(key) }

func tailKeys(tail proxypath.Path) []any {
	keys := make([]any, len(tail))
	for i, c := range tail {
		keys[i] = c.Name
	}
	return keys
}

func classSegmentNames(path proxypath.Path) []string {
	names := make([]string, len(path))
	for i, c := range path {
		names[i] = c.Name
	}
	return names
}

func hasVarComponent(path proxypath.Path) bool {
	for _, c := range path {
		if c.IsVar {
			return true
		}
	}
	return false
}

// encodeArgs converts args through Interpreter.encodeArg (marker
// substitution for *Proxy instances and host values) and marshals the
// result, the shape every CALL-family payload's trailing JSON expects.
func (p *Proxy) encodeArgs(ctx context.Context, args []any) ([]byte, error) {
	encoded := make([]any, len(args))
	for i, a := range args {
		v, err := p.interp.encodeArg(ctx, a)
		if err != nil {
			return nil, err
		}
		encoded[i] = v
	}
	return json.Marshal(encoded)
}

func payload(parts ...string) []byte {
	b := []byte(parts[0])
	for _, part := range parts[1:] {
		b = append(b, ' ')
		b = append(b, part...)
	}
	return b
}

// Await materializes the value this Proxy's path addresses, reviving
// any {PHP_WORLD_INST_ID} marker in the result into a child instance
// Proxy. ok is false when PHP reports the path as undefined (an unset
// global, unresolved class constant, or the like) without it being an
// error.
func (p *Proxy) Await(ctx context.Context) (value any, ok bool, err error) {
	if p.err != nil {
		return nil, false, p.err
	}

	switch p.kind {
	case kindEval:
		recordType := wire.TypeCallEval
		if p.asThis {
			recordType = wire.TypeCallEvalThis
		}
		raw, undef, err := p.interp.ctrl.Exec(ctx, recordType, []byte(p.evalCode))
		if err != nil {
			return nil, false, translateExecError(err)
		}
		if undef {
			return nil, false, nil
		}
		v, err := p.interp.reviveJSON(raw)
		return v, true, err

	case kindInstance:
		if len(p.path) == 0 {
			return p, true, nil // already a materialized handle
		}
		if len(p.path) == 1 && p.path[0].Name == "this" {
			return instanceProxy(p.interp, p.instanceID), true, nil
		}
		propName := p.path[0].Name
		subscriptJSON, err := json.Marshal(tailKeys(p.path[1:]))
		if err != nil {
			return nil, false, localErrorf("encoding subscript path: %v", err)
		}
		raw, undef, err := p.interp.ctrl.Exec(ctx, wire.TypeClassGet,
			payload(strconv.FormatInt(int64(p.instanceID), 10), propName, string(subscriptJSON)))
		if err != nil {
			return nil, false, translateExecError(err)
		}
		if undef {
			return nil, false, nil
		}
		v, err := p.interp.reviveJSON(raw)
		return v, true, err

	case kindGlobal:
		shape, err := proxypath.Classify(p.path, false)
		if err != nil {
			return nil, false, wrapLocalError(err)
		}
		var raw json.RawMessage
		var undef bool
		switch shape {
		case proxypath.ShapeConstant:
			name := proxypath.JoinClassName(classSegmentNames(p.path))
			raw, undef, err = p.interp.ctrl.Exec(ctx, wire.TypeConst, []byte(name))
		case proxypath.ShapeGlobalVar:
			name := p.path[0].Name
			subscriptJSON, jerr := json.Marshal(tailKeys(p.path[1:]))
			if jerr != nil {
				return nil, false, localErrorf("encoding subscript path: %v", jerr)
			}
			raw, undef, err = p.interp.ctrl.Exec(ctx, wire.TypeGet, payload(name, string(subscriptJSON)))
		default:
			return nil, false, localErrorf("phpworld: path is not readable")
		}
		if err != nil {
			return nil, false, translateExecError(err)
		}
		if undef {
			return nil, false, nil
		}
		v, err := p.interp.reviveJSON(raw)
		return v, true, err

	case kindClass:
		shape, err := proxypath.Classify(p.path, true)
		if err != nil {
			return nil, false, wrapLocalError(err)
		}
		var raw json.RawMessage
		var undef bool
		switch shape {
		case proxypath.ShapeClassConstant:
			names := classSegmentNames(p.path)
			class := proxypath.JoinClassName(names[:len(names)-1])
			constName := names[len(names)-1]
			raw, undef, err = p.interp.ctrl.Exec(ctx, wire.TypeConst, []byte(class+"::"+constName))
		case proxypath.ShapeClassStaticVar:
			classPath, varName, subscript := proxypath.Split(p.path)
			subscriptJSON, jerr := json.Marshal(tailKeys(subscript))
			if jerr != nil {
				return nil, false, localErrorf("encoding subscript path: %v", jerr)
			}
			raw, undef, err = p.interp.ctrl.Exec(ctx, wire.TypeClassStaticGet,
				payload(proxypath.JoinClassName(classPath), varName, string(subscriptJSON)))
		default:
			return nil, false, localErrorf("phpworld: path is not readable")
		}
		if err != nil {
			return nil, false, translateExecError(err)
		}
		if undef {
			return nil, false, nil
		}
		v, err := p.interp.reviveJSON(raw)
		return v, true, err
	}
	return nil, false, localErrorf("phpworld: path is not readable")
}

// Set assigns value at the path this Proxy addresses.
// Class constants and this-terminated chains cannot be set.
func (p *Proxy) Set(ctx context.Context, value any) error {
	if p.err != nil {
		return p.err
	}
	if n := len(p.path); n > 0 && !p.path[n-1].IsIdx && p.path[n-1].Name == "this" {
		return localErrorf("phpworld: this-terminated chains cannot be assigned")
	}

	encoded, err := p.interp.encodeArg(ctx, value)
	if err != nil {
		return err
	}
	valueJSON, err := json.Marshal(encoded)
	if err != nil {
		return localErrorf("encoding value: %v", err)
	}

	switch p.kind {
	case kindInstance:
		if len(p.path) != 1 || p.path[0].IsIdx {
			return localErrorf("phpworld: instance properties do not support subscripted assignment")
		}
		pairJSON, err := json.Marshal([]any{p.path[0].Name, encoded})
		if err != nil {
			return localErrorf("encoding property assignment: %v", err)
		}
		_, _, err = p.interp.ctrl.Exec(ctx, wire.TypeClassSet,
			payload(strconv.FormatInt(int64(p.instanceID), 10), string(pairJSON)))
		return translateExecError(err)

	case kindGlobal:
		shape, err := proxypath.Classify(p.path, false)
		if err != nil {
			return wrapLocalError(err)
		}
		if shape != proxypath.ShapeGlobalVar {
			return localErrorf("phpworld: constants cannot be assigned")
		}
		name := p.path[0].Name
		if len(p.path) == 1 {
			_, _, err = p.interp.ctrl.Exec(ctx, wire.TypeSet, payload(name, string(valueJSON)))
			return translateExecError(err)
		}
		pairJSON, err := json.Marshal([]any{tailKeys(p.path[1:]), encoded})
		if err != nil {
			return localErrorf("encoding path assignment: %v", err)
		}
		_, _, err = p.interp.ctrl.Exec(ctx, wire.TypeSetPath, payload(name, string(pairJSON)))
		return translateExecError(err)

	case kindClass:
		shape, err := proxypath.Classify(p.path, true)
		if err != nil {
			return wrapLocalError(err)
		}
		if shape != proxypath.ShapeClassStaticVar {
			return localErrorf("phpworld: class constants cannot be assigned")
		}
		classPath, varName, subscript := proxypath.Split(p.path)
		if len(subscript) > 0 {
			// bootstrap's static-property setter always replaces the
			// whole property; there is no subscripted write (only
			// read supports a subscript path). Documented as a known
			// asymmetry in DESIGN.md.
			return localErrorf("phpworld: class static properties do not support subscripted assignment")
		}
		_, _, err = p.interp.ctrl.Exec(ctx, wire.TypeClassStaticSet,
			payload(proxypath.JoinClassName(classPath), varName, string(valueJSON)))
		return translateExecError(err)
	}
	return localErrorf("phpworld: path is not assignable")
}

// Delete removes the value this Proxy addresses: unset a global, unset
// an instance property, or — for a bare instance Proxy or one
// terminated in the reserved "this" property — destruct the PHP
// instance.
func (p *Proxy) Delete(ctx context.Context) error {
	if p.err != nil {
		return p.err
	}

	switch p.kind {
	case kindInstance:
		if len(p.path) == 0 || (len(p.path) == 1 && p.path[0].Name == "this") {
			_, _, err := p.interp.ctrl.Exec(ctx, wire.TypeDestruct,
				[]byte(strconv.FormatInt(int64(p.instanceID), 10)))
			return translateExecError(err)
		}
		if len(p.path) != 1 || p.path[0].IsIdx {
			return localErrorf("phpworld: instance properties do not support subscripted deletion")
		}
		_, _, err := p.interp.ctrl.Exec(ctx, wire.TypeClassUnset,
			payload(strconv.FormatInt(int64(p.instanceID), 10), p.path[0].Name))
		return translateExecError(err)

	case kindGlobal:
		shape, err := proxypath.Classify(p.path, false)
		if err != nil {
			return wrapLocalError(err)
		}
		if shape != proxypath.ShapeGlobalVar {
			return localErrorf("phpworld: constants cannot be deleted")
		}
		name := p.path[0].Name
		if len(p.path) == 1 {
			_, _, err = p.interp.ctrl.Exec(ctx, wire.TypeUnset, []byte(name))
			return translateExecError(err)
		}
		subscriptJSON, err := json.Marshal(tailKeys(p.path[1:]))
		if err != nil {
			return localErrorf("encoding subscript path: %v", err)
		}
		_, _, err = p.interp.ctrl.Exec(ctx, wire.TypeUnsetPath, payload(name, string(subscriptJSON)))
		return translateExecError(err)

	case kindClass:
		return localErrorf("phpworld: class-rooted values cannot be deleted")
	}
	return localErrorf("phpworld: this proxy cannot be deleted")
}

// Call invokes the function, static method, instance method, or
// invokable object this Proxy addresses.
func (p *Proxy) Call(ctx context.Context, args ...any) (any, error) {
	if p.err != nil {
		return nil, p.err
	}
	argsJSON, err := p.encodeArgs(ctx, args)
	if err != nil {
		return nil, err
	}

	switch p.kind {
	case kindInstance:
		switch {
		case len(p.path) == 0:
			raw, _, err := p.interp.ctrl.Exec(ctx, wire.TypeClassInvoke,
				payload(strconv.FormatInt(int64(p.instanceID), 10), string(argsJSON)))
			if err != nil {
				return nil, translateExecError(err)
			}
			return p.interp.reviveJSON(raw)
		case len(p.path) == 1:
			raw, _, err := p.interp.ctrl.Exec(ctx, wire.TypeClassCall,
				payload(strconv.FormatInt(int64(p.instanceID), 10), p.path[0].Name, string(argsJSON)))
			if err != nil {
				return nil, translateExecError(err)
			}
			return p.interp.reviveJSON(raw)
		default:
			method := p.path[len(p.path)-1].Name
			prefixJSON, err := json.Marshal(tailKeys(p.path[:len(p.path)-1]))
			if err != nil {
				return nil, localErrorf("encoding call path: %v", err)
			}
			callPayload, err := json.Marshal([]json.RawMessage{prefixJSON, argsJSON})
			if err != nil {
				return nil, localErrorf("encoding call path: %v", err)
			}
			raw, _, err := p.interp.ctrl.Exec(ctx, wire.TypeClassCallPath,
				payload(strconv.FormatInt(int64(p.instanceID), 10), method, string(callPayload)))
			if err != nil {
				return nil, translateExecError(err)
			}
			return p.interp.reviveJSON(raw)
		}

	case kindGlobal:
		if hasVarComponent(p.path) || len(p.path) == 0 {
			return nil, localErrorf("phpworld: only name paths are callable")
		}
		if len(p.path) == 1 {
			if res, handled, err := p.callSpecial(ctx, p.path[0].Name, args, argsJSON); handled {
				return res, err
			}
		}
		name := proxypath.JoinClassName(classSegmentNames(p.path))
		raw, _, err := p.interp.ctrl.Exec(ctx, wire.TypeCall, payload(name, string(argsJSON)))
		if err != nil {
			return nil, translateExecError(err)
		}
		return p.interp.reviveJSON(raw)

	case kindClass:
		if hasVarComponent(p.path) || len(p.path) == 0 {
			return nil, localErrorf("phpworld: only name paths are callable")
		}
		names := classSegmentNames(p.path)
		class := proxypath.JoinClassName(names[:len(names)-1])
		method := names[len(names)-1]
		raw, _, err := p.interp.ctrl.Exec(ctx, wire.TypeClassStaticCall, payload(class, method, string(argsJSON)))
		if err != nil {
			return nil, translateExecError(err)
		}
		return p.interp.reviveJSON(raw)
	}
	return nil, localErrorf("phpworld: this proxy is not callable")
}

// callSpecial routes the language constructs PHP has no function_exists
// entry for — exit, eval, echo, include, include_once, require,
// require_once — through their dedicated record types, validating the
// argument count locally before any I/O.
func (p *Proxy) callSpecial(ctx context.Context, name string, args []any, argsJSON []byte) (any, bool, error) {
	includeTypes := map[string]wire.RecordType{
		"include":      wire.TypeCallInclude,
		"include_once": wire.TypeCallIncludeOnce,
		"require":      wire.TypeCallRequire,
		"require_once": wire.TypeCallRequireOnce,
	}

	switch name {
	case "exit":
		if len(args) != 0 {
			return nil, true, localErrorf("phpworld: exit takes no arguments")
		}
		return nil, true, translateExecError(p.interp.ctrl.Exit(ctx))

	case "eval":
		if len(args) != 1 {
			return nil, true, localErrorf("phpworld: eval takes exactly one argument")
		}
		code, ok := args[0].(string)
		if !ok {
			return nil, true, localErrorf("phpworld: eval takes a string argument")
		}
		raw, _, err := p.interp.ctrl.Exec(ctx, wire.TypeCallEval, []byte(code))
		if err != nil {
			return nil, true, translateExecError(err)
		}
		v, err := p.interp.reviveJSON(raw)
		return v, true, err

	case "echo":
		if len(args) == 0 {
			return nil, true, localErrorf("phpworld: echo takes at least one argument")
		}
		_, _, err := p.interp.ctrl.Exec(ctx, wire.TypeCallEcho, argsJSON)
		return nil, true, translateExecError(err)

	case "include", "include_once", "require", "require_once":
		if len(args) != 1 {
			return nil, true, localErrorf("phpworld: %s takes exactly one argument", name)
		}
		path, ok := args[0].(string)
		if !ok {
			return nil, true, localErrorf("phpworld: %s takes a string path", name)
		}
		raw, _, err := p.interp.ctrl.Exec(ctx, includeTypes[name], []byte(path))
		if err != nil {
			return nil, true, translateExecError(err)
		}
		v, err := p.interp.reviveJSON(raw)
		return v, true, err
	}
	return nil, false, nil
}

// New constructs a PHP instance of the class this Proxy names, e.g.
// Interpreter.Class("My", "Widget").New(ctx, 1, "a").
func (p *Proxy) New(ctx context.Context, args ...any) (*Proxy, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.kind != kindClass || hasVarComponent(p.path) || len(p.path) == 0 {
		return nil, localErrorf("phpworld: New requires a class-rooted, non-variable path")
	}
	argsJSON, err := p.encodeArgs(ctx, args)
	if err != nil {
		return nil, err
	}
	class := proxypath.JoinClassName(classSegmentNames(p.path))
	raw, _, err := p.interp.ctrl.Exec(ctx, wire.TypeConstruct, payload(class, string(argsJSON)))
	if err != nil {
		return nil, translateExecError(err)
	}
	v, err := p.interp.reviveJSON(raw)
	if err != nil {
		return nil, err
	}
	inst, ok := v.(*Proxy)
	if !ok {
		return nil, localErrorf("phpworld: construct did not return an instance handle")
	}
	return inst, nil
}

// Iterate begins iteration over this instance, e.g. a Traversable or a
// plain object's own properties.
func (p *Proxy) Iterate(ctx context.Context) (*Iterator, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.kind != kindInstance || len(p.path) != 0 {
		return nil, localErrorf("phpworld: Iterate requires a bare instance proxy")
	}
	raw, _, err := p.interp.ctrl.Exec(ctx, wire.TypeClassGetIterator,
		[]byte(strconv.FormatInt(int64(p.instanceID), 10)))
	if err != nil {
		return nil, translateExecError(err)
	}
	v, err := p.interp.reviveJSON(raw)
	if err != nil {
		return nil, err
	}
	inst, ok := v.(*Proxy)
	if !ok {
		return nil, localErrorf("phpworld: get_iterator did not return an instance handle")
	}
	return &Iterator{interp: p.interp, id: inst.instanceID}, nil
}

// ToString renders this instance through PHP's string conversion
// (CLASS_TO_STRING), honoring any __toString the class defines.
func (p *Proxy) ToString(ctx context.Context) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	if p.kind != kindInstance || len(p.path) != 0 {
		return "", localErrorf("phpworld: ToString requires a bare instance proxy")
	}
	raw, _, err := p.interp.ctrl.Exec(ctx, wire.TypeClassToString,
		[]byte(strconv.FormatInt(int64(p.instanceID), 10)))
	if err != nil {
		return "", translateExecError(err)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", localErrorf("decoding string conversion: %v", err)
	}
	return s, nil
}

// Isset reports whether the named property is set on this instance
// (CLASS_ISSET, PHP isset() semantics: false for both absent and null).
func (p *Proxy) Isset(ctx context.Context, name string) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	if p.kind != kindInstance || len(p.path) != 0 {
		return false, localErrorf("phpworld: Isset requires a bare instance proxy")
	}
	if _, err := proxypath.AppendName(nil, name); err != nil {
		return false, wrapLocalError(err)
	}
	raw, _, err := p.interp.ctrl.Exec(ctx, wire.TypeClassIsset,
		payload(strconv.FormatInt(int64(p.instanceID), 10), name))
	if err != nil {
		return false, translateExecError(err)
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err != nil {
		return false, localErrorf("decoding isset result: %v", err)
	}
	return b, nil
}

// Props enumerates this instance's public properties (CLASS_PROPS).
func (p *Proxy) Props(ctx context.Context) ([]string, error) {
	if p.err != nil {
		return nil, p.err
	}
	if p.kind != kindInstance || len(p.path) != 0 {
		return nil, localErrorf("phpworld: Props requires a bare instance proxy")
	}
	raw, _, err := p.interp.ctrl.Exec(ctx, wire.TypeClassProps,
		[]byte(strconv.FormatInt(int64(p.instanceID), 10)))
	if err != nil {
		return nil, translateExecError(err)
	}
	var names []string
	if err := json.Unmarshal(raw, &names); err != nil {
		return nil, localErrorf("decoding property names: %v", err)
	}
	return names, nil
}

// InstanceOf reports whether this instance is an instance of
// className, implemented over PHP's built-in
// is_a() rather than a dedicated wire command.
func (p *Proxy) InstanceOf(ctx context.Context, className string) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	if p.kind != kindInstance || len(p.path) != 0 {
		return false, localErrorf("phpworld: InstanceOf requires a bare instance proxy")
	}
	result, err := p.interp.Global("is_a").Call(ctx, p, className)
	if err != nil {
		return false, err
	}
	b, _ := result.(bool)
	return b, nil
}
