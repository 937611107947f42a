package interpreter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sadewadee/phpworld/internal/config"
	"github.com/sadewadee/phpworld/internal/scheduler"
	"github.com/sadewadee/phpworld/internal/wire"
)

// Exec is the write path + read path of the controller: ensure
// initialization, hook the stdout mux if nothing else owns it, write
// the framed command, then read frames until the matching result
// arrives — servicing any inbound callback requests inline along the
// way.
//
// Because the bridge allows only one outstanding protocol exchange per
// connection, a callback serviced here that itself issues
// a host->PHP call recurses into Exec on the same goroutine; the
// half-duplex wire naturally serializes the nested exchange before
// this call's own read loop resumes waiting for its result.
func (c *Controller) Exec(ctx context.Context, recordType wire.RecordType, payload []byte) (json.RawMessage, bool, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, false, err
	}
	type execOut struct {
		raw   json.RawMessage
		undef bool
	}
	// Serialize through the queue's current lane: ops at
	// the same nesting level run in submission order, while ops issued
	// during a callback dispatch land on the deeper lane Nest pushed and
	// run ahead of the callback's reply.
	v, err := scheduler.Await(c.queue.Submit(func() (any, error) {
		raw, undef, err := c.execRaw(ctx, recordType, payload)
		return execOut{raw: raw, undef: undef}, err
	}))
	if err != nil {
		return nil, false, err
	}
	out := v.(execOut)
	// Register PHP instance ids handed back in the result so PushFrame's
	// high-water mark covers them.
	var decoded any
	if len(out.raw) > 0 && json.Unmarshal(out.raw, &decoded) == nil {
		wire.Revive(decoded, wire.PhpMarkerKey, func(id int32) any {
			c.remoteInstances.Put(id, struct{}{})
			return nil
		})
	}
	return out.raw, out.undef, nil
}

// execRaw is Exec without the ensureReady gate, used by the exit path
// which issues RT_EXIT against an already-initialized
// connection while the controller's status is StatusExiting.
func (c *Controller) execRaw(ctx context.Context, recordType wire.RecordType, payload []byte) (json.RawMessage, bool, error) {
	if err := c.ensureStdoutSink(ctx); err != nil {
		return nil, false, err
	}
	if err := wire.WriteOutbound(c.conn, recordType, payload); err != nil {
		return nil, false, c.fail(err)
	}
	c.traceOutbound(recordType, payload)
	return c.readUntilResult(ctx)
}

// ensureStdoutSink hooks the mux to the configured disposition if no
// explicit reader or default sink is currently attached. The drain goroutine owns the mux until the segment ends
// (END_STDOUT or exit); activeSink gates re-hooking on every write.
func (c *Controller) ensureStdoutSink(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mux == nil || c.activeSink != nil {
		return nil
	}
	switch c.settings.StdoutDisposition {
	case config.StdoutNull:
		c.activeSink = io.Discard
		go func() {
			c.mux.SetNone(context.Background())
			c.clearActiveSink()
		}()
	case config.StdoutFD:
		sink := os.NewFile(uintptr(c.settings.StdoutFD), "phpworld-stdout-sink")
		if sink == nil {
			return fmt.Errorf("phpworld: invalid stdout_fd %d", c.settings.StdoutFD)
		}
		c.activeSink = sink
		go func() {
			c.mux.SetWriter(context.Background(), sink)
			c.clearActiveSink()
		}()
	case config.StdoutInherit, "":
		// Inherited CLI stdout bypasses the mux entirely (no pipe was
		// created in launchCLI); nothing to drain here.
	default:
		// Piped disposition is drained explicitly by callers via
		// StdoutReader; the write path never preempts it.
	}
	return nil
}

func (c *Controller) clearActiveSink() {
	c.mu.Lock()
	if c.explicitReader == nil {
		c.activeSink = nil
	}
	c.mu.Unlock()
}

func (c *Controller) readUntilResult(ctx context.Context) (json.RawMessage, bool, error) {
	for {
		in, err := wire.ReadInbound(c.conn)
		if err != nil {
			return nil, false, c.fail(err)
		}
		c.traceInbound(in)
		switch in.Kind {
		case wire.FrameNull:
			return []byte("null"), false, nil
		case wire.FrameUndefined:
			return nil, true, nil
		case wire.FrameResult:
			return in.JSON, false, nil
		case wire.FrameCallback:
			if in.CallbackKind == wire.CallbackRemoteError {
				return nil, false, decodeRemoteError(in.Payload)
			}
			if err := c.serviceCallback(ctx, in); err != nil {
				// Dispatch errors are reported to PHP as IS_ERROR DATA
				// replies inside serviceCallback; reaching here means
				// writing that reply itself failed, which is terminal.
				return nil, false, c.fail(err)
			}
		}
	}
}

// serviceCallback dispatches one inbound callback request against the
// Host and writes the DATA reply.
// Reentry discipline: the queue's nesting level is incremented for the
// duration, so operations the Host issues while servicing this
// callback are ordered ahead of this callback's own reply.
func (c *Controller) serviceCallback(ctx context.Context, in *wire.Inbound) error {
	c.queue.Nest()
	defer c.queue.Unnest()

	reply, err := c.dispatchCallback(ctx, in)
	if err != nil {
		return c.writeDataError(err)
	}
	return c.writeDataReply(reply)
}

// dataReply is the pre-flag-computed shape of a DATA frame body.
type dataReply struct {
	flags uint8
	body  []byte // raw bytes to send (JSON or a string, already encoded)
}

// valueReply encodes a dispatch result: by value when the Host can
// express it as JSON, otherwise as a freshly-registered host handle
// whose flags carry the discovered feature bitmap.
func (c *Controller) valueReply(v any) (*dataReply, error) {
	if jv, ok := c.host.WireValue(v); ok {
		return jsonReply(jv)
	}
	id := c.exposeObject(v)
	return &dataReply{
		flags: wire.FeatureFlags(c.host.Features(v)),
		body:  []byte(strconv.FormatInt(int64(id), 10)),
	}, nil
}

func (c *Controller) dispatchCallback(ctx context.Context, in *wire.Inbound) (*dataReply, error) {
	var args []any
	if len(in.Payload) > 0 {
		if err := json.Unmarshal(in.Payload, &args); err != nil {
			return nil, fmt.Errorf("phpworld: decoding callback payload: %w", err)
		}
	}
	args = c.reviveArgs(args)

	switch in.CallbackKind {
	case wire.CallbackGetClass:
		name, _ := argString(args, 0)
		v, ok := c.host.ResolveSymbol(name)
		if !ok {
			return jsonReply(0)
		}
		return jsonReply(c.host.Features(v) | wire.ClassExists)

	case wire.CallbackConstruct:
		name, _ := argString(args, 0)
		ctorArgs, _ := argSlice(args, 1)
		obj, err := c.host.Construct(name, ctorArgs)
		if err != nil {
			return nil, err
		}
		return jsonReply(c.exposeObject(obj))

	case wire.CallbackDestruct:
		obj, ok := c.hostObjects.Get(in.HostHandle)
		c.hostObjects.Release(in.HostHandle)
		if ok {
			if err := c.host.Dispose(obj); err != nil {
				c.logger.Warn("dispose error swallowed", "handle", in.HostHandle, "error", err)
			}
		}
		return nil, nil // no reply: fire-and-forget

	case wire.CallbackClassGet:
		obj, err := c.resolveHandle(in.HostHandle)
		if err != nil {
			return nil, err
		}
		name, _ := argString(args, 0)
		v, err := c.host.GetProperty(obj, name)
		if err != nil {
			return nil, err
		}
		return c.valueReply(v)

	case wire.CallbackClassSet:
		obj, err := c.resolveHandle(in.HostHandle)
		if err != nil {
			return nil, err
		}
		name, _ := argString(args, 0)
		val := argAny(args, 1)
		if err := c.host.SetProperty(obj, name, val); err != nil {
			return nil, err
		}
		return jsonReply(nil)

	case wire.CallbackClassCall:
		obj, err := c.resolveHandle(in.HostHandle)
		if err != nil {
			return nil, err
		}
		method, _ := argString(args, 0)
		callArgs, _ := argSlice(args, 1)
		v, err := c.host.CallMethod(obj, method, callArgs)
		if err != nil {
			return nil, err
		}
		return c.valueReply(v)

	case wire.CallbackClassInvoke:
		obj, err := c.resolveHandle(in.HostHandle)
		if err != nil {
			return nil, err
		}
		v, err := c.host.Invoke(obj, args)
		if err != nil {
			return nil, err
		}
		return c.valueReply(v)

	case wire.CallbackClassGetIterator:
		obj, err := c.resolveHandle(in.HostHandle)
		if err != nil {
			return nil, err
		}
		it, err := c.host.GetIterator(obj)
		if err != nil {
			return nil, err
		}
		id := c.exposeObject(&IteratorHandle{it: it})
		return &dataReply{
			flags: wire.FlagHasIterator,
			body:  []byte(strconv.FormatInt(int64(id), 10)),
		}, nil

	case wire.CallbackClassToString:
		obj, err := c.resolveHandle(in.HostHandle)
		if err != nil {
			return nil, err
		}
		s, err := c.host.ToString(obj)
		if err != nil {
			return nil, err
		}
		return stringReply(s)

	case wire.CallbackClassIsset:
		obj, err := c.resolveHandle(in.HostHandle)
		if err != nil {
			return nil, err
		}
		name, _ := argString(args, 0)
		ok, err := c.host.IssetProperty(obj, name)
		if err != nil {
			return nil, err
		}
		return jsonReply(ok)

	case wire.CallbackClassUnset:
		obj, err := c.resolveHandle(in.HostHandle)
		if err != nil {
			return nil, err
		}
		name, _ := argString(args, 0)
		if err := c.host.UnsetProperty(obj, name); err != nil {
			return nil, err
		}
		return jsonReply(nil)

	case wire.CallbackClassProps:
		obj, err := c.resolveHandle(in.HostHandle)
		if err != nil {
			return nil, err
		}
		names, err := c.host.EnumerateProps(obj)
		if err != nil {
			return nil, err
		}
		return jsonReply(names)

	case wire.CallbackClassStaticCall:
		class, _ := argString(args, 0)
		method, _ := argString(args, 1)
		callArgs, _ := argSlice(args, 2)
		v, err := c.host.CallStatic(class, method, callArgs)
		if err != nil {
			return nil, err
		}
		return c.valueReply(v)

	case wire.CallbackCall:
		name, _ := argString(args, 0)
		callArgs, _ := argSlice(args, 1)
		v, err := c.host.Call(name, callArgs)
		if err != nil {
			return nil, err
		}
		return c.valueReply(v)

	case wire.CallbackJSONEncode:
		obj, err := c.resolveHandle(in.HostHandle)
		if err != nil {
			return nil, err
		}
		s, err := c.host.JSONEncode(obj)
		if err != nil {
			return nil, err
		}
		return stringReply(s)

	default:
		return nil, fmt.Errorf("phpworld: unknown callback kind %d", in.CallbackKind)
	}
}

// decodeRemoteError turns a CB_REMOTE_ERROR payload ([file, line,
// message, trace], bootstrap.php's writeErrorResult) into a RemoteError.
// This is not a request awaiting a DATA reply: a top-level dispatch
// error ends the exchange, it isn't serviced like a real callback.
func decodeRemoteError(payload []byte) error {
	var fields [4]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return fmt.Errorf("phpworld: decoding remote error payload: %w", err)
	}
	file, _ := fields[0].(string)
	line, _ := fields[1].(float64)
	message, _ := fields[2].(string)
	trace, _ := fields[3].(string)
	return &RemoteError{File: file, Line: int(line), Message: message, Trace: trace}
}

func (c *Controller) resolveHandle(id int32) (any, error) {
	if id == controllerID || id == globalNamespaceID {
		v, _ := c.hostObjects.Get(id)
		return v, nil
	}
	v, ok := c.hostObjects.Get(id)
	if !ok {
		return nil, fmt.Errorf("phpworld: unknown host handle %d", id)
	}
	return v, nil
}

func (c *Controller) exposeObject(obj any) int32 {
	return c.hostObjects.Alloc(obj)
}

// reviveArgs walks decoded callback args, rehydrating any
// {PHP_WORLD_INST_ID: N} markers into remote-instance ids tracked by
// remoteInstances. The root package resolves these ids into live
// Proxy values; Controller only guarantees the id is registered.
func (c *Controller) reviveArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = wire.Revive(a, wire.PhpMarkerKey, func(id int32) any {
			c.remoteInstances.Put(id, struct{}{})
			return RemoteHandle{ID: id}
		})
	}
	return out
}

// RemoteHandle is the revived form of a {PHP_WORLD_INST_ID: N} marker
// appearing in a callback's arguments: a reference to a PHP-side
// instance the host may address by id via further commands. The root
// package wraps these in Proxy values.
type RemoteHandle struct{ ID int32 }

func jsonReply(v any) (*dataReply, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("phpworld: encoding callback reply: %w", err)
	}
	return &dataReply{flags: wire.FlagIsJSON, body: b}, nil
}

func stringReply(s string) (*dataReply, error) {
	return &dataReply{flags: wire.FlagIsString, body: []byte(s)}, nil
}

func (c *Controller) writeDataReply(r *dataReply) error {
	if r == nil {
		return nil // fire-and-forget callback (DESTRUCT): no reply frame
	}
	body := fmt.Sprintf("%d %s", r.flags, r.body)
	if err := wire.WriteOutbound(c.conn, wire.TypeData, []byte(body)); err != nil {
		return err
	}
	c.traceOutbound(wire.TypeData, []byte(body))
	return nil
}

func (c *Controller) writeDataError(err error) error {
	body := fmt.Sprintf("%d %s", wire.FlagIsError, err.Error())
	if werr := wire.WriteOutbound(c.conn, wire.TypeData, []byte(body)); werr != nil {
		return werr
	}
	c.traceOutbound(wire.TypeData, []byte(body))
	return nil
}

// fail records a terminal read/write error and synthesizes the
// terminal exit error. Subsequent queued operations surface this
// same error.
func (c *Controller) fail(err error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.readErr != nil {
		return c.readErr
	}
	code := -1
	if err == io.EOF {
		code = 0
	}
	exitErr := &ExitError{Code: code, Cause: err}
	c.readErr = exitErr
	c.status = StatusUninitialized
	return exitErr
}

// readInboundRaw reads one inbound-layout frame and returns its raw
// body without any JSON interpretation, used for the handshake key and
// init-file acknowledgement frames, which are
// plain text / null, not command-grammar JSON.
func readInboundRaw(r io.Reader) ([]byte, error) {
	in, err := wire.ReadInbound(r)
	if err != nil {
		return nil, err
	}
	switch in.Kind {
	case wire.FrameResult:
		return in.JSON, nil
	case wire.FrameNull:
		return nil, nil
	default:
		return nil, fmt.Errorf("phpworld: unexpected frame kind %d during handshake", in.Kind)
	}
}

func argString(args []any, i int) (string, bool) {
	if i >= len(args) {
		return "", false
	}
	s, ok := args[i].(string)
	return s, ok
}

func argSlice(args []any, i int) ([]any, bool) {
	if i >= len(args) {
		return nil, false
	}
	s, ok := args[i].([]any)
	return s, ok
}

func argAny(args []any, i int) any {
	if i >= len(args) {
		return nil
	}
	return args[i]
}
