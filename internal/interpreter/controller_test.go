package interpreter

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/sadewadee/phpworld/internal/wire"
)

// fakeHost is a minimal Host used to exercise the callback dispatch
// table without a real PHP process on the other end of the pipe.
type fakeHost struct {
	props map[string]any
}

func (h *fakeHost) ResolveSymbol(name string) (any, bool) {
	if name == "known" {
		return "a-symbol", true
	}
	return nil, false
}

func (h *fakeHost) Construct(class string, args []any) (any, error) { return "constructed:" + class, nil }
func (h *fakeHost) Dispose(obj any) error                           { return nil }
func (h *fakeHost) GetProperty(obj any, name string) (any, error)   { return h.props[name], nil }
func (h *fakeHost) SetProperty(obj any, name string, value any) error {
	if h.props == nil {
		h.props = map[string]any{}
	}
	h.props[name] = value
	return nil
}
func (h *fakeHost) CallMethod(obj any, method string, args []any) (any, error) {
	return method + ":called", nil
}
func (h *fakeHost) Invoke(obj any, args []any) (any, error)             { return "invoked", nil }
func (h *fakeHost) GetIterator(obj any) (Iterator, error)               { return nil, nil }
func (h *fakeHost) ToString(obj any) (string, error)                    { return "stringified", nil }
func (h *fakeHost) IssetProperty(obj any, name string) (bool, error)    { _, ok := h.props[name]; return ok, nil }
func (h *fakeHost) UnsetProperty(obj any, name string) error            { delete(h.props, name); return nil }
func (h *fakeHost) EnumerateProps(obj any) ([]string, error)            { return []string{"a", "b"}, nil }
func (h *fakeHost) CallStatic(class, method string, args []any) (any, error) {
	return class + "::" + method, nil
}
func (h *fakeHost) Call(name string, args []any) (any, error) { return name + "()", nil }
func (h *fakeHost) JSONEncode(obj any) (string, error)         { return `{"k":1}`, nil }
func (h *fakeHost) Features(v any) uint32                      { return wire.HasLength }
func (h *fakeHost) WireValue(v any) (any, bool)                { return v, true }

// newTestController wires a Controller directly onto one end of a
// net.Pipe, bypassing launch/accept/handshake so the write/read/
// callback-dispatch machinery can be exercised against a fake PHP peer
// goroutine driving the other end.
func newTestController(t *testing.T) (*Controller, net.Conn) {
	t.Helper()
	clientConn, peerConn := net.Pipe()
	host := &fakeHost{}
	c := New(nil, host, slog.New(slog.NewTextHandler(io.Discard, nil)))
	c.conn = clientConn
	c.status = StatusReady
	c.resetHandleTables()
	t.Cleanup(func() { clientConn.Close(); peerConn.Close() })
	return c, peerConn
}

func TestExecSimpleResult(t *testing.T) {
	c, peer := newTestController(t)

	// The peer side must speak outbound-layout reads (it is acting as
	// PHP here), so read the request with the outbound framing directly.
	reqDone := make(chan struct{})
	go func() {
		defer close(reqDone)
		hdr := make([]byte, 8)
		if _, err := io.ReadFull(peer, hdr); err != nil {
			return
		}
		length := int(hdr[1])<<24 | int(hdr[2])<<16 | int(hdr[3])<<8 | int(hdr[4])
		if length > 0 {
			body := make([]byte, length)
			io.ReadFull(peer, body)
			pad := (8 - (8+length)%8) % 8
			if pad > 0 {
				discard := make([]byte, pad)
				io.ReadFull(peer, discard)
			}
		}
		wire.WriteInboundResult(peer, []byte(`42`))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, undef, err := c.Exec(ctx, wire.TypeGet, []byte(`"x"`))
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	if undef {
		t.Fatal("expected a defined result")
	}
	var v int
	if err := json.Unmarshal(result, &v); err != nil || v != 42 {
		t.Fatalf("expected 42, got %s (err=%v)", result, err)
	}
	<-reqDone
}

func TestExecServicesCallbackBeforeResult(t *testing.T) {
	c, peer := newTestController(t)

	go func() {
		hdr := make([]byte, 8)
		io.ReadFull(peer, hdr)
		length := int(hdr[1])<<24 | int(hdr[2])<<16 | int(hdr[3])<<8 | int(hdr[4])
		if length > 0 {
			body := make([]byte, length)
			io.ReadFull(peer, body)
			pad := (8 - (8+length)%8) % 8
			if pad > 0 {
				io.ReadFull(peer, make([]byte, pad))
			}
		}

		// Issue a CALL callback asking the host to invoke "greet".
		payload, _ := json.Marshal([]any{"greet", []any{}})
		wire.WriteInboundCallback(peer, wire.CallbackCall, controllerID, payload)

		// Read the DATA reply.
		replyHdr := make([]byte, 8)
		io.ReadFull(peer, replyHdr)
		rlen := int(replyHdr[1])<<24 | int(replyHdr[2])<<16 | int(replyHdr[3])<<8 | int(replyHdr[4])
		replyBody := make([]byte, rlen)
		io.ReadFull(peer, replyBody)
		pad := (8 - (8+rlen)%8) % 8
		if pad > 0 {
			io.ReadFull(peer, make([]byte, pad))
		}

		wire.WriteInboundResult(peer, []byte(`"done"`))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	result, _, err := c.Exec(ctx, wire.TypeGet, []byte(`"x"`))
	if err != nil {
		t.Fatalf("Exec: %v", err)
	}
	var v string
	json.Unmarshal(result, &v)
	if v != "done" {
		t.Fatalf("expected done, got %q", v)
	}
}

func TestExitIsIdempotent(t *testing.T) {
	c, peer := newTestController(t)

	go func() {
		hdr := make([]byte, 8)
		if _, err := io.ReadFull(peer, hdr); err != nil {
			return
		}
		wire.WriteInboundResult(peer, nil)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Exit(ctx); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if err := c.Exit(ctx); err != nil {
		t.Fatalf("second Exit should be a no-op, got: %v", err)
	}
	if c.Status() != StatusUninitialized {
		t.Fatalf("expected uninitialized status after exit, got %s", c.Status())
	}
}
