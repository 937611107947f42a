package interpreter

import "github.com/sadewadee/phpworld/internal/wire"

// Tracer receives a best-effort copy of every wire exchange flowing
// through a Controller, for the debug inspector.
// Delivery is synchronous but never blocks the protocol exchange on a
// slow or absent subscriber: implementations must not do I/O that can
// stall on the calling goroutine.
type Tracer interface {
	TraceOutbound(seq uint64, recordType wire.RecordType, payload []byte)
	TraceInbound(seq uint64, kind wire.FrameKind, callbackKind wire.CallbackKind, payload []byte)
}

// SetTracer attaches or detaches (nil) the inspector hook.
func (c *Controller) SetTracer(t Tracer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracer = t
}

func (c *Controller) traceOutbound(recordType wire.RecordType, payload []byte) {
	c.mu.Lock()
	t := c.tracer
	c.traceSeq++
	seq := c.traceSeq
	c.mu.Unlock()
	if t != nil {
		t.TraceOutbound(seq, recordType, payload)
	}
}

func (c *Controller) traceInbound(in *wire.Inbound) {
	c.mu.Lock()
	t := c.tracer
	c.traceSeq++
	seq := c.traceSeq
	c.mu.Unlock()
	if t == nil {
		return
	}
	switch in.Kind {
	case wire.FrameResult:
		t.TraceInbound(seq, in.Kind, 0, in.JSON)
	case wire.FrameCallback:
		t.TraceInbound(seq, in.Kind, in.CallbackKind, in.Payload)
	default:
		t.TraceInbound(seq, in.Kind, 0, nil)
	}
}
