// Package inspector implements the optional, off-by-default debug
// trace streamer: it upgrades a
// gorilla/websocket connection per connected debug client and
// broadcasts a msgpack-encoded copy of every wire frame flowing
// through an interpreter.Controller onto a single fixed trace
// stream.
package inspector

import (
	"log/slog"
	"net/http"

	"github.com/sadewadee/phpworld/internal/wire"
)

// Server is an interpreter.Tracer that fans every traced frame out to
// connected debug clients over WebSocket. A nil *Server is not safe to
// use; an unattached Server (never registered via Controller.SetTracer)
// is simply idle, and never blocks the traffic it would have traced.
type Server struct {
	manager *Manager
	handler *Handler
	logger  *slog.Logger
}

// New creates an inspector Server. Mount Handler() on an HTTP mux to
// accept debug clients, and pass the Server to
// interpreter.Controller.SetTracer to start streaming.
func New(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	manager := NewManager(logger)
	return &Server{
		manager: manager,
		handler: NewHandler(manager, logger),
		logger:  logger,
	}
}

// Handler returns the http.Handler that upgrades debug-client
// connections; mount it at whatever path the embedding process
// chooses (e.g. "/debug/trace").
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ClientCount reports the number of connected debug clients.
func (s *Server) ClientCount() int {
	return s.manager.ClientCount()
}

// TraceOutbound implements interpreter.Tracer.
func (s *Server) TraceOutbound(seq uint64, recordType wire.RecordType, payload []byte) {
	s.broadcast(Event{
		Seq:        seq,
		Direction:  DirectionOutbound,
		RecordType: recordType,
		Payload:    payload,
	})
}

// TraceInbound implements interpreter.Tracer.
func (s *Server) TraceInbound(seq uint64, kind wire.FrameKind, callbackKind wire.CallbackKind, payload []byte) {
	s.broadcast(Event{
		Seq:          seq,
		Direction:    DirectionInbound,
		FrameKind:    kind,
		CallbackKind: callbackKind,
		Payload:      payload,
	})
}

func (s *Server) broadcast(ev Event) {
	if s.manager.ClientCount() == 0 {
		return
	}
	data, err := marshalMsgpack(ev)
	if err != nil {
		s.logger.Warn("inspector: encoding trace event", "error", err)
		return
	}
	go s.manager.Broadcast(data)
}
