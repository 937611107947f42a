package inspector

import (
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sadewadee/phpworld/internal/wire"
	"github.com/vmihailenco/msgpack/v5"
)

func TestTraceWithNoClientsDoesNotBlock(t *testing.T) {
	s := New(slog.Default())
	s.TraceOutbound(1, wire.TypeGet, []byte(`"x"`))
	s.TraceInbound(2, wire.FrameResult, 0, []byte(`1`))
	if s.ClientCount() != 0 {
		t.Fatalf("expected no clients, got %d", s.ClientCount())
	}
}

func TestTraceBroadcastsToConnectedClient(t *testing.T) {
	s := New(slog.Default())
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for s.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if s.ClientCount() != 1 {
		t.Fatalf("expected 1 connected client, got %d", s.ClientCount())
	}

	s.TraceOutbound(7, wire.TypeCall, []byte(`["f",[]]`))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading trace event: %v", err)
	}

	var ev Event
	if err := msgpack.Unmarshal(data, &ev); err != nil {
		t.Fatalf("decoding trace event: %v", err)
	}
	if ev.Seq != 7 || ev.Direction != DirectionOutbound || ev.RecordType != wire.TypeCall {
		t.Fatalf("unexpected event: %+v", ev)
	}
}
