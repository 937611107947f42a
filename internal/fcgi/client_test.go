package fcgi

import (
	"bytes"
	"context"
	"encoding/binary"
	"io"
	"net"
	"testing"
	"time"
)

// serveOneFastCGIRequest is a minimal FastCGI responder stand-in: it
// reads BEGIN_REQUEST, PARAMS (until empty), STDIN (until empty), then
// writes one STDOUT record followed by END_REQUEST. Good enough to
// exercise Client.Request without a real php-fpm.
func serveOneFastCGIRequest(t *testing.T, conn net.Conn, stdout []byte) {
	t.Helper()
	defer conn.Close()

	for emptyParams := false; !emptyParams; {
		var h header
		if err := binary.Read(conn, binary.BigEndian, &h); err != nil {
			t.Errorf("server: reading header: %v", err)
			return
		}
		body := make([]byte, h.ContentLength)
		io.ReadFull(conn, body)
		io.CopyN(io.Discard, conn, int64(h.PaddingLength))
		if h.Type == typeParams && h.ContentLength == 0 {
			emptyParams = true
		} else if h.Type == typeBeginRequest {
			continue
		} else if h.Type == typeParams {
			continue
		}
	}
	for emptyStdin := false; !emptyStdin; {
		var h header
		if err := binary.Read(conn, binary.BigEndian, &h); err != nil {
			t.Errorf("server: reading stdin header: %v", err)
			return
		}
		body := make([]byte, h.ContentLength)
		io.ReadFull(conn, body)
		io.CopyN(io.Discard, conn, int64(h.PaddingLength))
		if h.ContentLength == 0 {
			emptyStdin = true
		}
	}

	writeRec := func(typ uint8, content []byte) {
		pad := (8 - (len(content) % 8)) % 8
		h := header{Version: version1, Type: typ, RequestID: 1, ContentLength: uint16(len(content)), PaddingLength: uint8(pad)}
		var buf bytes.Buffer
		binary.Write(&buf, binary.BigEndian, h)
		buf.Write(content)
		buf.Write(make([]byte, pad))
		conn.Write(buf.Bytes())
	}
	writeRec(typeStdout, stdout)
	writeRec(typeEndRequest, make([]byte, 8))
}

func TestClientRequestRoundtrip(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serveOneFastCGIRequest(t, conn, []byte("hello from fpm"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c, err := Dial(ctx, "tcp", ln.Addr().String(), nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	defer c.Close()

	resp, err := c.Request(ctx, map[string]string{
		"SCRIPT_FILENAME": "/srv/bootstrap.php",
		"PHP_WORLD_HELO":  "somekey somemark somesocket someinit",
	})
	if err != nil {
		t.Fatalf("Request() failed: %v", err)
	}
	if string(resp.Stdout) != "hello from fpm" {
		t.Errorf("expected stdout %q, got %q", "hello from fpm", resp.Stdout)
	}
}

func TestDialInvalidAddress(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	if _, err := Dial(ctx, "tcp", "127.0.0.1:1", nil); err == nil {
		t.Error("expected error dialing unreachable address")
	}
}
