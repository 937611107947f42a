// Package fcgi implements a minimal FastCGI/1.0 client, used by
// interpreter.Controller in FPM mode to launch the bootstrap script
// against a PHP-FPM pool. The standard
// library's net/http/fcgi is server-side only; no FastCGI client
// package is importable from anywhere in the retrieved corpus, so this
// one is grounded on the shape of a reference client implementation
// (record framing, padding-to-8, dial timeout/config) rather than an
// example repo's go.mod.
package fcgi

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	version1 = 1

	typeBeginRequest = 1
	typeEndRequest   = 3
	typeParams       = 4
	typeStdin        = 5
	typeStdout       = 6
	typeStderr       = 7

	roleResponder = 1
)

type header struct {
	Version       uint8
	Type          uint8
	RequestID     uint16
	ContentLength uint16
	PaddingLength uint8
	Reserved      uint8
}

// Config tunes Client dial and write behavior.
type Config struct {
	ConnectTimeout time.Duration
	MaxWriteSize   int
}

func (c *Config) withDefaults() *Config {
	if c == nil {
		c = &Config{}
	}
	out := *c
	if out.ConnectTimeout == 0 {
		out.ConnectTimeout = 5 * time.Second
	}
	if out.MaxWriteSize == 0 {
		out.MaxWriteSize = 65500
	}
	return &out
}

// Response is a parsed FastCGI responder reply: the stdout stream
// (headers are not parsed — the bootstrap script never emits an HTTP
// response, only diagnostic output and eventually the end-mark) plus
// anything PHP wrote to stderr.
type Response struct {
	Stdout []byte
	Stderr []byte
}

// Client speaks the FastCGI/1.0 responder role against a single
// upstream connection. Each Client is good for exactly one request:
// the bootstrap launch never pipelines further requests on the same
// connection.
type Client struct {
	conn   net.Conn
	cfg    *Config
	reqID  uint16
}

// Dial opens a FastCGI connection to addr (network is "unix" or "tcp").
func Dial(ctx context.Context, network, addr string, cfg *Config) (*Client, error) {
	cfg = cfg.withDefaults()
	d := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("fcgi: dialing %s %s: %w", network, addr, err)
	}
	return &Client{conn: conn, cfg: cfg, reqID: 1}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) writeRecord(typ uint8, content []byte) error {
	pad := (8 - (len(content) % 8)) % 8
	h := header{
		Version:       version1,
		Type:          typ,
		RequestID:     c.reqID,
		ContentLength: uint16(len(content)),
		PaddingLength: uint8(pad),
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.BigEndian, h); err != nil {
		return err
	}
	buf.Write(content)
	if pad > 0 {
		buf.Write(make([]byte, pad))
	}
	_, err := c.conn.Write(buf.Bytes())
	return err
}

// writeStdin streams body over STDIN records chunked to MaxWriteSize,
// followed by the empty STDIN record that marks end-of-input.
func (c *Client) writeStdin(body []byte) error {
	for len(body) > 0 {
		n := c.cfg.MaxWriteSize
		if n > len(body) {
			n = len(body)
		}
		if err := c.writeRecord(typeStdin, body[:n]); err != nil {
			return err
		}
		body = body[n:]
	}
	return c.writeRecord(typeStdin, nil)
}

func encodeLen(w *bytes.Buffer, n int) {
	if n < 128 {
		w.WriteByte(byte(n))
		return
	}
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n)|(1<<31))
	w.Write(b[:])
}

func (c *Client) writeParams(params map[string]string) error {
	var buf bytes.Buffer
	for k, v := range params {
		encodeLen(&buf, len(k))
		encodeLen(&buf, len(v))
		buf.WriteString(k)
		buf.WriteString(v)
	}
	if buf.Len() > 0 {
		if err := c.writeRecord(typeParams, buf.Bytes()); err != nil {
			return err
		}
	}
	return c.writeRecord(typeParams, nil) // terminating empty PARAMS record
}

// Request performs one FastCGI responder request: params identify the
// script (SCRIPT_FILENAME etc.) and carry the HELO payload as a custom
// parameter; stdin is empty. It blocks until END_REQUEST or ctx is done.
func (c *Client) Request(ctx context.Context, params map[string]string) (*Response, error) {
	return c.RequestWithBody(ctx, params, nil)
}

// RequestWithBody is Request plus a request body streamed over one or
// more STDIN records (chunked to cfg.MaxWriteSize, terminated by an
// empty STDIN record), for the front-proxy's HTTP->FastCGI forwarding
// path where the inbound request may carry a body. The bootstrap wire
// protocol never sends one, so Request's nil-body shortcut covers it.
func (c *Client) RequestWithBody(ctx context.Context, params map[string]string, stdin []byte) (*Response, error) {
	if dl, ok := ctx.Deadline(); ok {
		_ = c.conn.SetDeadline(dl)
		defer c.conn.SetDeadline(time.Time{})
	}

	var beginBody [8]byte
	binary.BigEndian.PutUint16(beginBody[0:2], roleResponder)
	if err := c.writeRecord(typeBeginRequest, beginBody[:]); err != nil {
		return nil, fmt.Errorf("fcgi: writing begin-request: %w", err)
	}
	if err := c.writeParams(params); err != nil {
		return nil, fmt.Errorf("fcgi: writing params: %w", err)
	}
	if err := c.writeStdin(stdin); err != nil {
		return nil, fmt.Errorf("fcgi: writing stdin: %w", err)
	}

	resp := &Response{}
	for {
		var h header
		if err := binary.Read(c.conn, binary.BigEndian, &h); err != nil {
			return nil, fmt.Errorf("fcgi: reading record header: %w", err)
		}
		body := make([]byte, h.ContentLength)
		if h.ContentLength > 0 {
			if _, err := io.ReadFull(c.conn, body); err != nil {
				return nil, fmt.Errorf("fcgi: reading record body: %w", err)
			}
		}
		if h.PaddingLength > 0 {
			if _, err := io.CopyN(io.Discard, c.conn, int64(h.PaddingLength)); err != nil {
				return nil, fmt.Errorf("fcgi: reading record padding: %w", err)
			}
		}

		switch h.Type {
		case typeStdout:
			resp.Stdout = append(resp.Stdout, body...)
		case typeStderr:
			resp.Stderr = append(resp.Stderr, body...)
		case typeEndRequest:
			return resp, nil
		}
	}
}
