// Package stdoutmux splits a single remote byte stream into
// user-visible stdout segments and the sentinel that terminates each
// segment. Exactly one consumer (reader or sink) may
// be active at a time; others requested while one is active wait for
// it to finish.
package stdoutmux

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

// ErrAlreadyActive is returned when a second consumer tries to attach
// while one is still draining (should not happen given Mux's internal
// queuing, but surfaced for callers who bypass it).
var ErrAlreadyActive = errors.New("stdoutmux: a reader or sink is already active")

// Mux wraps an upstream byte source and a fixed end-mark sentinel.
type Mux struct {
	upstream io.Reader
	mark     []byte

	mu      sync.Mutex
	active  bool
	waiters []chan struct{}

	// rolling window retained across reads so a mark split across a
	// read boundary is never missed.
	window []byte
}

// New creates a multiplexer over upstream, splitting on mark.
func New(upstream io.Reader, mark []byte) *Mux {
	return &Mux{upstream: upstream, mark: append([]byte(nil), mark...)}
}

// acquire blocks until no other consumer is active, then marks this
// caller active. Returns a release function.
func (m *Mux) acquire(ctx context.Context) (func(), error) {
	for {
		m.mu.Lock()
		if !m.active {
			m.active = true
			m.mu.Unlock()
			return func() {
				m.mu.Lock()
				m.active = false
				var w chan struct{}
				if len(m.waiters) > 0 {
					w = m.waiters[0]
					m.waiters = m.waiters[1:]
				}
				m.mu.Unlock()
				if w != nil {
					close(w)
				}
			}, nil
		}
		wait := make(chan struct{})
		m.waiters = append(m.waiters, wait)
		m.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// segmentReader reads from upstream until mark is observed, then EOFs.
type segmentReader struct {
	m       *Mux
	release func()

	pending   []byte // bytes confirmed safe to emit, not yet copied out
	buf       []byte // unscanned window, may still contain a partial mark
	foundMark bool   // mark located; EOF once pending drains
	upErr     error  // upstream error to surface once pending drains
}

// GetReader returns a reader yielding bytes up to (but excluding) the
// next occurrence of the end-mark, then EOF. Only one reader/sink may
// be active at a time; this call blocks until it is this caller's turn.
func (m *Mux) GetReader(ctx context.Context) (io.ReadCloser, error) {
	release, err := m.acquire(ctx)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	carried := m.window
	m.window = nil
	m.mu.Unlock()
	return &segmentReader{m: m, release: release, buf: carried}, nil
}

// scan locates the mark in the unscanned buffer or promotes bytes that
// can no longer be part of a straddling mark into pending. Reports
// whether it produced pending bytes or found the mark.
func (r *segmentReader) scan() bool {
	mark := r.m.mark
	if idx := bytes.Index(r.buf, mark); idx >= 0 {
		r.pending = append(r.pending, r.buf[:idx]...)
		// Anything after the mark belongs to the next segment; Close
		// hands it back to the Mux for the next consumer.
		r.buf = append([]byte(nil), r.buf[idx+len(mark):]...)
		r.foundMark = true
		return true
	}
	// Retain the last len(mark)-1 bytes in case the mark straddles the
	// next read boundary; promote everything before that.
	keep := len(mark) - 1
	if keep < 0 {
		keep = 0
	}
	if len(r.buf) > keep {
		emitLen := len(r.buf) - keep
		r.pending = append(r.pending, r.buf[:emitLen]...)
		r.buf = append([]byte(nil), r.buf[emitLen:]...)
	}
	return len(r.pending) > 0 || r.foundMark
}

func (r *segmentReader) Read(p []byte) (int, error) {
	for {
		// Drain whatever has already been confirmed safe to emit.
		if len(r.pending) > 0 {
			n := copy(p, r.pending)
			r.pending = r.pending[n:]
			return n, nil
		}
		if r.foundMark {
			return 0, io.EOF
		}
		if r.upErr != nil {
			return 0, r.upErr
		}

		m := r.m

		// Scan whatever is already buffered (including bytes carried
		// over from an abandoned reader) before blocking on upstream.
		if r.scan() {
			continue
		}

		chunk := make([]byte, len(p)+len(m.mark))
		n, err := m.upstream.Read(chunk)
		if n > 0 {
			r.buf = append(r.buf, chunk[:n]...)
		}
		r.scan()

		if err != nil {
			if r.foundMark {
				// The segment completed in the same read the upstream
				// ended; any bytes past the mark stay in buf for Close
				// to hand back.
				continue
			}
			if err == io.EOF && len(r.buf) == 0 && len(r.pending) == 0 {
				return 0, io.EOF
			}
			// Upstream ended without ever producing the mark: flush
			// whatever remains (including the retained window), then
			// surface the upstream error.
			r.pending = append(r.pending, r.buf...)
			r.buf = nil
			r.upErr = err
			if len(r.pending) == 0 {
				return 0, err
			}
		}
	}
}

// Close returns any bytes still buffered (unread pending bytes plus
// the retained partial-mark window) to the Mux, so a reader abandoned
// mid-segment never loses bytes for the next consumer, then releases
// the single-consumer slot.
func (r *segmentReader) Close() error {
	if r.release != nil {
		if len(r.pending) > 0 || len(r.buf) > 0 {
			leftover := append(append([]byte(nil), r.pending...), r.buf...)
			r.m.mu.Lock()
			r.m.window = append(r.m.window, leftover...)
			r.m.mu.Unlock()
			r.pending, r.buf = nil, nil
		}
		r.release()
		r.release = nil
	}
	return nil
}

// SetWriter drains the current segment into sink. Used when PHP emits
// stdout during an operation for which no explicit reader is attached.
func (m *Mux) SetWriter(ctx context.Context, sink io.Writer) error {
	r, err := m.GetReader(ctx)
	if err != nil {
		return err
	}
	defer r.Close()
	_, err = io.Copy(sink, r)
	return err
}

// SetNone drains and discards the current segment, awaiting completion
// of whatever consumer is active.
func (m *Mux) SetNone(ctx context.Context) error {
	return m.SetWriter(ctx, io.Discard)
}
