package interpreter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/sadewadee/phpworld/internal/wire"
)

// PushFrame records the current high-water mark of PHP-allocated
// instance ids. Unlike most operations this
// never crosses the wire: PHP has no RT_PUSH_FRAME case, since the
// mark the host needs is exactly what it already tracks locally in
// remoteInstances as ids are revived off the wire.
func (c *Controller) PushFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.frames.Push(c.remoteInstances.HighWaterMark())
}

// PopFrame releases every PHP-side instance allocated since the
// matching PushFrame, via RT_POP_FRAME.
func (c *Controller) PopFrame(ctx context.Context) error {
	c.mu.Lock()
	mark, err := c.frames.Pop()
	c.mu.Unlock()
	if err != nil {
		return err
	}
	_, _, err = c.Exec(ctx, wire.TypePopFrame, []byte(strconv.FormatInt(int64(mark), 10)))
	return err
}

// NObjects returns the number of PHP-side instances currently registered.
func (c *Controller) NObjects(ctx context.Context) (int, error) {
	raw, _, err := c.Exec(ctx, wire.TypeNObjects, nil)
	if err != nil {
		return 0, err
	}
	var n int
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0, fmt.Errorf("phpworld: decoding n_objects result: %w", err)
	}
	return n, nil
}

// StdoutReader ends the current stdout segment (RT_END_STDOUT) and
// hands the caller the next segment's bytes directly, bypassing the
// default sink until DropStdoutReader releases it.
func (c *Controller) StdoutReader(ctx context.Context) (io.ReadCloser, error) {
	if err := c.ensureReady(ctx); err != nil {
		return nil, err
	}
	if c.mux == nil {
		return nil, fmt.Errorf("phpworld: no stdout stream available for this transport/disposition")
	}
	if _, _, err := c.execRaw(ctx, wire.TypeEndStdout, nil); err != nil {
		return nil, err
	}
	r, err := c.mux.GetReader(ctx)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.explicitReader = r
	c.activeSink = io.Discard // gate ensureStdoutSink's default hook until dropped
	c.mu.Unlock()
	return &ownedReader{c: c, ReadCloser: r}, nil
}

// ownedReader clears Controller.explicitReader on Close so a
// subsequent write path resumes draining to the default sink.
type ownedReader struct {
	c *Controller
	io.ReadCloser
}

func (r *ownedReader) Close() error {
	err := r.ReadCloser.Close()
	r.c.mu.Lock()
	r.c.explicitReader = nil
	r.c.activeSink = nil
	r.c.mu.Unlock()
	return err
}

// DropStdoutReader releases a reader obtained from StdoutReader without
// the caller needing to read it to EOF, discarding whatever remains of
// the current segment.
func (c *Controller) DropStdoutReader(ctx context.Context) error {
	c.mu.Lock()
	r := c.explicitReader
	c.mu.Unlock()
	if r == nil {
		return nil
	}
	io.Copy(io.Discard, r)
	return r.Close()
}

// ExposeHostValue registers an arbitrary Go value under a new
// host-object id, for use when a root-package value (e.g. a callback
// function passed as a PHP constructor argument) must cross the wire
// as a {DENO_WORLD_INST_ID: N} marker rather than a JSON literal.
// hostObjects is only allocated once the controller has initialized,
// so this forces that the same way every other operation does.
func (c *Controller) ExposeHostValue(ctx context.Context, v any) (int32, error) {
	if err := c.ensureReady(ctx); err != nil {
		return 0, err
	}
	return c.exposeObject(v), nil
}
