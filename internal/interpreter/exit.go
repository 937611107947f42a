package interpreter

import (
	"context"
	"errors"
	"io"
	"os/exec"
	"time"

	"github.com/sadewadee/phpworld/internal/wire"
)

// asExitError unwraps a CLI child's Wait error into its numeric exit
// code, when the process ran and simply returned non-zero.
func asExitError(err error) (int, bool) {
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		return ee.ExitCode(), true
	}
	return 0, false
}

// Exit tears the bridge down: ask PHP to end the script
// cleanly (RT_EXIT), drop any active stdout reader, close the command
// connection, wait for the process (CLI) or drain the pending FastCGI
// response (FPM), release every host-held object with a dispose
// notification, and remove the unix socket file. Idempotent: calling
// Exit on an already-uninitialized controller is a no-op.
func (c *Controller) Exit(ctx context.Context) error {
	c.mu.Lock()
	if c.status == StatusUninitialized || c.status == StatusExiting {
		c.mu.Unlock()
		return nil
	}
	c.status = StatusExiting
	c.mu.Unlock()

	var exitErr error
	if c.conn != nil {
		// Best-effort: a dead connection makes RT_EXIT pointless but not
		// an error in itself, since the process is going away regardless.
		_, _, err := c.execRaw(ctx, wire.TypeExit, nil)
		if err != nil && err != io.EOF {
			exitErr = err
		}
	}

	if c.mux != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		c.mux.SetNone(drainCtx)
		cancel()
	}

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	waitErr := c.awaitProcess()

	if c.hostObjects != nil {
		c.hostObjects.DropAll(func(id int32, v any) {
			if id == controllerID || id == globalNamespaceID {
				return
			}
			if err := c.host.Dispose(v); err != nil {
				c.logger.Warn("dispose error during exit swallowed", "handle", id, "error", err)
			}
		})
	}

	c.teardownListener()

	c.mu.Lock()
	c.status = StatusUninitialized
	c.readErr = nil
	c.mu.Unlock()

	c.logger.Info("interpreter exited")

	if exitErr != nil {
		return exitErr
	}
	return waitErr
}

// awaitProcess waits for the CLI child to exit, or reads off the
// pending FastCGI response, classifying the outcome as
// ExitClean/ExitAbnormal/ExitNonZero. FastCGI's reported exit status
// is not reliable across all php-fpm versions, so a non-nil fcgi error
// here is treated as ExitAbnormal rather than decoded further.
func (c *Controller) awaitProcess() error {
	switch {
	case c.cmd != nil:
		err := c.cmd.Wait()
		c.cmd = nil
		if err == nil {
			return nil
		}
		if ee, ok := asExitError(err); ok {
			return &ExitError{Code: ee, Cause: err}
		}
		return &ExitError{Code: int(ExitAbnormal), Cause: err}
	case c.fcgiResp != nil:
		select {
		case fr := <-c.fcgiResp:
			c.fcgiResp = nil
			if fr.err != nil {
				return &ExitError{Code: int(ExitAbnormal), Cause: fr.err}
			}
			return nil
		default:
			// Response already drained by stdoutSource's goroutine.
			return nil
		}
	default:
		return nil
	}
}
