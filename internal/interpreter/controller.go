// Package interpreter implements the host-side controller of the
// bridge: lifecycle, the write/read loop over the framing codec, and
// the inbound callback dispatch table.
package interpreter

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/exec"
	"sync"

	"github.com/sadewadee/phpworld/internal/config"
	"github.com/sadewadee/phpworld/internal/fcgi"
	"github.com/sadewadee/phpworld/internal/handle"
	"github.com/sadewadee/phpworld/internal/scheduler"
	"github.com/sadewadee/phpworld/internal/stdoutmux"
)

// Status is the lifecycle state machine of a Controller.
type Status int

const (
	StatusUninitialized Status = iota
	StatusInitializing
	StatusReady
	StatusExiting
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusInitializing:
		return "initializing"
	case StatusReady:
		return "ready"
	case StatusExiting:
		return "exiting"
	default:
		return "unknown"
	}
}

// hostObjectsStartID: ids 0 and 1 of the
// host-object table are pre-populated with the controller itself and
// the host global namespace; user ids start at 2.
const (
	hostObjectsStartID = 2
	controllerID       = int32(0)
	globalNamespaceID  = int32(1)
)

// Controller implements the lifecycle, write path, read path, and exit
// path of the bridge. One Controller backs exactly one
// phpworld.Interpreter; multiple Controllers are fully independent.
type Controller struct {
	settings *config.Settings
	host     Host
	logger   *slog.Logger

	mu     sync.Mutex
	status Status

	listener  net.Listener
	conn      net.Conn
	cmd       *exec.Cmd       // CLI transport only
	cliStdout io.Reader       // CLI transport only, when stdout isn't "inherit"
	fcgiResp  chan fcgiResult // FPM transport only

	mux        *stdoutmux.Mux
	activeSink io.Writer // non-nil while the write path owns SetWriter on the mux

	endMark []byte

	// remoteInstances tracks ids PHP allocates for instances it hands
	// back to the host (constructed objects, class-get-this results,
	// iterators); the host stores nothing but presence, used for
	// StackFrame high-water-mark accounting.
	remoteInstances *handle.Table[struct{}]
	frames          *handle.Stack

	// hostObjects are Go values PHP references by id; ids 0/1 are the controller and
	// global namespace mirrors, recreated on every re-init.
	hostObjects *handle.Table[any]

	queue *scheduler.Queue

	readErr error // sticky: set once the connection fails terminally

	explicitReader io.ReadCloser // non-nil while a caller-owned StdoutReader is attached

	tracer   Tracer
	traceSeq uint64
}

type fcgiResult struct {
	resp *fcgi.Response
	err  error
}

// New creates a Controller. It does not spawn or connect anything
// until the first operation (lazy initialization).
func New(settings *config.Settings, host Host, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		settings: settings,
		host:     host,
		logger:   logger,
		status:   StatusUninitialized,
		frames:   &handle.Stack{},
		queue:    scheduler.New(),
	}
}

// Status reports the current lifecycle state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Queue exposes the scheduler queue so Proxy operations can serialize
// through it without Controller needing to know about proxy shapes.
func (c *Controller) Queue() *scheduler.Queue { return c.queue }

// ensureReady performs lazy initialization if
// the controller is not already ready, re-entering from exited state
// transparently (InterpreterStatus: "after exit the next operation
// re-enters initialization").
func (c *Controller) ensureReady(ctx context.Context) error {
	c.mu.Lock()
	status := c.status
	c.mu.Unlock()

	switch status {
	case StatusReady:
		return nil
	case StatusInitializing:
		return fmt.Errorf("phpworld: interpreter is already initializing")
	}

	c.mu.Lock()
	c.status = StatusInitializing
	c.mu.Unlock()

	if err := c.initialize(ctx); err != nil {
		c.mu.Lock()
		c.status = StatusUninitialized
		c.mu.Unlock()
		return err
	}

	c.mu.Lock()
	c.status = StatusReady
	c.readErr = nil // a fresh connection starts with a clean slate
	c.mu.Unlock()
	c.logger.Info("interpreter ready", "transport", c.settings.Transport)
	return nil
}

// initialize runs the Initialize/Launch/Accept/Handshake/Init-file
// steps in order.
func (c *Controller) initialize(ctx context.Context) error {
	key, endMark, err := c.generateSecrets()
	if err != nil {
		return fmt.Errorf("phpworld: generating handshake secrets: %w", err)
	}
	c.endMark = endMark

	ls, err := c.settings.ChooseListener()
	if err != nil {
		return fmt.Errorf("phpworld: choosing listener: %w", err)
	}
	ln, err := net.Listen(ls.Network, ls.Address)
	if err != nil {
		return fmt.Errorf("phpworld: listening on %s %s: %w", ls.Network, ls.Address, err)
	}
	c.listener = ln

	helo := assembleHelo(key, endMark, ls.URL(ln.Addr()), c.settings.InitFile)

	if err := c.launch(ctx, helo); err != nil {
		ln.Close()
		return err
	}

	// A connection presenting the wrong key is rejected and the accept
	// loop resumed; anything else on the loopback
	// port is not our PHP peer.
	for {
		conn, err := c.accept(ctx)
		if err != nil {
			c.teardownListener()
			return err
		}
		if err := c.handshake(conn, key); err != nil {
			conn.Close()
			if ctx.Err() != nil {
				c.teardownListener()
				return ctx.Err()
			}
			c.logger.Warn("rejected connection with bad handshake", "error", err)
			continue
		}
		c.conn = conn
		break
	}

	if c.settings.InitFile != "" {
		if err := c.readInitAck(); err != nil {
			c.conn.Close()
			c.teardownListener()
			return err
		}
	}

	if src := c.stdoutSource(); src != nil {
		c.mux = stdoutmux.New(src, endMark)
	}
	c.resetHandleTables()

	return nil
}

func (c *Controller) generateSecrets() (key string, endMark []byte, err error) {
	keyBytes := make([]byte, 32)
	if _, err := config.ReadRandom(keyBytes); err != nil {
		return "", nil, err
	}
	mark := make([]byte, 32)
	if _, err := config.ReadRandom(mark); err != nil {
		return "", nil, err
	}
	return base64.StdEncoding.EncodeToString(keyBytes), mark, nil
}

func assembleHelo(key string, endMark []byte, socketURL, initFile string) string {
	b64 := base64.StdEncoding.EncodeToString
	return fmt.Sprintf("%s %s %s %s",
		key,
		b64(endMark),
		b64([]byte(socketURL)),
		b64([]byte(initFile)),
	)
}

func (c *Controller) resetHandleTables() {
	c.remoteInstances = handle.New[struct{}](0)
	c.hostObjects = handle.New[any](hostObjectsStartID)
	c.hostObjects.Put(controllerID, c)
	c.hostObjects.Put(globalNamespaceID, c.host)
}

func (c *Controller) teardownListener() {
	if c.listener == nil {
		return
	}
	if path, ok := unixPath(c.listener); ok {
		defer os.Remove(path)
	}
	c.listener.Close()
	c.listener = nil
}

func unixPath(ln net.Listener) (string, bool) {
	if ln == nil {
		return "", false
	}
	if addr, ok := ln.Addr().(*net.UnixAddr); ok {
		return addr.Name, true
	}
	return "", false
}
