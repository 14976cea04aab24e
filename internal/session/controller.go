// Package session manages the bridge's connection to the engine: one open
// before a batch, one close after it.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/atkrun/internal/errors"
	"github.com/Iron-Ham/atkrun/internal/logging"
	"github.com/Iron-Ham/atkrun/internal/transport"
)

// DefaultTimeout bounds /atk/open and /atk/close.
const DefaultTimeout = 5 * time.Second

type openRequest struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

type closeRequest struct{}

// Controller opens and closes the bridge session. The bridge holds a single
// engine connection, so a Controller must not be shared by concurrent
// batches against the same bridge.
type Controller struct {
	poster  transport.Poster
	timeout time.Duration
	logger  *logging.Logger

	mu           sync.Mutex
	host         string
	port         int
	open         bool
	lastCloseErr error
}

// Option configures a Controller.
type Option func(*Controller)

// WithTimeout sets the timeout applied to open and close.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *logging.Logger) Option {
	return func(c *Controller) {
		c.logger = logging.OrNop(logger)
	}
}

// NewController creates a Controller that talks to the bridge through poster.
func NewController(poster transport.Poster, opts ...Option) *Controller {
	c := &Controller{
		poster:  poster,
		timeout: DefaultTimeout,
		logger:  logging.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open asks the bridge to connect to the engine at host:port. Failures are
// returned as *errors.SessionError wrapping the transport error.
func (c *Controller) Open(ctx context.Context, host string, port int) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	c.logger.Debug("opening session", "host", host, "port", port)

	if _, err := c.poster.Post(ctx, transport.PathOpen, openRequest{Host: host, Port: port}); err != nil {
		c.logger.Error("session open failed", "host", host, "port", port, "error", err.Error())
		return errors.NewSessionError("failed to open session", err).
			WithTarget(host, port).
			WithPhase(errors.PhaseOpen)
	}

	c.mu.Lock()
	c.host, c.port, c.open = host, port, true
	c.mu.Unlock()

	c.logger.Info("session opened", "host", host, "port", port)
	return nil
}

// Close asks the bridge to drop the engine connection. It never fails:
// errors are logged at WARN and kept for LastCloseError. Close may be called
// without a prior Open and may be called more than once. It runs even when
// ctx is already canceled, bounded by the controller timeout.
func (c *Controller) Close(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	c.mu.Lock()
	host, port := c.host, c.port
	c.mu.Unlock()

	_, err := c.poster.Post(ctx, transport.PathClose, closeRequest{})
	if err != nil {
		err = errors.NewSessionError("failed to close session", err).
			WithTarget(host, port).
			WithPhase(errors.PhaseClose)
		c.logger.Warn("session close failed", "error", err.Error(), "severity", errors.GetSeverity(err).String())
	} else {
		c.logger.Info("session closed")
	}

	c.mu.Lock()
	c.open = false
	c.lastCloseErr = err
	c.mu.Unlock()
}

// IsOpen reports whether the last Open succeeded and no Close followed.
func (c *Controller) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

// LastCloseError returns the error swallowed by the most recent Close, or
// nil if it succeeded or Close was never called.
func (c *Controller) LastCloseError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastCloseErr
}
