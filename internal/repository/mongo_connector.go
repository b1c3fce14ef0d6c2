package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"photoshare/internal/availability"
	"photoshare/internal/domain"
)

// Session is an established connection to the document store.
type Session interface {
	Ping(ctx context.Context) error
	Disconnect(ctx context.Context) error
}

// DialFunc creates a new session. It may return before the server is
// reachable; the connector pings afterwards.
type DialFunc func(ctx context.Context) (Session, error)

// ConnectHook runs after every successful (re)connection.
type ConnectHook func(ctx context.Context, s Session) error

type ConnectorOptions struct {
	MaxAttempts       int
	RetryDelay        time.Duration
	ReconnectInterval time.Duration
	ConnectTimeout    time.Duration
}

// Connector owns the document store connection. It retries a bounded number
// of times, then leaves the flag Unavailable and keeps reconnecting in the
// background until Close.
type Connector struct {
	dial DialFunc
	flag *availability.Flag
	opts ConnectorOptions
	log  *zap.Logger

	mu      sync.RWMutex
	session Session
	hooks   []ConnectHook

	// connectMu serialises connection attempts between Connect and the supervisor.
	connectMu sync.Mutex

	once     sync.Once
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
}

func NewConnector(dial DialFunc, flag *availability.Flag, opts ConnectorOptions, log *zap.Logger) *Connector {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Connector{
		dial:     dial,
		flag:     flag,
		opts:     opts,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		loopDone: make(chan struct{}),
	}
}

// OnConnect registers a hook. Hook failures are logged and do not undo the connection.
func (c *Connector) OnConnect(h ConnectHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, h)
}

func (c *Connector) IsAvailable() bool {
	return c.flag.IsAvailable()
}

func (c *Connector) State() availability.State {
	return c.flag.State()
}

// Session returns the current session, or domain.ErrNotConnected when none
// has been established yet.
func (c *Connector) Session() (Session, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.session == nil {
		return nil, domain.ErrNotConnected
	}
	return c.session, nil
}

// Connect runs the bounded connection attempts and starts the background
// supervisor. It never returns a connection error: on exhaustion the flag is
// left Unavailable and reconnection continues in the background.
func (c *Connector) Connect(ctx context.Context) {
	c.connectWithRetries(ctx)

	c.once.Do(func() {
		c.log.Debug("Starting store supervisor")
		go c.supervise()
	})
}

func (c *Connector) connectWithRetries(ctx context.Context) bool {
	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	if c.ctx.Err() != nil {
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(c.ctx, cancel)
	defer stop()

	c.flag.Set(availability.StateConnecting)

	for attempt := 1; attempt <= c.opts.MaxAttempts; attempt++ {
		c.log.Info("Connecting to document store",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.opts.MaxAttempts))

		err := c.attempt(ctx)
		if err == nil {
			c.flag.Set(availability.StateConnected)
			c.log.Info("Document store connected")
			c.runHooks(ctx)
			return true
		}

		c.log.Warn("Document store connection attempt failed",
			zap.Int("attempt", attempt),
			zap.Error(err))

		if attempt == c.opts.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			c.flag.Set(availability.StateUnavailable)
			return false
		case <-time.After(c.opts.RetryDelay):
		}
	}

	c.log.Error("All document store connection attempts failed, serving fallback profile",
		zap.Duration("retry_in", c.opts.ReconnectInterval))
	c.flag.Set(availability.StateUnavailable)
	return false
}

func (c *Connector) attempt(ctx context.Context) error {
	attemptCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	s, err := c.Session()
	if err != nil {
		s, err = c.dial(attemptCtx)
		if err != nil {
			return fmt.Errorf("dial: %w", err)
		}
		c.mu.Lock()
		c.session = s
		c.mu.Unlock()
	}

	if err := s.Ping(attemptCtx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

func (c *Connector) runHooks(ctx context.Context) {
	c.mu.RLock()
	hooks := append([]ConnectHook(nil), c.hooks...)
	s := c.session
	c.mu.RUnlock()

	for _, h := range hooks {
		if err := h(ctx, s); err != nil {
			c.log.Warn("Connect hook failed", zap.Error(err))
		}
	}
}

// supervise waits for a demotion while connected and retries after
// ReconnectInterval while not.
func (c *Connector) supervise() {
	defer close(c.loopDone)

	for {
		if c.flag.State() == availability.StateConnected {
			select {
			case <-c.ctx.Done():
				return
			case <-c.flag.Demoted():
				c.log.Warn("Document store marked unavailable",
					zap.Duration("retry_in", c.opts.ReconnectInterval))
				continue
			}
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.opts.ReconnectInterval):
		}

		c.log.Info("Retrying document store connection in background")
		if c.connectWithRetries(c.ctx) {
			c.log.Info("Document store reconnected")
		}
	}
}

// Close stops the supervisor and disconnects the session.
func (c *Connector) Close(ctx context.Context) error {
	c.cancel()

	started := true
	c.once.Do(func() { started = false })
	if started {
		select {
		case <-c.loopDone:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.mu.Lock()
	s := c.session
	c.session = nil
	c.mu.Unlock()

	c.flag.Set(availability.StateDisconnected)

	if s == nil {
		return nil
	}
	if err := s.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect document store: %w", err)
	}
	c.log.Info("Document store connection closed")
	return nil
}
