package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultPingInterval is the interval between PING heartbeats on a Redis
// session.
const DefaultPingInterval = 10 * time.Second

// RedisDialer opens pub/sub sessions on a Redis server. Destinations are
// channel names.
type RedisDialer struct {
	// PingInterval is the heartbeat interval (default: 10s).
	PingInterval time.Duration

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// NewRedisDialer returns a dialer with default settings.
func NewRedisDialer() *RedisDialer {
	return &RedisDialer{PingInterval: DefaultPingInterval}
}

// redisOptions parses rawURL and applies the bearer token from headers as the
// password.
func redisOptions(rawURL string, headers Headers) (*redis.Options, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	if auth := headers[HeaderAuthorization]; auth != "" {
		opts.Password = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	opts.MaxRetries = -1
	return opts, nil
}

// classifyRedisError maps authentication replies to *AuthError.
func classifyRedisError(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	upper := strings.ToUpper(msg)
	switch {
	case strings.HasPrefix(upper, "NOPERM"):
		return &AuthError{Status: 403, Message: msg}
	case strings.HasPrefix(upper, "NOAUTH"), strings.HasPrefix(upper, "WRONGPASS"),
		strings.Contains(upper, "INVALID PASSWORD"), strings.Contains(upper, "INVALID USERNAME-PASSWORD"):
		return &AuthError{Status: 401, Message: msg}
	}
	return err
}

// Open connects, authenticates with a PING and starts the receive loop.
func (d *RedisDialer) Open(ctx context.Context, rawURL string, headers Headers, cb Callbacks) (Conn, error) {
	opts, err := redisOptions(rawURL, headers)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		if classified := classifyRedisError(err); IsNonRetryable(classified) {
			return nil, classified
		}
		return nil, fmt.Errorf("connect %s: %w", opts.Addr, err)
	}

	interval := d.PingInterval
	if interval <= 0 {
		interval = DefaultPingInterval
	}

	c := &redisConn{
		client:   client,
		pubsub:   client.Subscribe(context.Background()),
		cb:       cb,
		handlers: make(map[string]*redisSubscription),
		done:     make(chan struct{}),
		logger:   d.Logger,
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	go c.receiveLoop()
	go c.pingLoop(interval)

	c.debugLog("redis session established", "addr", opts.Addr, "ping", interval)
	return c, nil
}

// redisConn is a Redis pub/sub session.
type redisConn struct {
	client *redis.Client
	pubsub *redis.PubSub
	cb     Callbacks
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	handlers map[string]*redisSubscription
	closed   bool

	done chan struct{}
}

func (c *redisConn) receiveLoop() {
	defer close(c.done)

	for {
		msg, err := c.pubsub.Receive(c.ctx)
		if err != nil {
			c.handleReceiveError(err)
			return
		}

		switch m := msg.(type) {
		case *redis.Pong:
			c.emitFrame(Frame{Kind: FrameHeartbeat})
		case *redis.Subscription:
			c.emitFrame(Frame{Kind: FrameControl, Destination: m.Channel})
		case *redis.Message:
			body := []byte(m.Payload)
			c.emitFrame(Frame{Kind: FrameMessage, Destination: m.Channel, Body: body})

			c.mu.Lock()
			sub := c.handlers[m.Channel]
			closed := c.closed
			c.mu.Unlock()
			if sub != nil && !closed {
				sub.handler(body)
			}
		}
	}
}

func (c *redisConn) handleReceiveError(err error) {
	c.mu.Lock()
	closed := c.closed
	c.closed = true
	c.mu.Unlock()

	if closed {
		return
	}

	c.cancel()
	c.pubsub.Close()
	c.client.Close()

	if classified := classifyRedisError(err); IsNonRetryable(classified) {
		if c.cb.OnError != nil {
			c.cb.OnError(classified)
		}
	}

	c.debugLog("redis session lost", "error", err)
	if c.cb.OnClose != nil {
		c.cb.OnClose(CloseAbnormal, err.Error())
	}
}

func (c *redisConn) pingLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if err := c.pubsub.Ping(c.ctx); err != nil {
				c.debugLog("redis ping failed", "error", err)
			}
		}
	}
}

func (c *redisConn) emitFrame(f Frame) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed && c.cb.OnFrame != nil {
		c.cb.OnFrame(f)
	}
}

// Subscribe subscribes to the channel named destination.
func (c *redisConn) Subscribe(destination string, handler MessageHandler) (Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	if _, exists := c.handlers[destination]; exists {
		c.mu.Unlock()
		return nil, fmt.Errorf("already subscribed to %s", destination)
	}
	sub := &redisSubscription{conn: c, destination: destination, handler: handler}
	c.handlers[destination] = sub
	c.mu.Unlock()

	if err := c.pubsub.Subscribe(c.ctx, destination); err != nil {
		c.mu.Lock()
		delete(c.handlers, destination)
		c.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", destination, classifyRedisError(err))
	}
	return sub, nil
}

// Send publishes body on the channel named destination.
func (c *redisConn) Send(destination string, body []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return c.client.Publish(c.ctx, destination, body).Err()
}

// Deactivate closes the subscription connection and the client.
func (c *redisConn) Deactivate() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.handlers = make(map[string]*redisSubscription)
	c.mu.Unlock()

	c.cancel()
	err := c.pubsub.Close()
	if cerr := c.client.Close(); err == nil && !errors.Is(cerr, redis.ErrClosed) {
		err = cerr
	}
	return err
}

func (c *redisConn) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

// redisSubscription is one channel subscription.
type redisSubscription struct {
	conn        *redisConn
	destination string
	handler     MessageHandler

	once sync.Once
}

func (s *redisSubscription) Destination() string {
	return s.destination
}

func (s *redisSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		c := s.conn
		c.mu.Lock()
		if c.handlers[s.destination] == s {
			delete(c.handlers, s.destination)
		}
		closed := c.closed
		c.mu.Unlock()

		if !closed {
			err = c.pubsub.Unsubscribe(c.ctx, s.destination)
		}
	})
	return err
}

// RedisChecker checks backend liveness with a Redis PING.
type RedisChecker struct {
	client *redis.Client
}

// NewRedisChecker creates a checker for the server at rawURL.
func NewRedisChecker(rawURL string) (*RedisChecker, error) {
	opts, err := redisOptions(rawURL, nil)
	if err != nil {
		return nil, err
	}
	return &RedisChecker{client: redis.NewClient(opts)}, nil
}

// Check issues a single PING. An authentication error still proves the
// server is alive.
func (c *RedisChecker) Check(ctx context.Context) error {
	err := c.client.Ping(ctx).Err()
	if IsNonRetryable(classifyRedisError(err)) {
		return nil
	}
	return err
}

// Close releases the checker's connections.
func (c *RedisChecker) Close() error {
	return c.client.Close()
}
