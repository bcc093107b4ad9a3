package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocket defaults.
const (
	// DefaultHeartBeat is the STOMP heart-beat interval offered in both
	// directions.
	DefaultHeartBeat = 10 * time.Second

	// DefaultWriteTimeout bounds a single frame write.
	DefaultWriteTimeout = 5 * time.Second

	// DefaultHandshakeTimeout bounds the HTTP upgrade when the context has
	// no deadline.
	DefaultHandshakeTimeout = 15 * time.Second
)

// WebSocketDialer opens STOMP 1.2 sessions over a WebSocket.
type WebSocketDialer struct {
	// Dialer is the underlying WebSocket dialer. Nil uses a copy of
	// websocket.DefaultDialer.
	Dialer *websocket.Dialer

	// HeartBeat is the heart-beat interval offered for both directions.
	// Negative disables heart-beats.
	HeartBeat time.Duration

	// Host is the STOMP virtual host. Empty uses the URL host.
	Host string

	// WriteTimeout bounds each write (default: 5s).
	WriteTimeout time.Duration

	// Logger is the optional logger for debug output.
	Logger *slog.Logger
}

// NewWebSocketDialer returns a dialer with default settings.
func NewWebSocketDialer() *WebSocketDialer {
	return &WebSocketDialer{
		HeartBeat:    DefaultHeartBeat,
		WriteTimeout: DefaultWriteTimeout,
	}
}

// Open performs the WebSocket upgrade and the STOMP CONNECT exchange.
func (d *WebSocketDialer) Open(ctx context.Context, rawURL string, headers Headers, cb Callbacks) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dd := *websocket.DefaultDialer
		dd.HandshakeTimeout = DefaultHandshakeTimeout
		dialer = &dd
	}

	reqHeader := http.Header{}
	if auth, ok := headers[HeaderAuthorization]; ok {
		reqHeader.Set(HeaderAuthorization, auth)
	}

	ws, resp, err := dialer.DialContext(ctx, rawURL, reqHeader)
	if err != nil {
		if resp != nil {
			if ae := authFromStatus(resp.StatusCode, resp.Status); ae != nil {
				return nil, ae
			}
		}
		return nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}

	heartBeat := d.HeartBeat
	if heartBeat == 0 {
		heartBeat = DefaultHeartBeat
	}
	if heartBeat < 0 {
		heartBeat = 0
	}
	writeTimeout := d.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = DefaultWriteTimeout
	}

	c := &wsConn{
		ws:           ws,
		cb:           cb,
		subs:         make(map[string]*wsSubscription),
		writeTimeout: writeTimeout,
		done:         make(chan struct{}),
		logger:       d.Logger,
	}

	host := d.Host
	if host == "" {
		if u, err := url.Parse(rawURL); err == nil {
			host = u.Hostname()
		}
	}

	connect := NewStompFrame(CmdConnect,
		"accept-version", "1.2",
		"host", host,
		"heart-beat", FormatHeartBeat(heartBeat, heartBeat),
	)
	for k, v := range headers {
		connect.Set(k, v)
	}

	send, err := c.handshake(ctx, connect, heartBeat)
	if err != nil {
		ws.Close()
		return nil, err
	}

	go c.readLoop()
	if send > 0 {
		go c.heartBeatLoop(send)
	}

	c.debugLog("stomp session established", "url", rawURL, "heartBeat", send)
	return c, nil
}

// wsConn is a STOMP session over a WebSocket.
type wsConn struct {
	ws           *websocket.Conn
	cb           Callbacks
	writeTimeout time.Duration
	logger       *slog.Logger

	writeMu sync.Mutex

	mu     sync.Mutex
	subs   map[string]*wsSubscription
	nextID int
	closed bool

	done chan struct{}
}

func (c *wsConn) handshake(ctx context.Context, connect *StompFrame, heartBeat time.Duration) (time.Duration, error) {
	if err := c.writeFrame(connect); err != nil {
		return 0, fmt.Errorf("send CONNECT: %w", err)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultHandshakeTimeout)
	}
	c.ws.SetReadDeadline(deadline)
	defer c.ws.SetReadDeadline(time.Time{})

	// Closing the socket unblocks the read if ctx ends first.
	stop := context.AfterFunc(ctx, func() { c.ws.Close() })
	defer stop()

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return 0, ctxErr
			}
			return 0, fmt.Errorf("%w: %v", ErrHandshake, err)
		}

		frames, _, err := DecodeStompFrames(data)
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		for _, f := range frames {
			switch f.Command {
			case CmdConnected:
				serverSend, serverRecv := ParseHeartBeat(f.Value("heart-beat"))
				send, _ := NegotiateHeartBeat(heartBeat, heartBeat, serverSend, serverRecv)
				return send, nil
			case CmdError:
				return 0, stompError(f)
			}
		}
	}
}

// stompError converts an ERROR frame into an error, classifying
// authentication failures.
func stompError(f *StompFrame) error {
	msg := f.Value("message")
	detail := msg
	if len(f.Body) > 0 {
		detail = msg + ": " + string(f.Body)
	}
	if ae := classifyMessage(detail); ae != nil {
		ae.Message = msg
		return ae
	}
	return fmt.Errorf("stomp error: %s", detail)
}

func (c *wsConn) readLoop() {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}

		if IsHeartbeat(data) {
			c.emitFrame(Frame{Kind: FrameHeartbeat})
			continue
		}

		frames, heartbeats, err := DecodeStompFrames(data)
		for i := 0; i < heartbeats; i++ {
			c.emitFrame(Frame{Kind: FrameHeartbeat})
		}
		for _, f := range frames {
			c.dispatch(f)
		}
		if err != nil {
			c.emitError(fmt.Errorf("decode frame: %w", err))
		}
	}
}

func (c *wsConn) dispatch(f *StompFrame) {
	switch f.Command {
	case CmdMessage:
		dest := f.Value("destination")
		c.emitFrame(Frame{Kind: FrameMessage, Destination: dest, Body: f.Body})

		c.mu.Lock()
		sub := c.subs[f.Value("subscription")]
		closed := c.closed
		c.mu.Unlock()
		if sub != nil && !closed {
			sub.handler(f.Body)
		}

	case CmdReceipt:
		c.emitFrame(Frame{Kind: FrameReceipt})

	case CmdError:
		c.emitFrame(Frame{Kind: FrameError, Body: f.Body})
		c.emitError(stompError(f))

	default:
		c.emitFrame(Frame{Kind: FrameControl})
	}
}

func (c *wsConn) handleReadError(err error) {
	c.mu.Lock()
	closed := c.closed
	c.closed = true
	c.mu.Unlock()

	c.signalDone()
	c.ws.Close()

	if closed {
		return
	}

	code, reason := CloseAbnormal, err.Error()
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		code, reason = ce.Code, ce.Text
	} else if errors.Is(err, io.ErrUnexpectedEOF) {
		reason = "unexpected EOF"
	}

	c.debugLog("websocket closed", "code", code, "reason", reason)
	if c.cb.OnClose != nil {
		c.cb.OnClose(code, reason)
	}
}

func (c *wsConn) heartBeatLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.writeRaw([]byte("\n")); err != nil {
				c.debugLog("heart-beat write failed", "error", err)
			}
		}
	}
}

func (c *wsConn) emitFrame(f Frame) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed && c.cb.OnFrame != nil {
		c.cb.OnFrame(f)
	}
}

func (c *wsConn) emitError(err error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed && c.cb.OnError != nil {
		c.cb.OnError(err)
	}
}

func (c *wsConn) writeFrame(f *StompFrame) error {
	return c.writeRaw(f.Encode())
}

func (c *wsConn) writeRaw(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Subscribe sends SUBSCRIBE for destination.
func (c *wsConn) Subscribe(destination string, handler MessageHandler) (Subscription, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.nextID++
	id := "sub-" + strconv.Itoa(c.nextID)
	sub := &wsSubscription{conn: c, id: id, destination: destination, handler: handler}
	c.subs[id] = sub
	c.mu.Unlock()

	f := NewStompFrame(CmdSubscribe,
		"id", id,
		"destination", destination,
		"ack", "auto",
	)
	if err := c.writeFrame(f); err != nil {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: %w", destination, err)
	}
	return sub, nil
}

// Send sends a SEND frame to destination.
func (c *wsConn) Send(destination string, body []byte) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return ErrClosed
	}

	f := NewStompFrame(CmdSend,
		"destination", destination,
		"content-type", "application/json",
	)
	f.Body = body
	return c.writeFrame(f)
}

// Deactivate sends DISCONNECT and a normal close, then closes the socket.
func (c *wsConn) Deactivate() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.subs = make(map[string]*wsSubscription)
	c.mu.Unlock()

	c.signalDone()

	c.writeFrame(NewStompFrame(CmdDisconnect))

	c.writeMu.Lock()
	c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "client disconnect"),
		time.Now().Add(c.writeTimeout))
	c.writeMu.Unlock()

	return c.ws.Close()
}

func (c *wsConn) signalDone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func (c *wsConn) debugLog(msg string, args ...any) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}

// wsSubscription is one STOMP subscription.
type wsSubscription struct {
	conn        *wsConn
	id          string
	destination string
	handler     MessageHandler

	once sync.Once
}

func (s *wsSubscription) Destination() string {
	return s.destination
}

// Unsubscribe sends UNSUBSCRIBE. Messages already in flight are dropped.
func (s *wsSubscription) Unsubscribe() error {
	var err error
	s.once.Do(func() {
		c := s.conn
		c.mu.Lock()
		_, active := c.subs[s.id]
		delete(c.subs, s.id)
		closed := c.closed
		c.mu.Unlock()

		if !active || closed {
			return
		}
		err = c.writeFrame(NewStompFrame(CmdUnsubscribe, "id", s.id))
	})
	return err
}
