package transport

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const (
	// StatusSessionEnded is the application close code the server uses when it
	// terminates a session on purpose (shutdown, kick, auth revoked). Clients
	// must not auto-reconnect after receiving it.
	StatusSessionEnded websocket.StatusCode = 4000

	defaultHandshakeTimeout = 10 * time.Second
	defaultWriteTimeout     = 10 * time.Second

	// maxFrameBytes bounds a single inbound frame. History frames are the
	// largest legitimate payload and stay well under this.
	maxFrameBytes = 1 << 20
)

// DialerOptions configures WebsocketDialer.
type DialerOptions struct {
	// Token is sent as a bearer token during the handshake. Empty means
	// anonymous.
	Token string

	// HandshakeTimeout bounds the initial dial. Zero means 10s.
	HandshakeTimeout time.Duration

	// ReadTimeout bounds a single frame read. Zero means no limit: a chat
	// connection is legitimately idle between messages.
	ReadTimeout time.Duration

	// WriteTimeout bounds a single frame write. Zero means 10s.
	WriteTimeout time.Duration
}

// WebsocketDialer opens websocket connections speaking the Frame protocol.
type WebsocketDialer struct {
	opts DialerOptions
}

func NewWebsocketDialer(opts DialerOptions) *WebsocketDialer {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = defaultHandshakeTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &WebsocketDialer{opts: opts}
}

// Dial establishes the websocket within the handshake timeout and returns the
// wrapped connection.
func (d *WebsocketDialer) Dial(ctx context.Context, serverURL string) (Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, d.opts.HandshakeTimeout)
	defer cancel()

	header := http.Header{}
	if d.opts.Token != "" {
		header.Set("Authorization", "Bearer "+d.opts.Token)
	}

	c, _, err := websocket.Dial(dialCtx, serverURL, &websocket.DialOptions{
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", serverURL, err)
	}
	return NewConn(c, d.opts.ReadTimeout, d.opts.WriteTimeout), nil
}

// wsConn adapts a websocket connection to the Conn interface, applying
// per-operation timeouts.
type wsConn struct {
	c            *websocket.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
}

// NewConn wraps an established websocket connection. Both the dial side and
// the accept side use it so frame handling stays identical. readTimeout zero
// disables the read deadline; writeTimeout zero falls back to 10s.
func NewConn(c *websocket.Conn, readTimeout, writeTimeout time.Duration) Conn {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	c.SetReadLimit(maxFrameBytes)
	return &wsConn{c: c, readTimeout: readTimeout, writeTimeout: writeTimeout}
}

func (c *wsConn) ReadFrame(ctx context.Context) (Frame, error) {
	if c.readTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.readTimeout)
		defer cancel()
	}
	var f Frame
	if err := wsjson.Read(ctx, c.c, &f); err != nil {
		return Frame{}, fmt.Errorf("read frame: %w", err)
	}
	return f, nil
}

func (c *wsConn) WriteFrame(ctx context.Context, f Frame) error {
	ctx, cancel := context.WithTimeout(ctx, c.writeTimeout)
	defer cancel()

	if err := wsjson.Write(ctx, c.c, f); err != nil {
		return fmt.Errorf("write frame %s: %w", f.Op, err)
	}
	return nil
}

func (c *wsConn) Close() error {
	return c.c.Close(websocket.StatusNormalClosure, "closing")
}
