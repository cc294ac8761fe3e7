// Package chatclient is the realtime transport client for community chat.
// A Client owns one persistent connection to the relay, tracks its health
// through an explicit state machine, recovers from drops with bounded
// exponential backoff, keeps at most one community joined, and delivers
// inbound traffic to subscribers.
//
// All session state lives on a single run-loop goroutine. Public methods
// post commands onto that loop and return immediately; completion and
// failure travel through subscriptions or the SendReceipt.
package chatclient

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"community-hub/domain"
	"community-hub/transport"
)

// Stats is a point-in-time snapshot of the connection session state.
type Stats struct {
	Status              domain.ConnectionStatus
	ActiveCommunity     domain.CommunityID
	ReconnectAttempts   int
	CurrentBackoffDelay time.Duration
}

// Client is a caller-owned chat connection. Construct one per chat view with
// New, drive it with Connect/JoinCommunity/Send, and release it with Close.
// Instances are safe for concurrent use.
type Client struct {
	cfg    Config
	log    *slog.Logger
	dialer transport.Dialer
	hub    *hub

	msgs       chan loopMsg
	done       chan struct{}
	rootCtx    context.Context
	rootCancel context.CancelFunc
	closeOnce  sync.Once

	snapshot atomic.Pointer[Stats]

	// Fields below are owned by the run loop and never touched elsewhere.
	status     domain.ConnectionStatus
	active     domain.CommunityID
	backoff    *backoff
	gen        uint64
	conn       transport.Conn
	out        chan transport.Frame
	retry      *time.Timer
	sessCancel context.CancelFunc
}

// New validates cfg, fills defaults, and starts the client run loop. The
// client begins disconnected; call Connect to start the handshake.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = transport.NewWebsocketDialer(transport.DialerOptions{
			Token:            cfg.Token,
			HandshakeTimeout: cfg.HandshakeTimeout,
			ReadTimeout:      cfg.ReadTimeout,
			WriteTimeout:     cfg.WriteTimeout,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:        cfg,
		log:        cfg.Logger.With("component", "chatclient"),
		dialer:     dialer,
		hub:        newHub(),
		msgs:       make(chan loopMsg, 128),
		done:       make(chan struct{}),
		rootCtx:    ctx,
		rootCancel: cancel,
		status:     domain.StatusDisconnected,
		backoff:    newBackoff(cfg.BaseDelay, cfg.MaxDelay),
	}
	c.snapshot.Store(&Stats{
		Status:              domain.StatusDisconnected,
		CurrentBackoffDelay: cfg.BaseDelay,
	})

	go c.run()
	return c, nil
}

// Connect starts the handshake toward the configured server. It returns
// immediately; progress arrives through status-change subscriptions. Calling
// it while already connected or with a connection attempt in flight has no
// effect, and it does not leave the error state: use Reconnect for that.
func (c *Client) Connect() {
	c.post(cmdConnect{})
}

// Disconnect cancels any pending reconnection, tears the transport down,
// clears the active community, and settles in the disconnected state until
// the next Connect.
func (c *Client) Disconnect() {
	c.post(cmdDisconnect{})
}

// Reconnect unconditionally tears down whatever exists, resets the backoff
// counters, and dials again. It is the only way out of the error state. The
// active community is kept and rejoined once the new connection is up.
func (c *Client) Reconnect() {
	c.post(cmdReconnect{})
}

// JoinCommunity makes id the active community, leaving the previous one
// first when necessary. It requires a live connection; otherwise nothing
// changes. Joining the already active community has no effect.
func (c *Client) JoinCommunity(id domain.CommunityID) {
	c.post(cmdJoin{id: id})
}

// LeaveCommunity clears the active community and tells the server, best
// effort. No acknowledgment exists for leaves.
func (c *Client) LeaveCommunity() {
	c.post(cmdLeave{})
}

// Send queues req for transmission. The receipt rejects immediately, without
// touching the transport, when the client is not connected or no community
// is active. A resolved receipt means queued, not persisted.
func (c *Client) Send(req domain.SendRequest) *SendReceipt {
	r := newSendReceipt()
	if !c.post(cmdSend{req: req, receipt: r}) {
		r.fail(newError(CodeSendWhileDisconnected, "client is closed"))
	}
	return r
}

// Status returns the current connection status.
func (c *Client) Status() domain.ConnectionStatus {
	return c.snapshot.Load().Status
}

// ActiveCommunity returns the joined community, if any.
func (c *Client) ActiveCommunity() (domain.CommunityID, bool) {
	id := c.snapshot.Load().ActiveCommunity
	return id, id != ""
}

// Stats returns a snapshot of the session counters. Safe to call from event
// callbacks.
func (c *Client) Stats() Stats {
	return *c.snapshot.Load()
}

// OnStatusChange subscribes fn to connection status transitions.
func (c *Client) OnStatusChange(fn func(StatusChange)) *Subscription {
	return c.hub.onStatusChange(fn)
}

// OnMessage subscribes fn to inbound chat messages, in arrival order.
func (c *Client) OnMessage(fn func(domain.Message)) *Subscription {
	return c.hub.onMessage(fn)
}

// OnError subscribes fn to client errors. Every delivered error is a *Error
// carrying one of the package codes.
func (c *Client) OnError(fn func(error)) *Subscription {
	return c.hub.onError(fn)
}

// OnPresence subscribes fn to join/leave notifications for the active
// community.
func (c *Client) OnPresence(fn func(Presence)) *Subscription {
	return c.hub.onPresence(fn)
}

// OnHistory subscribes fn to the history snapshot the server sends after a
// join.
func (c *Client) OnHistory(fn func(History)) *Subscription {
	return c.hub.onHistory(fn)
}

// RegisterCallbacks installs cbs as the single replaceable callback set; a
// later call replaces the whole set. Independent consumers should prefer the
// On* subscriptions.
func (c *Client) RegisterCallbacks(cbs Callbacks) {
	c.hub.register(cbs)
}

// Close releases the client for good: it disconnects, stops the run loop,
// and waits for it to exit. Close must not be called from inside an event
// callback.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.post(cmdClose{})
	})
	<-c.done
	return nil
}

// post hands m to the run loop. It reports false when the client is closed.
// A full queue falls back to an asynchronous handoff so a callback calling
// back into the client can never deadlock the loop.
func (c *Client) post(m loopMsg) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.msgs <- m:
		return true
	default:
	}
	go func() {
		select {
		case c.msgs <- m:
		case <-c.done:
		}
	}()
	return true
}

// postWait is the blocking variant used by pumps and timers, where ordering
// matters and blocking is harmless.
func (c *Client) postWait(m loopMsg) {
	select {
	case c.msgs <- m:
	case <-c.done:
	}
}
