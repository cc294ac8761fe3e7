package chatclient

import (
	"context"
	"fmt"
	"time"

	"community-hub/domain"
	"community-hub/transport"
)

// loopMsg is a command or event posted onto the run loop. Commands come from
// the public API; events come from dial goroutines, the retry timer, and the
// connection pumps. Events carry the generation they belong to so anything
// outlived by a teardown is discarded.
type loopMsg interface{}

type (
	cmdConnect    struct{}
	cmdDisconnect struct{}
	cmdReconnect  struct{}
	cmdClose      struct{}
	cmdJoin       struct{ id domain.CommunityID }
	cmdLeave      struct{}
	cmdSend       struct {
		req     domain.SendRequest
		receipt *SendReceipt
	}

	evDialDone struct {
		gen  uint64
		conn transport.Conn
		err  error
	}
	evRetryTimer  struct{ gen uint64 }
	evFrame       struct {
		gen   uint64
		frame transport.Frame
	}
	evConnLost struct {
		gen uint64
		err error
	}
	evWriteFailed struct {
		gen uint64
		err error
	}
)

// run owns every session field of the Client. It processes one message at a
// time, so transport events, timer fires, and API commands are serialized
// and the state machine needs no locks.
func (c *Client) run() {
	defer close(c.done)

	for m := range c.msgs {
		switch m := m.(type) {
		case cmdConnect:
			c.handleConnect()
		case cmdDisconnect:
			c.handleDisconnect()
		case cmdReconnect:
			c.handleReconnect()
		case cmdJoin:
			c.handleJoin(m.id)
		case cmdLeave:
			c.handleLeave()
		case cmdSend:
			c.handleSend(m)
		case evDialDone:
			c.handleDialDone(m)
		case evRetryTimer:
			c.handleRetryTimer(m)
		case evFrame:
			c.handleFrame(m)
		case evConnLost:
			c.handleConnLost(m)
		case evWriteFailed:
			c.handleWriteFailed(m)
		case cmdClose:
			c.handleClose()
			c.refreshSnapshot()
			return
		}
		c.refreshSnapshot()
	}
}

func (c *Client) handleConnect() {
	switch c.status {
	case domain.StatusDisconnected:
		c.setStatus(domain.StatusConnecting, nil)
		c.startDial()
	case domain.StatusError:
		c.log.Debug("connect ignored in error state, use Reconnect")
	default:
		c.log.Debug("connect ignored", "status", c.status.String())
	}
}

func (c *Client) handleDisconnect() {
	c.closeSession()
	c.stopRetry()
	c.active = ""
	c.setStatus(domain.StatusDisconnected, nil)
	c.log.Info("disconnected by caller")
}

func (c *Client) handleReconnect() {
	c.closeSession()
	c.stopRetry()
	c.backoff.reset()
	if c.status != domain.StatusDisconnected && c.status != domain.StatusError {
		c.setStatus(domain.StatusDisconnected, nil)
	}
	c.setStatus(domain.StatusConnecting, nil)
	c.startDial()
	c.log.Info("manual reconnect started")
}

func (c *Client) handleClose() {
	c.closeSession()
	c.stopRetry()
	c.active = ""
	c.setStatus(domain.StatusDisconnected, nil)
	c.rootCancel()
	c.log.Info("client closed")
}

func (c *Client) handleJoin(id domain.CommunityID) {
	if c.status != domain.StatusConnected {
		c.log.Debug("join ignored while not connected", "community", string(id))
		return
	}
	if id == c.active {
		return
	}
	if c.active != "" {
		if f, err := transport.NewLeaveFrame(c.active); err == nil {
			c.enqueue(f, nil)
		}
	}
	c.active = id
	f, err := transport.NewJoinFrame(id)
	if err != nil {
		c.emitError(wrapError(CodeServerRelayed, "encode join", err))
		return
	}
	c.enqueue(f, nil)
	c.log.Info("joined community", "community", string(id))
}

func (c *Client) handleLeave() {
	if c.active == "" {
		return
	}
	prev := c.active
	c.active = ""
	if c.status == domain.StatusConnected {
		if f, err := transport.NewLeaveFrame(prev); err == nil {
			c.enqueue(f, nil)
		}
	}
	c.log.Info("left community", "community", string(prev))
}

func (c *Client) handleSend(m cmdSend) {
	if c.status != domain.StatusConnected {
		m.receipt.fail(newError(CodeSendWhileDisconnected,
			fmt.Sprintf("status is %s", c.status)))
		return
	}
	if c.active == "" {
		m.receipt.fail(newError(CodeSendWithoutActiveRoom, "join a community first"))
		return
	}
	req := m.req
	if req.CommunityID == "" {
		req.CommunityID = c.active
	}
	f, err := transport.NewSendFrame(req)
	if err != nil {
		m.receipt.fail(wrapError(CodeServerRelayed, "encode send", err))
		return
	}
	c.enqueue(f, m.receipt)
}

func (c *Client) handleDialDone(ev evDialDone) {
	if ev.gen != c.gen {
		if ev.conn != nil {
			_ = ev.conn.Close()
		}
		return
	}

	if ev.err != nil {
		switch c.status {
		case domain.StatusConnecting:
			c.setStatus(domain.StatusError, ev.err)
			c.emitError(wrapError(CodeTransportInit, "handshake failed", ev.err))
		case domain.StatusReconnecting:
			if c.backoff.attempts >= c.cfg.MaxReconnectAttempts {
				c.setStatus(domain.StatusError, ev.err)
				c.emitError(wrapError(CodeReconnectExhausted,
					fmt.Sprintf("gave up after %d attempts", c.backoff.attempts), ev.err))
				c.log.Warn("reconnect exhausted", "attempts", c.backoff.attempts)
			} else {
				c.scheduleRetry()
			}
		}
		return
	}

	if c.status != domain.StatusConnecting && c.status != domain.StatusReconnecting {
		_ = ev.conn.Close()
		return
	}

	c.conn = ev.conn
	c.out = make(chan transport.Frame, c.cfg.SendBuffer)
	sessCtx, cancel := context.WithCancel(c.rootCtx)
	c.sessCancel = cancel
	go c.readPump(sessCtx, ev.gen, ev.conn)
	go c.writePump(sessCtx, ev.gen, ev.conn, c.out)

	c.backoff.reset()
	c.setStatus(domain.StatusConnected, nil)
	c.log.Info("connected", "server", c.cfg.ServerURL)

	if c.active != "" {
		if f, err := transport.NewJoinFrame(c.active); err == nil {
			c.enqueue(f, nil)
			c.log.Info("rejoined community after connect", "community", string(c.active))
		}
	}
}

func (c *Client) handleRetryTimer(ev evRetryTimer) {
	if ev.gen != c.gen {
		return
	}
	if c.status != domain.StatusReconnecting {
		return
	}
	c.backoff.recordAttempt()
	c.log.Info("reconnect attempt", "attempt", c.backoff.attempts,
		"max", c.cfg.MaxReconnectAttempts)
	c.startDial()
}

func (c *Client) handleFrame(ev evFrame) {
	if ev.gen != c.gen {
		return
	}
	f := ev.frame
	switch f.Op {
	case transport.OpMessage:
		var m domain.Message
		if err := f.Decode(&m); err != nil {
			c.log.Warn("dropping malformed message frame", "error", err)
			return
		}
		c.hub.emitMessage(m)
	case transport.OpPresence:
		var p transport.PresencePayload
		if err := f.Decode(&p); err != nil {
			c.log.Warn("dropping malformed presence frame", "error", err)
			return
		}
		c.hub.emitPresence(Presence{
			CommunityID: p.CommunityID,
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Joined:      p.Joined,
		})
	case transport.OpHistory:
		var h transport.HistoryPayload
		if err := f.Decode(&h); err != nil {
			c.log.Warn("dropping malformed history frame", "error", err)
			return
		}
		c.hub.emitHistory(History{CommunityID: h.CommunityID, Messages: h.Messages})
	case transport.OpError:
		var p transport.ErrorPayload
		if err := f.Decode(&p); err != nil {
			c.log.Warn("dropping malformed error frame", "error", err)
			return
		}
		c.emitError(newError(CodeServerRelayed, fmt.Sprintf("%s: %s", p.Code, p.Msg)))
	default:
		c.log.Debug("unhandled frame", "op", string(f.Op))
	}
}

func (c *Client) handleConnLost(ev evConnLost) {
	if ev.gen != c.gen {
		return
	}
	switch transport.ClassifyClose(ev.err) {
	case transport.CloseLocal:
		return
	case transport.CloseServerEnded:
		c.closeSession()
		c.setStatus(domain.StatusDisconnected, ev.err)
		c.log.Info("server ended the session", "error", ev.err)
	case transport.CloseDropped:
		c.closeSession()
		c.setStatus(domain.StatusReconnecting, ev.err)
		c.log.Warn("connection dropped, starting recovery", "error", ev.err)
		c.scheduleRetry()
	}
}

func (c *Client) handleWriteFailed(ev evWriteFailed) {
	if ev.gen != c.gen {
		return
	}
	c.emitError(wrapError(CodeServerRelayed, "transport write failed", ev.err))
	c.handleConnLost(evConnLost(ev))
}

// startDial launches the handshake for the current generation bumped by one.
// The result comes back as evDialDone.
func (c *Client) startDial() {
	c.gen++
	gen := c.gen
	go func() {
		conn, err := c.dialer.Dial(c.rootCtx, c.cfg.ServerURL)
		c.postWait(evDialDone{gen: gen, conn: conn, err: err})
	}()
}

// scheduleRetry arms the single pending reconnection timer with the next
// backoff delay. The generation bump invalidates any earlier timer that
// might still fire.
func (c *Client) scheduleRetry() {
	delay := c.backoff.nextDelay()
	c.gen++
	gen := c.gen
	c.retry = time.AfterFunc(delay, func() {
		c.postWait(evRetryTimer{gen: gen})
	})
	c.log.Info("reconnect scheduled", "delay", delay.String(),
		"attempt", c.backoff.attempts+1, "max", c.cfg.MaxReconnectAttempts)
}

// closeSession tears down the current connection and its pumps. The
// generation bump makes every in-flight event of the old session stale.
func (c *Client) closeSession() {
	c.gen++
	if c.sessCancel != nil {
		c.sessCancel()
		c.sessCancel = nil
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.out = nil
}

func (c *Client) stopRetry() {
	if c.retry != nil {
		c.retry.Stop()
		c.retry = nil
	}
	c.gen++
}

// setStatus applies a lifecycle transition and notifies subscribers. Illegal
// transitions are dropped.
func (c *Client) setStatus(next domain.ConnectionStatus, cause error) {
	if next == c.status {
		return
	}
	if !c.status.CanTransition(next) {
		c.log.Debug("ignoring illegal status transition",
			"from", c.status.String(), "to", next.String())
		return
	}
	old := c.status
	c.status = next
	c.refreshSnapshot()
	c.log.Info("connection status changed", "from", old.String(), "to", next.String())
	c.hub.emitStatus(StatusChange{Old: old, New: next, Err: cause})
}

func (c *Client) emitError(err *Error) {
	c.log.Warn("client error", "code", err.Code.String(), "error", err)
	c.hub.emitError(err)
}

// enqueue hands a frame to the write pump. The queue is bounded; when it is
// full the frame is dropped and the receipt, if any, fails.
func (c *Client) enqueue(f transport.Frame, r *SendReceipt) {
	if c.out == nil {
		if r != nil {
			r.fail(newError(CodeSendWhileDisconnected, "no live session"))
		}
		return
	}
	select {
	case c.out <- f:
		if r != nil {
			r.resolve()
		}
	default:
		c.log.Warn("outbound queue full, dropping frame", "op", string(f.Op))
		if r != nil {
			r.fail(newError(CodeServerRelayed, "outbound queue full"))
		}
	}
}

func (c *Client) refreshSnapshot() {
	c.snapshot.Store(&Stats{
		Status:              c.status,
		ActiveCommunity:     c.active,
		ReconnectAttempts:   c.backoff.attempts,
		CurrentBackoffDelay: c.backoff.nextDelay(),
	})
}

func (c *Client) readPump(ctx context.Context, gen uint64, conn transport.Conn) {
	for {
		f, err := conn.ReadFrame(ctx)
		if err != nil {
			c.postWait(evConnLost{gen: gen, err: err})
			return
		}
		c.postWait(evFrame{gen: gen, frame: f})
	}
}

func (c *Client) writePump(ctx context.Context, gen uint64, conn transport.Conn, out <-chan transport.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f := <-out:
			if err := conn.WriteFrame(ctx, f); err != nil {
				c.postWait(evWriteFailed{gen: gen, err: err})
				return
			}
		}
	}
}
