package chatclient

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"community-hub/domain"
	"community-hub/transport"
)

// fakeConn is a scripted connection: tests push inbound frames and read
// failures, and receive every frame the client writes.
type fakeConn struct {
	in      chan transport.Frame
	readErr chan error
	wrote   chan transport.Frame

	downOnce sync.Once
	down     chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan transport.Frame, 32),
		readErr: make(chan error, 1),
		wrote:   make(chan transport.Frame, 32),
		down:    make(chan struct{}),
	}
}

func (f *fakeConn) ReadFrame(ctx context.Context) (transport.Frame, error) {
	select {
	case fr := <-f.in:
		return fr, nil
	case err := <-f.readErr:
		return transport.Frame{}, err
	case <-f.down:
		return transport.Frame{}, net.ErrClosed
	case <-ctx.Done():
		return transport.Frame{}, ctx.Err()
	}
}

func (f *fakeConn) WriteFrame(_ context.Context, fr transport.Frame) error {
	select {
	case f.wrote <- fr:
		return nil
	case <-f.down:
		return net.ErrClosed
	}
}

func (f *fakeConn) Close() error {
	f.downOnce.Do(func() { close(f.down) })
	return nil
}

// fakeDialer scripts dial outcomes by attempt number and hands created
// connections to the test.
type fakeDialer struct {
	mu    sync.Mutex
	dials int
	fail  func(attempt int) bool

	conns chan *fakeConn
}

func newFakeDialer(fail func(attempt int) bool) *fakeDialer {
	return &fakeDialer{fail: fail, conns: make(chan *fakeConn, 8)}
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (transport.Conn, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	d.mu.Unlock()

	if d.fail != nil && d.fail(n) {
		return nil, errors.New("dial refused")
	}
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) nextConn(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for a dialed connection")
		return nil
	}
}

type statusRecorder struct {
	mu  sync.Mutex
	seq []domain.ConnectionStatus
}

func recordStatuses(c *Client) *statusRecorder {
	r := &statusRecorder{}
	c.OnStatusChange(func(ev StatusChange) {
		r.mu.Lock()
		r.seq = append(r.seq, ev.New)
		r.mu.Unlock()
	})
	return r
}

func (r *statusRecorder) sequence() []domain.ConnectionStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.ConnectionStatus(nil), r.seq...)
}

// assertLegalHistory checks that every observed transition, starting from
// the initial disconnected state, follows the lifecycle table.
func assertLegalHistory(t *testing.T, seq []domain.ConnectionStatus) {
	t.Helper()
	prev := domain.StatusDisconnected
	for _, s := range seq {
		require.Truef(t, prev.CanTransition(s), "illegal transition %s -> %s in %v", prev, s, seq)
		prev = s
	}
}

type errorRecorder struct {
	mu   sync.Mutex
	errs []error
}

func recordErrors(c *Client) *errorRecorder {
	r := &errorRecorder{}
	c.OnError(func(err error) {
		r.mu.Lock()
		r.errs = append(r.errs, err)
		r.mu.Unlock()
	})
	return r
}

func (r *errorRecorder) all() []error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]error(nil), r.errs...)
}

func newTestClient(t *testing.T, d transport.Dialer, mutate func(*Config)) *Client {
	t.Helper()
	cfg := DefaultConfig("ws://localhost:9/ws")
	cfg.Dialer = d
	cfg.BaseDelay = 5 * time.Millisecond
	cfg.MaxDelay = 200 * time.Millisecond
	cfg.Logger = logs.GetLoggerFromLevel(slog.LevelWarn)
	if mutate != nil {
		mutate(&cfg)
	}
	c, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func waitStatus(t *testing.T, c *Client, want domain.ConnectionStatus) {
	t.Helper()
	require.Eventually(t, func() bool { return c.Status() == want },
		3*time.Second, 2*time.Millisecond, "want status %s", want)
}

func nextWrote(t *testing.T, conn *fakeConn) transport.Frame {
	t.Helper()
	select {
	case f := <-conn.wrote:
		return f
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for an outbound frame")
		return transport.Frame{}
	}
}

func assertNoWrote(t *testing.T, conn *fakeConn, d time.Duration) {
	t.Helper()
	select {
	case f := <-conn.wrote:
		t.Fatalf("unexpected outbound frame %s", f.Op)
	case <-time.After(d):
	}
}

func TestClient_Connect_ReachesConnected(t *testing.T) {
	req := require.New(t)
	d := newFakeDialer(nil)
	c := newTestClient(t, d, nil)
	statuses := recordStatuses(c)

	// When
	c.Connect()
	waitStatus(t, c, domain.StatusConnected)
	d.nextConn(t)

	// Then
	req.Equal([]domain.ConnectionStatus{
		domain.StatusConnecting,
		domain.StatusConnected,
	}, statuses.sequence())
	req.Equal(1, d.dialCount())

	// Connect is idempotent once connected.
	c.Connect()
	time.Sleep(30 * time.Millisecond)
	req.Equal(1, d.dialCount())
	assertLegalHistory(t, statuses.sequence())
}

func TestClient_Connect_HandshakeFailure_EntersErrorState(t *testing.T) {
	req := require.New(t)
	d := newFakeDialer(func(int) bool { return true })
	c := newTestClient(t, d, nil)
	statuses := recordStatuses(c)
	errs := recordErrors(c)

	c.Connect()
	waitStatus(t, c, domain.StatusError)

	req.Equal([]domain.ConnectionStatus{
		domain.StatusConnecting,
		domain.StatusError,
	}, statuses.sequence())

	all := errs.all()
	req.Len(all, 1)
	req.ErrorIs(all[0], ErrTransportInit)

	// An initial handshake failure never starts the retry loop.
	time.Sleep(50 * time.Millisecond)
	req.Equal(1, d.dialCount())
	assertLegalHistory(t, statuses.sequence())
}

func TestClient_JoinSwitch_EmitsLeaveThenJoin(t *testing.T) {
	req := require.New(t)
	d := newFakeDialer(nil)
	c := newTestClient(t, d, nil)

	c.Connect()
	waitStatus(t, c, domain.StatusConnected)
	conn := d.nextConn(t)

	c.JoinCommunity("cs-101")
	join := nextWrote(t, conn)
	req.Equal(transport.OpJoin, join.Op)

	// Switching rooms leaves the old one first, then joins the new one.
	c.JoinCommunity("math-202")
	leave := nextWrote(t, conn)
	req.Equal(transport.OpLeave, leave.Op)
	var lp transport.LeavePayload
	req.NoError(leave.Decode(&lp))
	req.Equal(domain.CommunityID("cs-101"), lp.CommunityID)

	join2 := nextWrote(t, conn)
	req.Equal(transport.OpJoin, join2.Op)
	var jp transport.JoinPayload
	req.NoError(join2.Decode(&jp))
	req.Equal(domain.CommunityID("math-202"), jp.CommunityID)

	require.Eventually(t, func() bool {
		id, ok := c.ActiveCommunity()
		return ok && id == "math-202"
	}, time.Second, 2*time.Millisecond)

	// Joining the active community again is a no-op.
	c.JoinCommunity("math-202")
	assertNoWrote(t, conn, 60*time.Millisecond)
}

func TestClient_Join_WhileDisconnected_ChangesNothing(t *testing.T) {
	req := require.New(t)
	d := newFakeDialer(nil)
	c := newTestClient(t, d, nil)

	c.JoinCommunity("cs-101")
	time.Sleep(30 * time.Millisecond)

	_, ok := c.ActiveCommunity()
	req.False(ok)
	req.Zero(d.dialCount())
}

func TestClient_Send_WhileDisconnected_RejectsWithoutTransport(t *testing.T) {
	req := require.New(t)
	d := newFakeDialer(nil)
	c := newTestClient(t, d, nil)

	receipt := c.Send(domain.SendRequest{AuthorID: "u-1", DisplayName: "Alice", Text: "hi"})
	err := receipt.Wait(context.Background())

	req.ErrorIs(err, ErrSendWhileDisconnected)
	req.Zero(d.dialCount())
}

func TestClient_Send_WithoutActiveRoom_Rejects(t *testing.T) {
	req := require.New(t)
	d := newFakeDialer(nil)
	c := newTestClient(t, d, nil)

	c.Connect()
	waitStatus(t, c, domain.StatusConnected)
	conn := d.nextConn(t)

	receipt := c.Send(domain.SendRequest{AuthorID: "u-1", DisplayName: "Alice", Text: "hi"})
	err := receipt.Wait(context.Background())

	req.ErrorIs(err, ErrSendWithoutActiveRoom)
	assertNoWrote(t, conn, 50*time.Millisecond)
}

func TestClient_Send_QueuesFrameAndResolves(t *testing.T) {
	req := require.New(t)
	d := newFakeDialer(nil)
	c := newTestClient(t, d, nil)

	c.Connect()
	waitStatus(t, c, domain.StatusConnected)
	conn := d.nextConn(t)

	c.JoinCommunity("cs-101")
	req.Equal(transport.OpJoin, nextWrote(t, conn).Op)

	receipt := c.Send(domain.SendRequest{AuthorID: "u-1", DisplayName: "Alice", Text: "hello room"})
	req.NoError(receipt.Wait(context.Background()))

	f := nextWrote(t, conn)
	req.Equal(transport.OpSend, f.Op)
	var sp domain.SendRequest
	req.NoError(f.Decode(&sp))
	req.Equal(domain.CommunityID("cs-101"), sp.CommunityID)
	req.Equal("hello room", sp.Text)
	req.Equal("Alice", sp.DisplayName)
}

func TestClient_Backoff_ExhaustionAfterFiveAttempts(t *testing.T) {
	req := require.New(t)
	// First dial succeeds, every reconnection attempt fails.
	d := newFakeDialer(func(attempt int) bool { return attempt > 1 })
	c := newTestClient(t, d, nil)
	statuses := recordStatuses(c)
	errs := recordErrors(c)

	c.Connect()
	waitStatus(t, c, domain.StatusConnected)
	conn := d.nextConn(t)

	// When the connection drops for a recoverable reason
	conn.readErr <- io.EOF
	waitStatus(t, c, domain.StatusError)

	// Then exactly five retries were attempted on top of the initial dial
	req.Equal(6, d.dialCount())
	req.Equal(5, c.Stats().ReconnectAttempts)

	all := errs.all()
	req.NotEmpty(all)
	req.ErrorIs(all[len(all)-1], ErrReconnectExhausted)

	// And nothing further is scheduled
	time.Sleep(120 * time.Millisecond)
	req.Equal(6, d.dialCount())
	req.Equal(domain.StatusError, c.Status())

	seq := statuses.sequence()
	assertLegalHistory(t, seq)
	req.Equal(domain.StatusReconnecting, seq[2])
	req.Equal(domain.StatusError, seq[len(seq)-1])
}

func TestClient_Disconnect_CancelsPendingRetryTimer(t *testing.T) {
	req := require.New(t)
	d := newFakeDialer(func(attempt int) bool { return attempt > 1 })
	c := newTestClient(t, d, func(cfg *Config) {
		cfg.BaseDelay = 80 * time.Millisecond
		cfg.MaxDelay = time.Second
	})
	statuses := recordStatuses(c)

	c.Connect()
	waitStatus(t, c, domain.StatusConnected)
	conn := d.nextConn(t)

	conn.readErr <- io.EOF
	waitStatus(t, c, domain.StatusReconnecting)

	// When the caller disconnects while the retry timer is pending
	c.Disconnect()
	waitStatus(t, c, domain.StatusDisconnected)

	// Then the timer never revives the connection
	time.Sleep(250 * time.Millisecond)
	req.Equal(domain.StatusDisconnected, c.Status())
	req.Equal(1, d.dialCount())
	assertLegalHistory(t, statuses.sequence())
}

func TestClient_AutoRejoin_AfterReconnect_ExactlyOnce(t *testing.T) {
	req := require.New(t)
	d := newFakeDialer(nil)
	c := newTestClient(t, d, nil)
	statuses := recordStatuses(c)

	c.Connect()
	waitStatus(t, c, domain.StatusConnected)
	conn1 := d.nextConn(t)

	c.JoinCommunity("cs-101")
	req.Equal(transport.OpJoin, nextWrote(t, conn1).Op)

	// When the transport drops for a non-server-initiated reason
	conn1.readErr <- io.EOF
	conn2 := d.nextConn(t)
	waitStatus(t, c, domain.StatusConnected)

	// Then the join for cs-101 is re-emitted exactly once
	rejoin := nextWrote(t, conn2)
	req.Equal(transport.OpJoin, rejoin.Op)
	var jp transport.JoinPayload
	req.NoError(rejoin.Decode(&jp))
	req.Equal(domain.CommunityID("cs-101"), jp.CommunityID)
	assertNoWrote(t, conn2, 80*time.Millisecond)

	id, ok := c.ActiveCommunity()
	req.True(ok)
	req.Equal(domain.CommunityID("cs-101"), id)

	seq := statuses.sequence()
	assertLegalHistory(t, seq)
	req.Contains(seq, domain.StatusReconnecting)
}

func TestClient_ServerEndedSession_DoesNotAutoReconnect(t *testing.T) {
	req := require.New(t)
	d := newFakeDialer(nil)
	c := newTestClient(t, d, nil)

	c.Connect()
	waitStatus(t, c, domain.StatusConnected)
	conn := d.nextConn(t)
	c.JoinCommunity("cs-101")
	req.Equal(transport.OpJoin, nextWrote(t, conn).Op)

	// When the server terminates the session on purpose
	conn.readErr <- websocket.CloseError{Code: websocket.StatusNormalClosure, Reason: "session over"}
	waitStatus(t, c, domain.StatusDisconnected)

	// Then no automatic recovery starts
	time.Sleep(100 * time.Millisecond)
	req.Equal(1, d.dialCount())
	req.Equal(domain.StatusDisconnected, c.Status())

	// Membership survives for the next manual connect.
	id, ok := c.ActiveCommunity()
	req.True(ok)
	req.Equal(domain.CommunityID("cs-101"), id)
}

func TestClient_Reconnect_IsTheOnlyEscapeFromError(t *testing.T) {
	req := require.New(t)
	d := newFakeDialer(func(attempt int) bool { return attempt == 1 })
	c := newTestClient(t, d, nil)
	statuses := recordStatuses(c)

	c.Connect()
	waitStatus(t, c, domain.StatusError)

	// Connect does nothing from the error state.
	c.Connect()
	time.Sleep(50 * time.Millisecond)
	req.Equal(domain.StatusError, c.Status())
	req.Equal(1, d.dialCount())

	// Reconnect resets the counters and dials again.
	c.Reconnect()
	waitStatus(t, c, domain.StatusConnected)
	d.nextConn(t)

	stats := c.Stats()
	req.Zero(stats.ReconnectAttempts)
	req.Equal(5*time.Millisecond, stats.CurrentBackoffDelay)

	seq := statuses.sequence()
	assertLegalHistory(t, seq)
	req.Equal(domain.StatusError, seq[1])
	req.Equal(domain.StatusConnecting, seq[2])
	req.Equal(domain.StatusConnected, seq[3])
}

func TestClient_InboundFrames_ReachSubscribersInOrder(t *testing.T) {
	req := require.New(t)
	d := newFakeDialer(nil)
	c := newTestClient(t, d, nil)
	errs := recordErrors(c)

	var mu sync.Mutex
	var texts []string
	c.OnMessage(func(m domain.Message) {
		mu.Lock()
		texts = append(texts, m.Text)
		mu.Unlock()
	})
	var presences []Presence
	c.OnPresence(func(p Presence) {
		mu.Lock()
		presences = append(presences, p)
		mu.Unlock()
	})
	var histories []History
	c.OnHistory(func(h History) {
		mu.Lock()
		histories = append(histories, h)
		mu.Unlock()
	})

	c.Connect()
	waitStatus(t, c, domain.StatusConnected)
	conn := d.nextConn(t)

	h, err := transport.NewHistoryFrame("cs-101", []domain.Message{{Text: "old"}})
	req.NoError(err)
	conn.in <- h
	for _, text := range []string{"first", "second", "third"} {
		f, err := transport.NewMessageFrame(domain.Message{CommunityID: "cs-101", Text: text})
		req.NoError(err)
		conn.in <- f
	}
	p, err := transport.NewPresenceFrame(transport.PresencePayload{
		CommunityID: "cs-101", UserID: "u-2", DisplayName: "Bob", Joined: true,
	})
	req.NoError(err)
	conn.in <- p
	e, err := transport.NewErrorFrame("rate_limited", "slow down")
	req.NoError(err)
	conn.in <- e

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(texts) == 3 && len(presences) == 1 && len(histories) == 1 && len(errs.all()) == 1
	}, 3*time.Second, 2*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	req.Equal([]string{"first", "second", "third"}, texts)
	req.Equal("u-2", presences[0].UserID)
	req.True(presences[0].Joined)
	req.Equal(domain.CommunityID("cs-101"), histories[0].CommunityID)
	req.Len(histories[0].Messages, 1)

	relayed := errs.all()[0]
	req.ErrorIs(relayed, ErrServerRelayed)
	req.Contains(relayed.Error(), "rate_limited")
}

func TestClient_LeaveCommunity_NotifiesServerBestEffort(t *testing.T) {
	req := require.New(t)
	d := newFakeDialer(nil)
	c := newTestClient(t, d, nil)

	c.Connect()
	waitStatus(t, c, domain.StatusConnected)
	conn := d.nextConn(t)

	c.JoinCommunity("cs-101")
	req.Equal(transport.OpJoin, nextWrote(t, conn).Op)

	c.LeaveCommunity()
	leave := nextWrote(t, conn)
	req.Equal(transport.OpLeave, leave.Op)

	require.Eventually(t, func() bool {
		_, ok := c.ActiveCommunity()
		return !ok
	}, time.Second, 2*time.Millisecond)

	// No rejoin happens on the next reconnect once the room was left.
	conn.readErr <- io.EOF
	conn2 := d.nextConn(t)
	waitStatus(t, c, domain.StatusConnected)
	assertNoWrote(t, conn2, 80*time.Millisecond)
}

func TestClient_Close_StopsTheLoopForGood(t *testing.T) {
	req := require.New(t)
	d := newFakeDialer(nil)
	c := newTestClient(t, d, nil)

	c.Connect()
	waitStatus(t, c, domain.StatusConnected)
	d.nextConn(t)

	req.NoError(c.Close())
	req.Equal(domain.StatusDisconnected, c.Status())

	// Posthumous sends reject cleanly.
	receipt := c.Send(domain.SendRequest{AuthorID: "u-1", DisplayName: "A", Text: "late"})
	req.ErrorIs(receipt.Wait(context.Background()), ErrSendWhileDisconnected)
}
