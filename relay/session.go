package relay

import (
	"context"
	"log/slog"
	"sync"

	"community-hub/domain"
	"community-hub/observability"
	"community-hub/transport"
)

// Session is the relay-side face of one websocket connection. It consumes
// frames destined for its client and drains them to the wire from a single
// writer goroutine, so fanout never blocks on a slow reader.
//
// Consume provides best-effort delivery with no guarantees regarding
// ordering across sessions, durability, or retries. A session whose outbound
// buffer is full drops the frame and the drop is counted.
type Session struct {
	ID          string
	UserID      string
	DisplayName string

	// Community the session currently listens to, empty when none. Written
	// only by the connection's read loop through the service.
	Community domain.CommunityID

	log        *slog.Logger
	conn       transport.Conn
	outbound   chan transport.Frame
	monitoring *observability.MonitoringManager

	closeOnce sync.Once
	closed    chan struct{}
}

func NewSession(id, userID, displayName string, conn transport.Conn, outboundCapacity int, monitoring *observability.MonitoringManager, log *slog.Logger) *Session {
	return &Session{
		ID:          id,
		UserID:      userID,
		DisplayName: displayName,
		log:         log.With(slog.String("session_id", id)),
		conn:        conn,
		outbound:    make(chan transport.Frame, outboundCapacity),
		monitoring:  monitoring,
		closed:      make(chan struct{}),
	}
}

// Consume queues a frame for this session's writer. It never blocks: when
// the buffer is full or the session is closed, the frame is dropped.
func (s *Session) Consume(_ context.Context, f transport.Frame) error {
	select {
	case <-s.closed:
		return nil
	default:
	}
	select {
	case s.outbound <- f:
	default:
		s.monitoring.IncrDroppedDelivery()
		s.log.Debug("Outbound buffer full, frame lost", slog.String("op", string(f.Op)))
	}
	return nil
}

// WritePump drains the outbound buffer to the connection. It returns when
// the context ends, the session is closed, or a write fails. The caller owns
// the connection teardown.
func (s *Session) WritePump(ctx context.Context) error {
	for {
		select {
		case f := <-s.outbound:
			if err := s.conn.WriteFrame(ctx, f); err != nil {
				return err
			}
		case <-s.closed:
			s.log.Debug("Session closed, stopping writer")
			return nil
		case <-ctx.Done():
			s.log.Debug("Context done, stopping writer")
			return ctx.Err()
		}
	}
}

// Close stops the writer. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closed)
	})
}
