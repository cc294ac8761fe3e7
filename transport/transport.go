package transport

import "context"

// Conn is one established bidirectional connection carrying Frames.
// ReadFrame blocks until a frame arrives, the context ends, or the connection
// dies; the returned error can be classified with ClassifyClose. A Conn is
// owned by exactly one reader and one writer goroutine.
type Conn interface {
	ReadFrame(ctx context.Context) (Frame, error)
	WriteFrame(ctx context.Context, f Frame) error
	Close() error
}

// Dialer opens connections to a chat server. Implementations bound the
// handshake internally; the context only carries cancellation.
type Dialer interface {
	Dial(ctx context.Context, serverURL string) (Conn, error)
}
