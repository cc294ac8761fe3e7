package transport

import (
	"context"
	"errors"
	"net"

	"github.com/coder/websocket"
)

// CloseClass says why a connection stopped, from the local end's point of
// view. The reconnection policy branches on it: only CloseDropped triggers
// automatic recovery.
type CloseClass int

const (
	// CloseLocal: this process tore the connection down itself.
	CloseLocal CloseClass = iota
	// CloseServerEnded: the remote end terminated the session on purpose.
	CloseServerEnded
	// CloseDropped: the connection died for any other reason.
	CloseDropped
)

func (c CloseClass) String() string {
	switch c {
	case CloseLocal:
		return "local"
	case CloseServerEnded:
		return "server_ended"
	default:
		return "dropped"
	}
}

// ClassifyClose maps a read/write error to a CloseClass. A normal closure or
// the session-ended application code counts as intentional termination by the
// peer; cancellation and closed-socket errors are the local side shutting
// down; everything else, including EOF and peer restarts, is a drop.
func ClassifyClose(err error) CloseClass {
	if err == nil {
		return CloseLocal
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) {
		return CloseLocal
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, StatusSessionEnded:
		return CloseServerEnded
	}
	return CloseDropped
}
