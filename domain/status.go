// Package domain contains core concepts of the community chat system.
// This file defines the connection lifecycle states and the legal
// transitions between them.
package domain

// ConnectionStatus is the externally visible state of a chat connection.
// Exactly one value holds at any instant; it is process-local, never persisted.
type ConnectionStatus int

const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusError
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from s to next is a legal lifecycle
// transition. Teardown (a disconnect) is legal from every state, which is why
// StatusDisconnected appears in every row. A state never transitions to itself;
// repeated retries while reconnecting are a no-op, not a transition.
func (s ConnectionStatus) CanTransition(next ConnectionStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case StatusDisconnected:
		return next == StatusConnecting
	case StatusConnecting:
		return next == StatusConnected || next == StatusError || next == StatusDisconnected
	case StatusConnected:
		return next == StatusReconnecting || next == StatusDisconnected
	case StatusReconnecting:
		return next == StatusConnected || next == StatusError || next == StatusDisconnected
	case StatusError:
		return next == StatusConnecting || next == StatusDisconnected
	default:
		return false
	}
}
