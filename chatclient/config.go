package chatclient

import (
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"community-hub/transport"
)

var validate = validator.New()

// Config holds everything a Client needs. Zero values are filled by
// DefaultConfig; Validate rejects inconsistent combinations.
type Config struct {
	// ServerURL is the websocket endpoint, e.g. "ws://localhost:8080/ws".
	ServerURL string `validate:"required,uri"`

	// Token authenticates the handshake. Empty connects anonymously.
	Token string

	// HandshakeTimeout bounds each dial attempt.
	HandshakeTimeout time.Duration `validate:"min=0"`

	// ReadTimeout bounds a single frame read. Zero disables the deadline;
	// chat connections are legitimately idle between messages.
	ReadTimeout time.Duration `validate:"min=0"`

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration `validate:"min=0"`

	// BaseDelay is the first reconnection delay. Each further attempt doubles
	// it, capped at MaxDelay.
	BaseDelay time.Duration `validate:"min=1"`

	// MaxDelay caps the reconnection delay.
	MaxDelay time.Duration `validate:"gtefield=BaseDelay"`

	// MaxReconnectAttempts bounds automatic recovery. Once exhausted the
	// client stays in the error state until a manual Reconnect.
	MaxReconnectAttempts int `validate:"min=1"`

	// SendBuffer is the capacity of the outbound frame queue.
	SendBuffer int `validate:"min=1"`

	// Logger receives client lifecycle logs. Defaults to slog.Default().
	Logger *slog.Logger `validate:"-"`

	// Dialer overrides the transport used to reach the server. Defaults to
	// the websocket dialer built from this config.
	Dialer transport.Dialer `validate:"-"`
}

// DefaultConfig returns the standard configuration for serverURL: 10s
// handshake, no read deadline, 10s writes, and the 1s/30s/5-attempt
// reconnection policy.
func DefaultConfig(serverURL string) Config {
	return Config{
		ServerURL:            serverURL,
		HandshakeTimeout:     10 * time.Second,
		ReadTimeout:          0,
		WriteTimeout:         10 * time.Second,
		BaseDelay:            1000 * time.Millisecond,
		MaxDelay:             30000 * time.Millisecond,
		MaxReconnectAttempts: 5,
		SendBuffer:           64,
	}
}

// Validate checks the configuration and reports an invalid-config error
// naming the first offending field.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return wrapError(CodeInvalidConfig, "config validation failed", err)
	}
	return nil
}
