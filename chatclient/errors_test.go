package chatclient

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestError_IsMatchesByCode(t *testing.T) {
	req := require.New(t)

	err := wrapError(CodeReconnectExhausted, "gave up after 5 attempts", io.EOF)

	req.ErrorIs(err, ErrReconnectExhausted)
	req.NotErrorIs(err, ErrTransportInit)
	req.ErrorIs(err, io.EOF)
}

func TestError_MessageIncludesCodeAndCause(t *testing.T) {
	req := require.New(t)

	err := wrapError(CodeTransportInit, "handshake failed", errors.New("boom"))
	req.Contains(err.Error(), "transport_init")
	req.Contains(err.Error(), "handshake failed")
	req.Contains(err.Error(), "boom")

	bare := newError(CodeSendWithoutActiveRoom, "join a community first")
	req.Contains(bare.Error(), "send_without_active_room")
	req.Nil(errors.Unwrap(bare))
}
