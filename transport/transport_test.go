package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"community-hub/domain"
)

func TestClassifyClose_MapsCausesToClasses(t *testing.T) {
	req := require.New(t)

	req.Equal(CloseLocal, ClassifyClose(nil))
	req.Equal(CloseLocal, ClassifyClose(context.Canceled))
	req.Equal(CloseLocal, ClassifyClose(fmt.Errorf("read frame: %w", net.ErrClosed)))

	req.Equal(CloseServerEnded, ClassifyClose(websocket.CloseError{Code: websocket.StatusNormalClosure}))
	req.Equal(CloseServerEnded, ClassifyClose(fmt.Errorf("read frame: %w", websocket.CloseError{Code: StatusSessionEnded, Reason: "shutdown"})))

	req.Equal(CloseDropped, ClassifyClose(io.EOF))
	req.Equal(CloseDropped, ClassifyClose(websocket.CloseError{Code: websocket.StatusGoingAway}))
	req.Equal(CloseDropped, ClassifyClose(websocket.CloseError{Code: websocket.StatusAbnormalClosure}))
	req.Equal(CloseDropped, ClassifyClose(errors.New("connection reset by peer")))
}

func TestFrame_Decode_FailsOnEmptyData(t *testing.T) {
	req := require.New(t)

	var p JoinPayload
	err := Frame{Op: OpJoin}.Decode(&p)
	req.Error(err)
	req.Contains(err.Error(), "empty data")
}

func TestNewFrame_NilPayloadHasNoData(t *testing.T) {
	req := require.New(t)

	f, err := NewFrame(OpLeave, nil)
	req.NoError(err)
	req.Equal(OpLeave, f.Op)
	req.Empty(f.Data)
}

// TestWebsocketDialer_RoundTripAndServerEndedClose drives a real websocket
// against an in-process server: the client joins, receives one relayed
// message, then the server terminates the session with the application close
// code and the next read classifies as server-ended.
func TestWebsocketDialer_RoundTripAndServerEndedClose(t *testing.T) {
	req := require.New(t)

	relayed := domain.Message{
		ID:          uuid.New(),
		CommunityID: "cs-101",
		AuthorID:    "u-2",
		DisplayName: "Bob",
		Text:        "welcome",
		CreatedAt:   time.Now().UTC().Truncate(time.Millisecond),
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsc, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
		if err != nil {
			return
		}
		conn := NewConn(wsc, 0, 0)

		f, err := conn.ReadFrame(r.Context())
		if err != nil {
			return
		}
		var join JoinPayload
		if err := f.Decode(&join); err != nil || join.CommunityID != "cs-101" {
			wsc.Close(websocket.StatusPolicyViolation, "bad join")
			return
		}

		out, err := NewMessageFrame(relayed)
		if err != nil {
			return
		}
		if err := conn.WriteFrame(r.Context(), out); err != nil {
			return
		}
		wsc.Close(StatusSessionEnded, "session over")
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	dialer := NewWebsocketDialer(DialerOptions{Token: "tok-1", HandshakeTimeout: 2 * time.Second})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, err := dialer.Dial(ctx, wsURL)
	req.NoError(err)

	join, err := NewJoinFrame("cs-101")
	req.NoError(err)
	req.NoError(conn.WriteFrame(ctx, join))

	f, err := conn.ReadFrame(ctx)
	req.NoError(err)
	req.Equal(OpMessage, f.Op)

	var got domain.Message
	req.NoError(f.Decode(&got))
	req.Equal(relayed.ID, got.ID)
	req.Equal(relayed.Text, got.Text)
	req.Equal(relayed.CommunityID, got.CommunityID)

	_, err = conn.ReadFrame(ctx)
	req.Error(err)
	req.Equal(CloseServerEnded, ClassifyClose(err))
}

func TestWebsocketDialer_DialFailureIsAnError(t *testing.T) {
	req := require.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	dialer := NewWebsocketDialer(DialerOptions{HandshakeTimeout: 500 * time.Millisecond})
	_, err := dialer.Dial(ctx, "ws://127.0.0.1:1/ws")
	req.Error(err)
}
