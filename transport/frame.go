// Package transport carries chat traffic over one persistent bidirectional
// connection. Both ends exchange Frame envelopes: a frame names an operation
// and holds its JSON payload. The package also owns the websocket
// implementation and the classification of connection-loss causes.
package transport

import (
	"encoding/json"
	"fmt"

	"community-hub/domain"
)

// Op names a logical operation carried by a Frame.
type Op string

const (
	// Client to server.
	OpJoin  Op = "join_community"
	OpLeave Op = "leave_community"
	OpSend  Op = "send_message"

	// Server to client.
	OpMessage  Op = "message_received"
	OpPresence Op = "presence"
	OpHistory  Op = "history"
	OpError    Op = "error"
)

// Frame is the wire envelope. Data holds the payload for Op, still encoded;
// the receiver decodes it into the payload type once the Op is known.
type Frame struct {
	Op   Op              `json:"op"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinPayload asks the server to subscribe the session to a community.
// No acknowledgment is defined for it.
type JoinPayload struct {
	CommunityID domain.CommunityID `json:"community_id"`
}

// LeavePayload tells the server the session left its community. Best effort,
// no acknowledgment.
type LeavePayload struct {
	CommunityID domain.CommunityID `json:"community_id"`
}

// PresencePayload reports a participant joining or leaving a community.
type PresencePayload struct {
	CommunityID domain.CommunityID `json:"community_id"`
	UserID      string             `json:"user_id"`
	DisplayName string             `json:"display_name,omitempty"`
	Joined      bool               `json:"joined"`
}

// HistoryPayload carries the most recent messages of a community, oldest
// first. The server sends it once, right after a join is accepted.
type HistoryPayload struct {
	CommunityID domain.CommunityID `json:"community_id"`
	Messages    []domain.Message   `json:"messages"`
}

// ErrorPayload is an error the server chose to surface to this session.
type ErrorPayload struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}

// NewFrame encodes payload into a Frame for op.
func NewFrame(op Op, payload any) (Frame, error) {
	if payload == nil {
		return Frame{Op: op}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Frame{}, fmt.Errorf("encode %s payload: %w", op, err)
	}
	return Frame{Op: op, Data: data}, nil
}

// Decode unmarshals the frame payload into v.
func (f Frame) Decode(v any) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("decode %s payload: empty data", f.Op)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", f.Op, err)
	}
	return nil
}

func NewJoinFrame(id domain.CommunityID) (Frame, error) {
	return NewFrame(OpJoin, JoinPayload{CommunityID: id})
}

func NewLeaveFrame(id domain.CommunityID) (Frame, error) {
	return NewFrame(OpLeave, LeavePayload{CommunityID: id})
}

func NewSendFrame(req domain.SendRequest) (Frame, error) {
	return NewFrame(OpSend, req)
}

func NewMessageFrame(m domain.Message) (Frame, error) {
	return NewFrame(OpMessage, m)
}

func NewPresenceFrame(p PresencePayload) (Frame, error) {
	return NewFrame(OpPresence, p)
}

func NewHistoryFrame(id domain.CommunityID, messages []domain.Message) (Frame, error) {
	return NewFrame(OpHistory, HistoryPayload{CommunityID: id, Messages: messages})
}

func NewErrorFrame(code, msg string) (Frame, error) {
	return NewFrame(OpError, ErrorPayload{Code: code, Msg: msg})
}
