// Package projection builds a local, renderable view of one chat connection.
// It tracks ordering and annotations for the message timeline.
// It does not render anything and never talks to the wire directly.
package projection

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/abadojack/whatlanggo"
	"github.com/go-playground/validator/v10"

	"community-hub/chatclient"
	"community-hub/contract"
	"community-hub/domain"
)

var validate = validator.New()

// DefaultMessageCap bounds the timeline when the caller passes no capacity.
const DefaultMessageCap = 500

// ViewMessage wraps a relayed message with presentation annotations.
type ViewMessage struct {
	domain.Message

	// Lang is the ISO 639-1 code detected from the text, empty when the
	// message has no text or the language is unknown.
	Lang string
}

// ChatView adapts a chat connection for presentation code: it mirrors the
// incoming events into state a renderer can poll from any goroutine. The
// underlying client stays caller-owned; Close releases only the
// subscriptions the view holds.
type ChatView struct {
	client contract.ChatClient
	log    *slog.Logger

	mu       sync.RWMutex
	cap      int
	messages []ViewMessage
	lastErr  error

	subs []*chatclient.Subscription
}

// NewChatView wires a view onto client. capacity bounds the kept timeline,
// oldest messages dropped first; zero or negative applies DefaultMessageCap.
func NewChatView(client contract.ChatClient, capacity int, log *slog.Logger) *ChatView {
	if capacity <= 0 {
		capacity = DefaultMessageCap
	}
	v := &ChatView{
		client: client,
		log:    log,
		cap:    capacity,
	}

	v.subs = append(v.subs,
		client.OnMessage(v.appendMessage),
		client.OnHistory(v.seedFromHistory),
		client.OnError(v.recordError),
		client.OnStatusChange(func(change chatclient.StatusChange) {
			if change.Err != nil {
				v.recordError(change.Err)
			}
		}),
	)
	return v
}

// Status reports the live connection status.
func (v *ChatView) Status() domain.ConnectionStatus {
	return v.client.Status()
}

// Messages returns a copy of the timeline, oldest first.
func (v *ChatView) Messages() []ViewMessage {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]ViewMessage, len(v.messages))
	copy(out, v.messages)
	return out
}

// LastError returns the most recent error surfaced by the connection, nil
// after ClearError.
func (v *ChatView) LastError() error {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastErr
}

func (v *ChatView) Connect()    { v.client.Connect() }
func (v *ChatView) Disconnect() { v.client.Disconnect() }
func (v *ChatView) Reconnect()  { v.client.Reconnect() }

func (v *ChatView) JoinCommunity(id domain.CommunityID) { v.client.JoinCommunity(id) }
func (v *ChatView) LeaveCommunity()                     { v.client.LeaveCommunity() }

// SendMessage validates the content shape before it reaches the wire: a
// request needs text or at least one image, and image entries must be URIs.
// Invalid requests settle the receipt locally and the transport stays
// untouched.
func (v *ChatView) SendMessage(req domain.SendRequest) *chatclient.SendReceipt {
	if err := validate.Struct(req); err != nil {
		return chatclient.SettledReceipt(fmt.Errorf("invalid send request: %w", err))
	}
	return v.client.Send(req)
}

// ClearMessages empties the timeline, e.g. when the renderer switches rooms.
func (v *ChatView) ClearMessages() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = nil
}

// ClearError acknowledges the last error.
func (v *ChatView) ClearError() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastErr = nil
}

// Close cancels the view's subscriptions. The client itself is not closed.
func (v *ChatView) Close() {
	for _, sub := range v.subs {
		sub.Cancel()
	}
}

func (v *ChatView) appendMessage(m domain.Message) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = append(v.messages, annotate(m))
	if len(v.messages) > v.cap {
		v.messages = v.messages[len(v.messages)-v.cap:]
	}
}

// seedFromHistory replaces the timeline with the replay delivered after a
// join, so the view starts from what the community already said.
func (v *ChatView) seedFromHistory(h chatclient.History) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = v.messages[:0]
	start := 0
	if len(h.Messages) > v.cap {
		start = len(h.Messages) - v.cap
	}
	for _, m := range h.Messages[start:] {
		v.messages = append(v.messages, annotate(m))
	}
	v.log.Debug("Timeline seeded from history",
		slog.String("community", string(h.CommunityID)),
		slog.Int("messages", len(v.messages)))
}

func (v *ChatView) recordError(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.lastErr = err
}

func annotate(m domain.Message) ViewMessage {
	vm := ViewMessage{Message: m}
	if m.Text != "" {
		info := whatlanggo.Detect(m.Text)
		vm.Lang = info.Lang.Iso6391()
	}
	return vm
}
