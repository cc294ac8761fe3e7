package chatclient

import (
	"testing"

	"github.com/stretchr/testify/require"

	"community-hub/domain"
)

func TestHub_RegisterCallbacks_LastRegistrationWins(t *testing.T) {
	req := require.New(t)
	h := newHub()

	var first, second []string
	h.register(Callbacks{
		OnMessageReceived: func(m domain.Message) { first = append(first, m.Text) },
	})
	h.emitMessage(domain.Message{Text: "one"})

	// A later registration replaces the whole set.
	h.register(Callbacks{
		OnMessageReceived: func(m domain.Message) { second = append(second, m.Text) },
	})
	h.emitMessage(domain.Message{Text: "two"})

	req.Equal([]string{"one"}, first)
	req.Equal([]string{"two"}, second)
}

func TestHub_Subscriptions_AreIndependentAndOrdered(t *testing.T) {
	req := require.New(t)
	h := newHub()

	var a, b []string
	subA := h.onMessage(func(m domain.Message) { a = append(a, m.Text) })
	h.onMessage(func(m domain.Message) { b = append(b, m.Text) })

	h.emitMessage(domain.Message{Text: "x"})
	subA.Cancel()
	h.emitMessage(domain.Message{Text: "y"})

	req.Equal([]string{"x"}, a)
	req.Equal([]string{"x", "y"}, b)
}

func TestHub_NoBuffering_LateSubscriberMissesEvents(t *testing.T) {
	req := require.New(t)
	h := newHub()

	h.emitStatus(StatusChange{Old: domain.StatusDisconnected, New: domain.StatusConnecting})

	var got []StatusChange
	h.onStatusChange(func(ev StatusChange) { got = append(got, ev) })
	req.Empty(got)

	h.emitStatus(StatusChange{Old: domain.StatusConnecting, New: domain.StatusConnected})
	req.Len(got, 1)
	req.Equal(domain.StatusConnected, got[0].New)
}

func TestHub_CancelIsIdempotent(t *testing.T) {
	req := require.New(t)
	h := newHub()

	var n int
	sub := h.onError(func(error) { n++ })
	sub.Cancel()
	sub.Cancel()

	h.emitError(ErrServerRelayed)
	req.Zero(n)
}

func TestHub_CallbackMayCancelDuringDispatch(t *testing.T) {
	req := require.New(t)
	h := newHub()

	var sub *Subscription
	var calls int
	sub = h.onMessage(func(domain.Message) {
		calls++
		sub.Cancel()
	})

	h.emitMessage(domain.Message{Text: "a"})
	h.emitMessage(domain.Message{Text: "b"})
	req.Equal(1, calls)
}
