package chatclient

import (
	"sync"

	"community-hub/domain"
)

// StatusChange reports one transition of the connection lifecycle. Err is set
// when a failure caused the transition.
type StatusChange struct {
	Old domain.ConnectionStatus
	New domain.ConnectionStatus
	Err error
}

// Presence reports another participant joining or leaving the active
// community.
type Presence struct {
	CommunityID domain.CommunityID
	UserID      string
	DisplayName string
	Joined      bool
}

// History carries the recent messages of a community, oldest first, delivered
// once after a join is accepted.
type History struct {
	CommunityID domain.CommunityID
	Messages    []domain.Message
}

// Callbacks is the single replaceable callback set. RegisterCallbacks
// installs it whole; a later call replaces the previous set. Consumers that
// need independent subscriptions should use the On* methods instead.
type Callbacks struct {
	OnStatusChange    func(StatusChange)
	OnMessageReceived func(domain.Message)
	OnError           func(error)
}

// Subscription cancels one registered callback. Cancel is idempotent, and
// the zero value is a valid no-op subscription, which stub clients return.
type Subscription struct {
	once   sync.Once
	cancel func()
}

func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

type subEntry[T any] struct {
	id uint64
	fn func(T)
}

type subList[T any] struct {
	entries []subEntry[T]
}

func (l *subList[T]) add(id uint64, fn func(T)) {
	l.entries = append(l.entries, subEntry[T]{id: id, fn: fn})
}

func (l *subList[T]) remove(id uint64) {
	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return
		}
	}
}

func (l *subList[T]) snapshot() []func(T) {
	if len(l.entries) == 0 {
		return nil
	}
	fns := make([]func(T), len(l.entries))
	for i, e := range l.entries {
		fns[i] = e.fn
	}
	return fns
}

// hub fans events out to subscribers. Dispatch happens on the client run
// loop, one event at a time, so subscribers observe events in order. The
// mutex only guards the registration bookkeeping; callbacks run outside it,
// so a callback may freely add or cancel subscriptions. Events are never
// buffered: a callback registered after an event misses it.
type hub struct {
	mu         sync.RWMutex
	nextID     uint64
	registered *Callbacks

	status   subList[StatusChange]
	messages subList[domain.Message]
	errs     subList[error]
	presence subList[Presence]
	history  subList[History]
}

func newHub() *hub {
	return &hub{}
}

// register installs cbs as the one replaceable callback set, dropping any
// previously registered set.
func (h *hub) register(cbs Callbacks) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.registered = &cbs
}

func (h *hub) subscribe(add func(id uint64), remove func(id uint64)) *Subscription {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	add(id)
	h.mu.Unlock()

	return &Subscription{cancel: func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		remove(id)
	}}
}

func (h *hub) onStatusChange(fn func(StatusChange)) *Subscription {
	return h.subscribe(
		func(id uint64) { h.status.add(id, fn) },
		func(id uint64) { h.status.remove(id) },
	)
}

func (h *hub) onMessage(fn func(domain.Message)) *Subscription {
	return h.subscribe(
		func(id uint64) { h.messages.add(id, fn) },
		func(id uint64) { h.messages.remove(id) },
	)
}

func (h *hub) onError(fn func(error)) *Subscription {
	return h.subscribe(
		func(id uint64) { h.errs.add(id, fn) },
		func(id uint64) { h.errs.remove(id) },
	)
}

func (h *hub) onPresence(fn func(Presence)) *Subscription {
	return h.subscribe(
		func(id uint64) { h.presence.add(id, fn) },
		func(id uint64) { h.presence.remove(id) },
	)
}

func (h *hub) onHistory(fn func(History)) *Subscription {
	return h.subscribe(
		func(id uint64) { h.history.add(id, fn) },
		func(id uint64) { h.history.remove(id) },
	)
}

func (h *hub) emitStatus(ev StatusChange) {
	h.mu.RLock()
	cbs := h.registered
	fns := h.status.snapshot()
	h.mu.RUnlock()

	if cbs != nil && cbs.OnStatusChange != nil {
		cbs.OnStatusChange(ev)
	}
	for _, fn := range fns {
		fn(ev)
	}
}

func (h *hub) emitMessage(m domain.Message) {
	h.mu.RLock()
	cbs := h.registered
	fns := h.messages.snapshot()
	h.mu.RUnlock()

	if cbs != nil && cbs.OnMessageReceived != nil {
		cbs.OnMessageReceived(m)
	}
	for _, fn := range fns {
		fn(m)
	}
}

func (h *hub) emitError(err error) {
	h.mu.RLock()
	cbs := h.registered
	fns := h.errs.snapshot()
	h.mu.RUnlock()

	if cbs != nil && cbs.OnError != nil {
		cbs.OnError(err)
	}
	for _, fn := range fns {
		fn(err)
	}
}

func (h *hub) emitPresence(p Presence) {
	h.mu.RLock()
	fns := h.presence.snapshot()
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(p)
	}
}

func (h *hub) emitHistory(ev History) {
	h.mu.RLock()
	fns := h.history.snapshot()
	h.mu.RUnlock()

	for _, fn := range fns {
		fn(ev)
	}
}
