package chatclient

import (
	"context"
	"sync"
)

// SendReceipt is the asynchronous result of one Send call. It resolves when
// the client has queued the frame for transmission; it never waits for the
// server, which defines no acknowledgment for sends. A nil Err after Done
// means "queued", not "persisted".
type SendReceipt struct {
	once sync.Once
	done chan struct{}
	err  error
}

func newSendReceipt() *SendReceipt {
	return &SendReceipt{done: make(chan struct{})}
}

// SettledReceipt returns a receipt that has already completed with err, nil
// meaning success. The live client settles receipts through its run loop;
// this is for stub clients that answer without queueing anything.
func SettledReceipt(err error) *SendReceipt {
	r := newSendReceipt()
	if err != nil {
		r.fail(err)
	} else {
		r.resolve()
	}
	return r
}

func (r *SendReceipt) resolve() {
	r.once.Do(func() { close(r.done) })
}

func (r *SendReceipt) fail(err error) {
	r.once.Do(func() {
		r.err = err
		close(r.done)
	})
}

// Done is closed once the send has been accepted or rejected.
func (r *SendReceipt) Done() <-chan struct{} {
	return r.done
}

// Err returns the outcome. While the send is still pending it returns nil;
// check Done first.
func (r *SendReceipt) Err() error {
	select {
	case <-r.done:
		return r.err
	default:
		return nil
	}
}

// Wait blocks until the receipt settles or ctx ends.
func (r *SendReceipt) Wait(ctx context.Context) error {
	select {
	case <-r.done:
		return r.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
