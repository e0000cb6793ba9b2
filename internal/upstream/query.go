package upstream

import (
	"context"
	"sync"
)

// QueryRequest describes one prompt against the engine.
type QueryRequest struct {
	Prompt         string
	ConversationID string
	PermissionMode string
	WorkDir        string
}

// Engine starts upstream queries. The CLI implementation spawns a process;
// tests substitute channel-backed fakes.
type Engine interface {
	Start(ctx context.Context, req QueryRequest) (*Query, error)
}

// Query is the ownership handle for one in-flight upstream stream: the
// message channel plus its cancellation token and reason tag.
type Query struct {
	messages chan Message

	mu     sync.Mutex
	cancel context.CancelFunc
	reason AbortReason
	err    error
}

// NewQuery builds a query around a cancel function. The engine feeding the
// channel must call finish (via Finish) and close the channel when done.
func NewQuery(cancel context.CancelFunc) *Query {
	return &Query{
		messages: make(chan Message, 16),
		cancel:   cancel,
	}
}

// Messages returns the lazy message sequence. The channel closes when the
// query finishes for any reason; Err reports the terminal error afterwards.
func (q *Query) Messages() <-chan Message {
	return q.messages
}

// Cancel fires the cancellation token, recording the first reason given.
// Idempotent; later reasons are ignored so the original cause survives.
func (q *Query) Cancel(reason AbortReason) {
	q.mu.Lock()
	if q.reason == "" {
		q.reason = reason
	}
	cancel := q.cancel
	q.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// CancelReason returns the recorded reason, or empty when never cancelled.
func (q *Query) CancelReason() AbortReason {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.reason
}

// Cancelled reports whether the cancellation token has fired.
func (q *Query) Cancelled() bool {
	return q.CancelReason() != ""
}

// Err returns the terminal error; meaningful once Messages has closed.
func (q *Query) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

// Finish records the terminal error and closes the message channel. Engine
// use only; must be called exactly once.
func (q *Query) Finish(err error) {
	q.mu.Lock()
	q.err = err
	q.mu.Unlock()
	close(q.messages)
}

// Feed delivers one message unless ctx is done. Engine use only.
func (q *Query) Feed(ctx context.Context, msg Message) bool {
	select {
	case q.messages <- msg:
		return true
	case <-ctx.Done():
		return false
	}
}
