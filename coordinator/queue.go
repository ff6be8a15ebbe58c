package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/richinex/textai/llm"
)

// Priority selects the dispatch class of a request.
type Priority int

const (
	PriorityNormal Priority = iota
	PriorityExpedited
)

func (p Priority) String() string {
	if p == PriorityExpedited {
		return "expedited"
	}
	return "normal"
}

// Request is a queued question. It is immutable once enqueued.
type Request struct {
	ID         string
	Question   string
	Params     Params
	Priority   Priority
	EnqueuedAt time.Time

	// ctx is the caller's context; a canceled caller abandons the request.
	ctx    context.Context
	result chan result
}

type result struct {
	resp llm.Response
	err  error
}

func newRequest(ctx context.Context, question string, params Params, priority Priority) *Request {
	return &Request{
		ID:         uuid.NewString(),
		Question:   question,
		Params:     params,
		Priority:   priority,
		EnqueuedAt: time.Now(),
		ctx:        ctx,
		result:     make(chan result, 1),
	}
}

// finish publishes the outcome. Only the first call has effect.
func (r *Request) finish(resp llm.Response, err error) {
	select {
	case r.result <- result{resp: resp, err: err}:
	default:
	}
}

// Pending is a handle to an enqueued request.
type Pending struct {
	ID     string
	result <-chan result
}

// Wait blocks until the request completes or ctx is done. Abandoning the
// wait does not remove the request from the queue; it is still dispatched
// unless the context it was enqueued with is canceled too.
func (p *Pending) Wait(ctx context.Context) (llm.Response, error) {
	select {
	case r := <-p.result:
		return r.resp, r.err
	case <-ctx.Done():
		return llm.Response{}, ctx.Err()
	}
}

// requestQueue is a bounded two-class FIFO safe for concurrent producers.
// wake receives a token whenever a request is pushed.
type requestQueue struct {
	mu        sync.Mutex
	expedited []*Request
	normal    []*Request
	capacity  int
	closed    bool
	wake      chan struct{}
}

func newRequestQueue(capacity int, wake chan struct{}) *requestQueue {
	return &requestQueue{capacity: capacity, wake: wake}
}

func (q *requestQueue) push(r *Request) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrShutdown
	}
	if len(q.expedited)+len(q.normal) >= q.capacity {
		return ErrQueueFull
	}
	if r.Priority == PriorityExpedited {
		q.expedited = append(q.expedited, r)
	} else {
		q.normal = append(q.normal, r)
	}
	notify(q.wake)
	return nil
}

// pop returns the next request, or nil when the queue is empty.
func (q *requestQueue) pop() *Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	var r *Request
	switch {
	case len(q.expedited) > 0:
		r = q.expedited[0]
		q.expedited[0] = nil
		q.expedited = q.expedited[1:]
	case len(q.normal) > 0:
		r = q.normal[0]
		q.normal[0] = nil
		q.normal = q.normal[1:]
	}
	return r
}

func (q *requestQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.expedited) + len(q.normal)
}

// close refuses further pushes and returns every queued request in
// dispatch order.
func (q *requestQueue) close() []*Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	drained := append(q.expedited, q.normal...)
	q.expedited, q.normal = nil, nil
	return drained
}

// notify performs a non-blocking send on a 1-buffered signal channel.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
