package ingest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"talko/pkg/models"
)

// OpType represents a mutation kind for the ingest pipeline.
type OpType string

const (
	OpAppend     OpType = "append"
	OpEdit       OpType = "edit"
	OpReact      OpType = "react"
	OpSoftDelete OpType = "soft_delete"
	OpHardDelete OpType = "hard_delete"
)

// Op is a lightweight in-memory representation of a message mutation
// destined for the write pipeline. Payload carries the text (append/edit) or
// reaction symbol (react) and may be backed by a pooled ByteBuffer; the
// worker calls Item.Done() when finished.
type Op struct {
	Type  OpType
	Actor string
	// Peer is the other participant; set for appends only.
	Peer string
	// MsgID targets an existing message; set for everything but appends.
	MsgID string
	// Payload holds the text or reaction symbol for the operation.
	Payload []byte
	// Dedup is the client idempotency token, if any.
	Dedup string
	// EnqSeq is a monotonic enqueue sequence assigned when the op is
	// accepted into the in-memory queue.
	EnqSeq uint64
	// Reply receives the commit outcome. Buffered to 1; the worker never
	// blocks on it.
	Reply chan Result
}

// Result is the commit outcome delivered back to the enqueuing handler.
type Result struct {
	Msg *models.Message
	Err error
}

// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
var ErrQueueFull = errors.New("ingest queue full")

// Item wraps an Op and owns a pooled ByteBuffer if one was used. The worker
// MUST call Done() exactly once after processing the item to return pooled
// resources.
type Item struct {
	Op *Op

	buf  *bytebufferpool.ByteBuffer
	once sync.Once
}

// Done releases pooled resources (buffer + op) back to their pools.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.buf != nil {
			// avoid retaining huge buffers in the pool
			if cap(it.buf.B) > maxPooledBuffer {
				it.buf = nil
			} else {
				bytebufferpool.Put(it.buf)
				it.buf = nil
			}
		}
		if it.Op != nil {
			it.Op.Payload = nil
			it.Op.Reply = nil
			opPool.Put(it.Op)
			it.Op = nil
		}
		itemPool.Put(it)
	})
}

// Queue is a bounded in-memory queue between the API layer and the single
// writer goroutine. It is safe for concurrent producers.
type Queue struct {
	ch       chan *Item
	capacity int
	dropped  uint64
}

var opPool = sync.Pool{New: func() any { return &Op{} }}
var itemPool = sync.Pool{New: func() any { return &Item{} }}

// maxPooledBuffer controls the largest buffer size that will be returned to
// the pool. Larger buffers are dropped so resident memory stays bounded.
var maxPooledBuffer = 256 * 1024

// SetMaxPooledBuffer overrides the pooled-buffer cap (from config).
func SetMaxPooledBuffer(n int) {
	if n > 0 {
		maxPooledBuffer = n
	}
}

// NewQueue creates a bounded Queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 64 * 1024
	}
	return &Queue{ch: make(chan *Item, capacity), capacity: capacity}
}

var enqSeq uint64

// Out returns the read-only consumer channel; do not close it from callers.
func (q *Queue) Out() <-chan *Item { return q.ch }

// pack copies op into pooled storage and returns the item plus the reply
// channel the caller should await.
func (q *Queue) pack(op *Op) (*Item, chan Result) {
	newOp := opPool.Get().(*Op)
	*newOp = *op
	newOp.EnqSeq = atomic.AddUint64(&enqSeq, 1)
	newOp.Reply = make(chan Result, 1)

	var bb *bytebufferpool.ByteBuffer
	if len(op.Payload) > 0 {
		bb = bytebufferpool.Get()
		bb.B = append(bb.B[:0], op.Payload...)
		newOp.Payload = bb.B[:len(op.Payload)]
	}

	it := itemPool.Get().(*Item)
	*it = Item{Op: newOp, buf: bb}
	return it, newOp.Reply
}

func (q *Queue) release(it *Item) {
	atomic.AddUint64(&q.dropped, 1)
	enqueueFailTotal.Inc()
	it.Done()
}

// TryEnqueue attempts to enqueue an Op without blocking. On success the
// returned channel receives exactly one Result once the op commits. If the
// queue is full ErrQueueFull is returned and the caller should reject the
// request as transient.
func (q *Queue) TryEnqueue(op *Op) (<-chan Result, error) {
	enqueueTotal.Inc()
	it, reply := q.pack(op)
	select {
	case q.ch <- it:
		return reply, nil
	default:
		q.release(it)
		return nil, ErrQueueFull
	}
}

// Enqueue blocks until space is available or ctx is done.
func (q *Queue) Enqueue(ctx context.Context, op *Op) (<-chan Result, error) {
	enqueueTotal.Inc()
	it, reply := q.pack(op)
	select {
	case q.ch <- it:
		return reply, nil
	case <-ctx.Done():
		q.release(it)
		return nil, ctx.Err()
	}
}

// CloseAndDrain closes the queue channel and drains remaining items,
// failing their waiters and releasing pooled resources.
func (q *Queue) CloseAndDrain() {
	close(q.ch)
	for it := range q.ch {
		if it.Op != nil && it.Op.Reply != nil {
			it.Op.Reply <- Result{Err: ErrQueueFull}
		}
		it.Done()
	}
}

// Len returns the current number of items in the queue.
func (q *Queue) Len() int { return len(q.ch) }

// Cap returns the configured capacity of the queue.
func (q *Queue) Cap() int { return q.capacity }

// Dropped returns operations rejected due to a full queue or enqueue
// cancellation.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }
