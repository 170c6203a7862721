package realtime

import (
	"errors"
	"sync"

	"github.com/eleven-am/voice-link/internal/transport"
)

const DefaultQueueCapacity = 1000

var ErrQueueFull = errors.New("outbound queue full")

type queuedMessage struct {
	eventType transport.EventType
	payload   []byte
}

// OutboundQueue holds encoded messages while the connection is not ready.
// Pushes beyond capacity are rejected; the queue never evicts.
type OutboundQueue struct {
	mu       sync.Mutex
	items    []queuedMessage
	capacity int
}

func NewOutboundQueue(capacity int) *OutboundQueue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}
	return &OutboundQueue{capacity: capacity}
}

func (q *OutboundQueue) Push(msg queuedMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) >= q.capacity {
		return ErrQueueFull
	}
	q.items = append(q.items, msg)
	return nil
}

// Pop removes the oldest message.
func (q *OutboundQueue) Pop() (queuedMessage, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return queuedMessage{}, false
	}
	msg := q.items[0]
	q.items[0] = queuedMessage{}
	q.items = q.items[1:]
	return msg, true
}

// Requeue puts a message that failed to send back at the tail. It ignores
// capacity so a drained message is never lost.
func (q *OutboundQueue) Requeue(msg queuedMessage) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()
}

func (q *OutboundQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}

func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *OutboundQueue) Cap() int {
	return q.capacity
}
