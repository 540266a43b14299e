package voice

import (
	"sort"
	"sync"
	"time"
)

// Speech priorities. Lower wins. Equal priorities play in enqueue order.
const (
	PriorityTalk         = 1
	PriorityEmergency    = 2
	PriorityNotification = 3
	PriorityMonologue    = 4
)

// Utterance is one queued speech request.
type Utterance struct {
	Text       string
	Priority   int
	Volume     int
	EnqueuedAt time.Time
}

// speechQueue is a priority queue over (priority, enqueued_at). A playing
// utterance is never preempted; ordering applies only to waiting entries.
type speechQueue struct {
	mu      sync.Mutex
	items   []Utterance
	wake    chan struct{}
	closed  bool
}

func newSpeechQueue() *speechQueue {
	return &speechQueue{wake: make(chan struct{}, 1)}
}

// Push enqueues an utterance and wakes the speaker.
func (q *speechQueue) Push(u Utterance) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	if u.EnqueuedAt.IsZero() {
		u.EnqueuedAt = time.Now()
	}
	q.items = append(q.items, u)
	sort.SliceStable(q.items, func(i, j int) bool {
		if q.items[i].Priority != q.items[j].Priority {
			return q.items[i].Priority < q.items[j].Priority
		}
		return q.items[i].EnqueuedAt.Before(q.items[j].EnqueuedAt)
	})
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Pop removes the head entry, reporting false on an empty queue.
func (q *speechQueue) Pop() (Utterance, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Utterance{}, false
	}
	u := q.items[0]
	q.items = q.items[1:]
	return u, true
}

// Len returns the number of waiting utterances.
func (q *speechQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close drops pending entries and rejects further pushes.
func (q *speechQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.items = nil
}
