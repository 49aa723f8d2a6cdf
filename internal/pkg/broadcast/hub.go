// Package broadcast fans a sequence of values out to many subscribers.
// Every subscriber observes the same values in the same order; a slow
// subscriber never blocks the publisher and never loses a value, even when
// the hub closes. Only cancelling a subscription discards what it has not read.
package broadcast

import "sync"

// Hub is an ordered multicast of T
type Hub[T any] struct {
	mu     sync.Mutex
	subs   map[int]*mailbox[T]
	nextID int
	closed bool
}

func NewHub[T any]() *Hub[T] {
	return &Hub[T]{subs: make(map[int]*mailbox[T])}
}

// Subscribe registers a subscriber whose stream starts with initial.
// The returned cancel func is idempotent and closes the channel.
func (h *Hub[T]) Subscribe(initial T) (<-chan T, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	box := newMailbox[T]()
	if h.closed {
		box.finish()
		return box.out, func() {}
	}

	id := h.nextID
	h.nextID++
	h.subs[id] = box
	box.push(initial)

	return box.out, func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
		box.stop()
	}
}

// Publish delivers v to every current subscriber
func (h *Hub[T]) Publish(v T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, box := range h.subs {
		box.push(v)
	}
}

// Len reports the number of live subscribers
func (h *Hub[T]) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close ends every subscription. Each channel closes after the values
// already published to it have been read.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, box := range h.subs {
		box.finish()
		delete(h.subs, id)
	}
}

// mailbox is an unbounded FIFO drained into out by its own goroutine
type mailbox[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	queue   []T
	closed  bool // no more pushes
	stopped bool // no more deliveries
	out     chan T
	done    chan struct{}
}

func newMailbox[T any]() *mailbox[T] {
	m := &mailbox[T]{out: make(chan T), done: make(chan struct{})}
	m.cond = sync.NewCond(&m.mu)
	go m.run()
	return m
}

func (m *mailbox[T]) push(v T) {
	m.mu.Lock()
	if !m.closed {
		m.queue = append(m.queue, v)
		m.cond.Signal()
	}
	m.mu.Unlock()
}

// finish refuses new values; out closes once the queue is drained
func (m *mailbox[T]) finish() {
	m.mu.Lock()
	m.closed = true
	m.cond.Signal()
	m.mu.Unlock()
}

// stop discards the queue and closes out without waiting for a reader
func (m *mailbox[T]) stop() {
	m.mu.Lock()
	if !m.stopped {
		m.closed = true
		m.stopped = true
		m.queue = nil
		close(m.done)
		m.cond.Signal()
	}
	m.mu.Unlock()
}

func (m *mailbox[T]) run() {
	defer close(m.out)
	for {
		m.mu.Lock()
		for len(m.queue) == 0 && !m.closed {
			m.cond.Wait()
		}
		if len(m.queue) == 0 {
			m.mu.Unlock()
			return
		}
		v := m.queue[0]
		var zero T
		m.queue[0] = zero
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case m.out <- v:
		case <-m.done:
			return
		}
	}
}
