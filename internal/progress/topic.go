package progress

import (
	"fmt"
	"log/slog"
	"sync"

	"reelforge/internal/logging"
)

// DefaultQueueLimit bounds each subscriber mailbox.
const DefaultQueueLimit = 256

// Topic delivers events of type E to subscribers keyed by job id.
type Topic[E Event] struct {
	channel Channel
	limit   int
	logger  *slog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]*mailbox[E]
	closed bool
}

// NewTopic constructs a topic. limit <= 0 uses DefaultQueueLimit.
func NewTopic[E Event](channel Channel, limit int, logger *slog.Logger) *Topic[E] {
	if limit <= 0 {
		limit = DefaultQueueLimit
	}
	return &Topic[E]{
		channel: channel,
		limit:   limit,
		logger:  logging.NewComponentLogger(logger, "progress").With(logging.String("channel", string(channel))),
		subs:    make(map[string]map[uint64]*mailbox[E]),
	}
}

// Channel returns the topic's channel name.
func (t *Topic[E]) Channel() Channel {
	return t.channel
}

// Subscribe registers handler for events of jobID published from now on. The
// returned function removes the subscription; calling it more than once is
// safe. Handlers for one subscription are invoked sequentially in publish
// order.
func (t *Topic[E]) Subscribe(jobID string, handler func(E)) (unsubscribe func()) {
	if handler == nil {
		return func() {}
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return func() {}
	}
	t.nextID++
	id := t.nextID
	box := newMailbox(handler, t.limit, t.logger.With(logging.String(logging.FieldJobID, jobID)))
	if t.subs[jobID] == nil {
		t.subs[jobID] = make(map[uint64]*mailbox[E])
	}
	t.subs[jobID][id] = box
	t.mu.Unlock()

	go box.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			if jobSubs, ok := t.subs[jobID]; ok {
				delete(jobSubs, id)
				if len(jobSubs) == 0 {
					delete(t.subs, jobID)
				}
			}
			t.mu.Unlock()
			box.close()
		})
	}
}

// Publish enqueues event for every subscriber of jobID registered at the time
// of the call. It never blocks on subscriber handlers.
func (t *Topic[E]) Publish(jobID string, event E) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, box := range t.subs[jobID] {
		box.push(event)
	}
}

// Subscribers returns the number of live subscriptions for jobID.
func (t *Topic[E]) Subscribers(jobID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs[jobID])
}

// Close stops every mailbox. Later subscriptions are no-ops.
func (t *Topic[E]) Close() {
	t.mu.Lock()
	subs := t.subs
	t.subs = make(map[string]map[uint64]*mailbox[E])
	t.closed = true
	t.mu.Unlock()
	for _, jobSubs := range subs {
		for _, box := range jobSubs {
			box.close()
		}
	}
}

type mailbox[E Event] struct {
	handler func(E)
	limit   int
	logger  *slog.Logger

	mu      sync.Mutex
	queue   []E
	dropped int
	closed  bool
	signal  chan struct{}
	done    chan struct{}
}

func newMailbox[E Event](handler func(E), limit int, logger *slog.Logger) *mailbox[E] {
	return &mailbox[E]{
		handler: handler,
		limit:   limit,
		logger:  logger,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func (m *mailbox[E]) push(event E) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if len(m.queue) >= m.limit {
		m.dropOldestLocked()
	}
	m.queue = append(m.queue, event)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// dropOldestLocked removes the oldest non-terminal event. When every queued
// event is terminal the queue grows instead.
func (m *mailbox[E]) dropOldestLocked() {
	for i, queued := range m.queue {
		if queued.Terminal() {
			continue
		}
		m.queue = append(m.queue[:i], m.queue[i+1:]...)
		m.dropped++
		if m.dropped == 1 || m.dropped%100 == 0 {
			m.logger.Warn("progress subscriber falling behind; dropping oldest events",
				logging.String(logging.FieldEventType, "progress_events_dropped"),
				logging.Int("dropped_total", m.dropped),
				logging.String(logging.FieldErrorHint, "check the observer's connection"),
				logging.String(logging.FieldImpact, "observer misses intermediate progress"),
			)
		}
		return
	}
}

func (m *mailbox[E]) take() []E {
	m.mu.Lock()
	defer m.mu.Unlock()
	batch := m.queue
	m.queue = nil
	return batch
}

func (m *mailbox[E]) run() {
	for {
		select {
		case <-m.done:
			return
		case <-m.signal:
		}
		for _, event := range m.take() {
			select {
			case <-m.done:
				return
			default:
			}
			m.deliver(event)
		}
	}
}

func (m *mailbox[E]) deliver(event E) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("progress handler panicked",
				logging.String(logging.FieldEventType, "progress_handler_panic"),
				logging.String("panic", fmt.Sprint(r)),
				logging.String(logging.FieldErrorHint, "fix the subscriber handler"),
			)
		}
	}()
	m.handler(event)
}

func (m *mailbox[E]) close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	m.queue = nil
	close(m.done)
}
