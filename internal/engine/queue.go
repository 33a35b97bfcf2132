package engine

import "sync"

// Priority orders commands in the outbound queue.
type Priority int

const (
	// PriorityApp is for application-driven commands (deltas, cascade
	// output). Always served before poll traffic.
	PriorityApp Priority = iota

	// PriorityPoll is for scheduler-driven status queries.
	PriorityPoll
)

// command is one outbound command with its retry accounting.
type command struct {
	text     string
	priority Priority
	attempts int
}

// queue is a two-priority FIFO. App commands drain before poll commands;
// within a priority, order is strictly insertion order.
type queue struct {
	mu     sync.Mutex
	app    []command
	poll   []command
	notify chan struct{}
}

func newQueue() *queue {
	return &queue{notify: make(chan struct{}, 1)}
}

func (q *queue) push(c command) {
	q.mu.Lock()
	switch c.priority {
	case PriorityApp:
		q.app = append(q.app, c)
	default:
		q.poll = append(q.poll, c)
	}
	q.mu.Unlock()
	q.wake()
}

// pushFront requeues a failed command at the head of its priority band so
// the retry happens before anything queued behind it.
func (q *queue) pushFront(c command) {
	q.mu.Lock()
	switch c.priority {
	case PriorityApp:
		q.app = append([]command{c}, q.app...)
	default:
		q.poll = append([]command{c}, q.poll...)
	}
	q.mu.Unlock()
	q.wake()
}

func (q *queue) pop() (command, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.app) > 0 {
		c := q.app[0]
		q.app = q.app[1:]
		return c, true
	}
	if len(q.poll) > 0 {
		c := q.poll[0]
		q.poll = q.poll[1:]
		return c, true
	}
	return command{}, false
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.app) + len(q.poll)
}

func (q *queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
