package eventloop

import (
	"log/slog"
	"sync"
)

// Loop runs posted tasks one at a time, in the order they were posted, on a
// single goroutine. It is the control context that environment callbacks are
// serialized onto.
//
// The task queue is unbounded so that a task may post further tasks (or
// trigger callbacks that do) without blocking on itself.
type Loop struct {
	mu     sync.Mutex
	tasks  []func()
	closed bool

	wake   chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

// New starts a loop goroutine.
func New(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.run()
	return l
}

// Post queues fn for execution. It reports false if the loop is closed, in
// which case fn is dropped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Barrier blocks until every task posted before the call has run. It must
// not be called from a task on the same loop.
func (l *Loop) Barrier() {
	reached := make(chan struct{})
	if !l.Post(func() { close(reached) }) {
		return
	}
	select {
	case <-reached:
	case <-l.done:
	}
}

// Close stops the loop. Tasks that have not started are discarded. Close
// does not wait for a running task to finish, so it is safe to call from
// inside a task; use Done to wait.
func (l *Loop) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	l.tasks = nil
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) run() {
	defer close(l.done)

	for range l.wake {
		for {
			l.mu.Lock()
			if l.closed {
				l.mu.Unlock()
				return
			}
			if len(l.tasks) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.tasks[0]
			l.tasks[0] = nil
			l.tasks = l.tasks[1:]
			l.mu.Unlock()

			l.exec(fn)
		}
	}
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			l.logger.Error("eventloop task panicked", "panic", p)
		}
	}()
	fn()
}
