package hooks

import (
	"log/slog"
	"sync"
)

// Dispatcher decouples after-stage work from the commit path.
//
// Tasks are handed off to a buffered queue drained by one worker
// goroutine: a slow or failing subscriber can never stall or fail the
// writer. Close() drains remaining tasks before returning, which
// keeps tests and shutdown deterministic.
type Dispatcher struct {
	tasks  chan func()
	done   chan struct{}
	closed bool
	mu     sync.Mutex
}

// DefaultQueueDepth bounds the after-stage backlog. When the queue is
// full the task is dropped and logged; after-stage delivery is
// best-effort by contract.
const DefaultQueueDepth = 256

// NewDispatcher starts the worker goroutine.
func NewDispatcher() *Dispatcher {
	d := &Dispatcher{
		tasks: make(chan func(), DefaultQueueDepth),
		done:  make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *Dispatcher) run() {
	for task := range d.tasks {
		task()
	}
	close(d.done)
}

// Enqueue hands a task to the worker. Never blocks: if the queue is
// full the task is dropped with a log line.
func (d *Dispatcher) Enqueue(task func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		slog.Warn("after-stage task dropped: dispatcher closed")
		return
	}
	select {
	case d.tasks <- task:
	default:
		slog.Warn("after-stage task dropped: queue full", "depth", DefaultQueueDepth)
	}
}

// Close stops accepting tasks and waits for the queue to drain.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		<-d.done
		return
	}
	d.closed = true
	close(d.tasks)
	d.mu.Unlock()
	<-d.done
}
