package scope

import (
	"context"
	"fmt"
	"sync"
)

type task func()

// taskQueue is a FIFO of pending tasks. Enqueue is safe from any goroutine;
// tasks themselves run on whichever goroutine drives Tick.
type taskQueue struct {
	mu     sync.Mutex
	tasks  []task
	signal chan struct{} // buffered, size 1
}

func newTaskQueue() *taskQueue {
	return &taskQueue{
		tasks:  make([]task, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

func (q *taskQueue) enqueue(t task) {
	q.mu.Lock()
	q.tasks = append(q.tasks, t)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// take removes every task queued so far. Tasks enqueued while the batch runs
// belong to the next turn.
func (q *taskQueue) take() []task {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.tasks
	q.tasks = make([]task, 0, len(batch))
	return batch
}

func (q *taskQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Tick runs one turn: every task queued when it starts. It returns the number
// of tasks run.
func (rt *Runtime) Tick() int {
	batch := rt.queue.take()
	for i, t := range batch {
		batch[i] = nil
		t()
	}
	rt.drainPostUpdate()
	return len(batch)
}

// Flush runs turns until no task is pending. It returns ErrFlushLimit when
// work is still pending after the configured number of turns.
func (rt *Runtime) Flush() error {
	for turns := 0; rt.queue.len() > 0; turns++ {
		if turns >= rt.cfg.flushLimit {
			return fmt.Errorf("%w: %d turns, %d tasks pending", ErrFlushLimit, turns, rt.queue.len())
		}
		rt.Tick()
	}
	return nil
}

// Pending returns the number of queued tasks.
func (rt *Runtime) Pending() int {
	return rt.queue.len()
}

// Dispatch queues fn to run on the next turn. It is the only runtime method
// safe to call from goroutines other than the one driving Tick, Flush or Run.
func (rt *Runtime) Dispatch(fn func()) {
	if fn == nil {
		return
	}
	rt.queue.enqueue(func() {
		rt.guard(DeliveryAsync, 0, "dispatch", func() error {
			fn()
			return nil
		})
	})
}

// Run drives the task queue until ctx is done. Turn-limit errors are logged
// and the loop keeps draining.
func (rt *Runtime) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := rt.Flush(); err != nil {
			rt.logger.Warn("scope flush interrupted", "error", err)
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-rt.queue.signal:
		}
	}
}

// PostUpdate queues fn to run once after the next listener delivery. The
// queue is shared by every node of the runtime and drains in FIFO order.
func (rt *Runtime) PostUpdate(fn func()) {
	if fn == nil {
		return
	}
	rt.postUpdate = append(rt.postUpdate, fn)
}

func (rt *Runtime) drainPostUpdate() {
	for len(rt.postUpdate) > 0 {
		fn := rt.postUpdate[0]
		rt.postUpdate[0] = nil
		rt.postUpdate = rt.postUpdate[1:]
		rt.guard(DeliveryPostUpdate, 0, "", func() error {
			fn()
			return nil
		})
	}
}

// scheduleDelivery queues one task delivering the listeners returned by list.
// The task re-reads list before every delivery so listeners appended by an
// earlier callback are delivered in the same pass and listeners removed
// before their turn are skipped. Each listener is delivered at most once per
// pass.
func (rt *Runtime) scheduleDelivery(list func() []*Listener) {
	if len(list()) == 0 {
		return
	}
	rt.queue.enqueue(func() {
		delivered := make(map[*Listener]struct{})
		for {
			next := nextUndelivered(list(), delivered)
			if next == nil {
				return
			}
			delivered[next] = struct{}{}
			rt.deliver(next)
		}
	})
}

func nextUndelivered(list []*Listener, delivered map[*Listener]struct{}) *Listener {
	for _, l := range list {
		if l.removed {
			continue
		}
		if _, ok := delivered[l]; !ok {
			return l
		}
	}
	return nil
}

// deliver re-evaluates l and invokes its callback when the value changed
// since the last delivery, or on the first delivery. One-time listeners skip
// nil values and deregister after their first defined delivery.
func (rt *Runtime) deliver(l *Listener) {
	if l.removed {
		return
	}
	rt.guard(DeliveryWatch, l.OwnerID, l.Path, func() error {
		value, err := l.anchor.evaluateAccessor(l.accessor, nil)
		if err != nil {
			return err
		}
		rt.track(l)
		if l.oneTime && value == nil {
			return nil
		}
		if l.initialized && equalValue(value, l.last) {
			return nil
		}
		old := l.last
		l.last, l.initialized = value, true
		if l.oneTime {
			defer l.Deregister()
		}
		if l.callback != nil {
			l.callback(value, old)
		}
		return nil
	})
	rt.drainPostUpdate()
	l.anchor.rescheduleAsync()
}

// EvalAsync queues fn as node-scoped deferred work. Work queued for the same
// node during one turn runs together in a later task.
func (n *Node) EvalAsync(fn func(*Node)) {
	if fn == nil {
		return
	}
	n.async = append(n.async, fn)
	n.rescheduleAsync()
}

func (n *Node) rescheduleAsync() {
	if n.asyncScheduled || len(n.async) == 0 {
		return
	}
	n.asyncScheduled = true
	n.rt.queue.enqueue(func() {
		n.asyncScheduled = false
		queue := n.async
		n.async = nil
		for _, fn := range queue {
			fn := fn
			n.rt.guard(DeliveryAsync, n.id, "", func() error {
				fn(n)
				return nil
			})
		}
	})
}
