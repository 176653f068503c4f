package vm

import (
	"container/heap"

	"github.com/dop251/goja"

	"github.com/yangshun/nodepack/internal/monitoring"
)

// TimerQueue schedules guest timer callbacks on a virtual clock. Delays
// order execution but never sleep: firing a timer advances virtual time
// to its due point, so a setTimeout of a million milliseconds still
// completes deterministically within the drain loop.
//
// Microtasks (process.nextTick, queueMicrotask) run ahead of every timer
// tick, matching the relative ordering guest code observes in Node.
type TimerQueue struct {
	timers  timerHeap
	byID    map[int64]*timer
	micro   []microtask
	now     int64 // virtual milliseconds
	nextID  int64
	seq     uint64
	metrics *monitoring.Metrics
}

type timer struct {
	id       int64
	due      int64
	seq      uint64 // insertion order breaks due-time ties
	interval bool
	every    int64
	fn       goja.Callable
	args     []goja.Value
	cleared  bool
	index    int
}

type microtask struct {
	fn   goja.Callable
	args []goja.Value
}

// NewTimerQueue creates an empty queue.
func NewTimerQueue(metrics *monitoring.Metrics) *TimerQueue {
	return &TimerQueue{byID: make(map[int64]*timer), metrics: metrics}
}

// Add schedules fn after delay virtual milliseconds and returns the id
// guest code passes to clearTimeout/clearInterval. Negative delays clamp
// to zero; intervals clamp to at least one millisecond so a zero-delay
// interval still makes the clock advance toward the tick cap.
func (q *TimerQueue) Add(fn goja.Callable, delay int64, repeat bool, args []goja.Value) int64 {
	if delay < 0 {
		delay = 0
	}
	every := delay
	if repeat && every < 1 {
		every = 1
	}
	q.nextID++
	q.seq++
	t := &timer{
		id:       q.nextID,
		due:      q.now + delay,
		seq:      q.seq,
		interval: repeat,
		every:    every,
		fn:       fn,
		args:     args,
	}
	q.byID[t.id] = t
	heap.Push(&q.timers, t)
	return t.id
}

// Clear cancels the timer with the given id. Unknown ids are ignored,
// matching clearTimeout semantics.
func (q *TimerQueue) Clear(id int64) {
	if t, ok := q.byID[id]; ok {
		t.cleared = true
		delete(q.byID, id)
	}
}

// AddMicrotask enqueues fn ahead of all pending timers.
func (q *TimerQueue) AddMicrotask(fn goja.Callable, args []goja.Value) {
	q.micro = append(q.micro, microtask{fn: fn, args: args})
}

// Pending reports whether any microtask or live timer remains.
func (q *TimerQueue) Pending() bool {
	if len(q.micro) > 0 {
		return true
	}
	for _, t := range q.timers {
		if !t.cleared {
			return true
		}
	}
	return false
}

// Now returns the current virtual time in milliseconds.
func (q *TimerQueue) Now() int64 { return q.now }

// Tick runs the next pending unit of work: all queued microtasks first,
// otherwise the earliest live timer. It reports whether anything ran; a
// callback error is the guest's error and propagates unchanged.
func (q *TimerQueue) Tick() (bool, error) {
	if len(q.micro) > 0 {
		m := q.micro[0]
		q.micro = q.micro[1:]
		if q.metrics != nil {
			q.metrics.ObserveTick()
		}
		if _, err := m.fn(goja.Undefined(), m.args...); err != nil {
			return true, err
		}
		return true, nil
	}

	for q.timers.Len() > 0 {
		t := heap.Pop(&q.timers).(*timer)
		if t.cleared {
			continue
		}
		if t.due > q.now {
			q.now = t.due
		}
		if t.interval {
			// Reschedule before running so the callback can clear
			// its own interval.
			t.due = q.now + t.every
			q.seq++
			t.seq = q.seq
			heap.Push(&q.timers, t)
		} else {
			delete(q.byID, t.id)
		}
		if q.metrics != nil {
			q.metrics.ObserveTick()
		}
		if _, err := t.fn(goja.Undefined(), t.args...); err != nil {
			return true, err
		}
		return true, nil
	}
	return false, nil
}

// Reset drops every pending timer and microtask.
func (q *TimerQueue) Reset() {
	q.timers = nil
	q.micro = nil
	q.byID = make(map[int64]*timer)
}

// timerHeap orders by due time, then insertion order.
type timerHeap []*timer

func (h timerHeap) Len() int { return len(h) }

func (h timerHeap) Less(i, j int) bool {
	if h[i].due != h[j].due {
		return h[i].due < h[j].due
	}
	return h[i].seq < h[j].seq
}

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x interface{}) {
	t := x.(*timer)
	t.index = len(*h)
	*h = append(*h, t)
}

func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	t := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return t
}
