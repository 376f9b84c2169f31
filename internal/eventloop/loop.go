// Package eventloop implements the deterministic single-threaded
// cooperative scheduler described in the design: a pending buffer
// of macrotasks, a min-heap ordered by enqueue sequence, a timer min-heap
// ordered by (deadline, order, id), and a microtask-draining contract
// between macrotasks.
package eventloop

import (
	"container/heap"
	"sync"
)

// Kind discriminates the three macrotask sources named in: pending
// host-call completions, inbound lifecycle events, and expired timers.
type Kind string

const (
	KindHostCallCompletion Kind = "hostcall_completion"
	KindInboundEvent       Kind = "inbound_event"
	KindTimerFired         Kind = "timer_fired"
)

// Macrotask is a single unit of work the loop hands to the caller's
// on_macrotask callback during Tick.
type Macrotask struct {
	Kind Kind
	// CallID identifies the host call this macrotask completes, when
	// Kind == KindHostCallCompletion. Used to discard late completions
	// for a call that was cancelled.
	CallID  string
	TimerID string
	Payload any
}

// Loop is the deterministic scheduler. The zero value is not usable;
// construct with New.
type Loop struct {
	clock Clock

	mu       sync.Mutex
	seq      uint64
	timerSeq uint64

	pending []Macrotask
	queue   macrotaskHeap
	timers  timerHeap

	cancelledTimers map[string]struct{}
	cancelledCalls  map[string]struct{}
}

// New constructs a Loop driven by the given Clock.
func New(clock Clock) *Loop {
	l := &Loop{
		clock:           clock,
		cancelledTimers: map[string]struct{}{},
		cancelledCalls:  map[string]struct{}{},
	}
	heap.Init(&l.queue)
	heap.Init(&l.timers)
	return l
}

// Enqueue buffers a macrotask for inclusion in the next Tick. Host-call
// completions for a call that was already cancelled via CancelHostCall
// are silently dropped.
func (l *Loop) Enqueue(task Macrotask) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if task.Kind == KindHostCallCompletion && task.CallID != "" {
		if _, cancelled := l.cancelledCalls[task.CallID]; cancelled {
			return
		}
	}
	l.pending = append(l.pending, task)
}

// ScheduleTimer registers a timer that becomes a KindTimerFired macrotask
// once clock.NowMs() reaches deadlineMs. Returns the assigned order
// sequence, exposed for tests that need to assert tie-break ordering.
func (l *Loop) ScheduleTimer(timerID string, deadlineMs int64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.timerSeq++
	seq := l.timerSeq
	heap.Push(&l.timers, timerEntry{deadlineMs: deadlineMs, orderSeq: seq, timerID: timerID})
	return seq
}

// ClearTimer cancels a previously scheduled timer. The id is checked at
// fire time; a timer already popped cannot be cancelled.
func (l *Loop) ClearTimer(timerID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelledTimers[timerID] = struct{}{}
}

// CancelHostCall marks callID as cancelled: any later completion enqueued
// for it is dropped. The caller (JsRuntime) is responsible for rejecting
// the paired promise with {code: "cancelled", message: reason}; reason is
// accepted here only so the call site reads naturally.
func (l *Loop) CancelHostCall(callID string, reason string) {
	_ = reason
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cancelledCalls[callID] = struct{}{}
}

// Tick implements the four-step contract from:
//  1. move pending macrotasks into the queue, sequence-ordered;
//  2. drain due timers into the queue (cancelled ones discarded);
//  3. pop at most one macrotask and invoke onMacrotask;
//  4. if a macrotask ran, drain microtasks to a fixed point.
//
// drainMicrotasks is called repeatedly until it reports no more work
// (returns false).
func (l *Loop) Tick(onMacrotask func(Macrotask), drainMicrotasks func() bool) {
	l.mu.Lock()

	// Step 1: pending -> queue, in insertion order.
	for _, t := range l.pending {
		l.seq++
		heap.Push(&l.queue, macrotaskEntry{seq: l.seq, task: t})
	}
	l.pending = nil

	// Step 2: due timers -> queue. Completions were already sequenced
	// above, so they always sort before timers drained in this same
	// tick, matching the "completions first" ordering guarantee.
	now := l.clock.NowMs()
	var due []timerEntry
	for l.timers.Len() > 0 && l.timers[0].deadlineMs <= now {
		due = append(due, heap.Pop(&l.timers).(timerEntry))
	}
	for _, d := range due {
		if _, cancelled := l.cancelledTimers[d.timerID]; cancelled {
			delete(l.cancelledTimers, d.timerID)
			continue
		}
		l.seq++
		heap.Push(&l.queue, macrotaskEntry{
			seq:  l.seq,
			task: Macrotask{Kind: KindTimerFired, TimerID: d.timerID},
		})
	}

	// Step 3: pop at most one macrotask.
	var popped *Macrotask
	if l.queue.Len() > 0 {
		entry := heap.Pop(&l.queue).(macrotaskEntry)
		t := entry.task
		popped = &t
	}
	l.mu.Unlock()

	if popped == nil {
		return
	}
	onMacrotask(*popped)

	// Step 4: drain microtasks to fixed point.
	if drainMicrotasks != nil {
		for drainMicrotasks() {
		}
	}
}

// NowMs reports the owning Clock's current time, exposed so JsRuntime can
// compute timer deadlines when scheduling setTimeout/setInterval.
func (l *Loop) NowMs() int64 {
	return l.clock.NowMs()
}

// PendingCount reports the number of macrotasks buffered but not yet
// moved into the queue; exposed for diagnostics and tests.
func (l *Loop) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// QueueLen reports the number of macrotasks currently queued.
func (l *Loop) QueueLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.Len()
}

// TimerLen reports the number of timers still pending (including
// cancelled-but-not-yet-fired ones).
func (l *Loop) TimerLen() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.timers.Len()
}
