package eventloop

import "container/heap"

// macrotaskEntry wraps a Macrotask with the sequence number assigned when
// it moved from the pending buffer into the macro queue.
type macrotaskEntry struct {
	seq  uint64
	task Macrotask
}

// macrotaskHeap is a min-heap over macrotaskEntry ordered by seq, giving
// FIFO semantics for host-call completions and inbound events.
type macrotaskHeap []macrotaskEntry

func (h macrotaskHeap) Len() int            { return len(h) }
func (h macrotaskHeap) Less(i, j int) bool  { return h[i].seq < h[j].seq }
func (h macrotaskHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *macrotaskHeap) Push(x interface{}) { *h = append(*h, x.(macrotaskEntry)) }
func (h *macrotaskHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*macrotaskHeap)(nil)

// timerEntry is a single scheduled timer, ordered by (deadline, orderSeq,
// timerID).
type timerEntry struct {
	deadlineMs int64
	orderSeq   uint64
	timerID    string
}

type timerHeap []timerEntry

func (h timerHeap) Len() int { return len(h) }
func (h timerHeap) Less(i, j int) bool {
	if h[i].deadlineMs != h[j].deadlineMs {
		return h[i].deadlineMs < h[j].deadlineMs
	}
	if h[i].orderSeq != h[j].orderSeq {
		return h[i].orderSeq < h[j].orderSeq
	}
	return h[i].timerID < h[j].timerID
}
func (h timerHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timerHeap) Push(x interface{}) { *h = append(*h, x.(timerEntry)) }
func (h *timerHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

var _ heap.Interface = (*timerHeap)(nil)
