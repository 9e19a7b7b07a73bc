package mmu

import "container/heap"

type cycleHeap []uint64

func (h cycleHeap) Len() int           { return len(h) }
func (h cycleHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h cycleHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *cycleHeap) Push(x any) {
	*h = append(*h, x.(uint64))
}

func (h *cycleHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]

	return c
}

// walkQueue holds the pages whose walks complete at a certain cycle. Buckets
// come out in cycle order and pages within a bucket in insertion order.
type walkQueue struct {
	cycles  cycleHeap
	buckets map[uint64][]uint64
	size    int
}

func newWalkQueue() *walkQueue {
	return &walkQueue{
		buckets: make(map[uint64][]uint64),
	}
}

func (q *walkQueue) push(readyCycle, pageNumber uint64) {
	if _, ok := q.buckets[readyCycle]; !ok {
		heap.Push(&q.cycles, readyCycle)
	}

	q.buckets[readyCycle] = append(q.buckets[readyCycle], pageNumber)
	q.size++
}

// popReady removes the earliest bucket if it is due by now.
func (q *walkQueue) popReady(now uint64) ([]uint64, bool) {
	if len(q.cycles) == 0 || q.cycles[0] > now {
		return nil, false
	}

	cycle := heap.Pop(&q.cycles).(uint64)
	pages := q.buckets[cycle]
	delete(q.buckets, cycle)
	q.size -= len(pages)

	return pages, true
}

func (q *walkQueue) len() int {
	return q.size
}
