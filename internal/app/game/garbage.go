package game

import (
	"container/heap"
	"sort"
	"time"

	"github.com/bkohler93/match3-backend/pkg/uuidstring"
)

type garbage struct {
	id       int
	target   uuidstring.ID
	amount   int
	deadline time.Time
	index    int
}

// garbageHeap orders pending attacks by deadline, then by id.
type garbageHeap []*garbage

func (h garbageHeap) Len() int { return len(h) }

func (h garbageHeap) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].id < h[j].id
	}
	return h[i].deadline.Before(h[j].deadline)
}

func (h garbageHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *garbageHeap) Push(x any) {
	g := x.(*garbage)
	g.index = len(*h)
	*h = append(*h, g)
}

func (h *garbageHeap) Pop() any {
	old := *h
	n := len(old)
	g := old[n-1]
	old[n-1] = nil
	g.index = -1
	*h = old[:n-1]
	return g
}

type garbageQueue struct {
	nextID  int
	pending garbageHeap
}

func (q *garbageQueue) add(target uuidstring.ID, amount int, deadline time.Time) *garbage {
	q.nextID++
	g := &garbage{id: q.nextID, target: target, amount: amount, deadline: deadline}
	heap.Push(&q.pending, g)
	return g
}

// expire pops every entry whose deadline is at or before now.
func (q *garbageQueue) expire(now time.Time) []*garbage {
	var out []*garbage
	for q.pending.Len() > 0 && !q.pending[0].deadline.After(now) {
		out = append(out, heap.Pop(&q.pending).(*garbage))
	}
	return out
}

type cancellation struct {
	id     int
	amount int
}

// cancel consumes up to amount units aimed at target, oldest deadline first. Only
// entries still inside their window are eligible.
func (q *garbageQueue) cancel(target uuidstring.ID, amount int, now time.Time) []cancellation {
	var candidates []*garbage
	for _, g := range q.pending {
		if g.target == target && g.deadline.After(now) {
			candidates = append(candidates, g)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return garbageHeap(candidates).Less(i, j)
	})

	var out []cancellation
	for _, g := range candidates {
		if amount == 0 {
			break
		}
		used := min(amount, g.amount)
		amount -= used
		g.amount -= used
		out = append(out, cancellation{id: g.id, amount: used})
		if g.amount == 0 {
			heap.Remove(&q.pending, g.index)
		}
	}
	return out
}

func (q *garbageQueue) clear() {
	q.pending = nil
}

func (q *garbageQueue) len() int {
	return q.pending.Len()
}
