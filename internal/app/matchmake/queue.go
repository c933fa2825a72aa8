package matchmake

import (
	"errors"
	"sync"

	"github.com/bkohler93/match3-backend/pkg/uuidstring"
)

var ErrAlreadyQueued = errors.New("player is already queued")

// Pair is two players popped from the front of the queue, in join order.
type Pair struct {
	First  uuidstring.ID
	Second uuidstring.ID
}

// Queue is a FIFO waiting list. Appending and pairing happen under one lock so a
// pair can never be observed half removed.
type Queue struct {
	mu      sync.Mutex
	entries []uuidstring.ID
	queued  map[uuidstring.ID]struct{}
}

func NewQueue() *Queue {
	return &Queue{
		queued: make(map[uuidstring.ID]struct{}),
	}
}

// Join appends id and returns its 1-based position. When the queue then holds two or
// more players the two oldest are removed and returned as a Pair.
func (q *Queue) Join(id uuidstring.ID) (int, *Pair, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[id]; ok {
		return 0, nil, ErrAlreadyQueued
	}
	q.entries = append(q.entries, id)
	q.queued[id] = struct{}{}
	position := len(q.entries)

	if len(q.entries) < 2 {
		return position, nil, nil
	}
	pair := &Pair{First: q.entries[0], Second: q.entries[1]}
	q.entries = q.entries[2:]
	delete(q.queued, pair.First)
	delete(q.queued, pair.Second)
	return position, pair, nil
}

// Leave removes id if present. It reports whether anything was removed.
func (q *Queue) Leave(id uuidstring.ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.queued[id]; !ok {
		return false
	}
	delete(q.queued, id)
	for i, e := range q.entries {
		if e == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	return true
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
