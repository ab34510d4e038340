package engine

import (
	"knite_oms/internal/domain"
)

// dispatchQueue is the ordered sequence of intents feeding placement.
// High-priority batches (exit waves) occupy the front region of the queue,
// ahead of already-queued low-priority work; order within each class is FIFO.
// Only the scheduler loop touches it, so there is no locking.
type dispatchQueue struct {
	items   []*domain.OrderIntent
	highLen int // items[:highLen] belong to high-priority batches
}

// pushHigh inserts a batch at the tail of the high-priority region, jumping
// everything low-priority that is already queued.
func (q *dispatchQueue) pushHigh(batch []*domain.OrderIntent) {
	if len(batch) == 0 {
		return
	}
	out := make([]*domain.OrderIntent, 0, len(q.items)+len(batch))
	out = append(out, q.items[:q.highLen]...)
	out = append(out, batch...)
	out = append(out, q.items[q.highLen:]...)
	q.items = out
	q.highLen += len(batch)
}

// pushLow appends a batch at the tail of the queue.
func (q *dispatchQueue) pushLow(batch []*domain.OrderIntent) {
	q.items = append(q.items, batch...)
}

// head returns the next intent without removing it, or nil when empty.
func (q *dispatchQueue) head() *domain.OrderIntent {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// popFront removes and returns the head intent.
func (q *dispatchQueue) popFront() *domain.OrderIntent {
	o := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	if q.highLen > 0 {
		q.highLen--
	}
	return o
}

func (q *dispatchQueue) len() int { return len(q.items) }

// clear drops everything queued, used by graceful shutdown.
func (q *dispatchQueue) clear() {
	q.items = nil
	q.highLen = 0
}

// barrierRank orders pending barriers the way the queue dispatches them:
// every high-priority barrier precedes every low-priority one, and within a
// class insertion order decides.
type barrierRank struct {
	high bool
	seq  int64
}

func (r barrierRank) before(o barrierRank) bool {
	if r.high != o.high {
		return r.high
	}
	return r.seq < o.seq
}

// barrierSet tracks pending barrier sentinels in dispatch order. A barrier
// may complete only when it is the oldest pending one, which keeps a later
// batch from racing ahead of an unfinished earlier wave.
type barrierSet struct {
	ranks map[string]barrierRank
	seq   int64
}

func newBarrierSet() *barrierSet {
	return &barrierSet{ranks: make(map[string]barrierRank)}
}

// registerHigh records a barrier belonging to a front-merged batch.
func (b *barrierSet) registerHigh(id string) {
	b.seq++
	b.ranks[id] = barrierRank{high: true, seq: b.seq}
}

// registerLow records a barrier belonging to an appended batch.
func (b *barrierSet) registerLow(id string) {
	b.seq++
	b.ranks[id] = barrierRank{seq: b.seq}
}

// complete removes a barrier from the pending set.
func (b *barrierSet) complete(id string) {
	delete(b.ranks, id)
}

// isOldest reports whether no pending barrier precedes the given one in
// dispatch order. Unknown ids are trivially unblocked.
func (b *barrierSet) isOldest(id string) bool {
	rank, ok := b.ranks[id]
	if !ok {
		return true
	}
	for _, other := range b.ranks {
		if other.before(rank) {
			return false
		}
	}
	return true
}

func (b *barrierSet) pending() int { return len(b.ranks) }

func (b *barrierSet) clear() {
	b.ranks = make(map[string]barrierRank)
}
