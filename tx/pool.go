package tx

import (
	"container/heap"
	"sort"
	"sync"
	"time"

	"github.com/provchain/provchain-core/pverr"
)

// poolItem wraps a pooled transaction with its parsed timestamp so the
// eviction heap can order without reparsing RFC3339 strings on every
// comparison. seq breaks ties between equal timestamps by arrival order.
type poolItem struct {
	txn		*Transaction
	ts		time.Time
	seq		uint64
	heapIndex	int
}

func (a *poolItem) before(b *poolItem) bool {
	if !a.ts.Equal(b.ts) {
		return a.ts.Before(b.ts)
	}
	return a.seq < b.seq
}

// txPriorityQueue is a min-heap on the transaction timestamp, oldest first.
type txPriorityQueue []*poolItem

func (q txPriorityQueue) Len() int { return len(q) }
func (q txPriorityQueue) Less(i, j int) bool { return q[i].before(q[j]) }
func (q txPriorityQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].heapIndex = i
	q[j].heapIndex = j
}

func (q *txPriorityQueue) Push(x any) {
	item := x.(*poolItem)
	item.heapIndex = len(*q)
	*q = append(*q, item)
}

func (q *txPriorityQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.heapIndex = -1
	*q = old[:n-1]
	return item
}

// Pool is a bounded, timestamp-ordered transaction pool. When
// full, the oldest queued transaction is evicted to make room for a new
// admission.
type Pool struct {
	mu	sync.Mutex
	maxSize	int
	byID	map[string]*poolItem
	queue	txPriorityQueue
	nextSeq	uint64
}

// NewPool constructs an empty pool bounded at maxSize entries.
func NewPool(maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = 1
	}
	p := &Pool{maxSize: maxSize, byID: make(map[string]*poolItem)}
	heap.Init(&p.queue)
	return p
}

// Add validates txn and admits it to the pool, evicting the oldest queued
// transaction if the pool is already at capacity.
// Returns the evicted transaction's ID, if any.
func (p *Pool) Add(txn *Transaction) (evictedID string, err error) {
	if err := txn.Validate(); err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byID[txn.ID]; exists {
		return "", pverr.Wrap(pverr.Validation, "transaction "+txn.ID+" already queued", pverr.ErrAlreadyExists)
	}

	if len(p.queue) >= p.maxSize {
		oldest := heap.Pop(&p.queue).(*poolItem)
		delete(p.byID, oldest.txn.ID)
		evictedID = oldest.txn.ID
	}

	ts, parseErr := time.Parse(time.RFC3339Nano, txn.Timestamp)
	if parseErr != nil {
		ts = time.Now().UTC()
	}
	item := &poolItem{txn: txn, ts: ts, seq: p.nextSeq}
	p.nextSeq++
	heap.Push(&p.queue, item)
	p.byID[txn.ID] = item
	return evictedID, nil
}

// Len reports the number of transactions currently queued.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Get returns the queued transaction with id, if present.
func (p *Pool) Get(id string) (*Transaction, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.byID[id]
	if !ok {
		return nil, false
	}
	return item.txn, true
}

// TakeForBlock returns the first max transactions by priority (oldest
// timestamp first) WITHOUT removing them from the pool.
// Callers must follow a successful append with RemoveMany on the same ids.
func (p *Pool) TakeForBlock(max int) []*Transaction {
	p.mu.Lock()
	defer p.mu.Unlock()

	ordered := make([]*poolItem, len(p.queue))
	copy(ordered, p.queue)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].before(ordered[j]) })

	if max < len(ordered) {
		ordered = ordered[:max]
	}
	out := make([]*Transaction, len(ordered))
	for i, item := range ordered {
		out[i] = item.txn
	}
	return out
}

// RemoveMany discards each id in ids from the pool, used after a block
// built from TakeForBlock's output has been successfully appended.
func (p *Pool) RemoveMany(ids []string) {
	for _, id := range ids {
		p.Remove(id)
	}
}

// Remove discards a transaction from the pool without returning it, used
// when a transaction is independently superseded or invalidated.
func (p *Pool) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	item, ok := p.byID[id]
	if !ok {
		return
	}
	heap.Remove(&p.queue, item.heapIndex)
	delete(p.byID, id)
}
