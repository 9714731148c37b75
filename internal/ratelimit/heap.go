package ratelimit

import (
	"container/heap"
	"net/netip"
	"time"
)

// heapKey is a tombstone-tolerant sweep candidate: ver lets the garbage
// collector tell a stale heap entry (superseded by a later drip on the
// same IP) from a live one without scanning the heap for duplicates —
// refreshing a bucket simply pushes a new entry, and the old one is
// silently discarded when popped because its ver no longer matches the
// bucket's current ver.
type heapKey struct {
	expiresAt time.Time
	ver       uint64
	ip        netip.Addr
}

type expiryHeap []heapKey

func (h expiryHeap) Len() int            { return len(h) }
func (h expiryHeap) Less(i, j int) bool  { return h[i].expiresAt.Before(h[j].expiresAt) }
func (h expiryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *expiryHeap) Push(x interface{}) { *h = append(*h, x.(heapKey)) }
func (h *expiryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	k := old[n-1]
	*h = old[:n-1]
	return k
}

func (h *expiryHeap) push(k heapKey) { heap.Push(h, k) }
func (h *expiryHeap) peek() (heapKey, bool) {
	if h.Len() == 0 {
		return heapKey{}, false
	}
	return (*h)[0], true
}
func (h *expiryHeap) pop() heapKey { return heap.Pop(h).(heapKey) }
