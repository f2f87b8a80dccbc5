package orderbook

import "container/heap"

// heapifyPrices restores the heap invariant after prices were appended
// directly (used when rebuilding a book from a Snapshot).
func heapifyPrices(h *maxPriceHeap) {
	heap.Init(h)
}

// maxPriceHeap implements heap.Interface over the set of prices that carry
// resting liquidity in a single outcome's book. Matching always walks
// price levels highest-first, so the book keeps a max-heap index instead
// of a sorted slice.
type maxPriceHeap []uint64

func (h maxPriceHeap) Len() int           { return len(h) }
func (h maxPriceHeap) Less(i, j int) bool { return h[i] > h[j] } // max heap: larger prices bubble up
func (h maxPriceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *maxPriceHeap) Push(x interface{}) {
	*h = append(*h, x.(uint64))
}

func (h *maxPriceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}

// Peek returns the top (highest) price without removing it.
func (h maxPriceHeap) Peek() (uint64, bool) {
	if len(h) == 0 {
		return 0, false
	}
	return h[0], true
}
