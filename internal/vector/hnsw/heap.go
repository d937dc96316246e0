package hnsw

import "container/heap"

// candidate is one (ordinal, similarity) pair considered during a layer
// search.
type candidate struct {
	ordinal uint32
	score   float32
}

// maxHeap keeps the highest-score candidate at the root; used for the
// candidate frontier driving layer search expansion.
type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].score > h[j].score }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// minHeap keeps the lowest-score candidate at the root; used to track the
// current best-so-far result set so the worst kept result can be evicted
// in O(log ef) when a better candidate is found.
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].score < h[j].score }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

func newMaxHeap() *maxHeap {
	h := &maxHeap{}
	heap.Init(h)
	return h
}

func newMinHeap() *minHeap {
	h := &minHeap{}
	heap.Init(h)
	return h
}
