package fiberloop

import "golang.org/x/exp/constraints"

// heapNode is embedded by any type that wants O(log n) arbitrary-position
// removal from a heap; it tracks its own slot so removeNode doesn't need a
// linear scan, mirroring HeapNode in the original runtime (spec §3, §4 "Min-heap").
type heapNode struct {
	index int
}

// orderedHeap is a generic array-backed binary min-heap keyed by an
// orderable key, used by IOClock for timer expiry ordering. Unlike
// container/heap, nodes track their own index so removeNode can splice out
// an arbitrary element rather than only the top.
type orderedHeap[K constraints.Ordered, N any] struct {
	nodes []N
	key   func(N) K
	index func(N) *heapNode
}

func newOrderedHeap[K constraints.Ordered, N any](key func(N) K, index func(N) *heapNode) *orderedHeap[K, N] {
	return &orderedHeap[K, N]{key: key, index: index}
}

func (h *orderedHeap[K, N]) len() int {
	return len(h.nodes)
}

func (h *orderedHeap[K, N]) isEmpty() bool {
	return len(h.nodes) == 0
}

// top returns the minimum-key node without removing it. ok is false when
// the heap is empty.
func (h *orderedHeap[K, N]) top() (n N, ok bool) {
	if len(h.nodes) == 0 {
		return n, false
	}
	return h.nodes[0], true
}

func (h *orderedHeap[K, N]) set(i int, n N) {
	h.nodes[i] = n
	h.index(n).index = i
}

func (h *orderedHeap[K, N]) insert(n N) {
	i := len(h.nodes)
	h.nodes = append(h.nodes, n)
	h.siftUp(n, i)
}

// removeTop pops the minimum-key node, moving the last leaf to the root and
// sifting it down.
func (h *orderedHeap[K, N]) removeTop() {
	last := len(h.nodes) - 1
	if last < 0 {
		return
	}
	tail := h.nodes[last]
	h.nodes = h.nodes[:last]
	if last > 0 {
		h.siftDown(tail, 0)
	}
}

// removeNode removes an arbitrary node given its tracked index, restoring
// heap order by sifting the displaced tail element up or down as needed.
func (h *orderedHeap[K, N]) removeNode(n N) {
	i := h.index(n).index
	last := len(h.nodes) - 1
	tail := h.nodes[last]
	h.nodes = h.nodes[:last]
	if i == last {
		return
	}
	h.set(i, tail)
	tailKey := h.key(tail)
	parent := (i - 1) / 2
	if i > 0 && tailKey < h.key(h.nodes[parent]) {
		h.siftUp(tail, i)
	} else {
		h.siftDown(tail, i)
	}
}

func (h *orderedHeap[K, N]) siftUp(n N, i int) {
	k := h.key(n)
	for i > 0 {
		parent := (i - 1) / 2
		if !(k < h.key(h.nodes[parent])) {
			break
		}
		h.set(i, h.nodes[parent])
		i = parent
	}
	h.set(i, n)
}

func (h *orderedHeap[K, N]) siftDown(n N, i int) {
	k := h.key(n)
	length := len(h.nodes)
	for {
		left := 2*i + 1
		if left >= length {
			break
		}
		smallest := left
		if right := left + 1; right < length && h.key(h.nodes[right]) < h.key(h.nodes[left]) {
			smallest = right
		}
		if !(h.key(h.nodes[smallest]) < k) {
			break
		}
		h.set(i, h.nodes[smallest])
		i = smallest
	}
	h.set(i, n)
}
