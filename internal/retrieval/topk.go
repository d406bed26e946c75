package retrieval

import "container/heap"

// topK tracks the best k candidates seen during a full scan.
type topK struct {
	k int
	h candidateHeap
}

func newTopK(k int) *topK {
	return &topK{k: k, h: make(candidateHeap, 0, k)}
}

// admits reports whether c would enter the current top-K.
func (t *topK) admits(c candidate) bool {
	return t.h.Len() < t.k || ranksBefore(c, t.h[0])
}

func (t *topK) offer(c candidate) {
	if t.h.Len() < t.k {
		heap.Push(&t.h, c)
		return
	}
	if ranksBefore(c, t.h[0]) {
		t.h[0] = c
		heap.Fix(&t.h, 0)
	}
}

// sorted drains the heap into best-first order.
func (t *topK) sorted() []candidate {
	out := make([]candidate, t.h.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(&t.h).(candidate)
	}
	return out
}
