package criterion

import (
	"container/heap"
	"sort"
)

// rankedHeap is a max-heap of Ranked: the root is the worst arm kept so far.
type rankedHeap []Ranked

func (h rankedHeap) Len() int           { return len(h) }
func (h rankedHeap) Less(i, j int) bool { return before(h[j], h[i]) }
func (h rankedHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *rankedHeap) Push(x any)        { *h = append(*h, x.(Ranked)) }
func (h *rankedHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// before orders by value, then by arm.
func before(a, b Ranked) bool {
	if a.Value != b.Value {
		return a.Value < b.Value
	}
	return a.Arm < b.Arm
}

// TopK returns up to k observed arms with the smallest values, ascending,
// ties broken by lowest arm. It keeps a heap of k entries instead of
// sorting every arm.
func TopK(values []float64, observed []bool, k int) []Ranked {
	if k <= 0 {
		return nil
	}
	h := make(rankedHeap, 0, k)
	for j, v := range values {
		if !observed[j] {
			continue
		}
		r := Ranked{Arm: j, Value: v}
		if h.Len() < k {
			heap.Push(&h, r)
			continue
		}
		if before(r, h[0]) {
			h[0] = r
			heap.Fix(&h, 0)
		}
	}
	out := []Ranked(h)
	sort.Slice(out, func(i, j int) bool { return before(out[i], out[j]) })
	return out
}
