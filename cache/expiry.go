package cache

import "container/heap"

// expheap is the shard's expiration index: a min-heap of TTL'd entries
// ordered by absolute deadline. It lets Sweep pull expired entries
// without scanning the whole table. Entries with no TTL are not
// indexed. Ties on identical deadlines pop in no particular order.
//
// All access happens under the shard lock.
type expheap []*entry

func (h expheap) Len() int           { return len(h) }
func (h expheap) Less(i, j int) bool { return h[i].expires < h[j].expires }

func (h expheap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].hpos = i
	h[j].hpos = j
}

func (h *expheap) Push(x any) {
	e := x.(*entry)
	e.hpos = len(*h)
	*h = append(*h, e)
}

func (h *expheap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil // avoid retaining the entry through the backing array
	e.hpos = -1
	*h = old[:n-1]
	return e
}

// track indexes e if it carries a deadline. e must not already be tracked.
func (h *expheap) track(e *entry) {
	if e.expires == 0 {
		e.hpos = -1
		return
	}
	heap.Push(h, e)
}

// untrack removes e from the index if present.
func (h *expheap) untrack(e *entry) {
	if e.hpos < 0 {
		return
	}
	heap.Remove(h, e.hpos)
}

// retime adjusts e's position after its deadline changed, adding or
// dropping it from the index as needed.
func (h *expheap) retime(e *entry) {
	switch {
	case e.hpos < 0 && e.expires != 0:
		heap.Push(h, e)
	case e.hpos >= 0 && e.expires == 0:
		heap.Remove(h, e.hpos)
	case e.hpos >= 0:
		heap.Fix(h, e.hpos)
	}
}

// peek returns the entry with the nearest deadline, or nil.
func (h expheap) peek() *entry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}
