package queue

// pendingHeap implements container/heap.Interface over *entry, ordered by
// due time ascending with jobID as the lexical tie-break (spec.md §4.G:
// "due-time ordered, ties broken by jobId lex").
type pendingHeap []*entry

func (h pendingHeap) Len() int { return len(h) }

func (h pendingHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].jobID < h[j].jobID
	}
	return h[i].due.Before(h[j].due)
}

func (h pendingHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pendingHeap) Push(x any) {
	*h = append(*h, x.(*entry))
}

func (h *pendingHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}
