package queue

import "container/heap"

// messageHeap orders by priority desc, then enqueue time asc.
type messageHeap []*Message

func (h messageHeap) Len() int { return len(h) }

func (h messageHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	if !h[i].EnqueuedAt.Equal(h[j].EnqueuedAt) {
		return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
	}
	return h[i].seq < h[j].seq
}

func (h messageHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *messageHeap) Push(x interface{}) {
	m := x.(*Message)
	m.index = len(*h)
	*h = append(*h, m)
}

func (h *messageHeap) Pop() interface{} {
	old := *h
	n := len(old)
	m := old[n-1]
	old[n-1] = nil
	m.index = -1
	*h = old[:n-1]
	return m
}

// victim picks the entry to evict from a full queue: the oldest for fifo,
// the lowest priority (oldest first) for priority queues.
func (h messageHeap) victim(t Type) *Message {
	var v *Message
	for _, m := range h {
		if v == nil {
			v = m
			continue
		}
		switch t {
		case TypePriority:
			if m.Priority < v.Priority || (m.Priority == v.Priority && older(m, v)) {
				v = m
			}
		default:
			if older(m, v) {
				v = m
			}
		}
	}
	return v
}

func older(a, b *Message) bool {
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.seq < b.seq
}

func (h *messageHeap) remove(m *Message) {
	heap.Remove(h, m.index)
}
