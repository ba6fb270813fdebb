package topic

import (
	"sort"
	"strings"
	"sync"
)

// Index keeps compiled patterns in a segment trie so that a published topic
// only visits the branches that can match it.
type Index struct {
	mu       sync.RWMutex
	root     *node
	matchers map[string]*Matcher
}

type node struct {
	children map[string]*node
	ids      map[string]struct{}
}

func newNode() *node {
	return &node{
		children: make(map[string]*node),
		ids:      make(map[string]struct{}),
	}
}

func NewIndex() *Index {
	return &Index{
		root:     newNode(),
		matchers: make(map[string]*Matcher),
	}
}

// Add registers id under m, replacing any pattern previously held by id.
func (idx *Index) Add(id string, m *Matcher) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.matchers[id]; ok {
		idx.remove(id, old)
	}

	n := idx.root
	for _, segment := range m.segments {
		child, ok := n.children[segment]
		if !ok {
			child = newNode()
			n.children[segment] = child
		}
		n = child
	}
	n.ids[id] = struct{}{}
	idx.matchers[id] = m
}

func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if m, ok := idx.matchers[id]; ok {
		idx.remove(id, m)
	}
}

func (idx *Index) remove(id string, m *Matcher) {
	delete(idx.matchers, id)

	path := make([]*node, 0, len(m.segments)+1)
	n := idx.root
	path = append(path, n)
	for _, segment := range m.segments {
		child, ok := n.children[segment]
		if !ok {
			return
		}
		n = child
		path = append(path, n)
	}
	delete(n.ids, id)

	for i := len(path) - 1; i > 0; i-- {
		cur := path[i]
		if len(cur.ids) > 0 || len(cur.children) > 0 {
			break
		}
		delete(path[i-1].children, m.segments[i-1])
	}
}

// Candidates returns the sorted ids whose pattern matches topic.
func (idx *Index) Candidates(topic string) []string {
	segments := strings.Split(topic, Separator)
	found := make(map[string]struct{})

	idx.mu.RLock()
	idx.root.collect(segments, 0, found)
	idx.mu.RUnlock()

	ids := make([]string, 0, len(found))
	for id := range found {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (n *node) collect(segments []string, i int, found map[string]struct{}) {
	if i == len(segments) {
		for id := range n.ids {
			found[id] = struct{}{}
		}
		if multi, ok := n.children[MultiWildcard]; ok {
			multi.collect(segments, i, found)
		}
		return
	}

	if child, ok := n.children[segments[i]]; ok {
		child.collect(segments, i+1, found)
	}
	if single, ok := n.children[SingleWildcard]; ok {
		single.collect(segments, i+1, found)
	}
	if multi, ok := n.children[MultiWildcard]; ok {
		for k := i; k <= len(segments); k++ {
			multi.collect(segments, k, found)
		}
	}
}

func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.matchers)
}

func (idx *Index) Matcher(id string) (*Matcher, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	m, ok := idx.matchers[id]
	return m, ok
}
