package topic

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIndexCandidates(t *testing.T) {
	idx := NewIndex()
	idx.Add("s1", MustCompile("terminal.*.status"))
	idx.Add("s2", MustCompile("terminal.**"))
	idx.Add("s3", MustCompile("terminal.crane01.status"))
	idx.Add("s4", MustCompile("a.**.z"))
	idx.Add("s5", MustCompile("orders.created"))

	assert.Equal(t, []string{"s1", "s2", "s3"}, idx.Candidates("terminal.crane01.status"))
	assert.Equal(t, []string{"s2"}, idx.Candidates("terminal.crane01.alerts.status"))
	assert.Equal(t, []string{"s4"}, idx.Candidates("a.z"))
	assert.Equal(t, []string{"s4"}, idx.Candidates("a.b.c.z"))
	assert.Empty(t, idx.Candidates("vessels.arrived"))
	assert.Equal(t, 5, idx.Len())
}

func TestIndexRemoveAndReplace(t *testing.T) {
	idx := NewIndex()
	idx.Add("s1", MustCompile("a.*"))
	idx.Add("s2", MustCompile("a.*"))

	idx.Remove("s1")
	assert.Equal(t, []string{"s2"}, idx.Candidates("a.b"))

	idx.Add("s2", MustCompile("b.*"))
	assert.Empty(t, idx.Candidates("a.b"))
	assert.Equal(t, []string{"s2"}, idx.Candidates("b.c"))

	idx.Remove("s2")
	idx.Remove("missing")
	assert.Equal(t, 0, idx.Len())
	assert.Empty(t, idx.root.children)
}

func TestIndexAgreesWithMatcher(t *testing.T) {
	patterns := []string{"a.*", "a.**", "**", "*.b.*", "a.**.c", "a.b.c", "**.c", "*.*"}
	topics := []string{"a", "a.b", "a.b.c", "x.b.y", "a.x.y.c", "c", "q.r"}

	// Insert in two different orders; candidates must be identical.
	forward := NewIndex()
	backward := NewIndex()
	for i, p := range patterns {
		forward.Add(fmt.Sprintf("p%d", i), MustCompile(p))
	}
	for i := len(patterns) - 1; i >= 0; i-- {
		backward.Add(fmt.Sprintf("p%d", i), MustCompile(patterns[i]))
	}

	for _, topic := range topics {
		var want []string
		for i, p := range patterns {
			if MustCompile(p).Match(topic) {
				want = append(want, fmt.Sprintf("p%d", i))
			}
		}
		got := forward.Candidates(topic)
		if len(want) == 0 {
			assert.Empty(t, got, topic)
		} else {
			assert.ElementsMatch(t, want, got, topic)
		}
		assert.Equal(t, got, backward.Candidates(topic), topic)
	}
}
