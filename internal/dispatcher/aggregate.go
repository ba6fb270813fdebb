package dispatcher

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"eventhub/internal/filter"
	"eventhub/internal/subscription"
	"eventhub/pkg/models"
)

type accumulator struct {
	fn    subscription.AggregateFunc
	n     int
	sum   float64
	min   float64
	max   float64
	first interface{}
	last  interface{}
	seen  bool
}

func newAccumulator(fn subscription.AggregateFunc) *accumulator {
	return &accumulator{fn: fn}
}

func (a *accumulator) add(v interface{}) {
	if !a.seen {
		a.first = v
		a.seen = true
	}
	a.last = v

	if a.fn == subscription.AggCount {
		a.n++
		return
	}
	n, ok := filter.ToNumber(v)
	if !ok {
		return
	}
	if a.n == 0 || n < a.min {
		a.min = n
	}
	if a.n == 0 || n > a.max {
		a.max = n
	}
	a.sum += n
	a.n++
}

func (a *accumulator) result() interface{} {
	switch a.fn {
	case subscription.AggCount:
		return a.n
	case subscription.AggFirst:
		return a.first
	case subscription.AggLast:
		return a.last
	}
	if a.n == 0 {
		return nil
	}
	switch a.fn {
	case subscription.AggSum:
		return a.sum
	case subscription.AggAvg:
		return a.sum / float64(a.n)
	case subscription.AggMin:
		return a.min
	case subscription.AggMax:
		return a.max
	}
	return nil
}

type group struct {
	key    interface{}
	count  int
	fields map[string]*accumulator
	last   models.Event
}

// aggregator collects events for WindowMs from the first event of a window,
// then emits one reduced event per group.
type aggregator struct {
	cfg   subscription.AggregationConfig
	emit  func([]models.Event)
	newID func() string

	mu          sync.Mutex
	groups      map[string]*group
	windowStart time.Time
	timer       *time.Timer
	stopped     bool
}

func newAggregator(cfg subscription.AggregationConfig, newID func() string, emit func([]models.Event)) *aggregator {
	return &aggregator{
		cfg:    cfg,
		emit:   emit,
		newID:  newID,
		groups: make(map[string]*group),
	}
}

func (a *aggregator) add(event models.Event, now time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}

	var keyValue interface{}
	if a.cfg.GroupBy != "" {
		keyValue, _ = filter.Lookup(event.Payload, a.cfg.GroupBy)
	}
	key := fmt.Sprint(keyValue)

	g, ok := a.groups[key]
	if !ok {
		g = &group{key: keyValue, fields: make(map[string]*accumulator, len(a.cfg.Fields))}
		for field, fn := range a.cfg.Fields {
			g.fields[field] = newAccumulator(fn)
		}
		a.groups[key] = g
	}
	g.count++
	g.last = event
	for field, acc := range g.fields {
		if v, ok := filter.Lookup(event.Payload, field); ok {
			acc.add(v)
		}
	}

	if a.timer == nil {
		a.windowStart = now
		a.timer = time.AfterFunc(time.Duration(a.cfg.WindowMs)*time.Millisecond, a.flush)
	}
}

func (a *aggregator) flush() {
	a.mu.Lock()
	if a.stopped || len(a.groups) == 0 {
		a.timer = nil
		a.mu.Unlock()
		return
	}
	groups := a.groups
	start := a.windowStart
	a.groups = make(map[string]*group)
	a.timer = nil
	a.mu.Unlock()

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	end := time.Now()
	out := make([]models.Event, 0, len(keys))
	for _, k := range keys {
		out = append(out, a.reduce(groups[k], start, end))
	}
	a.emit(out)
}

func (a *aggregator) reduce(g *group, start, end time.Time) models.Event {
	e := g.last.Clone()
	e.Metadata.CausationID = g.last.ID
	e.ID = a.newID()
	e.Timestamp = end

	payload := make(map[string]interface{}, len(g.fields)+2)
	if a.cfg.GroupBy != "" {
		setPath(payload, a.cfg.GroupBy, g.key)
	}
	for field, acc := range g.fields {
		setPath(payload, field, acc.result())
	}
	payload["aggregation"] = map[string]interface{}{
		"count":       g.count,
		"windowMs":    a.cfg.WindowMs,
		"windowStart": start.UTC().Format(time.RFC3339Nano),
		"windowEnd":   end.UTC().Format(time.RFC3339Nano),
	}
	e.Payload = payload
	return e
}

func (a *aggregator) stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.groups = nil
}
