package subscription

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Counters hold delivery statistics for one subscription. They survive
// generation changes and are safe for concurrent use.
type Counters struct {
	total        atomic.Uint64
	errors       atomic.Uint64
	bytes        atomic.Uint64
	lastDelivery atomic.Int64

	mu        sync.Mutex
	latencies []float64
	next      int
	filled    bool
	lastTotal uint64
	rate      float64
}

func newCounters(window int) *Counters {
	if window <= 0 {
		window = 512
	}
	return &Counters{latencies: make([]float64, window)}
}

func (c *Counters) RecordDelivery(bytes int, latency time.Duration, at time.Time) {
	c.total.Add(1)
	if bytes > 0 {
		c.bytes.Add(uint64(bytes))
	}
	c.lastDelivery.Store(at.UnixNano())

	ms := float64(latency.Microseconds()) / 1000
	if ms < 0 {
		ms = 0
	}
	c.mu.Lock()
	c.latencies[c.next] = ms
	c.next++
	if c.next == len(c.latencies) {
		c.next = 0
		c.filled = true
	}
	c.mu.Unlock()
}

func (c *Counters) RecordError() {
	c.errors.Add(1)
}

func (c *Counters) LastDelivery() time.Time {
	n := c.lastDelivery.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// tick recomputes MessagesPerSecond over the elapsed interval.
func (c *Counters) tick(elapsed time.Duration) {
	total := c.total.Load()
	c.mu.Lock()
	defer c.mu.Unlock()
	if elapsed > 0 {
		c.rate = float64(total-c.lastTotal) / elapsed.Seconds()
	}
	c.lastTotal = total
}

func (c *Counters) Snapshot() Metrics {
	m := Metrics{
		TotalMessages:    c.total.Load(),
		Errors:           c.errors.Load(),
		BytesTransferred: c.bytes.Load(),
	}

	c.mu.Lock()
	m.MessagesPerSecond = c.rate
	n := c.next
	if c.filled {
		n = len(c.latencies)
	}
	sample := append([]float64(nil), c.latencies[:n]...)
	c.mu.Unlock()

	m.Latency = latencyStats(sample)
	return m
}

func latencyStats(sample []float64) LatencyStats {
	if len(sample) == 0 {
		return LatencyStats{}
	}
	sort.Float64s(sample)

	sum := 0.0
	for _, v := range sample {
		sum += v
	}
	return LatencyStats{
		Min: sample[0],
		Max: sample[len(sample)-1],
		Avg: sum / float64(len(sample)),
		P95: percentile(sample, 0.95),
		P99: percentile(sample, 0.99),
	}
}

// percentile uses the nearest-rank method on a sorted sample.
func percentile(sorted []float64, p float64) float64 {
	rank := int(math.Ceil(p*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	return sorted[rank]
}
