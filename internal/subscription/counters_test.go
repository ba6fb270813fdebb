package subscription

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountersLatencyStats(t *testing.T) {
	c := newCounters(100)
	now := time.Now()
	for i := 1; i <= 100; i++ {
		c.RecordDelivery(10, time.Duration(i)*time.Millisecond, now)
	}
	c.RecordError()

	m := c.Snapshot()
	assert.Equal(t, uint64(100), m.TotalMessages)
	assert.Equal(t, uint64(1000), m.BytesTransferred)
	assert.Equal(t, uint64(1), m.Errors)
	assert.Equal(t, 1.0, m.Latency.Min)
	assert.Equal(t, 100.0, m.Latency.Max)
	assert.Equal(t, 50.5, m.Latency.Avg)
	assert.Equal(t, 95.0, m.Latency.P95)
	assert.Equal(t, 99.0, m.Latency.P99)
}

func TestCountersWindowIsBounded(t *testing.T) {
	c := newCounters(4)
	now := time.Now()
	for i := 1; i <= 10; i++ {
		c.RecordDelivery(0, time.Duration(i)*time.Millisecond, now)
	}

	m := c.Snapshot()
	assert.Equal(t, 7.0, m.Latency.Min)
	assert.Equal(t, 10.0, m.Latency.Max)
}

func TestCountersRate(t *testing.T) {
	c := newCounters(4)
	for i := 0; i < 120; i++ {
		c.RecordDelivery(0, 0, time.Now())
	}
	c.tick(time.Minute)
	assert.Equal(t, 2.0, c.Snapshot().MessagesPerSecond)

	c.tick(time.Minute)
	assert.Equal(t, 0.0, c.Snapshot().MessagesPerSecond)
}
