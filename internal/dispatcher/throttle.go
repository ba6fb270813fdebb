package dispatcher

import (
	"math"
	"sync"
	"time"

	"eventhub/internal/subscription"
	"eventhub/pkg/metrics"
)

const defaultThrottleBuffer = 100

// throttle decides when an event may proceed to delivery. Events it holds back
// are released later through emit.
type throttle interface {
	offer(it item, now time.Time) (pass bool)
	stop()
}

func newThrottle(cfg *subscription.ThrottleConfig, emit func(item)) throttle {
	if cfg == nil {
		return nil
	}
	if cfg.MaxUpdatesPerSecond <= 0 {
		if cfg.Strategy == subscription.ThrottleDebounce && cfg.DebounceMs > 0 {
			return &debounceThrottle{quiet: time.Duration(cfg.DebounceMs) * time.Millisecond, emit: emit}
		}
		return nil
	}
	interval := time.Duration(float64(time.Second) / cfg.MaxUpdatesPerSecond)

	switch cfg.Strategy {
	case subscription.ThrottleBuffer:
		size := cfg.BufferSize
		if size <= 0 {
			size = defaultThrottleBuffer
		}
		return &bufferThrottle{interval: interval, size: size, emit: emit}
	case subscription.ThrottleDebounce:
		quiet := interval
		if cfg.DebounceMs > 0 {
			quiet = time.Duration(cfg.DebounceMs) * time.Millisecond
		}
		return &debounceThrottle{quiet: quiet, emit: emit}
	default:
		return newDropThrottle(cfg.MaxUpdatesPerSecond)
	}
}

// dropThrottle keeps the pass times of the last limit events and lets an
// event through only when the oldest of them is at least one period old, so
// no window of length period ever holds more than limit deliveries.
type dropThrottle struct {
	mu     sync.Mutex
	limit  int
	period time.Duration
	passed []time.Time
	next   int
}

func newDropThrottle(rate float64) *dropThrottle {
	limit := int(math.Floor(rate))
	if limit < 1 {
		limit = 1
	}
	return &dropThrottle{
		limit:  limit,
		period: time.Duration(float64(limit) / rate * float64(time.Second)),
		passed: make([]time.Time, 0, limit),
	}
}

func (t *dropThrottle) offer(_ item, now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.passed) < t.limit {
		t.passed = append(t.passed, now)
	} else {
		if now.Sub(t.passed[t.next]) < t.period {
			metrics.IncThrottleDecision(string(subscription.ThrottleDrop), "dropped")
			return false
		}
		t.passed[t.next] = now
		t.next = (t.next + 1) % t.limit
	}
	metrics.IncThrottleDecision(string(subscription.ThrottleDrop), "passed")
	return true
}

func (t *dropThrottle) stop() {}

// bufferThrottle holds events and releases one per interval. When full the
// oldest held event is dropped.
type bufferThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	size     int
	emit     func(item)
	pending  []item
	ticker   *time.Ticker
	done     chan struct{}
	stopped  bool
}

func (t *bufferThrottle) offer(it item, _ time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}

	if len(t.pending) >= t.size {
		t.pending = t.pending[1:]
		metrics.IncThrottleDecision(string(subscription.ThrottleBuffer), "dropped")
	}
	t.pending = append(t.pending, it)
	metrics.IncThrottleDecision(string(subscription.ThrottleBuffer), "buffered")

	if t.ticker == nil {
		t.ticker = time.NewTicker(t.interval)
		t.done = make(chan struct{})
		go t.run(t.ticker, t.done)
	}
	return false
}

func (t *bufferThrottle) run(ticker *time.Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.stopped || len(t.pending) == 0 {
				if t.ticker == ticker {
					ticker.Stop()
					t.ticker = nil
				}
				t.mu.Unlock()
				return
			}
			next := t.pending[0]
			t.pending = t.pending[1:]
			t.mu.Unlock()
			t.emit(next)
		}
	}
}

func (t *bufferThrottle) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.pending = nil
	if t.ticker != nil {
		t.ticker.Stop()
		close(t.done)
		t.ticker = nil
	}
}

// debounceThrottle delivers the latest event once no new event has arrived
// for the quiet period.
type debounceThrottle struct {
	mu      sync.Mutex
	quiet   time.Duration
	emit    func(item)
	latest  item
	timer   *time.Timer
	seq     uint64
	stopped bool
}

func (t *debounceThrottle) offer(it item, _ time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}

	t.latest = it
	t.seq++
	seq := t.seq
	if t.timer != nil {
		t.timer.Stop()
		metrics.IncThrottleDecision(string(subscription.ThrottleDebounce), "superseded")
	}
	t.timer = time.AfterFunc(t.quiet, func() { t.fire(seq) })
	return false
}

func (t *debounceThrottle) fire(seq uint64) {
	t.mu.Lock()
	if t.stopped || seq != t.seq {
		t.mu.Unlock()
		return
	}
	latest := t.latest
	t.timer = nil
	t.mu.Unlock()

	metrics.IncThrottleDecision(string(subscription.ThrottleDebounce), "passed")
	t.emit(latest)
}

func (t *debounceThrottle) stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}
