package monitoring

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"eventhub/internal/config"
	"eventhub/internal/connection"
	"eventhub/internal/dispatcher"
	"eventhub/internal/logger"
	"eventhub/internal/notify"
	"eventhub/internal/queue"
	"eventhub/internal/subscription"
	"eventhub/pkg/errors"
	"eventhub/pkg/metrics"
	"eventhub/pkg/models"
)

const (
	defaultTickInterval    = time.Minute
	defaultHistoryCapacity = 1440
)

// Sources reads the statistics of each hub component. Nil fields are skipped.
type Sources struct {
	Connections   func() connection.Stats
	Subscriptions func() subscription.Snapshot
	Queues        func() queue.Stats
	Dispatcher    func() dispatcher.Stats
	Resources     ResourceSampler
}

type Engine struct {
	cfg     config.MonitoringConfig
	sources Sources
	rules   RuleRepository
	archive Archive
	bus     *notify.Bus[models.AlertEvent]
	logger  logger.Logger

	history *Ring[Snapshot]

	mu      sync.Mutex
	prev    *Snapshot
	tracker *alertTracker

	queueFailures atomic.Uint64

	now   func() time.Time
	newID func() string
}

func NewEngine(cfg config.MonitoringConfig, sources Sources, rules RuleRepository, log logger.Logger) *Engine {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = defaultTickInterval
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = defaultHistoryCapacity
	}
	if rules == nil {
		rules = NewMemoryRuleRepository()
	}
	if sources.Resources == nil {
		sources.Resources = runtimeSampler{}
	}
	return &Engine{
		cfg:     cfg,
		sources: sources,
		rules:   rules,
		logger:  logger.Named(log, "monitoring"),
		history: NewRing[Snapshot](cfg.HistoryCapacity),
		tracker: newAlertTracker(),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

func (e *Engine) SetArchive(a Archive) {
	e.archive = a
}

// SetBus routes alert transitions to the bus sinks.
func (e *Engine) SetBus(bus *notify.Bus[models.AlertEvent]) {
	e.bus = bus
}

// RecordQueueOutcome is the queue manager's terminal hook. Failed messages
// are counted into the next snapshot.
func (e *Engine) RecordQueueOutcome(m queue.Message) {
	if m.Status != queue.MessageFailed {
		return
	}
	e.queueFailures.Add(1)
	e.logger.Warnw("Queued message failed",
		"message_id", m.ID,
		"queue_id", m.QueueID,
		"subscription_id", m.SubscriptionID,
		"attempts", m.Attempts,
		"error", m.LastError,
	)
}

// Run takes a snapshot every tick interval until ctx is done.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	e.logger.Infow("Metrics engine started", "tick_interval", e.cfg.TickInterval.String())
	for {
		select {
		case <-ctx.Done():
			e.logger.Infow("Metrics engine stopped")
			return nil
		case <-ticker.C:
			e.Tick(ctx)
		}
	}
}

// Tick collects a snapshot, appends it to the history and evaluates the
// alert rules against it.
func (e *Engine) Tick(ctx context.Context) Snapshot {
	e.mu.Lock()
	snap := e.collect(ctx, e.now(), e.prev, e.queueFailures.Swap(0))
	e.prev = &snap
	e.mu.Unlock()

	e.history.Add(snap)
	e.publishGauges(snap)

	if e.archive != nil && e.cfg.ArchiveEnabled {
		if err := e.archive.Archive(ctx, snap); err != nil {
			e.logger.WarnwCtx(ctx, "Failed to archive snapshot", "error", err)
		}
	}

	e.emit(e.evaluate(ctx, snap))
	return snap
}

func (e *Engine) collect(ctx context.Context, now time.Time, prev *Snapshot, recentFailures uint64) Snapshot {
	s := Snapshot{Timestamp: now}

	if e.sources.Connections != nil {
		cs := e.sources.Connections()
		s.Connections = ConnectionMetrics{
			Total:            cs.Total,
			Active:           cs.ByStatus[connection.StatusConnected],
			Idle:             cs.Idle,
			Reconnections:    cs.Reconnections,
			MessagesSent:     cs.MessagesSent,
			MessagesReceived: cs.MessagesReceived,
			BytesSent:        cs.BytesSent,
			BytesReceived:    cs.BytesReceived,
			Dropped:          cs.Dropped,
			AvgLatencyMs:     cs.AvgLatencyMs,
		}
	}

	if e.sources.Subscriptions != nil {
		s.Subscriptions = subscriptionMetrics(e.sources.Subscriptions())
	}

	if e.sources.Queues != nil {
		qs := e.sources.Queues()
		s.Queues = QueueMetrics{
			Count:               qs.Queues,
			TotalSize:           qs.TotalSize,
			Processed:           qs.Processed,
			Errors:              qs.Errors,
			Failed:              qs.Failed,
			Expired:             qs.Expired,
			Evicted:             qs.Evicted,
			Rejected:            qs.Rejected,
			ThroughputPerSecond: qs.Throughput,
		}
	}
	s.Queues.RecentFailures = recentFailures

	if e.sources.Dispatcher != nil {
		ds := e.sources.Dispatcher()
		s.Dispatcher = DispatcherMetrics{
			Published:    ds.Published,
			Matched:      ds.Matched,
			Delivered:    ds.Delivered,
			Failed:       ds.Failed,
			Queued:       ds.Queued,
			Filtered:     ds.Filtered,
			Errors:       ds.Errors,
			Pipelines:    ds.Pipelines,
			AvgPublishMs: ds.AvgPublishMs,
		}
	}

	res, err := e.sources.Resources.Sample(ctx)
	if err != nil {
		e.logger.DebugwCtx(ctx, "Resource sampling incomplete", "error", err)
	}
	s.Resources = res

	if prev != nil {
		elapsed := now.Sub(prev.Timestamp)
		s.Connections.MessagesPerSecond = round2(rate(s.Connections.MessagesSent, prev.Connections.MessagesSent, elapsed))
		s.Dispatcher.EventsPerSecond = round2(rate(s.Dispatcher.Published, prev.Dispatcher.Published, elapsed))
		s.Dispatcher.DeliveriesPerSecond = round2(rate(s.Dispatcher.Delivered, prev.Dispatcher.Delivered, elapsed))
		s.ErrorRate = round2(errorRate(s.Dispatcher, prev.Dispatcher))
	} else {
		s.ErrorRate = round2(errorRate(s.Dispatcher, DispatcherMetrics{}))
	}

	h := HealthScore(s)
	s.HealthScore, s.HealthStatus = h.Score, h.Status
	return s
}

func subscriptionMetrics(snap subscription.Snapshot) SubscriptionMetrics {
	counts := snap.CountByStatus()
	m := SubscriptionMetrics{
		Total:        len(snap.Subscriptions),
		Active:       counts[subscription.StatusActive],
		Paused:       counts[subscription.StatusPaused],
		Disconnected: counts[subscription.StatusDisconnected],
		Error:        counts[subscription.StatusError],
	}

	var latencySum float64
	var latencyCount int
	for _, sub := range snap.Subscriptions {
		m.TotalMessages += sub.Metrics.TotalMessages
		m.Errors += sub.Metrics.Errors
		m.MessagesPerSecond += sub.Metrics.MessagesPerSecond
		if sub.Metrics.TotalMessages > 0 {
			latencySum += sub.Metrics.Latency.Avg
			latencyCount++
		}
	}
	m.MessagesPerSecond = round2(m.MessagesPerSecond)
	if latencyCount > 0 {
		m.AvgLatencyMs = round2(latencySum / float64(latencyCount))
	}
	return m
}

func (e *Engine) publishGauges(s Snapshot) {
	metrics.SetHealthScore(s.HealthScore)
	metrics.SetSubscriptions(string(subscription.StatusActive), s.Subscriptions.Active)
	metrics.SetSubscriptions(string(subscription.StatusPaused), s.Subscriptions.Paused)
	metrics.SetSubscriptions(string(subscription.StatusDisconnected), s.Subscriptions.Disconnected)
	metrics.SetSubscriptions(string(subscription.StatusError), s.Subscriptions.Error)
}

// evaluate advances every enabled rule against the snapshot and returns the
// resulting transitions.
func (e *Engine) evaluate(ctx context.Context, s Snapshot) []models.AlertEvent {
	rules, err := e.rules.ListRules(ctx)
	if err != nil {
		e.logger.ErrorwCtx(ctx, "Failed to load alert rules", "error", err)
		return nil
	}
	values := s.Values()

	e.mu.Lock()
	defer e.mu.Unlock()

	e.tracker.retain(rules)

	var events []models.AlertEvent
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		value, ok := values[rule.MetricPath]
		if !ok {
			continue
		}
		since := e.tracker.since(rule.ID)
		kind, fired := e.tracker.evaluate(rule, value, s.Timestamp)
		if !fired {
			continue
		}
		if kind != models.AlertKindResolved {
			since = e.tracker.since(rule.ID)
		}
		events = append(events, alertEvent(rule, kind, value, since, s.Timestamp))
	}
	metrics.SetActiveAlerts(e.tracker.len())
	return events
}

func (e *Engine) emit(events []models.AlertEvent) {
	for _, ev := range events {
		metrics.IncAlertTransition(ev.RuleID, ev.Kind)
		if e.bus != nil {
			e.bus.Publish(ev)
		}
	}
}

// Current returns the latest snapshot, or a live one when no tick has run yet.
func (e *Engine) Current(ctx context.Context) Snapshot {
	if s, ok := e.history.Latest(); ok {
		return s
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.collect(ctx, e.now(), e.prev, e.queueFailures.Load())
}

// History returns the snapshots of the last hours, oldest first.
func (e *Engine) History(hours int) ([]Snapshot, error) {
	if hours <= 0 {
		return nil, errors.ErrValidation.WithDetail("field", "hours").WithDetail("message", "must be positive")
	}
	return e.since(e.now().Add(-time.Duration(hours) * time.Hour)), nil
}

func (e *Engine) since(from time.Time) []Snapshot {
	all := e.history.All()
	i := sort.Search(len(all), func(i int) bool { return !all[i].Timestamp.Before(from) })
	return all[i:]
}

func (e *Engine) Health(ctx context.Context) Health {
	return HealthScore(e.Current(ctx))
}

type Breakdown struct {
	Domain    string             `json:"domain"`
	Timestamp time.Time          `json:"timestamp"`
	Current   map[string]float64 `json:"current"`
	Average   map[string]float64 `json:"average"`
	Peak      map[string]float64 `json:"peak"`
	Samples   int                `json:"samples"`
}

var breakdownDomains = map[string][]string{
	"connections":   {"connections."},
	"subscriptions": {"subscriptions."},
	"queues":        {"queues."},
	"performance":   {"dispatcher.", "resources.", "error_rate", "health_score"},
}

// Breakdown reports the current value of every metric in a domain together
// with its average and peak over the last hour.
func (e *Engine) Breakdown(ctx context.Context, domain string) (Breakdown, error) {
	prefixes, ok := breakdownDomains[domain]
	if !ok {
		return Breakdown{}, errors.ErrValidation.
			WithDetail("field", "domain").
			WithDetail("message", fmt.Sprintf("unknown domain %q (valid: connections, subscriptions, queues, performance)", domain))
	}
	inDomain := func(path string) bool {
		for _, p := range prefixes {
			if strings.HasPrefix(path, p) {
				return true
			}
		}
		return false
	}

	current := e.Current(ctx)
	b := Breakdown{
		Domain:    domain,
		Timestamp: current.Timestamp,
		Current:   make(map[string]float64),
		Average:   make(map[string]float64),
		Peak:      make(map[string]float64),
	}
	for path, v := range current.Values() {
		if inDomain(path) {
			b.Current[path] = v
		}
	}

	window := e.since(e.now().Add(-time.Hour))
	b.Samples = len(window)
	for _, s := range window {
		for path, v := range s.Values() {
			if !inDomain(path) {
				continue
			}
			b.Average[path] += v
			if peak, ok := b.Peak[path]; !ok || v > peak {
				b.Peak[path] = v
			}
		}
	}
	for path := range b.Average {
		b.Average[path] = round2(b.Average[path] / float64(len(window)))
	}
	return b, nil
}

const (
	TrendUp     = "up"
	TrendDown   = "down"
	TrendStable = "stable"
)

type TrendPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

type Trend struct {
	Path          string       `json:"path"`
	Hours         int          `json:"hours"`
	Points        []TrendPoint `json:"points"`
	Min           float64      `json:"min"`
	Max           float64      `json:"max"`
	Avg           float64      `json:"avg"`
	Change        float64      `json:"change"`
	ChangePercent float64      `json:"changePercent"`
	Direction     string       `json:"direction"`
}

// Trend returns the series of one metric path over the last hours.
func (e *Engine) Trend(path string, hours int) (Trend, error) {
	if !KnownPath(path) {
		return Trend{}, errors.ErrValidation.WithDetail("field", "path").WithDetail("message", fmt.Sprintf("unknown metric path %q", path))
	}
	history, err := e.History(hours)
	if err != nil {
		return Trend{}, err
	}

	t := Trend{Path: path, Hours: hours, Points: make([]TrendPoint, 0, len(history)), Direction: TrendStable}
	if len(history) == 0 {
		return t, nil
	}

	t.Min, t.Max = math.Inf(1), math.Inf(-1)
	var sum float64
	for _, s := range history {
		v := s.Values()[path]
		t.Points = append(t.Points, TrendPoint{Timestamp: s.Timestamp, Value: v})
		t.Min = math.Min(t.Min, v)
		t.Max = math.Max(t.Max, v)
		sum += v
	}
	t.Avg = round2(sum / float64(len(t.Points)))

	first, last := t.Points[0].Value, t.Points[len(t.Points)-1].Value
	t.Change = round2(last - first)
	if first != 0 {
		t.ChangePercent = round2(t.Change / math.Abs(first) * 100)
	}
	t.Direction = direction(first, t.Change, t.ChangePercent)
	return t, nil
}

// direction ignores moves within 5% of the starting value.
func direction(first, change, changePercent float64) string {
	if first == 0 {
		switch {
		case change > 0:
			return TrendUp
		case change < 0:
			return TrendDown
		}
		return TrendStable
	}
	switch {
	case changePercent > 5:
		return TrendUp
	case changePercent < -5:
		return TrendDown
	}
	return TrendStable
}

// Export renders the current snapshot as "metric_name value" lines sorted by
// name.
func (e *Engine) Export(ctx context.Context) string {
	values := e.Current(ctx).Values()
	values["alerts.active"] = float64(len(e.ActiveAlerts(ctx)))

	names := make([]string, 0, len(values))
	for path := range values {
		names = append(names, path)
	}
	sort.Strings(names)

	var b strings.Builder
	for _, path := range names {
		b.WriteString(exportName(path))
		b.WriteByte(' ')
		b.WriteString(strconv.FormatFloat(values[path], 'f', -1, 64))
		b.WriteByte('\n')
	}
	return b.String()
}

func exportName(path string) string {
	return "hub_" + strings.ReplaceAll(path, ".", "_")
}

func (e *Engine) ActiveAlerts(ctx context.Context) []Alert {
	rules, err := e.rules.ListRules(ctx)
	if err != nil {
		e.logger.ErrorwCtx(ctx, "Failed to load alert rules", "error", err)
		return []Alert{}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.active(rules)
}

func (e *Engine) CreateRule(ctx context.Context, req RuleRequest) (Rule, error) {
	now := e.now()
	rule := Rule{ID: e.newID(), CreatedAt: now, UpdatedAt: now}
	req.apply(&rule)
	if err := ValidateRule(rule); err != nil {
		return Rule{}, err
	}
	if err := e.rules.CreateRule(ctx, rule); err != nil {
		return Rule{}, err
	}
	e.logger.InfowCtx(ctx, "Alert rule created", "rule_id", rule.ID, "name", rule.Name, "metric_path", rule.MetricPath)
	return rule, nil
}

// UpdateRule replaces a rule. A triggered alert on it starts over.
func (e *Engine) UpdateRule(ctx context.Context, id string, req RuleRequest) (Rule, error) {
	rule, err := e.rules.GetRule(ctx, id)
	if err != nil {
		return Rule{}, err
	}
	req.apply(&rule)
	rule.UpdatedAt = e.now()
	if err := ValidateRule(rule); err != nil {
		return Rule{}, err
	}
	if err := e.rules.UpdateRule(ctx, rule); err != nil {
		return Rule{}, err
	}

	e.mu.Lock()
	e.tracker.reset(id)
	e.mu.Unlock()

	e.logger.InfowCtx(ctx, "Alert rule updated", "rule_id", id)
	return rule, nil
}

func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	if err := e.rules.DeleteRule(ctx, id); err != nil {
		return err
	}

	e.mu.Lock()
	e.tracker.reset(id)
	e.mu.Unlock()

	e.logger.InfowCtx(ctx, "Alert rule deleted", "rule_id", id)
	return nil
}

func (e *Engine) GetRule(ctx context.Context, id string) (Rule, error) {
	return e.rules.GetRule(ctx, id)
}

func (e *Engine) ListRules(ctx context.Context) ([]Rule, error) {
	rules, err := e.rules.ListRules(ctx)
	if err != nil {
		return nil, err
	}
	if rules == nil {
		rules = []Rule{}
	}
	return rules, nil
}
