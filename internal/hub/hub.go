// Package hub wires the subscription store, connection registry, dispatcher,
// queue manager and metrics engine into one process-wide event hub and owns
// the lifecycle of their scheduled loops.
package hub

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"eventhub/internal/broker"
	"eventhub/internal/channel"
	"eventhub/internal/config"
	"eventhub/internal/connection"
	"eventhub/internal/dispatcher"
	"eventhub/internal/logger"
	"eventhub/internal/monitoring"
	"eventhub/internal/notify"
	"eventhub/internal/queue"
	"eventhub/internal/subscription"
	"eventhub/pkg/errors"
	"eventhub/pkg/models"
)

const (
	defaultInactivitySweep = time.Minute
	defaultIdleCheck       = 30 * time.Second
	rateInterval           = time.Second
)

// Options carries the optional infrastructure the hub can run with. Zero
// values fall back to in-memory implementations.
type Options struct {
	Deduper        queue.Deduper
	Rules          monitoring.RuleRepository
	Archive        monitoring.Archive
	Resources      monitoring.ResourceSampler
	Producer       broker.Producer
	LifecycleSinks []notify.Sink[models.LifecycleEvent]
}

type Hub struct {
	cfg    *config.Config
	logger logger.Logger

	Store      *subscription.Store
	Registry   *connection.Registry
	Dispatcher *dispatcher.Dispatcher
	Queues     *queue.Manager
	Monitor    *monitoring.Engine
	Channels   *channel.Deliverer

	lifecycle *notify.Bus[models.LifecycleEvent]
	alerts    *notify.Bus[models.AlertEvent]

	sessionsMu sync.Mutex
	sessions   map[string]int

	runMu  sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group

	now   func() time.Time
	newID func() string
}

func New(cfg *config.Config, opts Options, log logger.Logger) (*Hub, error) {
	h := &Hub{
		cfg:      cfg,
		logger:   logger.Named(log, "hub"),
		sessions: make(map[string]int),
		now:      time.Now,
		newID:    uuid.NewString,
	}

	h.lifecycle = notify.NewBus[models.LifecycleEvent]("lifecycle", cfg.Hub.NotificationBufferSize, log, subscription.LogSink(log))
	if opts.Producer != nil && cfg.Broker.Kafka.LifecycleTopic != "" {
		h.lifecycle.AddSink(subscription.NewKafkaSink(opts.Producer, cfg.Broker.Kafka.LifecycleTopic))
	}
	for _, sink := range opts.LifecycleSinks {
		h.lifecycle.AddSink(sink)
	}

	store, err := subscription.NewStore(cfg.Hub, h.lifecycle, log)
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription store: %w", err)
	}
	h.Store = store

	h.Registry = connection.NewRegistry(cfg.Connection, log)
	h.Queues = queue.NewManager(cfg.Queue, opts.Deduper, log)
	h.Dispatcher = dispatcher.New(store, dispatcher.Options{
		Sender:   h.Registry,
		Fallback: h.Queues,
		Resolve:  h.resolveConnection,
	}, log)
	h.Queues.SetDelivery(h.Dispatcher.DeliverQueued, h.subscriptionActive)
	store.OnRemove(h.Queues.ReleaseSubscription)

	h.Channels = channel.NewFromConfig(cfg.Channels, cfg.CircuitBreaker, h.Registry, log)

	h.alerts = notify.NewBus[models.AlertEvent]("alerts", cfg.Hub.NotificationBufferSize, log,
		monitoring.LogSink(log),
		monitoring.PublishSink(h.Dispatcher),
		monitoring.ChannelSink(h.Channels),
	)
	if opts.Producer != nil {
		alertTopic := cfg.Broker.Kafka.AlertTopic
		if alertTopic == "" {
			alertTopic = cfg.Monitoring.AlertTopic
		}
		h.alerts.AddSink(monitoring.KafkaSink(opts.Producer, alertTopic))
	}

	h.Monitor = monitoring.NewEngine(cfg.Monitoring, monitoring.Sources{
		Connections:   h.Registry.Stats,
		Subscriptions: store.Snapshot,
		Queues:        h.Queues.Stats,
		Dispatcher:    h.Dispatcher.Stats,
		Resources:     opts.Resources,
	}, opts.Rules, log)
	h.Monitor.SetBus(h.alerts)
	if opts.Archive != nil {
		h.Monitor.SetArchive(opts.Archive)
	}
	h.Queues.OnTerminal(h.Monitor.RecordQueueOutcome)

	return h, nil
}

// resolveConnection finds the live connection of a subscription's session.
func (h *Hub) resolveConnection(sub subscription.Subscription) (string, bool) {
	c, ok := h.Registry.FindBySession(sub.SessionID)
	if !ok || c.Status() != connection.StatusConnected {
		return "", false
	}
	return c.ID(), true
}

func (h *Hub) subscriptionActive(id string) bool {
	sub, err := h.Store.Get(id)
	return err == nil && sub.Status == subscription.StatusActive
}

// Publish hands an event to the dispatcher.
func (h *Hub) Publish(ctx context.Context, event models.Event) (models.Event, error) {
	return h.Dispatcher.Publish(ctx, event)
}

// Start runs the scheduled loops until Stop is called or ctx is done.
func (h *Hub) Start(ctx context.Context) error {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	if h.cancel != nil {
		return errors.ErrConflict.WithDetail("message", "hub already started")
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gCtx := errgroup.WithContext(runCtx)
	h.cancel, h.group = cancel, g

	g.Go(func() error { return h.lifecycle.Run(gCtx) })
	g.Go(func() error { return h.alerts.Run(gCtx) })
	g.Go(func() error { return h.Monitor.Run(gCtx) })
	g.Go(func() error { return h.Queues.Run(gCtx) })
	g.Go(func() error { return h.Queues.RunSweeper(gCtx) })

	g.Go(func() error {
		return every(gCtx, positive(h.cfg.Hub.InactivitySweep, defaultInactivitySweep), func() {
			h.Store.SweepInactive(gCtx, h.now())
		})
	})
	g.Go(func() error {
		return every(gCtx, positive(h.cfg.Connection.IdleCheckInterval, defaultIdleCheck), func() {
			h.Registry.MarkIdle(h.now())
		})
	})
	g.Go(func() error {
		return every(gCtx, rateInterval, func() {
			h.Store.TickRates(rateInterval)
			h.Queues.TickRates(rateInterval)
		})
	})

	h.logger.InfowCtx(ctx, "Hub started")
	return nil
}

// Stop cancels every loop, waits for them to return, then closes all
// connections and pipelines.
func (h *Hub) Stop() error {
	h.runMu.Lock()
	cancel, g := h.cancel, h.group
	h.cancel, h.group = nil, nil
	h.runMu.Unlock()

	var err error
	if cancel != nil {
		cancel()
		err = g.Wait()
	}

	h.Dispatcher.Stop()
	h.Registry.CloseAll()
	h.logger.Infow("Hub stopped")
	return err
}

func every(ctx context.Context, interval time.Duration, fn func()) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn()
		}
	}
}

func positive(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}
