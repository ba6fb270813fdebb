package dispatcher

import (
	"context"

	"eventhub/internal/subscription"
	"eventhub/pkg/errors"
	"eventhub/pkg/logging"
	"eventhub/pkg/metrics"
	"eventhub/pkg/models"
)

// pipeline is the per-subscription delivery policy for one generation of a
// subscription: transforms, then aggregation, then throttling.
type pipeline struct {
	d          *Dispatcher
	handle     *subscription.Handle
	transforms []transformer
	buildErr   error
	agg        *aggregator
	thr        throttle
	timerCtx   context.Context
}

func newPipeline(d *Dispatcher, h *subscription.Handle) *pipeline {
	p := &pipeline{
		d:        d,
		handle:   h,
		timerCtx: logging.WithSubscriptionID(context.Background(), h.ID),
	}

	transforms, err := compileTransforms(d.store.Evaluator(), h.Config.Transforms)
	if err != nil {
		p.buildErr = err
		d.logger.Warnw("Subscription transforms failed to compile",
			"subscription_id", h.ID,
			"error", err,
		)
	}
	p.transforms = transforms

	p.thr = newThrottle(h.Config.Throttle, func(it item) {
		p.guard(func() { d.deliver(p.timerCtx, h, it) })
	})

	if cfg := h.Config.Aggregation; cfg != nil && cfg.WindowMs > 0 && len(cfg.Fields) > 0 {
		p.agg = newAggregator(*cfg, d.newID, func(events []models.Event) {
			p.guard(func() {
				now := d.now()
				for _, e := range events {
					p.throttleAndDeliver(p.timerCtx, item{event: e, receivedAt: now})
				}
			})
		})
	}
	return p
}

func (p *pipeline) process(ctx context.Context, it item) {
	if p.buildErr != nil {
		p.fail(ctx, p.buildErr)
		return
	}

	for _, step := range p.transforms {
		out, keep, err := step(ctx, it.event)
		if err != nil {
			p.fail(ctx, err)
			return
		}
		if !keep {
			p.d.filtered.Add(1)
			metrics.IncDelivery("transform_filtered")
			return
		}
		it.event = out
	}

	if p.agg != nil {
		p.agg.add(it.event, p.d.now())
		return
	}
	p.throttleAndDeliver(ctx, it)
}

func (p *pipeline) throttleAndDeliver(ctx context.Context, it item) {
	if p.thr != nil && !p.thr.offer(it, p.d.now()) {
		return
	}
	p.d.deliver(ctx, p.handle, it)
}

func (p *pipeline) fail(ctx context.Context, err error) {
	p.d.errCount.Add(1)
	p.d.store.RecordError(p.handle.ID)
	metrics.IncDelivery("transform_error")
	p.d.logger.DebugwCtx(ctx, "Transform failed", "error", err)
}

// guard contains panics raised from timer callbacks.
func (p *pipeline) guard(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			p.d.errCount.Add(1)
			p.d.store.RecordError(p.handle.ID)
			p.d.logger.ErrorwCtx(p.timerCtx, "Subscription pipeline panicked", "error", errors.RecoverPanic(r))
		}
	}()
	fn()
}

func (p *pipeline) stop() {
	if p.agg != nil {
		p.agg.stop()
	}
	if p.thr != nil {
		p.thr.stop()
	}
}

