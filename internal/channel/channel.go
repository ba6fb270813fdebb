// Package channel implements deliver(event, channel): pushing an event to a
// live connection or handing it to an external notification collaborator.
package channel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"eventhub/internal/logger"
	"eventhub/pkg/errors"
	"eventhub/pkg/models"
)

type Name string

const (
	Transport  Name = "transport"
	Email      Name = "email"
	SMS        Name = "sms"
	Push       Name = "push"
	Browser    Name = "browser"
	SystemTray Name = "system_tray"
)

var External = []Name{Email, SMS, Push, Browser, SystemTray}

func (n Name) Valid() bool {
	if n == Transport {
		return true
	}
	for _, e := range External {
		if n == e {
			return true
		}
	}
	return false
}

// Delivery addresses one event to one channel. Target is a connection id for
// the transport channel and a recipient for the external ones.
type Delivery struct {
	Event          models.Event `json:"event"`
	Channel        Name         `json:"channel"`
	Target         string       `json:"target"`
	SubscriptionID string       `json:"subscription_id,omitempty"`
}

type Channel interface {
	Name() Name
	Send(ctx context.Context, d Delivery) error
}

type Deliverer struct {
	mu       sync.RWMutex
	channels map[Name]Channel
	log      logger.Logger
}

func NewDeliverer(log logger.Logger, channels ...Channel) *Deliverer {
	d := &Deliverer{
		channels: make(map[Name]Channel),
		log:      logger.Named(log, "channels"),
	}
	for _, ch := range channels {
		d.Register(ch)
	}
	return d
}

// Register adds or replaces the channel under its name.
func (d *Deliverer) Register(ch Channel) {
	d.mu.Lock()
	d.channels[ch.Name()] = ch
	d.mu.Unlock()
}

func (d *Deliverer) Channels() []Name {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]Name, 0, len(d.channels))
	for n := range d.channels {
		names = append(names, n)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

func (d *Deliverer) Deliver(ctx context.Context, delivery Delivery) error {
	if !delivery.Channel.Valid() {
		return errors.ErrValidation.
			WithDetail("channel", string(delivery.Channel)).
			WithDetail("message", fmt.Sprintf("unknown channel %q", delivery.Channel))
	}

	d.mu.RLock()
	ch, ok := d.channels[delivery.Channel]
	d.mu.RUnlock()
	if !ok {
		return errors.ErrDeliveryFailure.
			WithDetail("channel", string(delivery.Channel)).
			WithDetail("message", fmt.Sprintf("channel %s is not configured", delivery.Channel))
	}

	if err := ch.Send(ctx, delivery); err != nil {
		d.log.WarnwCtx(ctx, "Channel delivery failed",
			"channel", string(delivery.Channel),
			"target", delivery.Target,
			"event_id", delivery.Event.ID,
			"error", err,
		)
		var appErr *errors.Error
		if errors.As(err, &appErr) {
			return err
		}
		return errors.ErrDeliveryFailure.
			WithDetail("channel", string(delivery.Channel)).
			WithCause(err)
	}
	return nil
}
