package channel

import (
	"context"

	"eventhub/internal/connection"
)

// TransportChannel pushes events onto a live connection's outbound buffer.
type TransportChannel struct {
	registry *connection.Registry
}

func NewTransportChannel(registry *connection.Registry) *TransportChannel {
	return &TransportChannel{registry: registry}
}

func (c *TransportChannel) Name() Name { return Transport }

func (c *TransportChannel) Send(_ context.Context, d Delivery) error {
	frame, err := connection.EventFrame(d.SubscriptionID, d.Event)
	if err != nil {
		return err
	}
	_, err = c.registry.Send(d.Target, frame)
	return err
}
