package channel

import (
	"eventhub/internal/config"
	"eventhub/internal/connection"
	"eventhub/internal/logger"
)

// NewFromConfig registers the transport channel plus one channel per external
// name: a webhook when channels.webhooks has a URL for it, otherwise a log
// stub.
func NewFromConfig(cfg config.ChannelsConfig, cb config.CircuitBreakerConfig, registry *connection.Registry, log logger.Logger) *Deliverer {
	d := NewDeliverer(log)
	if registry != nil {
		d.Register(NewTransportChannel(registry))
	}
	for _, name := range External {
		if url := cfg.Webhooks[string(name)]; url != "" {
			d.Register(NewWebhookChannel(name, url, cfg.Timeout, cb))
			continue
		}
		d.Register(NewLogChannel(name, d.log))
	}
	return d
}
