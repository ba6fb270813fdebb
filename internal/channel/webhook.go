package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"eventhub/internal/config"
	"eventhub/internal/constants"
	"eventhub/internal/logger"
	"eventhub/pkg/circuitbreaker"
)

// WebhookChannel posts deliveries as JSON to an external notification
// service. Calls go through a circuit breaker per channel.
type WebhookChannel struct {
	name    Name
	url     string
	client  *http.Client
	breaker *circuitbreaker.Wrapper
}

func NewWebhookChannel(name Name, url string, timeout time.Duration, cb config.CircuitBreakerConfig) *WebhookChannel {
	if timeout <= 0 {
		timeout = constants.DefaultHTTPTimeout
	}
	ch := &WebhookChannel{
		name:   name,
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
	if cb.Enabled {
		ch.breaker = circuitbreaker.NewWrapper(circuitbreaker.FromConfig("channel-"+string(name), cb))
	}
	return ch
}

func (c *WebhookChannel) Name() Name { return c.name }

func (c *WebhookChannel) Send(ctx context.Context, d Delivery) error {
	if c.breaker == nil {
		return c.post(ctx, d)
	}
	_, err := c.breaker.ExecuteWithContext(ctx, func() (interface{}, error) {
		return nil, c.post(ctx, d)
	})
	c.breaker.RecordRequest(err == nil)
	return err
}

func (c *WebhookChannel) post(ctx context.Context, d Delivery) error {
	body, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to marshal delivery: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < constants.HTTPStatusOKMin || resp.StatusCode >= constants.HTTPStatusOKMax {
		return fmt.Errorf("webhook returned status: %d", resp.StatusCode)
	}
	return nil
}

// LogChannel stands in for an external channel with no endpoint configured.
type LogChannel struct {
	name Name
	log  logger.Logger
}

func NewLogChannel(name Name, log logger.Logger) *LogChannel {
	return &LogChannel{name: name, log: log}
}

func (c *LogChannel) Name() Name { return c.name }

func (c *LogChannel) Send(ctx context.Context, d Delivery) error {
	c.log.InfowCtx(ctx, "Channel delivery",
		"channel", string(c.name),
		"target", d.Target,
		"event_id", d.Event.ID,
		"topic", d.Event.Topic,
	)
	return nil
}
