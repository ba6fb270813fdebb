package hub

import (
	"context"
	"encoding/json"
	"fmt"

	"eventhub/internal/connection"
	"eventhub/internal/constants"
	"eventhub/internal/filter"
	"eventhub/internal/subscription"
	"eventhub/pkg/errors"
)

type ConnectRequest struct {
	OwnerID   string
	SessionID string
	Metadata  map[string]string
}

// SubscribeData is the payload of a subscribe frame.
type SubscribeData struct {
	Topic      string              `json:"topic"`
	Type       string              `json:"type"`
	Filters    []filter.Predicate  `json:"filters"`
	Expression string              `json:"expression"`
	Config     subscription.Config `json:"config"`
	Dedup      bool                `json:"dedup"`
}

type UnsubscribeData struct {
	Topic string `json:"topic"`
}

// Connect registers a new connection. A session that was seen before is
// resumed: its disconnected persistent subscriptions are rebound to the new
// connection and the reconnection count grows.
func (h *Hub) Connect(ctx context.Context, req ConnectRequest, transport connection.Transport) (*connection.Connection, connection.Welcome, error) {
	if req.OwnerID == "" {
		return nil, connection.Welcome{}, errors.ErrValidation.WithDetail("field", "owner_id").WithDetail("message", "owner id is required")
	}
	if req.SessionID == "" {
		req.SessionID = h.newID()
	}

	h.sessionsMu.Lock()
	reconnections, known := h.sessions[req.SessionID]
	if known {
		reconnections++
	}
	h.sessions[req.SessionID] = reconnections
	h.sessionsMu.Unlock()

	c := connection.NewConnection(connection.Options{
		ID:            h.newID(),
		OwnerID:       req.OwnerID,
		SessionID:     req.SessionID,
		Metadata:      req.Metadata,
		Reconnections: reconnections,
		BufferSize:    h.Registry.BufferSize(),
	}, transport)
	if err := h.Registry.Register(c); err != nil {
		return nil, connection.Welcome{}, err
	}

	welcome := connection.Welcome{ConnectionID: c.ID(), SessionID: req.SessionID}
	for _, sub := range h.Store.Reattach(ctx, req.SessionID, c.ID()) {
		welcome.Resumed = append(welcome.Resumed, sub.ID)
		h.Registry.AddTopic(c.ID(), sub.TopicPattern)
	}

	if _, err := h.Registry.Send(c.ID(), connection.WelcomeFrame(welcome, h.now())); err != nil {
		h.logger.WarnwCtx(ctx, "Failed to send welcome frame", "connection_id", c.ID(), "error", err)
	}

	h.logger.InfowCtx(ctx, "Client connected",
		"connection_id", c.ID(),
		"owner_id", req.OwnerID,
		"session_id", req.SessionID,
		"reconnections", reconnections,
		"resumed", len(welcome.Resumed),
	)
	return c, welcome, nil
}

// Disconnect unregisters a connection. Persistent subscriptions stay behind
// as disconnected and keep queuing for a later resume; the rest end here.
func (h *Hub) Disconnect(ctx context.Context, connectionID string) error {
	info, err := h.Registry.Unregister(connectionID)
	if err != nil {
		return err
	}
	detached, terminated := h.Store.HandleDisconnect(ctx, connectionID)

	if len(detached) == 0 && len(h.Store.ListBySession(info.SessionID)) == 0 {
		h.sessionsMu.Lock()
		delete(h.sessions, info.SessionID)
		h.sessionsMu.Unlock()
	}

	h.logger.InfowCtx(ctx, "Client disconnected",
		"connection_id", connectionID,
		"session_id", info.SessionID,
		"detached", len(detached),
		"terminated", len(terminated),
	)
	return nil
}

// HandleFrame answers one control frame received on a connection. Failures
// are reported back to the client as error frames.
func (h *Hub) HandleFrame(ctx context.Context, connectionID string, data []byte) error {
	c, ok := h.Registry.Connection(connectionID)
	if !ok {
		return errors.ErrNotFound.WithDetail("connection_id", connectionID)
	}
	h.Registry.Touch(connectionID, len(data))

	f, err := connection.Decode(data)
	if err != nil {
		return h.reply(connectionID, connection.ErrorFrame("", "INVALID_FRAME", err.Error()))
	}

	switch f.Type {
	case constants.FrameTypePing:
		return h.reply(connectionID, connection.PongFrame(f.RequestID, h.now()))

	case constants.FrameTypeSubscribe:
		sub, err := h.subscribe(ctx, c, f)
		if err != nil {
			return h.reply(connectionID, errorFrame(f.RequestID, err))
		}
		return h.reply(connectionID, connection.AckFrame(f.RequestID, sub.ID, sub))

	case constants.FrameTypeUnsubscribe:
		id, err := h.unsubscribe(ctx, c, f)
		if err != nil {
			return h.reply(connectionID, errorFrame(f.RequestID, err))
		}
		return h.reply(connectionID, connection.AckFrame(f.RequestID, id, nil))

	default:
		return h.reply(connectionID, connection.ErrorFrame(f.RequestID, "UNSUPPORTED_FRAME",
			fmt.Sprintf("unsupported frame type %q", f.Type)))
	}
}

func (h *Hub) subscribe(ctx context.Context, c *connection.Connection, f connection.Frame) (subscription.Subscription, error) {
	var data SubscribeData
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &data); err != nil {
			return subscription.Subscription{}, errors.ErrValidation.WithDetail("field", "data").WithDetail("message", err.Error())
		}
	}

	if existing, ok := h.Store.FindByConnectionTopic(c.ID(), data.Topic); ok {
		return existing, nil
	}

	sub, _, err := h.Store.Create(ctx, subscription.CreateRequest{
		OwnerID:      c.OwnerID(),
		SessionID:    c.SessionID(),
		ConnectionID: c.ID(),
		Type:         data.Type,
		Topic:        data.Topic,
		Filters:      data.Filters,
		Expression:   data.Expression,
		Config:       data.Config,
		Dedup:        data.Dedup,
	})
	if err != nil {
		return subscription.Subscription{}, err
	}
	h.Registry.AddTopic(c.ID(), sub.TopicPattern)
	return sub, nil
}

func (h *Hub) unsubscribe(ctx context.Context, c *connection.Connection, f connection.Frame) (string, error) {
	id := f.SubscriptionID
	var topic string
	if id == "" {
		var data UnsubscribeData
		if len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, &data); err != nil {
				return "", errors.ErrValidation.WithDetail("field", "data").WithDetail("message", err.Error())
			}
		}
		sub, ok := h.Store.FindByConnectionTopic(c.ID(), data.Topic)
		if !ok {
			return "", errors.ErrNotFound.WithDetail("topic", data.Topic)
		}
		id, topic = sub.ID, sub.TopicPattern
	} else {
		sub, err := h.Store.Get(id)
		if err != nil {
			return "", err
		}
		if sub.ConnectionID != c.ID() {
			return "", errors.ErrNotFound.WithDetail("subscription_id", id)
		}
		topic = sub.TopicPattern
	}

	if err := h.Store.Delete(ctx, id); err != nil {
		return "", err
	}
	h.Registry.RemoveTopic(c.ID(), topic)
	return id, nil
}

func (h *Hub) reply(connectionID string, f connection.Frame) error {
	_, err := h.Registry.Send(connectionID, f)
	return err
}

func errorFrame(requestID string, err error) connection.Frame {
	var appErr *errors.Error
	if errors.As(err, &appErr) {
		msg := appErr.Message
		if detail, ok := appErr.Details["message"].(string); ok && detail != "" {
			msg = detail
		}
		return connection.ErrorFrame(requestID, appErr.Code, msg)
	}
	return connection.ErrorFrame(requestID, errors.ErrInternal.Code, err.Error())
}
