package connection

import (
	"encoding/json"
	"fmt"
	"time"

	"eventhub/internal/constants"
	"eventhub/pkg/models"
)

// Frame is the JSON envelope exchanged over a connection in both directions.
type Frame struct {
	Type           string          `json:"type"`
	RequestID      string          `json:"requestId,omitempty"`
	SubscriptionID string          `json:"subscriptionId,omitempty"`
	Data           json.RawMessage `json:"data,omitempty"`
	Timestamp      string          `json:"timestamp,omitempty"`
	Code           string          `json:"code,omitempty"`
	Message        string          `json:"message,omitempty"`
}

func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("failed to decode frame: %w", err)
	}
	if f.Type == "" {
		return Frame{}, fmt.Errorf("frame type is required")
	}
	return f, nil
}

func Encode(f Frame) ([]byte, error) {
	data, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame: %w", err)
	}
	return data, nil
}

func EventFrame(subscriptionID string, event models.Event) (Frame, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return Frame{}, fmt.Errorf("failed to encode event: %w", err)
	}
	return Frame{
		Type:           constants.FrameTypeEvent,
		SubscriptionID: subscriptionID,
		Data:           data,
	}, nil
}

func PongFrame(requestID string, now time.Time) Frame {
	return Frame{
		Type:      constants.FrameTypePong,
		RequestID: requestID,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}

func AckFrame(requestID, subscriptionID string, data interface{}) Frame {
	f := Frame{
		Type:           constants.FrameTypeAck,
		RequestID:      requestID,
		SubscriptionID: subscriptionID,
	}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			f.Data = raw
		}
	}
	return f
}

func ErrorFrame(requestID, code, message string) Frame {
	return Frame{
		Type:      constants.FrameTypeError,
		RequestID: requestID,
		Code:      code,
		Message:   message,
	}
}

type Welcome struct {
	ConnectionID string   `json:"connectionId"`
	SessionID    string   `json:"sessionId"`
	Resumed      []string `json:"resumedSubscriptions,omitempty"`
}

func WelcomeFrame(w Welcome, now time.Time) Frame {
	raw, _ := json.Marshal(w)
	return Frame{
		Type:      constants.FrameTypeWelcome,
		Data:      raw,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}
