package models

import "time"

// LifecycleEvent describes a subscription mutation for audit/log sinks.
type LifecycleEvent struct {
	EventType      string                 `json:"event_type"`
	SubscriptionID string                 `json:"subscription_id"`
	OwnerID        string                 `json:"owner_id"`
	SessionID      string                 `json:"session_id,omitempty"`
	TopicPattern   string                 `json:"topic_pattern"`
	Status         string                 `json:"status"`
	Reason         string                 `json:"reason,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

const (
	EventTypeSubscriptionCreated    = "subscription_created"
	EventTypeSubscriptionUpdated    = "subscription_updated"
	EventTypeSubscriptionPaused     = "subscription_paused"
	EventTypeSubscriptionResumed    = "subscription_resumed"
	EventTypeSubscriptionDeleted    = "subscription_deleted"
	EventTypeSubscriptionTerminated = "subscription_terminated"
	EventTypeSubscriptionDetached   = "subscription_disconnected"
	EventTypeSubscriptionReattached = "subscription_reattached"
)

// AlertEvent is emitted on every alert state transition.
type AlertEvent struct {
	Kind        string        `json:"kind"`
	RuleID      string        `json:"rule_id"`
	RuleName    string        `json:"rule_name"`
	Severity    string        `json:"severity"`
	MetricPath  string        `json:"metric_path"`
	Operator    string        `json:"operator"`
	Threshold   float64       `json:"threshold"`
	Value       float64       `json:"value"`
	Since       time.Time     `json:"since"`
	Timestamp   time.Time     `json:"timestamp"`
	Description string        `json:"description,omitempty"`
	Actions     []AlertAction `json:"actions,omitempty"`
}

// AlertAction names a side effect of an alert transition. Channel and Target
// are used by the channel action only.
type AlertAction struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Target  string `json:"target,omitempty"`
}

const (
	AlertKindTriggered = "triggered"
	AlertKindEscalated = "escalated"
	AlertKindResolved  = "resolved"
)
