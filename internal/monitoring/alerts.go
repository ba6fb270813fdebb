package monitoring

import (
	"sort"
	"time"

	"eventhub/pkg/models"
)

// Alert is a rule whose condition currently holds.
type Alert struct {
	RuleID        string    `json:"ruleId"`
	RuleName      string    `json:"ruleName"`
	Severity      string    `json:"severity"`
	MetricPath    string    `json:"metricPath"`
	Operator      string    `json:"operator"`
	Threshold     float64   `json:"threshold"`
	Value         float64   `json:"value"`
	Since         time.Time `json:"since"`
	Escalated     bool      `json:"escalated"`
	LastEvaluated time.Time `json:"lastEvaluated"`
}

type alertState struct {
	since     time.Time
	escalated bool
	value     float64
	evaluated time.Time
}

// alertTracker holds the per-rule state machine: quiescent (no entry),
// triggered, escalated once per episode, and back to quiescent on resolve.
// Trigger and resolve use the same threshold.
type alertTracker struct {
	states map[string]*alertState
}

func newAlertTracker() *alertTracker {
	return &alertTracker{states: make(map[string]*alertState)}
}

// evaluate advances the rule's state for one observation and returns the
// transition it caused, if any.
func (t *alertTracker) evaluate(rule Rule, value float64, now time.Time) (string, bool) {
	holds := Compare(rule.Operator, value, rule.Threshold)
	st, triggered := t.states[rule.ID]

	switch {
	case holds && !triggered:
		t.states[rule.ID] = &alertState{since: now, value: value, evaluated: now}
		return models.AlertKindTriggered, true

	case holds && triggered:
		st.value = value
		st.evaluated = now
		if !st.escalated && now.After(st.since) && now.Sub(st.since) >= rule.MinDuration() {
			st.escalated = true
			return models.AlertKindEscalated, true
		}
		return "", false

	case !holds && triggered:
		delete(t.states, rule.ID)
		return models.AlertKindResolved, true
	}
	return "", false
}

func (t *alertTracker) since(ruleID string) time.Time {
	if st, ok := t.states[ruleID]; ok {
		return st.since
	}
	return time.Time{}
}

func (t *alertTracker) reset(ruleID string) {
	delete(t.states, ruleID)
}

// retain drops state for rules no longer present or enabled.
func (t *alertTracker) retain(rules []Rule) {
	keep := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if r.Enabled {
			keep[r.ID] = struct{}{}
		}
	}
	for id := range t.states {
		if _, ok := keep[id]; !ok {
			delete(t.states, id)
		}
	}
}

func (t *alertTracker) active(rules []Rule) []Alert {
	alerts := make([]Alert, 0, len(t.states))
	for _, r := range rules {
		st, ok := t.states[r.ID]
		if !ok {
			continue
		}
		alerts = append(alerts, Alert{
			RuleID:        r.ID,
			RuleName:      r.Name,
			Severity:      r.Severity,
			MetricPath:    r.MetricPath,
			Operator:      r.Operator,
			Threshold:     r.Threshold,
			Value:         st.value,
			Since:         st.since,
			Escalated:     st.escalated,
			LastEvaluated: st.evaluated,
		})
	}
	sort.Slice(alerts, func(i, j int) bool {
		if !alerts[i].Since.Equal(alerts[j].Since) {
			return alerts[i].Since.Before(alerts[j].Since)
		}
		return alerts[i].RuleID < alerts[j].RuleID
	})
	return alerts
}

func (t *alertTracker) len() int {
	return len(t.states)
}

func alertEvent(rule Rule, kind string, value float64, since, now time.Time) models.AlertEvent {
	return models.AlertEvent{
		Kind:        kind,
		RuleID:      rule.ID,
		RuleName:    rule.Name,
		Severity:    rule.Severity,
		MetricPath:  rule.MetricPath,
		Operator:    rule.Operator,
		Threshold:   rule.Threshold,
		Value:       value,
		Since:       since,
		Timestamp:   now,
		Description: rule.Description,
		Actions:     rule.Actions,
	}
}
