package monitoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lib/pq"

	"eventhub/internal/channel"
	"eventhub/internal/constants"
	"eventhub/pkg/errors"
	"eventhub/pkg/metrics"
	"eventhub/pkg/models"
)

const (
	OperatorGT  = "gt"
	OperatorGTE = "gte"
	OperatorLT  = "lt"
	OperatorLTE = "lte"
	OperatorEQ  = "eq"
	OperatorNE  = "ne"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

const (
	ActionLog     = "log"
	ActionPublish = "publish"
	ActionKafka   = "kafka"
	ActionChannel = "channel"
)

type Rule struct {
	ID                 string               `json:"id"`
	Name               string               `json:"name"`
	Description        string               `json:"description,omitempty"`
	MetricPath         string               `json:"metricPath"`
	Operator           string               `json:"operator"`
	Threshold          float64              `json:"threshold"`
	MinDurationMinutes int                  `json:"minDurationMinutes"`
	Severity           string               `json:"severity"`
	Enabled            bool                 `json:"enabled"`
	Actions            []models.AlertAction `json:"actions"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
}

func (r Rule) MinDuration() time.Duration {
	return time.Duration(r.MinDurationMinutes) * time.Minute
}

// RuleRequest creates or replaces a rule. Enabled defaults to true.
type RuleRequest struct {
	Name               string               `json:"name" binding:"required"`
	Description        string               `json:"description"`
	MetricPath         string               `json:"metricPath" binding:"required"`
	Operator           string               `json:"operator" binding:"required"`
	Threshold          float64              `json:"threshold"`
	MinDurationMinutes int                  `json:"minDurationMinutes"`
	Severity           string               `json:"severity"`
	Enabled            *bool                `json:"enabled"`
	Actions            []models.AlertAction `json:"actions"`
}

func (req RuleRequest) apply(r *Rule) {
	r.Name = req.Name
	r.Description = req.Description
	r.MetricPath = req.MetricPath
	r.Operator = req.Operator
	r.Threshold = req.Threshold
	r.MinDurationMinutes = req.MinDurationMinutes
	r.Severity = req.Severity
	if r.Severity == "" {
		r.Severity = SeverityWarning
	}
	r.Enabled = req.Enabled == nil || *req.Enabled
	r.Actions = append([]models.AlertAction(nil), req.Actions...)
}

// Compare evaluates value <operator> threshold.
func Compare(operator string, value, threshold float64) bool {
	switch operator {
	case OperatorGT:
		return value > threshold
	case OperatorGTE:
		return value >= threshold
	case OperatorLT:
		return value < threshold
	case OperatorLTE:
		return value <= threshold
	case OperatorEQ:
		return value == threshold
	case OperatorNE:
		return value != threshold
	}
	return false
}

func validOperator(op string) bool {
	switch op {
	case OperatorGT, OperatorGTE, OperatorLT, OperatorLTE, OperatorEQ, OperatorNE:
		return true
	}
	return false
}

func validSeverity(s string) bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

func ValidateRule(r Rule) error {
	invalid := func(field, message string) error {
		return errors.ErrValidation.WithDetail("field", field).WithDetail("message", message)
	}

	if r.Name == "" {
		return invalid("name", "name is required")
	}
	if !KnownPath(r.MetricPath) {
		return invalid("metricPath", fmt.Sprintf("unknown metric path %q", r.MetricPath))
	}
	if !validOperator(r.Operator) {
		return invalid("operator", fmt.Sprintf("unsupported operator %q", r.Operator))
	}
	if !validSeverity(r.Severity) {
		return invalid("severity", fmt.Sprintf("unsupported severity %q", r.Severity))
	}
	if r.MinDurationMinutes < 0 {
		return invalid("minDurationMinutes", "must be zero or positive")
	}
	for i, a := range r.Actions {
		field := fmt.Sprintf("actions[%d]", i)
		switch a.Type {
		case ActionLog, ActionPublish, ActionKafka:
		case ActionChannel:
			name := channel.Name(a.Channel)
			if !name.Valid() || name == channel.Transport {
				return invalid(field, fmt.Sprintf("unsupported channel %q", a.Channel))
			}
			if a.Target == "" {
				return invalid(field, "channel action requires a target")
			}
		default:
			return invalid(field, fmt.Sprintf("unsupported action %q", a.Type))
		}
	}
	return nil
}

type RuleRepository interface {
	CreateRule(ctx context.Context, rule Rule) error
	UpdateRule(ctx context.Context, rule Rule) error
	DeleteRule(ctx context.Context, id string) error
	GetRule(ctx context.Context, id string) (Rule, error)
	ListRules(ctx context.Context) ([]Rule, error)
}

func ruleNotFound(id string) error {
	return errors.ErrNotFound.WithDetail("rule_id", id)
}

type MemoryRuleRepository struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

func NewMemoryRuleRepository() *MemoryRuleRepository {
	return &MemoryRuleRepository{rules: make(map[string]Rule)}
}

func (r *MemoryRuleRepository) CreateRule(ctx context.Context, rule Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[rule.ID]; ok {
		return errors.ErrConflict.WithDetail("rule_id", rule.ID)
	}
	r.rules[rule.ID] = rule
	return nil
}

func (r *MemoryRuleRepository) UpdateRule(ctx context.Context, rule Rule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[rule.ID]; !ok {
		return ruleNotFound(rule.ID)
	}
	r.rules[rule.ID] = rule
	return nil
}

func (r *MemoryRuleRepository) DeleteRule(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.rules[id]; !ok {
		return ruleNotFound(id)
	}
	delete(r.rules, id)
	return nil
}

func (r *MemoryRuleRepository) GetRule(ctx context.Context, id string) (Rule, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[id]
	if !ok {
		return Rule{}, ruleNotFound(id)
	}
	return rule, nil
}

func (r *MemoryRuleRepository) ListRules(ctx context.Context) ([]Rule, error) {
	r.mu.RLock()
	rules := make([]Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		rules = append(rules, rule)
	}
	r.mu.RUnlock()

	sort.Slice(rules, func(i, j int) bool {
		if !rules[i].CreatedAt.Equal(rules[j].CreatedAt) {
			return rules[i].CreatedAt.Before(rules[j].CreatedAt)
		}
		return rules[i].ID < rules[j].ID
	})
	return rules, nil
}

// PostgresRuleRepository stores rules in the alert_rules table.
type PostgresRuleRepository struct {
	db *sql.DB
}

func NewPostgresRuleRepository(db *sql.DB) *PostgresRuleRepository {
	return &PostgresRuleRepository{db: db}
}

func (r *PostgresRuleRepository) exec(ctx context.Context, operation, query string, args ...interface{}) (sql.Result, error) {
	start := time.Now()
	res, err := r.db.ExecContext(ctx, query, args...)
	metrics.ObserveDatabaseQueryDuration(constants.ServiceName, "postgres", operation, time.Since(start))
	if err != nil {
		metrics.IncDatabaseQuery(constants.ServiceName, "postgres", operation, "error")
		return nil, err
	}
	metrics.IncDatabaseQuery(constants.ServiceName, "postgres", operation, "success")
	return res, nil
}

func (r *PostgresRuleRepository) CreateRule(ctx context.Context, rule Rule) error {
	query := `
		INSERT INTO alert_rules (id, name, description, metric_path, operator, threshold, min_duration_minutes, severity, enabled, actions, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	actionsJSON, err := marshalActions(rule.Actions)
	if err != nil {
		return err
	}

	_, err = r.exec(ctx, "insert_alert_rule", query,
		rule.ID, rule.Name, rule.Description, rule.MetricPath, rule.Operator, rule.Threshold,
		rule.MinDurationMinutes, rule.Severity, rule.Enabled, actionsJSON, rule.CreatedAt, rule.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return errors.ErrConflict.WithDetail("rule_id", rule.ID)
		}
		return fmt.Errorf("failed to create alert rule: %w", err)
	}
	return nil
}

func (r *PostgresRuleRepository) UpdateRule(ctx context.Context, rule Rule) error {
	query := `
		UPDATE alert_rules
		SET name = $2, description = $3, metric_path = $4, operator = $5, threshold = $6,
		    min_duration_minutes = $7, severity = $8, enabled = $9, actions = $10, updated_at = $11
		WHERE id = $1
	`

	actionsJSON, err := marshalActions(rule.Actions)
	if err != nil {
		return err
	}

	res, err := r.exec(ctx, "update_alert_rule", query,
		rule.ID, rule.Name, rule.Description, rule.MetricPath, rule.Operator, rule.Threshold,
		rule.MinDurationMinutes, rule.Severity, rule.Enabled, actionsJSON, rule.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update alert rule: %w", err)
	}
	return requireAffected(res, rule.ID)
}

func (r *PostgresRuleRepository) DeleteRule(ctx context.Context, id string) error {
	res, err := r.exec(ctx, "delete_alert_rule", `DELETE FROM alert_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete alert rule: %w", err)
	}
	return requireAffected(res, id)
}

const selectRules = `
	SELECT id, name, COALESCE(description, ''), metric_path, operator, threshold,
	       min_duration_minutes, severity, enabled, actions, created_at, updated_at
	FROM alert_rules
`

func (r *PostgresRuleRepository) GetRule(ctx context.Context, id string) (Rule, error) {
	row := r.db.QueryRowContext(ctx, selectRules+` WHERE id = $1`, id)
	rule, err := scanRule(row)
	if err == sql.ErrNoRows {
		return Rule{}, ruleNotFound(id)
	}
	if err != nil {
		return Rule{}, fmt.Errorf("failed to get alert rule: %w", err)
	}
	return rule, nil
}

func (r *PostgresRuleRepository) ListRules(ctx context.Context) ([]Rule, error) {
	start := time.Now()
	rows, err := r.db.QueryContext(ctx, selectRules+` ORDER BY created_at ASC, id ASC`)
	metrics.ObserveDatabaseQueryDuration(constants.ServiceName, "postgres", "list_alert_rules", time.Since(start))
	if err != nil {
		metrics.IncDatabaseQuery(constants.ServiceName, "postgres", "list_alert_rules", "error")
		return nil, fmt.Errorf("failed to query alert rules: %w", err)
	}
	defer rows.Close()
	metrics.IncDatabaseQuery(constants.ServiceName, "postgres", "list_alert_rules", "success")

	var rules []Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert rule: %w", err)
		}
		rules = append(rules, rule)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return rules, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRule(s scanner) (Rule, error) {
	var rule Rule
	var actionsJSON []byte
	err := s.Scan(
		&rule.ID,
		&rule.Name,
		&rule.Description,
		&rule.MetricPath,
		&rule.Operator,
		&rule.Threshold,
		&rule.MinDurationMinutes,
		&rule.Severity,
		&rule.Enabled,
		&actionsJSON,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return Rule{}, err
	}
	if len(actionsJSON) > 0 {
		if err := json.Unmarshal(actionsJSON, &rule.Actions); err != nil {
			return Rule{}, fmt.Errorf("failed to unmarshal actions: %w", err)
		}
	}
	return rule, nil
}

func marshalActions(actions []models.AlertAction) ([]byte, error) {
	if actions == nil {
		actions = []models.AlertAction{}
	}
	data, err := json.Marshal(actions)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal actions: %w", err)
	}
	return data, nil
}

func requireAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ruleNotFound(id)
	}
	return nil
}
