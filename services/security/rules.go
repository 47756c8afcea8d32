package security

import (
	"time"

	"github.com/lac-hong-legacy/lms_api/model"
)

type Operator string

const (
	OpGreaterThan        Operator = "gt"
	OpGreaterThanOrEqual Operator = "gte"
	OpLessThan           Operator = "lt"
	OpLessThanOrEqual    Operator = "lte"
	OpEqual              Operator = "eq"
	OpNotEqual           Operator = "ne"
)

// Compare applies the operator; an unknown operator never matches.
func (o Operator) Compare(value, threshold float64) bool {
	switch o {
	case OpGreaterThan:
		return value > threshold
	case OpGreaterThanOrEqual:
		return value >= threshold
	case OpLessThan:
		return value < threshold
	case OpLessThanOrEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	case OpNotEqual:
		return value != threshold
	}
	return false
}

type ActionType string

const (
	ActionBlock ActionType = "block"
	ActionAlert ActionType = "alert"
	ActionLog   ActionType = "log"
)

// RuleTypeGeneral rules are evaluated for every reported activity.
const RuleTypeGeneral = "general"

type RuleCondition struct {
	Field      string        `yaml:"field" json:"field" validate:"required,metric_field"`
	Operator   Operator      `yaml:"operator" json:"operator" validate:"required,oneof=gt gte lt lte eq ne"`
	Threshold  float64       `yaml:"threshold" json:"threshold"`
	TimeWindow time.Duration `yaml:"time_window" json:"time_window" validate:"required,gt=0"`
}

type RuleAction struct {
	Type     ActionType     `yaml:"type" json:"type" validate:"required,oneof=block alert log"`
	Severity model.Severity `yaml:"severity" json:"severity" validate:"required,oneof=low medium high critical"`
	Duration time.Duration  `yaml:"duration" json:"duration" validate:"gte=0"`
}

type AlertRule struct {
	ID         string          `yaml:"id" json:"id" validate:"required"`
	Name       string          `yaml:"name" json:"name" validate:"required"`
	Type       string          `yaml:"type" json:"type" validate:"required"`
	Enabled    bool            `yaml:"enabled" json:"enabled"`
	Cooldown   time.Duration   `yaml:"cooldown" json:"cooldown" validate:"gte=0"`
	Conditions []RuleCondition `yaml:"conditions" json:"conditions" validate:"required,min=1,dive"`
	Actions    []RuleAction    `yaml:"actions" json:"actions" validate:"required,min=1,dive"`
}

func BuiltinRules() []AlertRule {
	return []AlertRule{
		{
			ID:      "rapid_login_attempts",
			Name:    "Rapid login attempts",
			Type:    "login",
			Enabled: true,
			Conditions: []RuleCondition{
				{Field: FieldLoginAttempts, Operator: OpGreaterThanOrEqual, Threshold: 10, TimeWindow: 5 * time.Minute},
			},
			Actions: []RuleAction{
				{Type: ActionBlock, Severity: model.SeverityMedium, Duration: 30 * time.Minute},
				{Type: ActionAlert, Severity: model.SeverityMedium},
			},
		},
		{
			ID:      "payment_failures",
			Name:    "Repeated payment failures",
			Type:    "payment",
			Enabled: true,
			Conditions: []RuleCondition{
				{Field: FieldPaymentFailures, Operator: OpGreaterThanOrEqual, Threshold: 5, TimeWindow: time.Hour},
			},
			Actions: []RuleAction{
				{Type: ActionBlock, Severity: model.SeverityHigh, Duration: time.Hour},
				{Type: ActionAlert, Severity: model.SeverityHigh},
			},
		},
		{
			ID:      "high_api_usage",
			Name:    "High API usage",
			Type:    "api",
			Enabled: true,
			Conditions: []RuleCondition{
				{Field: FieldAPIRequests, Operator: OpGreaterThanOrEqual, Threshold: 1000, TimeWindow: time.Hour},
			},
			Actions: []RuleAction{
				{Type: ActionAlert, Severity: model.SeverityMedium},
				{Type: ActionLog, Severity: model.SeverityMedium},
			},
		},
		{
			ID:      "data_scraping",
			Name:    "Data scraping",
			Type:    "data_access",
			Enabled: true,
			Conditions: []RuleCondition{
				{Field: FieldCourseViews, Operator: OpGreaterThanOrEqual, Threshold: 100, TimeWindow: 10 * time.Minute},
				{Field: FieldProfileViews, Operator: OpGreaterThanOrEqual, Threshold: 50, TimeWindow: 10 * time.Minute},
			},
			Actions: []RuleAction{
				{Type: ActionBlock, Severity: model.SeverityHigh, Duration: 2 * time.Hour},
				{Type: ActionAlert, Severity: model.SeverityHigh},
			},
		},
		{
			ID:      "bot_like_behavior",
			Name:    "Bot-like behaviour",
			Type:    RuleTypeGeneral,
			Enabled: true,
			Conditions: []RuleCondition{
				{Field: FieldRequestsPerMinute, Operator: OpGreaterThanOrEqual, Threshold: 50, TimeWindow: time.Minute},
			},
			Actions: []RuleAction{
				{Type: ActionBlock, Severity: model.SeverityMedium, Duration: 15 * time.Minute},
				{Type: ActionAlert, Severity: model.SeverityMedium},
			},
		},
		{
			ID:      "account_enumeration",
			Name:    "Account enumeration",
			Type:    "user_lookup",
			Enabled: true,
			Conditions: []RuleCondition{
				{Field: FieldUserLookups, Operator: OpGreaterThanOrEqual, Threshold: 20, TimeWindow: 5 * time.Minute},
			},
			Actions: []RuleAction{
				{Type: ActionBlock, Severity: model.SeverityHigh, Duration: time.Hour},
				{Type: ActionAlert, Severity: model.SeverityHigh},
			},
		},
	}
}

// longestWindow is the activity retention a rule set needs.
func longestWindow(rules []AlertRule) time.Duration {
	var longest time.Duration
	for _, r := range rules {
		for _, c := range r.Conditions {
			longest = max(longest, c.TimeWindow)
		}
	}
	return longest
}
