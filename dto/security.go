package dto

import (
	"time"

	"github.com/lac-hong-legacy/lms_api/model"
)

// ==================== DETECTION RESULTS ====================

type AbuseReport struct {
	Identifier string   `json:"identifier" example:"ip:203.0.113.7"`
	IsAbusive  bool     `json:"is_abusive" example:"false"`
	Reasons    []string `json:"reasons"`
	RiskScore  int      `json:"risk_score" example:"25"`
}

type TrafficMetrics struct {
	GlobalRequests   int64 `json:"global_requests" example:"5230"`
	IPRequests       int64 `json:"ip_requests" example:"12"`
	IPRemaining      int   `json:"ip_remaining" example:"88"`
	UniqueUserAgents int64 `json:"unique_user_agents" example:"1"`
}

type RequestDecision struct {
	Allowed      bool           `json:"allowed" example:"true"`
	Reason       string         `json:"reason,omitempty" example:"IP rate limit exceeded"`
	RiskScore    float64        `json:"risk_score" example:"12.5"`
	BlockedUntil *time.Time     `json:"blocked_until,omitempty"`
	Metrics      TrafficMetrics `json:"metrics"`
}

// ==================== ALERTS ====================

type AlertFilter struct {
	Acknowledged *bool          `json:"acknowledged" query:"acknowledged"`
	Severity     model.Severity `json:"severity" query:"severity" validate:"omitempty,oneof=low medium high critical"`
	Limit        int            `json:"limit" query:"limit" validate:"omitempty,min=1,max=500"`
}

func (f AlertFilter) Validate() error {
	return GetValidator().Struct(f)
}

type AlertListResponse struct {
	Alerts []model.SecurityAlert `json:"alerts"`
	Total  int                   `json:"total" example:"3"`
}

type ReportActivityRequest struct {
	Identifier string         `json:"identifier" validate:"required,identifier" example:"user:42"`
	Type       string         `json:"type" validate:"required,max=64" example:"login"`
	Severity   model.Severity `json:"severity" validate:"required,oneof=low medium high critical" example:"medium"`
	Details    map[string]any `json:"details"`
	// Metrics are activity series to count before rules are evaluated, e.g. course_views.
	Metrics    []string       `json:"metrics" validate:"omitempty,max=10,dive,required,max=64" example:"course_views"`
}

func (r ReportActivityRequest) Validate() error {
	return GetValidator().Struct(r)
}

// ==================== BLOCKS ====================

type BlockRequest struct {
	Identifier string `json:"identifier" validate:"required,identifier" example:"ip:203.0.113.7"`
	Duration   string `json:"duration" validate:"required,duration" example:"1h"`
	Reason     string `json:"reason" validate:"required,max=255" example:"Manual block by administrator"`
}

func (r BlockRequest) Validate() error {
	return GetValidator().Struct(r)
}

type AttackPatternQuery struct {
	Hours int `json:"hours" query:"hours" validate:"omitempty,min=1,max=168" example:"24"`
}

func (q AttackPatternQuery) Validate() error {
	return GetValidator().Struct(q)
}

// ==================== STATISTICS & MAINTENANCE ====================

type SecurityStatistics struct {
	TotalAlerts             int            `json:"total_alerts" example:"12"`
	UnacknowledgedAlerts    int            `json:"unacknowledged_alerts" example:"4"`
	AlertsBySeverity        map[string]int `json:"alerts_by_severity"`
	ActiveBlocks            int64          `json:"active_blocks" example:"2"`
	SuspiciousActivities24h int64          `json:"suspicious_activities_24h" example:"37"`
	AttackPatterns7d        int64          `json:"attack_patterns_7d" example:"1"`
	ActiveRateLimitKeys     int64          `json:"active_rate_limit_keys" example:"420"`
	EnabledRules            int            `json:"enabled_rules" example:"6"`
	GeneratedAt             time.Time      `json:"generated_at"`
}

type CleanupReport struct {
	ExpiredAlerts         int   `json:"expired_alerts"`
	ExpiredActivities     int   `json:"expired_activities"`
	ExpiredAttackPatterns int   `json:"expired_attack_patterns"`
	ExpiredBlocks         int   `json:"expired_blocks"`
	StaleRateLimitKeys    int   `json:"stale_rate_limit_keys"`
	PurgedAuditLogs       int64 `json:"purged_audit_logs"`
}

// ==================== AUDIT LOG ====================

type AuditLogQuery struct {
	PaginationRequest
	Identifier string `json:"identifier" query:"identifier" validate:"omitempty,max=255"`
	Action     string `json:"action" query:"action" validate:"omitempty,max=100"`
	Severity   string `json:"severity" query:"severity" validate:"omitempty,oneof=low medium high critical"`
}

func (q AuditLogQuery) Validate() error {
	return GetValidator().Struct(q)
}

type AuditLogResponse struct {
	Logs       []model.SecurityAuditLog `json:"logs"`
	Pagination PaginationResponse       `json:"pagination"`
}

// ==================== DDOS ====================

// UpdateDDoSConfigRequest patches the running guard config; omitted fields are kept.
type UpdateDDoSConfigRequest struct {
	Enabled                *bool    `json:"enabled" example:"true"`
	Whitelist              []string `json:"whitelist" validate:"omitempty,max=1000,dive,required" example:"10.0.0.0/8"`
	Blacklist              []string `json:"blacklist" validate:"omitempty,max=1000,dive,required" example:"198.51.100.23"`
	IPMaxRequests          int      `json:"ip_max_requests" validate:"omitempty,min=1" example:"100"`
	GlobalMaxRequests      int      `json:"global_max_requests" validate:"omitempty,min=1" example:"10000"`
	AutoBlockEnabled       *bool    `json:"auto_block_enabled" example:"true"`
	AutoBlockRiskThreshold float64  `json:"auto_block_risk_threshold" validate:"omitempty,gt=0,lte=100" example:"80"`
}

func (r UpdateDDoSConfigRequest) Validate() error {
	return GetValidator().Struct(r)
}
