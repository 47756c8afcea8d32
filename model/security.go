package model

import "time"

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank orders severities so callers can compare them; unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

func (s Severity) Valid() bool {
	return s.Rank() > 0
}

type AttackType string

const (
	AttackVolumetric       AttackType = "volumetric"
	AttackDistributed      AttackType = "distributed"
	AttackSlowloris        AttackType = "slowloris"
	AttackApplicationLayer AttackType = "application_layer"
)

// SecurityAuditLog is the persisted audit trail written by the security layer.
type SecurityAuditLog struct {
	ID         string    `json:"id" gorm:"primaryKey;type:text;not null"`
	Action     string    `json:"action" gorm:"not null;index;size:100"`
	Identifier string    `json:"identifier" gorm:"index;size:255"`
	Severity   string    `json:"severity" gorm:"not null;index;size:20"`
	IP         string    `json:"ip" gorm:"size:64"`
	UserAgent  string    `json:"user_agent" gorm:"type:text"`
	Success    bool      `json:"success" gorm:"default:true;not null"`
	Details    string    `json:"details" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null;index"`
}

type BlockRecord struct {
	Identifier string    `json:"identifier"`
	Reason     string    `json:"reason"`
	BlockedAt  time.Time `json:"blocked_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

type AttackPattern struct {
	ID           string        `json:"id"`
	DetectedAt   time.Time     `json:"detected_at"`
	Type         AttackType    `json:"type"`
	Severity     Severity      `json:"severity"`
	SourceIPs    []string      `json:"source_ips"`
	UniqueIPs    int           `json:"unique_ips"`
	RequestCount int64         `json:"request_count"`
	TimeWindow   time.Duration `json:"time_window"`
	Mitigated    bool          `json:"mitigated"`
}

type SecurityAlert struct {
	ID             string         `json:"id"`
	RuleID         string         `json:"rule_id"`
	RuleName       string         `json:"rule_name"`
	Identifier     string         `json:"identifier"`
	Severity       Severity       `json:"severity"`
	Message        string         `json:"message"`
	Details        map[string]any `json:"details,omitempty"`
	Acknowledged   bool           `json:"acknowledged"`
	AcknowledgedBy string         `json:"acknowledged_by,omitempty"`
	AcknowledgedAt *time.Time     `json:"acknowledged_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

type SuspiciousActivity struct {
	Identifier string         `json:"identifier"`
	Type       string         `json:"type"`
	Severity   Severity       `json:"severity"`
	Details    map[string]any `json:"details,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}
