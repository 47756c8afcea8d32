package security

import (
	"context"

	"github.com/lac-hong-legacy/lms_api/model"
)

// Recorder receives decision metrics. The HTTP layer backs it with Prometheus.
type Recorder interface {
	RateLimitDecision(action string, allowed bool)
	GuardDecision(reason string, allowed bool)
	BlockApplied(kind string)
	AlertRaised(ruleID string, severity model.Severity)
	AttackDetected(attackType model.AttackType)
	StoreFailure(component string)
}

type nopRecorder struct{}

func (nopRecorder) RateLimitDecision(string, bool) {}
func (nopRecorder) GuardDecision(string, bool) {}
func (nopRecorder) BlockApplied(string) {}
func (nopRecorder) AlertRaised(string, model.Severity) {}
func (nopRecorder) AttackDetected(model.AttackType) {}
func (nopRecorder) StoreFailure(string) {}

// ActivityReporter is the part of the monitor the DDoS guard forwards attack patterns to.
type ActivityReporter interface {
	ReportSuspiciousActivity(ctx context.Context, activity model.SuspiciousActivity) error
}

type ForensicsArchive interface {
	ArchiveAttackPattern(ctx context.Context, pattern model.AttackPattern) error
}

type AlertPublisher interface {
	PublishAlert(ctx context.Context, alert model.SecurityAlert) error
}

type LocationResolver interface {
	GetLocationByIP(ip string) (string, error)
}
