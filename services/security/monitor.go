package security

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/shared"
)

const (
	activityRecordTTL = 24 * time.Hour
	alertTTL          = 7 * 24 * time.Hour

	DefaultActivityRetentionDays = 30
	DefaultAlertLimit            = 100
)

// SuspiciousActivityMonitor persists reported activity and runs the alert
// rules matching it.
type SuspiciousActivityMonitor struct {
	store   CounterStore
	sink    AuditSink
	limiter *RateLimiter
	tracker *ActivityTracker

	mu    sync.RWMutex
	rules []AlertRule

	alerts *alertDispatcher
	opts   options
}

// NewSuspiciousActivityMonitor uses the built-in rules when rules is nil.
func NewSuspiciousActivityMonitor(limiter *RateLimiter, tracker *ActivityTracker, rules []AlertRule, opts ...Option) *SuspiciousActivityMonitor {
	if rules == nil {
		rules = BuiltinRules()
	}
	m := &SuspiciousActivityMonitor{
		store:   limiter.store,
		sink:    limiter.sink,
		limiter: limiter,
		tracker: tracker,
		opts:    buildOptions("activity_monitor", opts),
	}
	if len(m.opts.alerts) > 0 {
		m.alerts = newAlertDispatcher(m.opts.alerts, m.opts)
	}
	m.SetRules(rules)
	return m
}

// FlushAlerts blocks until every raised alert has reached the publishers.
func (m *SuspiciousActivityMonitor) FlushAlerts() {
	if m.alerts != nil {
		m.alerts.flush()
	}
}

// Close delivers pending alerts and stops the publishing worker.
func (m *SuspiciousActivityMonitor) Close() {
	if m.alerts != nil {
		m.alerts.close()
	}
}

func (m *SuspiciousActivityMonitor) SetRules(rules []AlertRule) {
	cp := make([]AlertRule, len(rules))
	copy(cp, rules)

	if need := longestWindow(cp); m.tracker != nil && need > m.tracker.Retention() {
		m.opts.logger.Warn().
			Dur("longest_window", need).
			Dur("retention", m.tracker.Retention()).
			Msg("Rule window exceeds activity retention, counts will be truncated")
	}

	m.mu.Lock()
	m.rules = cp
	m.mu.Unlock()
}

func (m *SuspiciousActivityMonitor) Rules() []AlertRule {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]AlertRule, len(m.rules))
	copy(out, m.rules)
	return out
}

// ==================== REPORTING ====================

func (m *SuspiciousActivityMonitor) ReportSuspiciousActivity(ctx context.Context, activity model.SuspiciousActivity) error {
	if activity.Identifier == "" || activity.Type == "" {
		return errors.New("suspicious activity needs an identifier and a type")
	}
	if activity.Timestamp.IsZero() {
		activity.Timestamp = m.opts.now()
	}
	if !activity.Severity.Valid() {
		activity.Severity = model.SeverityLow
	}

	if err := m.persist(ctx, activity); err != nil {
		m.opts.recorder.StoreFailure("activity_monitor")
		m.opts.logger.Error().Err(err).
			Str("identifier", activity.Identifier).
			Str("type", activity.Type).
			Msg("Failed to persist suspicious activity")
		return err
	}

	entry := AuditEntry{
		Action:     "suspicious_activity",
		Identifier: activity.Identifier,
		Severity:   activity.Severity,
		Success:    false,
		Details:    map[string]any{"type": activity.Type, "details": activity.Details},
		Timestamp:  activity.Timestamp,
	}
	if ip, ok := shared.IdentifierIP(activity.Identifier); ok {
		entry.IP = ip
	}
	_ = m.sink.LogActivity(ctx, entry)

	for _, rule := range m.Rules() {
		if !rule.Enabled || (rule.Type != activity.Type && rule.Type != RuleTypeGeneral) {
			continue
		}
		m.evaluateRule(ctx, rule, activity)
	}
	return nil
}

func (m *SuspiciousActivityMonitor) persist(ctx context.Context, activity model.SuspiciousActivity) error {
	data, err := shared.JSON.MarshalToString(activity)
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, suspiciousKey(activity.Identifier, activity.Type), data, activityRecordTTL); err != nil {
		return err
	}
	member := newToken(activity.Timestamp) + "|" + activity.Identifier + "|" + activity.Type
	return m.store.ZAdd(ctx, suspiciousIndexKey, msScore(activity.Timestamp), member)
}

// ==================== RULE EVALUATION ====================

func (m *SuspiciousActivityMonitor) evaluateRule(ctx context.Context, rule AlertRule, activity model.SuspiciousActivity) {
	metrics, ok := m.conditionsHold(ctx, rule, activity.Identifier)
	if !ok {
		return
	}

	if rule.Cooldown > 0 {
		claimed, err := m.store.SetNX(ctx, ruleCooldownKey(rule.ID, activity.Identifier), activity.Timestamp.Format(time.RFC3339), rule.Cooldown)
		if err != nil || !claimed {
			return
		}
	}

	m.opts.logger.Warn().
		Str("rule", rule.ID).
		Str("identifier", activity.Identifier).
		Interface("metrics", metrics).
		Msg("Security rule triggered")

	for _, action := range rule.Actions {
		m.execute(ctx, rule, action, activity, metrics)
	}
}

// conditionsHold reports whether every condition of rule holds, with the observed values.
func (m *SuspiciousActivityMonitor) conditionsHold(ctx context.Context, rule AlertRule, identifier string) (map[string]float64, bool) {
	if m.tracker == nil || len(rule.Conditions) == 0 {
		return nil, false
	}
	metrics := make(map[string]float64, len(rule.Conditions))
	for _, c := range rule.Conditions {
		n, err := m.tracker.Count(ctx, identifier, c.Field, c.TimeWindow)
		if err != nil {
			m.opts.logger.Debug().Err(err).Str("rule", rule.ID).Str("field", c.Field).Msg("Rule condition unreadable")
			return nil, false
		}
		value := float64(n)
		if !c.Operator.Compare(value, c.Threshold) {
			return nil, false
		}
		metrics[c.Field] = value
	}
	return metrics, true
}

func (m *SuspiciousActivityMonitor) execute(ctx context.Context, rule AlertRule, action RuleAction, activity model.SuspiciousActivity, metrics map[string]float64) {
	switch action.Type {
	case ActionBlock:
		duration := action.Duration
		if duration <= 0 {
			duration = DefaultBlockDuration
		}
		reason := fmt.Sprintf("Security rule triggered: %s", rule.Name)
		if err := m.limiter.BlockIdentifier(ctx, activity.Identifier, duration, reason); err != nil {
			m.opts.logger.Error().Err(err).Str("rule", rule.ID).Str("identifier", activity.Identifier).Msg("Rule block failed")
		}
	case ActionAlert:
		if _, err := m.createAlert(ctx, rule, action.Severity, activity, metrics); err != nil {
			m.opts.logger.Error().Err(err).Str("rule", rule.ID).Msg("Failed to create security alert")
		}
	case ActionLog:
		_ = m.sink.LogSecurityEvent(ctx, "security_rule_triggered", action.Severity, map[string]any{
			"rule_id":       rule.ID,
			"rule_name":     rule.Name,
			"activity_type": activity.Type,
			"metrics":       metrics,
		}, activity.Identifier)
	}
}

func (m *SuspiciousActivityMonitor) createAlert(ctx context.Context, rule AlertRule, severity model.Severity, activity model.SuspiciousActivity, metrics map[string]float64) (*model.SecurityAlert, error) {
	now := m.opts.now()
	alert := model.SecurityAlert{
		ID:         newID(),
		RuleID:     rule.ID,
		RuleName:   rule.Name,
		Identifier: activity.Identifier,
		Severity:   severity,
		Message:    fmt.Sprintf("%s detected for %s", rule.Name, activity.Identifier),
		Details: map[string]any{
			"activity_type": activity.Type,
			"metrics":       metrics,
		},
		CreatedAt: now,
	}
	if len(activity.Details) > 0 {
		alert.Details["activity"] = activity.Details
	}
	if ip, ok := shared.IdentifierIP(activity.Identifier); ok && m.opts.location != nil {
		if location, err := m.opts.location.GetLocationByIP(ip); err == nil && location != "" {
			alert.Details["location"] = location
		}
	}

	if err := m.saveAlert(ctx, alert, alertTTL); err != nil {
		return nil, err
	}
	if err := m.store.ZAdd(ctx, alertIndexKey, msScore(now), alert.ID); err != nil {
		return nil, err
	}

	m.opts.recorder.AlertRaised(rule.ID, severity)
	if severity.Rank() >= model.SeverityHigh.Rank() {
		_ = m.sink.LogSecurityEvent(ctx, "security_alert", severity, map[string]any{
			"alert_id": alert.ID,
			"rule_id":  rule.ID,
			"message":  alert.Message,
		}, activity.Identifier)
	}
	if m.alerts != nil {
		m.alerts.dispatch(alert)
	}
	return &alert, nil
}

func (m *SuspiciousActivityMonitor) saveAlert(ctx context.Context, alert model.SecurityAlert, ttl time.Duration) error {
	data, err := shared.JSON.MarshalToString(alert)
	if err != nil {
		return err
	}
	return m.store.Set(ctx, alertKey(alert.ID), data, ttl)
}

// ==================== ALERTS ====================

func (m *SuspiciousActivityMonitor) loadAlert(ctx context.Context, id string) (*model.SecurityAlert, error) {
	raw, ok, err := m.store.Get(ctx, alertKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAlertNotFound
	}
	var alert model.SecurityAlert
	if err := shared.JSON.UnmarshalFromString(raw, &alert); err != nil {
		return nil, fmt.Errorf("decode alert %s: %w", id, err)
	}
	return &alert, nil
}

// GetAlerts returns live alerts newest first. Total counts every match before the limit.
func (m *SuspiciousActivityMonitor) GetAlerts(ctx context.Context, filter dto.AlertFilter) (*dto.AlertListResponse, error) {
	ids, err := m.store.ZRevRange(ctx, alertIndexKey, 0, -1)
	if err != nil {
		return nil, err
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultAlertLimit
	}

	resp := &dto.AlertListResponse{Alerts: []model.SecurityAlert{}}
	for _, sm := range ids {
		alert, err := m.loadAlert(ctx, sm.Member)
		if errors.Is(err, ErrAlertNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if filter.Acknowledged != nil && alert.Acknowledged != *filter.Acknowledged {
			continue
		}
		if filter.Severity != "" && alert.Severity != filter.Severity {
			continue
		}
		resp.Total++
		if len(resp.Alerts) < limit {
			resp.Alerts = append(resp.Alerts, *alert)
		}
	}
	return resp, nil
}

// AcknowledgeAlert marks an alert handled; it keeps the remaining lifetime of the alert.
func (m *SuspiciousActivityMonitor) AcknowledgeAlert(ctx context.Context, id, acknowledgedBy string) (*model.SecurityAlert, error) {
	alert, err := m.loadAlert(ctx, id)
	if err != nil {
		return nil, err
	}
	now := m.opts.now()
	remaining := alert.CreatedAt.Add(alertTTL).Sub(now)
	if remaining <= 0 {
		return nil, ErrAlertNotFound
	}

	alert.Acknowledged = true
	alert.AcknowledgedBy = acknowledgedBy
	alert.AcknowledgedAt = &now
	if err := m.saveAlert(ctx, *alert, remaining); err != nil {
		return nil, err
	}

	_ = m.sink.LogSecurityEvent(ctx, "security_alert_acknowledged", model.SeverityLow, map[string]any{
		"alert_id":        alert.ID,
		"acknowledged_by": acknowledgedBy,
	}, alert.Identifier)
	return alert, nil
}

// ==================== STATISTICS ====================

func (m *SuspiciousActivityMonitor) GetSecurityStatistics(ctx context.Context) (*dto.SecurityStatistics, error) {
	now := m.opts.now()
	stats := &dto.SecurityStatistics{
		AlertsBySeverity: map[string]int{},
		GeneratedAt:      now,
	}

	ids, err := m.store.ZRevRange(ctx, alertIndexKey, 0, -1)
	if err != nil {
		return nil, err
	}
	for _, sm := range ids {
		alert, err := m.loadAlert(ctx, sm.Member)
		if err != nil {
			continue
		}
		stats.TotalAlerts++
		stats.AlertsBySeverity[string(alert.Severity)]++
		if !alert.Acknowledged {
			stats.UnacknowledgedAlerts++
		}
	}

	if stats.ActiveBlocks, err = m.store.ZCount(ctx, blockIndexKey, msScore(now)+1, posInf); err != nil {
		return nil, err
	}
	if stats.SuspiciousActivities24h, err = m.store.ZCount(ctx, suspiciousIndexKey, windowFloor(now, activityRecordTTL), posInf); err != nil {
		return nil, err
	}
	if stats.AttackPatterns7d, err = m.store.ZCount(ctx, attackPatternsKey, windowFloor(now, attackRetention), posInf); err != nil {
		return nil, err
	}
	if stats.ActiveRateLimitKeys, err = m.store.SCard(ctx, rateLimitIndexKey); err != nil {
		return nil, err
	}
	for _, r := range m.Rules() {
		if r.Enabled {
			stats.EnabledRules++
		}
	}
	return stats, nil
}

// ==================== MAINTENANCE ====================

// CleanupPolicy sets how long each kind of record is kept by Cleanup.
type CleanupPolicy struct {
	ActivityRetention time.Duration `yaml:"activity_retention"`
	AlertRetention    time.Duration `yaml:"alert_retention"`
	AttackRetention   time.Duration `yaml:"attack_retention"`
	AuditRetention    time.Duration `yaml:"audit_retention"`
}

func DefaultCleanupPolicy() CleanupPolicy {
	return CleanupPolicy{
		ActivityRetention: DefaultActivityRetentionDays * 24 * time.Hour,
		AlertRetention:    alertTTL,
		AttackRetention:   attackRetention,
		AuditRetention:    DefaultActivityRetentionDays * 24 * time.Hour,
	}
}

// Cleanup purges expired entries from every index. Deletes are idempotent,
// so concurrent runs on several instances are harmless.
func (m *SuspiciousActivityMonitor) Cleanup(ctx context.Context, policy CleanupPolicy) (*dto.CleanupReport, error) {
	now := m.opts.now()
	report := &dto.CleanupReport{}
	var errs []error

	staleAlerts, err := m.store.ZRangeByScore(ctx, alertIndexKey, negInf, windowFloor(now, policy.AlertRetention)-1)
	if err != nil {
		errs = append(errs, err)
	} else if len(staleAlerts) > 0 {
		ids := make([]string, 0, len(staleAlerts))
		keys := make([]string, 0, len(staleAlerts))
		for _, sm := range staleAlerts {
			ids = append(ids, sm.Member)
			keys = append(keys, alertKey(sm.Member))
		}
		if err := m.store.Del(ctx, keys...); err != nil {
			errs = append(errs, err)
		}
		if err := m.store.ZRem(ctx, alertIndexKey, ids...); err != nil {
			errs = append(errs, err)
		}
		report.ExpiredAlerts = len(ids)
	}

	prune := func(key string, retention time.Duration) int {
		n, err := m.store.ZRemRangeByScore(ctx, key, negInf, windowFloor(now, retention)-1)
		if err != nil {
			errs = append(errs, err)
		}
		return int(n)
	}
	report.ExpiredActivities = prune(suspiciousIndexKey, policy.ActivityRetention)
	report.ExpiredAttackPatterns = prune(attackPatternsKey, policy.AttackRetention)

	if n, err := m.store.ZRemRangeByScore(ctx, blockIndexKey, negInf, msScore(now)); err != nil {
		errs = append(errs, err)
	} else {
		report.ExpiredBlocks = int(n)
	}

	report.StaleRateLimitKeys, err = m.pruneRateLimitIndex(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	if purger, ok := m.sink.(AuditPurger); ok && policy.AuditRetention > 0 {
		n, err := purger.PurgeBefore(ctx, now.Add(-policy.AuditRetention))
		if err != nil {
			errs = append(errs, err)
		}
		report.PurgedAuditLogs = n
	}

	m.opts.logger.Info().
		Int("alerts", report.ExpiredAlerts).
		Int("activities", report.ExpiredActivities).
		Int("attack_patterns", report.ExpiredAttackPatterns).
		Int("blocks", report.ExpiredBlocks).
		Int("rate_limit_keys", report.StaleRateLimitKeys).
		Int64("audit_logs", report.PurgedAuditLogs).
		Msg("Security cleanup finished")

	return report, errors.Join(errs...)
}

// pruneRateLimitIndex drops index entries whose window has expired.
func (m *SuspiciousActivityMonitor) pruneRateLimitIndex(ctx context.Context) (int, error) {
	keys, err := m.store.SMembers(ctx, rateLimitIndexKey)
	if err != nil {
		return 0, err
	}
	var stale []string
	for _, key := range keys {
		n, err := m.store.ZCard(ctx, key)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			stale = append(stale, key)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}
	if err := m.store.SRem(ctx, rateLimitIndexKey, stale...); err != nil {
		return 0, err
	}
	return len(stale), nil
}
