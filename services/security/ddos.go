package security

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/shared"
	"golang.org/x/time/rate"
)

const (
	// ddosHistoryWindow is how long per-IP request timestamps are kept for the history factor.
	ddosHistoryWindow = 24 * time.Hour
	frequencyWindow   = time.Minute
	patternWindow     = 5 * time.Minute
	userAgentTTL      = time.Hour
	attackRetention   = 7 * 24 * time.Hour

	ActivityDistributedAttack = "distributed_attack"
)

const (
	ReasonWhitelisted       = "whitelisted"
	ReasonBlacklisted       = "IP blacklisted"
	ReasonBlocked           = "IP blocked"
	ReasonGlobalRateLimit   = "Global rate limit exceeded"
	ReasonIPRateLimit       = "IP rate limit exceeded"
	ReasonHighRisk          = "High risk score"
	ReasonProtectionOffline = "protection disabled"
)

type compiledDDoSConfig struct {
	cfg       DDoSConfig
	whitelist *IPMatcher
	blacklist *IPMatcher
}

func compileDDoSConfig(cfg DDoSConfig) (*compiledDDoSConfig, error) {
	cfg = cfg.withDefaults()
	white, err := NewIPMatcher(cfg.Whitelist)
	if err != nil {
		return nil, fmt.Errorf("whitelist: %w", err)
	}
	black, err := NewIPMatcher(cfg.Blacklist)
	if err != nil {
		return nil, fmt.Errorf("blacklist: %w", err)
	}
	return &compiledDDoSConfig{cfg: cfg, whitelist: white, blacklist: black}, nil
}

// DDoSGuard admits or rejects raw requests by client address before any
// action-specific rate limit runs.
type DDoSGuard struct {
	store    CounterStore
	limiter  *RateLimiter
	sink     AuditSink
	reporter ActivityReporter

	mu       sync.RWMutex
	compiled *compiledDDoSConfig

	opts    options
	failLog *rate.Sometimes
}

func NewDDoSGuard(limiter *RateLimiter, reporter ActivityReporter, cfg DDoSConfig, opts ...Option) (*DDoSGuard, error) {
	compiled, err := compileDDoSConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &DDoSGuard{
		store:    limiter.store,
		limiter:  limiter,
		sink:     limiter.sink,
		reporter: reporter,
		compiled: compiled,
		opts:     buildOptions("ddos_guard", opts),
		failLog:  outageLog(),
	}, nil
}

func (g *DDoSGuard) Config() DDoSConfig {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.compiled.cfg
}

func (g *DDoSGuard) UpdateConfig(cfg DDoSConfig) error {
	compiled, err := compileDDoSConfig(cfg)
	if err != nil {
		return err
	}
	g.mu.Lock()
	g.compiled = compiled
	g.mu.Unlock()
	return nil
}

func (g *DDoSGuard) SetReporter(reporter ActivityReporter) {
	g.mu.Lock()
	g.reporter = reporter
	g.mu.Unlock()
}

// CheckRequest evaluates one request. override replaces the guard config for
// this call only. Internal failures allow the request with risk 0.
func (g *DDoSGuard) CheckRequest(ctx context.Context, ip, userAgent string, override *DDoSConfig) dto.RequestDecision {
	g.mu.RLock()
	cc := g.compiled
	g.mu.RUnlock()

	if override != nil {
		compiled, err := compileDDoSConfig(*override)
		if err != nil {
			g.opts.logger.Error().Err(err).Msg("Invalid DDoS config override, using guard config")
		} else {
			cc = compiled
		}
	}

	decision, err := g.evaluate(ctx, cc, strings.TrimSpace(ip), userAgent)
	if err != nil {
		g.opts.recorder.StoreFailure("ddos_guard")
		g.failLog.Do(func() {
			g.opts.logger.Error().Err(err).Str("ip", ip).Msg("DDoS check failed, allowing request")
		})
		return dto.RequestDecision{Allowed: true}
	}
	category, _, _ := strings.Cut(decision.Reason, ":")
	g.opts.recorder.GuardDecision(category, decision.Allowed)
	return decision
}

func (g *DDoSGuard) evaluate(ctx context.Context, cc *compiledDDoSConfig, ip, userAgent string) (dto.RequestDecision, error) {
	cfg := cc.cfg
	if !cfg.Enabled {
		return dto.RequestDecision{Allowed: true, Reason: ReasonProtectionOffline}, nil
	}
	if cc.whitelist.ContainsString(ip) {
		return dto.RequestDecision{Allowed: true, Reason: ReasonWhitelisted}, nil
	}
	identifier := shared.IPIdentifier(ip)
	if cc.blacklist.ContainsString(ip) {
		return g.deny(ctx, identifier, ip, userAgent, dto.RequestDecision{
			Allowed:   false,
			Reason:    ReasonBlacklisted,
			RiskScore: 100,
		}), nil
	}
	if status := g.limiter.IsBlocked(ctx, identifier); status.Blocked {
		return g.deny(ctx, identifier, ip, userAgent, dto.RequestDecision{
			Allowed:      false,
			Reason:       fmt.Sprintf("%s: %s", ReasonBlocked, status.Reason),
			RiskScore:    100,
			BlockedUntil: status.ExpiresAt,
		}), nil
	}

	now := g.opts.now()
	var metrics dto.TrafficMetrics

	globalCount, err := g.store.ZCount(ctx, ddosGlobalKey, windowFloor(now, cfg.GlobalRateLimit.Window), posInf)
	if err != nil {
		return dto.RequestDecision{}, err
	}
	metrics.GlobalRequests = globalCount
	if globalCount+1 > int64(cfg.GlobalRateLimit.MaxRequests) {
		return dto.RequestDecision{Allowed: false, Reason: ReasonGlobalRateLimit, RiskScore: 70, Metrics: metrics}, nil
	}

	ipKey := ddosIPKey(ip)
	ipCount, err := g.store.ZCount(ctx, ipKey, windowFloor(now, cfg.IPRateLimit.Window), posInf)
	if err != nil {
		return dto.RequestDecision{}, err
	}
	ipTotal := ipCount + 1
	metrics.IPRequests = ipTotal
	if ipTotal > int64(cfg.IPRateLimit.MaxRequests) {
		ratio := float64(ipTotal) / float64(cfg.IPRateLimit.MaxRequests)
		return dto.RequestDecision{
			Allowed:   false,
			Reason:    ReasonIPRateLimit,
			RiskScore: min(100, 50+(ratio-1)*30),
			Metrics:   metrics,
		}, nil
	}
	metrics.IPRemaining = cfg.IPRateLimit.MaxRequests - int(ipTotal)

	if err := g.record(ctx, cfg, ip, userAgent, now, &metrics); err != nil {
		return dto.RequestDecision{}, err
	}

	risk, err := g.assessRisk(ctx, cfg, ip, identifier, userAgent, now)
	if err != nil {
		return dto.RequestDecision{}, err
	}

	if cfg.AutoBlock.Enabled && risk >= cfg.AutoBlock.RiskThreshold {
		reason := fmt.Sprintf("Automatic block: risk score %.1f", risk)
		if err := g.limiter.BlockIdentifier(ctx, identifier, cfg.AutoBlock.BlockDuration, reason); err != nil {
			g.opts.logger.Error().Err(err).Str("ip", ip).Msg("Failed to auto-block address")
		}
		until := now.Add(cfg.AutoBlock.BlockDuration)
		return dto.RequestDecision{
			Allowed:      false,
			Reason:       ReasonHighRisk,
			RiskScore:    risk,
			BlockedUntil: &until,
			Metrics:      metrics,
		}, nil
	}

	if cfg.DistributedAttackDetection.Enabled {
		if err := g.detectDistributedAttack(ctx, cfg.DistributedAttackDetection, now); err != nil {
			g.opts.logger.Warn().Err(err).Msg("Distributed attack detection failed")
		}
	}

	return dto.RequestDecision{Allowed: true, RiskScore: risk, Metrics: metrics}, nil
}

// deny logs a rejected address and writes it to the audit trail.
func (g *DDoSGuard) deny(ctx context.Context, identifier, ip, userAgent string, decision dto.RequestDecision) dto.RequestDecision {
	g.opts.logger.Warn().
		Str("ip", ip).
		Str("user_agent", userAgent).
		Str("reason", decision.Reason).
		Msg("Request denied")
	_ = g.sink.LogActivity(ctx, AuditEntry{
		Action:     "request_denied",
		Identifier: identifier,
		Severity:   model.SeverityMedium,
		IP:         ip,
		UserAgent:  userAgent,
		Success:    false,
		Details:    map[string]any{"reason": decision.Reason},
	})
	return decision
}

// record adds the request to the global, per-IP, user-agent and pattern samples.
func (g *DDoSGuard) record(ctx context.Context, cfg DDoSConfig, ip, userAgent string, now time.Time, metrics *dto.TrafficMetrics) error {
	token := newToken(now)

	if _, err := g.store.RecordHit(ctx, WindowHit{
		Key:    ddosGlobalKey,
		Member: token,
		Now:    now,
		Window: cfg.GlobalRateLimit.Window,
	}); err != nil {
		return err
	}
	metrics.GlobalRequests++

	if _, err := g.store.RecordHit(ctx, WindowHit{
		Key:    ddosIPKey(ip),
		Member: token,
		Now:    now,
		Window: max(ddosHistoryWindow, cfg.IPRateLimit.Window),
	}); err != nil {
		return err
	}

	if ua := strings.TrimSpace(userAgent); ua != "" {
		uaKey := ddosUAKey(ip)
		if err := g.store.SAdd(ctx, uaKey, userAgentFingerprint(ua)); err != nil {
			return err
		}
		if err := g.store.Expire(ctx, uaKey, userAgentTTL); err != nil {
			return err
		}
		if n, err := g.store.SCard(ctx, uaKey); err == nil {
			metrics.UniqueUserAgents = n
		}
	}

	if cfg.DistributedAttackDetection.Enabled {
		if _, err := g.store.RecordHit(ctx, WindowHit{
			Key:    ddosPatternKey,
			Member: ip + "|" + token,
			Now:    now,
			Window: cfg.DistributedAttackDetection.TimeWindow,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (g *DDoSGuard) assessRisk(ctx context.Context, cfg DDoSConfig, ip, identifier, userAgent string, now time.Time) (float64, error) {
	ipKey := ddosIPKey(ip)

	lastMinute, err := g.store.ZCount(ctx, ipKey, windowFloor(now, frequencyWindow), posInf)
	if err != nil {
		return 0, err
	}

	recent, err := g.store.ZRangeByScore(ctx, ipKey, windowFloor(now, patternWindow), posInf)
	if err != nil {
		return 0, err
	}
	timestamps := make([]float64, len(recent))
	for i, sm := range recent {
		timestamps[i] = sm.Score
	}

	_, recentlyBlocked, err := g.store.Get(ctx, blockHistoryKey(identifier))
	if err != nil {
		return 0, err
	}
	daily, err := g.store.ZCard(ctx, ipKey)
	if err != nil {
		return 0, err
	}

	return combineRisk(cfg.Weights,
		frequencyScore(lastMinute, cfg.IPRateLimit),
		userAgentScore(userAgent),
		regularityScore(timestamps),
		historyScore(recentlyBlocked, daily),
	), nil
}

// detectDistributedAttack emits at most one AttackPattern per detection window.
func (g *DDoSGuard) detectDistributedAttack(ctx context.Context, cfg DistributedDetectionConfig, now time.Time) error {
	floor := windowFloor(now, cfg.TimeWindow)
	total, err := g.store.ZCount(ctx, ddosPatternKey, floor, posInf)
	if err != nil {
		return err
	}
	if total < cfg.Threshold {
		return nil
	}
	if _, active, err := g.store.Get(ctx, ddosAttackMarker); err != nil || active {
		return err
	}

	samples, err := g.store.ZRangeByScore(ctx, ddosPatternKey, floor, posInf)
	if err != nil {
		return err
	}
	perIP := make(map[string]int64)
	for _, sm := range samples {
		ip, _, _ := strings.Cut(sm.Member, "|")
		perIP[ip]++
	}
	if len(perIP) < cfg.MinIPs {
		return nil
	}

	pattern := model.AttackPattern{
		ID:           newID(),
		DetectedAt:   now,
		Type:         model.AttackDistributed,
		Severity:     model.SeverityHigh,
		SourceIPs:    topSources(perIP, cfg.MaxSourceIPs),
		UniqueIPs:    len(perIP),
		RequestCount: int64(len(samples)),
		TimeWindow:   cfg.TimeWindow,
	}

	claimed, err := g.store.SetNX(ctx, ddosAttackMarker, pattern.ID, cfg.TimeWindow)
	if err != nil || !claimed {
		return err
	}

	data, err := shared.JSON.MarshalToString(pattern)
	if err != nil {
		return err
	}
	var errs []error
	if err := g.store.ZAdd(ctx, attackPatternsKey, msScore(now), data); err != nil {
		errs = append(errs, err)
	}
	if _, err := g.store.ZRemRangeByScore(ctx, attackPatternsKey, negInf, windowFloor(now, attackRetention)-1); err != nil {
		errs = append(errs, err)
	}

	g.opts.recorder.AttackDetected(pattern.Type)
	g.opts.logger.Warn().
		Str("attack_id", pattern.ID).
		Int("unique_ips", pattern.UniqueIPs).
		Int64("requests", pattern.RequestCount).
		Msg("Distributed attack detected")

	details := map[string]any{
		"attack_id":     pattern.ID,
		"attack_type":   string(pattern.Type),
		"unique_ips":    pattern.UniqueIPs,
		"request_count": pattern.RequestCount,
		"time_window":   pattern.TimeWindow.String(),
		"source_ips":    pattern.SourceIPs,
	}
	_ = g.sink.LogSecurityEvent(ctx, "distributed_attack_detected", pattern.Severity, details, "global")

	g.mu.RLock()
	reporter := g.reporter
	g.mu.RUnlock()
	if reporter != nil {
		if err := reporter.ReportSuspiciousActivity(ctx, model.SuspiciousActivity{
			Identifier: "global",
			Type:       ActivityDistributedAttack,
			Severity:   pattern.Severity,
			Details:    details,
			Timestamp:  now,
		}); err != nil {
			errs = append(errs, err)
		}
	}

	if g.opts.archive != nil {
		if err := g.opts.archive.ArchiveAttackPattern(ctx, pattern); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// topSources returns up to limit addresses ordered by request count.
func topSources(perIP map[string]int64, limit int) []string {
	ips := make([]string, 0, len(perIP))
	for ip := range perIP {
		ips = append(ips, ip)
	}
	sort.Slice(ips, func(i, j int) bool {
		if perIP[ips[i]] == perIP[ips[j]] {
			return ips[i] < ips[j]
		}
		return perIP[ips[i]] > perIP[ips[j]]
	})
	if len(ips) > limit {
		ips = ips[:limit]
	}
	return ips
}

// AttackPatterns lists patterns detected since the given time, newest first.
func (g *DDoSGuard) AttackPatterns(ctx context.Context, since time.Time) ([]model.AttackPattern, error) {
	entries, err := g.store.ZRangeByScore(ctx, attackPatternsKey, msScore(since), posInf)
	if err != nil {
		return nil, err
	}
	out := make([]model.AttackPattern, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		var p model.AttackPattern
		if err := shared.JSON.UnmarshalFromString(entries[i].Member, &p); err != nil {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}
