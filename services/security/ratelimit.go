package security

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/shared"
	"golang.org/x/time/rate"
)

// blockHistoryTTL is how long a past block keeps counting against an identifier's risk history.
const blockHistoryTTL = 24 * time.Hour

type RateLimiter struct {
	store CounterStore
	sink  AuditSink

	configs map[string]RateLimitConfig
	mutex   sync.RWMutex

	opts    options
	failLog *rate.Sometimes
}

func NewRateLimiter(store CounterStore, sink AuditSink, opts ...Option) *RateLimiter {
	if sink == nil {
		sink = NopAuditSink{}
	}
	return &RateLimiter{
		store:   store,
		sink:    sink,
		configs: DefaultRateLimitConfigs(),
		opts:    buildOptions("rate_limiter", opts),
		failLog: outageLog(),
	}
}

// ==================== CONFIGURATION MANAGEMENT ====================

func (rl *RateLimiter) Config(action string) (RateLimitConfig, bool) {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()
	cfg, ok := rl.configs[action]
	return cfg, ok
}

func (rl *RateLimiter) Configs() map[string]RateLimitConfig {
	rl.mutex.RLock()
	defer rl.mutex.RUnlock()
	out := make(map[string]RateLimitConfig, len(rl.configs))
	for k, v := range rl.configs {
		out[k] = v
	}
	return out
}

// SetConfig registers or replaces the configuration of an action.
func (rl *RateLimiter) SetConfig(action string, cfg RateLimitConfig) error {
	if err := validateRateLimitConfig(action, cfg); err != nil {
		return err
	}
	rl.mutex.Lock()
	rl.configs[action] = cfg
	rl.mutex.Unlock()
	return nil
}

func validateRateLimitConfig(action string, cfg RateLimitConfig) error {
	if strings.TrimSpace(action) == "" {
		return &ConfigurationError{Action: action, Reason: "action name is empty"}
	}
	if cfg.Window <= 0 {
		return &ConfigurationError{Action: action, Reason: "window must be positive"}
	}
	if cfg.MaxRequests <= 0 {
		return &ConfigurationError{Action: action, Reason: "max requests must be positive"}
	}
	return nil
}

func (rl *RateLimiter) resolve(action string, custom *RateLimitConfig) (RateLimitConfig, error) {
	if custom != nil {
		if err := validateRateLimitConfig(action, *custom); err != nil {
			return RateLimitConfig{}, err
		}
		return *custom, nil
	}
	cfg, ok := rl.Config(action)
	if !ok {
		return RateLimitConfig{}, &ConfigurationError{Action: action, Reason: "no configuration registered"}
	}
	return cfg, nil
}

// ==================== CORE RATE LIMITING LOGIC ====================

// CheckRateLimit records one attempt for identifier under action and reports
// whether it fits the sliding window. Store failures fail open; an unknown
// action without a custom config is returned as *ConfigurationError.
func (rl *RateLimiter) CheckRateLimit(ctx context.Context, identifier, action string, custom *RateLimitConfig) (*dto.RateLimitResult, error) {
	cfg, err := rl.resolve(action, custom)
	if err != nil {
		return nil, err
	}

	now := rl.opts.now()
	key := rateLimitKey(action, identifier)
	hit := WindowHit{
		Key:      key,
		Member:   newToken(now),
		Now:      now,
		Window:   cfg.Window,
		Indexes:  map[string]string{rateLimitIndexKey: key},
		IndexTTL: indexTTL,
	}
	if family, ok := identifierFamily(identifier); ok {
		hit.Recent = map[string]string{rateLimitFamilyKey(family): identifier}
	}

	count, err := rl.store.RecordHit(ctx, hit)
	if err != nil {
		rl.storeFailure(ctx, "check_rate_limit", identifier, action, err)
		return &dto.RateLimitResult{
			Allowed:   true,
			Remaining: cfg.MaxRequests,
			ResetTime: now.Add(cfg.Window),
		}, nil
	}

	totalHits := int(count) + 1
	result := &dto.RateLimitResult{
		Allowed:   totalHits <= cfg.MaxRequests,
		Remaining: max(0, cfg.MaxRequests-totalHits),
		ResetTime: now.Add(cfg.Window),
		TotalHits: totalHits,
	}

	rl.opts.recorder.RateLimitDecision(action, result.Allowed)
	if rl.opts.tracker != nil {
		rl.opts.tracker.TrackAction(ctx, identifier, action)
	}

	if !result.Allowed {
		rl.opts.logger.Debug().
			Str("identifier", identifier).
			Str("action", action).
			Int("total_hits", totalHits).
			Int("max_requests", cfg.MaxRequests).
			Msg("Rate limit exceeded")
	}
	return result, nil
}

// GetRateLimitStatus reports the current window without recording an attempt.
func (rl *RateLimiter) GetRateLimitStatus(ctx context.Context, identifier, action string) (*dto.RateLimitResult, error) {
	cfg, err := rl.resolve(action, nil)
	if err != nil {
		return nil, err
	}

	now := rl.opts.now()
	key := rateLimitKey(action, identifier)
	if _, err := rl.store.ZRemRangeByScore(ctx, key, negInf, windowFloor(now, cfg.Window)-1); err != nil {
		return nil, err
	}
	count, err := rl.store.ZCard(ctx, key)
	if err != nil {
		return nil, err
	}

	hits := int(count)
	return &dto.RateLimitResult{
		Allowed:   hits < cfg.MaxRequests,
		Remaining: max(0, cfg.MaxRequests-hits),
		ResetTime: now.Add(cfg.Window),
		TotalHits: hits,
	}, nil
}

// RecordSuccess refunds the newest attempt when the action skips successful requests.
func (rl *RateLimiter) RecordSuccess(ctx context.Context, identifier, action string) error {
	cfg, err := rl.resolve(action, nil)
	if err != nil {
		return err
	}
	if cfg.SkipSuccessfulRequests {
		rl.refund(ctx, identifier, action)
	}
	return nil
}

// RecordFailure counts a failed attempt and refunds it when the action skips failures.
func (rl *RateLimiter) RecordFailure(ctx context.Context, identifier, action string) error {
	cfg, err := rl.resolve(action, nil)
	if err != nil {
		return err
	}
	if rl.opts.tracker != nil {
		rl.opts.tracker.TrackFailure(ctx, identifier, action)
	}
	if cfg.SkipFailedRequests {
		rl.refund(ctx, identifier, action)
	}
	return nil
}

func (rl *RateLimiter) refund(ctx context.Context, identifier, action string) {
	if _, err := rl.store.ZPopMax(ctx, rateLimitKey(action, identifier)); err != nil {
		rl.storeFailure(ctx, "refund", identifier, action, err)
	}
}

// ResetRateLimit drops the window of one identifier for one action.
func (rl *RateLimiter) ResetRateLimit(ctx context.Context, identifier, action string) error {
	key := rateLimitKey(action, identifier)
	if err := rl.store.Del(ctx, key); err != nil {
		return err
	}
	if err := rl.store.SRem(ctx, rateLimitIndexKey, key); err != nil {
		rl.opts.logger.Warn().Err(err).Str("key", key).Msg("Failed to drop rate limit index entry")
	}
	_ = rl.sink.LogSecurityEvent(ctx, "rate_limit_reset", model.SeverityLow, map[string]any{"action": action}, identifier)
	return nil
}

// ==================== BLOCKING ====================

func (rl *RateLimiter) BlockIdentifier(ctx context.Context, identifier string, duration time.Duration, reason string) error {
	if duration <= 0 {
		duration = DefaultBlockDuration
	}
	now := rl.opts.now()
	record := model.BlockRecord{
		Identifier: identifier,
		Reason:     reason,
		BlockedAt:  now,
		ExpiresAt:  now.Add(duration),
	}

	data, err := shared.JSON.MarshalToString(record)
	if err != nil {
		return err
	}
	if err := rl.store.Set(ctx, blockKey(identifier), data, duration); err != nil {
		rl.opts.recorder.StoreFailure("rate_limiter")
		return err
	}
	if err := rl.store.ZAdd(ctx, blockIndexKey, msScore(record.ExpiresAt), identifier); err != nil {
		rl.opts.logger.Warn().Err(err).Str("identifier", identifier).Msg("Failed to index block")
	}
	if err := rl.store.Set(ctx, blockHistoryKey(identifier), data, blockHistoryTTL); err != nil {
		rl.opts.logger.Warn().Err(err).Str("identifier", identifier).Msg("Failed to record block history")
	}

	rl.opts.recorder.BlockApplied(identifierKind(identifier))
	rl.opts.logger.Warn().
		Str("identifier", identifier).
		Str("reason", reason).
		Dur("duration", duration).
		Msg("Identifier blocked")

	_ = rl.sink.LogSecurityEvent(ctx, "identifier_blocked", model.SeverityHigh, map[string]any{
		"reason":     reason,
		"duration":   duration.String(),
		"expires_at": record.ExpiresAt,
	}, identifier)
	return nil
}

// IsBlocked fails open: a store error reports the identifier as not blocked.
func (rl *RateLimiter) IsBlocked(ctx context.Context, identifier string) dto.BlockStatus {
	raw, ok, err := rl.store.Get(ctx, blockKey(identifier))
	if err != nil {
		rl.storeFailure(ctx, "is_blocked", identifier, "", err)
		return dto.BlockStatus{}
	}
	if !ok {
		return dto.BlockStatus{}
	}

	var record model.BlockRecord
	if err := shared.JSON.UnmarshalFromString(raw, &record); err != nil {
		rl.opts.logger.Warn().Err(err).Str("identifier", identifier).Msg("Unreadable block record")
		return dto.BlockStatus{Blocked: true, Reason: "blocked"}
	}
	if !record.ExpiresAt.After(rl.opts.now()) {
		return dto.BlockStatus{}
	}
	return dto.BlockStatus{
		Blocked:   true,
		Reason:    record.Reason,
		BlockedAt: &record.BlockedAt,
		ExpiresAt: &record.ExpiresAt,
	}
}

func (rl *RateLimiter) UnblockIdentifier(ctx context.Context, identifier string) error {
	if err := rl.store.Del(ctx, blockKey(identifier)); err != nil {
		return err
	}
	if err := rl.store.ZRem(ctx, blockIndexKey, identifier); err != nil {
		rl.opts.logger.Warn().Err(err).Str("identifier", identifier).Msg("Failed to drop block index entry")
	}
	rl.opts.logger.Info().Str("identifier", identifier).Msg("Identifier unblocked")
	_ = rl.sink.LogSecurityEvent(ctx, "identifier_unblocked", model.SeverityMedium, nil, identifier)
	return nil
}

// ==================== HELPERS ====================

func (rl *RateLimiter) storeFailure(ctx context.Context, op, identifier, action string, err error) {
	rl.opts.recorder.StoreFailure("rate_limiter")
	rl.failLog.Do(func() {
		rl.opts.logger.Error().
			Err(err).
			Str("op", op).
			Str("identifier", identifier).
			Str("action", action).
			Msg("Counter store unavailable, failing open")
	})
	_ = rl.sink.LogSecurityEvent(ctx, "counter_store_unavailable", model.SeverityHigh, map[string]any{
		"op":     op,
		"action": action,
		"error":  err.Error(),
	}, identifier)
}

func identifierKind(identifier string) string {
	switch {
	case strings.HasPrefix(identifier, shared.IPPrefix):
		return "ip"
	case strings.HasPrefix(identifier, shared.UserPrefix):
		return "user"
	}
	return "other"
}
