package security

import (
	"context"
	"fmt"
	"time"

	"github.com/lac-hong-legacy/lms_api/dto"
)

type Config struct {
	RateLimits        map[string]RateLimitConfig `yaml:"rate_limits"`
	Abuse             AbuseConfig                `yaml:"abuse"`
	DDoS              DDoSConfig                 `yaml:"ddos"`
	Rules             []AlertRule                `yaml:"rules"`
	ActivityRetention time.Duration              `yaml:"activity_retention"`
	Cleanup           CleanupPolicy              `yaml:"cleanup"`
}

func DefaultConfig() Config {
	return Config{
		Abuse:             DefaultAbuseConfig(),
		DDoS:              DefaultDDoSConfig(),
		Rules:             BuiltinRules(),
		ActivityRetention: DefaultActivityRetention,
		Cleanup:           DefaultCleanupPolicy(),
	}
}

// Suite is the assembled security layer sharing one store and one audit sink.
type Suite struct {
	Store   CounterStore
	Sink    AuditSink
	Tracker *ActivityTracker
	Limiter *RateLimiter
	Abuse   *AbuseDetector
	Guard   *DDoSGuard
	Monitor *SuspiciousActivityMonitor
	Cleanup CleanupPolicy
}

func NewSuite(store CounterStore, sink AuditSink, cfg Config, opts ...Option) (*Suite, error) {
	if err := ValidateRules(cfg.Rules); err != nil {
		return nil, fmt.Errorf("alert rules: %w", err)
	}
	retention := max(cfg.ActivityRetention, longestWindow(cfg.Rules))

	tracker := NewActivityTracker(store, retention, opts...)
	limiterOpts := append(append([]Option{}, opts...), WithActivityTracker(tracker))
	limiter := NewRateLimiter(store, sink, limiterOpts...)
	for action, rl := range cfg.RateLimits {
		if err := limiter.SetConfig(action, rl); err != nil {
			return nil, err
		}
	}

	monitor := NewSuspiciousActivityMonitor(limiter, tracker, cfg.Rules, opts...)
	guard, err := NewDDoSGuard(limiter, monitor, cfg.DDoS, opts...)
	if err != nil {
		return nil, fmt.Errorf("ddos config: %w", err)
	}

	abuse := cfg.Abuse
	if abuse == (AbuseConfig{}) {
		abuse = DefaultAbuseConfig()
	}
	cleanup := cfg.Cleanup
	if cleanup == (CleanupPolicy{}) {
		cleanup = DefaultCleanupPolicy()
	}

	return &Suite{
		Store:   store,
		Sink:    limiter.sink,
		Tracker: tracker,
		Limiter: limiter,
		Abuse:   NewAbuseDetector(limiter, abuse, opts...),
		Guard:   guard,
		Monitor: monitor,
		Cleanup: cleanup,
	}, nil
}

// Close stops background alert publishing after delivering what is queued.
func (s *Suite) Close() {
	s.Monitor.Close()
}

// RunCleanup runs one maintenance pass with the suite's retention policy.
func (s *Suite) RunCleanup(ctx context.Context) (*dto.CleanupReport, error) {
	return s.Monitor.Cleanup(ctx, s.Cleanup)
}
