package security

import (
	"context"
	"fmt"
	"time"

	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/model"
)

// AbuseConfig holds the thresholds and points of every abuse heuristic.
type AbuseConfig struct {
	Threshold int `yaml:"threshold"`

	HighVolumeHits   int `yaml:"high_volume_hits"`
	HighVolumePoints int `yaml:"high_volume_points"`

	LoginHits          int `yaml:"login_hits"`
	LoginPoints        int `yaml:"login_points"`
	RegistrationHits   int `yaml:"registration_hits"`
	RegistrationPoints int `yaml:"registration_points"`
	PaymentHits        int `yaml:"payment_hits"`
	PaymentPoints      int `yaml:"payment_points"`
	OTPHits            int `yaml:"otp_hits"`
	OTPPoints          int `yaml:"otp_points"`

	RapidWindow time.Duration `yaml:"rapid_window"`
	RapidHits   int           `yaml:"rapid_hits"`
	RapidPoints int           `yaml:"rapid_points"`

	FamilySize   int `yaml:"family_size"`
	FamilyPoints int `yaml:"family_points"`
}

func DefaultAbuseConfig() AbuseConfig {
	return AbuseConfig{
		Threshold:          50,
		HighVolumeHits:     200,
		HighVolumePoints:   30,
		LoginHits:          3,
		LoginPoints:        25,
		RegistrationHits:   2,
		RegistrationPoints: 20,
		PaymentHits:        5,
		PaymentPoints:      35,
		OTPHits:            2,
		OTPPoints:          15,
		RapidWindow:        10 * time.Second,
		RapidHits:          20,
		RapidPoints:        20,
		FamilySize:         10,
		FamilyPoints:       25,
	}
}

var abuseActions = []string{ActionLogin, ActionRegistration, ActionAPI, ActionPayment, ActionOTP}

type AbuseDetector struct {
	limiter *RateLimiter
	store   CounterStore
	sink    AuditSink
	cfg     AbuseConfig
	opts    options
}

func NewAbuseDetector(limiter *RateLimiter, cfg AbuseConfig, opts ...Option) *AbuseDetector {
	return &AbuseDetector{
		limiter: limiter,
		store:   limiter.store,
		sink:    limiter.sink,
		cfg:     cfg,
		opts:    buildOptions("abuse_detector", opts),
	}
}

// DetectAbuse scores identifier from its current rate-limit windows. Failed
// sub-checks contribute nothing.
func (d *AbuseDetector) DetectAbuse(ctx context.Context, identifier string) dto.AbuseReport {
	report := dto.AbuseReport{Identifier: identifier, Reasons: []string{}}

	hits := make(map[string]int, len(abuseActions))
	total := 0
	for _, action := range abuseActions {
		status, err := d.limiter.GetRateLimitStatus(ctx, identifier, action)
		if err != nil {
			d.opts.logger.Debug().Err(err).Str("identifier", identifier).Str("action", action).Msg("Abuse sub-check failed")
			continue
		}
		hits[action] = status.TotalHits
		total += status.TotalHits
	}

	add := func(points int, reason string) {
		report.RiskScore += points
		report.Reasons = append(report.Reasons, reason)
	}

	if total > d.cfg.HighVolumeHits {
		add(d.cfg.HighVolumePoints, fmt.Sprintf("High request volume: %d requests", total))
	}
	if hits[ActionLogin] >= d.cfg.LoginHits {
		add(d.cfg.LoginPoints, fmt.Sprintf("Multiple login attempts: %d", hits[ActionLogin]))
	}
	if hits[ActionRegistration] >= d.cfg.RegistrationHits {
		add(d.cfg.RegistrationPoints, fmt.Sprintf("Multiple registration attempts: %d", hits[ActionRegistration]))
	}
	if hits[ActionPayment] >= d.cfg.PaymentHits {
		add(d.cfg.PaymentPoints, fmt.Sprintf("Multiple payment attempts: %d", hits[ActionPayment]))
	}
	if hits[ActionOTP] >= d.cfg.OTPHits {
		add(d.cfg.OTPPoints, fmt.Sprintf("Multiple OTP requests: %d", hits[ActionOTP]))
	}
	if rapid := d.rapidRequests(ctx, identifier); rapid > d.cfg.RapidHits {
		add(d.cfg.RapidPoints, fmt.Sprintf("Rapid sequential requests: %d in %s", rapid, d.cfg.RapidWindow))
	}
	if others := d.familyMembers(ctx, identifier); others >= d.cfg.FamilySize {
		add(d.cfg.FamilyPoints, fmt.Sprintf("Distributed attack pattern: %d related identifiers", others))
	}

	report.RiskScore = min(report.RiskScore, 100)
	report.IsAbusive = report.RiskScore >= d.cfg.Threshold

	if report.IsAbusive {
		d.opts.logger.Warn().
			Str("identifier", identifier).
			Int("risk_score", report.RiskScore).
			Strs("reasons", report.Reasons).
			Msg("Abusive behaviour detected")
		_ = d.sink.LogSecurityEvent(ctx, "abuse_detected", model.SeverityHigh, map[string]any{
			"risk_score": report.RiskScore,
			"reasons":    report.Reasons,
		}, identifier)
	}
	return report
}

func (d *AbuseDetector) rapidRequests(ctx context.Context, identifier string) int {
	floor := windowFloor(d.opts.now(), d.cfg.RapidWindow)
	var n int64
	for _, action := range abuseActions {
		c, err := d.store.ZCount(ctx, rateLimitKey(action, identifier), floor, posInf)
		if err != nil {
			return 0
		}
		n += c
	}
	return int(n)
}

// familyMembers counts the other identifiers in the same network whose last
// hit still falls inside the longest window of the scored actions.
func (d *AbuseDetector) familyMembers(ctx context.Context, identifier string) int {
	family, ok := identifierFamily(identifier)
	if !ok {
		return 0
	}
	members, err := d.store.ZRangeByScore(ctx, rateLimitFamilyKey(family), windowFloor(d.opts.now(), d.longestWindow()), posInf)
	if err != nil {
		return 0
	}
	others := 0
	for _, m := range members {
		if m.Member != identifier {
			others++
		}
	}
	return others
}

func (d *AbuseDetector) longestWindow() time.Duration {
	var longest time.Duration
	for _, action := range abuseActions {
		if cfg, ok := d.limiter.Config(action); ok && cfg.Window > longest {
			longest = cfg.Window
		}
	}
	return longest
}
