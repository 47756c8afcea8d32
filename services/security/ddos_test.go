package security

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type guardEnv struct {
	*testEnv
	guard    *DDoSGuard
	reporter *recordingReporter
	archive  *recordingArchive
}

func newGuardEnv(t *testing.T, mutate func(*DDoSConfig)) *guardEnv {
	t.Helper()
	env := newTestEnv(t)
	cfg := DefaultDDoSConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	reporter := &recordingReporter{}
	archive := &recordingArchive{}
	opts := append(testOptions(env.clock), WithForensicsArchive(archive))
	guard, err := NewDDoSGuard(env.limiter, reporter, cfg, opts...)
	require.NoError(t, err)
	return &guardEnv{testEnv: env, guard: guard, reporter: reporter, archive: archive}
}

func TestCheckRequest_Disabled(t *testing.T) {
	env := newGuardEnv(t, func(c *DDoSConfig) { c.Enabled = false })

	d := env.guard.CheckRequest(context.Background(), "203.0.113.1", "", nil)
	assert.True(t, d.Allowed)
	assert.Zero(t, d.RiskScore)
}

func TestCheckRequest_Whitelist(t *testing.T) {
	env := newGuardEnv(t, func(c *DDoSConfig) {
		c.Whitelist = []string{"10.0.0.0/8", "2001:db8::/32", "198.51.100.10"}
		c.Blacklist = []string{"10.0.0.0/8"}
	})
	ctx := context.Background()

	for _, ip := range []string{"10.20.30.40", "2001:db8:1::5", "198.51.100.10", "::ffff:10.1.1.1"} {
		d := env.guard.CheckRequest(ctx, ip, "", nil)
		assert.True(t, d.Allowed, ip)
		assert.Equal(t, ReasonWhitelisted, d.Reason, ip)
		assert.Zero(t, d.RiskScore, ip)
	}
}

func TestCheckRequest_WhitelistOverridesHistory(t *testing.T) {
	env := newGuardEnv(t, nil)
	ctx := context.Background()
	ip := "198.51.100.50"

	// a past block plus a burst of scripted traffic earns an automatic block
	require.NoError(t, env.limiter.BlockIdentifier(ctx, shared.IPIdentifier(ip), time.Minute, "manual"))
	require.NoError(t, env.limiter.UnblockIdentifier(ctx, shared.IPIdentifier(ip)))

	var d dto.RequestDecision
	for i := 0; i < 100; i++ {
		if d = env.guard.CheckRequest(ctx, ip, "curl/8.4.0", nil); !d.Allowed {
			break
		}
	}
	require.False(t, d.Allowed)
	require.Equal(t, ReasonHighRisk, d.Reason)
	require.True(t, env.limiter.IsBlocked(ctx, shared.IPIdentifier(ip)).Blocked)

	cfg := env.guard.Config()
	cfg.Whitelist = []string{ip}
	require.NoError(t, env.guard.UpdateConfig(cfg))

	d = env.guard.CheckRequest(ctx, ip, "curl/8.4.0", nil)
	assert.True(t, d.Allowed)
	assert.Equal(t, ReasonWhitelisted, d.Reason)
	assert.Zero(t, d.RiskScore)
}

func TestCheckRequest_Blacklist(t *testing.T) {
	env := newGuardEnv(t, func(c *DDoSConfig) {
		c.Blacklist = []string{"203.0.113.0/24", "2001:db8:bad::/48"}
	})
	ctx := context.Background()

	for _, ip := range []string{"203.0.113.77", "2001:db8:bad::1"} {
		d := env.guard.CheckRequest(ctx, ip, browserUA, nil)
		assert.False(t, d.Allowed, ip)
		assert.Equal(t, ReasonBlacklisted, d.Reason)
		assert.Equal(t, 100.0, d.RiskScore)
	}

	d := env.guard.CheckRequest(ctx, "2001:db8:bee::1", browserUA, nil)
	assert.True(t, d.Allowed)

	denied := env.sink.EntriesFor("request_denied")
	require.Len(t, denied, 2)
	assert.Equal(t, "ip:203.0.113.77", denied[0].Identifier)
	assert.Equal(t, "203.0.113.77", denied[0].IP)
	assert.Equal(t, browserUA, denied[0].UserAgent)
	assert.False(t, denied[0].Success)
	assert.Equal(t, ReasonBlacklisted, denied[0].Details["reason"])
}

func TestCheckRequest_BlockedAddress(t *testing.T) {
	env := newGuardEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, env.limiter.BlockIdentifier(ctx, "ip:198.51.100.3", time.Hour, "manual"))

	d := env.guard.CheckRequest(ctx, "198.51.100.3", browserUA, nil)
	assert.False(t, d.Allowed)
	assert.True(t, strings.HasPrefix(d.Reason, ReasonBlocked))
	assert.Contains(t, d.Reason, "manual")
	assert.Equal(t, 100.0, d.RiskScore)
	require.NotNil(t, d.BlockedUntil)

	denied := env.sink.EntriesFor("request_denied")
	require.Len(t, denied, 1)
	assert.Equal(t, "ip:198.51.100.3", denied[0].Identifier)
	assert.Equal(t, "198.51.100.3", denied[0].IP)
	assert.Equal(t, d.Reason, denied[0].Details["reason"])
}

func TestCheckRequest_GlobalLimit(t *testing.T) {
	env := newGuardEnv(t, func(c *DDoSConfig) {
		c.GlobalRateLimit = WindowLimit{Window: time.Minute, MaxRequests: 5}
	})
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		d := env.guard.CheckRequest(ctx, fmt.Sprintf("198.51.100.%d", i), browserUA, nil)
		require.True(t, d.Allowed, "request %d", i)
		env.clock.Advance(time.Second)
	}

	d := env.guard.CheckRequest(ctx, "198.51.100.99", browserUA, nil)
	assert.False(t, d.Allowed)
	assert.Equal(t, ReasonGlobalRateLimit, d.Reason)
	assert.Equal(t, 70.0, d.RiskScore)
}

func TestCheckRequest_IPRateLimit(t *testing.T) {
	env := newGuardEnv(t, nil)
	ctx := context.Background()

	var denied int
	for i := 1; i <= 150; i++ {
		d := env.guard.CheckRequest(ctx, "203.0.113.50", browserUA, nil)
		if i <= 100 {
			require.True(t, d.Allowed, "request %d: %s", i, d.Reason)
			assert.Equal(t, 100-i, d.Metrics.IPRemaining)
			continue
		}
		denied++
		assert.False(t, d.Allowed)
		assert.Contains(t, d.Reason, "IP rate limit exceeded")
		assert.GreaterOrEqual(t, d.RiskScore, 50.0)
		assert.LessOrEqual(t, d.RiskScore, 65.0)
	}
	assert.Equal(t, 50, denied)

	d := env.guard.CheckRequest(ctx, "203.0.113.51", browserUA, nil)
	assert.True(t, d.Allowed)
}

func TestCheckRequest_AutoBlock(t *testing.T) {
	env := newGuardEnv(t, func(c *DDoSConfig) {
		c.AutoBlock.RiskThreshold = 40
	})
	ctx := context.Background()

	var blockedAt int
	for i := 1; i <= 20; i++ {
		d := env.guard.CheckRequest(ctx, "192.0.2.10", "curl/8.4.0", nil)
		if !d.Allowed {
			assert.Equal(t, ReasonHighRisk, d.Reason)
			assert.GreaterOrEqual(t, d.RiskScore, 40.0)
			require.NotNil(t, d.BlockedUntil)
			blockedAt = i
			break
		}
	}
	require.NotZero(t, blockedAt, "address was never auto-blocked")
	assert.LessOrEqual(t, blockedAt, 10)

	status := env.limiter.IsBlocked(ctx, "ip:192.0.2.10")
	assert.True(t, status.Blocked)

	d := env.guard.CheckRequest(ctx, "192.0.2.10", "curl/8.4.0", nil)
	assert.False(t, d.Allowed)
	assert.True(t, strings.HasPrefix(d.Reason, ReasonBlocked))
}

func TestCheckRequest_DistributedAttack(t *testing.T) {
	env := newGuardEnv(t, func(c *DDoSConfig) {
		c.DistributedAttackDetection.Threshold = 20
		c.DistributedAttackDetection.MinIPs = 10
	})
	ctx := context.Background()
	start := env.clock.Now()

	for round := 0; round < 4; round++ {
		for i := 1; i <= 10; i++ {
			d := env.guard.CheckRequest(ctx, fmt.Sprintf("203.0.113.%d", i), browserUA, nil)
			require.True(t, d.Allowed)
			env.clock.Advance(250 * time.Millisecond)
		}
	}

	patterns, err := env.guard.AttackPatterns(ctx, start)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, model.AttackDistributed, patterns[0].Type)
	assert.Equal(t, model.SeverityHigh, patterns[0].Severity)
	assert.Equal(t, 10, patterns[0].UniqueIPs)
	assert.Equal(t, int64(20), patterns[0].RequestCount)
	assert.Len(t, patterns[0].SourceIPs, 10)

	activities := env.reporter.Activities()
	require.Len(t, activities, 1)
	assert.Equal(t, ActivityDistributedAttack, activities[0].Type)
	assert.Equal(t, "global", activities[0].Identifier)

	assert.Len(t, env.archive.patterns, 1)
	assert.Len(t, env.sink.EntriesFor("distributed_attack_detected"), 1)
}

func TestCheckRequest_DistributedAttackAtDefaults(t *testing.T) {
	env := newGuardEnv(t, nil)
	ctx := context.Background()
	start := env.clock.Now()

	// 15 addresses, 1050 requests, all inside the five minute detection window
	for round := 0; round < 70; round++ {
		for i := 1; i <= 15; i++ {
			d := env.guard.CheckRequest(ctx, fmt.Sprintf("203.0.113.%d", i), browserUA, nil)
			require.True(t, d.Allowed, "round %d address %d", round, i)
			env.clock.Advance(250 * time.Millisecond)
		}
	}

	patterns, err := env.guard.AttackPatterns(ctx, start)
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, model.AttackDistributed, patterns[0].Type)
	assert.Equal(t, 15, patterns[0].UniqueIPs)
	assert.GreaterOrEqual(t, patterns[0].RequestCount, int64(1000))
	assert.Len(t, patterns[0].SourceIPs, 15)
	assert.Len(t, env.reporter.Activities(), 1)
}

func TestCheckRequest_TooFewAddressesIsNotAnAttack(t *testing.T) {
	env := newGuardEnv(t, func(c *DDoSConfig) {
		c.DistributedAttackDetection.Threshold = 20
		c.DistributedAttackDetection.MinIPs = 10
	})
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		env.guard.CheckRequest(ctx, fmt.Sprintf("203.0.113.%d", i%5+1), browserUA, nil)
		env.clock.Advance(time.Second)
	}

	patterns, err := env.guard.AttackPatterns(ctx, time.Time{})
	require.NoError(t, err)
	assert.Empty(t, patterns)
	assert.Empty(t, env.reporter.Activities())
}

func TestCheckRequest_FailsOpen(t *testing.T) {
	env := newGuardEnv(t, nil)
	env.store.SetUnavailable(true)

	d := env.guard.CheckRequest(context.Background(), "203.0.113.1", "sqlmap/1.7", nil)
	assert.True(t, d.Allowed)
	assert.Zero(t, d.RiskScore)
}

func TestCheckRequest_Override(t *testing.T) {
	env := newGuardEnv(t, nil)
	override := DefaultDDoSConfig()
	override.Blacklist = []string{"198.51.100.0/24"}

	d := env.guard.CheckRequest(context.Background(), "198.51.100.5", browserUA, &override)
	assert.False(t, d.Allowed)

	d = env.guard.CheckRequest(context.Background(), "198.51.100.5", browserUA, nil)
	assert.True(t, d.Allowed)
}

func TestNewDDoSGuard_RejectsInvalidLists(t *testing.T) {
	env := newTestEnv(t)
	cfg := DefaultDDoSConfig()
	cfg.Whitelist = []string{"10.0.0.0/33"}

	_, err := NewDDoSGuard(env.limiter, nil, cfg)
	assert.Error(t, err)
}
