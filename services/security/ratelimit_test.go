package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRateLimit_OTPScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := "user:42"

	for i := 1; i <= 3; i++ {
		res, err := env.limiter.CheckRateLimit(ctx, id, ActionOTP, nil)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i)
		assert.Equal(t, 3-i, res.Remaining)
		assert.Equal(t, i, res.TotalHits)
		env.clock.Advance(3 * time.Second)
	}

	res, err := env.limiter.CheckRateLimit(ctx, id, ActionOTP, nil)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, env.clock.Now().Add(time.Minute), res.ResetTime)
}

func TestCheckRateLimit_WindowSlides(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.limiter.CheckRateLimit(ctx, "ip:198.51.100.4", ActionOTP, nil)
		require.NoError(t, err)
	}
	res, err := env.limiter.CheckRateLimit(ctx, "ip:198.51.100.4", ActionOTP, nil)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	env.clock.Advance(time.Minute + time.Millisecond)

	res, err = env.limiter.CheckRateLimit(ctx, "ip:198.51.100.4", ActionOTP, nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.TotalHits)
}

func TestCheckRateLimit_KeysAreIndependent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.limiter.CheckRateLimit(ctx, "user:1", ActionOTP, nil)
		require.NoError(t, err)
	}

	res, err := env.limiter.CheckRateLimit(ctx, "user:2", ActionOTP, nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = env.limiter.CheckRateLimit(ctx, "user:1", ActionLogin, nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestCheckRateLimit_UnknownActionIsConfigurationError(t *testing.T) {
	env := newTestEnv(t)

	res, err := env.limiter.CheckRateLimit(context.Background(), "user:1", "teleport", nil)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, IsConfigurationError(err))
}

func TestCheckRateLimit_CustomConfig(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	custom := &RateLimitConfig{Window: 10 * time.Second, MaxRequests: 1}

	res, err := env.limiter.CheckRateLimit(ctx, "user:1", "export", custom)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = env.limiter.CheckRateLimit(ctx, "user:1", "export", custom)
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	_, err = env.limiter.CheckRateLimit(ctx, "user:1", "export", &RateLimitConfig{Window: time.Second})
	assert.True(t, IsConfigurationError(err))
}

func TestCheckRateLimit_FailsOpen(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetUnavailable(true)

	res, err := env.limiter.CheckRateLimit(context.Background(), "user:1", ActionLogin, nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 5, res.Remaining)
	assert.Equal(t, 0, res.TotalHits)
	assert.Len(t, env.sink.EntriesFor("counter_store_unavailable"), 1)
}

func TestCheckRateLimit_AuditsEveryOutage(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetUnavailable(true)
	ctx := context.Background()

	// the log line is throttled, the audit trail is not
	for i := 0; i < 3; i++ {
		_, err := env.limiter.CheckRateLimit(ctx, "user:1", ActionLogin, nil)
		require.NoError(t, err)
	}

	entries := env.sink.EntriesFor("counter_store_unavailable")
	require.Len(t, entries, 3)
	assert.Equal(t, "check_rate_limit", entries[2].Details["op"])
	assert.Equal(t, ActionLogin, entries[2].Details["action"])
}

func TestRecordSuccess_RefundsSkippedAction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.limiter.CheckRateLimit(ctx, "user:7", ActionLogin, nil)
		require.NoError(t, err)
	}
	require.NoError(t, env.limiter.RecordSuccess(ctx, "user:7", ActionLogin))

	status, err := env.limiter.GetRateLimitStatus(ctx, "user:7", ActionLogin)
	require.NoError(t, err)
	assert.Equal(t, 2, status.TotalHits)
	assert.Equal(t, 3, status.Remaining)
}

func TestRecordSuccess_KeepsCountedAction(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.limiter.CheckRateLimit(ctx, "user:7", ActionOTP, nil)
	require.NoError(t, err)
	require.NoError(t, env.limiter.RecordSuccess(ctx, "user:7", ActionOTP))

	status, err := env.limiter.GetRateLimitStatus(ctx, "user:7", ActionOTP)
	require.NoError(t, err)
	assert.Equal(t, 1, status.TotalHits)
}

func TestRecordFailure_TracksFailureSeries(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.limiter.CheckRateLimit(ctx, "user:9", ActionPayment, nil)
	require.NoError(t, err)
	require.NoError(t, env.limiter.RecordFailure(ctx, "user:9", ActionPayment))

	n, err := env.tracker.Count(ctx, "user:9", FieldPaymentFailures, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	status, err := env.limiter.GetRateLimitStatus(ctx, "user:9", ActionPayment)
	require.NoError(t, err)
	assert.Equal(t, 1, status.TotalHits)
}

func TestGetRateLimitStatus_DoesNotRecord(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		status, err := env.limiter.GetRateLimitStatus(ctx, "user:3", ActionOTP)
		require.NoError(t, err)
		assert.True(t, status.Allowed)
		assert.Equal(t, 0, status.TotalHits)
	}
}

func TestResetRateLimit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		_, err := env.limiter.CheckRateLimit(ctx, "user:5", ActionOTP, nil)
		require.NoError(t, err)
	}
	require.NoError(t, env.limiter.ResetRateLimit(ctx, "user:5", ActionOTP))

	res, err := env.limiter.CheckRateLimit(ctx, "user:5", ActionOTP, nil)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.TotalHits)
}

func TestSetConfig(t *testing.T) {
	env := newTestEnv(t)

	err := env.limiter.SetConfig(ActionOTP, RateLimitConfig{Window: time.Minute, MaxRequests: 0})
	assert.True(t, IsConfigurationError(err))

	require.NoError(t, env.limiter.SetConfig(ActionOTP, RateLimitConfig{Window: time.Minute, MaxRequests: 10}))
	cfg, ok := env.limiter.Config(ActionOTP)
	require.True(t, ok)
	assert.Equal(t, 10, cfg.MaxRequests)
}

func TestDefaultRateLimitConfigs(t *testing.T) {
	cfgs := DefaultRateLimitConfigs()

	assert.Equal(t, 15*time.Minute, cfgs[ActionLogin].Window)
	assert.Equal(t, 5, cfgs[ActionLogin].MaxRequests)
	assert.True(t, cfgs[ActionLogin].SkipSuccessfulRequests)
	assert.Equal(t, 3, cfgs[ActionRegistration].MaxRequests)
	assert.Equal(t, 100, cfgs[ActionAPI].MaxRequests)
	assert.Equal(t, 10, cfgs[ActionPayment].MaxRequests)
	assert.Equal(t, 3, cfgs[ActionOTP].MaxRequests)
	assert.Equal(t, 5, cfgs[ActionPasswordReset].MaxRequests)
}

func TestBlockIdentifier(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.limiter.BlockIdentifier(ctx, "ip:203.0.113.9", 30*time.Minute, "manual"))

	status := env.limiter.IsBlocked(ctx, "ip:203.0.113.9")
	assert.True(t, status.Blocked)
	assert.Equal(t, "manual", status.Reason)
	require.NotNil(t, status.ExpiresAt)
	assert.Equal(t, env.clock.Now().Add(30*time.Minute), *status.ExpiresAt)
	assert.Len(t, env.sink.EntriesFor("identifier_blocked"), 1)

	require.NoError(t, env.limiter.UnblockIdentifier(ctx, "ip:203.0.113.9"))
	assert.False(t, env.limiter.IsBlocked(ctx, "ip:203.0.113.9").Blocked)
}

func TestBlockIdentifier_Expires(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.limiter.BlockIdentifier(ctx, "user:11", time.Minute, "cooldown"))
	env.clock.Advance(time.Minute)

	assert.False(t, env.limiter.IsBlocked(ctx, "user:11").Blocked)
}

func TestIsBlocked_FailsOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.limiter.BlockIdentifier(ctx, "user:12", time.Hour, "manual"))
	env.store.SetUnavailable(true)

	assert.False(t, env.limiter.IsBlocked(ctx, "user:12").Blocked)
}
