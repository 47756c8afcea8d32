package security

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/rs/zerolog"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testEnv struct {
	clock   *fakeClock
	store   *MemoryStore
	sink    *MemoryAuditSink
	tracker *ActivityTracker
	limiter *RateLimiter
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	clock := newFakeClock()
	store := NewMemoryStore(clock.Now)
	sink := NewMemoryAuditSink(clock.Now)
	opts := testOptions(clock)
	tracker := NewActivityTracker(store, 2*time.Hour, opts...)
	limiter := NewRateLimiter(store, sink, append(opts, WithActivityTracker(tracker))...)
	return &testEnv{clock: clock, store: store, sink: sink, tracker: tracker, limiter: limiter}
}

func testOptions(clock *fakeClock) []Option {
	return []Option{WithClock(clock.Now), WithLogger(zerolog.Nop())}
}

type recordingReporter struct {
	mu         sync.Mutex
	activities []model.SuspiciousActivity
}

func (r *recordingReporter) ReportSuspiciousActivity(_ context.Context, activity model.SuspiciousActivity) error {
	r.mu.Lock()
	r.activities = append(r.activities, activity)
	r.mu.Unlock()
	return nil
}

func (r *recordingReporter) Activities() []model.SuspiciousActivity {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.SuspiciousActivity(nil), r.activities...)
}

type recordingPublisher struct {
	mu     sync.Mutex
	alerts []model.SecurityAlert
}

func (p *recordingPublisher) PublishAlert(_ context.Context, alert model.SecurityAlert) error {
	p.mu.Lock()
	p.alerts = append(p.alerts, alert)
	p.mu.Unlock()
	return nil
}

type recordingArchive struct {
	mu       sync.Mutex
	patterns []model.AttackPattern
}

func (a *recordingArchive) ArchiveAttackPattern(_ context.Context, pattern model.AttackPattern) error {
	a.mu.Lock()
	a.patterns = append(a.patterns, pattern)
	a.mu.Unlock()
	return nil
}

type staticLocation string

func (s staticLocation) GetLocationByIP(string) (string, error) {
	return string(s), nil
}

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
