package security

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Metric fields usable in alert rule conditions.
const (
	FieldLoginAttempts        = "login_attempts"
	FieldLoginFailures        = "login_failures"
	FieldPaymentFailures      = "payment_failures"
	FieldAPIRequests          = "api_requests"
	FieldRequestsPerMinute    = "requests_per_minute"
	FieldCourseViews          = "course_views"
	FieldProfileViews         = "user_profiles_viewed"
	FieldUserLookups          = "user_lookup_attempts"
	FieldOTPRequests          = "otp_requests"
	FieldRegistrationAttempts = "registration_attempts"
)

// fieldSeries maps every known field to the series that stores it.
var fieldSeries = map[string]string{
	FieldLoginAttempts:        FieldLoginAttempts,
	FieldLoginFailures:        FieldLoginFailures,
	FieldPaymentFailures:      FieldPaymentFailures,
	FieldAPIRequests:          FieldAPIRequests,
	FieldRequestsPerMinute:    FieldAPIRequests,
	FieldCourseViews:          FieldCourseViews,
	FieldProfileViews:         FieldProfileViews,
	FieldUserLookups:          FieldUserLookups,
	FieldOTPRequests:          FieldOTPRequests,
	FieldRegistrationAttempts: FieldRegistrationAttempts,
}

var attemptSeries = map[string]string{
	ActionLogin:        FieldLoginAttempts,
	ActionAPI:          FieldAPIRequests,
	ActionOTP:          FieldOTPRequests,
	ActionRegistration: FieldRegistrationAttempts,
}

var failureSeries = map[string]string{
	ActionLogin:   FieldLoginFailures,
	ActionPayment: FieldPaymentFailures,
}

func KnownField(field string) bool {
	_, ok := fieldSeries[field]
	return ok
}

func KnownFields() []string {
	out := make([]string, 0, len(fieldSeries))
	for f := range fieldSeries {
		out = append(out, f)
	}
	return out
}

// DefaultActivityRetention covers the longest built-in rule window.
const DefaultActivityRetention = time.Hour

// ActivityTracker keeps per-identifier event series the rule engine counts over.
// Unlike rate-limit windows they are never refunded, and they are retained
// for the longest rule window rather than the limiter window.
type ActivityTracker struct {
	store     CounterStore
	retention time.Duration
	opts      options
	failLog   *rate.Sometimes
}

func NewActivityTracker(store CounterStore, retention time.Duration, opts ...Option) *ActivityTracker {
	if retention <= 0 {
		retention = DefaultActivityRetention
	}
	return &ActivityTracker{
		store:     store,
		retention: retention,
		opts:      buildOptions("activity_tracker", opts),
		failLog:   outageLog(),
	}
}

func (t *ActivityTracker) Retention() time.Duration {
	return t.retention
}

// Track records one event of field for identifier.
func (t *ActivityTracker) Track(ctx context.Context, identifier, field string) error {
	series, ok := fieldSeries[field]
	if !ok {
		return fmt.Errorf("unknown activity field %q", field)
	}
	now := t.opts.now()
	_, err := t.store.RecordHit(ctx, WindowHit{
		Key:    activitySeriesKey(series, identifier),
		Member: newToken(now),
		Now:    now,
		Window: t.retention,
	})
	if err != nil {
		t.opts.recorder.StoreFailure("activity_tracker")
		t.failLog.Do(func() {
			t.opts.logger.Error().Err(err).Str("field", field).Msg("Failed to track activity")
		})
	}
	return err
}

func (t *ActivityTracker) TrackAction(ctx context.Context, identifier, action string) {
	if field, ok := attemptSeries[action]; ok {
		_ = t.Track(ctx, identifier, field)
	}
}

func (t *ActivityTracker) TrackFailure(ctx context.Context, identifier, action string) {
	if field, ok := failureSeries[action]; ok {
		_ = t.Track(ctx, identifier, field)
	}
}

// Count returns the events of field recorded for identifier within window.
func (t *ActivityTracker) Count(ctx context.Context, identifier, field string, window time.Duration) (int64, error) {
	series, ok := fieldSeries[field]
	if !ok {
		return 0, fmt.Errorf("unknown activity field %q", field)
	}
	return t.store.ZCount(ctx, activitySeriesKey(series, identifier), windowFloor(t.opts.now(), window), posInf)
}
