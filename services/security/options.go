package security

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

type Option func(*options)

type options struct {
	now      func() time.Time
	logger   zerolog.Logger
	recorder Recorder
	tracker  *ActivityTracker
	archive  ForensicsArchive
	alerts   []AlertPublisher
	location LocationResolver
}

func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithRecorder(recorder Recorder) Option {
	return func(o *options) {
		if recorder != nil {
			o.recorder = recorder
		}
	}
}

// WithActivityTracker feeds rate-limit attempts and failures into the activity series.
func WithActivityTracker(tracker *ActivityTracker) Option {
	return func(o *options) {
		o.tracker = tracker
	}
}

func WithForensicsArchive(archive ForensicsArchive) Option {
	return func(o *options) {
		o.archive = archive
	}
}

// WithAlertPublisher adds a publisher; each raised alert goes to every publisher in order.
func WithAlertPublisher(publisher AlertPublisher) Option {
	return func(o *options) {
		if publisher != nil {
			o.alerts = append(o.alerts, publisher)
		}
	}
}

func WithLocationResolver(resolver LocationResolver) Option {
	return func(o *options) {
		o.location = resolver
	}
}

func buildOptions(component string, opts []Option) options {
	o := options{
		now:      time.Now,
		logger:   log.Logger,
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	o.logger = o.logger.With().Str("component", component).Logger()
	return o
}

// outageLog throttles store-outage logging so a dead store does not flood the logs.
func outageLog() *rate.Sometimes {
	return &rate.Sometimes{First: 1, Interval: 30 * time.Second}
}
