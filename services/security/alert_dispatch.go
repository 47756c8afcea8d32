package security

import (
	"context"
	"sync"
	"time"

	"github.com/lac-hong-legacy/lms_api/model"
)

const (
	alertQueueSize      = 256
	alertPublishTimeout = 5 * time.Second
)

// alertDispatcher hands raised alerts to the publishers on a single background
// worker. A full queue drops the alert; the alert itself is already stored.
type alertDispatcher struct {
	publishers []AlertPublisher
	queue      chan model.SecurityAlert
	opts       options

	mu      sync.RWMutex
	closed  bool
	pending sync.WaitGroup
	done    chan struct{}
}

func newAlertDispatcher(publishers []AlertPublisher, opts options) *alertDispatcher {
	d := &alertDispatcher{
		publishers: publishers,
		queue:      make(chan model.SecurityAlert, alertQueueSize),
		opts:       opts,
		done:       make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *alertDispatcher) dispatch(alert model.SecurityAlert) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	d.pending.Add(1)
	select {
	case d.queue <- alert:
	default:
		d.pending.Done()
		d.opts.logger.Warn().Str("alert_id", alert.ID).Msg("Alert queue full, dropping publish")
	}
}

func (d *alertDispatcher) run() {
	defer close(d.done)
	for alert := range d.queue {
		for _, publisher := range d.publishers {
			ctx, cancel := context.WithTimeout(context.Background(), alertPublishTimeout)
			if err := publisher.PublishAlert(ctx, alert); err != nil {
				d.opts.logger.Warn().Err(err).Str("alert_id", alert.ID).Msg("Failed to publish security alert")
			}
			cancel()
		}
		d.pending.Done()
	}
}

// flush waits until every queued alert has been handed to the publishers.
func (d *alertDispatcher) flush() {
	d.pending.Wait()
}

// close drains the queue and stops the worker.
func (d *alertDispatcher) close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()
	<-d.done
}
