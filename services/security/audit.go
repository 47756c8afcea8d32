package security

import (
	"context"
	"sync"
	"time"

	"github.com/lac-hong-legacy/lms_api/model"
)

type AuditEntry struct {
	Action     string
	Identifier string
	Severity   model.Severity
	IP         string
	UserAgent  string
	Success    bool
	Details    map[string]any
	Timestamp  time.Time
}

// AuditSink persists security events. Components never fail because of it.
type AuditSink interface {
	LogActivity(ctx context.Context, entry AuditEntry) error
	LogSecurityEvent(ctx context.Context, action string, severity model.Severity, details map[string]any, identifier string) error
}

// AuditPurger is implemented by sinks that support retention-based cleanup.
type AuditPurger interface {
	PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type NopAuditSink struct{}

func (NopAuditSink) LogActivity(context.Context, AuditEntry) error { return nil }

func (NopAuditSink) LogSecurityEvent(context.Context, string, model.Severity, map[string]any, string) error {
	return nil
}

// MemoryAuditSink keeps entries in process memory.
type MemoryAuditSink struct {
	mu      sync.Mutex
	entries []AuditEntry
	now     func() time.Time
}

func NewMemoryAuditSink(now func() time.Time) *MemoryAuditSink {
	if now == nil {
		now = time.Now
	}
	return &MemoryAuditSink{now: now}
}

func (s *MemoryAuditSink) LogActivity(_ context.Context, entry AuditEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = s.now()
	}
	s.mu.Lock()
	s.entries = append(s.entries, entry)
	s.mu.Unlock()
	return nil
}

func (s *MemoryAuditSink) LogSecurityEvent(ctx context.Context, action string, severity model.Severity, details map[string]any, identifier string) error {
	return s.LogActivity(ctx, AuditEntry{
		Action:     action,
		Identifier: identifier,
		Severity:   severity,
		Success:    true,
		Details:    details,
	})
}

func (s *MemoryAuditSink) PurgeBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.entries[:0]
	var purged int64
	for _, e := range s.entries {
		if e.Timestamp.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return purged, nil
}

func (s *MemoryAuditSink) Entries() []AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]AuditEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

// EntriesFor returns the entries recorded for one action.
func (s *MemoryAuditSink) EntriesFor(action string) []AuditEntry {
	var out []AuditEntry
	for _, e := range s.Entries() {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
