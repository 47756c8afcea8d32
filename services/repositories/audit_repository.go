package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/services/security"
	"github.com/lac-hong-legacy/lms_api/shared"
	"gorm.io/gorm"
)

// AuditRepository is the Postgres-backed security audit trail.
type AuditRepository struct {
	BaseRepository
	now func() time.Time
}

func NewAuditRepository(db *gorm.DB) *AuditRepository {
	return &AuditRepository{
		BaseRepository: NewBaseRepository(db),
		now:            time.Now,
	}
}

func (r *AuditRepository) LogActivity(ctx context.Context, entry security.AuditEntry) error {
	row := toAuditLog(entry, r.now())
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return r.HandleError(err)
	}
	return nil
}

func (r *AuditRepository) LogSecurityEvent(ctx context.Context, action string, severity model.Severity, details map[string]any, identifier string) error {
	entry := security.AuditEntry{
		Action:     action,
		Identifier: identifier,
		Severity:   severity,
		Success:    true,
		Details:    details,
	}
	if ip, ok := shared.IdentifierIP(identifier); ok {
		entry.IP = ip
	}
	return r.LogActivity(ctx, entry)
}

// PurgeBefore deletes entries created before cutoff.
func (r *AuditRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&model.SecurityAuditLog{})
	if result.Error != nil {
		return 0, r.HandleError(result.Error)
	}
	return result.RowsAffected, nil
}

func (r *AuditRepository) List(ctx context.Context, query dto.AuditLogQuery) ([]model.SecurityAuditLog, int64, error) {
	page := query.PaginationRequest.Normalize()

	var total int64
	if err := r.filtered(r.db.WithContext(ctx), query).Model(&model.SecurityAuditLog{}).Count(&total).Error; err != nil {
		return nil, 0, r.HandleError(err)
	}

	var logs []model.SecurityAuditLog
	err := r.page(r.filtered(r.db.WithContext(ctx), query), page).Find(&logs).Error
	if err != nil {
		return nil, 0, r.HandleError(err)
	}
	return logs, total, nil
}

func (r *AuditRepository) filtered(tx *gorm.DB, query dto.AuditLogQuery) *gorm.DB {
	if query.Identifier != "" {
		tx = tx.Where("identifier = ?", query.Identifier)
	}
	if query.Action != "" {
		tx = tx.Where("action = ?", query.Action)
	}
	if query.Severity != "" {
		tx = tx.Where("severity = ?", query.Severity)
	}
	return tx
}

func (r *AuditRepository) page(tx *gorm.DB, page dto.PaginationRequest) *gorm.DB {
	return tx.Order("created_at DESC").Limit(page.Limit).Offset((page.Page - 1) * page.Limit)
}

var newTimeOrderedID = uuid.NewV7

// auditLogID prefers time-ordered ids and falls back to a random one.
func auditLogID() string {
	id, err := newTimeOrderedID()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func toAuditLog(entry security.AuditEntry, now time.Time) model.SecurityAuditLog {
	createdAt := entry.Timestamp
	if createdAt.IsZero() {
		createdAt = now
	}
	severity := entry.Severity
	if severity == "" {
		severity = model.SeverityLow
	}

	var details string
	if len(entry.Details) > 0 {
		details, _ = shared.JSON.MarshalToString(entry.Details)
	}

	return model.SecurityAuditLog{
		ID:         auditLogID(),
		Action:     entry.Action,
		Identifier: entry.Identifier,
		Severity:   string(severity),
		IP:         entry.IP,
		UserAgent:  entry.UserAgent,
		Success:    entry.Success,
		Details:    details,
		CreatedAt:  createdAt.UTC(),
	}
}
