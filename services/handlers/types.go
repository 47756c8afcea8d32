package handlers

import (
	"context"

	"github.com/lac-hong-legacy/lms_api/dto"
	"github.com/lac-hong-legacy/lms_api/model"
)

type AuditLogReader interface {
	List(ctx context.Context, query dto.AuditLogQuery) ([]model.SecurityAuditLog, int64, error)
}
