// Package audit records immutable evidence for every compliance, risk and
// reconciliation check.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/autoescrow-backend/pkg/errors"
	"github.com/angelmondragon/autoescrow-backend/pkg/pagination"
)

// Entry is the input for one audit record.
type Entry struct {
	EntityType enums.AuditEntityType
	EntityID   uuid.UUID
	CheckType  enums.AuditCheckType
	Result     enums.AuditResult
	RiskLevel  *enums.RiskLevel
	Evidence   any
	At         time.Time
}

// Recorder appends audit entries. Checks call it inside their own unit of
// work when one exists; a nil tx writes directly.
type Recorder interface {
	Record(ctx context.Context, tx *gorm.DB, entry Entry) error
}

// Service implements Recorder and the operator read paths.
type Service struct {
	repo Repository
}

// NewService wires the audit service.
func NewService(repo Repository) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &Service{repo: repo}, nil
}

func (s *Service) Record(ctx context.Context, tx *gorm.DB, entry Entry) error {
	if entry.EntityID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "audit entity id is required")
	}
	evidence, err := json.Marshal(entry.Evidence)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal audit evidence")
	}
	row := &models.AuditEntry{
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		CheckType:  entry.CheckType,
		Result:     entry.Result,
		RiskLevel:  entry.RiskLevel,
		Evidence:   evidence,
		CreatedAt:  entry.At,
	}
	if err := s.repo.WithTx(tx).Append(ctx, row); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append audit entry")
	}
	return nil
}

// ComplianceHistory lists every KYC run for the user, oldest first.
func (s *Service) ComplianceHistory(ctx context.Context, userID uuid.UUID) ([]models.AuditEntry, error) {
	entries, err := s.repo.List(ctx, enums.AuditEntityUser, userID, enums.AuditCheckKYC)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list compliance history")
	}
	return entries, nil
}

// LastComplianceRiskLevel returns the risk level stored by the latest KYC
// run, or nil when the user was never screened.
func (s *Service) LastComplianceRiskLevel(ctx context.Context, userID uuid.UUID) (*enums.RiskLevel, error) {
	entry, err := s.repo.Latest(ctx, enums.AuditEntityUser, userID, enums.AuditCheckKYC)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load compliance risk level")
	}
	if entry == nil {
		return nil, nil
	}
	return entry.RiskLevel, nil
}

// Trail lists every entry recorded against an entity.
func (s *Service) Trail(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID) ([]models.AuditEntry, error) {
	entries, err := s.repo.List(ctx, entityType, entityID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list audit trail")
	}
	return entries, nil
}

// TrailPage is one newest-first slice of an entity's audit trail.
type TrailPage struct {
	Entries    []models.AuditEntry `json:"entries"`
	NextCursor string              `json:"next_cursor,omitempty"`
}

// PageTrail lists an entity's entries newest first using cursor pagination.
func (s *Service) PageTrail(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, params pagination.Params) (*TrailPage, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.Page(ctx, entityType, entityID, pagination.LimitWithBuffer(limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "page audit trail")
	}

	page := &TrailPage{Entries: rows}
	if len(rows) > limit {
		last := rows[limit-1]
		page.Entries = rows[:limit]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	if page.Entries == nil {
		page.Entries = []models.AuditEntry{}
	}
	return page, nil
}

// Ptr is shorthand for optional risk levels.
func Ptr(level enums.RiskLevel) *enums.RiskLevel {
	return &level
}

// Latest returns the newest entry of one check type, or nil when none exists.
func (s *Service) Latest(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID, check enums.AuditCheckType) (*models.AuditEntry, error) {
	entry, err := s.repo.Latest(ctx, entityType, entityID, check)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load latest audit entry")
	}
	return entry, nil
}
