package audit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/autoescrow-backend/pkg/db/dbtest"
	"github.com/angelmondragon/autoescrow-backend/pkg/db/models"
	"github.com/angelmondragon/autoescrow-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/autoescrow-backend/pkg/errors"
	"github.com/angelmondragon/autoescrow-backend/pkg/pagination"
)

func newService(t *testing.T) *Service {
	t.Helper()
	db := dbtest.Open(t, &models.AuditEntry{})
	svc, err := NewService(NewRepository(db))
	require.NoError(t, err)
	return svc
}

func TestRecordAndComplianceHistory(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	userID := uuid.New()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, svc.Record(ctx, nil, Entry{
		EntityType: enums.AuditEntityUser, EntityID: userID, CheckType: enums.AuditCheckKYC,
		Result: enums.AuditResultPassed, RiskLevel: Ptr(enums.RiskLevelLow),
		Evidence: map[string]bool{"pep_screening": true}, At: base,
	}))
	require.NoError(t, svc.Record(ctx, nil, Entry{
		EntityType: enums.AuditEntityUser, EntityID: userID, CheckType: enums.AuditCheckSanctions,
		Result: enums.AuditResultFlagged, Evidence: map[string]string{"list": "ofac"}, At: base.Add(time.Minute),
	}))
	require.NoError(t, svc.Record(ctx, nil, Entry{
		EntityType: enums.AuditEntityUser, EntityID: userID, CheckType: enums.AuditCheckKYC,
		Result: enums.AuditResultFailed, RiskLevel: Ptr(enums.RiskLevelHigh),
		Evidence: map[string]bool{"pep_screening": false}, At: base.Add(time.Hour),
	}))

	history, err := svc.ComplianceHistory(ctx, userID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, enums.AuditResultPassed, history[0].Result)
	assert.Equal(t, enums.AuditResultFailed, history[1].Result)

	var evidence map[string]bool
	require.NoError(t, json.Unmarshal(history[1].Evidence, &evidence))
	assert.False(t, evidence["pep_screening"])

	level, err := svc.LastComplianceRiskLevel(ctx, userID)
	require.NoError(t, err)
	require.NotNil(t, level)
	assert.Equal(t, enums.RiskLevelHigh, *level)

	trail, err := svc.Trail(ctx, enums.AuditEntityUser, userID)
	require.NoError(t, err)
	assert.Len(t, trail, 3)
}

func TestLastComplianceRiskLevelWithoutHistory(t *testing.T) {
	svc := newService(t)
	level, err := svc.LastComplianceRiskLevel(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Nil(t, level)
}

func TestRecordRequiresEntity(t *testing.T) {
	svc := newService(t)
	err := svc.Record(context.Background(), nil, Entry{EntityType: enums.AuditEntityUser, CheckType: enums.AuditCheckKYC})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPageTrailWalksNewestFirst(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	txnID := uuid.New()
	base := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	checks := []enums.AuditCheckType{enums.AuditCheckFraudRisk, enums.AuditCheckAML, enums.AuditCheckFraudRisk}
	for i, check := range checks {
		require.NoError(t, svc.Record(ctx, nil, Entry{
			EntityType: enums.AuditEntityTransaction, EntityID: txnID, CheckType: check,
			Result: enums.AuditResultPassed, Evidence: map[string]int{"run": i}, At: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	first, err := svc.PageTrail(ctx, enums.AuditEntityTransaction, txnID, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first.Entries, 2)
	assert.True(t, first.Entries[0].CreatedAt.After(first.Entries[1].CreatedAt))
	assert.Equal(t, enums.AuditCheckAML, first.Entries[1].CheckType)
	require.NotEmpty(t, first.NextCursor)

	second, err := svc.PageTrail(ctx, enums.AuditEntityTransaction, txnID, pagination.Params{Limit: 2, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Entries, 1)
	assert.True(t, second.Entries[0].CreatedAt.Equal(base))
	assert.Empty(t, second.NextCursor)
}

func TestPageTrailRejectsBadCursor(t *testing.T) {
	svc := newService(t)
	_, err := svc.PageTrail(context.Background(), enums.AuditEntityTransaction, uuid.New(), pagination.Params{Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPageTrailEmpty(t *testing.T) {
	svc := newService(t)
	page, err := svc.PageTrail(context.Background(), enums.AuditEntityUser, uuid.New(), pagination.Params{})
	require.NoError(t, err)
	assert.NotNil(t, page.Entries)
	assert.Empty(t, page.Entries)
}
