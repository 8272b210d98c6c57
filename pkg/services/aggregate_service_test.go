package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arbyte-inspect/inspection-engine/pkg/models"
)

func TestAggregateService_FirstInspectionCreatesRow(t *testing.T) {
	repo := newMockAggregateRepo()
	svc := NewAggregateService("MAQ-001", repo, zap.NewNop())

	err := svc.ApplyInspection(context.Background(), &models.Inspection{DefectFound: false})
	require.NoError(t, err)

	agg, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "MAQ-001", agg.StationID)
	assert.Equal(t, int64(1), agg.TotalInspections)
	assert.Equal(t, int64(1), agg.InspectionsToday)
	assert.Zero(t, agg.TotalDefects)
	assert.InDelta(t, 100.0, agg.SuccessRate, 0.001)
	assert.NotNil(t, agg.LastInspectionAt)
}

func TestAggregateService_DefectLowersSuccessRate(t *testing.T) {
	repo := newMockAggregateRepo()
	svc := NewAggregateService("MAQ-001", repo, zap.NewNop())

	require.NoError(t, svc.ApplyInspection(context.Background(), &models.Inspection{DefectFound: false}))
	require.NoError(t, svc.ApplyInspection(context.Background(), &models.Inspection{DefectFound: true}))
	require.NoError(t, svc.ApplyInspection(context.Background(), &models.Inspection{DefectFound: false}))
	require.NoError(t, svc.ApplyInspection(context.Background(), &models.Inspection{DefectFound: false}))

	agg, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), agg.TotalInspections)
	assert.Equal(t, int64(1), agg.TotalDefects)
	assert.InDelta(t, 75.0, agg.SuccessRate, 0.001)
}

func TestAggregateService_DayRolloverResetsTodayCounter(t *testing.T) {
	repo := newMockAggregateRepo()
	svc := NewAggregateService("MAQ-001", repo, zap.NewNop()).(*aggregateService)

	day1 := time.Date(2025, 12, 4, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return day1 }
	require.NoError(t, svc.ApplyInspection(context.Background(), &models.Inspection{}))
	require.NoError(t, svc.ApplyInspection(context.Background(), &models.Inspection{}))

	svc.now = func() time.Time { return day1.Add(24 * time.Hour) }
	require.NoError(t, svc.ApplyInspection(context.Background(), &models.Inspection{}))

	agg, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(3), agg.TotalInspections, "the lifetime counter never resets")
	assert.Equal(t, int64(1), agg.InspectionsToday, "the daily counter resets on rollover")
}
