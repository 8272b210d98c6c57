package handlers

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/arbyte-inspect/inspection-engine/pkg/apperrors"
	"github.com/arbyte-inspect/inspection-engine/pkg/models"
	"github.com/arbyte-inspect/inspection-engine/pkg/repositories"
	"github.com/arbyte-inspect/inspection-engine/pkg/services"
)

// mockPipelineService is a configurable mock for pipeline handler tests.
type mockPipelineService struct {
	runOnceSummary services.TickSummary
	runOnceErr     error
	status         services.PipelineStatus
	runOnceCalls   int
}

var _ services.PipelineService = (*mockPipelineService)(nil)

func (m *mockPipelineService) RunScheduler(ctx context.Context, interval time.Duration) error {
	return nil
}

func (m *mockPipelineService) Stop() error { return nil }

func (m *mockPipelineService) RunOnce(ctx context.Context) (services.TickSummary, error) {
	m.runOnceCalls++
	return m.runOnceSummary, m.runOnceErr
}

func (m *mockPipelineService) Status() services.PipelineStatus {
	return m.status
}

// mockInspectionRepo serves a fixed set of inspections.
type mockInspectionRepo struct {
	inspections []*models.Inspection
	listErr     error
}

var _ repositories.InspectionRepository = (*mockInspectionRepo)(nil)

func (m *mockInspectionRepo) Create(ctx context.Context, insp *models.Inspection) error {
	m.inspections = append(m.inspections, insp)
	return nil
}

func (m *mockInspectionRepo) Get(ctx context.Context, id uuid.UUID) (*models.Inspection, error) {
	for _, insp := range m.inspections {
		if insp.ID == id {
			return insp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockInspectionRepo) GetByNaturalKey(ctx context.Context, cycleName, fuelElementID string, startedAt time.Time) (*models.Inspection, error) {
	return nil, apperrors.ErrNotFound
}

func (m *mockInspectionRepo) FindForPhoto(ctx context.Context, cycleName, fuelElementID string, capturedAt time.Time, window time.Duration) (*models.Inspection, error) {
	return nil, apperrors.ErrNotFound
}

func (m *mockInspectionRepo) List(ctx context.Context, limit, offset int) ([]*models.Inspection, error) {
	if m.listErr != nil {
		return nil, m.listErr
	}
	if offset >= len(m.inspections) {
		return nil, nil
	}
	out := m.inspections[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockInspectionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	return apperrors.ErrNotFound
}

// mockPhotoRepo serves a fixed set of photo records.
type mockPhotoRepo struct {
	photos []*models.InspectionPhoto
}

var _ repositories.InspectionPhotoRepository = (*mockPhotoRepo)(nil)

func (m *mockPhotoRepo) Create(ctx context.Context, photo *models.InspectionPhoto) error {
	m.photos = append(m.photos, photo)
	return nil
}

func (m *mockPhotoRepo) ExistsByPath(ctx context.Context, photoPath string) (bool, error) {
	for _, p := range m.photos {
		if p.PhotoPath == photoPath {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockPhotoRepo) ListByInspection(ctx context.Context, inspectionID uuid.UUID) ([]*models.InspectionPhoto, error) {
	var out []*models.InspectionPhoto
	for _, p := range m.photos {
		if p.InspectionID == inspectionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPhotoRepo) CountByInspection(ctx context.Context, inspectionID uuid.UUID) (int64, error) {
	photos, err := m.ListByInspection(ctx, inspectionID)
	if err != nil {
		return 0, err
	}
	return int64(len(photos)), nil
}

// mockAggregateService is a configurable mock for machine handler tests.
type mockAggregateService struct {
	agg    *models.MachineAggregate
	getErr error
}

var _ services.AggregateService = (*mockAggregateService)(nil)

func (m *mockAggregateService) ApplyInspection(ctx context.Context, insp *models.Inspection) error {
	return nil
}

func (m *mockAggregateService) Get(ctx context.Context) (*models.MachineAggregate, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	return m.agg, nil
}
