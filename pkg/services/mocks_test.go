package services

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbyte-inspect/inspection-engine/pkg/apperrors"
	"github.com/arbyte-inspect/inspection-engine/pkg/models"
	"github.com/arbyte-inspect/inspection-engine/pkg/repositories"
)

// mockSnapshotRepo is an in-memory SnapshotRepository. When listGate is set,
// ListUnprocessed signals listEntered and then blocks until listGate closes,
// which lets tests hold a pipeline tick mid-flight.
type mockSnapshotRepo struct {
	mu          sync.Mutex
	rows        []*models.RawSnapshot
	nextID      int64
	insertErr   error
	listErr     error
	markErr     error
	listGate    chan struct{}
	listEntered chan struct{}
}

var _ repositories.SnapshotRepository = (*mockSnapshotRepo)(nil)

func newMockSnapshotRepo() *mockSnapshotRepo {
	return &mockSnapshotRepo{nextID: 1}
}

func (m *mockSnapshotRepo) Insert(ctx context.Context, capturedAt time.Time, payload []byte, contentHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.insertErr != nil {
		return false, m.insertErr
	}
	for _, row := range m.rows {
		if row.ContentHash == contentHash {
			return false, nil
		}
	}

	var p models.Payload
	_ = json.Unmarshal(payload, &p)

	m.rows = append(m.rows, &models.RawSnapshot{
		ID:          m.nextID,
		CapturedAt:  capturedAt,
		Payload:     p,
		ContentHash: contentHash,
		CreatedAt:   time.Now(),
	})
	m.nextID++
	return true, nil
}

func (m *mockSnapshotRepo) ListUnprocessed(ctx context.Context, limit int) ([]*models.RawSnapshot, error) {
	if m.listGate != nil {
		if m.listEntered != nil {
			m.listEntered <- struct{}{}
		}
		<-m.listGate
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	var out []*models.RawSnapshot
	for _, row := range m.rows {
		if !row.Processed {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CapturedAt.Equal(out[j].CapturedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CapturedAt.Before(out[j].CapturedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockSnapshotRepo) MarkProcessed(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.markErr != nil {
		return m.markErr
	}
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for _, row := range m.rows {
		if set[row.ID] {
			row.Processed = true
		}
	}
	return nil
}

func (m *mockSnapshotRepo) unprocessedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, row := range m.rows {
		if !row.Processed {
			n++
		}
	}
	return n
}

// mockInspectionRepo is an in-memory InspectionRepository keyed the same way
// the real one is: normalized natural key.
type mockInspectionRepo struct {
	mu          sync.Mutex
	inspections []*models.Inspection
	createErr   error
	getErr      error
}

var _ repositories.InspectionRepository = (*mockInspectionRepo)(nil)

func newMockInspectionRepo() *mockInspectionRepo {
	return &mockInspectionRepo{}
}

func (m *mockInspectionRepo) Create(ctx context.Context, insp *models.Inspection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	if insp.ID == uuid.Nil {
		insp.ID = uuid.New()
	}
	insp.CreatedAt = time.Now()
	insp.UpdatedAt = insp.CreatedAt
	m.inspections = append(m.inspections, insp)
	return nil
}

func (m *mockInspectionRepo) Get(ctx context.Context, id uuid.UUID) (*models.Inspection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, insp := range m.inspections {
		if insp.ID == id {
			return insp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockInspectionRepo) GetByNaturalKey(ctx context.Context, cycleName, fuelElementID string, startedAt time.Time) (*models.Inspection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	for _, insp := range m.inspections {
		if models.KeysEqual(insp.CycleName, cycleName) &&
			models.KeysEqual(insp.FuelElementID, fuelElementID) &&
			insp.CycleStartedAt.Equal(startedAt) {
			return insp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockInspectionRepo) FindForPhoto(ctx context.Context, cycleName, fuelElementID string, capturedAt time.Time, window time.Duration) (*models.Inspection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	deadline := capturedAt.Add(window)
	var best *models.Inspection
	for _, insp := range m.inspections {
		if !models.KeysEqual(insp.CycleName, cycleName) ||
			!models.KeysEqual(insp.FuelElementID, fuelElementID) {
			continue
		}
		if insp.CycleStartedAt.After(deadline) {
			continue
		}
		if best == nil || insp.CycleStartedAt.After(best.CycleStartedAt) {
			best = insp
		}
	}
	if best == nil {
		return nil, apperrors.ErrNotFound
	}
	return best, nil
}

func (m *mockInspectionRepo) List(ctx context.Context, limit, offset int) ([]*models.Inspection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*models.Inspection, len(m.inspections))
	copy(out, m.inspections)
	sort.Slice(out, func(i, j int) bool {
		return out[i].CycleStartedAt.After(out[j].CycleStartedAt)
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockInspectionRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i, insp := range m.inspections {
		if insp.ID == id {
			m.inspections = append(m.inspections[:i], m.inspections[i+1:]...)
			return nil
		}
	}
	return apperrors.ErrNotFound
}

// mockPhotoRepo is an in-memory InspectionPhotoRepository deduplicating on
// photo path like the real unique constraint does.
type mockPhotoRepo struct {
	mu        sync.Mutex
	photos    []*models.InspectionPhoto
	createErr error
	existsErr error
}

var _ repositories.InspectionPhotoRepository = (*mockPhotoRepo)(nil)

func newMockPhotoRepo() *mockPhotoRepo {
	return &mockPhotoRepo{}
}

func (m *mockPhotoRepo) Create(ctx context.Context, photo *models.InspectionPhoto) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.createErr != nil {
		return m.createErr
	}
	for _, p := range m.photos {
		if p.PhotoPath == photo.PhotoPath {
			return nil // ON CONFLICT DO NOTHING
		}
	}
	if photo.ID == uuid.Nil {
		photo.ID = uuid.New()
	}
	photo.CreatedAt = time.Now()
	m.photos = append(m.photos, photo)
	return nil
}

func (m *mockPhotoRepo) ExistsByPath(ctx context.Context, photoPath string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.existsErr != nil {
		return false, m.existsErr
	}
	for _, p := range m.photos {
		if p.PhotoPath == photoPath {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockPhotoRepo) ListByInspection(ctx context.Context, inspectionID uuid.UUID) ([]*models.InspectionPhoto, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*models.InspectionPhoto
	for _, p := range m.photos {
		if p.InspectionID == inspectionID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *mockPhotoRepo) CountByInspection(ctx context.Context, inspectionID uuid.UUID) (int64, error) {
	photos, _ := m.ListByInspection(ctx, inspectionID)
	return int64(len(photos)), nil
}

// mockAggregateRepo is an in-memory MachineAggregateRepository.
type mockAggregateRepo struct {
	mu        sync.Mutex
	aggs      map[string]*models.MachineAggregate
	getErr    error
	upsertErr error
}

var _ repositories.MachineAggregateRepository = (*mockAggregateRepo)(nil)

func newMockAggregateRepo() *mockAggregateRepo {
	return &mockAggregateRepo{aggs: make(map[string]*models.MachineAggregate)}
}

func (m *mockAggregateRepo) Get(ctx context.Context, stationID string) (*models.MachineAggregate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	agg, ok := m.aggs[stationID]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *agg
	return &copied, nil
}

func (m *mockAggregateRepo) Upsert(ctx context.Context, agg *models.MachineAggregate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.upsertErr != nil {
		return m.upsertErr
	}
	copied := *agg
	m.aggs[agg.StationID] = &copied
	return nil
}

// mockTxRunner executes the transaction function directly. txErr simulates a
// commit failure after the function ran.
type mockTxRunner struct {
	mu    sync.Mutex
	calls int
	txErr error
}

var _ TxRunner = (*mockTxRunner)(nil)

func (m *mockTxRunner) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		return err
	}
	return m.txErr
}
