package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/arbyte-inspect/inspection-engine/pkg/database"
	"github.com/arbyte-inspect/inspection-engine/pkg/models"
)

// SnapshotRepository defines data access for raw PLC snapshots.
type SnapshotRepository interface {
	// Insert persists one raw line keyed by its content hash. Returns
	// false without error when a row with the same hash already exists.
	Insert(ctx context.Context, capturedAt time.Time, payload []byte, contentHash string) (bool, error)

	// ListUnprocessed returns up to limit unprocessed rows ordered by
	// capture time (id as tiebreaker for rows captured in the same instant).
	ListUnprocessed(ctx context.Context, limit int) ([]*models.RawSnapshot, error)

	// MarkProcessed flips the processed flag on the given rows.
	MarkProcessed(ctx context.Context, ids []int64) error
}

type snapshotRepository struct {
	db *database.DB
}

// NewSnapshotRepository creates a new snapshot repository.
func NewSnapshotRepository(db *database.DB) SnapshotRepository {
	return &snapshotRepository{db: db}
}

func (r *snapshotRepository) Insert(ctx context.Context, capturedAt time.Time, payload []byte, contentHash string) (bool, error) {
	q := database.QuerierFrom(ctx, r.db.Pool)

	query := `
		INSERT INTO plc_snapshots (captured_at, payload, content_hash, processed, created_at)
		VALUES ($1, $2, $3, false, now())
		ON CONFLICT (content_hash) DO NOTHING`

	tag, err := q.Exec(ctx, query, capturedAt, payload, contentHash)
	if err != nil {
		return false, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

func (r *snapshotRepository) ListUnprocessed(ctx context.Context, limit int) ([]*models.RawSnapshot, error) {
	q := database.QuerierFrom(ctx, r.db.Pool)

	query := `
		SELECT id, captured_at, payload, content_hash, processed, created_at
		FROM plc_snapshots
		WHERE processed = false
		ORDER BY captured_at, id
		LIMIT $1`

	rows, err := q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.RawSnapshot
	for rows.Next() {
		var snap models.RawSnapshot
		var payload []byte

		if err := rows.Scan(&snap.ID, &snap.CapturedAt, &payload, &snap.ContentHash, &snap.Processed, &snap.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if err := json.Unmarshal(payload, &snap.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal snapshot %d payload: %w", snap.ID, err)
		}
		snapshots = append(snapshots, &snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate snapshots: %w", err)
	}

	return snapshots, nil
}

func (r *snapshotRepository) MarkProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	q := database.QuerierFrom(ctx, r.db.Pool)

	query := `UPDATE plc_snapshots SET processed = true WHERE id = ANY($1)`
	if _, err := q.Exec(ctx, query, ids); err != nil {
		return fmt.Errorf("failed to mark snapshots processed: %w", err)
	}
	return nil
}

// Ensure snapshotRepository implements SnapshotRepository at compile time.
var _ SnapshotRepository = (*snapshotRepository)(nil)
