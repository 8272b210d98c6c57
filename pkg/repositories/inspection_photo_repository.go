package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/arbyte-inspect/inspection-engine/pkg/database"
	"github.com/arbyte-inspect/inspection-engine/pkg/models"
)

// InspectionPhotoRepository defines data access for inspection photo links.
type InspectionPhotoRepository interface {
	Create(ctx context.Context, photo *models.InspectionPhoto) error

	// ExistsByPath reports whether a photo record for the given durable
	// path already exists. This is the restart-safe replacement for any
	// in-memory processed-filename set.
	ExistsByPath(ctx context.Context, photoPath string) (bool, error)

	ListByInspection(ctx context.Context, inspectionID uuid.UUID) ([]*models.InspectionPhoto, error)
	CountByInspection(ctx context.Context, inspectionID uuid.UUID) (int64, error)
}

type inspectionPhotoRepository struct {
	db *database.DB
}

// NewInspectionPhotoRepository creates a new inspection photo repository.
func NewInspectionPhotoRepository(db *database.DB) InspectionPhotoRepository {
	return &inspectionPhotoRepository{db: db}
}

func (r *inspectionPhotoRepository) Create(ctx context.Context, photo *models.InspectionPhoto) error {
	q := database.QuerierFrom(ctx, r.db.Pool)

	if photo.ID == uuid.Nil {
		photo.ID = uuid.New()
	}
	photo.CreatedAt = time.Now()

	query := `
		INSERT INTO inspection_photos (id, inspection_id, photo_path, caption, defect_found, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (photo_path) DO NOTHING`

	_, err := q.Exec(ctx, query,
		photo.ID,
		photo.InspectionID,
		photo.PhotoPath,
		photo.Caption,
		photo.DefectFound,
		photo.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create inspection photo: %w", err)
	}
	return nil
}

func (r *inspectionPhotoRepository) ExistsByPath(ctx context.Context, photoPath string) (bool, error) {
	q := database.QuerierFrom(ctx, r.db.Pool)

	var exists bool
	err := q.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM inspection_photos WHERE photo_path = $1)`,
		photoPath,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check photo existence: %w", err)
	}
	return exists, nil
}

func (r *inspectionPhotoRepository) ListByInspection(ctx context.Context, inspectionID uuid.UUID) ([]*models.InspectionPhoto, error) {
	q := database.QuerierFrom(ctx, r.db.Pool)

	query := `
		SELECT id, inspection_id, photo_path, caption, defect_found, created_at
		FROM inspection_photos
		WHERE inspection_id = $1
		ORDER BY photo_path`

	rows, err := q.Query(ctx, query, inspectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list inspection photos: %w", err)
	}
	defer rows.Close()

	var photos []*models.InspectionPhoto
	for rows.Next() {
		var photo models.InspectionPhoto
		if err := rows.Scan(&photo.ID, &photo.InspectionID, &photo.PhotoPath, &photo.Caption, &photo.DefectFound, &photo.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan inspection photo: %w", err)
		}
		photos = append(photos, &photo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate inspection photos: %w", err)
	}
	return photos, nil
}

func (r *inspectionPhotoRepository) CountByInspection(ctx context.Context, inspectionID uuid.UUID) (int64, error) {
	q := database.QuerierFrom(ctx, r.db.Pool)

	var count int64
	err := q.QueryRow(ctx,
		`SELECT COUNT(*) FROM inspection_photos WHERE inspection_id = $1`,
		inspectionID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count inspection photos: %w", err)
	}
	return count, nil
}

// Ensure inspectionPhotoRepository implements InspectionPhotoRepository at compile time.
var _ InspectionPhotoRepository = (*inspectionPhotoRepository)(nil)
