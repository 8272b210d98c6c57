package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arbyte-inspect/inspection-engine/pkg/apperrors"
	"github.com/arbyte-inspect/inspection-engine/pkg/models"
	"github.com/arbyte-inspect/inspection-engine/pkg/repositories"
)

// CommittedPhoto is a staged photo that has been physically relocated into
// the committed area. RelPath is the durable path recorded in the database,
// relative to the committed root.
type CommittedPhoto struct {
	Photo   *models.StagedPhoto
	RelPath string
}

// PhotoCorrelator matches staged photo files to cycles by their
// filename-encoded metadata and owns the two-phase relocation: a file is
// always moved into the committed area BEFORE its InspectionPhoto record is
// written, so a crash between the two steps can only ever leave a file
// without a record. Reconcile repairs exactly that state.
type PhotoCorrelator interface {
	// FindMatches scans staging and returns every photo whose encoded
	// (cycle name, pointer id, defect flag, fuel element) equals the
	// cycle's values and whose capture timestamp falls inside the
	// cycle's span widened by the match window. No side effects.
	FindMatches(ctx context.Context, cycle *models.Cycle) ([]*models.StagedPhoto, error)

	// CommitFiles moves matched files into committed/<product-code>/.
	// Files that fail to move are logged and left in staging; the move
	// is retried naturally on a later tick.
	CommitFiles(insp *models.Inspection, photos []*models.StagedPhoto) []CommittedPhoto

	// RecordPhotos writes InspectionPhoto rows for already-moved files,
	// skipping paths that already have a record (durable existence
	// check, no in-memory state). Returns the number of new records.
	RecordPhotos(ctx context.Context, insp *models.Inspection, committed []CommittedPhoto) (int, error)

	// Reconcile walks the committed area and inserts the missing
	// InspectionPhoto record for any file orphaned by a crash between
	// move and insert.
	Reconcile(ctx context.Context) (int, error)

	// ReportUnmatched logs a WARN inventory of files still in staging.
	// Nothing is ever deleted from staging.
	ReportUnmatched(ctx context.Context)
}

type photoCorrelator struct {
	stagingDir   string
	committedDir string
	matchWindow  time.Duration
	inspections  repositories.InspectionRepository
	photos       repositories.InspectionPhotoRepository
	logger       *zap.Logger
}

// NewPhotoCorrelator creates a new photo correlator over the two storage areas.
func NewPhotoCorrelator(
	stagingDir string,
	committedDir string,
	matchWindow time.Duration,
	inspections repositories.InspectionRepository,
	photos repositories.InspectionPhotoRepository,
	logger *zap.Logger,
) PhotoCorrelator {
	return &photoCorrelator{
		stagingDir:   stagingDir,
		committedDir: committedDir,
		matchWindow:  matchWindow,
		inspections:  inspections,
		photos:       photos,
		logger:       logger.Named("correlator"),
	}
}

var _ PhotoCorrelator = (*photoCorrelator)(nil)

func (c *photoCorrelator) FindMatches(ctx context.Context, cycle *models.Cycle) ([]*models.StagedPhoto, error) {
	staged, err := c.listStaging()
	if err != nil {
		return nil, err
	}

	wantDefect := cycle.DefectFound()
	windowStart := cycle.StartedAt().Add(-c.matchWindow)
	windowEnd := cycle.EndedAt().Add(c.matchWindow)

	var matches []*models.StagedPhoto
	for _, photo := range staged {
		if !models.KeysEqual(photo.CycleName, cycle.CycleName()) ||
			!models.KeysEqual(photo.PointerID, cycle.PointerID()) ||
			!models.KeysEqual(photo.FuelElementID, cycle.FuelElementID()) ||
			photo.Defect() != wantDefect {
			continue
		}
		if photo.CapturedAt.Before(windowStart) || photo.CapturedAt.After(windowEnd) {
			c.logger.Debug("Photo fields match but timestamp outside window",
				zap.String("file", photo.FileName),
				zap.Time("captured_at", photo.CapturedAt),
				zap.Time("window_start", windowStart),
				zap.Time("window_end", windowEnd))
			continue
		}
		matches = append(matches, photo)
	}

	return matches, nil
}

func (c *photoCorrelator) CommitFiles(insp *models.Inspection, photos []*models.StagedPhoto) []CommittedPhoto {
	if len(photos) == 0 {
		return nil
	}

	folder := sanitizeFolderName(insp.ProductCode)
	destDir := filepath.Join(c.committedDir, folder)
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		c.logger.Error("Failed to create inspection photo folder",
			zap.String("dir", destDir),
			zap.Error(err))
		return nil
	}

	var committed []CommittedPhoto
	for _, photo := range photos {
		dest := filepath.Join(destDir, photo.FileName)
		relPath := filepath.ToSlash(filepath.Join(folder, photo.FileName))

		if _, err := os.Stat(dest); err == nil {
			// Already moved by a previous, interrupted run. The record
			// step below is what was missed; report it as committed.
			committed = append(committed, CommittedPhoto{Photo: photo, RelPath: relPath})
			continue
		}

		if err := moveFile(photo.SourcePath, dest); err != nil {
			c.logger.Warn("Failed to move staged photo, leaving in staging",
				zap.String("file", photo.FileName),
				zap.Error(err))
			continue
		}

		c.logger.Info("Photo committed",
			zap.String("file", photo.FileName),
			zap.String("dest", relPath))
		committed = append(committed, CommittedPhoto{Photo: photo, RelPath: relPath})
	}

	return committed
}

func (c *photoCorrelator) RecordPhotos(ctx context.Context, insp *models.Inspection, committed []CommittedPhoto) (int, error) {
	created := 0
	for _, cp := range committed {
		exists, err := c.photos.ExistsByPath(ctx, cp.RelPath)
		if err != nil {
			return created, err
		}
		if exists {
			continue
		}

		photo := &models.InspectionPhoto{
			InspectionID: insp.ID,
			PhotoPath:    cp.RelPath,
			Caption:      fmt.Sprintf("Cycle %s pointer %s", cp.Photo.CycleName, cp.Photo.PointerID),
			DefectFound:  cp.Photo.Defect(),
		}
		if err := c.photos.Create(ctx, photo); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

func (c *photoCorrelator) Reconcile(ctx context.Context) (int, error) {
	repaired := 0

	err := filepath.WalkDir(c.committedDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(c.committedDir, path)
		if err != nil {
			return err
		}
		relPath = filepath.ToSlash(relPath)

		exists, err := c.photos.ExistsByPath(ctx, relPath)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}

		meta, err := models.ParseStagedPhotoName(d.Name())
		if err != nil {
			c.logger.Warn("Committed file with unparseable name, cannot reconcile",
				zap.String("marker", "reconcile_skip"),
				zap.String("file", relPath),
				zap.Error(err))
			return nil
		}

		insp, err := c.inspections.FindForPhoto(ctx, meta.CycleName, meta.FuelElementID, meta.CapturedAt, c.matchWindow)
		if err != nil {
			if errors.Is(err, apperrors.ErrNotFound) {
				c.logger.Warn("Committed file matches no inspection, leaving for operator",
					zap.String("marker", "reconcile_skip"),
					zap.String("file", relPath))
				return nil
			}
			return err
		}

		photo := &models.InspectionPhoto{
			InspectionID: insp.ID,
			PhotoPath:    relPath,
			Caption:      fmt.Sprintf("Recovered: cycle %s pointer %s", meta.CycleName, meta.PointerID),
			DefectFound:  meta.Defect(),
		}
		if err := c.photos.Create(ctx, photo); err != nil {
			return err
		}

		c.logger.Info("Repaired orphaned photo record",
			zap.String("file", relPath),
			zap.String("inspection", insp.ID.String()))
		repaired++
		return nil
	})
	if err != nil {
		return repaired, fmt.Errorf("reconcile walk failed: %w", err)
	}

	return repaired, nil
}

func (c *photoCorrelator) ReportUnmatched(ctx context.Context) {
	entries, err := os.ReadDir(c.stagingDir)
	if err != nil {
		if !os.IsNotExist(err) {
			c.logger.Warn("Failed to read staging directory", zap.Error(err))
		}
		return
	}

	var unmatched []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := models.ParseStagedPhotoName(entry.Name()); err != nil {
			continue // already warned about during listStaging
		}
		unmatched = append(unmatched, entry.Name())
	}

	if len(unmatched) > 0 {
		c.logger.Warn("Staged photos still unmatched after tick",
			zap.String("marker", "staging_unmatched"),
			zap.Int("count", len(unmatched)),
			zap.Strings("files", unmatched))
	}
}

// listStaging enumerates parseable staged photos. Files whose names do not
// follow the contract are logged at WARN and left untouched.
func (c *photoCorrelator) listStaging() ([]*models.StagedPhoto, error) {
	entries, err := os.ReadDir(c.stagingDir)
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.Debug("Staging directory does not exist",
				zap.String("dir", c.stagingDir))
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read staging directory: %w", err)
	}

	var staged []*models.StagedPhoto
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		photo, err := models.ParseStagedPhotoName(entry.Name())
		if err != nil {
			c.logger.Warn("Staged file does not match naming contract, skipping",
				zap.String("marker", "staging_skip"),
				zap.String("file", entry.Name()),
				zap.Error(err))
			continue
		}
		photo.SourcePath = filepath.Join(c.stagingDir, entry.Name())
		staged = append(staged, photo)
	}

	return staged, nil
}

// sanitizeFolderName makes a product code safe for use as a directory name.
func sanitizeFolderName(name string) string {
	r := strings.NewReplacer(":", "-", "/", "-", "\\", "-")
	return r.Replace(name)
}

// moveFile renames src to dst, falling back to copy+remove when the two
// paths live on different filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}

	return os.Remove(src)
}
