package services

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/arbyte-inspect/inspection-engine/pkg/models"
	"github.com/arbyte-inspect/inspection-engine/pkg/repositories"
)

// IngestSummary reports the outcome of one feed pass.
type IngestSummary struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Malformed  int `json:"malformed"`
}

// IngestService reads the PLC feed file and persists each distinct line as
// a raw snapshot. The feed is re-read in full on every pass; deduplication
// is content-based (a hash over the raw line), not offset-based, so repeated
// full reads insert nothing twice.
type IngestService interface {
	IngestFile(ctx context.Context) (IngestSummary, error)
}

type ingestService struct {
	sourceFile string
	snapshots  repositories.SnapshotRepository
	logger     *zap.Logger
}

// NewIngestService creates a new ingest service for the given feed file.
func NewIngestService(sourceFile string, snapshots repositories.SnapshotRepository, logger *zap.Logger) IngestService {
	return &ingestService{
		sourceFile: sourceFile,
		snapshots:  snapshots,
		logger:     logger.Named("ingest"),
	}
}

var _ IngestService = (*ingestService)(nil)

func (s *ingestService) IngestFile(ctx context.Context) (IngestSummary, error) {
	var summary IngestSummary

	f, err := os.Open(s.sourceFile)
	if err != nil {
		if os.IsNotExist(err) {
			// The reader process may not have produced the feed yet.
			s.logger.Debug("Feed file not present, skipping ingest",
				zap.String("file", s.sourceFile))
			return summary, nil
		}
		return summary, fmt.Errorf("failed to open feed file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		sum := sha256.Sum256([]byte(line))
		hash := hex.EncodeToString(sum[:])

		var payload models.Payload
		if err := json.Unmarshal([]byte(line), &payload); err != nil {
			// One bad line must not abort the rest of the batch.
			summary.Malformed++
			s.logger.Warn("Skipping malformed feed line",
				zap.String("hash", hash),
				zap.Error(err))
			continue
		}

		capturedAt := parseCaptureTime(payload)

		inserted, err := s.snapshots.Insert(ctx, capturedAt, []byte(line), hash)
		if err != nil {
			return summary, fmt.Errorf("failed to ingest line: %w", err)
		}
		if inserted {
			summary.Inserted++
		} else {
			summary.Duplicates++
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("failed to read feed file: %w", err)
	}

	if summary.Inserted > 0 || summary.Malformed > 0 {
		s.logger.Info("Feed pass completed",
			zap.Int("inserted", summary.Inserted),
			zap.Int("duplicates", summary.Duplicates),
			zap.Int("malformed", summary.Malformed))
	}

	return summary, nil
}

// parseCaptureTime extracts the capture timestamp from a payload.
// The feed writes either an ISO timestamp under "datetime" or "timestamp";
// rows without a parseable value fall back to the ingestion time.
func parseCaptureTime(payload models.Payload) time.Time {
	raw := payload.Field("datetime", "timestamp")
	if raw == "" {
		return time.Now()
	}

	if ts, err := time.Parse(time.RFC3339, raw); err == nil {
		return ts
	}

	naive := strings.TrimSuffix(raw, "Z")
	for _, layout := range []string{"2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.ParseInLocation(layout, naive, time.Local); err == nil {
			return ts
		}
	}
	return time.Now()
}
