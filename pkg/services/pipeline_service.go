package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/arbyte-inspect/inspection-engine/pkg/apperrors"
	"github.com/arbyte-inspect/inspection-engine/pkg/config"
	"github.com/arbyte-inspect/inspection-engine/pkg/repositories"
)

// TxRunner runs a function inside a database transaction. Satisfied by
// *database.DB.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// TickSummary reports what one pipeline tick accomplished.
type TickSummary struct {
	StartedAt            time.Time     `json:"started_at"`
	Duration             time.Duration `json:"duration"`
	Ingest               IngestSummary `json:"ingest"`
	CyclesClosed         int           `json:"cycles_closed"`
	CyclesDeferred       int           `json:"cycles_deferred"`
	Orphans              int           `json:"orphans"`
	InspectionsCreated   int           `json:"inspections_created"`
	InspectionsDiscarded int           `json:"inspections_discarded"`
	PhotosLinked         int           `json:"photos_linked"`
	PhotosRepaired       int           `json:"photos_repaired"`
}

// PipelineStatus is the operational view exposed over HTTP.
type PipelineStatus struct {
	SchedulerRunning bool         `json:"scheduler_running"`
	TickInProgress   bool         `json:"tick_in_progress"`
	LastTick         *TickSummary `json:"last_tick,omitempty"`
	LastError        string       `json:"last_error,omitempty"`
}

// PipelineService drives the full correlation pipeline: ingest new feed
// lines, segment unprocessed rows into cycles, resolve each closed cycle to
// its inspection, correlate staged photos, and maintain the station
// aggregates. One scheduler loop per deployment; concurrent schedulers
// would race over the shared unprocessed-row set.
type PipelineService interface {
	// RunScheduler starts the periodic loop. Returns
	// apperrors.ErrSchedulerRunning when a loop is already active.
	RunScheduler(ctx context.Context, interval time.Duration) error

	// Stop halts the loop and blocks until any in-flight tick has
	// finished. Returns apperrors.ErrSchedulerStopped when no loop is
	// active.
	Stop() error

	// RunOnce executes a single tick immediately (manual catch-up).
	// Returns apperrors.ErrTickInProgress when a tick is already running.
	RunOnce(ctx context.Context) (TickSummary, error)

	Status() PipelineStatus
}

type pipelineService struct {
	db          TxRunner
	snapshots   repositories.SnapshotRepository
	inspections repositories.InspectionRepository
	ingest      IngestService
	segmenter   *Segmenter
	resolver    CycleResolver
	correlator  PhotoCorrelator
	aggregates  AggregateService
	logger      *zap.Logger

	batchSize      int
	photoPolicy    string
	reconcileEvery int

	tickMu sync.Mutex // held for the duration of one tick

	mu        sync.Mutex // guards the fields below
	running   bool
	stop      context.CancelFunc
	done      chan struct{} // closed when the scheduler goroutine exits
	tickBusy  bool
	tickCount int
	lastTick  *TickSummary
	lastError string
}

// NewPipelineService wires the correlation pipeline together.
func NewPipelineService(
	db TxRunner,
	cfg *config.PipelineConfig,
	snapshots repositories.SnapshotRepository,
	inspections repositories.InspectionRepository,
	ingest IngestService,
	segmenter *Segmenter,
	resolver CycleResolver,
	correlator PhotoCorrelator,
	aggregates AggregateService,
	logger *zap.Logger,
) PipelineService {
	return &pipelineService{
		db:             db,
		snapshots:      snapshots,
		inspections:    inspections,
		ingest:         ingest,
		segmenter:      segmenter,
		resolver:       resolver,
		correlator:     correlator,
		aggregates:     aggregates,
		logger:         logger.Named("pipeline"),
		batchSize:      cfg.BatchSize,
		photoPolicy:    cfg.PhotoPolicy,
		reconcileEvery: cfg.ReconcileEvery,
	}
}

var _ PipelineService = (*pipelineService)(nil)

func (s *pipelineService) RunScheduler(ctx context.Context, interval time.Duration) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return apperrors.ErrSchedulerRunning
	}
	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.running = true
	s.stop = cancel
	s.done = done
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			s.running = false
			s.stop = nil
			s.done = nil
			s.mu.Unlock()
			close(done)
		}()

		s.logger.Info("Pipeline scheduler started", zap.Duration("interval", interval))

		// Run immediately on startup, then at each interval. Ticks run
		// under a detached context: a stop request lets the in-flight
		// tick finish instead of severing its database work.
		s.tick(context.WithoutCancel(loopCtx))

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				s.logger.Info("Pipeline scheduler stopped")
				return
			case <-ticker.C:
				s.tick(context.WithoutCancel(loopCtx))
			}
		}
	}()

	return nil
}

// Stop cancels the loop and blocks until the scheduler goroutine has
// exited. Ticks run inline in that goroutine, so returning from Stop
// guarantees no tick is mid-pipeline when the caller proceeds to shut down.
func (s *pipelineService) Stop() error {
	s.mu.Lock()
	if !s.running || s.stop == nil {
		s.mu.Unlock()
		return apperrors.ErrSchedulerStopped
	}
	stop := s.stop
	done := s.done
	s.mu.Unlock()

	stop()
	<-done
	return nil
}

func (s *pipelineService) RunOnce(ctx context.Context) (TickSummary, error) {
	if !s.tickMu.TryLock() {
		return TickSummary{}, apperrors.ErrTickInProgress
	}
	defer s.tickMu.Unlock()
	return s.runTickLocked(ctx)
}

func (s *pipelineService) Status() PipelineStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := PipelineStatus{
		SchedulerRunning: s.running,
		TickInProgress:   s.tickBusy,
		LastError:        s.lastError,
	}
	if s.lastTick != nil {
		copied := *s.lastTick
		status.LastTick = &copied
	}
	return status
}

// tick is the scheduler-driven entry: it skips silently when a manual tick
// is already in flight.
func (s *pipelineService) tick(ctx context.Context) {
	if !s.tickMu.TryLock() {
		s.logger.Debug("Tick already in progress, skipping scheduled run")
		return
	}
	defer s.tickMu.Unlock()

	if _, err := s.runTickLocked(ctx); err != nil {
		// Committed work stays durable; the next tick resumes cleanly
		// from the unprocessed-row query. No in-tick retry loop.
		s.logger.Error("Pipeline tick failed", zap.Error(err))
	}
}

// runTickLocked executes one full pipeline pass. Caller holds tickMu.
func (s *pipelineService) runTickLocked(ctx context.Context) (TickSummary, error) {
	summary := TickSummary{StartedAt: time.Now()}

	s.mu.Lock()
	s.tickBusy = true
	s.mu.Unlock()

	err := s.runStages(ctx, &summary)

	summary.Duration = time.Since(summary.StartedAt)

	s.mu.Lock()
	s.tickBusy = false
	s.lastTick = &summary
	if err != nil {
		s.lastError = err.Error()
	} else {
		s.lastError = ""
	}
	s.mu.Unlock()

	if err == nil && (summary.CyclesClosed > 0 || summary.Ingest.Inserted > 0 || summary.PhotosRepaired > 0) {
		s.logger.Info("Pipeline tick completed",
			zap.Int("ingested", summary.Ingest.Inserted),
			zap.Int("cycles_closed", summary.CyclesClosed),
			zap.Int("cycles_deferred", summary.CyclesDeferred),
			zap.Int("inspections_created", summary.InspectionsCreated),
			zap.Int("photos_linked", summary.PhotosLinked),
			zap.Duration("duration", summary.Duration))
	}

	return summary, err
}

func (s *pipelineService) runStages(ctx context.Context, summary *TickSummary) error {
	ingestSummary, err := s.ingest.IngestFile(ctx)
	if err != nil {
		return err
	}
	summary.Ingest = ingestSummary

	rows, err := s.snapshots.ListUnprocessed(ctx, s.batchSize)
	if err != nil {
		return err
	}

	result := s.segmenter.Segment(rows)
	summary.CyclesClosed = len(result.Cycles)
	summary.CyclesDeferred = result.Deferred
	summary.Orphans = len(result.Orphans)

	if len(result.Orphans) > 0 {
		s.logger.Info("Consuming orphan rows outside any cycle",
			zap.Int("count", len(result.Orphans)))
		if err := s.snapshots.MarkProcessed(ctx, result.Orphans); err != nil {
			return err
		}
	}

	for _, closed := range result.Cycles {
		if err := s.processCycle(ctx, closed, summary); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.tickCount++
	reconcile := s.reconcileEvery > 0 && s.tickCount%s.reconcileEvery == 0
	s.mu.Unlock()

	if reconcile {
		repaired, err := s.correlator.Reconcile(ctx)
		if err != nil {
			return err
		}
		summary.PhotosRepaired = repaired
	}

	s.correlator.ReportUnmatched(ctx)
	return nil
}

// processCycle resolves one closed cycle, correlates its photos and commits
// every database write in a single transaction. Photo files are moved before
// the transaction opens, so a crash can only leave a moved file without a
// record (the state Reconcile repairs), never a record without a file.
func (s *pipelineService) processCycle(ctx context.Context, closed ClosedCycle, summary *TickSummary) error {
	cycle := closed.Cycle

	insp, created, err := s.resolver.Resolve(ctx, cycle)
	if err != nil {
		return err
	}

	matches, err := s.correlator.FindMatches(ctx, cycle)
	if err != nil {
		return err
	}
	committed := s.correlator.CommitFiles(insp, matches)

	if created && s.photoPolicy == config.PhotoPolicyDiscard && len(committed) == 0 {
		s.logger.Info("No photos for cycle, discarding inspection per policy",
			zap.String("natural_key", cycle.NaturalKey()))
		if err := s.db.InTx(ctx, func(ctx context.Context) error {
			return s.snapshots.MarkProcessed(ctx, closed.RowIDs())
		}); err != nil {
			return err
		}
		summary.InspectionsDiscarded++
		return nil
	}

	if len(committed) == 0 {
		s.logger.Info("No photos matched cycle",
			zap.String("natural_key", cycle.NaturalKey()))
	}

	var linked int
	err = s.db.InTx(ctx, func(ctx context.Context) error {
		if created {
			if err := s.inspections.Create(ctx, insp); err != nil {
				return err
			}
			// Aggregates commit or roll back with the inspection.
			if err := s.aggregates.ApplyInspection(ctx, insp); err != nil {
				return err
			}
		}

		linked, err = s.correlator.RecordPhotos(ctx, insp, committed)
		if err != nil {
			return err
		}

		// Rows are consumed regardless of photo presence: photo-less
		// cycles must not be reprocessed forever.
		return s.snapshots.MarkProcessed(ctx, closed.RowIDs())
	})
	if err != nil {
		return err
	}

	if created {
		summary.InspectionsCreated++
	}
	summary.PhotosLinked += linked
	return nil
}
