package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cosmicwatch/neo-watch-service/internal/domain"
)

// IngestRunner executes one ingestion pass.
type IngestRunner interface {
	Run(ctx context.Context) (domain.IngestResult, error)
}

// AlertScanner executes one alert scan.
type AlertScanner interface {
	Scan(ctx context.Context) ([]domain.AlertNotification, error)
}

// Broadcaster pushes a named event to connected clients.
type Broadcaster interface {
	Broadcast(event string, payload any)
}

// Scheduler arms two independent periodic triggers sharing one clock: a slow
// ingestion trigger and a fast alert-scan trigger. Each trigger runs on its
// own goroutine so neither blocks the other, and a failed run never disarms
// future runs. The caller decides whether to arm the scheduler at all (it is
// left off when the store is unreachable at startup).
type Scheduler struct {
	ingestor    IngestRunner
	scanner     AlertScanner
	broadcaster Broadcaster
	logger      *slog.Logger
	clock       clockwork.Clock

	ingestEvery time.Duration
	scanEvery   time.Duration
}

// New creates a Scheduler with the given jobs and intervals.
func New(ingestor IngestRunner, scanner AlertScanner, broadcaster Broadcaster, logger *slog.Logger, clock clockwork.Clock, ingestEvery, scanEvery time.Duration) *Scheduler {
	return &Scheduler{
		ingestor:    ingestor,
		scanner:     scanner,
		broadcaster: broadcaster,
		logger:      logger,
		clock:       clock,
		ingestEvery: ingestEvery,
		scanEvery:   scanEvery,
	}
}

// Run arms both triggers and blocks until ctx is cancelled. Cancellation only
// stops future triggers; an in-flight run finishes on its own.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started", "ingest_every", s.ingestEvery, "scan_every", s.scanEvery)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.loop(ctx, s.ingestEvery, s.runIngest)
	}()
	go func() {
		defer wg.Done()
		s.loop(ctx, s.scanEvery, s.runScan)
	}()
	wg.Wait()

	s.logger.Info("scheduler stopped")
}

// loop fires fn on every tick. fn runs inline, so a slow run simply delays
// the same trigger's next firing; the other trigger is unaffected.
func (s *Scheduler) loop(ctx context.Context, every time.Duration, fn func(ctx context.Context)) {
	ticker := s.clock.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			fn(ctx)
		}
	}
}

func (s *Scheduler) runIngest(ctx context.Context) {
	result, err := s.ingestor.Run(ctx)
	switch {
	case errors.Is(err, domain.ErrIngestRunning):
		s.logger.Warn("ingest trigger skipped, previous run still in progress")
	case err != nil:
		s.logger.Error("scheduled ingest failed", "error", err)
	default:
		s.logger.Info("scheduled ingest complete",
			"asteroids_seen", result.AsteroidsSeen,
			"approaches_inserted", result.ApproachesInserted,
		)
		s.broadcaster.Broadcast("feed_update", map[string]string{"message": "New data available"})
	}
}

func (s *Scheduler) runScan(ctx context.Context) {
	if _, err := s.scanner.Scan(ctx); err != nil {
		s.logger.Error("scheduled alert scan failed", "error", err)
	}
}
