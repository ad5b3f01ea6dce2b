package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/cosmicwatch/neo-watch-service/internal/domain"
	"github.com/cosmicwatch/neo-watch-service/internal/observability"
)

// FeedFetcher retrieves the external feed for one UTC day.
type FeedFetcher interface {
	FetchFeed(ctx context.Context, day time.Time) (*domain.FeedResponse, error)
}

// Tx is the write surface available inside one ingestion transaction. Both
// inserts are insert-if-absent: they report whether a row was created instead
// of signalling duplicates through driver error codes.
type Tx interface {
	InsertAsteroidIfAbsent(ctx context.Context, a domain.Asteroid) (bool, error)
	InsertApproachIfAbsent(ctx context.Context, e domain.ApproachEvent) (bool, error)
}

// Store opens a transaction scope for one ingestion run. The implementation
// must roll back if fn returns an error and release the connection on every
// exit path.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Ingestor runs the fetch-normalize-score-persist pipeline. At most one run
// executes at a time; concurrent Run calls fail fast with ErrIngestRunning
// rather than queueing, bounding races on the insert-if-absent key space.
type Ingestor struct {
	fetcher FeedFetcher
	store   Store
	logger  *slog.Logger
	metrics *observability.Metrics
	clock   clockwork.Clock

	mu sync.Mutex
}

// New creates an Ingestor with the given stages and observability.
func New(fetcher FeedFetcher, store Store, logger *slog.Logger, metrics *observability.Metrics, clock clockwork.Clock) *Ingestor {
	return &Ingestor{
		fetcher: fetcher,
		store:   store,
		logger:  logger,
		metrics: metrics,
		clock:   clock,
	}
}

// Run executes one ingestion pass for today's feed window. All inserts for
// the pass share a single transaction; any failure rolls back the whole run.
func (i *Ingestor) Run(ctx context.Context) (domain.IngestResult, error) {
	if !i.mu.TryLock() {
		i.metrics.IngestRuns.WithLabelValues("skipped").Inc()
		return domain.IngestResult{}, domain.ErrIngestRunning
	}
	defer i.mu.Unlock()

	i.metrics.IngestRunning.Set(1)
	defer i.metrics.IngestRunning.Set(0)

	start := i.clock.Now()
	today := start.UTC()

	feed, err := i.fetcher.FetchFeed(ctx, today)
	if err != nil {
		i.metrics.IngestRuns.WithLabelValues("error").Inc()
		return domain.IngestResult{}, err
	}

	var result domain.IngestResult
	err = i.store.WithinTx(ctx, func(tx Tx) error {
		for date, records := range feed.NearEarthObjects {
			for _, rec := range records {
				if err := i.persistRecord(ctx, tx, rec, &result); err != nil {
					i.logger.Error("ingest record failed", "date", date, "neo_id", rec.ID, "error", err)
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		i.metrics.IngestRuns.WithLabelValues("error").Inc()
		return domain.IngestResult{}, err
	}

	i.metrics.IngestRuns.WithLabelValues("success").Inc()
	i.metrics.AsteroidsInserted.Add(float64(result.AsteroidsInserted))
	i.metrics.ApproachesInserted.Add(float64(result.ApproachesInserted))
	i.metrics.IngestDuration.Observe(i.clock.Since(start).Seconds())

	i.logger.Info("ingest run complete",
		"asteroids_seen", result.AsteroidsSeen,
		"asteroids_inserted", result.AsteroidsInserted,
		"approaches_inserted", result.ApproachesInserted,
	)
	return result, nil
}

// persistRecord normalizes one feed record and writes the asteroid before its
// approach children, preserving referential ordering within the transaction.
func (i *Ingestor) persistRecord(ctx context.Context, tx Tx, rec domain.NeoRecord, result *domain.IngestResult) error {
	asteroid, approaches, err := domain.NormalizeRecord(rec)
	if err != nil {
		return err
	}
	result.AsteroidsSeen++

	inserted, err := tx.InsertAsteroidIfAbsent(ctx, asteroid)
	if err != nil {
		return err
	}
	if inserted {
		result.AsteroidsInserted++
	}

	for _, approach := range approaches {
		result.ApproachesSeen++
		inserted, err := tx.InsertApproachIfAbsent(ctx, approach)
		if err != nil {
			return err
		}
		if inserted {
			result.ApproachesInserted++
		}
	}
	return nil
}
