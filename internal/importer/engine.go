package importer

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/waypoint-labs/roadwatch/internal/catalog"
	"github.com/waypoint-labs/roadwatch/internal/model"
	"github.com/waypoint-labs/roadwatch/internal/resilience"
	"github.com/waypoint-labs/roadwatch/internal/store"
)

const defaultBatchSize = 100

// Engine runs dataset imports against the catalog and records each run in
// the import log.
type Engine struct {
	cat   *catalog.Catalog
	db    store.Store
	retry resilience.RetryConfig
	log   *zap.Logger
}

// NewEngine creates an import engine. The retry config bounds per-record
// retries on transient store failures.
func NewEngine(cat *catalog.Catalog, db store.Store, retry resilience.RetryConfig) *Engine {
	return &Engine{
		cat:   cat,
		db:    db,
		retry: retry,
		log:   zap.L().With(zap.String("component", "importer.engine")),
	}
}

// Run fetches the source and applies its records sequentially. A bad
// record is counted and skipped, a transient failure is retried up to the
// configured attempts then counted as failed; neither stops the batch.
// The finished run is appended to the import log and returned.
func (e *Engine) Run(ctx context.Context, src Source) (*model.ImportRun, error) {
	log := e.log.With(zap.String("source", src.Name()))
	started := time.Now().UTC()

	records, err := src.Fetch(ctx)
	if err != nil {
		return nil, eris.Wrapf(err, "importer: fetch %s", src.Name())
	}
	log.Info("dataset fetched", zap.Int("records", len(records)))

	run := &model.ImportRun{
		ID:        uuid.New().String(),
		Source:    src.Name(),
		StartedAt: started,
	}

	batch := src.BatchSize()
	if batch <= 0 {
		batch = defaultBatchSize
	}

	retry := e.retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(src.Name(), "apply record")
	}

	for i, rec := range records {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		var out Outcome
		err := resilience.Do(ctx, retry, func(ctx context.Context) error {
			var applyErr error
			out, applyErr = rec.Apply(ctx, e.cat)
			return applyErr
		})
		switch {
		case err == nil:
			switch out {
			case OutcomeCreated:
				run.Imported++
			case OutcomeMerged:
				run.Merged++
			default:
				run.Skipped++
			}
		case catalog.IsValidation(err) || eris.Is(err, catalog.ErrConflict):
			run.Skipped++
			log.Debug("record skipped", zap.String("key", rec.Key()), zap.Error(err))
		default:
			run.Failed++
			log.Warn("record failed", zap.String("key", rec.Key()), zap.Error(err))
		}

		if (i+1)%batch == 0 {
			log.Info("import progress",
				zap.Int("processed", i+1),
				zap.Int("total", len(records)),
				zap.Int("imported", run.Imported),
				zap.Int("merged", run.Merged),
				zap.Int("skipped", run.Skipped),
				zap.Int("failed", run.Failed),
			)
		}
	}

	run.Duration = time.Since(started)
	if err := e.db.RecordImport(ctx, run); err != nil {
		log.Error("import log write failed", zap.Error(err))
	}

	log.Info("import complete",
		zap.Int("imported", run.Imported),
		zap.Int("merged", run.Merged),
		zap.Int("skipped", run.Skipped),
		zap.Int("failed", run.Failed),
		zap.Duration("elapsed", run.Duration),
	)
	return run, nil
}
