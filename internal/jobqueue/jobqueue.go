/*
Package jobqueue provides a River-based job queue for background triage work:
asynchronous ingestion of approval records into the learning engine and the
periodic conversation-context sweep.

For tuning parameters see queue_config.go.
*/
package jobqueue

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/triagecore/triagecore/internal/contextstore"
	"github.com/triagecore/triagecore/internal/learning"
	"github.com/triagecore/triagecore/pkg/models"
)

// ApprovalIngestJobArgs carries one approval record to the learning engine.
type ApprovalIngestJobArgs struct {
	Record models.ApprovalRecord `json:"record"`
}

// Kind returns the job kind for River
func (ApprovalIngestJobArgs) Kind() string {
	return "approval_ingest"
}

// ApprovalIngestWorker feeds approval records into the learning engine.
type ApprovalIngestWorker struct {
	river.WorkerDefaults[ApprovalIngestJobArgs]
	learner *learning.Engine
}

// Work ingests one approval record.
func (w *ApprovalIngestWorker) Work(ctx context.Context, job *river.Job[ApprovalIngestJobArgs]) error {
	rec := job.Args.Record
	if err := w.learner.Record(ctx, &rec); err != nil {
		return fmt.Errorf("ingesting approval record %s: %w", rec.ID, err)
	}
	log.Debug().
		Str("record_id", rec.ID).
		Str("intent", string(rec.Intent)).
		Msg("approval record ingested")
	return nil
}

// ContextSweepJobArgs triggers one conversation-context sweep.
type ContextSweepJobArgs struct{}

// Kind returns the job kind for River
func (ContextSweepJobArgs) Kind() string {
	return "context_sweep"
}

// ContextSweepWorker removes conversations past the retention window.
type ContextSweepWorker struct {
	river.WorkerDefaults[ContextSweepJobArgs]
	store *contextstore.Store
}

// Work runs one sweep.
func (w *ContextSweepWorker) Work(ctx context.Context, _ *river.Job[ContextSweepJobArgs]) error {
	removed := w.store.SweepOnce(time.Now())
	log.Info().Int("removed", removed).Msg("scheduled context sweep finished")
	return nil
}

// JobQueue manages the River job queue
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue creates a new job queue instance on an existing pool.
func NewJobQueue(pool *pgxpool.Pool, learner *learning.Engine, store *contextstore.Store, config *QueueConfig) (*JobQueue, error) {
	if config == nil {
		config = DefaultQueueConfig()
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &ApprovalIngestWorker{learner: learner})
	river.AddWorker(workers, &ContextSweepWorker{store: store})

	periodic := []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(config.SweepInterval),
			func() (river.JobArgs, *river.InsertOpts) {
				return ContextSweepJobArgs{}, nil
			},
			&river.PeriodicJobOpts{RunOnStart: false},
		),
	}

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		JobTimeout:   config.JobTimeout,
		MaxAttempts:  config.MaxRetries,
		Queues:       config.RiverQueueConfig(),
		Workers:      workers,
		PeriodicJobs: periodic,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{
		client: client,
		pool:   pool,
		config: config,
	}, nil
}

// Start starts the job queue workers
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers
func (jq *JobQueue) Stop(ctx context.Context) error {
	return jq.client.Stop(ctx)
}

// QueueApprovalIngest queues one approval record for asynchronous ingestion.
func (jq *JobQueue) QueueApprovalIngest(ctx context.Context, rec models.ApprovalRecord) error {
	_, err := jq.client.Insert(ctx, ApprovalIngestJobArgs{Record: rec}, nil)
	if err != nil {
		return fmt.Errorf("failed to queue approval ingest job: %w", err)
	}
	return nil
}
