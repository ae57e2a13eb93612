package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/triagecore/triagecore/internal/access"
	"github.com/triagecore/triagecore/internal/api"
	"github.com/triagecore/triagecore/internal/classifier"
	"github.com/triagecore/triagecore/internal/config"
	"github.com/triagecore/triagecore/internal/contextstore"
	"github.com/triagecore/triagecore/internal/database"
	"github.com/triagecore/triagecore/internal/draft"
	"github.com/triagecore/triagecore/internal/escalation"
	"github.com/triagecore/triagecore/internal/handoff"
	"github.com/triagecore/triagecore/internal/jobqueue"
	"github.com/triagecore/triagecore/internal/learning"
	"github.com/triagecore/triagecore/internal/metrics"
	"github.com/triagecore/triagecore/internal/triage"
)

// ServeCommand returns the CLI command for starting the triage server
func ServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the triage API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port for the API server (overrides config)",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	port := cfg.Server.Port
	if c.Int("port") != 0 {
		port = c.Int("port")
	}

	ctx := context.Background()

	store := contextstore.New(
		contextstore.WithMessageCap(cfg.Context.MessageCap),
		contextstore.WithRetention(cfg.ContextRetention()),
		contextstore.WithSweepInterval(cfg.SweepInterval()),
	)

	// Postgres is optional; without it the learning history and audit trail
	// live in memory.
	var learnStore learning.Store = learning.NewInMemoryStore(cfg.Learning.HistoryCap)
	var auditSink access.AuditSink = access.NewMemorySink()
	var dbPool *pgxpool.Pool
	if cfg.Database.URL != "" {
		dbPool, err = database.NewPool(ctx, cfg.Database.URL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer dbPool.Close()
		learnStore = learning.NewPostgresStore(dbPool, cfg.Learning.HistoryCap)
		auditSink = access.NewPostgresSink(dbPool)
	}

	learner := learning.NewEngine(learnStore)

	var jq *jobqueue.JobQueue
	if dbPool != nil {
		jq, err = jobqueue.NewJobQueue(dbPool, learner, store, jobqueue.DefaultQueueConfig())
		if err != nil {
			return fmt.Errorf("failed to create job queue: %w", err)
		}
		if err := jq.Start(ctx); err != nil {
			return fmt.Errorf("failed to start job queue: %w", err)
		}
		defer jq.Stop(ctx)
	}

	collab, err := classifier.NewLLMCollaborator(classifier.Options{
		Provider:          classifier.Provider(cfg.Classifier.Provider),
		APIKey:            cfg.Classifier.APIKey,
		BaseURL:           cfg.Classifier.BaseURL,
		Model:             cfg.Classifier.Model,
		Temperature:       cfg.Classifier.Temperature,
		MaxTokens:         cfg.Classifier.MaxTokens,
		DefaultConfidence: cfg.Classifier.DefaultConfidence,
	})
	if err != nil {
		return fmt.Errorf("failed to create classifier: %w", err)
	}
	resilient := classifier.NewResilient(collab, cfg.Classifier.CallsPerSecond, cfg.ClassifierTimeout())

	fallbackLog, err := access.NewFallbackLog(cfg.Audit.FallbackDir)
	if err != nil {
		return fmt.Errorf("failed to open audit fallback log: %w", err)
	}
	gate := access.NewGate(auditSink,
		access.WithAuditTimeout(cfg.AuditTimeout()),
		access.WithFallbackSink(fallbackLog),
	)

	registry := prometheus.NewRegistry()
	aggregator := metrics.NewAggregator(registry)

	router := handoff.NewEngine(
		cfg.Handoff.ConfidenceThreshold,
		learner,
		handoff.NewHMACTokenVerifier(cfg.Auth.JWTSecret),
	)

	svc := triage.NewService(
		store,
		resilient,
		escalation.New(),
		router,
		learner,
		gate,
		aggregator,
		draft.NewLLMProducer(collab.Model(), cfg.Classifier.Temperature, cfg.Classifier.MaxTokens),
	)
	if jq != nil {
		svc.UseApprovalQueue(jq)
	}

	store.Start()
	defer store.Stop()

	log.Info().Int("port", port).Str("provider", cfg.Classifier.Provider).Msg("starting triage server")
	fmt.Printf("Starting TriageCore API server on port %d...\n", port)

	server := api.NewServer(port, svc, gate, aggregator, registry, []byte(cfg.Auth.JWTSecret))
	return server.Start()
}
