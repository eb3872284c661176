package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"

	"github.com/basel-ax/fluxfaces/internal/config"
	"github.com/basel-ax/fluxfaces/internal/domain"
	"github.com/basel-ax/fluxfaces/internal/logging"
	"github.com/basel-ax/fluxfaces/internal/repository"
	"github.com/basel-ax/fluxfaces/internal/service"
)

func main() {
	// Parse command line flags
	verbose := flag.Bool("verbose", false, "Enable verbose logging")
	prompt := flag.String("prompt", "", "Prompt for -sync, -async or -enqueue")
	negative := flag.String("negative", "", "Negative prompt")
	numImages := flag.Int("num-images", 0, "Number of images (0 uses DEFAULT_NUM_IMAGES)")
	seed := flag.Int64("seed", -1, "Random seed (-1 lets the worker choose)")
	runSync := flag.Bool("sync", false, "Generate through the synchronous endpoint and save the images")
	runAsync := flag.Bool("async", false, "Submit a job, poll until it finishes and save the images")
	statusID := flag.String("status", "", "Print the status of a job")
	cancelID := flag.String("cancel", "", "Cancel a job")
	enqueue := flag.Bool("enqueue", false, "Add -prompt to the generation ledger")
	runSubmitter := flag.Bool("submitter", false, "Submit every queued ledger prompt once")
	runCollector := flag.Bool("collector", false, "Check every in-flight ledger job once")
	runCron := flag.Bool("cron", false, "Run submitter and collector on a schedule")
	showID := flag.Int("show", 0, "Print a ledger generation by id")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.NewLogger(cfg.AppEnv, *verbose)

	svc := service.NewGenerationService(cfg, logger)

	// Create context with cancellation
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	params := domain.GenerationParams{
		Prompt:         *prompt,
		NegativePrompt: *negative,
		NumImages:      *numImages,
	}
	if *seed >= 0 {
		params.Seed = seed
	}

	switch {
	case *runSync || *runAsync:
		resp, paths, err := svc.Generate(ctx, params, *runAsync)
		if err != nil {
			logger.Fatal().Err(err).Msg("generation failed")
		}
		event := logger.Info().Strs("paths", paths).Int64("execution_ms", resp.ExecutionTime)
		if resp.Output != nil {
			event = event.Int64("seed", resp.Output.Seed).Strs("s3_urls", resp.Output.S3URLs)
		}
		event.Msg("generation completed")

	case *statusID != "":
		resp, err := svc.CheckGenerationStatus(ctx, domain.JobHandle(*statusID))
		if err != nil {
			logger.Fatal().Err(err).Msg("status check failed")
		}
		logger.Info().
			Str("job_id", *statusID).
			Str("status", string(resp.Status)).
			Int("images", len(resp.Images())).
			Int64("execution_ms", resp.ExecutionTime).
			Msg("job status")

	case *cancelID != "":
		resp, err := svc.CancelGeneration(ctx, domain.JobHandle(*cancelID))
		if err != nil {
			logger.Fatal().Err(err).Msg("cancel failed")
		}
		logger.Info().Str("job_id", *cancelID).Str("status", string(resp.Status)).Msg("cancel requested")

	case *enqueue || *runSubmitter || *runCollector || *runCron || *showID > 0:
		if err := runLedger(ctx, cfg, svc, logger, *prompt, *showID, *enqueue, *runSubmitter, *runCollector, *runCron); err != nil {
			logger.Fatal().Err(err).Msg("ledger workflow failed")
		}

	default:
		fmt.Fprintln(os.Stderr, "Please specify a mode: -sync, -async, -status, -cancel, -enqueue, -show, -submitter, -collector or -cron")
		flag.Usage()
		os.Exit(2)
	}
}

func runLedger(ctx context.Context, cfg *config.Config, svc *service.GenerationService, logger logging.Logger,
	prompt string, showID int, enqueue, submitter, collector, scheduled bool) error {
	if !cfg.DB.Enabled() {
		return fmt.Errorf("ledger modes need DB_HOST")
	}

	// Initialize database connection
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer db.Close()

	// Configure connection pool
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.DB.ConnMaxLifetime)

	repo := repository.NewPostgresGenerationRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}
	logger.Debug().Str("host", cfg.DB.Host).Msg("database connection established")

	if enqueue {
		if prompt == "" {
			return fmt.Errorf("-enqueue needs -prompt")
		}
		g, err := repo.Enqueue(ctx, prompt)
		if err != nil {
			return err
		}
		logger.Info().Int("generation_id", g.ID).Str("request_id", g.RequestID).Msg("prompt queued")
	}

	if showID > 0 {
		g, err := repo.Get(ctx, showID)
		if err != nil {
			return fmt.Errorf("generation %d: %w", showID, err)
		}
		logger.Info().
			Int("generation_id", g.ID).
			Str("request_id", g.RequestID).
			Str("state", string(g.State)).
			Str("job_id", g.JobID).
			Strs("paths", g.OutputPaths).
			Str("error", g.Error).
			Msg("generation")
	}

	wf := service.NewWorkflow(repo, svc, logger)
	if scheduled {
		return wf.RunScheduled(ctx, service.DefaultSubmitSpec, service.DefaultCollectSpec)
	}
	if submitter {
		n, err := wf.Submit(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int("submitted", n).Msg("submitter pass finished")
	}
	if collector {
		n, err := wf.Collect(ctx)
		if err != nil {
			return err
		}
		logger.Info().Int("finished", n).Msg("collector pass finished")
	}
	return nil
}
