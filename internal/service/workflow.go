package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/robfig/cron/v3"

	"github.com/basel-ax/fluxfaces/internal/domain"
	"github.com/basel-ax/fluxfaces/internal/logging"
	"github.com/basel-ax/fluxfaces/internal/repository"
)

const (
	maxPromptLength  = 999
	defaultBatchSize = 20

	DefaultSubmitSpec  = "0 */3 * * * *"
	DefaultCollectSpec = "0 */1 * * * *"
)

// truncatePrompt safely truncates a string to the specified length while preserving UTF-8 characters
func truncatePrompt(s string, length int) string {
	if utf8.RuneCountInString(s) <= length {
		return s
	}

	var size, n int
	for i := 0; i < length && n < len(s); i++ {
		_, size = utf8.DecodeRuneInString(s[n:])
		n += size
	}

	return s[:n]
}

// Workflow moves ledger rows through submission and collection
type Workflow struct {
	repo      repository.GenerationRepository
	svc       *GenerationService
	logger    logging.Logger
	BatchSize int
}

// NewWorkflow creates a workflow over the ledger
func NewWorkflow(repo repository.GenerationRepository, svc *GenerationService, logger logging.Logger) *Workflow {
	return &Workflow{
		repo:      repo,
		svc:       svc,
		logger:    logger,
		BatchSize: defaultBatchSize,
	}
}

// Submit starts a job for every prompt ready for submission. It returns the
// number of jobs started.
func (w *Workflow) Submit(ctx context.Context) (int, error) {
	gens, err := w.repo.GetAllReadyToSubmit(ctx, w.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list ready generations: %w", err)
	}

	started := 0
	for _, g := range gens {
		if err := ctx.Err(); err != nil {
			return started, err
		}
		log := w.logger.With().Int("generation_id", g.ID).Str("request_id", g.RequestID).Logger()

		prompt := truncatePrompt(g.Prompt, maxPromptLength)
		if len(prompt) != len(g.Prompt) {
			log.Warn().Int("from", len(g.Prompt)).Int("to", len(prompt)).Msg("prompt truncated")
		}

		handle, err := w.svc.StartGeneration(ctx, domain.GenerationParams{Prompt: prompt})
		if err != nil {
			log.Error().Err(err).Msg("submit failed")
			if err := w.repo.UpdateState(ctx, g.ID, domain.StateFailed, err.Error()); err != nil {
				log.Error().Err(err).Msg("update state failed")
			}
			continue
		}

		if err := w.repo.MarkSubmitted(ctx, g.ID, string(handle)); err != nil {
			log.Error().Err(err).Str("job_id", string(handle)).Msg("record job id failed")
			continue
		}
		log.Info().Str("job_id", string(handle)).Msg("generation submitted")
		started++
	}
	return started, nil
}

// Collect checks every in-flight job once and records terminal outcomes. It
// returns the number of generations that reached a terminal state.
func (w *Workflow) Collect(ctx context.Context) (int, error) {
	gens, err := w.repo.GetAllSubmitted(ctx, w.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("list submitted generations: %w", err)
	}

	finished := 0
	for _, g := range gens {
		if err := ctx.Err(); err != nil {
			return finished, err
		}
		if w.collectOne(ctx, g) {
			finished++
		}
	}
	return finished, nil
}

func (w *Workflow) collectOne(ctx context.Context, g *domain.Generation) bool {
	log := w.logger.With().Int("generation_id", g.ID).Str("job_id", g.JobID).Logger()
	handle := domain.JobHandle(g.JobID)

	resp, err := w.svc.CheckGenerationStatus(ctx, handle)
	if err != nil {
		if domain.IsNotFound(err) {
			log.Warn().Msg("job unknown to endpoint, requeueing")
			if err := w.repo.ResetJob(ctx, g.ID); err != nil {
				log.Error().Err(err).Msg("reset job failed")
			}
			return false
		}
		log.Error().Err(err).Msg("status check failed")
		return false
	}

	if !resp.Status.Known() {
		errText := fmt.Sprintf("unknown status: %s", resp.Status)
		log.Warn().Str("status", string(resp.Status)).Msg("job reported an unknown status, marking failed")
		if err := w.repo.UpdateState(ctx, g.ID, domain.StateFailed, errText); err != nil {
			log.Error().Err(err).Msg("update state failed")
			return false
		}
		return true
	}

	if !resp.Status.IsTerminal() {
		log.Debug().Str("status", string(resp.Status)).Msg("job still running")
		return false
	}

	state, errText := domain.StateCompleted, ""
	if _, err := checkResult(handle, resp); err != nil {
		state, errText = domain.StateFailed, err.Error()
		if errors.Is(err, domain.ErrJobCancelled) {
			state = domain.StateCancelled
		}
	}

	if state == domain.StateCompleted {
		paths, err := w.svc.SaveImages(ctx, resp)
		if err != nil {
			log.Error().Err(err).Msg("saving images failed")
			state, errText = domain.StateFailed, err.Error()
		} else {
			if err := w.repo.MarkCompleted(ctx, g.ID, paths); err != nil {
				log.Error().Err(err).Msg("mark completed failed")
				return false
			}
			log.Info().Strs("paths", paths).Msg("generation completed")
			return true
		}
	}

	if err := w.repo.UpdateState(ctx, g.ID, state, errText); err != nil {
		log.Error().Err(err).Msg("update state failed")
		return false
	}
	log.Info().Str("state", string(state)).Str("error", errText).Msg("generation finished")
	return true
}

// NewScheduler registers the submit and collect passes on a cron scheduler
// with a seconds field. Passes never overlap.
func (w *Workflow) NewScheduler(ctx context.Context, submitSpec, collectSpec string) (*cron.Cron, error) {
	c := cron.New(cron.WithSeconds())
	var mu sync.Mutex

	run := func(name string, pass func(context.Context) (int, error)) func() {
		return func() {
			mu.Lock()
			defer mu.Unlock()
			n, err := pass(ctx)
			if err != nil {
				w.logger.Error().Err(err).Str("pass", name).Msg("scheduled pass failed")
				return
			}
			w.logger.Info().Str("pass", name).Int("count", n).Msg("scheduled pass finished")
		}
	}

	if _, err := c.AddFunc(submitSpec, run("submit", w.Submit)); err != nil {
		return nil, fmt.Errorf("schedule submit pass: %w", err)
	}
	if _, err := c.AddFunc(collectSpec, run("collect", w.Collect)); err != nil {
		return nil, fmt.Errorf("schedule collect pass: %w", err)
	}
	return c, nil
}

// RunScheduled runs both passes on their schedules until ctx is cancelled
func (w *Workflow) RunScheduled(ctx context.Context, submitSpec, collectSpec string) error {
	c, err := w.NewScheduler(ctx, submitSpec, collectSpec)
	if err != nil {
		return err
	}
	c.Start()
	w.logger.Info().Str("submit", submitSpec).Str("collect", collectSpec).Msg("scheduler started")

	<-ctx.Done()
	<-c.Stop().Done()
	w.logger.Info().Msg("scheduler stopped")
	return nil
}
