package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/basel-ax/fluxfaces/internal/artifact"
	"github.com/basel-ax/fluxfaces/internal/config"
	"github.com/basel-ax/fluxfaces/internal/domain"
	"github.com/basel-ax/fluxfaces/internal/infrastructure/runpod"
	"github.com/basel-ax/fluxfaces/internal/logging"
)

// ErrNoImages is returned when a completed job carries no artifacts
var ErrNoImages = errors.New("result carries no images")

// GenerationService drives jobs on the remote endpoint and stores their images
type GenerationService struct {
	client  domain.JobClient
	storeMu sync.Mutex
	store   *artifact.Store
	config  *config.Config
	logger  logging.Logger

	after func(time.Duration) <-chan time.Time
	now   func() time.Time
}

// NewGenerationService creates a service backed by the configured endpoint.
// The output directory is created on the first save.
func NewGenerationService(cfg *config.Config, logger logging.Logger) *GenerationService {
	client := runpod.NewClient(runpod.Options{
		BaseURL:    cfg.BaseURL,
		EndpointID: cfg.EndpointID,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.HTTPTimeout,
	})
	return New(cfg, client, nil, logger)
}

// New creates a service over an arbitrary JobClient. A nil store is opened
// lazily at cfg.OutputDir.
func New(cfg *config.Config, client domain.JobClient, store *artifact.Store, logger logging.Logger) *GenerationService {
	return &GenerationService{
		client: client,
		store:  store,
		config: cfg,
		logger: logger,
		after:  time.After,
		now:    time.Now,
	}
}

// ApplyDefaults fills unset params from the configuration
func (s *GenerationService) ApplyDefaults(p domain.GenerationParams) domain.GenerationParams {
	cfg := s.config
	if p.Width == 0 {
		p.Width = cfg.DefaultImageWidth
	}
	if p.Height == 0 {
		p.Height = cfg.DefaultImageHeight
	}
	if p.NumImages == 0 {
		p.NumImages = cfg.DefaultNumImages
	}
	if p.NumInferenceSteps == 0 {
		p.NumInferenceSteps = cfg.DefaultInferenceSteps
	}
	if p.GuidanceScale == 0 {
		p.GuidanceScale = cfg.DefaultGuidanceScale
	}
	if p.NegativePrompt == "" {
		p.NegativePrompt = cfg.DefaultNegativePrompt
	}
	if p.HFToken == "" {
		p.HFToken = cfg.HFToken
	}
	if p.CustomLoraRepo == "" {
		p.CustomLoraRepo = cfg.CustomLoraRepo
	}
	if p.CustomLoraWeightName == "" {
		p.CustomLoraWeightName = cfg.CustomLoraWeightName
	}
	if p.AWSAccessKeyID == "" && p.AWSSecretAccessKey == "" {
		p.AWSAccessKeyID = cfg.AWSAccessKeyID
		p.AWSSecretAccessKey = cfg.AWSSecretAccessKey
	}
	if p.AWSRegion == "" {
		p.AWSRegion = cfg.AWSRegion
	}
	if p.S3Bucket == "" {
		p.S3Bucket = cfg.S3Bucket
	}
	if p.S3Prefix == "" {
		p.S3Prefix = cfg.S3Prefix
	}
	return p
}

// GenerateSync runs a job on the synchronous endpoint. When the endpoint
// hands back a job that is still running, it falls back to polling.
func (s *GenerationService) GenerateSync(ctx context.Context, params domain.GenerationParams) (*domain.JobResult, error) {
	if params.Prompt == "" {
		return nil, fmt.Errorf("prompt is required")
	}
	params = s.ApplyDefaults(params)

	resp, err := s.client.RunSync(ctx, params.Input())
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}

	if !resp.Status.IsTerminal() && resp.ID != "" && resp.Status.Known() {
		s.logger.Info().Str("job_id", resp.ID).Str("status", string(resp.Status)).Msg("sync call returned before completion, polling")
		return s.WaitForGeneration(ctx, domain.JobHandle(resp.ID))
	}
	return checkResult(domain.JobHandle(resp.ID), resp)
}

// StartGeneration submits a job asynchronously and returns its handle
func (s *GenerationService) StartGeneration(ctx context.Context, params domain.GenerationParams) (domain.JobHandle, error) {
	if params.Prompt == "" {
		return "", fmt.Errorf("prompt is required")
	}
	params = s.ApplyDefaults(params)

	handle, err := s.client.Run(ctx, params.Input())
	if err != nil {
		return "", fmt.Errorf("failed to start generation: %w", err)
	}
	s.logger.Debug().Str("job_id", string(handle)).Msg("job submitted")
	return handle, nil
}

// CheckGenerationStatus checks the status of a job
func (s *GenerationService) CheckGenerationStatus(ctx context.Context, handle domain.JobHandle) (*domain.JobResult, error) {
	resp, err := s.client.Status(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("failed to check generation status: %w", err)
	}
	return resp, nil
}

// CancelGeneration asks the endpoint to cancel a job
func (s *GenerationService) CancelGeneration(ctx context.Context, handle domain.JobHandle) (*domain.CancelResponse, error) {
	resp, err := s.client.Cancel(ctx, handle)
	if err != nil {
		return nil, fmt.Errorf("failed to cancel job: %w", err)
	}
	return resp, nil
}

// WaitForGeneration polls the job every CheckInterval until it reaches a
// terminal status, MaxAttempts status calls were made, or ctx is done.
func (s *GenerationService) WaitForGeneration(ctx context.Context, handle domain.JobHandle) (*domain.JobResult, error) {
	if s.config.GenerationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.GenerationTimeout)
		defer cancel()
	}

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		resp, err := s.CheckGenerationStatus(ctx, handle)
		if err != nil {
			return nil, err
		}

		s.logger.Debug().
			Str("job_id", string(handle)).
			Int("attempt", attempt).
			Str("status", string(resp.Status)).
			Msg("job status")

		switch resp.Status {
		case domain.StatusCompleted, domain.StatusFailed, domain.StatusCancelled:
			return checkResult(handle, resp)
		case domain.StatusInQueue, domain.StatusInProgress:
			if attempt == s.config.MaxAttempts {
				break
			}
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("job %s: %w", handle, ctx.Err())
			case <-s.after(s.config.CheckInterval):
			}
		default:
			return nil, fmt.Errorf("unknown status: %s", resp.Status)
		}
	}

	return nil, fmt.Errorf("job %s: %w", handle, domain.ErrMaxAttempts)
}

// checkResult turns a terminal result into either the result or an error
func checkResult(handle domain.JobHandle, resp *domain.JobResult) (*domain.JobResult, error) {
	id := string(handle)
	if id == "" {
		id = resp.ID
	}
	switch resp.Status {
	case domain.StatusCompleted:
		// the worker reports its own exceptions through output.error
		if resp.Output != nil && resp.Output.Error != "" {
			return nil, &domain.JobFailedError{ID: id, Message: resp.Output.Error}
		}
		return resp, nil
	case domain.StatusFailed:
		msg := resp.Error
		if msg == "" && resp.Output != nil {
			msg = resp.Output.Error
		}
		return nil, &domain.JobFailedError{ID: id, Message: msg}
	case domain.StatusCancelled:
		return nil, fmt.Errorf("job %s: %w", id, domain.ErrJobCancelled)
	default:
		return nil, fmt.Errorf("job %s finished with unexpected status: %s", id, resp.Status)
	}
}

// SaveImages writes every image of a completed result to the output directory
func (s *GenerationService) SaveImages(ctx context.Context, resp *domain.JobResult) ([]string, error) {
	images := resp.Images()
	if len(images) == 0 {
		return nil, ErrNoImages
	}
	store, err := s.outputStore()
	if err != nil {
		return nil, fmt.Errorf("failed to save images: %w", err)
	}
	paths, err := store.SaveAll(ctx, images, s.now())
	if err != nil {
		return paths, fmt.Errorf("failed to save images: %w", err)
	}
	for _, p := range paths {
		s.logger.Info().Str("path", p).Msg("image saved")
	}
	return paths, nil
}

func (s *GenerationService) outputStore() (*artifact.Store, error) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()
	if s.store == nil {
		store, err := artifact.NewStore(s.config.OutputDir)
		if err != nil {
			return nil, err
		}
		s.store = store
	}
	return s.store, nil
}

// Generate runs one job end to end, synchronously or through the polling
// path, and saves its images.
func (s *GenerationService) Generate(ctx context.Context, params domain.GenerationParams, async bool) (*domain.JobResult, []string, error) {
	var (
		resp *domain.JobResult
		err  error
	)
	if async {
		var handle domain.JobHandle
		handle, err = s.StartGeneration(ctx, params)
		if err != nil {
			return nil, nil, err
		}
		s.logger.Info().Str("job_id", string(handle)).Msg("generation started")
		resp, err = s.WaitForGeneration(ctx, handle)
	} else {
		resp, err = s.GenerateSync(ctx, params)
	}
	if err != nil {
		return nil, nil, err
	}

	paths, err := s.SaveImages(ctx, resp)
	return resp, paths, err
}
