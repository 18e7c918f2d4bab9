package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sheetmerge/sheetmerge/internal/config"
	"github.com/sheetmerge/sheetmerge/internal/merge"
	"github.com/sheetmerge/sheetmerge/internal/workbook"
)

// ErrJobNotFound is returned when a job ID does not match any live job.
var ErrJobNotFound = errors.New("merge job not found")

// jobRetention is how long a finished job stays addressable after
// completion, so late progress/result requests still resolve.
const jobRetention = 5 * time.Minute

// Service coordinates merge jobs. It owns the concurrency limiter, the
// live-job registry, and the fingerprint-keyed result cache.
type Service struct {
	cfg     *config.Config
	limiter *MergeLimiter
	cache   *ResultCache

	mu   sync.RWMutex
	jobs map[string]*mergeJob
}

type mergeJob struct {
	ID     string
	Cancel context.CancelFunc
	Done   chan struct{}

	mu        sync.Mutex
	progress  JobProgress
	result    *JobResult
	listeners []chan JobProgress
}

// NewService creates a Service from the loaded configuration.
func NewService(cfg *config.Config) *Service {
	return &Service{
		cfg:     cfg,
		limiter: NewMergeLimiter(cfg.Merge.MaxConcurrent, cfg.Merge.MaxWaitTime),
		cache:   NewResultCache(cfg.Cache.TTL, cfg.Cache.MaxEntries),
		jobs:    make(map[string]*mergeJob),
	}
}

// StartMerge begins an asynchronous merge over the given sources and
// returns the job ID immediately. If the source set's fingerprint is in
// the result cache the job completes on the spot from the cached artifact.
//
// Returns ErrTooManyMerges when the concurrent merge limit is reached and
// no slot frees up within the configured wait time.
func (s *Service) StartMerge(ctx context.Context, sources []merge.Source) (string, error) {
	if len(sources) == 0 {
		return "", merge.ErrNoSources
	}

	jobID := uuid.New().String()
	fingerprint := merge.Fingerprint(sources)

	if cached, ok := s.cache.Get(fingerprint); ok {
		slog.Info("merge served from cache",
			"job_id", jobID,
			"fingerprint", fingerprint,
			"sources", len(sources),
		)
		s.registerCompleted(jobID, cached)
		return jobID, nil
	}

	// Acquire a merge slot (blocks until available or timeout).
	if err := s.limiter.Acquire(ctx); err != nil {
		return "", err
	}

	jobCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Merge.Timeout)

	job := &mergeJob{
		ID:     jobID,
		Cancel: cancel,
		Done:   make(chan struct{}),
		progress: JobProgress{
			JobID:       jobID,
			Phase:       PhaseStarting,
			SourceCount: len(sources),
		},
	}

	s.mu.Lock()
	s.jobs[jobID] = job
	s.mu.Unlock()

	// Run in the background with panic recovery so a bad workbook can
	// never leak the limiter slot.
	go func() {
		defer cancel()
		defer s.limiter.Release()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in merge job", "job_id", jobID, "panic", r)
				s.finishJob(job, PhaseFailed, fmt.Sprintf("internal error: %v", r), nil)
			}
		}()
		s.runMerge(jobCtx, job, sources, fingerprint)
	}()

	return jobID, nil
}

// runMerge drives one merge job through its phases.
func (s *Service) runMerge(ctx context.Context, job *mergeJob, sources []merge.Source, fingerprint string) {
	start := time.Now()
	logger := slog.With("job_id", job.ID, "sources", len(sources))
	logger.Info("merge started")

	job.update(func(p *JobProgress) { p.Phase = PhaseReading })

	opts := merge.Options{
		Workers: s.cfg.Merge.Workers,
		OnPair: func(done, total int) {
			job.update(func(p *JobProgress) {
				p.Phase = PhaseMerging
				p.PairsDone = done
				p.PairsTotal = total
			})
		},
	}

	res, err := merge.Merge(ctx, sources, opts)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("merge cancelled")
			s.finishJob(job, PhaseCancelled, "merge cancelled", nil)
			return
		}
		logger.Error("merge failed", "error", err)
		s.finishJob(job, PhaseFailed, err.Error(), nil)
		return
	}

	job.update(func(p *JobProgress) { p.Phase = PhaseWriting })

	output, err := workbook.Write(res)
	if err != nil {
		logger.Error("workbook write failed", "error", err)
		s.finishJob(job, PhaseFailed, err.Error(), nil)
		return
	}

	result := newJobResult(job.ID, fingerprint, res, output, time.Since(start))
	s.cache.Put(fingerprint, result)

	logger.Info("merge complete",
		"sheets", len(result.Sheets),
		"rows", res.RowCount(),
		"read_failures", len(result.ReadFailures),
		"duration", result.Duration,
	)
	s.finishJob(job, PhaseComplete, "", result)
}

// finishJob records the terminal state, wakes result waiters, closes all
// progress listeners, and schedules the registry entry for removal.
func (s *Service) finishJob(job *mergeJob, phase JobPhase, errMsg string, result *JobResult) {
	if result == nil {
		result = &JobResult{JobID: job.ID, Error: errMsg}
	}

	job.mu.Lock()
	job.progress.Phase = phase
	job.progress.Error = errMsg
	job.result = result
	for _, ch := range job.listeners {
		select {
		case ch <- job.progress:
		default:
		}
		close(ch)
	}
	job.listeners = nil
	job.mu.Unlock()

	close(job.Done)
	s.cleanup(job.ID, jobRetention)
}

// registerCompleted installs an already-finished job backed by a cached
// artifact. The result keeps its original fingerprint but reports under
// the new job ID.
func (s *Service) registerCompleted(jobID string, cached *JobResult) {
	result := *cached
	result.JobID = jobID
	result.CacheHit = true

	job := &mergeJob{
		ID:     jobID,
		Cancel: func() {},
		Done:   make(chan struct{}),
		progress: JobProgress{
			JobID: jobID,
			Phase: PhaseComplete,
		},
		result: &result,
	}
	close(job.Done)

	s.mu.Lock()
	s.jobs[jobID] = job
	s.mu.Unlock()

	s.cleanup(jobID, jobRetention)
}

// SubscribeProgress returns a channel receiving progress updates for a
// job. The current snapshot is delivered immediately; the channel closes
// when the job reaches a terminal phase.
func (s *Service) SubscribeProgress(jobID string) (<-chan JobProgress, error) {
	job, ok := s.job(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	ch := make(chan JobProgress, 10)

	job.mu.Lock()
	ch <- job.progress
	if job.result != nil {
		// Already finished; no further updates will come.
		close(ch)
	} else {
		job.listeners = append(job.listeners, ch)
	}
	job.mu.Unlock()

	return ch, nil
}

// CancelJob cancels an in-progress merge job.
func (s *Service) CancelJob(jobID string) error {
	job, ok := s.job(jobID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	job.Cancel()
	return nil
}

// GetResult returns the final result of a job, blocking until the job
// completes if it is still running.
func (s *Service) GetResult(ctx context.Context, jobID string) (*JobResult, error) {
	job, ok := s.job(jobID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	select {
	case <-job.Done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	job.mu.Lock()
	defer job.mu.Unlock()
	return job.result, nil
}

// GetProgress returns the current progress snapshot without blocking.
func (s *Service) GetProgress(jobID string) (JobProgress, error) {
	job, ok := s.job(jobID)
	if !ok {
		return JobProgress{}, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	job.mu.Lock()
	defer job.mu.Unlock()
	return job.progress, nil
}

// InvalidateCache drops the cached artifact for one fingerprint.
func (s *Service) InvalidateCache(fingerprint string) bool {
	return s.cache.Invalidate(fingerprint)
}

// PurgeCache drops every cached artifact and returns how many there were.
func (s *Service) PurgeCache() int {
	return s.cache.Purge()
}

// LimiterStatus reports the merge limiter's state for monitoring.
func (s *Service) LimiterStatus() LimiterStatus {
	return s.limiter.Status()
}

// WaitForMerges blocks until every active merge finishes or ctx expires.
// Used during graceful shutdown.
func (s *Service) WaitForMerges(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

func (s *Service) job(jobID string) (*mergeJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	return job, ok
}

// cleanup removes a job from the registry after the retention window.
func (s *Service) cleanup(jobID string, after time.Duration) {
	time.AfterFunc(after, func() {
		s.mu.Lock()
		delete(s.jobs, jobID)
		s.mu.Unlock()
	})
}

// update mutates the progress snapshot and fans it out to listeners.
// Sends never block; a slow subscriber just misses intermediate updates.
func (j *mergeJob) update(mutate func(*JobProgress)) {
	j.mu.Lock()
	defer j.mu.Unlock()

	mutate(&j.progress)
	for _, ch := range j.listeners {
		select {
		case ch <- j.progress:
		default:
		}
	}
}
