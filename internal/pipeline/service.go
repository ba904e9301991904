package pipeline

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/legal-analyzer/internal/model"
	"github.com/sells-group/legal-analyzer/internal/progress"
	"github.com/sells-group/legal-analyzer/internal/store"
)

// ErrJobNotFound is returned for job IDs the service has never seen.
var ErrJobNotFound = eris.New("pipeline: job not found")

// ErrAnalysisPending is returned by GetResult while the job is still running.
var ErrAnalysisPending = eris.New("pipeline: analysis still in progress")

// AnalysisFailedError is returned by GetResult for a job that reached the
// failed stage. Reason carries the job's recorded error.
type AnalysisFailedError struct {
	JobID  string
	Reason string
}

func (e *AnalysisFailedError) Error() string {
	return "pipeline: analysis " + e.JobID + " failed: " + e.Reason
}

// Service runs analyses in the background and exposes their progress,
// results, and audit trails. Safe for concurrent use.
type Service struct {
	pipeline *Pipeline
	registry *progress.Registry
	store    store.Store

	group *errgroup.Group

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewService builds a Service running at most maxConcurrent analyses at once.
func NewService(p *Pipeline, registry *progress.Registry, st store.Store, maxConcurrent int) *Service {
	g := &errgroup.Group{}
	if maxConcurrent > 0 {
		g.SetLimit(maxConcurrent)
	}
	return &Service{
		pipeline: p,
		registry: registry,
		store:    st,
		group:    g,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// StartAnalysis registers a job and runs the analysis in the background,
// detached from the caller's context. The returned job ID is the handle for
// status, result, audit trail, and cancellation.
func (s *Service) StartAnalysis(documentID, filename, text string, mode model.AnalysisMode, userInfo string) (string, error) {
	jobID := uuid.New().String()
	if _, err := s.registry.CreateJob(jobID, documentID, filename, userInfo); err != nil {
		return "", err
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancels[jobID] = cancel
	s.mu.Unlock()

	s.group.Go(func() error {
		defer func() {
			cancel()
			s.mu.Lock()
			delete(s.cancels, jobID)
			s.mu.Unlock()
		}()

		analysis, runErr := s.pipeline.Run(runCtx, Request{
			DocumentID: documentID,
			Filename:   filename,
			Text:       text,
			Mode:       mode,
			JobID:      jobID,
		})
		s.persist(jobID, analysis, runErr == nil)
		return nil
	})

	return jobID, nil
}

// persist saves what the run produced. The audit trail is written even for
// failed runs; the result only for successful ones. Persistence failures are
// logged, never raised: the in-memory job record remains authoritative.
func (s *Service) persist(jobID string, analysis *model.VerifiedAnalysis, succeeded bool) {
	if s.store == nil || analysis == nil {
		return
	}
	ctx := context.Background()

	if analysis.AuditTrail != nil {
		if err := s.store.SaveAuditTrail(ctx, jobID, analysis.AuditTrail); err != nil {
			zap.L().Error("persist audit trail failed", zap.String("jobId", jobID), zap.Error(err))
		}
	}
	if succeeded {
		if err := s.store.SaveAnalysis(ctx, jobID, analysis); err != nil {
			zap.L().Error("persist analysis failed", zap.String("jobId", jobID), zap.Error(err))
		}
	}
}

// GetJobStatus returns a snapshot of the job's progress.
func (s *Service) GetJobStatus(jobID string) (*model.AnalysisJob, error) {
	job := s.registry.Get(jobID)
	if job == nil {
		return nil, eris.Wrapf(ErrJobNotFound, "jobId %s", jobID)
	}
	return job, nil
}

// GetResult returns the persisted analysis for a completed job. A job that
// is still running yields ErrAnalysisPending; a failed job yields an
// AnalysisFailedError carrying its recorded error. Only an id the registry
// and the store both lack reads as not found.
func (s *Service) GetResult(ctx context.Context, jobID string) (*model.VerifiedAnalysis, error) {
	if job := s.registry.Get(jobID); job != nil {
		switch {
		case !job.Stage.Terminal():
			return nil, eris.Wrapf(ErrAnalysisPending, "jobId %s", jobID)
		case job.Stage == model.StageFailed:
			return nil, &AnalysisFailedError{JobID: jobID, Reason: job.Error}
		}
	}
	if s.store == nil {
		return nil, eris.New("pipeline: no store configured")
	}
	return s.store.GetAnalysis(ctx, jobID)
}

// GetAuditTrail returns the persisted audit trail for a job, present even
// when the run failed partway.
func (s *Service) GetAuditTrail(ctx context.Context, jobID string) (*model.AuditTrail, error) {
	if s.store == nil {
		return nil, eris.New("pipeline: no store configured")
	}
	return s.store.GetAuditTrail(ctx, jobID)
}

// ActiveJobs lists jobs that have not reached a terminal stage.
func (s *Service) ActiveJobs() []*model.AnalysisJob {
	return s.registry.ActiveJobs()
}

// AllJobs lists every job the registry still holds.
func (s *Service) AllJobs() []*model.AnalysisJob {
	return s.registry.AllJobs()
}

// Cancel stops a running analysis. The run seals its audit trail with
// whatever it had proved before the cancellation.
func (s *Service) Cancel(jobID string) error {
	s.mu.Lock()
	cancel, ok := s.cancels[jobID]
	s.mu.Unlock()
	if !ok {
		return eris.Wrapf(ErrJobNotFound, "jobId %s", jobID)
	}
	cancel()
	return nil
}

// Wait blocks until all in-flight analyses finish. Used on shutdown.
func (s *Service) Wait() {
	s.group.Wait()
}
