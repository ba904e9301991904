// Package progress tracks in-flight and completed analysis jobs. The
// registry is a single shared map guarded by one mutex; every operation is
// atomic per job id and callers receive copies, never live pointers.
package progress

import (
	"sort"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/legal-analyzer/internal/model"
)

// ErrDuplicateJob is returned when creating a job id that already exists.
var ErrDuplicateJob = eris.New("progress: job already exists")

// StageUpdate carries the optional per-stage detail and counter increments
// for an UpdateStage call.
type StageUpdate struct {
	Detail         string
	ItemsExtracted int
	ItemsFlagged   int
	ItemsCorrected int
	Hallucinations []model.HallucinationRecord
}

// Registry is the thread-safe job store.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*model.AnalysisJob
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*model.AnalysisJob)}
}

// CreateJob registers a new job in the Queued stage. Fails with
// ErrDuplicateJob when the id is already present.
func (r *Registry) CreateJob(jobID, documentID, filename, userInfo string) (*model.AnalysisJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[jobID]; exists {
		return nil, eris.Wrapf(ErrDuplicateJob, "jobId %s", jobID)
	}
	now := time.Now().UTC()
	job := &model.AnalysisJob{
		JobID:           jobID,
		DocumentID:      documentID,
		Filename:        filename,
		UserInfo:        userInfo,
		Stage:           model.StageQueued,
		ProgressPercent: model.StageQueued.Percent(),
		StartedAt:       now,
		UpdatedAt:       now,
	}
	r.jobs[jobID] = job
	return copyJob(job), nil
}

// UpdateStage advances a job to the given stage, recomputes its progress
// from the fixed stage table, and appends the previous stage to
// stagesCompleted. Progress never decreases. Unknown job ids and jobs
// already in a terminal stage are logged no-ops returning nil.
func (r *Registry) UpdateStage(jobID string, stage model.AnalysisStage, upd StageUpdate) *model.AnalysisJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		zap.L().Warn("progress: update for unknown job",
			zap.String("jobId", jobID), zap.String("stage", string(stage)))
		return nil
	}
	if job.Stage.Terminal() {
		zap.L().Warn("progress: update for terminal job ignored",
			zap.String("jobId", jobID),
			zap.String("currentStage", string(job.Stage)),
			zap.String("requestedStage", string(stage)))
		return nil
	}

	if stage != job.Stage {
		job.StagesCompleted = append(job.StagesCompleted, string(job.Stage))
		job.Stage = stage
	}
	if pct := stage.Percent(); pct > job.ProgressPercent {
		job.ProgressPercent = pct
	}
	job.Detail = upd.Detail
	job.ItemsExtracted += upd.ItemsExtracted
	job.ItemsFlagged += upd.ItemsFlagged
	job.ItemsCorrected += upd.ItemsCorrected
	job.HallucinationReports = append(job.HallucinationReports, upd.Hallucinations...)
	job.UpdatedAt = time.Now().UTC()

	if stage.Terminal() {
		now := job.UpdatedAt
		job.CompletedAt = &now
	}
	return copyJob(job)
}

// CompleteJob moves a job to the terminal Completed stage.
func (r *Registry) CompleteJob(jobID string, upd StageUpdate) *model.AnalysisJob {
	return r.UpdateStage(jobID, model.StageCompleted, upd)
}

// FailJob moves a job to the terminal Failed stage, recording the error
// message and keeping the last progress value reached. Idempotent: a job
// already terminal is left untouched.
func (r *Registry) FailJob(jobID string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		zap.L().Warn("progress: fail for unknown job", zap.String("jobId", jobID))
		return
	}
	if job.Stage.Terminal() {
		return
	}
	job.StagesCompleted = append(job.StagesCompleted, string(job.Stage))
	job.Stage = model.StageFailed
	if err != nil {
		job.Error = err.Error()
	}
	now := time.Now().UTC()
	job.UpdatedAt = now
	job.CompletedAt = &now
}

// Get returns a copy of the job, or nil when the id is unknown.
func (r *Registry) Get(jobID string) *model.AnalysisJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil
	}
	return copyJob(job)
}

// ActiveJobs returns copies of all non-terminal jobs, oldest first.
func (r *Registry) ActiveJobs() []*model.AnalysisJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*model.AnalysisJob
	for _, job := range r.jobs {
		if job.Stage.Terminal() {
			continue
		}
		out = append(out, copyJob(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// AllJobs returns copies of every job, oldest first.
func (r *Registry) AllJobs() []*model.AnalysisJob {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*model.AnalysisJob, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, copyJob(job))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// CleanupOlderThan removes terminal jobs whose last update is older than
// maxAge. Returns the number removed. In-flight jobs are never removed.
func (r *Registry) CleanupOlderThan(maxAge time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for id, job := range r.jobs {
		if job.Stage.Terminal() && job.UpdatedAt.Before(cutoff) {
			delete(r.jobs, id)
			removed++
		}
	}
	return removed
}

func copyJob(job *model.AnalysisJob) *model.AnalysisJob {
	cp := *job
	cp.StagesCompleted = append([]string(nil), job.StagesCompleted...)
	cp.HallucinationReports = append([]model.HallucinationRecord(nil), job.HallucinationReports...)
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}
