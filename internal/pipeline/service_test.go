package pipeline

import (
	"context"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/legal-analyzer/internal/model"
	"github.com/sells-group/legal-analyzer/internal/progress"
	"github.com/sells-group/legal-analyzer/internal/store"
)

func newTestService(t *testing.T, primary, secondary *fakeGen) *Service {
	t.Helper()
	st, err := store.NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.Migrate(context.Background()))
	t.Cleanup(func() { st.Close() })

	reg := progress.NewRegistry()
	return NewService(New(primary, secondary, nil, reg), reg, st, 4)
}

func TestService_StartAnalysis_EndToEnd(t *testing.T) {
	primary := newFakeGen("anthropic-primary")
	primary.responses[string(model.StageLayer1Extraction)] = extractionWithHallucination
	secondary := newFakeGen("anthropic-secondary")
	secondary.responses[string(model.StageLayer2Verification)] = verificationFlaggingJaneDoe

	svc := newTestService(t, primary, secondary)

	jobID, err := svc.StartAnalysis("doc-1", "settlement.pdf", settlementDoc, model.ModeQuick, "tester")
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	svc.Wait()

	job, err := svc.GetJobStatus(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StageCompleted, job.Stage)
	assert.Equal(t, 100, job.ProgressPercent)

	ctx := context.Background()
	analysis, err := svc.GetResult(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, "doc-1", analysis.DocumentID)
	assert.Equal(t, 1, analysis.HallucinationsDetected)

	trail, err := svc.GetAuditTrail(ctx, jobID)
	require.NoError(t, err)
	assert.NotEmpty(t, trail.Events)
	require.Len(t, trail.Hallucinations, 1)
}

func TestService_FailedRunPersistsTrailOnly(t *testing.T) {
	primary := newFakeGen("anthropic-primary")
	primary.errors[string(model.StageLayer1Extraction)] = eris.New("overloaded")
	secondary := newFakeGen("anthropic-secondary")
	secondary.errors[string(model.StageLayer1Extraction)] = eris.New("overloaded")

	svc := newTestService(t, primary, secondary)

	jobID, err := svc.StartAnalysis("doc-1", "settlement.pdf", settlementDoc, model.ModeQuick, "")
	require.NoError(t, err)

	svc.Wait()

	job, err := svc.GetJobStatus(jobID)
	require.NoError(t, err)
	assert.Equal(t, model.StageFailed, job.Stage)

	ctx := context.Background()
	_, err = svc.GetResult(ctx, jobID)
	require.Error(t, err)
	var failed *AnalysisFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, jobID, failed.JobID)
	assert.Contains(t, failed.Reason, "all extraction providers failed")

	trail, err := svc.GetAuditTrail(ctx, jobID)
	require.NoError(t, err)
	assert.NotNil(t, trail.CompletedAt)
}

func TestService_GetResult_DistinguishesPendingFailedUnknown(t *testing.T) {
	svc := newTestService(t, newFakeGen("anthropic-primary"), newFakeGen("anthropic-secondary"))
	ctx := context.Background()

	// Registered but still running: pending, not NotFound.
	_, err := svc.registry.CreateJob("job-pending", "doc-1", "lease.pdf", "")
	require.NoError(t, err)
	svc.registry.UpdateStage("job-pending", model.StageLayer2Verification, progress.StageUpdate{})

	_, err = svc.GetResult(ctx, "job-pending")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrAnalysisPending))
	assert.False(t, eris.Is(err, store.ErrNotFound))

	// Failed: the job's recorded error surfaces.
	svc.registry.FailJob("job-pending", eris.New("provider overloaded"))

	_, err = svc.GetResult(ctx, "job-pending")
	var failed *AnalysisFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, "provider overloaded", failed.Reason)

	// Never created: not found.
	_, err = svc.GetResult(ctx, "job-unknown")
	require.Error(t, err)
	assert.True(t, eris.Is(err, store.ErrNotFound))
}

func TestService_GetJobStatus_Unknown(t *testing.T) {
	svc := newTestService(t, newFakeGen("anthropic-primary"), newFakeGen("anthropic-secondary"))

	_, err := svc.GetJobStatus("nope")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrJobNotFound))
}

func TestService_Cancel_UnknownJob(t *testing.T) {
	svc := newTestService(t, newFakeGen("anthropic-primary"), newFakeGen("anthropic-secondary"))

	err := svc.Cancel("nope")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrJobNotFound))
}

func TestService_ConcurrentAnalyses(t *testing.T) {
	primary := newFakeGen("anthropic-primary")
	primary.responses[string(model.StageLayer1Extraction)] = extractionWithHallucination
	secondary := newFakeGen("anthropic-secondary")
	secondary.responses[string(model.StageLayer2Verification)] = verificationFlaggingJaneDoe

	svc := newTestService(t, primary, secondary)

	jobIDs := make([]string, 0, 8)
	for i := 0; i < 8; i++ {
		jobID, err := svc.StartAnalysis("doc-1", "settlement.pdf", settlementDoc, model.ModeQuick, "")
		require.NoError(t, err)
		jobIDs = append(jobIDs, jobID)
	}

	svc.Wait()

	for _, jobID := range jobIDs {
		job, err := svc.GetJobStatus(jobID)
		require.NoError(t, err)
		assert.Equal(t, model.StageCompleted, job.Stage, "job %s", jobID)
	}
	assert.Empty(t, svc.ActiveJobs())
	assert.Len(t, svc.AllJobs(), 8)
}
