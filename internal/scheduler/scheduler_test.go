package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/consensus/internal/domain"
	"github.com/aristath/consensus/internal/pipeline"
	testingpkg "github.com/aristath/consensus/internal/testing"
)

var nopLog = zerolog.New(nil).Level(zerolog.Disabled)

type countingJob struct {
	runs atomic.Int32
	err  error
}

func (j *countingJob) Name() string { return "counting" }

func (j *countingJob) Run() error {
	j.runs.Add(1)
	return j.err
}

type fakeRunner struct {
	res *pipeline.Result
	err error
	ctx context.Context
}

func (f *fakeRunner) Run(ctx context.Context) (*pipeline.Result, error) {
	f.ctx = ctx
	return f.res, f.err
}

func TestScheduler_AddJobAndRun(t *testing.T) {
	s := New(nopLog)
	job := &countingJob{}

	require.NoError(t, s.AddJob("@every 1s", job))
	assert.Equal(t, 1, s.Entries())

	assert.Error(t, s.AddJob("not a schedule", job))

	s.Start()
	defer s.Stop()

	assert.Eventually(t, func() bool { return job.runs.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}

type blockingJob struct {
	runs    atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (j *blockingJob) Name() string { return "blocking" }

func (j *blockingJob) Run() error {
	j.runs.Add(1)
	j.started <- struct{}{}
	<-j.release
	return nil
}

func TestScheduler_SkipsOverlappingRuns(t *testing.T) {
	s := New(nopLog)
	job := &blockingJob{started: make(chan struct{}, 1), release: make(chan struct{})}
	wrapped := s.wrap(job)

	done := make(chan struct{})
	go func() {
		wrapped.Run()
		close(done)
	}()
	<-job.started

	wrapped.Run()
	assert.Equal(t, int32(1), job.runs.Load())

	close(job.release)
	<-done

	wrapped.Run()
	assert.Equal(t, int32(2), job.runs.Load())
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(nopLog)
	job := &countingJob{err: errors.New("boom")}

	assert.EqualError(t, s.RunNow(job), "boom")
	assert.Equal(t, int32(1), job.runs.Load())
}

func TestPipelineJob(t *testing.T) {
	tests := []struct {
		name    string
		runner  *fakeRunner
		wantErr bool
	}{
		{
			name:   "success",
			runner: &fakeRunner{res: &pipeline.Result{Run: domain.RunRecord{ID: "r1", Status: domain.RunSucceeded}}},
		},
		{
			name:   "interrupted is not an error",
			runner: &fakeRunner{err: pipeline.ErrInterrupted},
		},
		{
			name:    "failure",
			runner:  &fakeRunner{err: errors.New("commit failed")},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			job := NewPipelineJob(context.Background(), tc.runner, time.Minute, nopLog)
			assert.Equal(t, "pipeline_run", job.Name())

			err := job.Run()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			_, hasDeadline := tc.runner.ctx.Deadline()
			assert.True(t, hasDeadline)
		})
	}
}

func TestCheckDatabaseJob(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "state")
	defer cleanup()

	job := NewCheckDatabaseJob(db, nopLog)
	assert.Equal(t, "check_database", job.Name())
	assert.NoError(t, job.Run())

	require.NoError(t, db.Close())
	assert.Error(t, job.Run())
}

type fakePruner struct {
	keep int
	err  error
}

func (f *fakePruner) PruneRuns(_ context.Context, keep int) (int, error) {
	f.keep = keep
	return 3, f.err
}

func TestMaintenanceJob(t *testing.T) {
	db, cleanup := testingpkg.NewTestDB(t, "state")
	defer cleanup()

	t.Run("prunes then vacuums", func(t *testing.T) {
		pruner := &fakePruner{}
		job := NewMaintenanceJob(db, pruner, 500, t.TempDir(), nopLog)
		assert.Equal(t, "maintenance", job.Name())
		require.NoError(t, job.Run())
		assert.Equal(t, 500, pruner.keep)
	})

	t.Run("prune failure does not stop maintenance", func(t *testing.T) {
		pruner := &fakePruner{err: errors.New("locked")}
		job := NewMaintenanceJob(db, pruner, 10, "", nopLog)
		assert.NoError(t, job.Run())
	})

	t.Run("missing data directory fails", func(t *testing.T) {
		job := NewMaintenanceJob(db, nil, 0, "/nonexistent/consensus-data", nopLog)
		assert.Error(t, job.Run())
	})

	t.Run("pruning disabled", func(t *testing.T) {
		pruner := &fakePruner{}
		job := NewMaintenanceJob(db, pruner, 0, "", nopLog)
		require.NoError(t, job.Run())
		assert.Zero(t, pruner.keep)
	})

	t.Run("closed database fails", func(t *testing.T) {
		closed, closeCleanup := testingpkg.NewTestDB(t, "state")
		closeCleanup()
		job := NewMaintenanceJob(closed, nil, 0, "", nopLog)
		assert.Error(t, job.Run())
	})
}
