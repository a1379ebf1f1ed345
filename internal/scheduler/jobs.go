package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/disk"

	"github.com/aristath/consensus/internal/pipeline"
)

// Runner runs one pipeline pass
type Runner interface {
	Run(ctx context.Context) (*pipeline.Result, error)
}

// HealthChecker is satisfied by *database.DB
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
	Name() string
}

// PipelineJob runs the pipeline on a schedule. The job context is cancelled
// when Stop is called on the job, which interrupts the current run.
type PipelineJob struct {
	runner  Runner
	ctx     context.Context
	timeout time.Duration
	log     zerolog.Logger
}

// NewPipelineJob creates a job bound to ctx. A zero timeout means no limit.
func NewPipelineJob(ctx context.Context, runner Runner, timeout time.Duration, log zerolog.Logger) *PipelineJob {
	return &PipelineJob{
		runner:  runner,
		ctx:     ctx,
		timeout: timeout,
		log:     log.With().Str("job", "pipeline_run").Logger(),
	}
}

// Name returns the job name
func (j *PipelineJob) Name() string {
	return "pipeline_run"
}

// Run executes one pipeline pass
func (j *PipelineJob) Run() error {
	ctx := j.ctx
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	res, err := j.runner.Run(ctx)
	if err != nil {
		if errors.Is(err, pipeline.ErrInterrupted) {
			j.log.Warn().Err(err).Msg("Scheduled run interrupted")
			return nil
		}
		return fmt.Errorf("scheduled run failed: %w", err)
	}

	j.log.Info().
		Str("run_id", res.Run.ID).
		Str("status", string(res.Run.Status)).
		Int("securities", res.Run.Securities).
		Msg("Scheduled run finished")
	return nil
}

// CheckDatabaseJob verifies the integrity of the state database
type CheckDatabaseJob struct {
	db  HealthChecker
	log zerolog.Logger
}

// NewCheckDatabaseJob creates a new CheckDatabaseJob
func NewCheckDatabaseJob(db HealthChecker, log zerolog.Logger) *CheckDatabaseJob {
	return &CheckDatabaseJob{
		db:  db,
		log: log.With().Str("job", "check_database").Logger(),
	}
}

// Name returns the job name
func (j *CheckDatabaseJob) Name() string {
	return "check_database"
}

// Run executes the integrity check
func (j *CheckDatabaseJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := j.db.HealthCheck(ctx); err != nil {
		j.log.Error().Err(err).Str("database", j.db.Name()).Msg("Database integrity check failed")
		return fmt.Errorf("database %s unhealthy: %w", j.db.Name(), err)
	}
	j.log.Debug().Str("database", j.db.Name()).Msg("Database healthy")
	return nil
}

// Maintainer is satisfied by *database.DB
type Maintainer interface {
	Name() string
	Size(ctx context.Context) (int64, error)
	Checkpoint(ctx context.Context) error
	Vacuum(ctx context.Context) error
}

// RunPruner is satisfied by *state.Store
type RunPruner interface {
	PruneRuns(ctx context.Context, keep int) (int, error)
}

// MinFreeDiskBytes is the free space VACUUM needs on the data volume
const MinFreeDiskBytes = 500 * 1024 * 1024

// MaintenanceJob trims the run history, checkpoints the WAL and vacuums the
// state database.
type MaintenanceJob struct {
	db       Maintainer
	runs     RunPruner
	keepRuns int
	dataDir  string
	log      zerolog.Logger
}

// NewMaintenanceJob creates a new MaintenanceJob. keepRuns below 1 disables
// pruning. An empty dataDir skips the free-space check.
func NewMaintenanceJob(db Maintainer, runs RunPruner, keepRuns int, dataDir string, log zerolog.Logger) *MaintenanceJob {
	return &MaintenanceJob{
		db:       db,
		runs:     runs,
		keepRuns: keepRuns,
		dataDir:  dataDir,
		log:      log.With().Str("job", "maintenance").Logger(),
	}
}

// Name returns the job name
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run executes the maintenance steps. Pruning failures are logged and the
// remaining steps still run.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if j.keepRuns > 0 && j.runs != nil {
		n, err := j.runs.PruneRuns(ctx, j.keepRuns)
		if err != nil {
			j.log.Warn().Err(err).Msg("Failed to prune run history")
		} else if n > 0 {
			j.log.Info().Int("removed", n).Msg("Pruned run history")
		}
	}

	if err := j.db.Checkpoint(ctx); err != nil {
		return err
	}

	if j.dataDir != "" {
		usage, err := disk.UsageWithContext(ctx, j.dataDir)
		if err != nil {
			return fmt.Errorf("failed to read disk usage: %w", err)
		}
		if usage.Free < MinFreeDiskBytes {
			j.log.Error().Uint64("free_bytes", usage.Free).Msg("Insufficient disk space, skipping VACUUM")
			return fmt.Errorf("only %d bytes free on %s", usage.Free, j.dataDir)
		}
	}

	before, err := j.db.Size(ctx)
	if err != nil {
		return err
	}
	if err := j.db.Vacuum(ctx); err != nil {
		return err
	}
	after, err := j.db.Size(ctx)
	if err != nil {
		return err
	}

	j.log.Info().
		Str("database", j.db.Name()).
		Int64("size_before", before).
		Int64("size_after", after).
		Msg("Database maintenance completed")
	return nil
}
