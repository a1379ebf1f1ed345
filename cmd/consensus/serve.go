package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/subcommands"

	"github.com/aristath/consensus/internal/di"
	"github.com/aristath/consensus/internal/scheduler"
	"github.com/aristath/consensus/internal/server"
)

// keepRuns bounds the run history kept by weekly maintenance
const keepRuns = 1000

type scheduledJob struct {
	schedule string
	job      scheduler.Job
}

type serveCmd struct {
	schedule string
	timeout  time.Duration
	dev      bool
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "serve the last snapshot over HTTP, optionally running on a schedule" }
func (*serveCmd) Usage() string {
	return `consensus serve [-schedule <cron>] [-timeout <duration>] [-dev]

  Starts the read-only HTTP API on CONSENSUS_PORT. With -schedule the
  pipeline also runs on the given cron expression, for example "0 7 * * *"
  or "@every 6h".
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.schedule, "schedule", "", "Cron expression for scheduled pipeline runs. Empty disables scheduling.")
	f.DurationVar(&c.timeout, "timeout", 2*time.Hour, "Upper bound for a scheduled run.")
	f.BoolVar(&c.dev, "dev", false, "Development mode: disables response compression.")
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := setup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	srv := server.New(server.Config{
		Log:            log,
		Store:          container.Store,
		Previous:       container.Writer,
		Port:           cfg.Port,
		StaleThreshold: cfg.StaleThreshold,
		DataDir:        cfg.DataDir,
		DevMode:        c.dev,
	})
	if err := srv.Reload(ctx); err != nil {
		log.Warn().Err(err).Msg("Starting without a snapshot")
	}

	sched := scheduler.New(log)
	jobs := []scheduledJob{
		{"@every 1m", srv.ReloadJob()},
		{"@hourly", scheduler.NewCheckDatabaseJob(container.StateDB, log)},
		{"0 3 * * 0", scheduler.NewMaintenanceJob(container.StateDB, container.Store, keepRuns, cfg.DataDir, log)},
	}
	if c.schedule != "" {
		jobs = append(jobs, scheduledJob{c.schedule, scheduler.NewPipelineJob(ctx, container.Pipeline, c.timeout, log)})
	}
	for _, j := range jobs {
		if err := sched.AddJob(j.schedule, j.job); err != nil {
			fmt.Fprintf(os.Stderr, "invalid schedule %q for %s: %v\n", j.schedule, j.job.Name(), err)
			return subcommands.ExitFailure
		}
	}
	sched.Start()
	defer sched.Stop()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down")
	case err := <-errCh:
		log.Error().Err(err).Msg("HTTP server failed")
		return subcommands.ExitFailure
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
