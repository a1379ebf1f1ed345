package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"

	"github.com/aristath/consensus/internal/di"
	"github.com/aristath/consensus/internal/domain"
	"github.com/aristath/consensus/internal/pipeline"
)

type runCmd struct {
	full bool
}

func (*runCmd) Name() string     { return "run" }
func (*runCmd) Synopsis() string { return "run one pass of discovery, reconciliation, alerting and export" }
func (*runCmd) Usage() string {
	return `consensus run [-full]

  Discovers updated investors, reads every configured publication, refreshes
  market data, reconciles the results, sends alerts and writes stocks.json,
  stocks.csv and metadata.json to the data directory. SIGINT or SIGTERM
  interrupts the run without touching the previous output.
`
}

func (c *runCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.full, "full", false, "Refetch every investor regardless of its last-modified value.")
}

func (c *runCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := setup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if c.full {
		cfg.ForceFullRefresh = true
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	res, err := container.Pipeline.Run(ctx)
	if errors.Is(err, pipeline.ErrInterrupted) {
		fmt.Fprintln(os.Stderr, "run interrupted, previous output kept")
		return subcommands.ExitFailure
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	r := res.Run
	fmt.Printf("run %s %s: %d securities, %d alerts (%d delivered), %d market failures\n",
		r.ID, r.Status, r.Securities, r.Alerts, r.Delivered, r.MarketFailures)
	fmt.Printf("investors: %d fetched, %d skipped, %d failed; articles: %d\n",
		r.EntitiesFetched, r.EntitiesSkipped, r.EntitiesFailed, r.Articles)

	if r.Status == domain.RunDegraded {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
