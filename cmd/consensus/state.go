package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/aristath/consensus/internal/di"
	"github.com/aristath/consensus/internal/domain"
	"github.com/aristath/consensus/internal/failures"
)

type failuresCmd struct {
	reset bool
}

func (*failuresCmd) Name() string     { return "failures" }
func (*failuresCmd) Synopsis() string { return "list or reset market-data failure counters" }
func (*failuresCmd) Usage() string {
	return `consensus failures [-reset] [TICKER...]

  Lists the tickers whose market data failed to load in consecutive runs.
  Tickers at or above CONSENSUS_STALE_THRESHOLD are marked stale. With
  -reset the given tickers, or every ticker when none are given, are
  cleared so they are treated as healthy again.
`
}

func (c *failuresCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.reset, "reset", false, "Delete the failure counters instead of listing them.")
}

func (c *failuresCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := setup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	container, err := di.InitializeDatabases(cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	if c.reset {
		n, err := container.Store.ResetFailures(ctx, f.Args()...)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return subcommands.ExitFailure
		}
		fmt.Printf("reset %d failure records\n", n)
		return subcommands.ExitSuccess
	}

	records, err := container.Store.ListFailures(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if len(records) == 0 {
		fmt.Println("no failing tickers")
		return subcommands.ExitSuccess
	}

	byTicker := make(map[string]domain.FailureRecord, len(records))
	for _, r := range records {
		byTicker[r.Ticker] = r
	}
	tracker := failures.NewTracker(byTicker, cfg.StaleThreshold, log)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TICKER\tCOUNT\tFIRST FAILED\tLAST FAILED\tSTALE")
	for _, r := range tracker.List() {
		stale := ""
		if tracker.IsStale(r.Ticker) {
			stale = "yes"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\n", r.Ticker, r.ConsecutiveCount,
			r.FirstFailedAt.Format(time.RFC3339), r.LastFailedAt.Format(time.RFC3339), stale)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("\nstale after %d consecutive failures\n", tracker.Threshold())
	return subcommands.ExitSuccess
}

type runsCmd struct {
	limit int
}

func (*runsCmd) Name() string     { return "runs" }
func (*runsCmd) Synopsis() string { return "show the most recent pipeline runs" }
func (*runsCmd) Usage() string {
	return `consensus runs [-n <count>]

  Prints the recorded pipeline runs, newest first.
`
}

func (c *runsCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.limit, "n", 10, "Number of runs to show.")
}

func (c *runsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, log, err := setup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	container, err := di.InitializeDatabases(cfg, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer container.Close()

	runs, err := container.Store.ListRuns(ctx, c.limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tSTATUS\tDURATION\tSECURITIES\tALERTS\tDELIVERED\tMARKET FAILURES")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.StartedAt.Format(time.RFC3339), r.Status, r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
			r.Securities, r.Alerts, r.Delivered, r.MarketFailures)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
