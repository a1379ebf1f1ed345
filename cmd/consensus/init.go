package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"

	"github.com/google/subcommands"

	"github.com/aristath/consensus/internal/config"
	"github.com/aristath/consensus/pkg/embedded"
)

type initCmd struct {
	force bool
}

func (*initCmd) Name() string     { return "init" }
func (*initCmd) Synopsis() string { return "write an example sources file" }
func (*initCmd) Usage() string {
	return `consensus init [-force]

  Writes an annotated sources.yaml to CONSENSUS_SOURCES_FILE, by default
  inside the data directory. An existing file is kept unless -force is given.
`
}

func (c *initCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.force, "force", false, "Overwrite an existing sources file.")
}

func (c *initCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, _, err := setup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if _, err := os.Stat(cfg.SourcesFile); err == nil && !c.force {
		fmt.Fprintf(os.Stderr, "%s already exists, use -force to overwrite\n", cfg.SourcesFile)
		return subcommands.ExitFailure
	} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	if _, err := config.ParseSources(embedded.SourcesExample); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	if err := os.WriteFile(cfg.SourcesFile, embedded.SourcesExample, 0644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	fmt.Printf("wrote %s\n", cfg.SourcesFile)
	return subcommands.ExitSuccess
}
