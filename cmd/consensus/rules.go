package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/google/subcommands"

	"github.com/aristath/consensus/internal/alerts"
)

type rulesCmd struct {
	vars bool
}

func (*rulesCmd) Name() string     { return "rules" }
func (*rulesCmd) Synopsis() string { return "validate the alert rules of the sources file" }
func (*rulesCmd) Usage() string {
	return `consensus rules [-vars]

  Compiles every rule condition in the sources file and reports the ones that
  do not parse. With -vars the variables usable in conditions are listed.
`
}

func (c *rulesCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.vars, "vars", false, "List the variables available to rule conditions.")
}

func (c *rulesCmd) Execute(_ context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.vars {
		fmt.Println(strings.Join(alerts.VariableNames(), "\n"))
		return subcommands.ExitSuccess
	}

	cfg, _, err := setup()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}

	rules := cfg.Sources.Rules
	problems := alerts.CheckRules(rules)
	for _, p := range problems {
		fmt.Fprintf(os.Stderr, "%s: %q: %v\n", p.Rule.Name, p.Rule.Condition, p.Err)
	}
	fmt.Printf("%d rules, %d invalid\n", len(rules), len(problems))

	if len(problems) > 0 {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
