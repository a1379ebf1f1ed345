// Command consensus reconciles investor holdings, newsletter mentions and
// market data into one ranked list of securities and raises alerts on it.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
	"github.com/rs/zerolog"

	"github.com/aristath/consensus/internal/config"
	"github.com/aristath/consensus/pkg/logger"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")

	commander.Register(&initCmd{}, "")
	commander.Register(&runCmd{}, "pipeline")
	commander.Register(&serveCmd{}, "pipeline")
	commander.Register(&failuresCmd{}, "state")
	commander.Register(&runsCmd{}, "state")
	commander.Register(&rulesCmd{}, "alerts")

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// setup loads configuration and builds the process logger. Configuration
// warnings are logged once here.
func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		// Fallback logger so the configuration error is still readable
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Error().Err(err).Msg("Failed to load configuration")
		return nil, fallbackLog, err
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	for _, w := range cfg.Warnings {
		log.Warn().Msg(w)
	}
	return cfg, log, nil
}
