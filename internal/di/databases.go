package di

import (
	"fmt"

	"github.com/aristath/consensus/internal/config"
	"github.com/aristath/consensus/internal/database"
	"github.com/aristath/consensus/internal/state"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens the state database, applies its schema and
// builds the state store on top of it.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// state.db - entity progress, failure counters, last snapshot and run history
	stateDB, err := database.New(database.Config{
		Path:    cfg.StateDBPath(),
		Profile: database.ProfileDurable,
		Name:    "state",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize state database: %w", err)
	}

	if err := stateDB.Migrate(); err != nil {
		stateDB.Close()
		return nil, fmt.Errorf("failed to migrate state database: %w", err)
	}

	container.StateDB = stateDB
	container.Store = state.NewStore(stateDB, log)

	log.Debug().Str("path", stateDB.Path()).Msg("State database ready")
	return container, nil
}
