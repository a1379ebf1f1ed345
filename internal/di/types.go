// Package di wires the consensus components from configuration.
package di

import (
	"github.com/aristath/consensus/internal/clients/dataroma"
	"github.com/aristath/consensus/internal/clients/substack"
	"github.com/aristath/consensus/internal/clients/yahoo"
	"github.com/aristath/consensus/internal/database"
	"github.com/aristath/consensus/internal/domain"
	"github.com/aristath/consensus/internal/export"
	"github.com/aristath/consensus/internal/fetch"
	"github.com/aristath/consensus/internal/pipeline"
	"github.com/aristath/consensus/internal/publish"
	"github.com/aristath/consensus/internal/state"
)

// Container holds every long-lived dependency of a consensus process
type Container struct {
	StateDB *database.DB
	Store   *state.Store

	Gate     *fetch.HostGate
	Holdings *dataroma.Client
	Mentions *substack.Client
	Market   *yahoo.Client

	Notifier  domain.Notifier
	Writer    *export.Writer
	Publisher *publish.Publisher // nil when no publish target is configured

	Pipeline *pipeline.Pipeline
}

// Close releases the database connection
func (c *Container) Close() error {
	if c == nil || c.StateDB == nil {
		return nil
	}
	return c.StateDB.Close()
}
